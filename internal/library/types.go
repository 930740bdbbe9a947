package library

import (
	"context"
	"path"
	"strings"
	"time"
)

var (
	VideoExtensions   = []string{".mp4", ".mov"}
	SidecarExtensions = []string{".json", ".txt", ".md"}
)

// Asset is one raw video found in a content source.
type Asset struct {
	Key          string    `json:"key"`
	Bucket       string    `json:"bucket"`
	Fingerprint  string    `json:"fingerprint"`
	Size         int64     `json:"size"`
	LastModified time.Time `json:"last_modified"`
	// SidecarKey names a companion metadata file, empty when there is none.
	SidecarKey string `json:"sidecar_key,omitempty"`
}

// Source lists, fetches and archives raw assets. Keys are opaque to callers
// and only meaningful to the source that produced them.
type Source interface {
	List(ctx context.Context) ([]Asset, error)
	ReadSidecar(ctx context.Context, key string) (string, error)
	// Download copies the asset to a local temp file and returns its path.
	// The caller owns the file.
	Download(ctx context.Context, key string) (string, error)
	// Archive moves the asset and its companions out of the discovery root.
	Archive(ctx context.Context, key string) error
}

func isVideoKey(key string) bool {
	ext := strings.ToLower(path.Ext(key))
	for _, e := range VideoExtensions {
		if ext == e {
			return true
		}
	}
	return false
}

// companionKeys returns the sidecar candidates for a video key in lookup order.
func companionKeys(key string) []string {
	base := strings.TrimSuffix(key, path.Ext(key))
	ret := make([]string, 0, len(SidecarExtensions))
	for _, ext := range SidecarExtensions {
		ret = append(ret, base+ext)
	}
	return ret
}
