package metadata

import (
	"encoding/json"
	"strings"
)

// fields is the loose shape shared by sidecar files and generated replies.
type fields struct {
	Title       string   `json:"title"`
	Description string   `json:"description"`
	Hashtags    wordList `json:"hashtags"`
	Tags        wordList `json:"tags"`
	Language    string   `json:"language"`
}

// wordList accepts either a JSON array of strings or one comma separated string.
type wordList []string

func (w *wordList) UnmarshalJSON(data []byte) error {
	var list []string
	if err := json.Unmarshal(data, &list); err == nil {
		*w = list
		return nil
	}
	var joined string
	if err := json.Unmarshal(data, &joined); err != nil {
		return err
	}
	*w = splitCommas(joined)
	return nil
}

// parseSidecar reads a JSON object, falling back to "key: value" lines.
// Unknown keys are ignored.
func parseSidecar(raw string) fields {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return fields{}
	}

	var f fields
	if err := json.Unmarshal([]byte(raw), &f); err == nil {
		f.Title = strings.TrimSpace(f.Title)
		return f
	}

	f = fields{}
	for _, line := range strings.Split(raw, "\n") {
		key, value, ok := strings.Cut(strings.TrimSpace(line), ":")
		if !ok {
			continue
		}
		value = strings.TrimSpace(value)
		switch strings.ToLower(strings.TrimSpace(key)) {
		case "title":
			f.Title = value
		case "description":
			f.Description = value
		case "hashtags":
			f.Hashtags = splitCommas(value)
		case "tags":
			f.Tags = splitCommas(value)
		case "language":
			f.Language = value
		}
	}
	return f
}

func splitCommas(raw string) []string {
	ret := make([]string, 0)
	for _, part := range strings.Split(raw, ",") {
		if part = strings.TrimSpace(part); part != "" {
			ret = append(ret, part)
		}
	}
	return ret
}
