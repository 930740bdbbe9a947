package metadata

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/MimeLyc/shorts-publisher/internal/jobs"
	"github.com/MimeLyc/shorts-publisher/pkg/log"
	"github.com/abadojack/whatlanggo"
	"golang.org/x/text/language"
)

const (
	MaxHashtags      = 15
	MaxTags          = 30
	TrendingHashtags = 5
)

const systemPrompt = "You craft succinct, high-converting YouTube Shorts metadata. Always respond with pure JSON."

// Generator produces a JSON object reply for a prompt. *llm.Client satisfies it.
type Generator interface {
	JSONChat(ctx context.Context, prompt string, systemPrompt string) (string, error)
}

// KeywordSource supplies trending keywords. It never fails; an unavailable
// source returns an empty list.
type KeywordSource interface {
	Keywords(ctx context.Context) []string
}

// Resolver turns an asset key and optional sidecar text into a metadata
// snapshot. Generator and trending source are both optional.
type Resolver struct {
	generator        Generator
	trending         KeywordSource
	fallbackHashtags []string
}

func NewResolver(generator Generator, trending KeywordSource, fallbackHashtags []string) *Resolver {
	return &Resolver{
		generator:        generator,
		trending:         trending,
		fallbackHashtags: fallbackHashtags,
	}
}

// Resolve never fails. A sidecar with a title wins, then the generator,
// then the file name.
func (r *Resolver) Resolve(ctx context.Context, key string, sidecar string) jobs.Metadata {
	base := parseSidecar(sidecar)
	source := jobs.MetadataFromSidecar
	if base.Title == "" {
		base, source = r.generate(ctx, key)
	}

	fallback := fromFilename(key, r.fallbackHashtags)
	if base.Description == "" {
		base.Description = fallback.Description
	}

	var keywords []string
	if r.trending != nil {
		keywords = r.trending.Keywords(ctx)
	}

	return jobs.Metadata{
		Title:       base.Title,
		Description: base.Description,
		Hashtags:    MergeHashtags(base.Hashtags, r.fallbackHashtags, keywords),
		Tags:        MergeTags(base.Tags, keywords),
		Language:    resolveLanguage(base.Language, base.Title+". "+base.Description),
		Source:      source,
	}
}

func (r *Resolver) generate(ctx context.Context, key string) (fields, jobs.MetadataSource) {
	if r.generator == nil {
		return fromFilename(key, r.fallbackHashtags), jobs.MetadataFromFilename
	}

	prompt := fmt.Sprintf("You are helping craft metadata for a YouTube Short. The file name is %q and it is a vertical, under-60-second short. "+
		"Reply with a JSON object containing keys: title, description, hashtags (array of #tags), tags (array of keywords). "+
		"Title <= 70 chars; description two sentences with hook plus CTA; hashtags 6-10 items; tags 6-12 items without #.", key)

	reply, err := r.generator.JSONChat(ctx, prompt, systemPrompt)
	if err != nil {
		log.Warn("Metadata generation failed for %s, using file name: %v", key, err)
		return fromFilename(key, r.fallbackHashtags), jobs.MetadataFromFilename
	}

	var generated fields
	if err := json.Unmarshal([]byte(stripFence(reply)), &generated); err != nil || strings.TrimSpace(generated.Title) == "" {
		log.Warn("Unusable generated metadata for %s, using file name", key)
		return fromFilename(key, r.fallbackHashtags), jobs.MetadataFromFilename
	}
	generated.Title = strings.TrimSpace(generated.Title)
	return generated, jobs.MetadataFromAI
}

// stripFence removes a surrounding markdown code fence some models add even
// in JSON mode.
func stripFence(reply string) string {
	reply = strings.TrimSpace(reply)
	if !strings.HasPrefix(reply, "```") {
		return reply
	}
	reply = strings.TrimPrefix(reply, "```json")
	reply = strings.TrimPrefix(reply, "```")
	return strings.TrimSpace(strings.TrimSuffix(reply, "```"))
}

// MergeHashtags combines own hashtags, fallback hashtags and the first few
// trending keywords into a deduplicated "#tag" list of at most MaxHashtags.
func MergeHashtags(own, fallback, trending []string) []string {
	ret := make([]string, 0, MaxHashtags)
	seen := make(map[string]struct{})
	add := func(raw string) {
		word := normalizeWord(raw)
		if word == "" || len(ret) == MaxHashtags {
			return
		}
		lowered := strings.ToLower(word)
		if _, ok := seen[lowered]; ok {
			return
		}
		seen[lowered] = struct{}{}
		ret = append(ret, "#"+word)
	}

	for _, tag := range own {
		add(tag)
	}
	for _, tag := range fallback {
		add(tag)
	}
	for i, keyword := range trending {
		if i == TrendingHashtags {
			break
		}
		add(keyword)
	}
	return ret
}

// MergeTags combines own tags with every trending keyword, without '#',
// deduplicated and capped at MaxTags.
func MergeTags(own, trending []string) []string {
	ret := make([]string, 0)
	seen := make(map[string]struct{})
	for _, list := range [][]string{own, trending} {
		for _, raw := range list {
			tag := strings.TrimSpace(strings.ReplaceAll(raw, "#", ""))
			if tag == "" || len(ret) == MaxTags {
				continue
			}
			lowered := strings.ToLower(tag)
			if _, ok := seen[lowered]; ok {
				continue
			}
			seen[lowered] = struct{}{}
			ret = append(ret, tag)
		}
	}
	return ret
}

// normalizeWord strips '#' and whitespace so "# Shorts" and "#shorts" compare
// equal after lowering.
func normalizeWord(raw string) string {
	word := strings.ReplaceAll(raw, "#", "")
	return strings.Join(strings.Fields(word), "")
}

// resolveLanguage keeps a declared language when it parses as a BCP 47 tag,
// otherwise detects one from the text when the detection is reliable.
func resolveLanguage(declared, text string) string {
	if declared = strings.TrimSpace(declared); declared != "" {
		if tag, err := language.Parse(declared); err == nil {
			return tag.String()
		}
	}

	info := whatlanggo.Detect(text)
	if !info.IsReliable() {
		return ""
	}
	code := info.Lang.Iso6391()
	if code == "" {
		return ""
	}
	tag, err := language.Parse(code)
	if err != nil {
		return ""
	}
	return tag.String()
}
