package metadata

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"

	"github.com/MimeLyc/shorts-publisher/internal/jobs"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type stubGenerator struct {
	reply  string
	err    error
	calls  int
	prompt string
}

func (g *stubGenerator) JSONChat(_ context.Context, prompt string, _ string) (string, error) {
	g.calls++
	g.prompt = prompt
	return g.reply, g.err
}

type staticKeywords []string

func (k staticKeywords) Keywords(context.Context) []string {
	return k
}

var fallbackTags = []string{"#Shorts", "#Trending", "#Viral"}

func TestResolve_JSONSidecarIsAuthoritative(t *testing.T) {
	gen := &stubGenerator{reply: `{"title":"ignored"}`}
	r := NewResolver(gen, staticKeywords{"cats"}, fallbackTags)

	got := r.Resolve(context.Background(), "clips/a.mp4",
		`{"title":"My Title","description":"Desc","hashtags":["fun","#shorts"],"tags":"one, two","language":"en-us"}`)

	assert.Equal(t, 0, gen.calls)
	assert.Equal(t, jobs.MetadataFromSidecar, got.Source)
	assert.Equal(t, "My Title", got.Title)
	assert.Equal(t, "Desc", got.Description)
	assert.Equal(t, []string{"#fun", "#shorts", "#Trending", "#Viral", "#cats"}, got.Hashtags)
	assert.Equal(t, []string{"one", "two", "cats"}, got.Tags)
	assert.Equal(t, "en-US", got.Language)
}

func TestResolve_KeyValueSidecar(t *testing.T) {
	r := NewResolver(nil, nil, nil)

	got := r.Resolve(context.Background(), "clips/a.mp4",
		"Title: Sunset: Part Two\r\ndescription: golden hour\nhashtags: beach, sun\nunknown: x\n")

	assert.Equal(t, jobs.MetadataFromSidecar, got.Source)
	assert.Equal(t, "Sunset: Part Two", got.Title)
	assert.Equal(t, "golden hour", got.Description)
	assert.Equal(t, []string{"#beach", "#sun"}, got.Hashtags)
	assert.Empty(t, got.Tags)
}

func TestResolve_SidecarWithoutTitleUsesGenerator(t *testing.T) {
	gen := &stubGenerator{reply: "```json\n{\"title\":\"Generated\",\"hashtags\":[\"#ai\"],\"tags\":[\"gen\"]}\n```"}
	r := NewResolver(gen, nil, fallbackTags)

	got := r.Resolve(context.Background(), "clips/my_clip.mp4", "description: only a description")

	assert.Equal(t, 1, gen.calls)
	assert.Contains(t, gen.prompt, "clips/my_clip.mp4")
	assert.Equal(t, jobs.MetadataFromAI, got.Source)
	assert.Equal(t, "Generated", got.Title)
	assert.Equal(t, "Another quick hit from our channel. My Clip.", got.Description)
	assert.Equal(t, []string{"#ai", "#Shorts", "#Trending", "#Viral"}, got.Hashtags)
	assert.Equal(t, []string{"gen"}, got.Tags)
}

func TestResolve_GeneratorFailureFallsBackToFilename(t *testing.T) {
	for name, gen := range map[string]*stubGenerator{
		"error":    {err: errors.New("unavailable")},
		"not json": {reply: "sure! here you go"},
		"no title": {reply: `{"description":"x"}`},
	} {
		t.Run(name, func(t *testing.T) {
			r := NewResolver(gen, nil, fallbackTags)
			got := r.Resolve(context.Background(), "uploads/2024-06-01_beach-day_final.mp4", "")

			assert.Equal(t, jobs.MetadataFromFilename, got.Source)
			assert.Equal(t, "Beach Day Final", got.Title)
			assert.Equal(t, []string{"#Shorts", "#Trending", "#Viral"}, got.Hashtags)
		})
	}
}

func TestResolve_WithoutGeneratorIsDeterministic(t *testing.T) {
	r := NewResolver(nil, staticKeywords{"a", "b"}, fallbackTags)
	first := r.Resolve(context.Background(), "x/clip_7.mov", "")
	second := r.Resolve(context.Background(), "x/clip_7.mov", "")
	require.Equal(t, first, second)
	assert.Equal(t, "Clip", first.Title)
}

func TestResolve_ConcurrentCallsKeepTitles(t *testing.T) {
	r := NewResolver(nil, staticKeywords{"cats"}, fallbackTags)

	var wg sync.WaitGroup
	titles := make([][]string, 8)
	for g := range titles {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := 0; i < 500; i++ {
				got := r.Resolve(context.Background(), fmt.Sprintf("clips/alpha_beta-gamma%d.mp4", i), "")
				titles[g] = append(titles[g], got.Title)
			}
		}()
	}
	wg.Wait()

	for _, list := range titles {
		require.Len(t, list, 500)
		for _, title := range list {
			assert.Equal(t, "Alpha Beta Gamma", title)
		}
	}
}

func TestTitleFromKey(t *testing.T) {
	tests := []struct {
		key  string
		want string
	}{
		{"my_cool-clip_01.mp4", "My Cool Clip"},
		{"dir/sub/hello__world.mov", "Hello World"},
		{"12345.mp4", untitled},
		{"---.mp4", untitled},
		{"iPhone_tricks.mp4", "IPhone Tricks"},
	}
	for _, tt := range tests {
		t.Run(tt.key, func(t *testing.T) {
			assert.Equal(t, tt.want, TitleFromKey(tt.key))
		})
	}
}

func TestMergeHashtagsCapsAndDedups(t *testing.T) {
	own := make([]string, 0, 20)
	for i := 0; i < 20; i++ {
		own = append(own, string(rune('a'+i)))
	}
	got := MergeHashtags(own, []string{"#A"}, []string{"trend"})
	assert.Len(t, got, MaxHashtags)
	assert.Equal(t, "#a", got[0])

	got = MergeHashtags([]string{"#Shorts", "shorts", "# two words"}, nil, []string{"t1", "t2", "t3", "t4", "t5", "t6"})
	assert.Equal(t, []string{"#Shorts", "#twowords", "#t1", "#t2", "#t3", "#t4", "#t5"}, got)
}

func TestMergeTagsCaps(t *testing.T) {
	own := make([]string, 0, 40)
	for i := 0; i < 40; i++ {
		own = append(own, "tag"+string(rune('A'+i)))
	}
	got := MergeTags(own, []string{"#trend"})
	assert.Len(t, got, MaxTags)
	assert.NotContains(t, got, "trend")

	assert.Equal(t, []string{"x", "trend"}, MergeTags([]string{"x", "X", ""}, []string{"#trend"}))
}

func TestResolveLanguage(t *testing.T) {
	assert.Equal(t, "fr", resolveLanguage("fr", ""))
	assert.Equal(t, "pt-BR", resolveLanguage(" pt-br ", ""))
	assert.Equal(t, "", resolveLanguage("not a language!", ""))
	assert.Equal(t, "", resolveLanguage("", ""))
}
