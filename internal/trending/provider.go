package trending

import (
	"context"
	"fmt"
	"regexp"
	"slices"
	"strings"
	"time"

	"github.com/MimeLyc/shorts-publisher/pkg/log"
	"golang.org/x/sync/singleflight"
	"google.golang.org/api/option"
	"google.golang.org/api/youtube/v3"
)

const (
	popularVideos  = 20
	maxKeywords    = 20
	maxTagLength   = 40
	wordsPerTitle  = 3
	minTitleLength = 4
)

var nonWord = regexp.MustCompile(`\W+`)

// Provider returns keywords from the most popular videos in a region.
// A provider without a YouTube client always returns an empty list.
type Provider struct {
	videos *youtube.VideosService
	region string
	cache  Cache
	ttl    time.Duration
	group  singleflight.Group
}

// NewProvider builds a provider using an API key. An empty key yields a
// provider that is permanently unavailable.
func NewProvider(ctx context.Context, apiKey, region string, cache Cache, ttl time.Duration, opts ...option.ClientOption) (*Provider, error) {
	p := &Provider{region: region, cache: cache, ttl: ttl}
	if apiKey == "" {
		log.Info("YOUTUBE_API_KEY not set, trending keywords disabled")
		return p, nil
	}

	opts = append([]option.ClientOption{option.WithAPIKey(apiKey)}, opts...)
	svc, err := youtube.NewService(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("create youtube data client: %w", err)
	}
	p.videos = svc.Videos
	return p, nil
}

// Keywords never fails. Source and cache errors degrade to an empty or
// uncached result. Concurrent callers on a cold cache share one fetch.
func (p *Provider) Keywords(ctx context.Context) []string {
	if p == nil || p.videos == nil {
		return []string{}
	}

	if cached, ok := p.cached(ctx); ok {
		return cached
	}

	v, _, _ := p.group.Do(CacheKey, func() (any, error) {
		if cached, ok := p.cached(ctx); ok {
			return cached, nil
		}
		return p.fetch(ctx), nil
	})
	return slices.Clone(v.([]string))
}

func (p *Provider) cached(ctx context.Context) ([]string, bool) {
	if p.cache == nil {
		return nil, false
	}
	cached, ok, err := p.cache.Get(ctx, CacheKey)
	if err != nil {
		log.Warn("Trending cache read failed: %v", err)
		return nil, false
	}
	return cached, ok
}

func (p *Provider) fetch(ctx context.Context) []string {
	resp, err := p.videos.List([]string{"snippet"}).
		Chart("mostPopular").
		RegionCode(p.region).
		MaxResults(popularVideos).
		Context(ctx).
		Do()
	if err != nil {
		log.Warn("Failed to fetch trending videos: %v", err)
		return []string{}
	}

	keywords := ExtractKeywords(resp.Items)
	if p.cache != nil {
		if err := p.cache.Set(ctx, CacheKey, keywords, p.ttl); err != nil {
			log.Warn("Trending cache write failed: %v", err)
		}
	}
	log.Debug("Fetched %d trending keywords for %s", len(keywords), p.region)
	return keywords
}

// ExtractKeywords collects lowercased tags and the first few long title words
// in first-seen order.
func ExtractKeywords(videos []*youtube.Video) []string {
	seen := make(map[string]struct{})
	ret := make([]string, 0, maxKeywords)
	add := func(word string) {
		if _, ok := seen[word]; ok {
			return
		}
		seen[word] = struct{}{}
		ret = append(ret, word)
	}

	for _, video := range videos {
		if video == nil || video.Snippet == nil {
			continue
		}
		for _, tag := range video.Snippet.Tags {
			if len([]rune(tag)) <= maxTagLength {
				add(strings.ToLower(tag))
			}
		}

		taken := 0
		for _, word := range nonWord.Split(video.Snippet.Title, -1) {
			if taken == wordsPerTitle {
				break
			}
			if len(word) < minTitleLength {
				continue
			}
			add(strings.ToLower(word))
			taken++
		}
	}

	if len(ret) > maxKeywords {
		ret = ret[:maxKeywords]
	}
	return ret
}
