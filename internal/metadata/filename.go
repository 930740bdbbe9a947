package metadata

import (
	"path"
	"regexp"
	"strings"

	"golang.org/x/text/cases"
	"golang.org/x/text/language"
)

const untitled = "Untitled Short"

var (
	separators = regexp.MustCompile(`[_-]+`)
	digits     = regexp.MustCompile(`\d+`)
	spaces     = regexp.MustCompile(`\s+`)
)

// TitleFromKey derives a readable title from an asset key:
// "clips/my_cool-clip_01.mp4" becomes "My Cool Clip". A Caser keeps state
// between calls, so each call builds its own.
func TitleFromKey(key string) string {
	name := path.Base(key)
	name = strings.TrimSuffix(name, path.Ext(name))
	name = separators.ReplaceAllString(name, " ")
	name = digits.ReplaceAllString(name, "")
	name = strings.TrimSpace(spaces.ReplaceAllString(name, " "))
	if name == "" {
		return untitled
	}
	return cases.Title(language.Und, cases.NoLower).String(name)
}

func fromFilename(key string, fallbackHashtags []string) fields {
	title := TitleFromKey(key)
	return fields{
		Title:       title,
		Description: "Another quick hit from our channel. " + title + ".",
		Hashtags:    append([]string(nil), fallbackHashtags...),
	}
}
