// Package excludes provides a library of named exclusion presets for Plex
// data directory backups. Every pattern is a directory or file basename.
package excludes

import (
	"errors"
	"fmt"
	"strings"
)

// ErrUnknownPreset is returned by Resolve for names not in the Library.
var ErrUnknownPreset = errors.New("unknown exclude preset")

// Category represents a category of exclude presets.
type Category string

const (
	CategoryTransient Category = "transient"
	CategoryCache     Category = "cache"
	CategoryMedia     Category = "media"
)

// BuiltInPattern represents a pre-defined exclude preset.
type BuiltInPattern struct {
	Name        string   `json:"name"`
	Description string   `json:"description"`
	Patterns    []string `json:"patterns"`
	Category    Category `json:"category"`
}

// Library contains all built-in exclude presets.
var Library = []BuiltInPattern{
	{
		Name:        "plex-transient",
		Description: "Logs, crash dumps, diagnostics and downloaded updates",
		Category:    CategoryTransient,
		Patterns: []string{
			"Diagnostics",
			"Crash Reports",
			"Updates",
			"Logs",
		},
	},
	{
		Name:        "plex-cache",
		Description: "Transcoder and metadata agent caches, rebuilt on demand",
		Category:    CategoryCache,
		Patterns: []string{
			"Cache",
		},
	},
	{
		Name:        "plex-codecs",
		Description: "Downloaded codec bundles, fetched again on first playback",
		Category:    CategoryCache,
		Patterns: []string{
			"Codecs",
		},
	},
	{
		Name:        "plex-media-analysis",
		Description: "Generated thumbnails, artwork and media analysis; regenerating takes hours",
		Category:    CategoryMedia,
		Patterns: []string{
			"Media",
			"Metadata",
		},
	},
}

// CategoryInfo provides metadata about preset categories.
type CategoryInfo struct {
	Name        string `json:"name"`
	Description string `json:"description"`
}

// Categories returns metadata for all preset categories.
var Categories = map[Category]CategoryInfo{
	CategoryTransient: {
		Name:        "Transient",
		Description: "Files Plex recreates on its own",
	},
	CategoryCache: {
		Name:        "Caches",
		Description: "Downloadable or rebuildable caches",
	},
	CategoryMedia: {
		Name:        "Media Analysis",
		Description: "Large generated media assets",
	},
}

// GetAllCategories returns a list of all available categories.
func GetAllCategories() []Category {
	return []Category{
		CategoryTransient,
		CategoryCache,
		CategoryMedia,
	}
}

// GetPatternsByCategory returns all built-in presets for a given category.
func GetPatternsByCategory(category Category) []BuiltInPattern {
	var patterns []BuiltInPattern
	for _, p := range Library {
		if p.Category == category {
			patterns = append(patterns, p)
		}
	}
	return patterns
}

// Lookup returns the preset with the given name, ignoring case.
func Lookup(name string) (BuiltInPattern, bool) {
	for _, p := range Library {
		if strings.EqualFold(p.Name, strings.TrimSpace(name)) {
			return p, true
		}
	}
	return BuiltInPattern{}, false
}

// Resolve returns the combined patterns of the named presets.
func Resolve(names []string) ([]string, error) {
	presets := make([]BuiltInPattern, 0, len(names))
	for _, name := range names {
		p, ok := Lookup(name)
		if !ok {
			return nil, fmt.Errorf("%w: %q", ErrUnknownPreset, name)
		}
		presets = append(presets, p)
	}
	return FlattenPatterns(presets), nil
}

// FlattenPatterns takes a list of BuiltInPatterns and returns all patterns as a single slice.
func FlattenPatterns(patterns []BuiltInPattern) []string {
	var result []string
	seen := make(map[string]bool)
	for _, p := range patterns {
		for _, pattern := range p.Patterns {
			if !seen[pattern] {
				seen[pattern] = true
				result = append(result, pattern)
			}
		}
	}
	return result
}
