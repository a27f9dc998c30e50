package model

import "strings"

// Game is a category resolved from the upstream catalogue.
type Game struct {
	ID        string `json:"id"`
	Name      string `json:"name"`
	BoxArtURL string `json:"box_art_url"`
}

// NormalizeGameName returns the lookup key used for memoization and caching.
func NormalizeGameName(name string) string {
	return strings.ToLower(strings.TrimSpace(name))
}
