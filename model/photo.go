package model

import (
	"time"
)

// PhotoResult is one photo matched by a search. Only the fetcher creates
// them and they are never modified afterwards.
type PhotoResult struct {
	Title       string `json:"title"`
	Description string `json:"description"`
	URL         string `json:"url"`
}

// SearchResult is the outcome of a single search as reported to callers
// outside the pipeline.
type SearchResult struct {
	Term      string        `json:"term"`
	FetchedAt time.Time     `json:"fetchedAt"`
	Count     int           `json:"count"`
	Photos    []PhotoResult `json:"photos"`
}

// NewSearchResult builds a SearchResult, normalising a nil photo list to empty.
func NewSearchResult(term string, photos []PhotoResult) *SearchResult {
	if photos == nil {
		photos = []PhotoResult{}
	}
	return &SearchResult{
		Term:      term,
		FetchedAt: time.Now().UTC(),
		Count:     len(photos),
		Photos:    photos,
	}
}
