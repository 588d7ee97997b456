package mcpserver

import (
	"context"

	"github.com/richardwooding/photo-search/model"
	"github.com/richardwooding/photo-search/thumbnail"
)

// PhotoSearcher looks up photos for a search term.
type PhotoSearcher interface {
	Fetch(ctx context.Context, term string) ([]model.PhotoResult, error)
}

// ThumbnailFetcher downloads a single thumbnail image.
type ThumbnailFetcher interface {
	Fetch(ctx context.Context, url string) (*thumbnail.Image, error)
}
