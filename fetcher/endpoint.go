package fetcher

import (
	"net/url"
	"strings"
)

const (
	// DefaultBaseURL is the photo feed host.
	DefaultBaseURL = "http://api.flickr.com"
	feedPath       = "/services/feeds/photos_public.gne"
	feedFormat     = "rss_200"
)

// SearchURL substitutes the form-encoded term into the public photos feed
// endpoint under baseURL. Spaces become '+'.
func SearchURL(baseURL, term string) string {
	return strings.TrimRight(baseURL, "/") + feedPath +
		"?tags=" + url.QueryEscape(term) +
		"&format=" + feedFormat
}
