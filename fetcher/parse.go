package fetcher

import (
	"bytes"
	"errors"
	"html"
	"regexp"

	"github.com/antchfx/xmlquery"
	"github.com/mmcdole/gofeed"

	"github.com/richardwooding/photo-search/model"
)

// MediaNamespace is the Media RSS namespace. Elements are matched by this
// URI, whatever prefix the document binds it to.
const MediaNamespace = "http://search.yahoo.com/mrss/"

var (
	tagPattern = regexp.MustCompile(`<[^>]+>`)

	// xmlquery reports a document that ended without any element this way.
	noRootElement = "xmlquery: invalid XML document"

	errThumbnailWithoutURL = errors.New("media:thumbnail element has no url attribute")
)

// ParseFeed turns a feed document into photo results. Every media title,
// description and thumbnail below the root is collected in document order,
// and the three lists are zipped positionally, so trailing unmatched nodes
// are dropped. The root may be any element. A document without a root
// element yields no results.
func ParseFeed(body []byte, feedURL string) ([]model.PhotoResult, error) {
	if len(bytes.TrimSpace(body)) == 0 {
		return []model.PhotoResult{}, nil
	}

	doc, err := xmlquery.Parse(bytes.NewReader(body))
	if err != nil {
		if err.Error() == noRootElement {
			return []model.PhotoResult{}, nil
		}
		return nil, parsingError(err, feedURL, body)
	}

	var nodes mediaNodes
	if err := nodes.walk(doc); err != nil {
		return nil, parsingError(err, feedURL, body)
	}
	return nodes.zip(), nil
}

// CleanDescription HTML-decodes s and then removes anything that looks like a
// tag. It is a regex, not an HTML parser.
func CleanDescription(s string) string {
	return tagPattern.ReplaceAllString(html.UnescapeString(s), "")
}

// DetectFormat names the syndication format of body: RSS, Atom, JSON, or
// XML for anything else.
func DetectFormat(body []byte) string {
	switch gofeed.DetectFeedType(bytes.NewReader(body)) {
	case gofeed.FeedTypeRSS:
		return "RSS"
	case gofeed.FeedTypeAtom:
		return "Atom"
	case gofeed.FeedTypeJSON:
		return "JSON"
	default:
		return "XML"
	}
}

func parsingError(err error, feedURL string, body []byte) *model.FeedError {
	fe := model.CreateParsingError(err, feedURL, string(body))
	if fe.ParseContext == nil {
		fe.WithParseContext(&model.ParseContext{})
	}
	fe.ParseContext.FeedFormat = DetectFormat(body)
	return fe
}

type mediaNodes struct {
	titles       []string
	descriptions []string
	thumbnails   []string
}

// walk visits the element descendants of n in document order, parents
// before their children.
func (m *mediaNodes) walk(n *xmlquery.Node) error {
	for c := n.FirstChild; c != nil; c = c.NextSibling {
		if c.Type != xmlquery.ElementNode {
			continue
		}
		if c.NamespaceURI == MediaNamespace {
			switch c.Data {
			case "title":
				m.titles = append(m.titles, c.InnerText())
			case "description":
				m.descriptions = append(m.descriptions, CleanDescription(c.InnerText()))
			case "thumbnail":
				u, ok := thumbnailURL(c)
				if !ok {
					return errThumbnailWithoutURL
				}
				m.thumbnails = append(m.thumbnails, u)
			}
		}
		if err := m.walk(c); err != nil {
			return err
		}
	}
	return nil
}

func thumbnailURL(n *xmlquery.Node) (string, bool) {
	for _, attr := range n.Attr {
		if attr.Name.Local == "url" && attr.NamespaceURI == "" {
			return attr.Value, true
		}
	}
	return "", false
}

func (m *mediaNodes) zip() []model.PhotoResult {
	n := min(len(m.titles), len(m.descriptions), len(m.thumbnails))
	photos := make([]model.PhotoResult, n)
	for i := range n {
		photos[i] = model.PhotoResult{
			Title:       m.titles[i],
			Description: m.descriptions[i],
			URL:         m.thumbnails[i],
		}
	}
	return photos
}
