// Package thumbnail downloads photo thumbnails, either into memory or into a
// directory on disk.
package thumbnail

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"os"
	"path"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/gocolly/colly"
	"github.com/sirupsen/logrus"

	"github.com/richardwooding/photo-search/model"
	"github.com/richardwooding/photo-search/version"
)

const (
	component       = "thumbnail_fetcher"
	indexKey        = "photo_index"
	defaultFileName = "thumbnail.jpg"
)

// Config configures a Downloader. Zero values are replaced by defaults.
type Config struct {
	Timeout         time.Duration `validate:"gte=0"`
	MaxBodySize     int           `validate:"gte=0"`
	Parallelism     int           `validate:"gte=0"`
	AllowPrivateIPs bool
	// Transport carries thumbnail requests, for example a rate-limited one.
	Transport http.RoundTripper
	Logger    *logrus.Entry
}

// Image is a downloaded thumbnail.
type Image struct {
	URL      string
	MIMEType string
	Data     []byte
}

// Saved describes a thumbnail written to disk by SaveAll.
type Saved struct {
	Index int
	Photo model.PhotoResult
	Path  string
	Size  int
}

// Downloader fetches thumbnail images.
type Downloader struct {
	timeout         time.Duration
	maxBodySize     int
	parallelism     int
	allowPrivateIPs bool
	transport       http.RoundTripper
	logger          *logrus.Entry
}

// NewDownloader creates a Downloader.
func NewDownloader(config Config) (*Downloader, error) {
	if config.Timeout == 0 {
		config.Timeout = 30 * time.Second
	}
	if config.MaxBodySize == 0 {
		config.MaxBodySize = 5 << 20
	}
	if config.Parallelism == 0 {
		config.Parallelism = 4
	}
	if config.Transport == nil {
		config.Transport = http.DefaultTransport
	}
	if config.Logger == nil {
		config.Logger = model.DiscardLogger()
	}
	if err := model.ValidateStruct(config); err != nil {
		return nil, err
	}
	return &Downloader{
		timeout:         config.Timeout,
		maxBodySize:     config.MaxBodySize,
		parallelism:     config.Parallelism,
		allowPrivateIPs: config.AllowPrivateIPs,
		transport:       config.Transport,
		logger:          config.Logger.WithField("component", component),
	}, nil
}

// contextTransport binds every request to ctx so cancellation reaches
// requests the collector has already started.
type contextTransport struct {
	ctx  context.Context
	next http.RoundTripper
}

func (t *contextTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	return t.next.RoundTrip(req.WithContext(t.ctx))
}

func (d *Downloader) collector(ctx context.Context, async bool) (*colly.Collector, error) {
	c := colly.NewCollector(
		colly.UserAgent(version.UserAgent()),
		colly.MaxBodySize(d.maxBodySize),
		colly.Async(async),
		colly.AllowURLRevisit(),
	)
	c.SetRequestTimeout(d.timeout)
	c.WithTransport(&contextTransport{ctx: ctx, next: d.transport})
	if async {
		if err := c.Limit(&colly.LimitRule{DomainGlob: "*", Parallelism: d.parallelism}); err != nil {
			return nil, model.NewFeedErrorWithCause(model.ErrorTypeConfiguration, "invalid download parallelism", err).
				WithComponent(component)
		}
	}
	return c, nil
}

// Fetch downloads a single thumbnail into memory.
func (d *Downloader) Fetch(ctx context.Context, imageURL string) (*Image, error) {
	if err := model.ValidateRemoteURL(imageURL, d.allowPrivateIPs); err != nil {
		return nil, model.CreateValidationError(err, imageURL).WithComponent(component)
	}

	c, err := d.collector(ctx, false)
	if err != nil {
		return nil, err
	}

	var image *Image
	var failure error
	c.OnResponse(func(r *colly.Response) {
		image, failure = newImage(imageURL, r)
	})
	c.OnError(func(r *colly.Response, err error) {
		failure = classify(ctx, imageURL, r, err)
	})

	if err := c.Visit(imageURL); err != nil && failure == nil {
		failure = classify(ctx, imageURL, nil, err)
	}
	if failure == nil && image == nil {
		failure = classify(ctx, imageURL, nil, errors.New("empty response"))
	}
	if failure != nil {
		model.LogFeedError(d.logger, logrus.DebugLevel, failure)
		return nil, failure
	}

	d.logger.WithFields(logrus.Fields{
		"url":   imageURL,
		"mime":  image.MIMEType,
		"bytes": len(image.Data),
	}).Debug("thumbnail fetched")
	return image, nil
}

// SaveAll downloads the thumbnail of every photo into dir, naming each file
// after its 1-based position and the basename of its URL. Photos that fail
// are skipped; their errors are joined into the returned error. Saved
// entries are ordered by position.
func (d *Downloader) SaveAll(ctx context.Context, photos []model.PhotoResult, dir string) ([]Saved, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, model.NewFeedErrorWithCause(model.ErrorTypeInternal, "cannot create download directory", err).
			WithOperation("save_thumbnails").
			WithComponent(component)
	}

	c, err := d.collector(ctx, true)
	if err != nil {
		return nil, err
	}

	var mu sync.Mutex
	saved := make([]Saved, 0, len(photos))
	failures := map[int]error{}
	fail := func(index int, err error) {
		mu.Lock()
		defer mu.Unlock()
		failures[index] = fmt.Errorf("photo %d: %w", index+1, err)
	}

	c.OnResponse(func(r *colly.Response) {
		index, _ := strconv.Atoi(r.Ctx.Get(indexKey))
		photo := photos[index]
		if _, err := newImage(photo.URL, r); err != nil {
			fail(index, err)
			return
		}
		target := filepath.Join(dir, FileName(index, photo.URL))
		if err := r.Save(target); err != nil {
			fail(index, model.NewFeedErrorWithCause(model.ErrorTypeInternal, "cannot write thumbnail", err).
				WithURL(photo.URL).
				WithComponent(component))
			return
		}
		mu.Lock()
		saved = append(saved, Saved{Index: index, Photo: photo, Path: target, Size: len(r.Body)})
		mu.Unlock()
	})
	c.OnError(func(r *colly.Response, err error) {
		index, _ := strconv.Atoi(r.Ctx.Get(indexKey))
		fail(index, classify(ctx, photos[index].URL, r, err))
	})

	for i, photo := range photos {
		if err := model.ValidateRemoteURL(photo.URL, d.allowPrivateIPs); err != nil {
			fail(i, model.CreateValidationError(err, photo.URL).WithComponent(component))
			continue
		}
		reqCtx := colly.NewContext()
		reqCtx.Put(indexKey, strconv.Itoa(i))
		if err := c.Request(http.MethodGet, photo.URL, nil, reqCtx, nil); err != nil {
			fail(i, classify(ctx, photo.URL, nil, err))
		}
	}
	c.Wait()

	sort.Slice(saved, func(i, j int) bool { return saved[i].Index < saved[j].Index })

	indexes := make([]int, 0, len(failures))
	for i := range failures {
		indexes = append(indexes, i)
	}
	sort.Ints(indexes)
	errs := make([]error, 0, len(indexes))
	for _, i := range indexes {
		errs = append(errs, failures[i])
	}

	d.logger.WithFields(logrus.Fields{
		"dir":    dir,
		"saved":  len(saved),
		"failed": len(errs),
	}).Info("thumbnails saved")
	return saved, errors.Join(errs...)
}

// FileName is the file name SaveAll uses for the photo at index.
func FileName(index int, imageURL string) string {
	base := defaultFileName
	if u, err := url.Parse(imageURL); err == nil {
		if b := path.Base(u.Path); b != "." && b != "/" && b != "" {
			base = b
		}
	}
	return fmt.Sprintf("%03d-%s", index+1, base)
}

func newImage(imageURL string, r *colly.Response) (*Image, error) {
	mime := ""
	if r.Headers != nil {
		mime = r.Headers.Get("Content-Type")
	}
	if mime == "" || mime == "application/octet-stream" {
		mime = http.DetectContentType(r.Body)
	}
	if i := strings.IndexByte(mime, ';'); i >= 0 {
		mime = strings.TrimSpace(mime[:i])
	}
	if !strings.HasPrefix(mime, "image/") {
		return nil, model.NewFeedError(model.ErrorTypeParsing, fmt.Sprintf("response is %s, not an image", mime)).
			WithURL(imageURL).
			WithOperation("fetch_thumbnail").
			WithComponent(component)
	}
	return &Image{URL: imageURL, MIMEType: mime, Data: r.Body}, nil
}

// classify turns a collector failure into a FeedError.
func classify(ctx context.Context, imageURL string, r *colly.Response, err error) error {
	if ctxErr := ctx.Err(); ctxErr != nil {
		return model.CreateNetworkError(ctxErr, imageURL).
			WithOperation("fetch_thumbnail").
			WithComponent(component)
	}
	if r != nil && r.StatusCode >= http.StatusMultipleChoices {
		resp := &http.Response{StatusCode: r.StatusCode, Status: http.StatusText(r.StatusCode)}
		if r.Headers != nil {
			resp.Header = *r.Headers
		}
		return model.CreateHTTPError(resp, imageURL).
			WithOperation("fetch_thumbnail").
			WithComponent(component)
	}
	var fe *model.FeedError
	if errors.As(err, &fe) {
		return fe
	}
	return model.CreateNetworkError(err, imageURL).
		WithOperation("fetch_thumbnail").
		WithComponent(component)
}
