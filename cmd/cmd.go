// Package cmd implements the photo-search CLI commands.
package cmd

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/sirupsen/logrus"

	"github.com/richardwooding/photo-search/fetcher"
	"github.com/richardwooding/photo-search/model"
	"github.com/richardwooding/photo-search/thumbnail"
)

// ErrNothingSaved is returned by download when no thumbnail could be saved.
var ErrNothingSaved = errors.New("no thumbnails saved")

// env holds what every command builds from the global flags.
type env struct {
	logger  *logrus.Logger
	fetcher *fetcher.Fetcher
}

func newEnv(globals *model.Globals) (*env, error) {
	logger, err := model.NewLogger(model.LogConfig{Level: globals.LogLevel, JSON: globals.JSONLogs})
	if err != nil {
		return nil, err
	}
	f, err := fetcher.NewFetcher(fetcher.Config{
		BaseURL:         globals.BaseURL,
		Timeout:         globals.Timeout,
		ExpireAfter:     globals.ExpireAfter,
		DisableCache:    globals.NoCache,
		AllowPrivateIPs: globals.AllowPrivateIPs,
		Logger:          model.ComponentLogger(logger, "fetcher"),
	})
	if err != nil {
		return nil, err
	}
	return &env{logger: logger, fetcher: f}, nil
}

func (e *env) newDownloader(globals *model.Globals, parallelism int) (*thumbnail.Downloader, error) {
	client := fetcher.NewRateLimitedHTTPClient(fetcher.DefaultRequestsPerSecond, fetcher.DefaultBurstCapacity, globals.Timeout)
	return thumbnail.NewDownloader(thumbnail.Config{
		Timeout:         globals.Timeout,
		Parallelism:     parallelism,
		AllowPrivateIPs: globals.AllowPrivateIPs,
		Transport:       client.Transport,
		Logger:          model.ComponentLogger(e.logger, "thumbnail"),
	})
}

func (e *env) close() {
	e.fetcher.Close()
}

func stdout(w io.Writer) io.Writer {
	if w == nil {
		return os.Stdout
	}
	return w
}

// SearchCmd runs one search and prints the results.
type SearchCmd struct {
	Term string `arg:"" name:"term" help:"Search term."`
	JSON bool   `name:"json" help:"Print the result as JSON."`

	out io.Writer
}

func (c *SearchCmd) Run(globals *model.Globals, ctx context.Context) error {
	term := strings.TrimSpace(c.Term)
	if term == "" {
		return model.CreateEmptyTermError(c.Term)
	}
	e, err := newEnv(globals)
	if err != nil {
		return err
	}
	defer e.close()

	photos, err := e.fetcher.Fetch(ctx, term)
	if err != nil {
		return err
	}

	out := stdout(c.out)
	result := model.NewSearchResult(term, photos)
	if c.JSON {
		enc := json.NewEncoder(out)
		enc.SetIndent("", "  ")
		return enc.Encode(result)
	}
	printPhotos(out, term, result.Photos)
	return nil
}

// DownloadCmd searches and saves every thumbnail into a directory.
type DownloadCmd struct {
	Term        string `arg:"" name:"term" help:"Search term."`
	Dir         string `name:"dir" default:"thumbnails" type:"path" help:"Directory to save thumbnails into."`
	Parallelism int    `name:"parallelism" default:"4" help:"Concurrent thumbnail downloads."`

	out io.Writer
}

func (c *DownloadCmd) Run(globals *model.Globals, ctx context.Context) error {
	term := strings.TrimSpace(c.Term)
	if term == "" {
		return model.CreateEmptyTermError(c.Term)
	}
	e, err := newEnv(globals)
	if err != nil {
		return err
	}
	defer e.close()

	downloader, err := e.newDownloader(globals, c.Parallelism)
	if err != nil {
		return err
	}

	photos, err := e.fetcher.Fetch(ctx, term)
	if err != nil {
		return err
	}

	saved, err := downloader.SaveAll(ctx, photos, c.Dir)
	out := stdout(c.out)
	for _, s := range saved {
		fmt.Fprintf(out, "%s\t%s\n", s.Path, s.Photo.Title)
	}
	fmt.Fprintf(out, "saved %d of %d thumbnails to %s\n", len(saved), len(photos), c.Dir)
	if err != nil {
		e.logger.WithError(err).Warn("some thumbnails could not be saved")
		if len(saved) == 0 {
			return fmt.Errorf("%w: %w", ErrNothingSaved, err)
		}
	}
	return nil
}

func printPhotos(w io.Writer, term string, photos []model.PhotoResult) {
	fmt.Fprintf(w, "%d photos for %q\n", len(photos), term)
	for i, p := range photos {
		fmt.Fprintf(w, "%3d. %s\n     %s\n", i+1, p.Title, p.URL)
		if p.Description != "" {
			fmt.Fprintf(w, "     %s\n", p.Description)
		}
	}
}
