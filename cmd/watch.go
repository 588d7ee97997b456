package cmd

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"os"
	"sync"
	"time"

	"github.com/richardwooding/photo-search/model"
	"github.com/richardwooding/photo-search/search"
)

const settlePoll = 25 * time.Millisecond

// WatchCmd reads search terms line by line from stdin, as if typed into a
// search box, and prints every state change of the search.
type WatchCmd struct {
	Debounce time.Duration `name:"debounce" default:"800ms" help:"Quiet period after the last line before searching."`
	Workers  int           `name:"workers" default:"4" help:"Maximum concurrent feed requests."`

	in  io.Reader
	out io.Writer
}

func (c *WatchCmd) Run(globals *model.Globals, ctx context.Context) error {
	e, err := newEnv(globals)
	if err != nil {
		return err
	}
	defer e.close()

	pipeline, err := search.NewPipeline(search.Config{
		Fetcher:  e.fetcher,
		Debounce: c.Debounce,
		Workers:  c.Workers,
		Logger:   model.ComponentLogger(e.logger, "search"),
	})
	if err != nil {
		return err
	}
	defer pipeline.Close()

	out := stdout(c.out)
	unsubscribe := pipeline.Subscribe(func(s model.SearchState) { renderState(out, s) })
	defer unsubscribe()

	in := c.in
	if in == nil {
		in = os.Stdin
	}
	lines := make(chan string)
	readErr := make(chan error, 1)
	go func() {
		scanner := bufio.NewScanner(in)
		for scanner.Scan() {
			select {
			case lines <- scanner.Text():
			case <-ctx.Done():
				return
			}
		}
		readErr <- scanner.Err()
	}()

	for {
		select {
		case <-ctx.Done():
			return nil
		case line := <-lines:
			pipeline.SetTerm(line)
		case err := <-readErr:
			if err != nil {
				return model.NewFeedErrorWithCause(model.ErrorTypeInternal, "cannot read terms", err).
					WithComponent("watch")
			}
			waitSettled(ctx, pipeline, c.Debounce)
			return nil
		}
	}
}

// waitSettled lets the last pending term fire and its search finish.
func waitSettled(ctx context.Context, p *search.Pipeline, debounce time.Duration) {
	timer := time.NewTimer(debounce + settlePoll)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return
	case <-timer.C:
	}

	ticker := time.NewTicker(settlePoll)
	defer ticker.Stop()
	for p.State().Busy() {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
}

var renderMu sync.Mutex

func renderState(w io.Writer, s model.SearchState) {
	renderMu.Lock()
	defer renderMu.Unlock()

	switch s.Phase {
	case model.PhaseFetching:
		fmt.Fprintf(w, "[busy] searching for %q\n", s.Term)
	case model.PhaseSucceeded:
		printPhotos(w, s.Term, s.Results)
	case model.PhaseFailed:
		fmt.Fprintf(w, "search for %q failed: %v (showing %d previous photos)\n", s.Term, s.Err, len(s.Results))
	}
}
