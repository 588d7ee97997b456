// Package search implements the debounced search pipeline: term writes are
// debounced, normalised and de-duplicated, accepted terms are fetched in the
// background, and every state transition is published to subscribers.
package search

import (
	"context"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/alitto/pond/v2"
	"github.com/sirupsen/logrus"

	"github.com/richardwooding/photo-search/model"
)

// DefaultDebounce is the quiet period after the last term write before a
// search is attempted.
const DefaultDebounce = 800 * time.Millisecond

const component = "search_pipeline"

// Fetcher looks up photos for a normalised term.
type Fetcher interface {
	Fetch(ctx context.Context, term string) ([]model.PhotoResult, error)
}

// Config configures a Pipeline.
type Config struct {
	Fetcher  Fetcher       `validate:"required"`
	Debounce time.Duration `validate:"gte=0"`
	// Workers bounds how many fetches may run at once, including superseded
	// fetches that are still unwinding after cancellation.
	Workers int `validate:"gte=0"`
	Logger  *logrus.Entry

	afterFunc afterFunc
}

type subscriber struct {
	id int
	fn func(model.SearchState)
}

// Pipeline turns a stream of term writes into searches.
//
// State moves idle -> fetching -> succeeded|failed, and back to fetching for
// each accepted term. Every accepted term gets a new generation; accepting a
// term cancels the fetch of the previous one and completions from older
// generations are dropped, so the latest term always wins.
type Pipeline struct {
	fetcher   Fetcher
	debouncer *Debouncer
	pool      pond.Pool
	logger    *logrus.Entry
	ctx       context.Context
	stop      context.CancelFunc

	// emitMu orders each transition with its notification.
	emitMu sync.Mutex

	mu            sync.Mutex
	state         model.SearchState
	lastDebounced string
	hasDebounced  bool
	cancelFetch   context.CancelFunc
	subscribers   []subscriber
	nextID        int
	closed        bool
}

// NewPipeline validates config and starts an idle pipeline.
func NewPipeline(config Config) (*Pipeline, error) {
	if config.Debounce == 0 {
		config.Debounce = DefaultDebounce
	}
	if config.Workers == 0 {
		config.Workers = 4
	}
	if config.Logger == nil {
		config.Logger = model.DiscardLogger()
	}
	if config.afterFunc == nil {
		config.afterFunc = realAfterFunc
	}
	if err := model.ValidateStruct(config); err != nil {
		return nil, err
	}

	ctx, stop := context.WithCancel(context.Background())
	return &Pipeline{
		fetcher:   config.Fetcher,
		debouncer: newDebouncer(config.Debounce, config.afterFunc),
		pool:      pond.NewPool(config.Workers),
		logger:    config.Logger.WithField("component", component),
		ctx:       ctx,
		stop:      stop,
		state: model.SearchState{
			Phase:   model.PhaseIdle,
			Results: []model.PhotoResult{},
		},
	}, nil
}

// SetTerm records a write to the search term and restarts the debounce timer.
// The term is evaluated only once writes stop for the debounce period.
func (p *Pipeline) SetTerm(term string) {
	p.debouncer.Trigger(func() { p.settle(term) })
}

// State returns a snapshot of the current state.
func (p *Pipeline) State() model.SearchState {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.snapshotLocked()
}

// Subscribe registers fn to receive a snapshot after every transition, in
// order. fn runs synchronously on the goroutine making the transition and
// must not call Refresh or Close. The returned function unsubscribes.
func (p *Pipeline) Subscribe(fn func(model.SearchState)) (unsubscribe func()) {
	p.mu.Lock()
	defer p.mu.Unlock()

	p.nextID++
	id := p.nextID
	p.subscribers = append(p.subscribers, subscriber{id: id, fn: fn})

	return func() {
		p.mu.Lock()
		defer p.mu.Unlock()
		p.subscribers = slices.DeleteFunc(p.subscribers, func(s subscriber) bool { return s.id == id })
	}
}

// Refresh fetches the last accepted term again, bypassing duplicate
// suppression. It reports false when there is nothing to refresh.
func (p *Pipeline) Refresh() bool {
	p.emitMu.Lock()
	defer p.emitMu.Unlock()

	p.mu.Lock()
	if p.closed || p.state.Term == "" {
		p.mu.Unlock()
		return false
	}
	snapshot, subs := p.startLocked(p.state.Term)
	p.mu.Unlock()

	notify(subs, snapshot)
	return true
}

// Close stops the debounce timer, cancels the outstanding fetch and waits for
// running fetches to return. Later writes are ignored.
func (p *Pipeline) Close() {
	p.debouncer.Stop()

	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return
	}
	p.closed = true
	if p.cancelFetch != nil {
		p.cancelFetch()
		p.cancelFetch = nil
	}
	p.mu.Unlock()

	p.stop()
	if !p.pool.Stopped() {
		p.pool.StopAndWait()
	}
}

// settle runs when the debounce period elapses for raw.
func (p *Pipeline) settle(raw string) {
	term := strings.TrimSpace(raw)

	p.emitMu.Lock()
	defer p.emitMu.Unlock()

	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return
	}
	duplicate := p.hasDebounced && term == p.lastDebounced
	p.lastDebounced, p.hasDebounced = term, true
	if duplicate || term == "" {
		p.mu.Unlock()
		p.logger.WithFields(logrus.Fields{
			"term":      term,
			"duplicate": duplicate,
		}).Debug("search term suppressed")
		return
	}
	snapshot, subs := p.startLocked(term)
	p.mu.Unlock()

	notify(subs, snapshot)
}

// startLocked supersedes any outstanding fetch and submits a new one.
func (p *Pipeline) startLocked(term string) (model.SearchState, []subscriber) {
	if p.cancelFetch != nil {
		p.cancelFetch()
	}
	ctx, cancel := context.WithCancel(p.ctx)
	p.cancelFetch = cancel

	p.state.Generation++
	p.state.Term = term
	p.state.Phase = model.PhaseFetching
	p.state.Err = nil
	generation := p.state.Generation

	p.logger.WithFields(logrus.Fields{
		"term":       term,
		"generation": generation,
	}).Debug("search accepted")

	p.pool.Submit(func() {
		// superseded while queued
		if err := ctx.Err(); err != nil {
			p.complete(generation, nil, err)
			return
		}
		photos, err := p.fetcher.Fetch(ctx, term)
		p.complete(generation, photos, err)
	})

	return p.snapshotLocked(), slices.Clone(p.subscribers)
}

func (p *Pipeline) complete(generation uint64, photos []model.PhotoResult, err error) {
	p.emitMu.Lock()
	defer p.emitMu.Unlock()

	p.mu.Lock()
	if p.closed || generation != p.state.Generation {
		latest := p.state.Generation
		p.mu.Unlock()
		entry := p.logger.WithFields(logrus.Fields{
			"generation": generation,
			"latest":     latest,
		})
		if err != nil {
			entry = entry.WithError(err)
		}
		entry.Debug("discarding superseded search")
		return
	}

	if p.cancelFetch != nil {
		p.cancelFetch()
		p.cancelFetch = nil
	}

	logger := p.logger.WithFields(logrus.Fields{
		"term":       p.state.Term,
		"generation": generation,
	})
	if err != nil {
		p.state.Phase = model.PhaseFailed
		p.state.Err = err
	} else {
		if photos == nil {
			photos = []model.PhotoResult{}
		}
		p.state.Phase = model.PhaseSucceeded
		p.state.Results = photos
		p.state.Err = nil
	}
	snapshot := p.snapshotLocked()
	subs := slices.Clone(p.subscribers)
	p.mu.Unlock()

	if err != nil {
		model.LogFeedError(logger, logrus.WarnLevel, err)
	} else {
		logger.WithField("photos", len(photos)).Info("search completed")
	}
	notify(subs, snapshot)
}

func (p *Pipeline) snapshotLocked() model.SearchState {
	s := p.state
	s.Results = slices.Clone(p.state.Results)
	return s
}

func notify(subs []subscriber, s model.SearchState) {
	for _, sub := range subs {
		sub.fn(s)
	}
}
