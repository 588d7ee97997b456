package search

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/richardwooding/photo-search/model"
)

const debounce = 800 * time.Millisecond

// fakeFetcher records calls. A term with a gate blocks until the gate is
// closed or, unless ignoreCancel is set, its context is done.
type fakeFetcher struct {
	mu           sync.Mutex
	calls        []string
	results      map[string][]model.PhotoResult
	errs         map[string]error
	gates        map[string]chan struct{}
	ctxErrs      map[string]error
	ignoreCancel bool
	started      chan string
}

func newFakeFetcher() *fakeFetcher {
	return &fakeFetcher{
		results: map[string][]model.PhotoResult{},
		errs:    map[string]error{},
		gates:   map[string]chan struct{}{},
		ctxErrs: map[string]error{},
		started: make(chan string, 16),
	}
}

func (f *fakeFetcher) Fetch(ctx context.Context, term string) ([]model.PhotoResult, error) {
	f.mu.Lock()
	f.calls = append(f.calls, term)
	gate := f.gates[term]
	ignoreCancel := f.ignoreCancel
	f.mu.Unlock()
	f.started <- term

	if gate != nil {
		if ignoreCancel {
			<-gate
		} else {
			select {
			case <-gate:
			case <-ctx.Done():
				f.mu.Lock()
				f.ctxErrs[term] = ctx.Err()
				f.mu.Unlock()
				return nil, ctx.Err()
			}
		}
	}

	f.mu.Lock()
	defer f.mu.Unlock()
	return f.results[term], f.errs[term]
}

func (f *fakeFetcher) Calls() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.calls...)
}

func (f *fakeFetcher) CtxErr(term string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.ctxErrs[term]
}

func (f *fakeFetcher) gate(term string) chan struct{} {
	f.mu.Lock()
	defer f.mu.Unlock()
	g := make(chan struct{})
	f.gates[term] = g
	return g
}

func newTestPipeline(t *testing.T, f Fetcher) (*Pipeline, *fakeClock) {
	t.Helper()
	clock := &fakeClock{}
	p, err := NewPipeline(Config{Fetcher: f, Debounce: debounce, afterFunc: clock.AfterFunc})
	require.NoError(t, err)
	t.Cleanup(p.Close)
	return p, clock
}

// drain waits for every submitted fetch and its completion to finish.
func drain(p *Pipeline) {
	p.pool.StopAndWait()
}

// settle waits until no fetch is outstanding.
func settle(t *testing.T, p *Pipeline) {
	t.Helper()
	require.Eventually(t, func() bool { return !p.State().Busy() }, 2*time.Second, 5*time.Millisecond)
}

func photos(titles ...string) []model.PhotoResult {
	out := make([]model.PhotoResult, 0, len(titles))
	for _, title := range titles {
		out = append(out, model.PhotoResult{Title: title, URL: "http://farm.example/" + title + ".jpg"})
	}
	return out
}

func waitForStart(t *testing.T, f *fakeFetcher, term string) {
	t.Helper()
	select {
	case got := <-f.started:
		require.Equal(t, term, got)
	case <-time.After(2 * time.Second):
		require.Failf(t, "fetch never started", "term %q", term)
	}
}

func TestPipeline_InitialState(t *testing.T) {
	p, _ := newTestPipeline(t, newFakeFetcher())

	s := p.State()
	assert.Equal(t, model.PhaseIdle, s.Phase)
	assert.False(t, s.Busy())
	assert.NotNil(t, s.Results)
	assert.Empty(t, s.Results)
	assert.Zero(t, s.Generation)
}

func TestPipeline_OnlyLastValueInWindowFetches(t *testing.T) {
	f := newFakeFetcher()
	f.results["cat"] = photos("a", "b")
	p, clock := newTestPipeline(t, f)

	p.SetTerm("c")
	clock.Advance(300 * time.Millisecond)
	p.SetTerm("ca")
	clock.Advance(300 * time.Millisecond)
	p.SetTerm("cat")
	clock.Advance(debounce - time.Millisecond)
	assert.Zero(t, p.State().Generation)

	clock.Advance(time.Millisecond)
	require.Eventually(t, func() bool {
		return p.State().Phase == model.PhaseSucceeded
	}, 2*time.Second, 5*time.Millisecond)

	assert.Equal(t, []string{"cat"}, f.Calls())
	s := p.State()
	assert.Equal(t, "cat", s.Term)
	assert.Equal(t, uint64(1), s.Generation)
	assert.Equal(t, photos("a", "b"), s.Results)
}

func TestPipeline_TrimsTerm(t *testing.T) {
	f := newFakeFetcher()
	p, clock := newTestPipeline(t, f)

	p.SetTerm("  black cats \t")
	clock.Advance(debounce)
	drain(p)

	assert.Equal(t, []string{"black cats"}, f.Calls())
}

func TestPipeline_EmptyTermsNeverFetch(t *testing.T) {
	f := newFakeFetcher()
	p, clock := newTestPipeline(t, f)

	for _, term := range []string{"", "   ", "\t\n"} {
		p.SetTerm(term)
		clock.Advance(debounce)
	}
	drain(p)

	assert.Empty(t, f.Calls())
	assert.Equal(t, model.PhaseIdle, p.State().Phase)
}

func TestPipeline_AdjacentDuplicatesFetchOnce(t *testing.T) {
	f := newFakeFetcher()
	p, clock := newTestPipeline(t, f)

	p.SetTerm("cat")
	clock.Advance(debounce)
	settle(t, p)
	p.SetTerm(" cat ")
	clock.Advance(debounce)
	assert.Equal(t, uint64(1), p.State().Generation)

	p.SetTerm("dog")
	clock.Advance(debounce)
	settle(t, p)
	p.SetTerm("cat")
	clock.Advance(debounce)
	drain(p)

	assert.Equal(t, []string{"cat", "dog", "cat"}, f.Calls())
}

func TestPipeline_EmptyValueSeparatesDuplicates(t *testing.T) {
	// Duplicate suppression sees the empty value even though it never fetches.
	f := newFakeFetcher()
	p, clock := newTestPipeline(t, f)

	p.SetTerm("cat")
	clock.Advance(debounce)
	settle(t, p)
	p.SetTerm(" ")
	clock.Advance(debounce)
	p.SetTerm("cat")
	clock.Advance(debounce)
	drain(p)

	assert.Equal(t, []string{"cat", "cat"}, f.Calls())
	assert.Equal(t, uint64(2), p.State().Generation)
}

func TestPipeline_BusyWhileFetchOutstanding(t *testing.T) {
	f := newFakeFetcher()
	f.results["cat"] = photos("a")
	gate := f.gate("cat")
	p, clock := newTestPipeline(t, f)

	p.SetTerm("cat")
	clock.Advance(debounce)
	assert.True(t, p.State().Busy(), "busy as soon as the term is accepted")

	waitForStart(t, f, "cat")
	assert.True(t, p.State().Busy())
	assert.Equal(t, model.PhaseFetching, p.State().Phase)

	close(gate)
	require.Eventually(t, func() bool { return !p.State().Busy() }, 2*time.Second, 5*time.Millisecond)
	assert.Equal(t, model.PhaseSucceeded, p.State().Phase)
	assert.Equal(t, photos("a"), p.State().Results)
}

func TestPipeline_NilResultsNormalisedToEmpty(t *testing.T) {
	f := newFakeFetcher()
	p, clock := newTestPipeline(t, f)

	p.SetTerm("nothing")
	clock.Advance(debounce)
	drain(p)

	s := p.State()
	assert.Equal(t, model.PhaseSucceeded, s.Phase)
	assert.NotNil(t, s.Results)
	assert.Empty(t, s.Results)
}

func TestPipeline_SupersededFetchIsCanceled(t *testing.T) {
	f := newFakeFetcher()
	f.gate("cat")
	f.results["dog"] = photos("d")
	p, clock := newTestPipeline(t, f)

	p.SetTerm("cat")
	clock.Advance(debounce)
	waitForStart(t, f, "cat")

	p.SetTerm("dog")
	clock.Advance(debounce)
	drain(p)

	assert.ErrorIs(t, f.CtxErr("cat"), context.Canceled)
	s := p.State()
	assert.Equal(t, "dog", s.Term)
	assert.Equal(t, model.PhaseSucceeded, s.Phase)
	assert.NoError(t, s.Err, "a superseded failure is never surfaced")
	assert.Equal(t, photos("d"), s.Results)
}

func TestPipeline_QueuedSupersededTermNeverFetches(t *testing.T) {
	f := newFakeFetcher()
	f.ignoreCancel = true
	catGate := f.gate("cat")
	f.results["bird"] = photos("b")
	clock := &fakeClock{}
	p, err := NewPipeline(Config{Fetcher: f, Debounce: debounce, Workers: 1, afterFunc: clock.AfterFunc})
	require.NoError(t, err)
	t.Cleanup(p.Close)

	p.SetTerm("cat")
	clock.Advance(debounce)
	waitForStart(t, f, "cat")

	// dog waits behind cat on the single worker and is replaced before it runs
	p.SetTerm("dog")
	clock.Advance(debounce)
	p.SetTerm("bird")
	clock.Advance(debounce)

	close(catGate)
	drain(p)

	assert.Equal(t, []string{"cat", "bird"}, f.Calls())
	s := p.State()
	assert.Equal(t, "bird", s.Term)
	assert.Equal(t, model.PhaseSucceeded, s.Phase)
	assert.Equal(t, photos("b"), s.Results)
}

func TestPipeline_LateCompletionNeverOverwrites(t *testing.T) {
	f := newFakeFetcher()
	f.ignoreCancel = true
	catGate := f.gate("cat")
	f.results["cat"] = photos("c1", "c2", "c3")
	f.results["dog"] = photos("d")
	p, clock := newTestPipeline(t, f)

	p.SetTerm("cat")
	clock.Advance(debounce)
	waitForStart(t, f, "cat")

	p.SetTerm("dog")
	clock.Advance(debounce)
	require.Eventually(t, func() bool {
		return p.State().Phase == model.PhaseSucceeded
	}, 2*time.Second, 5*time.Millisecond)

	close(catGate)
	drain(p)

	s := p.State()
	assert.Equal(t, "dog", s.Term)
	assert.Equal(t, uint64(2), s.Generation)
	assert.Equal(t, photos("d"), s.Results)
}

func TestPipeline_FailureKeepsResultsAndSetsErr(t *testing.T) {
	f := newFakeFetcher()
	f.results["cat"] = photos("a", "b")
	boom := model.NewFeedError(model.ErrorTypeHTTPServerError, "HTTP 503")
	f.errs["dog"] = boom
	p, clock := newTestPipeline(t, f)

	p.SetTerm("cat")
	clock.Advance(debounce)
	require.Eventually(t, func() bool {
		return p.State().Phase == model.PhaseSucceeded
	}, 2*time.Second, 5*time.Millisecond)

	p.SetTerm("dog")
	clock.Advance(debounce)
	require.Eventually(t, func() bool {
		return p.State().Phase == model.PhaseFailed
	}, 2*time.Second, 5*time.Millisecond)

	s := p.State()
	assert.False(t, s.Busy())
	assert.Equal(t, "dog", s.Term)
	assert.Equal(t, photos("a", "b"), s.Results)

	var fe *model.FeedError
	require.True(t, errors.As(s.Err, &fe))
	assert.Equal(t, model.ErrorTypeHTTPServerError, fe.ErrorType)
}

func TestPipeline_Refresh(t *testing.T) {
	f := newFakeFetcher()
	p, clock := newTestPipeline(t, f)

	assert.False(t, p.Refresh(), "nothing accepted yet")

	p.SetTerm("cat")
	clock.Advance(debounce)
	settle(t, p)

	require.True(t, p.Refresh())
	assert.Equal(t, uint64(2), p.State().Generation)
	drain(p)

	assert.Equal(t, []string{"cat", "cat"}, f.Calls())
}

func TestPipeline_SubscribersSeeTransitionsInOrder(t *testing.T) {
	f := newFakeFetcher()
	f.results["cat"] = photos("a")
	p, clock := newTestPipeline(t, f)

	var mu sync.Mutex
	var phases []model.Phase
	unsubscribe := p.Subscribe(func(s model.SearchState) {
		mu.Lock()
		defer mu.Unlock()
		phases = append(phases, s.Phase)
	})

	p.SetTerm("cat")
	clock.Advance(debounce)
	require.Eventually(t, func() bool {
		mu.Lock()
		defer mu.Unlock()
		return len(phases) == 2
	}, 2*time.Second, 5*time.Millisecond)

	mu.Lock()
	assert.Equal(t, []model.Phase{model.PhaseFetching, model.PhaseSucceeded}, phases)
	mu.Unlock()

	unsubscribe()
	p.Refresh()
	drain(p)

	mu.Lock()
	defer mu.Unlock()
	assert.Len(t, phases, 2)
}

func TestPipeline_SnapshotsAreIndependent(t *testing.T) {
	f := newFakeFetcher()
	f.results["cat"] = photos("a")
	p, clock := newTestPipeline(t, f)

	p.SetTerm("cat")
	clock.Advance(debounce)
	drain(p)

	s := p.State()
	s.Results[0].Title = "mutated"
	assert.Equal(t, "a", p.State().Results[0].Title)
}

func TestPipeline_Close(t *testing.T) {
	f := newFakeFetcher()
	f.gate("cat")
	clock := &fakeClock{}
	p, err := NewPipeline(Config{Fetcher: f, Debounce: debounce, afterFunc: clock.AfterFunc})
	require.NoError(t, err)

	p.SetTerm("cat")
	clock.Advance(debounce)
	waitForStart(t, f, "cat")

	p.SetTerm("dog")
	p.Close()
	assert.ErrorIs(t, f.CtxErr("cat"), context.Canceled)
	assert.Zero(t, clock.Pending())

	p.SetTerm("bird")
	clock.Advance(debounce)
	assert.False(t, p.Refresh())
	assert.Equal(t, []string{"cat"}, f.Calls())

	p.Close()
}

func TestNewPipeline_Validation(t *testing.T) {
	_, err := NewPipeline(Config{})
	require.Error(t, err)
	assert.True(t, model.IsErrorType(err, model.ErrorTypeConfiguration))

	_, err = NewPipeline(Config{Fetcher: newFakeFetcher(), Debounce: -time.Second})
	require.Error(t, err)
}

func TestNewPipeline_Defaults(t *testing.T) {
	p, err := NewPipeline(Config{Fetcher: newFakeFetcher()})
	require.NoError(t, err)
	defer p.Close()

	assert.Equal(t, DefaultDebounce, p.debouncer.delay)
}
