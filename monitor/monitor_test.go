package monitor

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"github.com/aluiziolira/buffwatch/fetch"
	"github.com/aluiziolira/buffwatch/models"
)

func item(name, threshold string) models.TrackedItem {
	return models.TrackedItem{
		Name:           name,
		SourceURL:      "http://market.test/goods/" + name,
		AlarmThreshold: decimal.RequireFromString(threshold),
	}
}

func offers(values ...string) []models.Offer {
	out := make([]models.Offer, len(values))
	for i, v := range values {
		out[i] = decimal.RequireFromString(v)
	}
	return out
}

// scriptedSampler replays one result per call per item name.
type scriptedSampler struct {
	script map[string][]models.SampleResult
	calls  map[string]int
}

func newScriptedSampler() *scriptedSampler {
	return &scriptedSampler{
		script: make(map[string][]models.SampleResult),
		calls:  make(map[string]int),
	}
}

func (s *scriptedSampler) add(name string, res models.SampleResult) {
	s.script[name] = append(s.script[name], res)
}

func (s *scriptedSampler) Sample(ctx context.Context, it models.TrackedItem) models.SampleResult {
	i := s.calls[it.Name]
	s.calls[it.Name]++
	script := s.script[it.Name]
	if i >= len(script) {
		return models.SampleResult{Item: it}
	}
	res := script[i]
	res.Item = it
	return res
}

type recordingRenderer struct {
	snapshots []models.Snapshot
}

func (r *recordingRenderer) Render(snap models.Snapshot) {
	r.snapshots = append(r.snapshots, snap)
}

func (r *recordingRenderer) last(t *testing.T) models.Snapshot {
	t.Helper()
	if len(r.snapshots) == 0 {
		t.Fatalf("no snapshot was published")
	}
	return r.snapshots[len(r.snapshots)-1]
}

type countingNotifier struct {
	count int
}

func (n *countingNotifier) Notify() { n.count++ }

type panicNotifier struct{}

func (panicNotifier) Notify() { panic("speaker unplugged") }

// fakeClock hands out strictly increasing times and records sleeps instead
// of performing them.
type fakeClock struct {
	now   time.Time
	slept []time.Duration
}

func newFakeClock() *fakeClock {
	return &fakeClock{now: time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)}
}

func (c *fakeClock) Now() time.Time {
	c.now = c.now.Add(time.Second)
	return c.now
}

func (c *fakeClock) Sleep(ctx context.Context, d time.Duration) {
	c.slept = append(c.slept, d)
}

func newTestLoop(items []models.TrackedItem, s Sampler, r Renderer, n Notifier) *Loop {
	return New(items, s, r, n, Options{
		CycleDelay: 10 * time.Second,
		Clock:      newFakeClock(),
	})
}

func TestThresholdCrossingLifecycle(t *testing.T) {
	// Cycle 1: 150 above threshold, 2: 95 crosses, 3: 90 stays active,
	// 4: 120 clears. The notifier fires exactly once, on the crossing.
	it := item("redline", "100.00")
	sampler := newScriptedSampler()
	sampler.add("redline", models.SampleResult{Prices: offers("150.00")})
	sampler.add("redline", models.SampleResult{Prices: offers("95.00", "110.00")})
	sampler.add("redline", models.SampleResult{Prices: offers("90.00")})
	sampler.add("redline", models.SampleResult{Prices: offers("120.00")})

	renderer := &recordingRenderer{}
	notifier := &countingNotifier{}
	loop := newTestLoop([]models.TrackedItem{it}, sampler, renderer, notifier)

	steps := []struct {
		wantActive bool
		wantPrice  string
		wantNotify int
	}{
		{wantActive: false, wantPrice: "150.00", wantNotify: 0},
		{wantActive: true, wantPrice: "95.00", wantNotify: 1},
		{wantActive: true, wantPrice: "90.00", wantNotify: 1},
		{wantActive: false, wantPrice: "120.00", wantNotify: 1},
	}

	ctx := context.Background()
	for i, step := range steps {
		if err := loop.sweep(ctx); err != nil {
			t.Fatalf("cycle %d: sweep error = %v", i+1, err)
		}

		st := loop.states[0]
		if st.AlarmActive != step.wantActive {
			t.Errorf("cycle %d: AlarmActive = %v, want %v", i+1, st.AlarmActive, step.wantActive)
		}
		if st.LowestPrice == nil || !st.LowestPrice.Equal(decimal.RequireFromString(step.wantPrice)) {
			t.Errorf("cycle %d: LowestPrice = %v, want %s", i+1, st.LowestPrice, step.wantPrice)
		}
		if notifier.count != step.wantNotify {
			t.Errorf("cycle %d: notifications = %d, want %d", i+1, notifier.count, step.wantNotify)
		}

		snap := renderer.last(t)
		_, alarmed := snap.ActiveAlarms[it.Name]
		if alarmed != step.wantActive {
			t.Errorf("cycle %d: snapshot alarm presence = %v, want %v", i+1, alarmed, step.wantActive)
		}
	}
}

func TestFetchFailurePreservesState(t *testing.T) {
	// A successful cycle puts the item in alarm; a timeout on the next
	// cycle must not clear it, blank the price, or touch LastUpdated.
	it := item("redline", "100.00")
	sampler := newScriptedSampler()
	sampler.add("redline", models.SampleResult{Prices: offers("95.00")})
	sampler.add("redline", models.SampleResult{Err: fetch.ErrTimeout{Err: context.DeadlineExceeded}})

	renderer := &recordingRenderer{}
	notifier := &countingNotifier{}
	loop := newTestLoop([]models.TrackedItem{it}, sampler, renderer, notifier)

	ctx := context.Background()
	if err := loop.sweep(ctx); err != nil {
		t.Fatalf("cycle 1: sweep error = %v", err)
	}

	afterSuccess := loop.states[0]
	if !afterSuccess.AlarmActive || afterSuccess.LastUpdated == nil {
		t.Fatalf("cycle 1 should activate the alarm and set LastUpdated: %+v", afterSuccess)
	}
	updatedAt := *afterSuccess.LastUpdated

	if err := loop.sweep(ctx); err != nil {
		t.Fatalf("cycle 2: sweep error = %v", err)
	}

	st := loop.states[0]
	if !st.AlarmActive {
		t.Errorf("alarm cleared by a failed fetch")
	}
	if st.LowestPrice == nil || !st.LowestPrice.Equal(decimal.RequireFromString("95.00")) {
		t.Errorf("LowestPrice = %v, want stale 95.00", st.LowestPrice)
	}
	if st.LastUpdated == nil || !st.LastUpdated.Equal(updatedAt) {
		t.Errorf("LastUpdated = %v, want unchanged %v", st.LastUpdated, updatedAt)
	}
	if notifier.count != 1 {
		t.Errorf("notifications = %d, want 1", notifier.count)
	}

	snap := renderer.last(t)
	if price, ok := snap.ActiveAlarms[it.Name]; !ok || !price.Equal(decimal.RequireFromString("95.00")) {
		t.Errorf("snapshot alarm = %v (%v), want 95.00", price, ok)
	}
}

func TestEmptySampleNeverTriggers(t *testing.T) {
	// No valid offers on any cycle: the item must stay inactive with no
	// price, and the notifier must stay silent.
	it := item("redline", "100.00")
	sampler := newScriptedSampler()
	sampler.add("redline", models.SampleResult{})
	sampler.add("redline", models.SampleResult{})

	renderer := &recordingRenderer{}
	notifier := &countingNotifier{}
	loop := newTestLoop([]models.TrackedItem{it}, sampler, renderer, notifier)

	ctx := context.Background()
	for i := 0; i < 2; i++ {
		if err := loop.sweep(ctx); err != nil {
			t.Fatalf("sweep error = %v", err)
		}
	}

	st := loop.states[0]
	if st.AlarmActive || st.LowestPrice != nil || st.LastUpdated != nil {
		t.Errorf("empty samples changed state: %+v", st)
	}
	if notifier.count != 0 {
		t.Errorf("notifications = %d, want 0", notifier.count)
	}
}

func TestSnapshotPublishedPerItem(t *testing.T) {
	items := []models.TrackedItem{item("a", "10"), item("b", "10"), item("c", "10")}
	sampler := newScriptedSampler()
	renderer := &recordingRenderer{}
	loop := newTestLoop(items, sampler, renderer, &countingNotifier{})

	if err := loop.sweep(context.Background()); err != nil {
		t.Fatalf("sweep error = %v", err)
	}

	// Incremental refresh: one publication per item, not one per cycle.
	if len(renderer.snapshots) != len(items) {
		t.Errorf("snapshots = %d, want %d", len(renderer.snapshots), len(items))
	}
	for i, snap := range renderer.snapshots {
		if len(snap.Rows) != len(items) {
			t.Errorf("snapshot %d has %d rows, want %d", i, len(snap.Rows), len(items))
		}
	}
}

func TestSnapshotIsDetachedFromLoopState(t *testing.T) {
	it := item("redline", "100.00")
	sampler := newScriptedSampler()
	sampler.add("redline", models.SampleResult{Prices: offers("95.00")})
	sampler.add("redline", models.SampleResult{Prices: offers("80.00")})

	renderer := &recordingRenderer{}
	loop := newTestLoop([]models.TrackedItem{it}, sampler, renderer, &countingNotifier{})

	ctx := context.Background()
	if err := loop.sweep(ctx); err != nil {
		t.Fatalf("sweep error = %v", err)
	}
	first := renderer.last(t)
	if err := loop.sweep(ctx); err != nil {
		t.Fatalf("sweep error = %v", err)
	}

	if !first.Rows[0].LowestPrice.Equal(decimal.RequireFromString("95.00")) {
		t.Errorf("earlier snapshot mutated by a later cycle: %v", first.Rows[0].LowestPrice)
	}
}

func TestNotifierPanicIsContained(t *testing.T) {
	it := item("redline", "100.00")
	sampler := newScriptedSampler()
	sampler.add("redline", models.SampleResult{Prices: offers("95.00")})

	renderer := &recordingRenderer{}
	loop := newTestLoop([]models.TrackedItem{it}, sampler, renderer, panicNotifier{})

	if err := loop.sweep(context.Background()); err != nil {
		t.Fatalf("sweep error = %v", err)
	}
	if !loop.states[0].AlarmActive {
		t.Errorf("alarm state lost to a panicking notifier")
	}
}

func TestFailureIsolationAcrossItems(t *testing.T) {
	// One item failing persistently never blocks its sibling.
	sampler := newScriptedSampler()
	sampler.add("broken", models.SampleResult{Err: errors.New("connection refused")})
	sampler.add("healthy", models.SampleResult{Prices: offers("42.00")})

	renderer := &recordingRenderer{}
	items := []models.TrackedItem{item("broken", "10"), item("healthy", "50")}
	loop := newTestLoop(items, sampler, renderer, &countingNotifier{})

	if err := loop.sweep(context.Background()); err != nil {
		t.Fatalf("sweep error = %v", err)
	}

	if loop.states[0].LowestPrice != nil {
		t.Errorf("failing item acquired a price: %v", loop.states[0].LowestPrice)
	}
	if loop.states[1].LowestPrice == nil || !loop.states[1].LowestPrice.Equal(decimal.RequireFromString("42.00")) {
		t.Errorf("healthy item price = %v, want 42.00", loop.states[1].LowestPrice)
	}
	if !loop.states[1].AlarmActive {
		t.Errorf("healthy item should be in alarm at 42.00 <= 50")
	}
}

func TestRunStopsOnCancel(t *testing.T) {
	it := item("redline", "100.00")
	sampler := newScriptedSampler()
	renderer := &recordingRenderer{}

	ctx, cancel := context.WithCancel(context.Background())
	clock := &cancellingClock{fakeClock: newFakeClock(), cancel: cancel}
	loop := New([]models.TrackedItem{it}, sampler, renderer, &countingNotifier{}, Options{
		CycleDelay: 10 * time.Second,
		Clock:      clock,
	})

	done := make(chan error, 1)
	go func() { done <- loop.Run(ctx) }()

	select {
	case err := <-done:
		if !errors.Is(err, context.Canceled) {
			t.Fatalf("Run() = %v, want context.Canceled", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatalf("Run() did not stop after cancellation")
	}

	if clock.sleeps != 1 {
		t.Errorf("sleeps before shutdown = %d, want 1", clock.sleeps)
	}
}

// cancellingClock cancels the context during the inter-cycle pause.
type cancellingClock struct {
	*fakeClock
	cancel context.CancelFunc
	sleeps int
}

func (c *cancellingClock) Sleep(ctx context.Context, d time.Duration) {
	c.sleeps++
	c.cancel()
}
