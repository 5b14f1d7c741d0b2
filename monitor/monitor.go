// Package monitor drives the polling loop and owns all per-item state.
package monitor

import (
	"context"
	"log/slog"
	"time"

	"github.com/shopspring/decimal"

	"github.com/aluiziolira/buffwatch/alarm"
	"github.com/aluiziolira/buffwatch/fetch"
	"github.com/aluiziolira/buffwatch/models"
)

// Sampler produces one SampleResult per tracked item.
type Sampler interface {
	Sample(ctx context.Context, item models.TrackedItem) models.SampleResult
}

// Notifier is the audible alert side effect. Failures inside it must never
// reach the loop; a panicking implementation is recovered and logged.
type Notifier interface {
	Notify()
}

// Renderer consumes published snapshots.
type Renderer interface {
	Render(models.Snapshot)
}

// Options configures a Loop.
type Options struct {
	// CycleDelay is the pause after a full sweep of all items before the
	// next sweep begins. There is no per-item interval: the display
	// refreshes item by item and the pause only follows a complete cycle.
	CycleDelay time.Duration
	Clock      Clock
	Metrics    *Metrics
}

// Loop polls every tracked item in a fixed order and keeps the published
// snapshot consistent with the latest known state. All ItemState mutation
// happens on the goroutine running Run; nothing else writes.
type Loop struct {
	sampler  Sampler
	renderer Renderer
	notifier Notifier
	clock    Clock
	metrics  *Metrics
	delay    time.Duration
	states   []models.ItemState
}

// New builds a loop over items in the given order.
func New(items []models.TrackedItem, sampler Sampler, renderer Renderer, notifier Notifier, opts Options) *Loop {
	if opts.CycleDelay <= 0 {
		opts.CycleDelay = 10 * time.Second
	}
	if opts.Clock == nil {
		opts.Clock = realClock{}
	}

	states := make([]models.ItemState, len(items))
	for i, item := range items {
		states[i] = models.ItemState{Item: item}
	}

	return &Loop{
		sampler:  sampler,
		renderer: renderer,
		notifier: notifier,
		clock:    opts.Clock,
		metrics:  opts.Metrics,
		delay:    opts.CycleDelay,
		states:   states,
	}
}

// Run polls until ctx is cancelled and returns the cancellation cause.
// Publishes an initial snapshot so the display is populated before the
// first sample lands.
func (l *Loop) Run(ctx context.Context) error {
	l.publish()
	for {
		if err := l.sweep(ctx); err != nil {
			return err
		}
		l.clock.Sleep(ctx, l.delay)
		if err := ctx.Err(); err != nil {
			return err
		}
	}
}

// sweep performs one full cycle over all items in order, publishing after
// every single item so the display reflects progress incrementally.
func (l *Loop) sweep(ctx context.Context) error {
	for i := range l.states {
		if err := ctx.Err(); err != nil {
			return err
		}
		l.step(ctx, &l.states[i])
		l.publish()
	}
	return nil
}

// step samples one item, applies the result, and runs the alarm decision.
// Every failure mode here degrades to "no price this cycle": stale values
// beat a blanked display, and one item's failure never touches its siblings.
func (l *Loop) step(ctx context.Context, st *models.ItemState) {
	start := l.clock.Now()
	res := l.sampler.Sample(ctx, st.Item)
	l.metrics.ObserveSampleDuration(l.clock.Now().Sub(start))

	switch {
	case res.Err != nil:
		l.metrics.IncSample("error")
		l.metrics.IncFetchError(fetch.Label(res.Err))
		slog.Debug("sample failed",
			slog.String("item", st.Item.Name),
			slog.Any("error", res.Err),
		)
	default:
		if lowest, ok := res.Lowest(); ok {
			l.metrics.IncSample("ok")
			now := l.clock.Now()
			st.LowestPrice = &lowest
			st.LastUpdated = &now
		} else {
			l.metrics.IncSample("empty")
			slog.Debug("no offers on page", slog.String("item", st.Item.Name))
		}
	}

	state := alarm.Inactive
	if st.AlarmActive {
		state = alarm.Active
	}
	next, fire := alarm.Decide(state, st.LowestPrice, st.Item.AlarmThreshold)
	st.AlarmActive = next == alarm.Active

	if next != state {
		slog.Info("alarm state changed",
			slog.String("item", st.Item.Name),
			slog.String("state", next.String()),
			slog.String("price", st.LowestPrice.String()),
			slog.String("threshold", st.Item.AlarmThreshold.String()),
		)
	}
	if fire {
		l.metrics.IncAlarmFired()
		l.notify()
	}
}

// notify invokes the notifier exactly once per activation edge and contains
// any panic it raises.
func (l *Loop) notify() {
	defer func() {
		if r := recover(); r != nil {
			slog.Error("notifier panicked", slog.Any("panic", r))
		}
	}()
	l.notifier.Notify()
}

func (l *Loop) publish() {
	l.renderer.Render(l.snapshot())
}

// snapshot deep-copies the current state so the renderer can never observe
// a later mutation.
func (l *Loop) snapshot() models.Snapshot {
	rows := make([]models.ItemState, len(l.states))
	alarms := make(map[string]decimal.Decimal)
	for i, st := range l.states {
		rows[i] = st.Clone()
		if st.AlarmActive && st.LowestPrice != nil {
			alarms[st.Item.Name] = *st.LowestPrice
		}
	}
	return models.Snapshot{Rows: rows, ActiveAlarms: alarms}
}
