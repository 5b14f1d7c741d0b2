// Package models defines data structures shared across the watcher.
package models

import (
	"time"

	"github.com/shopspring/decimal"
)

// Offer is a single sell-offer price extracted from one listing row.
type Offer = decimal.Decimal

// TrackedItem identifies one marketplace listing page to watch. Built from
// configuration at startup and never mutated afterwards.
type TrackedItem struct {
	Name           string
	SourceURL      string
	AlarmThreshold decimal.Decimal
}

// ItemState is the monitor's view of one tracked item. LowestPrice and
// LastUpdated are nil until the first successful sample and keep their last
// good values across failed cycles.
type ItemState struct {
	Item        TrackedItem
	LowestPrice *decimal.Decimal
	LastUpdated *time.Time
	AlarmActive bool
}

// Clone returns a copy whose pointer fields do not alias the receiver's.
func (s ItemState) Clone() ItemState {
	out := s
	if s.LowestPrice != nil {
		price := *s.LowestPrice
		out.LowestPrice = &price
	}
	if s.LastUpdated != nil {
		updated := *s.LastUpdated
		out.LastUpdated = &updated
	}
	return out
}

// SampleResult is the outcome of a single fetch+parse attempt for one item.
// A set Err means the fetch failed and Prices is empty.
type SampleResult struct {
	Item   TrackedItem
	Prices []Offer
	Err    error
}

// Lowest returns the minimum offer price and whether any offer exists.
func (r SampleResult) Lowest() (decimal.Decimal, bool) {
	if len(r.Prices) == 0 {
		return decimal.Decimal{}, false
	}
	lowest := r.Prices[0]
	for _, p := range r.Prices[1:] {
		if p.LessThan(lowest) {
			lowest = p
		}
	}
	return lowest, true
}

// Snapshot is the renderable view of every tracked item. Rows preserve
// configuration order; ActiveAlarms maps item name to the price that
// triggered the alarm. A snapshot is never mutated after publication.
type Snapshot struct {
	Rows         []ItemState
	ActiveAlarms map[string]decimal.Decimal
}
