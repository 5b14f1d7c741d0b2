// Package alarm implements the per-item threshold state machine.
package alarm

import "github.com/shopspring/decimal"

// State is the alarm condition of one tracked item.
type State uint8

const (
	Inactive State = iota
	Active
)

func (s State) String() string {
	switch s {
	case Inactive:
		return "inactive"
	case Active:
		return "active"
	default:
		return "unknown"
	}
}

// Decide returns the next state for an item and whether the notification
// side effect should fire. It is pure: the caller owns both applying the
// state and invoking the notifier.
//
// A nil lowest means no valid offer was seen this cycle; the state is frozen
// and nothing fires. The notification is edge-triggered: it fires only on
// the Inactive-to-Active transition, never while the alarm stays active, and
// clearing is always silent.
func Decide(s State, lowest *decimal.Decimal, threshold decimal.Decimal) (State, bool) {
	if lowest == nil {
		return s, false
	}
	if lowest.LessThanOrEqual(threshold) {
		return Active, s == Inactive
	}
	return Inactive, false
}
