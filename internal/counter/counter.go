// Package counter implements the repetition state machine driven by the
// mean elbow angle of each analyzed frame.
package counter

import (
	"errors"
	"fmt"
	"sync"
)

// Phase is the human-readable label of the current repetition phase.
type Phase string

const (
	// PhaseWaiting is the initial label before any extension was seen.
	PhaseWaiting Phase = "waiting"
	// PhaseAscending is set whenever the arms are extended.
	PhaseAscending Phase = "ascending"
	// PhaseWellDone is set when an extended attempt reaches full flexion.
	PhaseWellDone Phase = "well-done"
	// PhaseReset is set on the frame that completes a repetition.
	PhaseReset Phase = "reset"
)

// Default calibration for pull-ups, in degrees.
const (
	DefaultExtended = 150.0
	DefaultFlexed   = 55.0
)

// Thresholds are the exercise-specific angle checkpoints in degrees.
// A mean angle strictly above Extended counts as extended; strictly
// below Flexed counts as flexed.
type Thresholds struct {
	Extended float64 `yaml:"extended"`
	Flexed   float64 `yaml:"flexed"`
}

// DefaultThresholds returns the pull-up calibration.
func DefaultThresholds() Thresholds {
	return Thresholds{Extended: DefaultExtended, Flexed: DefaultFlexed}
}

// ErrInvalidThresholds is returned when thresholds cannot form a repetition.
var ErrInvalidThresholds = errors.New("invalid thresholds")

// Validate checks that 0 < Flexed < Extended <= 180.
func (t Thresholds) Validate() error {
	if t.Flexed <= 0 || t.Extended > 180 || t.Flexed >= t.Extended {
		return fmt.Errorf("%w: flexed=%.1f extended=%.1f", ErrInvalidThresholds, t.Flexed, t.Extended)
	}
	return nil
}

// Snapshot is a copy of the counter state at one point in time.
type Snapshot struct {
	Count           int   `json:"count"`
	Phase           Phase `json:"status_label"`
	ReachedExtended bool  `json:"reached_extended"`
	ReachedFlexed   bool  `json:"reached_flexed"`
}

// Counter counts completed repetitions. It is safe for concurrent use so a
// reset can arrive from another goroutine while frames are being processed.
type Counter struct {
	mu         sync.Mutex
	thresholds Thresholds
	count      int
	extended   bool
	flexed     bool
	phase      Phase
}

// New creates a Counter in the waiting phase.
func New(t Thresholds) (*Counter, error) {
	if err := t.Validate(); err != nil {
		return nil, err
	}
	return &Counter{thresholds: t, phase: PhaseWaiting}, nil
}

// NewDefault creates a Counter with the pull-up calibration.
func NewDefault() *Counter {
	return &Counter{thresholds: DefaultThresholds(), phase: PhaseWaiting}
}

// Update feeds one valid mean angle into the state machine and returns the
// resulting snapshot plus whether this frame completed a repetition.
//
// Transitions, evaluated in order within the same frame:
//  1. angle > Extended: mark extended, label ascending.
//  2. otherwise, extended and not yet flexed and angle < Flexed: mark flexed, label well-done.
//  3. extended and flexed and angle > Extended: count+1, clear both flags, label reset.
func (c *Counter) Update(angle float64) (Snapshot, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if angle > c.thresholds.Extended {
		c.extended = true
		c.phase = PhaseAscending
	} else if c.extended && !c.flexed && angle < c.thresholds.Flexed {
		c.flexed = true
		c.phase = PhaseWellDone
	}

	completed := false
	if c.extended && c.flexed && angle > c.thresholds.Extended {
		c.count++
		c.extended = false
		c.flexed = false
		c.phase = PhaseReset
		completed = true
	}

	return c.snapshot(), completed
}

// Reset returns the counter to its initial state.
func (c *Counter) Reset() Snapshot {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.count = 0
	c.extended = false
	c.flexed = false
	c.phase = PhaseWaiting
	return c.snapshot()
}

// Snapshot returns the current state without modifying it.
func (c *Counter) Snapshot() Snapshot {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.snapshot()
}

// Thresholds returns the configured calibration.
func (c *Counter) Thresholds() Thresholds {
	return c.thresholds
}

func (c *Counter) snapshot() Snapshot {
	return Snapshot{
		Count:           c.count,
		Phase:           c.phase,
		ReachedExtended: c.extended,
		ReachedFlexed:   c.flexed,
	}
}
