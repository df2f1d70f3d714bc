// Package tray shows the kiosk's repetition count in the system tray.
package tray

import (
	"fmt"
	"sync"

	"github.com/getlantern/systray"

	"github.com/ayusman/repcounter/internal/counter"
)

// Tray is the system tray menu for kiosk mode.
type Tray struct {
	onToggle func(enabled bool)
	onReset  func()
	onOpen   func()
	onQuit   func()
	enabled  bool
	count    int
	label    counter.Phase
	mu       sync.RWMutex

	menuToggle *systray.MenuItem
	menuCount  *systray.MenuItem
}

// New creates a Tray with counting enabled.
func New() *Tray {
	return &Tray{
		enabled: true,
		label:   counter.PhaseWaiting,
	}
}

// OnToggle sets the callback run when counting is paused or resumed.
func (t *Tray) OnToggle(fn func(enabled bool)) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.onToggle = fn
}

// OnReset sets the callback run when "Reset counter" is clicked.
func (t *Tray) OnReset(fn func()) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.onReset = fn
}

// OnOpen sets the callback run when "Open Dashboard..." is clicked.
func (t *Tray) OnOpen(fn func()) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.onOpen = fn
}

// OnQuit sets the callback run before the tray exits.
func (t *Tray) OnQuit(fn func()) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.onQuit = fn
}

// Run starts the tray. It blocks until Quit is clicked or systray.Quit
// is called, and must run on the main goroutine.
func (t *Tray) Run() {
	systray.Run(t.onReady, func() {})
}

// Quit closes the tray from outside the menu.
func (t *Tray) Quit() {
	systray.Quit()
}

func (t *Tray) onReady() {
	systray.SetTitle("RepCounter")
	systray.SetTooltip("RepCounter repetition counter")

	t.mu.Lock()
	t.menuToggle = systray.AddMenuItem(toggleTitle(t.enabled), "Pause or resume counting")
	systray.AddSeparator()
	t.menuCount = systray.AddMenuItem(countTitle(t.count, t.label), "Current repetition count")
	t.menuCount.Disable()
	t.mu.Unlock()

	menuReset := systray.AddMenuItem("Reset counter", "Zero the repetition count")
	systray.AddSeparator()
	menuOpen := systray.AddMenuItem("Open Dashboard...", "Open the dashboard in a browser")
	systray.AddSeparator()
	menuQuit := systray.AddMenuItem("Quit", "Quit RepCounter")

	go func() {
		for {
			select {
			case <-t.menuToggle.ClickedCh:
				t.handleToggle()
			case <-menuReset.ClickedCh:
				t.fire(func() func() { return t.onReset })
			case <-menuOpen.ClickedCh:
				t.fire(func() func() { return t.onOpen })
			case <-menuQuit.ClickedCh:
				t.fire(func() func() { return t.onQuit })
				systray.Quit()
				return
			}
		}
	}()
}

func (t *Tray) handleToggle() {
	t.mu.Lock()
	t.enabled = !t.enabled
	enabled := t.enabled
	if t.menuToggle != nil {
		t.menuToggle.SetTitle(toggleTitle(enabled))
	}
	callback := t.onToggle
	t.mu.Unlock()

	// outside the lock so the callback may call back into the tray
	if callback != nil {
		callback(enabled)
	}
}

func (t *Tray) fire(get func() func()) {
	t.mu.RLock()
	callback := get()
	t.mu.RUnlock()

	if callback != nil {
		callback()
	}
}

// SetCount updates the count shown in the menu.
func (t *Tray) SetCount(count int, label counter.Phase) {
	t.mu.Lock()
	defer t.mu.Unlock()

	t.count = count
	t.label = label
	if t.menuCount != nil {
		t.menuCount.SetTitle(countTitle(count, label))
	}
}

// Count returns the last count passed to SetCount.
func (t *Tray) Count() (int, counter.Phase) {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.count, t.label
}

// IsEnabled returns the current enabled state.
func (t *Tray) IsEnabled() bool {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.enabled
}

func toggleTitle(enabled bool) string {
	if enabled {
		return "● Counting"
	}
	return "○ Paused"
}

func countTitle(count int, label counter.Phase) string {
	return fmt.Sprintf("Reps: %d (%s)", count, label)
}
