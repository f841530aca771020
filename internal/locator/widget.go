package locator

import (
	"fmt"
	"hash/fnv"

	"tilepilot/internal/logging"
)

// WidgetState tracks a widget through its lifecycle. Transitions only
// move forward except for StateFailed, reachable from anywhere.
type WidgetState int

const (
	StateIdle WidgetState = iota
	StateCheckboxPending
	StateWaitingForChallenge
	StateSolving
	StateSubmitted
	StateFailed
)

func (s WidgetState) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateCheckboxPending:
		return "checkbox-pending"
	case StateWaitingForChallenge:
		return "waiting-for-challenge"
	case StateSolving:
		return "solving"
	case StateSubmitted:
		return "submitted"
	case StateFailed:
		return "failed"
	}
	return fmt.Sprintf("state(%d)", int(s))
}

// rectFacts is a widget's rounded bounding box in page coordinates.
type rectFacts struct {
	X int `json:"x"`
	Y int `json:"y"`
	W int `json:"w"`
	H int `json:"h"`
}

// widgetFacts is the DOM snapshot a scan collects per matched element.
type widgetFacts struct {
	Tag     string    `json:"tag"`
	ID      string    `json:"id"`
	Classes string    `json:"classes"`
	Attrs   string    `json:"attrs"`
	Rect    rectFacts `json:"rect"`
}

// Widget is one tracked challenge widget.
type Widget struct {
	Fingerprint string
	Selector    string
	Facts       widgetFacts
	State       WidgetState
}

func (w *Widget) transition(to WidgetState) {
	logging.LocatorDebug("Widget %s: %s -> %s", w.Fingerprint, w.State, to)
	w.State = to
}

// Fingerprint derives a stable identity for a widget from its declared
// shape and rounded geometry. Stable across re-scans of an unchanged
// page, distinct for widgets that differ in any declared attribute.
func Fingerprint(f widgetFacts) string {
	h := fnv.New64a()
	fmt.Fprintf(h, "%s|%s|%s|%s|%d,%d,%d,%d",
		f.Tag, f.ID, f.Classes, f.Attrs,
		f.Rect.X, f.Rect.Y, f.Rect.W, f.Rect.H)
	return fmt.Sprintf("%016x", h.Sum64())
}
