// Package screen hosts server-driven screen sessions. Each mounted screen
// owns its state, runs its handlers on a single goroutine and renders a JSON
// snapshot after every event.
package screen

import (
	"context"
	"fmt"

	"github.com/pitabwire/callcenter/internal/layout"
	"github.com/pitabwire/callcenter/internal/notify"
	"github.com/pitabwire/callcenter/model"
)

// Event types forwarded by the client.
const (
	EventInput        = "input"
	EventSearch       = "search"
	EventFilter       = "filter"
	EventClearFilters = "clear_filters"
	EventSort         = "sort"
	EventPage         = "page"
	EventSelect       = "select"
	EventSelectPage   = "select_page"
	EventAdvance      = "advance"
	EventRetreat      = "retreat"
	EventSubmit       = "submit"
	EventReset        = "reset"
	EventVerifyUnit   = "verify_unit"
	EventChoose       = "choose"
	EventExport       = "export"
)

// Event is one discrete UI interaction. Only the fields meaningful for Type
// are set.
type Event struct {
	Type   string `json:"type" validate:"required"`
	Field  string `json:"field,omitempty"`
	Value  string `json:"value,omitempty"`
	Page   int    `json:"page,omitempty"`
	ID     string `json:"id,omitempty"`
	Format string `json:"format,omitempty"`

	// Anchor and Viewport describe the geometry of the focused input so
	// suggestion dropdowns can be positioned.
	Anchor   *layout.Rect `json:"anchor,omitempty"`
	Viewport *layout.Size `json:"viewport,omitempty"`
}

// Props are supplied when a screen is mounted.
type Props struct {
	// Records seed list and report screens.
	Records []model.Record `json:"records,omitempty"`
	// Values prefill form fields.
	Values map[string]string `json:"values,omitempty"`
}

// Screen is the state machine behind one mounted screen. Handle and
// Snapshot always run on the session loop.
type Screen interface {
	// Handle applies one event. Returned errors are protocol errors (unknown
	// event or field); validation and backend failures are rendered into the
	// snapshot and notifications instead.
	Handle(ctx context.Context, ev Event) error
	// Snapshot renders the state the client displays.
	Snapshot() any
}

// View is what the client receives after mounting, dispatching or polling.
type View struct {
	ID            string                `json:"id"`
	Screen        string                `json:"screen"`
	Title         string                `json:"title"`
	Version       uint64                `json:"version"`
	Busy          bool                  `json:"busy"`
	State         any                   `json:"state"`
	Notifications []notify.Notification `json:"notifications"`
}

func unknownEvent(screen string, ev Event) error {
	return model.NewUnknownEventError(screen, ev.Type)
}

func unknownField(field string) error {
	return model.NewBadRequestError(fmt.Sprintf("campo %q desconhecido", field))
}
