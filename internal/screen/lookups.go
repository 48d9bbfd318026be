package screen

import (
	"context"
	"slices"

	"github.com/pitabwire/callcenter/internal/debounce"
	"github.com/pitabwire/callcenter/internal/layout"
	"github.com/pitabwire/callcenter/internal/mask"
	"github.com/pitabwire/callcenter/model"
)

// autocomplete offers municipio suggestions for a text field as the operator
// types.
type autocomplete struct {
	env      *Env
	field    string
	debounce *debounce.Debouncer

	suggestions []string
	loading     bool
	anchor      Event
}

// newAutocomplete binds the municipio lookup declared for field. It returns
// nil when the definition declares none.
func newAutocomplete(env *Env, field string) *autocomplete {
	a := &autocomplete{env: env, field: field}
	d, ok := env.LookupDebouncer(field, a.fetch)
	if !ok {
		return nil
	}
	a.debounce = d
	return a
}

// input forwards a keystroke. Queries below the minimum length clear the
// suggestions.
func (a *autocomplete) input(ev Event) {
	a.anchor = ev
	if !a.debounce.OnInput(ev.Value) {
		a.suggestions = nil
		a.loading = false
	}
}

// fetch runs on the loop after the quiet period. Input handled between the
// timer firing and fetch running makes q stale.
func (a *autocomplete) fetch(q string) {
	if !a.debounce.IsCurrent(q) {
		return
	}
	a.loading = true
	run(a.env, func(ctx context.Context) ([]string, error) {
		return a.env.Lookups.Municipios(ctx, q)
	}, func(names []string, err error) {
		if !a.debounce.IsCurrent(q) {
			return
		}
		a.loading = false
		if err != nil {
			a.suggestions = nil
			a.env.Logger.Debug("municipio lookup failed")
			return
		}
		a.suggestions = names
	})
}

// choose accepts a suggestion. It reports false when value was not offered.
func (a *autocomplete) choose(value string) bool {
	if !slices.Contains(a.suggestions, value) {
		return false
	}
	a.debounce.Cancel()
	a.suggestions = nil
	return true
}

func (a *autocomplete) clear() {
	a.debounce.Cancel()
	a.suggestions = nil
	a.loading = false
}

// AutocompleteState is the snapshot of a suggestion dropdown.
type AutocompleteState struct {
	Field       string        `json:"field"`
	Suggestions []string      `json:"suggestions"`
	Loading     bool          `json:"loading"`
	Layer       *layout.Layer `json:"layer,omitempty"`
}

func (a *autocomplete) state() AutocompleteState {
	return AutocompleteState{
		Field:       a.field,
		Suggestions: a.suggestions,
		Loading:     a.loading,
		Layer:       dropdown(a.anchor, len(a.suggestions)),
	}
}

// cnesLookup queries the national registry once a complete CNES code has
// been typed.
type cnesLookup struct {
	env      *Env
	debounce *debounce.Debouncer
	onFound  func(model.CNESEstablishment)

	result  *model.CNESEstablishment
	message string
	loading bool
}

// newCNESLookup binds the CNES lookup declared for field. onFound runs on the
// loop when a current lookup succeeds. It returns nil when the definition
// declares no lookup.
func newCNESLookup(env *Env, field string, onFound func(model.CNESEstablishment)) *cnesLookup {
	c := &cnesLookup{env: env, onFound: onFound}
	d, ok := env.LookupDebouncer(field, c.fetch)
	if !ok {
		return nil
	}
	c.debounce = d
	return c
}

// input forwards the masked field value. Only complete codes are looked up;
// anything else clears the previous result.
func (c *cnesLookup) input(value string) {
	digits := mask.Digits(value)
	c.result = nil
	c.message = ""
	if len(digits) != mask.CNESLength {
		c.debounce.Cancel()
		c.loading = false
		return
	}
	c.debounce.OnInput(digits)
}

func (c *cnesLookup) fetch(code string) {
	if !c.debounce.IsCurrent(code) {
		return
	}
	c.loading = true
	run(c.env, func(ctx context.Context) (model.CNESEstablishment, error) {
		return c.env.Lookups.LookupCNES(ctx, code)
	}, func(est model.CNESEstablishment, err error) {
		if !c.debounce.IsCurrent(code) {
			return
		}
		c.loading = false
		if err != nil {
			c.message = model.AsEnvelope(err).Message
			return
		}
		c.result = &est
		c.message = ""
		if c.onFound != nil {
			c.onFound(est)
		}
	})
}

func (c *cnesLookup) clear() {
	c.debounce.Cancel()
	c.result = nil
	c.message = ""
	c.loading = false
}

// CNESState is the snapshot of a CNES lookup.
type CNESState struct {
	Result  *model.CNESEstablishment `json:"result,omitempty"`
	Message string                   `json:"message,omitempty"`
	Loading bool                     `json:"loading"`
}

func (c *cnesLookup) state() CNESState {
	return CNESState{Result: c.result, Message: c.message, Loading: c.loading}
}
