// Package wizard implements linear multi-step forms whose forward navigation
// is gated on the validity of each step.
package wizard

import (
	"context"
	"fmt"

	"github.com/pitabwire/callcenter/internal/validation"
	"github.com/pitabwire/callcenter/model"
)

// Gate is an extra condition a step must satisfy before it can be left. It
// returns nil when the condition holds.
type Gate func(form model.FormSnapshot) *model.FieldError

// Submitter receives the form of a completed wizard.
type Submitter interface {
	SubmitForm(ctx context.Context, form model.FormSnapshot) error
}

// SubmitterFunc adapts a function to Submitter.
type SubmitterFunc func(ctx context.Context, form model.FormSnapshot) error

// SubmitForm calls f(ctx, form).
func (f SubmitterFunc) SubmitForm(ctx context.Context, form model.FormSnapshot) error {
	return f(ctx, form)
}

// Wizard is a gated, linear multi-step form. It is owned by a single screen
// and is not safe for concurrent use.
type Wizard struct {
	steps     []model.StepDefinition
	rules     model.RuleSet
	validator *validation.Validator
	gates     map[string]Gate

	current   int
	initial   model.FormSnapshot
	form      model.FormSnapshot
	results   map[string]model.FieldResult
	submitted bool
}

// New creates a wizard positioned on step 1. Every gate named by a step must
// be present in gates.
func New(steps []model.StepDefinition, rules model.RuleSet, v *validation.Validator, gates map[string]Gate, initial model.FormSnapshot) (*Wizard, error) {
	if len(steps) == 0 {
		return nil, fmt.Errorf("wizard: at least one step is required")
	}
	for _, s := range steps {
		for _, g := range s.Gates {
			if gates[g] == nil {
				return nil, fmt.Errorf("wizard: step %q references unknown gate %q", s.ID, g)
			}
		}
	}
	if initial == nil {
		initial = model.FormSnapshot{}
	}
	w := &Wizard{
		steps:     steps,
		rules:     rules,
		validator: v,
		gates:     gates,
	}
	w.reset(initial)
	return w, nil
}

// Set stores a field value and returns its live validation result. Fields
// confirming this one (match_field) are re-validated when already filled.
func (w *Wizard) Set(field, value string) model.FieldResult {
	w.form[field] = value
	w.submitted = false
	res := w.validator.Validate(field, value, w.rules, w.form)
	w.results[field] = res

	for name, rule := range w.rules {
		if rule.MatchField == field && w.form[name] != "" {
			w.results[name] = w.validator.Check(rule, w.form[name], w.form)
		}
	}
	return res
}

// Value returns the current value of field.
func (w *Wizard) Value(field string) string {
	return w.form[field]
}

// Form returns a copy of the current form.
func (w *Wizard) Form() model.FormSnapshot {
	return w.form.Clone()
}

// Result returns the last validation result of field, if it was validated.
func (w *Wizard) Result(field string) (model.FieldResult, bool) {
	r, ok := w.results[field]
	return r, ok
}

// Current returns the 1-based current step.
func (w *Wizard) Current() int { return w.current }

// Step returns the definition of the current step.
func (w *Wizard) Step() model.StepDefinition { return w.steps[w.current-1] }

// IsLast reports whether the current step is the last one.
func (w *Wizard) IsLast() bool { return w.current == len(w.steps) }

// Advance moves to the next step when every rule-bearing field of the
// current step is valid and every gate passes. On failure the step does not
// change and a VALIDATION_ERROR listing the offending fields is returned.
func (w *Wizard) Advance() error {
	if w.IsLast() {
		return model.NewInvalidTransitionError("already on the last step")
	}
	if errs := w.checkStep(w.current); len(errs) > 0 {
		return model.NewValidationError(errs)
	}
	w.current++
	return nil
}

// Retreat moves to the previous step.
func (w *Wizard) Retreat() error {
	if w.current <= 1 {
		return model.NewInvalidTransitionError("already on the first step")
	}
	w.current--
	return nil
}

// PrepareSubmit re-validates every step from the last step and returns the
// form to submit. The wizard does not change state.
func (w *Wizard) PrepareSubmit() (model.FormSnapshot, error) {
	if !w.IsLast() {
		return nil, model.NewInvalidTransitionError("submit is only available on the last step")
	}
	var errs []model.FieldError
	for n := 1; n <= len(w.steps); n++ {
		errs = append(errs, w.checkStep(n)...)
	}
	if len(errs) > 0 {
		return nil, model.NewValidationError(errs)
	}
	return w.form.Clone(), nil
}

// MarkSubmitted records a successful submission.
func (w *Wizard) MarkSubmitted() { w.submitted = true }

// Submit validates the whole form and hands it to s.
func (w *Wizard) Submit(ctx context.Context, s Submitter) error {
	form, err := w.PrepareSubmit()
	if err != nil {
		return err
	}
	if err := s.SubmitForm(ctx, form); err != nil {
		return err
	}
	w.MarkSubmitted()
	return nil
}

// Reset returns to step 1 with the initial form.
func (w *Wizard) Reset() {
	w.reset(w.initial)
}

// State returns the externally visible state.
func (w *Wizard) State() model.WizardState {
	validity := make(map[string]bool, len(w.results))
	for field, r := range w.results {
		validity[field] = r.Valid
	}
	return model.WizardState{
		CurrentStep:      w.current,
		TotalSteps:       len(w.steps),
		StepID:           w.Step().ID,
		PerFieldValidity: validity,
		Progress:         w.current * 100 / len(w.steps),
		FieldProgress:    w.FieldProgress(),
		Submitted:        w.submitted,
	}
}

// Steps summarizes every step for progress indicators.
func (w *Wizard) Steps() []model.StepSummary {
	out := make([]model.StepSummary, len(w.steps))
	for i, s := range w.steps {
		status := model.StepPending
		switch {
		case i+1 < w.current:
			status = model.StepCompleted
		case i+1 == w.current:
			status = model.StepCurrent
		}
		out[i] = model.StepSummary{Number: i + 1, ID: s.ID, Title: s.Title, Status: status}
	}
	return out
}

// FieldProgress returns the percentage of required fields, across all steps,
// that currently validate.
func (w *Wizard) FieldProgress() int {
	total, valid := 0, 0
	for _, s := range w.steps {
		for _, f := range s.Fields {
			rule, ok := w.rules[f]
			if !ok || !rule.Required {
				continue
			}
			total++
			if w.validator.Check(rule, w.form[f], w.form).Valid {
				valid++
			}
		}
	}
	if total == 0 {
		return 100
	}
	return valid * 100 / total
}

// checkStep validates the fields and gates of step n (1-based) and records
// the field results.
func (w *Wizard) checkStep(n int) []model.FieldError {
	step := w.steps[n-1]
	var errs []model.FieldError
	for _, f := range step.Fields {
		if _, ok := w.rules[f]; !ok {
			continue
		}
		res := w.validator.Validate(f, w.form[f], w.rules, w.form)
		w.results[f] = res
		if !res.Valid {
			errs = append(errs, model.FieldError{Field: f, Code: res.Code, Message: res.Message})
		}
	}
	for _, name := range step.Gates {
		if fe := w.gates[name](w.form); fe != nil {
			if fe.Code == "" {
				fe.Code = model.FieldGate
			}
			errs = append(errs, *fe)
		}
	}
	return errs
}

func (w *Wizard) reset(initial model.FormSnapshot) {
	w.initial = initial.Clone()
	w.form = initial.Clone()
	w.results = make(map[string]model.FieldResult)
	w.current = 1
	w.submitted = false
}
