package screen

import (
	"context"

	"github.com/pitabwire/callcenter/internal/notify"
	"github.com/pitabwire/callcenter/model"
)

// Submission outcomes recorded in metrics.
const (
	outcomeSuccess = "success"
	outcomeError   = "error"
)

// invalidFormMessage is shown when a submission is blocked by validation.
const invalidFormMessage = "Por favor, corrija os campos destacados."

// submission tracks the in-flight submit of a form screen. A reset bumps gen
// so that the reply of a submission started before it is dropped.
type submission struct {
	inFlight bool
	message  string
	gen      uint64
}

// start posts payload to the screen's submit target off the loop. It reports
// false when a submission is already running. then is skipped when the form
// was reset before the reply arrived.
func (s *submission) start(e *Env, payload any, then func(model.SubmitResult, error)) bool {
	if s.inFlight {
		return false
	}
	if e.Def.Submit == nil {
		then(model.SubmitResult{}, model.NewInternalError())
		return true
	}
	s.inFlight = true
	gen := s.gen
	target := *e.Def.Submit
	run(e, func(ctx context.Context) (model.SubmitResult, error) {
		return e.Backend.Submit(ctx, target, payload)
	}, func(res model.SubmitResult, err error) {
		if gen != s.gen {
			return
		}
		s.inFlight = false
		outcome := outcomeSuccess
		if err != nil {
			outcome = outcomeError
			s.message = model.AsEnvelope(err).Message
		} else {
			s.message = ""
		}
		e.Metrics.RecordSubmission(e.Def.ID, outcome)
		then(res, err)
	})
	return true
}

// reset forgets the running submission, if any, and its last error.
func (s *submission) reset() {
	s.gen++
	s.inFlight = false
	s.message = ""
}

// blocked reports a submission stopped by field validation.
func blocked(e *Env) {
	e.Metrics.RecordValidationFailure(e.Def.ID)
	e.Notify(notify.LevelWarning, "", invalidFormMessage)
}

// SubmitState is the snapshot of a submission.
type SubmitState struct {
	Submitting bool   `json:"submitting"`
	Error      string `json:"error,omitempty"`
}

func (s *submission) state() SubmitState {
	return SubmitState{Submitting: s.inFlight, Error: s.message}
}
