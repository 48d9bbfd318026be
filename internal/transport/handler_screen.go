package transport

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"

	"github.com/pitabwire/callcenter/internal/observability"
	"github.com/pitabwire/callcenter/internal/screen"
	"github.com/pitabwire/callcenter/model"
)

// maxBodyBytes bounds mount and event request bodies.
const maxBodyBytes = 1 << 20

// Screens is the screen session API served over HTTP.
type Screens interface {
	Mount(ctx context.Context, kind string, props screen.Props) (screen.View, error)
	Dispatch(ctx context.Context, id string, ev screen.Event) (screen.View, error)
	View(ctx context.Context, id string) (screen.View, error)
	Unmount(id string) error
}

// mountRequest is the body of POST /ui/screens/{kind}. An empty body mounts
// with no props.
type mountRequest struct {
	Props screen.Props `json:"props"`
}

var requestValidator = validator.New(validator.WithRequiredStructEnabled())

func handleMount(screens Screens, logger *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req mountRequest
		if err := decodeBody(w, r, &req, true); err != nil {
			WriteRequestError(w, r, err)
			return
		}
		kind := chi.URLParam(r, "kind")

		view, err := screens.Mount(r.Context(), kind, req.Props)
		if err != nil {
			logFailure(r, logger, "screen mount failed", err, zap.String("screen", kind))
			WriteRequestError(w, r, err)
			return
		}
		observability.RequestLogger(r.Context(), logger).Info("screen mounted",
			zap.String("screen", kind),
			zap.String("screen_id", view.ID),
		)
		WriteData(w, http.StatusCreated, view)
	}
}

func handleEvent(screens Screens, logger *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var ev screen.Event
		if err := decodeBody(w, r, &ev, false); err != nil {
			WriteRequestError(w, r, err)
			return
		}
		if err := requestValidator.Struct(ev); err != nil {
			WriteRequestError(w, r, validationEnvelope(err))
			return
		}
		id := chi.URLParam(r, "id")

		view, err := screens.Dispatch(r.Context(), id, ev)
		if err != nil {
			logFailure(r, logger, "screen event rejected", err,
				zap.String("screen_id", id),
				zap.String("event", ev.Type),
			)
			WriteRequestError(w, r, err)
			return
		}
		WriteData(w, http.StatusOK, view)
	}
}

func handleView(screens Screens) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		view, err := screens.View(r.Context(), chi.URLParam(r, "id"))
		if err != nil {
			WriteRequestError(w, r, err)
			return
		}
		WriteData(w, http.StatusOK, view)
	}
}

func handleUnmount(screens Screens, logger *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id := chi.URLParam(r, "id")
		if err := screens.Unmount(id); err != nil {
			WriteRequestError(w, r, err)
			return
		}
		observability.RequestLogger(r.Context(), logger).Info("screen unmounted", zap.String("screen_id", id))
		w.WriteHeader(http.StatusNoContent)
	}
}

// decodeBody decodes a JSON request body into dst. Unknown fields are
// rejected.
func decodeBody(w http.ResponseWriter, r *http.Request, dst any, allowEmpty bool) error {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	dec.DisallowUnknownFields()
	err := dec.Decode(dst)
	switch {
	case err == nil:
		return nil
	case errors.Is(err, io.EOF) && allowEmpty:
		return nil
	case errors.Is(err, io.EOF):
		return model.NewBadRequestError("request body is required")
	}
	var tooLarge *http.MaxBytesError
	if errors.As(err, &tooLarge) {
		return model.NewBadRequestError("request body too large")
	}
	return model.NewBadRequestError("invalid JSON body: " + err.Error())
}

// validationEnvelope converts validator errors into a VALIDATION_ERROR.
func validationEnvelope(err error) error {
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return model.NewBadRequestError(err.Error())
	}
	details := make([]model.FieldError, 0, len(verrs))
	for _, fe := range verrs {
		details = append(details, model.FieldError{
			Field:   strings.ToLower(fe.Field()),
			Code:    model.FieldRequired,
			Message: "Campo obrigatório",
		})
	}
	return model.NewValidationError(details)
}

// logFailure logs server-side failures at error level and client mistakes
// at debug level.
func logFailure(r *http.Request, logger *zap.Logger, msg string, err error, fields ...zap.Field) {
	log := observability.RequestLogger(r.Context(), logger)
	fields = append(fields, zap.Error(err))
	if StatusFor(model.AsEnvelope(err).Code) >= http.StatusInternalServerError {
		log.Error(msg, fields...)
		return
	}
	log.Debug(msg, fields...)
}
