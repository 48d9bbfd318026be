package definition

import (
	"errors"
	"fmt"

	"go.uber.org/zap"

	"github.com/pitabwire/callcenter/internal/observability"
	"github.com/pitabwire/callcenter/model"
)

// Reloader loads, validates and publishes definitions into a Registry. A
// load that fails validation leaves the registry untouched.
type Reloader struct {
	Loader      *Loader
	Validator   *Validator
	Registry    *Registry
	Directories []string
	Logger      *zap.Logger
	Metrics     *observability.Metrics
}

// Load reads and validates every definition without publishing them.
func (r *Reloader) Load() ([]model.ScreenDefinition, error) {
	defs, err := r.Loader.Load(r.Directories)
	if err != nil {
		return nil, err
	}
	if verrs := r.Validator.Validate(defs); len(verrs) > 0 {
		joined := make([]error, len(verrs))
		for i, ve := range verrs {
			r.logger().Error("definition validation error", zap.String("error", ve.Error()))
			joined[i] = ve
		}
		return nil, fmt.Errorf("%d definition errors: %w", len(verrs), errors.Join(joined...))
	}
	return defs, nil
}

// Reload loads the definitions and swaps them into the registry.
func (r *Reloader) Reload() error {
	defs, err := r.Load()
	if err != nil {
		return err
	}
	changed := r.Registry.Publish(defs)
	r.Metrics.SetDefinitionsLoaded(float64(len(defs)))
	if !changed {
		r.logger().Debug("definitions unchanged", zap.String("checksum", r.Registry.Checksum()))
		return nil
	}
	r.logger().Info("definitions loaded",
		zap.Strings("screens", r.Registry.IDs()),
		zap.String("checksum", r.Registry.Checksum()),
	)
	return nil
}

func (r *Reloader) logger() *zap.Logger {
	if r.Logger == nil {
		return zap.NewNop()
	}
	return r.Logger
}
