package screen

import (
	"maps"

	"github.com/pitabwire/callcenter/internal/mask"
	"github.com/pitabwire/callcenter/internal/validation"
	"github.com/pitabwire/callcenter/model"
)

// form holds the values of a flat form, masks them as they are typed and
// keeps the live validation result of every touched field.
type form struct {
	def       model.ScreenDefinition
	rules     model.RuleSet
	validator *validation.Validator
	initial   model.FormSnapshot
	values    model.FormSnapshot
	errors    map[string]string
}

func newForm(def model.ScreenDefinition, v *validation.Validator, initial model.FormSnapshot) *form {
	f := &form{def: def, rules: def.RuleSet(), validator: v}
	f.initial = def.Defaults()
	maps.Copy(f.initial, initial)
	f.reset()
	return f
}

// FormState is the snapshot of a flat form.
type FormState struct {
	Values map[string]string `json:"values"`
	Errors map[string]string `json:"errors"`
}

func (f *form) state() FormState {
	return FormState{Values: f.values.Clone(), Errors: maps.Clone(f.errors)}
}

func (f *form) get(field string) string { return f.values[field] }

// set masks and stores value, then validates it. Unknown fields are
// rejected.
func (f *form) set(field, value string) (model.FieldResult, error) {
	fd, ok := f.def.Field(field)
	if !ok {
		return model.FieldResult{}, unknownField(field)
	}
	if m, ok := mask.ForKind(fd.Mask); ok {
		value = m.Mask(value)
	}
	f.values[field] = value
	res := f.check(field)

	for name, rule := range f.rules {
		if rule.MatchField == field && f.values[name] != "" {
			f.check(name)
		}
	}
	return res, nil
}

// fill stores value without validating it, for values that came from a
// lookup rather than from the operator.
func (f *form) fill(field, value string) {
	if fd, ok := f.def.Field(field); ok {
		if m, ok := mask.ForKind(fd.Mask); ok {
			value = m.Mask(value)
		}
		f.values[field] = value
		delete(f.errors, field)
	}
}

func (f *form) check(field string) model.FieldResult {
	res := f.validator.Validate(field, f.values[field], f.rules, f.values)
	if res.Valid {
		delete(f.errors, field)
	} else {
		f.errors[field] = res.Message
	}
	return res
}

// validate checks every field with a rule and returns the failures in
// definition order.
func (f *form) validate() []model.FieldError {
	results := f.validator.ValidateAll(f.rules, f.values)
	var errs []model.FieldError
	for _, fd := range f.def.Fields {
		res, ok := results[fd.Name]
		if !ok {
			continue
		}
		if res.Valid {
			delete(f.errors, fd.Name)
			continue
		}
		f.errors[fd.Name] = res.Message
		errs = append(errs, model.FieldError{Field: fd.Name, Code: res.Code, Message: res.Message})
	}
	return errs
}

// applyErrors records field errors reported by an entity constructor.
func (f *form) applyErrors(err error) bool {
	env := model.AsEnvelope(err)
	if env.Code != model.ErrValidationError || len(env.Details) == 0 {
		return false
	}
	for _, d := range env.Details {
		f.errors[d.Field] = d.Message
	}
	return true
}

func (f *form) setError(field, message string) {
	f.errors[field] = message
}

func (f *form) reset() {
	f.values = f.initial.Clone()
	f.errors = make(map[string]string)
}
