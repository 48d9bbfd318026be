// Package validation checks individual form fields against declarative
// rules. Validation failures are values, never errors: every call returns a
// model.FieldResult.
package validation

import (
	"fmt"
	"regexp"
	"sort"
	"strings"
	"sync"
	"unicode/utf8"

	"github.com/go-playground/validator/v10"

	"github.com/pitabwire/callcenter/model"
)

// Common patterns referenced by screen definitions.
const (
	PatternPhone = `^\(\d{2}\)\s\d{4,5}-\d{4}$`
	PatternEmail = `^[^\s@]+@[^\s@]+\.[^\s@]+$`
	PatternCNES  = `^\d{7}$`
)

// Default messages, used when a rule does not carry its own.
const (
	msgRequired  = "Este campo é obrigatório"
	msgPattern   = "Formato inválido"
	msgMismatch  = "Os valores não coincidem"
	msgInvalid   = "Valor inválido"
	msgMinLength = "Deve ter pelo menos %d caracteres"
)

// Validator validates fields against a RuleSet. It is safe for concurrent
// use; compiled patterns are cached for the lifetime of the Validator.
type Validator struct {
	tags *validator.Validate

	mu       sync.RWMutex
	patterns map[string]*regexp.Regexp
}

// New creates a Validator. Tag rules are checked with the shared entity
// validator so definitions may use the domain tags (br_phone, cnes, clock).
func New() *Validator {
	return &Validator{
		tags:     model.EntityValidator(),
		patterns: make(map[string]*regexp.Regexp),
	}
}

// Validate checks value against the rule declared for field. Fields without a
// rule are valid.
func (v *Validator) Validate(field, value string, rules model.RuleSet, snapshot model.FormSnapshot) model.FieldResult {
	rule, ok := rules[field]
	if !ok {
		return model.Valid
	}
	return v.Check(rule, value, snapshot)
}

// Check applies one rule. Checks run in order: required, min length, pattern,
// tag, match field. An empty optional value skips every check.
func (v *Validator) Check(rule model.FieldRule, value string, snapshot model.FormSnapshot) model.FieldResult {
	if strings.TrimSpace(value) == "" {
		if rule.Required {
			return failure(model.FieldRequired, firstNonEmpty(rule.RequiredMessage, rule.Message, msgRequired))
		}
		return model.Valid
	}

	if rule.MinLength > 0 && utf8.RuneCountInString(strings.TrimSpace(value)) < rule.MinLength {
		return failure(model.FieldMinLength, firstNonEmpty(rule.Message, fmt.Sprintf(msgMinLength, rule.MinLength)))
	}

	if rule.Pattern != "" {
		re, err := v.compile(rule.Pattern)
		if err != nil || !re.MatchString(value) {
			return failure(model.FieldPattern, firstNonEmpty(rule.Message, msgPattern))
		}
	}

	if rule.Tag != "" && !v.tagValid(rule.Tag, value) {
		return failure(model.FieldFormat, firstNonEmpty(rule.Message, msgInvalid))
	}

	if rule.MatchField != "" && value != snapshot[rule.MatchField] {
		return failure(model.FieldMismatch, firstNonEmpty(rule.Message, msgMismatch))
	}

	return model.Valid
}

// ValidateAll validates every field that has a rule and returns the results
// keyed by field name.
func (v *Validator) ValidateAll(rules model.RuleSet, snapshot model.FormSnapshot) map[string]model.FieldResult {
	results := make(map[string]model.FieldResult, len(rules))
	for field, rule := range rules {
		results[field] = v.Check(rule, snapshot[field], snapshot)
	}
	return results
}

// FieldErrors converts the invalid results into field errors sorted by
// field name.
func FieldErrors(results map[string]model.FieldResult) []model.FieldError {
	var errs []model.FieldError
	for field, r := range results {
		if r.Valid {
			continue
		}
		errs = append(errs, model.FieldError{Field: field, Code: r.Code, Message: r.Message})
	}
	sort.Slice(errs, func(i, j int) bool { return errs[i].Field < errs[j].Field })
	return errs
}

// AllValid reports whether every result is valid.
func AllValid(results map[string]model.FieldResult) bool {
	for _, r := range results {
		if !r.Valid {
			return false
		}
	}
	return true
}

// compile returns the cached compiled form of pattern.
func (v *Validator) compile(pattern string) (*regexp.Regexp, error) {
	v.mu.RLock()
	re, ok := v.patterns[pattern]
	v.mu.RUnlock()
	if ok {
		return re, nil
	}

	re, err := regexp.Compile(pattern)
	if err != nil {
		return nil, err
	}

	v.mu.Lock()
	v.patterns[pattern] = re
	v.mu.Unlock()
	return re, nil
}

// tagValid runs a validator tag against value. A malformed tag panics inside
// go-playground/validator; it is treated as a failed check.
func (v *Validator) tagValid(tag, value string) (ok bool) {
	defer func() {
		if recover() != nil {
			ok = false
		}
	}()
	return v.tags.Var(value, tag) == nil
}

func failure(code, message string) model.FieldResult {
	return model.FieldResult{Valid: false, Code: code, Message: message}
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}
