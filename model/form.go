package model

// FieldRule declares how a single form field is validated. Rules are
// immutable once loaded and are supplied per field by screen definitions.
type FieldRule struct {
	Required        bool   `yaml:"required" json:"required"`
	MinLength       int    `yaml:"min_length,omitempty" json:"min_length,omitempty"`
	Pattern         string `yaml:"pattern,omitempty" json:"pattern,omitempty"`
	MatchField      string `yaml:"match_field,omitempty" json:"match_field,omitempty"`
	Tag             string `yaml:"tag,omitempty" json:"tag,omitempty"`
	Mask            string `yaml:"mask,omitempty" json:"mask,omitempty"`
	Message         string `yaml:"message,omitempty" json:"message,omitempty"`
	RequiredMessage string `yaml:"required_message,omitempty" json:"required_message,omitempty"`
}

// RuleSet maps field names to their rules.
type RuleSet map[string]FieldRule

// FormSnapshot is the current value of every field of a form.
type FormSnapshot map[string]string

// Clone returns a copy of the snapshot.
func (s FormSnapshot) Clone() FormSnapshot {
	out := make(FormSnapshot, len(s))
	for k, v := range s {
		out[k] = v
	}
	return out
}

// FieldResult is the outcome of validating one field. Message is empty when
// the field is valid.
type FieldResult struct {
	Valid   bool   `json:"valid"`
	Message string `json:"message,omitempty"`
	Code    string `json:"code,omitempty"`
}

// Valid is the result for a field that passed every check.
var Valid = FieldResult{Valid: true}
