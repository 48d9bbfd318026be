package definition

import (
	"fmt"
	"regexp"
	"strings"

	"github.com/pitabwire/callcenter/internal/mask"
	"github.com/pitabwire/callcenter/model"
)

// VError describes a single validation error in a definition.
type VError struct {
	Path    string `json:"path"`
	Code    string `json:"code"`
	Message string `json:"message"`
}

func (e VError) Error() string {
	return fmt.Sprintf("%s: %s", e.Path, e.Message)
}

// Validator validates definitions structurally and referentially.
type Validator struct {
	gates map[string]bool
}

// NewValidator creates a new Validator. When gates are given, wizard steps
// may only reference those gate names.
func NewValidator(gates ...string) *Validator {
	v := &Validator{}
	if len(gates) > 0 {
		v.gates = make(map[string]bool, len(gates))
		for _, g := range gates {
			v.gates[g] = true
		}
	}
	return v
}

var validKinds = map[string]bool{
	model.ScreenKindForm:   true,
	model.ScreenKindList:   true,
	model.ScreenKindWizard: true,
	model.ScreenKindReport: true,
}

var validLookupSources = map[string]bool{
	model.LookupMunicipios: true,
	model.LookupCNES:       true,
	model.LookupUsername:   true,
	model.LookupSearch:     true,
}

var validExportFormats = map[string]bool{
	"pdf": true, "excel": true, "csv": true,
}

// Validate checks all definitions.
func (v *Validator) Validate(defs []model.ScreenDefinition) []VError {
	var errs []VError
	seen := make(map[string]string, len(defs))
	for i, def := range defs {
		prefix := fmt.Sprintf("screens[%d]", i)
		if def.ID != "" {
			if other, dup := seen[def.ID]; dup {
				errs = append(errs, VError{
					Path:    prefix + ".id",
					Code:    "DUPLICATE",
					Message: fmt.Sprintf("screen %q is also defined in %s", def.ID, other),
				})
			}
			seen[def.ID] = def.SourceFile
		}
		errs = append(errs, v.validateScreen(prefix, def)...)
	}
	return errs
}

func (v *Validator) validateScreen(prefix string, def model.ScreenDefinition) []VError {
	var errs []VError

	if def.ID == "" {
		errs = append(errs, VError{Path: prefix + ".id", Code: "REQUIRED", Message: "id is required"})
	}
	if !validKinds[def.Kind] {
		errs = append(errs, VError{
			Path:    prefix + ".kind",
			Code:    "INVALID_VALUE",
			Message: fmt.Sprintf("kind %q must be one of form, list, wizard, report", def.Kind),
		})
	}

	fields := make(map[string]bool, len(def.Fields))
	for i, f := range def.Fields {
		fp := fmt.Sprintf("%s.fields[%d]", prefix, i)
		if f.Name == "" {
			errs = append(errs, VError{Path: fp + ".name", Code: "REQUIRED", Message: "field name is required"})
			continue
		}
		if fields[f.Name] {
			errs = append(errs, VError{Path: fp + ".name", Code: "DUPLICATE", Message: fmt.Sprintf("field %q is declared twice", f.Name)})
		}
		fields[f.Name] = true
	}
	for i, f := range def.Fields {
		errs = append(errs, v.validateField(fmt.Sprintf("%s.fields[%d]", prefix, i), f, fields)...)
	}

	switch def.Kind {
	case model.ScreenKindWizard:
		errs = append(errs, v.validateSteps(prefix, def.Steps, fields)...)
	case model.ScreenKindList:
		if def.List == nil {
			errs = append(errs, VError{Path: prefix + ".list", Code: "REQUIRED", Message: "list screens require a list section"})
		} else if len(def.List.SearchFields) == 0 {
			errs = append(errs, VError{Path: prefix + ".list.search_fields", Code: "REQUIRED", Message: "at least one search field is required"})
		}
	case model.ScreenKindReport:
		errs = append(errs, validateReport(prefix+".report", def.Report)...)
	}
	if def.List != nil {
		errs = append(errs, validateList(prefix+".list", *def.List)...)
	}

	for name, l := range def.Lookups {
		lp := fmt.Sprintf("%s.lookups.%s", prefix, name)
		if !fields[name] && l.Source != model.LookupSearch {
			errs = append(errs, VError{Path: lp, Code: "UNKNOWN_FIELD", Message: fmt.Sprintf("lookup is bound to unknown field %q", name)})
		}
		if !validLookupSources[l.Source] {
			errs = append(errs, VError{Path: lp + ".source", Code: "INVALID_VALUE", Message: fmt.Sprintf("unknown lookup source %q", l.Source)})
		}
		if l.MinLength < 0 || l.QuietPeriod < 0 {
			errs = append(errs, VError{Path: lp, Code: "INVALID_VALUE", Message: "min_length and quiet_period must not be negative"})
		}
	}

	if def.Submit != nil {
		sp := prefix + ".submit"
		if !strings.HasPrefix(def.Submit.Path, "/") {
			errs = append(errs, VError{Path: sp + ".path", Code: "INVALID_VALUE", Message: "submit path must start with /"})
		}
		if def.Submit.Encoding != model.EncodingJSON && def.Submit.Encoding != model.EncodingForm {
			errs = append(errs, VError{Path: sp + ".encoding", Code: "INVALID_VALUE", Message: fmt.Sprintf("encoding %q must be json or form", def.Submit.Encoding)})
		}
	}

	for format, url := range def.Exports {
		ep := fmt.Sprintf("%s.exports.%s", prefix, format)
		if !validExportFormats[format] {
			errs = append(errs, VError{Path: ep, Code: "INVALID_VALUE", Message: fmt.Sprintf("export format %q must be pdf, excel or csv", format)})
		}
		if url == "" {
			errs = append(errs, VError{Path: ep, Code: "REQUIRED", Message: "export url is required"})
		}
	}

	return errs
}

func (v *Validator) validateField(prefix string, f model.FieldDefinition, fields map[string]bool) []VError {
	var errs []VError

	if f.Pattern != "" {
		if _, err := regexp.Compile(f.Pattern); err != nil {
			errs = append(errs, VError{Path: prefix + ".pattern", Code: "INVALID_PATTERN", Message: err.Error()})
		}
	}
	if f.MatchField != "" {
		switch {
		case f.MatchField == f.Name:
			errs = append(errs, VError{Path: prefix + ".match_field", Code: "INVALID_VALUE", Message: "a field cannot confirm itself"})
		case !fields[f.MatchField]:
			errs = append(errs, VError{Path: prefix + ".match_field", Code: "UNKNOWN_FIELD", Message: fmt.Sprintf("match_field references unknown field %q", f.MatchField)})
		}
	}
	if f.Mask != "" {
		if _, ok := mask.ForKind(f.Mask); !ok {
			errs = append(errs, VError{Path: prefix + ".mask", Code: "INVALID_VALUE", Message: fmt.Sprintf("unknown mask %q", f.Mask)})
		}
	}
	if f.Tag != "" && !tagDefined(f.Tag) {
		errs = append(errs, VError{Path: prefix + ".tag", Code: "INVALID_TAG", Message: fmt.Sprintf("unknown validation tag %q", f.Tag)})
	}
	if f.MinLength < 0 {
		errs = append(errs, VError{Path: prefix + ".min_length", Code: "INVALID_VALUE", Message: "min_length must not be negative"})
	}
	if f.Default != "" && len(f.Options) > 0 {
		found := false
		for _, o := range f.Options {
			if o.Value == f.Default {
				found = true
				break
			}
		}
		if !found {
			errs = append(errs, VError{Path: prefix + ".default", Code: "INVALID_VALUE", Message: fmt.Sprintf("default %q is not one of the options", f.Default)})
		}
	}
	return errs
}

func (v *Validator) validateSteps(prefix string, steps []model.StepDefinition, fields map[string]bool) []VError {
	var errs []VError
	if len(steps) == 0 {
		return []VError{{Path: prefix + ".steps", Code: "REQUIRED", Message: "wizard screens require at least one step"}}
	}
	ids := make(map[string]bool, len(steps))
	for i, s := range steps {
		sp := fmt.Sprintf("%s.steps[%d]", prefix, i)
		if s.ID == "" {
			errs = append(errs, VError{Path: sp + ".id", Code: "REQUIRED", Message: "step id is required"})
		} else if ids[s.ID] {
			errs = append(errs, VError{Path: sp + ".id", Code: "DUPLICATE", Message: fmt.Sprintf("step %q is declared twice", s.ID)})
		}
		ids[s.ID] = true
		for _, f := range s.Fields {
			if !fields[f] {
				errs = append(errs, VError{Path: sp + ".fields", Code: "UNKNOWN_FIELD", Message: fmt.Sprintf("step references unknown field %q", f)})
			}
		}
		for _, g := range s.Gates {
			if v.gates != nil && !v.gates[g] {
				errs = append(errs, VError{Path: sp + ".gates", Code: "UNKNOWN_GATE", Message: fmt.Sprintf("step references unknown gate %q", g)})
			}
		}
	}
	return errs
}

func validateList(prefix string, l model.ListDefinition) []VError {
	var errs []VError
	if l.PageSize < 0 {
		errs = append(errs, VError{Path: prefix + ".page_size", Code: "INVALID_VALUE", Message: "page_size must not be negative"})
	}
	switch l.DefaultSort.Direction {
	case "", model.SortAsc, model.SortDesc:
	default:
		errs = append(errs, VError{Path: prefix + ".default_sort.direction", Code: "INVALID_VALUE", Message: fmt.Sprintf("direction %q must be asc or desc", l.DefaultSort.Direction)})
	}
	if l.DefaultSort.Direction != "" && l.DefaultSort.Field == "" {
		errs = append(errs, VError{Path: prefix + ".default_sort.field", Code: "REQUIRED", Message: "default_sort needs a field"})
	}
	for i, f := range append(append([]string{}, l.SearchFields...), l.ExactFilters...) {
		if f == "" || strings.Count(f, ".") > 1 {
			errs = append(errs, VError{Path: fmt.Sprintf("%s.fields[%d]", prefix, i), Code: "INVALID_VALUE", Message: fmt.Sprintf("field path %q must be a name or name.sub", f)})
		}
	}
	if l.SearchDebounce < 0 {
		errs = append(errs, VError{Path: prefix + ".search_debounce", Code: "INVALID_VALUE", Message: "search_debounce must not be negative"})
	}
	return errs
}

func validateReport(prefix string, r *model.ReportDefinition) []VError {
	if r == nil {
		return []VError{{Path: prefix, Code: "REQUIRED", Message: "report screens require a report section"}}
	}
	var errs []VError
	if len(r.StatsFields) == 0 {
		errs = append(errs, VError{Path: prefix + ".stats_fields", Code: "REQUIRED", Message: "at least one stats field is required"})
	}
	periods := make(map[string]bool, len(r.Periods))
	for i, p := range r.Periods {
		if _, err := model.ParsePeriod(p); err != nil {
			errs = append(errs, VError{Path: fmt.Sprintf("%s.periods[%d]", prefix, i), Code: "INVALID_VALUE", Message: err.Error()})
		}
		periods[p] = true
	}
	if r.DefaultPeriod != "" && !periods[r.DefaultPeriod] {
		errs = append(errs, VError{Path: prefix + ".default_period", Code: "INVALID_VALUE", Message: fmt.Sprintf("default period %q is not listed", r.DefaultPeriod)})
	}
	if len(r.Periods) > 0 && r.DateField == "" {
		errs = append(errs, VError{Path: prefix + ".date_field", Code: "REQUIRED", Message: "periods require a date_field"})
	}
	return errs
}

// tagDefined reports whether the shared entity validator accepts tag. An
// undefined tag makes go-playground/validator panic.
func tagDefined(tag string) (ok bool) {
	defer func() {
		if recover() != nil {
			ok = false
		}
	}()
	_ = model.EntityValidator().Var("", tag)
	return true
}
