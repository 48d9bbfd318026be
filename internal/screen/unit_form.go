package screen

import (
	"context"

	"go.uber.org/zap"

	"github.com/pitabwire/callcenter/internal/mask"
	"github.com/pitabwire/callcenter/internal/notify"
	"github.com/pitabwire/callcenter/model"
)

// unitDirectoryPath is where the client goes after a unit is created.
const unitDirectoryPath = "/accounts/unidades-saude/"

// unitPhoneFields hold phone numbers that must have 10 or 11 digits.
var unitPhoneFields = []string{"telefone", "contato_telefonico"}

// unitForm registers a new health unit. A complete CNES code fills the
// name, municipio, address and phone from the national registry.
type unitForm struct {
	env    *Env
	form   *form
	cities *autocomplete
	cnes   *cnesLookup
	submit submission

	redirect string
}

func newUnitForm(env *Env, props Props) (Screen, error) {
	s := &unitForm{
		env:    env,
		form:   newForm(env.Def, env.Validator, props.Values),
		cities: newAutocomplete(env, "municipio"),
	}
	s.cnes = newCNESLookup(env, "cnes", s.applyCNES)
	return s, nil
}

func (s *unitForm) Handle(_ context.Context, ev Event) error {
	switch ev.Type {
	case EventInput:
		if _, err := s.form.set(ev.Field, ev.Value); err != nil {
			return err
		}
		switch ev.Field {
		case "cnes":
			if s.cnes != nil {
				s.cnes.input(s.form.get("cnes"))
			}
		case "municipio":
			if s.cities != nil {
				s.cities.input(Event{Value: s.form.get("municipio"), Anchor: ev.Anchor, Viewport: ev.Viewport})
			}
		}
	case EventChoose:
		if ev.Field != "municipio" {
			return unknownField(ev.Field)
		}
		if s.cities == nil || !s.cities.choose(ev.Value) {
			return model.NewBadRequestError("município não foi sugerido")
		}
		_, err := s.form.set("municipio", ev.Value)
		return err
	case EventSubmit:
		s.send()
	case EventReset:
		s.form.reset()
		s.submit.reset()
		s.redirect = ""
		if s.cnes != nil {
			s.cnes.clear()
		}
		if s.cities != nil {
			s.cities.clear()
		}
		s.env.Notify(notify.LevelInfo, "", "Formulário limpo com sucesso")
	default:
		return unknownEvent(s.env.Def.ID, ev)
	}
	return nil
}

// applyCNES copies registry data over the form. Empty registry values keep
// what the operator typed.
func (s *unitForm) applyCNES(est model.CNESEstablishment) {
	for field, value := range map[string]string{
		"nome":      est.Nome,
		"municipio": est.Municipio,
		"endereco":  est.Endereco,
		"telefone":  est.Telefone,
		"email":     est.Email,
	} {
		if value != "" {
			s.form.fill(field, value)
		}
	}
	s.env.Notify(notify.LevelSuccess, "", "CNES consultado com sucesso! Dados preenchidos automaticamente.")
}

func (s *unitForm) send() {
	errs := s.form.validate()
	s.logRejectedPhones()
	if len(errs) > 0 {
		blocked(s.env)
		return
	}
	unit, err := model.NewHealthUnit(s.form.values, s.env.Now())
	if err != nil {
		s.form.applyErrors(err)
		blocked(s.env)
		return
	}
	s.submit.start(s.env, unit, func(_ model.SubmitResult, err error) {
		if err != nil {
			s.env.NotifyError("Erro ao criar unidade", err)
			return
		}
		s.env.Notify(notify.LevelSuccess, "", "Unidade criada com sucesso!")
		s.redirect = unitDirectoryPath
	})
}

// logRejectedPhones logs phone numbers refused for their digit count.
func (s *unitForm) logRejectedPhones() {
	for _, field := range unitPhoneFields {
		value := s.form.get(field)
		if value == "" {
			continue
		}
		if n := len(mask.Digits(value)); n != 10 && n != 11 {
			s.env.Logger.Warn("unit phone rejected",
				zap.String("field", field),
				zap.Int("digits", n),
			)
		}
	}
}

// UnitFormState is the snapshot of the unit creation screen.
type UnitFormState struct {
	FormState
	Municipios *AutocompleteState `json:"municipios,omitempty"`
	CNES       *CNESState         `json:"cnes,omitempty"`
	Submit     SubmitState        `json:"submit"`
	Redirect   string             `json:"redirect,omitempty"`
}

func (s *unitForm) Snapshot() any {
	st := UnitFormState{
		FormState: s.form.state(),
		Submit:    s.submit.state(),
		Redirect:  s.redirect,
	}
	if s.cities != nil {
		a := s.cities.state()
		st.Municipios = &a
	}
	if s.cnes != nil {
		c := s.cnes.state()
		st.CNES = &c
	}
	return st
}
