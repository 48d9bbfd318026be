package screen

import (
	"context"
	"fmt"
	"slices"

	"github.com/pitabwire/callcenter/internal/notify"
	"github.com/pitabwire/callcenter/model"
)

// callRegistration records an incoming or outgoing call. The operator can
// verify the calling unit against the registry, look its CNES code up and
// pick the municipio from suggestions.
type callRegistration struct {
	env    *Env
	form   *form
	cities *autocomplete
	cnes   *cnesLookup
	submit submission

	verifyGen    uint64
	verifying    bool
	verification *model.UnitVerification
}

func newCallRegistration(env *Env, props Props) (Screen, error) {
	initial := model.FormSnapshot{}
	if op := env.Operator(); op != nil && op.OperatorName() != "" {
		initial["nome_atendente"] = op.OperatorName()
	}
	for k, v := range props.Values {
		initial[k] = v
	}
	s := &callRegistration{
		env:    env,
		form:   newForm(env.Def, env.Validator, initial),
		cities: newAutocomplete(env, "municipio"),
	}
	s.cnes = newCNESLookup(env, "cnes", nil)
	return s, nil
}

func (s *callRegistration) Handle(_ context.Context, ev Event) error {
	switch ev.Type {
	case EventInput:
		return s.input(ev)
	case EventVerifyUnit:
		s.verify()
	case EventChoose:
		return s.choose(ev)
	case EventSubmit:
		s.send()
	case EventReset:
		s.reset()
	default:
		return unknownEvent(s.env.Def.ID, ev)
	}
	return nil
}

func (s *callRegistration) input(ev Event) error {
	if _, err := s.form.set(ev.Field, ev.Value); err != nil {
		return err
	}
	switch ev.Field {
	case "unidade":
		s.verifyGen++
		s.verifying = false
		s.verification = nil
	case "municipio":
		if s.cities != nil {
			s.cities.input(Event{Value: s.form.get("municipio"), Anchor: ev.Anchor, Viewport: ev.Viewport})
		}
	case "cnes":
		if s.cnes != nil {
			s.cnes.input(s.form.get("cnes"))
		}
	}
	return nil
}

// verify checks the typed unit name against the registry. Only the answer to
// the latest request is applied.
func (s *callRegistration) verify() {
	name := s.form.get("unidade")
	if name == "" {
		s.form.setError("unidade", "Digite o nome da unidade primeiro")
		return
	}
	s.verifyGen++
	gen := s.verifyGen
	s.verifying = true
	run(s.env, func(ctx context.Context) (model.UnitVerification, error) {
		return s.env.Lookups.VerifyUnit(ctx, name)
	}, func(v model.UnitVerification, err error) {
		if gen != s.verifyGen {
			return
		}
		s.verifying = false
		if err != nil {
			s.env.NotifyError("Erro ao verificar unidade", err)
			return
		}
		s.verification = &v
		if !v.Found || v.Unit == nil {
			s.env.Notify(notify.LevelError, "", "Unidade não encontrada no sistema")
			return
		}
		s.fillIfSet("municipio", v.Unit.Municipio)
		s.fillIfSet("cnes", v.Unit.CNES)
		s.fillIfSet("contato_telefonico_cnes", v.Unit.Telefone)
		s.env.Notify(notify.LevelSuccess, "", fmt.Sprintf("Unidade %q encontrada no sistema!", v.Unit.Nome))
	})
}

// fillIfSet replaces field with value unless value is empty.
func (s *callRegistration) fillIfSet(field, value string) {
	if value != "" {
		s.form.fill(field, value)
	}
}

func (s *callRegistration) choose(ev Event) error {
	switch ev.Field {
	case "municipio":
		if s.cities == nil || !s.cities.choose(ev.Value) {
			return model.NewBadRequestError(fmt.Sprintf("município %q não foi sugerido", ev.Value))
		}
		_, err := s.form.set("municipio", ev.Value)
		return err
	case "unidade":
		if s.verification == nil || !slices.Contains(s.verification.Similar, ev.Value) {
			return model.NewBadRequestError(fmt.Sprintf("unidade %q não foi sugerida", ev.Value))
		}
		if _, err := s.form.set("unidade", ev.Value); err != nil {
			return err
		}
		s.verify()
		return nil
	case "cnes":
		if s.cnes == nil || s.cnes.result == nil {
			return model.NewBadRequestError("nenhum estabelecimento CNES para aplicar")
		}
		est := s.cnes.result
		s.fillIfSet("unidade", est.Nome)
		s.fillIfSet("municipio", est.Municipio)
		s.fillIfSet("contato_telefonico_cnes", est.Telefone)
		s.env.Notify(notify.LevelSuccess, "", "Dados do CNES aplicados ao formulário")
		return nil
	}
	return unknownField(ev.Field)
}

func (s *callRegistration) send() {
	if errs := s.form.validate(); len(errs) > 0 {
		blocked(s.env)
		return
	}
	rec, err := model.NewCallRecord(s.form.values, s.env.Now())
	if err != nil {
		s.form.applyErrors(err)
		blocked(s.env)
		return
	}
	s.submit.start(s.env, rec, func(_ model.SubmitResult, err error) {
		if err != nil {
			s.env.NotifyError("Erro ao registrar chamada", err)
			return
		}
		s.env.Notify(notify.LevelSuccess, "", "Chamada registrada com sucesso no sistema!")
		s.reset()
	})
}

func (s *callRegistration) reset() {
	s.form.reset()
	s.submit.reset()
	s.verifyGen++
	s.verifying = false
	s.verification = nil
	if s.cnes != nil {
		s.cnes.clear()
	}
	if s.cities != nil {
		s.cities.clear()
	}
}

// CallRegistrationState is the snapshot of the call registration screen.
type CallRegistrationState struct {
	FormState
	Verifying    bool                    `json:"verifying"`
	Verification *model.UnitVerification `json:"verification,omitempty"`
	Municipios   *AutocompleteState      `json:"municipios,omitempty"`
	CNES         *CNESState              `json:"cnes,omitempty"`
	Submit       SubmitState             `json:"submit"`
}

func (s *callRegistration) Snapshot() any {
	st := CallRegistrationState{
		FormState:    s.form.state(),
		Verifying:    s.verifying,
		Verification: s.verification,
		Submit:       s.submit.state(),
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
