package screen

import (
	"context"
	"slices"
	"strings"

	"go.uber.org/zap"

	"github.com/pitabwire/callcenter/internal/debounce"
	"github.com/pitabwire/callcenter/internal/lookup"
	"github.com/pitabwire/callcenter/internal/notify"
	"github.com/pitabwire/callcenter/internal/observability"
	"github.com/pitabwire/callcenter/internal/validation"
	"github.com/pitabwire/callcenter/internal/wizard"
	"github.com/pitabwire/callcenter/model"
)

// Wizard gates of the user creation screen.
const (
	gateUsernameAvailable = "username_available"
	gatePasswordStrength  = "password_strength"
)

// Gates lists the wizard gate names definitions may reference.
func Gates() []string {
	return []string{gateUsernameAvailable, gatePasswordStrength}
}

const (
	userManagementPath = "/accounts/usuarios/gerenciar/"

	msgUsernameTaken   = "Este nome de usuário já existe"
	msgEmailTaken      = "Este email já está em uso"
	msgUserCreateError = "Erro ao criar usuário. Verifique os dados."
	msgWeakPassword    = `Senha deve ser pelo menos "Boa" para continuar`
)

// passwordFields never leave the server in snapshots.
var passwordFields = []string{"password1", "password2"}

// userCreation is the three-step account wizard: identity, password and
// review. The username is checked for availability as it is typed.
type userCreation struct {
	env    *Env
	wiz    *wizard.Wizard
	submit submission

	errors      map[string]string
	general     string
	suggestions []string

	usernames *debounce.Debouncer
	checking  bool
	checked   string
	available *bool

	redirect string
}

func newUserCreation(env *Env, props Props) (Screen, error) {
	s := &userCreation{env: env, errors: make(map[string]string)}
	initial := env.Def.Defaults()
	for k, v := range props.Values {
		initial[k] = v
	}
	w, err := wizard.New(env.Def.Steps, env.Def.RuleSet(), env.Validator, map[string]wizard.Gate{
		gateUsernameAvailable: s.usernameGate,
		gatePasswordStrength:  passwordGate,
	}, initial)
	if err != nil {
		return nil, err
	}
	s.wiz = w
	if d, ok := env.LookupDebouncer("username", s.checkUsername); ok {
		s.usernames = d
	}
	s.suggest()
	return s, nil
}

// usernameGate blocks the identity step only when the typed username is
// known to be taken. A check still running does not block.
func (s *userCreation) usernameGate(form model.FormSnapshot) *model.FieldError {
	if s.available != nil && !*s.available && strings.TrimSpace(form["username"]) == s.checked {
		return &model.FieldError{Field: "username", Message: msgUsernameTaken}
	}
	return nil
}

func passwordGate(form model.FormSnapshot) *model.FieldError {
	if !validation.PasswordStrength(form["password1"]).Meets() {
		return &model.FieldError{Field: "password1", Message: msgWeakPassword}
	}
	return nil
}

func (s *userCreation) Handle(_ context.Context, ev Event) error {
	switch ev.Type {
	case EventInput:
		return s.input(ev.Field, ev.Value)
	case EventChoose:
		if ev.Field != "username" || !slices.Contains(s.suggestions, ev.Value) {
			return model.NewBadRequestError("sugestão de usuário inválida")
		}
		return s.input("username", ev.Value)
	case EventAdvance:
		s.show(s.wiz.Advance())
	case EventRetreat:
		if err := s.wiz.Retreat(); err != nil {
			return err
		}
	case EventSubmit:
		s.send()
	case EventReset:
		s.wiz.Reset()
		s.submit.reset()
		s.redirect = ""
		s.errors = make(map[string]string)
		s.general = ""
		s.resetUsername()
		s.suggest()
	default:
		return unknownEvent(s.env.Def.ID, ev)
	}
	return nil
}

func (s *userCreation) input(field, value string) error {
	if _, ok := s.env.Def.Field(field); !ok {
		return unknownField(field)
	}
	res := s.wiz.Set(field, value)
	s.general = ""
	s.record(field, res)
	for _, fd := range s.env.Def.Fields {
		if fd.MatchField == field && s.wiz.Value(fd.Name) != "" {
			if r, ok := s.wiz.Result(fd.Name); ok {
				s.record(fd.Name, r)
			}
		}
	}

	switch field {
	case "first_name", "last_name":
		s.suggest()
	case "username":
		s.resetUsername()
		if s.usernames != nil && res.Valid {
			s.usernames.OnInput(strings.TrimSpace(value))
		}
	}
	return nil
}

func (s *userCreation) record(field string, res model.FieldResult) {
	if res.Valid {
		delete(s.errors, field)
	} else {
		s.errors[field] = res.Message
	}
}

// show renders the field errors carried by err.
func (s *userCreation) show(err error) {
	if err == nil {
		return
	}
	env := model.AsEnvelope(err)
	if env.Code != model.ErrValidationError {
		s.general = env.Message
		return
	}
	for _, d := range env.Details {
		s.errors[d.Field] = d.Message
	}
	blocked(s.env)
}

func (s *userCreation) suggest() {
	s.suggestions = lookup.SuggestUsernames(s.wiz.Value("first_name"), s.wiz.Value("last_name"), s.env.Now().Year())
}

func (s *userCreation) resetUsername() {
	if s.usernames != nil {
		s.usernames.Cancel()
	}
	s.checking = false
	s.checked = ""
	s.available = nil
}

func (s *userCreation) checkUsername(username string) {
	if !s.usernames.IsCurrent(username) {
		return
	}
	s.checking = true
	run(s.env, func(ctx context.Context) (bool, error) {
		return s.env.Lookups.CheckUsername(ctx, username)
	}, func(ok bool, err error) {
		if !s.usernames.IsCurrent(username) {
			return
		}
		s.checking = false
		if err != nil {
			s.env.Logger.Debug("username check failed", zap.Error(err))
			return
		}
		s.checked = username
		s.available = &ok
		if !ok {
			s.errors["username"] = msgUsernameTaken
		}
	})
}

func (s *userCreation) send() {
	form, err := s.wiz.PrepareSubmit()
	if err != nil {
		s.show(err)
		return
	}
	account, err := model.NewUserAccount(form)
	if err != nil {
		s.show(err)
		return
	}
	s.env.Logger.Debug("submitting user account", zap.Any("form", observability.RedactForm(form)))
	s.submit.start(s.env, account, func(_ model.SubmitResult, err error) {
		if err != nil {
			s.rejected(err)
			return
		}
		s.wiz.MarkSubmitted()
		s.env.Notify(notify.LevelSuccess, "", "Usuário criado com sucesso!")
		s.redirect = userManagementPath
	})
}

// rejected maps a backend refusal onto the field it concerns.
func (s *userCreation) rejected(err error) {
	msg := model.AsEnvelope(err).Message
	switch {
	case strings.Contains(msg, "já existe"):
		s.errors["username"] = msgUsernameTaken
	case strings.Contains(strings.ToLower(msg), "email"):
		s.errors["email"] = msgEmailTaken
	default:
		s.general = msgUserCreateError
	}
	s.env.NotifyError("Erro ao criar usuário", err)
}

// UsernameState is the availability of the typed username.
type UsernameState struct {
	Checking  bool  `json:"checking"`
	Available *bool `json:"available,omitempty"`
}

// UserCreationState is the snapshot of the user creation wizard. Password
// values are never included.
type UserCreationState struct {
	Wizard      model.WizardState   `json:"wizard"`
	Steps       []model.StepSummary `json:"steps"`
	Values      map[string]string   `json:"values"`
	Errors      map[string]string   `json:"errors"`
	Error       string              `json:"error,omitempty"`
	Strength    validation.Strength `json:"strength"`
	Username    UsernameState       `json:"username"`
	Suggestions []string            `json:"suggestions,omitempty"`
	Submit      SubmitState         `json:"submit"`
	Redirect    string              `json:"redirect,omitempty"`
}

func (s *userCreation) Snapshot() any {
	values := s.wiz.Form()
	for _, f := range passwordFields {
		delete(values, f)
	}
	st := UserCreationState{
		Wizard:      s.wiz.State(),
		Steps:       s.wiz.Steps(),
		Values:      values,
		Errors:      make(map[string]string, len(s.errors)),
		Error:       s.general,
		Strength:    validation.PasswordStrength(s.wiz.Value("password1")),
		Suggestions: s.suggestions,
		Submit:      s.submit.state(),
		Redirect:    s.redirect,
	}
	for k, v := range s.errors {
		st.Errors[k] = v
	}
	st.Username.Checking = s.checking
	if s.available != nil {
		v := *s.available
		st.Username.Available = &v
	}
	return st
}
