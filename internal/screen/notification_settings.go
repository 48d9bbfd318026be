package screen

import (
	"context"

	"github.com/pitabwire/callcenter/internal/notify"
	"github.com/pitabwire/callcenter/model"
)

// notificationSettings edits the operator's notification preferences.
type notificationSettings struct {
	env    *Env
	form   *form
	submit submission
	saved  bool
}

func newNotificationSettings(env *Env, props Props) (Screen, error) {
	initial := model.DefaultNotificationPreferences().Snapshot()
	for k, v := range props.Values {
		initial[k] = v
	}
	return &notificationSettings{env: env, form: newForm(env.Def, env.Validator, initial)}, nil
}

func (s *notificationSettings) Handle(_ context.Context, ev Event) error {
	switch ev.Type {
	case EventInput:
		s.saved = false
		_, err := s.form.set(ev.Field, ev.Value)
		return err
	case EventSubmit:
		s.save()
	case EventReset:
		s.form.reset()
		s.submit.reset()
		s.saved = false
	default:
		return unknownEvent(s.env.Def.ID, ev)
	}
	return nil
}

func (s *notificationSettings) save() {
	if errs := s.form.validate(); len(errs) > 0 {
		blocked(s.env)
		return
	}
	prefs, err := model.NewNotificationPreferences(s.form.values)
	if err != nil {
		s.form.applyErrors(err)
		blocked(s.env)
		return
	}
	s.submit.start(s.env, prefs, func(_ model.SubmitResult, err error) {
		if err != nil {
			s.env.NotifyError("Erro ao salvar configurações", err)
			return
		}
		s.saved = true
		s.env.Notify(notify.LevelSuccess, "", "Configurações salvas com sucesso!")
	})
}

// NotificationSettingsState is the snapshot of the notification settings
// screen.
type NotificationSettingsState struct {
	FormState
	Saved  bool        `json:"saved"`
	Submit SubmitState `json:"submit"`
}

func (s *notificationSettings) Snapshot() any {
	return NotificationSettingsState{FormState: s.form.state(), Saved: s.saved, Submit: s.submit.state()}
}
