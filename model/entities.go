package model

import (
	"errors"
	"reflect"
	"regexp"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
)

// Call statuses.
const (
	StatusReceived = "chamada_recebida"
	StatusPlaced   = "chamada_efetuada"
)

// Health unit types.
const (
	UnitExecutor          = "UNIDADE_EXECUTANTE"
	UnitRequester         = "UNIDADE_SOLICITANTE"
	UnitExecutorRequester = "EXECUTANTE_SOLICITANTE"
)

// CallTypes maps every accepted tipo_chamada value to its label.
var CallTypes = map[string]string{
	"outro_nao_especificado":      "Outro não especificado",
	"cadastro_profissional":       "Cadastro de profissional",
	"cadastro_unidade":            "Cadastro de Unidade",
	"cancelamento_solicitacao":    "Cancelamento de Solicitação",
	"capacidade_operacional":      "Capacidade operacional de unidade",
	"contato":                     "Contato",
	"contato_medico_regulador":    "Contato com Médico Regulador",
	"fluxo_funcionamento":         "Fluxo de funcionamento do sistema",
	"fluxo_processo_regulacao":    "Fluxo/processo de regulação",
	"insercao_unidade_perfil":     "Inserção de Unidade em perfil",
	"login_sistema_core":          "Login sistema CORE",
	"manuseio_uso_sistema":        "Manuseio/Uso do sistema",
	"municipio_sem_internet":      "Município sem internet",
	"pactuacao":                   "Pactuação",
	"psiquiatria":                 "Psiquiatria",
	"reset_senha_usuario":         "Reset de senha de usuário",
	"sistema_fora_ar":             "Sistema fora do ar",
	"sistema_lento":               "Sistema lento",
	"solicitacao_treinamento":     "Solicitação de treinamento",
	"suporte_ambulatorial":        "Suporte Ambulatorial",
	"suporte_mabulatorial_leitos": "Suporte ao módulo Ambulatorial e Leitos",
	"suporte_leitos":              "Suporte Leitos",
	"unidade_sem_internet":        "Unidade sem internet",
	"emergencia":                  "Emergência",
	"consulta":                    "Consulta",
	"informacao":                  "Informação",
	"reclamacao":                  "Reclamação",
	"outros":                      "Outros",
}

// CallStatuses maps every accepted status value to its label.
var CallStatuses = map[string]string{
	StatusReceived: "Chamada Recebida",
	StatusPlaced:   "Chamada Efetuada",
}

// UnitTypes maps every accepted health unit tipo to its label.
var UnitTypes = map[string]string{
	UnitExecutor:          "Unidade Executante",
	UnitRequester:         "Unidade Solicitante",
	UnitExecutorRequester: "Executante/Solicitante",
}

// CallRecord is a call registration ready to be submitted.
type CallRecord struct {
	Nome                  string    `json:"nome" validate:"required,min=3"`
	Telefone              string    `json:"telefone" validate:"required,br_phone"`
	Funcao                string    `json:"funcao"`
	Setor                 string    `json:"setor"`
	Unidade               string    `json:"unidade" validate:"required"`
	Municipio             string    `json:"municipio" validate:"required"`
	CNES                  string    `json:"cnes" validate:"omitempty,cnes"`
	ContatoTelefonicoCNES string    `json:"contato_telefonico_cnes" validate:"omitempty,br_phone"`
	TipoChamada           string    `json:"tipo_chamada" validate:"required,call_type"`
	Status                string    `json:"status" validate:"required,oneof=chamada_recebida chamada_efetuada"`
	NomeAtendente         string    `json:"nome_atendente" validate:"required,min=3"`
	Descricao             string    `json:"descricao" validate:"required,min=10"`
	Solucao               string    `json:"solucao"`
	DataRegistro          time.Time `json:"data_registro"`
}

// NewCallRecord builds a CallRecord from a form snapshot, trimming every
// value. It returns a VALIDATION_ERROR envelope when the record would be
// rejected.
func NewCallRecord(form FormSnapshot, now time.Time) (CallRecord, error) {
	rec := CallRecord{
		Nome:                  trimmed(form, "nome"),
		Telefone:              trimmed(form, "telefone"),
		Funcao:                trimmed(form, "funcao"),
		Setor:                 trimmed(form, "setor"),
		Unidade:               trimmed(form, "unidade"),
		Municipio:             trimmed(form, "municipio"),
		CNES:                  trimmed(form, "cnes"),
		ContatoTelefonicoCNES: trimmed(form, "contato_telefonico_cnes"),
		TipoChamada:           trimmed(form, "tipo_chamada"),
		Status:                trimmed(form, "status"),
		NomeAtendente:         trimmed(form, "nome_atendente"),
		Descricao:             trimmed(form, "descricao"),
		Solucao:               trimmed(form, "solucao"),
		DataRegistro:          now.UTC(),
	}
	if err := validateEntity(rec); err != nil {
		return CallRecord{}, err
	}
	return rec, nil
}

// HealthUnit is a health unit creation payload.
type HealthUnit struct {
	Nome              string    `json:"nome" validate:"required"`
	Tipo              string    `json:"tipo" validate:"required,unit_type"`
	CNES              string    `json:"cnes" validate:"omitempty,cnes"`
	Responsavel       string    `json:"responsavel"`
	ContatoTelefonico string    `json:"contato_telefonico" validate:"omitempty,br_phone"`
	Municipio         string    `json:"municipio"`
	Endereco          string    `json:"endereco"`
	Telefone          string    `json:"telefone" validate:"omitempty,br_phone"`
	Email             string    `json:"email" validate:"omitempty,email"`
	DataCadastro      time.Time `json:"data_cadastro"`
}

// NewHealthUnit builds a HealthUnit from a form snapshot.
func NewHealthUnit(form FormSnapshot, now time.Time) (HealthUnit, error) {
	u := HealthUnit{
		Nome:              trimmed(form, "nome"),
		Tipo:              trimmed(form, "tipo"),
		CNES:              trimmed(form, "cnes"),
		Responsavel:       trimmed(form, "responsavel"),
		ContatoTelefonico: trimmed(form, "contato_telefonico"),
		Municipio:         trimmed(form, "municipio"),
		Endereco:          trimmed(form, "endereco"),
		Telefone:          trimmed(form, "telefone"),
		Email:             trimmed(form, "email"),
		DataCadastro:      now.UTC(),
	}
	if err := validateEntity(u); err != nil {
		return HealthUnit{}, err
	}
	return u, nil
}

// UserAccount is a user creation payload. It is submitted form-encoded.
type UserAccount struct {
	FirstName string   `json:"first_name" form:"first_name" validate:"required,min=2,person_name"`
	LastName  string   `json:"last_name" form:"last_name,omitempty"`
	Username  string   `json:"username" form:"username" validate:"required,min=3,username"`
	Email     string   `json:"email" form:"email,omitempty" validate:"omitempty,email"`
	Password1 string   `json:"password1" form:"password1" validate:"required,min=8"`
	Password2 string   `json:"password2" form:"password2" validate:"required,eqfield=Password1"`
	IsStaff   Checkbox `json:"is_staff" form:"is_staff"`
}

// NewUserAccount builds a UserAccount from a form snapshot. Passwords are not
// trimmed.
func NewUserAccount(form FormSnapshot) (UserAccount, error) {
	u := UserAccount{
		FirstName: trimmed(form, "first_name"),
		LastName:  trimmed(form, "last_name"),
		Username:  trimmed(form, "username"),
		Email:     trimmed(form, "email"),
		Password1: form["password1"],
		Password2: form["password2"],
		IsStaff:   Checkbox(isChecked(form["is_staff"])),
	}
	if err := validateEntity(u); err != nil {
		return UserAccount{}, err
	}
	return u, nil
}

// Notification frequencies.
const (
	FrequencyImmediate = "imediato"
	FrequencyHourly    = "a_cada_hora"
	FrequencyDaily     = "diario"
	FrequencyWeekly    = "semanal"
)

// Checkbox is a boolean submitted the way HTML checkboxes are: "on" when
// set, absent otherwise.
type Checkbox bool

// NotificationPreferences are the operator's notification settings.
type NotificationPreferences struct {
	EmailChamadas   Checkbox `json:"email_chamadas" form:"email_chamadas"`
	EmailStatus     Checkbox `json:"email_status" form:"email_status"`
	EmailRelatorios Checkbox `json:"email_relatorios" form:"email_relatorios"`
	EmailSeguranca  Checkbox `json:"email_seguranca" form:"email_seguranca"`
	SistemaAlertas  Checkbox `json:"sistema_alertas" form:"sistema_alertas"`
	SistemaPopups   Checkbox `json:"sistema_popups" form:"sistema_popups"`
	SistemaBadge    Checkbox `json:"sistema_badge" form:"sistema_badge"`
	SistemaSom      Checkbox `json:"sistema_som" form:"sistema_som"`
	Frequencia      string   `json:"frequencia" form:"frequencia" validate:"required,oneof=imediato a_cada_hora diario semanal"`
	HorarioInicio   string   `json:"horario_inicio" form:"horario_inicio" validate:"required,clock"`
	HorarioFim      string   `json:"horario_fim" form:"horario_fim" validate:"required,clock"`
}

// DefaultNotificationPreferences returns the settings applied before the
// operator saves anything.
func DefaultNotificationPreferences() NotificationPreferences {
	return NotificationPreferences{
		EmailChamadas:  true,
		EmailStatus:    true,
		EmailSeguranca: true,
		SistemaAlertas: true,
		SistemaPopups:  true,
		SistemaBadge:   true,
		Frequencia:     FrequencyImmediate,
		HorarioInicio:  "08:00",
		HorarioFim:     "18:00",
	}
}

// Snapshot renders the preferences as form values.
func (p NotificationPreferences) Snapshot() FormSnapshot {
	return FormSnapshot{
		"email_chamadas":   checkboxValue(p.EmailChamadas),
		"email_status":     checkboxValue(p.EmailStatus),
		"email_relatorios": checkboxValue(p.EmailRelatorios),
		"email_seguranca":  checkboxValue(p.EmailSeguranca),
		"sistema_alertas":  checkboxValue(p.SistemaAlertas),
		"sistema_popups":   checkboxValue(p.SistemaPopups),
		"sistema_badge":    checkboxValue(p.SistemaBadge),
		"sistema_som":      checkboxValue(p.SistemaSom),
		"frequencia":       p.Frequencia,
		"horario_inicio":   p.HorarioInicio,
		"horario_fim":      p.HorarioFim,
	}
}

// NewNotificationPreferences builds preferences from a form snapshot.
func NewNotificationPreferences(form FormSnapshot) (NotificationPreferences, error) {
	p := NotificationPreferences{
		EmailChamadas:   Checkbox(isChecked(form["email_chamadas"])),
		EmailStatus:     Checkbox(isChecked(form["email_status"])),
		EmailRelatorios: Checkbox(isChecked(form["email_relatorios"])),
		EmailSeguranca:  Checkbox(isChecked(form["email_seguranca"])),
		SistemaAlertas:  Checkbox(isChecked(form["sistema_alertas"])),
		SistemaPopups:   Checkbox(isChecked(form["sistema_popups"])),
		SistemaBadge:    Checkbox(isChecked(form["sistema_badge"])),
		SistemaSom:      Checkbox(isChecked(form["sistema_som"])),
		Frequencia:      trimmed(form, "frequencia"),
		HorarioInicio:   trimmed(form, "horario_inicio"),
		HorarioFim:      trimmed(form, "horario_fim"),
	}
	if err := validateEntity(p); err != nil {
		return NotificationPreferences{}, err
	}
	return p, nil
}

// --- boundary validation ---

var (
	phonePattern      = regexp.MustCompile(`^\(\d{2}\)\s\d{4,5}-\d{4}$`)
	cnesPattern       = regexp.MustCompile(`^\d{7}$`)
	usernamePattern   = regexp.MustCompile(`^[a-zA-Z0-9_]+$`)
	personNamePattern = regexp.MustCompile(`^[a-zA-ZÀ-ÿ\s]+$`)
	clockPattern      = regexp.MustCompile(`^([01]\d|2[0-3]):[0-5]\d$`)
)

var entityValidate = newEntityValidator()

// EntityValidator returns the validator shared by the entity constructors.
// The domain tags br_phone, cnes, username, person_name, clock, call_type and
// unit_type are registered on it.
func EntityValidator() *validator.Validate {
	return entityValidate
}

func newEntityValidator() *validator.Validate {
	v := validator.New()
	v.RegisterTagNameFunc(func(fld reflect.StructField) string {
		name, _, _ := strings.Cut(fld.Tag.Get("json"), ",")
		if name == "-" {
			return ""
		}
		return name
	})
	mustRegister(v, "br_phone", phonePattern)
	mustRegister(v, "cnes", cnesPattern)
	mustRegister(v, "username", usernamePattern)
	mustRegister(v, "person_name", personNamePattern)
	mustRegister(v, "clock", clockPattern)
	_ = v.RegisterValidation("call_type", func(fl validator.FieldLevel) bool {
		_, ok := CallTypes[fl.Field().String()]
		return ok
	})
	_ = v.RegisterValidation("unit_type", func(fl validator.FieldLevel) bool {
		_, ok := UnitTypes[fl.Field().String()]
		return ok
	})
	v.RegisterStructValidation(func(sl validator.StructLevel) {
		p := sl.Current().Interface().(NotificationPreferences)
		if clockPattern.MatchString(p.HorarioInicio) && clockPattern.MatchString(p.HorarioFim) &&
			p.HorarioFim <= p.HorarioInicio {
			sl.ReportError(p.HorarioFim, "horario_fim", "HorarioFim", "after_start", "")
		}
	}, NotificationPreferences{})
	return v
}

func mustRegister(v *validator.Validate, tag string, re *regexp.Regexp) {
	if err := v.RegisterValidation(tag, func(fl validator.FieldLevel) bool {
		return re.MatchString(fl.Field().String())
	}); err != nil {
		panic(err)
	}
}

// validateEntity runs struct validation and converts failures into a
// VALIDATION_ERROR envelope keyed by JSON field names.
func validateEntity(v any) error {
	err := entityValidate.Struct(v)
	if err == nil {
		return nil
	}
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return NewBadRequestError(err.Error())
	}
	details := make([]FieldError, 0, len(verrs))
	for _, fe := range verrs {
		code, msg := describeTag(fe)
		details = append(details, FieldError{Field: fe.Field(), Code: code, Message: msg})
	}
	return NewValidationError(details)
}

func describeTag(fe validator.FieldError) (string, string) {
	switch fe.Tag() {
	case "required":
		return FieldRequired, "Campo obrigatório"
	case "min":
		return FieldMinLength, "Deve ter pelo menos " + fe.Param() + " caracteres"
	case "email":
		return FieldFormat, "Formato de e-mail inválido"
	case "br_phone":
		return FieldPattern, "Telefone deve estar no formato (XX) XXXXX-XXXX"
	case "cnes":
		return FieldPattern, "CNES deve ter exatamente 7 dígitos"
	case "eqfield":
		return FieldMismatch, "Os valores não coincidem"
	case "after_start":
		return FieldInvalid, "Deve ser posterior ao horário de início"
	case "clock":
		return FieldPattern, "Horário deve estar no formato HH:MM"
	}
	return FieldInvalid, "Valor inválido"
}

func trimmed(form FormSnapshot, field string) string {
	return strings.TrimSpace(form[field])
}

func isChecked(v string) bool {
	switch strings.ToLower(strings.TrimSpace(v)) {
	case "on", "true", "1", "yes":
		return true
	}
	return false
}

func checkboxValue(c Checkbox) string {
	if c {
		return "on"
	}
	return ""
}
