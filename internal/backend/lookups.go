package backend

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"unicode/utf8"

	"github.com/pitabwire/callcenter/internal/mask"
	"github.com/pitabwire/callcenter/model"
)

// Operation names used for metrics and spans.
const (
	OpVerifyUnit    = "verify_unit"
	OpLookupCNES    = "lookup_cnes"
	OpMunicipios    = "municipios"
	OpCheckUsername = "check_username"
	OpSubmit        = "submit"
	OpFetchRecords  = "fetch_records"
)

// MunicipioMinLength is the shortest query sent to the municipio autocomplete.
const MunicipioMinLength = 2

// cnesNotFound is the message shown when the registry has no such code.
const cnesNotFound = "Código CNES não encontrado na base de dados do Ministério da Saúde"

// notInformed is the placeholder the backend uses for empty unit fields.
const notInformed = "Não informado"

type unitResponse struct {
	envelope
	Unidade   *model.UnitSummary `json:"unidade"`
	Similares []string           `json:"unidades_similares"`
	Todas     []string           `json:"todas_unidades"`
	Fonte     string             `json:"fonte"`
}

// VerifyUnit checks whether a health unit with the given name is registered.
// A unit that is not registered is returned as Found=false, not as an error.
func (c *Client) VerifyUnit(ctx context.Context, name string) (model.UnitVerification, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return model.UnitVerification{}, model.NewValidationError([]model.FieldError{
			{Field: "unidade", Code: model.FieldRequired, Message: "Digite o nome da unidade"},
		})
	}
	body, err := json.Marshal(map[string]string{"nome_unidade": name})
	if err != nil {
		return model.UnitVerification{}, fmt.Errorf("backend: verify unit: %w", err)
	}

	resp, err := c.do(ctx, request{
		operation:   OpVerifyUnit,
		method:      http.MethodPost,
		path:        c.cfg.Paths.UnitLookup,
		body:        body,
		contentType: "application/json",
	})
	if err != nil {
		return model.UnitVerification{}, err
	}
	if resp.status != http.StatusOK && resp.status != http.StatusNotFound {
		return model.UnitVerification{}, statusError(resp.status, resp.body)
	}

	var ur unitResponse
	if err := decodeJSON(resp.body, &ur, "unidade"); err != nil {
		return model.UnitVerification{}, err
	}
	if resp.status == http.StatusOK && ur.ok() && ur.Unidade != nil {
		unit := cleanUnit(*ur.Unidade)
		return model.UnitVerification{Found: true, Unit: &unit, Source: ur.Fonte}, nil
	}

	msg := ur.message()
	if msg == "" {
		msg = fmt.Sprintf("Unidade %q não encontrada no sistema", name)
	}
	return model.UnitVerification{
		Found:   false,
		Similar: ur.Similares,
		All:     ur.Todas,
		Message: msg,
	}, nil
}

func cleanUnit(u model.UnitSummary) model.UnitSummary {
	for _, f := range []*string{&u.Municipio, &u.Telefone, &u.Responsavel, &u.Endereco, &u.CNES, &u.Email} {
		*f = strings.TrimSpace(*f)
		if *f == notInformed {
			*f = ""
		}
	}
	return u
}

type cnesResponse struct {
	envelope
	Dados map[string]any `json:"dados"`
	Data  map[string]any `json:"data"`
	Fonte string         `json:"fonte"`
}

// LookupCNES fetches the establishment registered under a 7-digit CNES code.
// Codes that do not have exactly 7 digits are rejected before any request.
func (c *Client) LookupCNES(ctx context.Context, code string) (model.CNESEstablishment, error) {
	digits := mask.Digits(code)
	if len(digits) != 7 {
		return model.CNESEstablishment{}, model.NewValidationError([]model.FieldError{
			{Field: "cnes", Code: model.FieldFormat, Message: "CNES deve ter 7 dígitos"},
		})
	}

	resp, err := c.do(ctx, request{
		operation: OpLookupCNES,
		method:    http.MethodGet,
		path:      c.cfg.Paths.CNES + digits + "/",
	})
	if err != nil {
		return model.CNESEstablishment{}, err
	}
	switch resp.status {
	case http.StatusOK:
	case http.StatusNotFound:
		return model.CNESEstablishment{}, model.NewNotFoundError(cnesNotFound)
	default:
		return model.CNESEstablishment{}, statusError(resp.status, resp.body)
	}

	var cr cnesResponse
	if err := decodeJSON(resp.body, &cr, "cnes"); err != nil {
		return model.CNESEstablishment{}, err
	}
	if !cr.ok() {
		return model.CNESEstablishment{}, cr.rejection()
	}
	data := cr.Dados
	if data == nil {
		data = cr.Data
	}
	if data == nil {
		return model.CNESEstablishment{}, model.NewMalformedResponseError("cnes: dados ausentes")
	}
	est := normalizeCNES(data, digits)
	est.Fonte = cr.Fonte
	return est, nil
}

// normalizeCNES maps the registry's field names onto CNESEstablishment.
// The first present key wins.
func normalizeCNES(data map[string]any, code string) model.CNESEstablishment {
	pick := func(keys ...string) string {
		for _, k := range keys {
			if s := strings.TrimSpace(model.Stringify(data[k])); s != "" {
				return s
			}
		}
		return ""
	}
	est := model.CNESEstablishment{
		Codigo:    pick("codigo_cnes", "codigo"),
		Nome:      pick("nome_fantasia", "nome_razao_social", "nome"),
		Municipio: pick("descricao_municipio", "municipio"),
		UF:        pick("sigla_uf", "uf"),
		CEP:       pick("codigo_cep_estabelecimento", "cep"),
		Endereco:  pick("endereco_estabelecimento", "endereco"),
		Numero:    pick("numero_estabelecimento", "numero"),
		Bairro:    pick("bairro_estabelecimento", "bairro"),
		Telefone:  pick("numero_telefone_estabelecimento", "telefone"),
		Email:     pick("endereco_email_estabelecimento", "email"),
		Raw:       data,
	}
	if est.Codigo == "" {
		est.Codigo = code
	}
	return est
}

type municipiosResponse struct {
	Results    []json.RawMessage `json:"results"`
	Municipios []json.RawMessage `json:"municipios"`
}

// Municipios returns the municipio names matching q. Queries shorter than
// MunicipioMinLength return no results without a request.
func (c *Client) Municipios(ctx context.Context, q string) ([]string, error) {
	q = strings.TrimSpace(q)
	if utf8.RuneCountInString(q) < MunicipioMinLength {
		return nil, nil
	}
	resp, err := c.do(ctx, request{
		operation: OpMunicipios,
		method:    http.MethodGet,
		path:      c.cfg.Paths.Municipios,
		query:     url.Values{"q": {q}},
	})
	if err != nil {
		return nil, err
	}
	if resp.status != http.StatusOK {
		return nil, statusError(resp.status, resp.body)
	}

	var mr municipiosResponse
	if err := decodeJSON(resp.body, &mr, "municipios"); err != nil {
		return nil, err
	}
	items := mr.Results
	if items == nil {
		items = mr.Municipios
	}
	names := make([]string, 0, len(items))
	for _, raw := range items {
		name, err := municipioName(raw)
		if err != nil {
			return nil, err
		}
		if name != "" {
			names = append(names, name)
		}
	}
	return names, nil
}

// municipioName accepts a bare string or an object carrying nome or text.
func municipioName(raw json.RawMessage) (string, error) {
	var s string
	if json.Unmarshal(raw, &s) == nil {
		return strings.TrimSpace(s), nil
	}
	var obj struct {
		Nome string `json:"nome"`
		Text string `json:"text"`
	}
	if err := json.Unmarshal(raw, &obj); err != nil {
		return "", fmt.Errorf("%w: %w", model.NewMalformedResponseError("municipios"), err)
	}
	if obj.Nome != "" {
		return strings.TrimSpace(obj.Nome), nil
	}
	return strings.TrimSpace(obj.Text), nil
}

// reservedUsernameFragment marks usernames that are never available.
const reservedUsernameFragment = "admin"

type usernameResponse struct {
	Disponivel *bool `json:"disponivel"`
	Available  *bool `json:"available"`
}

// CheckUsername reports whether username can still be registered. Without a
// configured availability endpoint the reserved-name policy decides.
func (c *Client) CheckUsername(ctx context.Context, username string) (bool, error) {
	username = strings.TrimSpace(username)
	if strings.Contains(strings.ToLower(username), reservedUsernameFragment) {
		return false, nil
	}
	if c.cfg.Paths.UsernameCheck == "" {
		return true, nil
	}

	resp, err := c.do(ctx, request{
		operation: OpCheckUsername,
		method:    http.MethodGet,
		path:      c.cfg.Paths.UsernameCheck,
		query:     url.Values{"username": {username}},
	})
	if err != nil {
		return false, err
	}
	if resp.status != http.StatusOK {
		return false, statusError(resp.status, resp.body)
	}
	var ur usernameResponse
	if err := decodeJSON(resp.body, &ur, "username"); err != nil {
		return false, err
	}
	switch {
	case ur.Disponivel != nil:
		return *ur.Disponivel, nil
	case ur.Available != nil:
		return *ur.Available, nil
	}
	return false, model.NewMalformedResponseError("username: disponibilidade ausente")
}
