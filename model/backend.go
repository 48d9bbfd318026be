package model

// UnitSummary is a health unit as returned by the unit verification endpoint.
type UnitSummary struct {
	Nome        string `json:"nome"`
	Municipio   string `json:"municipio"`
	Telefone    string `json:"telefone"`
	Responsavel string `json:"responsavel"`
	Endereco    string `json:"endereco"`
	CNES        string `json:"cnes"`
	Tipo        string `json:"tipo"`
	Email       string `json:"email,omitempty"`
}

// UnitVerification is the outcome of checking whether a unit is registered.
// A unit that is not registered is a regular outcome, not an error.
type UnitVerification struct {
	Found   bool         `json:"found"`
	Unit    *UnitSummary `json:"unit,omitempty"`
	Similar []string     `json:"similar,omitempty"`
	All     []string     `json:"all,omitempty"`
	Message string       `json:"message,omitempty"`
	Source  string       `json:"source,omitempty"`
}

// CNESEstablishment is the normalized registry entry for a CNES code.
type CNESEstablishment struct {
	Codigo    string         `json:"codigo"`
	Nome      string         `json:"nome"`
	Municipio string         `json:"municipio"`
	UF        string         `json:"uf"`
	CEP       string         `json:"cep"`
	Endereco  string         `json:"endereco"`
	Numero    string         `json:"numero"`
	Bairro    string         `json:"bairro"`
	Telefone  string         `json:"telefone"`
	Email     string         `json:"email"`
	Fonte     string         `json:"fonte,omitempty"`
	Raw       map[string]any `json:"raw,omitempty"`
}

// SubmitTarget names a submission endpoint and how its body is encoded.
type SubmitTarget struct {
	Path     string `yaml:"path" json:"path"`
	Encoding string `yaml:"encoding" json:"encoding"`
}

// Submission encodings.
const (
	EncodingJSON = "json"
	EncodingForm = "form"
)

// SubmitResult is the backend's answer to a successful submission.
type SubmitResult struct {
	Success bool           `json:"success"`
	Message string         `json:"message,omitempty"`
	Data    map[string]any `json:"data,omitempty"`
}
