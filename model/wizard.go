package model

// WizardState is the externally visible state of a multi-step form.
// CurrentStep is always within [1, TotalSteps].
type WizardState struct {
	CurrentStep      int             `json:"current_step"`
	TotalSteps       int             `json:"total_steps"`
	StepID           string          `json:"step_id"`
	PerFieldValidity map[string]bool `json:"per_field_validity"`
	Progress         int             `json:"progress"`
	FieldProgress    int             `json:"field_progress"`
	Submitted        bool            `json:"submitted"`
}

// StepSummary describes one step for progress indicators.
type StepSummary struct {
	Number int    `json:"number"`
	ID     string `json:"id"`
	Title  string `json:"title"`
	Status string `json:"status"`
}

// Step statuses reported in StepSummary.
const (
	StepCompleted = "completed"
	StepCurrent   = "current"
	StepPending   = "pending"
)
