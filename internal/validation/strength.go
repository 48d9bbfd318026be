package validation

import "unicode/utf8"

// Strength is a password strength rating.
type Strength struct {
	Score int    `json:"score"`
	Label string `json:"label"`
}

var strengthLabels = [...]string{
	"Muito Fraca",
	"Fraca",
	"Regular",
	"Boa",
	"Forte",
	"Muito Forte",
}

// MinimumStrength is the score a new password must reach ("Boa").
const MinimumStrength = 3

// PasswordStrength scores a password from 0 to 5: one point each for a length
// of at least 8, a lowercase letter, an uppercase letter, a digit, a character
// outside [a-zA-Z0-9], and a length of at least 12. The total is capped at 5.
func PasswordStrength(password string) Strength {
	var lower, upper, digit, special bool
	for _, r := range password {
		switch {
		case r >= 'a' && r <= 'z':
			lower = true
		case r >= 'A' && r <= 'Z':
			upper = true
		case r >= '0' && r <= '9':
			digit = true
		default:
			special = true
		}
	}

	n := utf8.RuneCountInString(password)
	score := 0
	for _, ok := range []bool{n >= 8, lower, upper, digit, special, n >= 12} {
		if ok {
			score++
		}
	}
	score = min(score, 5)
	return Strength{Score: score, Label: strengthLabels[score]}
}

// Meets reports whether the strength passes the creation gate.
func (s Strength) Meets() bool {
	return s.Score >= MinimumStrength
}
