package usage

import "time"

// Meter is a principal's cumulative metering snapshot. It is a pure billing
// signal: the system records, it never enforces a limit.
type Meter struct {
	PrincipalID    string    `json:"principalId"`
	Evaluations    int       `json:"evaluations"`
	GeneratedWords int       `json:"generatedWords"`
	UpdatedAt      time.Time `json:"updatedAt"`
}
