package domain

import "time"

type AccountID string

// Account is owned by the external account manager. This core only reads
// accounts and manages their bindings to instances.
type Account struct {
	ID    AccountID
	Email string
	Quota *QuotaSnapshot
}

type QuotaSnapshot struct {
	Tier   string
	Models []QuotaModel
}

// QuotaModel carries the remaining allowance for a named model, 0-100.
type QuotaModel struct {
	Name       string
	Percentage int
	ResetAt    time.Time
}

// ModelPercentage returns the remaining percentage for the named model, or 0
// when the model is absent from the snapshot.
func (s *QuotaSnapshot) ModelPercentage(name string) int {
	if s == nil {
		return 0
	}

	for _, model := range s.Models {
		if model.Name == name {
			return model.Percentage
		}
	}

	return 0
}
