package model

import "time"

// FinalBilling records that a municipality's tax year went through final
// billing. Its existence locks that year's assessments against edits.
type FinalBilling struct {
	ID             string    `json:"id"`
	MunicipalityID string    `json:"municipality_id"`
	EffectiveYear  int       `json:"effective_year"`
	WarrantDate    time.Time `json:"warrant_date"`
	CompletedAt    time.Time `json:"completed_at"`
}
