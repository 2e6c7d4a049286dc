// Package billing decides whether a tax year is open for assessment
// edits. Every write path of the engine runs through the validator.
package billing

import (
	"context"
	"time"

	"github.com/rotisserie/eris"

	"github.com/chadRoberge/avitar-suite-sub003/internal/apperr"
	"github.com/chadRoberge/avitar-suite-sub003/internal/model"
)

// FinalBillingSource looks up the final-billing record for a tax year.
// A nil record with a nil error means the year was never finally billed.
type FinalBillingSource interface {
	GetFinalBilling(ctx context.Context, municipalityID string, year int) (*model.FinalBilling, error)
}

// Decision is the outcome of a billing-period check.
type Decision struct {
	Allowed      bool   `json:"allowed"`
	Reason       string `json:"reason,omitempty"`
	RedirectYear int    `json:"redirect_year,omitempty"`
}

// Validator applies the billing-period rules, in order: future years are
// never editable, the current year always is, and past years are editable
// unless final billing completed for them.
type Validator struct {
	source FinalBillingSource
	now    func() time.Time
}

// NewValidator creates a validator backed by the given billing source.
func NewValidator(source FinalBillingSource) *Validator {
	return &Validator{source: source, now: time.Now}
}

// WithNow sets a fixed clock for testing.
func (v *Validator) WithNow(t time.Time) *Validator {
	v.now = func() time.Time { return t }
	return v
}

// Decide evaluates the rules for one municipality and year. The returned
// error is non-nil only for lookup failures; a disallowed year is a
// Decision, not an error.
func (v *Validator) Decide(ctx context.Context, municipalityID string, year int) (Decision, error) {
	current := v.now().Year()

	if year > current {
		return Decision{
			Reason:       apperr.CodeFutureYearLocked,
			RedirectYear: current,
		}, nil
	}
	if year == current {
		return Decision{Allowed: true}, nil
	}

	fb, err := v.source.GetFinalBilling(ctx, municipalityID, year)
	if err != nil {
		return Decision{}, eris.Wrap(err, "billing: looking up final billing")
	}
	if fb != nil {
		return Decision{
			Reason:       apperr.CodeFinalBillingCompleted,
			RedirectYear: current,
		}, nil
	}
	return Decision{Allowed: true}, nil
}

// Validate is the error-returning form used on write paths: nil when the
// year is editable, a coded apperr otherwise.
func (v *Validator) Validate(ctx context.Context, municipalityID string, year int) error {
	d, err := v.Decide(ctx, municipalityID, year)
	if err != nil {
		return err
	}
	if d.Allowed {
		return nil
	}
	switch d.Reason {
	case apperr.CodeFutureYearLocked:
		return apperr.FutureYearLocked(year, d.RedirectYear)
	default:
		return apperr.FinalBillingCompleted(year, d.RedirectYear)
	}
}
