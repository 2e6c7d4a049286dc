package billing

import (
	"context"
	"testing"
	"time"

	"github.com/rotisserie/eris"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/chadRoberge/avitar-suite-sub003/internal/apperr"
	"github.com/chadRoberge/avitar-suite-sub003/internal/model"
)

type stubSource struct {
	billed map[int]*model.FinalBilling
	err    error
}

func (s *stubSource) GetFinalBilling(_ context.Context, _ string, year int) (*model.FinalBilling, error) {
	if s.err != nil {
		return nil, s.err
	}
	return s.billed[year], nil
}

func fixedValidator(src *stubSource) *Validator {
	return NewValidator(src).WithNow(time.Date(2026, 8, 1, 0, 0, 0, 0, time.UTC))
}

func TestDecide_FutureYearNeverEditable(t *testing.T) {
	v := fixedValidator(&stubSource{})

	d, err := v.Decide(context.Background(), "muni-1", 2027)
	require.NoError(t, err)
	assert.False(t, d.Allowed)
	assert.Equal(t, apperr.CodeFutureYearLocked, d.Reason)
	assert.Equal(t, 2026, d.RedirectYear)
}

func TestDecide_CurrentYearAlwaysEditable(t *testing.T) {
	// Even a final-billed current year stays editable; the lookup is not
	// consulted for the current year.
	v := fixedValidator(&stubSource{billed: map[int]*model.FinalBilling{
		2026: {EffectiveYear: 2026},
	}})

	d, err := v.Decide(context.Background(), "muni-1", 2026)
	require.NoError(t, err)
	assert.True(t, d.Allowed)
}

func TestDecide_PastYearOpenWithoutFinalBilling(t *testing.T) {
	v := fixedValidator(&stubSource{})

	d, err := v.Decide(context.Background(), "muni-1", 2024)
	require.NoError(t, err)
	assert.True(t, d.Allowed)
}

func TestDecide_PastYearLockedAfterFinalBilling(t *testing.T) {
	v := fixedValidator(&stubSource{billed: map[int]*model.FinalBilling{
		2024: {EffectiveYear: 2024},
	}})

	d, err := v.Decide(context.Background(), "muni-1", 2024)
	require.NoError(t, err)
	assert.False(t, d.Allowed)
	assert.Equal(t, apperr.CodeFinalBillingCompleted, d.Reason)
	assert.Equal(t, 2026, d.RedirectYear)
}

func TestDecide_LookupFailure(t *testing.T) {
	v := fixedValidator(&stubSource{err: eris.New("connection refused")})

	_, err := v.Decide(context.Background(), "muni-1", 2024)
	require.Error(t, err)
}

func TestValidate_CodedErrors(t *testing.T) {
	v := fixedValidator(&stubSource{billed: map[int]*model.FinalBilling{
		2023: {EffectiveYear: 2023},
	}})

	err := v.Validate(context.Background(), "muni-1", 2030)
	var ae *apperr.Error
	require.ErrorAs(t, err, &ae)
	assert.Equal(t, apperr.CodeFutureYearLocked, ae.Code)
	assert.Equal(t, 2026, ae.RedirectYear)

	err = v.Validate(context.Background(), "muni-1", 2023)
	require.ErrorAs(t, err, &ae)
	assert.Equal(t, apperr.CodeFinalBillingCompleted, ae.Code)
	assert.Equal(t, 2026, ae.RedirectYear)

	assert.NoError(t, v.Validate(context.Background(), "muni-1", 2026))
	assert.NoError(t, v.Validate(context.Background(), "muni-1", 2025))
}
