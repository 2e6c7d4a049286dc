package refdata

import (
	"context"
)

// Provider loads reference data snapshots. Implementations are expected to
// return a fully-populated context; the calculators tolerate missing
// entries but every lookup they make goes through the snapshot.
type Provider interface {
	// LoadContext builds the reference snapshot for one municipality and
	// effective year. The calculation config is created lazily with
	// defaults when none is stored.
	LoadContext(ctx context.Context, municipalityID string, year int) (*CalculationContext, error)
}
