package refdata

import (
	"context"
	"encoding/json"
	"errors"
	"sort"

	"github.com/jackc/pgx/v5"
	"github.com/rotisserie/eris"

	"github.com/chadRoberge/avitar-suite-sub003/internal/db"
	"github.com/chadRoberge/avitar-suite-sub003/internal/model"
)

// PostgresProvider loads reference data from Postgres.
type PostgresProvider struct {
	pool db.Pool
}

// NewPostgres creates a provider backed by the given pool.
func NewPostgres(pool db.Pool) *PostgresProvider {
	return &PostgresProvider{pool: pool}
}

// LoadContext builds the reference snapshot for one municipality and year.
func (p *PostgresProvider) LoadContext(ctx context.Context, municipalityID string, year int) (*CalculationContext, error) {
	cc := &CalculationContext{
		MunicipalityID: municipalityID,
		EffectiveYear:  year,
		Zones:          make(map[string]*model.Zone),
		Attributes:     make(map[model.AttributeKind]map[string]model.Attribute),
		CurrentUse:     make(map[string]model.CurrentUseCategory),
		FeaturePoints:  make(map[string]model.FeaturePointEntry),
	}

	if err := p.loadZones(ctx, cc); err != nil {
		return nil, err
	}
	if err := p.loadLadders(ctx, cc); err != nil {
		return nil, err
	}
	if err := p.loadAttributes(ctx, cc); err != nil {
		return nil, err
	}
	if err := p.loadCurrentUse(ctx, cc); err != nil {
		return nil, err
	}
	if err := p.loadFeaturePoints(ctx, cc); err != nil {
		return nil, err
	}
	if err := p.loadConfig(ctx, cc); err != nil {
		return nil, err
	}

	return cc, nil
}

func (p *PostgresProvider) loadZones(ctx context.Context, cc *CalculationContext) error {
	rows, err := p.pool.Query(ctx,
		`SELECT id, code, name, minimum_acreage, minimum_frontage, excess_land_cost_per_acre, base_view_value, active
		 FROM zones WHERE municipality_id = $1`,
		cc.MunicipalityID,
	)
	if err != nil {
		return eris.Wrap(err, "refdata: query zones")
	}
	defer rows.Close()

	for rows.Next() {
		z := model.Zone{MunicipalityID: cc.MunicipalityID}
		if err := rows.Scan(&z.ID, &z.Code, &z.Name, &z.MinimumAcreage, &z.MinimumFrontage,
			&z.ExcessLandCostPerAcre, &z.BaseViewValue, &z.Active); err != nil {
			return eris.Wrap(err, "refdata: scan zone")
		}
		cc.Zones[z.ID] = &z
	}
	return eris.Wrap(rows.Err(), "refdata: iterate zones")
}

func (p *PostgresProvider) loadLadders(ctx context.Context, cc *CalculationContext) error {
	rows, err := p.pool.Query(ctx,
		`SELECT zone_id, acreage, value, sort_order
		 FROM land_ladders WHERE municipality_id = $1
		 ORDER BY zone_id, acreage`,
		cc.MunicipalityID,
	)
	if err != nil {
		return eris.Wrap(err, "refdata: query land ladders")
	}
	defer rows.Close()

	for rows.Next() {
		var zoneID string
		var tier model.LandLadderTier
		if err := rows.Scan(&zoneID, &tier.Acreage, &tier.Value, &tier.Order); err != nil {
			return eris.Wrap(err, "refdata: scan ladder tier")
		}
		if z, ok := cc.Zones[zoneID]; ok {
			z.Ladder = append(z.Ladder, tier)
		}
	}
	if err := rows.Err(); err != nil {
		return eris.Wrap(err, "refdata: iterate land ladders")
	}

	// Tiers arrive ordered by acreage, but guard against stale sort_order.
	for _, z := range cc.Zones {
		sort.Slice(z.Ladder, func(i, j int) bool { return z.Ladder[i].Acreage < z.Ladder[j].Acreage })
	}
	return nil
}

func (p *PostgresProvider) loadAttributes(ctx context.Context, cc *CalculationContext) error {
	rows, err := p.pool.Query(ctx,
		`SELECT id, kind, code, name, factor FROM attributes WHERE municipality_id = $1`,
		cc.MunicipalityID,
	)
	if err != nil {
		return eris.Wrap(err, "refdata: query attributes")
	}
	defer rows.Close()

	for rows.Next() {
		a := model.Attribute{MunicipalityID: cc.MunicipalityID}
		var kind string
		if err := rows.Scan(&a.ID, &kind, &a.Code, &a.Name, &a.Factor); err != nil {
			return eris.Wrap(err, "refdata: scan attribute")
		}
		a.Kind = model.AttributeKind(kind)
		if cc.Attributes[a.Kind] == nil {
			cc.Attributes[a.Kind] = make(map[string]model.Attribute)
		}
		cc.Attributes[a.Kind][a.ID] = a
	}
	return eris.Wrap(rows.Err(), "refdata: iterate attributes")
}

func (p *PostgresProvider) loadCurrentUse(ctx context.Context, cc *CalculationContext) error {
	rows, err := p.pool.Query(ctx,
		`SELECT id, code, name, rate_per_acre FROM current_use_categories WHERE municipality_id = $1`,
		cc.MunicipalityID,
	)
	if err != nil {
		return eris.Wrap(err, "refdata: query current use categories")
	}
	defer rows.Close()

	for rows.Next() {
		c := model.CurrentUseCategory{MunicipalityID: cc.MunicipalityID}
		if err := rows.Scan(&c.ID, &c.Code, &c.Name, &c.RatePerAcre); err != nil {
			return eris.Wrap(err, "refdata: scan current use category")
		}
		cc.CurrentUse[c.ID] = c
	}
	return eris.Wrap(rows.Err(), "refdata: iterate current use categories")
}

func (p *PostgresProvider) loadFeaturePoints(ctx context.Context, cc *CalculationContext) error {
	rows, err := p.pool.Query(ctx,
		`SELECT id, category, code, name, points FROM feature_points WHERE municipality_id = $1`,
		cc.MunicipalityID,
	)
	if err != nil {
		return eris.Wrap(err, "refdata: query feature points")
	}
	defer rows.Close()

	for rows.Next() {
		e := model.FeaturePointEntry{MunicipalityID: cc.MunicipalityID}
		if err := rows.Scan(&e.ID, &e.Category, &e.Code, &e.Name, &e.Points); err != nil {
			return eris.Wrap(err, "refdata: scan feature point entry")
		}
		cc.FeaturePoints[e.ID] = e
	}
	return eris.Wrap(rows.Err(), "refdata: iterate feature points")
}

// loadConfig fetches the calculation config for the year, creating it with
// defaults on first use.
func (p *PostgresProvider) loadConfig(ctx context.Context, cc *CalculationContext) error {
	var raw []byte
	err := p.pool.QueryRow(ctx,
		`SELECT config FROM calculation_configs WHERE municipality_id = $1 AND effective_year = $2`,
		cc.MunicipalityID, cc.EffectiveYear,
	).Scan(&raw)

	if err != nil {
		if !errors.Is(err, pgx.ErrNoRows) {
			return eris.Wrap(err, "refdata: query calculation config")
		}
		cfg := model.DefaultCalculationConfig(cc.MunicipalityID, cc.EffectiveYear)
		encoded, err := json.Marshal(cfg)
		if err != nil {
			return eris.Wrap(err, "refdata: marshal default config")
		}
		if _, err := p.pool.Exec(ctx,
			`INSERT INTO calculation_configs (municipality_id, effective_year, config)
			 VALUES ($1, $2, $3)
			 ON CONFLICT (municipality_id, effective_year) DO NOTHING`,
			cc.MunicipalityID, cc.EffectiveYear, encoded,
		); err != nil {
			return eris.Wrap(err, "refdata: insert default config")
		}
		cc.Config = cfg
		return nil
	}

	var cfg model.CalculationConfig
	if err := json.Unmarshal(raw, &cfg); err != nil {
		return eris.Wrap(err, "refdata: unmarshal calculation config")
	}
	cc.Config = &cfg
	return nil
}
