package refdata

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"sort"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/chadRoberge/avitar-suite-sub003/internal/model"
)

// SQLiteProvider loads reference data from an embedded SQLite database.
// Used by single-municipality installs running without a Postgres server.
type SQLiteProvider struct {
	db *sql.DB
}

// NewSQLite creates a provider backed by the given database handle,
// typically the one exposed by the SQLite store.
func NewSQLite(db *sql.DB) *SQLiteProvider {
	return &SQLiteProvider{db: db}
}

// LoadContext builds the reference snapshot for one municipality and year.
func (p *SQLiteProvider) LoadContext(ctx context.Context, municipalityID string, year int) (*CalculationContext, error) {
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

func (p *SQLiteProvider) loadZones(ctx context.Context, cc *CalculationContext) error {
	rows, err := p.db.QueryContext(ctx,
		`SELECT id, code, name, minimum_acreage, minimum_frontage, excess_land_cost_per_acre, base_view_value, active
		 FROM zones WHERE municipality_id = ?`,
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

func (p *SQLiteProvider) loadLadders(ctx context.Context, cc *CalculationContext) error {
	rows, err := p.db.QueryContext(ctx,
		`SELECT zone_id, acreage, value, sort_order
		 FROM land_ladders WHERE municipality_id = ?
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

	for _, z := range cc.Zones {
		sort.Slice(z.Ladder, func(i, j int) bool { return z.Ladder[i].Acreage < z.Ladder[j].Acreage })
	}
	return nil
}

func (p *SQLiteProvider) loadAttributes(ctx context.Context, cc *CalculationContext) error {
	rows, err := p.db.QueryContext(ctx,
		`SELECT id, kind, code, name, factor FROM attributes WHERE municipality_id = ?`,
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

func (p *SQLiteProvider) loadCurrentUse(ctx context.Context, cc *CalculationContext) error {
	rows, err := p.db.QueryContext(ctx,
		`SELECT id, code, name, rate_per_acre FROM current_use_categories WHERE municipality_id = ?`,
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

func (p *SQLiteProvider) loadFeaturePoints(ctx context.Context, cc *CalculationContext) error {
	rows, err := p.db.QueryContext(ctx,
		`SELECT id, category, code, name, points FROM feature_points WHERE municipality_id = ?`,
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

func (p *SQLiteProvider) loadConfig(ctx context.Context, cc *CalculationContext) error {
	var raw []byte
	err := p.db.QueryRowContext(ctx,
		`SELECT config FROM calculation_configs WHERE municipality_id = ? AND effective_year = ?`,
		cc.MunicipalityID, cc.EffectiveYear,
	).Scan(&raw)

	if err != nil {
		if !errors.Is(err, sql.ErrNoRows) {
			return eris.Wrap(err, "refdata: query calculation config")
		}
		cfg := model.DefaultCalculationConfig(cc.MunicipalityID, cc.EffectiveYear)
		encoded, err := json.Marshal(cfg)
		if err != nil {
			return eris.Wrap(err, "refdata: marshal default config")
		}
		if _, err := p.db.ExecContext(ctx,
			`INSERT INTO calculation_configs (municipality_id, effective_year, config)
			 VALUES (?, ?, ?)
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

// ImportSeed writes a seed document into the reference tables, replacing
// factors and ladder tiers that already exist.
func (p *SQLiteProvider) ImportSeed(ctx context.Context, seed *Seed) error {
	log := zap.L().With(
		zap.String("municipality_id", seed.MunicipalityID),
		zap.Int("effective_year", seed.EffectiveYear),
	)

	for _, z := range seed.Zones {
		if _, err := p.db.ExecContext(ctx,
			`INSERT INTO zones (id, municipality_id, code, name, minimum_acreage, minimum_frontage, excess_land_cost_per_acre, base_view_value, active)
			 VALUES (?, ?, ?, ?, ?, ?, ?, ?, 1)
			 ON CONFLICT (id) DO UPDATE SET
			   code = excluded.code, name = excluded.name,
			   minimum_acreage = excluded.minimum_acreage,
			   minimum_frontage = excluded.minimum_frontage,
			   excess_land_cost_per_acre = excluded.excess_land_cost_per_acre,
			   base_view_value = excluded.base_view_value`,
			z.ID, seed.MunicipalityID, z.Code, z.Name, z.MinimumAcreage, z.MinimumFrontage,
			z.ExcessLandCostPerAcre, z.BaseViewValue,
		); err != nil {
			return eris.Wrapf(err, "refdata: upsert zone %s", z.Code)
		}

		if _, err := p.db.ExecContext(ctx,
			`DELETE FROM land_ladders WHERE zone_id = ?`, z.ID,
		); err != nil {
			return eris.Wrapf(err, "refdata: clear ladder for zone %s", z.Code)
		}
		for i, tier := range z.Ladder {
			if _, err := p.db.ExecContext(ctx,
				`INSERT INTO land_ladders (zone_id, municipality_id, acreage, value, sort_order)
				 VALUES (?, ?, ?, ?, ?)`,
				z.ID, seed.MunicipalityID, tier.Acreage, tier.Value, i,
			); err != nil {
				return eris.Wrapf(err, "refdata: insert ladder tier for zone %s", z.Code)
			}
		}
	}

	for _, a := range seed.Attributes {
		if _, err := p.db.ExecContext(ctx,
			`INSERT INTO attributes (id, municipality_id, kind, code, name, factor)
			 VALUES (?, ?, ?, ?, ?, ?)
			 ON CONFLICT (id) DO UPDATE SET
			   kind = excluded.kind, code = excluded.code,
			   name = excluded.name, factor = excluded.factor`,
			a.ID, seed.MunicipalityID, a.Kind, a.Code, a.Name, a.Factor,
		); err != nil {
			return eris.Wrapf(err, "refdata: upsert attribute %s/%s", a.Kind, a.Code)
		}
	}

	for _, c := range seed.CurrentUseCategories {
		if _, err := p.db.ExecContext(ctx,
			`INSERT INTO current_use_categories (id, municipality_id, code, name, rate_per_acre)
			 VALUES (?, ?, ?, ?, ?)
			 ON CONFLICT (id) DO UPDATE SET
			   code = excluded.code, name = excluded.name,
			   rate_per_acre = excluded.rate_per_acre`,
			c.ID, seed.MunicipalityID, c.Code, c.Name, c.RatePerAcre,
		); err != nil {
			return eris.Wrapf(err, "refdata: upsert current use category %s", c.Code)
		}
	}

	for _, f := range seed.FeaturePoints {
		if _, err := p.db.ExecContext(ctx,
			`INSERT INTO feature_points (id, municipality_id, category, code, name, points)
			 VALUES (?, ?, ?, ?, ?, ?)
			 ON CONFLICT (id) DO UPDATE SET
			   category = excluded.category, code = excluded.code,
			   name = excluded.name, points = excluded.points`,
			f.ID, seed.MunicipalityID, f.Category, f.Code, f.Name, f.Points,
		); err != nil {
			return eris.Wrapf(err, "refdata: upsert feature point %s/%s", f.Category, f.Code)
		}
	}

	if seed.Config != nil {
		seed.Config.MunicipalityID = seed.MunicipalityID
		seed.Config.EffectiveYear = seed.EffectiveYear
		encoded, err := json.Marshal(seed.Config)
		if err != nil {
			return eris.Wrap(err, "refdata: marshal seed config")
		}
		if _, err := p.db.ExecContext(ctx,
			`INSERT INTO calculation_configs (municipality_id, effective_year, config)
			 VALUES (?, ?, ?)
			 ON CONFLICT (municipality_id, effective_year) DO UPDATE SET config = excluded.config`,
			seed.MunicipalityID, seed.EffectiveYear, encoded,
		); err != nil {
			return eris.Wrap(err, "refdata: upsert calculation config")
		}
	}

	log.Info("refdata: seed imported",
		zap.Int("zones", len(seed.Zones)),
		zap.Int("attributes", len(seed.Attributes)),
		zap.Int("current_use_categories", len(seed.CurrentUseCategories)),
		zap.Int("feature_points", len(seed.FeaturePoints)),
	)
	return nil
}

var _ Provider = (*SQLiteProvider)(nil)
var _ Provider = (*PostgresProvider)(nil)
