package refdata

import (
	"context"
	"encoding/json"
	"os"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"
	"gopkg.in/yaml.v3"

	"github.com/chadRoberge/avitar-suite-sub003/internal/model"
)

// Seed is the YAML document a municipality's reference data is onboarded
// from. See testdata/seed.yaml for the expected shape.
type Seed struct {
	MunicipalityID string `yaml:"municipality_id"`
	EffectiveYear  int    `yaml:"effective_year"`

	Zones []SeedZone `yaml:"zones"`

	Attributes []SeedAttribute `yaml:"attributes"`

	CurrentUseCategories []SeedCurrentUse `yaml:"current_use_categories"`

	FeaturePoints []SeedFeaturePoint `yaml:"feature_points"`

	Config *model.CalculationConfig `yaml:"calculation_config"`
}

// SeedZone carries a zone plus its ladder tiers.
type SeedZone struct {
	ID                    string           `yaml:"id"`
	Code                  string           `yaml:"code"`
	Name                  string           `yaml:"name"`
	MinimumAcreage        float64          `yaml:"minimum_acreage"`
	MinimumFrontage       float64          `yaml:"minimum_frontage"`
	ExcessLandCostPerAcre float64          `yaml:"excess_land_cost_per_acre"`
	BaseViewValue         float64          `yaml:"base_view_value"`
	Ladder                []SeedLadderTier `yaml:"ladder"`
}

// SeedLadderTier is one acreage-to-value breakpoint.
type SeedLadderTier struct {
	Acreage float64 `yaml:"acreage"`
	Value   float64 `yaml:"value"`
}

// SeedAttribute is one factor-table row.
type SeedAttribute struct {
	ID     string  `yaml:"id"`
	Kind   string  `yaml:"kind"`
	Code   string  `yaml:"code"`
	Name   string  `yaml:"name"`
	Factor float64 `yaml:"factor"`
}

// SeedCurrentUse is one current-use category.
type SeedCurrentUse struct {
	ID          string  `yaml:"id"`
	Code        string  `yaml:"code"`
	Name        string  `yaml:"name"`
	RatePerAcre float64 `yaml:"rate_per_acre"`
}

// SeedFeaturePoint is one building feature-point table row.
type SeedFeaturePoint struct {
	ID       string  `yaml:"id"`
	Category string  `yaml:"category"`
	Code     string  `yaml:"code"`
	Name     string  `yaml:"name"`
	Points   float64 `yaml:"points"`
}

// SeedImporter is implemented by providers that can write seed documents
// into their backing reference tables.
type SeedImporter interface {
	ImportSeed(ctx context.Context, seed *Seed) error
}

// ParseSeedFile reads and validates a YAML seed file.
func ParseSeedFile(path string) (*Seed, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, eris.Wrapf(err, "refdata: read seed file %s", path)
	}

	var seed Seed
	if err := yaml.Unmarshal(raw, &seed); err != nil {
		return nil, eris.Wrapf(err, "refdata: parse seed file %s", path)
	}
	if seed.MunicipalityID == "" {
		return nil, eris.New("refdata: seed file missing municipality_id")
	}
	if seed.EffectiveYear == 0 {
		return nil, eris.New("refdata: seed file missing effective_year")
	}
	return &seed, nil
}

// ImportSeed writes a seed document into the reference tables, replacing
// factors and ladder tiers that already exist.
func (p *PostgresProvider) ImportSeed(ctx context.Context, seed *Seed) error {
	log := zap.L().With(
		zap.String("municipality_id", seed.MunicipalityID),
		zap.Int("effective_year", seed.EffectiveYear),
	)

	for _, z := range seed.Zones {
		if _, err := p.pool.Exec(ctx,
			`INSERT INTO zones (id, municipality_id, code, name, minimum_acreage, minimum_frontage, excess_land_cost_per_acre, base_view_value, active)
			 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, TRUE)
			 ON CONFLICT (id) DO UPDATE SET
			   code = EXCLUDED.code, name = EXCLUDED.name,
			   minimum_acreage = EXCLUDED.minimum_acreage,
			   minimum_frontage = EXCLUDED.minimum_frontage,
			   excess_land_cost_per_acre = EXCLUDED.excess_land_cost_per_acre,
			   base_view_value = EXCLUDED.base_view_value`,
			z.ID, seed.MunicipalityID, z.Code, z.Name, z.MinimumAcreage, z.MinimumFrontage,
			z.ExcessLandCostPerAcre, z.BaseViewValue,
		); err != nil {
			return eris.Wrapf(err, "refdata: upsert zone %s", z.Code)
		}

		// Replace the ladder wholesale; tiers are unique per acreage.
		if _, err := p.pool.Exec(ctx,
			`DELETE FROM land_ladders WHERE zone_id = $1`, z.ID,
		); err != nil {
			return eris.Wrapf(err, "refdata: clear ladder for zone %s", z.Code)
		}
		for i, tier := range z.Ladder {
			if _, err := p.pool.Exec(ctx,
				`INSERT INTO land_ladders (zone_id, municipality_id, acreage, value, sort_order)
				 VALUES ($1, $2, $3, $4, $5)`,
				z.ID, seed.MunicipalityID, tier.Acreage, tier.Value, i,
			); err != nil {
				return eris.Wrapf(err, "refdata: insert ladder tier for zone %s", z.Code)
			}
		}
	}

	for _, a := range seed.Attributes {
		if _, err := p.pool.Exec(ctx,
			`INSERT INTO attributes (id, municipality_id, kind, code, name, factor)
			 VALUES ($1, $2, $3, $4, $5, $6)
			 ON CONFLICT (id) DO UPDATE SET
			   kind = EXCLUDED.kind, code = EXCLUDED.code,
			   name = EXCLUDED.name, factor = EXCLUDED.factor`,
			a.ID, seed.MunicipalityID, a.Kind, a.Code, a.Name, a.Factor,
		); err != nil {
			return eris.Wrapf(err, "refdata: upsert attribute %s/%s", a.Kind, a.Code)
		}
	}

	for _, c := range seed.CurrentUseCategories {
		if _, err := p.pool.Exec(ctx,
			`INSERT INTO current_use_categories (id, municipality_id, code, name, rate_per_acre)
			 VALUES ($1, $2, $3, $4, $5)
			 ON CONFLICT (id) DO UPDATE SET
			   code = EXCLUDED.code, name = EXCLUDED.name,
			   rate_per_acre = EXCLUDED.rate_per_acre`,
			c.ID, seed.MunicipalityID, c.Code, c.Name, c.RatePerAcre,
		); err != nil {
			return eris.Wrapf(err, "refdata: upsert current use category %s", c.Code)
		}
	}

	for _, f := range seed.FeaturePoints {
		if _, err := p.pool.Exec(ctx,
			`INSERT INTO feature_points (id, municipality_id, category, code, name, points)
			 VALUES ($1, $2, $3, $4, $5, $6)
			 ON CONFLICT (id) DO UPDATE SET
			   category = EXCLUDED.category, code = EXCLUDED.code,
			   name = EXCLUDED.name, points = EXCLUDED.points`,
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
		if _, err := p.pool.Exec(ctx,
			`INSERT INTO calculation_configs (municipality_id, effective_year, config)
			 VALUES ($1, $2, $3)
			 ON CONFLICT (municipality_id, effective_year) DO UPDATE SET config = EXCLUDED.config`,
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
