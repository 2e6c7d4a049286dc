package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rotisserie/eris"

	"github.com/chadRoberge/avitar-suite-sub003/internal/db"
	"github.com/chadRoberge/avitar-suite-sub003/internal/model"
)

// PostgresStore implements Store using pgxpool.
type PostgresStore struct {
	pool    db.Pool
	closeFn func()
}

// PoolConfig holds optional connection pool tuning parameters.
type PoolConfig struct {
	MaxConns int32 `yaml:"max_conns" mapstructure:"max_conns"`
	MinConns int32 `yaml:"min_conns" mapstructure:"min_conns"`
}

// NewPostgres creates a PostgresStore with a connection pool.
func NewPostgres(ctx context.Context, connString string, poolCfg *PoolConfig) (*PostgresStore, error) {
	pgxCfg, err := pgxpool.ParseConfig(connString)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: parse config")
	}

	maxConns := int32(10)
	minConns := int32(2)
	if poolCfg != nil {
		if poolCfg.MaxConns > 0 {
			maxConns = poolCfg.MaxConns
		}
		if poolCfg.MinConns > 0 {
			minConns = poolCfg.MinConns
		}
	}
	pgxCfg.MaxConns = maxConns
	pgxCfg.MinConns = minConns
	pgxCfg.MaxConnLifetime = 30 * time.Minute
	pgxCfg.MaxConnIdleTime = 5 * time.Minute

	pool, err := pgxpool.NewWithConfig(ctx, pgxCfg)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: create pool")
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, eris.Wrap(err, "postgres: ping")
	}
	return &PostgresStore{pool: pool, closeFn: pool.Close}, nil
}

// NewPostgresWithPool wraps an existing pool, used by tests with pgxmock.
func NewPostgresWithPool(pool db.Pool) *PostgresStore {
	return &PostgresStore{pool: pool}
}

// Pool returns the underlying database pool for subsystems that need
// direct query access (the reference-data provider shares it).
func (s *PostgresStore) Pool() db.Pool {
	return s.pool
}

const postgresMigration = `
CREATE TABLE IF NOT EXISTS zones (
	id                        TEXT PRIMARY KEY DEFAULT gen_random_uuid()::text,
	municipality_id           TEXT NOT NULL,
	code                      TEXT NOT NULL,
	name                      TEXT NOT NULL DEFAULT '',
	minimum_acreage           DOUBLE PRECISION NOT NULL DEFAULT 0,
	minimum_frontage          DOUBLE PRECISION NOT NULL DEFAULT 0,
	excess_land_cost_per_acre DOUBLE PRECISION NOT NULL DEFAULT 0,
	base_view_value           DOUBLE PRECISION NOT NULL DEFAULT 0,
	active                    BOOLEAN NOT NULL DEFAULT TRUE,
	UNIQUE (municipality_id, code)
);

CREATE TABLE IF NOT EXISTS land_ladders (
	zone_id         TEXT NOT NULL REFERENCES zones(id),
	municipality_id TEXT NOT NULL,
	acreage         DOUBLE PRECISION NOT NULL,
	value           DOUBLE PRECISION NOT NULL,
	sort_order      INTEGER NOT NULL DEFAULT 0,
	UNIQUE (zone_id, acreage)
);

CREATE TABLE IF NOT EXISTS attributes (
	id              TEXT PRIMARY KEY DEFAULT gen_random_uuid()::text,
	municipality_id TEXT NOT NULL,
	kind            TEXT NOT NULL,
	code            TEXT NOT NULL,
	name            TEXT NOT NULL DEFAULT '',
	factor          DOUBLE PRECISION NOT NULL DEFAULT 1.0,
	UNIQUE (municipality_id, kind, code)
);

CREATE TABLE IF NOT EXISTS current_use_categories (
	id              TEXT PRIMARY KEY DEFAULT gen_random_uuid()::text,
	municipality_id TEXT NOT NULL,
	code            TEXT NOT NULL,
	name            TEXT NOT NULL DEFAULT '',
	rate_per_acre   DOUBLE PRECISION NOT NULL DEFAULT 0,
	UNIQUE (municipality_id, code)
);

CREATE TABLE IF NOT EXISTS feature_points (
	id              TEXT PRIMARY KEY DEFAULT gen_random_uuid()::text,
	municipality_id TEXT NOT NULL,
	category        TEXT NOT NULL,
	code            TEXT NOT NULL,
	name            TEXT NOT NULL DEFAULT '',
	points          DOUBLE PRECISION NOT NULL DEFAULT 0,
	UNIQUE (municipality_id, category, code)
);

CREATE TABLE IF NOT EXISTS calculation_configs (
	municipality_id TEXT NOT NULL,
	effective_year  INTEGER NOT NULL,
	config          JSONB NOT NULL,
	PRIMARY KEY (municipality_id, effective_year)
);

CREATE TABLE IF NOT EXISTS land_assessments (
	id              TEXT PRIMARY KEY,
	municipality_id TEXT NOT NULL,
	property_id     TEXT NOT NULL,
	card_number     INTEGER NOT NULL,
	effective_year  INTEGER NOT NULL,
	zone_id         TEXT NOT NULL,
	neighborhood_id TEXT NOT NULL DEFAULT '',
	site_id         TEXT NOT NULL DEFAULT '',
	driveway_id     TEXT NOT NULL DEFAULT '',
	road_id         TEXT NOT NULL DEFAULT '',
	lines           JSONB NOT NULL DEFAULT '[]',
	views           JSONB NOT NULL DEFAULT '[]',
	waterfronts     JSONB NOT NULL DEFAULT '[]',
	totals          JSONB NOT NULL DEFAULT '{}',
	last_calculated TIMESTAMPTZ,
	UNIQUE (municipality_id, property_id, card_number, effective_year)
);

CREATE INDEX IF NOT EXISTS idx_land_muni_year ON land_assessments(municipality_id, effective_year, property_id, card_number);
CREATE INDEX IF NOT EXISTS idx_land_zone ON land_assessments(municipality_id, effective_year, zone_id);
CREATE INDEX IF NOT EXISTS idx_land_neighborhood ON land_assessments(municipality_id, effective_year, neighborhood_id);

CREATE TABLE IF NOT EXISTS property_views (
	id              TEXT PRIMARY KEY,
	municipality_id TEXT NOT NULL,
	property_id     TEXT NOT NULL,
	card_number     INTEGER NOT NULL,
	effective_year  INTEGER NOT NULL,
	subject_id      TEXT NOT NULL DEFAULT '',
	width_id        TEXT NOT NULL DEFAULT '',
	distance_id     TEXT NOT NULL DEFAULT '',
	depth_id        TEXT NOT NULL DEFAULT '',
	condition_id    TEXT NOT NULL DEFAULT '',
	base_value      DOUBLE PRECISION NOT NULL DEFAULT 0
);

CREATE INDEX IF NOT EXISTS idx_views_property ON property_views(municipality_id, effective_year, property_id);

CREATE TABLE IF NOT EXISTS property_waterfronts (
	id              TEXT PRIMARY KEY,
	municipality_id TEXT NOT NULL,
	property_id     TEXT NOT NULL,
	card_number     INTEGER NOT NULL,
	effective_year  INTEGER NOT NULL,
	frontage_feet   DOUBLE PRECISION NOT NULL DEFAULT 0,
	frontage_id     TEXT NOT NULL DEFAULT '',
	access_id       TEXT NOT NULL DEFAULT '',
	topography_id   TEXT NOT NULL DEFAULT '',
	location_id     TEXT NOT NULL DEFAULT '',
	condition_id    TEXT NOT NULL DEFAULT '',
	base_value      DOUBLE PRECISION NOT NULL DEFAULT 0
);

CREATE INDEX IF NOT EXISTS idx_waterfronts_property ON property_waterfronts(municipality_id, effective_year, property_id);

CREATE TABLE IF NOT EXISTS building_assessments (
	id                  TEXT PRIMARY KEY,
	municipality_id     TEXT NOT NULL,
	property_id         TEXT NOT NULL,
	card_number         INTEGER NOT NULL,
	effective_year      INTEGER NOT NULL,
	building_class      TEXT NOT NULL DEFAULT 'residential',
	features            JSONB NOT NULL DEFAULT '{}',
	misc                JSONB NOT NULL DEFAULT '{}',
	bedrooms            INTEGER NOT NULL DEFAULT 0,
	full_baths          INTEGER NOT NULL DEFAULT 0,
	half_baths          INTEGER NOT NULL DEFAULT 0,
	year_built          INTEGER NOT NULL DEFAULT 0,
	condition           TEXT NOT NULL DEFAULT 'average',
	effective_area      DOUBLE PRECISION NOT NULL DEFAULT 0,
	functional_depr_pct DOUBLE PRECISION NOT NULL DEFAULT 0,
	external_depr_pct   DOUBLE PRECISION NOT NULL DEFAULT 0,
	physical_depr_pct   DOUBLE PRECISION NOT NULL DEFAULT 0,
	details             JSONB,
	building_value      DOUBLE PRECISION NOT NULL DEFAULT 0,
	last_calculated     TIMESTAMPTZ,
	UNIQUE (municipality_id, property_id, card_number, effective_year)
);

CREATE INDEX IF NOT EXISTS idx_building_muni_year ON building_assessments(municipality_id, effective_year, property_id);

CREATE TABLE IF NOT EXISTS feature_assessments (
	municipality_id TEXT NOT NULL,
	property_id     TEXT NOT NULL,
	card_number     INTEGER NOT NULL,
	effective_year  INTEGER NOT NULL,
	feature_value   DOUBLE PRECISION NOT NULL DEFAULT 0,
	PRIMARY KEY (municipality_id, property_id, card_number, effective_year)
);

CREATE TABLE IF NOT EXISTS parcel_assessments (
	id              TEXT PRIMARY KEY,
	municipality_id TEXT NOT NULL,
	property_id     TEXT NOT NULL,
	effective_year  INTEGER NOT NULL,
	totals          JSONB NOT NULL DEFAULT '{}',
	cards           JSONB NOT NULL DEFAULT '[]',
	last_calculated TIMESTAMPTZ,
	UNIQUE (municipality_id, property_id, effective_year)
);

CREATE TABLE IF NOT EXISTS recalc_jobs (
	id              TEXT PRIMARY KEY,
	municipality_id TEXT NOT NULL,
	effective_year  INTEGER NOT NULL,
	trigger_type    TEXT NOT NULL,
	change_type     TEXT NOT NULL DEFAULT '',
	change_id       TEXT NOT NULL DEFAULT '',
	status          TEXT NOT NULL DEFAULT 'pending',
	progress        JSONB NOT NULL DEFAULT '{}',
	errors          JSONB,
	started_at      TIMESTAMPTZ NOT NULL DEFAULT now(),
	completed_at    TIMESTAMPTZ
);

CREATE INDEX IF NOT EXISTS idx_jobs_muni_status ON recalc_jobs(municipality_id, status);
CREATE INDEX IF NOT EXISTS idx_jobs_started ON recalc_jobs(started_at DESC);

CREATE TABLE IF NOT EXISTS final_billings (
	id              TEXT PRIMARY KEY,
	municipality_id TEXT NOT NULL,
	effective_year  INTEGER NOT NULL,
	warrant_date    TIMESTAMPTZ,
	completed_at    TIMESTAMPTZ NOT NULL DEFAULT now(),
	UNIQUE (municipality_id, effective_year)
);
`

func (s *PostgresStore) Migrate(ctx context.Context) error {
	_, err := s.pool.Exec(ctx, postgresMigration)
	return eris.Wrap(err, "postgres: migrate")
}

func (s *PostgresStore) Ping(ctx context.Context) error {
	_, err := s.pool.Exec(ctx, "SELECT 1")
	return eris.Wrap(err, "postgres: ping")
}

func (s *PostgresStore) Close() error {
	if s.closeFn != nil {
		s.closeFn()
	}
	return nil
}

const landColumns = `id, municipality_id, property_id, card_number, effective_year,
	zone_id, neighborhood_id, site_id, driveway_id, road_id,
	lines, views, waterfronts, totals, last_calculated`

func scanLand(scan func(dest ...any) error) (*model.LandAssessment, error) {
	var a model.LandAssessment
	var linesJSON, viewsJSON, waterfrontsJSON, totalsJSON []byte
	var lastCalc *time.Time

	err := scan(&a.ID, &a.MunicipalityID, &a.PropertyID, &a.CardNumber, &a.EffectiveYear,
		&a.ZoneID, &a.NeighborhoodID, &a.SiteID, &a.DrivewayID, &a.RoadID,
		&linesJSON, &viewsJSON, &waterfrontsJSON, &totalsJSON, &lastCalc)
	if err != nil {
		return nil, err
	}

	if err := json.Unmarshal(linesJSON, &a.Lines); err != nil {
		return nil, eris.Wrap(err, "postgres: unmarshal land lines")
	}
	if err := json.Unmarshal(viewsJSON, &a.Views); err != nil {
		return nil, eris.Wrap(err, "postgres: unmarshal views")
	}
	if err := json.Unmarshal(waterfrontsJSON, &a.Waterfronts); err != nil {
		return nil, eris.Wrap(err, "postgres: unmarshal waterfronts")
	}
	if err := json.Unmarshal(totalsJSON, &a.Totals); err != nil {
		return nil, eris.Wrap(err, "postgres: unmarshal totals")
	}
	if lastCalc != nil {
		a.LastCalculated = *lastCalc
	}
	return &a, nil
}

func marshalLand(a *model.LandAssessment) (lines, views, waterfronts, totals []byte, err error) {
	if lines, err = json.Marshal(a.Lines); err != nil {
		return nil, nil, nil, nil, eris.Wrap(err, "postgres: marshal land lines")
	}
	if views, err = json.Marshal(a.Views); err != nil {
		return nil, nil, nil, nil, eris.Wrap(err, "postgres: marshal views")
	}
	if waterfronts, err = json.Marshal(a.Waterfronts); err != nil {
		return nil, nil, nil, nil, eris.Wrap(err, "postgres: marshal waterfronts")
	}
	if totals, err = json.Marshal(a.Totals); err != nil {
		return nil, nil, nil, nil, eris.Wrap(err, "postgres: marshal totals")
	}
	return lines, views, waterfronts, totals, nil
}

func (s *PostgresStore) ListLandBatch(ctx context.Context, municipalityID string, year int, after Cursor, limit int) ([]model.LandAssessment, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT `+landColumns+` FROM land_assessments
		 WHERE municipality_id = $1 AND effective_year = $2
		   AND (property_id, card_number) > ($3, $4)
		 ORDER BY property_id, card_number
		 LIMIT $5`,
		municipalityID, year, after.PropertyID, after.CardNumber, limit,
	)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: list land batch")
	}
	defer rows.Close()

	var out []model.LandAssessment
	for rows.Next() {
		a, err := scanLand(rows.Scan)
		if err != nil {
			return nil, eris.Wrap(err, "postgres: scan land assessment")
		}
		out = append(out, *a)
	}
	return out, eris.Wrap(rows.Err(), "postgres: list land batch iterate")
}

func (s *PostgresStore) ListLandForProperties(ctx context.Context, municipalityID string, year int, propertyIDs []string) ([]model.LandAssessment, error) {
	if len(propertyIDs) == 0 {
		return nil, nil
	}
	rows, err := s.pool.Query(ctx,
		`SELECT `+landColumns+` FROM land_assessments
		 WHERE municipality_id = $1 AND effective_year = $2 AND property_id = ANY($3)
		 ORDER BY property_id, card_number`,
		municipalityID, year, propertyIDs,
	)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: list land for properties")
	}
	defer rows.Close()

	var out []model.LandAssessment
	for rows.Next() {
		a, err := scanLand(rows.Scan)
		if err != nil {
			return nil, eris.Wrap(err, "postgres: scan land assessment")
		}
		out = append(out, *a)
	}
	return out, eris.Wrap(rows.Err(), "postgres: list land for properties iterate")
}

func (s *PostgresStore) GetLandAssessment(ctx context.Context, municipalityID, propertyID string, cardNumber, year int) (*model.LandAssessment, error) {
	row := s.pool.QueryRow(ctx,
		`SELECT `+landColumns+` FROM land_assessments
		 WHERE municipality_id = $1 AND property_id = $2 AND card_number = $3 AND effective_year = $4`,
		municipalityID, propertyID, cardNumber, year,
	)
	a, err := scanLand(row.Scan)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, eris.Wrapf(err, "postgres: get land assessment %s card %d", propertyID, cardNumber)
	}
	return a, nil
}

func (s *PostgresStore) SaveLandAssessment(ctx context.Context, a *model.LandAssessment) error {
	if a.ID == "" {
		a.ID = uuid.New().String()
	}
	lines, views, waterfronts, totals, err := marshalLand(a)
	if err != nil {
		return err
	}

	_, err = s.pool.Exec(ctx,
		`INSERT INTO land_assessments (`+landColumns+`)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15)
		 ON CONFLICT (municipality_id, property_id, card_number, effective_year) DO UPDATE SET
		   zone_id = EXCLUDED.zone_id, neighborhood_id = EXCLUDED.neighborhood_id,
		   site_id = EXCLUDED.site_id, driveway_id = EXCLUDED.driveway_id, road_id = EXCLUDED.road_id,
		   lines = EXCLUDED.lines, views = EXCLUDED.views, waterfronts = EXCLUDED.waterfronts,
		   totals = EXCLUDED.totals, last_calculated = EXCLUDED.last_calculated`,
		a.ID, a.MunicipalityID, a.PropertyID, a.CardNumber, a.EffectiveYear,
		a.ZoneID, a.NeighborhoodID, a.SiteID, a.DrivewayID, a.RoadID,
		lines, views, waterfronts, totals, nullableTime(a.LastCalculated),
	)
	return eris.Wrapf(err, "postgres: save land assessment %s card %d", a.PropertyID, a.CardNumber)
}

var landUpsert = db.UpsertConfig{
	Table: "land_assessments",
	Columns: []string{"id", "municipality_id", "property_id", "card_number", "effective_year",
		"zone_id", "neighborhood_id", "site_id", "driveway_id", "road_id",
		"lines", "views", "waterfronts", "totals", "last_calculated"},
	ConflictKeys: []string{"municipality_id", "property_id", "card_number", "effective_year"},
	UpdateCols: []string{"zone_id", "neighborhood_id", "site_id", "driveway_id", "road_id",
		"lines", "views", "waterfronts", "totals", "last_calculated"},
}

func (s *PostgresStore) BulkUpsertLandAssessments(ctx context.Context, assessments []model.LandAssessment) (int64, error) {
	rows := make([][]any, 0, len(assessments))
	for i := range assessments {
		a := &assessments[i]
		if a.ID == "" {
			a.ID = uuid.New().String()
		}
		lines, views, waterfronts, totals, err := marshalLand(a)
		if err != nil {
			return 0, err
		}
		rows = append(rows, []any{a.ID, a.MunicipalityID, a.PropertyID, a.CardNumber, a.EffectiveYear,
			a.ZoneID, a.NeighborhoodID, a.SiteID, a.DrivewayID, a.RoadID,
			lines, views, waterfronts, totals, nullableTime(a.LastCalculated)})
	}
	n, err := db.BulkUpsert(ctx, s.pool, landUpsert, rows)
	return n, eris.Wrap(err, "postgres: bulk upsert land assessments")
}

func (s *PostgresStore) CountLandAssessments(ctx context.Context, municipalityID string, year int) (int, error) {
	var n int
	err := s.pool.QueryRow(ctx,
		`SELECT count(*) FROM land_assessments WHERE municipality_id = $1 AND effective_year = $2`,
		municipalityID, year,
	).Scan(&n)
	return n, eris.Wrap(err, "postgres: count land assessments")
}

func (s *PostgresStore) CountStaleLandAssessments(ctx context.Context, municipalityID string, year int, olderThan time.Time) (int, error) {
	var n int
	err := s.pool.QueryRow(ctx,
		`SELECT count(*) FROM land_assessments
		 WHERE municipality_id = $1 AND effective_year = $2
		   AND (last_calculated IS NULL OR last_calculated < $3)`,
		municipalityID, year, olderThan,
	).Scan(&n)
	return n, eris.Wrap(err, "postgres: count stale land assessments")
}

func (s *PostgresStore) ListViewsForProperties(ctx context.Context, municipalityID string, year int, propertyIDs []string) (map[CardRef][]model.ViewRecord, error) {
	out := make(map[CardRef][]model.ViewRecord)
	if len(propertyIDs) == 0 {
		return out, nil
	}
	rows, err := s.pool.Query(ctx,
		`SELECT id, property_id, card_number, subject_id, width_id, distance_id, depth_id, condition_id, base_value
		 FROM property_views
		 WHERE municipality_id = $1 AND effective_year = $2 AND property_id = ANY($3)
		 ORDER BY property_id, card_number, id`,
		municipalityID, year, propertyIDs,
	)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: list views")
	}
	defer rows.Close()

	for rows.Next() {
		var ref CardRef
		var v model.ViewRecord
		if err := rows.Scan(&v.ID, &ref.PropertyID, &ref.CardNumber,
			&v.SubjectID, &v.WidthID, &v.DistanceID, &v.DepthID, &v.ConditionID, &v.BaseValue); err != nil {
			return nil, eris.Wrap(err, "postgres: scan view")
		}
		out[ref] = append(out[ref], v)
	}
	return out, eris.Wrap(rows.Err(), "postgres: list views iterate")
}

func (s *PostgresStore) ListWaterfrontsForProperties(ctx context.Context, municipalityID string, year int, propertyIDs []string) (map[CardRef][]model.WaterfrontRecord, error) {
	out := make(map[CardRef][]model.WaterfrontRecord)
	if len(propertyIDs) == 0 {
		return out, nil
	}
	rows, err := s.pool.Query(ctx,
		`SELECT id, property_id, card_number, frontage_feet, frontage_id, access_id, topography_id, location_id, condition_id, base_value
		 FROM property_waterfronts
		 WHERE municipality_id = $1 AND effective_year = $2 AND property_id = ANY($3)
		 ORDER BY property_id, card_number, id`,
		municipalityID, year, propertyIDs,
	)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: list waterfronts")
	}
	defer rows.Close()

	for rows.Next() {
		var ref CardRef
		var w model.WaterfrontRecord
		if err := rows.Scan(&w.ID, &ref.PropertyID, &ref.CardNumber, &w.FrontageFeet,
			&w.FrontageID, &w.AccessID, &w.TopographyID, &w.LocationID, &w.ConditionID, &w.BaseValue); err != nil {
			return nil, eris.Wrap(err, "postgres: scan waterfront")
		}
		out[ref] = append(out[ref], w)
	}
	return out, eris.Wrap(rows.Err(), "postgres: list waterfronts iterate")
}

const buildingColumns = `id, municipality_id, property_id, card_number, effective_year,
	building_class, features, misc, bedrooms, full_baths, half_baths,
	year_built, condition, effective_area,
	functional_depr_pct, external_depr_pct, physical_depr_pct,
	details, building_value, last_calculated`

func scanBuilding(scan func(dest ...any) error) (*model.BuildingAssessment, error) {
	var b model.BuildingAssessment
	var featuresJSON, miscJSON []byte
	var detailsJSON *[]byte
	var lastCalc *time.Time

	err := scan(&b.ID, &b.MunicipalityID, &b.PropertyID, &b.CardNumber, &b.EffectiveYear,
		&b.BuildingClass, &featuresJSON, &miscJSON, &b.Bedrooms, &b.FullBaths, &b.HalfBaths,
		&b.YearBuilt, &b.Condition, &b.EffectiveArea,
		&b.FunctionalDeprPct, &b.ExternalDeprPct, &b.PhysicalDeprPct,
		&detailsJSON, &b.BuildingValue, &lastCalc)
	if err != nil {
		return nil, err
	}

	if err := json.Unmarshal(featuresJSON, &b.Features); err != nil {
		return nil, eris.Wrap(err, "postgres: unmarshal features")
	}
	if err := json.Unmarshal(miscJSON, &b.Misc); err != nil {
		return nil, eris.Wrap(err, "postgres: unmarshal misc")
	}
	if detailsJSON != nil {
		b.Details = &model.BuildingCalculation{}
		if err := json.Unmarshal(*detailsJSON, b.Details); err != nil {
			return nil, eris.Wrap(err, "postgres: unmarshal calculation details")
		}
	}
	if lastCalc != nil {
		b.LastCalculated = *lastCalc
	}
	return &b, nil
}

func marshalBuilding(b *model.BuildingAssessment) (features, misc, details []byte, err error) {
	if features, err = json.Marshal(b.Features); err != nil {
		return nil, nil, nil, eris.Wrap(err, "postgres: marshal features")
	}
	if misc, err = json.Marshal(b.Misc); err != nil {
		return nil, nil, nil, eris.Wrap(err, "postgres: marshal misc")
	}
	if b.Details != nil {
		if details, err = json.Marshal(b.Details); err != nil {
			return nil, nil, nil, eris.Wrap(err, "postgres: marshal calculation details")
		}
	}
	return features, misc, details, nil
}

func (s *PostgresStore) ListBuildingsForProperties(ctx context.Context, municipalityID string, year int, propertyIDs []string) ([]model.BuildingAssessment, error) {
	if len(propertyIDs) == 0 {
		return nil, nil
	}
	rows, err := s.pool.Query(ctx,
		`SELECT `+buildingColumns+` FROM building_assessments
		 WHERE municipality_id = $1 AND effective_year = $2 AND property_id = ANY($3)
		 ORDER BY property_id, card_number`,
		municipalityID, year, propertyIDs,
	)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: list buildings")
	}
	defer rows.Close()

	var out []model.BuildingAssessment
	for rows.Next() {
		b, err := scanBuilding(rows.Scan)
		if err != nil {
			return nil, eris.Wrap(err, "postgres: scan building assessment")
		}
		out = append(out, *b)
	}
	return out, eris.Wrap(rows.Err(), "postgres: list buildings iterate")
}

func (s *PostgresStore) GetBuildingAssessment(ctx context.Context, municipalityID, propertyID string, cardNumber, year int) (*model.BuildingAssessment, error) {
	row := s.pool.QueryRow(ctx,
		`SELECT `+buildingColumns+` FROM building_assessments
		 WHERE municipality_id = $1 AND property_id = $2 AND card_number = $3 AND effective_year = $4`,
		municipalityID, propertyID, cardNumber, year,
	)
	b, err := scanBuilding(row.Scan)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, eris.Wrapf(err, "postgres: get building assessment %s card %d", propertyID, cardNumber)
	}
	return b, nil
}

func (s *PostgresStore) SaveBuildingAssessment(ctx context.Context, b *model.BuildingAssessment) error {
	if b.ID == "" {
		b.ID = uuid.New().String()
	}
	features, misc, details, err := marshalBuilding(b)
	if err != nil {
		return err
	}

	_, err = s.pool.Exec(ctx,
		`INSERT INTO building_assessments (`+buildingColumns+`)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17, $18, $19, $20)
		 ON CONFLICT (municipality_id, property_id, card_number, effective_year) DO UPDATE SET
		   building_class = EXCLUDED.building_class, features = EXCLUDED.features, misc = EXCLUDED.misc,
		   bedrooms = EXCLUDED.bedrooms, full_baths = EXCLUDED.full_baths, half_baths = EXCLUDED.half_baths,
		   year_built = EXCLUDED.year_built, condition = EXCLUDED.condition, effective_area = EXCLUDED.effective_area,
		   functional_depr_pct = EXCLUDED.functional_depr_pct, external_depr_pct = EXCLUDED.external_depr_pct,
		   physical_depr_pct = EXCLUDED.physical_depr_pct, details = EXCLUDED.details,
		   building_value = EXCLUDED.building_value, last_calculated = EXCLUDED.last_calculated`,
		b.ID, b.MunicipalityID, b.PropertyID, b.CardNumber, b.EffectiveYear,
		string(b.BuildingClass), features, misc, b.Bedrooms, b.FullBaths, b.HalfBaths,
		b.YearBuilt, string(b.Condition), b.EffectiveArea,
		b.FunctionalDeprPct, b.ExternalDeprPct, b.PhysicalDeprPct,
		details, b.BuildingValue, nullableTime(b.LastCalculated),
	)
	return eris.Wrapf(err, "postgres: save building assessment %s card %d", b.PropertyID, b.CardNumber)
}

var buildingUpsert = db.UpsertConfig{
	Table: "building_assessments",
	Columns: []string{"id", "municipality_id", "property_id", "card_number", "effective_year",
		"building_class", "features", "misc", "bedrooms", "full_baths", "half_baths",
		"year_built", "condition", "effective_area",
		"functional_depr_pct", "external_depr_pct", "physical_depr_pct",
		"details", "building_value", "last_calculated"},
	ConflictKeys: []string{"municipality_id", "property_id", "card_number", "effective_year"},
	UpdateCols: []string{"building_class", "features", "misc", "bedrooms", "full_baths", "half_baths",
		"year_built", "condition", "effective_area",
		"functional_depr_pct", "external_depr_pct", "physical_depr_pct",
		"details", "building_value", "last_calculated"},
}

func (s *PostgresStore) BulkUpsertBuildingAssessments(ctx context.Context, assessments []model.BuildingAssessment) (int64, error) {
	rows := make([][]any, 0, len(assessments))
	for i := range assessments {
		b := &assessments[i]
		if b.ID == "" {
			b.ID = uuid.New().String()
		}
		features, misc, details, err := marshalBuilding(b)
		if err != nil {
			return 0, err
		}
		rows = append(rows, []any{b.ID, b.MunicipalityID, b.PropertyID, b.CardNumber, b.EffectiveYear,
			string(b.BuildingClass), features, misc, b.Bedrooms, b.FullBaths, b.HalfBaths,
			b.YearBuilt, string(b.Condition), b.EffectiveArea,
			b.FunctionalDeprPct, b.ExternalDeprPct, b.PhysicalDeprPct,
			details, b.BuildingValue, nullableTime(b.LastCalculated)})
	}
	n, err := db.BulkUpsert(ctx, s.pool, buildingUpsert, rows)
	return n, eris.Wrap(err, "postgres: bulk upsert building assessments")
}

func (s *PostgresStore) ListFeatureValuesForProperties(ctx context.Context, municipalityID string, year int, propertyIDs []string) ([]model.FeatureAssessment, error) {
	if len(propertyIDs) == 0 {
		return nil, nil
	}
	rows, err := s.pool.Query(ctx,
		`SELECT property_id, card_number, effective_year, feature_value
		 FROM feature_assessments
		 WHERE municipality_id = $1 AND effective_year = $2 AND property_id = ANY($3)
		 ORDER BY property_id, card_number`,
		municipalityID, year, propertyIDs,
	)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: list feature values")
	}
	defer rows.Close()

	var out []model.FeatureAssessment
	for rows.Next() {
		var f model.FeatureAssessment
		if err := rows.Scan(&f.PropertyID, &f.CardNumber, &f.EffectiveYear, &f.FeatureValue); err != nil {
			return nil, eris.Wrap(err, "postgres: scan feature value")
		}
		out = append(out, f)
	}
	return out, eris.Wrap(rows.Err(), "postgres: list feature values iterate")
}

func (s *PostgresStore) GetParcelAssessment(ctx context.Context, municipalityID, propertyID string, year int) (*model.ParcelAssessment, error) {
	var p model.ParcelAssessment
	var totalsJSON, cardsJSON []byte
	var lastCalc *time.Time

	err := s.pool.QueryRow(ctx,
		`SELECT id, municipality_id, property_id, effective_year, totals, cards, last_calculated
		 FROM parcel_assessments
		 WHERE municipality_id = $1 AND property_id = $2 AND effective_year = $3`,
		municipalityID, propertyID, year,
	).Scan(&p.ID, &p.MunicipalityID, &p.PropertyID, &p.EffectiveYear, &totalsJSON, &cardsJSON, &lastCalc)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, eris.Wrapf(err, "postgres: get parcel assessment %s", propertyID)
	}

	if err := json.Unmarshal(totalsJSON, &p.Totals); err != nil {
		return nil, eris.Wrap(err, "postgres: unmarshal parcel totals")
	}
	if err := json.Unmarshal(cardsJSON, &p.CardAssessments); err != nil {
		return nil, eris.Wrap(err, "postgres: unmarshal card assessments")
	}
	if lastCalc != nil {
		p.LastCalculated = *lastCalc
	}
	return &p, nil
}

func (s *PostgresStore) ListParcelAssessments(ctx context.Context, municipalityID string, year int) ([]model.ParcelAssessment, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT id, municipality_id, property_id, effective_year, totals, cards, last_calculated
		 FROM parcel_assessments
		 WHERE municipality_id = $1 AND effective_year = $2
		 ORDER BY property_id`,
		municipalityID, year,
	)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: list parcel assessments")
	}
	defer rows.Close()

	var out []model.ParcelAssessment
	for rows.Next() {
		var p model.ParcelAssessment
		var totalsJSON, cardsJSON []byte
		var lastCalc *time.Time
		if err := rows.Scan(&p.ID, &p.MunicipalityID, &p.PropertyID, &p.EffectiveYear,
			&totalsJSON, &cardsJSON, &lastCalc); err != nil {
			return nil, eris.Wrap(err, "postgres: scan parcel assessment")
		}
		if err := json.Unmarshal(totalsJSON, &p.Totals); err != nil {
			return nil, eris.Wrap(err, "postgres: unmarshal parcel totals")
		}
		if err := json.Unmarshal(cardsJSON, &p.CardAssessments); err != nil {
			return nil, eris.Wrap(err, "postgres: unmarshal card assessments")
		}
		if lastCalc != nil {
			p.LastCalculated = *lastCalc
		}
		out = append(out, p)
	}
	return out, eris.Wrap(rows.Err(), "postgres: list parcel assessments iterate")
}

var parcelUpsert = db.UpsertConfig{
	Table: "parcel_assessments",
	Columns: []string{"id", "municipality_id", "property_id", "effective_year",
		"totals", "cards", "last_calculated"},
	ConflictKeys: []string{"municipality_id", "property_id", "effective_year"},
	UpdateCols:   []string{"totals", "cards", "last_calculated"},
}

func (s *PostgresStore) BulkUpsertParcelAssessments(ctx context.Context, parcels []model.ParcelAssessment) (int64, error) {
	rows := make([][]any, 0, len(parcels))
	for i := range parcels {
		p := &parcels[i]
		if p.ID == "" {
			p.ID = uuid.New().String()
		}
		totals, err := json.Marshal(p.Totals)
		if err != nil {
			return 0, eris.Wrap(err, "postgres: marshal parcel totals")
		}
		cards, err := json.Marshal(p.CardAssessments)
		if err != nil {
			return 0, eris.Wrap(err, "postgres: marshal card assessments")
		}
		rows = append(rows, []any{p.ID, p.MunicipalityID, p.PropertyID, p.EffectiveYear,
			totals, cards, nullableTime(p.LastCalculated)})
	}
	n, err := db.BulkUpsert(ctx, s.pool, parcelUpsert, rows)
	return n, eris.Wrap(err, "postgres: bulk upsert parcel assessments")
}

// EnsureAssessmentYear copies land, building, view, waterfront, and
// feature records into the target effective year, skipping cards the
// target year already has. Each card copies from its own most recent
// prior year, so a card last touched two or more years back still
// carries forward. History is never mutated.
func (s *PostgresStore) EnsureAssessmentYear(ctx context.Context, municipalityID string, year int) (int64, error) {
	statements := []string{
		`INSERT INTO land_assessments (id, municipality_id, property_id, card_number, effective_year,
		   zone_id, neighborhood_id, site_id, driveway_id, road_id, lines, views, waterfronts, totals, last_calculated)
		 SELECT gen_random_uuid()::text, src.municipality_id, src.property_id, src.card_number, $2,
		   src.zone_id, src.neighborhood_id, src.site_id, src.driveway_id, src.road_id,
		   src.lines, src.views, src.waterfronts, src.totals, NULL
		 FROM land_assessments src
		 WHERE src.municipality_id = $1
		   AND src.effective_year = (SELECT MAX(prior.effective_year) FROM land_assessments prior
		     WHERE prior.municipality_id = src.municipality_id AND prior.property_id = src.property_id
		       AND prior.card_number = src.card_number AND prior.effective_year < $2)
		   AND NOT EXISTS (SELECT 1 FROM land_assessments dst
		     WHERE dst.municipality_id = src.municipality_id AND dst.property_id = src.property_id
		       AND dst.card_number = src.card_number AND dst.effective_year = $2)`,
		`INSERT INTO building_assessments (id, municipality_id, property_id, card_number, effective_year,
		   building_class, features, misc, bedrooms, full_baths, half_baths, year_built, condition, effective_area,
		   functional_depr_pct, external_depr_pct, physical_depr_pct, details, building_value, last_calculated)
		 SELECT gen_random_uuid()::text, src.municipality_id, src.property_id, src.card_number, $2,
		   src.building_class, src.features, src.misc, src.bedrooms, src.full_baths, src.half_baths,
		   src.year_built, src.condition, src.effective_area,
		   src.functional_depr_pct, src.external_depr_pct, src.physical_depr_pct, src.details, src.building_value, NULL
		 FROM building_assessments src
		 WHERE src.municipality_id = $1
		   AND src.effective_year = (SELECT MAX(prior.effective_year) FROM building_assessments prior
		     WHERE prior.municipality_id = src.municipality_id AND prior.property_id = src.property_id
		       AND prior.card_number = src.card_number AND prior.effective_year < $2)
		   AND NOT EXISTS (SELECT 1 FROM building_assessments dst
		     WHERE dst.municipality_id = src.municipality_id AND dst.property_id = src.property_id
		       AND dst.card_number = src.card_number AND dst.effective_year = $2)`,
		`INSERT INTO property_views (id, municipality_id, property_id, card_number, effective_year,
		   subject_id, width_id, distance_id, depth_id, condition_id, base_value)
		 SELECT gen_random_uuid()::text, src.municipality_id, src.property_id, src.card_number, $2,
		   src.subject_id, src.width_id, src.distance_id, src.depth_id, src.condition_id, src.base_value
		 FROM property_views src
		 WHERE src.municipality_id = $1
		   AND src.effective_year = (SELECT MAX(prior.effective_year) FROM property_views prior
		     WHERE prior.municipality_id = src.municipality_id AND prior.property_id = src.property_id
		       AND prior.card_number = src.card_number AND prior.effective_year < $2)
		   AND NOT EXISTS (SELECT 1 FROM property_views dst
		     WHERE dst.municipality_id = src.municipality_id AND dst.property_id = src.property_id
		       AND dst.card_number = src.card_number AND dst.effective_year = $2)`,
		`INSERT INTO property_waterfronts (id, municipality_id, property_id, card_number, effective_year,
		   frontage_feet, frontage_id, access_id, topography_id, location_id, condition_id, base_value)
		 SELECT gen_random_uuid()::text, src.municipality_id, src.property_id, src.card_number, $2,
		   src.frontage_feet, src.frontage_id, src.access_id, src.topography_id, src.location_id, src.condition_id, src.base_value
		 FROM property_waterfronts src
		 WHERE src.municipality_id = $1
		   AND src.effective_year = (SELECT MAX(prior.effective_year) FROM property_waterfronts prior
		     WHERE prior.municipality_id = src.municipality_id AND prior.property_id = src.property_id
		       AND prior.card_number = src.card_number AND prior.effective_year < $2)
		   AND NOT EXISTS (SELECT 1 FROM property_waterfronts dst
		     WHERE dst.municipality_id = src.municipality_id AND dst.property_id = src.property_id
		       AND dst.card_number = src.card_number AND dst.effective_year = $2)`,
		`INSERT INTO feature_assessments (municipality_id, property_id, card_number, effective_year, feature_value)
		 SELECT src.municipality_id, src.property_id, src.card_number, $2, src.feature_value
		 FROM feature_assessments src
		 WHERE src.municipality_id = $1
		   AND src.effective_year = (SELECT MAX(prior.effective_year) FROM feature_assessments prior
		     WHERE prior.municipality_id = src.municipality_id AND prior.property_id = src.property_id
		       AND prior.card_number = src.card_number AND prior.effective_year < $2)
		 ON CONFLICT (municipality_id, property_id, card_number, effective_year) DO NOTHING`,
	}

	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return 0, eris.Wrap(err, "postgres: ensure year: begin tx")
	}
	defer tx.Rollback(ctx)

	var copied int64
	for _, stmt := range statements {
		tag, err := tx.Exec(ctx, stmt, municipalityID, year)
		if err != nil {
			return 0, eris.Wrapf(err, "postgres: ensure year %d", year)
		}
		copied += tag.RowsAffected()
	}
	if err := tx.Commit(ctx); err != nil {
		return 0, eris.Wrap(err, "postgres: ensure year: commit tx")
	}
	return copied, nil
}

func (s *PostgresStore) listPropertyIDs(ctx context.Context, label, query string, args ...any) ([]string, error) {
	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, eris.Wrapf(err, "postgres: list property ids by %s", label)
	}
	defer rows.Close()

	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, eris.Wrapf(err, "postgres: scan property id (%s)", label)
		}
		ids = append(ids, id)
	}
	return ids, eris.Wrapf(rows.Err(), "postgres: list property ids by %s iterate", label)
}

func (s *PostgresStore) ListPropertyIDsByZone(ctx context.Context, municipalityID string, year int, zoneID string) ([]string, error) {
	return s.listPropertyIDs(ctx, "zone",
		`SELECT DISTINCT property_id FROM land_assessments
		 WHERE municipality_id = $1 AND effective_year = $2 AND zone_id = $3
		 ORDER BY property_id`,
		municipalityID, year, zoneID)
}

func (s *PostgresStore) ListPropertyIDsByNeighborhood(ctx context.Context, municipalityID string, year int, neighborhoodID string) ([]string, error) {
	return s.listPropertyIDs(ctx, "neighborhood",
		`SELECT DISTINCT property_id FROM land_assessments
		 WHERE municipality_id = $1 AND effective_year = $2 AND neighborhood_id = $3
		 ORDER BY property_id`,
		municipalityID, year, neighborhoodID)
}

func (s *PostgresStore) ListPropertyIDsByCurrentUse(ctx context.Context, municipalityID string, year int, categoryID string) ([]string, error) {
	return s.listPropertyIDs(ctx, "current use",
		`SELECT DISTINCT property_id FROM land_assessments
		 WHERE municipality_id = $1 AND effective_year = $2
		   AND EXISTS (SELECT 1 FROM jsonb_array_elements(lines) ln
		     WHERE ln->>'current_use_category_id' = $3)
		 ORDER BY property_id`,
		municipalityID, year, categoryID)
}

func (s *PostgresStore) ListPropertyIDsByLandUseType(ctx context.Context, municipalityID string, year int, landUseType string) ([]string, error) {
	return s.listPropertyIDs(ctx, "land use type",
		`SELECT DISTINCT property_id FROM land_assessments
		 WHERE municipality_id = $1 AND effective_year = $2
		   AND EXISTS (SELECT 1 FROM jsonb_array_elements(lines) ln
		     WHERE ln->>'land_use_type' = $3)
		 ORDER BY property_id`,
		municipalityID, year, landUseType)
}

func (s *PostgresStore) ListPropertyIDsByViewAttribute(ctx context.Context, municipalityID string, year int, attributeID string) ([]string, error) {
	return s.listPropertyIDs(ctx, "view attribute",
		`SELECT DISTINCT property_id FROM property_views
		 WHERE municipality_id = $1 AND effective_year = $2
		   AND $3 IN (subject_id, width_id, distance_id, depth_id, condition_id)
		 ORDER BY property_id`,
		municipalityID, year, attributeID)
}

func (s *PostgresStore) CreateJob(ctx context.Context, job *model.RecalcJob) error {
	if job.ID == "" {
		job.ID = uuid.New().String()
	}
	if job.StartedAt.IsZero() {
		job.StartedAt = time.Now().UTC()
	}
	progress, err := json.Marshal(job.Progress)
	if err != nil {
		return eris.Wrap(err, "postgres: marshal job progress")
	}

	_, err = s.pool.Exec(ctx,
		`INSERT INTO recalc_jobs (id, municipality_id, effective_year, trigger_type, change_type, change_id, status, progress, started_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)`,
		job.ID, job.MunicipalityID, job.EffectiveYear, string(job.Trigger),
		string(job.ChangeType), job.ChangeID, string(job.Status), progress, job.StartedAt,
	)
	return eris.Wrapf(err, "postgres: insert job %s", job.ID)
}

func (s *PostgresStore) UpdateJobProgress(ctx context.Context, jobID string, progress model.Progress) error {
	encoded, err := json.Marshal(progress)
	if err != nil {
		return eris.Wrap(err, "postgres: marshal job progress")
	}
	tag, err := s.pool.Exec(ctx,
		`UPDATE recalc_jobs SET status = $1, progress = $2 WHERE id = $3`,
		string(model.JobRunning), encoded, jobID,
	)
	if err != nil {
		return eris.Wrapf(err, "postgres: update job progress %s", jobID)
	}
	if tag.RowsAffected() == 0 {
		return eris.Errorf("job not found: %s", jobID)
	}
	return nil
}

func (s *PostgresStore) CompleteJob(ctx context.Context, jobID string, status model.JobStatus, progress model.Progress, recordErrors []model.RecordError) error {
	progressJSON, err := json.Marshal(progress)
	if err != nil {
		return eris.Wrap(err, "postgres: marshal job progress")
	}
	var errorsJSON []byte
	if len(recordErrors) > 0 {
		if errorsJSON, err = json.Marshal(recordErrors); err != nil {
			return eris.Wrap(err, "postgres: marshal record errors")
		}
	}

	tag, err := s.pool.Exec(ctx,
		`UPDATE recalc_jobs SET status = $1, progress = $2, errors = $3, completed_at = $4 WHERE id = $5`,
		string(status), progressJSON, errorsJSON, time.Now().UTC(), jobID,
	)
	if err != nil {
		return eris.Wrapf(err, "postgres: complete job %s", jobID)
	}
	if tag.RowsAffected() == 0 {
		return eris.Errorf("job not found: %s", jobID)
	}
	return nil
}

const jobColumns = `id, municipality_id, effective_year, trigger_type, change_type, change_id,
	status, progress, errors, started_at, completed_at`

func scanJob(scan func(dest ...any) error) (*model.RecalcJob, error) {
	var j model.RecalcJob
	var progressJSON []byte
	var errorsJSON *[]byte

	err := scan(&j.ID, &j.MunicipalityID, &j.EffectiveYear, &j.Trigger, &j.ChangeType, &j.ChangeID,
		&j.Status, &progressJSON, &errorsJSON, &j.StartedAt, &j.CompletedAt)
	if err != nil {
		return nil, err
	}
	if err := json.Unmarshal(progressJSON, &j.Progress); err != nil {
		return nil, eris.Wrap(err, "postgres: unmarshal job progress")
	}
	if errorsJSON != nil {
		if err := json.Unmarshal(*errorsJSON, &j.Errors); err != nil {
			return nil, eris.Wrap(err, "postgres: unmarshal record errors")
		}
	}
	return &j, nil
}

func (s *PostgresStore) GetJob(ctx context.Context, jobID string) (*model.RecalcJob, error) {
	row := s.pool.QueryRow(ctx,
		`SELECT `+jobColumns+` FROM recalc_jobs WHERE id = $1`, jobID)
	j, err := scanJob(row.Scan)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, eris.Wrapf(err, "postgres: get job %s", jobID)
	}
	return j, nil
}

func (s *PostgresStore) ListJobs(ctx context.Context, filter JobFilter) ([]model.RecalcJob, error) {
	query := `SELECT ` + jobColumns + ` FROM recalc_jobs WHERE true`
	args := []any{}
	argIdx := 1

	if filter.MunicipalityID != "" {
		query += fmt.Sprintf(` AND municipality_id = $%d`, argIdx)
		args = append(args, filter.MunicipalityID)
		argIdx++
	}
	if filter.Status != "" {
		query += fmt.Sprintf(` AND status = $%d`, argIdx)
		args = append(args, string(filter.Status))
		argIdx++
	}
	if !filter.Since.IsZero() {
		query += fmt.Sprintf(` AND started_at >= $%d`, argIdx)
		args = append(args, filter.Since)
		argIdx++
	}
	query += ` ORDER BY started_at DESC`

	limit := filter.Limit
	if limit <= 0 {
		limit = 100
	}
	query += fmt.Sprintf(` LIMIT $%d`, argIdx)
	args = append(args, limit)

	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: list jobs")
	}
	defer rows.Close()

	var jobs []model.RecalcJob
	for rows.Next() {
		j, err := scanJob(rows.Scan)
		if err != nil {
			return nil, eris.Wrap(err, "postgres: scan job")
		}
		jobs = append(jobs, *j)
	}
	return jobs, eris.Wrap(rows.Err(), "postgres: list jobs iterate")
}

func (s *PostgresStore) GetFinalBilling(ctx context.Context, municipalityID string, year int) (*model.FinalBilling, error) {
	var fb model.FinalBilling
	var warrant *time.Time
	err := s.pool.QueryRow(ctx,
		`SELECT id, municipality_id, effective_year, warrant_date, completed_at
		 FROM final_billings WHERE municipality_id = $1 AND effective_year = $2`,
		municipalityID, year,
	).Scan(&fb.ID, &fb.MunicipalityID, &fb.EffectiveYear, &warrant, &fb.CompletedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, eris.Wrapf(err, "postgres: get final billing %d", year)
	}
	if warrant != nil {
		fb.WarrantDate = *warrant
	}
	return &fb, nil
}

func (s *PostgresStore) CreateFinalBilling(ctx context.Context, fb *model.FinalBilling) error {
	if fb.ID == "" {
		fb.ID = uuid.New().String()
	}
	if fb.CompletedAt.IsZero() {
		fb.CompletedAt = time.Now().UTC()
	}
	_, err := s.pool.Exec(ctx,
		`INSERT INTO final_billings (id, municipality_id, effective_year, warrant_date, completed_at)
		 VALUES ($1, $2, $3, $4, $5)
		 ON CONFLICT (municipality_id, effective_year) DO NOTHING`,
		fb.ID, fb.MunicipalityID, fb.EffectiveYear, nullableTime(fb.WarrantDate), fb.CompletedAt,
	)
	return eris.Wrapf(err, "postgres: create final billing %d", fb.EffectiveYear)
}

func nullableTime(t time.Time) *time.Time {
	if t.IsZero() {
		return nil
	}
	return &t
}
