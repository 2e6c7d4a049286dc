package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rotisserie/eris"
	_ "modernc.org/sqlite"

	"github.com/chadRoberge/avitar-suite-sub003/internal/model"
)

// SQLiteStore implements Store using modernc.org/sqlite. It serves
// single-office and development deployments; bulk upserts run as a
// transaction of per-row statements instead of COPY.
type SQLiteStore struct {
	db *sql.DB
}

// NewSQLite opens a SQLite database at the given path and configures WAL mode.
func NewSQLite(dsn string) (*SQLiteStore, error) {
	sqlDB, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: open")
	}
	for _, pragma := range []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA busy_timeout=5000",
		"PRAGMA synchronous=NORMAL",
		"PRAGMA foreign_keys=ON",
	} {
		if _, err := sqlDB.Exec(pragma); err != nil {
			sqlDB.Close()
			return nil, eris.Wrapf(err, "sqlite: exec %s", pragma)
		}
	}
	return &SQLiteStore{db: sqlDB}, nil
}

const sqliteMigration = `
CREATE TABLE IF NOT EXISTS zones (
	id                        TEXT PRIMARY KEY,
	municipality_id           TEXT NOT NULL,
	code                      TEXT NOT NULL,
	name                      TEXT NOT NULL DEFAULT '',
	minimum_acreage           REAL NOT NULL DEFAULT 0,
	minimum_frontage          REAL NOT NULL DEFAULT 0,
	excess_land_cost_per_acre REAL NOT NULL DEFAULT 0,
	base_view_value           REAL NOT NULL DEFAULT 0,
	active                    INTEGER NOT NULL DEFAULT 1,
	UNIQUE (municipality_id, code)
);

CREATE TABLE IF NOT EXISTS land_ladders (
	zone_id         TEXT NOT NULL REFERENCES zones(id),
	municipality_id TEXT NOT NULL,
	acreage         REAL NOT NULL,
	value           REAL NOT NULL,
	sort_order      INTEGER NOT NULL DEFAULT 0,
	UNIQUE (zone_id, acreage)
);

CREATE TABLE IF NOT EXISTS attributes (
	id              TEXT PRIMARY KEY,
	municipality_id TEXT NOT NULL,
	kind            TEXT NOT NULL,
	code            TEXT NOT NULL,
	name            TEXT NOT NULL DEFAULT '',
	factor          REAL NOT NULL DEFAULT 1.0,
	UNIQUE (municipality_id, kind, code)
);

CREATE TABLE IF NOT EXISTS current_use_categories (
	id              TEXT PRIMARY KEY,
	municipality_id TEXT NOT NULL,
	code            TEXT NOT NULL,
	name            TEXT NOT NULL DEFAULT '',
	rate_per_acre   REAL NOT NULL DEFAULT 0,
	UNIQUE (municipality_id, code)
);

CREATE TABLE IF NOT EXISTS feature_points (
	id              TEXT PRIMARY KEY,
	municipality_id TEXT NOT NULL,
	category        TEXT NOT NULL,
	code            TEXT NOT NULL,
	name            TEXT NOT NULL DEFAULT '',
	points          REAL NOT NULL DEFAULT 0,
	UNIQUE (municipality_id, category, code)
);

CREATE TABLE IF NOT EXISTS calculation_configs (
	municipality_id TEXT NOT NULL,
	effective_year  INTEGER NOT NULL,
	config          TEXT NOT NULL,
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
	lines           TEXT NOT NULL DEFAULT '[]',
	views           TEXT NOT NULL DEFAULT '[]',
	waterfronts     TEXT NOT NULL DEFAULT '[]',
	totals          TEXT NOT NULL DEFAULT '{}',
	last_calculated DATETIME,
	UNIQUE (municipality_id, property_id, card_number, effective_year)
);

CREATE INDEX IF NOT EXISTS idx_land_muni_year ON land_assessments(municipality_id, effective_year, property_id, card_number);

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
	base_value      REAL NOT NULL DEFAULT 0
);

CREATE INDEX IF NOT EXISTS idx_views_property ON property_views(municipality_id, effective_year, property_id);

CREATE TABLE IF NOT EXISTS property_waterfronts (
	id              TEXT PRIMARY KEY,
	municipality_id TEXT NOT NULL,
	property_id     TEXT NOT NULL,
	card_number     INTEGER NOT NULL,
	effective_year  INTEGER NOT NULL,
	frontage_feet   REAL NOT NULL DEFAULT 0,
	frontage_id     TEXT NOT NULL DEFAULT '',
	access_id       TEXT NOT NULL DEFAULT '',
	topography_id   TEXT NOT NULL DEFAULT '',
	location_id     TEXT NOT NULL DEFAULT '',
	condition_id    TEXT NOT NULL DEFAULT '',
	base_value      REAL NOT NULL DEFAULT 0
);

CREATE INDEX IF NOT EXISTS idx_waterfronts_property ON property_waterfronts(municipality_id, effective_year, property_id);

CREATE TABLE IF NOT EXISTS building_assessments (
	id                  TEXT PRIMARY KEY,
	municipality_id     TEXT NOT NULL,
	property_id         TEXT NOT NULL,
	card_number         INTEGER NOT NULL,
	effective_year      INTEGER NOT NULL,
	building_class      TEXT NOT NULL DEFAULT 'residential',
	features            TEXT NOT NULL DEFAULT '{}',
	misc                TEXT NOT NULL DEFAULT '{}',
	bedrooms            INTEGER NOT NULL DEFAULT 0,
	full_baths          INTEGER NOT NULL DEFAULT 0,
	half_baths          INTEGER NOT NULL DEFAULT 0,
	year_built          INTEGER NOT NULL DEFAULT 0,
	condition           TEXT NOT NULL DEFAULT 'average',
	effective_area      REAL NOT NULL DEFAULT 0,
	functional_depr_pct REAL NOT NULL DEFAULT 0,
	external_depr_pct   REAL NOT NULL DEFAULT 0,
	physical_depr_pct   REAL NOT NULL DEFAULT 0,
	details             TEXT,
	building_value      REAL NOT NULL DEFAULT 0,
	last_calculated     DATETIME,
	UNIQUE (municipality_id, property_id, card_number, effective_year)
);

CREATE TABLE IF NOT EXISTS feature_assessments (
	municipality_id TEXT NOT NULL,
	property_id     TEXT NOT NULL,
	card_number     INTEGER NOT NULL,
	effective_year  INTEGER NOT NULL,
	feature_value   REAL NOT NULL DEFAULT 0,
	PRIMARY KEY (municipality_id, property_id, card_number, effective_year)
);

CREATE TABLE IF NOT EXISTS parcel_assessments (
	id              TEXT PRIMARY KEY,
	municipality_id TEXT NOT NULL,
	property_id     TEXT NOT NULL,
	effective_year  INTEGER NOT NULL,
	totals          TEXT NOT NULL DEFAULT '{}',
	cards           TEXT NOT NULL DEFAULT '[]',
	last_calculated DATETIME,
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
	progress        TEXT NOT NULL DEFAULT '{}',
	errors          TEXT,
	started_at      DATETIME NOT NULL DEFAULT (datetime('now')),
	completed_at    DATETIME
);

CREATE INDEX IF NOT EXISTS idx_jobs_muni_status ON recalc_jobs(municipality_id, status);

CREATE TABLE IF NOT EXISTS final_billings (
	id              TEXT PRIMARY KEY,
	municipality_id TEXT NOT NULL,
	effective_year  INTEGER NOT NULL,
	warrant_date    DATETIME,
	completed_at    DATETIME NOT NULL DEFAULT (datetime('now')),
	UNIQUE (municipality_id, effective_year)
);
`

func (s *SQLiteStore) Migrate(ctx context.Context) error {
	_, err := s.db.ExecContext(ctx, sqliteMigration)
	return eris.Wrap(err, "sqlite: migrate")
}

func (s *SQLiteStore) Ping(ctx context.Context) error {
	return eris.Wrap(s.db.PingContext(ctx), "sqlite: ping")
}

func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

// DB exposes the handle for the SQLite reference-data provider.
func (s *SQLiteStore) DB() *sql.DB {
	return s.db
}

func inPlaceholders(n int) string {
	return strings.TrimSuffix(strings.Repeat("?,", n), ",")
}

func idArgs(municipalityID string, year int, propertyIDs []string) []any {
	args := make([]any, 0, len(propertyIDs)+2)
	args = append(args, municipalityID, year)
	for _, id := range propertyIDs {
		args = append(args, id)
	}
	return args
}

const sqliteLandColumns = `id, municipality_id, property_id, card_number, effective_year,
	zone_id, neighborhood_id, site_id, driveway_id, road_id,
	lines, views, waterfronts, totals, last_calculated`

func (s *SQLiteStore) queryLand(ctx context.Context, query string, args ...any) ([]model.LandAssessment, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: query land assessments")
	}
	defer rows.Close()

	var out []model.LandAssessment
	for rows.Next() {
		a, err := scanLand(rows.Scan)
		if err != nil {
			return nil, eris.Wrap(err, "sqlite: scan land assessment")
		}
		out = append(out, *a)
	}
	return out, eris.Wrap(rows.Err(), "sqlite: land assessments iterate")
}

func (s *SQLiteStore) ListLandBatch(ctx context.Context, municipalityID string, year int, after Cursor, limit int) ([]model.LandAssessment, error) {
	return s.queryLand(ctx,
		`SELECT `+sqliteLandColumns+` FROM land_assessments
		 WHERE municipality_id = ? AND effective_year = ?
		   AND (property_id > ? OR (property_id = ? AND card_number > ?))
		 ORDER BY property_id, card_number
		 LIMIT ?`,
		municipalityID, year, after.PropertyID, after.PropertyID, after.CardNumber, limit)
}

func (s *SQLiteStore) ListLandForProperties(ctx context.Context, municipalityID string, year int, propertyIDs []string) ([]model.LandAssessment, error) {
	if len(propertyIDs) == 0 {
		return nil, nil
	}
	return s.queryLand(ctx,
		`SELECT `+sqliteLandColumns+` FROM land_assessments
		 WHERE municipality_id = ? AND effective_year = ? AND property_id IN (`+inPlaceholders(len(propertyIDs))+`)
		 ORDER BY property_id, card_number`,
		idArgs(municipalityID, year, propertyIDs)...)
}

func (s *SQLiteStore) GetLandAssessment(ctx context.Context, municipalityID, propertyID string, cardNumber, year int) (*model.LandAssessment, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT `+sqliteLandColumns+` FROM land_assessments
		 WHERE municipality_id = ? AND property_id = ? AND card_number = ? AND effective_year = ?`,
		municipalityID, propertyID, cardNumber, year,
	)
	a, err := scanLand(row.Scan)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, eris.Wrapf(err, "sqlite: get land assessment %s card %d", propertyID, cardNumber)
	}
	return a, nil
}

const sqliteLandUpsert = `INSERT INTO land_assessments (` + sqliteLandColumns + `)
 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
 ON CONFLICT (municipality_id, property_id, card_number, effective_year) DO UPDATE SET
   zone_id = excluded.zone_id, neighborhood_id = excluded.neighborhood_id,
   site_id = excluded.site_id, driveway_id = excluded.driveway_id, road_id = excluded.road_id,
   lines = excluded.lines, views = excluded.views, waterfronts = excluded.waterfronts,
   totals = excluded.totals, last_calculated = excluded.last_calculated`

func landArgs(a *model.LandAssessment) ([]any, error) {
	if a.ID == "" {
		a.ID = uuid.New().String()
	}
	lines, views, waterfronts, totals, err := marshalLand(a)
	if err != nil {
		return nil, err
	}
	return []any{a.ID, a.MunicipalityID, a.PropertyID, a.CardNumber, a.EffectiveYear,
		a.ZoneID, a.NeighborhoodID, a.SiteID, a.DrivewayID, a.RoadID,
		string(lines), string(views), string(waterfronts), string(totals), nullableTime(a.LastCalculated)}, nil
}

func (s *SQLiteStore) SaveLandAssessment(ctx context.Context, a *model.LandAssessment) error {
	args, err := landArgs(a)
	if err != nil {
		return err
	}
	_, err = s.db.ExecContext(ctx, sqliteLandUpsert, args...)
	return eris.Wrapf(err, "sqlite: save land assessment %s card %d", a.PropertyID, a.CardNumber)
}

func (s *SQLiteStore) BulkUpsertLandAssessments(ctx context.Context, assessments []model.LandAssessment) (int64, error) {
	return s.bulkExec(ctx, "land assessments", sqliteLandUpsert, len(assessments), func(i int) ([]any, error) {
		return landArgs(&assessments[i])
	})
}

// bulkExec runs one prepared statement per row inside a transaction.
func (s *SQLiteStore) bulkExec(ctx context.Context, label, query string, n int, argsFor func(i int) ([]any, error)) (int64, error) {
	if n == 0 {
		return 0, nil
	}
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, eris.Wrapf(err, "sqlite: bulk %s: begin tx", label)
	}
	defer tx.Rollback()

	stmt, err := tx.PrepareContext(ctx, query)
	if err != nil {
		return 0, eris.Wrapf(err, "sqlite: bulk %s: prepare", label)
	}
	defer stmt.Close()

	var affected int64
	for i := 0; i < n; i++ {
		args, err := argsFor(i)
		if err != nil {
			return 0, err
		}
		res, err := stmt.ExecContext(ctx, args...)
		if err != nil {
			return 0, eris.Wrapf(err, "sqlite: bulk %s: exec row %d", label, i)
		}
		rows, _ := res.RowsAffected()
		affected += rows
	}
	if err := tx.Commit(); err != nil {
		return 0, eris.Wrapf(err, "sqlite: bulk %s: commit", label)
	}
	return affected, nil
}

func (s *SQLiteStore) CountLandAssessments(ctx context.Context, municipalityID string, year int) (int, error) {
	var n int
	err := s.db.QueryRowContext(ctx,
		`SELECT count(*) FROM land_assessments WHERE municipality_id = ? AND effective_year = ?`,
		municipalityID, year,
	).Scan(&n)
	return n, eris.Wrap(err, "sqlite: count land assessments")
}

func (s *SQLiteStore) CountStaleLandAssessments(ctx context.Context, municipalityID string, year int, olderThan time.Time) (int, error) {
	var n int
	err := s.db.QueryRowContext(ctx,
		`SELECT count(*) FROM land_assessments
		 WHERE municipality_id = ? AND effective_year = ?
		   AND (last_calculated IS NULL OR last_calculated < ?)`,
		municipalityID, year, olderThan,
	).Scan(&n)
	return n, eris.Wrap(err, "sqlite: count stale land assessments")
}

func (s *SQLiteStore) ListViewsForProperties(ctx context.Context, municipalityID string, year int, propertyIDs []string) (map[CardRef][]model.ViewRecord, error) {
	out := make(map[CardRef][]model.ViewRecord)
	if len(propertyIDs) == 0 {
		return out, nil
	}
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, property_id, card_number, subject_id, width_id, distance_id, depth_id, condition_id, base_value
		 FROM property_views
		 WHERE municipality_id = ? AND effective_year = ? AND property_id IN (`+inPlaceholders(len(propertyIDs))+`)
		 ORDER BY property_id, card_number, id`,
		idArgs(municipalityID, year, propertyIDs)...,
	)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: list views")
	}
	defer rows.Close()

	for rows.Next() {
		var ref CardRef
		var v model.ViewRecord
		if err := rows.Scan(&v.ID, &ref.PropertyID, &ref.CardNumber,
			&v.SubjectID, &v.WidthID, &v.DistanceID, &v.DepthID, &v.ConditionID, &v.BaseValue); err != nil {
			return nil, eris.Wrap(err, "sqlite: scan view")
		}
		out[ref] = append(out[ref], v)
	}
	return out, eris.Wrap(rows.Err(), "sqlite: list views iterate")
}

func (s *SQLiteStore) ListWaterfrontsForProperties(ctx context.Context, municipalityID string, year int, propertyIDs []string) (map[CardRef][]model.WaterfrontRecord, error) {
	out := make(map[CardRef][]model.WaterfrontRecord)
	if len(propertyIDs) == 0 {
		return out, nil
	}
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, property_id, card_number, frontage_feet, frontage_id, access_id, topography_id, location_id, condition_id, base_value
		 FROM property_waterfronts
		 WHERE municipality_id = ? AND effective_year = ? AND property_id IN (`+inPlaceholders(len(propertyIDs))+`)
		 ORDER BY property_id, card_number, id`,
		idArgs(municipalityID, year, propertyIDs)...,
	)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: list waterfronts")
	}
	defer rows.Close()

	for rows.Next() {
		var ref CardRef
		var w model.WaterfrontRecord
		if err := rows.Scan(&w.ID, &ref.PropertyID, &ref.CardNumber, &w.FrontageFeet,
			&w.FrontageID, &w.AccessID, &w.TopographyID, &w.LocationID, &w.ConditionID, &w.BaseValue); err != nil {
			return nil, eris.Wrap(err, "sqlite: scan waterfront")
		}
		out[ref] = append(out[ref], w)
	}
	return out, eris.Wrap(rows.Err(), "sqlite: list waterfronts iterate")
}

const sqliteBuildingColumns = `id, municipality_id, property_id, card_number, effective_year,
	building_class, features, misc, bedrooms, full_baths, half_baths,
	year_built, condition, effective_area,
	functional_depr_pct, external_depr_pct, physical_depr_pct,
	details, building_value, last_calculated`

func (s *SQLiteStore) ListBuildingsForProperties(ctx context.Context, municipalityID string, year int, propertyIDs []string) ([]model.BuildingAssessment, error) {
	if len(propertyIDs) == 0 {
		return nil, nil
	}
	rows, err := s.db.QueryContext(ctx,
		`SELECT `+sqliteBuildingColumns+` FROM building_assessments
		 WHERE municipality_id = ? AND effective_year = ? AND property_id IN (`+inPlaceholders(len(propertyIDs))+`)
		 ORDER BY property_id, card_number`,
		idArgs(municipalityID, year, propertyIDs)...,
	)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: list buildings")
	}
	defer rows.Close()

	var out []model.BuildingAssessment
	for rows.Next() {
		b, err := scanBuilding(rows.Scan)
		if err != nil {
			return nil, eris.Wrap(err, "sqlite: scan building assessment")
		}
		out = append(out, *b)
	}
	return out, eris.Wrap(rows.Err(), "sqlite: list buildings iterate")
}

func (s *SQLiteStore) GetBuildingAssessment(ctx context.Context, municipalityID, propertyID string, cardNumber, year int) (*model.BuildingAssessment, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT `+sqliteBuildingColumns+` FROM building_assessments
		 WHERE municipality_id = ? AND property_id = ? AND card_number = ? AND effective_year = ?`,
		municipalityID, propertyID, cardNumber, year,
	)
	b, err := scanBuilding(row.Scan)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, eris.Wrapf(err, "sqlite: get building assessment %s card %d", propertyID, cardNumber)
	}
	return b, nil
}

const sqliteBuildingUpsert = `INSERT INTO building_assessments (` + sqliteBuildingColumns + `)
 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
 ON CONFLICT (municipality_id, property_id, card_number, effective_year) DO UPDATE SET
   building_class = excluded.building_class, features = excluded.features, misc = excluded.misc,
   bedrooms = excluded.bedrooms, full_baths = excluded.full_baths, half_baths = excluded.half_baths,
   year_built = excluded.year_built, condition = excluded.condition, effective_area = excluded.effective_area,
   functional_depr_pct = excluded.functional_depr_pct, external_depr_pct = excluded.external_depr_pct,
   physical_depr_pct = excluded.physical_depr_pct, details = excluded.details,
   building_value = excluded.building_value, last_calculated = excluded.last_calculated`

func buildingArgs(b *model.BuildingAssessment) ([]any, error) {
	if b.ID == "" {
		b.ID = uuid.New().String()
	}
	features, misc, details, err := marshalBuilding(b)
	if err != nil {
		return nil, err
	}
	var detailsVal any
	if details != nil {
		detailsVal = string(details)
	}
	return []any{b.ID, b.MunicipalityID, b.PropertyID, b.CardNumber, b.EffectiveYear,
		string(b.BuildingClass), string(features), string(misc), b.Bedrooms, b.FullBaths, b.HalfBaths,
		b.YearBuilt, string(b.Condition), b.EffectiveArea,
		b.FunctionalDeprPct, b.ExternalDeprPct, b.PhysicalDeprPct,
		detailsVal, b.BuildingValue, nullableTime(b.LastCalculated)}, nil
}

func (s *SQLiteStore) SaveBuildingAssessment(ctx context.Context, b *model.BuildingAssessment) error {
	args, err := buildingArgs(b)
	if err != nil {
		return err
	}
	_, err = s.db.ExecContext(ctx, sqliteBuildingUpsert, args...)
	return eris.Wrapf(err, "sqlite: save building assessment %s card %d", b.PropertyID, b.CardNumber)
}

func (s *SQLiteStore) BulkUpsertBuildingAssessments(ctx context.Context, assessments []model.BuildingAssessment) (int64, error) {
	return s.bulkExec(ctx, "building assessments", sqliteBuildingUpsert, len(assessments), func(i int) ([]any, error) {
		return buildingArgs(&assessments[i])
	})
}

func (s *SQLiteStore) ListFeatureValuesForProperties(ctx context.Context, municipalityID string, year int, propertyIDs []string) ([]model.FeatureAssessment, error) {
	if len(propertyIDs) == 0 {
		return nil, nil
	}
	rows, err := s.db.QueryContext(ctx,
		`SELECT property_id, card_number, effective_year, feature_value
		 FROM feature_assessments
		 WHERE municipality_id = ? AND effective_year = ? AND property_id IN (`+inPlaceholders(len(propertyIDs))+`)
		 ORDER BY property_id, card_number`,
		idArgs(municipalityID, year, propertyIDs)...,
	)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: list feature values")
	}
	defer rows.Close()

	var out []model.FeatureAssessment
	for rows.Next() {
		var f model.FeatureAssessment
		if err := rows.Scan(&f.PropertyID, &f.CardNumber, &f.EffectiveYear, &f.FeatureValue); err != nil {
			return nil, eris.Wrap(err, "sqlite: scan feature value")
		}
		out = append(out, f)
	}
	return out, eris.Wrap(rows.Err(), "sqlite: list feature values iterate")
}

func scanParcel(scan func(dest ...any) error) (*model.ParcelAssessment, error) {
	var p model.ParcelAssessment
	var totalsJSON, cardsJSON []byte
	var lastCalc *time.Time

	err := scan(&p.ID, &p.MunicipalityID, &p.PropertyID, &p.EffectiveYear, &totalsJSON, &cardsJSON, &lastCalc)
	if err != nil {
		return nil, err
	}
	if err := json.Unmarshal(totalsJSON, &p.Totals); err != nil {
		return nil, eris.Wrap(err, "store: unmarshal parcel totals")
	}
	if err := json.Unmarshal(cardsJSON, &p.CardAssessments); err != nil {
		return nil, eris.Wrap(err, "store: unmarshal card assessments")
	}
	if lastCalc != nil {
		p.LastCalculated = *lastCalc
	}
	return &p, nil
}

func (s *SQLiteStore) GetParcelAssessment(ctx context.Context, municipalityID, propertyID string, year int) (*model.ParcelAssessment, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT id, municipality_id, property_id, effective_year, totals, cards, last_calculated
		 FROM parcel_assessments
		 WHERE municipality_id = ? AND property_id = ? AND effective_year = ?`,
		municipalityID, propertyID, year,
	)
	p, err := scanParcel(row.Scan)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, eris.Wrapf(err, "sqlite: get parcel assessment %s", propertyID)
	}
	return p, nil
}

func (s *SQLiteStore) ListParcelAssessments(ctx context.Context, municipalityID string, year int) ([]model.ParcelAssessment, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, municipality_id, property_id, effective_year, totals, cards, last_calculated
		 FROM parcel_assessments
		 WHERE municipality_id = ? AND effective_year = ?
		 ORDER BY property_id`,
		municipalityID, year,
	)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: list parcel assessments")
	}
	defer rows.Close()

	var out []model.ParcelAssessment
	for rows.Next() {
		p, err := scanParcel(rows.Scan)
		if err != nil {
			return nil, eris.Wrap(err, "sqlite: scan parcel assessment")
		}
		out = append(out, *p)
	}
	return out, eris.Wrap(rows.Err(), "sqlite: list parcel assessments iterate")
}

const sqliteParcelUpsert = `INSERT INTO parcel_assessments (id, municipality_id, property_id, effective_year, totals, cards, last_calculated)
 VALUES (?, ?, ?, ?, ?, ?, ?)
 ON CONFLICT (municipality_id, property_id, effective_year) DO UPDATE SET
   totals = excluded.totals, cards = excluded.cards, last_calculated = excluded.last_calculated`

func (s *SQLiteStore) BulkUpsertParcelAssessments(ctx context.Context, parcels []model.ParcelAssessment) (int64, error) {
	return s.bulkExec(ctx, "parcel assessments", sqliteParcelUpsert, len(parcels), func(i int) ([]any, error) {
		p := &parcels[i]
		if p.ID == "" {
			p.ID = uuid.New().String()
		}
		totals, err := json.Marshal(p.Totals)
		if err != nil {
			return nil, eris.Wrap(err, "sqlite: marshal parcel totals")
		}
		cards, err := json.Marshal(p.CardAssessments)
		if err != nil {
			return nil, eris.Wrap(err, "sqlite: marshal card assessments")
		}
		return []any{p.ID, p.MunicipalityID, p.PropertyID, p.EffectiveYear,
			string(totals), string(cards), nullableTime(p.LastCalculated)}, nil
	})
}

func (s *SQLiteStore) EnsureAssessmentYear(ctx context.Context, municipalityID string, year int) (int64, error) {
	statements := []string{
		`INSERT INTO land_assessments (id, municipality_id, property_id, card_number, effective_year,
		   zone_id, neighborhood_id, site_id, driveway_id, road_id, lines, views, waterfronts, totals, last_calculated)
		 SELECT lower(hex(randomblob(16))), src.municipality_id, src.property_id, src.card_number, ?2,
		   src.zone_id, src.neighborhood_id, src.site_id, src.driveway_id, src.road_id,
		   src.lines, src.views, src.waterfronts, src.totals, NULL
		 FROM land_assessments src
		 WHERE src.municipality_id = ?1
		   AND src.effective_year = (SELECT MAX(prior.effective_year) FROM land_assessments prior
		     WHERE prior.municipality_id = src.municipality_id AND prior.property_id = src.property_id
		       AND prior.card_number = src.card_number AND prior.effective_year < ?2)
		   AND NOT EXISTS (SELECT 1 FROM land_assessments dst
		     WHERE dst.municipality_id = src.municipality_id AND dst.property_id = src.property_id
		       AND dst.card_number = src.card_number AND dst.effective_year = ?2)`,
		`INSERT INTO building_assessments (id, municipality_id, property_id, card_number, effective_year,
		   building_class, features, misc, bedrooms, full_baths, half_baths, year_built, condition, effective_area,
		   functional_depr_pct, external_depr_pct, physical_depr_pct, details, building_value, last_calculated)
		 SELECT lower(hex(randomblob(16))), src.municipality_id, src.property_id, src.card_number, ?2,
		   src.building_class, src.features, src.misc, src.bedrooms, src.full_baths, src.half_baths,
		   src.year_built, src.condition, src.effective_area,
		   src.functional_depr_pct, src.external_depr_pct, src.physical_depr_pct, src.details, src.building_value, NULL
		 FROM building_assessments src
		 WHERE src.municipality_id = ?1
		   AND src.effective_year = (SELECT MAX(prior.effective_year) FROM building_assessments prior
		     WHERE prior.municipality_id = src.municipality_id AND prior.property_id = src.property_id
		       AND prior.card_number = src.card_number AND prior.effective_year < ?2)
		   AND NOT EXISTS (SELECT 1 FROM building_assessments dst
		     WHERE dst.municipality_id = src.municipality_id AND dst.property_id = src.property_id
		       AND dst.card_number = src.card_number AND dst.effective_year = ?2)`,
		`INSERT INTO property_views (id, municipality_id, property_id, card_number, effective_year,
		   subject_id, width_id, distance_id, depth_id, condition_id, base_value)
		 SELECT lower(hex(randomblob(16))), src.municipality_id, src.property_id, src.card_number, ?2,
		   src.subject_id, src.width_id, src.distance_id, src.depth_id, src.condition_id, src.base_value
		 FROM property_views src
		 WHERE src.municipality_id = ?1
		   AND src.effective_year = (SELECT MAX(prior.effective_year) FROM property_views prior
		     WHERE prior.municipality_id = src.municipality_id AND prior.property_id = src.property_id
		       AND prior.card_number = src.card_number AND prior.effective_year < ?2)
		   AND NOT EXISTS (SELECT 1 FROM property_views dst
		     WHERE dst.municipality_id = src.municipality_id AND dst.property_id = src.property_id
		       AND dst.card_number = src.card_number AND dst.effective_year = ?2)`,
		`INSERT INTO property_waterfronts (id, municipality_id, property_id, card_number, effective_year,
		   frontage_feet, frontage_id, access_id, topography_id, location_id, condition_id, base_value)
		 SELECT lower(hex(randomblob(16))), src.municipality_id, src.property_id, src.card_number, ?2,
		   src.frontage_feet, src.frontage_id, src.access_id, src.topography_id, src.location_id, src.condition_id, src.base_value
		 FROM property_waterfronts src
		 WHERE src.municipality_id = ?1
		   AND src.effective_year = (SELECT MAX(prior.effective_year) FROM property_waterfronts prior
		     WHERE prior.municipality_id = src.municipality_id AND prior.property_id = src.property_id
		       AND prior.card_number = src.card_number AND prior.effective_year < ?2)
		   AND NOT EXISTS (SELECT 1 FROM property_waterfronts dst
		     WHERE dst.municipality_id = src.municipality_id AND dst.property_id = src.property_id
		       AND dst.card_number = src.card_number AND dst.effective_year = ?2)`,
		`INSERT INTO feature_assessments (municipality_id, property_id, card_number, effective_year, feature_value)
		 SELECT src.municipality_id, src.property_id, src.card_number, ?2, src.feature_value
		 FROM feature_assessments src
		 WHERE src.municipality_id = ?1
		   AND src.effective_year = (SELECT MAX(prior.effective_year) FROM feature_assessments prior
		     WHERE prior.municipality_id = src.municipality_id AND prior.property_id = src.property_id
		       AND prior.card_number = src.card_number AND prior.effective_year < ?2)
		 ON CONFLICT (municipality_id, property_id, card_number, effective_year) DO NOTHING`,
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, eris.Wrap(err, "sqlite: ensure year: begin tx")
	}
	defer tx.Rollback()

	var copied int64
	for _, stmt := range statements {
		res, err := tx.ExecContext(ctx, stmt, municipalityID, year)
		if err != nil {
			return 0, eris.Wrapf(err, "sqlite: ensure year %d", year)
		}
		rows, _ := res.RowsAffected()
		copied += rows
	}
	if err := tx.Commit(); err != nil {
		return 0, eris.Wrap(err, "sqlite: ensure year: commit tx")
	}
	return copied, nil
}

func (s *SQLiteStore) listPropertyIDs(ctx context.Context, label, query string, args ...any) ([]string, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, eris.Wrapf(err, "sqlite: list property ids by %s", label)
	}
	defer rows.Close()

	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, eris.Wrapf(err, "sqlite: scan property id (%s)", label)
		}
		ids = append(ids, id)
	}
	return ids, eris.Wrapf(rows.Err(), "sqlite: list property ids by %s iterate", label)
}

func (s *SQLiteStore) ListPropertyIDsByZone(ctx context.Context, municipalityID string, year int, zoneID string) ([]string, error) {
	return s.listPropertyIDs(ctx, "zone",
		`SELECT DISTINCT property_id FROM land_assessments
		 WHERE municipality_id = ? AND effective_year = ? AND zone_id = ?
		 ORDER BY property_id`,
		municipalityID, year, zoneID)
}

func (s *SQLiteStore) ListPropertyIDsByNeighborhood(ctx context.Context, municipalityID string, year int, neighborhoodID string) ([]string, error) {
	return s.listPropertyIDs(ctx, "neighborhood",
		`SELECT DISTINCT property_id FROM land_assessments
		 WHERE municipality_id = ? AND effective_year = ? AND neighborhood_id = ?
		 ORDER BY property_id`,
		municipalityID, year, neighborhoodID)
}

func (s *SQLiteStore) ListPropertyIDsByCurrentUse(ctx context.Context, municipalityID string, year int, categoryID string) ([]string, error) {
	return s.listPropertyIDs(ctx, "current use",
		`SELECT DISTINCT property_id FROM land_assessments
		 WHERE municipality_id = ? AND effective_year = ?
		   AND EXISTS (SELECT 1 FROM json_each(lines) je
		     WHERE json_extract(je.value, '$.current_use_category_id') = ?)
		 ORDER BY property_id`,
		municipalityID, year, categoryID)
}

func (s *SQLiteStore) ListPropertyIDsByLandUseType(ctx context.Context, municipalityID string, year int, landUseType string) ([]string, error) {
	return s.listPropertyIDs(ctx, "land use type",
		`SELECT DISTINCT property_id FROM land_assessments
		 WHERE municipality_id = ? AND effective_year = ?
		   AND EXISTS (SELECT 1 FROM json_each(lines) je
		     WHERE json_extract(je.value, '$.land_use_type') = ?)
		 ORDER BY property_id`,
		municipalityID, year, landUseType)
}

func (s *SQLiteStore) ListPropertyIDsByViewAttribute(ctx context.Context, municipalityID string, year int, attributeID string) ([]string, error) {
	return s.listPropertyIDs(ctx, "view attribute",
		`SELECT DISTINCT property_id FROM property_views
		 WHERE municipality_id = ? AND effective_year = ?
		   AND ? IN (subject_id, width_id, distance_id, depth_id, condition_id)
		 ORDER BY property_id`,
		municipalityID, year, attributeID)
}

func (s *SQLiteStore) CreateJob(ctx context.Context, job *model.RecalcJob) error {
	if job.ID == "" {
		job.ID = uuid.New().String()
	}
	if job.StartedAt.IsZero() {
		job.StartedAt = time.Now().UTC()
	}
	progress, err := json.Marshal(job.Progress)
	if err != nil {
		return eris.Wrap(err, "sqlite: marshal job progress")
	}

	_, err = s.db.ExecContext(ctx,
		`INSERT INTO recalc_jobs (id, municipality_id, effective_year, trigger_type, change_type, change_id, status, progress, started_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		job.ID, job.MunicipalityID, job.EffectiveYear, string(job.Trigger),
		string(job.ChangeType), job.ChangeID, string(job.Status), string(progress), job.StartedAt,
	)
	return eris.Wrapf(err, "sqlite: insert job %s", job.ID)
}

func (s *SQLiteStore) UpdateJobProgress(ctx context.Context, jobID string, progress model.Progress) error {
	encoded, err := json.Marshal(progress)
	if err != nil {
		return eris.Wrap(err, "sqlite: marshal job progress")
	}
	res, err := s.db.ExecContext(ctx,
		`UPDATE recalc_jobs SET status = ?, progress = ? WHERE id = ?`,
		string(model.JobRunning), string(encoded), jobID,
	)
	if err != nil {
		return eris.Wrapf(err, "sqlite: update job progress %s", jobID)
	}
	return checkRowsAffected(res, "job", jobID)
}

func (s *SQLiteStore) CompleteJob(ctx context.Context, jobID string, status model.JobStatus, progress model.Progress, recordErrors []model.RecordError) error {
	progressJSON, err := json.Marshal(progress)
	if err != nil {
		return eris.Wrap(err, "sqlite: marshal job progress")
	}
	var errorsVal any
	if len(recordErrors) > 0 {
		errorsJSON, err := json.Marshal(recordErrors)
		if err != nil {
			return eris.Wrap(err, "sqlite: marshal record errors")
		}
		errorsVal = string(errorsJSON)
	}

	res, err := s.db.ExecContext(ctx,
		`UPDATE recalc_jobs SET status = ?, progress = ?, errors = ?, completed_at = ? WHERE id = ?`,
		string(status), string(progressJSON), errorsVal, time.Now().UTC(), jobID,
	)
	if err != nil {
		return eris.Wrapf(err, "sqlite: complete job %s", jobID)
	}
	return checkRowsAffected(res, "job", jobID)
}

func (s *SQLiteStore) GetJob(ctx context.Context, jobID string) (*model.RecalcJob, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT id, municipality_id, effective_year, trigger_type, change_type, change_id,
		   status, progress, errors, started_at, completed_at
		 FROM recalc_jobs WHERE id = ?`, jobID)
	j, err := scanJob(row.Scan)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, eris.Wrapf(err, "sqlite: get job %s", jobID)
	}
	return j, nil
}

func (s *SQLiteStore) ListJobs(ctx context.Context, filter JobFilter) ([]model.RecalcJob, error) {
	query := `SELECT id, municipality_id, effective_year, trigger_type, change_type, change_id,
	   status, progress, errors, started_at, completed_at
	 FROM recalc_jobs WHERE true`
	args := []any{}

	if filter.MunicipalityID != "" {
		query += ` AND municipality_id = ?`
		args = append(args, filter.MunicipalityID)
	}
	if filter.Status != "" {
		query += ` AND status = ?`
		args = append(args, string(filter.Status))
	}
	if !filter.Since.IsZero() {
		query += ` AND started_at >= ?`
		args = append(args, filter.Since)
	}
	query += ` ORDER BY started_at DESC LIMIT ?`

	limit := filter.Limit
	if limit <= 0 {
		limit = 100
	}
	args = append(args, limit)

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: list jobs")
	}
	defer rows.Close()

	var jobs []model.RecalcJob
	for rows.Next() {
		j, err := scanJob(rows.Scan)
		if err != nil {
			return nil, eris.Wrap(err, "sqlite: scan job")
		}
		jobs = append(jobs, *j)
	}
	return jobs, eris.Wrap(rows.Err(), "sqlite: list jobs iterate")
}

func (s *SQLiteStore) GetFinalBilling(ctx context.Context, municipalityID string, year int) (*model.FinalBilling, error) {
	var fb model.FinalBilling
	var warrant *time.Time
	err := s.db.QueryRowContext(ctx,
		`SELECT id, municipality_id, effective_year, warrant_date, completed_at
		 FROM final_billings WHERE municipality_id = ? AND effective_year = ?`,
		municipalityID, year,
	).Scan(&fb.ID, &fb.MunicipalityID, &fb.EffectiveYear, &warrant, &fb.CompletedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, eris.Wrapf(err, "sqlite: get final billing %d", year)
	}
	if warrant != nil {
		fb.WarrantDate = *warrant
	}
	return &fb, nil
}

func (s *SQLiteStore) CreateFinalBilling(ctx context.Context, fb *model.FinalBilling) error {
	if fb.ID == "" {
		fb.ID = uuid.New().String()
	}
	if fb.CompletedAt.IsZero() {
		fb.CompletedAt = time.Now().UTC()
	}
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO final_billings (id, municipality_id, effective_year, warrant_date, completed_at)
		 VALUES (?, ?, ?, ?, ?)
		 ON CONFLICT (municipality_id, effective_year) DO NOTHING`,
		fb.ID, fb.MunicipalityID, fb.EffectiveYear, nullableTime(fb.WarrantDate), fb.CompletedAt,
	)
	return eris.Wrapf(err, "sqlite: create final billing %d", fb.EffectiveYear)
}

func checkRowsAffected(res sql.Result, entity, id string) error {
	n, err := res.RowsAffected()
	if err != nil {
		return eris.Wrapf(err, "sqlite: rows affected for %s %s", entity, id)
	}
	if n == 0 {
		return eris.Errorf("%s not found: %s", entity, id)
	}
	return nil
}

var _ Store = (*SQLiteStore)(nil)
var _ Store = (*PostgresStore)(nil)
