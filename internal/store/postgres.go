package store

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rotisserie/eris"

	"github.com/open-supply/facility-registry/internal/db"
	"github.com/open-supply/facility-registry/internal/model"
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

// Pool returns the underlying database pool for subsystems that need
// direct query access (e.g., the geocode response cache).
func (s *PostgresStore) Pool() db.Pool {
	return s.pool
}

// The facility identity index is the integrity backstop for the
// check-then-create sequence in the resolution engine: two workers
// racing to create the same canonical facility collide here, and the
// loser retries as a lookup.
const postgresMigration = `
CREATE TABLE IF NOT EXISTS facility_lists (
	id              TEXT PRIMARY KEY,
	organization_id TEXT NOT NULL,
	name            TEXT NOT NULL,
	description     TEXT,
	header          TEXT NOT NULL,
	replaces_id     TEXT REFERENCES facility_lists(id),
	is_active       BOOLEAN NOT NULL DEFAULT TRUE,
	created_at      TIMESTAMPTZ NOT NULL DEFAULT now()
);

CREATE UNIQUE INDEX IF NOT EXISTS idx_facility_lists_replaces
	ON facility_lists(replaces_id) WHERE replaces_id IS NOT NULL AND is_active;

CREATE TABLE IF NOT EXISTS facility_list_items (
	id               TEXT PRIMARY KEY,
	list_id          TEXT NOT NULL REFERENCES facility_lists(id),
	row_index        INTEGER NOT NULL,
	raw_data         TEXT NOT NULL,
	status           TEXT NOT NULL DEFAULT 'UPLOADED',
	country_code     TEXT,
	name             TEXT,
	address          TEXT,
	geocoded_address TEXT,
	geocoded_lat     DOUBLE PRECISION,
	geocoded_lng     DOUBLE PRECISION,
	facility_id      TEXT,
	processing_log   JSONB NOT NULL DEFAULT '[]',
	created_at       TIMESTAMPTZ NOT NULL DEFAULT now(),
	updated_at       TIMESTAMPTZ NOT NULL DEFAULT now(),
	UNIQUE (list_id, row_index)
);

CREATE INDEX IF NOT EXISTS idx_items_list_id ON facility_list_items(list_id);
CREATE INDEX IF NOT EXISTS idx_items_status ON facility_list_items(list_id, status);

CREATE TABLE IF NOT EXISTS facilities (
	id              TEXT PRIMARY KEY,
	name            TEXT NOT NULL,
	address         TEXT NOT NULL,
	country_code    TEXT NOT NULL,
	lat             DOUBLE PRECISION NOT NULL,
	lng             DOUBLE PRECISION NOT NULL,
	created_from_id TEXT NOT NULL REFERENCES facility_list_items(id),
	created_at      TIMESTAMPTZ NOT NULL DEFAULT now()
);

CREATE UNIQUE INDEX IF NOT EXISTS idx_facilities_identity
	ON facilities(country_code, lower(name), lower(address));

CREATE TABLE IF NOT EXISTS facility_matches (
	id          TEXT PRIMARY KEY,
	item_id     TEXT NOT NULL REFERENCES facility_list_items(id),
	facility_id TEXT NOT NULL REFERENCES facilities(id),
	status      TEXT NOT NULL,
	confidence  DOUBLE PRECISION NOT NULL,
	results     JSONB NOT NULL,
	created_at  TIMESTAMPTZ NOT NULL DEFAULT now()
);

CREATE INDEX IF NOT EXISTS idx_matches_item_id ON facility_matches(item_id);
CREATE INDEX IF NOT EXISTS idx_matches_facility_id ON facility_matches(facility_id);

CREATE TABLE IF NOT EXISTS geocode_cache (
	address_hash      TEXT PRIMARY KEY,
	latitude          DOUBLE PRECISION NOT NULL,
	longitude         DOUBLE PRECISION NOT NULL,
	geocoded_address  TEXT,
	response          JSONB,
	matched           BOOLEAN NOT NULL,
	cached_at         TIMESTAMPTZ NOT NULL DEFAULT now()
);

CREATE INDEX IF NOT EXISTS idx_geocode_cache_cached_at ON geocode_cache(cached_at);
`

func (s *PostgresStore) Migrate(ctx context.Context) error {
	_, err := s.pool.Exec(ctx, postgresMigration)
	return eris.Wrap(err, "postgres: migrate")
}

func (s *PostgresStore) Close() error {
	if s.closeFn != nil {
		s.closeFn()
	}
	return nil
}

// WithTx runs fn against a transactional store. pgx.Tx satisfies
// db.Pool, so the same query code runs inside the transaction.
func (s *PostgresStore) WithTx(ctx context.Context, fn func(Store) error) error {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return eris.Wrap(err, "postgres: begin tx")
	}
	defer tx.Rollback(ctx) //nolint:errcheck

	if err := fn(&PostgresStore{pool: tx}); err != nil {
		return err
	}
	return eris.Wrap(tx.Commit(ctx), "postgres: commit tx")
}

// Lists

func (s *PostgresStore) CreateList(ctx context.Context, list *model.List) error {
	if list.CreatedAt.IsZero() {
		list.CreatedAt = time.Now().UTC()
	}
	_, err := s.pool.Exec(ctx,
		`INSERT INTO facility_lists (id, organization_id, name, description, header, replaces_id, is_active, created_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`,
		list.ID, list.OrganizationID, list.Name, nilIfEmpty(list.Description),
		list.Header, nilIfEmpty(list.ReplacesID), list.IsActive, list.CreatedAt,
	)
	if err != nil {
		if isUniqueViolation(err, "idx_facility_lists_replaces") {
			return eris.Wrapf(ErrListReplaced, "list %s", list.ReplacesID)
		}
		return eris.Wrap(err, "postgres: insert list")
	}
	return nil
}

func (s *PostgresStore) GetList(ctx context.Context, id string) (*model.List, error) {
	var l model.List
	var description, replacesID *string

	err := s.pool.QueryRow(ctx,
		`SELECT id, organization_id, name, description, header, replaces_id, is_active, created_at
		 FROM facility_lists WHERE id = $1`,
		id,
	).Scan(&l.ID, &l.OrganizationID, &l.Name, &description, &l.Header, &replacesID, &l.IsActive, &l.CreatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, eris.Wrapf(ErrNotFound, "list %s", id)
		}
		return nil, eris.Wrapf(err, "postgres: get list %s", id)
	}
	if description != nil {
		l.Description = *description
	}
	if replacesID != nil {
		l.ReplacesID = *replacesID
	}
	return &l, nil
}

// Items

const itemColumns = `id, list_id, row_index, raw_data, status, country_code, name, address,
	geocoded_address, geocoded_lat, geocoded_lng, facility_id, processing_log, created_at, updated_at`

func (s *PostgresStore) CreateItems(ctx context.Context, items []*model.Item) error {
	now := time.Now().UTC()
	rows := make([][]any, 0, len(items))
	for _, it := range items {
		logJSON, err := json.Marshal(it.ProcessingLog)
		if err != nil {
			return eris.Wrap(err, "postgres: marshal processing log")
		}
		if it.CreatedAt.IsZero() {
			it.CreatedAt = now
		}
		it.UpdatedAt = it.CreatedAt
		rows = append(rows, []any{
			it.ID, it.ListID, it.RowIndex, it.RawData, string(it.Status),
			nilIfEmpty(it.CountryCode), nilIfEmpty(it.Name), nilIfEmpty(it.Address),
			nilIfEmpty(it.GeocodedAddress), nilPointLat(it.GeocodedPoint), nilPointLng(it.GeocodedPoint),
			nilIfEmpty(it.FacilityID), logJSON, it.CreatedAt, it.UpdatedAt,
		})
	}

	_, err := db.CopyFrom(ctx, s.pool, "facility_list_items",
		[]string{
			"id", "list_id", "row_index", "raw_data", "status", "country_code", "name", "address",
			"geocoded_address", "geocoded_lat", "geocoded_lng", "facility_id", "processing_log",
			"created_at", "updated_at",
		},
		rows,
	)
	return eris.Wrap(err, "postgres: create items")
}

func (s *PostgresStore) GetItem(ctx context.Context, id string) (*model.Item, error) {
	row := s.pool.QueryRow(ctx,
		`SELECT `+itemColumns+` FROM facility_list_items WHERE id = $1`, id)
	return scanItem(row, id)
}

func (s *PostgresStore) GetItemForUpdate(ctx context.Context, id string) (*model.Item, error) {
	row := s.pool.QueryRow(ctx,
		`SELECT `+itemColumns+` FROM facility_list_items WHERE id = $1 FOR UPDATE`, id)
	return scanItem(row, id)
}

func (s *PostgresStore) ListItems(ctx context.Context, listID string, rowIndex *int) ([]*model.Item, error) {
	query := `SELECT ` + itemColumns + ` FROM facility_list_items WHERE list_id = $1`
	args := []any{listID}
	if rowIndex != nil {
		query += ` AND row_index = $2`
		args = append(args, *rowIndex)
	}
	query += ` ORDER BY row_index`

	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: list items")
	}
	defer rows.Close()

	var items []*model.Item
	for rows.Next() {
		it, err := scanItem(rows, "")
		if err != nil {
			return nil, err
		}
		items = append(items, it)
	}
	return items, eris.Wrap(rows.Err(), "postgres: list items iterate")
}

func (s *PostgresStore) UpdateItem(ctx context.Context, item *model.Item) error {
	logJSON, err := json.Marshal(item.ProcessingLog)
	if err != nil {
		return eris.Wrap(err, "postgres: marshal processing log")
	}
	item.UpdatedAt = time.Now().UTC()

	tag, err := s.pool.Exec(ctx,
		`UPDATE facility_list_items
		 SET status = $1, country_code = $2, name = $3, address = $4,
		     geocoded_address = $5, geocoded_lat = $6, geocoded_lng = $7,
		     facility_id = $8, processing_log = $9, updated_at = $10
		 WHERE id = $11`,
		string(item.Status), nilIfEmpty(item.CountryCode), nilIfEmpty(item.Name), nilIfEmpty(item.Address),
		nilIfEmpty(item.GeocodedAddress), nilPointLat(item.GeocodedPoint), nilPointLng(item.GeocodedPoint),
		nilIfEmpty(item.FacilityID), logJSON, item.UpdatedAt, item.ID,
	)
	if err != nil {
		return eris.Wrapf(err, "postgres: update item %s", item.ID)
	}
	if tag.RowsAffected() == 0 {
		return eris.Wrapf(ErrNotFound, "item %s", item.ID)
	}
	return nil
}

func (s *PostgresStore) CountItemsByStatus(ctx context.Context, listID string) (map[model.ItemStatus]int, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT status, COUNT(*) FROM facility_list_items WHERE list_id = $1 GROUP BY status`,
		listID,
	)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: count items by status")
	}
	defer rows.Close()

	counts := make(map[model.ItemStatus]int)
	for rows.Next() {
		var status string
		var n int
		if err := rows.Scan(&status, &n); err != nil {
			return nil, eris.Wrap(err, "postgres: scan status count")
		}
		counts[model.ItemStatus(status)] = n
	}
	return counts, eris.Wrap(rows.Err(), "postgres: count items iterate")
}

// Facilities

func (s *PostgresStore) FindFacility(ctx context.Context, countryCode, name, address string) (*model.Facility, error) {
	var f model.Facility
	err := s.pool.QueryRow(ctx,
		`SELECT id, name, address, country_code, lat, lng, created_from_id, created_at
		 FROM facilities
		 WHERE country_code = $1 AND lower(name) = lower($2) AND lower(address) = lower($3)
		 ORDER BY created_at, id LIMIT 1`,
		countryCode, name, address,
	).Scan(&f.ID, &f.Name, &f.Address, &f.CountryCode, &f.Location.Lat, &f.Location.Lng, &f.CreatedFromID, &f.CreatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, eris.Wrapf(ErrNotFound, "facility (%s, %s)", countryCode, name)
		}
		return nil, eris.Wrap(err, "postgres: find facility")
	}
	return &f, nil
}

// CreateFacility inserts with ON CONFLICT DO NOTHING against the
// identity index rather than letting the unique violation raise: a
// raised 23505 would abort the enclosing transaction and the caller
// could no longer retry as a lookup on the same connection. A skipped
// insert is reported as ErrDuplicateFacility.
func (s *PostgresStore) CreateFacility(ctx context.Context, f *model.Facility) error {
	if f.CreatedAt.IsZero() {
		f.CreatedAt = time.Now().UTC()
	}
	tag, err := s.pool.Exec(ctx,
		`INSERT INTO facilities (id, name, address, country_code, lat, lng, created_from_id, created_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		 ON CONFLICT (country_code, lower(name), lower(address)) DO NOTHING`,
		f.ID, f.Name, f.Address, f.CountryCode, f.Location.Lat, f.Location.Lng, f.CreatedFromID, f.CreatedAt,
	)
	if err != nil {
		return eris.Wrap(err, "postgres: insert facility")
	}
	if tag.RowsAffected() == 0 {
		return eris.Wrapf(ErrDuplicateFacility, "(%s, %s)", f.CountryCode, f.Name)
	}
	return nil
}

// Matches

func (s *PostgresStore) CreateMatch(ctx context.Context, m *model.Match) error {
	resultsJSON, err := json.Marshal(m.Results)
	if err != nil {
		return eris.Wrap(err, "postgres: marshal match results")
	}
	if m.CreatedAt.IsZero() {
		m.CreatedAt = time.Now().UTC()
	}
	_, err = s.pool.Exec(ctx,
		`INSERT INTO facility_matches (id, item_id, facility_id, status, confidence, results, created_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7)`,
		m.ID, m.ItemID, m.FacilityID, string(m.Status), m.Confidence, resultsJSON, m.CreatedAt,
	)
	return eris.Wrap(err, "postgres: insert match")
}

func (s *PostgresStore) GetMatch(ctx context.Context, id string) (*model.Match, error) {
	var m model.Match
	var resultsJSON []byte
	err := s.pool.QueryRow(ctx,
		`SELECT id, item_id, facility_id, status, confidence, results, created_at
		 FROM facility_matches WHERE id = $1`,
		id,
	).Scan(&m.ID, &m.ItemID, &m.FacilityID, &m.Status, &m.Confidence, &resultsJSON, &m.CreatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, eris.Wrapf(ErrNotFound, "match %s", id)
		}
		return nil, eris.Wrapf(err, "postgres: get match %s", id)
	}
	if err := json.Unmarshal(resultsJSON, &m.Results); err != nil {
		return nil, eris.Wrap(err, "postgres: unmarshal match results")
	}
	return &m, nil
}

func (s *PostgresStore) ListMatches(ctx context.Context, itemID string) ([]*model.Match, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT id, item_id, facility_id, status, confidence, results, created_at
		 FROM facility_matches WHERE item_id = $1 ORDER BY created_at, id`,
		itemID,
	)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: list matches")
	}
	defer rows.Close()

	var matches []*model.Match
	for rows.Next() {
		var m model.Match
		var resultsJSON []byte
		if err := rows.Scan(&m.ID, &m.ItemID, &m.FacilityID, &m.Status, &m.Confidence, &resultsJSON, &m.CreatedAt); err != nil {
			return nil, eris.Wrap(err, "postgres: scan match")
		}
		if err := json.Unmarshal(resultsJSON, &m.Results); err != nil {
			return nil, eris.Wrap(err, "postgres: unmarshal match results")
		}
		matches = append(matches, &m)
	}
	return matches, eris.Wrap(rows.Err(), "postgres: list matches iterate")
}

func (s *PostgresStore) UpdateMatchStatus(ctx context.Context, id string, status model.MatchStatus) error {
	tag, err := s.pool.Exec(ctx,
		`UPDATE facility_matches SET status = $1 WHERE id = $2`,
		string(status), id,
	)
	if err != nil {
		return eris.Wrapf(err, "postgres: update match status %s", id)
	}
	if tag.RowsAffected() == 0 {
		return eris.Wrapf(ErrNotFound, "match %s", id)
	}
	return nil
}

// Helpers

type rowScanner interface {
	Scan(dest ...any) error
}

func scanItem(row rowScanner, id string) (*model.Item, error) {
	var it model.Item
	var countryCode, name, address, geocodedAddress, facilityID *string
	var lat, lng *float64
	var logJSON []byte

	err := row.Scan(&it.ID, &it.ListID, &it.RowIndex, &it.RawData, &it.Status,
		&countryCode, &name, &address, &geocodedAddress, &lat, &lng, &facilityID,
		&logJSON, &it.CreatedAt, &it.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, eris.Wrapf(ErrNotFound, "item %s", id)
		}
		return nil, eris.Wrap(err, "postgres: scan item")
	}

	if countryCode != nil {
		it.CountryCode = *countryCode
	}
	if name != nil {
		it.Name = *name
	}
	if address != nil {
		it.Address = *address
	}
	if geocodedAddress != nil {
		it.GeocodedAddress = *geocodedAddress
	}
	if lat != nil && lng != nil {
		it.GeocodedPoint = &model.Point{Lat: *lat, Lng: *lng}
	}
	if facilityID != nil {
		it.FacilityID = *facilityID
	}
	if len(logJSON) > 0 {
		if err := json.Unmarshal(logJSON, &it.ProcessingLog); err != nil {
			return nil, eris.Wrap(err, "postgres: unmarshal processing log")
		}
	}
	return &it, nil
}

func isUniqueViolation(err error, constraint string) bool {
	var pgErr *pgconn.PgError
	if !errors.As(err, &pgErr) {
		return false
	}
	return pgErr.Code == "23505" && (constraint == "" || pgErr.ConstraintName == constraint)
}

// nilIfEmpty returns nil for empty strings, allowing NULL storage in Postgres.
func nilIfEmpty(s string) any {
	if s == "" {
		return nil
	}
	return s
}

func nilPointLat(p *model.Point) any {
	if p == nil {
		return nil
	}
	return p.Lat
}

func nilPointLng(p *model.Point) any {
	if p == nil {
		return nil
	}
	return p.Lng
}
