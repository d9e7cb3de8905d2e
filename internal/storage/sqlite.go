package storage

import (
	"context"
	"database/sql"
	"embed"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	sq "github.com/Masterminds/squirrel"
	_ "modernc.org/sqlite"
)

//go:embed migrations/*.sql
var migrationsFS embed.FS

// Store wraps a SQLite database holding the records served by the dev API.
type Store struct {
	db *sql.DB
	sb sq.StatementBuilderType
}

// Open opens (or creates) a SQLite database in dataDir and runs pending migrations.
// Pass ":memory:" as dataDir for an in-memory database (used by tests).
func Open(dataDir string) (*Store, error) {
	var dsn string
	if dataDir == ":memory:" {
		dsn = ":memory:"
	} else {
		if err := os.MkdirAll(dataDir, 0o755); err != nil {
			return nil, fmt.Errorf("creating data directory: %w", err)
		}
		dsn = filepath.Join(dataDir, "wcdata.db")
	}

	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}
	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("pinging database: %w", err)
	}

	// Limit to single connection to avoid "database is locked" errors.
	db.SetMaxOpenConns(1)

	// Set busy timeout so concurrent access waits briefly instead of failing immediately.
	if _, err := db.Exec("PRAGMA busy_timeout = 5000"); err != nil {
		db.Close()
		return nil, fmt.Errorf("setting busy timeout: %w", err)
	}

	// Enable WAL mode for better concurrent read performance.
	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		db.Close()
		return nil, fmt.Errorf("setting journal mode: %w", err)
	}

	s := &Store{db: db, sb: sq.StatementBuilder.PlaceholderFormat(sq.Question)}
	if err := s.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("running migrations: %w", err)
	}

	return s, nil
}

// Close closes the underlying database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

// migrate reads embedded SQL migration files and applies any that haven't been run yet.
func (s *Store) migrate() error {
	// Ensure schema_version table exists (bootstrap).
	if _, err := s.db.Exec(`CREATE TABLE IF NOT EXISTS schema_version (
		version INTEGER PRIMARY KEY,
		applied_at DATETIME DEFAULT CURRENT_TIMESTAMP
	)`); err != nil {
		return fmt.Errorf("creating schema_version table: %w", err)
	}

	entries, err := migrationsFS.ReadDir("migrations")
	if err != nil {
		return fmt.Errorf("reading migrations directory: %w", err)
	}

	// Sort by filename to guarantee ascending order.
	sort.Slice(entries, func(i, j int) bool {
		return entries[i].Name() < entries[j].Name()
	})

	for _, entry := range entries {
		if entry.IsDir() || !strings.HasSuffix(entry.Name(), ".sql") {
			continue
		}

		version, err := parseMigrationVersion(entry.Name())
		if err != nil {
			return err
		}

		// Check if already applied.
		var exists int
		if err := s.db.QueryRow("SELECT COUNT(*) FROM schema_version WHERE version = ?", version).Scan(&exists); err != nil {
			return fmt.Errorf("checking migration %d: %w", version, err)
		}
		if exists > 0 {
			continue
		}

		content, err := migrationsFS.ReadFile("migrations/" + entry.Name())
		if err != nil {
			return fmt.Errorf("reading migration %s: %w", entry.Name(), err)
		}

		tx, err := s.db.Begin()
		if err != nil {
			return fmt.Errorf("beginning transaction for migration %d: %w", version, err)
		}

		if _, err := tx.Exec(string(content)); err != nil {
			tx.Rollback()
			return fmt.Errorf("applying migration %d: %w", version, err)
		}

		if _, err := tx.Exec("INSERT INTO schema_version (version) VALUES (?)", version); err != nil {
			tx.Rollback()
			return fmt.Errorf("recording migration %d: %w", version, err)
		}

		if err := tx.Commit(); err != nil {
			return fmt.Errorf("committing migration %d: %w", version, err)
		}
	}

	return nil
}

func parseMigrationVersion(filename string) (int, error) {
	var version int
	if _, err := fmt.Sscanf(filename, "%d_", &version); err != nil {
		return 0, fmt.Errorf("parsing migration version from %q: %w", filename, err)
	}
	return version, nil
}

// AppliedMigrations returns the list of applied migration versions in ascending order.
func (s *Store) AppliedMigrations() ([]int, error) {
	rows, err := s.db.Query("SELECT version FROM schema_version ORDER BY version ASC")
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var versions []int
	for rows.Next() {
		var v int
		if err := rows.Scan(&v); err != nil {
			return nil, err
		}
		versions = append(versions, v)
	}
	return versions, rows.Err()
}

// --- Records ---

var recordColumns = []string{"resource", "id", "status", "data", "created_at", "updated_at"}

type rowQueryer interface {
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

// CreateRecord stores fields as a new record of resource and assigns the next
// id for that resource.
func (s *Store) CreateRecord(ctx context.Context, resource string, fields map[string]any) (Record, error) {
	status, _, data := splitFields(fields)
	blob, err := json.Marshal(data)
	if err != nil {
		return Record{}, fmt.Errorf("encoding fields: %w", err)
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return Record{}, fmt.Errorf("beginning create transaction: %w", err)
	}
	defer tx.Rollback()

	maxSQL, maxArgs, err := s.sb.Select("COALESCE(MAX(id), 0)").From("records").
		Where(sq.Eq{"resource": resource}).ToSql()
	if err != nil {
		return Record{}, fmt.Errorf("building id query: %w", err)
	}
	var last int64
	if err := tx.QueryRowContext(ctx, maxSQL, maxArgs...).Scan(&last); err != nil {
		return Record{}, fmt.Errorf("reading last id: %w", err)
	}

	now := time.Now().UTC().Truncate(time.Second)
	rec := Record{Resource: resource, ID: last + 1, Status: status, Fields: data, CreatedAt: now, UpdatedAt: now}
	insSQL, insArgs, err := s.sb.Insert("records").Columns(recordColumns...).
		Values(rec.Resource, rec.ID, rec.Status, string(blob), now.Format(time.RFC3339), now.Format(time.RFC3339)).
		ToSql()
	if err != nil {
		return Record{}, fmt.Errorf("building insert: %w", err)
	}
	if _, err := tx.ExecContext(ctx, insSQL, insArgs...); err != nil {
		return Record{}, fmt.Errorf("inserting record: %w", err)
	}
	if err := tx.Commit(); err != nil {
		return Record{}, fmt.Errorf("committing create: %w", err)
	}
	return rec, nil
}

// GetRecord returns the record id of resource.
func (s *Store) GetRecord(ctx context.Context, resource string, id int64) (Record, error) {
	return s.getRecord(ctx, s.db, resource, id)
}

func (s *Store) getRecord(ctx context.Context, q rowQueryer, resource string, id int64) (Record, error) {
	query, args, err := s.sb.Select(recordColumns...).From("records").
		Where(sq.Eq{"resource": resource, "id": id}).ToSql()
	if err != nil {
		return Record{}, fmt.Errorf("building select: %w", err)
	}
	rec, err := scanRecord(q.QueryRowContext(ctx, query, args...))
	if errors.Is(err, sql.ErrNoRows) {
		return Record{}, ErrNotFound
	}
	return rec, err
}

// UpdateRecord merges fields into the record id of resource.
func (s *Store) UpdateRecord(ctx context.Context, resource string, id int64, fields map[string]any) (Record, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return Record{}, fmt.Errorf("beginning update transaction: %w", err)
	}
	defer tx.Rollback()

	rec, err := s.getRecord(ctx, tx, resource, id)
	if err != nil {
		return Record{}, err
	}

	status, hasStatus, data := splitFields(fields)
	if hasStatus {
		rec.Status = status
	}
	if rec.Fields == nil {
		rec.Fields = make(map[string]any, len(data))
	}
	for k, v := range data {
		rec.Fields[k] = v
	}
	rec.UpdatedAt = time.Now().UTC().Truncate(time.Second)

	blob, err := json.Marshal(rec.Fields)
	if err != nil {
		return Record{}, fmt.Errorf("encoding fields: %w", err)
	}
	query, args, err := s.sb.Update("records").
		Set("status", rec.Status).
		Set("data", string(blob)).
		Set("updated_at", rec.UpdatedAt.Format(time.RFC3339)).
		Where(sq.Eq{"resource": resource, "id": id}).
		ToSql()
	if err != nil {
		return Record{}, fmt.Errorf("building update: %w", err)
	}
	if _, err := tx.ExecContext(ctx, query, args...); err != nil {
		return Record{}, fmt.Errorf("updating record: %w", err)
	}
	if err := tx.Commit(); err != nil {
		return Record{}, fmt.Errorf("committing update: %w", err)
	}
	return rec, nil
}

// DeleteRecord removes the record id of resource and returns it.
func (s *Store) DeleteRecord(ctx context.Context, resource string, id int64) (Record, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return Record{}, fmt.Errorf("beginning delete transaction: %w", err)
	}
	defer tx.Rollback()

	rec, err := s.getRecord(ctx, tx, resource, id)
	if err != nil {
		return Record{}, err
	}
	query, args, err := s.sb.Delete("records").Where(sq.Eq{"resource": resource, "id": id}).ToSql()
	if err != nil {
		return Record{}, fmt.Errorf("building delete: %w", err)
	}
	if _, err := tx.ExecContext(ctx, query, args...); err != nil {
		return Record{}, fmt.Errorf("deleting record: %w", err)
	}
	if err := tx.Commit(); err != nil {
		return Record{}, fmt.Errorf("committing delete: %w", err)
	}
	return rec, nil
}

// likeEscaper makes LIKE wildcards in search terms match literally.
var likeEscaper = strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)

// ListRecords returns one page of records of resource matching opts, plus
// the number of matching records across all pages.
func (s *Store) ListRecords(ctx context.Context, resource string, opts ListOptions) ([]Record, int, error) {
	where := sq.And{sq.Eq{"resource": resource}}
	if opts.Status != "" && opts.Status != "any" {
		where = append(where, sq.Eq{"status": opts.Status})
	}
	if opts.Search != "" {
		where = append(where, sq.Expr(`data LIKE ? ESCAPE '\'`, "%"+likeEscaper.Replace(opts.Search)+"%"))
	}
	if len(opts.Include) > 0 {
		where = append(where, sq.Eq{"id": opts.Include})
	}

	countSQL, countArgs, err := s.sb.Select("COUNT(*)").From("records").Where(where).ToSql()
	if err != nil {
		return nil, 0, fmt.Errorf("building count query: %w", err)
	}
	var total int
	if err := s.db.QueryRowContext(ctx, countSQL, countArgs...).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("executing count query: %w", err)
	}
	if total == 0 {
		return []Record{}, 0, nil
	}

	dir := "DESC"
	if strings.EqualFold(opts.Order, "asc") {
		dir = "ASC"
	}
	dataQuery := s.sb.Select(recordColumns...).From("records").Where(where)
	if opts.OrderBy == "id" {
		dataQuery = dataQuery.OrderBy("id " + dir)
	} else {
		dataQuery = dataQuery.OrderBy("created_at "+dir, "id "+dir)
	}
	if opts.Limit > 0 {
		dataQuery = dataQuery.Limit(uint64(opts.Limit)).Offset(uint64(max(opts.Offset, 0)))
	}

	dataSQL, dataArgs, err := dataQuery.ToSql()
	if err != nil {
		return nil, 0, fmt.Errorf("building data query: %w", err)
	}
	rows, err := s.db.QueryContext(ctx, dataSQL, dataArgs...)
	if err != nil {
		return nil, 0, fmt.Errorf("executing data query: %w", err)
	}
	defer rows.Close()

	records := []Record{}
	for rows.Next() {
		rec, err := scanRecord(rows)
		if err != nil {
			return nil, 0, err
		}
		records = append(records, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, 0, fmt.Errorf("iterating rows: %w", err)
	}
	return records, total, nil
}

type scanner interface {
	Scan(dest ...any) error
}

func scanRecord(row scanner) (Record, error) {
	var rec Record
	var data, createdAt, updatedAt string
	if err := row.Scan(&rec.Resource, &rec.ID, &rec.Status, &data, &createdAt, &updatedAt); err != nil {
		return Record{}, err
	}
	if err := json.Unmarshal([]byte(data), &rec.Fields); err != nil {
		return Record{}, fmt.Errorf("decoding data for %s %d: %w", rec.Resource, rec.ID, err)
	}
	var err error
	if rec.CreatedAt, err = time.Parse(time.RFC3339, createdAt); err != nil {
		return Record{}, fmt.Errorf("parsing created_at: %w", err)
	}
	if rec.UpdatedAt, err = time.Parse(time.RFC3339, updatedAt); err != nil {
		return Record{}, fmt.Errorf("parsing updated_at: %w", err)
	}
	return rec, nil
}

// splitFields separates the status from the free-form fields and drops the
// fields the store manages.
func splitFields(fields map[string]any) (status string, hasStatus bool, data map[string]any) {
	data = make(map[string]any, len(fields))
	for k, v := range fields {
		if k == "status" {
			status, hasStatus = v.(string)
			continue
		}
		if managed[k] {
			continue
		}
		data[k] = v
	}
	return status, hasStatus, data
}
