package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"arpa-go/internal/arpa"
	"arpa-go/internal/database/migrations"
	"arpa-go/internal/model"

	_ "github.com/mattn/go-sqlite3" // SQLite driver
)

// SQLiteDatabase implements the arpa.Database interface using SQLite.
type SQLiteDatabase struct {
	db   *sql.DB
	path string
}

// NewSQLiteDatabase creates a new SQLite database connection.
// path can be a file path or ":memory:" for in-memory database.
func NewSQLiteDatabase(path string) (*SQLiteDatabase, error) {
	db, err := OpenConnection(path)
	if err != nil {
		return nil, err
	}

	return &SQLiteDatabase{
		db:   db,
		path: path,
	}, nil
}

// NewSQLiteDatabaseFromDB wraps an existing database connection.
// The caller is responsible for ensuring the connection is properly configured.
func NewSQLiteDatabaseFromDB(db *sql.DB) *SQLiteDatabase {
	return &SQLiteDatabase{
		db:   db,
		path: "",
	}
}

// OpenConnection opens and configures a SQLite database connection.
// This is exported for use in tools and tests that need a properly
// configured SQLite connection. path can be a file path or ":memory:"
// for an in-memory database.
//
// Transactions take the write lock at BEGIN (_txlock=immediate), so a
// check-then-insert sequence inside one transaction cannot interleave
// with another writer's. The duplicate-process guard depends on this.
func OpenConnection(path string) (*sql.DB, error) {
	db, err := sql.Open("sqlite3", path+"?_busy_timeout=5000&_txlock=immediate")
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	if path == ":memory:" {
		// Each pool connection would otherwise get its own empty
		// in-memory database.
		db.SetMaxOpenConns(1)
	}

	return db, nil
}

// querier is satisfied by both *sql.DB and *sql.Tx, so existence and
// uniqueness checks run inside whatever scope the caller holds.
type querier interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

// withTx runs fn inside one write transaction, committing on success.
// The transaction holds the write lock from BEGIN, so checks made
// inside fn cannot interleave with another writer's insert. Every
// check-then-write sequence in this store goes through here or through
// its own explicit transaction.
func (s *SQLiteDatabase) withTx(ctx context.Context, fn func(tx *sql.Tx) error) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("starting transaction: %w", err)
	}
	defer tx.Rollback()

	if err := fn(tx); err != nil {
		return err
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("committing transaction: %w", err)
	}
	return nil
}

// idExists checks whether a row with id exists in table.
func idExists(ctx context.Context, q querier, table string, id int64) (bool, error) {
	var exists bool
	query := fmt.Sprintf("SELECT EXISTS (SELECT 1 FROM %s WHERE id = ?)", table)
	if err := q.QueryRowContext(ctx, query, id).Scan(&exists); err != nil {
		return false, fmt.Errorf("checking %s id %d: %w", table, id, err)
	}
	return exists, nil
}

// assertReference validates one foreign-key-shaped reference before a
// write, so a dangling reference surfaces as a typed error instead of
// a driver exception.
func assertReference(ctx context.Context, q querier, intoTable string, refTable string, id int64) error {
	ok, err := idExists(ctx, q, refTable, id)
	if err != nil {
		return err
	}
	if !ok {
		return &arpa.ReferentialViolationError{
			Table:  intoTable,
			ID:     id,
			Detail: fmt.Sprintf("references missing %s id=%d", refTable, id),
		}
	}
	return nil
}

// findUniqueCollision returns the id of an existing row matching the
// condition, or 0 when there is none.
func findUniqueCollision(ctx context.Context, q querier, table, condition string, args ...any) (int64, error) {
	var id int64
	query := fmt.Sprintf("SELECT id FROM %s WHERE %s LIMIT 1", table, condition)
	err := q.QueryRowContext(ctx, query, args...).Scan(&id)
	if errors.Is(err, sql.ErrNoRows) {
		return 0, nil
	}
	if err != nil {
		return 0, fmt.Errorf("checking uniqueness in %s: %w", table, err)
	}
	return id, nil
}

// Telescopes

func (s *SQLiteDatabase) CreateTelescope(ctx context.Context, t *model.Telescope) (int64, error) {
	var id int64
	err := s.withTx(ctx, func(tx *sql.Tx) error {
		if existing, err := findUniqueCollision(ctx, tx, tableTelescopes,
			"name = ? OR code = ?", t.Name, t.Code); err != nil {
			return err
		} else if existing != 0 {
			return &arpa.DuplicateEntryError{Table: tableTelescopes, ID: existing}
		}

		res, err := tx.ExecContext(ctx,
			`INSERT INTO telescopes (name, abbreviation, code, x, y, z) VALUES (?, ?, ?, ?, ?, ?)`,
			t.Name, t.Abbreviation, t.Code, t.X, t.Y, t.Z)
		if err != nil {
			return fmt.Errorf("inserting telescope: %w", err)
		}
		id, err = res.LastInsertId()
		return err
	})
	return id, err
}

func (s *SQLiteDatabase) GetTelescope(ctx context.Context, id int64) (*model.Telescope, error) {
	t := &model.Telescope{}
	err := s.db.QueryRowContext(ctx,
		`SELECT id, name, abbreviation, code, x, y, z FROM telescopes WHERE id = ?`, id).
		Scan(&t.ID, &t.Name, &t.Abbreviation, &t.Code, &t.X, &t.Y, &t.Z)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, &arpa.NotFoundError{Table: tableTelescopes, Key: fmt.Sprintf("id=%d", id)}
	}
	if err != nil {
		return nil, fmt.Errorf("getting telescope %d: %w", id, err)
	}
	return t, nil
}

func (s *SQLiteDatabase) FindTelescope(ctx context.Context, name string) (*model.Telescope, error) {
	t := &model.Telescope{}
	err := s.db.QueryRowContext(ctx,
		`SELECT id, name, abbreviation, code, x, y, z FROM telescopes
		 WHERE lower(name) = lower(?) OR lower(abbreviation) = lower(?)`,
		name, name).
		Scan(&t.ID, &t.Name, &t.Abbreviation, &t.Code, &t.X, &t.Y, &t.Z)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil // Not found
	}
	if err != nil {
		return nil, fmt.Errorf("finding telescope %q: %w", name, err)
	}
	return t, nil
}

func (s *SQLiteDatabase) ListTelescopes(ctx context.Context) ([]*model.Telescope, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, name, abbreviation, code, x, y, z FROM telescopes ORDER BY name`)
	if err != nil {
		return nil, fmt.Errorf("listing telescopes: %w", err)
	}
	defer rows.Close()

	var result []*model.Telescope
	for rows.Next() {
		t := &model.Telescope{}
		if err := rows.Scan(&t.ID, &t.Name, &t.Abbreviation, &t.Code, &t.X, &t.Y, &t.Z); err != nil {
			return nil, fmt.Errorf("scanning telescope: %w", err)
		}
		result = append(result, t)
	}
	return result, rows.Err()
}

func (s *SQLiteDatabase) DeleteTelescope(ctx context.Context, id int64) error {
	return s.deleteRestricted(ctx, tableTelescopes, id)
}

// Observing systems

func (s *SQLiteDatabase) CreateObsSystem(ctx context.Context, o *model.ObsSystem) (int64, error) {
	var id int64
	err := s.withTx(ctx, func(tx *sql.Tx) error {
		if err := assertReference(ctx, tx, tableObsSystems, tableTelescopes, o.TelescopeID); err != nil {
			return err
		}
		if existing, err := findUniqueCollision(ctx, tx, tableObsSystems, "name = ?", o.Name); err != nil {
			return err
		} else if existing != 0 {
			return &arpa.DuplicateEntryError{Table: tableObsSystems, ID: existing}
		}

		res, err := tx.ExecContext(ctx,
			`INSERT INTO obs_systems (name, telescope_id, frontend, backend, clock, code)
			 VALUES (?, ?, ?, ?, ?, ?)`,
			o.Name, o.TelescopeID, o.Frontend, o.Backend, o.Clock, o.Code)
		if err != nil {
			return fmt.Errorf("inserting observing system: %w", err)
		}
		id, err = res.LastInsertId()
		return err
	})
	return id, err
}

func scanObsSystem(row *sql.Row) (*model.ObsSystem, error) {
	o := &model.ObsSystem{}
	err := row.Scan(&o.ID, &o.Name, &o.TelescopeID, &o.Frontend, &o.Backend, &o.Clock, &o.Code)
	if err != nil {
		return nil, err
	}
	return o, nil
}

func (s *SQLiteDatabase) GetObsSystem(ctx context.Context, id int64) (*model.ObsSystem, error) {
	o, err := scanObsSystem(s.db.QueryRowContext(ctx,
		`SELECT id, name, telescope_id, frontend, backend, clock, code
		 FROM obs_systems WHERE id = ?`, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, &arpa.NotFoundError{Table: tableObsSystems, Key: fmt.Sprintf("id=%d", id)}
	}
	if err != nil {
		return nil, fmt.Errorf("getting observing system %d: %w", id, err)
	}
	return o, nil
}

func (s *SQLiteDatabase) FindObsSystem(ctx context.Context, telescopeID int64, frontend, backend string) (*model.ObsSystem, error) {
	o, err := scanObsSystem(s.db.QueryRowContext(ctx,
		`SELECT id, name, telescope_id, frontend, backend, clock, code FROM obs_systems
		 WHERE telescope_id = ? AND lower(frontend) = lower(?) AND lower(backend) = lower(?)`,
		telescopeID, frontend, backend))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil // Not found
	}
	if err != nil {
		return nil, fmt.Errorf("finding observing system: %w", err)
	}
	return o, nil
}

func (s *SQLiteDatabase) DeleteObsSystem(ctx context.Context, id int64) error {
	return s.deleteRestricted(ctx, tableObsSystems, id)
}

// Pulsars

func (s *SQLiteDatabase) CreatePulsar(ctx context.Context, p *model.Pulsar) (int64, error) {
	// The alias must not collide with another pulsar's alias or J name,
	// and vice versa.
	cond := "alias = ? OR j_name = ?"
	args := []any{p.Alias, p.Alias}
	if p.JName != nil {
		cond += " OR alias = ? OR j_name = ?"
		args = append(args, *p.JName, *p.JName)
	}
	var id int64
	err := s.withTx(ctx, func(tx *sql.Tx) error {
		if existing, err := findUniqueCollision(ctx, tx, tablePulsars, cond, args...); err != nil {
			return err
		} else if existing != 0 {
			return &arpa.DuplicateEntryError{Table: tablePulsars, ID: existing}
		}

		res, err := tx.ExecContext(ctx,
			`INSERT INTO pulsars (alias, j_name, b_name, j2000_ra, j2000_dec, master_ephemeris_id)
			 VALUES (?, ?, ?, ?, ?, NULL)`,
			p.Alias, p.JName, p.BName, p.RA, p.Dec)
		if err != nil {
			return fmt.Errorf("inserting pulsar: %w", err)
		}
		id, err = res.LastInsertId()
		return err
	})
	return id, err
}

func scanPulsar(scan func(dest ...any) error) (*model.Pulsar, error) {
	p := &model.Pulsar{}
	var jName, bName, ra, dec sql.NullString
	var master sql.NullInt64
	if err := scan(&p.ID, &p.Alias, &jName, &bName, &ra, &dec, &master); err != nil {
		return nil, err
	}
	if jName.Valid {
		p.JName = &jName.String
	}
	if bName.Valid {
		p.BName = &bName.String
	}
	if ra.Valid {
		p.RA = &ra.String
	}
	if dec.Valid {
		p.Dec = &dec.String
	}
	if master.Valid {
		p.MasterEphemerisID = &master.Int64
	}
	return p, nil
}

const pulsarColumns = "id, alias, j_name, b_name, j2000_ra, j2000_dec, master_ephemeris_id"

func (s *SQLiteDatabase) GetPulsar(ctx context.Context, id int64) (*model.Pulsar, error) {
	row := s.db.QueryRowContext(ctx,
		fmt.Sprintf("SELECT %s FROM pulsars WHERE id = ?", pulsarColumns), id)
	p, err := scanPulsar(row.Scan)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, &arpa.NotFoundError{Table: tablePulsars, Key: fmt.Sprintf("id=%d", id)}
	}
	if err != nil {
		return nil, fmt.Errorf("getting pulsar %d: %w", id, err)
	}
	return p, nil
}

func (s *SQLiteDatabase) FindPulsar(ctx context.Context, name string) (*model.Pulsar, error) {
	row := s.db.QueryRowContext(ctx,
		fmt.Sprintf("SELECT %s FROM pulsars WHERE alias = ? OR j_name = ?", pulsarColumns),
		name, name)
	p, err := scanPulsar(row.Scan)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil // Not found
	}
	if err != nil {
		return nil, fmt.Errorf("finding pulsar %q: %w", name, err)
	}
	return p, nil
}

func (s *SQLiteDatabase) ListPulsars(ctx context.Context) ([]*model.Pulsar, error) {
	rows, err := s.db.QueryContext(ctx,
		fmt.Sprintf("SELECT %s FROM pulsars ORDER BY alias", pulsarColumns))
	if err != nil {
		return nil, fmt.Errorf("listing pulsars: %w", err)
	}
	defer rows.Close()

	var result []*model.Pulsar
	for rows.Next() {
		p, err := scanPulsar(rows.Scan)
		if err != nil {
			return nil, fmt.Errorf("scanning pulsar: %w", err)
		}
		result = append(result, p)
	}
	return result, rows.Err()
}

func (s *SQLiteDatabase) DeletePulsar(ctx context.Context, id int64) error {
	return s.deleteRestricted(ctx, tablePulsars, id)
}

// Ephemerides

func (s *SQLiteDatabase) CreateEphemeris(ctx context.Context, e *model.Ephemeris) (int64, error) {
	var id int64
	err := s.withTx(ctx, func(tx *sql.Tx) error {
		if err := assertReference(ctx, tx, tableEphemerides, tablePulsars, e.PulsarID); err != nil {
			return err
		}
		if existing, err := findUniqueCollision(ctx, tx, tableEphemerides,
			"checksum = ? OR file_path = ?", e.Checksum, e.FilePath); err != nil {
			return err
		} else if existing != 0 {
			return &arpa.DuplicateEntryError{Table: tableEphemerides, ID: existing}
		}

		res, err := tx.ExecContext(ctx,
			`INSERT INTO ephemerides (pulsar_id, file_path, checksum, created_at)
			 VALUES (?, ?, ?, ?)`,
			e.PulsarID, e.FilePath, e.Checksum, e.CreatedAt)
		if err != nil {
			return fmt.Errorf("inserting ephemeris: %w", err)
		}
		id, err = res.LastInsertId()
		return err
	})
	return id, err
}

func (s *SQLiteDatabase) GetEphemeris(ctx context.Context, id int64) (*model.Ephemeris, error) {
	e := &model.Ephemeris{}
	err := s.db.QueryRowContext(ctx,
		`SELECT id, pulsar_id, file_path, checksum, created_at FROM ephemerides WHERE id = ?`, id).
		Scan(&e.ID, &e.PulsarID, &e.FilePath, &e.Checksum, &e.CreatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, &arpa.NotFoundError{Table: tableEphemerides, Key: fmt.Sprintf("id=%d", id)}
	}
	if err != nil {
		return nil, fmt.Errorf("getting ephemeris %d: %w", id, err)
	}
	return e, nil
}

func (s *SQLiteDatabase) FindEphemerisByChecksum(ctx context.Context, checksum string) (*model.Ephemeris, error) {
	e := &model.Ephemeris{}
	err := s.db.QueryRowContext(ctx,
		`SELECT id, pulsar_id, file_path, checksum, created_at FROM ephemerides WHERE checksum = ?`,
		checksum).
		Scan(&e.ID, &e.PulsarID, &e.FilePath, &e.Checksum, &e.CreatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil // Not found
	}
	if err != nil {
		return nil, fmt.Errorf("finding ephemeris by checksum: %w", err)
	}
	return e, nil
}

func (s *SQLiteDatabase) EphemerisHistory(ctx context.Context, pulsarID int64) ([]*model.Ephemeris, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, pulsar_id, file_path, checksum, created_at FROM ephemerides
		 WHERE pulsar_id = ? ORDER BY created_at, id`, pulsarID)
	if err != nil {
		return nil, fmt.Errorf("listing ephemeris history: %w", err)
	}
	defer rows.Close()

	var result []*model.Ephemeris
	for rows.Next() {
		e := &model.Ephemeris{}
		if err := rows.Scan(&e.ID, &e.PulsarID, &e.FilePath, &e.Checksum, &e.CreatedAt); err != nil {
			return nil, fmt.Errorf("scanning ephemeris: %w", err)
		}
		result = append(result, e)
	}
	return result, rows.Err()
}

func (s *SQLiteDatabase) DeleteEphemeris(ctx context.Context, id int64) error {
	return s.deleteRestricted(ctx, tableEphemerides, id)
}

// deleteRestricted removes one row, refusing while anything still
// references it. Deleting a referenced row would dangle the reference;
// the descriptor table knows every inbound column, so the guard covers
// new tables without per-entity code.
func (s *SQLiteDatabase) deleteRestricted(ctx context.Context, table string, id int64) error {
	return s.withTx(ctx, func(tx *sql.Tx) error {
		ok, err := idExists(ctx, tx, table, id)
		if err != nil {
			return err
		}
		if !ok {
			return &arpa.NotFoundError{Table: table, Key: fmt.Sprintf("id=%d", id)}
		}

		for _, ref := range referencesTo(table) {
			var exists bool
			query := fmt.Sprintf("SELECT EXISTS (SELECT 1 FROM %s WHERE %s = ?)", ref.Table, ref.Column)
			if err := tx.QueryRowContext(ctx, query, id).Scan(&exists); err != nil {
				return fmt.Errorf("checking references from %s: %w", ref.Table, err)
			}
			if exists {
				return &arpa.ReferentialViolationError{
					Table:  table,
					ID:     id,
					Detail: fmt.Sprintf("still referenced by %s.%s", ref.Table, ref.Column),
				}
			}
		}

		if _, err := tx.ExecContext(ctx,
			fmt.Sprintf("DELETE FROM %s WHERE id = ?", table), id); err != nil {
			return fmt.Errorf("deleting from %s: %w", table, err)
		}
		return nil
	})
}

// SetMasterEphemeris atomically replaces the pulsar's master
// designation. The previous master is cleared by the same UPDATE, so
// there is no window with two masters.
func (s *SQLiteDatabase) SetMasterEphemeris(ctx context.Context, pulsarID, ephemerisID int64) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("starting transaction: %w", err)
	}
	defer tx.Rollback()

	var ephPulsar int64
	err = tx.QueryRowContext(ctx,
		`SELECT pulsar_id FROM ephemerides WHERE id = ?`, ephemerisID).Scan(&ephPulsar)
	if errors.Is(err, sql.ErrNoRows) {
		return &arpa.NotFoundError{Table: tableEphemerides, Key: fmt.Sprintf("id=%d", ephemerisID)}
	}
	if err != nil {
		return fmt.Errorf("loading ephemeris %d: %w", ephemerisID, err)
	}
	if ephPulsar != pulsarID {
		return &arpa.ConsistencyError{
			Detail: fmt.Sprintf("ephemeris id=%d belongs to pulsar id=%d, not id=%d",
				ephemerisID, ephPulsar, pulsarID),
		}
	}

	res, err := tx.ExecContext(ctx,
		`UPDATE pulsars SET master_ephemeris_id = ? WHERE id = ?`, ephemerisID, pulsarID)
	if err != nil {
		return fmt.Errorf("updating master ephemeris: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("checking update result: %w", err)
	}
	if n == 0 {
		return &arpa.NotFoundError{Table: tablePulsars, Key: fmt.Sprintf("id=%d", pulsarID)}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("committing transaction: %w", err)
	}
	return nil
}

func (s *SQLiteDatabase) ResolveMasterEphemeris(ctx context.Context, pulsarID int64) (*model.Ephemeris, error) {
	p, err := s.GetPulsar(ctx, pulsarID)
	if err != nil {
		return nil, err
	}
	if p.MasterEphemerisID == nil {
		return nil, nil // No master set
	}
	return s.GetEphemeris(ctx, *p.MasterEphemerisID)
}

// Templates

func (s *SQLiteDatabase) CreateTemplate(ctx context.Context, t *model.Template) (int64, error) {
	var id int64
	err := s.withTx(ctx, func(tx *sql.Tx) error {
		if err := assertReference(ctx, tx, tableTemplates, tablePulsars, t.PulsarID); err != nil {
			return err
		}
		if existing, err := findUniqueCollision(ctx, tx, tableTemplates,
			"checksum = ? OR file_path = ?", t.Checksum, t.FilePath); err != nil {
			return err
		} else if existing != 0 {
			return &arpa.DuplicateEntryError{Table: tableTemplates, ID: existing}
		}

		res, err := tx.ExecContext(ctx,
			`INSERT INTO templates (pulsar_id, file_path, checksum, created_at)
			 VALUES (?, ?, ?, ?)`,
			t.PulsarID, t.FilePath, t.Checksum, t.CreatedAt)
		if err != nil {
			return fmt.Errorf("inserting template: %w", err)
		}
		id, err = res.LastInsertId()
		return err
	})
	return id, err
}

func (s *SQLiteDatabase) GetTemplate(ctx context.Context, id int64) (*model.Template, error) {
	t := &model.Template{}
	err := s.db.QueryRowContext(ctx,
		`SELECT id, pulsar_id, file_path, checksum, created_at FROM templates WHERE id = ?`, id).
		Scan(&t.ID, &t.PulsarID, &t.FilePath, &t.Checksum, &t.CreatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, &arpa.NotFoundError{Table: tableTemplates, Key: fmt.Sprintf("id=%d", id)}
	}
	if err != nil {
		return nil, fmt.Errorf("getting template %d: %w", id, err)
	}
	return t, nil
}

func (s *SQLiteDatabase) FindTemplateByChecksum(ctx context.Context, checksum string) (*model.Template, error) {
	t := &model.Template{}
	err := s.db.QueryRowContext(ctx,
		`SELECT id, pulsar_id, file_path, checksum, created_at FROM templates WHERE checksum = ?`,
		checksum).
		Scan(&t.ID, &t.PulsarID, &t.FilePath, &t.Checksum, &t.CreatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil // Not found
	}
	if err != nil {
		return nil, fmt.Errorf("finding template by checksum: %w", err)
	}
	return t, nil
}

func (s *SQLiteDatabase) DeleteTemplate(ctx context.Context, id int64) error {
	return s.deleteRestricted(ctx, tableTemplates, id)
}

// Raw files

// CreateRawFile admits a raw observation row. The uniqueness check and
// the insert share one transaction, so two concurrent ingests of the
// same content cannot both pass the check; the loser gets
// DuplicateEntryError carrying the winner's id, which the service layer
// resolves per its duplicate-upload policy.
func (s *SQLiteDatabase) CreateRawFile(ctx context.Context, r *model.RawFile) (int64, error) {
	var id int64
	err := s.withTx(ctx, func(tx *sql.Tx) error {
		if err := assertReference(ctx, tx, tableRawFiles, tablePulsars, r.PulsarID); err != nil {
			return err
		}
		if err := assertReference(ctx, tx, tableRawFiles, tableObsSystems, r.ObserverID); err != nil {
			return err
		}
		if existing, err := findUniqueCollision(ctx, tx, tableRawFiles,
			"checksum = ? OR file_path = ?", r.Checksum, r.FilePath); err != nil {
			return err
		} else if existing != 0 {
			return &arpa.DuplicateEntryError{Table: tableRawFiles, ID: existing}
		}

		res, err := tx.ExecContext(ctx,
			`INSERT INTO raw_files (file_path, checksum, pulsar_id, observer_id, created_at)
			 VALUES (?, ?, ?, ?, ?)`,
			r.FilePath, r.Checksum, r.PulsarID, r.ObserverID, r.CreatedAt)
		if err != nil {
			return fmt.Errorf("inserting raw file: %w", err)
		}
		id, err = res.LastInsertId()
		return err
	})
	return id, err
}

func (s *SQLiteDatabase) GetRawFile(ctx context.Context, id int64) (*model.RawFile, error) {
	r := &model.RawFile{}
	err := s.db.QueryRowContext(ctx,
		`SELECT id, file_path, checksum, pulsar_id, observer_id, created_at
		 FROM raw_files WHERE id = ?`, id).
		Scan(&r.ID, &r.FilePath, &r.Checksum, &r.PulsarID, &r.ObserverID, &r.CreatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, &arpa.NotFoundError{Table: tableRawFiles, Key: fmt.Sprintf("id=%d", id)}
	}
	if err != nil {
		return nil, fmt.Errorf("getting raw file %d: %w", id, err)
	}
	return r, nil
}

func (s *SQLiteDatabase) FindRawFileByChecksum(ctx context.Context, checksum string) (*model.RawFile, error) {
	r := &model.RawFile{}
	err := s.db.QueryRowContext(ctx,
		`SELECT id, file_path, checksum, pulsar_id, observer_id, created_at
		 FROM raw_files WHERE checksum = ?`, checksum).
		Scan(&r.ID, &r.FilePath, &r.Checksum, &r.PulsarID, &r.ObserverID, &r.CreatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil // Not found
	}
	if err != nil {
		return nil, fmt.Errorf("finding raw file by checksum: %w", err)
	}
	return r, nil
}

func (s *SQLiteDatabase) DeleteRawFile(ctx context.Context, id int64) error {
	return s.deleteRestricted(ctx, tableRawFiles, id)
}

// Process runs and TOAs

const processColumns = "id, raw_id, ephemeris_id, template_id, n_channels, n_subints, method, user_id, created_at"

func scanProcess(scan func(dest ...any) error) (*model.Process, error) {
	p := &model.Process{}
	var eph sql.NullInt64
	if err := scan(&p.ID, &p.RawID, &eph, &p.TemplateID,
		&p.NChannels, &p.NSubints, &p.Method, &p.UserID, &p.CreatedAt); err != nil {
		return nil, err
	}
	if eph.Valid {
		p.EphemerisID = &eph.Int64
	}
	return p, nil
}

func findDuplicateProcess(ctx context.Context, q querier, key arpa.ProcessKey) (*model.Process, error) {
	cond := `raw_id = ? AND template_id = ? AND method = ?
		 AND n_channels = ? AND n_subints = ?`
	args := []any{key.RawID, key.TemplateID, key.Method, key.NChannels, key.NSubints}
	if key.EphemerisID != nil {
		cond += " AND ephemeris_id = ?"
		args = append(args, *key.EphemerisID)
	} else {
		cond += " AND ephemeris_id IS NULL"
	}

	row := q.QueryRowContext(ctx, fmt.Sprintf(
		"SELECT %s FROM processes WHERE %s ORDER BY id LIMIT 1", processColumns, cond), args...)
	p, err := scanProcess(row.Scan)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil // Not found
	}
	if err != nil {
		return nil, fmt.Errorf("finding duplicate process: %w", err)
	}
	return p, nil
}

func (s *SQLiteDatabase) FindDuplicateProcess(ctx context.Context, key arpa.ProcessKey) (*model.Process, error) {
	return findDuplicateProcess(ctx, s.db, key)
}

// CreateProcessWithTOAs atomically records a pipeline run:
//  1. Validates every reference the process row carries.
//  2. Unless force is set, re-checks for an existing run with the same
//     input tuple inside the transaction. Because transactions take
//     the write lock at BEGIN, two racers cannot both pass this check;
//     the loser gets DuplicateProcessError carrying the winner's id.
//  3. Inserts the process row and the full TOA batch. Any failure
//     rolls back everything, so no partial batch is ever visible.
func (s *SQLiteDatabase) CreateProcessWithTOAs(ctx context.Context, p *model.Process, toas []*model.TOA, force bool) (int64, []int64, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, nil, fmt.Errorf("starting transaction: %w", err)
	}
	defer tx.Rollback()

	if err := assertReference(ctx, tx, tableProcesses, tableRawFiles, p.RawID); err != nil {
		return 0, nil, err
	}
	if err := assertReference(ctx, tx, tableProcesses, tableTemplates, p.TemplateID); err != nil {
		return 0, nil, err
	}
	if err := assertReference(ctx, tx, tableProcesses, tableUsers, p.UserID); err != nil {
		return 0, nil, err
	}
	if p.EphemerisID != nil {
		if err := assertReference(ctx, tx, tableProcesses, tableEphemerides, *p.EphemerisID); err != nil {
			return 0, nil, err
		}
	}

	if !force {
		existing, err := findDuplicateProcess(ctx, tx, arpa.ProcessKey{
			RawID:       p.RawID,
			EphemerisID: p.EphemerisID,
			TemplateID:  p.TemplateID,
			Method:      p.Method,
			NChannels:   p.NChannels,
			NSubints:    p.NSubints,
		})
		if err != nil {
			return 0, nil, err
		}
		if existing != nil {
			return 0, nil, &arpa.DuplicateProcessError{ProcessID: existing.ID}
		}
	}

	res, err := tx.ExecContext(ctx,
		`INSERT INTO processes (raw_id, ephemeris_id, template_id, n_channels, n_subints, method, user_id, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		p.RawID, p.EphemerisID, p.TemplateID, p.NChannels, p.NSubints, p.Method, p.UserID, p.CreatedAt)
	if err != nil {
		return 0, nil, fmt.Errorf("inserting process: %w", err)
	}
	processID, err := res.LastInsertId()
	if err != nil {
		return 0, nil, fmt.Errorf("reading process id: %w", err)
	}

	toaIDs := make([]int64, 0, len(toas))
	for _, toa := range toas {
		res, err := tx.ExecContext(ctx,
			`INSERT INTO toas (process_id, template_id, raw_id, pulsar_id, observer_id,
			                   mjd_int, mjd_frac, uncertainty, frequency)
			 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
			processID, toa.TemplateID, toa.RawID, toa.PulsarID, toa.ObserverID,
			toa.MJDInt, toa.MJDFrac, toa.Uncertainty, toa.Frequency)
		if err != nil {
			return 0, nil, fmt.Errorf("inserting toa: %w", err)
		}
		id, err := res.LastInsertId()
		if err != nil {
			return 0, nil, fmt.Errorf("reading toa id: %w", err)
		}
		toaIDs = append(toaIDs, id)
	}

	if err := tx.Commit(); err != nil {
		return 0, nil, fmt.Errorf("committing transaction: %w", err)
	}

	return processID, toaIDs, nil
}

func (s *SQLiteDatabase) GetProcess(ctx context.Context, id int64) (*model.Process, error) {
	row := s.db.QueryRowContext(ctx,
		fmt.Sprintf("SELECT %s FROM processes WHERE id = ?", processColumns), id)
	p, err := scanProcess(row.Scan)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, &arpa.NotFoundError{Table: tableProcesses, Key: fmt.Sprintf("id=%d", id)}
	}
	if err != nil {
		return nil, fmt.Errorf("getting process %d: %w", id, err)
	}
	return p, nil
}

func (s *SQLiteDatabase) ProcessesForRawFile(ctx context.Context, rawID int64) ([]*model.Process, error) {
	rows, err := s.db.QueryContext(ctx,
		fmt.Sprintf("SELECT %s FROM processes WHERE raw_id = ? ORDER BY id", processColumns), rawID)
	if err != nil {
		return nil, fmt.Errorf("listing processes for raw file: %w", err)
	}
	defer rows.Close()

	var result []*model.Process
	for rows.Next() {
		p, err := scanProcess(rows.Scan)
		if err != nil {
			return nil, fmt.Errorf("scanning process: %w", err)
		}
		result = append(result, p)
	}
	return result, rows.Err()
}

func (s *SQLiteDatabase) ToasForPulsar(ctx context.Context, pulsarID int64, fromMJD, toMJD *float64) ([]*model.TOA, error) {
	var conds []string
	args := []any{pulsarID}
	conds = append(conds, "pulsar_id = ?")
	if fromMJD != nil {
		conds = append(conds, "(mjd_int + mjd_frac) >= ?")
		args = append(args, *fromMJD)
	}
	if toMJD != nil {
		conds = append(conds, "(mjd_int + mjd_frac) <= ?")
		args = append(args, *toMJD)
	}

	query := fmt.Sprintf(
		`SELECT id, process_id, template_id, raw_id, pulsar_id, observer_id,
		        mjd_int, mjd_frac, uncertainty, frequency
		 FROM toas WHERE %s ORDER BY mjd_int, mjd_frac`,
		strings.Join(conds, " AND "))

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("listing toas: %w", err)
	}
	defer rows.Close()

	var result []*model.TOA
	for rows.Next() {
		t := &model.TOA{}
		if err := rows.Scan(&t.ID, &t.ProcessID, &t.TemplateID, &t.RawID, &t.PulsarID, &t.ObserverID,
			&t.MJDInt, &t.MJDFrac, &t.Uncertainty, &t.Frequency); err != nil {
			return nil, fmt.Errorf("scanning toa: %w", err)
		}
		result = append(result, t)
	}
	return result, rows.Err()
}

func (s *SQLiteDatabase) CountToasForProcess(ctx context.Context, processID int64) (int, error) {
	var n int
	err := s.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM toas WHERE process_id = ?`, processID).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("counting toas for process %d: %w", processID, err)
	}
	return n, nil
}

// Users

func (s *SQLiteDatabase) CreateUser(ctx context.Context, u *model.User, passwordHash string) (int64, error) {
	var id int64
	err := s.withTx(ctx, func(tx *sql.Tx) error {
		if existing, err := findUniqueCollision(ctx, tx, tableUsers,
			"username = ? OR email = ?", u.Username, u.Email); err != nil {
			return err
		} else if existing != 0 {
			return &arpa.DuplicateEntryError{Table: tableUsers, ID: existing}
		}

		res, err := tx.ExecContext(ctx,
			`INSERT INTO users (username, real_name, email, is_admin, password_hash, created_at)
			 VALUES (?, ?, ?, ?, ?, ?)`,
			u.Username, u.RealName, u.Email, u.IsAdmin, passwordHash, u.CreatedAt)
		if err != nil {
			return fmt.Errorf("inserting user: %w", err)
		}
		id, err = res.LastInsertId()
		return err
	})
	return id, err
}

func (s *SQLiteDatabase) FindUser(ctx context.Context, username string) (*model.User, error) {
	u := &model.User{}
	err := s.db.QueryRowContext(ctx,
		`SELECT id, username, real_name, email, is_admin, created_at FROM users WHERE username = ?`,
		username).
		Scan(&u.ID, &u.Username, &u.RealName, &u.Email, &u.IsAdmin, &u.CreatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil // Not found
	}
	if err != nil {
		return nil, fmt.Errorf("finding user %q: %w", username, err)
	}
	return u, nil
}

// Path returns the database file path (or ":memory:" for in-memory databases).
func (s *SQLiteDatabase) Path() string {
	return s.path
}

// CheckMigrations verifies the database schema is up-to-date.
func (s *SQLiteDatabase) CheckMigrations() error {
	return migrations.CheckDBMigrationStatus(s.db)
}

// MigrateUp brings the database schema to the latest version.
func (s *SQLiteDatabase) MigrateUp() error {
	return migrations.MigrateUp(s.db)
}

// Close closes the database connection.
func (s *SQLiteDatabase) Close() error {
	if s.db != nil {
		return s.db.Close()
	}
	return nil
}

// Compile-time check that SQLiteDatabase implements arpa.Database
var _ arpa.Database = (*SQLiteDatabase)(nil)
