// Package postgres provides a Postgres-backed store with the same
// method set as the SQLite repository. The schema is applied on
// startup; statements use numbered placeholders and RETURNING for ids.
package postgres

import (
	"context"
	"database/sql"
	_ "embed"
	"errors"
	"fmt"
	"strings"
	"time"

	"pmt/internal/core"

	_ "github.com/jackc/pgx/v5/stdlib" // register pgx as a database/sql driver
)

//go:embed schema.sql
var schemaDDL string

type Store struct {
	db *sql.DB
}

func NewStore(dsn string) (*Store, error) {
	db, err := sql.Open("pgx", dsn)
	if err != nil {
		return nil, fmt.Errorf("open postgres: %w", err)
	}
	ctx := context.Background()
	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping postgres: %w", err)
	}
	if _, err := db.ExecContext(ctx, schemaDDL); err != nil {
		db.Close()
		return nil, fmt.Errorf("apply schema: %w", err)
	}
	return &Store{db: db}, nil
}

func (s *Store) Close() error {
	return s.db.Close()
}

func (s *Store) DB() *sql.DB {
	return s.db
}

func (s *Store) CreateUser(ctx context.Context, email, passwordHash string) (core.User, error) {
	u := core.User{Email: email, PasswordHash: passwordHash}
	err := s.db.QueryRowContext(ctx,
		`INSERT INTO users (email, password_hash) VALUES ($1, $2) RETURNING id, created_at`,
		email, passwordHash).Scan(&u.ID, &u.CreatedAt)
	if err != nil {
		if strings.Contains(err.Error(), "unique") || strings.Contains(err.Error(), "duplicate") {
			return core.User{}, fmt.Errorf("%w: email already registered", core.ErrConflict)
		}
		return core.User{}, fmt.Errorf("create user: %w", err)
	}
	return u, nil
}

func (s *Store) GetUser(ctx context.Context, id int64) (core.User, error) {
	return s.scanUser(s.db.QueryRowContext(ctx,
		`SELECT id, email, password_hash, created_at FROM users WHERE id = $1`, id))
}

func (s *Store) GetUserByEmail(ctx context.Context, email string) (core.User, error) {
	return s.scanUser(s.db.QueryRowContext(ctx,
		`SELECT id, email, password_hash, created_at FROM users WHERE email = $1`, email))
}

func (s *Store) scanUser(row *sql.Row) (core.User, error) {
	var u core.User
	err := row.Scan(&u.ID, &u.Email, &u.PasswordHash, &u.CreatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return core.User{}, fmt.Errorf("user: %w", core.ErrNotFound)
	}
	if err != nil {
		return core.User{}, fmt.Errorf("get user: %w", err)
	}
	return u, nil
}

type entityTable struct {
	table  string
	access string
	fk     string
}

var (
	locationTable = entityTable{table: "locations", access: "location_access", fk: "location_id"}
	sphereTable   = entityTable{table: "spheres", access: "sphere_access", fk: "sphere_id"}
)

type entityRow struct {
	ID          int64
	Name        string
	Description string
	OwnerID     int64
	ReaderIDs   []int64
	EditorIDs   []int64
}

func (s *Store) createEntity(ctx context.Context, t entityTable, name, description string, ownerID int64) (entityRow, error) {
	e := entityRow{Name: name, Description: description, OwnerID: ownerID}
	err := s.db.QueryRowContext(ctx,
		fmt.Sprintf(`INSERT INTO %s (name, description, owner_id) VALUES ($1, $2, $3) RETURNING id`, t.table),
		name, description, ownerID).Scan(&e.ID)
	if err != nil {
		return entityRow{}, fmt.Errorf("create %s: %w", t.table, err)
	}
	return e, nil
}

func (s *Store) getEntity(ctx context.Context, t entityTable, id int64) (entityRow, error) {
	var e entityRow
	err := s.db.QueryRowContext(ctx,
		fmt.Sprintf(`SELECT id, name, description, owner_id FROM %s WHERE id = $1`, t.table), id).
		Scan(&e.ID, &e.Name, &e.Description, &e.OwnerID)
	if errors.Is(err, sql.ErrNoRows) {
		return entityRow{}, fmt.Errorf("%s %d: %w", t.table, id, core.ErrNotFound)
	}
	if err != nil {
		return entityRow{}, fmt.Errorf("get %s: %w", t.table, err)
	}
	if err := s.loadAccess(ctx, t, &e); err != nil {
		return entityRow{}, err
	}
	return e, nil
}

func (s *Store) loadAccess(ctx context.Context, t entityTable, e *entityRow) error {
	rows, err := s.db.QueryContext(ctx,
		fmt.Sprintf(`SELECT user_id, role FROM %s WHERE %s = $1 ORDER BY user_id`, t.access, t.fk), e.ID)
	if err != nil {
		return fmt.Errorf("load %s: %w", t.access, err)
	}
	defer rows.Close()
	for rows.Next() {
		var userID int64
		var role string
		if err := rows.Scan(&userID, &role); err != nil {
			return fmt.Errorf("scan %s: %w", t.access, err)
		}
		if role == "editor" {
			e.EditorIDs = append(e.EditorIDs, userID)
		} else {
			e.ReaderIDs = append(e.ReaderIDs, userID)
		}
	}
	return rows.Err()
}

func (s *Store) listEntities(ctx context.Context, t entityTable, userID int64) ([]entityRow, error) {
	rows, err := s.db.QueryContext(ctx, fmt.Sprintf(
		`SELECT DISTINCT e.id, e.name, e.description, e.owner_id
		 FROM %s e
		 LEFT JOIN %s a ON a.%s = e.id
		 WHERE e.owner_id = $1 OR a.user_id = $2
		 ORDER BY e.id`, t.table, t.access, t.fk),
		userID, userID)
	if err != nil {
		return nil, fmt.Errorf("list %s: %w", t.table, err)
	}
	defer rows.Close()

	var out []entityRow
	for rows.Next() {
		var e entityRow
		if err := rows.Scan(&e.ID, &e.Name, &e.Description, &e.OwnerID); err != nil {
			return nil, fmt.Errorf("scan %s: %w", t.table, err)
		}
		out = append(out, e)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	for i := range out {
		if err := s.loadAccess(ctx, t, &out[i]); err != nil {
			return nil, err
		}
	}
	return out, nil
}

func (s *Store) updateEntity(ctx context.Context, t entityTable, id int64, name, description string) error {
	res, err := s.db.ExecContext(ctx,
		fmt.Sprintf(`UPDATE %s SET name = $1, description = $2 WHERE id = $3`, t.table),
		name, description, id)
	if err != nil {
		return fmt.Errorf("update %s: %w", t.table, err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("%s %d: %w", t.table, id, core.ErrNotFound)
	}
	return nil
}

func (s *Store) deleteEntity(ctx context.Context, t entityTable, id int64) error {
	res, err := s.db.ExecContext(ctx,
		fmt.Sprintf(`DELETE FROM %s WHERE id = $1`, t.table), id)
	if err != nil {
		return fmt.Errorf("delete %s: %w", t.table, err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("%s %d: %w", t.table, id, core.ErrNotFound)
	}
	return nil
}

func (s *Store) grantAccess(ctx context.Context, t entityTable, id, userID int64, role string) error {
	if role != "reader" && role != "editor" {
		return fmt.Errorf("%w: role must be reader or editor", core.ErrValidation)
	}
	_, err := s.db.ExecContext(ctx, fmt.Sprintf(
		`INSERT INTO %s (%s, user_id, role) VALUES ($1, $2, $3)
		 ON CONFLICT (%s, user_id) DO UPDATE SET role = EXCLUDED.role`,
		t.access, t.fk, t.fk), id, userID, role)
	if err != nil {
		return fmt.Errorf("grant %s: %w", t.access, err)
	}
	return nil
}

func (s *Store) revokeAccess(ctx context.Context, t entityTable, id, userID int64) error {
	_, err := s.db.ExecContext(ctx,
		fmt.Sprintf(`DELETE FROM %s WHERE %s = $1 AND user_id = $2`, t.access, t.fk), id, userID)
	if err != nil {
		return fmt.Errorf("revoke %s: %w", t.access, err)
	}
	return nil
}

func toLocation(e entityRow) core.Location {
	return core.Location{ID: e.ID, Name: e.Name, Description: e.Description, OwnerID: e.OwnerID, ReaderIDs: e.ReaderIDs, EditorIDs: e.EditorIDs}
}

func toSphere(e entityRow) core.Sphere {
	return core.Sphere{ID: e.ID, Name: e.Name, Description: e.Description, OwnerID: e.OwnerID, ReaderIDs: e.ReaderIDs, EditorIDs: e.EditorIDs}
}

func (s *Store) CreateLocation(ctx context.Context, name, description string, ownerID int64) (core.Location, error) {
	e, err := s.createEntity(ctx, locationTable, name, description, ownerID)
	if err != nil {
		return core.Location{}, err
	}
	return toLocation(e), nil
}

func (s *Store) GetLocation(ctx context.Context, id int64) (core.Location, error) {
	e, err := s.getEntity(ctx, locationTable, id)
	if err != nil {
		return core.Location{}, err
	}
	return toLocation(e), nil
}

func (s *Store) ListLocations(ctx context.Context, userID int64) ([]core.Location, error) {
	rows, err := s.listEntities(ctx, locationTable, userID)
	if err != nil {
		return nil, err
	}
	out := make([]core.Location, len(rows))
	for i, e := range rows {
		out[i] = toLocation(e)
	}
	return out, nil
}

func (s *Store) UpdateLocation(ctx context.Context, id int64, name, description string) error {
	return s.updateEntity(ctx, locationTable, id, name, description)
}

func (s *Store) DeleteLocation(ctx context.Context, id int64) error {
	return s.deleteEntity(ctx, locationTable, id)
}

func (s *Store) GrantLocationAccess(ctx context.Context, id, userID int64, role string) error {
	return s.grantAccess(ctx, locationTable, id, userID, role)
}

func (s *Store) RevokeLocationAccess(ctx context.Context, id, userID int64) error {
	return s.revokeAccess(ctx, locationTable, id, userID)
}

func (s *Store) CreateSphere(ctx context.Context, name, description string, ownerID int64) (core.Sphere, error) {
	e, err := s.createEntity(ctx, sphereTable, name, description, ownerID)
	if err != nil {
		return core.Sphere{}, err
	}
	return toSphere(e), nil
}

func (s *Store) GetSphere(ctx context.Context, id int64) (core.Sphere, error) {
	e, err := s.getEntity(ctx, sphereTable, id)
	if err != nil {
		return core.Sphere{}, err
	}
	return toSphere(e), nil
}

func (s *Store) ListSpheres(ctx context.Context, userID int64) ([]core.Sphere, error) {
	rows, err := s.listEntities(ctx, sphereTable, userID)
	if err != nil {
		return nil, err
	}
	out := make([]core.Sphere, len(rows))
	for i, e := range rows {
		out[i] = toSphere(e)
	}
	return out, nil
}

func (s *Store) UpdateSphere(ctx context.Context, id int64, name, description string) error {
	return s.updateEntity(ctx, sphereTable, id, name, description)
}

func (s *Store) DeleteSphere(ctx context.Context, id int64) error {
	return s.deleteEntity(ctx, sphereTable, id)
}

func (s *Store) GrantSphereAccess(ctx context.Context, id, userID int64, role string) error {
	return s.grantAccess(ctx, sphereTable, id, userID, role)
}

func (s *Store) RevokeSphereAccess(ctx context.Context, id, userID int64) error {
	return s.revokeAccess(ctx, sphereTable, id, userID)
}

const recordColumns = `id, accounting_id, owner_id, operation_type, is_transfer,
	sum_cents, location_id, sphere_id, description, date, version`

func (s *Store) InsertRecord(ctx context.Context, rec core.Record) (core.Record, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return core.Record{}, fmt.Errorf("begin insert record: %w", err)
	}
	defer tx.Rollback()

	rec.AccountingID, err = nextAccountingID(ctx, tx)
	if err != nil {
		return core.Record{}, err
	}
	rec, err = insertRecordTx(ctx, tx, rec)
	if err != nil {
		return core.Record{}, err
	}
	if err := tx.Commit(); err != nil {
		return core.Record{}, fmt.Errorf("commit insert record: %w", err)
	}
	return rec, nil
}

func (s *Store) InsertPair(ctx context.Context, from, to core.Record) (core.Record, core.Record, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return core.Record{}, core.Record{}, fmt.Errorf("begin insert pair: %w", err)
	}
	defer tx.Rollback()

	accountingID, err := nextAccountingID(ctx, tx)
	if err != nil {
		return core.Record{}, core.Record{}, err
	}
	from.AccountingID = accountingID
	to.AccountingID = accountingID

	from, err = insertRecordTx(ctx, tx, from)
	if err != nil {
		return core.Record{}, core.Record{}, err
	}
	to, err = insertRecordTx(ctx, tx, to)
	if err != nil {
		return core.Record{}, core.Record{}, err
	}
	if err := tx.Commit(); err != nil {
		return core.Record{}, core.Record{}, fmt.Errorf("commit insert pair: %w", err)
	}
	return from, to, nil
}

// nextAccountingID draws from a dedicated sequence, so concurrent
// allocators can never hand out the same id and ids are never reused
// after a delete.
func nextAccountingID(ctx context.Context, tx *sql.Tx) (int64, error) {
	var next int64
	err := tx.QueryRowContext(ctx,
		`SELECT nextval('accounting_id_seq')`).Scan(&next)
	if err != nil {
		return 0, fmt.Errorf("next accounting id: %w", err)
	}
	return next, nil
}

// ReplaceGroup deletes an accounting group and writes a fresh transfer
// pair under a new accounting id, all in one transaction. If any step
// fails the original group survives untouched.
func (s *Store) ReplaceGroup(ctx context.Context, accountingID int64, from, to core.Record) (core.Record, core.Record, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return core.Record{}, core.Record{}, fmt.Errorf("begin replace group: %w", err)
	}
	defer tx.Rollback()

	res, err := tx.ExecContext(ctx,
		`DELETE FROM records WHERE accounting_id = $1`, accountingID)
	if err != nil {
		return core.Record{}, core.Record{}, fmt.Errorf("replace group delete: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return core.Record{}, core.Record{}, fmt.Errorf("replace group rows: %w", err)
	}
	if n == 0 {
		return core.Record{}, core.Record{}, fmt.Errorf("accounting group %d: %w", accountingID, core.ErrNotFound)
	}

	newID, err := nextAccountingID(ctx, tx)
	if err != nil {
		return core.Record{}, core.Record{}, err
	}
	from.AccountingID = newID
	to.AccountingID = newID

	from, err = insertRecordTx(ctx, tx, from)
	if err != nil {
		return core.Record{}, core.Record{}, err
	}
	to, err = insertRecordTx(ctx, tx, to)
	if err != nil {
		return core.Record{}, core.Record{}, err
	}
	if err := tx.Commit(); err != nil {
		return core.Record{}, core.Record{}, fmt.Errorf("commit replace group: %w", err)
	}
	return from, to, nil
}

func insertRecordTx(ctx context.Context, tx *sql.Tx, rec core.Record) (core.Record, error) {
	if rec.Date.IsZero() {
		rec.Date = time.Now().UTC()
	}
	rec.Version = 1
	err := tx.QueryRowContext(ctx,
		`INSERT INTO records (accounting_id, owner_id, operation_type, is_transfer,
			sum_cents, location_id, sphere_id, description, date, version)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
		 RETURNING id`,
		rec.AccountingID, rec.OwnerID, string(rec.Operation), rec.IsTransfer,
		rec.Sum.Cents, rec.LocationID, rec.SphereID,
		rec.Description, rec.Date, rec.Version).Scan(&rec.ID)
	if err != nil {
		return core.Record{}, fmt.Errorf("insert record: %w", err)
	}
	return rec, nil
}

func (s *Store) GetRecord(ctx context.Context, id int64) (core.Record, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT `+recordColumns+` FROM records WHERE id = $1`, id)
	rec, err := scanRecord(row)
	if errors.Is(err, sql.ErrNoRows) {
		return core.Record{}, fmt.Errorf("record %d: %w", id, core.ErrNotFound)
	}
	if err != nil {
		return core.Record{}, fmt.Errorf("get record: %w", err)
	}
	return rec, nil
}

func (s *Store) GroupRecords(ctx context.Context, accountingID int64) ([]core.Record, error) {
	return s.queryRecords(ctx,
		`SELECT `+recordColumns+` FROM records WHERE accounting_id = $1 ORDER BY operation_type DESC`,
		accountingID)
}

func (s *Store) UpdateRecord(ctx context.Context, rec core.Record) (core.Record, error) {
	res, err := s.db.ExecContext(ctx,
		`UPDATE records
		 SET operation_type = $1, sum_cents = $2, location_id = $3, sphere_id = $4,
		     description = $5, date = $6, version = version + 1
		 WHERE id = $7 AND version = $8`,
		string(rec.Operation), rec.Sum.Cents, rec.LocationID, rec.SphereID,
		rec.Description, rec.Date, rec.ID, rec.Version)
	if err != nil {
		return core.Record{}, fmt.Errorf("update record: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		if _, err := s.GetRecord(ctx, rec.ID); err != nil {
			return core.Record{}, err
		}
		return core.Record{}, fmt.Errorf("record %d: %w", rec.ID, core.ErrConflict)
	}
	rec.Version++
	return rec, nil
}

func (s *Store) DeleteGroup(ctx context.Context, accountingID int64) (int64, error) {
	res, err := s.db.ExecContext(ctx,
		`DELETE FROM records WHERE accounting_id = $1`, accountingID)
	if err != nil {
		return 0, fmt.Errorf("delete group: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("delete group rows: %w", err)
	}
	if n == 0 {
		return 0, fmt.Errorf("accounting group %d: %w", accountingID, core.ErrNotFound)
	}
	return n, nil
}

func (s *Store) ListRecords(ctx context.Context, ownerID int64, limit, offset int) ([]core.Record, int64, error) {
	var total int64
	err := s.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM records WHERE owner_id = $1`, ownerID).Scan(&total)
	if err != nil {
		return nil, 0, fmt.Errorf("count records: %w", err)
	}
	records, err := s.queryRecords(ctx,
		`SELECT `+recordColumns+` FROM records
		 WHERE owner_id = $1
		 ORDER BY date DESC, id DESC
		 LIMIT $2 OFFSET $3`,
		ownerID, limit, offset)
	if err != nil {
		return nil, 0, err
	}
	return records, total, nil
}

func (s *Store) OwnerRecords(ctx context.Context, ownerID int64) ([]core.Record, error) {
	return s.queryRecords(ctx,
		`SELECT `+recordColumns+` FROM records WHERE owner_id = $1 ORDER BY date, id`,
		ownerID)
}

func (s *Store) LocationRecords(ctx context.Context, locationID int64) ([]core.Record, error) {
	return s.queryRecords(ctx,
		`SELECT `+recordColumns+` FROM records WHERE location_id = $1 ORDER BY date, id`,
		locationID)
}

func (s *Store) SphereRecords(ctx context.Context, sphereID int64) ([]core.Record, error) {
	return s.queryRecords(ctx,
		`SELECT `+recordColumns+` FROM records WHERE sphere_id = $1 ORDER BY date, id`,
		sphereID)
}

// EntityRecords returns every record referencing any of the given
// locations or spheres in a single query, so the dashboard can fold all
// balances in one pass.
func (s *Store) EntityRecords(ctx context.Context, locationIDs, sphereIDs []int64) ([]core.Record, error) {
	if len(locationIDs) == 0 && len(sphereIDs) == 0 {
		return nil, nil
	}
	return s.queryRecords(ctx,
		`SELECT `+recordColumns+` FROM records
		 WHERE location_id = ANY($1) OR sphere_id = ANY($2)
		 ORDER BY date, id`,
		locationIDs, sphereIDs)
}

func (s *Store) ListUnarchived(ctx context.Context, limit int) ([]core.Record, error) {
	return s.queryRecords(ctx,
		`SELECT `+recordColumns+` FROM records
		 WHERE archived_at IS NULL AND archive_error = FALSE
		 ORDER BY id
		 LIMIT $1`,
		limit)
}

func (s *Store) MarkArchived(ctx context.Context, id int64) error {
	_, err := s.db.ExecContext(ctx,
		`UPDATE records SET archived_at = now(), archive_error = FALSE WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("mark archived: %w", err)
	}
	return nil
}

func (s *Store) MarkArchiveError(ctx context.Context, id int64) error {
	_, err := s.db.ExecContext(ctx,
		`UPDATE records SET archive_error = TRUE WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("mark archive error: %w", err)
	}
	return nil
}

func (s *Store) queryRecords(ctx context.Context, query string, args ...any) ([]core.Record, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query records: %w", err)
	}
	defer rows.Close()

	var out []core.Record
	for rows.Next() {
		rec, err := scanRecord(rows)
		if err != nil {
			return nil, fmt.Errorf("scan record: %w", err)
		}
		out = append(out, rec)
	}
	return out, rows.Err()
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanRecord(row rowScanner) (core.Record, error) {
	var rec core.Record
	var op string
	var locationID, sphereID sql.NullInt64
	err := row.Scan(&rec.ID, &rec.AccountingID, &rec.OwnerID, &op, &rec.IsTransfer,
		&rec.Sum.Cents, &locationID, &sphereID, &rec.Description, &rec.Date, &rec.Version)
	if err != nil {
		return core.Record{}, err
	}
	rec.Operation = core.OperationType(op)
	if locationID.Valid {
		rec.LocationID = &locationID.Int64
	}
	if sphereID.Valid {
		rec.SphereID = &sphereID.Int64
	}
	return rec, nil
}
