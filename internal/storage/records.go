package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"pmt/internal/core"
)

const recordColumns = `id, accounting_id, owner_id, operation_type, is_transfer,
	sum_cents, location_id, sphere_id, description, date, version`

// InsertRecord stores one Income or Spend posting under a fresh
// accounting id.
func (r *SQLiteRepository) InsertRecord(ctx context.Context, rec core.Record) (core.Record, error) {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return core.Record{}, fmt.Errorf("begin insert record: %w", err)
	}
	defer tx.Rollback()

	accountingID, err := nextAccountingID(ctx, tx)
	if err != nil {
		return core.Record{}, err
	}
	rec.AccountingID = accountingID

	rec, err = insertRecordTx(ctx, tx, rec)
	if err != nil {
		return core.Record{}, err
	}
	if err := tx.Commit(); err != nil {
		return core.Record{}, fmt.Errorf("commit insert record: %w", err)
	}

	slog.InfoContext(ctx, "Record saved",
		"id", rec.ID,
		"accounting_id", rec.AccountingID,
		"operation", rec.Operation,
		"sum_cents", rec.Sum.Cents)
	return rec, nil
}

// InsertPair stores the two halves of a transfer atomically under one
// shared accounting id. Either both rows land or neither does.
func (r *SQLiteRepository) InsertPair(ctx context.Context, from, to core.Record) (core.Record, core.Record, error) {
	tx, err := r.db.BeginTx(ctx, nil)
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

	slog.InfoContext(ctx, "Transfer saved",
		"accounting_id", accountingID,
		"from_id", from.ID,
		"to_id", to.ID,
		"sum_cents", from.Sum.Cents)
	return from, to, nil
}

// nextAccountingID bumps the dedicated counter. Accounting ids are
// monotonic and never reused, even after the group holding the maximum
// is deleted.
func nextAccountingID(ctx context.Context, tx *sql.Tx) (int64, error) {
	var next int64
	err := tx.QueryRowContext(ctx,
		`UPDATE accounting_sequence SET value = value + 1 WHERE id = 1 RETURNING value`).Scan(&next)
	if err != nil {
		return 0, fmt.Errorf("next accounting id: %w", err)
	}
	return next, nil
}

// ReplaceGroup deletes an accounting group and writes a fresh transfer
// pair under a new accounting id, all in one transaction. If any step
// fails the original group survives untouched.
func (r *SQLiteRepository) ReplaceGroup(ctx context.Context, accountingID int64, from, to core.Record) (core.Record, core.Record, error) {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return core.Record{}, core.Record{}, fmt.Errorf("begin replace group: %w", err)
	}
	defer tx.Rollback()

	res, err := tx.ExecContext(ctx,
		`DELETE FROM records WHERE accounting_id = ?`, accountingID)
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

	slog.InfoContext(ctx, "Transfer replaced",
		"old_accounting_id", accountingID,
		"accounting_id", newID,
		"rows_removed", n)
	return from, to, nil
}

func insertRecordTx(ctx context.Context, tx *sql.Tx, rec core.Record) (core.Record, error) {
	if rec.Date.IsZero() {
		rec.Date = time.Now().UTC()
	}
	rec.Version = 1
	res, err := tx.ExecContext(ctx,
		`INSERT INTO records (accounting_id, owner_id, operation_type, is_transfer,
			sum_cents, location_id, sphere_id, description, date, version)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		rec.AccountingID, rec.OwnerID, string(rec.Operation), rec.IsTransfer,
		rec.Sum.Cents, nullableID(rec.LocationID), nullableID(rec.SphereID),
		rec.Description, rec.Date, rec.Version)
	if err != nil {
		return core.Record{}, fmt.Errorf("insert record: %w", err)
	}
	rec.ID, err = res.LastInsertId()
	if err != nil {
		return core.Record{}, fmt.Errorf("insert record id: %w", err)
	}
	return rec, nil
}

func (r *SQLiteRepository) GetRecord(ctx context.Context, id int64) (core.Record, error) {
	row := r.db.QueryRowContext(ctx,
		`SELECT `+recordColumns+` FROM records WHERE id = ?`, id)
	rec, err := scanRecord(row)
	if errors.Is(err, sql.ErrNoRows) {
		return core.Record{}, fmt.Errorf("record %d: %w", id, core.ErrNotFound)
	}
	if err != nil {
		return core.Record{}, fmt.Errorf("get record: %w", err)
	}
	return rec, nil
}

// GroupRecords returns every row sharing the accounting id, ordered so a
// transfer comes back as Spend half then Income half.
func (r *SQLiteRepository) GroupRecords(ctx context.Context, accountingID int64) ([]core.Record, error) {
	return r.queryRecords(ctx,
		`SELECT `+recordColumns+` FROM records WHERE accounting_id = ? ORDER BY operation_type DESC`,
		accountingID)
}

// UpdateRecord replaces the mutable fields of one record if the caller
// still holds the current version. A stale version yields ErrConflict.
func (r *SQLiteRepository) UpdateRecord(ctx context.Context, rec core.Record) (core.Record, error) {
	res, err := r.db.ExecContext(ctx,
		`UPDATE records
		 SET operation_type = ?, sum_cents = ?, location_id = ?, sphere_id = ?,
		     description = ?, date = ?, version = version + 1
		 WHERE id = ? AND version = ?`,
		string(rec.Operation), rec.Sum.Cents, nullableID(rec.LocationID), nullableID(rec.SphereID),
		rec.Description, rec.Date, rec.ID, rec.Version)
	if err != nil {
		return core.Record{}, fmt.Errorf("update record: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return core.Record{}, fmt.Errorf("update record rows: %w", err)
	}
	if n == 0 {
		// Either the row is gone or someone got there first.
		if _, err := r.GetRecord(ctx, rec.ID); err != nil {
			return core.Record{}, err
		}
		return core.Record{}, fmt.Errorf("record %d: %w", rec.ID, core.ErrConflict)
	}
	rec.Version++
	slog.InfoContext(ctx, "Record updated", "id", rec.ID, "version", rec.Version)
	return rec, nil
}

// DeleteGroup removes every row of an accounting group in one
// transaction and reports how many rows went away.
func (r *SQLiteRepository) DeleteGroup(ctx context.Context, accountingID int64) (int64, error) {
	res, err := r.db.ExecContext(ctx,
		`DELETE FROM records WHERE accounting_id = ?`, accountingID)
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
	slog.InfoContext(ctx, "Accounting group deleted", "accounting_id", accountingID, "rows", n)
	return n, nil
}

// ListRecords pages through a user's records in reverse chronological
// order, newest first, ties broken by id.
func (r *SQLiteRepository) ListRecords(ctx context.Context, ownerID int64, limit, offset int) ([]core.Record, int64, error) {
	var total int64
	err := r.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM records WHERE owner_id = ?`, ownerID).Scan(&total)
	if err != nil {
		return nil, 0, fmt.Errorf("count records: %w", err)
	}

	records, err := r.queryRecords(ctx,
		`SELECT `+recordColumns+` FROM records
		 WHERE owner_id = ?
		 ORDER BY date DESC, id DESC
		 LIMIT ? OFFSET ?`,
		ownerID, limit, offset)
	if err != nil {
		return nil, 0, err
	}
	return records, total, nil
}

// OwnerRecords returns the complete record history of one user for
// balance folds.
func (r *SQLiteRepository) OwnerRecords(ctx context.Context, ownerID int64) ([]core.Record, error) {
	return r.queryRecords(ctx,
		`SELECT `+recordColumns+` FROM records WHERE owner_id = ? ORDER BY date, id`,
		ownerID)
}

// LocationRecords returns every record referencing the location, across
// owners, for shared-entity balances.
func (r *SQLiteRepository) LocationRecords(ctx context.Context, locationID int64) ([]core.Record, error) {
	return r.queryRecords(ctx,
		`SELECT `+recordColumns+` FROM records WHERE location_id = ? ORDER BY date, id`,
		locationID)
}

func (r *SQLiteRepository) SphereRecords(ctx context.Context, sphereID int64) ([]core.Record, error) {
	return r.queryRecords(ctx,
		`SELECT `+recordColumns+` FROM records WHERE sphere_id = ? ORDER BY date, id`,
		sphereID)
}

// EntityRecords returns every record referencing any of the given
// locations or spheres in a single query, so the dashboard can fold all
// balances in one pass.
func (r *SQLiteRepository) EntityRecords(ctx context.Context, locationIDs, sphereIDs []int64) ([]core.Record, error) {
	if len(locationIDs) == 0 && len(sphereIDs) == 0 {
		return nil, nil
	}

	var conds []string
	var args []any
	if len(locationIDs) > 0 {
		conds = append(conds, `location_id IN (`+placeholders(len(locationIDs))+`)`)
		for _, id := range locationIDs {
			args = append(args, id)
		}
	}
	if len(sphereIDs) > 0 {
		conds = append(conds, `sphere_id IN (`+placeholders(len(sphereIDs))+`)`)
		for _, id := range sphereIDs {
			args = append(args, id)
		}
	}
	return r.queryRecords(ctx,
		`SELECT `+recordColumns+` FROM records WHERE `+strings.Join(conds, " OR ")+` ORDER BY date, id`,
		args...)
}

func placeholders(n int) string {
	return strings.TrimSuffix(strings.Repeat("?,", n), ",")
}

// ListUnarchived returns records not yet copied to the archive, oldest
// first, skipping rows that already failed once until retried.
func (r *SQLiteRepository) ListUnarchived(ctx context.Context, limit int) ([]core.Record, error) {
	return r.queryRecords(ctx,
		`SELECT `+recordColumns+` FROM records
		 WHERE archived_at IS NULL AND archive_error = 0
		 ORDER BY id
		 LIMIT ?`,
		limit)
}

func (r *SQLiteRepository) MarkArchived(ctx context.Context, id int64) error {
	_, err := r.db.ExecContext(ctx,
		`UPDATE records SET archived_at = ?, archive_error = 0 WHERE id = ?`,
		time.Now().UTC(), id)
	if err != nil {
		return fmt.Errorf("mark archived: %w", err)
	}
	return nil
}

func (r *SQLiteRepository) MarkArchiveError(ctx context.Context, id int64) error {
	_, err := r.db.ExecContext(ctx,
		`UPDATE records SET archive_error = 1 WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("mark archive error: %w", err)
	}
	slog.WarnContext(ctx, "Record marked with archive error", "id", id)
	return nil
}

func (r *SQLiteRepository) queryRecords(ctx context.Context, query string, args ...any) ([]core.Record, error) {
	rows, err := r.db.QueryContext(ctx, query, args...)
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

func nullableID(id *int64) any {
	if id == nil {
		return nil
	}
	return *id
}
