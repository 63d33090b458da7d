package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"pmt/internal/core"
)

// Access roles stored in the location_access and sphere_access tables.
const (
	RoleReader = "reader"
	RoleEditor = "editor"
)

// Locations and spheres are stored in structurally identical tables, so
// both sets of methods delegate to the same queries parameterized by
// table names.
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

func (r *SQLiteRepository) createEntity(ctx context.Context, t entityTable, name, description string, ownerID int64) (entityRow, error) {
	res, err := r.db.ExecContext(ctx,
		fmt.Sprintf(`INSERT INTO %s (name, description, owner_id) VALUES (?, ?, ?)`, t.table),
		name, description, ownerID)
	if err != nil {
		return entityRow{}, fmt.Errorf("create %s: %w", t.table, err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return entityRow{}, fmt.Errorf("create %s id: %w", t.table, err)
	}
	return entityRow{ID: id, Name: name, Description: description, OwnerID: ownerID}, nil
}

func (r *SQLiteRepository) getEntity(ctx context.Context, t entityTable, id int64) (entityRow, error) {
	var e entityRow
	err := r.db.QueryRowContext(ctx,
		fmt.Sprintf(`SELECT id, name, description, owner_id FROM %s WHERE id = ?`, t.table), id).
		Scan(&e.ID, &e.Name, &e.Description, &e.OwnerID)
	if errors.Is(err, sql.ErrNoRows) {
		return entityRow{}, fmt.Errorf("%s %d: %w", t.table, id, core.ErrNotFound)
	}
	if err != nil {
		return entityRow{}, fmt.Errorf("get %s: %w", t.table, err)
	}
	if err := r.loadAccess(ctx, t, &e); err != nil {
		return entityRow{}, err
	}
	return e, nil
}

func (r *SQLiteRepository) loadAccess(ctx context.Context, t entityTable, e *entityRow) error {
	rows, err := r.db.QueryContext(ctx,
		fmt.Sprintf(`SELECT user_id, role FROM %s WHERE %s = ? ORDER BY user_id`, t.access, t.fk), e.ID)
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
		switch role {
		case RoleEditor:
			e.EditorIDs = append(e.EditorIDs, userID)
		default:
			e.ReaderIDs = append(e.ReaderIDs, userID)
		}
	}
	return rows.Err()
}

// listEntities returns the entities visible to the user: owned ones plus
// those shared through the access table.
func (r *SQLiteRepository) listEntities(ctx context.Context, t entityTable, userID int64) ([]entityRow, error) {
	rows, err := r.db.QueryContext(ctx, fmt.Sprintf(
		`SELECT DISTINCT e.id, e.name, e.description, e.owner_id
		 FROM %s e
		 LEFT JOIN %s a ON a.%s = e.id
		 WHERE e.owner_id = ? OR a.user_id = ?
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
		if err := r.loadAccess(ctx, t, &out[i]); err != nil {
			return nil, err
		}
	}
	return out, nil
}

func (r *SQLiteRepository) updateEntity(ctx context.Context, t entityTable, id int64, name, description string) error {
	res, err := r.db.ExecContext(ctx,
		fmt.Sprintf(`UPDATE %s SET name = ?, description = ? WHERE id = ?`, t.table),
		name, description, id)
	if err != nil {
		return fmt.Errorf("update %s: %w", t.table, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("update %s rows: %w", t.table, err)
	}
	if n == 0 {
		return fmt.Errorf("%s %d: %w", t.table, id, core.ErrNotFound)
	}
	return nil
}

// deleteEntity removes the entity. Records referencing it keep their
// rows; the foreign key sets the reference to NULL.
func (r *SQLiteRepository) deleteEntity(ctx context.Context, t entityTable, id int64) error {
	res, err := r.db.ExecContext(ctx,
		fmt.Sprintf(`DELETE FROM %s WHERE id = ?`, t.table), id)
	if err != nil {
		return fmt.Errorf("delete %s: %w", t.table, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("delete %s rows: %w", t.table, err)
	}
	if n == 0 {
		return fmt.Errorf("%s %d: %w", t.table, id, core.ErrNotFound)
	}
	return nil
}

func (r *SQLiteRepository) grantAccess(ctx context.Context, t entityTable, id, userID int64, role string) error {
	if role != RoleReader && role != RoleEditor {
		return fmt.Errorf("%w: role must be %q or %q", core.ErrValidation, RoleReader, RoleEditor)
	}
	_, err := r.db.ExecContext(ctx, fmt.Sprintf(
		`INSERT INTO %s (%s, user_id, role) VALUES (?, ?, ?)
		 ON CONFLICT (%s, user_id) DO UPDATE SET role = excluded.role`,
		t.access, t.fk, t.fk), id, userID, role)
	if err != nil {
		return fmt.Errorf("grant %s: %w", t.access, err)
	}
	return nil
}

func (r *SQLiteRepository) revokeAccess(ctx context.Context, t entityTable, id, userID int64) error {
	_, err := r.db.ExecContext(ctx,
		fmt.Sprintf(`DELETE FROM %s WHERE %s = ? AND user_id = ?`, t.access, t.fk), id, userID)
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

func (r *SQLiteRepository) CreateLocation(ctx context.Context, name, description string, ownerID int64) (core.Location, error) {
	e, err := r.createEntity(ctx, locationTable, name, description, ownerID)
	if err != nil {
		return core.Location{}, err
	}
	return toLocation(e), nil
}

func (r *SQLiteRepository) GetLocation(ctx context.Context, id int64) (core.Location, error) {
	e, err := r.getEntity(ctx, locationTable, id)
	if err != nil {
		return core.Location{}, err
	}
	return toLocation(e), nil
}

func (r *SQLiteRepository) ListLocations(ctx context.Context, userID int64) ([]core.Location, error) {
	rows, err := r.listEntities(ctx, locationTable, userID)
	if err != nil {
		return nil, err
	}
	out := make([]core.Location, len(rows))
	for i, e := range rows {
		out[i] = toLocation(e)
	}
	return out, nil
}

func (r *SQLiteRepository) UpdateLocation(ctx context.Context, id int64, name, description string) error {
	return r.updateEntity(ctx, locationTable, id, name, description)
}

func (r *SQLiteRepository) DeleteLocation(ctx context.Context, id int64) error {
	return r.deleteEntity(ctx, locationTable, id)
}

func (r *SQLiteRepository) GrantLocationAccess(ctx context.Context, id, userID int64, role string) error {
	return r.grantAccess(ctx, locationTable, id, userID, role)
}

func (r *SQLiteRepository) RevokeLocationAccess(ctx context.Context, id, userID int64) error {
	return r.revokeAccess(ctx, locationTable, id, userID)
}

func (r *SQLiteRepository) CreateSphere(ctx context.Context, name, description string, ownerID int64) (core.Sphere, error) {
	e, err := r.createEntity(ctx, sphereTable, name, description, ownerID)
	if err != nil {
		return core.Sphere{}, err
	}
	return toSphere(e), nil
}

func (r *SQLiteRepository) GetSphere(ctx context.Context, id int64) (core.Sphere, error) {
	e, err := r.getEntity(ctx, sphereTable, id)
	if err != nil {
		return core.Sphere{}, err
	}
	return toSphere(e), nil
}

func (r *SQLiteRepository) ListSpheres(ctx context.Context, userID int64) ([]core.Sphere, error) {
	rows, err := r.listEntities(ctx, sphereTable, userID)
	if err != nil {
		return nil, err
	}
	out := make([]core.Sphere, len(rows))
	for i, e := range rows {
		out[i] = toSphere(e)
	}
	return out, nil
}

func (r *SQLiteRepository) UpdateSphere(ctx context.Context, id int64, name, description string) error {
	return r.updateEntity(ctx, sphereTable, id, name, description)
}

func (r *SQLiteRepository) DeleteSphere(ctx context.Context, id int64) error {
	return r.deleteEntity(ctx, sphereTable, id)
}

func (r *SQLiteRepository) GrantSphereAccess(ctx context.Context, id, userID int64, role string) error {
	return r.grantAccess(ctx, sphereTable, id, userID, role)
}

func (r *SQLiteRepository) RevokeSphereAccess(ctx context.Context, id, userID int64) error {
	return r.revokeAccess(ctx, sphereTable, id, userID)
}
