package services

import (
	"context"

	"pmt/internal/core"
)

// Store is the persistence surface the services need. Both the SQLite
// repository and the Postgres store satisfy it.
type Store interface {
	CreateUser(ctx context.Context, email, passwordHash string) (core.User, error)
	GetUser(ctx context.Context, id int64) (core.User, error)
	GetUserByEmail(ctx context.Context, email string) (core.User, error)

	CreateLocation(ctx context.Context, name, description string, ownerID int64) (core.Location, error)
	GetLocation(ctx context.Context, id int64) (core.Location, error)
	ListLocations(ctx context.Context, userID int64) ([]core.Location, error)
	UpdateLocation(ctx context.Context, id int64, name, description string) error
	DeleteLocation(ctx context.Context, id int64) error
	GrantLocationAccess(ctx context.Context, id, userID int64, role string) error
	RevokeLocationAccess(ctx context.Context, id, userID int64) error

	CreateSphere(ctx context.Context, name, description string, ownerID int64) (core.Sphere, error)
	GetSphere(ctx context.Context, id int64) (core.Sphere, error)
	ListSpheres(ctx context.Context, userID int64) ([]core.Sphere, error)
	UpdateSphere(ctx context.Context, id int64, name, description string) error
	DeleteSphere(ctx context.Context, id int64) error
	GrantSphereAccess(ctx context.Context, id, userID int64, role string) error
	RevokeSphereAccess(ctx context.Context, id, userID int64) error

	InsertRecord(ctx context.Context, rec core.Record) (core.Record, error)
	InsertPair(ctx context.Context, from, to core.Record) (core.Record, core.Record, error)
	GetRecord(ctx context.Context, id int64) (core.Record, error)
	GroupRecords(ctx context.Context, accountingID int64) ([]core.Record, error)
	UpdateRecord(ctx context.Context, rec core.Record) (core.Record, error)
	DeleteGroup(ctx context.Context, accountingID int64) (int64, error)
	ReplaceGroup(ctx context.Context, accountingID int64, from, to core.Record) (core.Record, core.Record, error)
	ListRecords(ctx context.Context, ownerID int64, limit, offset int) ([]core.Record, int64, error)
	OwnerRecords(ctx context.Context, ownerID int64) ([]core.Record, error)
	LocationRecords(ctx context.Context, locationID int64) ([]core.Record, error)
	SphereRecords(ctx context.Context, sphereID int64) ([]core.Record, error)
	EntityRecords(ctx context.Context, locationIDs, sphereIDs []int64) ([]core.Record, error)
}

// EventPublisher fans ledger changes out to the archive pipeline. A nil
// publisher disables events without failing writes.
type EventPublisher interface {
	PublishRecordArchive(ctx context.Context, recordID, version int64) error
	PublishRecordDelete(ctx context.Context, recordID int64) error
}
