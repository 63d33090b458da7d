package core

import (
	"fmt"
	"slices"
	"strings"
	"time"
)

const (
	Income OperationType = "Income"
	Spend  OperationType = "Spend"
)

const (
	TransferLocation TransferKind = "location"
	TransferSphere   TransferKind = "sphere"
)

const (
	KindLocation EntityKind = "location"
	KindSphere   EntityKind = "sphere"
)

type (
	// OperationType is the posting direction of a record. A transfer is
	// stored as a Spend half (source) plus an Income half (destination).
	OperationType string

	// TransferKind says which dimension a transfer moves money across;
	// the other dimension is held fixed on both halves.
	TransferKind string

	// EntityKind distinguishes the two balance-carrying entity types.
	EntityKind string

	// Record is one ledger posting. AccountingID groups the rows created
	// by a single operation: one row for Income/Spend, exactly two rows
	// for a transfer. Version supports optimistic concurrency on
	// update/delete.
	Record struct {
		ID           int64
		AccountingID int64
		OwnerID      int64
		Operation    OperationType
		IsTransfer   bool
		Sum          Money
		LocationID   *int64
		SphereID     *int64
		Description  string
		Date         time.Time
		Version      int64
	}

	// Location is a named money pool (account, wallet, cash box).
	Location struct {
		ID          int64
		Name        string
		Description string
		OwnerID     int64
		ReaderIDs   []int64
		EditorIDs   []int64
	}

	// Sphere is a named spending category. Structurally identical to
	// Location; kept as a distinct type so references cannot be mixed up.
	Sphere struct {
		ID          int64
		Name        string
		Description string
		OwnerID     int64
		ReaderIDs   []int64
		EditorIDs   []int64
	}

	// User is an account that owns entities and records.
	User struct {
		ID           int64
		Email        string
		PasswordHash string
		CreatedAt    time.Time
	}
)

func (op OperationType) Valid() bool {
	return op == Income || op == Spend
}

func (k TransferKind) Valid() bool {
	return k == TransferLocation || k == TransferSphere
}

// Validate checks the invariants of a single record. Non-transfer
// records must reference both a location and a sphere.
func (r Record) Validate() error {
	if !r.Operation.Valid() {
		return fmt.Errorf("%w: %w: %q", ErrValidation, ErrUnknownOperation, r.Operation)
	}
	if err := r.Sum.Validate(); err != nil {
		return err
	}
	if len(r.Description) > 255 {
		return fmt.Errorf("%w: %w", ErrValidation, ErrDescriptionLong)
	}
	if !r.IsTransfer {
		if r.LocationID == nil {
			return fmt.Errorf("%w: %w", ErrValidation, ErrMissingLocation)
		}
		if r.SphereID == nil {
			return fmt.Errorf("%w: %w", ErrValidation, ErrMissingSphere)
		}
	}
	return nil
}

// TransferSpec describes a transfer before it is split into its two
// halves. From and To name entities of Kind; Fixed names the entity of
// the other dimension carried unchanged on both halves.
type TransferSpec struct {
	Kind        TransferKind
	Sum         Money
	From        int64
	To          int64
	Fixed       int64
	OwnerID     int64
	Description string
	Date        time.Time
}

// Validate checks the transfer invariants: positive sum, known kind,
// distinct endpoints.
func (t TransferSpec) Validate() error {
	if !t.Kind.Valid() {
		return fmt.Errorf("%w: %w: %q", ErrValidation, ErrUnknownKind, t.Kind)
	}
	if err := t.Sum.Validate(); err != nil {
		return err
	}
	if t.From == t.To {
		return fmt.Errorf("%w: %w", ErrValidation, ErrSameEndpoints)
	}
	if len(t.Description) > 255 {
		return fmt.Errorf("%w: %w", ErrValidation, ErrDescriptionLong)
	}
	return nil
}

// Halves builds the two postings of the transfer: a Spend row debiting
// From and an Income row crediting To, both carrying the same positive
// sum and the fixed entity of the other dimension. The store assigns
// ids and the shared accounting id on insert.
func (t TransferSpec) Halves() (from, to Record, err error) {
	if err := t.Validate(); err != nil {
		return Record{}, Record{}, err
	}
	base := Record{
		OwnerID:     t.OwnerID,
		IsTransfer:  true,
		Sum:         t.Sum,
		Description: t.Description,
		Date:        t.Date,
	}
	from, to = base, base
	from.Operation = Spend
	to.Operation = Income
	switch t.Kind {
	case TransferLocation:
		fromLoc, toLoc, sphere := t.From, t.To, t.Fixed
		from.LocationID, from.SphereID = &fromLoc, &sphere
		to.LocationID, to.SphereID = &toLoc, &sphere
	case TransferSphere:
		fromSph, toSph, loc := t.From, t.To, t.Fixed
		from.SphereID, from.LocationID = &fromSph, &loc
		to.SphereID, to.LocationID = &toSph, &loc
	}
	return from, to, nil
}

// ValidateName checks entity naming rules shared by locations and spheres.
func ValidateName(name string) error {
	if strings.TrimSpace(name) == "" {
		return fmt.Errorf("%w: %w", ErrValidation, ErrEmptyName)
	}
	if len(name) > 100 {
		return fmt.Errorf("%w: name too long (max 100 characters)", ErrValidation)
	}
	return nil
}

// Access predicates. Ownership and the reader/editor sets are flat
// capability lists; there is no role inheritance beyond
// owner ⊃ editor ⊃ reader.

func (l Location) CanRead(userID int64) bool {
	return canRead(userID, l.OwnerID, l.ReaderIDs, l.EditorIDs)
}

func (l Location) CanWrite(userID int64) bool {
	return canWrite(userID, l.OwnerID, l.EditorIDs)
}

func (s Sphere) CanRead(userID int64) bool {
	return canRead(userID, s.OwnerID, s.ReaderIDs, s.EditorIDs)
}

func (s Sphere) CanWrite(userID int64) bool {
	return canWrite(userID, s.OwnerID, s.EditorIDs)
}

func canRead(userID, ownerID int64, readers, editors []int64) bool {
	return userID == ownerID || slices.Contains(readers, userID) || slices.Contains(editors, userID)
}

func canWrite(userID, ownerID int64, editors []int64) bool {
	return userID == ownerID || slices.Contains(editors, userID)
}
