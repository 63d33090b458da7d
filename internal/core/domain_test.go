package core

import (
	"errors"
	"testing"
	"time"
)

func ptr(v int64) *int64 { return &v }

func TestRecordValidate(t *testing.T) {
	tests := []struct {
		name    string
		record  Record
		wantErr error
	}{
		{
			name:   "valid income",
			record: Record{Operation: Income, Sum: Money{Cents: 100}, LocationID: ptr(1), SphereID: ptr(2)},
		},
		{
			name:   "valid spend",
			record: Record{Operation: Spend, Sum: Money{Cents: 100}, LocationID: ptr(1), SphereID: ptr(2)},
		},
		{
			name:    "zero sum",
			record:  Record{Operation: Income, Sum: Money{}, LocationID: ptr(1), SphereID: ptr(2)},
			wantErr: ErrInvalidAmount,
		},
		{
			name:    "missing location",
			record:  Record{Operation: Income, Sum: Money{Cents: 100}, SphereID: ptr(2)},
			wantErr: ErrMissingLocation,
		},
		{
			name:    "missing sphere",
			record:  Record{Operation: Spend, Sum: Money{Cents: 100}, LocationID: ptr(1)},
			wantErr: ErrMissingSphere,
		},
		{
			name:    "unknown operation",
			record:  Record{Operation: "Borrow", Sum: Money{Cents: 100}, LocationID: ptr(1), SphereID: ptr(2)},
			wantErr: ErrUnknownOperation,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.record.Validate()
			if tt.wantErr == nil {
				if err != nil {
					t.Fatalf("Validate: %v", err)
				}
				return
			}
			if !errors.Is(err, tt.wantErr) {
				t.Errorf("Validate = %v, want %v", err, tt.wantErr)
			}
			if !errors.Is(err, ErrValidation) {
				t.Errorf("Validate = %v, want it to wrap ErrValidation", err)
			}
		})
	}
}

func TestTransferHalvesLocationKind(t *testing.T) {
	spec := TransferSpec{
		Kind:        TransferLocation,
		Sum:         Money{Cents: 20000},
		From:        1, // cash
		To:          2, // bank
		Fixed:       7, // sphere held fixed
		OwnerID:     42,
		Description: "move to bank",
		Date:        time.Date(2025, 3, 1, 0, 0, 0, 0, time.UTC),
	}

	from, to, err := spec.Halves()
	if err != nil {
		t.Fatalf("Halves: %v", err)
	}

	if from.Operation != Spend || to.Operation != Income {
		t.Errorf("operations = %s/%s, want Spend/Income", from.Operation, to.Operation)
	}
	if !from.IsTransfer || !to.IsTransfer {
		t.Error("both halves must be marked as transfer")
	}
	if *from.LocationID != 1 || *to.LocationID != 2 {
		t.Errorf("locations = %d/%d, want 1/2", *from.LocationID, *to.LocationID)
	}
	if *from.SphereID != 7 || *to.SphereID != 7 {
		t.Errorf("fixed sphere = %d/%d, want 7/7", *from.SphereID, *to.SphereID)
	}
	if from.Sum != to.Sum || from.Sum.Cents != 20000 {
		t.Errorf("sums = %d/%d, want equal 20000", from.Sum.Cents, to.Sum.Cents)
	}
	if from.OwnerID != 42 || to.OwnerID != 42 {
		t.Errorf("owner ids = %d/%d, want 42", from.OwnerID, to.OwnerID)
	}
}

func TestTransferHalvesSphereKind(t *testing.T) {
	spec := TransferSpec{
		Kind:    TransferSphere,
		Sum:     Money{Cents: 500},
		From:    3,
		To:      4,
		Fixed:   9, // location held fixed
		OwnerID: 1,
	}

	from, to, err := spec.Halves()
	if err != nil {
		t.Fatalf("Halves: %v", err)
	}
	if *from.SphereID != 3 || *to.SphereID != 4 {
		t.Errorf("spheres = %d/%d, want 3/4", *from.SphereID, *to.SphereID)
	}
	if *from.LocationID != 9 || *to.LocationID != 9 {
		t.Errorf("fixed location = %d/%d, want 9/9", *from.LocationID, *to.LocationID)
	}
}

func TestTransferSpecRejections(t *testing.T) {
	tests := []struct {
		name    string
		spec    TransferSpec
		wantErr error
	}{
		{
			name:    "same endpoints",
			spec:    TransferSpec{Kind: TransferLocation, Sum: Money{Cents: 100}, From: 1, To: 1, Fixed: 2},
			wantErr: ErrSameEndpoints,
		},
		{
			name:    "zero sum",
			spec:    TransferSpec{Kind: TransferSphere, Sum: Money{}, From: 1, To: 2, Fixed: 3},
			wantErr: ErrInvalidAmount,
		},
		{
			name:    "unknown kind",
			spec:    TransferSpec{Kind: "both", Sum: Money{Cents: 100}, From: 1, To: 2, Fixed: 3},
			wantErr: ErrUnknownKind,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, _, err := tt.spec.Halves(); !errors.Is(err, tt.wantErr) {
				t.Errorf("Halves = %v, want %v", err, tt.wantErr)
			}
		})
	}
}

func TestAccessPredicates(t *testing.T) {
	loc := Location{ID: 1, OwnerID: 10, ReaderIDs: []int64{20}, EditorIDs: []int64{30}}

	tests := []struct {
		userID    int64
		canRead   bool
		canWrite  bool
		whoIsThis string
	}{
		{10, true, true, "owner"},
		{20, true, false, "reader"},
		{30, true, true, "editor"},
		{99, false, false, "stranger"},
	}
	for _, tt := range tests {
		if got := loc.CanRead(tt.userID); got != tt.canRead {
			t.Errorf("%s CanRead = %v, want %v", tt.whoIsThis, got, tt.canRead)
		}
		if got := loc.CanWrite(tt.userID); got != tt.canWrite {
			t.Errorf("%s CanWrite = %v, want %v", tt.whoIsThis, got, tt.canWrite)
		}
	}
}
