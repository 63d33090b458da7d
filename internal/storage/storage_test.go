package storage

import (
	"context"
	"errors"
	"testing"
	"time"

	"pmt/internal/core"
)

func seedUser(t *testing.T, repo *SQLiteRepository, email string) core.User {
	t.Helper()
	u, err := repo.CreateUser(context.Background(), email, "bcrypt-hash")
	if err != nil {
		t.Fatalf("seed user %s: %v", email, err)
	}
	return u
}

type fixture struct {
	repo  *SQLiteRepository
	owner core.User
	cash  core.Location
	bank  core.Location
	food  core.Sphere
	rent  core.Sphere
}

func newFixture(t *testing.T) fixture {
	t.Helper()
	ctx := context.Background()
	repo := NewTestRepository(t)
	owner := seedUser(t, repo, "owner@example.com")

	cash, err := repo.CreateLocation(ctx, "Cash", "", owner.ID)
	if err != nil {
		t.Fatalf("create location: %v", err)
	}
	bank, err := repo.CreateLocation(ctx, "Bank", "", owner.ID)
	if err != nil {
		t.Fatalf("create location: %v", err)
	}
	food, err := repo.CreateSphere(ctx, "Food", "", owner.ID)
	if err != nil {
		t.Fatalf("create sphere: %v", err)
	}
	rent, err := repo.CreateSphere(ctx, "Rent", "", owner.ID)
	if err != nil {
		t.Fatalf("create sphere: %v", err)
	}
	return fixture{repo: repo, owner: owner, cash: cash, bank: bank, food: food, rent: rent}
}

func (f fixture) insert(t *testing.T, op core.OperationType, cents int64, loc, sph int64) core.Record {
	t.Helper()
	rec, err := f.repo.InsertRecord(context.Background(), core.Record{
		OwnerID:    f.owner.ID,
		Operation:  op,
		Sum:        core.Money{Cents: cents},
		LocationID: &loc,
		SphereID:   &sph,
	})
	if err != nil {
		t.Fatalf("insert record: %v", err)
	}
	return rec
}

func TestCreateUserDuplicateEmail(t *testing.T) {
	repo := NewTestRepository(t)
	seedUser(t, repo, "dup@example.com")

	_, err := repo.CreateUser(context.Background(), "dup@example.com", "other-hash")
	if !errors.Is(err, core.ErrConflict) {
		t.Errorf("duplicate email = %v, want ErrConflict", err)
	}
}

func TestInsertRecordAssignsAccountingIDAndVersion(t *testing.T) {
	f := newFixture(t)

	first := f.insert(t, core.Income, 100000, f.cash.ID, f.food.ID)
	second := f.insert(t, core.Spend, 30000, f.cash.ID, f.food.ID)

	if first.AccountingID == 0 || second.AccountingID == 0 {
		t.Fatal("accounting ids must be assigned")
	}
	if first.AccountingID == second.AccountingID {
		t.Errorf("independent records share accounting id %d", first.AccountingID)
	}
	if first.Version != 1 {
		t.Errorf("fresh record version = %d, want 1", first.Version)
	}

	got, err := f.repo.GetRecord(context.Background(), first.ID)
	if err != nil {
		t.Fatalf("get record: %v", err)
	}
	if got.Operation != core.Income || got.Sum.Cents != 100000 {
		t.Errorf("round trip = %s/%d, want Income/100000", got.Operation, got.Sum.Cents)
	}
	if got.LocationID == nil || *got.LocationID != f.cash.ID {
		t.Errorf("round trip location = %v, want %d", got.LocationID, f.cash.ID)
	}
}

func TestInsertPairSharesAccountingID(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	spec := core.TransferSpec{
		Kind: core.TransferLocation, Sum: core.Money{Cents: 20000},
		From: f.cash.ID, To: f.bank.ID, Fixed: f.food.ID, OwnerID: f.owner.ID,
	}
	fromHalf, toHalf, err := spec.Halves()
	if err != nil {
		t.Fatalf("halves: %v", err)
	}
	from, to, err := f.repo.InsertPair(ctx, fromHalf, toHalf)
	if err != nil {
		t.Fatalf("insert pair: %v", err)
	}

	if from.AccountingID != to.AccountingID {
		t.Errorf("pair accounting ids differ: %d vs %d", from.AccountingID, to.AccountingID)
	}
	group, err := f.repo.GroupRecords(ctx, from.AccountingID)
	if err != nil {
		t.Fatalf("group records: %v", err)
	}
	if len(group) != 2 {
		t.Fatalf("group size = %d, want 2", len(group))
	}
	for _, rec := range group {
		if !rec.IsTransfer {
			t.Errorf("record %d not marked as transfer", rec.ID)
		}
		if rec.Sum.Cents != 20000 {
			t.Errorf("record %d sum = %d, want 20000", rec.ID, rec.Sum.Cents)
		}
	}
}

func TestDeleteGroupRevertsBalances(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	f.insert(t, core.Income, 100000, f.cash.ID, f.food.ID)
	spec := core.TransferSpec{
		Kind: core.TransferLocation, Sum: core.Money{Cents: 20000},
		From: f.cash.ID, To: f.bank.ID, Fixed: f.food.ID, OwnerID: f.owner.ID,
	}
	fromHalf, toHalf, _ := spec.Halves()
	from, _, err := f.repo.InsertPair(ctx, fromHalf, toHalf)
	if err != nil {
		t.Fatalf("insert pair: %v", err)
	}

	records, err := f.repo.OwnerRecords(ctx, f.owner.ID)
	if err != nil {
		t.Fatalf("owner records: %v", err)
	}
	if got := core.LocationBalance(records, f.bank.ID); got.Cents != 20000 {
		t.Fatalf("balance(Bank) after transfer = %d, want 20000", got.Cents)
	}

	n, err := f.repo.DeleteGroup(ctx, from.AccountingID)
	if err != nil {
		t.Fatalf("delete group: %v", err)
	}
	if n != 2 {
		t.Errorf("deleted rows = %d, want 2", n)
	}

	records, err = f.repo.OwnerRecords(ctx, f.owner.ID)
	if err != nil {
		t.Fatalf("owner records: %v", err)
	}
	if got := core.LocationBalance(records, f.cash.ID); got.Cents != 100000 {
		t.Errorf("balance(Cash) after revert = %d, want 100000", got.Cents)
	}
	if got := core.LocationBalance(records, f.bank.ID); got.Cents != 0 {
		t.Errorf("balance(Bank) after revert = %d, want 0", got.Cents)
	}
}

func TestReplaceGroupSwapsPairAtomically(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	spec := core.TransferSpec{
		Kind: core.TransferLocation, Sum: core.Money{Cents: 20000},
		From: f.cash.ID, To: f.bank.ID, Fixed: f.food.ID, OwnerID: f.owner.ID,
	}
	fromHalf, toHalf, _ := spec.Halves()
	from, _, err := f.repo.InsertPair(ctx, fromHalf, toHalf)
	if err != nil {
		t.Fatalf("insert pair: %v", err)
	}

	// A replacement pair that cannot be stored (zero sum violates the
	// schema) must roll back and leave the original group untouched.
	badFrom, badTo := fromHalf, toHalf
	badFrom.Sum = core.Money{Cents: 0}
	badTo.Sum = core.Money{Cents: 0}
	if _, _, err := f.repo.ReplaceGroup(ctx, from.AccountingID, badFrom, badTo); err == nil {
		t.Fatal("replace with invalid pair must fail")
	}
	group, err := f.repo.GroupRecords(ctx, from.AccountingID)
	if err != nil {
		t.Fatalf("group records: %v", err)
	}
	if len(group) != 2 {
		t.Fatalf("group size after failed replace = %d, want original 2", len(group))
	}
	for _, rec := range group {
		if rec.Sum.Cents != 20000 {
			t.Errorf("record %d sum after failed replace = %d, want 20000", rec.ID, rec.Sum.Cents)
		}
	}

	// A valid replacement removes the old group and lands under a fresh
	// accounting id.
	newSpec := core.TransferSpec{
		Kind: core.TransferSphere, Sum: core.Money{Cents: 7500},
		From: f.food.ID, To: f.rent.ID, Fixed: f.cash.ID, OwnerID: f.owner.ID,
	}
	newFrom, newTo, _ := newSpec.Halves()
	replacedFrom, replacedTo, err := f.repo.ReplaceGroup(ctx, from.AccountingID, newFrom, newTo)
	if err != nil {
		t.Fatalf("replace group: %v", err)
	}
	if replacedFrom.AccountingID <= from.AccountingID {
		t.Errorf("replacement accounting id = %d, want greater than %d", replacedFrom.AccountingID, from.AccountingID)
	}
	if replacedFrom.AccountingID != replacedTo.AccountingID {
		t.Errorf("replacement halves split across accounting ids %d and %d", replacedFrom.AccountingID, replacedTo.AccountingID)
	}
	old, err := f.repo.GroupRecords(ctx, from.AccountingID)
	if err != nil {
		t.Fatalf("group records: %v", err)
	}
	if len(old) != 0 {
		t.Errorf("old group still holds %d rows, want 0", len(old))
	}
}

func TestReplaceGroupMissing(t *testing.T) {
	f := newFixture(t)
	spec := core.TransferSpec{
		Kind: core.TransferLocation, Sum: core.Money{Cents: 100},
		From: f.cash.ID, To: f.bank.ID, Fixed: f.food.ID, OwnerID: f.owner.ID,
	}
	fromHalf, toHalf, _ := spec.Halves()
	if _, _, err := f.repo.ReplaceGroup(context.Background(), 424242, fromHalf, toHalf); !errors.Is(err, core.ErrNotFound) {
		t.Errorf("replace missing group = %v, want ErrNotFound", err)
	}
}

func TestAccountingIDNotReusedAfterDelete(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	first := f.insert(t, core.Income, 1000, f.cash.ID, f.food.ID)
	if _, err := f.repo.DeleteGroup(ctx, first.AccountingID); err != nil {
		t.Fatalf("delete group: %v", err)
	}

	// The deleted group held the maximum accounting id; the next create
	// must still move past it.
	second := f.insert(t, core.Income, 2000, f.cash.ID, f.food.ID)
	if second.AccountingID <= first.AccountingID {
		t.Errorf("accounting id after delete = %d, want greater than %d", second.AccountingID, first.AccountingID)
	}
}

func TestDeleteGroupMissing(t *testing.T) {
	f := newFixture(t)
	if _, err := f.repo.DeleteGroup(context.Background(), 424242); !errors.Is(err, core.ErrNotFound) {
		t.Errorf("delete missing group = %v, want ErrNotFound", err)
	}
}

func TestUpdateRecordVersionConflict(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	rec := f.insert(t, core.Spend, 5000, f.cash.ID, f.food.ID)

	rec.Sum = core.Money{Cents: 6000}
	updated, err := f.repo.UpdateRecord(ctx, rec)
	if err != nil {
		t.Fatalf("first update: %v", err)
	}
	if updated.Version != rec.Version+1 {
		t.Errorf("version after update = %d, want %d", updated.Version, rec.Version+1)
	}

	// A second writer still holding the old version loses.
	rec.Sum = core.Money{Cents: 7000}
	if _, err := f.repo.UpdateRecord(ctx, rec); !errors.Is(err, core.ErrConflict) {
		t.Errorf("stale update = %v, want ErrConflict", err)
	}
}

func TestUpdateRecordAfterDelete(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	rec := f.insert(t, core.Spend, 5000, f.cash.ID, f.food.ID)
	if _, err := f.repo.DeleteGroup(ctx, rec.AccountingID); err != nil {
		t.Fatalf("delete group: %v", err)
	}
	if _, err := f.repo.UpdateRecord(ctx, rec); !errors.Is(err, core.ErrNotFound) {
		t.Errorf("update after delete = %v, want ErrNotFound", err)
	}
}

func TestListRecordsPagination(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	base := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)
	loc, sph := f.cash.ID, f.food.ID
	for i := 0; i < 5; i++ {
		_, err := f.repo.InsertRecord(ctx, core.Record{
			OwnerID:    f.owner.ID,
			Operation:  core.Income,
			Sum:        core.Money{Cents: int64(100 * (i + 1))},
			LocationID: &loc,
			SphereID:   &sph,
			Date:       base.AddDate(0, 0, i),
		})
		if err != nil {
			t.Fatalf("insert record %d: %v", i, err)
		}
	}

	page, total, err := f.repo.ListRecords(ctx, f.owner.ID, 2, 0)
	if err != nil {
		t.Fatalf("list records: %v", err)
	}
	if total != 5 {
		t.Errorf("total = %d, want 5", total)
	}
	if len(page) != 2 {
		t.Fatalf("page size = %d, want 2", len(page))
	}
	// Newest first.
	if page[0].Sum.Cents != 500 || page[1].Sum.Cents != 400 {
		t.Errorf("page = %d,%d, want 500,400", page[0].Sum.Cents, page[1].Sum.Cents)
	}

	last, _, err := f.repo.ListRecords(ctx, f.owner.ID, 2, 4)
	if err != nil {
		t.Fatalf("list last page: %v", err)
	}
	if len(last) != 1 || last[0].Sum.Cents != 100 {
		t.Errorf("last page = %+v, want single 100", last)
	}
}

func TestDeleteLocationNullsRecordReference(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	rec := f.insert(t, core.Income, 1000, f.cash.ID, f.food.ID)
	if err := f.repo.DeleteLocation(ctx, f.cash.ID); err != nil {
		t.Fatalf("delete location: %v", err)
	}

	got, err := f.repo.GetRecord(ctx, rec.ID)
	if err != nil {
		t.Fatalf("get record: %v", err)
	}
	if got.LocationID != nil {
		t.Errorf("location ref = %v, want nil after entity delete", *got.LocationID)
	}
	if got.SphereID == nil || *got.SphereID != f.food.ID {
		t.Errorf("sphere ref = %v, want untouched %d", got.SphereID, f.food.ID)
	}
}

func TestEntityVisibilityThroughGrants(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	reader := seedUser(t, f.repo, "reader@example.com")

	if err := f.repo.GrantLocationAccess(ctx, f.cash.ID, reader.ID, RoleReader); err != nil {
		t.Fatalf("grant access: %v", err)
	}

	visible, err := f.repo.ListLocations(ctx, reader.ID)
	if err != nil {
		t.Fatalf("list locations: %v", err)
	}
	if len(visible) != 1 || visible[0].ID != f.cash.ID {
		t.Fatalf("visible = %+v, want only Cash", visible)
	}
	if !visible[0].CanRead(reader.ID) || visible[0].CanWrite(reader.ID) {
		t.Error("reader grant must allow read and deny write")
	}

	// Upgrading to editor replaces the role.
	if err := f.repo.GrantLocationAccess(ctx, f.cash.ID, reader.ID, RoleEditor); err != nil {
		t.Fatalf("upgrade access: %v", err)
	}
	loc, err := f.repo.GetLocation(ctx, f.cash.ID)
	if err != nil {
		t.Fatalf("get location: %v", err)
	}
	if !loc.CanWrite(reader.ID) {
		t.Error("editor grant must allow write")
	}

	if err := f.repo.RevokeLocationAccess(ctx, f.cash.ID, reader.ID); err != nil {
		t.Fatalf("revoke access: %v", err)
	}
	visible, err = f.repo.ListLocations(ctx, reader.ID)
	if err != nil {
		t.Fatalf("list locations: %v", err)
	}
	if len(visible) != 0 {
		t.Errorf("visible after revoke = %+v, want none", visible)
	}
}

func TestArchiveQueue(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	first := f.insert(t, core.Income, 1000, f.cash.ID, f.food.ID)
	second := f.insert(t, core.Spend, 500, f.cash.ID, f.food.ID)

	pending, err := f.repo.ListUnarchived(ctx, 10)
	if err != nil {
		t.Fatalf("list unarchived: %v", err)
	}
	if len(pending) != 2 {
		t.Fatalf("pending = %d, want 2", len(pending))
	}

	if err := f.repo.MarkArchived(ctx, first.ID); err != nil {
		t.Fatalf("mark archived: %v", err)
	}
	if err := f.repo.MarkArchiveError(ctx, second.ID); err != nil {
		t.Fatalf("mark archive error: %v", err)
	}

	pending, err = f.repo.ListUnarchived(ctx, 10)
	if err != nil {
		t.Fatalf("list unarchived: %v", err)
	}
	if len(pending) != 0 {
		t.Errorf("pending after marks = %d, want 0", len(pending))
	}
}
