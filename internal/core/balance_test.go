package core

import (
	"testing"
	"time"
)

// Scenario helpers: entity ids used across the balance tests.
const (
	cashID = int64(1)
	bankID = int64(2)
	foodID = int64(10)
	rentID = int64(11)
)

func income(cents int64, loc, sph int64) Record {
	return Record{Operation: Income, Sum: Money{Cents: cents}, LocationID: &loc, SphereID: &sph, Date: time.Now()}
}

func spend(cents int64, loc, sph int64) Record {
	return Record{Operation: Spend, Sum: Money{Cents: cents}, LocationID: &loc, SphereID: &sph, Date: time.Now()}
}

func transferPair(t *testing.T, spec TransferSpec) []Record {
	t.Helper()
	from, to, err := spec.Halves()
	if err != nil {
		t.Fatalf("Halves: %v", err)
	}
	return []Record{from, to}
}

func TestBalancesIncomeAndSpend(t *testing.T) {
	// Income 1000 into Cash/Food, Spend 300 from Cash/Food.
	records := []Record{
		income(100000, cashID, foodID),
		spend(30000, cashID, foodID),
	}

	if got := LocationBalance(records, cashID); got.Cents != 70000 {
		t.Errorf("balance(Cash) = %d, want 70000", got.Cents)
	}
	if got := SphereBalance(records, foodID); got.Cents != 70000 {
		t.Errorf("balance(Food) = %d, want 70000", got.Cents)
	}
	if got := TotalBalance(records); got.Cents != 70000 {
		t.Errorf("total = %d, want 70000", got.Cents)
	}
	// No other entity moved.
	if got := LocationBalance(records, bankID); got.Cents != 0 {
		t.Errorf("balance(Bank) = %d, want 0", got.Cents)
	}
	if got := SphereBalance(records, rentID); got.Cents != 0 {
		t.Errorf("balance(Rent) = %d, want 0", got.Cents)
	}
}

func TestLocationTransferRedistributes(t *testing.T) {
	records := []Record{
		income(100000, cashID, foodID),
		spend(30000, cashID, foodID),
	}
	records = append(records, transferPair(t, TransferSpec{
		Kind: TransferLocation, Sum: Money{Cents: 20000}, From: cashID, To: bankID, Fixed: foodID,
	})...)

	if got := LocationBalance(records, cashID); got.Cents != 50000 {
		t.Errorf("balance(Cash) = %d, want 50000", got.Cents)
	}
	if got := LocationBalance(records, bankID); got.Cents != 20000 {
		t.Errorf("balance(Bank) = %d, want 20000", got.Cents)
	}
	// The fixed sphere sees one debit and one credit of equal size.
	if got := SphereBalance(records, foodID); got.Cents != 70000 {
		t.Errorf("balance(Food) = %d, want unchanged 70000", got.Cents)
	}
	if got := TotalBalance(records); got.Cents != 70000 {
		t.Errorf("total = %d, want unchanged 70000", got.Cents)
	}
}

func TestSphereTransferRedistributes(t *testing.T) {
	records := []Record{income(50000, cashID, foodID)}
	records = append(records, transferPair(t, TransferSpec{
		Kind: TransferSphere, Sum: Money{Cents: 10000}, From: foodID, To: rentID, Fixed: cashID,
	})...)

	if got := SphereBalance(records, foodID); got.Cents != 40000 {
		t.Errorf("balance(Food) = %d, want 40000", got.Cents)
	}
	if got := SphereBalance(records, rentID); got.Cents != 10000 {
		t.Errorf("balance(Rent) = %d, want 10000", got.Cents)
	}
	if got := LocationBalance(records, cashID); got.Cents != 50000 {
		t.Errorf("balance(Cash) = %d, want unchanged 50000", got.Cents)
	}
}

func TestTransferZeroSumProperty(t *testing.T) {
	// For any transfer, the deltas across the two endpoints sum to zero
	// and the total is untouched.
	specs := []TransferSpec{
		{Kind: TransferLocation, Sum: Money{Cents: 1}, From: cashID, To: bankID, Fixed: foodID},
		{Kind: TransferLocation, Sum: Money{Cents: 999999}, From: bankID, To: cashID, Fixed: rentID},
		{Kind: TransferSphere, Sum: Money{Cents: 12345}, From: foodID, To: rentID, Fixed: cashID},
	}
	for _, spec := range specs {
		pair := transferPair(t, spec)
		if got := TotalBalance(pair); got.Cents != 0 {
			t.Errorf("transfer %+v total = %d, want 0", spec, got.Cents)
		}
		set := Balances(pair)
		var moved map[int64]int64
		if spec.Kind == TransferLocation {
			moved = set.Locations
		} else {
			moved = set.Spheres
		}
		if moved[spec.From]+moved[spec.To] != 0 {
			t.Errorf("transfer %+v deltas %d+%d != 0", spec, moved[spec.From], moved[spec.To])
		}
		if moved[spec.From] != -spec.Sum.Cents {
			t.Errorf("transfer %+v source delta = %d, want %d", spec, moved[spec.From], -spec.Sum.Cents)
		}
	}
}

func TestBalancesSinglePassMatchesPerEntityFolds(t *testing.T) {
	records := []Record{
		income(100000, cashID, foodID),
		spend(30000, cashID, foodID),
		income(5000, bankID, rentID),
	}
	records = append(records, transferPair(t, TransferSpec{
		Kind: TransferLocation, Sum: Money{Cents: 20000}, From: cashID, To: bankID, Fixed: foodID,
	})...)

	set := Balances(records)
	for _, id := range []int64{cashID, bankID} {
		if set.Locations[id] != LocationBalance(records, id).Cents {
			t.Errorf("location %d: single-pass %d != fold %d", id, set.Locations[id], LocationBalance(records, id).Cents)
		}
	}
	for _, id := range []int64{foodID, rentID} {
		if set.Spheres[id] != SphereBalance(records, id).Cents {
			t.Errorf("sphere %d: single-pass %d != fold %d", id, set.Spheres[id], SphereBalance(records, id).Cents)
		}
	}
	if set.Total != TotalBalance(records).Cents {
		t.Errorf("total: single-pass %d != fold %d", set.Total, TotalBalance(records).Cents)
	}
}

func TestBalanceIsIdempotent(t *testing.T) {
	records := []Record{income(100, cashID, foodID), spend(40, cashID, foodID)}
	first := LocationBalance(records, cashID)
	second := LocationBalance(records, cashID)
	if first != second {
		t.Errorf("repeated folds differ: %v vs %v", first, second)
	}
}
