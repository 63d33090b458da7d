package core

// The balance engine. Balances are never stored; every query folds the
// record history with the sign rule below. Income credits, Spend debits,
// and a transfer's two halves net to zero for the moved dimension while
// the fixed entity's debit and credit cancel.

// signedCents is the contribution of one record toward any entity it
// references.
func signedCents(r Record) int64 {
	if r.Operation == Spend {
		return -r.Sum.Cents
	}
	return r.Sum.Cents
}

// LocationBalance folds the records referencing the given location.
func LocationBalance(records []Record, locationID int64) Money {
	var cents int64
	for _, r := range records {
		if r.LocationID != nil && *r.LocationID == locationID {
			cents += signedCents(r)
		}
	}
	return Money{Cents: cents}
}

// SphereBalance folds the records referencing the given sphere.
func SphereBalance(records []Record, sphereID int64) Money {
	var cents int64
	for _, r := range records {
		if r.SphereID != nil && *r.SphereID == sphereID {
			cents += signedCents(r)
		}
	}
	return Money{Cents: cents}
}

// TotalBalance folds operation type only, ignoring the entity partition.
// Transfers contribute one Spend and one Income of equal magnitude and
// therefore never move the total.
func TotalBalance(records []Record) Money {
	var cents int64
	for _, r := range records {
		cents += signedCents(r)
	}
	return Money{Cents: cents}
}

// BalanceSet holds per-entity balances computed in a single traversal.
type BalanceSet struct {
	Locations map[int64]int64
	Spheres   map[int64]int64
	Total     int64
}

// Balances groups signed contributions by location and sphere id in one
// pass over the record set. Used by the dashboard to avoid one fold per
// entity.
func Balances(records []Record) BalanceSet {
	set := BalanceSet{
		Locations: make(map[int64]int64),
		Spheres:   make(map[int64]int64),
	}
	for _, r := range records {
		delta := signedCents(r)
		set.Total += delta
		if r.LocationID != nil {
			set.Locations[*r.LocationID] += delta
		}
		if r.SphereID != nil {
			set.Spheres[*r.SphereID] += delta
		}
	}
	return set
}
