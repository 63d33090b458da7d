package services

import (
	"context"
	"fmt"
	"strconv"

	"pmt/internal/core"
)

// EntityBalance pairs an entity with its folded balance.
type EntityBalance struct {
	ID      int64
	Name    string
	Balance core.Money
}

// Dashboard is the per-user overview: every visible location and sphere
// with its balance, plus the grand total of the user's own records.
type Dashboard struct {
	Locations []EntityBalance
	Spheres   []EntityBalance
	Total     core.Money
}

// Dashboard folds balances for everything the user can see. Results are
// cached briefly; any ledger write by the user invalidates the entry.
func (s *RecordService) Dashboard(ctx context.Context, userID int64) (Dashboard, error) {
	key := strconv.FormatInt(userID, 10)
	if d, ok := s.dashboards.Get(key); ok {
		return d, nil
	}

	locations, err := s.store.ListLocations(ctx, userID)
	if err != nil {
		return Dashboard{}, err
	}
	spheres, err := s.store.ListSpheres(ctx, userID)
	if err != nil {
		return Dashboard{}, err
	}

	locationIDs := make([]int64, len(locations))
	for i, loc := range locations {
		locationIDs[i] = loc.ID
	}
	sphereIDs := make([]int64, len(spheres))
	for i, sph := range spheres {
		sphereIDs[i] = sph.ID
	}

	// One query for every record touching a visible entity, one fold
	// over it. No per-entity queries.
	records, err := s.store.EntityRecords(ctx, locationIDs, sphereIDs)
	if err != nil {
		return Dashboard{}, err
	}
	set := core.Balances(records)

	d := Dashboard{
		Locations: make([]EntityBalance, 0, len(locations)),
		Spheres:   make([]EntityBalance, 0, len(spheres)),
	}
	for _, loc := range locations {
		d.Locations = append(d.Locations, EntityBalance{
			ID: loc.ID, Name: loc.Name, Balance: core.Money{Cents: set.Locations[loc.ID]},
		})
	}
	for _, sph := range spheres {
		d.Spheres = append(d.Spheres, EntityBalance{
			ID: sph.ID, Name: sph.Name, Balance: core.Money{Cents: set.Spheres[sph.ID]},
		})
	}

	own, err := s.store.OwnerRecords(ctx, userID)
	if err != nil {
		return Dashboard{}, err
	}
	d.Total = core.TotalBalance(own)

	s.dashboards.Set(key, d)
	return d, nil
}

// LocationBalance folds every record referencing the location, across
// owners, after a read-access check.
func (s *RecordService) LocationBalance(ctx context.Context, userID, id int64) (core.Money, error) {
	loc, err := s.store.GetLocation(ctx, id)
	if err != nil {
		return core.Money{}, err
	}
	if !loc.CanRead(userID) {
		return core.Money{}, fmt.Errorf("%w: location %d", core.ErrForbidden, id)
	}
	records, err := s.store.LocationRecords(ctx, id)
	if err != nil {
		return core.Money{}, err
	}
	return core.LocationBalance(records, id), nil
}

func (s *RecordService) SphereBalance(ctx context.Context, userID, id int64) (core.Money, error) {
	sph, err := s.store.GetSphere(ctx, id)
	if err != nil {
		return core.Money{}, err
	}
	if !sph.CanRead(userID) {
		return core.Money{}, fmt.Errorf("%w: sphere %d", core.ErrForbidden, id)
	}
	records, err := s.store.SphereRecords(ctx, id)
	if err != nil {
		return core.Money{}, err
	}
	return core.SphereBalance(records, id), nil
}
