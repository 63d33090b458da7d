package services

import (
	"context"
	"fmt"

	"pmt/internal/core"
)

// EntityService manages locations and spheres plus their sharing
// grants. Only the owner may rename, delete or share an entity.
type EntityService struct {
	store Store
}

func NewEntityService(store Store) *EntityService {
	return &EntityService{store: store}
}

func (s *EntityService) CreateLocation(ctx context.Context, userID int64, name, description string) (core.Location, error) {
	if err := core.ValidateName(name); err != nil {
		return core.Location{}, err
	}
	return s.store.CreateLocation(ctx, name, description, userID)
}

func (s *EntityService) GetLocation(ctx context.Context, userID, id int64) (core.Location, error) {
	loc, err := s.store.GetLocation(ctx, id)
	if err != nil {
		return core.Location{}, err
	}
	if !loc.CanRead(userID) {
		return core.Location{}, fmt.Errorf("%w: location %d", core.ErrForbidden, id)
	}
	return loc, nil
}

func (s *EntityService) ListLocations(ctx context.Context, userID int64) ([]core.Location, error) {
	return s.store.ListLocations(ctx, userID)
}

func (s *EntityService) UpdateLocation(ctx context.Context, userID, id int64, name, description string) (core.Location, error) {
	if err := core.ValidateName(name); err != nil {
		return core.Location{}, err
	}
	loc, err := s.store.GetLocation(ctx, id)
	if err != nil {
		return core.Location{}, err
	}
	if loc.OwnerID != userID {
		return core.Location{}, fmt.Errorf("%w: location %d", core.ErrForbidden, id)
	}
	if err := s.store.UpdateLocation(ctx, id, name, description); err != nil {
		return core.Location{}, err
	}
	return s.store.GetLocation(ctx, id)
}

// DeleteLocation removes the pool. Records that referenced it keep
// their rows with a dangling reference.
func (s *EntityService) DeleteLocation(ctx context.Context, userID, id int64) error {
	loc, err := s.store.GetLocation(ctx, id)
	if err != nil {
		return err
	}
	if loc.OwnerID != userID {
		return fmt.Errorf("%w: location %d", core.ErrForbidden, id)
	}
	return s.store.DeleteLocation(ctx, id)
}

func (s *EntityService) ShareLocation(ctx context.Context, userID, id, granteeID int64, role string) error {
	loc, err := s.store.GetLocation(ctx, id)
	if err != nil {
		return err
	}
	if loc.OwnerID != userID {
		return fmt.Errorf("%w: location %d", core.ErrForbidden, id)
	}
	if granteeID == userID {
		return fmt.Errorf("%w: cannot share with yourself", core.ErrValidation)
	}
	if _, err := s.store.GetUser(ctx, granteeID); err != nil {
		return err
	}
	return s.store.GrantLocationAccess(ctx, id, granteeID, role)
}

func (s *EntityService) UnshareLocation(ctx context.Context, userID, id, granteeID int64) error {
	loc, err := s.store.GetLocation(ctx, id)
	if err != nil {
		return err
	}
	if loc.OwnerID != userID {
		return fmt.Errorf("%w: location %d", core.ErrForbidden, id)
	}
	return s.store.RevokeLocationAccess(ctx, id, granteeID)
}

func (s *EntityService) CreateSphere(ctx context.Context, userID int64, name, description string) (core.Sphere, error) {
	if err := core.ValidateName(name); err != nil {
		return core.Sphere{}, err
	}
	return s.store.CreateSphere(ctx, name, description, userID)
}

func (s *EntityService) GetSphere(ctx context.Context, userID, id int64) (core.Sphere, error) {
	sph, err := s.store.GetSphere(ctx, id)
	if err != nil {
		return core.Sphere{}, err
	}
	if !sph.CanRead(userID) {
		return core.Sphere{}, fmt.Errorf("%w: sphere %d", core.ErrForbidden, id)
	}
	return sph, nil
}

func (s *EntityService) ListSpheres(ctx context.Context, userID int64) ([]core.Sphere, error) {
	return s.store.ListSpheres(ctx, userID)
}

func (s *EntityService) UpdateSphere(ctx context.Context, userID, id int64, name, description string) (core.Sphere, error) {
	if err := core.ValidateName(name); err != nil {
		return core.Sphere{}, err
	}
	sph, err := s.store.GetSphere(ctx, id)
	if err != nil {
		return core.Sphere{}, err
	}
	if sph.OwnerID != userID {
		return core.Sphere{}, fmt.Errorf("%w: sphere %d", core.ErrForbidden, id)
	}
	if err := s.store.UpdateSphere(ctx, id, name, description); err != nil {
		return core.Sphere{}, err
	}
	return s.store.GetSphere(ctx, id)
}

func (s *EntityService) DeleteSphere(ctx context.Context, userID, id int64) error {
	sph, err := s.store.GetSphere(ctx, id)
	if err != nil {
		return err
	}
	if sph.OwnerID != userID {
		return fmt.Errorf("%w: sphere %d", core.ErrForbidden, id)
	}
	return s.store.DeleteSphere(ctx, id)
}

func (s *EntityService) ShareSphere(ctx context.Context, userID, id, granteeID int64, role string) error {
	sph, err := s.store.GetSphere(ctx, id)
	if err != nil {
		return err
	}
	if sph.OwnerID != userID {
		return fmt.Errorf("%w: sphere %d", core.ErrForbidden, id)
	}
	if granteeID == userID {
		return fmt.Errorf("%w: cannot share with yourself", core.ErrValidation)
	}
	if _, err := s.store.GetUser(ctx, granteeID); err != nil {
		return err
	}
	return s.store.GrantSphereAccess(ctx, id, granteeID, role)
}

func (s *EntityService) UnshareSphere(ctx context.Context, userID, id, granteeID int64) error {
	sph, err := s.store.GetSphere(ctx, id)
	if err != nil {
		return err
	}
	if sph.OwnerID != userID {
		return fmt.Errorf("%w: sphere %d", core.ErrForbidden, id)
	}
	return s.store.RevokeSphereAccess(ctx, id, granteeID)
}
