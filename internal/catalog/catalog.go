// Package catalog implements the bundle/contract CRUD service of spec §4.9
// (component C9). Uniqueness and the single-ACTIVE-contract invariant are
// enforced by the store inside a single transaction (memstore's locked
// critical section stands in for a SQL transaction); this package adds the
// refreshEntitlements side effect spec §4.9 mandates on every mutation.
package catalog

import (
	"context"

	"github.com/google/uuid"

	"github.com/fluxmeter/billing-core/internal/store"
)

// EntitlementInvalidator is the narrow command interface C9 issues after
// any contract mutation (spec §4.9: "emits a refreshEntitlements(team)
// command for the owning team").
type EntitlementInvalidator interface {
	Invalidate(teamID uuid.UUID)
}

type Service struct {
	Store       store.Store
	Entitlement EntitlementInvalidator
}

func (s *Service) CreateBundle(ctx context.Context, b store.Bundle) (store.Bundle, error) {
	return s.Store.CreateBundle(ctx, b)
}

func (s *Service) UpdateBundle(ctx context.Context, b store.Bundle) (store.Bundle, error) {
	return s.Store.UpdateBundle(ctx, b)
}

func (s *Service) GetBundle(ctx context.Context, id uuid.UUID) (store.Bundle, error) {
	return s.Store.GetBundle(ctx, id)
}

// CreateContract enforces the at-most-one-ACTIVE-per-billToId invariant via
// the store and refreshes entitlements for the owning team. billToId maps
// to a team through BillingEntity; the caller (HTTP handler) resolves and
// passes the owning teamID so this package stays store-shape agnostic.
func (s *Service) CreateContract(ctx context.Context, c store.Contract, ownerTeamID uuid.UUID) (store.Contract, error) {
	created, err := s.Store.CreateContract(ctx, c)
	if err != nil {
		return store.Contract{}, err
	}
	s.Entitlement.Invalidate(ownerTeamID)
	return created, nil
}

func (s *Service) UpdateContract(ctx context.Context, c store.Contract, ownerTeamID uuid.UUID) (store.Contract, error) {
	updated, err := s.Store.UpdateContract(ctx, c)
	if err != nil {
		return store.Contract{}, err
	}
	s.Entitlement.Invalidate(ownerTeamID)
	return updated, nil
}

// ReplaceOverrides implements spec §4.9's delete-then-insert contract.
func (s *Service) ReplaceOverrides(ctx context.Context, contractID uuid.UUID, overrides []store.ContractOverride, ownerTeamID uuid.UUID) error {
	if err := s.Store.ReplaceContractOverrides(ctx, contractID, overrides); err != nil {
		return err
	}
	s.Entitlement.Invalidate(ownerTeamID)
	return nil
}

func (s *Service) GetContract(ctx context.Context, id uuid.UUID) (store.Contract, error) {
	return s.Store.GetContract(ctx, id)
}
