package memstore

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/fluxmeter/billing-core/internal/store"
)

func externalRefKey(appID uuid.UUID, externalTeamID string) string {
	return fmt.Sprintf("%s|%s", appID, externalTeamID)
}

func memberKey(teamID uuid.UUID, userID string) string {
	return fmt.Sprintf("%s|%s", teamID, userID)
}

// GetOrCreateTeamByExternalRef provides idempotent team creation keyed by
// the external identifier (spec §3 ExternalTeamRef). Returns created=true
// only the first time a given (appId, externalTeamId) pair is seen.
func (m *MemStore) GetOrCreateTeamByExternalRef(ctx context.Context, appID uuid.UUID, externalTeamID string, defaults store.Team) (store.Team, bool, error) {
	var out store.Team
	var created bool
	m.withLock(func() {
		key := externalRefKey(appID, externalTeamID)
		if teamID, ok := m.data.externalRefs[key]; ok {
			out = m.data.teams[teamID]
			return
		}

		team := defaults
		if team.ID == uuid.Nil {
			team.ID = uuid.New()
		}
		team.AppID = appID
		m.data.teams[team.ID] = team
		m.data.externalRefs[key] = team.ID

		entity := store.BillingEntity{ID: uuid.New(), Type: "TEAM", TeamID: team.ID}
		m.data.billingEntities[team.ID] = entity

		out = team
		created = true
	})
	return out, created, nil
}

func (m *MemStore) GetTeam(ctx context.Context, appID, teamID uuid.UUID) (store.Team, error) {
	var out store.Team
	var err error
	m.withLock(func() {
		t, ok := m.data.teams[teamID]
		if !ok || t.AppID != appID {
			err = store.ErrNotFound
			return
		}
		out = t
	})
	return out, err
}

// UpdateTeamStripeCustomerID implements the optimistic single-row update
// pattern from spec §4.11 / §5.3: the write only takes effect if no
// customer id is set yet; the loser gets back the winner's id.
func (m *MemStore) UpdateTeamStripeCustomerID(ctx context.Context, teamID uuid.UUID, stripeCustomerID string) (bool, string, error) {
	var updated bool
	var current string
	var err error
	m.withLock(func() {
		t, ok := m.data.teams[teamID]
		if !ok {
			err = store.ErrNotFound
			return
		}
		if t.StripeCustomerID != nil && *t.StripeCustomerID != "" {
			current = *t.StripeCustomerID
			return
		}
		t.StripeCustomerID = &stripeCustomerID
		m.data.teams[teamID] = t
		updated = true
		current = stripeCustomerID
	})
	return updated, current, err
}

func (m *MemStore) GetBillingEntityForTeam(ctx context.Context, teamID uuid.UUID) (store.BillingEntity, error) {
	var out store.BillingEntity
	var err error
	m.withLock(func() {
		e, ok := m.data.billingEntities[teamID]
		if !ok {
			err = store.ErrNotFound
			return
		}
		out = e
	})
	return out, err
}

func (m *MemStore) UpsertTeamMember(ctx context.Context, mem store.TeamMember) (store.TeamMember, error) {
	var out store.TeamMember
	m.withLock(func() {
		key := memberKey(mem.TeamID, mem.UserID)
		m.data.members[key] = mem
		out = mem
	})
	return out, nil
}

// RemoveTeamMember is a soft delete (status=REMOVED, endedAt set) and is
// idempotent: removing an already-removed member returns the unchanged row
// (spec §8 round-trip property).
func (m *MemStore) RemoveTeamMember(ctx context.Context, teamID uuid.UUID, userID string) (store.TeamMember, error) {
	var out store.TeamMember
	var err error
	m.withLock(func() {
		key := memberKey(teamID, userID)
		mem, ok := m.data.members[key]
		if !ok {
			err = store.ErrNotFound
			return
		}
		if mem.Status == store.MemberStatusRemoved {
			out = mem
			return
		}
		now := time.Now().UTC()
		mem.Status = store.MemberStatusRemoved
		mem.EndedAt = &now
		m.data.members[key] = mem
		out = mem
	})
	return out, err
}
