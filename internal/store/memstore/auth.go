package memstore

import (
	"context"

	"github.com/google/uuid"

	"github.com/fluxmeter/billing-core/internal/store"
)

func (m *MemStore) CreateApp(ctx context.Context, app store.App) (store.App, error) {
	var out store.App
	m.withLock(func() {
		if app.ID == uuid.Nil {
			app.ID = uuid.New()
		}
		m.data.apps[app.ID] = app
		out = app
	})
	return out, nil
}

func (m *MemStore) GetApp(ctx context.Context, id uuid.UUID) (store.App, error) {
	var out store.App
	var err error
	m.withLock(func() {
		a, ok := m.data.apps[id]
		if !ok {
			err = store.ErrNotFound
			return
		}
		out = a
	})
	return out, err
}

func (m *MemStore) CreateAppSecret(ctx context.Context, secret store.AppSecret) (store.AppSecret, error) {
	var out store.AppSecret
	var err error
	m.withLock(func() {
		if _, exists := m.data.secrets[secret.Kid]; exists {
			err = store.ErrConflict
			return
		}
		m.data.secrets[secret.Kid] = secret
		out = secret
	})
	return out, err
}

func (m *MemStore) GetAppSecretByKid(ctx context.Context, kid string) (store.AppSecret, error) {
	var out store.AppSecret
	var err error
	m.withLock(func() {
		s, ok := m.data.secrets[kid]
		if !ok {
			err = store.ErrNotFound
			return
		}
		out = s
	})
	return out, err
}

func (m *MemStore) RevokeAppSecret(ctx context.Context, appID uuid.UUID, kid string) error {
	var err error
	m.withLock(func() {
		s, ok := m.data.secrets[kid]
		if !ok || s.AppID != appID {
			err = store.ErrNotFound
			return
		}
		if s.Status == store.SecretStatusRevoked {
			return // idempotent: already revoked
		}
		s.Status = store.SecretStatusRevoked
		m.data.secrets[kid] = s
	})
	return err
}

func (m *MemStore) InsertJti(ctx context.Context, rec store.JtiRecord) error {
	var err error
	m.withLock(func() {
		if _, exists := m.data.jtis[rec.Jti]; exists {
			err = store.ErrReplayed
			return
		}
		m.data.jtis[rec.Jti] = rec
	})
	return err
}
