package tokenengine

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fluxmeter/billing-core/internal/store"
	"github.com/fluxmeter/billing-core/internal/store/memstore"
	"github.com/fluxmeter/billing-core/internal/vault"
)

const testVaultKeyHex = "0001020304050607000102030405060700010203040506070001020304050607"

func newFixture(t *testing.T) (*Engine, store.App, string, []byte) {
	t.Helper()
	v, err := vault.NewFromHex(testVaultKeyHex)
	require.NoError(t, err)

	st := memstore.New()
	app, err := st.CreateApp(context.Background(), store.App{Status: store.AppStatusActive})
	require.NoError(t, err)

	secret := []byte("super-secret-hmac-key-0123456789")
	encrypted, err := v.Encrypt(string(secret))
	require.NoError(t, err)

	kid := uuid.NewString()
	_, err = st.CreateAppSecret(context.Background(), store.AppSecret{
		AppID: app.ID, Kid: kid, EncryptedSecret: encrypted, Status: store.SecretStatusActive,
	})
	require.NoError(t, err)

	engine := &Engine{Secrets: st, Replay: st, Vault: v}
	return engine, app, kid, secret
}

func mint(t *testing.T, app store.App, kid string, secret []byte, ttl time.Duration) string {
	t.Helper()
	tok, err := Mint(MintParams{
		AppID:   app.ID,
		Subject: "svc-account",
		Scopes:  []string{"usage:write"},
		TTL:     ttl,
		Kid:     kid,
		Secret:  secret,
	})
	require.NoError(t, err)
	return tok
}

func TestVerifySucceedsAndBindsClaims(t *testing.T) {
	engine, app, kid, secret := newFixture(t)
	teamID := uuid.New()
	userID := "user-1"

	tok, err := Mint(MintParams{
		AppID: app.ID, TeamID: &teamID, UserID: &userID,
		Subject: "svc-account", Scopes: []string{"usage:write"}, TTL: time.Minute, Kid: kid, Secret: secret,
	})
	require.NoError(t, err)

	claims, err := engine.Verify(context.Background(), tok)
	require.NoError(t, err)
	assert.Equal(t, app.ID, claims.AppID)
	require.NotNil(t, claims.TeamID)
	assert.Equal(t, teamID, *claims.TeamID)
	require.NotNil(t, claims.UserID)
	assert.Equal(t, userID, *claims.UserID)
	assert.Equal(t, []string{"usage:write"}, claims.Scopes)
	assert.Equal(t, kid, claims.Kid)
	assert.NotEmpty(t, claims.Jti)
}

func TestVerifyMalformedToken(t *testing.T) {
	engine, _, _, _ := newFixture(t)
	_, err := engine.Verify(context.Background(), "not-a-jwt")
	assertKind(t, err, KindMalformed)
}

func TestVerifyUnsupportedAlgorithm(t *testing.T) {
	engine, app, kid, secret := newFixture(t)
	tok := mint(t, app, kid, secret, time.Minute)

	// none-alg substitution: swap the header segment for one claiming "alg":"none"
	none := "eyJhbGciOiJub25lIiwia2lkIjoiIn0." + segmentAfterFirstDot(tok)
	_, err := engine.Verify(context.Background(), none)
	assertKind(t, err, KindUnsupportedAlg)
}

func TestVerifyUnknownKid(t *testing.T) {
	engine, app, _, secret := newFixture(t)
	tok := mint(t, app, "does-not-exist", secret, time.Minute)
	_, err := engine.Verify(context.Background(), tok)
	assertKind(t, err, KindUnknownKid)
}

func TestVerifyRevokedKid(t *testing.T) {
	engine, app, kid, secret := newFixture(t)
	require.NoError(t, engine.Secrets.(*memstore.MemStore).RevokeAppSecret(context.Background(), app.ID, kid))

	tok := mint(t, app, kid, secret, time.Minute)
	_, err := engine.Verify(context.Background(), tok)
	assertKind(t, err, KindRevokedKid)
}

func TestVerifyInvalidSignature(t *testing.T) {
	engine, app, kid, _ := newFixture(t)
	tok := mint(t, app, kid, []byte("wrong-secret-entirely-different"), time.Minute)
	_, err := engine.Verify(context.Background(), tok)
	assertKind(t, err, KindInvalidSig)
}

func TestVerifyAppIDMismatch(t *testing.T) {
	engine, app, kid, secret := newFixture(t)
	// kid belongs to app, but the claims assert a different appId.
	other := store.App{ID: uuid.New()}
	tok, err := Mint(MintParams{
		AppID: other.ID, Subject: "svc", Scopes: nil, TTL: time.Minute, Kid: kid, Secret: secret,
	})
	require.NoError(t, err)
	_ = app

	_, err = engine.Verify(context.Background(), tok)
	assertKind(t, err, KindAppIDMismatch)
}

func TestVerifyIatInFuture(t *testing.T) {
	engine, app, kid, secret := newFixture(t)
	tok, err := Mint(MintParams{
		AppID: app.ID, Subject: "svc", TTL: time.Minute, Kid: kid, Secret: secret,
		Now: time.Now().UTC().Add(time.Hour),
	})
	require.NoError(t, err)

	_, err = engine.Verify(context.Background(), tok)
	assertKind(t, err, KindIatFuture)
}

func TestVerifyExpired(t *testing.T) {
	engine, app, kid, secret := newFixture(t)
	tok, err := Mint(MintParams{
		AppID: app.ID, Subject: "svc", TTL: -time.Minute, Kid: kid, Secret: secret,
		Now: time.Now().UTC().Add(-time.Hour),
	})
	require.NoError(t, err)

	_, err = engine.Verify(context.Background(), tok)
	assertKind(t, err, KindExpired)
}

func TestVerifyReplayedJti(t *testing.T) {
	engine, app, kid, secret := newFixture(t)
	tok := mint(t, app, kid, secret, time.Minute)

	_, err := engine.Verify(context.Background(), tok)
	require.NoError(t, err)

	_, err = engine.Verify(context.Background(), tok)
	assertKind(t, err, KindReplayed)
}

func TestToAPIErrorMapsKinds(t *testing.T) {
	apiErr := ToAPIError(verifyErr(KindExpired, nil))
	assert.Equal(t, "Token expired", apiErr.Message)

	apiErr = ToAPIError(verifyErr(KindReplayed, nil))
	assert.Equal(t, "Token has already been used", apiErr.Message)
}

func assertKind(t *testing.T, err error, kind Kind) {
	t.Helper()
	require.Error(t, err)
	ve, ok := err.(*VerifyError)
	require.True(t, ok, "expected *VerifyError, got %T", err)
	assert.Equal(t, kind, ve.Kind)
}

func segmentAfterFirstDot(tok string) string {
	for i := 0; i < len(tok); i++ {
		if tok[i] == '.' {
			return tok[i+1:]
		}
	}
	return tok
}
