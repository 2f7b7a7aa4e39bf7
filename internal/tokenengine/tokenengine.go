// Package tokenengine mints and verifies the compact signed tokens spec
// §4.2 (component C2) defines. It is built on golang-jwt/jwt/v5 the same way
// the teacher's libs/go/client/auth/middleware.go resolves a verification
// key through a custom jwt.Keyfunc — here the keyfunc looks up an AppSecret
// by kid and decrypts it via the vault instead of hitting a remote JWKS
// endpoint. Replay protection and the ordered error classification have no
// jwt/v5 equivalent and are implemented on top.
package tokenengine

import (
	"context"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"

	"github.com/fluxmeter/billing-core/internal/apierr"
	"github.com/fluxmeter/billing-core/internal/store"
	"github.com/fluxmeter/billing-core/internal/vault"
)

const (
	issuerPrefix = "app:"
	audience     = "billing-service"
)

// Kind classifies why verification failed, matching the wire-stable
// messages in spec §6 1:1 (mapped by the auth middleware, not here).
type Kind string

const (
	KindMalformed      Kind = "MALFORMED"
	KindUnsupportedAlg Kind = "UNSUPPORTED_ALG"
	KindUnknownKid     Kind = "UNKNOWN_KID"
	KindRevokedKid     Kind = "REVOKED_KID"
	KindInvalidSig     Kind = "INVALID_SIGNATURE"
	KindInvalidIss     Kind = "INVALID_ISS"
	KindInvalidAud     Kind = "INVALID_AUD"
	KindAppIDMismatch  Kind = "APPID_MISMATCH"
	KindIatFuture      Kind = "IAT_FUTURE"
	KindExpired        Kind = "EXPIRED"
	KindReplayed       Kind = "REPLAYED"
)

// VerifyError carries the Kind a caller needs to pick the stable §6 message.
type VerifyError struct {
	Kind  Kind
	Cause error
}

func (e *VerifyError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("tokenengine: %s: %v", e.Kind, e.Cause)
	}
	return fmt.Sprintf("tokenengine: %s", e.Kind)
}

func (e *VerifyError) Unwrap() error { return e.Cause }

func verifyErr(kind Kind, cause error) *VerifyError { return &VerifyError{Kind: kind, Cause: cause} }

// Claims is the payload shape of spec §4.2.
type Claims struct {
	Issuer   string         `json:"iss"`
	Audience string         `json:"aud"`
	Subject  string         `json:"sub"`
	AppID    string         `json:"appId"`
	TeamID   string         `json:"teamId,omitempty"`
	UserID   string         `json:"userId,omitempty"`
	Scopes   []string       `json:"scopes"`
	IssuedAt int64          `json:"iat"`
	Expiry   int64          `json:"exp"`
	Jti      string         `json:"jti"`
	Kid      string         `json:"kid"`
	NotBefore int64         `json:"nbf,omitempty"`
}

func (c Claims) GetExpirationTime() (*jwt.NumericDate, error) {
	return jwt.NewNumericDate(time.Unix(c.Expiry, 0)), nil
}
func (c Claims) GetIssuedAt() (*jwt.NumericDate, error) {
	return jwt.NewNumericDate(time.Unix(c.IssuedAt, 0)), nil
}
func (c Claims) GetNotBefore() (*jwt.NumericDate, error) {
	if c.NotBefore == 0 {
		return jwt.NewNumericDate(time.Unix(c.IssuedAt, 0)), nil
	}
	return jwt.NewNumericDate(time.Unix(c.NotBefore, 0)), nil
}
func (c Claims) GetIssuer() (string, error)   { return c.Issuer, nil }
func (c Claims) GetSubject() (string, error)  { return c.Subject, nil }
func (c Claims) GetAudience() (jwt.ClaimStrings, error) { return jwt.ClaimStrings{c.Audience}, nil }

// VerifiedClaims is what C3 binds to the request context on success (spec
// §4.2 step 7).
type VerifiedClaims struct {
	AppID  uuid.UUID
	TeamID *uuid.UUID
	UserID *string
	Scopes []string
	Kid    string
	Jti    string
}

// MintParams is the input to Mint; TTL and NotBefore mirror §4.2's payload
// fields. NotBefore is an additive field (not in spec.md): when set, Mint
// writes it as the nbf claim, and GetNotBefore reports iat when nbf is
// absent. Verify does not check nbf, so a token is accepted before its nbf.
type MintParams struct {
	AppID     uuid.UUID
	TeamID    *uuid.UUID
	UserID    *string
	Subject   string
	Scopes    []string
	TTL       time.Duration
	Kid       string
	Secret    []byte
	NotBefore *time.Time
	Now       time.Time
}

// Mint builds the three-segment header.payload.sig wire form directly with
// jwt/v5's SigningMethodHS256, since the library already produces exactly
// that compact serialization.
func Mint(p MintParams) (string, error) {
	now := p.Now
	if now.IsZero() {
		now = time.Now().UTC()
	}
	iat := now.Unix()
	claims := Claims{
		Issuer:   issuerPrefix + p.AppID.String(),
		Audience: audience,
		Subject:  p.Subject,
		AppID:    p.AppID.String(),
		Scopes:   p.Scopes,
		IssuedAt: iat,
		Expiry:   now.Add(p.TTL).Unix(),
		Jti:      uuid.NewString(),
		Kid:      p.Kid,
	}
	if p.TeamID != nil {
		claims.TeamID = p.TeamID.String()
	}
	if p.UserID != nil {
		claims.UserID = *p.UserID
	}
	if p.NotBefore != nil {
		claims.NotBefore = p.NotBefore.Unix()
	}

	tok := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	tok.Header["kid"] = p.Kid
	return tok.SignedString(p.Secret)
}

// ReplayStore is the jti uniqueness check spec §4.2 step 6 requires; backed
// by store.AuthStore.InsertJti in production, injectable in tests.
type ReplayStore interface {
	InsertJti(ctx context.Context, rec store.JtiRecord) error
}

// SecretResolver is the AppSecret lookup spec §4.2 step 3 requires.
type SecretResolver interface {
	GetAppSecretByKid(ctx context.Context, kid string) (store.AppSecret, error)
}

// Engine is pure with respect to clock and replay store; both are injected
// (spec §4.2 closing line).
type Engine struct {
	Secrets SecretResolver
	Replay  ReplayStore
	Vault   *vault.Vault
	Now     func() time.Time
	// Skew is the fixed clock-skew allowance for iat/exp checks (spec §4.2
	// step 5, "fixed 0s skew, configurable").
	Skew time.Duration
}

func (e *Engine) now() time.Time {
	if e.Now != nil {
		return e.Now()
	}
	return time.Now().UTC()
}

// Verify implements the seven-step procedure of spec §4.2 exactly in order,
// returning the first failing step's Kind.
func (e *Engine) Verify(ctx context.Context, token string) (VerifiedClaims, error) {
	parser := jwt.NewParser(jwt.WithoutClaimsValidation())

	var header struct {
		Alg string `json:"alg"`
		Kid string `json:"kid"`
	}
	var unverified Claims
	tok, _, err := parser.ParseUnverified(token, &unverified)
	if err != nil {
		return VerifiedClaims{}, verifyErr(KindMalformed, err)
	}
	if alg, _ := tok.Header["alg"].(string); alg != "" {
		header.Alg = alg
	}
	if kid, _ := tok.Header["kid"].(string); kid != "" {
		header.Kid = kid
	}

	if header.Alg != "HS256" {
		return VerifiedClaims{}, verifyErr(KindUnsupportedAlg, nil)
	}

	secret, err := e.Secrets.GetAppSecretByKid(ctx, header.Kid)
	if err != nil {
		return VerifiedClaims{}, verifyErr(KindUnknownKid, err)
	}
	if secret.Status == store.SecretStatusRevoked {
		return VerifiedClaims{}, verifyErr(KindRevokedKid, nil)
	}

	plaintext, err := e.Vault.Decrypt(secret.EncryptedSecret)
	if err != nil {
		return VerifiedClaims{}, verifyErr(KindInvalidSig, err)
	}

	var verified Claims
	_, err = jwt.ParseWithClaims(token, &verified, func(t *jwt.Token) (any, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method")
		}
		return []byte(plaintext), nil
	}, jwt.WithValidMethods([]string{"HS256"}), jwt.WithoutClaimsValidation())
	if err != nil {
		return VerifiedClaims{}, verifyErr(KindInvalidSig, err)
	}

	appID, err := uuid.Parse(verified.AppID)
	if err != nil {
		return VerifiedClaims{}, verifyErr(KindMalformed, err)
	}
	if verified.Issuer != issuerPrefix+verified.AppID {
		return VerifiedClaims{}, verifyErr(KindInvalidIss, nil)
	}
	if verified.Audience != audience {
		return VerifiedClaims{}, verifyErr(KindInvalidAud, nil)
	}
	if secret.AppID != appID {
		return VerifiedClaims{}, verifyErr(KindAppIDMismatch, nil)
	}

	now := e.now()
	if time.Unix(verified.IssuedAt, 0).After(now.Add(e.Skew)) {
		return VerifiedClaims{}, verifyErr(KindIatFuture, nil)
	}
	if !time.Unix(verified.Expiry, 0).After(now.Add(-e.Skew)) {
		return VerifiedClaims{}, verifyErr(KindExpired, nil)
	}

	if err := e.Replay.InsertJti(ctx, store.JtiRecord{
		Jti:       verified.Jti,
		ExpiresAt: time.Unix(verified.Expiry, 0),
	}); err != nil {
		return VerifiedClaims{}, verifyErr(KindReplayed, err)
	}

	out := VerifiedClaims{
		AppID:  appID,
		Scopes: verified.Scopes,
		Kid:    header.Kid,
		Jti:    verified.Jti,
	}
	if verified.TeamID != "" {
		if tid, err := uuid.Parse(verified.TeamID); err == nil {
			out.TeamID = &tid
		}
	}
	if verified.UserID != "" {
		uid := verified.UserID
		out.UserID = &uid
	}
	return out, nil
}

// ToAPIError maps a verification Kind to the stable §6 message and apierr
// Kind; used by the auth middleware (C3) to produce the 401 body.
func ToAPIError(err error) *apierr.Error {
	ve, ok := err.(*VerifyError)
	if !ok {
		return apierr.Wrap(apierr.KindAuth, "Malformed Authorization header", err)
	}
	msg := map[Kind]string{
		KindMalformed:      "Malformed Authorization header",
		KindUnsupportedAlg: "Unsupported algorithm",
		KindUnknownKid:     "Unknown key ID",
		KindRevokedKid:     "Key has been revoked",
		KindInvalidSig:     "Invalid signature",
		KindInvalidIss:     "Invalid issuer",
		KindInvalidAud:     "Invalid audience",
		KindAppIDMismatch:  "appId does not match key",
		KindIatFuture:      "Token issued in the future",
		KindExpired:        "Token expired",
		KindReplayed:       "Token has already been used",
	}[ve.Kind]
	if msg == "" {
		msg = "Malformed Authorization header"
	}
	return apierr.Wrap(apierr.KindAuth, msg, ve)
}
