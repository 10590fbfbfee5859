package auth

import (
	"context"
	"crypto/rsa"
	"errors"
	"fmt"
	"strings"

	"github.com/golang-jwt/jwt/v5"
)

// Identity is the authenticated caller, threaded explicitly through the
// core instead of living in shared global state.
type Identity struct {
	UserID   string
	Username string
	Token    string
}

// Claims is the subset of the backend's access token the client reads.
type Claims struct {
	Username string `json:"username"`
	jwt.RegisteredClaims
}

// Verifier checks access tokens issued by the backend. Tokens are signed
// either with a shared HMAC secret or with an RSA key whose public half is
// configured here.
type Verifier struct {
	secret    []byte
	publicKey *rsa.PublicKey
	issuer    string
}

// NewVerifier builds a Verifier from an HMAC secret and/or a PEM encoded
// RSA public key. At least one of them is required.
func NewVerifier(secret string, publicKeyPEM []byte, issuer string) (*Verifier, error) {
	v := &Verifier{secret: []byte(secret), issuer: issuer}
	if len(publicKeyPEM) > 0 {
		key, err := jwt.ParseRSAPublicKeyFromPEM(publicKeyPEM)
		if err != nil {
			return nil, fmt.Errorf("invalid token public key: %w", err)
		}
		v.publicKey = key
	}
	if len(v.secret) == 0 && v.publicKey == nil {
		return nil, errors.New("no token secret or public key configured")
	}
	return v, nil
}

func (v *Verifier) keyFunc(token *jwt.Token) (any, error) {
	switch token.Method.(type) {
	case *jwt.SigningMethodHMAC:
		if len(v.secret) == 0 {
			return nil, errors.New("hmac signed tokens are not accepted")
		}
		return v.secret, nil
	case *jwt.SigningMethodRSA:
		if v.publicKey == nil {
			return nil, errors.New("rsa signed tokens are not accepted")
		}
		return v.publicKey, nil
	default:
		return nil, fmt.Errorf("unexpected signing method %v", token.Header["alg"])
	}
}

// FromBearer verifies an access token and reads the caller's identity out
// of it. The signature, expiry and (when configured) issuer are checked.
func (v *Verifier) FromBearer(token string) (Identity, error) {
	token = strings.TrimSpace(token)
	if token == "" {
		return Identity{}, errors.New("empty token")
	}

	opts := []jwt.ParserOption{
		jwt.WithValidMethods([]string{"HS256", "HS384", "HS512", "RS256", "RS384", "RS512"}),
	}
	if v.issuer != "" {
		opts = append(opts, jwt.WithIssuer(v.issuer))
	}

	var claims Claims
	if _, err := jwt.ParseWithClaims(token, &claims, v.keyFunc, opts...); err != nil {
		return Identity{}, fmt.Errorf("invalid token: %w", err)
	}
	if claims.Subject == "" {
		return Identity{}, errors.New("token has no subject")
	}

	username := claims.Username
	if username == "" {
		username = claims.Subject
	}
	return Identity{UserID: claims.Subject, Username: username, Token: token}, nil
}

type ctxKey struct{}

// WithIdentity returns a context carrying id.
func WithIdentity(ctx context.Context, id Identity) context.Context {
	return context.WithValue(ctx, ctxKey{}, id)
}

// FromContext returns the identity stored by WithIdentity.
func FromContext(ctx context.Context) (Identity, bool) {
	id, ok := ctx.Value(ctxKey{}).(Identity)
	return id, ok
}
