package auth

import (
	"context"
	"fmt"
	"net/http"

	"github.com/MicahParks/keyfunc/v3"
	"github.com/golang-jwt/jwt/v5"

	llamaxing "github.com/johannestang/llamaxing/internal"
	"github.com/johannestang/llamaxing/internal/identity"
)

// JWTConfig configures the JWT auth handler.
type JWTConfig struct {
	Header           string // default "Authorization"
	IDClaim          string // default "oid"
	VerifySignature  bool
	JWKSURI          string
	Issuer           string
	Audience         string
}

// JWTHandler authenticates requests by decoding a bearer JWT, optionally
// verifying its signature against a JWKS endpoint, and resolving a
// configured claim through an identity.Store.
type JWTHandler struct {
	cfg   JWTConfig
	store identity.Store
	jwks  keyfunc.Keyfunc // nil when signature verification is disabled
}

// NewJWTHandler constructs a JWTHandler. If cfg.VerifySignature is set, it
// eagerly fetches the JWKS document from cfg.JWKSURI.
func NewJWTHandler(ctx context.Context, cfg JWTConfig, store identity.Store) (*JWTHandler, error) {
	if cfg.Header == "" {
		cfg.Header = "Authorization"
	}
	if cfg.IDClaim == "" {
		cfg.IDClaim = "oid"
	}
	h := &JWTHandler{cfg: cfg, store: store}
	if cfg.VerifySignature {
		jwks, err := keyfunc.NewDefaultCtx(ctx, []string{cfg.JWKSURI})
		if err != nil {
			return nil, fmt.Errorf("auth: fetch jwks: %w", err)
		}
		h.jwks = jwks
	}
	return h, nil
}

// Authenticate decodes the bearer JWT and resolves the configured identity
// claim through the identity store.
//
// Preserved quirk (spec §4.B, §9 open question): a missing header is not
// translated into a 401 here. It panics, which the server's recovery
// middleware turns into a 500 -- matching the observed behavior of the
// source this gateway was distilled from, where the absent-token case is
// an unguarded exception rather than a handled rejection.
func (h *JWTHandler) Authenticate(r *http.Request) (*llamaxing.Identity, error) {
	raw := r.Header.Get(h.cfg.Header)
	if raw == "" {
		panic("auth: could not get JWT from headers")
	}
	token := bearerTrim(raw)

	claims := jwt.MapClaims{}
	var err error
	if h.jwks != nil {
		parserOpts := []jwt.ParserOption{jwt.WithIssuer(h.cfg.Issuer)}
		if h.cfg.Audience != "" {
			parserOpts = append(parserOpts, jwt.WithAudience(h.cfg.Audience))
		}
		_, err = jwt.ParseWithClaims(token, claims, h.jwks.Keyfunc, parserOpts...)
	} else {
		_, _, err = jwt.NewParser().ParseUnverified(token, claims)
	}
	if err != nil {
		return nil, llamaxing.ErrUnauthorized
	}

	claimVal, _ := claims[h.cfg.IDClaim].(string)
	if claimVal == "" {
		return nil, llamaxing.ErrUnauthorized
	}

	id, ok := h.store.Find(claimVal)
	if !ok {
		return nil, llamaxing.ErrUnauthorized
	}
	return id, nil
}
