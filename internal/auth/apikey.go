package auth

import (
	"fmt"
	"net/http"
	"time"

	"github.com/maypok86/otter/v2"

	llamaxing "github.com/johannestang/llamaxing/internal"
	"github.com/johannestang/llamaxing/internal/identity"
)

const (
	cacheTTL    = 30 * time.Second
	cacheMaxLen = 10_000
)

// APIKeyHandler authenticates requests by extracting a credential from a
// configured header (default "Authorization"), optionally stripping a
// Bearer prefix, and delegating to an identity.Store. Resolved identities
// are cached briefly to absorb repeated lookups under load; the identity
// store itself does no caching (spec §4.A permits an unbounded linear
// scan), so this is an auth-layer optimization, not a correctness
// requirement.
type APIKeyHandler struct {
	header string
	store  identity.Store
	cache  *otter.Cache[string, *llamaxing.Identity]
}

// NewAPIKeyHandler returns an APIKeyHandler reading the given header
// (defaults to "Authorization" if empty) and resolving through store.
func NewAPIKeyHandler(header string, store identity.Store) (*APIKeyHandler, error) {
	if header == "" {
		header = "Authorization"
	}
	c, err := otter.New(&otter.Options[string, *llamaxing.Identity]{
		MaximumSize:      cacheMaxLen,
		ExpiryCalculator: otter.ExpiryWriting[string, *llamaxing.Identity](cacheTTL),
	})
	if err != nil {
		return nil, fmt.Errorf("auth: create cache: %w", err)
	}
	return &APIKeyHandler{header: header, store: store, cache: c}, nil
}

// Authenticate extracts the credential, strips a Bearer prefix if present,
// and resolves it through the identity store.
func (h *APIKeyHandler) Authenticate(r *http.Request) (*llamaxing.Identity, error) {
	raw := r.Header.Get(h.header)
	if raw == "" {
		return nil, llamaxing.ErrUnauthorized
	}
	key := bearerTrim(raw)

	if id, ok := h.cache.GetIfPresent(key); ok {
		return id, nil
	}

	id, ok := h.store.Find(key)
	if !ok {
		return nil, llamaxing.ErrUnauthorized
	}
	h.cache.Set(key, id)
	return id, nil
}
