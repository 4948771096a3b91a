// Package identity implements the Identity store (spec §4.A): a mapping
// from an opaque credential key to a llamaxing.Identity.
package identity

import (
	"encoding/json"
	"fmt"
	"os"

	llamaxing "github.com/johannestang/llamaxing/internal"
)

// Store maps a credential key to an Identity.
type Store interface {
	// Find returns the Identity matching key, or ok=false if none matches.
	Find(key string) (id *llamaxing.Identity, ok bool)
}

// record is the on-disk shape of one entry in the JSON identity document.
type record struct {
	ID      string         `json:"id"`
	Name    string         `json:"name"`
	Info    map[string]any `json:"info"`
	AuthKey string         `json:"auth_key"`

	Observability *struct {
		LangfusePublicKey string `json:"langfuse_public_key"`
		LangfuseSecretKey string `json:"langfuse_secret_key"`
	} `json:"observability"`
}

// JSONStore is an eager in-memory table loaded from a JSON array document,
// matched by linear scan on the auth_key field (spec §4.A).
type JSONStore struct {
	records []record
}

// LoadJSONStore reads and parses the identity document at path.
func LoadJSONStore(path string) (*JSONStore, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("identity: read %s: %w", path, err)
	}
	var records []record
	if err := json.Unmarshal(data, &records); err != nil {
		return nil, fmt.Errorf("identity: parse %s: %w", path, err)
	}
	return &JSONStore{records: records}, nil
}

// Find scans the loaded table for a matching auth_key.
func (s *JSONStore) Find(key string) (*llamaxing.Identity, bool) {
	for _, r := range s.records {
		if r.AuthKey != key {
			continue
		}
		id := &llamaxing.Identity{
			ID:      r.ID,
			Name:    r.Name,
			Info:    r.Info,
			AuthKey: r.AuthKey,
		}
		if r.Observability != nil {
			id.Observability = &llamaxing.ObservabilityCreds{
				PublicKey: r.Observability.LangfusePublicKey,
				SecretKey: r.Observability.LangfuseSecretKey,
			}
		}
		return id, true
	}
	return nil, false
}

// NoneStore is the disabled variant. Its Find must never be invoked: the
// "none" auth handler bypasses identity lookup entirely and yields the
// synthetic anonymous identity directly, so any call here indicates a
// wiring bug.
type NoneStore struct{}

// Find panics -- calling it means the gateway is misconfigured (auth
// disabled but something still consulted the identity store).
func (NoneStore) Find(string) (*llamaxing.Identity, bool) {
	panic("identity: Find called on NoneStore; app is configured without an identity store")
}
