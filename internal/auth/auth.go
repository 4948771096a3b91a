// Package auth implements the pluggable auth handler family (spec §4.B):
// extracts a credential from an incoming request, resolves it through an
// identity.Store, and yields a llamaxing.Identity or a rejection.
package auth

import (
	"net/http"

	llamaxing "github.com/johannestang/llamaxing/internal"
)

// Handler authenticates an inbound request.
type Handler interface {
	Authenticate(r *http.Request) (*llamaxing.Identity, error)
}

// bearerTrim strips a "Bearer " prefix from raw if present. The check is
// deliberately exactly "six letters + one space" (7 characters), matching
// the source's case-insensitive prefix test byte-for-byte rather than a
// generic case-insensitive trim -- a value like "Bearerx" or "bearer" with
// no following space is left untouched.
func bearerTrim(raw string) string {
	if len(raw) >= 7 && equalFoldASCII(raw[:6], "bearer") && raw[6] == ' ' {
		return raw[7:]
	}
	return raw
}

func equalFoldASCII(s, t string) bool {
	if len(s) != len(t) {
		return false
	}
	for i := 0; i < len(s); i++ {
		a, b := s[i], t[i]
		if 'A' <= a && a <= 'Z' {
			a += 'a' - 'A'
		}
		if 'A' <= b && b <= 'Z' {
			b += 'a' - 'A'
		}
		if a != b {
			return false
		}
	}
	return true
}
