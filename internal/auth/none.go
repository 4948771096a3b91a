package auth

import (
	"net/http"

	llamaxing "github.com/johannestang/llamaxing/internal"
)

// anonymousIdentity is the synthetic identity returned by NoneHandler for
// every request.
var anonymousIdentity = &llamaxing.Identity{ID: "anonymous", Name: "Anonymous"}

// NoneHandler always authenticates as the anonymous identity. It never
// consults an identity.Store.
type NoneHandler struct{}

// NewNoneHandler returns a Handler that authenticates every request as
// anonymous.
func NewNoneHandler() *NoneHandler { return &NoneHandler{} }

// Authenticate always succeeds with the anonymous identity.
func (NoneHandler) Authenticate(*http.Request) (*llamaxing.Identity, error) {
	return anonymousIdentity, nil
}
