package testutil

import (
	"context"
	"net/http"

	gateway "github.com/eugener/radagast/internal"
)

// FakeAuth always authenticates successfully.
type FakeAuth struct{}

// Authenticate returns a fixed test identity.
func (FakeAuth) Authenticate(_ context.Context, _ *http.Request) (*gateway.Identity, error) {
	return &gateway.Identity{Subject: "deadbeef"}, nil
}

// RejectAuth rejects every request with the given error.
type RejectAuth struct {
	Err error
}

// Authenticate always fails.
func (a RejectAuth) Authenticate(context.Context, *http.Request) (*gateway.Identity, error) {
	if a.Err != nil {
		return nil, a.Err
	}
	return nil, gateway.ErrInvalidKey
}
