// Package testutil provides configurable test fakes for proxy interfaces.
package testutil

import (
	"context"
	"encoding/json"
	"sync/atomic"
)

// FakeUpstream is a configurable app.Upstream for testing. It counts
// Generate invocations so tests can assert the cache short-circuited a call.
type FakeUpstream struct {
	GenerateFn func(ctx context.Context, payload []byte) (json.RawMessage, error)
	ModelsFn   func(ctx context.Context) ([]string, error)
	HealthFn   func(ctx context.Context) error

	generateCalls atomic.Int64
}

// Generate delegates to GenerateFn or returns a canned response.
func (f *FakeUpstream) Generate(ctx context.Context, payload []byte) (json.RawMessage, error) {
	f.generateCalls.Add(1)
	if f.GenerateFn != nil {
		return f.GenerateFn(ctx, payload)
	}
	return json.RawMessage(`{"response":"Hi"}`), nil
}

// GenerateCalls returns how many times Generate was invoked.
func (f *FakeUpstream) GenerateCalls() int64 { return f.generateCalls.Load() }

// ListModels delegates to ModelsFn or returns a default list.
func (f *FakeUpstream) ListModels(ctx context.Context) ([]string, error) {
	if f.ModelsFn != nil {
		return f.ModelsFn(ctx)
	}
	return []string{"llama2:latest"}, nil
}

// HealthCheck delegates to HealthFn or reports healthy.
func (f *FakeUpstream) HealthCheck(ctx context.Context) error {
	if f.HealthFn != nil {
		return f.HealthFn(ctx)
	}
	return nil
}
