package query

import (
	"context"
	"fmt"

	"github.com/kestrelsec/huntkit/pkg/tables"
)

// Func is the executable form of a single query source: render the
// template with params, run it on the driver, return the result table.
type Func func(ctx context.Context, params map[string]interface{}) (*tables.Table, error)

// Provider pairs a query store with the driver that executes its
// queries. It is the upstream collaborator the pivot layer indexes.
type Provider struct {
	environment string
	store       *Store
	driver      Driver
}

// NewProvider creates a provider for an environment name (used as the
// pivot namespace), a loaded query store and a backend driver.
func NewProvider(environment string, store *Store, driver Driver) *Provider {
	return &Provider{environment: environment, store: store, driver: driver}
}

// Environment returns the provider's environment identifier.
func (p *Provider) Environment() string {
	return p.environment
}

// Families returns the provider's family → name → source mapping.
func (p *Provider) Families() map[string]map[string]*Source {
	return p.store.Families()
}

// Connect connects the underlying driver.
func (p *Provider) Connect(ctx context.Context) error {
	return p.driver.Connect(ctx)
}

// Close closes the underlying driver.
func (p *Provider) Close() error {
	return p.driver.Close()
}

// Exec renders and runs the query identified by a fully-qualified
// "family.name" key.
func (p *Provider) Exec(ctx context.Context, key string, params map[string]interface{}) (*tables.Table, error) {
	src, err := p.store.Get(key)
	if err != nil {
		return nil, err
	}
	if !p.driver.Connected() {
		return nil, fmt.Errorf("query %s: %w", key, ErrNotConnected)
	}
	text, err := src.Render(params)
	if err != nil {
		return nil, err
	}
	return p.driver.RunQuery(ctx, text)
}

// QueryFunc returns the executable form of a query, or ok=false when the
// family/name pair is unknown.
func (p *Provider) QueryFunc(family, name string) (Func, bool) {
	src, err := p.store.Get(family + "." + name)
	if err != nil {
		return nil, false
	}
	key := src.Key()
	return func(ctx context.Context, params map[string]interface{}) (*tables.Table, error) {
		return p.Exec(ctx, key, params)
	}, true
}
