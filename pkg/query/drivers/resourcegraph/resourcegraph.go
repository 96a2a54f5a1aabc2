// Package resourcegraph executes KQL against Azure Resource Graph,
// scoped to a set of subscriptions. Useful for pivoting from entities
// to the cloud resources that host them.
package resourcegraph

import (
	"context"
	"fmt"
	"sync"

	"github.com/Azure/azure-sdk-for-go/sdk/azcore"
	"github.com/Azure/azure-sdk-for-go/sdk/azcore/to"
	"github.com/Azure/azure-sdk-for-go/sdk/resourcemanager/resourcegraph/armresourcegraph"

	"github.com/kestrelsec/huntkit/pkg/query"
	"github.com/kestrelsec/huntkit/pkg/tables"
)

const pageSize = 1000

// Driver is a query.Driver over Azure Resource Graph.
type Driver struct {
	mu            sync.RWMutex
	credential    azcore.TokenCredential
	subscriptions []string
	client        *armresourcegraph.Client
	connected     bool
}

// New creates a driver scoped to the given subscriptions.
func New(credential azcore.TokenCredential, subscriptions []string) *Driver {
	return &Driver{credential: credential, subscriptions: subscriptions}
}

// Connect builds the Resource Graph client.
func (d *Driver) Connect(ctx context.Context) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.connected {
		return nil
	}
	client, err := armresourcegraph.NewClient(d.credential, nil)
	if err != nil {
		return fmt.Errorf("failed to create resource graph client: %w", err)
	}
	d.client = client
	d.connected = true
	return nil
}

// Connected reports whether Connect has succeeded.
func (d *Driver) Connected() bool {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return d.connected
}

// RunQuery executes a Resource Graph query, following skip tokens until
// all pages are consumed.
func (d *Driver) RunQuery(ctx context.Context, text string) (*tables.Table, error) {
	d.mu.RLock()
	client := d.client
	connected := d.connected
	d.mu.RUnlock()
	if !connected || client == nil {
		return nil, query.ErrNotConnected
	}

	subscriptions := make([]*string, len(d.subscriptions))
	for i, sub := range d.subscriptions {
		subscriptions[i] = to.Ptr(sub)
	}

	out := tables.New()
	skipToken := ""
	for {
		request := armresourcegraph.QueryRequest{
			Query:         to.Ptr(text),
			Subscriptions: subscriptions,
			Options: &armresourcegraph.QueryRequestOptions{
				ResultFormat: to.Ptr(armresourcegraph.ResultFormatObjectArray),
				Top:          to.Ptr(int32(pageSize)),
			},
		}
		if skipToken != "" {
			request.Options.SkipToken = to.Ptr(skipToken)
		}

		result, err := client.Resources(ctx, request, nil)
		if err != nil {
			return nil, fmt.Errorf("resource graph query failed: %w", err)
		}

		rows, ok := result.Data.([]interface{})
		if !ok && result.Data != nil {
			return nil, fmt.Errorf("unexpected resource graph result format %T", result.Data)
		}
		for _, item := range rows {
			row, ok := item.(map[string]interface{})
			if !ok {
				continue
			}
			out.AppendRow(row)
		}

		if result.SkipToken == nil || *result.SkipToken == "" {
			break
		}
		skipToken = *result.SkipToken
	}
	return out, nil
}

// Schema is not exposed by Resource Graph; returns an empty map.
func (d *Driver) Schema(ctx context.Context) (map[string][]string, error) {
	return map[string][]string{}, nil
}

// Close marks the driver disconnected.
func (d *Driver) Close() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.client = nil
	d.connected = false
	return nil
}
