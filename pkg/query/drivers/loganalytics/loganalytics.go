// Package loganalytics executes KQL against an Azure Log Analytics /
// Sentinel workspace. Authentication is delegated to an injected
// azcore.TokenCredential; this driver never performs its own auth flow.
package loganalytics

import (
	"context"
	"fmt"
	"sync"

	"github.com/Azure/azure-sdk-for-go/sdk/azcore"
	"github.com/Azure/azure-sdk-for-go/sdk/azcore/to"
	"github.com/Azure/azure-sdk-for-go/sdk/monitor/azquery"

	"github.com/kestrelsec/huntkit/pkg/query"
	"github.com/kestrelsec/huntkit/pkg/tables"
)

// Driver is a query.Driver over the Log Analytics query API.
type Driver struct {
	mu          sync.RWMutex
	credential  azcore.TokenCredential
	workspaceID string
	client      *azquery.LogsClient
	connected   bool
}

// New creates a driver for a workspace ID using the given credential.
func New(credential azcore.TokenCredential, workspaceID string) *Driver {
	return &Driver{credential: credential, workspaceID: workspaceID}
}

// Connect builds the logs client and verifies the workspace responds.
func (d *Driver) Connect(ctx context.Context) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.connected {
		return nil
	}
	client, err := azquery.NewLogsClient(d.credential, nil)
	if err != nil {
		return fmt.Errorf("failed to create logs client: %w", err)
	}

	// A trivial query validates both credential and workspace ID.
	_, err = client.QueryWorkspace(ctx, d.workspaceID,
		azquery.Body{Query: to.Ptr("print check=1")}, nil)
	if err != nil {
		return fmt.Errorf("workspace connection check failed: %w", err)
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

// RunQuery executes KQL and converts the primary result table.
func (d *Driver) RunQuery(ctx context.Context, text string) (*tables.Table, error) {
	d.mu.RLock()
	client := d.client
	connected := d.connected
	d.mu.RUnlock()
	if !connected || client == nil {
		return nil, query.ErrNotConnected
	}

	resp, err := client.QueryWorkspace(ctx, d.workspaceID,
		azquery.Body{Query: to.Ptr(text)}, nil)
	if err != nil {
		return nil, fmt.Errorf("log analytics query failed: %w", err)
	}
	if resp.Error != nil {
		return nil, fmt.Errorf("log analytics query failed: %s", resp.Error.Error())
	}
	if len(resp.Tables) == 0 {
		return tables.New(), nil
	}
	return convertTable(resp.Tables[0]), nil
}

// convertTable maps an azquery result table to a tables.Table.
func convertTable(src *azquery.Table) *tables.Table {
	cols := make([]string, len(src.Columns))
	for i, col := range src.Columns {
		if col != nil && col.Name != nil {
			cols[i] = *col.Name
		}
	}
	out := tables.New(cols...)
	for _, row := range src.Rows {
		r := make(map[string]interface{}, len(cols))
		for i, cell := range row {
			if i < len(cols) {
				r[cols[i]] = cell
			}
		}
		out.AppendRow(r)
	}
	return out
}

// Schema returns the workspace table names and columns via the KQL
// schema metadata function.
func (d *Driver) Schema(ctx context.Context) (map[string][]string, error) {
	result, err := d.RunQuery(ctx,
		"union withsource=TableName * | getschema | project TableName, ColumnName")
	if err != nil {
		return nil, err
	}
	out := make(map[string][]string)
	for _, row := range result.Rows() {
		table, _ := row["TableName"].(string)
		col, _ := row["ColumnName"].(string)
		if table == "" || col == "" {
			continue
		}
		out[table] = append(out[table], col)
	}
	return out, nil
}

// Close marks the driver disconnected. The underlying client holds no
// persistent connection.
func (d *Driver) Close() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.client = nil
	d.connected = false
	return nil
}
