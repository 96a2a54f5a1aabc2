// Package localdata runs queries against local CSV and Parquet files
// through an in-memory DuckDB instance. Each data file is registered as
// a view named after its base name, so query templates can reference
// log tables the same way they would against a live workspace.
package localdata

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"

	_ "github.com/marcboeker/go-duckdb"

	"github.com/kestrelsec/huntkit/pkg/query"
	"github.com/kestrelsec/huntkit/pkg/tables"
)

// Driver is a query.Driver over local data files.
type Driver struct {
	mu        sync.RWMutex
	db        *sql.DB
	dataPaths []string
	views     map[string]string // view name -> source file
	connected bool
}

// New creates a localdata driver that will register files found under
// the given directories.
func New(dataPaths ...string) *Driver {
	return &Driver{
		dataPaths: dataPaths,
		views:     make(map[string]string),
	}
}

// Connect opens the in-memory database and registers a view per data
// file found under the configured paths.
func (d *Driver) Connect(ctx context.Context) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.connected {
		return nil
	}

	db, err := sql.Open("duckdb", "")
	if err != nil {
		return fmt.Errorf("failed to open database: %w", err)
	}
	db.SetMaxOpenConns(4)
	db.SetMaxIdleConns(2)

	for _, root := range d.dataPaths {
		entries, err := os.ReadDir(root)
		if err != nil {
			db.Close()
			return fmt.Errorf("failed to read data path %s: %w", root, err)
		}
		for _, entry := range entries {
			if entry.IsDir() {
				continue
			}
			full := filepath.Join(root, entry.Name())
			if err := registerView(ctx, db, full); err != nil {
				db.Close()
				return err
			}
			name := viewName(entry.Name())
			if name != "" {
				d.views[name] = full
			}
		}
	}

	d.db = db
	d.connected = true
	return nil
}

// registerView creates a DuckDB view over a supported data file.
func registerView(ctx context.Context, db *sql.DB, path string) error {
	name := viewName(filepath.Base(path))
	if name == "" {
		return nil // unsupported extension, skip
	}
	var reader string
	switch strings.ToLower(filepath.Ext(path)) {
	case ".csv":
		reader = "read_csv_auto"
	case ".parquet":
		reader = "read_parquet"
	}
	stmt := fmt.Sprintf(`CREATE OR REPLACE VIEW %q AS SELECT * FROM %s('%s')`,
		name, reader, strings.ReplaceAll(path, "'", "''"))
	if _, err := db.ExecContext(ctx, stmt); err != nil {
		return fmt.Errorf("failed to register view for %s: %w", path, err)
	}
	return nil
}

func viewName(base string) string {
	ext := strings.ToLower(filepath.Ext(base))
	if ext != ".csv" && ext != ".parquet" {
		return ""
	}
	return strings.TrimSuffix(base, filepath.Ext(base))
}

// Connected reports whether Connect has succeeded.
func (d *Driver) Connected() bool {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return d.connected
}

// Views returns the registered view names and their source files.
func (d *Driver) Views() map[string]string {
	d.mu.RLock()
	defer d.mu.RUnlock()
	out := make(map[string]string, len(d.views))
	for k, v := range d.views {
		out[k] = v
	}
	return out
}

// validate rejects empty and mutating statements; local data is
// read-only.
func validate(text string) error {
	text = strings.TrimSpace(text)
	if text == "" {
		return fmt.Errorf("query cannot be empty")
	}
	upper := strings.ToUpper(text)
	dangerous := []string{"DROP ", "DELETE ", "UPDATE ", "INSERT ", "ALTER ", "TRUNCATE "}
	for _, op := range dangerous {
		if strings.Contains(upper, op) {
			return fmt.Errorf("query contains disallowed operation: %s", strings.TrimSpace(op))
		}
	}
	return nil
}

// RunQuery executes SQL against the registered views.
func (d *Driver) RunQuery(ctx context.Context, text string) (*tables.Table, error) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	if !d.connected || d.db == nil {
		return nil, query.ErrNotConnected
	}
	if err := validate(text); err != nil {
		return nil, err
	}

	rows, err := d.db.QueryContext(ctx, text)
	if err != nil {
		return nil, fmt.Errorf("query execution failed: %w", err)
	}
	defer rows.Close()

	columns, err := rows.Columns()
	if err != nil {
		return nil, fmt.Errorf("failed to get column info: %w", err)
	}

	result := tables.New(columns...)
	for rows.Next() {
		values := make([]interface{}, len(columns))
		valuePtrs := make([]interface{}, len(columns))
		for i := range values {
			valuePtrs[i] = &values[i]
		}
		if err := rows.Scan(valuePtrs...); err != nil {
			return nil, fmt.Errorf("failed to scan row: %w", err)
		}
		row := make(map[string]interface{}, len(columns))
		for i, col := range columns {
			val := values[i]
			if b, ok := val.([]byte); ok {
				row[col] = string(b)
			} else {
				row[col] = val
			}
		}
		result.AppendRow(row)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error while iterating rows: %w", err)
	}
	return result, nil
}

// Schema returns the columns of each registered view.
func (d *Driver) Schema(ctx context.Context) (map[string][]string, error) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	if !d.connected || d.db == nil {
		return nil, query.ErrNotConnected
	}

	out := make(map[string][]string, len(d.views))
	for name := range d.views {
		rows, err := d.db.QueryContext(ctx, fmt.Sprintf(`SELECT * FROM %q LIMIT 0`, name))
		if err != nil {
			return nil, fmt.Errorf("failed to read schema for %s: %w", name, err)
		}
		cols, err := rows.Columns()
		rows.Close()
		if err != nil {
			return nil, fmt.Errorf("failed to get columns for %s: %w", name, err)
		}
		out[name] = cols
	}
	return out, nil
}

// Close closes the database.
func (d *Driver) Close() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.connected = false
	if d.db == nil {
		return nil
	}
	err := d.db.Close()
	d.db = nil
	return err
}
