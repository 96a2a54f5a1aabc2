// Package azure provides a REST client for Azure Sentinel workspace
// resources: hunting queries, alert rules, bookmarks and incidents.
// Authentication is delegated to an injected azcore.TokenCredential.
package azure

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"sort"
	"strings"
	"time"

	"github.com/Azure/azure-sdk-for-go/sdk/azcore"
	"github.com/Azure/azure-sdk-for-go/sdk/azcore/policy"
	"github.com/google/uuid"

	"github.com/kestrelsec/huntkit/pkg/tables"
)

const (
	defaultBaseURL = "https://management.azure.com"
	armScope       = "https://management.azure.com/.default"

	apiVersionSecurityInsights = "2020-01-01"
	apiVersionSavedSearches    = "2017-04-26-preview"
	apiVersionWorkspaces       = "2020-08-01"
)

// providerPaths maps logical operations to SecurityInsights REST paths
// under a workspace resource.
var providerPaths = map[string]string{
	"operations":     "/providers/Microsoft.SecurityInsights/operations",
	"alert_rules":    "/providers/Microsoft.SecurityInsights/alertRules",
	"saved_searches": "/savedSearches",
	"bookmarks":      "/providers/Microsoft.SecurityInsights/bookmarks",
	"incidents":      "/providers/Microsoft.SecurityInsights/incidents",
}

// Workspace identifies a Sentinel workspace by its ARM coordinates.
type Workspace struct {
	SubscriptionID string
	ResourceGroup  string
	Name           string
}

// Path returns the workspace's ARM resource path.
func (w Workspace) Path() string {
	return fmt.Sprintf("/subscriptions/%s/resourceGroups/%s/providers/Microsoft.OperationalInsights/workspaces/%s",
		w.SubscriptionID, w.ResourceGroup, w.Name)
}

// RetryConfig controls request retries on transient failures.
type RetryConfig struct {
	MaxRetries int
	RetryDelay time.Duration
}

// SentinelClient calls the Sentinel management REST API.
type SentinelClient struct {
	credential  azcore.TokenCredential
	workspace   Workspace
	httpClient  *http.Client
	baseURL     string
	retryConfig RetryConfig
	userAgent   string
}

// NewSentinelClient creates a client for one workspace.
func NewSentinelClient(credential azcore.TokenCredential, workspace Workspace) *SentinelClient {
	return &SentinelClient{
		credential: credential,
		workspace:  workspace,
		httpClient: &http.Client{Timeout: 30 * time.Second},
		baseURL:    defaultBaseURL,
		retryConfig: RetryConfig{
			MaxRetries: 3,
			RetryDelay: 2 * time.Second,
		},
		userAgent: "huntkit-sentinel-client/1.0",
	}
}

// WithBaseURL overrides the management endpoint (sovereign clouds,
// tests).
func (c *SentinelClient) WithBaseURL(baseURL string) *SentinelClient {
	c.baseURL = strings.TrimSuffix(baseURL, "/")
	return c
}

func (c *SentinelClient) token(ctx context.Context) (string, error) {
	tok, err := c.credential.GetToken(ctx, policy.TokenRequestOptions{
		Scopes: []string{armScope},
	})
	if err != nil {
		return "", fmt.Errorf("failed to acquire ARM token: %w", err)
	}
	return tok.Token, nil
}

// doRequest issues one API request with auth headers and retry on
// transient status codes.
func (c *SentinelClient) doRequest(ctx context.Context, method, path, apiVersion string, body interface{}) ([]byte, int, error) {
	token, err := c.token(ctx)
	if err != nil {
		return nil, 0, err
	}

	reqURL := c.baseURL + path + "?api-version=" + url.QueryEscape(apiVersion)

	var lastErr error
	for attempt := 0; attempt <= c.retryConfig.MaxRetries; attempt++ {
		if attempt > 0 {
			select {
			case <-ctx.Done():
				return nil, 0, ctx.Err()
			case <-time.After(c.retryConfig.RetryDelay * time.Duration(attempt)):
			}
		}

		var reqBody io.Reader
		if body != nil {
			data, err := json.Marshal(body)
			if err != nil {
				return nil, 0, fmt.Errorf("failed to encode request body: %w", err)
			}
			reqBody = bytes.NewReader(data)
		}

		req, err := http.NewRequestWithContext(ctx, method, reqURL, reqBody)
		if err != nil {
			return nil, 0, fmt.Errorf("failed to build request: %w", err)
		}
		req.Header.Set("Authorization", "Bearer "+token)
		req.Header.Set("Content-Type", "application/json")
		req.Header.Set("User-Agent", c.userAgent)

		resp, err := c.httpClient.Do(req)
		if err != nil {
			lastErr = err
			continue
		}
		data, err := io.ReadAll(resp.Body)
		resp.Body.Close()
		if err != nil {
			lastErr = err
			continue
		}
		if resp.StatusCode == http.StatusTooManyRequests || resp.StatusCode >= 500 {
			lastErr = fmt.Errorf("transient API error: status %d", resp.StatusCode)
			continue
		}
		return data, resp.StatusCode, nil
	}
	return nil, 0, fmt.Errorf("request failed after %d retries: %w", c.retryConfig.MaxRetries, lastErr)
}

// getTable GETs an API collection and flattens it into a table.
func (c *SentinelClient) getTable(ctx context.Context, path, apiVersion string) (*tables.Table, error) {
	data, status, err := c.doRequest(ctx, http.MethodGet, path, apiVersion, nil)
	if err != nil {
		return nil, err
	}
	if status != http.StatusOK {
		return nil, fmt.Errorf("API request failed: status %d: %s", status, truncate(data))
	}
	return resultToTable(data)
}

// HuntingQueries returns the workspace's hunting queries (saved
// searches in the Hunting Queries category).
func (c *SentinelClient) HuntingQueries(ctx context.Context) (*tables.Table, error) {
	all, err := c.getTable(ctx, c.workspace.Path()+providerPaths["saved_searches"], apiVersionSavedSearches)
	if err != nil {
		return nil, fmt.Errorf("could not get hunting queries: %w", err)
	}
	out := tables.New(all.Columns()...)
	for _, row := range all.Rows() {
		if cat, _ := row["properties.Category"].(string); cat == "Hunting Queries" {
			out.AppendRow(row)
		}
	}
	return out, nil
}

// SavedSearches returns all saved searches in the workspace.
func (c *SentinelClient) SavedSearches(ctx context.Context) (*tables.Table, error) {
	t, err := c.getTable(ctx, c.workspace.Path()+providerPaths["saved_searches"], apiVersionSavedSearches)
	if err != nil {
		return nil, fmt.Errorf("could not get saved searches: %w", err)
	}
	return t, nil
}

// AlertRules returns the workspace's analytics/alert rules.
func (c *SentinelClient) AlertRules(ctx context.Context) (*tables.Table, error) {
	t, err := c.getTable(ctx, c.workspace.Path()+providerPaths["alert_rules"], apiVersionSecurityInsights)
	if err != nil {
		return nil, fmt.Errorf("could not get alert rules: %w", err)
	}
	return t, nil
}

// ListWorkspaces returns the Log Analytics workspaces visible in a
// subscription.
func (c *SentinelClient) ListWorkspaces(ctx context.Context, subscriptionID string) (*tables.Table, error) {
	path := fmt.Sprintf("/subscriptions/%s/providers/Microsoft.OperationalInsights/workspaces", subscriptionID)
	t, err := c.getTable(ctx, path, apiVersionWorkspaces)
	if err != nil {
		return nil, fmt.Errorf("could not list workspaces: %w", err)
	}
	return t, nil
}

// CreateBookmark saves a hunting bookmark. The bookmark resource name
// is a fresh UUID; displayName carries the analyst-facing name.
func (c *SentinelClient) CreateBookmark(ctx context.Context, displayName, queryText, notes string) error {
	path := c.workspace.Path() + providerPaths["bookmarks"] + "/" + uuid.NewString()
	props := map[string]interface{}{
		"displayName": displayName,
		"query":       queryText,
	}
	if notes != "" {
		props["notes"] = notes
	}
	body := map[string]interface{}{"properties": props}
	data, status, err := c.doRequest(ctx, http.MethodPut, path, apiVersionSecurityInsights, body)
	if err != nil {
		return err
	}
	if status != http.StatusOK && status != http.StatusCreated {
		return fmt.Errorf("could not create bookmark: status %d: %s", status, truncate(data))
	}
	return nil
}

// Bookmarks returns the workspace's hunting bookmarks.
func (c *SentinelClient) Bookmarks(ctx context.Context) (*tables.Table, error) {
	t, err := c.getTable(ctx, c.workspace.Path()+providerPaths["bookmarks"], apiVersionSecurityInsights)
	if err != nil {
		return nil, fmt.Errorf("could not get bookmarks: %w", err)
	}
	return t, nil
}

// Incidents returns the workspace's incidents.
func (c *SentinelClient) Incidents(ctx context.Context) (*tables.Table, error) {
	t, err := c.getTable(ctx, c.workspace.Path()+providerPaths["incidents"], apiVersionSecurityInsights)
	if err != nil {
		return nil, fmt.Errorf("could not get incidents: %w", err)
	}
	return t, nil
}

// Incident returns details of a single incident by ID.
func (c *SentinelClient) Incident(ctx context.Context, incidentID string) (*tables.Table, error) {
	path := c.workspace.Path() + providerPaths["incidents"] + "/" + url.PathEscape(incidentID)
	t, err := c.getTable(ctx, path, apiVersionSecurityInsights)
	if err != nil {
		return nil, fmt.Errorf("could not get incident %s: %w", incidentID, err)
	}
	return t, nil
}

// UpdateIncident updates properties of an incident. Property keys
// severity, status and title go under the incident's properties object;
// anything else is set at top level.
func (c *SentinelClient) UpdateIncident(ctx context.Context, incidentID string, items map[string]interface{}, etag string) error {
	path := c.workspace.Path() + providerPaths["incidents"] + "/" + url.PathEscape(incidentID)
	body := buildPropertyBody(items, etag)
	data, status, err := c.doRequest(ctx, http.MethodPut, path, apiVersionSecurityInsights, body)
	if err != nil {
		return err
	}
	if status != http.StatusOK && status != http.StatusCreated {
		return fmt.Errorf("could not update incident: status %d: %s", status, truncate(data))
	}
	return nil
}

// PostComment adds a comment to an incident. The comment resource name
// is a fresh UUID, matching portal behavior.
func (c *SentinelClient) PostComment(ctx context.Context, incidentID, comment string) error {
	path := c.workspace.Path() + providerPaths["incidents"] + "/" +
		url.PathEscape(incidentID) + "/comments/" + uuid.NewString()
	body := buildPropertyBody(map[string]interface{}{"message": comment}, "")
	data, status, err := c.doRequest(ctx, http.MethodPut, path, apiVersionSecurityInsights, body)
	if err != nil {
		return err
	}
	if status != http.StatusCreated && status != http.StatusOK {
		return fmt.Errorf("could not post comment: status %d: %s", status, truncate(data))
	}
	return nil
}

// buildPropertyBody splits update items into the properties object and
// top-level fields per the SecurityInsights API shape.
func buildPropertyBody(items map[string]interface{}, etag string) map[string]interface{} {
	props := make(map[string]interface{})
	body := map[string]interface{}{"properties": props}
	for key, val := range items {
		switch key {
		case "severity", "status", "title", "message":
			props[key] = val
		default:
			body[key] = val
		}
	}
	if etag != "" {
		body["etag"] = etag
	}
	return body
}

// resultToTable converts an API JSON payload to a flattened table. A
// top-level "value" array is unwrapped; nested objects flatten to
// dotted column names.
func resultToTable(data []byte) (*tables.Table, error) {
	var payload interface{}
	if err := json.Unmarshal(data, &payload); err != nil {
		return nil, fmt.Errorf("no valid JSON result in response: %w", err)
	}

	items := []interface{}{payload}
	if obj, ok := payload.(map[string]interface{}); ok {
		if value, ok := obj["value"].([]interface{}); ok {
			items = value
		}
	}

	out := tables.New()
	for _, item := range items {
		obj, ok := item.(map[string]interface{})
		if !ok {
			continue
		}
		row := make(map[string]interface{})
		flattenInto(row, "", obj)
		out.AppendRow(row)
	}

	// stable column order for flattened payloads
	cols := out.Columns()
	sort.Strings(cols)
	sorted := tables.New(cols...)
	for _, row := range out.Rows() {
		sorted.AppendRow(row)
	}
	return sorted, nil
}

// flattenInto flattens nested objects into dotted keys. Arrays are kept
// as values.
func flattenInto(row map[string]interface{}, prefix string, obj map[string]interface{}) {
	for key, val := range obj {
		name := key
		if prefix != "" {
			name = prefix + "." + key
		}
		if nested, ok := val.(map[string]interface{}); ok {
			flattenInto(row, name, nested)
			continue
		}
		row[name] = val
	}
}

func truncate(data []byte) string {
	const max = 200
	s := string(data)
	if len(s) > max {
		return s[:max] + "..."
	}
	return s
}
