package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"os"
	"sort"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/Azure/azure-sdk-for-go/sdk/azcore"
	"github.com/Azure/azure-sdk-for-go/sdk/azidentity"
	"golang.org/x/text/cases"
	"golang.org/x/text/language"

	"github.com/kestrelsec/huntkit/internal/config"
	"github.com/kestrelsec/huntkit/pkg/azure"
	"github.com/kestrelsec/huntkit/pkg/pivot"
	"github.com/kestrelsec/huntkit/pkg/query"
	"github.com/kestrelsec/huntkit/pkg/query/drivers/localdata"
	"github.com/kestrelsec/huntkit/pkg/query/drivers/loganalytics"
	"github.com/kestrelsec/huntkit/pkg/query/drivers/resourcegraph"
	"github.com/kestrelsec/huntkit/pkg/tables"
	"github.com/kestrelsec/huntkit/pkg/tables/format"
)

// Build-time variables set by GoReleaser
var (
	version = "dev"
	commit  = "none"
	date    = "unknown"
)

// parameterFlags implements flag.Value for collecting multiple --param flags
type parameterFlags map[string]interface{}

func (p parameterFlags) String() string {
	return fmt.Sprintf("%v", map[string]interface{}(p))
}

func (p parameterFlags) Set(value string) error {
	parts := strings.SplitN(value, "=", 2)
	if len(parts) != 2 {
		return fmt.Errorf("parameter must be in format key=value")
	}

	key := strings.TrimSpace(parts[0])
	val := strings.TrimSpace(parts[1])

	if strings.Contains(val, ",") {
		items := strings.Split(val, ",")
		var list []interface{}
		for _, item := range items {
			list = append(list, strings.TrimSpace(item))
		}
		p[key] = list
	} else {
		p[key] = val
	}

	return nil
}

func main() {
	if len(os.Args) < 2 {
		printUsage()
		os.Exit(1)
	}

	command := os.Args[1]
	switch command {
	case "queries":
		runQueries(os.Args[2:])
	case "run":
		runQuery(os.Args[2:])
	case "pivots":
		runPivots(os.Args[2:])
	case "browse":
		runBrowse(os.Args[2:])
	case "sentinel":
		runSentinel(os.Args[2:])
	case "config2kv":
		runConfig2KV(os.Args[2:])
	case "version", "--version", "-v":
		fmt.Printf("huntkit %s (commit: %s, built: %s)\n", version, commit, date)
		return
	case "help", "--help", "-h":
		printUsage()
		return
	default:
		fmt.Printf("Unknown command: %s\n", command)
		printUsage()
		os.Exit(1)
	}
}

func printUsage() {
	fmt.Println("🔎 huntkit - Security Hunting Toolkit")
	fmt.Println()
	fmt.Println("Usage:")
	fmt.Println("  # Query Examples")
	fmt.Println("  huntkit queries")
	fmt.Println("  huntkit queries --family WindowsSecurity")
	fmt.Println("  huntkit run --query WindowsSecurity.list_host_logons --param host_name=victim01 --days 7")
	fmt.Println("  huntkit run --query AzureNetwork.list_azure_network_flows_by_ip \\")
	fmt.Println("      --param ip_address_list=10.0.0.1,10.0.0.2 --driver local --data ./hunt-data --output json")
	fmt.Println()
	fmt.Println("  # Pivot Examples")
	fmt.Println("  huntkit pivots")
	fmt.Println("  huntkit pivots --entity Host")
	fmt.Println("  huntkit browse")
	fmt.Println()
	fmt.Println("  # Sentinel Examples")
	fmt.Println("  huntkit sentinel hunting-queries")
	fmt.Println("  huntkit sentinel incidents --output json")
	fmt.Println("  huntkit sentinel post-comment --incident <id> --message \"triaged, benign\"")
	fmt.Println()
	fmt.Println("  # Configuration")
	fmt.Println("  huntkit config2kv --vault my-vault")
	fmt.Println()
	fmt.Println("Commands:")
	fmt.Println("  queries     - List available hunting queries")
	fmt.Println("  run         - Execute a query against a data source")
	fmt.Println("  pivots      - List pivot functions bound to entities")
	fmt.Println("  browse      - Interactive pivot function browser")
	fmt.Println("  sentinel    - Query Sentinel workspace resources")
	fmt.Println("  config2kv   - Move workspace secrets into Azure Key Vault")
	fmt.Println("  version     - Show version information")
	fmt.Println()
	fmt.Println("Drivers:")
	fmt.Println("  loganalytics  - Azure Monitor Log Analytics (default)")
	fmt.Println("  resourcegraph - Azure Resource Graph")
	fmt.Println("  local         - Local CSV/Parquet files via DuckDB")
}

func loadStore(queryPaths []string) *query.Store {
	var store *query.Store
	var err error
	if len(queryPaths) > 0 {
		store, err = query.LoadPaths(queryPaths...)
	} else {
		store, err = query.LoadDefault()
	}
	if err != nil {
		log.Fatalf("Failed to load query definitions: %v", err)
	}
	return store
}

func loadConfig(path string) *config.Config {
	var cfg *config.Config
	var err error
	if path != "" {
		cfg, err = config.LoadFile(path)
	} else {
		cfg, err = config.Load()
	}
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}
	return cfg
}

func azureCredential(tenantID string) azcore.TokenCredential {
	cred, err := azidentity.NewDefaultAzureCredential(&azidentity.DefaultAzureCredentialOptions{
		TenantID: tenantID,
	})
	if err != nil {
		log.Fatalf("Failed to create Azure credential: %v", err)
	}
	return cred
}

// buildDriver wires the selected query driver from configuration.
func buildDriver(driverName string, cfg *config.Config, workspace string, dataPaths []string) (query.Driver, string) {
	switch driverName {
	case "local":
		paths := dataPaths
		if len(paths) == 0 {
			paths = cfg.DataPaths
		}
		if len(paths) == 0 {
			log.Fatal("--data (or data_paths in config) is required for the local driver")
		}
		return localdata.New(paths...), "LocalData"
	case "resourcegraph":
		ws, err := cfg.Workspace(workspace)
		if err != nil {
			log.Fatalf("Failed to resolve workspace: %v", err)
		}
		cred := azureCredential(cfg.TenantFor(ws))
		return resourcegraph.New(cred, []string{ws.SubscriptionID}), "ResourceGraph"
	case "loganalytics":
		ws, err := cfg.Workspace(workspace)
		if err != nil {
			log.Fatalf("Failed to resolve workspace: %v", err)
		}
		cred := azureCredential(cfg.TenantFor(ws))
		return loganalytics.New(cred, ws.WorkspaceID), "LogAnalytics"
	default:
		log.Fatalf("Unknown driver: %s (want loganalytics, resourcegraph or local)", driverName)
		return nil, ""
	}
}

func writeTable(t *tables.Table, outputFormat string) {
	formatter, err := format.New(outputFormat, nil)
	if err != nil {
		log.Fatalf("Invalid output format: %v", err)
	}
	if err := formatter.Format(t, os.Stdout); err != nil {
		log.Fatalf("Failed to write results: %v", err)
	}
}

func runQueries(args []string) {
	fs := flag.NewFlagSet("queries", flag.ExitOnError)
	family := fs.String("family", "", "Only show queries from this data family")
	var queryPaths stringList
	fs.Var(&queryPaths, "query-path", "Additional query definition directory (repeatable)")
	fs.Parse(args)

	store := loadStore(queryPaths)

	families := store.Families()
	famNames := make([]string, 0, len(families))
	for fam := range families {
		famNames = append(famNames, fam)
	}
	sort.Strings(famNames)

	w := tabwriter.NewWriter(os.Stdout, 0, 2, 2, ' ', 0)
	fmt.Fprintln(w, "FAMILY\tQUERY\tPARAMETERS\tDESCRIPTION")
	for _, fam := range famNames {
		if *family != "" && !strings.EqualFold(fam, *family) {
			continue
		}
		queryNames := make([]string, 0, len(families[fam]))
		for name := range families[fam] {
			queryNames = append(queryNames, name)
		}
		sort.Strings(queryNames)
		for _, name := range queryNames {
			src := families[fam][name]
			required := make([]string, 0, len(src.RequiredParams()))
			for param := range src.RequiredParams() {
				required = append(required, param)
			}
			sort.Strings(required)
			fmt.Fprintf(w, "%s\t%s\t%s\t%s\n", fam, src.Name, strings.Join(required, ", "), src.Description)
		}
	}
	w.Flush()
}

func runQuery(args []string) {
	fs := flag.NewFlagSet("run", flag.ExitOnError)
	queryKey := fs.String("query", "", "Query to run as family.name (required)")
	driverName := fs.String("driver", "loganalytics", "Query driver (loganalytics, resourcegraph, local)")
	workspace := fs.String("workspace", "", "Named workspace from configuration")
	configPath := fs.String("config", "", "Configuration file path")
	outputFormat := fs.String("output", "table", "Output format (table, csv, json)")
	days := fs.Int("days", 1, "Look-back window in days when --start is not set")
	startStr := fs.String("start", "", "Query window start (RFC3339)")
	endStr := fs.String("end", "", "Query window end (RFC3339)")
	params := parameterFlags{}
	fs.Var(params, "param", "Query parameter as name=value (repeatable)")
	var queryPaths stringList
	fs.Var(&queryPaths, "query-path", "Additional query definition directory (repeatable)")
	var dataPaths stringList
	fs.Var(&dataPaths, "data", "Data directory for the local driver (repeatable)")
	fs.Parse(args)

	if *queryKey == "" {
		log.Fatal("--query is required")
	}

	cfg := loadConfig(*configPath)
	store := loadStore(queryPaths)
	driver, environment := buildDriver(*driverName, cfg, *workspace, dataPaths)

	provider := query.NewProvider(environment, store, driver)
	ctx := context.Background()
	if err := provider.Connect(ctx); err != nil {
		log.Fatalf("Failed to connect %s driver: %v", *driverName, err)
	}
	defer provider.Close()

	start, end := resolveWindow(*startStr, *endStr, *days)
	if _, ok := params["start"]; !ok {
		params["start"] = start
	}
	if _, ok := params["end"]; !ok {
		params["end"] = end
	}

	result, err := provider.Exec(ctx, *queryKey, params)
	if err != nil {
		log.Fatalf("Query failed: %v", err)
	}

	writeTable(result, *outputFormat)
}

func resolveWindow(startStr, endStr string, days int) (time.Time, time.Time) {
	end := time.Now().UTC()
	if endStr != "" {
		parsed, err := time.Parse(time.RFC3339, endStr)
		if err != nil {
			log.Fatalf("Invalid --end value: %v", err)
		}
		end = parsed
	}
	start := end.AddDate(0, 0, -days)
	if startStr != "" {
		parsed, err := time.Parse(time.RFC3339, startStr)
		if err != nil {
			log.Fatalf("Invalid --start value: %v", err)
		}
		start = parsed
	}
	return start, end
}

// buildPivot attaches the query provider to a fresh pivot registry.
// The driver never connects here; listing bindings needs no data
// source.
func buildPivot(queryPaths, dataPaths []string, days int) *pivot.Pivot {
	store := loadStore(queryPaths)
	provider := query.NewProvider("LogAnalytics", store, localdata.New(dataPaths...))
	p := pivot.New(pivot.LastNDays(days))
	p.AttachProvider(provider)
	return p
}

func runPivots(args []string) {
	fs := flag.NewFlagSet("pivots", flag.ExitOnError)
	entity := fs.String("entity", "", "Only show pivots for this entity type")
	var queryPaths stringList
	fs.Var(&queryPaths, "query-path", "Additional query definition directory (repeatable)")
	fs.Parse(args)

	p := buildPivot(queryPaths, nil, 1)

	w := tabwriter.NewWriter(os.Stdout, 0, 2, 2, ' ', 0)
	fmt.Fprintln(w, "ENTITY\tPIVOT\tQUERY\tENVIRONMENT")
	for _, entityType := range p.EntityTypes() {
		if *entity != "" && !strings.EqualFold(entityType, *entity) {
			continue
		}
		for _, bound := range p.Lookup(entityType) {
			fmt.Fprintf(w, "%s\t%s\t%s.%s\t%s\n",
				entityType, bound.Name, bound.Family, bound.Query, bound.Environment)
		}
	}
	w.Flush()
}

func runSentinel(args []string) {
	if len(args) < 1 {
		fmt.Println("Usage: huntkit sentinel <workspaces|hunting-queries|alert-rules|bookmarks|create-bookmark|incidents|incident|update-incident|post-comment> [flags]")
		os.Exit(1)
	}
	action := args[0]

	fs := flag.NewFlagSet("sentinel", flag.ExitOnError)
	workspace := fs.String("workspace", "", "Named workspace from configuration")
	configPath := fs.String("config", "", "Configuration file path")
	outputFormat := fs.String("output", "table", "Output format (table, csv, json)")
	incidentID := fs.String("incident", "", "Incident ID")
	message := fs.String("message", "", "Comment message")
	severity := fs.String("severity", "", "New incident severity")
	status := fs.String("status", "", "New incident status")
	bookmarkName := fs.String("name", "", "Bookmark display name")
	bookmarkQuery := fs.String("bookmark-query", "", "Bookmark query text")
	notes := fs.String("notes", "", "Bookmark notes")
	fs.Parse(args[1:])

	cfg := loadConfig(*configPath)
	ws, err := cfg.Workspace(*workspace)
	if err != nil {
		log.Fatalf("Failed to resolve workspace: %v", err)
	}
	if ws.SubscriptionID == "" {
		log.Fatal("Sentinel commands need subscription_id in configuration")
	}
	if action != "workspaces" && (ws.ResourceGroup == "" || ws.WorkspaceName == "") {
		log.Fatal("Sentinel commands need resource_group and workspace_name in configuration")
	}

	cred := azureCredential(cfg.TenantFor(ws))
	client := azure.NewSentinelClient(cred, azure.Workspace{
		SubscriptionID: ws.SubscriptionID,
		ResourceGroup:  ws.ResourceGroup,
		Name:           ws.WorkspaceName,
	})

	ctx := context.Background()
	var result *tables.Table

	switch action {
	case "hunting-queries":
		result, err = client.HuntingQueries(ctx)
	case "alert-rules":
		result, err = client.AlertRules(ctx)
	case "bookmarks":
		result, err = client.Bookmarks(ctx)
	case "workspaces":
		result, err = client.ListWorkspaces(ctx, ws.SubscriptionID)
	case "create-bookmark":
		if *bookmarkName == "" || *bookmarkQuery == "" {
			log.Fatal("--name and --bookmark-query are required")
		}
		if err := client.CreateBookmark(ctx, *bookmarkName, *bookmarkQuery, *notes); err != nil {
			log.Fatalf("Failed to create bookmark: %v", err)
		}
		fmt.Printf("✅ Bookmark %q created\n", *bookmarkName)
		return
	case "incidents":
		result, err = client.Incidents(ctx)
	case "incident":
		if *incidentID == "" {
			log.Fatal("--incident is required")
		}
		result, err = client.Incident(ctx, *incidentID)
	case "update-incident":
		if *incidentID == "" {
			log.Fatal("--incident is required")
		}
		items := map[string]interface{}{}
		if *severity != "" {
			items["severity"] = *severity
		}
		if *status != "" {
			items["status"] = *status
		}
		if len(items) == 0 {
			log.Fatal("nothing to update: set --severity or --status")
		}
		if err := client.UpdateIncident(ctx, *incidentID, items, ""); err != nil {
			log.Fatalf("Failed to update incident: %v", err)
		}
		fmt.Printf("✅ Incident %s updated\n", *incidentID)
		return
	case "post-comment":
		if *incidentID == "" || *message == "" {
			log.Fatal("--incident and --message are required")
		}
		if err := client.PostComment(ctx, *incidentID, *message); err != nil {
			log.Fatalf("Failed to post comment: %v", err)
		}
		fmt.Printf("✅ Comment added to incident %s\n", *incidentID)
		return
	default:
		log.Fatalf("Unknown sentinel action: %s", action)
	}

	if err != nil {
		log.Fatalf("Sentinel request failed: %v", err)
	}
	if *outputFormat == "table" {
		titler := cases.Title(language.English)
		fmt.Printf("📋 %s (%d)\n\n", titler.String(strings.ReplaceAll(action, "-", " ")), result.NumRows())
	}
	writeTable(result, *outputFormat)
}

func runConfig2KV(args []string) {
	fs := flag.NewFlagSet("config2kv", flag.ExitOnError)
	configPath := fs.String("config", "", "Configuration file path")
	vaultName := fs.String("vault", "", "Key Vault name (defaults to key_vault.vault_name in config)")
	outPath := fs.String("out", "", "Write rewritten config here instead of overwriting")
	dryRun := fs.Bool("dry-run", false, "Show what would be uploaded without writing")
	fs.Parse(args)

	cfg := loadConfig(*configPath)
	if *vaultName != "" {
		cfg.KeyVault.VaultName = *vaultName
	}
	if cfg.KeyVault.VaultName == "" {
		log.Fatal("--vault (or key_vault.vault_name in config) is required")
	}

	if *dryRun {
		for name, ws := range cfg.Workspaces {
			for field, value := range map[string]string{
				"workspace-id":    ws.WorkspaceID,
				"tenant-id":       ws.TenantID,
				"subscription-id": ws.SubscriptionID,
			} {
				if value == "" || config.IsSecretRef(value) {
					continue
				}
				fmt.Printf("would store huntkit-%s-%s in vault %s\n", name, field, cfg.KeyVault.VaultName)
			}
		}
		return
	}

	cred := azureCredential(cfg.KeyVault.TenantID)
	resolver, err := config.NewVaultResolver(cfg.KeyVault, cred)
	if err != nil {
		log.Fatalf("Failed to create Key Vault client: %v", err)
	}

	ctx := context.Background()
	for name, ws := range cfg.Workspaces {
		rewritten, err := resolver.UploadWorkspaceSecrets(ctx, name, ws)
		if err != nil {
			log.Fatalf("Failed to upload secrets for workspace %s: %v", name, err)
		}
		cfg.Workspaces[name] = rewritten
	}

	target := *outPath
	if target == "" {
		if *configPath != "" {
			target = *configPath
		} else {
			target = "huntkit.yaml"
		}
	}
	if err := cfg.Save(target); err != nil {
		log.Fatalf("Failed to write configuration: %v", err)
	}
	fmt.Printf("✅ Secrets stored in vault %s, config written to %s\n", cfg.KeyVault.VaultName, target)
}

// stringList implements flag.Value for repeatable path flags
type stringList []string

func (s *stringList) String() string {
	return strings.Join(*s, ",")
}

func (s *stringList) Set(value string) error {
	*s = append(*s, value)
	return nil
}
