// Package config loads huntkit workspace settings from YAML files and
// environment variables, with optional Key Vault secret resolution.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"
)

// Config is the top-level huntkit configuration.
type Config struct {
	Version    string                     `yaml:"version"`
	Azure      AzureConfig                `yaml:"azure"`
	Workspaces map[string]WorkspaceConfig `yaml:"workspaces"`
	KeyVault   KeyVaultConfig             `yaml:"key_vault"`
	DataPaths  []string                   `yaml:"data_paths"`
	QueryPaths []string                   `yaml:"query_paths"`
}

// AzureConfig holds tenant-level authentication settings.
type AzureConfig struct {
	TenantID string `yaml:"tenant_id"`
	ClientID string `yaml:"client_id"`
}

// WorkspaceConfig identifies one Sentinel / Log Analytics workspace.
type WorkspaceConfig struct {
	SubscriptionID string `yaml:"subscription_id"`
	ResourceGroup  string `yaml:"resource_group"`
	WorkspaceName  string `yaml:"workspace_name"`
	WorkspaceID    string `yaml:"workspace_id"`
	TenantID       string `yaml:"tenant_id"`
}

// KeyVaultConfig controls secret storage for sensitive settings.
type KeyVaultConfig struct {
	VaultName string `yaml:"vault_name"`
	TenantID  string `yaml:"tenant_id"`
}

// VaultURL returns the vault's HTTPS endpoint.
func (k KeyVaultConfig) VaultURL() string {
	return fmt.Sprintf("https://%s.vault.azure.net", k.VaultName)
}

const (
	envConfigFile  = "HUNTKIT_CONFIG_FILE"
	envTenantID    = "HUNTKIT_TENANT_ID"
	envWorkspaceID = "HUNTKIT_WORKSPACE_ID"
	envVaultName   = "HUNTKIT_VAULT_NAME"

	// DefaultWorkspace is the workspace key used when none is named.
	DefaultWorkspace = "default"
)

// Load reads configuration with precedence env vars > config file >
// defaults.
func Load() (*Config, error) {
	cfg, err := loadFromFile()
	if err != nil && !os.IsNotExist(err) {
		return nil, fmt.Errorf("failed to load config file: %w", err)
	}

	if cfg == nil {
		cfg = defaultConfig()
	}

	applyEnvOverrides(cfg)

	if err := validate(cfg); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return cfg, nil
}

// LoadFile reads configuration from an explicit path, then applies env
// overrides.
func LoadFile(path string) (*Config, error) {
	cfg, err := loadConfigFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to load config file: %w", err)
	}
	applyEnvOverrides(cfg)
	if err := validate(cfg); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return cfg, nil
}

func loadFromFile() (*Config, error) {
	if configFile := os.Getenv(envConfigFile); configFile != "" {
		return loadConfigFile(configFile)
	}

	locations := []string{
		"huntkit.yaml",
		"huntkit.yml",
		".huntkit.yaml",
		".huntkit.yml",
		filepath.Join(os.Getenv("HOME"), ".huntkit", "config.yaml"),
	}

	for _, loc := range locations {
		if _, err := os.Stat(loc); err == nil {
			return loadConfigFile(loc)
		}
	}

	return nil, os.ErrNotExist
}

func loadConfigFile(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, err
	}

	return &cfg, nil
}

func defaultConfig() *Config {
	return &Config{
		Version:    "1.0",
		Workspaces: map[string]WorkspaceConfig{},
	}
}

func applyEnvOverrides(cfg *Config) {
	if tenant := os.Getenv(envTenantID); tenant != "" {
		cfg.Azure.TenantID = tenant
	}
	if vault := os.Getenv(envVaultName); vault != "" {
		cfg.KeyVault.VaultName = vault
	}
	if wsID := os.Getenv(envWorkspaceID); wsID != "" {
		if cfg.Workspaces == nil {
			cfg.Workspaces = map[string]WorkspaceConfig{}
		}
		ws := cfg.Workspaces[DefaultWorkspace]
		ws.WorkspaceID = wsID
		cfg.Workspaces[DefaultWorkspace] = ws
	}
}

func validate(cfg *Config) error {
	for name, ws := range cfg.Workspaces {
		if ws.WorkspaceID == "" && ws.WorkspaceName == "" {
			return fmt.Errorf("workspace %q must set workspace_id or workspace_name", name)
		}
	}
	return nil
}

// Workspace returns a named workspace, falling back to the default
// entry, then to any sole entry.
func (c *Config) Workspace(name string) (WorkspaceConfig, error) {
	if name == "" {
		name = DefaultWorkspace
	}
	if ws, ok := c.Workspaces[name]; ok {
		return ws, nil
	}
	if name == DefaultWorkspace && len(c.Workspaces) == 1 {
		for _, ws := range c.Workspaces {
			return ws, nil
		}
	}
	return WorkspaceConfig{}, fmt.Errorf("workspace %q not found in configuration", name)
}

// WorkspaceNames returns configured workspace keys.
func (c *Config) WorkspaceNames() []string {
	names := make([]string, 0, len(c.Workspaces))
	for name := range c.Workspaces {
		names = append(names, name)
	}
	return names
}

// TenantFor resolves the effective tenant for a workspace: workspace
// tenant wins over the global Azure tenant.
func (c *Config) TenantFor(ws WorkspaceConfig) string {
	if ws.TenantID != "" {
		return ws.TenantID
	}
	return c.Azure.TenantID
}

// Save writes the configuration back to a YAML file.
func (c *Config) Save(path string) error {
	data, err := yaml.Marshal(c)
	if err != nil {
		return fmt.Errorf("failed to encode configuration: %w", err)
	}
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("failed to create config directory: %w", err)
		}
	}
	return os.WriteFile(path, data, 0o600)
}

// IsSecretRef reports whether a config value is a Key Vault reference
// of the form "keyvault:secret-name".
func IsSecretRef(value string) bool {
	return strings.HasPrefix(value, "keyvault:")
}

// SecretName extracts the secret name from a Key Vault reference.
func SecretName(value string) string {
	return strings.TrimPrefix(value, "keyvault:")
}
