package config

import (
	"context"
	"fmt"

	"github.com/Azure/azure-sdk-for-go/sdk/azcore"
	"github.com/Azure/azure-sdk-for-go/sdk/security/keyvault/azsecrets"
)

// secretClient is the subset of azsecrets.Client used here, split out
// so tests can stub it.
type secretClient interface {
	GetSecret(ctx context.Context, name string, version string, options *azsecrets.GetSecretOptions) (azsecrets.GetSecretResponse, error)
	SetSecret(ctx context.Context, name string, parameters azsecrets.SetSecretParameters, options *azsecrets.SetSecretOptions) (azsecrets.SetSecretResponse, error)
}

// VaultResolver resolves "keyvault:" references in configuration
// values against an Azure Key Vault.
type VaultResolver struct {
	client secretClient
}

// NewVaultResolver creates a resolver for the configured vault.
func NewVaultResolver(cfg KeyVaultConfig, credential azcore.TokenCredential) (*VaultResolver, error) {
	if cfg.VaultName == "" {
		return nil, fmt.Errorf("no vault_name configured")
	}
	client, err := azsecrets.NewClient(cfg.VaultURL(), credential, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create Key Vault client: %w", err)
	}
	return &VaultResolver{client: client}, nil
}

// Resolve returns the value itself, or the referenced secret when the
// value is a "keyvault:name" reference.
func (r *VaultResolver) Resolve(ctx context.Context, value string) (string, error) {
	if !IsSecretRef(value) {
		return value, nil
	}
	name := SecretName(value)
	resp, err := r.client.GetSecret(ctx, name, "", nil)
	if err != nil {
		return "", fmt.Errorf("failed to read secret %q: %w", name, err)
	}
	if resp.Value == nil {
		return "", fmt.Errorf("secret %q has no value", name)
	}
	return *resp.Value, nil
}

// ResolveWorkspace resolves secret references in a workspace's fields.
func (r *VaultResolver) ResolveWorkspace(ctx context.Context, ws WorkspaceConfig) (WorkspaceConfig, error) {
	var err error
	if ws.WorkspaceID, err = r.Resolve(ctx, ws.WorkspaceID); err != nil {
		return ws, err
	}
	if ws.TenantID, err = r.Resolve(ctx, ws.TenantID); err != nil {
		return ws, err
	}
	if ws.SubscriptionID, err = r.Resolve(ctx, ws.SubscriptionID); err != nil {
		return ws, err
	}
	return ws, nil
}

// Store writes a secret and returns the reference to put in the config
// file.
func (r *VaultResolver) Store(ctx context.Context, name, value string) (string, error) {
	_, err := r.client.SetSecret(ctx, name, azsecrets.SetSecretParameters{Value: &value}, nil)
	if err != nil {
		return "", fmt.Errorf("failed to store secret %q: %w", name, err)
	}
	return "keyvault:" + name, nil
}

// UploadWorkspaceSecrets moves a workspace's identifying values into
// the vault and rewrites them as references. Already-referenced values
// are left alone.
func (r *VaultResolver) UploadWorkspaceSecrets(ctx context.Context, name string, ws WorkspaceConfig) (WorkspaceConfig, error) {
	fields := []struct {
		value  *string
		suffix string
	}{
		{&ws.WorkspaceID, "workspace-id"},
		{&ws.TenantID, "tenant-id"},
		{&ws.SubscriptionID, "subscription-id"},
	}
	for _, f := range fields {
		if *f.value == "" || IsSecretRef(*f.value) {
			continue
		}
		ref, err := r.Store(ctx, fmt.Sprintf("huntkit-%s-%s", name, f.suffix), *f.value)
		if err != nil {
			return ws, err
		}
		*f.value = ref
	}
	return ws, nil
}
