// Package azuread authenticates against Microsoft Entra ID with the OAuth 2.0
// client-credentials grant. The resulting token source is scoped to a single
// Dataverse environment ({environment url}/.default).
package azuread

import (
	"context"
	"fmt"
	"net/http"
	"strings"

	"github.com/3mpowered/dataverse-convenience/internal/config"
	"golang.org/x/oauth2"
	"golang.org/x/oauth2/clientcredentials"
)

// entraTokenURLTemplate is the tenant-specific v2.0 token endpoint.
const entraTokenURLTemplate = "https://login.microsoftonline.com/%s/oauth2/v2.0/token"

// Provider issues application tokens for one Dataverse environment.
type Provider struct {
	cfg      clientcredentials.Config
	tenantID string
}

// NewProvider validates cfg and prepares a client-credentials configuration.
func NewProvider(cfg *config.DataverseConfig) (*Provider, error) {
	if cfg.URL == "" {
		return nil, fmt.Errorf("Dataverse URL is required")
	}

	if cfg.TenantID == "" {
		return nil, fmt.Errorf("Entra ID tenant ID is required")
	}

	if cfg.ClientID == "" {
		return nil, fmt.Errorf("Entra ID client ID is required")
	}

	if cfg.ClientSecret == "" {
		return nil, fmt.Errorf("Entra ID client secret is required")
	}

	return &Provider{
		cfg: clientcredentials.Config{
			ClientID:     cfg.ClientID,
			ClientSecret: cfg.ClientSecret,
			TokenURL:     fmt.Sprintf(entraTokenURLTemplate, cfg.TenantID),
			Scopes:       []string{Scope(cfg.URL)},
			AuthStyle:    oauth2.AuthStyleInParams,
		},
		tenantID: cfg.TenantID,
	}, nil
}

// Scope returns the .default scope of the environment at url.
func Scope(url string) string {
	return strings.TrimRight(url, "/") + "/.default"
}

// TokenSource returns a caching token source. Token requests use the client
// carried by ctx under oauth2.HTTPClient, if any.
func (p *Provider) TokenSource(ctx context.Context) oauth2.TokenSource {
	return p.cfg.TokenSource(ctx)
}

// Client returns an HTTP client that authorizes every request with a bearer
// token, wrapping base's transport.
func (p *Provider) Client(ctx context.Context, base *http.Client) *http.Client {
	if base != nil {
		ctx = context.WithValue(ctx, oauth2.HTTPClient, base)
	}
	return p.cfg.Client(ctx)
}

// GetTenantID returns the configured tenant
func (p *Provider) GetTenantID() string {
	return p.tenantID
}

// GetTokenURL returns the token endpoint used by the provider
func (p *Provider) GetTokenURL() string {
	return p.cfg.TokenURL
}
