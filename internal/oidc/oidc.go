package oidc

import (
	"context"
	"fmt"
	"strings"

	"github.com/coreos/go-oidc/v3/oidc"
	"github.com/rapidoc/docsync/internal/config"
	"github.com/rapidoc/docsync/pkg/middleware"
)

// Verifier checks Keycloak-issued ID tokens for the gateway.
type Verifier struct {
	provider *oidc.Provider
	verifier *oidc.IDTokenVerifier
}

// IssuerURL builds the realm issuer from the Keycloak base URL.
func IssuerURL(kc config.KeycloakConfig) string {
	return strings.TrimRight(kc.URL, "/") + "/realms/" + kc.Realm
}

// NewVerifier discovers the realm's provider metadata and keys.
func NewVerifier(ctx context.Context, kc config.KeycloakConfig) (*Verifier, error) {
	provider, err := oidc.NewProvider(ctx, IssuerURL(kc))
	if err != nil {
		return nil, fmt.Errorf("failed to discover OIDC provider: %w", err)
	}
	verifier := provider.Verifier(&oidc.Config{ClientID: kc.ClientID})
	return &Verifier{provider: provider, verifier: verifier}, nil
}

// Verify verifies the raw ID token and returns it as a middleware.Token.
func (v *Verifier) Verify(ctx context.Context, raw string) (middleware.Token, error) {
	idToken, err := v.verifier.Verify(ctx, raw)
	if err != nil {
		return nil, err
	}
	return idToken, nil
}
