package identity

import (
	"context"
	"fmt"
	"log"

	"staffhub/internal/config"
	"staffhub/internal/repository"
	"staffhub/internal/security"
)

// NewFromConfig builds the configured provider. The verifier is nil for the
// remote provider, whose credentials are exchanged with it directly.
func NewFromConfig(ctx context.Context, cfg *config.Config, identities *repository.IdentityRepository) (Provider, CredentialVerifier, error) {
	switch cfg.IdentityProvider {
	case "remote":
		if cfg.IdentityURL == "" || cfg.IdentityTokenURL == "" {
			return nil, nil, fmt.Errorf("IDENTITY_URL and IDENTITY_TOKEN_URL are required for the remote identity provider")
		}
		remote := NewRemoteProvider(ctx, RemoteConfig{
			BaseURL:      cfg.IdentityURL,
			TokenURL:     cfg.IdentityTokenURL,
			ClientID:     cfg.IdentityClientID,
			ClientSecret: cfg.IdentityClientSecret,
			Timeout:      cfg.IdentityTimeout,
		})
		log.Printf("Using remote identity provider at %s", cfg.IdentityURL)
		return remote, nil, nil
	case "local", "":
		secret := cfg.SignInSecret
		if secret == "" {
			var err error
			if secret, err = security.GenerateToken(); err != nil {
				return nil, nil, fmt.Errorf("failed to generate sign-in secret: %w", err)
			}
			log.Println("Warning: SIGNIN_SECRET not set, sign-in credentials will not survive a restart")
		}
		local := NewLocalProvider(identities, secret, cfg.SignInTTL)
		return local, local, nil
	default:
		return nil, nil, fmt.Errorf("unknown identity provider: %s", cfg.IdentityProvider)
	}
}
