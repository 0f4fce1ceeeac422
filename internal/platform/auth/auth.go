package auth

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/indexr-labs/indexr-go/internal/platform/env"
)

// Mode selects how operator requests are authenticated. The mode is
// chosen once at startup; handlers never branch on missing config.
type Mode string

const (
	ModeOIDC     Mode = "oidc"
	ModeDev      Mode = "dev"
	ModeDisabled Mode = "disabled"
)

var ErrUnauthenticated = errors.New("unauthenticated")

type Identity struct {
	Subject string
	Email   string
}

// Authenticator verifies an operator request and returns its identity.
type Authenticator interface {
	Authenticate(ctx context.Context, r *http.Request) (Identity, error)
}

type Config struct {
	Mode Mode

	OIDCIssuerURL string
	OIDCClientID  string

	DevSubject string
	DevEmail   string
}

func ConfigFromEnv() (Config, error) {
	modeRaw := strings.ToLower(strings.TrimSpace(env.String("AUTH_MODE", string(ModeOIDC))))
	var mode Mode
	switch modeRaw {
	case string(ModeOIDC):
		mode = ModeOIDC
	case string(ModeDev):
		mode = ModeDev
	case string(ModeDisabled):
		mode = ModeDisabled
	default:
		return Config{}, fmt.Errorf("AUTH_MODE must be one of: oidc, dev, disabled (got %q)", modeRaw)
	}

	cfg := Config{
		Mode:          mode,
		OIDCIssuerURL: strings.TrimSpace(env.String("AUTH_OIDC_ISSUER_URL", "")),
		OIDCClientID:  strings.TrimSpace(env.String("AUTH_OIDC_CLIENT_ID", "")),
		DevSubject:    env.String("AUTH_DEV_SUBJECT", "dev-operator"),
		DevEmail:      env.String("AUTH_DEV_EMAIL", "dev-operator@localhost"),
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func (c Config) Validate() error {
	if c.Mode == ModeOIDC {
		if c.OIDCIssuerURL == "" {
			return errors.New("AUTH_OIDC_ISSUER_URL is required in oidc mode")
		}
		if c.OIDCClientID == "" {
			return errors.New("AUTH_OIDC_CLIENT_ID is required in oidc mode")
		}
	}
	return nil
}

// DevAuthenticator trusts every request with a fixed identity; for
// local development only.
type DevAuthenticator struct {
	Subject string
	Email   string
}

func (a DevAuthenticator) Authenticate(ctx context.Context, r *http.Request) (Identity, error) {
	return Identity{Subject: a.Subject, Email: a.Email}, nil
}

func bearerToken(r *http.Request) (string, error) {
	header := strings.TrimSpace(r.Header.Get("Authorization"))
	if header == "" {
		return "", ErrUnauthenticated
	}
	const prefix = "Bearer "
	if !strings.HasPrefix(header, prefix) {
		return "", ErrUnauthenticated
	}
	token := strings.TrimSpace(strings.TrimPrefix(header, prefix))
	if token == "" {
		return "", ErrUnauthenticated
	}
	return token, nil
}
