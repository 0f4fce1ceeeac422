package auth

import (
	"crypto/subtle"
	"errors"
	"net/http"
	"strings"
)

// CronVerifier authenticates the external scheduler's trigger calls
// with a pre-shared secret carried as a bearer credential.
type CronVerifier struct {
	secret string
}

func NewCronVerifier(secret string) (*CronVerifier, error) {
	if strings.TrimSpace(secret) == "" {
		return nil, errors.New("CRON_SECRET is required")
	}
	return &CronVerifier{secret: secret}, nil
}

func (v *CronVerifier) Verify(r *http.Request) error {
	token, err := bearerToken(r)
	if err != nil {
		return err
	}
	if subtle.ConstantTimeCompare([]byte(token), []byte(v.secret)) != 1 {
		return ErrUnauthenticated
	}
	return nil
}
