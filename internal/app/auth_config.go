package app

import (
	"strings"

	"github.com/charlesng35/burnnote/internal/auth"
)

const defaultJWTIssuer = "burnnote"

// JWTServiceConfig converts AuthConfig into the parameters expected by the JWT service.
func (c AuthConfig) JWTServiceConfig() auth.JWTConfig {
	issuer := strings.TrimSpace(c.JWT.Issuer)
	if issuer == "" {
		issuer = defaultJWTIssuer
	}

	return auth.JWTConfig{
		Secret: c.JWT.Secret,
		Issuer: issuer,
	}
}
