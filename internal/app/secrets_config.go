package app

import "github.com/charlesng35/burnnote/internal/services"

// SecretOptions converts SecretsConfig into secret service options. An unset
// default TTL keeps the service default.
func (c SecretsConfig) SecretOptions() []services.SecretOption {
	var opts []services.SecretOption
	if c.DefaultTTL > 0 {
		opts = append(opts, services.WithDefaultSecretTTL(c.DefaultTTL))
	}
	return opts
}
