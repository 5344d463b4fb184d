package app

import (
	"fmt"
	"strings"
)

// InsecureDefaultSecret is used when no signing secret is configured. It is
// public knowledge and therefore worthless for real deployments; it exists so
// local development works out of the box.
const InsecureDefaultSecret = "hlsgate-insecure-dev-secret"

// ApplyRuntimeDefaults fills in values that cannot have static viper defaults.
// It returns a map describing which keys fell back so callers can log the
// event loudly.
func ApplyRuntimeDefaults(cfg *Config) (map[string]bool, error) {
	if cfg == nil {
		return nil, fmt.Errorf("config is nil")
	}

	fallbacks := make(map[string]bool)

	if strings.TrimSpace(cfg.Proxy.Secret) == "" {
		cfg.Proxy.Secret = InsecureDefaultSecret
		fallbacks["proxy.secret"] = true
	}

	return fallbacks, nil
}
