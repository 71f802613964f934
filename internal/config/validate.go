package config

import (
	"fmt"

	"KBPortal/internal/auth"
)

// Validate performs business-rule validation on the loaded configuration.
// Load calls it automatically.
func (c *Config) Validate() error {
	if len(c.Auth.JWTSecret) < 32 {
		return fmt.Errorf("auth.jwt_secret must be at least 32 characters (got %d)", len(c.Auth.JWTSecret))
	}
	if c.Auth.TokenTTL <= 0 {
		return fmt.Errorf("auth.token_ttl must be > 0 (got %s)", c.Auth.TokenTTL)
	}

	if _, err := c.Auth.Policies(); err != nil {
		return err
	}

	if c.Server.Port < 1 || c.Server.Port > 65535 {
		return fmt.Errorf("server.port must be in 1..65535 (got %d)", c.Server.Port)
	}

	if c.Auth.LoginRateLimit < 0 {
		return fmt.Errorf("auth.login_rate_limit must be >= 0 (got %d)", c.Auth.LoginRateLimit)
	}

	if c.Database.MinConns > c.Database.MaxConns {
		return fmt.Errorf("database.min_conns (%d) exceeds max_conns (%d)", c.Database.MinConns, c.Database.MaxConns)
	}

	return nil
}

// RoutePolicies is the access policy applied to each class of catalog route.
type RoutePolicies struct {
	Write auth.Policy
	Batch auth.Policy
}

// Policies parses the write and batch policies. Optional is rejected: a
// mutation must always carry a verified caller.
func (a AuthConfig) Policies() (RoutePolicies, error) {
	write, err := parseMutationPolicy("auth.write_policy", a.WritePolicy)
	if err != nil {
		return RoutePolicies{}, err
	}
	batch, err := parseMutationPolicy("auth.batch_policy", a.BatchPolicy)
	if err != nil {
		return RoutePolicies{}, err
	}
	return RoutePolicies{Write: write, Batch: batch}, nil
}

func parseMutationPolicy(name, raw string) (auth.Policy, error) {
	p, err := auth.ParsePolicy(raw)
	if err != nil {
		return 0, fmt.Errorf("%s: %w", name, err)
	}
	if p == auth.PolicyOptional {
		return 0, fmt.Errorf("%s: must be mandatory or admin", name)
	}
	return p, nil
}
