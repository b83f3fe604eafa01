// Package config loads and validates client configuration.
package config

import (
	"fmt"
	"strings"

	"opns/pkg/validator"
)

// ValidateCore ensures the settings each enabled component needs are present.
func (c *Config) ValidateCore() error {
	var missing []string

	if strings.TrimSpace(c.Backend.APIURL) == "" {
		missing = append(missing, "OPNS_API_URL")
	}
	if strings.TrimSpace(c.Name.Domain) == "" {
		missing = append(missing, "OPNS_DOMAIN")
	}
	if strings.TrimSpace(c.Payment.StateSecret) == "" {
		missing = append(missing, "OPNS_STATE_SECRET")
	}
	switch c.Store.Driver {
	case "file":
		if strings.TrimSpace(c.Store.Path) == "" {
			missing = append(missing, "OPNS_STORE_PATH")
		}
	case "redis":
		if strings.TrimSpace(c.Redis.URL) == "" {
			missing = append(missing, "REDIS_URL")
		}
	case "postgres":
		if strings.TrimSpace(c.Database.URL) == "" {
			missing = append(missing, "DATABASE_URL")
		}
	case "memory":
	default:
		return fmt.Errorf("unsupported OPNS_STORE %q", c.Store.Driver)
	}

	if len(missing) > 0 {
		return fmt.Errorf("missing required configuration: %s", strings.Join(missing, ", "))
	}

	if err := validator.New().Validate(c); err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}
	return nil
}

// ValidatePayments checks the settings the payment rails read at purchase time.
func (c *Config) ValidatePayments() error {
	var missing []string
	if strings.TrimSpace(c.Payment.StripeProductID) == "" {
		missing = append(missing, "OPNS_STRIPE_PRODUCT_ID")
	}
	if strings.TrimSpace(c.Payment.CollectorAddress) == "" {
		missing = append(missing, "OPNS_COLLECTOR_ADDRESS")
	}
	if strings.TrimSpace(c.Payment.MarketplaceFeeAddr) == "" {
		missing = append(missing, "OPNS_MARKETPLACE_FEE_ADDRESS")
	}
	if len(missing) > 0 {
		return fmt.Errorf("missing payment configuration: %s", strings.Join(missing, ", "))
	}

	v := validator.New()
	if err := v.Var(c.Payment.CollectorAddress, "bsv_address"); err != nil {
		return fmt.Errorf("OPNS_COLLECTOR_ADDRESS is not a valid address")
	}
	if err := v.Var(c.Payment.MarketplaceFeeAddr, "bsv_address"); err != nil {
		return fmt.Errorf("OPNS_MARKETPLACE_FEE_ADDRESS is not a valid address")
	}
	return nil
}
