package domain

import "time"

// TenantConfig is one tenant's digest configuration. Message history is
// volatile, but this survives restarts in the registry.
type TenantConfig struct {
	TenantID        string    // platform tenant key
	Name            string    // display name used in prompts and logs
	DigestChannelID string    // destination chat; "" means unbound
	Enabled         bool      // scheduled digests on/off
	CreatedAt       time.Time // registration instant, UTC
}

// Deliverable reports whether scheduled digests can reach this tenant.
func (t *TenantConfig) Deliverable() bool {
	return t.Enabled && t.DigestChannelID != ""
}
