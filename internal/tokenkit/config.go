package tokenkit

import "time"

// ServerConfig configures token issuance and the blacklist namespace.
type ServerConfig struct {
	SigningKey      []byte
	Issuer          string
	AccessTTL       time.Duration
	RefreshTTL      time.Duration
	BlacklistPrefix string
	SweepInterval   time.Duration
}
