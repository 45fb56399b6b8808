package instance

import (
	"os"

	"github.com/angelmondragon/vibes-market-backend/pkg/env"
)

// GetID names this process in logs: VIBES_INSTANCE_ID, then the host name.
func GetID() string {
	if id := env.Get("VIBES_INSTANCE_ID", ""); id != "" {
		return id
	}
	if host, err := os.Hostname(); err == nil && host != "" {
		return host
	}
	return "local"
}
