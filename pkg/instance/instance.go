package instance

import (
	"os"

	"github.com/angelmondragon/community-market-backend/pkg/env"
)

// GetID returns the worker instance identifier, falling back to the hostname.
func GetID() string {
	if id := env.Get("WORKER_ID", ""); id != "" {
		return id
	}
	if host, err := os.Hostname(); err == nil && host != "" {
		return host
	}
	return "worker-0"
}
