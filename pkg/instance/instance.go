package instance

import (
	"os"

	"github.com/angelmondragon/storefront-backend/pkg/env"
)

const fallbackID = "local"

// ID identifies this process in logs and lock ownership. An explicit
// STOREFRONT_INSTANCE_ID wins over the platform dyno name and the hostname.
func ID() string {
	host, err := os.Hostname()
	if err != nil || host == "" {
		host = fallbackID
	}
	return env.First(host, "STOREFRONT_INSTANCE_ID", "DYNO")
}
