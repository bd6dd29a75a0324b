package instance

import "github.com/angelmondragon/easevote-backend/pkg/env"

// GetID returns the process instance identifier used in log fields.
// WORKER_ID wins over the platform-provided DYNO name.
func GetID() string {
	return env.First("local", "WORKER_ID", "DYNO")
}
