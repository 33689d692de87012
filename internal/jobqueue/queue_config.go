/*
Package jobqueue configuration - tunable parameters for the River job queue.

The queue only carries deployment announcements. Announcements are one-shot:
a job that fails is discarded rather than retried, because the source webhook
owns redelivery and a late deployment notice is worse than none.

## Quick Configuration Reference:

- MaxWorkers bounds concurrent Slack posts from the queue
- JobTimeout bounds a single post, including rate limiter waits
- The River schema is migrated on startup by Migrate

## Database Requirements:
- PostgreSQL reachable via queue.url (may be the thread store database)
*/
package jobqueue

import (
	"time"

	"github.com/riverqueue/river"
)

// QueueConfig holds all configurable parameters for the job queue
type QueueConfig struct {
	MaxWorkers int           `koanf:"workers"`     // Concurrent workers (default: 2)
	JobTimeout time.Duration `koanf:"job_timeout"` // Maximum time a single job can run (default: 30s)
}

// DefaultQueueConfig returns the default configuration
func DefaultQueueConfig() QueueConfig {
	return QueueConfig{
		MaxWorkers: 2,
		JobTimeout: 30 * time.Second,
	}
}

// RiverQueueConfig converts our config to River's queue configuration format
func (c QueueConfig) RiverQueueConfig() map[string]river.QueueConfig {
	workers := c.MaxWorkers
	if workers <= 0 {
		workers = 1
	}
	return map[string]river.QueueConfig{
		river.QueueDefault: {
			MaxWorkers: workers,
		},
	}
}
