package jobqueue

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/riverqueue/river"
	"github.com/riverqueue/river/riverdriver/riverpgxv5"
	"github.com/riverqueue/river/rivermigrate"
	"github.com/rs/zerolog/log"

	"github.com/JefferySJones/pullrequestpeon/internal/chat"
)

// DeployAnnouncementArgs is a composed deployment notice waiting to be posted
type DeployAnnouncementArgs struct {
	Channel string       `json:"channel"`
	Payload chat.Payload `json:"payload"`
}

// Kind returns the job kind for River
func (DeployAnnouncementArgs) Kind() string {
	return "deploy_announcement"
}

// InsertOpts pins announcements to a single attempt.
func (DeployAnnouncementArgs) InsertOpts() river.InsertOpts {
	return river.InsertOpts{MaxAttempts: 1}
}

// DeployAnnouncementWorker posts queued notices
type DeployAnnouncementWorker struct {
	river.WorkerDefaults[DeployAnnouncementArgs]
	gateway chat.Gateway
}

// NewDeployAnnouncementWorker creates a worker posting through gateway
func NewDeployAnnouncementWorker(gateway chat.Gateway) *DeployAnnouncementWorker {
	return &DeployAnnouncementWorker{gateway: gateway}
}

// Work posts the notice once
func (w *DeployAnnouncementWorker) Work(ctx context.Context, job *river.Job[DeployAnnouncementArgs]) error {
	args := job.Args

	ts, err := w.gateway.Post(ctx, args.Channel, args.Payload)
	if err != nil {
		log.Error().Err(err).Int64("job_id", job.ID).Str("channel", args.Channel).Msg("failed to post deployment notice")
		return fmt.Errorf("failed to post deployment notice: %w", err)
	}

	log.Info().Int64("job_id", job.ID).Str("channel", args.Channel).Str("ts", ts).Msg("posted deployment notice")
	return nil
}

// JobQueue manages the River job queue
type JobQueue struct {
	client *river.Client[pgx.Tx]
	pool   *pgxpool.Pool
	config QueueConfig
}

// NewJobQueue creates a new job queue instance and migrates River's schema
func NewJobQueue(ctx context.Context, databaseURL string, config QueueConfig, gateway chat.Gateway) (*JobQueue, error) {
	pool, err := pgxpool.New(ctx, databaseURL)
	if err != nil {
		return nil, fmt.Errorf("failed to create connection pool: %w", err)
	}

	if err := migrate(ctx, pool); err != nil {
		pool.Close()
		return nil, err
	}

	workers := river.NewWorkers()
	river.AddWorker(workers, NewDeployAnnouncementWorker(gateway))

	client, err := river.NewClient(riverpgxv5.New(pool), &river.Config{
		Queues:     config.RiverQueueConfig(),
		Workers:    workers,
		JobTimeout: config.JobTimeout,
	})
	if err != nil {
		pool.Close()
		return nil, fmt.Errorf("failed to create River client: %w", err)
	}

	return &JobQueue{
		client: client,
		pool:   pool,
		config: config,
	}, nil
}

// Migrate applies River's schema to the database at databaseURL
func Migrate(ctx context.Context, databaseURL string) error {
	pool, err := pgxpool.New(ctx, databaseURL)
	if err != nil {
		return fmt.Errorf("failed to create connection pool: %w", err)
	}
	defer pool.Close()
	return migrate(ctx, pool)
}

func migrate(ctx context.Context, pool *pgxpool.Pool) error {
	migrator, err := rivermigrate.New(riverpgxv5.New(pool), nil)
	if err != nil {
		return fmt.Errorf("failed to create River migrator: %w", err)
	}
	res, err := migrator.Migrate(ctx, rivermigrate.DirectionUp, nil)
	if err != nil {
		return fmt.Errorf("failed to migrate River schema: %w", err)
	}
	for _, v := range res.Versions {
		log.Info().Int("version", v.Version).Msg("applied River migration")
	}
	return nil
}

// Start starts the job queue workers
func (jq *JobQueue) Start(ctx context.Context) error {
	return jq.client.Start(ctx)
}

// Stop stops the job queue workers and closes the pool
func (jq *JobQueue) Stop(ctx context.Context) error {
	err := jq.client.Stop(ctx)
	jq.pool.Close()
	return err
}

// EnqueueAnnouncement queues a deployment notice
func (jq *JobQueue) EnqueueAnnouncement(ctx context.Context, channel string, p chat.Payload) error {
	args := DeployAnnouncementArgs{Channel: channel, Payload: p}

	res, err := jq.client.Insert(ctx, args, nil)
	if err != nil {
		return fmt.Errorf("failed to queue deployment notice: %w", err)
	}

	log.Debug().Int64("job_id", res.Job.ID).Str("channel", channel).Msg("queued deployment notice")
	return nil
}
