package main

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"jobmate/matching-service/internal/candidate"
	"jobmate/matching-service/internal/config"
	"jobmate/matching-service/internal/db"
	"jobmate/matching-service/internal/events"
	"jobmate/matching-service/internal/job"
	"jobmate/matching-service/internal/match"
	"jobmate/matching-service/internal/memstore"
)

// services is the assembled object graph shared by every command.
type services struct {
	registry *job.Registry
	orch     *match.Orchestrator
	dispatch match.Dispatcher
	query    *match.QueryService
	queue    *match.Queue // nil when dispatch is synchronous

	closers []func()
}

func (s *services) Close() {
	for i := len(s.closers) - 1; i >= 0; i-- {
		s.closers[i]()
	}
}

// buildServices connects the backing stores and wires the components.
// async selects the worker queue over inline dispatch.
func buildServices(ctx context.Context, cfg *config.Config, log *zap.Logger, async bool) (*services, error) {
	var (
		s          = &services{}
		jobs       job.Store
		candidates candidate.Store
		matches    match.Store
		pub        events.Publisher
		counts     match.CountCache
	)

	if cfg.InMemory {
		log.Warn("running with in-memory stores; data is lost on exit")
		seeded, err := memstore.LoadCandidates(cfg.CandidatesFile)
		if err != nil {
			return nil, err
		}
		if cfg.CandidatesFile == "" {
			log.Warn("no candidates file given; match runs will find no candidates")
		}
		jobs = memstore.NewJobs()
		candidates = seeded
		matches = memstore.NewMatches()
		pub = &events.Recorder{}
		counts = match.NewMemoryCountCache()
	} else {
		log.Info("connecting to PostgreSQL")
		pool, err := db.NewPostgresPool(ctx, cfg.DatabaseURL, db.PoolConfig{
			MaxConns: cfg.DBMaxConns,
			MinConns: cfg.DBMinConns,
		})
		if err != nil {
			return nil, fmt.Errorf("postgres: %w", err)
		}
		s.closers = append(s.closers, pool.Close)
		if err := db.Migrate(ctx, pool); err != nil {
			s.Close()
			return nil, err
		}
		log.Info("PostgreSQL connected")

		log.Info("connecting to Redis")
		rdb, err := db.NewRedisClient(ctx, cfg.RedisURL)
		if err != nil {
			s.Close()
			return nil, fmt.Errorf("redis: %w", err)
		}
		s.closers = append(s.closers, func() { _ = rdb.Close() })
		log.Info("Redis connected")

		jobs = job.NewPostgresStore(pool)
		candidates = candidate.NewPostgresStore(pool)
		matches = match.NewPostgresStore(pool)
		pub = events.NewRedisPublisher(rdb)
		counts = match.NewRedisCountCache(rdb, cfg.CountCacheTTL)
	}

	authz := job.OwnerAuthorizer{}
	s.orch = match.NewOrchestrator(jobs, candidates, matches, pub, counts, authz, log.Named("orchestrator"),
		match.WithParallelism(cfg.Parallelism),
		match.WithStaleRunAfter(cfg.StaleRunAfter),
	)

	if async {
		s.queue = match.NewQueue(s.orch, log.Named("queue"),
			match.WithWorkers(cfg.Workers),
			match.WithQueueSize(cfg.QueueSize),
			match.WithRunTimeout(cfg.RunTimeout),
		)
		s.dispatch = s.queue
	} else {
		s.dispatch = match.NewSyncDispatcher(s.orch, log.Named("dispatch"))
	}

	s.registry = job.NewRegistry(jobs, authz, s.dispatch, pub, log.Named("registry"))
	s.query = match.NewQueryService(jobs, candidates, matches, counts, authz, cfg.PageMaxSize, log.Named("query"))
	return s, nil
}
