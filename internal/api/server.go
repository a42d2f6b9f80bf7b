package api

import (
	"context"
	"log"
	"os"
	"strings"

	"golang.org/x/time/rate"

	"rasd/internal/auth"
	"rasd/internal/config"
	"rasd/internal/opt"
	"rasd/internal/pipeline"
	"rasd/internal/store"
	"rasd/internal/webhooks"
)

type Server struct {
	Store   store.Store
	Cfg     config.Config
	Pipe    *pipeline.Pipeline
	Pub     *webhooks.Publisher
	Auth    *auth.Verifier
	Broker  EventBroker
	limiter *rate.Limiter
}

// NewServer wires the service from the environment. If DATABASE_URL is
// unset, uses the in-memory store; if SAMPLER_URL is unset, uses the local
// simulated-annealing sampler.
func NewServer() (*Server, error) {
	cfg, err := config.FromEnv()
	if err != nil {
		return nil, err
	}

	var s store.Store
	if dsn := strings.TrimSpace(os.Getenv("DATABASE_URL")); dsn == "" {
		s = store.NewMemory()
	} else {
		sp, err := store.NewPostgres(dsn)
		if err != nil {
			return nil, err
		}
		if os.Getenv("DB_MIGRATE") != "false" {
			if err := sp.Migrate(context.Background()); err != nil {
				return nil, err
			}
		}
		s = sp
	}

	var sampler opt.Sampler
	if url := strings.TrimSpace(os.Getenv("SAMPLER_URL")); url != "" {
		sampler = opt.NewRemoteSampler(url)
	} else {
		sampler = opt.LocalSampler{}
	}

	var broker EventBroker
	if os.Getenv("REDIS_URL") != "" {
		if rb, err := NewRedisBroker(); err == nil {
			broker = rb
		} else {
			log.Printf("redis broker unavailable, using in-memory: %v", err)
			broker = NewBroker()
		}
	} else {
		broker = NewBroker()
	}

	return &Server{
		Store:  s,
		Cfg:    cfg,
		Pipe:   &pipeline.Pipeline{Cfg: cfg, Sampler: sampler},
		Pub:    webhooks.NewPublisher(s),
		Auth:   auth.NewVerifierFromEnv(),
		Broker: broker,
		// Planning cycles are heavyweight; one per second with a small burst
		// is plenty for any operator or scheduler.
		limiter: rate.NewLimiter(rate.Limit(1), 3),
	}, nil
}

// NewWebhookWorker creates the background delivery worker.
func (s *Server) NewWebhookWorker() *webhooks.Worker {
	return webhooks.NewWorker(s.Store)
}
