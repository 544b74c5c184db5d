package main

import (
	"context"
	"errors"
	"fmt"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/angelmondragon/lms-notifications/pkg/logger"
)

const heartbeatInterval = time.Minute

type pinger interface {
	Ping(ctx context.Context) error
}

type lifecycle interface {
	Start(ctx context.Context) error
	Shutdown(ctx context.Context) error
}

type runner interface {
	Run(ctx context.Context) error
}

type ServiceParams struct {
	Logger   *logger.Logger
	Redis    pinger
	PubSub   pinger
	Bus      lifecycle
	Consumer runner
}

// Service runs the domain event consumer once its dependencies answer.
type Service struct {
	logg     *logger.Logger
	redis    pinger
	pubsub   pinger
	bus      lifecycle
	consumer runner
}

func NewService(params ServiceParams) (*Service, error) {
	if params.Logger == nil {
		return nil, errors.New("logger is required")
	}
	if params.Redis == nil {
		return nil, errors.New("redis client is required")
	}
	if params.PubSub == nil {
		return nil, errors.New("pubsub client is required")
	}
	if params.Bus == nil {
		return nil, errors.New("realtime bus is required")
	}
	if params.Consumer == nil {
		return nil, errors.New("domain event consumer is required")
	}
	return &Service{
		logg:     params.Logger,
		redis:    params.Redis,
		pubsub:   params.PubSub,
		bus:      params.Bus,
		consumer: params.Consumer,
	}, nil
}

func (s *Service) ensureReadiness(ctx context.Context) error {
	if err := pingDependency(ctx, s.logg, "redis", s.redis.Ping); err != nil {
		return err
	}
	if err := pingDependency(ctx, s.logg, "pubsub", s.pubsub.Ping); err != nil {
		return err
	}
	s.logg.Info(ctx, "all worker dependencies are ready")
	return nil
}

func pingDependency(ctx context.Context, logg *logger.Logger, name string, fn func(context.Context) error) error {
	if err := fn(ctx); err != nil {
		logg.Error(ctx, fmt.Sprintf("%s ping failed", name), err)
		return fmt.Errorf("%s ping failed: %w", name, err)
	}
	return nil
}

// Run blocks until ctx is canceled or the consumer fails.
func (s *Service) Run(ctx context.Context) error {
	if err := s.ensureReadiness(ctx); err != nil {
		return err
	}
	if err := s.bus.Start(ctx); err != nil {
		return fmt.Errorf("starting realtime bus: %w", err)
	}
	defer func() {
		if err := s.bus.Shutdown(context.WithoutCancel(ctx)); err != nil {
			s.logg.Error(ctx, "realtime bus shutdown failed", err)
		}
	}()

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return s.consumer.Run(gctx)
	})
	g.Go(func() error {
		ticker := time.NewTicker(heartbeatInterval)
		defer ticker.Stop()
		for {
			select {
			case <-gctx.Done():
				return nil
			case <-ticker.C:
				s.logg.Debug(gctx, "worker.heartbeat")
			}
		}
	})

	err := g.Wait()
	if ctx.Err() != nil {
		s.logg.Info(ctx, "worker context canceled")
		return ctx.Err()
	}
	if err == nil {
		return errors.New("domain event consumer exited")
	}
	return err
}
