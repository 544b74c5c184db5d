package main

import (
	"context"
	"errors"
	"io"
	"testing"
	"time"

	"github.com/angelmondragon/lms-notifications/pkg/logger"
)

type pingStub struct{ err error }

func (p pingStub) Ping(context.Context) error { return p.err }

type busStub struct {
	started, stopped bool
}

func (b *busStub) Start(context.Context) error {
	b.started = true
	return nil
}

func (b *busStub) Shutdown(context.Context) error {
	b.stopped = true
	return nil
}

type runnerFunc func(ctx context.Context) error

func (f runnerFunc) Run(ctx context.Context) error { return f(ctx) }

func testService(t *testing.T, redis, ps pinger, bus lifecycle, consumer runner) *Service {
	t.Helper()
	svc, err := NewService(ServiceParams{
		Logger:   logger.New(logger.Options{ServiceName: "test", Output: io.Discard}),
		Redis:    redis,
		PubSub:   ps,
		Bus:      bus,
		Consumer: consumer,
	})
	if err != nil {
		t.Fatalf("NewService: %v", err)
	}
	return svc
}

func TestRunStopsOnCancel(t *testing.T) {
	bus := &busStub{}
	svc := testService(t, pingStub{}, pingStub{}, bus, runnerFunc(func(ctx context.Context) error {
		<-ctx.Done()
		return nil
	}))

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	if err := svc.Run(ctx); !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("expected deadline error, got %v", err)
	}
	if !bus.started || !bus.stopped {
		t.Fatalf("expected bus started and stopped, got %+v", bus)
	}
}

func TestRunFailsFastOnUnreadyDependency(t *testing.T) {
	bus := &busStub{}
	svc := testService(t, pingStub{}, pingStub{err: errors.New("permission denied")}, bus, runnerFunc(func(context.Context) error {
		t.Fatalf("consumer should not start")
		return nil
	}))

	if err := svc.Run(context.Background()); err == nil {
		t.Fatalf("expected readiness failure")
	}
	if bus.started {
		t.Fatalf("bus should not start before readiness")
	}
}

func TestRunReturnsConsumerError(t *testing.T) {
	boom := errors.New("subscription deleted")
	svc := testService(t, pingStub{}, pingStub{}, &busStub{}, runnerFunc(func(context.Context) error {
		return boom
	}))

	if err := svc.Run(context.Background()); !errors.Is(err, boom) {
		t.Fatalf("expected consumer error, got %v", err)
	}
}
