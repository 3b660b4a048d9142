package pagi

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestLifespanStartupAndShutdownSucceed(t *testing.T) {
	s := New()
	var sawStartup, sawShutdown bool

	s.App = func(ctx context.Context, scope Scope, receive Receive, send Send) error {
		for {
			ev, err := receive(ctx)
			if err != nil {
				return err
			}
			switch ev.Type {
			case EventLifespanStartup:
				sawStartup = true
				if err := send(ctx, LifespanStartupCompleteEvent()); err != nil {
					return err
				}
			case EventLifespanShutdown:
				sawShutdown = true
				return send(ctx, LifespanShutdownCompleteEvent())
			}
		}
	}

	ctx := context.Background()
	state, err := s.lifespan.runStartup(ctx)
	assert.NoError(t, err)
	assert.NotNil(t, state)
	assert.True(t, sawStartup)

	err = s.lifespan.runShutdown(ctx)
	assert.NoError(t, err)
	assert.True(t, sawShutdown)
}

func TestLifespanStartupFailurePropagates(t *testing.T) {
	s := New()
	s.App = func(ctx context.Context, scope Scope, receive Receive, send Send) error {
		ev, err := receive(ctx)
		if err != nil {
			return err
		}
		if ev.Type == EventLifespanStartup {
			return send(ctx, LifespanStartupFailedEvent("boom"))
		}
		return nil
	}

	_, err := s.lifespan.runStartup(context.Background())
	assert.Error(t, err)
}

func TestLifespanUnsupportedAppDegradesToNoOp(t *testing.T) {
	s := New()
	s.App = func(ctx context.Context, scope Scope, receive Receive, send Send) error {
		_, err := receive(ctx)
		if err != nil {
			return err
		}
		return newError(KindAppRuntime, "I don't know lifespan", nil)
	}

	state, err := s.lifespan.runStartup(context.Background())
	assert.NoError(t, err)
	assert.NotNil(t, state)
	assert.True(t, s.lifespan.unsupported)

	assert.NoError(t, s.lifespan.runShutdown(context.Background()))
}

func TestLifespanRunShutdownRespectsContextDeadline(t *testing.T) {
	s := New()
	started := make(chan struct{})
	s.App = func(ctx context.Context, scope Scope, receive Receive, send Send) error {
		for {
			ev, err := receive(ctx)
			if err != nil {
				return err
			}
			if ev.Type == EventLifespanStartup {
				close(started)
				if err := send(ctx, LifespanStartupCompleteEvent()); err != nil {
					return err
				}
			}
			if ev.Type == EventLifespanShutdown {
				<-ctx.Done() // never acknowledges shutdown
				return ctx.Err()
			}
		}
	}

	_, err := s.lifespan.runStartup(context.Background())
	assert.NoError(t, err)
	<-started

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	err = s.lifespan.runShutdown(ctx)
	assert.Error(t, err)
}
