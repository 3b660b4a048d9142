package pagi

import "context"

// lifespanManager drives the single, server-lifetime-spanning lifespan
// scope of spec.md §3.7: one `App` invocation receives `lifespan.startup`
// at boot and `lifespan.shutdown` at drain, sharing the `State` mapping
// handed to every other scope. If the application declines lifespan
// support (an error on the very first event), the manager degrades to a
// no-op for the rest of the process's life.
type lifespanManager struct {
	s     *Server
	state State

	unsupported bool

	startupSent  bool
	shutdownSent bool

	events         chan Event
	startupResult  chan error
	shutdownResult chan error
	appDone        chan error
}

// newLifespanManager returns a manager sharing state s.
func newLifespanManager(s *Server) *lifespanManager {
	return &lifespanManager{
		s:              s,
		state:          State{},
		events:         make(chan Event),
		startupResult:  make(chan error, 1),
		shutdownResult: make(chan error, 1),
		appDone:        make(chan error, 1),
	}
}

// runStartup starts the lifespan scope's single `App` invocation, sends
// `lifespan.startup`, and waits for the application's completion or
// failure signal. It returns the shared `State` mapping regardless of
// outcome, since non-lifespan scopes still need a (possibly empty) map.
func (lm *lifespanManager) runStartup(ctx context.Context) (State, error) {
	if lm.s.App == nil {
		lm.unsupported = true
		return lm.state, nil
	}

	scope := newLifespanScope(lm.state, PAGIVersion{
		Version:     "1.0",
		SpecVersion: "1.0",
		IsWorker:    lm.s.isWorker,
		WorkerNum:   lm.s.workerNum,
	})

	go func() {
		err := lm.s.App(ctx, scope, lm.receive, lm.send)
		lm.appDone <- err
	}()

	select {
	case err := <-lm.appDone:
		if isLifespanUnsupported(err) {
			lm.unsupported = true
			return lm.state, nil
		}
		return lm.state, newError(KindLifespan, "lifespan app exited during startup", err)
	case err := <-lm.startupResult:
		if err != nil {
			return lm.state, newError(KindLifespan, "lifespan startup failed", err)
		}
		return lm.state, nil
	}
}

// runShutdown sends `lifespan.shutdown` and waits for the application's
// completion or failure signal, or for ctx to be done. It is a no-op if
// the application declined lifespan support at startup.
func (lm *lifespanManager) runShutdown(ctx context.Context) error {
	if lm.unsupported {
		return nil
	}

	select {
	case lm.events <- LifespanShutdownEvent():
	case err := <-lm.appDone:
		return lifespanAppExitError(err)
	case <-ctx.Done():
		return ctx.Err()
	}

	select {
	case err := <-lm.shutdownResult:
		if err != nil {
			return newError(KindLifespan, "lifespan shutdown failed", err)
		}
		return nil
	case err := <-lm.appDone:
		return lifespanAppExitError(err)
	case <-ctx.Done():
		return ctx.Err()
	}
}

func lifespanAppExitError(err error) error {
	if err == nil {
		return nil
	}
	return newError(KindLifespan, "lifespan app exited unexpectedly", err)
}

// receive implements Receive for the lifespan scope: `lifespan.startup` on
// the first call, `lifespan.shutdown` when runShutdown signals it, and
// blocks otherwise.
func (lm *lifespanManager) receive(ctx context.Context) (Event, error) {
	if !lm.startupSent {
		lm.startupSent = true
		return LifespanStartupEvent(), nil
	}
	select {
	case ev := <-lm.events:
		return ev, nil
	case <-ctx.Done():
		return Event{}, ctx.Err()
	}
}

// send implements Send for the lifespan scope.
func (lm *lifespanManager) send(ctx context.Context, ev Event) error {
	switch ev.Type {
	case EventLifespanStartupComplete:
		lm.startupResult <- nil
	case EventLifespanStartupFailed:
		lm.startupResult <- newError(KindLifespan, ev.Message, nil)
	case EventLifespanShutdownComplete:
		lm.shutdownResult <- nil
	case EventLifespanShutdownFailed:
		lm.shutdownResult <- newError(KindLifespan, ev.Message, nil)
	}
	return nil
}
