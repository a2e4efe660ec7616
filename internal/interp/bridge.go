package interp

import (
	"context"
	"errors"
	"strings"
	"sync"
	"time"

	"golang.org/x/sync/singleflight"
	"pkt.systems/pslog"
)

// NoOutput is reported when a run prints nothing.
const NoOutput = "No output"

// DefaultLoadTimeout bounds a single attempt to fetch and initialize the runtime.
const DefaultLoadTimeout = 2 * time.Minute

// State is the lifecycle state of the interpreter.
type State int32

const (
	Unloaded State = iota
	Loading
	Loaded
)

func (s State) String() string {
	switch s {
	case Unloaded:
		return "unloaded"
	case Loading:
		return "loading"
	case Loaded:
		return "loaded"
	default:
		return "unknown"
	}
}

// Execution is the outcome of running one program.
// Failure is set when the program died without reporting its own error.
type Execution struct {
	Stdout  string
	Failure string
}

// Runtime executes python source.
type Runtime interface {
	// Exec runs src with a fresh stdout. Errors raised by the program are
	// reported through the Execution; the error return is for the host.
	Exec(ctx context.Context, src string) (Execution, error)
	Close(ctx context.Context) error
}

// Loader fetches and initializes a Runtime.
type Loader func(ctx context.Context) (Runtime, error)

// Bridge loads the interpreter lazily and runs programs against it.
// Concurrent callers share a single in-flight load.
type Bridge struct {
	loader      Loader
	loadTimeout time.Duration
	group       singleflight.Group

	mu      sync.RWMutex
	state   State
	runtime Runtime
	loadErr error
}

// BridgeOption configures a Bridge.
type BridgeOption func(*Bridge)

// WithLoadTimeout overrides DefaultLoadTimeout.
func WithLoadTimeout(d time.Duration) BridgeOption {
	return func(b *Bridge) {
		if d > 0 {
			b.loadTimeout = d
		}
	}
}

// NewBridge creates an unloaded bridge.
func NewBridge(loader Loader, opts ...BridgeOption) *Bridge {
	b := &Bridge{loader: loader, loadTimeout: DefaultLoadTimeout}
	for _, opt := range opts {
		opt(b)
	}
	return b
}

// State returns the current lifecycle state.
func (b *Bridge) State() State {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.state
}

// LastError returns the error of the most recent failed load, if the bridge is unloaded because of it.
func (b *Bridge) LastError() error {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.loadErr
}

// EnsureLoaded loads the runtime if needed. A load already in flight is joined
// instead of started again. If ctx ends first the load keeps going for the
// benefit of later callers.
func (b *Bridge) EnsureLoaded(ctx context.Context) error {
	if b.State() == Loaded {
		return nil
	}

	log := pslog.Ctx(ctx)
	ch := b.group.DoChan("load", func() (any, error) {
		return nil, b.load(pslog.ContextWithLogger(context.Background(), log))
	})

	select {
	case res := <-ch:
		return res.Err
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (b *Bridge) load(ctx context.Context) error {
	b.mu.Lock()
	if b.state == Loaded {
		b.mu.Unlock()
		return nil
	}
	b.state = Loading
	b.loadErr = nil
	b.mu.Unlock()

	log := pslog.Ctx(ctx)
	log.Info("interp.load.start")
	start := time.Now()

	ctx, cancel := context.WithTimeout(ctx, b.loadTimeout)
	defer cancel()

	rt, err := b.loader(ctx)
	if err == nil && rt == nil {
		err = errors.New("loader returned no runtime")
	}

	b.mu.Lock()
	defer b.mu.Unlock()
	if err != nil {
		var loadErr *LoadError
		if !errors.As(err, &loadErr) {
			err = &LoadError{Err: err}
		}
		b.state = Unloaded
		b.loadErr = err
		log.Error("interp.load.failed", "err", err, "elapsed", time.Since(start))
		return err
	}
	b.state = Loaded
	b.runtime = rt
	log.Info("interp.load.done", "elapsed", time.Since(start))
	return nil
}

// Run executes src and returns its printed output, formatted by FormatOutput.
// An error is returned only when the runtime could not be loaded or the host gave up on the run.
func (b *Bridge) Run(ctx context.Context, src string) (string, error) {
	if err := b.EnsureLoaded(ctx); err != nil {
		return "", err
	}

	b.mu.RLock()
	rt := b.runtime
	b.mu.RUnlock()
	if rt == nil {
		return "", &LoadError{Err: errors.New("runtime was closed")}
	}

	exec, err := rt.Exec(ctx, src)
	if err != nil {
		return "", err
	}
	return FormatOutput(exec), nil
}

// Close releases the runtime and returns the bridge to the unloaded state.
func (b *Bridge) Close(ctx context.Context) error {
	b.mu.Lock()
	rt := b.runtime
	b.runtime = nil
	b.state = Unloaded
	b.mu.Unlock()

	if rt == nil {
		return nil
	}
	return rt.Close(ctx)
}

// FormatOutput joins captured stdout with a failure line. Empty output becomes NoOutput.
func FormatOutput(exec Execution) string {
	out := exec.Stdout
	if exec.Failure != "" {
		if out != "" && !strings.HasSuffix(out, "\n") {
			out += "\n"
		}
		out += "Error: " + exec.Failure
	}
	if out == "" {
		return NoOutput
	}
	return out
}
