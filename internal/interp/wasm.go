package interp

import (
	"bytes"
	"context"
	"crypto/rand"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/tetratelabs/wazero"
	"github.com/tetratelabs/wazero/imports/wasi_snapshot_preview1"
	"github.com/tetratelabs/wazero/sys"
	"golang.org/x/sync/semaphore"
	"pkt.systems/pslog"
)

// driver runs the program passed as argv[1]. Exceptions are printed the same
// way the browser output panel shows them.
const driver = `import sys
_src = sys.argv[1]
try:
    exec(compile(_src, "<playground>", "exec"), {"__name__": "__main__"})
except Exception as e:
    print(f"Error: {e}")
`

// WasmOptions configures a WasmRuntime.
type WasmOptions struct {
	// StdlibDir is the host directory holding the python standard library.
	// It is mounted read-only at GuestLibDir.
	StdlibDir   string
	GuestLibDir string
	// CacheDir stores compiled machine code across restarts. Empty disables it.
	CacheDir      string
	RunTimeout    time.Duration
	MaxConcurrent int64
	Env           map[string]string
}

// DefaultWasmOptions returns the options used when none are configured.
func DefaultWasmOptions() WasmOptions {
	return WasmOptions{
		GuestLibDir:   "/usr/local/lib",
		RunTimeout:    10 * time.Second,
		MaxConcurrent: 4,
	}
}

// WasmRuntime runs a WASI build of CPython with wazero. The module is compiled
// once and instantiated per run, so runs never share interpreter state.
type WasmRuntime struct {
	runtime  wazero.Runtime
	cache    wazero.CompilationCache
	compiled wazero.CompiledModule
	opts     WasmOptions
	sem      *semaphore.Weighted
}

// NewWasmRuntime compiles binary, which must be a WASI command module.
func NewWasmRuntime(ctx context.Context, binary []byte, opts WasmOptions) (*WasmRuntime, error) {
	defaults := DefaultWasmOptions()
	if opts.GuestLibDir == "" {
		opts.GuestLibDir = defaults.GuestLibDir
	}
	if opts.MaxConcurrent <= 0 {
		opts.MaxConcurrent = defaults.MaxConcurrent
	}

	cfg := wazero.NewRuntimeConfig().WithCloseOnContextDone(true)
	var cache wazero.CompilationCache
	if opts.CacheDir != "" {
		c, err := wazero.NewCompilationCacheWithDir(opts.CacheDir)
		if err != nil {
			return nil, fmt.Errorf("compilation cache %s: %w", opts.CacheDir, err)
		}
		cache = c
		cfg = cfg.WithCompilationCache(cache)
	}

	r := wazero.NewRuntimeWithConfig(ctx, cfg)
	fail := func(err error) (*WasmRuntime, error) {
		_ = r.Close(ctx)
		if cache != nil {
			_ = cache.Close(ctx)
		}
		return nil, err
	}

	if _, err := wasi_snapshot_preview1.Instantiate(ctx, r); err != nil {
		return fail(fmt.Errorf("failed to instantiate WASI: %w", err))
	}

	compiled, err := r.CompileModule(ctx, binary)
	if err != nil {
		return fail(fmt.Errorf("failed to compile interpreter module: %w", err))
	}

	pslog.Ctx(ctx).Debug("interp.wasm.compiled", "bytes", len(binary), "stdlib", opts.StdlibDir)

	return &WasmRuntime{
		runtime:  r,
		cache:    cache,
		compiled: compiled,
		opts:     opts,
		sem:      semaphore.NewWeighted(opts.MaxConcurrent),
	}, nil
}

func (w *WasmRuntime) moduleConfig(stdout, stderr *bytes.Buffer, src string) wazero.ModuleConfig {
	cfg := wazero.NewModuleConfig().
		// An empty name lets several instances live side by side.
		WithName("").
		WithStdout(stdout).
		WithStderr(stderr).
		WithArgs("python", "-c", driver, src).
		WithSysWalltime().
		WithSysNanotime().
		WithRandSource(rand.Reader).
		WithEnv("PYTHONDONTWRITEBYTECODE", "1").
		WithEnv("PYTHONUNBUFFERED", "1")

	if w.opts.StdlibDir != "" {
		cfg = cfg.WithFSConfig(wazero.NewFSConfig().WithReadOnlyDirMount(w.opts.StdlibDir, w.opts.GuestLibDir))
	}
	for k, v := range w.opts.Env {
		cfg = cfg.WithEnv(k, v)
	}
	return cfg
}

// Exec runs src in a fresh instance. stdout is captured for this run only.
func (w *WasmRuntime) Exec(ctx context.Context, src string) (Execution, error) {
	if err := ctx.Err(); err != nil {
		return Execution{}, err
	}
	if err := w.sem.Acquire(ctx, 1); err != nil {
		return Execution{}, err
	}
	defer w.sem.Release(1)

	runCtx := ctx
	if w.opts.RunTimeout > 0 {
		var cancel context.CancelFunc
		runCtx, cancel = context.WithTimeout(ctx, w.opts.RunTimeout)
		defer cancel()
	}

	var stdout, stderr bytes.Buffer
	mod, err := w.runtime.InstantiateModule(runCtx, w.compiled, w.moduleConfig(&stdout, &stderr, src))
	if mod != nil {
		_ = mod.Close(ctx)
	}

	exec := Execution{Stdout: stdout.String()}
	if err == nil {
		return exec, nil
	}

	// The caller gave up; that is a host error, not the program's.
	if ctx.Err() != nil {
		return Execution{}, ctx.Err()
	}

	var exitErr *sys.ExitError
	if errors.As(err, &exitErr) {
		switch exitErr.ExitCode() {
		case 0:
			return exec, nil
		case sys.ExitCodeDeadlineExceeded:
			exec.Failure = fmt.Sprintf("execution timed out after %s", w.opts.RunTimeout)
		default:
			exec.Failure = lastLine(stderr.String())
			if exec.Failure == "" {
				exec.Failure = fmt.Sprintf("interpreter exited with code %d", exitErr.ExitCode())
			}
		}
		pslog.Ctx(ctx).Debug("interp.wasm.exit", "code", exitErr.ExitCode())
		return exec, nil
	}

	// A trap inside the interpreter: report the first line of wazero's message.
	exec.Failure = firstLine(err.Error())
	pslog.Ctx(ctx).Warn("interp.wasm.trap", "err", exec.Failure)
	return exec, nil
}

// Close releases the compiled module and the runtime.
func (w *WasmRuntime) Close(ctx context.Context) error {
	err := w.runtime.Close(ctx)
	if w.cache != nil {
		if cerr := w.cache.Close(ctx); err == nil {
			err = cerr
		}
	}
	return err
}

func firstLine(s string) string {
	s = strings.TrimSpace(s)
	if i := strings.IndexByte(s, '\n'); i >= 0 {
		return s[:i]
	}
	return s
}

// lastLine picks the exception line out of a python traceback.
func lastLine(s string) string {
	s = strings.TrimSpace(s)
	if i := strings.LastIndexByte(s, '\n'); i >= 0 {
		return s[i+1:]
	}
	return s
}
