// Command runtimed is the sandboxed component runtime's bootstrap
// binary: it wires the actor system, component registry, broker, storage
// backend, and lifecycle registry together, loads every component
// manifest found under -components, and blocks until SIGINT/SIGTERM.
package main

import (
	"context"
	"flag"
	"io"
	"log"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"github.com/btcsuite/btclog/v2"

	"github.com/roasbeef/substrate-rt/internal/actorcore"
	"github.com/roasbeef/substrate-rt/internal/broker"
	"github.com/roasbeef/substrate-rt/internal/build"
	"github.com/roasbeef/substrate-rt/internal/capability"
	"github.com/roasbeef/substrate-rt/internal/component"
	"github.com/roasbeef/substrate-rt/internal/lifecycle"
	"github.com/roasbeef/substrate-rt/internal/middleware"
	"github.com/roasbeef/substrate-rt/internal/registry"
	"github.com/roasbeef/substrate-rt/internal/runtime"
	"github.com/roasbeef/substrate-rt/internal/storage"
)

func main() {
	var (
		dbPath         = flag.String("db", "~/.runtimed/storage.db", "Path to the SQLite-backed component storage database")
		componentsDir  = flag.String("components", "", "Directory of component.toml manifests (optionally paired with a .wasm file of the same name); empty disables component loading")
		useWasmer      = flag.Bool("wasmer", false, "Use the wasmer-go runtime engine instead of the no-op stub")
		logDir         = flag.String("log-dir", "~/.runtimed/logs", "Directory for log files (empty to disable file logging)")
		maxLogFiles    = flag.Int("max-log-files", build.DefaultMaxLogFiles, "Maximum number of rotated log files to keep")
		maxLogFileSize = flag.Int("max-log-file-size", build.DefaultMaxLogFileSize, "Maximum log file size in MB before rotation")
	)
	flag.Parse()

	dbPathExpanded := expandHome(*dbPath)
	logDirExpanded := expandHome(*logDir)

	var logRotator *build.RotatingLogWriter
	if logDirExpanded != "" {
		logRotator = build.NewRotatingLogWriter()
		err := logRotator.InitLogRotator(&build.LogRotatorConfig{
			LogDir:         logDirExpanded,
			MaxLogFiles:    *maxLogFiles,
			MaxLogFileSize: *maxLogFileSize,
		})
		if err != nil {
			log.Printf("Failed to init log rotator: %v (continuing without file logging)", err)
			logRotator = nil
		} else {
			defer logRotator.Close()

			multiWriter := io.MultiWriter(os.Stderr, logRotator)
			log.SetOutput(multiWriter)
			log.SetFlags(log.LstdFlags)
		}
	}

	var handlers []btclog.Handler
	handlers = append(handlers, btclog.NewDefaultHandler(os.Stderr))
	if logRotator != nil {
		handlers = append(handlers, btclog.NewDefaultHandler(logRotator))
		log.Printf("Log file rotation enabled: dir=%s, max_files=%d, max_size=%dMB",
			logDirExpanded, *maxLogFiles, *maxLogFileSize)
	}

	combined := build.NewHandlerSet(handlers...)
	baseLogger := btclog.NewSLogger(combined)

	actorcore.UseLogger(baseLogger.WithPrefix("ACTR"))
	runtime.UseLogger(baseLogger.WithPrefix("RNTM"))
	component.UseLogger(baseLogger.WithPrefix("COMP"))
	storage.UseLogger(baseLogger.WithPrefix("STOR"))
	lifecycle.UseLogger(baseLogger.WithPrefix("LIFE"))
	middleware.UseLogger(baseLogger.WithPrefix("MDWR"))

	log.Printf("runtimed starting, storage=%s components=%s", dbPathExpanded, *componentsDir)

	store, err := storage.NewSqliteBackend(storage.SqliteConfig{DatabaseFileName: dbPathExpanded})
	if err != nil {
		log.Fatalf("Failed to open storage backend: %v", err)
	}
	defer store.Close()

	sys := actorcore.NewSystem(actorcore.DefaultSystemConfig())
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()

		if err := sys.Shutdown(shutdownCtx); err != nil {
			log.Printf("Actor system shutdown incomplete: %v (some goroutines may have leaked)", err)
		}
	}()

	var engine runtime.Engine
	if *useWasmer {
		engine = runtime.NewWasmerEngine()
	} else {
		engine = runtime.NewNoopEngine()
	}

	host := &component.Host{
		Sys:      sys,
		Registry: registry.New(),
		Broker:   broker.New(),
		Engine:   engine,
		Storage:  store,
	}

	lifecycleReg := lifecycle.NewRegistry()

	// The diagnostic pipeline wraps each component.Spawn call that
	// loadComponents makes with logging middleware; a single attempt,
	// no retry.
	diagnostics := middleware.NewPipeline(middleware.RetryPolicy{MaxAttempts: 1})
	diagnostics.Use(middleware.NewLoggingMiddleware(10))

	if *componentsDir != "" {
		if err := loadComponents(host, lifecycleReg, diagnostics, *componentsDir); err != nil {
			log.Fatalf("Failed to load components: %v", err)
		}
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		sig := <-sigCh
		log.Printf("Received %v, initiating graceful shutdown (send again to force exit)...", sig)
		cancel()

		sig = <-sigCh
		log.Printf("Received %v again, forcing immediate exit", sig)
		os.Exit(1)
	}()

	log.Println("runtimed running, waiting for signal")
	<-ctx.Done()
	log.Println("runtimed shutting down")
}

// loadComponents walks dir for "*.toml" manifests, pairs each with a
// same-stem ".wasm" file if present (without one, LoadInto is skipped and
// the component runs in stub mode, still recorded as started),
// grants exactly the capabilities the manifest declares it wants (this
// bootstrap binary is a single-operator trust boundary, not a capability
// review tool — spec's out-of-scope "control CLI" is where an operator
// would curate grants independently of a manifest's own wants), and
// registers each with lifecycleReg before spawning.
func loadComponents(
	host *component.Host, lifecycleReg *lifecycle.Registry,
	diagnostics *middleware.Pipeline, dir string,
) error {

	entries, err := os.ReadDir(dir)
	if err != nil {
		return err
	}

	for _, entry := range entries {
		if entry.IsDir() || !strings.HasSuffix(entry.Name(), ".toml") {
			continue
		}

		manifestPath := filepath.Join(dir, entry.Name())
		data, err := os.ReadFile(manifestPath)
		if err != nil {
			return err
		}

		manifest, err := component.ParseManifest(data)
		if err != nil {
			return err
		}

		id := actorcore.NewComponentID(manifest.Name)

		grants, err := grantsFromManifest(manifest)
		if err != nil {
			return err
		}

		fsm, err := lifecycleReg.Register(id)
		if err != nil {
			return err
		}

		wasmPath := strings.TrimSuffix(manifestPath, ".toml") + ".wasm"
		wasmBytes, err := os.ReadFile(wasmPath)
		if err != nil {
			log.Printf("No WASM file at %s, spawning %s in stub mode", wasmPath, manifest.Name)
		}

		if err := fsm.ProcessEvent(lifecycle.InstallRequestedEvent{
			Source: lifecycle.FileSource{Path: manifestPath},
		}, time.Now()); err != nil {
			return err
		}
		if err := fsm.ProcessEvent(lifecycle.InstalledEvent{
			Version: lifecycle.VersionInfo{Version: manifest.Version},
		}, time.Now()); err != nil {
			return err
		}

		spawnOp := middleware.Operation{
			Name:     "runtimed.spawn",
			Resource: id.String(),
			Kind:     capability.KindTopic,
			Action:   capability.ActionExecute,
		}
		handle, err := middleware.Execute(
			context.Background(), diagnostics, spawnOp,
			func(context.Context) (*component.Handle, error) {
				return component.Spawn(host, id, manifest, grants)
			},
		)
		if err != nil {
			return err
		}

		if err := fsm.ProcessEvent(lifecycle.StartRequestedEvent{}, time.Now()); err != nil {
			return err
		}

		if len(wasmBytes) > 0 {
			if err := handle.Actor.LoadInto(wasmBytes); err != nil {
				log.Printf("Failed to load %s: %v", manifest.Name, err)
				_ = fsm.ProcessEvent(lifecycle.FailedEvent{Reason: err.Error()}, time.Now())
				continue
			}
		}

		if err := fsm.ProcessEvent(lifecycle.StartedEvent{}, time.Now()); err != nil {
			return err
		}

		log.Printf("Loaded component %q (version=%s)", manifest.Name, manifest.Version)
	}

	return nil
}

// grantsFromManifest turns a manifest's declared WantsCapabilities into
// an actual capability.Set. See loadComponents' doc comment for the
// trust model this implies.
func grantsFromManifest(manifest component.Manifest) (capability.Set, error) {
	grants := make(capability.Set, 0, len(manifest.WantsCapabilities))

	for _, want := range manifest.WantsCapabilities {
		kind, pattern, action, err := component.ParseCapabilityWant(want)
		if err != nil {
			return nil, err
		}

		grants = append(grants, capability.New(kind, pattern, action))
	}

	return grants, nil
}

func expandHome(path string) string {
	expanded := os.ExpandEnv(path)
	if expanded == path && len(path) > 0 && path[0] == '~' {
		home, err := os.UserHomeDir()
		if err != nil {
			log.Fatalf("Failed to get home directory: %v", err)
		}
		expanded = home + path[1:]
	}
	return expanded
}
