// Package daemon wires the node's components together and drives its
// lifecycle: config load, subsystem runtime start, tiered store and
// CRDT context store, capability registry and MCP client pool, the
// tool-chain engine, the variety/gap controller, and the HTTP status
// server.
package daemon

import (
	"context"
	"fmt"
	"log"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/vsmcore/vsmcore/internal/api"
	"github.com/vsmcore/vsmcore/internal/bus"
	"github.com/vsmcore/vsmcore/internal/capability"
	"github.com/vsmcore/vsmcore/internal/config"
	"github.com/vsmcore/vsmcore/internal/crdt"
	"github.com/vsmcore/vsmcore/internal/errs"
	"github.com/vsmcore/vsmcore/internal/hlc"
	_ "github.com/vsmcore/vsmcore/internal/infra/metrics"
	"github.com/vsmcore/vsmcore/internal/infra/registrydb"
	"github.com/vsmcore/vsmcore/internal/infra/store"
	"github.com/vsmcore/vsmcore/internal/mcpclient"
	"github.com/vsmcore/vsmcore/internal/toolchain"
	"github.com/vsmcore/vsmcore/internal/variety"
	"github.com/vsmcore/vsmcore/internal/vsm"
)

// Daemon is the node's runtime: it owns every long-lived component and
// the HTTP status server.
type Daemon struct {
	Config config.Config

	Clock      *hlc.Clock
	Store      *store.Store
	CRDT       *crdt.Store
	Bus        *bus.Bus
	Runtime    *vsm.Runtime
	Registry   *capability.Registry
	Chains     *toolchain.Engine
	MCPPool    *mcpclient.Pool
	Variety    *variety.Controller
	Server     *api.Server
	RegistryDB *registrydb.DB

	cancel context.CancelFunc
}

// New loads config and wires a Daemon.
func New() (*Daemon, error) {
	cfg, err := config.LoadConfig()
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}
	return NewWithConfig(cfg)
}

// NewWithConfig wires a Daemon from an already-loaded configuration.
func NewWithConfig(cfg config.Config) (*Daemon, error) {
	nodeID := cfg.Node.ID
	if nodeID == "" {
		nodeID = "node-local"
	}

	clock := hlc.New(nodeID)

	st, err := store.Open(cfg.StoreConfig())
	if err != nil {
		return nil, fmt.Errorf("open tiered store: %w", err)
	}

	b := bus.New(cfg.BusConfig())
	crdtStore := crdt.NewStore(nodeID, clock, b, st)

	rt := vsm.NewRuntime(b, cfg.Runtime.ScanningIntervalMs)

	pool := mcpclient.NewPool()
	for _, sc := range cfg.MCPServerConfigs() {
		transport, err := mcpclient.Dial(sc)
		if err != nil {
			errs.Log(slog.Default(), errs.New(errs.KindTransientTransport, err, map[string]string{"kind": string(sc.Transport)}), sc.Name)
			continue
		}
		client := mcpclient.NewClient(sc, transport)
		if err := client.Initialize(); err != nil {
			errs.Log(slog.Default(), err, sc.Name)
		}
		pool.Add(client)
	}

	regDB, err := registrydb.Open(cfg.Store.RegistryPath)
	if err != nil {
		return nil, fmt.Errorf("open registry db: %w", err)
	}

	registry := capability.NewRegistry(pool).WithRecorder(regDB)
	if err := reacquirePersistedCapabilities(registry, regDB); err != nil {
		errs.Log(slog.Default(), err, nodeID)
	}
	chains := toolchain.NewEngine(registryInvoker{registry})

	vc := variety.NewController(cfg.VarietyConfig(), variety.Sources{
		OperationalVariety:   func() float64 { return float64(len(registry.ListCapabilities(capability.Filters{}))) },
		EnvironmentalVariety: func() float64 { return float64(len(registry.ListCapabilities(capability.Filters{Source: "external"}))) },
		StateDistribution:    func() map[string]int { return nil },
	}, runtimeScaler{rt}, registryAcquirer{registry}, algedonicPublisher{b, clock, nodeID})

	srv := api.NewServer(rt, registry, chains, vc, st)
	if cfg.Telemetry.Prometheus {
		srv.EnableMetrics()
	}

	return &Daemon{
		Config:     cfg,
		Clock:      clock,
		Store:      st,
		CRDT:       crdtStore,
		Bus:        b,
		Runtime:    rt,
		Registry:   registry,
		Chains:     chains,
		MCPPool:    pool,
		Variety:    vc,
		Server:     srv,
		RegistryDB: regDB,
	}, nil
}

// reacquirePersistedCapabilities re-registers externally-sourced
// capabilities recorded before a restart. Local capabilities are
// re-registered by the code that builds them, since a Handler func
// isn't data; only external capabilities can be recovered purely from
// the registry db, by re-running the same acquisition flow that
// registered them the first time.
func reacquirePersistedCapabilities(registry *capability.Registry, regDB *registrydb.DB) error {
	records, err := regDB.List()
	if err != nil {
		return errs.New(errs.KindFatal, fmt.Errorf("list persisted capabilities: %w", err), nil)
	}
	for _, rec := range records {
		if rec.SourceType != "external" {
			continue
		}
		id, err := registry.RegisterCapability(capability.Capability{
			ID:         rec.ID,
			Name:       rec.Name,
			Kind:       capability.Kind(rec.Kind),
			Source:     capability.ExternalSource(rec.SourceServer),
			Schema:     rec.Schema,
			Metadata:   rec.Metadata,
			ServerDesc: rec.ServerDesc,
		})
		if err != nil {
			errs.Log(slog.Default(), err, rec.Name)
			continue
		}
		if _, err := registry.AcquireCapability(id); err != nil {
			errs.Log(slog.Default(), err, rec.Name)
		}
	}
	return nil
}

// Serve starts all background loops and the HTTP server, blocking until
// shutdown.
func (d *Daemon) Serve(ctx context.Context) error {
	ctx, cancel := context.WithCancel(ctx)
	d.cancel = cancel

	d.Runtime.Start(ctx)
	go d.CRDT.RunAntiEntropy(ctx, d.Config.AntiEntropyInterval())
	go d.Variety.Run(ctx)
	go d.Store.Run(ctx.Done())

	addr := fmt.Sprintf("%s:%d", d.Config.API.Host, d.Config.API.Port)
	httpServer := &http.Server{
		Addr:         addr,
		Handler:      d.Server.Handler(),
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  2 * time.Minute,
	}

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		select {
		case <-sigCh:
		case <-ctx.Done():
		}
		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer shutdownCancel()
		_ = httpServer.Shutdown(shutdownCtx)
		_ = d.Store.Close()
		if d.RegistryDB != nil {
			_ = d.RegistryDB.Close()
		}
	}()

	log.Printf("[daemon] vsmcore serving on http://%s", addr)
	if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return err
	}
	return nil
}

// Close shuts down all daemon resources without waiting for a signal.
func (d *Daemon) Close() {
	if d.cancel != nil {
		d.cancel()
	}
	if d.Store != nil {
		_ = d.Store.Close()
	}
	if d.RegistryDB != nil {
		_ = d.RegistryDB.Close()
	}
}

// registryInvoker adapts capability.Registry's acquisition flow into
// toolchain.Invoker: chain steps name a capability, the invoker looks
// it up and calls its handler, classifying registry/validation errors
// as non-transient and everything else as transient.
type registryInvoker struct {
	reg *capability.Registry
}

func (r registryInvoker) Invoke(source, tool string, args map[string]any) (any, bool, error) {
	for _, cap := range r.reg.ListCapabilities(capability.Filters{}) {
		if cap.Name != tool {
			continue
		}
		if cap.Handler == nil {
			return nil, false, fmt.Errorf("toolchain: capability %q has no handler", cap.Name)
		}
		out, err := cap.Handler(args)
		if errs.KindOf(err) == errs.KindValidationFailed {
			return out, false, err
		}
		return out, err != nil, err
	}
	return nil, false, fmt.Errorf("toolchain: no capability named %q", tool)
}

// runtimeScaler adapts S3's allocation machinery into variety.Scaler.
// Scaling the worker pool means adjusting how much of S3's resource
// budget S1 is allowed to draw on; rebalancing toward adaptive worker
// types means re-running S3's optimizer with an adaptive-weighted
// demand vector.
type runtimeScaler struct {
	rt *vsm.Runtime
}

func (r runtimeScaler) ScaleWorkers(step int) {
	r.rt.S3.Optimize("workers", map[string]float64{"adaptive": float64(step)}, 1.0)
}

func (r runtimeScaler) RebalanceTowardAdaptive() {
	r.rt.S3.Optimize("workers", map[string]float64{"adaptive": 1.0}, 0.5)
}

// registryAcquirer adapts capability.Registry into variety.Acquirer by
// acquiring the earliest-registered still-external capability — the
// registry's own discovery scoring only ranks candidates against a
// concrete requirement, which the controller's gap measurement doesn't
// carry, so acquisition falls back to registration order here.
type registryAcquirer struct {
	reg *capability.Registry
}

func (r registryAcquirer) AcquireBestCapability() error {
	externals := r.reg.ListCapabilities(capability.Filters{Source: "external"})
	if len(externals) == 0 {
		return fmt.Errorf("variety: no external capability available to acquire")
	}
	_, err := r.reg.AcquireCapability(externals[0].ID)
	return err
}

// algedonicPublisher adapts the bus into variety.AlgedonicPublisher.
type algedonicPublisher struct {
	bus    *bus.Bus
	clock  *hlc.Clock
	nodeID string
}

func (p algedonicPublisher) PublishAlgedonic(intensity float64, reason string) error {
	return p.bus.Publish(bus.Envelope{
		Sender:  p.nodeID,
		HLC:     p.clock.Tick(),
		Channel: bus.ChannelAlgedonic,
		Payload: vsm.AlgedonicSignal{Intensity: intensity, Reason: reason},
	})
}
