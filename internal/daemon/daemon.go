// Package daemon implements the daemon lifecycle manager.
package daemon

import (
	"context"
	"fmt"
	"log/slog"
	"net/netip"
	"os"
	"os/signal"
	"strconv"
	"sync"
	"syscall"
	"time"

	"firestige.xyz/arpguard/internal/alert"
	"firestige.xyz/arpguard/internal/capture"
	"firestige.xyz/arpguard/internal/command"
	"firestige.xyz/arpguard/internal/config"
	"firestige.xyz/arpguard/internal/engine"
	logpkg "firestige.xyz/arpguard/internal/log"
	"firestige.xyz/arpguard/internal/metrics"
	"firestige.xyz/arpguard/internal/proxy"
	"firestige.xyz/arpguard/internal/solicit"
)

const (
	proxyTick     = 10 * time.Millisecond
	gaugeInterval = 5 * time.Second
)

// Daemon manages the arpguard daemon process lifecycle.
type Daemon struct {
	// Configuration
	config     *config.GlobalConfig
	configPath string
	socketPath string
	pidFile    string

	// Packet path
	*stack
	dispatcher *capture.Dispatcher
	prober     *solicit.Prober
	alerts     alert.Publisher
	openLink   func(name string, cfg config.CaptureConfig) (capture.Link, error)

	// Control plane
	cmdHandler    *command.CommandHandler
	udsServer     *command.UDSServer
	kafkaConsumer *command.KafkaCommandConsumer // nil if command channel disabled
	metricsServer *metrics.Server               // nil if metrics disabled

	// Lifecycle management
	mu           sync.Mutex // serializes Reload and SetFlags side effects
	ctx          context.Context
	cancel       context.CancelFunc
	shutdownChan chan struct{}
	sigChan      chan os.Signal
	stopOnce     sync.Once
	started      time.Time
}

// New creates a new Daemon instance. Non-empty socketPath and pidFile
// override the configured control paths.
func New(configPath, socketPath, pidFile string) (*Daemon, error) {
	globalConfig, err := config.Load(configPath)
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}
	return newDaemon(globalConfig, configPath, socketPath, pidFile), nil
}

func newDaemon(cfg *config.GlobalConfig, configPath, socketPath, pidFile string) *Daemon {
	if socketPath == "" {
		socketPath = cfg.Control.Socket
	}
	if pidFile == "" {
		pidFile = cfg.Control.PIDFile
	}
	d := &Daemon{
		config:       cfg,
		configPath:   configPath,
		socketPath:   socketPath,
		pidFile:      pidFile,
		alerts:       alert.Nop{},
		openLink:     capture.OpenLink,
		shutdownChan: make(chan struct{}, 1),
	}
	d.ctx, d.cancel = context.WithCancel(context.Background())
	return d
}

// Start initializes and starts all daemon components.
func (d *Daemon) Start() error {
	// 1. Initialize logging system
	if err := d.initLogging(); err != nil {
		return fmt.Errorf("failed to initialize logging: %w", err)
	}
	slog.Info("starting arpguard daemon",
		"version", engine.Version,
		"hostname", d.config.Node.Hostname,
		"config", d.configPath,
		"socket", d.socketPath,
	)

	// 2. Build the engine and its collaborators
	s, err := buildStack(d.config)
	if err != nil {
		return fmt.Errorf("failed to build engine: %w", err)
	}
	d.stack = s

	// 3. Write PID file
	if err := d.writePIDFile(); err != nil {
		return fmt.Errorf("failed to write PID file: %w", err)
	}

	// 4. Start metrics server
	if err := d.startMetrics(); err != nil {
		return fmt.Errorf("failed to start metrics server: %w", err)
	}

	// 5. Alert publisher
	if d.config.Alerts.Enabled {
		pub, err := alert.NewKafkaPublisher(d.config.Node.Hostname, d.config.Alerts)
		if err != nil {
			return fmt.Errorf("failed to create alert publisher: %w", err)
		}
		d.alerts = pub
	}

	// 6. Capture links and workers
	if err := d.startCapture(); err != nil {
		return fmt.Errorf("failed to start capture: %w", err)
	}
	d.prober = solicit.NewProber(d.policy, d.bindings, d.dispatcher, func(s solicit.Solicitation) {
		slog.Info("binding needs application resolution",
			"interface", s.Iface, "target", s.Target, "probe", s.Probe)
	})
	go d.queue.Run(d.ctx, proxyTick, d.replayProxy)
	go d.refreshGauges()

	// 7. Command handler, UDS server and Kafka consumer
	d.cmdHandler = command.NewCommandHandler(d)
	d.udsServer = command.NewUDSServer(d.socketPath, d.cmdHandler)
	go func() {
		if err := d.udsServer.Start(d.ctx); err != nil && err != context.Canceled {
			slog.Error("uds server failed", "error", err)
		}
	}()

	if d.config.CommandChannel.Enabled {
		if err := d.startKafkaConsumer(); err != nil {
			slog.Error("failed to start kafka consumer", "error", err)
			// Non-fatal: daemon can still run with UDS-only control
		}
	}

	d.started = time.Now()
	metrics.ConfigGeneration.Set(float64(d.store.Load().Generation))
	slog.Info("daemon started successfully", "interfaces", len(d.ifaces.List()))
	return nil
}

// startCapture opens one link per interface and starts the dispatcher.
func (d *Daemon) startCapture() error {
	d.dispatcher = capture.NewDispatcher(d.engine, d.ifaces, d.config.Capture.Workers, d.config.Capture.QueueSize, d.observe)
	for _, ifi := range d.ifaces.List() {
		link, err := d.openLink(ifi.Name, d.config.Capture)
		if err != nil {
			d.dispatcher.Stop()
			return err
		}
		d.dispatcher.AddLink(ifi.Index, link)
	}
	d.dispatcher.Start(d.ctx)
	return nil
}

// observe records a decision and forwards guard findings.
func (d *Daemon) observe(dec engine.Decision) {
	metrics.PacketsTotal.WithLabelValues(dec.Iface, dec.Verdict.String(), string(dec.Reason)).Inc()
	for _, f := range dec.Findings {
		if !f.Detected() {
			continue
		}
		metrics.GuardDetectionsTotal.WithLabelValues(f.Interface, f.Kind.String()).Inc()
		d.alerts.Publish(f)
	}
}

// replayProxy feeds a due proxy request back through the engine.
func (d *Daemon) replayProxy(p proxy.Pending) {
	in := engine.Inbound{
		Payload:         p.Payload,
		Ifindex:         p.Ifindex,
		PacketType:      p.PacketType,
		LocallyEnqueued: true,
	}
	if err := d.dispatcher.Submit(in); err != nil {
		metrics.CaptureDropsTotal.WithLabelValues(p.Interface, "proxy_replay").Inc()
	}
}

func (d *Daemon) refreshGauges() {
	ticker := time.NewTicker(gaugeInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			metrics.Bindings.Set(float64(d.bindings.Len()))
			metrics.Attackers.Set(float64(d.registry.Len()))
			metrics.ProxyQueueLength.Set(float64(d.queue.Len()))
		case <-d.ctx.Done():
			return
		}
	}
}

// Stop performs graceful shutdown of all daemon components.
func (d *Daemon) Stop() {
	d.stopOnce.Do(d.stop)
}

func (d *Daemon) stop() {
	slog.Info("initiating graceful shutdown")

	// 1. Stop Kafka command consumer first (no new commands)
	if d.kafkaConsumer != nil {
		slog.Info("stopping kafka command consumer")
		if err := d.kafkaConsumer.Stop(); err != nil {
			slog.Error("error stopping kafka consumer", "error", err)
		}
	}

	// 2. Stop UDS server (no new CLI commands)
	if d.udsServer != nil {
		slog.Info("stopping uds server")
		d.udsServer.Stop()
	}

	// 3. Cancel context to stop the proxy queue, gauges and probes
	d.cancel()

	// 4. Stop capture and drain the workers
	if d.dispatcher != nil {
		slog.Info("stopping capture")
		d.dispatcher.Stop()
	}

	// 5. Flush alerts
	if err := d.alerts.Close(); err != nil {
		slog.Error("error closing alert publisher", "error", err)
	}

	// 6. Stop metrics server
	if d.metricsServer != nil {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := d.metricsServer.Stop(shutdownCtx); err != nil {
			slog.Error("error stopping metrics server", "error", err)
		}
	}

	// 7. Unregister signal handler to prevent goroutine leak
	if d.sigChan != nil {
		signal.Stop(d.sigChan)
	}

	// 8. Remove PID file
	if err := d.removePIDFile(); err != nil {
		slog.Error("error removing PID file", "error", err)
	}

	slog.Info("daemon stopped gracefully")
	logpkg.Close()
}

// Run runs the daemon main loop, blocking until shutdown is triggered.
// Shutdown can be triggered by:
//  1. OS signals (SIGTERM, SIGINT)
//  2. daemon_shutdown command via UDS/Kafka
//
// SIGHUP triggers config reload.
func (d *Daemon) Run() error {
	d.sigChan = make(chan os.Signal, 1)
	signal.Notify(d.sigChan, syscall.SIGTERM, syscall.SIGINT, syscall.SIGHUP)

	slog.Info("daemon running, waiting for signals or commands")

	for {
		select {
		case sig := <-d.sigChan:
			switch sig {
			case syscall.SIGTERM, syscall.SIGINT:
				slog.Info("received shutdown signal", "signal", sig)
				d.Stop()
				return nil

			case syscall.SIGHUP:
				slog.Info("received reload signal")
				if err := d.Reload(); err != nil {
					slog.Error("failed to reload config", "error", err)
				}
			}

		case <-d.shutdownChan:
			slog.Info("shutdown triggered by command")
			d.Stop()
			return nil

		case <-d.ctx.Done():
			slog.Info("context cancelled", "error", d.ctx.Err())
			d.Stop()
			return d.ctx.Err()
		}
	}
}

// Reload re-reads the configuration file and publishes a new runtime
// snapshot. Guard toggles, interface flags, attacker capacity, proxy queue
// length, static proxy entries and logging are hot-reloaded; interfaces,
// route backend, neighbour parameters, capture and listen addresses require
// a restart.
func (d *Daemon) Reload() error {
	slog.Info("reloading configuration", "path", d.configPath)

	newConfig, err := config.Load(d.configPath)
	if err != nil {
		return fmt.Errorf("failed to load new config: %w", err)
	}
	rt, err := newConfig.Runtime()
	if err != nil {
		return fmt.Errorf("failed to build runtime config: %w", err)
	}

	d.mu.Lock()
	defer d.mu.Unlock()

	// Entries of the previous file are withdrawn; admin-added entries stay.
	for _, pe := range d.config.Proxy.Entries {
		if addr, err := netip.ParseAddr(pe.Address); err == nil {
			if e, err := d.proxyEntry(addr, pe.Interface); err == nil {
				_ = d.proxyTable.Delete(e.Addr, e.Ifindex)
			}
		}
	}
	if err := d.loadProxyEntries(newConfig.Proxy.Entries); err != nil {
		slog.Warn("failed to load proxy entries", "error", err)
	}

	d.store.Replace(rt)
	d.registry.Resize(newConfig.Guard.AttackerCapacity)
	d.queue.Resize(newConfig.Proxy.QueueLen)
	metrics.ConfigGeneration.Set(float64(d.store.Load().Generation))

	requiresRestart := restartRequired(d.config, newConfig)

	d.config = newConfig
	if err := d.initLogging(); err != nil {
		slog.Error("failed to reinitialize logging", "error", err)
		// Non-fatal: old logging continues
	}

	slog.Info("configuration reloaded",
		"generation", d.store.Load().Generation,
		"requires_restart", requiresRestart,
	)
	return nil
}

// restartRequired lists the sections of next that only take effect after a
// restart.
func restartRequired(prev, next *config.GlobalConfig) []string {
	sections := []string{}
	if !sameInterfaces(prev.Interfaces, next.Interfaces) {
		sections = append(sections, "interfaces")
	}
	if next.Routes.Backend != prev.Routes.Backend {
		sections = append(sections, "routes.backend")
	}
	if next.Neigh != prev.Neigh {
		sections = append(sections, "neigh")
	}
	if next.Capture != prev.Capture {
		sections = append(sections, "capture")
	}
	if next.Metrics.Listen != prev.Metrics.Listen {
		sections = append(sections, "metrics.listen")
	}
	return sections
}

func sameInterfaces(a, b []config.InterfaceConfig) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i].Name != b[i].Name || a[i].Index != b[i].Index || a[i].HardwareAddr != b[i].HardwareAddr {
			return false
		}
	}
	return true
}

// TriggerShutdown triggers graceful shutdown from external caller (e.g., daemon_shutdown command).
func (d *Daemon) TriggerShutdown() {
	select {
	case d.shutdownChan <- struct{}{}:
	default:
	}
}

// initLogging initializes the logging system from config.
func (d *Daemon) initLogging() error {
	if err := logpkg.Init(d.config.Log); err != nil {
		return err
	}
	slog.Debug("logging initialized",
		"level", d.config.Log.Level,
		"format", d.config.Log.Format,
	)
	return nil
}

// startKafkaConsumer starts the Kafka command consumer in background.
func (d *Daemon) startKafkaConsumer() error {
	consumer, err := command.NewKafkaCommandConsumer(
		d.config.CommandChannel,
		d.config.Node.Hostname,
		d.cmdHandler,
	)
	if err != nil {
		return fmt.Errorf("failed to create kafka consumer: %w", err)
	}
	d.kafkaConsumer = consumer

	go func() {
		if err := consumer.Start(d.ctx); err != nil && err != context.Canceled {
			slog.Error("kafka consumer stopped with error", "error", err)
		}
	}()
	return nil
}

// startMetrics starts the metrics HTTP server if enabled.
func (d *Daemon) startMetrics() error {
	if !d.config.Metrics.Enabled {
		slog.Info("metrics server disabled")
		return nil
	}

	d.metricsServer = metrics.NewServer(d.config.Metrics.Listen, d.config.Metrics.Path)
	if err := d.metricsServer.Start(d.ctx); err != nil {
		return fmt.Errorf("failed to start metrics server: %w", err)
	}

	slog.Info("metrics server started",
		"addr", d.metricsServer.Addr(),
		"path", d.config.Metrics.Path,
	)
	return nil
}

// writePIDFile writes the current process ID to the PID file.
func (d *Daemon) writePIDFile() error {
	if d.pidFile == "" {
		return nil
	}

	pid := os.Getpid()
	data := []byte(strconv.Itoa(pid) + "\n")

	if err := os.WriteFile(d.pidFile, data, 0644); err != nil {
		return fmt.Errorf("failed to write PID file %s: %w", d.pidFile, err)
	}

	slog.Debug("PID file written", "path", d.pidFile, "pid", pid)
	return nil
}

// removePIDFile removes the PID file.
func (d *Daemon) removePIDFile() error {
	if d.pidFile == "" {
		return nil
	}

	if err := os.Remove(d.pidFile); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("failed to remove PID file %s: %w", d.pidFile, err)
	}

	slog.Debug("PID file removed", "path", d.pidFile)
	return nil
}
