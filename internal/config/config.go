// Package config handles global configuration loading using viper.
package config

import (
	"fmt"
	"net/netip"
	"os"
	"strings"
	"time"

	"github.com/spf13/viper"
	"gopkg.in/yaml.v3"

	"firestige.xyz/arpguard/internal/core"
)

// GlobalConfig represents the top-level configuration.
// Maps to the `arpguard:` root key in YAML.
type GlobalConfig struct {
	Node           NodeConfig           `mapstructure:"node" yaml:"node"`
	Guard          GuardConfig          `mapstructure:"guard" yaml:"guard"`
	Defaults       InterfaceSettings    `mapstructure:"defaults" yaml:"defaults"`
	Interfaces     []InterfaceConfig    `mapstructure:"interfaces" yaml:"interfaces"`
	Neigh          NeighConfig          `mapstructure:"neigh" yaml:"neigh"`
	Proxy          ProxyConfig          `mapstructure:"proxy" yaml:"proxy"`
	Routes         RoutesConfig         `mapstructure:"routes" yaml:"routes"`
	Capture        CaptureConfig        `mapstructure:"capture" yaml:"capture"`
	Alerts         AlertsConfig         `mapstructure:"alerts" yaml:"alerts"`
	CommandChannel CommandChannelConfig `mapstructure:"command_channel" yaml:"command_channel"`
	Control        ControlConfig        `mapstructure:"control" yaml:"control"`
	Metrics        MetricsConfig        `mapstructure:"metrics" yaml:"metrics"`
	Log            LogConfig            `mapstructure:"log" yaml:"log"`
}

// ─── Node Identity ───

// NodeConfig identifies this host on shared Kafka topics.
type NodeConfig struct {
	Hostname string `mapstructure:"hostname" yaml:"hostname"` // Empty = os.Hostname()
}

// ─── Guard & Interfaces ───

// GuardConfig holds the engine-wide toggles.
type GuardConfig struct {
	Enabled                      bool `mapstructure:"enabled" yaml:"enabled"`
	Verbose                      bool `mapstructure:"verbose" yaml:"verbose"`
	IgnoreGatewayUpdateOnRequest bool `mapstructure:"ignore_gateway_update_on_request" yaml:"ignore_gateway_update_on_request"`
	IgnoreGatewayUpdateOnReply   bool `mapstructure:"ignore_gateway_update_on_reply" yaml:"ignore_gateway_update_on_reply"`
	IgnoreProxyARP               bool `mapstructure:"ignore_proxy_arp" yaml:"ignore_proxy_arp"`
	AttackerCapacity             int  `mapstructure:"attacker_capacity" yaml:"attacker_capacity"`
}

// InterfaceSettings are the per-interface ARP flags.
type InterfaceSettings struct {
	ArpAccept      bool          `mapstructure:"arp_accept" yaml:"arp_accept"`
	ArpIgnore      int           `mapstructure:"arp_ignore" yaml:"arp_ignore"` // 0-8
	ArpFilter      bool          `mapstructure:"arp_filter" yaml:"arp_filter"`
	ArpAnnounce    int           `mapstructure:"arp_announce" yaml:"arp_announce"` // 0-2
	ProxyARP       bool          `mapstructure:"proxy_arp" yaml:"proxy_arp"`
	ProxyARPPVLAN  bool          `mapstructure:"proxy_arp_pvlan" yaml:"proxy_arp_pvlan"`
	MediumID       int           `mapstructure:"medium_id" yaml:"medium_id"` // -1 never proxy, 0 always
	DropGratuitous bool          `mapstructure:"drop_gratuitous" yaml:"drop_gratuitous"`
	RouteLocalnet  bool          `mapstructure:"route_localnet" yaml:"route_localnet"`
	Forwarding     bool          `mapstructure:"forwarding" yaml:"forwarding"`
	ProxyDelay     time.Duration `mapstructure:"proxy_delay" yaml:"proxy_delay"`
}

// InterfaceConfig names an interface to serve. Addresses, hardware address
// and index are only read by the static route backend; the netlink backend
// discovers them.
type InterfaceConfig struct {
	Name         string                 `mapstructure:"name" yaml:"name"`
	Index        int                    `mapstructure:"index" yaml:"index,omitempty"`
	Media        string                 `mapstructure:"media" yaml:"media,omitempty"`
	HardwareAddr string                 `mapstructure:"hardware_addr" yaml:"hardware_addr,omitempty"`
	Addresses    []string               `mapstructure:"addresses" yaml:"addresses,omitempty"`
	Gateway      string                 `mapstructure:"gateway" yaml:"gateway,omitempty"`
	Overrides    map[string]interface{} `mapstructure:"overrides" yaml:"overrides,omitempty"`
}

// ─── Neighbor Table ───

// NeighConfig contains binding cache parameters.
type NeighConfig struct {
	LockTime    time.Duration `mapstructure:"lock_time" yaml:"lock_time"`
	GCStaleTime time.Duration `mapstructure:"gc_stale_time" yaml:"gc_stale_time"`
	RetransTime time.Duration `mapstructure:"retrans_time" yaml:"retrans_time"`
	UcastProbes int           `mapstructure:"ucast_probes" yaml:"ucast_probes"`
	McastProbes int           `mapstructure:"mcast_probes" yaml:"mcast_probes"`
	AppProbes   int           `mapstructure:"app_probes" yaml:"app_probes"`
}

// ─── Proxy ───

// ProxyConfig configures the delayed proxy queue and static proxy entries.
type ProxyConfig struct {
	QueueLen int                `mapstructure:"queue_len" yaml:"queue_len"`
	Entries  []ProxyEntryConfig `mapstructure:"entries" yaml:"entries,omitempty"`
}

// ProxyEntryConfig is a statically published proxy address.
type ProxyEntryConfig struct {
	Address   string `mapstructure:"address" yaml:"address"`
	Interface string `mapstructure:"interface" yaml:"interface,omitempty"` // Empty = any interface
}

// ─── Routes ───

// RoutesConfig selects the route backend.
type RoutesConfig struct {
	Backend string              `mapstructure:"backend" yaml:"backend"` // netlink | static
	Static  []StaticRouteConfig `mapstructure:"static" yaml:"static,omitempty"`
}

// StaticRouteConfig is a route for the static backend.
type StaticRouteConfig struct {
	Prefix    string `mapstructure:"prefix" yaml:"prefix"`
	Gateway   string `mapstructure:"gateway" yaml:"gateway"`
	Interface string `mapstructure:"interface" yaml:"interface"`
}

// ─── Capture ───

// CaptureConfig configures the AF_PACKET links and the worker dispatcher.
type CaptureConfig struct {
	Workers      int           `mapstructure:"workers" yaml:"workers"` // 0 = one per interface
	QueueSize    int           `mapstructure:"queue_size" yaml:"queue_size"`
	SnapLen      int           `mapstructure:"snap_len" yaml:"snap_len"`
	PollTimeout  time.Duration `mapstructure:"poll_timeout" yaml:"poll_timeout"`
	BufferSizeMB int           `mapstructure:"buffer_size_mb" yaml:"buffer_size_mb"`
}

// ─── Kafka ───

// KafkaConfig is a Kafka connection.
type KafkaConfig struct {
	Brokers []string `mapstructure:"brokers" yaml:"brokers,omitempty"`
	Topic   string   `mapstructure:"topic" yaml:"topic,omitempty"`
}

// AlertsConfig configures publication of guard findings.
type AlertsConfig struct {
	Enabled      bool          `mapstructure:"enabled" yaml:"enabled"`
	Kafka        KafkaConfig   `mapstructure:"kafka" yaml:"kafka"`
	QueueSize    int           `mapstructure:"queue_size" yaml:"queue_size"`
	Compression  string        `mapstructure:"compression" yaml:"compression"` // none / gzip / snappy / lz4
	BatchTimeout time.Duration `mapstructure:"batch_timeout" yaml:"batch_timeout"`
	Suppress     time.Duration `mapstructure:"suppress" yaml:"suppress"` // Repeats of the same finding within this window are not published
}

// CommandChannelConfig configures the remote command channel.
type CommandChannelConfig struct {
	Enabled         bool          `mapstructure:"enabled" yaml:"enabled"`
	Kafka           KafkaConfig   `mapstructure:"kafka" yaml:"kafka"`
	GroupID         string        `mapstructure:"group_id" yaml:"group_id,omitempty"`
	AutoOffsetReset string        `mapstructure:"auto_offset_reset" yaml:"auto_offset_reset"` // earliest / latest
	CommandTTL      time.Duration `mapstructure:"command_ttl" yaml:"command_ttl"`
}

// ─── Control Plane ───

// ControlConfig contains local control plane settings.
type ControlConfig struct {
	Socket  string `mapstructure:"socket" yaml:"socket"`
	PIDFile string `mapstructure:"pid_file" yaml:"pid_file"`
}

// ─── Metrics ───

// MetricsConfig contains Prometheus metrics settings.
type MetricsConfig struct {
	Enabled bool   `mapstructure:"enabled" yaml:"enabled"`
	Listen  string `mapstructure:"listen" yaml:"listen"`
	Path    string `mapstructure:"path" yaml:"path"`
}

// ─── Log ───

// LogConfig contains logging settings.
type LogConfig struct {
	Level  string           `mapstructure:"level" yaml:"level"`   // debug / info / warn / error
	Format string           `mapstructure:"format" yaml:"format"` // json / text
	File   FileOutputConfig `mapstructure:"file" yaml:"file"`
}

// FileOutputConfig configures file log output.
type FileOutputConfig struct {
	Enabled    bool   `mapstructure:"enabled" yaml:"enabled"`
	Path       string `mapstructure:"path" yaml:"path"`
	MaxSizeMB  int    `mapstructure:"max_size_mb" yaml:"max_size_mb"`
	MaxAgeDays int    `mapstructure:"max_age_days" yaml:"max_age_days"`
	MaxBackups int    `mapstructure:"max_backups" yaml:"max_backups"`
	Compress   bool   `mapstructure:"compress" yaml:"compress"`
}

// ─── Loading ───

// configRoot is the top-level wrapper matching the YAML structure `arpguard: ...`.
type configRoot struct {
	ARPGuard GlobalConfig `mapstructure:"arpguard"`
}

// Load loads configuration from file.
// Env vars use the ARPGUARD_ prefix (e.g., ARPGUARD_LOG_LEVEL).
func Load(path string) (*GlobalConfig, error) {
	v := viper.New()
	v.SetConfigFile(path)

	if err := v.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	setDefaults(v)

	var root configRoot
	if err := v.Unmarshal(&root); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}
	cfg := root.ARPGuard

	if err := cfg.ValidateAndApplyDefaults(); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}

	return &cfg, nil
}

// setDefaults sets default values for configuration.
func setDefaults(v *viper.Viper) {
	// Guard defaults
	v.SetDefault("arpguard.guard.enabled", true)
	v.SetDefault("arpguard.guard.verbose", false)
	v.SetDefault("arpguard.guard.ignore_gateway_update_on_request", true)
	v.SetDefault("arpguard.guard.ignore_gateway_update_on_reply", true)
	v.SetDefault("arpguard.guard.ignore_proxy_arp", true)
	v.SetDefault("arpguard.guard.attacker_capacity", 8)

	// Interface defaults
	v.SetDefault("arpguard.defaults.arp_ignore", 0)
	v.SetDefault("arpguard.defaults.arp_announce", 0)
	v.SetDefault("arpguard.defaults.medium_id", 0)
	v.SetDefault("arpguard.defaults.proxy_delay", "800ms")

	// Neighbor table defaults
	v.SetDefault("arpguard.neigh.lock_time", "1s")
	v.SetDefault("arpguard.neigh.gc_stale_time", "60s")
	v.SetDefault("arpguard.neigh.retrans_time", "1s")
	v.SetDefault("arpguard.neigh.ucast_probes", 3)
	v.SetDefault("arpguard.neigh.mcast_probes", 3)
	v.SetDefault("arpguard.neigh.app_probes", 0)

	v.SetDefault("arpguard.proxy.queue_len", 64)
	v.SetDefault("arpguard.routes.backend", "netlink")

	// Capture defaults
	v.SetDefault("arpguard.capture.workers", 0)
	v.SetDefault("arpguard.capture.queue_size", 1024)
	v.SetDefault("arpguard.capture.snap_len", 256)
	v.SetDefault("arpguard.capture.poll_timeout", "100ms")
	v.SetDefault("arpguard.capture.buffer_size_mb", 2)

	v.SetDefault("arpguard.alerts.enabled", false)
	v.SetDefault("arpguard.alerts.queue_size", 256)
	v.SetDefault("arpguard.alerts.compression", "snappy")
	v.SetDefault("arpguard.alerts.batch_timeout", "100ms")
	v.SetDefault("arpguard.alerts.suppress", "30s")
	v.SetDefault("arpguard.command_channel.enabled", false)
	v.SetDefault("arpguard.command_channel.command_ttl", "5m")
	v.SetDefault("arpguard.command_channel.auto_offset_reset", "latest")

	// Control defaults
	v.SetDefault("arpguard.control.pid_file", "/var/run/arpguard.pid")
	v.SetDefault("arpguard.control.socket", "/var/run/arpguard.sock")

	// Metrics defaults
	v.SetDefault("arpguard.metrics.enabled", true)
	v.SetDefault("arpguard.metrics.listen", ":9093")
	v.SetDefault("arpguard.metrics.path", "/metrics")

	// Log defaults
	v.SetDefault("arpguard.log.level", "info")
	v.SetDefault("arpguard.log.format", "json")
	v.SetDefault("arpguard.log.file.enabled", false)
	v.SetDefault("arpguard.log.file.path", "/var/log/arpguard/arpguard.log")
	v.SetDefault("arpguard.log.file.max_size_mb", 100)
	v.SetDefault("arpguard.log.file.max_age_days", 30)
	v.SetDefault("arpguard.log.file.max_backups", 5)
	v.SetDefault("arpguard.log.file.compress", true)
}

// ValidateAndApplyDefaults validates configuration and applies runtime defaults.
func (cfg *GlobalConfig) ValidateAndApplyDefaults() error {
	// ── Log validation ──
	validLevels := map[string]bool{"debug": true, "info": true, "warn": true, "error": true}
	if !validLevels[cfg.Log.Level] {
		return fmt.Errorf("%w: invalid log level: %s (must be debug/info/warn/error)", core.ErrConfigInvalid, cfg.Log.Level)
	}
	if cfg.Log.Format != "json" && cfg.Log.Format != "text" {
		return fmt.Errorf("%w: invalid log format: %s (must be json/text)", core.ErrConfigInvalid, cfg.Log.Format)
	}

	if cfg.Node.Hostname == "" {
		hostname, err := os.Hostname()
		if err != nil {
			return fmt.Errorf("failed to get hostname: %w", err)
		}
		cfg.Node.Hostname = hostname
	}

	// ── Guard ──
	if cfg.Guard.AttackerCapacity < 1 {
		return fmt.Errorf("%w: guard.attacker_capacity must be >= 1", core.ErrConfigInvalid)
	}
	if err := cfg.Defaults.Validate(); err != nil {
		return fmt.Errorf("defaults: %w", err)
	}

	// ── Interfaces ──
	if len(cfg.Interfaces) == 0 {
		return fmt.Errorf("%w: at least one interface is required", core.ErrConfigInvalid)
	}
	seen := make(map[string]bool, len(cfg.Interfaces))
	for i, ic := range cfg.Interfaces {
		if ic.Name == "" {
			return fmt.Errorf("%w: interfaces[%d].name is required", core.ErrConfigInvalid, i)
		}
		if seen[ic.Name] {
			return fmt.Errorf("%w: duplicate interface %q", core.ErrConfigInvalid, ic.Name)
		}
		seen[ic.Name] = true
		if _, err := core.ParseMedia(ic.Media); err != nil {
			return err
		}
		if _, err := ic.Resolve(cfg.Defaults); err != nil {
			return fmt.Errorf("interface %s: %w", ic.Name, err)
		}
		if ic.Gateway != "" {
			if _, err := netip.ParseAddr(ic.Gateway); err != nil {
				return fmt.Errorf("%w: interface %s gateway: %v", core.ErrConfigInvalid, ic.Name, err)
			}
		}
	}

	// ── Routes ──
	switch cfg.Routes.Backend {
	case "netlink":
	case "static":
		for _, ic := range cfg.Interfaces {
			if ic.Index <= 0 || ic.HardwareAddr == "" || len(ic.Addresses) == 0 {
				return fmt.Errorf("%w: static backend needs index, hardware_addr and addresses for %s",
					core.ErrConfigInvalid, ic.Name)
			}
		}
		for _, r := range cfg.Routes.Static {
			if _, err := netip.ParsePrefix(r.Prefix); err != nil {
				return fmt.Errorf("%w: static route %q: %v", core.ErrConfigInvalid, r.Prefix, err)
			}
			if !seen[r.Interface] {
				return fmt.Errorf("%w: static route %s uses unknown interface %q", core.ErrConfigInvalid, r.Prefix, r.Interface)
			}
		}
	default:
		return fmt.Errorf("%w: unsupported routes.backend: %s (must be netlink/static)", core.ErrConfigInvalid, cfg.Routes.Backend)
	}

	// ── Proxy ──
	if cfg.Proxy.QueueLen < 1 {
		return fmt.Errorf("%w: proxy.queue_len must be >= 1", core.ErrConfigInvalid)
	}
	for _, pe := range cfg.Proxy.Entries {
		if _, err := netip.ParseAddr(pe.Address); err != nil {
			return fmt.Errorf("%w: proxy entry %q: %v", core.ErrConfigInvalid, pe.Address, err)
		}
		if pe.Interface != "" && !seen[pe.Interface] {
			return fmt.Errorf("%w: proxy entry %s uses unknown interface %q", core.ErrConfigInvalid, pe.Address, pe.Interface)
		}
	}

	// ── Neighbor ──
	if cfg.Neigh.UcastProbes < 0 || cfg.Neigh.McastProbes < 0 || cfg.Neigh.AppProbes < 0 {
		return fmt.Errorf("%w: neigh probe counts must be >= 0", core.ErrConfigInvalid)
	}
	if cfg.Neigh.RetransTime <= 0 {
		cfg.Neigh.RetransTime = time.Second
	}

	// ── Capture ──
	if cfg.Capture.Workers <= 0 {
		cfg.Capture.Workers = len(cfg.Interfaces)
	}
	if cfg.Capture.QueueSize <= 0 {
		cfg.Capture.QueueSize = 1024
	}

	// ── Kafka ──
	if cfg.Alerts.Enabled {
		if len(cfg.Alerts.Kafka.Brokers) == 0 || cfg.Alerts.Kafka.Topic == "" {
			return fmt.Errorf("%w: alerts.kafka.brokers and topic are required when alerts.enabled=true", core.ErrConfigInvalid)
		}
		switch cfg.Alerts.Compression {
		case "", "none", "gzip", "snappy", "lz4":
		default:
			return fmt.Errorf("%w: invalid alerts.compression: %s", core.ErrConfigInvalid, cfg.Alerts.Compression)
		}
	}
	if cfg.CommandChannel.Enabled {
		if len(cfg.CommandChannel.Kafka.Brokers) == 0 || cfg.CommandChannel.Kafka.Topic == "" {
			return fmt.Errorf("%w: command_channel.kafka.brokers and topic are required when command_channel.enabled=true", core.ErrConfigInvalid)
		}
		if cfg.CommandChannel.GroupID == "" {
			cfg.CommandChannel.GroupID = "arpguard-" + cfg.Node.Hostname
		}
	}

	return nil
}

// Validate checks the ranges of the per-interface flags.
func (s InterfaceSettings) Validate() error {
	if s.ArpIgnore < 0 || s.ArpIgnore > 8 {
		return fmt.Errorf("%w: arp_ignore %d out of range 0-8", core.ErrConfigInvalid, s.ArpIgnore)
	}
	if s.ArpAnnounce < 0 || s.ArpAnnounce > 2 {
		return fmt.Errorf("%w: arp_announce %d out of range 0-2", core.ErrConfigInvalid, s.ArpAnnounce)
	}
	if s.MediumID < -1 {
		return fmt.Errorf("%w: medium_id %d must be >= -1", core.ErrConfigInvalid, s.MediumID)
	}
	if s.ProxyDelay < 0 {
		return fmt.Errorf("%w: proxy_delay must be >= 0", core.ErrConfigInvalid)
	}
	return nil
}

// Dump renders the effective configuration as YAML.
func (cfg *GlobalConfig) Dump() ([]byte, error) {
	return yaml.Marshal(map[string]*GlobalConfig{"arpguard": cfg})
}
