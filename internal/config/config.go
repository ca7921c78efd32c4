package config

import (
	"errors"
	"fmt"
	"net"
	"strconv"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config is the root configuration for rsinit.
type Config struct {
	Server    ServerConfig    `mapstructure:"server"`
	Telemetry TelemetryConfig `mapstructure:"telemetry"`
	Bootstrap BootstrapConfig `mapstructure:"bootstrap"`
}

type ServerConfig struct {
	Port            int           `mapstructure:"port"`
	ReadTimeout     time.Duration `mapstructure:"read_timeout"`
	WriteTimeout    time.Duration `mapstructure:"write_timeout"`
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout"`
}

type TelemetryConfig struct {
	OTLPEndpoint string `mapstructure:"otlp_endpoint"`
	OTLPInsecure bool   `mapstructure:"otlp_insecure"`
	ServiceName  string `mapstructure:"service_name"`
	LogLevel     string `mapstructure:"log_level"`
}

// BootstrapConfig drives a single bootstrap run. Every polling phase is
// bounded by its own timeout; Timeout bounds the run as a whole.
type BootstrapConfig struct {
	Timeout            time.Duration    `mapstructure:"timeout"`
	PollInterval       time.Duration    `mapstructure:"poll_interval"`
	ReadinessTimeout   time.Duration    `mapstructure:"readiness_timeout"`
	ConvergenceTimeout time.Duration    `mapstructure:"convergence_timeout"`
	CommandTimeout     time.Duration    `mapstructure:"command_timeout"`
	Target             TargetConfig     `mapstructure:"target"`
	ReplicaSet         ReplicaSetConfig `mapstructure:"replica_set"`
	Notify             NotifyConfig     `mapstructure:"notify"`
}

// TargetConfig addresses the database node being bootstrapped.
type TargetConfig struct {
	Host                   string        `mapstructure:"host"`
	Port                   int           `mapstructure:"port"`
	Username               string        `mapstructure:"username"`
	Password               string        `mapstructure:"password"`
	AuthSource             string        `mapstructure:"auth_source"`
	ConnectTimeout         time.Duration `mapstructure:"connect_timeout"`
	ServerSelectionTimeout time.Duration `mapstructure:"server_selection_timeout"`
}

// Addr returns the host:port of the target node.
func (t TargetConfig) Addr() string {
	return net.JoinHostPort(t.Host, strconv.Itoa(t.Port))
}

type ReplicaSetConfig struct {
	ID      string         `mapstructure:"id"`
	Members []MemberConfig `mapstructure:"members"`
}

type MemberConfig struct {
	ID   int    `mapstructure:"id"`
	Host string `mapstructure:"host"`
}

type NotifyConfig struct {
	NATS NATSConfig `mapstructure:"nats"`
}

// NATSConfig enables the readiness event when URL is set.
type NATSConfig struct {
	URL           string `mapstructure:"url"`
	Stream        string `mapstructure:"stream"`
	SubjectPrefix string `mapstructure:"subject_prefix"`
}

// Load reads config from the optional YAML file at path, then overlays
// environment variables with the RSINIT_ prefix (e.g. RSINIT_BOOTSTRAP_TARGET_HOST).
func Load(path string) (*Config, error) {
	v := viper.New()

	setDefaults(v)

	v.SetEnvPrefix("RSINIT")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("reading config file %s: %w", path, err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("unmarshalling config: %w", err)
	}

	return &cfg, nil
}

// Validate rejects timing settings that would make a polling phase
// unbounded or pointless.
func (c *Config) Validate() error {
	b := c.Bootstrap

	var errs []error
	for name, d := range map[string]time.Duration{
		"bootstrap.timeout":             b.Timeout,
		"bootstrap.poll_interval":       b.PollInterval,
		"bootstrap.readiness_timeout":   b.ReadinessTimeout,
		"bootstrap.convergence_timeout": b.ConvergenceTimeout,
		"bootstrap.command_timeout":     b.CommandTimeout,
	} {
		if d <= 0 {
			errs = append(errs, fmt.Errorf("%s must be positive, got %s", name, d))
		}
	}
	if b.PollInterval > 0 {
		if b.ReadinessTimeout > 0 && b.PollInterval > b.ReadinessTimeout {
			errs = append(errs, fmt.Errorf("bootstrap.poll_interval %s exceeds readiness_timeout %s", b.PollInterval, b.ReadinessTimeout))
		}
		if b.ConvergenceTimeout > 0 && b.PollInterval > b.ConvergenceTimeout {
			errs = append(errs, fmt.Errorf("bootstrap.poll_interval %s exceeds convergence_timeout %s", b.PollInterval, b.ConvergenceTimeout))
		}
	}
	if b.Target.Host == "" {
		errs = append(errs, errors.New("bootstrap.target.host is empty"))
	}
	if b.Target.Port < 1 || b.Target.Port > 65535 {
		errs = append(errs, fmt.Errorf("bootstrap.target.port %d out of range", b.Target.Port))
	}

	return errors.Join(errs...)
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("server.port", 8082)
	v.SetDefault("server.read_timeout", 10*time.Second)
	v.SetDefault("server.write_timeout", 10*time.Second)
	v.SetDefault("server.shutdown_timeout", 30*time.Second)

	// Empty endpoint disables OTEL; rsinit usually runs as a one-shot init job.
	v.SetDefault("telemetry.otlp_endpoint", "")
	v.SetDefault("telemetry.otlp_insecure", true)
	v.SetDefault("telemetry.service_name", "arc-rsinit")
	v.SetDefault("telemetry.log_level", "info")

	v.SetDefault("bootstrap.timeout", 5*time.Minute)
	v.SetDefault("bootstrap.poll_interval", time.Second)
	v.SetDefault("bootstrap.readiness_timeout", 30*time.Second)
	v.SetDefault("bootstrap.convergence_timeout", 30*time.Second)
	v.SetDefault("bootstrap.command_timeout", 10*time.Second)

	v.SetDefault("bootstrap.target.host", "localhost")
	v.SetDefault("bootstrap.target.port", 27017)
	v.SetDefault("bootstrap.target.username", "")
	v.SetDefault("bootstrap.target.password", "")
	v.SetDefault("bootstrap.target.auth_source", "admin")
	v.SetDefault("bootstrap.target.connect_timeout", 2*time.Second)
	v.SetDefault("bootstrap.target.server_selection_timeout", 2*time.Second)

	v.SetDefault("bootstrap.replica_set.id", "rs0")

	v.SetDefault("bootstrap.notify.nats.url", "")
	v.SetDefault("bootstrap.notify.nats.stream", "REPLSET_EVENTS")
	v.SetDefault("bootstrap.notify.nats.subject_prefix", "replset")
}
