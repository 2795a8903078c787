// Package config loads the actor's YAML configuration, recognizing
// exactly the sections named in the external-interfaces design:
// runtime, logging, oauth, database, container, time, actor, peers.
// Unknown keys are ignored.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/joeshaw/envdecode"
	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// RuntimeConfig controls process-wide runtime behavior.
type RuntimeConfig struct {
	ShutdownGraceSeconds int     `yaml:"shutdown_grace_seconds" env:"RUNTIME_SHUTDOWN_GRACE_SECONDS"`
	KernelQueueCapacity  int     `yaml:"kernel_queue_capacity" env:"RUNTIME_KERNEL_QUEUE_CAPACITY"`
	RPCWorkers           int     `yaml:"rpc_workers" env:"RUNTIME_RPC_WORKERS"`
	DispatchWorkers      int     `yaml:"dispatch_workers" env:"RUNTIME_DISPATCH_WORKERS"`
	RecoveryOnStart      bool    `yaml:"recovery_on_start" env:"RUNTIME_RECOVERY_ON_START"`

	// InboundRatePerSecond/InboundRateBurst throttle each Consumer's
	// message-handling loop (§5's dispatch-worker pool), so a peer that
	// floods a topic can't starve the kernel's own queue.
	InboundRatePerSecond float64 `yaml:"inbound_rate_per_second" env:"RUNTIME_INBOUND_RATE_PER_SECOND"`
	InboundRateBurst     int     `yaml:"inbound_rate_burst" env:"RUNTIME_INBOUND_RATE_BURST"`
}

// LoggingConfig controls structured logging.
type LoggingConfig struct {
	Level      string `yaml:"level" env:"LOG_LEVEL"`
	Format     string `yaml:"format" env:"LOG_FORMAT"`
	Output     string `yaml:"output" env:"LOG_OUTPUT"`
	FilePrefix string `yaml:"file_prefix" env:"LOG_FILE_PREFIX"`
}

// OAuthConfig controls management-plane token validation (§4.9).
type OAuthConfig struct {
	JWKSURL        string   `yaml:"jwks_url" env:"OAUTH_JWKS_URL"`
	JWTSecret      string   `yaml:"jwt_secret" env:"OAUTH_JWT_SECRET"`
	Audience       string   `yaml:"audience" env:"OAUTH_AUDIENCE"`
	TrustedIssuers []string `yaml:"trusted_issuers"`
}

// DatabaseConfig controls the persistence gateway's Postgres connection.
type DatabaseConfig struct {
	DSN             string `yaml:"dsn" env:"DATABASE_DSN"`
	Host            string `yaml:"host" env:"DATABASE_HOST"`
	Port            int    `yaml:"port" env:"DATABASE_PORT"`
	User            string `yaml:"user" env:"DATABASE_USER"`
	Password        string `yaml:"password" env:"DATABASE_PASSWORD"`
	Name            string `yaml:"name" env:"DATABASE_NAME"`
	SSLMode         string `yaml:"sslmode" env:"DATABASE_SSLMODE"`
	MaxOpenConns    int    `yaml:"max_open_conns" env:"DATABASE_MAX_OPEN_CONNS"`
	MaxIdleConns    int    `yaml:"max_idle_conns" env:"DATABASE_MAX_IDLE_CONNS"`
	ConnMaxLifetime int    `yaml:"conn_max_lifetime" env:"DATABASE_CONN_MAX_LIFETIME"`
	MigrateOnStart  bool   `yaml:"migrate_on_start" env:"DATABASE_MIGRATE_ON_START"`
}

// ConnectionString renders a libpq DSN from the host-level fields when
// DSN itself is unset.
func (c DatabaseConfig) ConnectionString() string {
	if strings.TrimSpace(c.DSN) != "" {
		return c.DSN
	}
	return fmt.Sprintf(
		"host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		c.Host, c.Port, c.User, c.Password, c.Name, c.SSLMode,
	)
}

// ContainerConfig controls the process-wide singleton context (§9).
type ContainerConfig struct {
	InstanceID      string `yaml:"instance_id" env:"CONTAINER_INSTANCE_ID"`
	RedisAddr       string `yaml:"redis_addr" env:"CONTAINER_REDIS_ADDR"`
	KafkaBrokers    string `yaml:"kafka_brokers" env:"CONTAINER_KAFKA_BROKERS"`
	MetricsPort     int    `yaml:"metrics_port" env:"CONTAINER_METRICS_PORT"`
	RESTPort        int    `yaml:"rest_port" env:"CONTAINER_REST_PORT"`
	MaintenanceCron string `yaml:"maintenance_cron" env:"CONTAINER_MAINTENANCE_CRON"`
}

// TimeConfig controls the Clock (§4.1): the cycle length and the epoch
// cycles are measured from.
type TimeConfig struct {
	CycleMillis int64  `yaml:"cycle_millis" env:"TIME_CYCLE_MILLIS"`
	EpochRFC3339 string `yaml:"epoch" env:"TIME_EPOCH"`
}

// PoolSpec names one inventory pool the actor manages (Authority role).
type PoolSpec struct {
	Name  string `yaml:"name"`
	Type  string `yaml:"type"`
	Units int    `yaml:"units"`
}

// ActorConfig identifies this process's actor and its policy/topic wiring.
type ActorConfig struct {
	Type       string     `yaml:"type" env:"ACTOR_TYPE"`
	Name       string     `yaml:"name" env:"ACTOR_NAME"`
	GUID       string     `yaml:"guid" env:"ACTOR_GUID"`
	KafkaTopic string     `yaml:"kafka-topic" env:"ACTOR_KAFKA_TOPIC"`
	Pools      []PoolSpec `yaml:"pools"`
	Controls   []string   `yaml:"controls"`
	Policy     string     `yaml:"policy" env:"ACTOR_POLICY"`
}

// PeerConfig names a remote actor reachable through the message bus.
type PeerConfig struct {
	Name       string `yaml:"name"`
	GUID       string `yaml:"guid"`
	Type       string `yaml:"type"`
	KafkaTopic string `yaml:"kafka-topic"`
}

// Config is the top-level actor configuration document.
type Config struct {
	Runtime  RuntimeConfig   `yaml:"runtime"`
	Logging  LoggingConfig   `yaml:"logging"`
	OAuth    OAuthConfig     `yaml:"oauth"`
	Database DatabaseConfig  `yaml:"database"`
	Container ContainerConfig `yaml:"container"`
	Time     TimeConfig      `yaml:"time"`
	Actor    ActorConfig     `yaml:"actor"`
	Peers    []PeerConfig    `yaml:"peers"`
}

// New returns a Config populated with defaults, overridden by file/env in Load.
func New() *Config {
	return &Config{
		Runtime: RuntimeConfig{
			ShutdownGraceSeconds: 30,
			KernelQueueCapacity:  4096,
			RPCWorkers:           4,
			DispatchWorkers:      4,
			RecoveryOnStart:      true,
			InboundRatePerSecond: 200,
			InboundRateBurst:     50,
		},
		Logging: LoggingConfig{
			Level:      "info",
			Format:     "text",
			Output:     "stdout",
			FilePrefix: "actor",
		},
		Database: DatabaseConfig{
			SSLMode:         "disable",
			MaxOpenConns:    10,
			MaxIdleConns:    5,
			ConnMaxLifetime: 300,
			MigrateOnStart:  true,
		},
		Container: ContainerConfig{
			MetricsPort:     9090,
			RESTPort:        8080,
			MaintenanceCron: "*/5 * * * *",
		},
		Time: TimeConfig{
			CycleMillis: 1000,
		},
	}
}

// Load reads configuration the way the teacher does: an optional .env
// file, then CONFIG_FILE (or configs/config.yaml) parsed as YAML with
// unknown keys ignored, then an environment-variable overlay.
func Load() (*Config, error) {
	_ = godotenv.Load()

	cfg := New()

	path := strings.TrimSpace(os.Getenv("CONFIG_FILE"))
	if path == "" {
		path = "configs/config.yaml"
	}
	if err := loadFromFile(path, cfg); err != nil {
		return nil, err
	}

	if err := envdecode.Decode(cfg); err != nil {
		if !strings.Contains(err.Error(), "none of the target fields were set") {
			return nil, fmt.Errorf("decode env: %w", err)
		}
	}

	return cfg, nil
}

// LoadFile reads configuration from a specific YAML file, useful for tests.
func LoadFile(path string) (*Config, error) {
	cfg := New()
	if err := loadFromFile(path, cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

func loadFromFile(path string, cfg *Config) error {
	abs, err := filepath.Abs(path)
	if err != nil {
		return err
	}
	data, err := os.ReadFile(abs)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return err
	}
	// yaml.Unmarshal into a struct without KnownFields enforcement
	// silently drops keys with no matching field, per spec's "unknown
	// keys are ignored".
	return yaml.Unmarshal(data, cfg)
}
