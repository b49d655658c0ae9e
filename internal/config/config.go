package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/pelletier/go-toml/v2"

	"github.com/agenthands/claimgraph/internal/core/model"
)

// Store backends.
const (
	BackendBolt    = "bolt"
	BackendGremlin = "gremlin"
	BackendMemory  = "memory"
)

// Lock modes.
const (
	LockLocal = "local"
	LockRedis = "redis"
)

type StoreConfig struct {
	Backend     string   `toml:"backend"`
	CallTimeout Duration `toml:"call_timeout"`
}

type MemgraphConfig struct {
	URI      string `toml:"uri"`
	User     string `toml:"user"`
	Password string `toml:"password"`
	Database string `toml:"database"`
}

type GremlinConfig struct {
	Hostname        string `toml:"hostname"`
	Port            int    `toml:"port"`
	Path            string `toml:"path"`
	Username        string `toml:"username"`
	Password        string `toml:"password"`
	TLS             bool   `toml:"tls"`
	TraversalSource string `toml:"traversal_source"`
	PartitionKey    string `toml:"partition_key"`
	UseKeyAsID      bool   `toml:"use_key_as_id"`
	// Cardinality is emitted as the first argument of property() when
	// non-empty ("single" on TinkerPop). Cosmos DB wants it empty.
	Cardinality string `toml:"cardinality"`
	PoolSize    int    `toml:"pool_size"`
}

// URL is the websocket endpoint.
func (g GremlinConfig) URL() string {
	scheme := "ws"
	if g.TLS {
		scheme = "wss"
	}
	path := g.Path
	if path == "" {
		path = "/gremlin"
	}
	if !strings.HasPrefix(path, "/") {
		path = "/" + path
	}
	return fmt.Sprintf("%s://%s:%d%s", scheme, g.Hostname, g.Port, path)
}

type InputConfig struct {
	ClaimDir    string `toml:"claim_dir"`
	ClaimantDir string `toml:"claimant_dir"`
	AgentDir    string `toml:"agent_dir"`
	// ClaimantKey is the claimant natural key: claimant_id or claimant_name.
	ClaimantKey string `toml:"claimant_key"`
}

type ConcurrencyConfig struct {
	Rules int `toml:"rules"`
	Rows  int `toml:"rows"`
}

type RetryConfig struct {
	MaxAttempts     int      `toml:"max_attempts"`
	InitialInterval Duration `toml:"initial_interval"`
	MaxInterval     Duration `toml:"max_interval"`
}

type LockConfig struct {
	Mode      string   `toml:"mode"`
	Shards    int      `toml:"shards"`
	RedisAddr string   `toml:"redis_addr"`
	Prefix    string   `toml:"prefix"`
	TTL       Duration `toml:"ttl"`
}

type LogConfig struct {
	Mode string `toml:"mode"`
}

type ServerConfig struct {
	Addr string `toml:"addr"`
}

type OtelConfig struct {
	Enabled     bool    `toml:"enabled"`
	Exporter    string  `toml:"exporter"`
	Endpoint    string  `toml:"endpoint"`
	ServiceName string  `toml:"service_name"`
	SampleRatio float64 `toml:"sample_ratio"`
}

type Config struct {
	Store       StoreConfig       `toml:"store"`
	Memgraph    MemgraphConfig    `toml:"memgraph"`
	Gremlin     GremlinConfig     `toml:"gremlin"`
	Input       InputConfig       `toml:"input"`
	Concurrency ConcurrencyConfig `toml:"concurrency"`
	Retry       RetryConfig       `toml:"retry"`
	Lock        LockConfig        `toml:"lock"`
	Log         LogConfig         `toml:"log"`
	Server      ServerConfig      `toml:"server"`
	Otel        OtelConfig        `toml:"otel"`
}

// Default returns a configuration that runs against a local Memgraph with
// inputs under ./data.
func Default() *Config {
	return &Config{
		Store: StoreConfig{Backend: BackendBolt, CallTimeout: Duration(30 * time.Second)},
		Memgraph: MemgraphConfig{
			URI: "bolt://localhost:7687",
		},
		Gremlin: GremlinConfig{
			Port:            443,
			Path:            "/gremlin",
			TLS:             true,
			TraversalSource: "g",
			PartitionKey:    "pk",
			PoolSize:        4,
		},
		Input: InputConfig{
			ClaimDir:    "data/claim_data",
			ClaimantDir: "data/claimant_data",
			AgentDir:    "data/agent_data",
			ClaimantKey: model.KeyClaimantID,
		},
		Concurrency: ConcurrencyConfig{Rules: 1, Rows: 4},
		Retry: RetryConfig{
			MaxAttempts:     3,
			InitialInterval: Duration(200 * time.Millisecond),
			MaxInterval:     Duration(5 * time.Second),
		},
		Lock:   LockConfig{Mode: LockLocal, Shards: 64, Prefix: "claimgraph:lock:", TTL: Duration(30 * time.Second)},
		Log:    LogConfig{Mode: "dev"},
		Server: ServerConfig{Addr: ":8080"},
		Otel:   OtelConfig{Exporter: "stdout", ServiceName: "claimgraph", SampleRatio: 1},
	}
}

// Load reads a TOML file on top of Default.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file '%s': %w", path, err)
	}

	cfg := Default()
	if err := toml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse TOML: %w", err)
	}

	return cfg, nil
}

// ApplyEnv overrides file values with environment variables when present.
func (c *Config) ApplyEnv() {
	setString(&c.Store.Backend, "CLAIMGRAPH_BACKEND")
	setString(&c.Memgraph.URI, "MEMGRAPH_URI")
	setString(&c.Memgraph.User, "MEMGRAPH_USER")
	setString(&c.Memgraph.Password, "MEMGRAPH_PASSWORD")
	setString(&c.Memgraph.Database, "MEMGRAPH_DATABASE")
	setString(&c.Gremlin.Hostname, "AZURE_COSMOS_HOSTNAME")
	setInt(&c.Gremlin.Port, "AZURE_COSMOS_PORT")
	setString(&c.Gremlin.Username, "AZURE_COSMOS_USERNAME")
	setString(&c.Gremlin.Password, "AZURE_COSMOS_PASSWORD")
	setString(&c.Gremlin.PartitionKey, "AZURE_COSMOS_PARTITION_KEY")
	setString(&c.Lock.RedisAddr, "REDIS_ADDR")
	setString(&c.Log.Mode, "CLAIMGRAPH_LOG_MODE")
	setString(&c.Server.Addr, "CLAIMGRAPH_ADDR")
}

func setString(dst *string, name string) {
	if v := strings.TrimSpace(os.Getenv(name)); v != "" {
		*dst = v
	}
}

func setInt(dst *int, name string) {
	v := strings.TrimSpace(os.Getenv(name))
	if v == "" {
		return
	}
	if i, err := strconv.Atoi(v); err == nil {
		*dst = i
	}
}

// Validate reports missing connection parameters as a FatalSetupError.
func (c *Config) Validate() error {
	switch c.Store.Backend {
	case BackendBolt:
		if c.Memgraph.URI == "" {
			return &model.FatalSetupError{Reason: "memgraph.uri is required for the bolt backend"}
		}
	case BackendGremlin:
		var missing []string
		if c.Gremlin.Hostname == "" {
			missing = append(missing, "hostname")
		}
		if c.Gremlin.Port <= 0 {
			missing = append(missing, "port")
		}
		if c.Gremlin.Username == "" {
			missing = append(missing, "username")
		}
		if c.Gremlin.Password == "" {
			missing = append(missing, "password")
		}
		if len(missing) > 0 {
			return &model.FatalSetupError{Reason: "gremlin backend missing " + strings.Join(missing, ", ")}
		}
	case BackendMemory:
	default:
		return &model.FatalSetupError{Reason: fmt.Sprintf("unknown store backend %q", c.Store.Backend)}
	}

	switch c.Input.ClaimantKey {
	case model.KeyClaimantID, model.KeyClaimantName:
	default:
		return &model.FatalSetupError{Reason: fmt.Sprintf("input.claimant_key must be %s or %s", model.KeyClaimantID, model.KeyClaimantName)}
	}

	switch c.Lock.Mode {
	case LockLocal, "":
	case LockRedis:
		if c.Lock.RedisAddr == "" {
			return &model.FatalSetupError{Reason: "lock.redis_addr is required for redis locks"}
		}
	default:
		return &model.FatalSetupError{Reason: fmt.Sprintf("unknown lock mode %q", c.Lock.Mode)}
	}

	if c.Concurrency.Rules < 1 {
		c.Concurrency.Rules = 1
	}
	if c.Concurrency.Rows < 1 {
		c.Concurrency.Rows = 1
	}
	return nil
}

// Entities lists the vertex phases in load order.
func (c *Config) Entities() []model.EntitySpec {
	return []model.EntitySpec{
		{Label: model.LabelClaim, NaturalKey: model.KeyClaimID, Dir: c.Input.ClaimDir},
		{Label: model.LabelClaimant, NaturalKey: c.Input.ClaimantKey, Dir: c.Input.ClaimantDir},
		{Label: model.LabelAgent, NaturalKey: model.KeyAgentID, Dir: c.Input.AgentDir},
	}
}

// Duration decodes TOML strings such as "30s".
type Duration time.Duration

func (d Duration) Std() time.Duration { return time.Duration(d) }

func (d *Duration) UnmarshalText(text []byte) error {
	v, err := time.ParseDuration(string(text))
	if err != nil {
		return err
	}
	*d = Duration(v)
	return nil
}

func (d Duration) MarshalText() ([]byte, error) {
	return []byte(time.Duration(d).String()), nil
}
