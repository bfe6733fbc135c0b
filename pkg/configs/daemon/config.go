// Package daemon is the configuration of knitfleetd.
package daemon

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/opst/knitfleet/pkg/logging"
	"gopkg.in/yaml.v3"
)

var ErrInvalidConfig = errors.New("config: invalid")

const (
	DefaultPort            = "8080"
	DefaultShutdownTimeout = 30 * time.Second
	DefaultLockTTL         = 30 * time.Second
	DefaultAuditQueueSize  = 1000
)

// drivers
const (
	Memory   = "memory"
	Postgres = "postgres"
	Redis    = "redis"
	Log      = "log"
)

type Config struct {
	Server  ServerConfig   `yaml:"server"`
	Logging logging.Config `yaml:"logging"`
	Store   StoreConfig    `yaml:"store"`
	Audit   AuditConfig    `yaml:"audit"`
	Lock    LockConfig     `yaml:"lock"`
	Auth    AuthConfig     `yaml:"auth"`
	Summary SummaryConfig  `yaml:"summary"`
	Colos   []ColoConfig   `yaml:"colos"`
}

type ServerConfig struct {
	Port string `yaml:"port"`

	// how long in-flight requests are waited on shutdown.
	ShutdownTimeout time.Duration `yaml:"shutdownTimeout"`
}

type StoreConfig struct {
	// memory (default) or postgres.
	Driver string `yaml:"driver"`

	// connection string of postgres.
	URI string `yaml:"uri"`

	MaxConns int32 `yaml:"maxConns"`

	// yaml files of entities loaded on start. Each file has one entity document.
	Entities []string `yaml:"entities"`
}

type AuditConfig struct {
	// log (default) or postgres. Postgres audit shares the database with the store.
	Sink string `yaml:"sink"`

	QueueSize int `yaml:"queueSize"`
}

type LockConfig struct {
	// memory (default) or redis.
	Driver string `yaml:"driver"`

	Addr     string `yaml:"addr"`
	Password string `yaml:"password"`
	DB       int    `yaml:"db"`

	// expiry of locks held in redis.
	TTL time.Duration `yaml:"ttl"`
}

type AuthConfig struct {
	// file containing the secret to verify bearer tokens.
	// When empty, requests are not authenticated and audited as anonymous.
	SecretFile string `yaml:"secretFile"`

	Issuer string `yaml:"issuer"`

	// reject requests without token.
	Required bool `yaml:"required"`
}

// Enabled reports tokens are verified.
func (a AuthConfig) Enabled() bool {
	return a.SecretFile != ""
}

// Secret reads the secret file. Trailing newlines are trimmed.
func (a AuthConfig) Secret() ([]byte, error) {
	content, err := os.ReadFile(a.SecretFile)
	if err != nil {
		return nil, err
	}
	return []byte(strings.TrimRight(string(content), "\r\n")), nil
}

type SummaryConfig struct {
	// how many entities are queried at once in entity summaries.
	Parallelism int `yaml:"parallelism"`
}

type ColoConfig struct {
	Name string `yaml:"name"`

	// kubernetes namespace where CronJobs of entities are placed.
	Namespace string `yaml:"namespace"`

	// path to kubeconfig. When empty, KUBECONFIG, ~/.kube/config or in-cluster config is used.
	Kubeconfig string `yaml:"kubeconfig"`
	Context    string `yaml:"context"`

	// cluster name reported in instances. Default is Name.
	Cluster string `yaml:"cluster"`

	// timeout of actions on this colo. 0 means no timeout.
	Timeout time.Duration `yaml:"timeout"`

	// text/template of log URL of instances.
	LogTemplate string `yaml:"logTemplate"`
}

// Load reads config from a yaml file.
func Load(filepath string) (*Config, error) {
	content, err := os.ReadFile(filepath)
	if err != nil {
		return nil, err
	}
	return Unmarshal(content)
}

// Unmarshal parses yaml config, fills defaults and validates it.
func Unmarshal(content []byte) (*Config, error) {
	var out Config
	if err := yaml.Unmarshal(content, &out); err != nil {
		return nil, err
	}
	out.setDefaults()
	if err := out.Validate(); err != nil {
		return nil, err
	}
	return &out, nil
}

func (c *Config) setDefaults() {
	if c.Server.Port == "" {
		c.Server.Port = DefaultPort
	}
	if c.Server.ShutdownTimeout <= 0 {
		c.Server.ShutdownTimeout = DefaultShutdownTimeout
	}
	if c.Store.Driver == "" {
		c.Store.Driver = Memory
	}
	if c.Audit.Sink == "" {
		c.Audit.Sink = Log
	}
	if c.Audit.QueueSize <= 0 {
		c.Audit.QueueSize = DefaultAuditQueueSize
	}
	if c.Lock.Driver == "" {
		c.Lock.Driver = Memory
	}
	if c.Lock.TTL <= 0 {
		c.Lock.TTL = DefaultLockTTL
	}
	for i := range c.Colos {
		if c.Colos[i].Cluster == "" {
			c.Colos[i].Cluster = c.Colos[i].Name
		}
	}
}

func invalid(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrInvalidConfig, fmt.Sprintf(format, args...))
}

func (c *Config) Validate() error {
	switch c.Store.Driver {
	case Memory:
	case Postgres:
		if c.Store.URI == "" {
			return invalid("store.uri is required for postgres")
		}
	default:
		return invalid("store.driver should be %s or %s: %s", Memory, Postgres, c.Store.Driver)
	}

	switch c.Audit.Sink {
	case Log:
	case Postgres:
		if c.Store.Driver != Postgres {
			return invalid("audit.sink %s requires store.driver %s", Postgres, Postgres)
		}
	default:
		return invalid("audit.sink should be %s or %s: %s", Log, Postgres, c.Audit.Sink)
	}

	switch c.Lock.Driver {
	case Memory:
	case Redis:
		if c.Lock.Addr == "" {
			return invalid("lock.addr is required for redis")
		}
	default:
		return invalid("lock.driver should be %s or %s: %s", Memory, Redis, c.Lock.Driver)
	}

	if c.Auth.Required && !c.Auth.Enabled() {
		return invalid("auth.required needs auth.secretFile")
	}

	if len(c.Colos) == 0 {
		return invalid("no colos")
	}
	seen := map[string]struct{}{}
	for _, colo := range c.Colos {
		switch colo.Name {
		case "":
			return invalid("colo without name")
		case "*":
			return invalid(`"*" is reserved and cannot be a colo name`)
		}
		if _, ok := seen[colo.Name]; ok {
			return invalid("colo %s is duplicated", colo.Name)
		}
		seen[colo.Name] = struct{}{}
		if colo.Namespace == "" {
			return invalid("colo %s has no namespace", colo.Name)
		}
	}
	return nil
}

// Files returns config files whose modification should restart the daemon.
func (c *Config) Files() []string {
	files := []string{}
	if c.Auth.Enabled() {
		files = append(files, c.Auth.SecretFile)
	}
	for _, colo := range c.Colos {
		if colo.Kubeconfig != "" {
			files = append(files, colo.Kubeconfig)
		}
	}
	return files
}
