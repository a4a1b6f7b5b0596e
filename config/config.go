package config

import (
	"github.com/hashicorp/go-multierror"
	"github.com/sirupsen/logrus"
	"golang.org/x/xerrors"
	"gopkg.in/yaml.v3"
	"os"
	"time"
)

// ErrConfigNotFound is returned when the configuration file does not exist.
var ErrConfigNotFound = xerrors.New("configuration file not found")

// Supported storage drivers.
const (
	DriverMemory      = "memory"
	DriverSQLite      = "sqlite"
	DriverCockroachDB = "cockroachdb"
)

// Config is the blogrank application configuration.
type Config struct {
	Storage Storage `yaml:"storage"`
	Spider  Spider  `yaml:"spider"`
	Rank    Rank    `yaml:"rank"`
	Metrics Metrics `yaml:"metrics"`
	Log     Log     `yaml:"log"`
}

// Storage selects the link graph store.
type Storage struct {
	// Driver is one of memory, sqlite or cockroachdb.
	Driver string `yaml:"driver"`

	// DSN is the database file path for sqlite or the connection string
	// for cockroachdb.
	DSN string `yaml:"dsn"`
}

// Spider holds the spider and fetcher settings.
type Spider struct {
	MaxDepth int `yaml:"max_depth"`

	// ScanWorkers fixes the number of link roll parsers. Zero spawns
	// parsers on demand up to the number of CPUs.
	ScanWorkers  int           `yaml:"scan_workers"`
	UserAgent    string        `yaml:"user_agent"`
	FetchTimeout time.Duration `yaml:"fetch_timeout"`
	MaxBodySize  int64         `yaml:"max_body_size"`

	// Seeds are spidered periodically by the serve command. An empty
	// list disables the spider service.
	Seeds          []string      `yaml:"seeds"`
	UpdateInterval time.Duration `yaml:"update_interval"`
}

// Rank holds the ranking service settings.
type Rank struct {
	DampingFactor  float64       `yaml:"damping_factor"`
	MaxIterations  int           `yaml:"max_iterations"`
	ComputeWorkers int           `yaml:"compute_workers"`
	UpdateInterval time.Duration `yaml:"update_interval"`
}

// Metrics configures the metrics endpoint of the serve command.
type Metrics struct {
	ListenAddr string `yaml:"listen_addr"`
}

// Log configures the application logger.
type Log struct {
	// Level is any level understood by logrus.ParseLevel.
	Level string `yaml:"level"`

	// Format is either text or json.
	Format string `yaml:"format"`
}

// Default returns the configuration used when no file is provided.
func Default() *Config {
	return &Config{
		Storage: Storage{
			Driver: DriverSQLite,
			DSN:    "blogrank.db",
		},
		Spider: Spider{
			MaxDepth:     2,
			UserAgent:    "blogrank/1.0",
			FetchTimeout: 30 * time.Second,
			MaxBodySize:  4 << 20,

			UpdateInterval: 24 * time.Hour,
		},
		Rank: Rank{
			DampingFactor:  0.85,
			MaxIterations:  1000,
			ComputeWorkers: 1,
			UpdateInterval: time.Hour,
		},
		Metrics: Metrics{
			ListenAddr: ":9090",
		},
		Log: Log{
			Level:  "info",
			Format: "text",
		},
	}
}

// Load reads a YAML configuration file. Settings missing from the file keep
// their default values. If the file does not exist, ErrConfigNotFound is
// returned.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, xerrors.Errorf("load %q: %w", path, ErrConfigNotFound)
		}
		return nil, xerrors.Errorf("load %q: %w", path, err)
	}

	cfg := Default()
	if err = yaml.Unmarshal(data, cfg); err != nil {
		return nil, xerrors.Errorf("load %q: %w", path, err)
	}
	if err = cfg.Validate(); err != nil {
		return nil, xerrors.Errorf("load %q: %w", path, err)
	}
	return cfg, nil
}

// Validate checks the configuration for errors.
func (c *Config) Validate() error {
	var err error
	switch c.Storage.Driver {
	case DriverMemory:
	case DriverSQLite, DriverCockroachDB:
		if c.Storage.DSN == "" {
			err = multierror.Append(err, xerrors.Errorf("storage dsn is required for the %s driver", c.Storage.Driver))
		}
	default:
		err = multierror.Append(err, xerrors.Errorf("unsupported storage driver %q", c.Storage.Driver))
	}
	if c.Spider.MaxDepth < 0 {
		err = multierror.Append(err, xerrors.Errorf("invalid value for spider max depth"))
	}
	if c.Spider.ScanWorkers < 0 {
		err = multierror.Append(err, xerrors.Errorf("invalid value for spider scan workers"))
	}
	if c.Spider.FetchTimeout < 0 {
		err = multierror.Append(err, xerrors.Errorf("invalid value for spider fetch timeout"))
	}
	if len(c.Spider.Seeds) != 0 && c.Spider.UpdateInterval <= 0 {
		err = multierror.Append(err, xerrors.Errorf("invalid value for spider update interval"))
	}
	if c.Rank.DampingFactor < 0 || c.Rank.DampingFactor > 1 {
		err = multierror.Append(err, xerrors.Errorf("rank damping factor must be in the [0, 1] range"))
	}
	if c.Rank.UpdateInterval <= 0 {
		err = multierror.Append(err, xerrors.Errorf("invalid value for rank update interval"))
	}
	if _, lErr := logrus.ParseLevel(c.Log.Level); lErr != nil {
		err = multierror.Append(err, lErr)
	}
	if c.Log.Format != "text" && c.Log.Format != "json" {
		err = multierror.Append(err, xerrors.Errorf("unsupported log format %q", c.Log.Format))
	}
	return err
}

// Logger returns a logger configured according to the Log settings.
func (c *Config) Logger() *logrus.Entry {
	logger := logrus.New()
	if level, err := logrus.ParseLevel(c.Log.Level); err == nil {
		logger.SetLevel(level)
	}
	if c.Log.Format == "json" {
		logger.SetFormatter(new(logrus.JSONFormatter))
	} else {
		logger.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})
	}
	return logrus.NewEntry(logger)
}
