// Copyright (C) 2017 ScyllaDB

package config

import (
	"strings"
	"time"

	"github.com/pkg/errors"
	"github.com/reaperd/reaperd/pkg/repair"
	"github.com/reaperd/reaperd/pkg/util/cfgutil"
)

// Storage backends.
const (
	StorageMemory   = "memory"
	StorageDatabase = "database"
)

// Node transports. The simulator is the only transport shipped with the
// daemon, deployments provide their own behind node.Provider.
const (
	TransportSim = "sim"
)

// DBConfig specifies the reaperd backend database configuration options.
type DBConfig struct {
	Hosts                         []string      `yaml:"hosts"`
	User                          string        `yaml:"user"`
	Password                      string        `yaml:"password"`
	Keyspace                      string        `yaml:"keyspace"`
	MigrateTimeout                time.Duration `yaml:"migrate_timeout"`
	MigrateMaxWaitSchemaAgreement time.Duration `yaml:"migrate_max_wait_schema_agreement"`
	ReplicationFactor             int           `yaml:"replication_factor"`
	Timeout                       time.Duration `yaml:"timeout"`
	TokenAware                    bool          `yaml:"token_aware"`

	// InitAddr specifies address used to create the keyspace and tables.
	InitAddr string
}

// Config contains configuration structure for the reaperd server.
type Config struct {
	HTTP        string        `yaml:"http"`
	HTTPS       string        `yaml:"https"`
	TLSCertFile string        `yaml:"tls_cert_file"`
	TLSKeyFile  string        `yaml:"tls_key_file"`
	Prometheus  string        `yaml:"prometheus"`
	Debug       string        `yaml:"debug"`
	Storage     string        `yaml:"storage"`
	Transport   string        `yaml:"transport"`
	Logger      LogConfig     `yaml:"logger"`
	Database    DBConfig      `yaml:"database"`
	Repair      repair.Config `yaml:"repair"`
}

func DefaultConfig() Config {
	return Config{
		Prometheus: ":5090",
		Debug:      "127.0.0.1:5112",
		Storage:    StorageMemory,
		Transport:  TransportSim,
		Logger:     DefaultLogConfig(),
		Database: DBConfig{
			Hosts:                         []string{"127.0.0.1"},
			Keyspace:                      "reaperd",
			MigrateTimeout:                30 * time.Second,
			MigrateMaxWaitSchemaAgreement: 5 * time.Minute,
			ReplicationFactor:             1,
			Timeout:                       600 * time.Millisecond,
			TokenAware:                    true,
		},
		Repair: repair.DefaultConfig(),
	}
}

// ParseConfigFiles takes list of configuration file paths and returns parsed
// config struct with merged configuration from all provided files.
func ParseConfigFiles(files []string) (Config, error) {
	c := DefaultConfig()
	return c, cfgutil.ParseYAML(&c, files...)
}

// Validate checks if config contains correct values.
func (c Config) Validate() error {
	if c.HTTP == "" && c.HTTPS == "" {
		return errors.New("missing http or https")
	}
	if c.HTTPS != "" {
		if c.TLSCertFile == "" {
			return errors.New("missing tls_cert_file")
		}
		if c.TLSKeyFile == "" {
			return errors.New("missing tls_key_file")
		}
	}

	switch c.Storage {
	case StorageMemory:
	case StorageDatabase:
		if len(c.Database.Hosts) == 0 {
			return errors.New("missing database.hosts")
		}
		if c.Database.ReplicationFactor <= 0 {
			return errors.New("invalid database.replication_factor <= 0")
		}
	default:
		return errors.Errorf("unknown storage %q", c.Storage)
	}

	switch c.Transport {
	case TransportSim:
	default:
		return errors.Errorf("unknown transport %q", c.Transport)
	}

	if err := c.Repair.Validate(); err != nil {
		return errors.Wrap(err, "repair")
	}

	return nil
}

// Obfuscate returns Config with secrets replaced with ******.
func Obfuscate(c Config) Config {
	c.Database.Password = strings.Repeat("*", len(c.Database.Password))
	return c
}
