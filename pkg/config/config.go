package config

import (
	"fmt"
	"net"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/msthilaire5/Level-Site-PPDT/pkg/common"
	"github.com/msthilaire5/Level-Site-PPDT/pkg/fixedpoint"
	"gopkg.in/yaml.v3"
)

type Config struct {
	Server    ServerConfig    `yaml:"server"`
	LevelSite LevelSiteConfig `yaml:"level_site"`
	Client    ClientConfig    `yaml:"client"`
	TLS       TLSConfig       `yaml:"tls"`
}

// ServerConfig configures the authority.
type ServerConfig struct {
	Addr        string   `yaml:"addr"`         // TCP listen address (e.g. :9000)
	StatusAddr  string   `yaml:"status_addr"`  // HTTP status address, empty disables it
	Model       string   `yaml:"model"`        // trained tree file
	LevelSites  []string `yaml:"level_sites"`  // level-sites to train; empty runs combined
	Policy      string   `yaml:"policy"`       // paillier, elgamal or alternate
	TrainSecret string   `yaml:"train_secret"` // signs training data; required with level_sites
}

type LevelSiteConfig struct {
	Addr        string `yaml:"addr"`
	StatusAddr  string `yaml:"status_addr"`
	Policy      string `yaml:"policy"`
	DataDir     string `yaml:"data_dir"`
	TrainSecret string `yaml:"train_secret"` // must match server.train_secret
}

type ClientConfig struct {
	Server       string        `yaml:"server"`      // authority address
	LevelSites   []string      `yaml:"level_sites"` // in depth order
	Precision    int           `yaml:"precision"`
	KeySize      int           `yaml:"key_size"`
	DataDir      string        `yaml:"data_dir"`
	DialTimeout  time.Duration `yaml:"dial_timeout"`
	RoundTimeout time.Duration `yaml:"round_timeout"`
}

type TLSConfig struct {
	Enabled            bool   `yaml:"enabled"`
	Cert               string `yaml:"cert"`
	Key                string `yaml:"key"`
	CA                 string `yaml:"ca"`
	InsecureSkipVerify bool   `yaml:"insecure_skip_verify"`
}

// Role selects which part of the configuration Validate checks.
type Role int

const (
	RoleServer Role = iota
	RoleLevelSite
	RoleClient
)

// Default returns the built-in configuration.
func Default() *Config {
	return &Config{
		Server: ServerConfig{
			Addr:   ":9000",
			Model:  "model.yaml",
			Policy: "alternate",
		},
		LevelSite: LevelSiteConfig{
			Addr:    ":9001",
			Policy:  "alternate",
			DataDir: "ppdt_data",
		},
		Client: ClientConfig{
			Server:       "127.0.0.1:9000",
			Precision:    2,
			KeySize:      2048,
			DataDir:      "ppdt_data",
			DialTimeout:  5 * time.Second,
			RoundTimeout: 2 * time.Minute,
		},
	}
}

// Load reads configPath over the defaults. An empty path searches the usual
// locations and falls back to the defaults.
func Load(configPath string) (*Config, error) {
	cfg := Default()

	if configPath == "" {
		for _, p := range []string{"configs/ppdt.yaml", "ppdt.yaml"} {
			data, err := os.ReadFile(p)
			if err == nil {
				if err := yaml.Unmarshal(data, cfg); err != nil {
					return cfg, common.ConfigError("parsing "+p, err)
				}
				applyDefaults(cfg)
				return cfg, nil
			}
		}
		applyDefaults(cfg)
		return cfg, nil // no file found: use defaults
	}

	data, err := os.ReadFile(configPath)
	if err != nil {
		return cfg, common.ConfigError("reading config", err)
	}

	if err := yaml.Unmarshal(data, cfg); err != nil {
		return cfg, common.ConfigError("parsing "+configPath, err)
	}

	applyDefaults(cfg)
	return cfg, nil
}

func applyDefaults(cfg *Config) {
	d := Default()
	if cfg.Client.KeySize <= 0 {
		cfg.Client.KeySize = d.Client.KeySize
	}
	if cfg.Client.DialTimeout <= 0 {
		cfg.Client.DialTimeout = d.Client.DialTimeout
	}
	if cfg.Client.RoundTimeout <= 0 {
		cfg.Client.RoundTimeout = d.Client.RoundTimeout
	}
	if cfg.Server.Policy == "" {
		cfg.Server.Policy = d.Server.Policy
	}
	if cfg.LevelSite.Policy == "" {
		cfg.LevelSite.Policy = d.LevelSite.Policy
	}
}

// ApplyEnv overrides the configuration from the environment. getenv is
// usually os.Getenv.
//
//	LEVEL_SITE_DOMAINS  comma separated level-site hosts, in depth order
//	PORT_NUM            level-site port, appended to hosts without one
//	PRECISION           fixed-point digits
//	PPDT_KEY_SIZE       Paillier modulus size in bits
//	SERVER              authority address
//	TRAINING            trained tree file
//	PPDT_DATA_DIR       directory for the key and level stores
//	PPDT_TRAIN_SECRET   secret shared by the authority and its level-sites
func (c *Config) ApplyEnv(getenv func(string) string) error {
	port := strings.TrimSpace(getenv("PORT_NUM"))
	if port != "" {
		if _, err := strconv.Atoi(port); err != nil {
			return common.ConfigError("PORT_NUM is not a number", err)
		}
		c.LevelSite.Addr = ":" + port
	}
	if v := getenv("LEVEL_SITE_DOMAINS"); v != "" {
		var sites []string
		for _, host := range strings.Split(v, ",") {
			host = strings.TrimSpace(host)
			if host == "" {
				continue
			}
			if _, _, err := net.SplitHostPort(host); err != nil {
				if port == "" {
					return common.ConfigError(fmt.Sprintf("level-site %q has no port and PORT_NUM is unset", host), nil)
				}
				host = net.JoinHostPort(host, port)
			}
			sites = append(sites, host)
		}
		c.Server.LevelSites = sites
		c.Client.LevelSites = sites
	}
	if v := getenv("PRECISION"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			return common.ConfigError("PRECISION is not a number", err)
		}
		c.Client.Precision = n
	}
	if v := getenv("PPDT_KEY_SIZE"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			return common.ConfigError("PPDT_KEY_SIZE is not a number", err)
		}
		c.Client.KeySize = n
	}
	if v := getenv("SERVER"); v != "" {
		c.Client.Server = v
	}
	if v := getenv("TRAINING"); v != "" {
		c.Server.Model = v
	}
	if v := getenv("PPDT_DATA_DIR"); v != "" {
		c.LevelSite.DataDir = v
		c.Client.DataDir = v
	}
	if v := getenv("PPDT_TRAIN_SECRET"); v != "" {
		c.Server.TrainSecret = v
		c.LevelSite.TrainSecret = v
	}
	return nil
}

// Validate checks the parts of the configuration the given role uses.
func (c *Config) Validate(role Role) error {
	if c.TLS.Enabled && role != RoleClient && (c.TLS.Cert == "" || c.TLS.Key == "") {
		return common.ConfigError("tls enabled without cert and key", nil)
	}
	switch role {
	case RoleServer:
		if c.Server.Addr == "" {
			return common.ConfigError("server.addr is empty", nil)
		}
		if c.Server.Model == "" {
			return common.ConfigError("server.model is empty", nil)
		}
		if len(c.Server.LevelSites) > 0 && c.Server.TrainSecret == "" {
			return common.ConfigError("server.train_secret is required with level_sites", nil)
		}
		return checkAddrs(c.Server.LevelSites)
	case RoleLevelSite:
		if c.LevelSite.Addr == "" {
			return common.ConfigError("level_site.addr is empty", nil)
		}
		if c.LevelSite.DataDir == "" {
			return common.ConfigError("level_site.data_dir is empty", nil)
		}
		if c.LevelSite.TrainSecret == "" {
			return common.ConfigError("level_site.train_secret is empty", nil)
		}
		return nil
	case RoleClient:
		if c.Client.Server == "" {
			return common.ConfigError("client.server is empty", nil)
		}
		if c.Client.Precision < 0 || c.Client.Precision > fixedpoint.MaxPrecision {
			return common.ConfigError(fmt.Sprintf("precision %d out of range [0, %d]",
				c.Client.Precision, fixedpoint.MaxPrecision), nil)
		}
		if c.Client.KeySize < 512 {
			return common.ConfigError(fmt.Sprintf("key size %d too small", c.Client.KeySize), nil)
		}
		return checkAddrs(c.Client.LevelSites)
	}
	return common.ConfigError("unknown role", nil)
}

func checkAddrs(addrs []string) error {
	for _, a := range addrs {
		if _, _, err := net.SplitHostPort(a); err != nil {
			return common.ConfigError(fmt.Sprintf("invalid level-site address %q", a), err)
		}
	}
	return nil
}
