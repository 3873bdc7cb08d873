package main

import (
	"os"
	"strings"

	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
	flag "github.com/spf13/pflag"
	"github.com/spf13/viper"

	"github.com/fortiblox/x1-rewards/pkg/svm/programs/rewards"
	"github.com/fortiblox/x1-rewards/pkg/types"
)

// Config is the host configuration. Values come from, in increasing
// precedence: defaults, the config file, X1_REWARDS_* environment variables
// and command line flags.
type Config struct {
	DataDir      string  `mapstructure:"data_dir"`
	LogLevel     string  `mapstructure:"log_level"`
	ProgramID    string  `mapstructure:"program_id"`
	Mint         string  `mapstructure:"mint"`
	Vault        string  `mapstructure:"vault"`
	MetricsAddr  string  `mapstructure:"metrics_addr"`
	RPCAddr      string  `mapstructure:"rpc_addr"`
	RPCRateLimit float64 `mapstructure:"rpc_rate_limit"`
	ComputeUnits uint64  `mapstructure:"compute_units"`
}

var defaultConfig = Config{
	DataDir:      "x1-rewards-data",
	LogLevel:     "info",
	ProgramID:    types.PubkeyFromSeed("x1-rewards/program").String(),
	Mint:         types.PubkeyFromSeed("x1-rewards/mint").String(),
	Vault:        types.PubkeyFromSeed("x1-rewards/vault").String(),
	MetricsAddr:  "",
	RPCAddr:      "",
	RPCRateLimit: 100,
	ComputeUnits: uint64(types.DefaultComputeUnitsPerInstruction),
}

// configFlags maps config keys to the flags that override them.
var configFlags = map[string]string{
	"data_dir":       "data-dir",
	"log_level":      "log-level",
	"program_id":     "program-id",
	"mint":           "mint",
	"vault":          "vault",
	"metrics_addr":   "metrics-addr",
	"rpc_addr":       "rpc-addr",
	"rpc_rate_limit": "rpc-rate-limit",
	"compute_units":  "compute-units",
}

// addConfigFlags registers the flags shared by every subcommand.
func addConfigFlags(fs *flag.FlagSet) *string {
	configPath := fs.String("config", "config.yaml", "configuration file path (yaml or json)")
	fs.String("data-dir", defaultConfig.DataDir, "account store directory, or :memory:")
	fs.String("log-level", defaultConfig.LogLevel, "log level: debug, info, warn, error")
	fs.String("program-id", defaultConfig.ProgramID, "rewards program id (base58)")
	fs.String("mint", defaultConfig.Mint, "reward token mint (base58)")
	fs.String("vault", defaultConfig.Vault, "reward vault token account (base58)")
	fs.String("metrics-addr", defaultConfig.MetricsAddr, "Prometheus listen address, empty to disable")
	fs.String("rpc-addr", defaultConfig.RPCAddr, "JSON-RPC listen address for serve, empty to disable")
	fs.Float64("rpc-rate-limit", defaultConfig.RPCRateLimit, "JSON-RPC requests per second per client, 0 to disable")
	fs.Uint64("compute-units", defaultConfig.ComputeUnits, "compute budget per transaction")
	return configPath
}

// loadConfig resolves the configuration for a parsed flag set.
func loadConfig(fs *flag.FlagSet, configPath string) (Config, error) {
	v := viper.New()
	v.SetEnvPrefix("X1_REWARDS")
	v.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	v.AutomaticEnv()

	v.SetDefault("data_dir", defaultConfig.DataDir)
	v.SetDefault("log_level", defaultConfig.LogLevel)
	v.SetDefault("program_id", defaultConfig.ProgramID)
	v.SetDefault("mint", defaultConfig.Mint)
	v.SetDefault("vault", defaultConfig.Vault)
	v.SetDefault("metrics_addr", defaultConfig.MetricsAddr)
	v.SetDefault("rpc_addr", defaultConfig.RPCAddr)
	v.SetDefault("rpc_rate_limit", defaultConfig.RPCRateLimit)
	v.SetDefault("compute_units", defaultConfig.ComputeUnits)

	for key, name := range configFlags {
		if err := v.BindPFlag(key, fs.Lookup(name)); err != nil {
			return Config{}, errors.Wrapf(err, "failed to bind flag %s", name)
		}
	}

	// An explicitly named config file that does not exist is only an error
	// when the user asked for it.
	if _, err := os.Stat(configPath); err == nil {
		v.SetConfigFile(configPath)
		if err := v.ReadInConfig(); err != nil {
			return Config{}, errors.Wrapf(err, "failed to read config %s", configPath)
		}
	} else if !os.IsNotExist(err) || fs.Changed("config") {
		return Config{}, errors.Wrapf(err, "failed to open config %s", configPath)
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return Config{}, errors.Wrap(err, "failed to unmarshal config")
	}
	return cfg, nil
}

// Rewards parses the deployment identities.
func (c Config) Rewards() (rewards.Config, error) {
	var cfg rewards.Config
	var err error
	if cfg.ProgramID, err = types.PubkeyFromBase58(c.ProgramID); err != nil {
		return cfg, errors.Wrap(err, "invalid program_id")
	}
	if cfg.Mint, err = types.PubkeyFromBase58(c.Mint); err != nil {
		return cfg, errors.Wrap(err, "invalid mint")
	}
	if cfg.Vault, err = types.PubkeyFromBase58(c.Vault); err != nil {
		return cfg, errors.Wrap(err, "invalid vault")
	}
	cfg.TokenProgram = types.TokenProgramID
	return cfg, nil
}

func configureLogger(level string) error {
	parsed, err := logrus.ParseLevel(level)
	if err != nil {
		return errors.Wrapf(err, "invalid log_level %q", level)
	}
	logrus.SetLevel(parsed)
	logrus.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})
	return nil
}
