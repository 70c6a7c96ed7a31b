package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/defistate/defistate-arb-go/journal"
	"github.com/defistate/defistate-arb-go/protocols/poolregistry"
	"github.com/defistate/defistate-arb-go/solver"
	"github.com/gagliardetto/solana-go"
	"gopkg.in/yaml.v3"
)

const (
	FeedSourceWS    = "ws"
	FeedSourceRelay = "relay"
)

type FeedConfig struct {
	Source     string `yaml:"source"`
	RelayURL   string `yaml:"relay_url"`
	BufferSize uint   `yaml:"buffer_size"`
}

type StrategyConfig struct {
	StartCurrency    int     `yaml:"start_currency"`
	SafetyPercentage float64 `yaml:"safety_percentage"`
	MinimumGain      uint64  `yaml:"minimum_gain"`
	MinimumGainP     float64 `yaml:"minimum_gain_p"`
	MinimumMoney     uint64  `yaml:"minimum_money"`
	Slippage         float64 `yaml:"slippage"`
	MaxCycleLength   int     `yaml:"max_cycle_length"`
	MinimumDisplay   float64 `yaml:"minimum_display"`
	Cooldown         uint64  `yaml:"cooldown"`
	Greed            float64 `yaml:"greed"`
}

type ExecutionConfig struct {
	ExtraBudget   uint64        `yaml:"extra_budget"`
	Simulate      bool          `yaml:"simulate"`
	QueueSize     int           `yaml:"queue_size"`
	SubmitTimeout time.Duration `yaml:"submit_timeout"`
}

type ProgramsConfig struct {
	Token      string `yaml:"token"`
	Swap       string `yaml:"swap"`
	StepSwap   string `yaml:"step_swap"`
	OrcaSwap   string `yaml:"orca_swap"`
	OrcaSwapV2 string `yaml:"orca_swap_v2"`
	RaydiumV2  string `yaml:"raydium_v2"`
	RaydiumV3  string `yaml:"raydium_v3"`
	RaydiumV4  string `yaml:"raydium_v4"`
	SerumV2    string `yaml:"serum_v2"`
	SerumV3    string `yaml:"serum_v3"`
}

type InspectConfig struct {
	Addr                string        `yaml:"addr"`
	RedisMirrorInterval time.Duration `yaml:"redis_mirror_interval"`
	RedisMirrorPrefix   string        `yaml:"redis_mirror_prefix"`
}

type JournalConfig struct {
	Driver        string `yaml:"driver"`
	RedisAddr     string `yaml:"redis_addr"`
	RedisDB       int    `yaml:"redis_db"`
	RedisPassword string `yaml:"redis_password"`
	Stream        string `yaml:"stream"`
	MaxLen        int64  `yaml:"max_len"`
	SQLitePath    string `yaml:"sqlite_path"`
}

// ArbConfig is the whole configuration of the arb binary.
type ArbConfig struct {
	ClusterURL     string `yaml:"cluster_url"`
	ClusterURLSend string `yaml:"cluster_url_send"`
	WSURL          string `yaml:"ws_url"`
	Commitment     string `yaml:"commitment"`
	WalletPath     string `yaml:"wallet_path"`
	CurrenciesPath string `yaml:"currencies_path"`
	PoolsPath      string `yaml:"pools_path"`

	Feed      FeedConfig      `yaml:"feed"`
	Strategy  StrategyConfig  `yaml:"strategy"`
	Execution ExecutionConfig `yaml:"execution"`
	Programs  ProgramsConfig  `yaml:"programs"`
	Inspect   InspectConfig   `yaml:"inspect"`
	Journal   JournalConfig   `yaml:"journal"`
}

// LoadConfig reads a configuration file from the given path, unmarshals it
// into an ArbConfig, fills defaults and validates the result.
func LoadConfig(path string) (*ArbConfig, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	var cfg ArbConfig
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("unmarshal %s: %w", path, err)
	}
	cfg.applyDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func (c *ArbConfig) applyDefaults() {
	if c.ClusterURLSend == "" {
		c.ClusterURLSend = c.ClusterURL
	}
	if c.WSURL == "" {
		c.WSURL = websocketURL(c.ClusterURL)
	}
	if c.Commitment == "" {
		c.Commitment = "confirmed"
	}
	if c.Feed.Source == "" {
		c.Feed.Source = FeedSourceWS
	}
	if c.Feed.BufferSize == 0 {
		c.Feed.BufferSize = 1024
	}
	if c.Strategy.MinimumGainP < 1 {
		c.Strategy.MinimumGainP = 1
	}
	if c.Strategy.Greed == 0 {
		c.Strategy.Greed = 1
	}
	if c.Strategy.MaxCycleLength == 0 {
		c.Strategy.MaxCycleLength = 3
	}
	if c.Execution.QueueSize == 0 {
		c.Execution.QueueSize = 16
	}
	if c.Execution.SubmitTimeout == 0 {
		c.Execution.SubmitTimeout = 30 * time.Second
	}
	if c.Inspect.Addr == "" {
		c.Inspect.Addr = ":9090"
	}
	if c.Journal.Driver == "" {
		c.Journal.Driver = journal.DriverNone
	}

	p := &c.Programs
	setDefault(&p.Token, solana.TokenProgramID.String())
	setDefault(&p.Swap, "SwaPpA9LAaLfeLi3a68M4DjnLqgtticKg6CnyNwgAC8")
	setDefault(&p.StepSwap, "SSwpMgqNDsyV7mAgN9ady4bDVu5ySjmmXejXvy2vLt1")
	setDefault(&p.OrcaSwap, "DjVE6JNiYqPL2QXyCUUh8rNjHrbz9hXHNYt99MQ59qw1")
	setDefault(&p.OrcaSwapV2, "9W959DqEETiGZocYWCQPaJ6sBmUzgfxXfqGeTEdp3aQP")
	setDefault(&p.RaydiumV2, "RVKd61ztZW9GUwhRbbLoYVRE5Xf1B2tVscKqwZqXgEr")
	setDefault(&p.RaydiumV3, "27haf8L6oxUeXrHrgEgsexjSY5hbVUWEmvv9Nyxg8vQv")
	setDefault(&p.RaydiumV4, "675kPX9MHTjS2zt1qfr1NYHuzeLXfQM9H24wFSUt1Mp8")
	setDefault(&p.SerumV2, "EUqojwWA2rd19FZrzeBncJsm38Jm1hEhE3zsmX3bRc2o")
	setDefault(&p.SerumV3, "9xQeWvG816bUx9EPjHmaT23yvVM2ZWbrrpZb9PusVFin")
}

func setDefault(field *string, value string) {
	if *field == "" {
		*field = value
	}
}

// websocketURL derives the pubsub endpoint of an RPC node.
func websocketURL(rpcURL string) string {
	switch {
	case strings.HasPrefix(rpcURL, "https://"):
		return "wss://" + strings.TrimPrefix(rpcURL, "https://")
	case strings.HasPrefix(rpcURL, "http://"):
		return "ws://" + strings.TrimPrefix(rpcURL, "http://")
	}
	return rpcURL
}

// Validate reports the first setting that cannot work.
func (c *ArbConfig) Validate() error {
	if c.ClusterURL == "" {
		return errors.New("config: cluster_url is required")
	}
	if c.WalletPath == "" {
		return errors.New("config: wallet_path is required")
	}
	if c.CurrenciesPath == "" {
		return errors.New("config: currencies_path is required")
	}
	if c.PoolsPath == "" {
		return errors.New("config: pools_path is required")
	}

	switch c.Feed.Source {
	case FeedSourceWS:
	case FeedSourceRelay:
		if c.Feed.RelayURL == "" {
			return errors.New("config: feed.relay_url is required for the relay feed")
		}
	default:
		return fmt.Errorf("config: unknown feed.source %q", c.Feed.Source)
	}

	if c.Strategy.StartCurrency < 0 {
		return errors.New("config: strategy.start_currency cannot be negative")
	}
	if c.Strategy.MaxCycleLength < 2 {
		return fmt.Errorf("config: strategy.max_cycle_length must be at least 2, got %d", c.Strategy.MaxCycleLength)
	}
	if c.Strategy.MinimumDisplay < 0 {
		return errors.New("config: strategy.minimum_display cannot be negative")
	}
	if err := c.SolverParams().Validate(); err != nil {
		return fmt.Errorf("config: strategy: %w", err)
	}

	if c.Execution.QueueSize < 0 {
		return errors.New("config: execution.queue_size cannot be negative")
	}
	if c.Inspect.RedisMirrorInterval < 0 {
		return errors.New("config: inspect.redis_mirror_interval cannot be negative")
	}
	if c.Inspect.RedisMirrorInterval > 0 && c.Journal.RedisAddr == "" {
		return errors.New("config: inspect.redis_mirror_interval needs journal.redis_addr")
	}

	switch c.Journal.Driver {
	case journal.DriverNone:
	case journal.DriverRedis:
		if c.Journal.RedisAddr == "" {
			return errors.New("config: journal.redis_addr is required for the redis journal")
		}
	case journal.DriverSQLite:
		if c.Journal.SQLitePath == "" {
			return errors.New("config: journal.sqlite_path is required for the sqlite journal")
		}
	default:
		return fmt.Errorf("config: unknown journal.driver %q", c.Journal.Driver)
	}

	if _, err := c.ProgramIDs(); err != nil {
		return err
	}
	return nil
}

// SolverParams returns the sizing knobs of the strategy.
func (c *ArbConfig) SolverParams() solver.Params {
	return solver.Params{
		Slippage:         c.Strategy.Slippage,
		Greed:            c.Strategy.Greed,
		SafetyPercentage: c.Strategy.SafetyPercentage,
		MinimumMoney:     c.Strategy.MinimumMoney,
	}
}

// JournalConfig returns the settings of the execution journal.
func (c *ArbConfig) JournalConfig() journal.Config {
	return journal.Config{
		Driver:        c.Journal.Driver,
		RedisAddr:     c.Journal.RedisAddr,
		RedisDB:       c.Journal.RedisDB,
		RedisPassword: c.Journal.RedisPassword,
		Stream:        c.Journal.Stream,
		MaxLen:        c.Journal.MaxLen,
		SQLitePath:    c.Journal.SQLitePath,
	}
}

// ProgramIDs parses the configured program addresses.
func (c *ArbConfig) ProgramIDs() (poolregistry.Programs, error) {
	var (
		programs poolregistry.Programs
		err      error
	)
	p := c.Programs
	fields := []struct {
		name  string
		value string
		dst   *solana.PublicKey
	}{
		{"token", p.Token, &programs.Token},
		{"swap", p.Swap, &programs.Swap},
		{"step_swap", p.StepSwap, &programs.StepSwap},
		{"orca_swap", p.OrcaSwap, &programs.OrcaSwap},
		{"orca_swap_v2", p.OrcaSwapV2, &programs.OrcaSwapV2},
		{"raydium_v2", p.RaydiumV2, &programs.RaydiumV2},
		{"raydium_v3", p.RaydiumV3, &programs.RaydiumV3},
		{"raydium_v4", p.RaydiumV4, &programs.RaydiumV4},
		{"serum_v2", p.SerumV2, &programs.SerumV2},
		{"serum_v3", p.SerumV3, &programs.SerumV3},
	}
	for _, f := range fields {
		if f.value == "" {
			continue
		}
		*f.dst, err = solana.PublicKeyFromBase58(f.value)
		if err != nil {
			return poolregistry.Programs{}, fmt.Errorf("config: programs.%s: %w", f.name, err)
		}
	}
	return programs, nil
}
