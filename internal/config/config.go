// Package config handles application configuration.
package config

import (
	"fmt"
	"net/url"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/chensirou3/Multi-factor-combination/internal/datastore"
	"github.com/chensirou3/Multi-factor-combination/internal/grid"
	"github.com/chensirou3/Multi-factor-combination/internal/oos"
	"github.com/chensirou3/Multi-factor-combination/internal/report"
	"github.com/chensirou3/Multi-factor-combination/internal/signal"
)

// Config defines the structure for all application configuration.
type Config struct {
	LogLevel   string           `yaml:"log_level"`
	Workers    int              `yaml:"workers"`
	Data       DataConfig       `yaml:"data"`
	Backtest   BacktestConfig   `yaml:"backtest"`
	FilterMode FilterModeConfig `yaml:"filter_mode"`
	ScoreMode  ScoreModeConfig  `yaml:"score_mode"`
	OOS        OOSConfig        `yaml:"oos"`
	Output     OutputConfig     `yaml:"output"`
	Database   DatabaseConfig   `yaml:"database"`
}

// DataConfig locates the bar files.
type DataConfig struct {
	Dir              string   `yaml:"dir"`
	FilePattern      string   `yaml:"file_pattern"` // may contain {symbol}
	Timeframe        string   `yaml:"timeframe"`    // e.g. "4h", "1d"
	Symbols          []string `yaml:"symbols"`
	ZScoreWindow     int      `yaml:"zscore_window"`
	ZScoreMinPeriods int      `yaml:"zscore_min_periods"`
}

// BacktestConfig holds simulation settings.
type BacktestConfig struct {
	CostBps float64 `yaml:"cost_bps"`
	// BarsPerYear overrides the value derived from the timeframe.
	BarsPerYear float64 `yaml:"bars_per_year"`
}

// FilterModeConfig is the filter-mode grid.
type FilterModeConfig struct {
	OFIFilterThresholds  []float64 `yaml:"ofi_filter_thresholds"`
	ManipEntryThresholds []float64 `yaml:"manip_entry_thresholds"`
	HoldingBars          []int     `yaml:"holding_bars"`
}

// ScoreModeConfig is the score-mode grid.
type ScoreModeConfig struct {
	Weights                  []grid.WeightPair `yaml:"weights"`
	CompositeEntryThresholds []float64         `yaml:"composite_entry_thresholds"`
	HoldingBars              []int             `yaml:"holding_bars"`
}

// OOSConfig holds the out-of-sample analysis settings.
type OOSConfig struct {
	PlateauFraction  float64                `yaml:"plateau_fraction"`
	TopK             int                    `yaml:"top_k"`
	Selection        string                 `yaml:"selection"` // adaptive | plateau | top_k
	MinTradesTrain   int                    `yaml:"min_trades_train"`
	MinTradesTest    int                    `yaml:"min_trades_test"`
	SharpeThresholds []float64              `yaml:"sharpe_thresholds"`
	CoreCombo        CoreComboConfig        `yaml:"core_combo"`
	Splits           map[string]SplitConfig `yaml:"splits"`
}

// CoreComboConfig designates configurations tracked on both windows.
type CoreComboConfig struct {
	Weights *grid.WeightPair `yaml:"weights"`
	Configs []SignalConfig   `yaml:"configs"`
}

// SignalConfig is a single configuration written out in YAML.
type SignalConfig struct {
	Mode                    string  `yaml:"mode"`
	OFIFilterThreshold      float64 `yaml:"ofi_filter_threshold"`
	ManipEntryThreshold     float64 `yaml:"manip_entry_threshold"`
	WeightManip             float64 `yaml:"weight_manip"`
	WeightOFI               float64 `yaml:"weight_ofi"`
	CompositeEntryThreshold float64 `yaml:"composite_entry_threshold"`
	HoldingBars             int     `yaml:"holding_bars"`
}

// SplitConfig holds one symbol's train and test windows.
type SplitConfig struct {
	TrainStart Date `yaml:"train_start"`
	TrainEnd   Date `yaml:"train_end"`
	TestStart  Date `yaml:"test_start"`
	TestEnd    Date `yaml:"test_end"`
}

// OutputConfig controls where result files go.
type OutputConfig struct {
	Dir string `yaml:"dir"`
}

// DatabaseConfig holds the optional TimescaleDB connection.
type DatabaseConfig struct {
	Enabled  FlexBool `yaml:"enabled"`
	Host     string   `yaml:"host"`
	Port     string   `yaml:"port"`
	User     string   `yaml:"user"`
	Password string   `yaml:"password"`
	Name     string   `yaml:"name"`
	SSLMode  string   `yaml:"sslmode"`
	// LoadBars reads bars from joint_bars instead of CSV files.
	LoadBars FlexBool `yaml:"load_bars"`
}

// defaults returns a Config populated with default values.
func defaults() *Config {
	return &Config{
		LogLevel: "info",
		Data: DataConfig{
			Dir:              "data",
			FilePattern:      "{symbol}.csv",
			Timeframe:        "4h",
			ZScoreWindow:     200,
			ZScoreMinPeriods: 50,
		},
		OOS: OOSConfig{
			PlateauFraction:  0.7,
			TopK:             20,
			Selection:        string(oos.StrategyAdaptive),
			MinTradesTrain:   1,
			MinTradesTest:    1,
			SharpeThresholds: []float64{0, 0.3, 0.5},
		},
		Output: OutputConfig{Dir: "results"},
		Database: DatabaseConfig{
			Host:    "localhost",
			Port:    "5432",
			SSLMode: "disable",
		},
	}
}

// LoadConfig loads configuration from the specified YAML file path
// and environment variables.
func LoadConfig(configPath string) (*Config, error) {
	cfg := defaults()

	// Read YAML file
	file, err := os.ReadFile(configPath)
	if err != nil {
		return nil, err
	}
	if err := yaml.Unmarshal(file, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse %s: %w", configPath, err)
	}

	// Overrides from environment variables
	if logLevel := os.Getenv("LOG_LEVEL"); logLevel != "" {
		cfg.LogLevel = logLevel
	}
	if workers := os.Getenv("WORKERS"); workers != "" {
		n, err := strconv.Atoi(workers)
		if err != nil {
			return nil, fmt.Errorf("invalid WORKERS %q: %w", workers, err)
		}
		cfg.Workers = n
	}
	if dbHost := os.Getenv("DB_HOST"); dbHost != "" {
		cfg.Database.Host = dbHost
	}
	if dbPort := os.Getenv("DB_PORT"); dbPort != "" {
		cfg.Database.Port = dbPort
	}
	if dbUser := os.Getenv("DB_USER"); dbUser != "" {
		cfg.Database.User = dbUser
	}
	if dbPassword := os.Getenv("DB_PASSWORD"); dbPassword != "" {
		cfg.Database.Password = dbPassword
	}
	if dbName := os.Getenv("DB_NAME"); dbName != "" {
		cfg.Database.Name = dbName
	}
	if enabled := os.Getenv("DB_ENABLED"); enabled != "" {
		b, err := parseFlexBool(enabled)
		if err != nil {
			return nil, fmt.Errorf("invalid DB_ENABLED: %w", err)
		}
		cfg.Database.Enabled = FlexBool(b)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks the configuration for values the commands cannot run with.
func (c *Config) Validate() error {
	if _, err := c.Data.Interval(); err != nil {
		return err
	}
	if c.Workers < 0 {
		return fmt.Errorf("workers must not be negative, got %d", c.Workers)
	}
	if c.Backtest.CostBps < 0 {
		return fmt.Errorf("backtest.cost_bps must not be negative, got %v", c.Backtest.CostBps)
	}
	if c.Data.ZScoreWindow <= 0 {
		return fmt.Errorf("data.zscore_window must be positive, got %d", c.Data.ZScoreWindow)
	}
	if _, err := c.OOSParams(); err != nil {
		return err
	}
	for symbol, s := range c.OOS.Splits {
		if s.TrainStart.IsZero() || s.TrainEnd.IsZero() || s.TestStart.IsZero() || s.TestEnd.IsZero() {
			return fmt.Errorf("oos.splits.%s: all four dates are required", symbol)
		}
	}
	if c.Database.Enabled && c.Database.Name == "" {
		return fmt.Errorf("database.name is required when the database is enabled")
	}
	return nil
}

// Interval parses the timeframe. A "d" suffix means days.
func (d DataConfig) Interval() (time.Duration, error) {
	tf := strings.TrimSpace(strings.ToLower(d.Timeframe))
	if strings.HasSuffix(tf, "d") {
		n, err := strconv.Atoi(strings.TrimSuffix(tf, "d"))
		if err != nil || n <= 0 {
			return 0, fmt.Errorf("invalid data.timeframe %q", d.Timeframe)
		}
		return time.Duration(n) * 24 * time.Hour, nil
	}
	iv, err := time.ParseDuration(tf)
	if err != nil || iv <= 0 {
		return 0, fmt.Errorf("invalid data.timeframe %q", d.Timeframe)
	}
	return iv, nil
}

// CSVSource builds the CSV bar source.
func (c *Config) CSVSource() datastore.CSVSource {
	iv, _ := c.Data.Interval()
	return datastore.CSVSource{
		Dir:      c.Data.Dir,
		Pattern:  c.Data.FilePattern,
		Interval: iv,
		ZScore:   datastore.ZScoreParams{Window: c.Data.ZScoreWindow, MinPeriods: c.Data.ZScoreMinPeriods},
	}
}

// FilterSpace returns the filter-mode grid.
func (c *Config) FilterSpace() grid.FilterSpace {
	return grid.FilterSpace{
		OFIFilterThresholds:  c.FilterMode.OFIFilterThresholds,
		ManipEntryThresholds: c.FilterMode.ManipEntryThresholds,
		HoldingBars:          c.FilterMode.HoldingBars,
	}
}

// ScoreSpace returns the score-mode grid.
func (c *Config) ScoreSpace() grid.ScoreSpace {
	return grid.ScoreSpace{
		Weights:                  c.ScoreMode.Weights,
		CompositeEntryThresholds: c.ScoreMode.CompositeEntryThresholds,
		HoldingBars:              c.ScoreMode.HoldingBars,
	}
}

// Space returns the grid for mode.
func (c *Config) Space(mode signal.Mode) (grid.Space, error) {
	switch mode {
	case signal.ModeFilter:
		return c.FilterSpace(), nil
	case signal.ModeScore:
		return c.ScoreSpace(), nil
	default:
		return nil, fmt.Errorf("%w: %d", signal.ErrUnknownMode, mode)
	}
}

// SimParams returns the shared simulation settings.
func (c *Config) SimParams() grid.SimParams {
	bpy := c.Backtest.BarsPerYear
	if bpy <= 0 {
		iv, _ := c.Data.Interval()
		bpy = report.BarsPerYear(iv)
	}
	return grid.SimParams{CostBps: c.Backtest.CostBps, BarsPerYear: bpy, Workers: c.Workers}
}

// OOSParams converts the oos section.
func (c *Config) OOSParams() (oos.Params, error) {
	strategy, err := oos.ParseStrategy(c.OOS.Selection)
	if err != nil {
		return oos.Params{}, fmt.Errorf("oos.selection: %w", err)
	}
	core := oos.Core{Weights: c.OOS.CoreCombo.Weights}
	for i, sc := range c.OOS.CoreCombo.Configs {
		cfg, err := sc.Signal()
		if err != nil {
			return oos.Params{}, fmt.Errorf("oos.core_combo.configs[%d]: %w", i, err)
		}
		core.Configs = append(core.Configs, cfg)
	}
	p := oos.Params{
		PlateauFraction:  c.OOS.PlateauFraction,
		TopK:             c.OOS.TopK,
		Strategy:         strategy,
		MinTradesTrain:   c.OOS.MinTradesTrain,
		MinTradesTest:    c.OOS.MinTradesTest,
		SharpeThresholds: c.OOS.SharpeThresholds,
		Core:             core,
		Sim:              c.SimParams(),
	}
	if err := p.Validate(); err != nil {
		return oos.Params{}, fmt.Errorf("oos: %w", err)
	}
	return p, nil
}

// Split returns the OOS split for symbol.
func (c *Config) Split(symbol string) (oos.Split, error) {
	s, ok := c.OOS.Splits[symbol]
	if !ok {
		return oos.Split{}, fmt.Errorf("no oos split configured for %s", symbol)
	}
	return oos.Split{
		Symbol:     symbol,
		TrainStart: s.TrainStart.Time,
		TrainEnd:   s.TrainEnd.Time,
		TestStart:  s.TestStart.Time,
		TestEnd:    s.TestEnd.Time,
	}, nil
}

// Signal converts the YAML form into a signal.Config.
func (s SignalConfig) Signal() (signal.Config, error) {
	mode, err := signal.ParseMode(s.Mode)
	if err != nil {
		return signal.Config{}, err
	}
	var cfg signal.Config
	if mode == signal.ModeFilter {
		cfg = signal.NewFilterConfig(s.OFIFilterThreshold, s.ManipEntryThreshold, s.HoldingBars)
	} else {
		cfg = signal.NewScoreConfig(s.WeightManip, s.WeightOFI, s.CompositeEntryThreshold, s.HoldingBars)
	}
	return cfg, cfg.Validate()
}

// DSN builds a postgres connection URL. scheme is "postgres" for pgx and
// lib/pq, or "pgx5" for golang-migrate.
func (d DatabaseConfig) DSN(scheme string) string {
	u := url.URL{
		Scheme: scheme,
		Host:   d.Host + ":" + d.Port,
		Path:   "/" + d.Name,
	}
	if d.User != "" {
		u.User = url.UserPassword(d.User, d.Password)
	}
	if d.SSLMode != "" {
		u.RawQuery = url.Values{"sslmode": []string{d.SSLMode}}.Encode()
	}
	return u.String()
}
