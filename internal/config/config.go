package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/rs/zerolog/log"
	"github.com/shopspring/decimal"
	"gopkg.in/yaml.v3"

	"bingohall/internal/engine"
)

type Config struct {
	Port            string
	DatabaseURL     string
	NatsURL         string
	NatsPrefix      string
	AdminToken      string
	AllowedOrigins  []string
	LogLevel        string
	LogFormat       string
	StartingBalance decimal.Decimal
	WSRate          float64
	WSBurst         int
	GameConfigPath  string
}

// Load reads the environment, after merging a .env file when one exists.
func Load() Config {
	if err := godotenv.Load(); err != nil && !os.IsNotExist(err) {
		log.Warn().Err(err).Msg("Could not load .env file")
	}
	return Config{
		Port:            getEnv("PORT", "8080"),
		DatabaseURL:     os.Getenv("DATABASE_URL"),
		NatsURL:         os.Getenv("NATS_URL"),
		NatsPrefix:      getEnv("NATS_PREFIX", "bingo"),
		AdminToken:      os.Getenv("ADMIN_TOKEN"),
		AllowedOrigins:  getEnvList("ALLOWED_ORIGINS", []string{"*"}),
		LogLevel:        getEnv("LOG_LEVEL", "info"),
		LogFormat:       getEnv("LOG_FORMAT", "json"),
		StartingBalance: getEnvDecimal("STARTING_BALANCE", decimal.NewFromInt(100)),
		WSRate:          getEnvFloat("WS_RATE", 5),
		WSBurst:         getEnvInt("WS_BURST", 10),
		GameConfigPath:  os.Getenv("GAME_CONFIG"),
	}
}

// Game is the optional YAML game file. Unset fields keep the engine
// defaults.
type Game struct {
	Commission         map[int]decimal.Decimal `yaml:"commission"`
	FourCornersBonus   *decimal.Decimal        `yaml:"four_corners_bonus"`
	MaxSlot            int                     `yaml:"max_slot"`
	EnrollmentFloor    int                     `yaml:"enrollment_floor"`
	PostCountdownFloor int                     `yaml:"post_countdown_floor"`
	PurgeUnreachable   *bool                   `yaml:"purge_unreachable"`
	RefundOnAbort      *bool                   `yaml:"refund_on_abort"`
	VerifyCards        *bool                   `yaml:"verify_cards"`
	Countdown          time.Duration           `yaml:"countdown"`
	DrawInterval       time.Duration           `yaml:"draw_interval"`
	MaxDraws           int                     `yaml:"max_draws"`
	MaxRoundDuration   time.Duration           `yaml:"max_round_duration"`
	SettleGrace        time.Duration           `yaml:"settle_grace"`
	RoomRetention      time.Duration           `yaml:"room_retention"`
	SweepInterval      time.Duration           `yaml:"sweep_interval"`
}

func LoadGame(path string) (Game, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Game{}, fmt.Errorf("failed to read game config: %w", err)
	}
	var g Game
	if err := yaml.Unmarshal(data, &g); err != nil {
		return Game{}, fmt.Errorf("failed to parse game config: %w", err)
	}
	for stake, cut := range g.Commission {
		if stake <= 0 || cut.IsNegative() || cut.GreaterThanOrEqual(decimal.NewFromInt(int64(stake))) {
			return Game{}, fmt.Errorf("invalid commission %s for stake %d", cut, stake)
		}
	}
	return g, nil
}

// Engine returns the engine configuration with the game file applied.
func (c Config) Engine() (engine.Config, error) {
	cfg := engine.DefaultConfig()
	if c.GameConfigPath == "" {
		return cfg, nil
	}
	g, err := LoadGame(c.GameConfigPath)
	if err != nil {
		return cfg, err
	}
	g.Apply(&cfg)
	return cfg, nil
}

func (g Game) Apply(cfg *engine.Config) {
	if len(g.Commission) > 0 {
		cfg.Commission = g.Commission
	}
	if g.FourCornersBonus != nil {
		cfg.FourCornersBonus = *g.FourCornersBonus
	}
	setInt(&cfg.MaxSlot, g.MaxSlot)
	setInt(&cfg.EnrollmentFloor, g.EnrollmentFloor)
	setInt(&cfg.PostCountdownFloor, g.PostCountdownFloor)
	setInt(&cfg.MaxDraws, g.MaxDraws)
	setBool(&cfg.PurgeUnreachable, g.PurgeUnreachable)
	setBool(&cfg.RefundOnAbort, g.RefundOnAbort)
	setBool(&cfg.VerifyCards, g.VerifyCards)
	setDuration(&cfg.CountdownDuration, g.Countdown)
	setDuration(&cfg.DrawInterval, g.DrawInterval)
	setDuration(&cfg.MaxRoundDuration, g.MaxRoundDuration)
	setDuration(&cfg.SettleGrace, g.SettleGrace)
	setDuration(&cfg.RoomRetention, g.RoomRetention)
	setDuration(&cfg.SweepInterval, g.SweepInterval)
}

func setInt(dst *int, v int) {
	if v > 0 {
		*dst = v
	}
}

func setBool(dst *bool, v *bool) {
	if v != nil {
		*dst = *v
	}
}

func setDuration(dst *time.Duration, v time.Duration) {
	if v > 0 {
		*dst = v
	}
}

func getEnv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func getEnvInt(key string, fallback int) int {
	if v := os.Getenv(key); v != "" {
		if i, err := strconv.Atoi(v); err == nil {
			return i
		}
	}
	return fallback
}

func getEnvFloat(key string, fallback float64) float64 {
	if v := os.Getenv(key); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			return f
		}
	}
	return fallback
}

func getEnvDecimal(key string, fallback decimal.Decimal) decimal.Decimal {
	if v := os.Getenv(key); v != "" {
		if d, err := decimal.NewFromString(v); err == nil && !d.IsNegative() {
			return d
		}
	}
	return fallback
}

func getEnvList(key string, fallback []string) []string {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	var out []string
	for _, part := range strings.Split(v, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	if len(out) == 0 {
		return fallback
	}
	return out
}
