// apps/go-server/internal/config/config.go
//
// Process configuration.
// Sources, later ones win:
//  1. embedded assets/tuning.yaml (board defaults)
//  2. the YAML file named by TUNING_FILE (any subset of keys)
//  3. environment variables (.env is loaded by main via godotenv)
//
// Load fails fast on anything the game packages would reject later.
package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"gopkg.in/yaml.v3"

	"github.com/robalobadob/caterpillar/apps/go-server/assets"
	"github.com/robalobadob/caterpillar/apps/go-server/internal/game"
	"github.com/robalobadob/caterpillar/apps/go-server/internal/round"
)

// DevSecret is the token secret used when JWT_SECRET is unset outside production.
const DevSecret = "dev_secret_change_me"

var ErrInvalid = errors.New("invalid configuration")

// Tuning is the board/game shape, mirrored by assets/tuning.yaml.
type Tuning struct {
	Board struct {
		Width  float64 `yaml:"width"`
		Height float64 `yaml:"height"`
	} `yaml:"board"`
	Leaves struct {
		Radius            float64 `yaml:"radius"`
		Margin            float64 `yaml:"margin"`
		BottomMargin      float64 `yaml:"bottomMargin"`
		MinSeparation     float64 `yaml:"minSeparation"`
		PlacementAttempts int     `yaml:"placementAttempts"`
	} `yaml:"leaves"`
	Distractors struct {
		Min         int `yaml:"min"`
		Max         int `yaml:"max"`
		ValueSpread int `yaml:"valueSpread"`
	} `yaml:"distractors"`
	Chain struct {
		SegmentSize   float64    `yaml:"segmentSize"`
		Start         game.Point `yaml:"start"`
		InitialLength int        `yaml:"initialLength"`
		WinScore      int        `yaml:"winScore"`
	} `yaml:"chain"`
}

// Config is everything the server needs at startup.
type Config struct {
	Port          string
	LogLevel      zerolog.Level
	LogPretty     bool
	JWTSecret     string
	TokenTTL      time.Duration
	ClientOrigin  string
	Production    bool // NODE_ENV=production: secure cookies, no dev secret
	SessionTTL    time.Duration
	SweepInterval time.Duration
	DailySalt     string
	Tuning        Tuning
}

// Load reads configuration from the embedded defaults, TUNING_FILE and env.
func Load() (Config, error) {
	c := Config{
		Port:         envOr("PORT", "5175"),
		LogPretty:    envBool("LOG_PRETTY"),
		JWTSecret:    os.Getenv("JWT_SECRET"),
		ClientOrigin: envOr("CLIENT_ORIGIN", "http://localhost:5173"),
		Production:   os.Getenv("NODE_ENV") == "production",
		DailySalt:    envOr("DAILY_SALT", "local_dev_salt"),
	}

	lvl, err := zerolog.ParseLevel(strings.ToLower(envOr("LOG_LEVEL", "info")))
	if err != nil {
		return Config{}, fmt.Errorf("%w: LOG_LEVEL: %v", ErrInvalid, err)
	}
	c.LogLevel = lvl

	if c.JWTSecret == "" && !c.Production {
		c.JWTSecret = DevSecret
	}

	durations := []struct {
		key string
		def time.Duration
		dst *time.Duration
	}{
		{"TOKEN_TTL", 24 * time.Hour, &c.TokenTTL},
		{"SESSION_TTL", 2 * time.Hour, &c.SessionTTL},
		{"SWEEP_INTERVAL", 5 * time.Minute, &c.SweepInterval},
	}
	for _, d := range durations {
		if *d.dst, err = envDuration(d.key, d.def); err != nil {
			return Config{}, err
		}
	}

	if c.Tuning, err = loadTuning(os.Getenv("TUNING_FILE")); err != nil {
		return Config{}, err
	}
	if err := c.Tuning.applyEnv(); err != nil {
		return Config{}, err
	}

	if err := c.Validate(); err != nil {
		return Config{}, err
	}
	return c, nil
}

// Validate checks server settings and runs the game packages' own validation.
func (c Config) Validate() error {
	switch {
	case c.Port == "":
		return fmt.Errorf("%w: PORT is empty", ErrInvalid)
	case c.JWTSecret == "":
		return fmt.Errorf("%w: JWT_SECRET is required when NODE_ENV=production", ErrInvalid)
	case c.TokenTTL <= 0 || c.SessionTTL <= 0 || c.SweepInterval <= 0:
		return fmt.Errorf("%w: TOKEN_TTL, SESSION_TTL and SWEEP_INTERVAL must be positive", ErrInvalid)
	case c.Tuning.Leaves.Radius <= 0:
		return fmt.Errorf("%w: leaves.radius must be positive", ErrInvalid)
	}
	if err := c.RoundConfig().Validate(); err != nil {
		return err
	}
	return c.GameConfig().Validate()
}

// RoundConfig projects the tuning onto the generator config.
func (c Config) RoundConfig() round.Config {
	t := c.Tuning
	return round.Config{
		Bounds:            game.NewRect(t.Board.Width, t.Board.Height),
		Margin:            t.Leaves.Margin,
		BottomMargin:      t.Leaves.BottomMargin,
		MinSeparation:     t.Leaves.MinSeparation,
		DistractorMin:     t.Distractors.Min,
		DistractorMax:     t.Distractors.Max,
		ValueSpread:       t.Distractors.ValueSpread,
		PlacementAttempts: t.Leaves.PlacementAttempts,
	}
}

// GameConfig projects the tuning onto the engine config.
func (c Config) GameConfig() game.Config {
	t := c.Tuning
	return game.Config{
		Bounds:        game.NewRect(t.Board.Width, t.Board.Height),
		SegmentSize:   t.Chain.SegmentSize,
		Start:         t.Chain.Start,
		WinScore:      t.Chain.WinScore,
		InitialLength: t.Chain.InitialLength,
	}
}

// loadTuning decodes the embedded defaults and overlays path, if set.
func loadTuning(path string) (Tuning, error) {
	var t Tuning
	def, err := assets.DefaultTuning()
	if err != nil {
		return Tuning{}, fmt.Errorf("read default tuning: %w", err)
	}
	if err := yaml.Unmarshal(def, &t); err != nil {
		return Tuning{}, fmt.Errorf("decode default tuning: %w", err)
	}
	if path == "" {
		return t, nil
	}
	b, err := os.ReadFile(path)
	if err != nil {
		return Tuning{}, fmt.Errorf("read TUNING_FILE %s: %w", path, err)
	}
	if err := yaml.Unmarshal(b, &t); err != nil {
		return Tuning{}, fmt.Errorf("%w: decode TUNING_FILE %s: %v", ErrInvalid, path, err)
	}
	return t, nil
}

// applyEnv lets the most common knobs be tweaked without a tuning file.
func (t *Tuning) applyEnv() error {
	ints := []struct {
		key string
		dst *int
	}{
		{"WIN_SCORE", &t.Chain.WinScore},
		{"INITIAL_LENGTH", &t.Chain.InitialLength},
		{"DISTRACTOR_MIN", &t.Distractors.Min},
		{"DISTRACTOR_MAX", &t.Distractors.Max},
	}
	for _, i := range ints {
		v := os.Getenv(i.key)
		if v == "" {
			continue
		}
		n, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("%w: %s=%q: %v", ErrInvalid, i.key, v, err)
		}
		*i.dst = n
	}
	if v := os.Getenv("MIN_SEPARATION"); v != "" {
		f, err := strconv.ParseFloat(v, 64)
		if err != nil {
			return fmt.Errorf("%w: MIN_SEPARATION=%q: %v", ErrInvalid, v, err)
		}
		t.Leaves.MinSeparation = f
	}
	return nil
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func envBool(key string) bool {
	b, _ := strconv.ParseBool(os.Getenv(key))
	return b
}

func envDuration(key string, fallback time.Duration) (time.Duration, error) {
	v := os.Getenv(key)
	if v == "" {
		return fallback, nil
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return 0, fmt.Errorf("%w: %s=%q: %v", ErrInvalid, key, v, err)
	}
	return d, nil
}
