package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"gopkg.in/yaml.v3"
)

type ServerConfig struct {
	Port            string        `yaml:"port" validate:"required,numeric"`
	ReadTimeout     time.Duration `yaml:"readTimeout" validate:"gte=0"`
	WriteTimeout    time.Duration `yaml:"writeTimeout" validate:"gte=0"`
	ShutdownTimeout time.Duration `yaml:"shutdownTimeout" validate:"gt=0"`
	AllowedOrigins  []string      `yaml:"allowedOrigins"`
}

type AuthConfig struct {
	Mode      string        `yaml:"mode" validate:"required,oneof=jwt insecure"`
	JWTSecret string        `yaml:"jwtSecret" validate:"required_if=Mode jwt,omitempty,min=32"`
	TicketTTL time.Duration `yaml:"ticketTtl" validate:"gt=0"`
}

type RaceConfig struct {
	Duration         time.Duration `yaml:"duration" validate:"gt=0"`
	BaseScore        float64       `yaml:"baseScore" validate:"gt=0"`
	PenaltyPerSecond float64       `yaml:"penaltyPerSecond" validate:"gte=0"`
	ReadyTimeout     time.Duration `yaml:"readyTimeout" validate:"gte=0"`
	TeardownGrace    time.Duration `yaml:"teardownGrace" validate:"gte=0"`
	WinReward        int           `yaml:"winReward" validate:"gte=0"`
	Workers          int           `yaml:"workers" validate:"gt=0"`
}

type StoreConfig struct {
	MaxRoomAge    time.Duration `yaml:"maxRoomAge" validate:"gt=0"`
	SweepInterval time.Duration `yaml:"sweepInterval" validate:"gt=0"`
}

type WebSocketConfig struct {
	ReadBufferSize  int           `yaml:"readBufferSize" validate:"gt=0"`
	WriteBufferSize int           `yaml:"writeBufferSize" validate:"gt=0"`
	WriteWait       time.Duration `yaml:"writeWait" validate:"gt=0"`
	PongWait        time.Duration `yaml:"pongWait" validate:"gt=0"`
	PingPeriod      time.Duration `yaml:"pingPeriod" validate:"gt=0,ltfield=PongWait"`
	MaxMessageSize  int64         `yaml:"maxMessageSize" validate:"gt=0"`
	SendBufferSize  int           `yaml:"sendBufferSize" validate:"gt=0"`
}

type NATSConfig struct {
	Enabled       bool   `yaml:"enabled"`
	URL           string `yaml:"url" validate:"required_if=Enabled true"`
	Stream        string `yaml:"stream" validate:"required_if=Enabled true"`
	SubjectPrefix string `yaml:"subjectPrefix" validate:"required_if=Enabled true"`
}

type ProfileConfig struct {
	Mode    string        `yaml:"mode" validate:"required,oneof=static connect"`
	URL     string        `yaml:"url" validate:"required_if=Mode connect,omitempty,url"`
	Timeout time.Duration `yaml:"timeout" validate:"gt=0"`
}

type PuzzlesConfig struct {
	Source          string        `yaml:"source" validate:"required,oneof=static yaml postgres"`
	File            string        `yaml:"file" validate:"required_if=Source yaml"`
	IDs             []string      `yaml:"ids" validate:"required_if=Source static"`
	RefreshInterval time.Duration `yaml:"refreshInterval" validate:"gte=0"`
}

type LogConfig struct {
	Level  string `yaml:"level" validate:"oneof=debug info warn error"`
	Pretty bool   `yaml:"pretty"`
}

// Config is the root of config.yaml.
type Config struct {
	Server    ServerConfig    `yaml:"server"`
	Auth      AuthConfig      `yaml:"auth"`
	Race      RaceConfig      `yaml:"race"`
	Store     StoreConfig     `yaml:"store"`
	WebSocket WebSocketConfig `yaml:"websocket"`
	NATS      NATSConfig      `yaml:"nats"`
	Profile   ProfileConfig   `yaml:"profile"`
	Puzzles   PuzzlesConfig   `yaml:"puzzles"`
	Log       LogConfig       `yaml:"log"`
}

// Default returns a configuration that runs locally without any external
// services.
func Default() Config {
	return Config{
		Server: ServerConfig{
			Port:            "8080",
			ReadTimeout:     15 * time.Second,
			WriteTimeout:    15 * time.Second,
			ShutdownTimeout: 10 * time.Second,
			AllowedOrigins:  []string{"http://localhost:3000", "http://localhost:5173"},
		},
		Auth: AuthConfig{
			Mode:      "insecure",
			TicketTTL: time.Minute,
		},
		Race: RaceConfig{
			Duration:         60 * time.Second,
			BaseScore:        1000,
			PenaltyPerSecond: 10,
			ReadyTimeout:     30 * time.Second,
			TeardownGrace:    5 * time.Second,
			WinReward:        50,
			Workers:          4,
		},
		Store: StoreConfig{
			MaxRoomAge:    15 * time.Minute,
			SweepInterval: time.Minute,
		},
		WebSocket: WebSocketConfig{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			WriteWait:       10 * time.Second,
			PongWait:        60 * time.Second,
			PingPeriod:      54 * time.Second,
			MaxMessageSize:  8192,
			SendBufferSize:  256,
		},
		NATS: NATSConfig{
			URL:           "nats://localhost:4222",
			Stream:        "RACE_EVENTS",
			SubjectPrefix: "race.events",
		},
		Profile: ProfileConfig{
			Mode:    "static",
			Timeout: 5 * time.Second,
		},
		Puzzles: PuzzlesConfig{
			Source:          "static",
			IDs:             []string{"sudoku-easy-001", "sudoku-easy-002", "sudoku-medium-001"},
			RefreshInterval: 5 * time.Minute,
		},
		Log: LogConfig{
			Level:  "info",
			Pretty: true,
		},
	}
}

// Load reads path over the defaults, applies environment overrides and
// validates the result. A missing file is not an error.
func Load(path string) (*Config, error) {
	cfg := Default()

	data, err := os.ReadFile(path)
	switch {
	case errors.Is(err, fs.ErrNotExist):
	case err != nil:
		return nil, fmt.Errorf("read config file %s: %w", path, err)
	default:
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return nil, fmt.Errorf("parse config file %s: %w", path, err)
		}
	}

	applyEnv(&cfg)

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func applyEnv(cfg *Config) {
	cfg.Server.Port = getEnv("PORT", cfg.Server.Port)
	cfg.Log.Level = strings.ToLower(getEnv("LOG_LEVEL", cfg.Log.Level))

	if v := os.Getenv("JWT_SECRET"); v != "" {
		cfg.Auth.JWTSecret = v
		cfg.Auth.Mode = "jwt"
	}
	if v := os.Getenv("NATS_URL"); v != "" {
		cfg.NATS.URL = v
		cfg.NATS.Enabled = true
	}
	if v := os.Getenv("PROFILE_URL"); v != "" {
		cfg.Profile.URL = v
		cfg.Profile.Mode = "connect"
	}
}

// Validate checks every field against its validate tag.
func (c *Config) Validate() error {
	err := validator.New().Struct(c)
	if err == nil {
		return nil
	}

	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return fmt.Errorf("validate config: %w", err)
	}
	msgs := make([]string, 0, len(verrs))
	for _, fe := range verrs {
		msgs = append(msgs, fmt.Sprintf("%s failed %q", fe.Namespace(), fe.Tag()))
	}
	return fmt.Errorf("invalid config: %s", strings.Join(msgs, "; "))
}

func getEnv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}
