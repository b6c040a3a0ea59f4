// File: utils/config.go
package utils

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config holds all configurable server parameters.
type Config struct {
	// Network
	ListenAddr string `json:"listenAddr" mapstructure:"listenaddr"`

	// Room limits
	MaxRooms          int     `json:"maxRooms" mapstructure:"maxrooms"`
	MaxPlayersPerRoom int     `json:"maxPlayersPerRoom" mapstructure:"maxplayersperroom"`
	RoomCreateRate    float64 `json:"roomCreateRate" mapstructure:"roomcreaterate"`
	RoomCreateBurst   int     `json:"roomCreateBurst" mapstructure:"roomcreateburst"`

	// Timing
	CountdownSeconds      int           `json:"countdownSeconds" mapstructure:"countdownseconds"`
	CountdownTickInterval time.Duration `json:"countdownTickInterval" mapstructure:"countdowntickinterval"`
	InterRoundDelay       time.Duration `json:"interRoundDelay" mapstructure:"interrounddelay"`
	PenaltyDuration       time.Duration `json:"penaltyDuration" mapstructure:"penaltyduration"`
	DisconnectGrace       time.Duration `json:"disconnectGrace" mapstructure:"disconnectgrace"`
	RejoinWindow          time.Duration `json:"rejoinWindow" mapstructure:"rejoinwindow"`
	RoomIdleTimeout       time.Duration `json:"roomIdleTimeout" mapstructure:"roomidletimeout"`

	// Broadcast
	OutboundBufferSize int `json:"outboundBufferSize" mapstructure:"outboundbuffersize"`
}

// DefaultConfig returns a Config struct with default values.
func DefaultConfig() Config {
	return Config{
		ListenAddr: ":3001",

		MaxRooms:          256,
		MaxPlayersPerRoom: MaxPlayers,
		RoomCreateRate:    10.0,
		RoomCreateBurst:   20,

		CountdownSeconds:      CountdownSeconds,
		CountdownTickInterval: CountdownTickInterval,
		InterRoundDelay:       InterRoundDelay,
		PenaltyDuration:       PenaltyDuration,
		DisconnectGrace:       DisconnectGrace,
		RejoinWindow:          RejoinWindow,
		RoomIdleTimeout:       RoomIdleTimeout,

		OutboundBufferSize: OutboundBufferSize,
	}
}

// LoadConfig loads configuration using Viper.
// Priority order: Environment variables > Config file > Defaults
func LoadConfig(configPath string) (Config, error) {
	v := viper.New()

	v.SetConfigName("matchbox")
	v.SetConfigType("yaml")

	if configPath != "" {
		v.SetConfigFile(configPath)
	} else {
		v.AddConfigPath("./config")
		v.AddConfigPath(".")
		v.AddConfigPath("/etc/matchbox")
	}

	v.SetEnvPrefix("MATCHBOX")
	v.AutomaticEnv()
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.BindEnv("listenaddr", "MATCHBOX_LISTEN_ADDR", "PORT")

	def := DefaultConfig()
	v.SetDefault("listenaddr", def.ListenAddr)
	v.SetDefault("maxrooms", def.MaxRooms)
	v.SetDefault("maxplayersperroom", def.MaxPlayersPerRoom)
	v.SetDefault("roomcreaterate", def.RoomCreateRate)
	v.SetDefault("roomcreateburst", def.RoomCreateBurst)
	v.SetDefault("countdownseconds", def.CountdownSeconds)
	v.SetDefault("countdowntickinterval", def.CountdownTickInterval)
	v.SetDefault("interrounddelay", def.InterRoundDelay)
	v.SetDefault("penaltyduration", def.PenaltyDuration)
	v.SetDefault("disconnectgrace", def.DisconnectGrace)
	v.SetDefault("rejoinwindow", def.RejoinWindow)
	v.SetDefault("roomidletimeout", def.RoomIdleTimeout)
	v.SetDefault("outboundbuffersize", def.OutboundBufferSize)

	if err := v.ReadInConfig(); err != nil {
		// The config file is optional; only hard errors are fatal.
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			if !strings.Contains(err.Error(), "no such file or directory") {
				return Config{}, fmt.Errorf("error reading config file: %w", err)
			}
		}
	}

	cfg := Config{}
	if err := v.Unmarshal(&cfg); err != nil {
		return Config{}, fmt.Errorf("unable to decode config: %w", err)
	}

	// A listen addr like "3001" (from PORT) needs the colon prefix.
	if cfg.ListenAddr != "" && !strings.Contains(cfg.ListenAddr, ":") {
		cfg.ListenAddr = ":" + cfg.ListenAddr
	}

	if cfg.MaxPlayersPerRoom < MinPlayers {
		return Config{}, fmt.Errorf("maxPlayersPerRoom must be at least %d, got %d", MinPlayers, cfg.MaxPlayersPerRoom)
	}

	return cfg, nil
}
