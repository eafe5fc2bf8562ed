package main

import (
	"errors"
	"log"
	"os"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

type Config struct {
	Server ServerConfig `mapstructure:"server"`
	DB     DBConfig     `mapstructure:"db"`
	Auth   AuthConfig   `mapstructure:"auth"`
	Game   GameConfig   `mapstructure:"game"`
}

type ServerConfig struct {
	Addr          string `mapstructure:"addr"`
	PublicURL     string `mapstructure:"public_url"`
	MaxLobbies    int    `mapstructure:"max_lobbies"`
	MaxConnsPerIP int    `mapstructure:"max_conns_per_ip"`
}

type DBConfig struct {
	Path string `mapstructure:"path"`
}

type AuthConfig struct {
	Secret    string        `mapstructure:"secret"`
	InviteTTL time.Duration `mapstructure:"invite_ttl"`
}

type GameConfig struct {
	TickRate       int  `mapstructure:"tick_rate"`
	BroadcastEvery int  `mapstructure:"broadcast_every"`
	Particles      bool `mapstructure:"particles"`
}

// Session returns the tick loop settings
func (g GameConfig) Session() SessionConfig {
	return SessionConfig{TickRate: g.TickRate, BroadcastEvery: g.BroadcastEvery, Particles: g.Particles}
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("server.addr", ":8080")
	v.SetDefault("server.public_url", "http://localhost:8080")
	v.SetDefault("server.max_lobbies", maxLobbies)
	v.SetDefault("server.max_conns_per_ip", maxConnsPerIP)
	v.SetDefault("db.path", "kickoff.db")
	v.SetDefault("auth.secret", "")
	v.SetDefault("auth.invite_ttl", inviteExpiry)
	v.SetDefault("game.tick_rate", TickRate)
	v.SetDefault("game.broadcast_every", BroadcastEvery)
	v.SetDefault("game.particles", true)
}

// LoadConfig reads defaults, then kickoff.yaml if present, then .env and
// KICKOFF_* variables. An explicit path must exist.
func LoadConfig(path string) (*Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		log.Printf("config: .env: %v", err)
	}

	v := viper.New()
	setDefaults(v)
	v.SetEnvPrefix("KICKOFF")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if path != "" {
		v.SetConfigFile(path)
	} else {
		v.SetConfigName("kickoff")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
	}
	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if path != "" || !errors.As(err, &notFound) {
			return nil, err
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, err
	}
	return &cfg, nil
}
