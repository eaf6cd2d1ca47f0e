package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

const envPrefix = "AFKMUTE"

type Config struct {
	DiscordToken string
	DiscordGuild string // opcional: si está, los comandos se registran sólo en ese guild

	DatabaseDriver string // postgres | sqlite
	DatabaseURL    string
	SQLitePath     string

	HTTPAddr   string // vacío = sin servidor admin
	HTTPSecret string

	LogLevel string

	ReadyTimeout time.Duration
	ReadyPoll    time.Duration
}

// ApplyDefaults configura defaults y variables de entorno (AFKMUTE_DISCORD_TOKEN, etc.).
// Para no romper despliegues viejos también se aceptan DISCORD_BOT_TOKEN y DATABASE_URL.
func ApplyDefaults(v *viper.Viper) {
	v.SetEnvPrefix(envPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	v.AllowEmptyEnv(true)

	_ = v.BindEnv("discord.token", envPrefix+"_DISCORD_TOKEN", "DISCORD_BOT_TOKEN")
	_ = v.BindEnv("discord.guild_id", envPrefix+"_DISCORD_GUILD_ID", "DISCORD_GUILD_ID")
	_ = v.BindEnv("database.url", envPrefix+"_DATABASE_URL", "DATABASE_URL")

	v.SetDefault("database.driver", "postgres")
	v.SetDefault("database.path", "data/afkmute.db")
	v.SetDefault("http.address", ":8080")
	v.SetDefault("log.level", "info")
	v.SetDefault("sweep.ready_timeout", 10*time.Second)
	v.SetDefault("sweep.ready_poll", time.Second)
}

func NewViper() *viper.Viper {
	v := viper.New()
	ApplyDefaults(v)
	return v
}

func Load(v *viper.Viper) (Config, error) {
	cfg := Config{
		DiscordToken:   strings.TrimSpace(v.GetString("discord.token")),
		DiscordGuild:   v.GetString("discord.guild_id"),
		DatabaseDriver: strings.ToLower(strings.TrimSpace(v.GetString("database.driver"))),
		DatabaseURL:    v.GetString("database.url"),
		SQLitePath:     v.GetString("database.path"),
		HTTPAddr:       v.GetString("http.address"),
		HTTPSecret:     v.GetString("http.secret"),
		LogLevel:       v.GetString("log.level"),
		ReadyTimeout:   v.GetDuration("sweep.ready_timeout"),
		ReadyPoll:      v.GetDuration("sweep.ready_poll"),
	}
	if err := cfg.validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// LoadDatabase es para comandos que sólo tocan la base (migrate): no pide token.
func LoadDatabase(v *viper.Viper) (Config, error) {
	cfg := Config{
		DatabaseDriver: strings.ToLower(strings.TrimSpace(v.GetString("database.driver"))),
		DatabaseURL:    v.GetString("database.url"),
		SQLitePath:     v.GetString("database.path"),
		LogLevel:       v.GetString("log.level"),
	}
	return cfg, cfg.validateDatabase()
}

// BotToken devuelve el token con el prefijo "Bot " que espera discordgo.
func (c Config) BotToken() string {
	if strings.HasPrefix(strings.ToLower(c.DiscordToken), "bot ") {
		return c.DiscordToken
	}
	return "Bot " + c.DiscordToken
}

func (c Config) validate() error {
	if c.DiscordToken == "" {
		return fmt.Errorf("discord.token is required")
	}
	if err := c.validateDatabase(); err != nil {
		return err
	}
	if c.HTTPAddr != "" && c.HTTPSecret == "" {
		return fmt.Errorf("http.secret is required when http.address is set")
	}
	if c.ReadyTimeout <= 0 || c.ReadyPoll <= 0 {
		return fmt.Errorf("sweep.ready_timeout and sweep.ready_poll must be positive")
	}
	return nil
}

func (c Config) validateDatabase() error {
	switch c.DatabaseDriver {
	case "postgres":
		if c.DatabaseURL == "" {
			return fmt.Errorf("database.url is required for postgres")
		}
	case "sqlite":
		if c.SQLitePath == "" {
			return fmt.Errorf("database.path is required for sqlite")
		}
	default:
		return fmt.Errorf("unknown database.driver %q (postgres|sqlite)", c.DatabaseDriver)
	}
	return nil
}
