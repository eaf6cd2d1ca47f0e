package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"

	"github.com/bwmarrin/discordgo"
	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"go.uber.org/zap"

	discordrouter "github.com/jose-valero/afkmute-bot/internal/adapters/discord"
	"github.com/jose-valero/afkmute-bot/internal/adapters/httpapi"
	"github.com/jose-valero/afkmute-bot/internal/app/service"
	"github.com/jose-valero/afkmute-bot/internal/infra/config"
	"github.com/jose-valero/afkmute-bot/internal/infra/logging"
	"github.com/jose-valero/afkmute-bot/internal/infra/storage"
)

var cfgFile string

func main() {
	_ = godotenv.Load()

	rootCmd := &cobra.Command{
		Use:   "afkmute-bot",
		Short: "Discord bot que mutea a los AFK y los desmutea cuando vuelven",
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return initConfig()
		},
		RunE: func(cmd *cobra.Command, args []string) error {
			return runBot(cmd.Context())
		},
	}
	rootCmd.AddCommand(
		&cobra.Command{
			Use:   "run",
			Short: "Conecta al gateway y atiende eventos (default)",
			RunE: func(cmd *cobra.Command, args []string) error {
				return runBot(cmd.Context())
			},
		},
		&cobra.Command{
			Use:   "migrate",
			Short: "Aplica las migraciones y sale",
			RunE: func(cmd *cobra.Command, args []string) error {
				return runMigrate(cmd.Context())
			},
		},
	)

	setupFlags(rootCmd)

	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func setupFlags(cmd *cobra.Command) {
	config.ApplyDefaults(viper.GetViper())
	defaults := config.NewViper()
	cmd.PersistentFlags().StringVar(&cfgFile, "config", "", "Path to configuration file")
	cmd.PersistentFlags().String("guild-id", "", "Guild donde registrar los comandos (vacío = global)")
	cmd.PersistentFlags().String("database-driver", defaults.GetString("database.driver"), "postgres | sqlite")
	cmd.PersistentFlags().String("database-path", defaults.GetString("database.path"), "SQLite database path")
	cmd.PersistentFlags().String("http-address", defaults.GetString("http.address"), "Admin HTTP listen address (vacío = deshabilitado)")
	cmd.PersistentFlags().String("log-level", defaults.GetString("log.level"), "Log level (debug, info, warn, error)")
	cmd.PersistentFlags().Duration("ready-timeout", defaults.GetDuration("sweep.ready_timeout"), "Espera máxima del gateway antes de barrer")

	bindFlag(cmd, "discord.guild_id", "guild-id")
	bindFlag(cmd, "database.driver", "database-driver")
	bindFlag(cmd, "database.path", "database-path")
	bindFlag(cmd, "http.address", "http-address")
	bindFlag(cmd, "log.level", "log-level")
	bindFlag(cmd, "sweep.ready_timeout", "ready-timeout")
}

func bindFlag(cmd *cobra.Command, key, flag string) {
	if err := viper.BindPFlag(key, cmd.PersistentFlags().Lookup(flag)); err != nil {
		panic(err)
	}
}

func initConfig() error {
	if cfgFile != "" {
		viper.SetConfigFile(cfgFile)
	}
	if err := viper.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if cfgFile != "" && errors.As(err, &notFound) {
			return err
		}
	}
	return nil
}

// openStore abre el backend configurado y lo deja migrado.
func openStore(ctx context.Context, cfg config.Config) (service.RecordStore, io.Closer, error) {
	switch cfg.DatabaseDriver {
	case "sqlite":
		db, err := storage.OpenSQLite(cfg.SQLitePath)
		if err != nil {
			return nil, nil, err
		}
		return storage.NewSQLiteAfkMuteRepo(db), db, nil
	default:
		db, err := storage.Open(ctx, cfg.DatabaseURL)
		if err != nil {
			return nil, nil, err
		}
		if err := storage.Migrate(ctx, db); err != nil {
			_ = db.Close()
			return nil, nil, fmt.Errorf("migrate: %w", err)
		}
		return storage.NewAfkMuteRepo(db), db, nil
	}
}

func runMigrate(ctx context.Context) error {
	cfg, err := config.LoadDatabase(viper.GetViper())
	if err != nil {
		return err
	}
	logger, err := logging.NewLogger(cfg.LogLevel)
	if err != nil {
		return err
	}
	defer logger.Sync() //nolint:errcheck

	_, closer, err := openStore(ctx, cfg)
	if err != nil {
		return err
	}
	defer closer.Close()
	logger.Info("✅ DB lista y migrada", zap.String("driver", cfg.DatabaseDriver))
	return nil
}

func runBot(ctx context.Context) error {
	cfg, err := config.Load(viper.GetViper())
	if err != nil {
		return err
	}
	logger, err := logging.NewLogger(cfg.LogLevel)
	if err != nil {
		return err
	}
	defer logger.Sync() //nolint:errcheck

	ctx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// DB
	store, closer, err := openStore(ctx, cfg)
	if err != nil {
		return err
	}
	defer closer.Close()
	logger.Info("✅ DB lista y migrada", zap.String("driver", cfg.DatabaseDriver))

	// Discord session (los handlers se registran antes de abrir para no perder READY)
	s, err := discordgo.New(cfg.BotToken())
	if err != nil {
		return err
	}
	s.Identify.Intents = discordrouter.Intents
	s.StateEnabled = true

	platform := discordrouter.NewPlatform(s)

	// Services
	afkSvc := service.NewAfkMuteService(store, platform, logger.Named("afkmute"))
	sweeper := service.NewSweeper(afkSvc, platform, cfg.ReadyTimeout, cfg.ReadyPoll, logger.Named("sweep"))
	reconciler := service.NewReconciler(afkSvc, platform, sweeper, logger.Named("reconcile"))

	// Router
	r := discordrouter.NewRouter(s, cfg.DiscordGuild, afkSvc, reconciler, platform, logger.Named("discord"), cfg.ReadyTimeout*6)
	r.Handlers()

	if err := s.Open(); err != nil {
		return fmt.Errorf("discord open: %w", err)
	}
	defer s.Close()
	logger.Info("✅ Conectado", zap.String("user", s.State.User.Username), zap.String("id", s.State.User.ID))

	if err := r.Register(); err != nil {
		return fmt.Errorf("registrando comandos: %w", err)
	}
	logger.Info("✅ comandos registrados", zap.String("guild", cfg.DiscordGuild))

	// Admin HTTP (opcional)
	errCh := make(chan error, 1)
	if cfg.HTTPAddr != "" {
		admin := httpapi.New(cfg.HTTPSecret, sweeper, platform, r.Guilds, logger.Named("http"))
		go func() { errCh <- admin.Start(ctx, cfg.HTTPAddr) }()
	}

	// Esperar señal
	select {
	case <-ctx.Done():
		logger.Info("apagando")
		return nil
	case err := <-errCh:
		return err
	}
}
