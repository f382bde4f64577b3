package main

import (
	"fmt"

	"api_sales/api"
	"api_sales/internal/config"
	"api_sales/internal/database"
	"api_sales/internal/logging"
	"api_sales/internal/sales"
	"api_sales/internal/users"

	"github.com/gin-gonic/gin"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

func newRootCmd() *cobra.Command {
	var envFile string

	root := &cobra.Command{
		Use:           "api_sales",
		Short:         "Sales API: sales with quantity-tiered discounts",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.PersistentFlags().StringVar(&envFile, "env-file", "", "optional .env file (default .env)")

	serve := &cobra.Command{
		Use:   "serve",
		Short: "Start the HTTP server",
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runServe(envFile)
		},
	}

	migrateCmd := &cobra.Command{
		Use:   "migrate",
		Short: "Manage the database schema",
	}
	migrateCmd.AddCommand(&cobra.Command{
		Use:   "up",
		Short: "Apply all pending migrations",
		RunE: func(cmd *cobra.Command, _ []string) error {
			return withDatabase(envFile, func(db *gorm.DB, logger *zap.Logger) error {
				return database.MigrateUp(db, logger)
			})
		},
	})
	var steps int
	down := &cobra.Command{
		Use:   "down",
		Short: "Roll back migrations",
		RunE: func(cmd *cobra.Command, _ []string) error {
			return withDatabase(envFile, func(db *gorm.DB, logger *zap.Logger) error {
				return database.MigrateDown(db, steps, logger)
			})
		},
	}
	down.Flags().IntVar(&steps, "steps", 1, "number of migrations to roll back")
	migrateCmd.AddCommand(down)

	root.AddCommand(serve, migrateCmd)
	// Running the binary without a subcommand starts the server.
	root.RunE = serve.RunE
	return root
}

func loadConfig(envFile string) (*config.Config, *zap.Logger, error) {
	var files []string
	if envFile != "" {
		files = append(files, envFile)
	}
	cfg, err := config.Load(files...)
	if err != nil {
		return nil, nil, err
	}
	logger, err := logging.New(cfg.LogLevel, cfg.IsDevelopment())
	if err != nil {
		return nil, nil, err
	}
	return cfg, logger, nil
}

func openDatabase(cfg *config.Config, logger *zap.Logger) (*gorm.DB, error) {
	return database.Open(database.PostgresConfig{
		DSN:             cfg.DatabaseDSN,
		MaxOpenConns:    cfg.DBMaxOpenConns,
		MaxIdleConns:    cfg.DBMaxIdleConns,
		ConnMaxLifetime: cfg.DBConnMaxLifetime,
	}, logger)
}

func withDatabase(envFile string, fn func(*gorm.DB, *zap.Logger) error) error {
	cfg, logger, err := loadConfig(envFile)
	if err != nil {
		return err
	}
	defer logger.Sync()

	db, err := openDatabase(cfg, logger)
	if err != nil {
		return err
	}
	defer database.Close(db)
	return fn(db, logger)
}

func runServe(envFile string) error {
	cfg, logger, err := loadConfig(envFile)
	if err != nil {
		return err
	}
	defer logger.Sync()

	var storage sales.Storage
	switch cfg.Storage {
	case config.StorageMemory:
		logger.Warn("using in-memory storage, sales are lost on restart")
		storage = sales.NewLocalStorage()
	default:
		db, err := openDatabase(cfg, logger)
		if err != nil {
			return err
		}
		defer database.Close(db)
		if cfg.MigrateOnStart {
			if err := database.MigrateUp(db, logger); err != nil {
				return err
			}
		}
		storage = sales.NewGormStorage(db)
	}

	var directory sales.UserDirectory
	if cfg.UserServiceURL != "" {
		client := users.NewClient(cfg.UserServiceURL, cfg.UserServiceTimeout, logger)
		defer client.Close()
		directory = client
	} else {
		logger.Warn("USER_SERVICE_URL is empty, sale creators are not verified")
	}

	salesService := sales.NewService(storage, directory, sales.NewLogPublisher(logger), logger)

	if !cfg.IsDevelopment() {
		gin.SetMode(gin.ReleaseMode)
	}
	r := gin.New()
	r.Use(gin.Recovery(), api.RequestLogger(logger))
	api.InitRoutes(r, salesService, logger, cfg.CORSOrigins)

	logger.Info("server starting", zap.String("port", cfg.Port), zap.String("storage", cfg.Storage))
	if err := r.Run(":" + cfg.Port); err != nil {
		return fmt.Errorf("error trying to start server: %w", err)
	}
	return nil
}
