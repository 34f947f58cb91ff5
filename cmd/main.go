package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/joho/godotenv"
	"github.com/redis/go-redis/v9"
	"github.com/spf13/cobra"
	"gorm.io/driver/mysql"
	"gorm.io/driver/postgres"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"

	"fyts-validation/internal/config"
	"fyts-validation/internal/handler"
	"fyts-validation/internal/metrics"
	"fyts-validation/internal/repository"
	"fyts-validation/internal/scheduler"
	"fyts-validation/internal/service"
	"fyts-validation/internal/storage"
	"fyts-validation/internal/tracking"
	"fyts-validation/pkg/logger"
)

var (
	cfgFile string
	cfg     *config.Config
)

func main() {
	rootCmd := &cobra.Command{
		Use:   "fyts",
		Short: "FYTS movement validation and token distribution",
		Long: `Validates GPS movement sessions into reviewable run records and
distributes approved FYTS rewards as ERC-20 transfers.`,
		SilenceUsage:      true,
		PersistentPreRunE: loadConfig,
	}

	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default is $CONFIG_PATH or config/config.yaml)")

	rootCmd.AddCommand(serveCmd())
	rootCmd.AddCommand(distributeCmd())
	rootCmd.AddCommand(exportCmd())
	rootCmd.AddCommand(adminTokenCmd())

	err := rootCmd.Execute()
	logger.Close()
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func loadConfig(cmd *cobra.Command, args []string) error {
	_ = godotenv.Load()

	path := cfgFile
	if path == "" {
		path = os.Getenv("CONFIG_PATH")
	}
	if path == "" {
		path = "config/config.yaml"
	}

	var err error
	cfg, err = config.Load(path)
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}

	if err := logger.Init(cfg.Logging.Level, cfg.Logging.Format, cfg.Logging.Output); err != nil {
		return fmt.Errorf("failed to init logger: %w", err)
	}
	return nil
}

func serveCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the tracking and review HTTP API",
		RunE:  runServe,
	}
}

func runServe(cmd *cobra.Command, args []string) error {
	db, err := initDatabase(cfg.Database)
	if err != nil {
		return fmt.Errorf("failed to connect to database: %w", err)
	}
	defer closeDatabase(db)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	runRepo := repository.NewRunRepository(db)
	if err := runRepo.Migrate(ctx); err != nil {
		return fmt.Errorf("failed to migrate database: %w", err)
	}
	runSvc := service.NewRunService(runRepo)

	store, closeStore, err := newSessionStore(ctx, cfg)
	if err != nil {
		return err
	}
	defer closeStore()
	sessions := service.NewSessionManager(store, runSvc, trackingParams(cfg.Tracking))

	exporter, err := newExportScheduler(ctx, runSvc, &cfg.Export)
	if err != nil {
		return err
	}
	if cfg.Export.Enabled {
		if err := exporter.Start(); err != nil {
			return fmt.Errorf("failed to start export scheduler: %w", err)
		}
		defer exporter.Stop()
	}

	metrics.Register()
	gin.SetMode(cfg.Server.Mode)
	router := handler.NewRouter(handler.RouterDeps{
		Sessions:  sessions,
		Runs:      runSvc,
		Exporter:  exporter,
		JWTSecret: cfg.Auth.JWTSecret,
	})

	server := &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Server.Port),
		Handler:      router,
		ReadTimeout:  time.Duration(cfg.Server.ReadTimeout) * time.Second,
		WriteTimeout: time.Duration(cfg.Server.WriteTimeout) * time.Second,
	}

	serverErr := make(chan error, 1)
	go func() {
		logger.Infof("Server starting on port %d", cfg.Server.Port)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			serverErr <- err
		}
	}()

	select {
	case <-ctx.Done():
	case err := <-serverErr:
		return fmt.Errorf("server failed: %w", err)
	}

	logger.Info("Shutting down server...")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.WithError(err).Error("Server shutdown error")
	}

	logger.Info("Server stopped")
	return nil
}

func exportCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "export",
		Short: "Export approved runs as a wallet,tokens,run_id CSV",
		RunE:  runExport,
	}
	cmd.Flags().Bool("stdout", false, "write the CSV to stdout instead of export.output_dir")
	return cmd
}

func runExport(cmd *cobra.Command, args []string) error {
	toStdout, _ := cmd.Flags().GetBool("stdout")

	db, err := initDatabase(cfg.Database)
	if err != nil {
		return fmt.Errorf("failed to connect to database: %w", err)
	}
	defer closeDatabase(db)

	ctx := cmd.Context()
	runRepo := repository.NewRunRepository(db)
	if err := runRepo.Migrate(ctx); err != nil {
		return fmt.Errorf("failed to migrate database: %w", err)
	}
	runSvc := service.NewRunService(runRepo)

	if toStdout {
		_, err := runSvc.ExportApproved(ctx, os.Stdout)
		return err
	}

	exporter, err := newExportScheduler(ctx, runSvc, &cfg.Export)
	if err != nil {
		return err
	}
	result, err := exporter.TriggerExport(ctx)
	if err != nil {
		return err
	}

	fmt.Printf("Exported %d approved runs to %s\n", result.Rows, result.Path)
	if result.URL != "" {
		fmt.Printf("Uploaded to %s\n", result.URL)
	}
	return nil
}

func adminTokenCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "admin-token",
		Short: "Issue a bearer token for the admin review API",
		RunE: func(cmd *cobra.Command, args []string) error {
			subject, _ := cmd.Flags().GetString("subject")
			ttl, _ := cmd.Flags().GetDuration("ttl")
			if ttl <= 0 {
				ttl = cfg.Auth.TokenTTL
			}

			token, err := handler.GenerateAdminToken(cfg.Auth.JWTSecret, subject, ttl)
			if err != nil {
				return err
			}
			fmt.Println(token)
			return nil
		},
	}
	cmd.Flags().String("subject", "admin", "token subject recorded in review logs")
	cmd.Flags().Duration("ttl", 0, "token lifetime (default auth.token_ttl)")
	return cmd
}

func initDatabase(dbCfg config.DatabaseConfig) (*gorm.DB, error) {
	var dialector gorm.Dialector
	switch dbCfg.Driver {
	case "postgres":
		dialector = postgres.Open(dbCfg.DSN())
	case "sqlite":
		dialector = sqlite.Open(dbCfg.DSN())
	default:
		dialector = mysql.Open(dbCfg.DSN())
	}

	db, err := gorm.Open(dialector, &gorm.Config{})
	if err != nil {
		return nil, err
	}

	sqlDB, err := db.DB()
	if err != nil {
		return nil, err
	}

	sqlDB.SetMaxOpenConns(dbCfg.MaxOpenConns)
	sqlDB.SetMaxIdleConns(dbCfg.MaxIdleConns)
	sqlDB.SetConnMaxLifetime(time.Duration(dbCfg.ConnMaxLifetime) * time.Second)

	return db, nil
}

func closeDatabase(db *gorm.DB) {
	sqlDB, err := db.DB()
	if err != nil {
		logger.WithError(err).Error("Failed to get database instance")
		return
	}
	sqlDB.Close()
}

func newSessionStore(ctx context.Context, cfg *config.Config) (service.SessionStore, func(), error) {
	if cfg.Tracking.SessionStore != "redis" {
		return service.NewMemorySessionStore(cfg.Tracking.SessionTTL), func() {}, nil
	}

	client := redis.NewClient(&redis.Options{
		Addr:     cfg.Redis.Addr,
		Password: cfg.Redis.Password,
		DB:       cfg.Redis.DB,
	})
	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, nil, fmt.Errorf("failed to connect to redis at %s: %w", cfg.Redis.Addr, err)
	}

	logger.WithFields(map[string]interface{}{
		"addr": cfg.Redis.Addr,
		"ttl":  cfg.Tracking.SessionTTL.String(),
	}).Info("Using redis session store")
	return service.NewRedisSessionStore(client, cfg.Tracking.SessionTTL), func() { client.Close() }, nil
}

func newExportScheduler(ctx context.Context, runSvc *service.RunService, exportCfg *config.ExportConfig) (*scheduler.ExportScheduler, error) {
	if exportCfg.S3Bucket == "" {
		return scheduler.NewExportScheduler(runSvc, exportCfg, nil), nil
	}

	uploader, err := storage.NewS3Uploader(ctx, exportCfg)
	if err != nil {
		return nil, err
	}
	return scheduler.NewExportScheduler(runSvc, exportCfg, uploader), nil
}

func trackingParams(t config.TrackingConfig) tracking.Params {
	return tracking.Params{
		MaxAccuracyMeters: t.MaxAccuracyMeters,
		MaxSpeedMph:       t.MaxSpeedMph,
		MinMovementMeters: t.MinMovementMeters,
		AssumedInterval:   t.AssumedInterval,
		IntervalMode:      tracking.IntervalMode(t.IntervalMode),
	}
}
