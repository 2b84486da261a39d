package cmd

import (
	"context"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"cam-chunker/api"
	"cam-chunker/config"
	"cam-chunker/cron"
	"cam-chunker/database"
	"cam-chunker/metrics"
	"cam-chunker/monitoring"
	"cam-chunker/service"
	"cam-chunker/transcode"

	"github.com/spf13/cobra"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the HTTP API and the daily extraction schedule",
	Long: `Start the HTTP API for triggering and inspecting runs, the scheduled daily
extraction (when schedule.enabled is set) and the resource monitor.
SIGHUP reloads the config file; SIGINT or SIGTERM shuts down.`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig(cmd)
		if err != nil {
			return err
		}
		if _, err := cfg.Location(); err != nil {
			return err
		}
		config.EnsurePaths(cfg)

		ff := transcode.NewFFmpeg(cfg, nil)
		for _, err := range ff.CheckAll() {
			log.Printf("Warning: %v", err)
		}

		db, err := database.NewSQLiteDB(cfg.DatabasePath)
		if err != nil {
			return fmt.Errorf("failed to initialize SQLite database: %w", err)
		}
		defer db.Close()

		ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
		defer stop()

		ff.ResolveHardwareAccel(ctx)

		collector := metrics.NewMetricsCollector(nil)
		pcfg := service.PipelineConfig{
			Media:          ff,
			DB:             db,
			Metrics:        collector,
			MinFreeSpaceMB: cfg.MinFreeSpaceMB,
		}

		var uploadService *service.UploadService
		if cfg.R2.Enabled {
			r2, err := newR2Storage(cfg)
			if err != nil {
				return fmt.Errorf("failed to initialize R2 storage: %w", err)
			}
			pcfg.Uploader = r2
			uploadService = service.NewUploadService(db, r2, nil)
			uploadService.StartUploadWorker(ctx, 15*time.Minute)
		}
		pipeline := service.NewPipeline(pcfg)

		var cfgPath string
		if cmd.Flags().Changed("config") {
			cfgPath = configPath
		} else if _, err := os.Stat(configPath); err == nil {
			cfgPath = configPath
		}
		cfgManager := config.NewConfigManager(cfg, cfgPath)
		go watchReload(ctx, cfgManager)

		monitoring.StartMonitoring(ctx, 5*time.Minute, cfg.OutputFolder, cfg.MinFreeSpaceMB)

		server := api.NewServer(ctx, cfgManager, db, pipeline, uploadService)

		if cfg.Schedule.Enabled {
			extractionCron, err := cron.NewExtractionCron(pipeline, cfgManager, db, collector)
			if err != nil {
				return err
			}
			if err := extractionCron.Start(); err != nil {
				return err
			}
			defer extractionCron.Stop()
			server.SetNextRun(extractionCron.NextRun)
		}

		go func() {
			<-ctx.Done()
			log.Println("[API] Shutting down...")
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
			defer cancel()
			if err := server.Shutdown(shutdownCtx); err != nil {
				log.Printf("[API] Error during shutdown: %v", err)
			}
		}()

		return server.Start()
	},
}

// watchReload reloads the config file on SIGHUP until ctx is done.
func watchReload(ctx context.Context, cm *config.ConfigManager) {
	hup := make(chan os.Signal, 1)
	signal.Notify(hup, syscall.SIGHUP)
	defer signal.Stop(hup)
	for {
		select {
		case <-ctx.Done():
			return
		case <-hup:
			if err := cm.Reload(); err != nil {
				log.Printf("[Config] Reload failed, keeping current configuration: %v", err)
			}
		}
	}
}

func init() {
	rootCmd.AddCommand(serveCmd)
}
