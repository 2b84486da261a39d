package cmd

import (
	"fmt"
	"io"
	"log"
	"os"
	"os/signal"
	"path/filepath"
	"sort"
	"syscall"

	"cam-chunker/config"
	"cam-chunker/database"
	"cam-chunker/metrics"
	"cam-chunker/service"
	"cam-chunker/storage"
	"cam-chunker/transcode"

	"github.com/charmbracelet/lipgloss"
	"github.com/spf13/cobra"
)

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Run one extraction",
	Long: `Extract the configured window for one camera and day, split it into chunks and
write manifest.json. Flags override the matching config file settings.`,
	Example: `  cam-chunker run --camera cam1 --date 2024-01-01 --start 09:05 --end 09:12
  cam-chunker run --config site.yaml --chunk-length 600 --reencode`,
	Args: cobra.NoArgs,
	RunE: runExtraction,
}

func init() {
	addRunFlags(runCmd)
	rootCmd.AddCommand(runCmd)
}

func addRunFlags(cmd *cobra.Command) {
	cmd.Flags().String("camera", "", "camera name prefix of the source files")
	cmd.Flags().String("date", "", "day to extract (YYYY-MM-DD)")
	cmd.Flags().String("start", "", "window start (HH:MM)")
	cmd.Flags().String("end", "", "window end (HH:MM)")
	cmd.Flags().Int("chunk-length", 0, "chunk length in seconds")
	cmd.Flags().Bool("reencode", false, "re-encode instead of stream copy")
	cmd.Flags().String("input", "", "folder holding the source recordings")
	cmd.Flags().String("output", "", "folder for the clip, chunks and manifest")
	cmd.Flags().Bool("no-history", false, "do not record the run in the database")
}

// applyRunFlags copies explicitly set flags over cfg.
func applyRunFlags(cmd *cobra.Command, cfg *config.Config) {
	flags := cmd.Flags()
	strFlags := map[string]*string{
		"camera": &cfg.Camera,
		"date":   &cfg.Date,
		"start":  &cfg.StartTime,
		"end":    &cfg.EndTime,
		"input":  &cfg.InputFolder,
		"output": &cfg.OutputFolder,
	}
	for name, dst := range strFlags {
		if flags.Changed(name) {
			*dst, _ = flags.GetString(name)
		}
	}
	if flags.Changed("chunk-length") {
		cfg.ChunkLength, _ = flags.GetInt("chunk-length")
	}
	if flags.Changed("reencode") {
		cfg.Reencode, _ = flags.GetBool("reencode")
	}
}

func runExtraction(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	applyRunFlags(cmd, &cfg)

	job, err := cfg.Job()
	if err != nil {
		return err
	}

	ff := transcode.NewFFmpeg(cfg, nil)
	if errs := ff.CheckAll(); len(errs) > 0 {
		return errs[0]
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if job.Reencode {
		ff.ResolveHardwareAccel(ctx)
	}

	pcfg := service.PipelineConfig{
		Media:          ff,
		Metrics:        metrics.NewMetricsCollector(nil),
		MinFreeSpaceMB: cfg.MinFreeSpaceMB,
	}

	if noHistory, _ := cmd.Flags().GetBool("no-history"); !noHistory {
		config.EnsurePaths(cfg)
		db, err := database.NewSQLiteDB(cfg.DatabasePath)
		if err != nil {
			log.Printf("Warning: run history disabled: %v", err)
		} else {
			defer db.Close()
			pcfg.DB = db
		}
	}

	if cfg.R2.Enabled {
		r2, err := newR2Storage(cfg)
		if err != nil {
			return fmt.Errorf("failed to initialize R2 storage: %w", err)
		}
		pcfg.Uploader = r2
	}

	res, err := service.NewPipeline(pcfg).Run(ctx, job, service.TriggerCLI)
	if err != nil {
		return err
	}
	printResult(cmd.OutOrStdout(), res)
	return nil
}

func newR2Storage(cfg config.Config) (*storage.R2Storage, error) {
	return storage.NewR2Storage(storage.R2Config{
		AccessKey: cfg.R2.AccessKey,
		SecretKey: cfg.R2.SecretKey,
		AccountID: cfg.R2.AccountID,
		Bucket:    cfg.R2.Bucket,
		Endpoint:  cfg.R2.Endpoint,
		Region:    cfg.R2.Region,
		BaseURL:   cfg.R2.BaseURL,
		Prefix:    cfg.R2.Prefix,
	})
}

func printResult(w io.Writer, res *service.RunResult) {
	fmt.Fprintln(w)
	fmt.Fprintf(w, "%s %s\n", titleStyle.Render("Run "+res.RunID), statusStyle(res.Status).Render(string(res.Status)))
	fmt.Fprintf(w, "  %s %s, %s - %s\n", labelStyle.Render("camera"), res.Job.Camera,
		res.Job.Window.Start.Format("2006-01-02 15:04"), res.Job.Window.End.Format("15:04"))
	if res.Extraction != nil {
		fmt.Fprintf(w, "  %s %s (%.1fs from %d segment(s))\n", labelStyle.Render("clip  "),
			filepath.Base(res.CombinedPath), res.Extraction.Duration(), len(res.Extraction.Segments))
		if res.Extraction.Dropped > 0 {
			fmt.Fprintln(w, "  "+failStyle.Render(fmt.Sprintf("%d source file(s) dropped", res.Extraction.Dropped)))
		}
	}
	fmt.Fprintf(w, "  %s %d of %d\n", labelStyle.Render("chunks"), len(res.Chunks), res.ChunksPlanned)
	for _, c := range res.Chunks {
		fmt.Fprintf(w, "    %s  %s - %s\n", filepath.Base(c.Path), c.Start.Format("15:04:05"), c.End.Format("15:04:05"))
	}
	if len(res.Uploaded) > 0 || res.UploadErrors > 0 {
		fmt.Fprintf(w, "  %s %d uploaded, %d failed\n", labelStyle.Render("r2    "), len(res.Uploaded), res.UploadErrors)
	}
	if len(res.Timings) > 0 {
		stages := make([]string, 0, len(res.Timings))
		for stage := range res.Timings {
			stages = append(stages, stage)
		}
		sort.Strings(stages)
		line := ""
		for _, stage := range stages {
			line += fmt.Sprintf(" %s=%.2fs", stage, res.Timings[stage])
		}
		fmt.Fprintln(w, "  "+dimStyle.Render("timings:"+line))
	}
	fmt.Fprintf(w, "\nManifest saved to %s\n", res.ManifestPath)
}

func statusStyle(status database.RunStatus) lipgloss.Style {
	switch status {
	case database.StatusCompleted:
		return okStyle
	case database.StatusPartial:
		return warnStyle
	case database.StatusFailed:
		return failStyle
	default:
		return dimStyle
	}
}
