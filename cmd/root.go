package cmd

import (
	"context"
	"errors"
	"fmt"
	"os"

	"cam-chunker/config"
	"cam-chunker/transcode"

	"github.com/spf13/cobra"
)

var Version = "0.1.0"

const defaultConfigPath = "config.yaml"

var configPath string

var rootCmd = &cobra.Command{
	Use:   "cam-chunker",
	Short: "Cut a time window out of camera footage and split it into chunks",
	Long: `cam-chunker extracts a wall-clock time window from a folder of sequential
camera recordings, stitches the overlapping pieces into one clip, splits the
clip into fixed-length chunks and writes a JSON manifest describing them.

Without a subcommand it runs the extraction described by the config file.`,
	SilenceUsage:  true,
	SilenceErrors: true,
	RunE:          runExtraction,
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print the version number",
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Fprintf(cmd.OutOrStdout(), "cam-chunker version %s\n", Version)
	},
}

var doctorCmd = &cobra.Command{
	Use:   "doctor",
	Short: "Check system dependencies",
	Long:  `Check that ffmpeg and ffprobe are installed and that the configured time zone resolves.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig(cmd)
		if err != nil {
			return err
		}
		out := cmd.OutOrStdout()
		fmt.Fprintln(out, titleStyle.Render("Checking dependencies..."))
		fmt.Fprintln(out)

		allGood := true
		ff := transcode.NewFFmpeg(cfg, nil)
		versions := ff.Versions(cmd.Context())
		for _, bin := range []string{cfg.FFmpegPath, cfg.FFprobePath} {
			if err := transcode.CheckBinary(bin); err != nil {
				var depErr *transcode.DependencyError
				fmt.Fprintln(out, failStyle.Render("✗ "+bin+": NOT FOUND"))
				if errors.As(err, &depErr) {
					fmt.Fprintf(out, "  Install from: %s\n", depErr.InstallURL)
				}
				allGood = false
				continue
			}
			fmt.Fprintf(out, "%s %s\n", okStyle.Render("✓ "+bin+": OK"), dimStyle.Render(versions[bin]))
		}

		if allGood {
			hw := cfg.HardwareAccel
			switch hw {
			case transcode.HardwareAuto:
				hw = ff.DetectHardwareAccel(cmd.Context()) + " (detected)"
			case "":
				hw = "software"
			}
			fmt.Fprintln(out, okStyle.Render("✓ encoder: "+hw))
		}

		if loc, err := cfg.Location(); err != nil {
			fmt.Fprintln(out, failStyle.Render("✗ timezone: "+err.Error()))
			allGood = false
		} else {
			fmt.Fprintln(out, okStyle.Render("✓ timezone: "+loc.String()))
		}

		fmt.Fprintln(out)
		if !allGood {
			return errors.New("some dependencies are missing, please install them first")
		}
		fmt.Fprintln(out, "All dependencies are installed!")
		return nil
	},
}

func init() {
	rootCmd.PersistentFlags().StringVar(&configPath, "config", defaultConfigPath, "path to the YAML config file")
	addRunFlags(rootCmd)

	rootCmd.AddCommand(versionCmd)
	rootCmd.AddCommand(doctorCmd)
}

// loadConfig reads the config file named by --config. A missing default
// config.yaml is not an error; defaults and the environment are used instead.
func loadConfig(cmd *cobra.Command) (config.Config, error) {
	path := configPath
	if !cmd.Flags().Changed("config") {
		if _, err := os.Stat(path); os.IsNotExist(err) {
			path = ""
		}
	}
	return config.LoadConfig(path)
}

func Execute() {
	if err := rootCmd.ExecuteContext(context.Background()); err != nil {
		fmt.Fprintln(os.Stderr, failStyle.Render("Error: ")+err.Error())
		os.Exit(1)
	}
}
