// Package cli implements the waveline command-line player: a cobra command
// tree around the playback engine, with an interactive terminal transport.
package cli

import (
	"context"
	"database/sql"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strconv"

	"github.com/spf13/cobra"
	"gopkg.in/natefinch/lumberjack.v2"

	"waveline.click/internal/config"
	"waveline.click/internal/device"
	"waveline.click/internal/tracking"
)

const Version = "0.4.0"

type ctxKey int

const cliCtxKey ctxKey = 0

// CLI wires configuration, the output driver factory and the tracking
// journal into the command tree.
type CLI struct {
	rootCmd          *cobra.Command
	configManager    *config.Manager
	driverFactory    device.DriverFactory
	terminalDetector TerminalDetector
	trackingDB       *sql.DB
}

// NewCLI creates a new CLI instance.
func NewCLI() *CLI {
	rootCmd := &cobra.Command{
		Use:   "waveline [flags] FILE",
		Short: "Streaming audio player",
		Long: "Waveline streams an audio file to the output device with seek, pause,\n" +
			"loop and live device switching, controlled from the keyboard.",
		Args: cobra.MaximumNArgs(1),
		RunE: runPlayE,
	}

	rootCmd.PersistentFlags().String("config", "", "Path to config file")
	rootCmd.PersistentFlags().String("log-level", "", "Log level (debug, info, warn, error)")

	rootCmd.Flags().String("volume", "", "Playback volume (0.0 to 1.0)")
	rootCmd.Flags().String("device", "", "Output device ID")
	rootCmd.Flags().String("driver", "", "Output driver (auto, malgo, oto, null)")
	rootCmd.Flags().Float64("start", 0, "Start position in seconds")
	rootCmd.Flags().String("loop", "", "Loop region as START:END in seconds")
	rootCmd.Flags().BoolP("version", "v", false, "Show version information")

	rootCmd.AddCommand(newDevicesCommand())
	rootCmd.AddCommand(newStatsCommand())

	return &CLI{rootCmd: rootCmd}
}

func contextWithCLI(cli *CLI) context.Context {
	return context.WithValue(context.Background(), cliCtxKey, cli)
}

func cliFromContext(ctx context.Context) *CLI {
	if cli, ok := ctx.Value(cliCtxKey).(*CLI); ok {
		return cli
	}
	return nil
}

// Run executes the CLI with the given arguments and I/O streams and returns
// the process exit code.
func (c *CLI) Run(args []string, stdin io.Reader, stdout, stderr io.Writer) int {
	c.initializeSystems()

	defer func() {
		if c.trackingDB != nil {
			if err := c.trackingDB.Close(); err != nil {
				slog.Error("error closing tracking database", "error", err)
			}
		}
	}()

	c.rootCmd.SetArgs(args[1:])
	c.rootCmd.SetIn(stdin)
	c.rootCmd.SetOut(stdout)
	c.rootCmd.SetErr(stderr)
	c.rootCmd.SetContext(contextWithCLI(c))

	if err := c.rootCmd.Execute(); err != nil {
		slog.Error("command execution failed", "error", err)
		return 1
	}
	return 0
}

func (c *CLI) initializeSystems() {
	if c.configManager == nil {
		c.configManager = config.NewManager()
	}
	if c.driverFactory == nil {
		c.driverFactory = device.NewDriverFactory()
	}
	if c.terminalDetector == nil {
		c.terminalDetector = &DefaultTerminalDetector{}
	}
}

// handleVersionFlag checks and handles the version flag. Returns true when
// version was printed and processing should stop.
func handleVersionFlag(cmd *cobra.Command) bool {
	version, _ := cmd.Flags().GetBool("version")
	if version {
		cmd.Printf("waveline version %s\n", Version)
		return true
	}
	return false
}

// loadAndValidateConfig loads configuration, then applies environment and
// flag overrides in that order.
func loadAndValidateConfig(cmd *cobra.Command, cli *CLI) (*config.Config, error) {
	configFile, _ := cmd.Flags().GetString("config")
	volumeStr, _ := cmd.Flags().GetString("volume")
	deviceFlag, _ := cmd.Flags().GetString("device")
	driverFlag, _ := cmd.Flags().GetString("driver")
	logLevel, _ := cmd.Flags().GetString("log-level")

	if volumeStr != "" {
		vol, err := strconv.ParseFloat(volumeStr, 64)
		if err != nil {
			cmd.PrintErrf("Error: invalid volume value '%s': %v\n", volumeStr, err)
			return nil, fmt.Errorf("invalid volume value '%s': %w", volumeStr, err)
		}
		if vol < 0.0 || vol > 1.0 {
			cmd.PrintErrf("Error: volume must be between 0.0 and 1.0, got %f\n", vol)
			return nil, fmt.Errorf("volume must be between 0.0 and 1.0, got %f", vol)
		}
	}

	var cfg *config.Config
	var err error
	if configFile != "" {
		cfg, err = cli.configManager.LoadFromFile(configFile)
		if err != nil {
			slog.Warn("config file not usable, using defaults", "file", configFile, "error", err)
			cfg = cli.configManager.Default()
		}
	} else {
		cfg, err = cli.configManager.Load()
		if err != nil {
			cmd.PrintErrf("Error loading config: %v\n", err)
			return nil, fmt.Errorf("error loading config: %w", err)
		}
	}

	cfg = cli.configManager.ApplyEnvironmentOverrides(cfg)

	if volumeStr != "" {
		vol, _ := strconv.ParseFloat(volumeStr, 64)
		cfg.Volume = vol
	}
	if deviceFlag != "" {
		cfg.Device = deviceFlag
	}
	if driverFlag != "" {
		cfg.Driver = driverFlag
	}
	if logLevel != "" {
		cfg.LogLevel = logLevel
	}

	if err := cli.configManager.Validate(cfg); err != nil {
		cmd.PrintErrf("Error: invalid configuration: %v\n", err)
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return cfg, nil
}

// setupLogging configures slog on stderr, plus a rotating file when enabled.
func setupLogging(cfg *config.Config, stderrWriter io.Writer) {
	level, err := config.ParseLogLevel(cfg.LogLevel)
	if err != nil {
		level = slog.LevelWarn
	}

	writers := []io.Writer{stderrWriter}

	if cfg.FileLogging != nil && cfg.FileLogging.Enabled {
		manager := config.NewManager()
		logFilePath := manager.ResolveLogFilePath(cfg.FileLogging.Filename)

		if err := os.MkdirAll(filepath.Dir(logFilePath), 0755); err != nil {
			slog.Error("failed to create log directory", "path", logFilePath, "error", err)
		} else {
			writers = append(writers, &lumberjack.Logger{
				Filename:   logFilePath,
				MaxSize:    cfg.FileLogging.MaxSizeMB,
				MaxBackups: cfg.FileLogging.MaxBackups,
				MaxAge:     cfg.FileLogging.MaxAgeDays,
				Compress:   cfg.FileLogging.Compress,
			})
		}
	}

	handler := slog.NewTextHandler(io.MultiWriter(writers...), &slog.HandlerOptions{
		Level: level,
	})
	slog.SetDefault(slog.New(handler))
}

// initializeTracking opens the journal database when tracking is enabled.
func (c *CLI) initializeTracking(cfg *config.Config) {
	if c.trackingDB != nil || cfg.Tracking == nil || !cfg.Tracking.Enabled {
		return
	}

	dbPath := c.configManager.ResolveTrackingPath(cfg.Tracking.DatabasePath)
	db, err := tracking.NewDatabase(dbPath)
	if err != nil {
		slog.Warn("playback tracking disabled, cannot open database",
			"db_path", dbPath, "error", err)
		return
	}
	c.trackingDB = db
	slog.Debug("playback tracking enabled", "db_path", dbPath)
}
