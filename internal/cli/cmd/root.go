package cmd

import (
	"errors"
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/berrythewa/xclipper/internal/config"
	"github.com/berrythewa/xclipper/internal/payload"
	"github.com/berrythewa/xclipper/internal/x11"
)

// process exit codes
const (
	exitUsage   = 1
	exitFile    = 2
	exitRuntime = 3
)

var (
	// Global flags
	configFile   string
	verbose      bool
	quiet        bool
	fileNameMode bool
	contentsMode bool

	// Shared resources
	logger *zap.Logger
)

// exitError carries the process exit code for a failed run.
type exitError struct {
	code int
	err  error
}

func (e *exitError) Error() string { return e.err.Error() }

func (e *exitError) Unwrap() error { return e.err }

// rootCmd represents the base command when called without any subcommands
var rootCmd = &cobra.Command{
	Use:   "xclipper [flags] [--] STRING|FILE",
	Short: "Own the X11 CLIPBOARD selection and serve a value to pasting clients",
	Long: `Xclipper acquires the CLIPBOARD selection and serves its value to any
client that pastes, for as long as it keeps ownership:
  • a literal string (default)
  • a file name, advertised with the file-manager paste formats (-f)
  • the contents of a file, mmapped when large (-c)

It speaks ICCCM: TARGETS, TIMESTAMP, MULTIPLE and INCR for large payloads.`,
	Args:          cobra.ExactArgs(1),
	SilenceUsage:  true,
	SilenceErrors: true,
	RunE:          run,
}

// Execute runs the root command and returns the exit code: 0 on success, 1
// for usage errors, 2 for file errors, 3 for runtime errors.
func Execute() int {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		var xerr *exitError
		if errors.As(err, &xerr) {
			return xerr.code
		}
		fmt.Fprint(os.Stderr, rootCmd.UsageString())
		return exitUsage
	}
	return 0
}

func init() {
	rootCmd.PersistentFlags().StringVar(&configFile, "config", "", "config file (default is $XDG_CONFIG_HOME/xclipper/config.yaml)")
	rootCmd.PersistentFlags().BoolVar(&verbose, "verbose", false, "enable verbose output")
	rootCmd.PersistentFlags().BoolVar(&quiet, "quiet", false, "minimize output")

	rootCmd.Flags().BoolVarP(&fileNameMode, "file-name", "f", false, "serve the canonicalized file name of FILE")
	rootCmd.Flags().BoolVarP(&contentsMode, "contents", "c", false, "serve the contents of FILE")
	rootCmd.MarkFlagsMutuallyExclusive("file-name", "contents")

	rootCmd.AddCommand(newVersionCmd())
}

func run(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load(configFile)
	if err != nil {
		return &exitError{exitRuntime, err}
	}
	setupLogger(cfg)
	defer logger.Sync()

	mode := payload.ModeString
	switch {
	case fileNameMode:
		mode = payload.ModeFileName
	case contentsMode:
		mode = payload.ModeContents
	}
	p, err := payload.Load(mode, args[0])
	if err != nil {
		return &exitError{exitFile, err}
	}
	defer p.Close()

	clip, err := x11.New(x11.Options{
		Data:            p.Bytes(),
		IsFile:          p.IsFile(),
		Logger:          logger,
		MaxTransferSize: cfg.MaxTransferSize,
	})
	if err != nil {
		return &exitError{exitRuntime, err}
	}
	defer clip.Close()

	if err := clip.Run(); err != nil {
		return &exitError{exitRuntime, err}
	}
	return nil
}

func setupLogger(cfg *config.Config) {
	var zcfg zap.Config
	switch {
	case verbose:
		zcfg = zap.NewDevelopmentConfig()
	case quiet:
		zcfg = zap.NewProductionConfig()
		zcfg.Level = zap.NewAtomicLevelAt(zap.WarnLevel)
	default:
		zcfg = zap.NewProductionConfig()
		if level, err := zapcore.ParseLevel(cfg.Log.Level); err == nil {
			zcfg.Level = zap.NewAtomicLevelAt(level)
		}
		if cfg.Log.Format == "console" {
			zcfg.Encoding = "console"
		}
	}
	// diagnostics belong on stderr; stdout stays clean
	zcfg.OutputPaths = []string{"stderr"}

	var err error
	logger, err = zcfg.Build()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error initializing logger: %v\n", err)
		os.Exit(exitRuntime)
	}
	logger = logger.With(zap.String("instance_id", cfg.InstanceID))
}
