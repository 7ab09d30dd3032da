// Command quill lists, renders and runs content-generation flows.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/klejdi94/quill/config"
	"github.com/klejdi94/quill/internal/app"
	"github.com/klejdi94/quill/registry"
)

// version is set at build time via -ldflags.
var version = "dev"

var rootFlags struct {
	config  string
	verbose bool
}

var rootCmd = &cobra.Command{
	Use:   "quill",
	Short: "Typed prompt flows for content generation",
	Long:  "quill validates input against a flow's declared fields, renders its prompt,\ncalls the configured model once and checks the reply against the flow's output shape.",
	CompletionOptions: cobra.CompletionOptions{
		HiddenDefaultCmd: true,
	},
	SilenceUsage: true,
}

func init() {
	pf := rootCmd.PersistentFlags()
	pf.StringVar(&rootFlags.config, "config", os.Getenv("QUILL_CONFIG"), "Path to YAML config")
	pf.BoolVarP(&rootFlags.verbose, "verbose", "v", false, "Log at debug level")

	rootCmd.AddCommand(flowsCmd)
	rootCmd.AddCommand(renderCmd)
	rootCmd.AddCommand(runCmd)
	rootCmd.AddCommand(catalogCmd)
	rootCmd.Version = version
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	err := rootCmd.ExecuteContext(ctx)
	stop()
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

// env is what every subcommand needs: configuration, a logger and the
// connections they opened.
type env struct {
	cfg     *config.Config
	logger  *zap.Logger
	closers app.Closers
}

func setup() (*env, error) {
	cfg, err := config.Load(rootFlags.config)
	if err != nil {
		return nil, err
	}
	if rootFlags.verbose {
		cfg.Log.Level = "debug"
	}
	// CLI output goes to stdout; logs stay readable on stderr.
	cfg.Log.Format = "console"
	logger, err := cfg.Log.NewLogger()
	if err != nil {
		return nil, err
	}
	return &env{cfg: cfg, logger: logger}, nil
}

func (e *env) close() {
	if err := e.closers.Close(); err != nil {
		e.logger.Warn("close", zap.Error(err))
	}
	_ = e.logger.Sync()
}

func (e *env) catalog(ctx context.Context) (*registry.Catalog, error) {
	return app.Catalog(ctx, e.cfg.Catalog, e.logger, &e.closers)
}
