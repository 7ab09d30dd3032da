package main

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/klejdi94/quill/core"
	"github.com/klejdi94/quill/cost"
	"github.com/klejdi94/quill/executor"
	"github.com/klejdi94/quill/internal/app"
)

var inputFlags struct {
	file string
}

var runFlags struct {
	model       string
	temperature float64
	maxTokens   int
	topP        float64
	stop        []string
	raw         bool
}

var renderCmd = &cobra.Command{
	Use:   "render <flow> [field=value...]",
	Short: "Validate input and print the rendered prompt without calling the model",
	Args:  cobra.MinimumNArgs(1),
	RunE:  runRender,
}

var runCmd = &cobra.Command{
	Use:   "run <flow> [field=value...]",
	Short: "Run a flow and print the validated output as JSON",
	Args:  cobra.MinimumNArgs(1),
	RunE:  runRun,
}

func init() {
	for _, c := range []*cobra.Command{renderCmd, runCmd} {
		c.Flags().StringVarP(&inputFlags.file, "input", "i", "", "Read input fields from a JSON file (- for stdin)")
	}
	f := runCmd.Flags()
	f.StringVar(&runFlags.model, "model", "", "Model override")
	f.Float64Var(&runFlags.temperature, "temperature", 0, "Sampling temperature (0 = provider default)")
	f.IntVar(&runFlags.maxTokens, "max-tokens", 0, "Completion token limit (0 = provider default)")
	f.Float64Var(&runFlags.topP, "top-p", 0, "Nucleus sampling (0 = provider default)")
	f.StringSliceVar(&runFlags.stop, "stop", nil, "Stop sequence (repeatable)")
	f.BoolVar(&runFlags.raw, "compact", false, "Print compact JSON")
}

func readInput(args []string) (core.RawInput, error) {
	raw := core.RawInput{}
	if inputFlags.file != "" {
		var data []byte
		var err error
		if inputFlags.file == "-" {
			data, err = readAll(os.Stdin)
		} else {
			data, err = os.ReadFile(inputFlags.file)
		}
		if err != nil {
			return nil, fmt.Errorf("read input: %w", err)
		}
		if raw, err = decodeInput(data); err != nil {
			return nil, err
		}
	}
	fields, err := parseAssignments(args)
	if err != nil {
		return nil, err
	}
	for k, v := range fields {
		raw[k] = v
	}
	return raw, nil
}

func runRender(cmd *cobra.Command, args []string) error {
	e, err := setup()
	if err != nil {
		return err
	}
	defer e.close()
	raw, err := readInput(args[1:])
	if err != nil {
		return err
	}
	catalog, err := e.catalog(cmd.Context())
	if err != nil {
		return err
	}
	exec := executor.New(catalog, nil, executor.WithLogger(e.logger))
	rendered, err := exec.Render(cmd.Context(), args[0], raw)
	if err != nil {
		return fmt.Errorf("%s", core.UserMessage(err))
	}
	out := cmd.OutOrStdout()
	if rendered.System != "" {
		fmt.Fprintf(out, "--- system ---\n%s\n", rendered.System)
	}
	fmt.Fprintf(out, "--- user ---\n%s\n", rendered.User)
	return nil
}

func runRun(cmd *cobra.Command, args []string) error {
	e, err := setup()
	if err != nil {
		return err
	}
	defer e.close()
	if err := e.cfg.Validate(); err != nil {
		return err
	}
	raw, err := readInput(args[1:])
	if err != nil {
		return err
	}
	ctx := cmd.Context()
	catalog, err := e.catalog(ctx)
	if err != nil {
		return err
	}
	p, err := app.Provider(ctx, e.cfg, e.logger, prometheus.NewRegistry(), &e.closers)
	if err != nil {
		return err
	}
	recorder, err := app.Recorder(ctx, e.cfg.Analytics, &e.closers)
	if err != nil {
		return err
	}
	exec := app.Executor(catalog, p, e.cfg, e.logger, recorder)

	var opts []executor.RunOption
	if runFlags.model != "" {
		opts = append(opts, executor.WithModel(runFlags.model))
	}
	if runFlags.temperature > 0 {
		opts = append(opts, executor.WithTemperature(runFlags.temperature))
	}
	if runFlags.maxTokens > 0 {
		opts = append(opts, executor.WithMaxTokens(runFlags.maxTokens))
	}
	if runFlags.topP > 0 {
		opts = append(opts, executor.WithTopP(runFlags.topP))
	}
	if len(runFlags.stop) > 0 {
		opts = append(opts, executor.WithStop(runFlags.stop...))
	}
	res, err := exec.Run(ctx, args[0], raw, opts...)
	if err != nil {
		e.logger.Debug("run failed", zap.Error(err))
		return fmt.Errorf("%s", core.UserMessage(err))
	}
	e.logger.Info("run complete",
		zap.String("request_id", res.RequestID),
		zap.String("model", res.Model),
		zap.Int("total_tokens", res.Usage.TotalTokens),
		zap.Float64("cost_usd", cost.DefaultTable().Estimate(res.Model, res.Usage)),
		zap.Duration("latency", res.Latency))

	enc := json.NewEncoder(cmd.OutOrStdout())
	if !runFlags.raw {
		enc.SetIndent("", "  ")
	}
	return enc.Encode(res.Output)
}
