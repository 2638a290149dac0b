package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/glamour"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/kartoza/soc-estimator/internal/form"
	"github.com/kartoza/soc-estimator/internal/logging"
	"github.com/kartoza/soc-estimator/internal/models"
	"github.com/kartoza/soc-estimator/internal/predictor"
	"github.com/kartoza/soc-estimator/internal/profile"
	"github.com/kartoza/soc-estimator/internal/tui"
)

var (
	logFile    string
	theme      string
	jsonOutput bool
	plain      bool
)

// tuiCmd runs the form in the terminal
var tuiCmd = &cobra.Command{
	Use:   "tui",
	Short: "Fill in the form in the terminal",
	Args:  cobra.NoArgs,
	RunE:  runTUI,
}

// predictCmd submits one set of readings
var predictCmd = &cobra.Command{
	Use:   "predict <resistance> <capacitance> <magnitude> <phase> <voltage>",
	Short: "Request a single prediction",
	Long: `Submits five readings in the order Resistance (Ω), Capacitance (F),
Magnitude (|Z|), Phase (°), Terminal Voltage (V).

Unparseable readings are sent as null unless the input policy is strict.`,
	Example: `  soc-estimator predict -- 0.002 -0.001 0.003 45.0 3.1`,
	Args:    cobra.ExactArgs(models.FieldCount),
	RunE:    runPredict,
}

// featuresCmd prints the expected feature ranges
var featuresCmd = &cobra.Command{
	Use:   "features",
	Short: "Show the training range of each reading",
	Args:  cobra.NoArgs,
	RunE:  runFeatures,
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Show version",
	Args:  cobra.NoArgs,
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Fprintf(cmd.OutOrStdout(), "soc-estimator v%s\n", version)
	},
}

func init() {
	tuiCmd.Flags().StringVar(&logFile, "log-file", "", "Write logs to this file (default: discard)")
	tuiCmd.Flags().StringVar(&theme, "theme", "", "Markdown style: dark, light, notty (default: detect)")
	predictCmd.Flags().BoolVar(&jsonOutput, "json", false, "Print the result as JSON")
	featuresCmd.Flags().BoolVar(&plain, "plain", false, "Print raw markdown")
}

// loadProfile reads the configured profile, falling back to the built-in one
func loadProfile() *profile.Profile {
	p, err := profile.Load(cfg.ProfilePath)
	if err != nil {
		zap.L().Warn("Profile not available, using built-in profile",
			zap.String("path", cfg.ProfilePath), zap.Error(err))
		return profile.Default()
	}
	return p
}

func newForm() (*form.PredictorForm, error) {
	opts, err := cfg.FormOptions()
	if err != nil {
		return nil, err
	}
	client := predictor.New(cfg.Endpoint, predictor.WithTimeout(cfg.GetTimeout()))
	return form.New(client, opts), nil
}

func runTUI(cmd *cobra.Command, args []string) error {
	logger = zap.NewNop()
	if logFile != "" {
		l, err := logging.New(cfg.LogLevel, verbose, logFile)
		if err != nil {
			return err
		}
		logger = l
	}
	zap.ReplaceGlobals(logger)

	f, err := newForm()
	if err != nil {
		return err
	}

	ctx, cancel := context.WithCancel(cmd.Context())
	defer cancel()

	store := profile.NewStore(loadProfile())
	if cfg.ProfilePath != "" {
		w, err := profile.NewWatcher(cfg.ProfilePath, store, logger)
		if err != nil {
			logger.Warn("Profile watcher not available", zap.Error(err))
		} else if err := w.Start(ctx); err != nil {
			logger.Warn("Profile watcher failed to start", zap.Error(err))
		} else {
			defer w.Stop()
		}
	}

	model := tui.New(ctx, f, store, tui.Options{Theme: theme, Logger: logger})
	prog := tea.NewProgram(model, tea.WithAltScreen(), tea.WithContext(ctx))
	store.Subscribe(func(*profile.Profile) { prog.Send(tui.ProfileChangedMsg{}) })

	if _, err := prog.Run(); err != nil && !errors.Is(err, tea.ErrProgramKilled) {
		return fmt.Errorf("terminal form failed: %w", err)
	}
	return nil
}

// predictResult is the --json output of the predict command
type predictResult struct {
	Values            []models.Reading `json:"values"`
	PredictedCapacity float64          `json:"predicted_capacity"`
	Display           string           `json:"display"`
}

func runPredict(cmd *cobra.Command, args []string) error {
	f, err := newForm()
	if err != nil {
		return err
	}
	for i, a := range args {
		if err := f.Update(i, a); err != nil {
			return err
		}
	}

	if err := f.Submit(cmd.Context()); err != nil {
		if msg, ok := f.Err(); ok {
			fmt.Fprintln(cmd.ErrOrStderr(), msg)
		}
		return err
	}

	v, _ := f.Result()
	p := loadProfile()
	if jsonOutput {
		values, _ := form.ParseValues(f.Values())
		enc := json.NewEncoder(cmd.OutOrStdout())
		enc.SetIndent("", "  ")
		return enc.Encode(predictResult{
			Values:            models.NewPredictRequest(values).ImpedanceValues,
			PredictedCapacity: v,
			Display:           p.FormatResult(v),
		})
	}
	fmt.Fprintln(cmd.OutOrStdout(), p.ResultLine(v))
	return nil
}

func runFeatures(cmd *cobra.Command, args []string) error {
	md := loadProfile().Markdown()
	if plain {
		_, err := fmt.Fprint(cmd.OutOrStdout(), md)
		return err
	}

	r, err := glamour.NewTermRenderer(glamour.WithAutoStyle(), glamour.WithWordWrap(80))
	if err != nil {
		return fmt.Errorf("failed to create markdown renderer: %w", err)
	}
	out, err := r.Render(md)
	if err != nil {
		return fmt.Errorf("failed to render features: %w", err)
	}
	_, err = fmt.Fprint(cmd.OutOrStdout(), out)
	return err
}
