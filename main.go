package main

import (
	"fmt"
	"net"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	webview "github.com/webview/webview_go"
	"go.uber.org/zap"

	"github.com/kartoza/soc-estimator/internal/config"
	"github.com/kartoza/soc-estimator/internal/logging"
	"github.com/kartoza/soc-estimator/internal/server"
)

var version = "dev"

var (
	// Global flags
	configPath string
	endpoint   string
	logLevel   string
	verbose    bool

	// Serve flags
	port     int
	headless bool

	cfg    *config.Config
	logger *zap.Logger
)

// rootCmd represents the base command
var rootCmd = &cobra.Command{
	Use:   "soc-estimator",
	Short: "Battery state-of-charge predictor",
	Long: `soc-estimator collects five impedance-derived battery readings and asks a
remote model for the predicted state of charge.

Run without arguments to serve the web form in a desktop window.`,
	SilenceUsage: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		var err error
		cfg, err = loadConfig(cmd)
		if err != nil {
			return err
		}

		// The terminal form owns the screen; it sets up its own logger
		if cmd.Name() == tuiCmd.Name() {
			return nil
		}
		logger, err = logging.New(cfg.LogLevel, verbose)
		if err != nil {
			return err
		}
		zap.ReplaceGlobals(logger)
		return nil
	},
	PersistentPostRun: func(cmd *cobra.Command, args []string) {
		if logger != nil {
			_ = logger.Sync()
		}
	},
	RunE: runServe,
}

// serveCmd serves the web form
var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Serve the web form, in a desktop window unless --headless",
	Args:  cobra.NoArgs,
	RunE:  runServe,
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", "", "Settings file (default: user config dir)")
	rootCmd.PersistentFlags().StringVarP(&endpoint, "endpoint", "e", "", "Prediction endpoint URL (or set SOC_ENDPOINT env)")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "", "Log level: debug, info, warn, error")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "Enable verbose logging")

	for _, c := range []*cobra.Command{rootCmd, serveCmd} {
		c.Flags().IntVarP(&port, "port", "p", 0, "HTTP server port (default from settings)")
		c.Flags().BoolVar(&headless, "headless", false, "Run in headless mode (no GUI window)")
	}

	rootCmd.AddCommand(serveCmd)
	rootCmd.AddCommand(tuiCmd)
	rootCmd.AddCommand(predictCmd)
	rootCmd.AddCommand(featuresCmd)
	rootCmd.AddCommand(versionCmd)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

// loadConfig resolves settings: file, then environment, then flags
func loadConfig(cmd *cobra.Command) (*config.Config, error) {
	path := configPath
	if path == "" {
		p, err := config.DefaultPath()
		if err != nil {
			return nil, err
		}
		path = p
	}

	c, err := config.Load(path)
	if err != nil {
		return nil, err
	}

	flags := cmd.Flags()
	if flags.Changed("endpoint") {
		c.Endpoint = endpoint
	}
	if flags.Changed("log-level") {
		c.LogLevel = logLevel
	}
	if flags.Changed("port") {
		c.Port = port
	}
	c.Version = version

	if err := c.Validate(); err != nil {
		return nil, fmt.Errorf("invalid settings in %s: %w", path, err)
	}
	return c, nil
}

func runServe(cmd *cobra.Command, args []string) error {
	// Find an available port (try up to 10 ports starting from the requested one)
	availablePort, err := findAvailablePort(cfg.Port, 10)
	if err != nil {
		return fmt.Errorf("failed to find available port: %w", err)
	}
	if availablePort != cfg.Port {
		logger.Info("Port in use, using another",
			zap.Int("requested", cfg.Port), zap.Int("port", availablePort))
	}
	cfg.Port = availablePort

	logger.Info("SOC estimator starting",
		zap.String("version", version),
		zap.Int("port", cfg.Port),
		zap.String("endpoint", cfg.Endpoint))

	srv, err := server.New(*cfg, logger)
	if err != nil {
		return fmt.Errorf("failed to create server: %w", err)
	}

	// Graceful shutdown on SIGINT/SIGTERM
	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(stop)

	// Start server in background
	errCh := make(chan error, 1)
	go func() {
		errCh <- srv.Start()
	}()

	serverURL := fmt.Sprintf("http://localhost:%d", cfg.Port)
	waitForServer(serverURL, 10*time.Second)

	if headless {
		select {
		case err := <-errCh:
			return err
		case sig := <-stop:
			logger.Info("Shutting down", zap.Stringer("signal", sig))
			return srv.Stop()
		}
	}

	// GUI mode: open embedded WebView window
	logger.Info("Opening application window")
	w := webview.New(false)
	defer w.Destroy()

	w.SetTitle("Battery SOC Predictor")
	w.SetSize(720, 900, webview.HintNone)
	w.Navigate(serverURL)

	// When the webview window closes, shut down the server
	go func() {
		select {
		case err := <-errCh:
			if err != nil {
				logger.Error("Server error", zap.Error(err))
			}
		case sig := <-stop:
			logger.Info("Shutting down", zap.Stringer("signal", sig))
		}
		w.Dispatch(w.Terminate)
	}()

	// Run blocks until the window is closed
	w.Run()

	logger.Info("Window closed, shutting down server")
	return srv.Stop()
}

// waitForServer polls until the server is accepting connections
func waitForServer(url string, timeout time.Duration) bool {
	addr := url[len("http://"):]
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		conn, err := net.DialTimeout("tcp", addr, 500*time.Millisecond)
		if err == nil {
			conn.Close()
			return true
		}
		time.Sleep(100 * time.Millisecond)
	}
	zap.L().Warn("Server may not be ready", zap.String("url", url))
	return false
}

// findAvailablePort finds an available port, starting from the given port.
// If the port is in use, it tries subsequent ports up to maxAttempts times.
func findAvailablePort(startPort int, maxAttempts int) (int, error) {
	for i := 0; i < maxAttempts; i++ {
		port := startPort + i
		listener, err := net.Listen("tcp", fmt.Sprintf(":%d", port))
		if err == nil {
			listener.Close()
			return port, nil
		}
	}
	return 0, fmt.Errorf("no available port found after %d attempts starting from %d", maxAttempts, startPort)
}
