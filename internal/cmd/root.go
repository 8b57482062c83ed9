// Package cmd provides the CLI commands for chatline.
package cmd

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/inercia/chatline/internal/appdir"
	"github.com/inercia/chatline/internal/config"
	"github.com/inercia/chatline/internal/logging"
	"github.com/inercia/chatline/internal/metrics"
	"github.com/inercia/chatline/internal/sliceutil"
)

var (
	// Global flags
	configPath    string
	debug         bool
	logLevel      string
	logFile       string
	logComponents string
	apiURL        string
	wsURL         string
	tokenFlag     string

	// Loaded configuration
	cfg *config.Config

	metricsServer *http.Server
)

// rootCmd represents the base command when called without any subcommands
var rootCmd = &cobra.Command{
	Use:   "chatline",
	Short: "chatline - a terminal client for the chat assistant",
	Long: `chatline talks to the chat assistant backend over one shared
WebSocket and its REST API.

It lets you browse your sessions, chat interactively, download
generated files and export transcripts.`,
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		if cmd.Name() == "help" || cmd.Name() == "completion" {
			return nil
		}

		if err := appdir.EnsureDir(); err != nil {
			return fmt.Errorf("failed to create chatline directory: %w", err)
		}

		path := configPath
		if path == "" {
			var err error
			if path, err = config.DefaultPath(); err != nil {
				return err
			}
		}
		loaded, err := config.Load(path)
		if err != nil {
			return fmt.Errorf("failed to load configuration: %w", err)
		}
		cfg = loaded
		applyFlagOverrides(cfg)

		if err := initLogging(cfg); err != nil {
			return err
		}
		logging.Get().Debug("Configuration loaded", "path", path, "api_url", cfg.Server.APIURL)

		return startMetrics(cfg.Metrics.Addr)
	},
	PersistentPostRunE: func(cmd *cobra.Command, args []string) error {
		stopMetrics()
		return logging.Close()
	},
}

// Execute adds all child commands to the root command and sets flags appropriately.
func Execute() error {
	return rootCmd.Execute()
}

func init() {
	rootCmd.PersistentFlags().StringVar(&configPath, "config", "", "Configuration file path (default: $CHATLINE_CONFIG or ~/.chatline/config.yaml)")
	rootCmd.PersistentFlags().BoolVar(&debug, "debug", false, "Enable debug logging (shorthand for --log-level=debug)")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "", "Log level: debug, info, warn, error (default: from config)")
	rootCmd.PersistentFlags().StringVarP(&logFile, "logfile", "l", "", "Log file path (logs are also written to console)")
	rootCmd.PersistentFlags().StringVar(&logComponents, "log-components", "", "Comma-separated list of components to log (e.g., 'socket,chat'). Empty means all components.")
	rootCmd.PersistentFlags().StringVar(&apiURL, "api-url", "", "REST API origin (overrides server.api_url)")
	rootCmd.PersistentFlags().StringVar(&wsURL, "ws-url", "", "WebSocket origin (overrides server.ws_url)")
	rootCmd.PersistentFlags().StringVar(&tokenFlag, "token", "", "Access token (overrides auth.token)")
}

// applyFlagOverrides layers command-line flags over the loaded config.
// Priority: flag > environment > file > defaults.
func applyFlagOverrides(c *config.Config) {
	if apiURL != "" {
		c.Server.APIURL = apiURL
	}
	if wsURL != "" {
		c.Server.WSURL = wsURL
	}
	if tokenFlag != "" {
		c.Auth.Token = tokenFlag
	}
	if logLevel != "" {
		c.Log.Level = logLevel
	} else if debug {
		c.Log.Level = "debug"
	}
	if logFile != "" {
		c.Log.File = logFile
	}
	if components := splitList(logComponents); len(components) > 0 {
		c.Log.Components = components
	}
}

func splitList(s string) []string {
	return sliceutil.DistinctStrings(strings.Split(s, ","))
}

// logConfig translates the log section into a logging config. Bare file
// names are placed in the logs directory.
func logConfig(c *config.Config) (logging.Config, error) {
	lc := logging.Config{
		Level:      c.Log.Level,
		FileLevel:  c.Log.FileLevel,
		JSON:       c.Log.JSON,
		Components: c.Log.Components,
	}
	if c.Log.File != "" {
		path := c.Log.File
		if !filepath.IsAbs(path) && filepath.Base(path) == path {
			dir, err := appdir.LogsDir()
			if err != nil {
				return lc, err
			}
			path = filepath.Join(dir, path)
		}
		lc.FileLog = &logging.FileLogConfig{Path: path, MaxSizeMB: 10, MaxBackups: 3}
	}
	return lc, nil
}

func initLogging(c *config.Config) error {
	lc, err := logConfig(c)
	if err != nil {
		return err
	}
	if err := logging.Initialize(lc); err != nil {
		return fmt.Errorf("failed to initialize logging: %w", err)
	}
	return nil
}

func startMetrics(addr string) error {
	if addr == "" {
		return nil
	}
	mux := http.NewServeMux()
	mux.Handle("/metrics", metrics.Handler())
	metricsServer = &http.Server{Addr: addr, Handler: mux, ReadHeaderTimeout: 5 * time.Second}

	go func() {
		if err := metricsServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logging.Get().Error("Metrics server failed", "addr", addr, "error", err)
		}
	}()
	logging.Get().Info("Metrics server listening", "addr", addr)
	return nil
}

func stopMetrics() {
	if metricsServer == nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	_ = metricsServer.Shutdown(ctx)
	metricsServer = nil
}
