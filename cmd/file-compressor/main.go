package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"file-compressor-go/internal/config"
	"file-compressor-go/internal/engine"
	"file-compressor-go/internal/logger"
	"file-compressor-go/internal/monitor"
	"file-compressor-go/internal/results"
	"file-compressor-go/internal/scheduler"
	"file-compressor-go/internal/statistics"
	"file-compressor-go/internal/web"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

var (
	cfgFile    string
	level      int
	threads    int
	keepSource bool
	verbose    bool
	quiet      bool
	port       int
)

// rootCmd is the base command for the CLI.
var rootCmd = &cobra.Command{
	Use:   "file-compressor [path]",
	Short: "Compress files and folders with parallel multi-threaded gzip",
	Long: `FileCompressor compresses files and directory trees by driving pigz,
a parallel gzip implementation, as an external engine.

Features:
- Per-file compression level tuning by content type
- Load-aware thread allocation across concurrent files
- Sequential fallback for folders of large files under memory pressure
- Integrity verification of every compressed output
- Per-file failure isolation with inline status reporting
- Structured logging of resource usage and scheduling decisions`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return runOperation(args[0], engine.OpCompress)
	},
}

// decompressCmd decompresses a file or folder of compressed files.
var decompressCmd = &cobra.Command{
	Use:   "decompress <path>",
	Short: "Decompress a .gz file or every .gz file under a directory",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return runOperation(args[0], engine.OpDecompress)
	},
}

// resourcesCmd prints a one-shot resource usage snapshot.
var resourcesCmd = &cobra.Command{
	Use:   "resources",
	Short: "Sample and print current CPU and disk IO usage",
	RunE: func(cmd *cobra.Command, args []string) error {
		return runResources()
	},
}

// serveCmd starts the web interface server.
var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the compression web service",
	Long: `Starts an HTTP server exposing the compression service:
- Path-based compress/decompress endpoints
- Multipart file upload processing
- Live resource usage and run statistics
- A tar.gz bundle download of processed files

Access the API at http://localhost:<port> (default: 8080)`,
	RunE: func(cmd *cobra.Command, args []string) error {
		return runServe()
	},
}

func init() {
	cobra.OnInitialize(initConfig)

	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default is ./config.yaml)")
	rootCmd.PersistentFlags().BoolVar(&verbose, "verbose", false, "enable verbose logging")
	rootCmd.PersistentFlags().BoolVar(&quiet, "quiet", false, "suppress non-error output")

	rootCmd.Flags().IntVar(&level, "level", 0, "base compression level 1-9 (default from config)")
	rootCmd.Flags().IntVar(&threads, "threads", 0, "total processing units (default: all available)")
	rootCmd.Flags().BoolVar(&keepSource, "keep-source", false, "keep source files after compression")

	decompressCmd.Flags().IntVar(&threads, "threads", 0, "total processing units (default: all available)")

	serveCmd.Flags().IntVar(&port, "port", 8080, "port to run web server on")

	rootCmd.AddCommand(decompressCmd)
	rootCmd.AddCommand(resourcesCmd)
	rootCmd.AddCommand(serveCmd)
}

// initConfig loads configuration file and environment variables.
func initConfig() {
	if cfgFile != "" {
		viper.SetConfigFile(cfgFile)
	} else {
		viper.SetConfigName("config")
		viper.SetConfigType("yaml")
		viper.AddConfigPath(".")
		viper.AddConfigPath("$HOME/.file-compressor")
		viper.AddConfigPath("/etc/file-compressor")
	}

	viper.AutomaticEnv()

	if err := viper.ReadInConfig(); err == nil {
		fmt.Fprintf(os.Stderr, "Using config file: %s\n", viper.ConfigFileUsed())
	}
}

// runOperation compresses or decompresses the given path.
func runOperation(path string, op engine.Operation) error {
	cfg, err := loadConfig()
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}

	baseLevel := cfg.Compression.Level
	if level != 0 {
		if !config.ValidLevel(level) {
			return fmt.Errorf("compression level must be between 1 and 9, got %d", level)
		}
		baseLevel = level
	}

	info, err := os.Stat(path)
	if err != nil {
		return fmt.Errorf("input path does not exist: %s", path)
	}

	log := setupLogger(cfg)
	mon := monitor.NewSystemMonitor(log)
	stats := statistics.NewStatistics()

	engOpts := []engine.Option{
		engine.WithSampler(monitor.NewInstantMonitor(log)),
	}
	if cfg.Compression.Timeout > 0 {
		engOpts = append(engOpts, engine.WithTimeout(cfg.Compression.Timeout))
	}
	if keepSource || cfg.Compression.KeepSource {
		engOpts = append(engOpts, engine.WithKeepSource())
	}
	eng := engine.New(&engine.PigzRunner{Binary: cfg.Compression.Binary}, log, engOpts...)

	totalUnits := cfg.Performance.TotalUnits
	if threads > 0 {
		totalUnits = threads
	}

	sched := scheduler.New(eng, mon, log, stats)
	opts := scheduler.Options{BaseLevel: baseLevel, TotalUnits: totalUnits, Op: op}

	var outcomes []engine.Outcome
	if info.IsDir() {
		outcomes, err = sched.Run(context.Background(), path, opts)
	} else {
		var outcome engine.Outcome
		outcome, err = sched.RunFile(context.Background(), path, opts)
		outcomes = []engine.Outcome{outcome}
	}
	if err != nil {
		return fmt.Errorf("%s failed: %w", op, err)
	}

	stats.Finalize()

	if !quiet {
		for _, res := range results.Merge(outcomes) {
			fmt.Printf("%s  %d -> %d  %s\n", res.FilePath, res.OriginalSize, res.CompressedSize, res.Status)
		}
		fmt.Println("\n" + stats.GetSummary())
	}

	return nil
}

// runResources samples resource usage once and prints it.
func runResources() error {
	cfg, err := loadConfig()
	if err != nil {
		cfg = config.DefaultConfig()
	}

	log := setupLogger(cfg)
	mon := monitor.NewSystemMonitor(log)
	snap := mon.Sample()

	fmt.Printf("CPU Usage: %.1f%%\n", snap.CPUPercent)
	fmt.Printf("Disk Read: %d bytes, Disk Write: %d bytes\n", snap.DiskReadBytes, snap.DiskWriteBytes)
	fmt.Printf("Available Memory: %d bytes\n", mon.AvailableMemory())
	return nil
}

// runServe starts the web server and handles graceful shutdown.
func runServe() error {
	cfg, err := config.LoadConfig(cfgFile)
	if err != nil {
		fmt.Fprintf(os.Stderr, "CONFIG LOAD ERROR: %v\n", err)
		cfg = config.DefaultConfig()
	}

	log := setupLogger(cfg)
	mon := monitor.NewSystemMonitor(log)
	server := web.NewServer(cfg, log, mon)

	if port != 0 {
		cfg.Web.Port = port
	}

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)

	go func() {
		if err := server.Start(cfg.Web.Port); err != nil && err != http.ErrServerClosed {
			log.Fatalf("Server failed to start: %v", err)
		}
	}()

	fmt.Printf("FileCompressor service started on http://localhost:%d\n", cfg.Web.Port)
	fmt.Printf("Press Ctrl+C to stop the server\n\n")

	<-sigChan
	fmt.Println("\nShutting down server...")

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := server.Stop(ctx); err != nil {
		return fmt.Errorf("server shutdown failed: %w", err)
	}

	fmt.Println("Server stopped gracefully")
	return nil
}

// loadConfig loads configuration for CLI commands.
func loadConfig() (*config.Config, error) {
	return config.LoadConfig(cfgFile)
}

// setupLogger configures and returns a logger.
func setupLogger(cfg *config.Config) *logrus.Logger {
	loggerCfg := logger.LoggerConfig{
		Level:      cfg.Logging.Level,
		FilePath:   cfg.Logging.FilePath,
		MaxSize:    cfg.Logging.MaxSize,
		MaxBackups: cfg.Logging.MaxBackups,
		MaxAge:     cfg.Logging.MaxAge,
		Compress:   cfg.Logging.Compress,
		Console:    !quiet,
	}

	if verbose {
		loggerCfg.Level = "debug"
	}
	if quiet {
		loggerCfg.Level = "error"
	}

	log, err := logger.NewLogger(loggerCfg)
	if err != nil {
		log = logrus.New()
		log.SetLevel(logrus.InfoLevel)
	}

	return log
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}
