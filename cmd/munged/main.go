// munged is the MUNGE daemon: it listens on a local socket, encodes
// credentials for authenticated local clients, and validates credentials
// presented for decoding.
package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/yuyake44/munge/internal/config"
	"github.com/yuyake44/munge/internal/daemon"
	"github.com/yuyake44/munge/internal/log"
)

var version = "dev"

func main() {
	var (
		configPath string
		socketPath string
		keyFile    string
		numThreads int
		foreground bool
		verbose    bool
	)

	rootCmd := &cobra.Command{
		Use:     "munged",
		Short:   "MUNGE credential daemon",
		Long:    "munged issues and validates credentials binding the UID/GID\nof local processes, shared across hosts holding the same key.",
		Version: version,
		Args:    cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(configPath)
			if err != nil {
				return err
			}
			if socketPath != "" {
				cfg.Socket.Path = socketPath
			}
			if keyFile != "" {
				cfg.Key.File = keyFile
			}
			if numThreads > 0 {
				cfg.Runtime.NumThreads = numThreads
			}
			if foreground {
				cfg.Runtime.Foreground = true
			}

			level := log.LevelInfo
			if verbose {
				level = log.LevelDebug
			}
			if cfg.Runtime.Foreground {
				log.SetLogger(log.NewSimpleLogger(os.Stderr, level))
			} else if err := log.EnableFileLogging(cfg.Runtime.Logfile, level); err != nil {
				return fmt.Errorf("open logfile: %w", err)
			}

			d, err := daemon.New(cfg)
			if err != nil {
				return err
			}

			go d.WaitForSignal()

			log.Info("munged starting",
				log.String("socket", cfg.Socket.Path),
				log.Int("threads", cfg.Runtime.NumThreads))
			return d.Start()
		},
	}

	flags := rootCmd.Flags()
	flags.StringVar(&configPath, "config", "", "path to munged.yml (defaults apply if unset)")
	flags.StringVarP(&socketPath, "socket", "S", "", "socket path to listen on")
	flags.StringVar(&keyFile, "key-file", "", "path to the shared secret key")
	flags.IntVar(&numThreads, "num-threads", 0, "number of request worker threads")
	flags.BoolVarP(&foreground, "foreground", "F", false, "log to stderr instead of the logfile")
	flags.BoolVarP(&verbose, "verbose", "v", false, "enable debug logging")

	rootCmd.SilenceUsage = true
	rootCmd.CompletionOptions.DisableDefaultCmd = true

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "munged: %v\n", err)
		os.Exit(1)
	}
}

func loadConfig(path string) (*config.Config, error) {
	if path == "" {
		cfg := config.Default()
		return &cfg, nil
	}
	return config.Load(path)
}
