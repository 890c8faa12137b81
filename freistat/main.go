package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/itohio/freistat/pkg/config"
)

var (
	configFile string
	verbose    bool
	quiet      bool
	mockFlag   bool
	portFlag   string
	listenFlag string
	average    int

	logger *zap.Logger
	cfg    *config.Config
)

var rootCmd = &cobra.Command{
	Use:   "freistat",
	Short: "Drive a FreiStat potentiostat",
	Long: `freistat runs electrochemical methods on a FreiStat potentiostat over
USB serial or WLAN and stores the results as CSV files or in a SQLite archive.

Experiments are described in the configuration file. Use --mock to run
against the built-in firmware emulator.`,
	SilenceUsage: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		var err error
		logger, err = newLogger(verbose)
		if err != nil {
			return fmt.Errorf("failed to initialize logger: %w", err)
		}
		cfg, err = loadConfig()
		return err
	},
	PersistentPostRun: func(cmd *cobra.Command, args []string) {
		if logger != nil {
			_ = logger.Sync()
		}
	},
}

func newLogger(verbose bool) (*zap.Logger, error) {
	if verbose {
		return zap.NewDevelopment()
	}
	return zap.NewProduction()
}

// loadConfig reads the configuration file, applies the environment and then
// the command line overrides.
func loadConfig() (*config.Config, error) {
	c, err := config.Load(configFile)
	if err != nil {
		return nil, err
	}
	if err := c.LoadEnv(); err != nil {
		return nil, err
	}

	if mockFlag {
		c.Transport.Mode = config.ModeMock
	}
	if portFlag != "" {
		c.Transport.Mode = config.ModeSerial
		c.Transport.Serial.Port = portFlag
	}
	if listenFlag != "" {
		c.Server.Listen = listenFlag
	}
	return c, nil
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&configFile, "config", "c", "config.yaml", "Configuration file path")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "Enable verbose logging")
	rootCmd.PersistentFlags().BoolVarP(&quiet, "quiet", "q", false, "Disable the progress spinner")
	rootCmd.PersistentFlags().BoolVar(&mockFlag, "mock", false, "Use the firmware emulator instead of a device")
	rootCmd.PersistentFlags().StringVarP(&portFlag, "port", "p", "", "Serial port override (e.g., COM3 or /dev/ttyACM0)")
	rootCmd.PersistentFlags().StringVar(&listenFlag, "listen", "", "Serve run status over HTTP on this address")
	rootCmd.PersistentFlags().IntVar(&average, "average", 1, "Average this many samples in the progress display")

	rootCmd.AddCommand(runCmd)
	rootCmd.AddCommand(sequenceCmd)
	rootCmd.AddCommand(serveCmd)
	rootCmd.AddCommand(portsCmd)
	rootCmd.AddCommand(configCmd)
	rootCmd.AddCommand(recoverCmd)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
