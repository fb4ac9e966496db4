package cmd

import (
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"

	"github.com/MeKo-Tech/cue/internal/config"
	"github.com/MeKo-Tech/cue/internal/engine"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

var (
	cfgFile string
	logger  *slog.Logger
)

var rootCmd = &cobra.Command{
	Use:   "cue",
	Short: "Turn sentiment scores into abstract images",
	Long: `Cue renders deterministic abstract images from four sentiment scores
(positiveness, energy, complexity, conflictness).

Scores come from an external sentiment oracle, either as a JSON object or as
the oracle's raw reply. The same scores, seed and algorithm always produce the
same image.`,
	SilenceUsage: true,
}

func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func init() {
	cobra.OnInitialize(initConfig)

	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default is ./config.yaml)")
	rootCmd.PersistentFlags().String("output-dir", "./output", "Base directory for session folders")
	rootCmd.PersistentFlags().Bool("verbose", false, "Enable verbose logging")
	rootCmd.PersistentFlags().String("log-format", "text", "Log format: text or json")

	for _, key := range []string{"output-dir", "verbose"} {
		if err := viper.BindPFlag(key, rootCmd.PersistentFlags().Lookup(key)); err != nil {
			panic(fmt.Sprintf("failed to bind flag: %v", err))
		}
	}
	if err := viper.BindPFlag("log.format", rootCmd.PersistentFlags().Lookup("log-format")); err != nil {
		panic(fmt.Sprintf("failed to bind flag: %v", err))
	}
}

func initConfig() {
	if cfgFile != "" {
		viper.SetConfigFile(cfgFile)
	} else {
		viper.AddConfigPath(".")
		viper.SetConfigType("yaml")
		viper.SetConfigName("config")
	}

	viper.SetEnvPrefix("CUE")
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_", "-", "_"))
	viper.AutomaticEnv()

	if err := viper.ReadInConfig(); err == nil {
		if viper.GetBool("verbose") {
			fmt.Fprintln(os.Stderr, "Using config file:", viper.ConfigFileUsed())
		}
	}
}

// initLogging installs the process logger from the verbose and log.format settings.
func initLogging() {
	logger = newLogger(os.Stderr, viper.GetString("log.format"), viper.GetBool("verbose"))
	slog.SetDefault(logger)
}

func newLogger(w io.Writer, format string, verbose bool) *slog.Logger {
	level := slog.LevelInfo
	if verbose {
		level = slog.LevelDebug
	}
	opts := &slog.HandlerOptions{Level: level}

	if strings.EqualFold(format, "json") {
		return slog.New(slog.NewJSONHandler(w, opts))
	}
	return slog.New(slog.NewTextHandler(w, opts))
}

// loadTuning decodes the tuning section over the defaults and validates it.
func loadTuning() (config.Tuning, error) {
	t := config.Default()
	if err := viper.UnmarshalKey("tuning", &t); err != nil {
		return config.Tuning{}, fmt.Errorf("failed to decode tuning: %w", err)
	}
	if err := t.Validate(); err != nil {
		return config.Tuning{}, err
	}
	return t, nil
}

func newEngine(workers int) (*engine.Engine, error) {
	if logger == nil {
		initLogging()
	}
	t, err := loadTuning()
	if err != nil {
		return nil, err
	}
	return engine.New(t, engine.Options{Logger: logger, Workers: workers})
}
