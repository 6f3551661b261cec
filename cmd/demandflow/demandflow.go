package main

import (
	"context"
	"errors"
	"net"
	"net/http"
	"os"
	"strconv"
	"time"

	"github.com/NethermindEth/demandflow/metrics"
	"github.com/NethermindEth/demandflow/pipeline"
	"github.com/NethermindEth/demandflow/utils"
	"github.com/NethermindEth/demandflow/validator"
	pkgerrors "github.com/pkg/errors"
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"
)

var Version string

const (
	configF      = "config"
	logLevelF    = "log-level"
	colourF      = "colour"
	metricsF     = "metrics"
	metricsHostF = "metrics-host"
	metricsPortF = "metrics-port"
	outputF      = "output"

	defaultConfig      = ""
	defaultLogLevel    = utils.INFO
	defaultColour      = true
	defaultMetrics     = false
	defaultMetricsHost = "localhost"
	defaultMetricsPort = uint16(9090)
	defaultOutput      = tableOutput

	configFlagUsage   = "The yaml configuration file."
	logLevelFlagUsage = "Options: debug, info, warn, error."
	colourUsage       = "Use `--colour=false` command to disable colourized outputs (ANSI Escape Codes)."
	metricsUsage      = "Enables the prometheus metrics endpoint on the default port."
	metricsHostUsage  = "The interface on which the prometheus endpoint will listen for requests."
	metricsPortUsage  = "The port on which the prometheus endpoint will listen for requests."
	outputUsage       = "Report format. Options: table, yaml."
)

type config struct {
	LogLevel    utils.LogLevel `mapstructure:"log-level"`
	Colour      bool           `mapstructure:"colour"`
	Metrics     bool           `mapstructure:"metrics"`
	MetricsHost string         `mapstructure:"metrics-host"`
	MetricsPort uint16         `mapstructure:"metrics-port"`
	Output      string         `mapstructure:"output" validate:"oneof=table yaml"`

	pipeline.Config `mapstructure:",squash"`
}

// env carries what every subcommand needs once configuration is loaded.
type env struct {
	cfg     *config
	log     *utils.ZapLogger
	factory metrics.Factory
}

func NewCmd(quit <-chan os.Signal) *cobra.Command {
	var cfgFile string
	defaultLevel := defaultLogLevel

	rootCmd := &cobra.Command{
		Use:     "demandflow [command]",
		Short:   "Demand-driven stream pipelines on a shared clock.",
		Version: Version,
		PersistentPreRun: func(cmd *cobra.Command, _ []string) {
			ctx, cancel := context.WithCancel(cmd.Context())
			go func() {
				select {
				case <-quit:
					cancel()
				case <-ctx.Done():
				}
			}()
			cmd.SetContext(ctx)
		},
		SilenceUsage: true,
	}

	flags := rootCmd.PersistentFlags()
	flags.StringVar(&cfgFile, configF, defaultConfig, configFlagUsage)
	flags.Var(&defaultLevel, logLevelF, logLevelFlagUsage)
	flags.Bool(colourF, defaultColour, colourUsage)
	flags.Bool(metricsF, defaultMetrics, metricsUsage)
	flags.String(metricsHostF, defaultMetricsHost, metricsHostUsage)
	flags.Uint16(metricsPortF, defaultMetricsPort, metricsPortUsage)
	flags.String(outputF, defaultOutput, outputUsage)

	load := func(cmd *cobra.Command, keys map[string]string) (*env, func(), error) {
		return loadEnv(cmd, cfgFile, keys)
	}
	rootCmd.AddCommand(newTickerCmd(load), newFetchCmd(load))
	return rootCmd
}

type loader func(cmd *cobra.Command, keys map[string]string) (*env, func(), error)

// loadEnv merges the config file, if any, with the command's flags. keys maps
// a local flag name to its configuration key; persistent flags keep their name.
func loadEnv(cmd *cobra.Command, cfgFile string, keys map[string]string) (*env, func(), error) {
	v := viper.New()
	if cfgFile != "" {
		v.SetConfigType("yaml")
		v.SetConfigFile(cfgFile)
		if err := v.ReadInConfig(); err != nil {
			return nil, nil, pkgerrors.Wrap(err, "read config")
		}
	}

	var bindErr error
	cmd.Flags().VisitAll(func(f *pflag.Flag) {
		key, ok := keys[f.Name]
		if !ok {
			key = f.Name
		}
		bindErr = errors.Join(bindErr, v.BindPFlag(key, f))
	})
	if bindErr != nil {
		return nil, nil, pkgerrors.Wrap(bindErr, "bind flags")
	}

	cfg := &config{Config: pipeline.DefaultConfig()}
	if err := v.Unmarshal(cfg, viper.DecodeHook(pipeline.DecodeHook())); err != nil {
		return nil, nil, pkgerrors.Wrap(err, "decode config")
	}
	if err := validator.Validator().Struct(cfg); err != nil {
		return nil, nil, pkgerrors.Wrap(err, "invalid config")
	}

	log, err := utils.NewZapLogger(cfg.LogLevel, cfg.Colour)
	if err != nil {
		return nil, nil, pkgerrors.Wrap(err, "create logger")
	}

	e := &env{cfg: cfg, log: log, factory: metrics.VoidFactory()}
	stop := func() {
		_ = log.Sync()
	}
	if cfg.Metrics {
		registry := metrics.PrometheusRegistry()
		e.factory = metrics.PrometheusFactory(registry)
		srv := &http.Server{
			Addr:              net.JoinHostPort(cfg.MetricsHost, strconv.FormatUint(uint64(cfg.MetricsPort), 10)),
			Handler:           metrics.PrometheusHandler(registry),
			ReadHeaderTimeout: time.Second,
		}
		go func() {
			log.Infow("Metrics server listening", "addr", srv.Addr)
			if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				log.Errorw("Metrics server failed", "err", err)
			}
		}()
		stop = func() {
			ctx, cancel := context.WithTimeout(context.Background(), time.Second)
			defer cancel()
			if err := srv.Shutdown(ctx); err != nil {
				log.Warnw("Metrics server shutdown", "err", err)
			}
			_ = log.Sync()
		}
	}
	return e, stop, nil
}
