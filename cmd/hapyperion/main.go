package main

import (
	"hapyperion"

	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"runtime/debug"
	"syscall"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
)

var (
	configFile string
	dbPath     string
	debugMode  bool
	quietMode  bool
)

func readVcsRevision() string {
	if info, ok := debug.ReadBuildInfo(); ok {
		return info.Main.Version
	}
	return "?"
}

var rootCmd = &cobra.Command{
	Use:           "hapyperion",
	Short:         "HomeKit <-> Hyperion Bridge",
	Version:       readVcsRevision(),
	SilenceUsage:  true,
	SilenceErrors: true,
	RunE: func(cmd *cobra.Command, args []string) error {
		if debugMode && quietMode {
			return fmt.Errorf("--quiet and --debug options are mutually-exclusive")
		}
		setupLogging()
		return run()
	},
}

func init() {
	rootCmd.Flags().StringVar(&configFile, "config", "/etc/hapyperion.conf", "config file (JSON or YAML)")
	rootCmd.Flags().StringVar(&dbPath, "db", "/var/lib/hapyperion/db", "db path")
	rootCmd.Flags().BoolVar(&debugMode, "debug", false, "enable debug messages")
	rootCmd.Flags().BoolVar(&quietMode, "quiet", false, "only show warnings and errors")
}

func setupLogging() {
	level := zerolog.InfoLevel
	switch {
	case debugMode:
		level = zerolog.DebugLevel
	case quietMode:
		level = zerolog.WarnLevel
	}
	zerolog.SetGlobalLevel(level)

	w := zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.RFC3339}

	// check if we are running under systemd, and if so, dont output timestamps
	if a, b := os.Getenv("INVOCATION_ID"), os.Getenv("JOURNAL_STREAM"); a != "" && b != "" {
		w.NoColor = true
		w.PartsExclude = []string{zerolog.TimestampFieldName}
	}

	log.Logger = zerolog.New(w).With().Timestamp().Logger()
}

func run() error {
	cfg, err := parseConfig(configFile)
	if err != nil {
		return fmt.Errorf("config file error: %w", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	br := hapyperion.NewBridge(ctx, dbPath)
	br.MQTTServer = cfg.MQTT.Server
	br.MQTTUsername = cfg.MQTT.Username
	br.MQTTPassword = cfg.MQTT.Password
	br.TopicPrefix = cfg.MQTT.TopicPrefix
	br.ListenAddr = cfg.ListenAddr
	br.Interfaces = cfg.Interfaces
	br.DebugMode = debugMode

	if _, err := br.SetPin(cfg.Pin); err != nil {
		return fmt.Errorf("cannot set PIN code: %w", err)
	}

	for _, acc := range cfg.Accessories {
		if err := br.AddLight(acc); err != nil {
			return fmt.Errorf("cannot add accessory %q: %w", acc.Name, err)
		}
	}

	log.Info().Msgf("hapyperion version %s", readVcsRevision())

	if cfg.MQTT.Server != "" {
		if err := br.ConnectMQTT(); err != nil {
			return fmt.Errorf("cannot connect to MQTT: %w", err)
		}
	}

	br.ProbeLights(ctx)

	log.Info().Int("lights", br.NumLights()).Msg("hapyperion configured. starting HAP server...")

	pin := br.GetPin()
	log.Info().Msgf("server PIN is %s-%s", pin[:4], pin[4:])

	err = br.StartHAP()
	if err == nil || err == http.ErrServerClosed || ctx.Err() != nil {
		log.Info().Msg("HAP server was shutdown")
		return nil
	}
	return fmt.Errorf("error starting server: %w", err)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		log.Fatal().Err(err).Msg("hapyperion failed")
	}
}
