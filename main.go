package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"os/signal"
	"path"
	"strings"
	"syscall"

	"github.com/tr4cks/musicrelay/bridge"
	"github.com/tr4cks/musicrelay/relay"
	"github.com/tr4cks/musicrelay/sources"
	mpdsource "github.com/tr4cks/musicrelay/sources/mpd"
	"github.com/tr4cks/musicrelay/sources/socketio"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"
	"github.com/spf13/cobra"
)

func init() {
	rootCmd.PersistentFlags().StringVar(&configFilePath, "config", path.Join("/etc", fmt.Sprintf("%s.d", appName), "config.yaml"), "YAML configuration file")
}

const appName = "musicrelay"

var (
	configFilePath string
	rootCmd        = &cobra.Command{
		Use:     appName,
		Short:   "Switches a networked relay on and off with music playback",
		Version: "1.0.0",
		Args:    cobra.NoArgs,
		Run:     run,
		CompletionOptions: cobra.CompletionOptions{
			DisableDefaultCmd: true,
		},
	}
)

func createClient(config *Config) *relay.Client {
	client, err := relay.NewClient(config.IP, int(config.Port), config.Timeout)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error creating relay client: %s\n", err)
		os.Exit(1)
	}
	return client
}

func createSource(config *Config, logger zerolog.Logger) sources.Source {
	logger = logger.With().Str("scope", "source").Str("type", config.Source.Type).Logger()
	internalSources := map[string]sources.Source{
		"socketio": socketio.New(logger),
		"mpd":      mpdsource.New(logger),
		"webhook":  sources.NewWebhook(),
	}

	source, ok := internalSources[config.Source.Type]
	if !ok {
		sourceNames := make([]string, 0, len(internalSources))
		for sourceName := range internalSources {
			sourceNames = append(sourceNames, sourceName)
		}
		fmt.Fprintf(os.Stderr, "Can't find the %q source among the internal sources (available sources: %s)\n", config.Source.Type, strings.Join(sourceNames, ", "))
		os.Exit(1)
	}

	endpoint := sources.Endpoint{Host: config.Source.Host, Port: int(config.Source.Port)}
	err := source.Init(endpoint, config.Source.Settings)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error during source initialization: %s\n", err)
		os.Exit(1)
	}

	return source
}

func createLogger(config *Config) zerolog.Logger {
	logger, err := newLogger(config.Log)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error opening log output %q: %s\n", config.Log.Output, err)
		os.Exit(1)
	}
	return logger
}

func run(cmd *cobra.Command, args []string) {
	config := parseConfigFile(configFilePath)
	logger := createLogger(config)
	client := createClient(config)
	source := createSource(config, logger)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	controller := bridge.NewController(client, bridge.Config{
		OnInterval:    config.Timers.OnInterval,
		OffDelay:      config.Timers.OffDelay,
		StateInterval: config.Timers.StateInterval,
	}, logger.With().Str("scope", "bridge").Logger())

	b := bridge.Start(ctx, controller, source, config.Timers.ReconnectDelay, logger.With().Str("scope", "bridge").Logger())
	defer b.Stop()

	logger.Info().
		Str("relay", client.URL()).
		Str("source", config.Source.Type).
		Msg("Bridge started")

	if config.Discord != nil {
		bot, err := NewDiscordBot(config.Discord, controller, client, logger)
		if err != nil {
			logger.Error().Err(err).Msg("Unable to create the Discord bot")
		} else {
			err = bot.Start()
			if err != nil {
				logger.Error().Err(err).Msg("Unable to start the Discord bot")
			}
			defer bot.Stop()
		}
	}

	if config.Server.Addr != "" {
		if parseLevel(config.Log.Level) != zerolog.DebugLevel {
			gin.SetMode(gin.ReleaseMode)
		}
		httpLogger := logger.With().Str("scope", "http").Logger()
		router := newRouter(config.Server, controller, client, &httpLogger)
		err := runServer(ctx, config.Server.Addr, router, &httpLogger)
		if err != nil {
			httpLogger.Error().Err(err).Msg("HTTP API stopped")
		}
	}

	<-ctx.Done()
	logger.Info().Msg("Shutting down")
}

func init() {
	rootCmd.AddCommand(toggleCmd, stateCmd)
}

var (
	toggleCmd = &cobra.Command{
		Use:   "toggle",
		Short: "Toggle the relay once",
		Args:  cobra.NoArgs,
		Run: func(cmd *cobra.Command, args []string) {
			config := parseConfigFile(configFilePath)
			client := createClient(config)

			err := client.Toggle(cmd.Context())
			if err != nil {
				fmt.Fprintf(os.Stderr, "Relay toggle error: %s\n", err)
				os.Exit(1)
			}
		},
	}
	stateCmd = &cobra.Command{
		Use:   "state",
		Short: "Fetch the relay state",
		Args:  cobra.NoArgs,
		Run: func(cmd *cobra.Command, args []string) {
			config := parseConfigFile(configFilePath)
			client := createClient(config)

			reportedState, pingState := client.Status(cmd.Context())

			if reportedState.Err != nil {
				fmt.Fprintf(os.Stderr, "Failed to retrieve relay state: %s\n", reportedState.Err)
			}
			if pingState.Err != nil {
				fmt.Fprintf(os.Stderr, "Failed to ping relay: %s\n", pingState.Err)
			}

			state := struct {
				State     relay.State `json:"state"`
				Reachable bool        `json:"reachable"`
			}{
				State:     reportedState.Value,
				Reachable: pingState.Value,
			}

			jsonString, err := json.Marshal(state)
			if err != nil {
				fmt.Println("Error during JSON conversion:", err)
				os.Exit(1)
			}

			fmt.Println(string(jsonString))
		},
	}
)

func main() {
	err := rootCmd.ExecuteContext(context.Background())
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
