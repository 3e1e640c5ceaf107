package main

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"github.com/normanking/wayfarer/internal/assembler"
	"github.com/normanking/wayfarer/internal/cache"
	"github.com/normanking/wayfarer/internal/config"
	"github.com/normanking/wayfarer/internal/engine"
	"github.com/normanking/wayfarer/internal/intent"
	"github.com/normanking/wayfarer/internal/llm"
	"github.com/normanking/wayfarer/internal/logging"
	"github.com/normanking/wayfarer/internal/safety"
	"github.com/normanking/wayfarer/internal/session"
	"github.com/normanking/wayfarer/internal/tools"
	"github.com/normanking/wayfarer/internal/tracker"
	"github.com/normanking/wayfarer/internal/trip"
)

var (
	version = "0.1.0"

	cfgPath string
	verbose bool
)

func main() {
	rootCmd := &cobra.Command{
		Use:   "wayfarer",
		Short: "Wayfarer - conversational trip planning assistant",
		Long: `Wayfarer is a conversational assistant that helps travelers explore
destinations and build complete trip plans: flights, weather, activities,
budget, nearby places, and exchange rates, assembled into one itinerary.

Start an interactive conversation:  wayfarer chat
Ask a single question:              wayfarer ask "plan 5 days in kyoto"
Configuration:                      wayfarer config show`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runChat(cmd.Context())
		},
	}

	rootCmd.PersistentFlags().StringVar(&cfgPath, "config", "", "config file path (default ~/.wayfarer/config.yaml)")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "verbose output")

	rootCmd.AddCommand(&cobra.Command{
		Use:   "version",
		Short: "Print version information",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Printf("Wayfarer v%s\n", version)
		},
	})
	rootCmd.AddCommand(chatCmd())
	rootCmd.AddCommand(askCmd())
	rootCmd.AddCommand(configCmd())

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := rootCmd.ExecuteContext(ctx); err != nil {
		os.Exit(1)
	}
}

func loadConfig() (*config.Config, error) {
	var (
		cfg *config.Config
		err error
	)
	if cfgPath != "" {
		cfg, err = config.LoadFromPath(cfgPath)
	} else {
		cfg, err = config.Load()
	}
	if err != nil {
		return nil, err
	}
	if verbose {
		cfg.Logging.Level = "debug"
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	if err := cfg.EnsureDirectories(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// buildEngine wires the full pipeline from configuration. The returned
// cleanup releases the session store and log file.
func buildEngine(cfg *config.Config) (*engine.Engine, func(), error) {
	logCloser, err := logging.Setup(cfg.Logging.Level, cfg.Logging.File)
	if err != nil {
		return nil, nil, err
	}

	provider := llm.NewOpenAIProvider(llm.ProviderConfig{
		Endpoint:    cfg.LLM.Endpoint,
		APIKey:      cfg.LLM.APIKey,
		Model:       cfg.LLM.Model,
		Temperature: cfg.LLM.Temperature,
		MaxTokens:   cfg.LLM.MaxTokens,
		Timeout:     cfg.LLM.Timeout(),
	})

	var store session.Store
	if cfg.Session.Store == "sqlite" {
		store, err = session.NewSQLiteStore(cfg.Session.DBPath)
		if err != nil {
			logCloser.Close()
			return nil, nil, fmt.Errorf("open session store: %w", err)
		}
	} else {
		store = session.NewMemoryStore()
	}

	sessions := session.NewManager(store,
		session.WithInactivity(cfg.Session.Inactivity()),
		session.WithSweepInterval(cfg.Session.SweepInterval()),
	)
	sessions.Start()

	gateOpts := []safety.Option{safety.WithTimeout(cfg.Safety.Timeout())}
	if cfg.Safety.IncidentLog != "" {
		gateOpts = append(gateOpts, safety.WithIncidentLog(safety.NewFileIncidentLog(cfg.Safety.IncidentLog)))
	}

	toolset := []tools.Tool{
		tools.NewFlightTool(tools.FlightConfig{
			Endpoint:     cfg.Tools.Flight.Endpoint,
			ClientID:     cfg.Tools.Flight.ClientID,
			ClientSecret: cfg.Tools.Flight.ClientSecret,
			MaxOffers:    cfg.Tools.Flight.MaxOffers,
			Timeout:      cfg.Tools.PerToolTimeout(),
		}),
		tools.NewWeatherTool(tools.WeatherConfig{
			GeocodeEndpoint:  cfg.Tools.Weather.GeocodeEndpoint,
			ForecastEndpoint: cfg.Tools.Weather.ForecastEndpoint,
			Timeout:          cfg.Tools.PerToolTimeout(),
		}),
		tools.NewPlacesTool(tools.PlacesConfig{
			Endpoint:   cfg.Tools.Places.Endpoint,
			APIKey:     cfg.Tools.Places.APIKey,
			RadiusM:    cfg.Tools.Places.RadiusM,
			MaxResults: cfg.Tools.Places.MaxResults,
			Timeout:    cfg.Tools.PerToolTimeout(),
		}),
		tools.NewCurrencyTool(tools.CurrencyConfig{
			Endpoint: cfg.Tools.Currency.Endpoint,
			APIKey:   cfg.Tools.Currency.APIKey,
			Timeout:  cfg.Tools.PerToolTimeout(),
		}),
		tools.NewActivityTool(provider),
		tools.NewBudgetTool(provider, cfg.Tools.HomeCurrency),
	}

	resultCache := cache.New(cfg.Tools.CacheSize)

	orchOpts := []tools.OrchestratorOption{
		tools.WithCache(resultCache),
		tools.WithMaxConcurrent(cfg.Tools.MaxConcurrent),
		tools.WithPerToolTimeout(cfg.Tools.PerToolTimeout()),
		tools.WithCeiling(cfg.Tools.Ceiling()),
		tools.WithHomeCurrency(cfg.Tools.HomeCurrency),
	}
	for name, minutes := range cfg.Tools.CacheTTLMin {
		cat := trip.ToolCategory(name)
		if cat.IsValid() && minutes > 0 {
			orchOpts = append(orchOpts, tools.WithTTL(cat, time.Duration(minutes)*time.Minute))
		}
	}

	eng := engine.New(
		intent.NewRouter(provider, intent.WithConfidenceThreshold(cfg.Engine.ConfidenceThreshold)),
		tracker.New(provider,
			tracker.WithPresentThreshold(cfg.Engine.PresentThreshold),
			tracker.WithInactivity(cfg.Session.Inactivity()),
		),
		safety.NewGate(provider, gateOpts...),
		tools.NewOrchestrator(toolset, orchOpts...),
		assembler.New(provider, assembler.WithSuggestionCache(resultCache, 0)),
		sessions,
		provider,
		engine.WithTurnTimeout(cfg.Engine.TurnTimeout()),
	)

	cleanup := func() {
		sessions.Stop()
		if err := store.Close(); err != nil {
			log.Warn().Err(err).Msg("close session store")
		}
		logCloser.Close()
	}
	return eng, cleanup, nil
}

func chatCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "chat",
		Short: "Start an interactive planning conversation",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runChat(cmd.Context())
		},
	}
}

func runChat(ctx context.Context) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	eng, cleanup, err := buildEngine(cfg)
	if err != nil {
		return err
	}
	defer cleanup()

	fmt.Println("Wayfarer trip planner. Tell me where you'd like to go (or 'quit' to exit).")

	sessionID := ""
	scanner := bufio.NewScanner(os.Stdin)
	for {
		fmt.Print("> ")
		if !scanner.Scan() {
			break
		}
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}
		if line == "quit" || line == "exit" {
			break
		}

		resp, err := eng.HandleTurn(ctx, sessionID, line)
		if err != nil {
			log.Error().Err(err).Msg("turn failed")
			fmt.Println("Sorry, something went wrong on my end. Please try again in a moment.")
			continue
		}
		sessionID = resp.SessionID

		fmt.Println()
		fmt.Println(resp.Text)
		if len(resp.Degraded) > 0 {
			names := make([]string, len(resp.Degraded))
			for i, c := range resp.Degraded {
				names[i] = string(c)
			}
			fmt.Printf("\n(note: %s data was unavailable)\n", strings.Join(names, ", "))
		}
		fmt.Println()

		if ctx.Err() != nil {
			break
		}
	}
	return scanner.Err()
}

func askCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "ask <message>",
		Short: "Ask a single question without an interactive session",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			eng, cleanup, err := buildEngine(cfg)
			if err != nil {
				return err
			}
			defer cleanup()

			resp, err := eng.HandleTurn(cmd.Context(), "", strings.Join(args, " "))
			if err != nil {
				return err
			}
			fmt.Println(resp.Text)
			return nil
		},
	}
}

func configCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "config",
		Short: "Manage configuration",
	}
	cmd.AddCommand(&cobra.Command{
		Use:   "show",
		Short: "Print the active configuration",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			return printConfig(os.Stdout, cfg)
		},
	})
	cmd.AddCommand(&cobra.Command{
		Use:   "init",
		Short: "Write the default configuration file",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg := config.Default()
			if err := cfg.Save(); err != nil {
				return err
			}
			fmt.Printf("wrote %s\n", cfg.GetConfigPath())
			return nil
		},
	})
	return cmd
}

func printConfig(w io.Writer, cfg *config.Config) error {
	fmt.Fprintf(w, "llm endpoint:    %s\n", cfg.LLM.Endpoint)
	fmt.Fprintf(w, "llm model:       %s\n", cfg.LLM.Model)
	fmt.Fprintf(w, "session store:   %s (%s)\n", cfg.Session.Store, cfg.Session.DBPath)
	fmt.Fprintf(w, "home currency:   %s\n", cfg.Tools.HomeCurrency)
	fmt.Fprintf(w, "tool fan-out:    %d concurrent, %s per tool, %s ceiling\n",
		cfg.Tools.MaxConcurrent, cfg.Tools.PerToolTimeout(), cfg.Tools.Ceiling())
	fmt.Fprintf(w, "log level:       %s (%s)\n", cfg.Logging.Level, cfg.Logging.File)
	return nil
}
