package main

import (
	"context"
	"fmt"
	"net/http"
	"os"

	"github.com/google/uuid"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

var (
	apiKey       string
	settingsPath string
	debugMode    bool
	rowCount     int
	urlCount     int
)

var rootCmd = &cobra.Command{
	Use:   "datasmith",
	Short: "Turn a natural-language query into a tabular dataset from live web content",
	Long:  `datasmith discovers, scrapes and distills web pages into structured CSV datasets using AI extraction.`,
}

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the HTTP server with streaming generation",
	RunE: func(cmd *cobra.Command, args []string) error {
		config, log, err := setup()
		if err != nil {
			return err
		}
		defer log.Sync()

		pipeline := buildPipeline(config, log)
		server := NewServer(pipeline, NewDedupGate(), log)

		log.Info("listening", zap.String("addr", config.Settings.ListenAddr))
		return http.ListenAndServe(config.Settings.ListenAddr, server.Handler())
	},
}

var generateCmd = &cobra.Command{
	Use:   "generate <query>",
	Short: "Run one generation and print progress to stdout",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		config, log, err := setup()
		if err != nil {
			return err
		}
		defer log.Sync()

		pipeline := buildPipeline(config, log)
		q := Query{Text: args[0], TargetRows: rowCount, TargetURLs: urlCount}
		sessionID := uuid.NewString()

		stream := NewProgressStream()
		done := make(chan error, 1)
		go func() {
			defer stream.Finish()
			done <- pipeline.Run(context.Background(), sessionID, q, stream)
		}()

		for ev := range stream.Events() {
			switch ev.Kind {
			case EventProgress:
				fmt.Printf("  [%d/%d] %s %s\n", ev.Current, ev.Total, ev.Message, ev.Detail)
			case EventComplete:
				if result, ok := ev.Payload.(PipelineResult); ok {
					fmt.Printf("✓ %d rows → %s\n", result.RowCount, result.CSVPath)
				}
			case EventContent:
				// Raw page payloads are for live UIs; skip on the CLI.
			default:
				fmt.Println(ev.Message)
			}
		}
		return <-done
	},
}

func setup() (*Config, *zap.Logger, error) {
	if apiKey == "" {
		apiKey = os.Getenv("ANTHROPIC_API_KEY")
	}
	if apiKey == "" {
		return nil, nil, fmt.Errorf("API key required: use --api-key flag or ANTHROPIC_API_KEY environment variable")
	}

	var overrides *ConfigOverrides
	if settingsPath != "" {
		overrides = &ConfigOverrides{SettingsPath: &settingsPath}
	}
	config, err := NewConfig(overrides)
	if err != nil {
		return nil, nil, err
	}

	var log *zap.Logger
	if debugMode {
		log, err = zap.NewDevelopment()
	} else {
		log, err = zap.NewProduction()
	}
	if err != nil {
		return nil, nil, err
	}
	return config, log, nil
}

func buildPipeline(config *Config, log *zap.Logger) *Pipeline {
	discoverer := NewSearchClient(config.Settings.Services.SearchURL, config.Settings.Scraper.RequestsPerSecond)
	scraper := NewScraper(config.Settings, log)
	extractor := NewAnthropicExtractor(apiKey, config, config.Settings.OutputDirectory, log)
	return NewPipeline(config.Settings, discoverer, scraper, extractor, log)
}

func init() {
	rootCmd.PersistentFlags().StringVar(&apiKey, "api-key", "", "Anthropic API key")
	rootCmd.PersistentFlags().StringVar(&settingsPath, "settings", "", "Path to settings file")
	rootCmd.PersistentFlags().BoolVar(&debugMode, "debug", false, "Enable debug logging")
	generateCmd.Flags().IntVar(&rowCount, "rows", 25, "Target row count")
	generateCmd.Flags().IntVar(&urlCount, "urls", 5, "Target URL count")
	rootCmd.AddCommand(serveCmd, generateCmd)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Println(err)
		os.Exit(1)
	}
}
