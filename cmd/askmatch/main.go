package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strings"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/askmatch/askmatch/engine"
	"github.com/askmatch/askmatch/engine/normalize"
	"github.com/askmatch/askmatch/engine/session"
	"github.com/askmatch/askmatch/internal/profile"
	"github.com/askmatch/askmatch/internal/version"
	"github.com/askmatch/askmatch/metrics"
	"github.com/askmatch/askmatch/server"
	"github.com/askmatch/askmatch/store"
)

var rootCmd = &cobra.Command{
	Use:   "askmatch",
	Short: `A FAQ answering service that matches free-text questions against curated question patterns and returns canned answers.`,
	PersistentPreRunE: func(_ *cobra.Command, _ []string) error {
		// Load .env from the current directory for local development
		// (ignore error if the file doesn't exist).
		_ = godotenv.Load()
		return nil
	},
	Run: func(_ *cobra.Command, _ []string) {
		instanceProfile := &profile.Profile{
			Mode:             viper.GetString("mode"),
			Addr:             viper.GetString("addr"),
			Port:             viper.GetInt("port"),
			UNIXSock:         viper.GetString("unix-sock"),
			Data:             viper.GetString("data"),
			MatchThreshold:   viper.GetFloat64("match-threshold"),
			SuggestThreshold: viper.GetFloat64("suggest-threshold"),
			TopK:             viper.GetInt("top-k"),
			HistoryWindow:    viper.GetInt("history-window"),
			HistoryCap:       viper.GetInt("history-cap"),
			NgramMax:         viper.GetInt("ngram-max"),
			Lemmatize:        viper.GetBool("lemmatize"),
			ContextAugment:   viper.GetBool("context-augment"),
			WatchReload:      viper.GetBool("watch-reload"),
			EmptyMessage:     viper.GetString("empty-message"),
			FallbackMessage:  viper.GetString("fallback-message"),
			Version:          version.GetCurrentVersion(viper.GetString("mode")),
		}
		if err := instanceProfile.Validate(); err != nil {
			slog.Error("invalid configuration", "error", err)
			os.Exit(1)
		}

		ctx, cancel := context.WithCancel(context.Background())
		defer cancel()

		m := metrics.New()
		loader := store.NewLoader(instanceProfile.Data, slog.Default())
		normalizer := normalize.New(normalize.Config{Lemmatize: instanceProfile.Lemmatize})
		history := session.New(instanceProfile.HistoryCap, 0, slog.Default())
		eng := engine.New(loader, normalizer, engine.Config{
			MatchThreshold:   instanceProfile.MatchThreshold,
			SuggestThreshold: instanceProfile.SuggestThreshold,
			TopK:             instanceProfile.TopK,
			HistoryWindow:    instanceProfile.HistoryWindow,
			NgramMax:         instanceProfile.NgramMax,
			ContextAugment:   instanceProfile.ContextAugment,
			EmptyMessage:     instanceProfile.EmptyMessage,
			FallbackMessage:  instanceProfile.FallbackMessage,
		}, history, m, slog.Default())

		// Serving starts even when the first load fails: the engine reports
		// not-ready until a reload succeeds.
		if count, err := eng.Reload(ctx); err != nil {
			slog.Error("initial knowledge load failed", "error", err)
		} else {
			slog.Info("knowledge base loaded", "questions", count)
		}

		if instanceProfile.WatchReload {
			go func() {
				if err := eng.Watch(ctx, instanceProfile.Data); err != nil {
					slog.Error("knowledge watcher stopped", "error", err)
				}
			}()
		}

		s := server.NewServer(instanceProfile, eng, m, slog.Default())

		c := make(chan os.Signal, 1)
		// Trigger graceful shutdown on SIGINT or SIGTERM. The default signal
		// sent by the `kill` command is SIGTERM, which is taken as the
		// graceful shutdown signal by most process managers.
		signal.Notify(c, terminationSignals...)
		go func() {
			<-c
			s.Shutdown(ctx)
			cancel()
		}()

		printGreetings(instanceProfile)

		if err := s.Start(ctx); err != nil && !errors.Is(err, http.ErrServerClosed) {
			slog.Error("failed to start server", "error", err)
			cancel()
		}

		<-ctx.Done()
	},
}

func init() {
	viper.SetDefault("mode", "dev")
	viper.SetDefault("port", 18080)
	viper.SetDefault("data", "data")

	flags := rootCmd.PersistentFlags()
	flags.String("mode", "dev", `mode of server, can be "prod" or "dev" or "demo"`)
	flags.String("addr", "", "address of server")
	flags.Int("port", 18080, "port of server")
	flags.String("unix-sock", "", "path to the unix socket, overrides --addr and --port")
	flags.String("data", "data", "directory containing knowledge documents (*.json)")
	flags.Float64("match-threshold", 0.3, "minimum similarity for a question to be answered")
	flags.Float64("suggest-threshold", 0.1, "minimum similarity for autocomplete suggestions")
	flags.Int("top-k", 5, "maximum number of suggestions returned")
	flags.Int("history-window", 6, "history entries folded into each query")
	flags.Int("history-cap", 20, "maximum history entries kept per session")
	flags.Int("ngram-max", 1, "index phrases up to this many words")
	flags.Bool("lemmatize", false, "reduce tokens to a base form before indexing")
	flags.Bool("context-augment", true, "fold recent session history into queries")
	flags.Bool("watch-reload", false, "rebuild the index when knowledge files change")
	flags.String("empty-message", "", "reply for empty questions")
	flags.String("fallback-message", "", "reply when no question matches")

	for _, key := range []string{
		"mode", "addr", "port", "unix-sock", "data",
		"match-threshold", "suggest-threshold", "top-k",
		"history-window", "history-cap", "ngram-max",
		"lemmatize", "context-augment", "watch-reload",
		"empty-message", "fallback-message",
	} {
		if err := viper.BindPFlag(key, flags.Lookup(key)); err != nil {
			panic(err)
		}
	}

	viper.SetEnvPrefix("askmatch")
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_", "-", "_"))
	viper.AutomaticEnv()
}

func printGreetings(profile *profile.Profile) {
	fmt.Printf("askmatch %s started successfully!\n", profile.Version)
	fmt.Printf("Knowledge directory: %s\n", profile.Data)
	fmt.Printf("Match threshold: %.2f\n", profile.MatchThreshold)
	fmt.Printf("Mode: %s\n", profile.Mode)

	if len(profile.UNIXSock) == 0 {
		if len(profile.Addr) == 0 {
			fmt.Printf("Server running on port %d\n", profile.Port)
		} else {
			fmt.Printf("Server running on %s:%d\n", profile.Addr, profile.Port)
		}
	} else {
		fmt.Printf("Server running on unix socket: %s\n", profile.UNIXSock)
	}
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		panic(err)
	}
}
