package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"tripagent/internal/agent"
	"tripagent/internal/aicontext"
	"tripagent/internal/config"
	"tripagent/internal/provider"
	"tripagent/internal/query"
	"tripagent/internal/repl"
	"tripagent/internal/storage"
	"tripagent/internal/stream"
	"tripagent/internal/trip"
)

func main() {
	var (
		configPath string
		tripPath   string
		verbose    bool
	)
	flag.StringVar(&configPath, "config", "", "Path to config JSON/JSONC")
	flag.StringVar(&tripPath, "trip", "", "Path to the trip JSON file")
	flag.BoolVar(&verbose, "v", false, "Verbose logging")
	flag.Parse()

	level := slog.LevelWarn
	if verbose {
		level = slog.LevelDebug
	}
	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level}))
	slog.SetDefault(logger)

	cfg, err := config.Load(configPath)
	if err != nil {
		fatal("load config failed: %v", err)
	}
	if strings.TrimSpace(tripPath) == "" {
		fatal("usage: tripagent -trip <trip.json> [-config <config.json>]")
	}

	t, err := loadTrip(tripPath)
	if err != nil {
		fatal("load trip failed: %v", err)
	}

	store, err := storage.NewSQLiteStore(cfg.Storage.DBPath)
	if err != nil {
		fatal("open store failed: %v", err)
	}
	defer store.Close()

	llm := provider.NewOpenAIProvider(provider.OpenAIConfig{
		BaseURL:    cfg.Provider.BaseURL,
		APIKey:     cfg.Provider.APIKey,
		Model:      cfg.Provider.Model,
		TimeoutMS:  cfg.Provider.TimeoutMS,
		MaxRetries: cfg.Provider.MaxRetries,
	})
	tokenizer := aicontext.NewTokenizerForModel(cfg.Provider.Model)

	resolver := query.NewResolver(llm, store, query.Options{
		Usage:     store,
		Tokenizer: tokenizer,
		Limits:    cfg.Limits,
		Pricing:   cfg.Pricing,
		Logger:    logger,
	})
	orch := agent.NewOrchestrator(llm, agent.OrchestratorOptions{
		Actions:   store,
		Usage:     store,
		Tokenizer: tokenizer,
		Limits:    cfg.Limits,
		Pricing:   cfg.Pricing,
		Logger:    logger,
	})

	historyPath := filepath.Join(filepath.Dir(cfg.Storage.DBPath), "history")
	input, err := repl.NewLineInput(historyPath)
	if err != nil {
		logger.Warn("readline unavailable, using basic input", "error", err)
	}
	defer input.Close()

	loop := repl.NewLoop(repl.Deps{
		Trip:      t,
		Resolver:  resolver,
		Orch:      orch,
		Actions:   agent.NewActions(store),
		Generator: stream.NewGenerator(llm, cfg.Pricing, logger),
		Input:     input,
		Out:       os.Stdout,
	})
	if err := loop.Run(context.Background()); err != nil {
		fatal("%v", err)
	}
}

// tripFile is the on-disk trip shape. Events arrive loosely typed and are
// normalized exactly once, here.
type tripFile struct {
	ID        string           `json:"id"`
	Name      string           `json:"name"`
	StartDate string           `json:"startDate"`
	EndDate   string           `json:"endDate"`
	OwnerID   string           `json:"ownerId"`
	Events    []map[string]any `json:"events"`
}

func loadTrip(path string) (trip.Trip, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return trip.Trip{}, err
	}
	var tf tripFile
	if err := json.Unmarshal(data, &tf); err != nil {
		return trip.Trip{}, fmt.Errorf("parse %s: %w", path, err)
	}
	if strings.TrimSpace(tf.ID) == "" {
		tf.ID = strings.TrimSuffix(filepath.Base(path), filepath.Ext(path))
	}

	t := trip.Trip{
		ID:        tf.ID,
		Name:      tf.Name,
		StartDate: tf.StartDate,
		EndDate:   tf.EndDate,
		OwnerID:   tf.OwnerID,
		Events:    make([]trip.Event, 0, len(tf.Events)),
	}
	for _, raw := range tf.Events {
		t.Events = append(t.Events, trip.Normalize(raw))
	}
	return t, nil
}

func fatal(format string, args ...any) {
	fmt.Fprintf(os.Stderr, format+"\n", args...)
	os.Exit(1)
}
