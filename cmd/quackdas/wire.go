package main

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/s-edling/quackdas-sub000/internal/adapters/driven/ai"
	"github.com/s-edling/quackdas-sub000/internal/adapters/driven/config/file"
	"github.com/s-edling/quackdas-sub000/internal/adapters/driven/storage/memory"
	"github.com/s-edling/quackdas-sub000/internal/adapters/driven/storage/sqlite"
	"github.com/s-edling/quackdas-sub000/internal/adapters/driving/cli"
	"github.com/s-edling/quackdas-sub000/internal/core/ports/driven"
	"github.com/s-edling/quackdas-sub000/internal/core/services"
	"github.com/s-edling/quackdas-sub000/internal/logger"
)

// Environment overrides.
const (
	envHome       = "QUACKDAS_HOME"
	envOllamaHost = "OLLAMA_HOST"
)

// stores groups the persistence ports for one run.
type stores struct {
	config  driven.ConfigStore
	vectors driven.VectorStore
	meta    driven.MetadataStore
	history driven.JobHistoryStore
	close   func() error
}

// buildServices wires the service graph for the CLI.
func buildServices(opts cli.Options) (*cli.Services, error) {
	home, err := resolveHome(opts.Home)
	if err != nil {
		return nil, err
	}
	logger.Debug("Home: %s (ephemeral=%t)", home, opts.Ephemeral)

	st, err := openStores(home, opts.Ephemeral)
	if err != nil {
		return nil, err
	}
	fail := func(err error) (*cli.Services, error) {
		if st.close != nil {
			_ = st.close()
		}
		return nil, err
	}

	settingsService := services.NewSettingsService(st.config, ai.NewConfigValidator(), st.meta)
	settings, err := settingsService.Get()
	if err != nil {
		return fail(fmt.Errorf("load settings: %w", err))
	}
	if host := os.Getenv(envOllamaHost); host != "" {
		settings.Ollama.BaseURL = ollamaURL(host)
	}
	if err := settings.Validate(); err != nil {
		return fail(err)
	}

	embedder, err := ai.CreateEmbeddingService(settings.Ollama)
	if err != nil {
		return fail(fmt.Errorf("create embedding client: %w", err))
	}
	chat, err := ai.CreateChatService(settings.Ollama)
	if err != nil {
		return fail(fmt.Errorf("create chat client: %w", err))
	}
	prompts, err := file.NewPromptStore(filepath.Join(home, "prompts"))
	if err != nil {
		return fail(fmt.Errorf("open prompts: %w", err))
	}

	search := services.NewSearchService(st.vectors, st.meta, embedder, settings.Search, settings.Embedding.Model)
	indexer := services.NewIndexService(st.vectors, st.meta, embedder)
	asker := services.NewAskService(chat, search, prompts, st.meta, settings.LLM, settings.Ask)
	jobs := services.NewJobManager(indexer, asker, st.history, settings.Jobs)

	return &cli.Services{
		Models:    embedder,
		Indexer:   indexer,
		Search:    search,
		Jobs:      jobs,
		Settings:  settingsService,
		History:   st.history,
		Effective: *settings,
		Close: func() error {
			// History is written by the worker after the terminal event
			jobs.Wait()
			if st.close == nil {
				return nil
			}
			return st.close()
		},
	}, nil
}

// openStores opens the config and index stores under home, or in-memory
// stores for ephemeral runs.
func openStores(home string, ephemeral bool) (*stores, error) {
	if ephemeral {
		vectors := memory.NewVectorStore()
		return &stores{
			config:  memory.NewConfigStore(),
			vectors: vectors,
			meta:    vectors,
			history: memory.NewJobHistoryStore(),
		}, nil
	}

	config, err := file.NewConfigStore(home)
	if err != nil {
		return nil, fmt.Errorf("open config: %w", err)
	}
	store, err := sqlite.NewStore(filepath.Join(home, "data"))
	if err != nil {
		return nil, fmt.Errorf("open store: %w", err)
	}
	return &stores{
		config:  config,
		vectors: store.VectorStore(),
		meta:    store.MetadataStore(),
		history: store.JobHistoryStore(),
		close:   store.Close,
	}, nil
}

// resolveHome picks the flag, then $QUACKDAS_HOME, then ~/.quackdas.
func resolveHome(flag string) (string, error) {
	if flag != "" {
		return filepath.Abs(flag)
	}
	if env := os.Getenv(envHome); env != "" {
		return filepath.Abs(env)
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("get home directory: %w", err)
	}
	return filepath.Join(home, ".quackdas"), nil
}

// ollamaURL accepts OLLAMA_HOST in the forms Ollama itself accepts,
// with or without a scheme.
func ollamaURL(host string) string {
	host = strings.TrimRight(strings.TrimSpace(host), "/")
	if !strings.Contains(host, "://") {
		host = "http://" + host
	}
	return host
}
