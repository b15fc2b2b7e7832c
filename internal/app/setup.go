package app

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/firebase/genkit/go/ai"
	"github.com/firebase/genkit/go/genkit"
	"github.com/firebase/genkit/go/plugins/googlegenai"
	"github.com/firebase/genkit/go/plugins/ollama"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/sagekit/sage/db"
	"github.com/sagekit/sage/internal/chat"
	"github.com/sagekit/sage/internal/config"
	"github.com/sagekit/sage/internal/knowledge"
	"github.com/sagekit/sage/internal/log"
	"github.com/sagekit/sage/internal/rag"
	"github.com/sagekit/sage/internal/session"
)

// Setup builds the application from configuration. A missing or unreachable
// database is not fatal: the app starts degraded and logs why. A provider
// that cannot be initialized is fatal, since no endpoint can respond
// usefully without a model.
func Setup(ctx context.Context, cfg *config.Config, logger log.Logger) (*App, error) {
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validating config: %w", err)
	}

	a := &App{Config: cfg, Logger: logger}

	g, err := initGenkit(ctx, cfg, logger)
	if err != nil {
		return nil, err
	}
	a.Genkit = g

	pool, err := openPool(ctx, cfg)
	if err != nil {
		logger.Warn("database unavailable, starting degraded", "error", err)
	} else {
		a.Pool = pool
	}

	if a.Pool != nil {
		embedder := lookupEmbedder(g, cfg)
		if embedder == nil {
			logger.Warn("embedder not found, knowledge base disabled",
				"embedder", cfg.EmbedderModel, "provider", cfg.Provider)
		} else {
			store := knowledge.New(knowledge.NewQueries(a.Pool), embedder, logger)
			model := rag.NewGenkitModel(g, cfg.FullModelName())
			a.Knowledge = store
			a.Pipeline = rag.New(store, model, cfg.RetrievalTopK, logger)
		}
	}

	var sessions chat.SessionStore
	if a.Pool != nil {
		sessions = session.New(session.NewQueries(a.Pool), cfg.MaxHistoryMessages, logger)
	} else {
		sessions = session.NewMemoryStore(cfg.MaxHistoryMessages)
	}

	responder, err := newResponder(g, cfg, sessions, logger)
	if err != nil {
		a.Close()
		return nil, err
	}
	a.Responder = responder

	return a, nil
}

// initGenkit initializes Genkit with the configured AI provider plugin.
// Ollama models must be registered explicitly; Gemini models are discovered
// by the plugin.
func initGenkit(ctx context.Context, cfg *config.Config, logger log.Logger) (*genkit.Genkit, error) {
	switch cfg.Provider {
	case config.ProviderOllama:
		ollamaPlugin := &ollama.Ollama{ServerAddress: cfg.OllamaHost}
		g := genkit.Init(ctx, genkit.WithPlugins(ollamaPlugin))
		if g == nil {
			return nil, errors.New("initializing genkit with ollama provider")
		}
		ollamaPlugin.DefineModel(g, ollama.ModelDefinition{
			Name: cfg.ModelName,
			Type: "chat",
		}, nil)
		ollamaPlugin.DefineEmbedder(g, cfg.OllamaHost, cfg.EmbedderModel, nil)
		logger.Info("initialized genkit with ollama provider",
			"model", cfg.ModelName, "host", cfg.OllamaHost)
		return g, nil

	default: // gemini
		g := genkit.Init(ctx, genkit.WithPlugins(&googlegenai.GoogleAI{}))
		if g == nil {
			return nil, errors.New("initializing genkit with gemini provider")
		}
		logger.Info("initialized genkit with gemini provider", "model", cfg.ModelName)
		return g, nil
	}
}

// lookupEmbedder returns the embedder registered by the provider plugin.
func lookupEmbedder(g *genkit.Genkit, cfg *config.Config) ai.Embedder {
	switch cfg.Provider {
	case config.ProviderOllama:
		// Ollama embedders are keyed by server address (see initGenkit).
		return ollama.Embedder(g, cfg.OllamaHost)
	default:
		return googlegenai.GoogleAIEmbedder(g, cfg.EmbedderModel)
	}
}

// openPool runs migrations and creates a connection pool, verifying it with
// a short ping.
func openPool(ctx context.Context, cfg *config.Config) (*pgxpool.Pool, error) {
	if err := db.Migrate(cfg.PostgresURL()); err != nil {
		return nil, fmt.Errorf("running migrations: %w", err)
	}

	poolCfg, err := pgxpool.ParseConfig(cfg.PostgresConnectionString())
	if err != nil {
		return nil, fmt.Errorf("parsing connection config: %w", err)
	}

	poolCfg.MaxConns = 10
	poolCfg.MinConns = 2
	poolCfg.MaxConnLifetime = 30 * time.Minute
	poolCfg.MaxConnIdleTime = 5 * time.Minute
	poolCfg.HealthCheckPeriod = 1 * time.Minute

	pool, err := pgxpool.NewWithConfig(ctx, poolCfg)
	if err != nil {
		return nil, fmt.Errorf("creating connection pool: %w", err)
	}

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := pool.Ping(pingCtx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("pinging database: %w", err)
	}

	return pool, nil
}

// newResponder builds the conversational responder. Local providers need no
// hosted-API credential, so ollama bypasses the per-call credential check.
func newResponder(g *genkit.Genkit, cfg *config.Config, sessions chat.SessionStore, logger log.Logger) (*chat.Responder, error) {
	chatCfg := chat.Config{
		Model:    chat.NewGenkitModel(g, cfg.FullModelName()),
		Sessions: sessions,
		Logger:   logger,
	}
	if cfg.Provider == config.ProviderOllama {
		chatCfg.Credential = func() string { return "local" }
	}

	responder, err := chat.New(chatCfg)
	if err != nil {
		return nil, fmt.Errorf("creating responder: %w", err)
	}
	return responder, nil
}
