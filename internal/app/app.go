// Package app wires the gateway's components together.
//
// Setup builds the full dependency graph once at startup: Genkit with the
// configured AI provider, the PostgreSQL pool, the knowledge store and
// retrieval pipeline, the session store, and the conversational responder.
// Handlers receive these as values and never construct them per request.
//
// Storage is optional at startup. When the database cannot be reached the
// app comes up degraded: the retrieval pipeline stays nil (its endpoints
// report the knowledge base unavailable) and conversation history falls back
// to an in-process store.
package app

import (
	"github.com/firebase/genkit/go/genkit"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/sagekit/sage/internal/chat"
	"github.com/sagekit/sage/internal/config"
	"github.com/sagekit/sage/internal/knowledge"
	"github.com/sagekit/sage/internal/log"
	"github.com/sagekit/sage/internal/rag"
)

// App is the assembled application.
type App struct {
	Config *config.Config
	Logger log.Logger

	Genkit *genkit.Genkit
	Pool   *pgxpool.Pool // nil when running degraded

	// Knowledge is the document store used for indexing. Nil when degraded.
	Knowledge *knowledge.Store

	// Pipeline is nil when the retrieval stack could not be built; its
	// methods then report the knowledge base unavailable.
	Pipeline *rag.Pipeline

	Responder *chat.Responder
}

// Degraded reports whether the app is running without the retrieval stack.
func (a *App) Degraded() bool {
	return a.Pipeline == nil
}

// Close releases held resources.
func (a *App) Close() {
	if a.Pool != nil {
		a.Pool.Close()
		a.Logger.Debug("database pool closed")
	}
}
