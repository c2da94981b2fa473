// Command contexto is the CLI for the O Fim context assembly pipeline:
// assemble per-persona system prompts, run council assemblies, complete
// sessions, and manage soul files and the database schema.
package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/joho/godotenv"
	anyllmlib "github.com/mozilla-ai/any-llm-go"
	"github.com/spf13/cobra"
	"go.opentelemetry.io/otel"

	"github.com/ofim/contexto/internal/assembly"
	"github.com/ofim/contexto/internal/config"
	"github.com/ofim/contexto/internal/db"
	"github.com/ofim/contexto/internal/drift"
	"github.com/ofim/contexto/internal/memory"
	"github.com/ofim/contexto/internal/observe"
	"github.com/ofim/contexto/internal/oplog"
	"github.com/ofim/contexto/internal/persona"
	"github.com/ofim/contexto/internal/pynchon"
	"github.com/ofim/contexto/internal/relationship"
	"github.com/ofim/contexto/internal/session"
	"github.com/ofim/contexto/internal/soul"
	"github.com/ofim/contexto/internal/temporal"
	"github.com/ofim/contexto/pkg/provider/embeddings"
	ollamaembed "github.com/ofim/contexto/pkg/provider/embeddings/ollama"
	oaembed "github.com/ofim/contexto/pkg/provider/embeddings/openai"
	"github.com/ofim/contexto/pkg/provider/extract"
	"github.com/ofim/contexto/pkg/provider/extract/anyllm"
)

const shutdownTimeout = 10 * time.Second

func main() {
	os.Exit(run())
}

func run() int {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := newRootCmd().ExecuteContext(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "contexto: %v\n", err)
		return 1
	}
	return 0
}

func newRootCmd() *cobra.Command {
	var configPath string
	var cfg *config.Config

	root := &cobra.Command{
		Use:   "contexto",
		Short: "Context assembly for the regulars of O Fim",
		Long: `contexto assembles layered system prompts for the personas of O Fim:
soul-gated identity, hybrid memory, relationship state, drift correction,
and the atmospheric layers, composed under a token budget.`,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			// Best effort; the config layer reads the environment itself.
			_ = godotenv.Load()

			loaded, err := config.Load(configPath)
			if err != nil {
				return err
			}
			cfg = loaded
			slog.SetDefault(newLogger(cfg.LogLevel))
			return nil
		},
	}
	root.PersistentFlags().StringVar(&configPath, "config", "contexto.yaml", "path to the YAML configuration file")

	getCfg := func() *config.Config { return cfg }
	root.AddCommand(
		newAssembleCmd(getCfg),
		newCouncilCmd(getCfg),
		newCompleteCmd(getCfg),
		newSoulsCmd(getCfg),
		newMigrateCmd(getCfg),
	)
	return root
}

func newLogger(level config.LogLevel) *slog.Logger {
	var lvl slog.Level
	switch level {
	case config.LogDebug:
		lvl = slog.LevelDebug
	case config.LogWarn:
		lvl = slog.LevelWarn
	case config.LogError:
		lvl = slog.LevelError
	default:
		lvl = slog.LevelInfo
	}
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: lvl}))
}

// app is the wired-up runtime: pool, telemetry, providers, and the two
// pipeline entry points. Built per command invocation, closed on the way out.
type app struct {
	cfg       *config.Config
	pool      *pgxpool.Pool
	metrics   *observe.Metrics
	oplogger  *oplog.Logger
	personas  *persona.Store
	validator *soul.Validator
	assembler *assembly.Assembler
	completer *session.Completer
	shutdown  func(context.Context) error
}

func newApp(ctx context.Context, cfg *config.Config) (*app, error) {
	shutdown, err := observe.InitProvider(ctx, observe.ProviderConfig{ServiceName: "contexto"})
	if err != nil {
		return nil, fmt.Errorf("init telemetry: %w", err)
	}

	metrics, err := observe.NewMetrics(otel.GetMeterProvider())
	if err != nil {
		_ = shutdown(ctx)
		return nil, fmt.Errorf("init metrics: %w", err)
	}

	pool, err := db.NewPool(ctx, cfg.DatabaseURL, cfg.PoolMaxConns)
	if err != nil {
		_ = shutdown(ctx)
		return nil, err
	}

	embedder, err := buildEmbedder(cfg)
	if err != nil {
		pool.Close()
		_ = shutdown(ctx)
		return nil, err
	}
	extractor, err := buildExtractor(cfg)
	if err != nil {
		pool.Close()
		_ = shutdown(ctx)
		return nil, err
	}

	oplogger := oplog.New(pool, metrics)

	personas := persona.NewStore(pool)
	memories := memory.NewStore(pool)
	atmosphere := pynchon.NewStore(pool)
	tmp := temporal.NewAwareness(temporal.NewStore(pool))
	validator := soul.NewValidator(cfg.PersonasRoot, oplogger, metrics)

	assembler := assembly.New(assembly.Deps{
		Personas:      personas,
		Relationships: relationship.NewStore(pool),
		Memories:      memories,
		Retriever:     memory.NewRetriever(memories, embedder, metrics),
		Surfacer:      memory.NewSurfacer(memories, oplogger, metrics),
		Markers:       soul.NewLoader(cfg.PersonasRoot),
		Validator:     validator,
		Drifts:        drift.NewStore(pool),
		Atmosphere:    atmosphere,
		Entropy:       pynchon.NewEntropy(atmosphere),
		Zone:          pynchon.NewZone(atmosphere),
		They:          pynchon.NewThey(atmosphere),
		Gravity:       pynchon.NewGravity(atmosphere),
		Bleeder:       pynchon.NewBleeder(),
		Temporal:      tmp,
		Oplog:         oplogger,
		Metrics:       metrics,
	}, cfg)

	completer := session.NewCompleter(pool, oplogger, metrics, tmp, embedder, extractor)

	return &app{
		cfg:       cfg,
		pool:      pool,
		metrics:   metrics,
		oplogger:  oplogger,
		personas:  personas,
		validator: validator,
		assembler: assembler,
		completer: completer,
		shutdown:  shutdown,
	}, nil
}

func (a *app) close() {
	ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()

	a.oplogger.Close()
	a.pool.Close()
	if err := a.shutdown(ctx); err != nil {
		slog.Warn("telemetry shutdown", "error", err)
	}
}

func buildEmbedder(cfg *config.Config) (embeddings.Provider, error) {
	switch cfg.Embeddings.Provider {
	case "ollama":
		var opts []ollamaembed.Option
		if cfg.Embeddings.Dimensions > 0 {
			opts = append(opts, ollamaembed.WithDimensions(cfg.Embeddings.Dimensions))
		}
		return ollamaembed.New(cfg.Embeddings.BaseURL, cfg.Embeddings.Model, opts...)
	default:
		if cfg.Embeddings.APIKey == "" {
			// Retrieval falls back to importance and recency scoring.
			return nil, nil
		}
		return oaembed.New(cfg.Embeddings.APIKey, cfg.Embeddings.Model)
	}
}

func buildExtractor(cfg *config.Config) (extract.Provider, error) {
	if cfg.Extractor.APIKey == "" {
		return nil, nil
	}
	return anyllm.New(cfg.Extractor.Provider, cfg.Extractor.Model,
		anyllmlib.WithAPIKey(cfg.Extractor.APIKey))
}
