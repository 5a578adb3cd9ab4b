package main

import (
	"context"
	"fmt"
	"time"

	natsserver "github.com/nats-io/nats-server/v2/server"
	"github.com/nats-io/nats.go"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/forgetful-ai/forgetful/internal/autolink"
	"github.com/forgetful-ai/forgetful/internal/composer"
	"github.com/forgetful-ai/forgetful/internal/config"
	"github.com/forgetful-ai/forgetful/internal/embeddings"
	"github.com/forgetful-ai/forgetful/internal/events"
	"github.com/forgetful-ai/forgetful/internal/graph"
	"github.com/forgetful-ai/forgetful/internal/logging"
	"github.com/forgetful-ai/forgetful/internal/reranker"
	"github.com/forgetful-ai/forgetful/internal/retrieval"
	"github.com/forgetful-ai/forgetful/internal/storage"
	embeddedstore "github.com/forgetful-ai/forgetful/internal/storage/embedded"
	serverstore "github.com/forgetful-ai/forgetful/internal/storage/server"
	"github.com/forgetful-ai/forgetful/internal/telemetry"
	"github.com/forgetful-ai/forgetful/internal/tokencount"
	"github.com/forgetful-ai/forgetful/internal/tools"
)

// defaultAutoLinkMax bounds how many similar memories autolink.Linker
// attaches per create_memory call.
const defaultAutoLinkMax = 3

// deps bundles the domain components built once per process, shared by
// the serve, mcp, and reembed subcommands. Every field built against
// storage.Repository works identically regardless of the selected
// storage backend.
type deps struct {
	cfg         *config.Config
	repo        storage.Repository
	embedder    embeddings.Adapter
	compose     *composer.Composer
	traverser   *graph.Traverser
	linker      *autolink.Linker
	registry    *tools.Registry
	dispatch    *tools.Dispatcher
	bus         *events.Bus
	natsConn    *nats.Conn
	embeddedSrv *natsserver.Server
	logger      *zap.Logger
}

// buildDeps wires every domain component from cfg: embedding adapter ->
// storage backend -> retrieval/composer/graph/autolink -> tool registry
// -> activity bus.
func buildDeps(cfg *config.Config, logger *zap.Logger) (*deps, error) {
	embedder, err := embeddings.NewAdapter(embeddings.ProviderConfig{
		Provider: cfg.Embeddings.Provider,
		Model:    cfg.Embeddings.Model,
		BaseURL:  cfg.Embeddings.BaseURL,
		CacheDir: cfg.Embeddings.CacheDir,
	})
	if err != nil {
		return nil, fmt.Errorf("embedding adapter: %w", err)
	}
	if embedder.Dimension() != cfg.Embeddings.Dimensions {
		return nil, fmt.Errorf("embedding adapter produces %d-dim vectors, config expects %d",
			embedder.Dimension(), cfg.Embeddings.Dimensions)
	}

	repo, err := openStorage(cfg, embedder, logger)
	if err != nil {
		return nil, fmt.Errorf("storage backend: %w", err)
	}

	rerank, err := buildReranker(cfg)
	if err != nil {
		return nil, fmt.Errorf("reranker: %w", err)
	}

	pipeline := retrieval.New(repo, retrieval.KeywordTagScorer{}, rerank, logger)
	counter := tokencount.New(logger)
	compose := composer.New(pipeline, repo, counter, logger)
	traverser := graph.New(repo, logger)
	linker := autolink.New(repo, defaultAutoLinkMax, logger)

	registry := tools.NewRegistry()
	if err := tools.RegisterAll(registry, tools.Deps{
		Repo: repo, Linker: linker, Compose: compose, Traverser: traverser,
	}); err != nil {
		return nil, fmt.Errorf("registering tools: %w", err)
	}

	natsConn, embeddedSrv, err := dialOrEmbedNATS(cfg.Events.NATSURL)
	if err != nil {
		return nil, fmt.Errorf("nats: %w", err)
	}
	bus := events.New(natsConn, cfg.Events.TrackReads, logger)

	return &deps{
		cfg: cfg, repo: repo, embedder: embedder, compose: compose,
		traverser: traverser, linker: linker, registry: registry,
		dispatch: tools.NewDispatcher(registry), bus: bus,
		natsConn: natsConn, embeddedSrv: embeddedSrv, logger: logger,
	}, nil
}

// Close releases every resource buildDeps opened, in reverse order.
func (d *deps) Close() {
	if d.natsConn != nil {
		d.natsConn.Close()
	}
	if d.embeddedSrv != nil {
		d.embeddedSrv.Shutdown()
	}
	_ = d.repo.Close()
	_ = d.embedder.Close()
}

// openStorage selects the storage.Repository backend per
// cfg.Storage.Backend.
func openStorage(cfg *config.Config, embedder embeddings.Adapter, logger *zap.Logger) (storage.Repository, error) {
	switch cfg.Storage.Backend {
	case "embedded", "":
		return embeddedstore.New(embeddedstore.Config{
			Path:     cfg.Storage.Embedded.Path,
			Compress: cfg.Storage.Embedded.Compress,
		}, embedder, logger)
	case "qdrant":
		scfg := serverstore.Config{
			Host:           cfg.Storage.Qdrant.Host,
			Port:           cfg.Storage.Qdrant.Port,
			CollectionName: cfg.Storage.Qdrant.CollectionName,
			VectorSize:     uint64(cfg.Embeddings.Dimensions),
			UseTLS:         cfg.Storage.Qdrant.UseTLS,
		}
		scfg.ApplyDefaults()
		return serverstore.New(scfg, embedder, logger)
	default:
		return nil, fmt.Errorf("unsupported storage backend: %s", cfg.Storage.Backend)
	}
}

// buildReranker selects the reranker.Adapter per cfg.Reranker.Provider.
func buildReranker(cfg *config.Config) (reranker.Adapter, error) {
	switch cfg.Reranker.Provider {
	case "simple", "":
		return reranker.NewSimpleReranker(), nil
	case "crossencoder":
		return reranker.NewCrossEncoder(reranker.CrossEncoderConfig{BaseURL: cfg.Reranker.BaseURL})
	default:
		return nil, fmt.Errorf("unsupported reranker provider: %s", cfg.Reranker.Provider)
	}
}

// dialOrEmbedNATS connects to an external NATS server if natsURL is set;
// otherwise it starts an embedded nats-server so the activity bus works
// out of the box with no external dependency.
func dialOrEmbedNATS(natsURL string) (*nats.Conn, *natsserver.Server, error) {
	if natsURL != "" {
		nc, err := nats.Connect(natsURL, nats.MaxReconnects(-1), nats.ReconnectWait(time.Second))
		if err != nil {
			return nil, nil, fmt.Errorf("connecting to nats at %s: %w", natsURL, err)
		}
		return nc, nil, nil
	}

	srv, err := natsserver.NewServer(&natsserver.Options{
		Host: "127.0.0.1", Port: -1, NoLog: true, NoSigs: true, MaxControlLine: 2048,
	})
	if err != nil {
		return nil, nil, fmt.Errorf("starting embedded nats-server: %w", err)
	}
	go srv.Start()
	if !srv.ReadyForConnections(5 * time.Second) {
		return nil, nil, fmt.Errorf("embedded nats-server did not become ready")
	}
	nc, err := nats.Connect(srv.ClientURL())
	if err != nil {
		srv.Shutdown()
		return nil, nil, fmt.Errorf("connecting to embedded nats-server: %w", err)
	}
	return nc, srv, nil
}

// setupObservability builds the structured logger and, if
// cfg.Observability.EnableTelemetry is set, the OTEL providers every
// domain component shares. The returned Telemetry is non-nil but inert
// when telemetry is disabled, so callers can always defer its Shutdown.
func setupObservability(cfg *config.Config) (*logging.Logger, *telemetry.Telemetry, error) {
	telCfg := telemetry.NewDefaultConfig()
	telCfg.Enabled = cfg.Observability.EnableTelemetry
	if cfg.Observability.OTLPEndpoint != "" {
		telCfg.Endpoint = cfg.Observability.OTLPEndpoint
	}
	if cfg.Observability.ServiceName != "" {
		telCfg.ServiceName = cfg.Observability.ServiceName
	}
	telCfg.Insecure = cfg.Observability.OTLPInsecure
	telCfg.Protocol = cfg.Observability.OTLPProtocol
	telCfg.TLSSkipVerify = cfg.Observability.OTLPTLSSkipVerify

	tel, err := telemetry.New(context.Background(), telCfg)
	if err != nil {
		return nil, nil, fmt.Errorf("telemetry: %w", err)
	}

	level := zapcore.InfoLevel
	if !cfg.Observability.EnableTelemetry {
		level = zapcore.DebugLevel
	}
	lg, err := logging.NewLogger(&logging.Config{
		Level:  level,
		Format: "json",
		Output: logging.OutputConfig{Stdout: true, OTEL: cfg.Observability.EnableTelemetry},
	}, tel.LoggerProvider())
	if err != nil {
		return nil, nil, fmt.Errorf("logger: %w", err)
	}
	return lg, tel, nil
}
