// Package app wires configuration into a ready SalesService. Both the Lambda
// entry point and salesctl build through here.
package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	awsdynamodb "github.com/aws/aws-sdk-go-v2/service/dynamodb"
	awsssm "github.com/aws/aws-sdk-go-v2/service/ssm"
	"github.com/redis/go-redis/v9"

	"sales-agent/internal/catalog"
	"sales-agent/internal/config"
	"sales-agent/internal/domain"
	"sales-agent/internal/flow"
	"sales-agent/internal/integrations/gemini"
	"sales-agent/internal/integrations/openrouter"
	"sales-agent/internal/integrations/paramstore"
	"sales-agent/internal/intent"
	"sales-agent/internal/llm"
	"sales-agent/internal/reconcile"
	"sales-agent/internal/repository"
	"sales-agent/internal/sessionstore"
	"sales-agent/internal/usecase"
)

// SnapshotReader queries persisted snapshots.
type SnapshotReader interface {
	GetSnapshot(ctx context.Context, sessionID string) (*domain.Snapshot, error)
	ListModels(ctx context.Context) ([]string, error)
	ListSnapshots(ctx context.Context, model string) ([]domain.Snapshot, error)
}

type App struct {
	Service *usecase.SalesService
	// Snapshots is nil when no snapshot table is configured.
	Snapshots SnapshotReader

	store sessionstore.Store
}

// Build assembles the service described by cfg. AWS credentials are only
// resolved when a table or a parameter prefix needs them.
func Build(ctx context.Context, cfg *config.Config) (*App, error) {
	if cfg == nil {
		return nil, errors.New("app: config must not be nil")
	}

	var clients *awsClients
	if cfg.DynamoDB.ProductTable != "" || cfg.DynamoDB.SnapshotTable != "" || cfg.Params.Prefix != "" {
		awsCfg, err := awsconfig.LoadDefaultConfig(ctx)
		if err != nil {
			return nil, fmt.Errorf("app: load AWS config: %w", err)
		}
		clients = newAWSClients(awsCfg)
	}

	source, err := buildCatalogSource(ctx, cfg, clients)
	if err != nil {
		return nil, err
	}
	products, err := catalog.NewCache(source, cfg.Catalog.CacheTTL)
	if err != nil {
		return nil, err
	}

	router, err := buildRouter(ctx, cfg, clients)
	if err != nil {
		return nil, err
	}

	store, err := buildSessionStore(cfg)
	if err != nil {
		return nil, err
	}

	a := &App{store: store}
	var sink usecase.SnapshotSink = logSink{}
	if cfg.DynamoDB.SnapshotTable != "" {
		table, err := repository.NewSnapshotTable(clients.dynamo, cfg.DynamoDB.SnapshotTable)
		if err != nil {
			_ = store.Close()
			return nil, err
		}
		sink = table
		a.Snapshots = table
	}

	machine, err := flow.New(intent.NewKeywordClassifier())
	if err != nil {
		_ = store.Close()
		return nil, err
	}
	rec, err := reconcile.New(machine)
	if err != nil {
		_ = store.Close()
		return nil, err
	}

	svc, err := usecase.NewSalesService(products, router, store, sink, machine, rec, usecase.Options{
		LLMTimeout:      cfg.LLM.Timeout,
		SnapshotTimeout: cfg.Snapshot.Timeout,
		MaxInputLength:  cfg.Turn.MaxInputLength,
	})
	if err != nil {
		_ = store.Close()
		return nil, err
	}
	a.Service = svc
	return a, nil
}

// Close waits for pending snapshot writes and releases the session store.
func (a *App) Close() error {
	if a.Service != nil {
		a.Service.Close()
	}
	if a.store != nil {
		return a.store.Close()
	}
	return nil
}

type awsClients struct {
	dynamo *awsdynamodb.Client
	ssm    *awsssm.Client
}

func newAWSClients(cfg aws.Config) *awsClients {
	return &awsClients{
		dynamo: awsdynamodb.NewFromConfig(cfg),
		ssm:    awsssm.NewFromConfig(cfg),
	}
}

func buildCatalogSource(ctx context.Context, cfg *config.Config, clients *awsClients) (catalog.Source, error) {
	if cfg.DynamoDB.ProductTable == "" {
		slog.Info("app: no product table configured, serving built-in catalog", "products", len(catalog.DefaultProducts))
		return catalog.StaticSource(catalog.DefaultProducts), nil
	}
	table, err := repository.NewProductTable(clients.dynamo, cfg.DynamoDB.ProductTable)
	if err != nil {
		return nil, err
	}
	if cfg.Catalog.Seed {
		n, err := table.Seed(ctx, catalog.DefaultProducts)
		if err != nil {
			// An unseeded table still serves whatever it holds.
			slog.Warn("app: seeding product table failed", "table", cfg.DynamoDB.ProductTable, "err", err)
		} else if n > 0 {
			slog.Info("app: seeded product table", "table", cfg.DynamoDB.ProductTable, "products", n)
		}
	}
	return table, nil
}

func buildRouter(ctx context.Context, cfg *config.Config, clients *awsClients) (*llm.Router, error) {
	if cfg.LLM.ABTestEnabled {
		key, err := resolveKey(ctx, cfg.LLM.OpenRouterAPIKey, paramstore.OpenRouterTokenName, cfg, clients)
		if err != nil {
			return nil, err
		}
		client, err := openrouter.New(openrouter.Config{APIKey: key})
		if err != nil {
			return nil, err
		}
		slog.Info("app: A/B test enabled", "model_a", cfg.LLM.ModelA, "model_b", cfg.LLM.ModelB)
		return llm.NewRouter(map[string]llm.Route{
			llm.GroupA: {Generator: client, Model: cfg.LLM.ModelA},
			llm.GroupB: {Generator: client, Model: cfg.LLM.ModelB},
		}, true)
	}

	key, err := resolveKey(ctx, cfg.LLM.GeminiAPIKey, paramstore.GeminiTokenName, cfg, clients)
	if err != nil {
		return nil, err
	}
	client, err := gemini.New(ctx, gemini.Config{APIKey: key})
	if err != nil {
		return nil, err
	}
	return llm.NewRouter(map[string]llm.Route{
		llm.GroupA: {Generator: client, Model: cfg.LLM.DefaultModel},
	}, false)
}

// resolveKey prefers an explicit key and falls back to Parameter Store.
func resolveKey(ctx context.Context, explicit, tokenName string, cfg *config.Config, clients *awsClients) (string, error) {
	if explicit != "" {
		return explicit, nil
	}
	if clients == nil {
		return "", fmt.Errorf("app: no API key configured for %s", tokenName)
	}
	params, err := paramstore.New(clients.ssm, cfg.Params.Prefix)
	if err != nil {
		return "", err
	}
	return params.Token(ctx, tokenName)
}

func buildSessionStore(cfg *config.Config) (sessionstore.Store, error) {
	backend := sessionstore.Backend(cfg.Sessions.Backend)
	opts := []sessionstore.Option{sessionstore.WithTTL(cfg.Sessions.TTL)}
	if backend == sessionstore.BackendRedis {
		opts = append(opts, sessionstore.WithRedisClient(redis.NewClient(&redis.Options{Addr: cfg.Sessions.RedisAddr})))
	}
	store, err := sessionstore.New(backend, opts...)
	if err != nil {
		return nil, fmt.Errorf("app: session store: %w", err)
	}
	return store, nil
}

// logSink records snapshots in the log when no snapshot table is configured.
type logSink struct{}

func (logSink) SaveSnapshot(_ context.Context, snap domain.Snapshot) error {
	slog.Info("app: session snapshot",
		"session_id", snap.SessionID,
		"final_state", snap.FinalState,
		"model_used", snap.ModelUsed,
		"cart_items", snap.CartItemCount,
		"total_value", snap.TotalValue.String(),
		"timestamp", snap.Timestamp,
	)
	return nil
}
