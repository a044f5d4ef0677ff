package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	_ "time/tzdata"

	openaisdk "github.com/openai/openai-go"
	"github.com/rs/zerolog/log"
	orchestratorx "github.com/tanpawarit/chative-fintech-support/agent/agents/orchestrator"
	specialistx "github.com/tanpawarit/chative-fintech-support/agent/agents/specialist"
	contractx "github.com/tanpawarit/chative-fintech-support/agent/contract"
	guardx "github.com/tanpawarit/chative-fintech-support/agent/guard"
	llmx "github.com/tanpawarit/chative-fintech-support/agent/llm"
	mediax "github.com/tanpawarit/chative-fintech-support/agent/media"
	memoryx "github.com/tanpawarit/chative-fintech-support/agent/memory"
	tenantx "github.com/tanpawarit/chative-fintech-support/agent/tenant"
	toolx "github.com/tanpawarit/chative-fintech-support/agent/tool"
	adminx "github.com/tanpawarit/chative-fintech-support/channel/admin"
	chatx "github.com/tanpawarit/chative-fintech-support/channel/chat"
	serverx "github.com/tanpawarit/chative-fintech-support/channel/server"
	whatsappx "github.com/tanpawarit/chative-fintech-support/channel/whatsapp"
	backofficex "github.com/tanpawarit/chative-fintech-support/pkg/backoffice"
	configx "github.com/tanpawarit/chative-fintech-support/pkg/config"
	databasex "github.com/tanpawarit/chative-fintech-support/pkg/database"
	evolutionx "github.com/tanpawarit/chative-fintech-support/pkg/evolution"
	knowledgex "github.com/tanpawarit/chative-fintech-support/pkg/knowledge"
	_ "github.com/tanpawarit/chative-fintech-support/pkg/logger/autoload"
	openaicompatx "github.com/tanpawarit/chative-fintech-support/pkg/openaicompat"
	"github.com/uptrace/bun"
	"github.com/uptrace/bun/dialect"
)

type AppConfig struct {
	serverx.Config

	TenantFile  string `envconfig:"TENANT_FILE"`
	AdminSecret string `envconfig:"ADMIN_SECRET"`
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx); err != nil {
		log.Fatal().Err(err).Msg("fintech support stopped")
	}
	log.Info().Msg("fintech support stopped")
}

func run(ctx context.Context) error {
	appCfg := configx.MustNew[AppConfig]("")
	llmCfg := configx.MustNew[llmx.Config]("LLM")
	dbCfg := configx.MustNew[databasex.Config]("DATABASE")
	knowledgeCfg := configx.MustNew[knowledgex.Config]("KNOWLEDGE")
	evolutionCfg := configx.MustNew[evolutionx.Config]("EVOLUTION")
	backofficeCfg := configx.MustNew[backofficex.Config]("BACKOFFICE")
	mediaCfg := configx.MustNew[mediax.Config]("MEDIA")

	tenant, err := tenantx.Load(appCfg.TenantFile)
	if err != nil {
		return fmt.Errorf("load tenant: %w", err)
	}
	log.Info().Str("tenant", tenant.ID).Str("name", tenant.Name).Msg("tenant loaded")

	db, err := openDatabase(ctx, *dbCfg)
	if err != nil {
		return err
	}
	if db != nil {
		defer func() {
			if err := db.Close(); err != nil {
				log.Warn().Err(err).Msg("close database")
			}
		}()
	}

	memory, err := newMemory(ctx, db)
	if err != nil {
		return err
	}

	sdk := openaicompatx.NewClient(llmCfg.Client())
	knowledge, err := newKnowledge(ctx, db, sdk, *knowledgeCfg)
	if err != nil {
		return err
	}

	deps := toolx.Deps{Tenant: tenant, Documents: toolx.NewKnowledgeSearcher(knowledge)}
	if backofficeCfg.Configured() {
		client, err := backofficex.NewClient(*backofficeCfg)
		if err != nil {
			return fmt.Errorf("backoffice client: %w", err)
		}
		remote := toolx.NewRemoteBackend(client)
		deps.Ledger, deps.KYC, deps.Disputes, deps.CRM = remote, remote, remote, remote
		log.Info().Msg("tool backends served by backoffice api")
	}
	tools, err := toolx.NewCatalog(ctx, deps)
	if err != nil {
		return fmt.Errorf("tool catalog: %w", err)
	}

	var (
		chatTurns chatx.Streamer
		waTurns   whatsappx.Turns
	)
	if err := llmCfg.Validate(); err != nil {
		log.Warn().Err(err).Msg("llm not configured, chat and whatsapp endpoints answer 503")
	} else {
		orch, err := newOrchestrator(ctx, tenant, tools, memory, *llmCfg, newNormalizer(sdk, *mediaCfg))
		if err != nil {
			return err
		}
		chatTurns, waTurns = orch, orch
	}

	var gateway whatsappx.Gateway
	if evolutionCfg.Configured() {
		client, err := evolutionx.NewClient(*evolutionCfg)
		if err != nil {
			return fmt.Errorf("evolution client: %w", err)
		}
		gateway = client
	} else {
		log.Warn().Msg("evolution api not configured, whatsapp replies disabled")
	}

	engine := serverx.New(appCfg.Config,
		chatx.NewHandler(chatTurns),
		whatsappx.NewHandler(whatsappx.Options{Turns: waTurns, Gateway: gateway, Secret: evolutionCfg.WebhookSecret}),
		adminx.NewHandler(knowledge, memory, appCfg.AdminSecret),
	)
	return serverx.Start(ctx, appCfg.Config, engine)
}

// openDatabase returns nil when no DATABASE_URL is set.
func openDatabase(ctx context.Context, cfg databasex.Config) (*bun.DB, error) {
	if !cfg.Configured() {
		log.Warn().Msg("DATABASE_URL not set, conversations are kept in memory only")
		return nil, nil
	}
	db, err := databasex.Open(cfg)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}
	if err := databasex.Ping(ctx, db); err != nil {
		_ = db.Close()
		return nil, err
	}
	return db, nil
}

func newMemory(ctx context.Context, db *bun.DB) (contractx.MemoryStore, error) {
	if db == nil {
		return memoryx.NewInMemoryStore(), nil
	}
	store, err := memoryx.NewBunStore(ctx, db)
	if err != nil {
		return nil, fmt.Errorf("memory store: %w", err)
	}
	return store, nil
}

// newKnowledge indexes into pgvector on Postgres and into process memory
// otherwise. Without an embedding client ingestion and search report
// ErrNotConfigured.
func newKnowledge(ctx context.Context, db *bun.DB, sdk *openaisdk.Client, cfg knowledgex.Config) (*knowledgex.Service, error) {
	var store knowledgex.Store = knowledgex.NewMemoryIndex()
	if db != nil && db.Dialect().Name() == dialect.PG {
		pg, err := knowledgex.NewPGVectorStore(ctx, db, cfg.Dimensions)
		if err != nil {
			return nil, fmt.Errorf("document store: %w", err)
		}
		store = pg
	} else {
		log.Warn().Msg("no postgres database, knowledge base is kept in memory only")
	}

	var embedder knowledgex.Embedder
	if sdk != nil {
		e, err := knowledgex.NewOpenAIEmbedder(sdk, cfg)
		if err != nil {
			return nil, fmt.Errorf("embedder: %w", err)
		}
		embedder = e
	}
	return knowledgex.NewService(knowledgex.NewFetcher(cfg), embedder, store, cfg), nil
}

func newNormalizer(sdk *openaisdk.Client, cfg mediax.Config) *mediax.Normalizer {
	var (
		transcriber mediax.Transcriber
		describer   mediax.Describer
	)
	if sdk != nil {
		if t, err := mediax.NewOpenAITranscriber(sdk, cfg); err == nil {
			transcriber = t
		}
		if d, err := mediax.NewOpenAIDescriber(sdk, cfg); err == nil {
			describer = d
		}
	}
	return mediax.NewNormalizer(transcriber, describer, cfg)
}

func newOrchestrator(
	ctx context.Context,
	tenant tenantx.Config,
	tools *toolx.Registry,
	memory contractx.MemoryStore,
	llmCfg llmx.Config,
	media contractx.MediaNormalizer,
) (*orchestratorx.Orchestrator, error) {
	registry, err := specialistx.NewRegistry(ctx, specialistx.Options{
		Tenant:        tenant,
		Tools:         tools,
		Memory:        memory,
		Models:        specialistx.LLMModels(llmCfg),
		MaxToolRounds: llmCfg.MaxToolRounds,
	})
	if err != nil {
		return nil, fmt.Errorf("agent registry: %w", err)
	}

	orch, err := orchestratorx.New(registry, memory, media, guardx.NewRefundGuard())
	if err != nil {
		return nil, fmt.Errorf("orchestrator: %w", err)
	}
	return orch, nil
}
