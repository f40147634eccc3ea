package main

import (
	"fmt"
	"sync"

	"ecodesk/internal/config"
	"ecodesk/internal/embedding"
	"ecodesk/internal/guard"
	"ecodesk/internal/notify"
	"ecodesk/internal/perception"
	"ecodesk/internal/responder"
	"ecodesk/internal/retrieval"
	"ecodesk/internal/store"
	"ecodesk/internal/triage"
	"ecodesk/internal/types"
)

// runtime holds the fully wired message pipeline for one process.
type runtime struct {
	cfg        *config.Config
	client     *perception.GeminiClient
	engine     embedding.EmbeddingEngine
	dispatcher *triage.Dispatcher

	storeOnce sync.Once
	knowledge *store.KnowledgeStore
	storeErr  error
}

// newRuntime wires the dispatcher, responders, guardrails, retrieval tools
// and notification channel from the loaded configuration. The knowledge
// store is opened lazily on first retrieval so a missing database does not
// block startup.
func newRuntime(cfg *config.Config) (*runtime, error) {
	if cfg.LLM.APIKey == "" {
		return nil, fmt.Errorf("no API key configured: set GEMINI_API_KEY or llm.api_key")
	}

	client := perception.NewGeminiClientWithConfig(perception.GeminiConfig{
		APIKey:  cfg.LLM.APIKey,
		BaseURL: cfg.LLM.BaseURL,
		Model:   cfg.LLM.Model,
		Timeout: cfg.GetGenerateTimeout(),
	})

	engine, err := newEmbeddingEngine(cfg)
	if err != nil {
		return nil, fmt.Errorf("failed to create embedding engine: %w", err)
	}

	rt := &runtime{
		cfg:    cfg,
		client: client,
		engine: engine,
	}

	global := guard.NewGlobalEvaluator(client, cfg.GetGuardTimeout())
	productGuards := []*guard.Evaluator{global, guard.NewProductEvaluator(client, cfg.GetGuardTimeout())}
	supportGuards := []*guard.Evaluator{global, guard.NewSupportEvaluator(client, cfg.GetGuardTimeout())}

	opts := []responder.Option{
		responder.WithEchoReason(cfg.Guard.EchoReason),
		responder.WithTimeout(cfg.GetGenerateTimeout()),
	}
	product := responder.NewProduct(rt.toolFor("product"), productGuards, client, opts...)
	support := responder.NewSupport(rt.toolFor("support"), supportGuards, client, opts...)

	notifier := notify.NewPushover(cfg.Notify.PushoverToken, cfg.Notify.PushoverUser, cfg.GetNotifyTimeout())
	notification := responder.NewNotification(notifier, cfg.Guard.NameDenylist, nil)

	rt.dispatcher = triage.NewDispatcher(client, map[string]triage.DomainHandler{
		product.DomainID(): product,
		support.DomainID(): support,
	}, notification, cfg.GetClassifyTimeout())

	return rt, nil
}

// newEmbeddingEngine builds the query-side embedding engine from config.
// The ingest path derives its document-side variant from the same settings.
func newEmbeddingEngine(cfg *config.Config) (embedding.EmbeddingEngine, error) {
	return embedding.NewEngine(embedding.Config{
		Provider:       cfg.Embedding.Provider,
		OllamaEndpoint: cfg.Embedding.OllamaEndpoint,
		OllamaModel:    cfg.Embedding.OllamaModel,
		GenAIAPIKey:    cfg.Embedding.GenAIAPIKey,
		GenAIModel:     cfg.Embedding.GenAIModel,
		TaskType:       "RETRIEVAL_QUERY",
	})
}

// toolFor returns a lazy constructor for the collection's retrieval tool.
// Both domain tools share one knowledge store handle.
func (rt *runtime) toolFor(collection string) func() (responder.RetrievalTool, error) {
	return func() (responder.RetrievalTool, error) {
		ks, err := rt.openStore()
		if err != nil {
			return nil, fmt.Errorf("knowledge store unavailable: %w", types.ErrStoreUnavailable)
		}
		return retrieval.NewTool(collection, rt.engine, ks, rt.cfg.Store.TopK, rt.cfg.GetQueryTimeout()), nil
	}
}

func (rt *runtime) openStore() (*store.KnowledgeStore, error) {
	rt.storeOnce.Do(func() {
		rt.knowledge, rt.storeErr = store.NewKnowledgeStore(rt.cfg.Store.DatabasePath, rt.engine.Dimensions())
	})
	return rt.knowledge, rt.storeErr
}

func (rt *runtime) Close() {
	if rt.knowledge != nil {
		_ = rt.knowledge.Close()
	}
}
