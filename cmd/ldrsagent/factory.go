package main

import (
	"fmt"
	"os"

	"github.com/anthropics/anthropic-sdk-go"

	"github.com/Idosegev23/ldrsagent/internal/api"
	"github.com/Idosegev23/ldrsagent/internal/capability"
	"github.com/Idosegev23/ldrsagent/internal/config"
	"github.com/Idosegev23/ldrsagent/internal/knowledge"
	"github.com/Idosegev23/ldrsagent/internal/orchestrator"
	"github.com/Idosegev23/ldrsagent/internal/quality"
	"github.com/Idosegev23/ldrsagent/internal/routing"
	"github.com/Idosegev23/ldrsagent/internal/state"
)

// openStore opens (and migrates) the job store named by the config.
func openStore(cfg *config.Config) (*state.DB, error) {
	var db *state.DB
	var err error
	if cfg.DB.Path != "" {
		db, err = state.Open(cfg.DB.Path)
	} else {
		db, err = state.OpenDefault()
	}
	if err != nil {
		return nil, fmt.Errorf("open job store: %w", err)
	}
	if err := db.Migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("migrate job store: %w", err)
	}
	return db, nil
}

// newAPIClient builds the Anthropic client, or nil when no credentials are
// configured and Bedrock is off.
func newAPIClient(cfg *config.Config) (*api.Client, error) {
	if cfg.Anthropic.APIKey == "" && os.Getenv("ANTHROPIC_API_KEY") == "" && !cfg.Anthropic.UseAWSBedrock {
		return nil, nil
	}
	return api.NewClient(api.ClientConfig{
		Model:         anthropic.Model(cfg.Anthropic.Model),
		APIKey:        cfg.Anthropic.APIKey,
		UseAWSBedrock: cfg.Anthropic.UseAWSBedrock,
		AWSRegion:     cfg.Anthropic.AWSRegion,
		AWSProfile:    cfg.Anthropic.AWSProfile,
	})
}

// newPlanner loads routing rules from the configured path, falling back to a
// built-in rule set that routes everything to the generic responder.
func newPlanner(cfg *config.Config) (*routing.Planner, error) {
	if cfg.Routing.RulesPath != "" {
		planner, err := routing.NewPlanner(cfg.Routing.RulesPath)
		if err != nil {
			return nil, fmt.Errorf("load routing rules: %w", err)
		}
		return planner, nil
	}
	return routing.NewPlannerFromRules(defaultRules(), &routing.Route{CapabilityID: "respond"}), nil
}

// defaultRules is the built-in routing table used when no rules file is
// configured. Every intent lands on the generic responder; the keyword lists
// back the offline classifier.
func defaultRules() []routing.Rule {
	return []routing.Rule{
		{
			Name:     "summarize",
			Keywords: []string{"summarize", "summary", "recap"},
			Route:    routing.Route{CapabilityID: "respond", KnowledgeQuery: "{input}"},
		},
		{
			Name:     "draft_email",
			Keywords: []string{"email", "reply", "write to"},
			Route:    routing.Route{CapabilityID: "respond", KnowledgeQuery: "{input}", Integrations: []string{"send_email"}},
		},
		{
			Name:     "schedule",
			Keywords: []string{"schedule", "meeting", "calendar"},
			Route:    routing.Route{CapabilityID: "respond", KnowledgeQuery: "{input}", Integrations: []string{"create_event"}},
		},
		{
			Name:     "research",
			Keywords: []string{"research", "find", "look up"},
			Route:    routing.Route{CapabilityID: "respond", KnowledgeQuery: "{input}"},
		},
	}
}

// newRetriever builds the knowledge retriever: the YAML fixture when
// configured, otherwise an empty always-ready source.
func newRetriever(cfg *config.Config) (knowledge.Retriever, error) {
	if cfg.Knowledge.FixturePath != "" {
		retriever, err := knowledge.NewFileRetriever(cfg.Knowledge.FixturePath)
		if err != nil {
			return nil, fmt.Errorf("load knowledge fixture: %w", err)
		}
		return retriever, nil
	}
	return &knowledge.Static{}, nil
}

// buildOrchestrator wires the full processing stack from configuration.
func buildOrchestrator(cfg *config.Config, db *state.DB, emitter *orchestrator.EventEmitter, logger *orchestrator.DebugLogger) (*orchestrator.Orchestrator, *routing.Planner, error) {
	planner, err := newPlanner(cfg)
	if err != nil {
		return nil, nil, err
	}
	retriever, err := newRetriever(cfg)
	if err != nil {
		return nil, nil, err
	}
	client, err := newAPIClient(cfg)
	if err != nil {
		return nil, nil, err
	}

	var classifier routing.Classifier
	registry := orchestrator.NewCapabilityRegistry()
	if client != nil {
		classifier = routing.NewLLMClassifier(client, planner)
		registry.Register(capability.NewResponder("respond", client))
	} else {
		classifier = routing.NewKeywordClassifier(planner)
		registry.Register(capability.NewEcho("respond"))
	}
	registry.Register(capability.NewEcho("echo"))

	gate := quality.NewGate(quality.Config{
		Threshold:                cfg.Quality.Threshold,
		LenientOnInternalSuccess: cfg.Quality.LenientOnInternalSuccess,
	})

	orch := orchestrator.New(db, classifier, planner, retriever, registry, gate,
		orchestrator.Config{
			MaxRetries:      cfg.Worker.MaxRetries,
			MinConfidence:   cfg.Routing.MinConfidence,
			ClassifyTimeout: cfg.Timeouts.Classify,
			RetrieveTimeout: cfg.Timeouts.Retrieve,
			ExecuteTimeout:  cfg.Timeouts.Execute,
		},
		orchestrator.WithEmitter(emitter),
		orchestrator.WithLogger(logger),
	)
	return orch, planner, nil
}
