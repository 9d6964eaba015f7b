package api

import (
	"crypto/ed25519"
	"fmt"

	"go.uber.org/zap"

	"github.com/davidahmann/gatelog/internal/audit"
	"github.com/davidahmann/gatelog/internal/engine"
	"github.com/davidahmann/gatelog/internal/policy"
)

// GovernService bundles the policy engine and the audit chain behind one
// wiring point for the HTTP handlers.
type GovernService struct {
	Rules      *policy.LoadedRegistry
	Store      audit.Store
	Auditor    *audit.Logger
	Evaluator  *engine.Evaluator
	Remediator *engine.Remediator
	Overrider  *engine.Overrider

	// Signer and PublicKey are optional; without them /v1/checkpoint is
	// unavailable.
	Signer    audit.Signer
	PublicKey ed25519.PublicKey

	Log *zap.Logger
}

type ServiceOptions struct {
	RulesPath           string
	Store               audit.Store
	RedactionMarker     string
	MinJustificationLen int
	Signer              audit.Signer
	PublicKey           ed25519.PublicKey
	Log                 *zap.Logger
}

func NewGovernService(opts ServiceOptions) (*GovernService, error) {
	if opts.RulesPath == "" {
		return nil, fmt.Errorf("missing rules path")
	}
	if opts.Log == nil {
		opts.Log = zap.NewNop()
	}

	loaded, err := policy.LoadManifest(opts.RulesPath)
	if err != nil {
		return nil, fmt.Errorf("load rule manifest: %w", err)
	}

	store := opts.Store
	if store == nil {
		store = audit.NewInMemoryStore()
	}

	loggerOpts := []audit.LoggerOption{audit.WithZap(opts.Log)}
	if opts.RedactionMarker != "" {
		loggerOpts = append(loggerOpts, audit.WithRedactionMarker(opts.RedactionMarker))
	}
	auditor, err := audit.NewLogger(store, loggerOpts...)
	if err != nil {
		return nil, err
	}

	evaluator, err := engine.NewEvaluator(loaded.Registry, auditor, opts.Log)
	if err != nil {
		return nil, err
	}
	remediator, err := engine.NewRemediator(loaded.Registry, auditor, opts.Log)
	if err != nil {
		return nil, err
	}
	overrider, err := engine.NewOverrider(auditor, opts.MinJustificationLen, opts.Log)
	if err != nil {
		return nil, err
	}

	return &GovernService{
		Rules:      &loaded,
		Store:      store,
		Auditor:    auditor,
		Evaluator:  evaluator,
		Remediator: remediator,
		Overrider:  overrider,
		Signer:     opts.Signer,
		PublicKey:  opts.PublicKey,
		Log:        opts.Log,
	}, nil
}
