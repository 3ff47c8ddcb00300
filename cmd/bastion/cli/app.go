package cli

import (
	"context"
	"fmt"
	"path/filepath"

	"github.com/majorcontext/bastion/internal/config"
	"github.com/majorcontext/bastion/internal/secretbox"
	"github.com/majorcontext/bastion/internal/setup"
	"github.com/majorcontext/bastion/internal/store"
	"github.com/majorcontext/bastion/internal/vmapi"
)

// app bundles the services commands operate on. Built per invocation, torn
// down when the command returns.
type app struct {
	cfg       *config.Config
	vm        *vmapi.Client
	records   *store.Store
	credCodec *secretbox.Codec
	piiCodec  *secretbox.Codec
	orch      *setup.Orchestrator
}

func newApp(ctx context.Context) (*app, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, err
	}

	credSecret, piiSecret, err := cfg.MasterSecrets(ctx)
	if err != nil {
		return nil, err
	}
	credCodec, err := secretbox.NewFromSecret(credSecret, "credentials")
	if err != nil {
		return nil, err
	}
	piiCodec, err := secretbox.NewFromSecret(piiSecret, "pii")
	if err != nil {
		return nil, err
	}

	vm, err := vmapi.New(cfg.VMAPI.URL, cfg.VMAPI.APIKey)
	if err != nil {
		return nil, fmt.Errorf("control plane not configured: %w", err)
	}

	records, err := store.Open(filepath.Join(cfg.DataDir, "bastion.db"))
	if err != nil {
		return nil, err
	}

	return &app{
		cfg:       cfg,
		vm:        vm,
		records:   records,
		credCodec: credCodec,
		piiCodec:  piiCodec,
		orch:      setup.New(vm, records, credCodec, cfg.VMAPI.Project),
	}, nil
}

func (a *app) close() {
	a.records.Close()
}
