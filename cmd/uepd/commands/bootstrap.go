package commands

import (
	"context"
	"fmt"
	"os"
	"strings"

	"github.com/uep-dev/uepd/internal/config"
	"github.com/uep-dev/uepd/internal/core"
	"github.com/uep-dev/uepd/internal/coretypes"
	"github.com/uep-dev/uepd/internal/modules"
	"github.com/uep-dev/uepd/internal/modules/consoleio"
	"github.com/uep-dev/uepd/internal/modules/llmprovider"
	"github.com/uep-dev/uepd/internal/modules/storagemem"
	"github.com/uep-dev/uepd/internal/provider"
	"github.com/uep-dev/uepd/internal/segmenter"
	"github.com/uep-dev/uepd/internal/storage"
)

// buildCore loads the merged config for workDir, initializes the provider
// registry, registers the capability modules uepd ships by default, and
// returns a wired, unstarted Core along with the resolved data paths
// (the caller owns Start/Stop).
func buildCore(ctx context.Context, workDir string) (*core.Core, *config.Paths, error) {
	cfg, err := config.Load(workDir)
	if err != nil {
		return nil, nil, fmt.Errorf("loading config: %w", err)
	}

	paths := config.GetPaths()
	if err := paths.EnsurePaths(); err != nil {
		return nil, nil, fmt.Errorf("preparing data directories: %w", err)
	}
	store := storage.New(paths.StoragePath())

	providers, err := provider.InitializeProviders(ctx, cfg)
	if err != nil {
		return nil, nil, fmt.Errorf("initializing providers: %w", err)
	}

	var defaultProviderID, defaultModelID string
	if cfg.Model != "" {
		if providerID, modelID, ok := strings.Cut(cfg.Model, "/"); ok {
			defaultProviderID, defaultModelID = providerID, modelID
		}
	}

	registry := modules.NewRegistry()
	registry.RegisterModule("llm", llmprovider.New(providers, defaultProviderID, defaultModelID), func() (modules.Module, error) {
		return llmprovider.New(providers, defaultProviderID, defaultModelID), nil
	})
	registry.RegisterModule("mem", storagemem.New(store, []string{"memory", "identities"}), func() (modules.Module, error) {
		return storagemem.New(store, []string{"memory", "identities"}), nil
	})
	registry.RegisterModule("tts", &consoleio.TTS{Out: os.Stdout}, func() (modules.Module, error) {
		return &consoleio.TTS{Out: os.Stdout}, nil
	})
	registry.RegisterModule("sys", &consoleio.Sys{}, func() (modules.Module, error) {
		return &consoleio.Sys{}, nil
	})
	registry.RegisterModule("nlp", segmenter.NewKeywordTagger(), func() (modules.Module, error) {
		return segmenter.NewKeywordTagger(), nil
	})

	c, err := core.New(core.Options{
		Store:           store,
		Config:          cfg,
		Registry:        registry,
		DefaultIdentity: coretypes.Identity{IdentityID: "default", MemoryToken: "default"},
	})
	if err != nil {
		return nil, nil, fmt.Errorf("wiring core: %w", err)
	}
	return c, paths, nil
}
