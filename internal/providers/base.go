// Package providers implements the backend integrations behind the
// orchestrator: LLM backends (OpenAI, Anthropic, Gemini, Ollama, mock) and
// scripture-only services (ESV, bible-api.com, BibleGateway).
package providers

import (
	"fmt"
	"strings"
	"sync"

	"github.com/rs/zerolog/log"

	"github.com/versekeeper/versekeeper/pkg/models"
)

// base carries the descriptor and configuration state shared by every provider.
type base struct {
	desc models.ProviderDescriptor

	mu          sync.RWMutex
	cfg         models.ProviderConfig
	initialized bool
	initErr     string
}

func newBase(desc models.ProviderDescriptor) base {
	return base{desc: desc}
}

func (b *base) Descriptor() models.ProviderDescriptor {
	d := b.desc
	d.Available = b.IsInitialized()
	return d
}

func (b *base) IsInitialized() bool {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.initialized
}

func (b *base) InitializationError() string {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.initErr
}

// config returns a copy of the active configuration.
func (b *base) config() models.ProviderConfig {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.cfg
}

// applyConfig resets all state, validates cfg and runs setup. Nothing from a
// previous configuration survives, whatever the outcome.
func (b *base) applyConfig(cfg models.ProviderConfig, setup func(models.ProviderConfig) error) bool {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.cfg = models.ProviderConfig{}
	b.initialized = false
	b.initErr = ""

	if err := b.checkConfig(&cfg); err != nil {
		b.initErr = err.Error()
		log.Warn().Str("provider", b.desc.ID).Str("reason", b.initErr).Msg("Provider not configured")
		return false
	}
	if setup != nil {
		if err := setup(cfg); err != nil {
			b.initErr = err.Error()
			log.Warn().Str("provider", b.desc.ID).Err(err).Msg("Provider setup failed")
			return false
		}
	}

	b.cfg = cfg
	b.initialized = true
	log.Debug().Str("provider", b.desc.ID).Str("model", cfg.Model).Msg("Provider configured")
	return true
}

func (b *base) checkConfig(cfg *models.ProviderConfig) error {
	if !cfg.Enabled {
		return fmt.Errorf("%s: provider disabled", b.desc.ID)
	}
	if cfg.ID == "" {
		cfg.ID = b.desc.ID
	}
	if cfg.ID != b.desc.ID {
		return fmt.Errorf("%s: config is for provider %q", b.desc.ID, cfg.ID)
	}
	if err := cfg.Validate(); err != nil {
		return err
	}
	if b.desc.ServiceType.RequiresCredential() && strings.TrimSpace(cfg.APIKey) == "" {
		return fmt.Errorf("%s: api key is required", b.desc.ID)
	}
	if cfg.Model == "" {
		cfg.Model = b.desc.DefaultModel
	}
	if cfg.Name == "" {
		cfg.Name = b.desc.Name
	}
	cfg.ServiceType = b.desc.ServiceType
	return nil
}
