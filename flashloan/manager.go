package flashloan

import (
	"fmt"
	"sync"

	"github.com/michaelpento.lv/arbpipeline/types"
	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"
)

// Manager holds loan providers in configured priority order.
type Manager struct {
	mu        sync.RWMutex
	providers []Provider
	logger    *zap.Logger

	selections *prometheus.CounterVec
}

// NewManager creates a manager over providers, highest priority first.
// Selection counters are registered on reg when it is non-nil.
func NewManager(providers []Provider, reg prometheus.Registerer, logger *zap.Logger) (*Manager, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	m := &Manager{
		providers: append([]Provider(nil), providers...),
		logger:    logger,
		selections: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "flashloan_provider_selections_total",
			Help: "Number of times each provider was selected",
		}, []string{"provider"}),
	}
	if reg != nil {
		if err := reg.Register(m.selections); err != nil {
			return nil, fmt.Errorf("failed to register flashloan metrics: %w", err)
		}
	}
	return m, nil
}

// AddProvider appends a provider at the lowest priority.
func (m *Manager) AddProvider(provider Provider) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.providers = append(m.providers, provider)
}

// Select returns the provider to borrow from. Without dynamic selection
// criteria the first configured provider is the default.
func (m *Manager) Select(opp types.Opportunity) (Provider, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	if len(m.providers) == 0 {
		return nil, fmt.Errorf("no providers available")
	}

	provider := m.providers[0]
	m.selections.WithLabelValues(provider.Name()).Inc()
	m.logger.Debug("Selected loan provider",
		zap.String("provider", provider.Name()),
		zap.String("opportunity", opp.ID),
		zap.String("fee", provider.Fee(opp.InputAmount).String()))
	return provider, nil
}

// Providers returns the provider names in priority order.
func (m *Manager) Providers() []string {
	m.mu.RLock()
	defer m.mu.RUnlock()
	names := make([]string, len(m.providers))
	for i, p := range m.providers {
		names[i] = p.Name()
	}
	return names
}
