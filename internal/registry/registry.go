package registry

import (
	"fmt"
	"log/slog"
	"sort"
	"sync"

	"dex_go/internal/domain"
)

// CustomMarketStore persists user-added markets.
type CustomMarketStore interface {
	GetCustomMarkets() ([]domain.CustomMarketRecord, error)
	SaveCustomMarket(m *domain.CustomMarketRecord) error
	DeleteCustomMarket(address string) error
}

// Registry is the merged market catalog. Safe for concurrent use.
type Registry struct {
	mu      sync.RWMutex
	builtin []domain.MarketInfo
	byAddr  map[string]domain.MarketInfo
	customs map[string]domain.CustomMarketInfo // by address
	store   CustomMarketStore
	logger  *slog.Logger
}

// NewRegistry builds the catalog and loads persisted custom markets.
// A nil store yields a registry over the built-in catalog only.
func NewRegistry(store CustomMarketStore, logger *slog.Logger) (*Registry, error) {
	if logger == nil {
		logger = slog.Default()
	}
	r := &Registry{
		builtin: BuiltinMarkets(),
		byAddr:  make(map[string]domain.MarketInfo),
		customs: make(map[string]domain.CustomMarketInfo),
		store:   store,
		logger:  logger.With("module", "registry"),
	}
	for _, m := range r.builtin {
		r.byAddr[m.Address] = m
	}

	if store != nil {
		records, err := store.GetCustomMarkets()
		if err != nil {
			return nil, fmt.Errorf("failed to load custom markets: %w", err)
		}
		for _, rec := range records {
			info := rec.CustomMarketInfo()
			if _, builtin := r.byAddr[info.Address]; builtin {
				r.logger.Warn("custom market shadows built-in entry, ignoring",
					slog.String("address", info.Address))
				continue
			}
			r.customs[info.Address] = info
		}
		r.logger.Info("market catalog loaded",
			slog.Int("builtin", len(r.builtin)),
			slog.Int("custom", len(r.customs)))
	}
	return r, nil
}

// ListMarkets returns all catalog entries, built-in first, then custom
// markets sorted by name. Built-in entries win name collisions: a custom
// market whose name matches a built-in one is listed under its address
// alone and never replaces the built-in entry.
func (r *Registry) ListMarkets() []domain.MarketInfo {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]domain.MarketInfo, 0, len(r.builtin)+len(r.customs))
	out = append(out, r.builtin...)

	customs := make([]domain.MarketInfo, 0, len(r.customs))
	for _, c := range r.customs {
		customs = append(customs, c.MarketInfo())
	}
	sort.Slice(customs, func(i, j int) bool { return customs[i].Name < customs[j].Name })
	return append(out, customs...)
}

// ActiveMarkets returns the non-deprecated entries.
func (r *Registry) ActiveMarkets() []domain.MarketInfo {
	all := r.ListMarkets()
	out := make([]domain.MarketInfo, 0, len(all))
	for _, m := range all {
		if !m.Deprecated {
			out = append(out, m)
		}
	}
	return out
}

// Resolve finds the catalog entry for an address. Custom markets resolve
// with Deprecated always false.
func (r *Registry) Resolve(address string) (domain.MarketInfo, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if m, ok := r.byAddr[address]; ok {
		return m, true
	}
	if c, ok := r.customs[address]; ok {
		return c.MarketInfo(), true
	}
	return domain.MarketInfo{}, false
}

// ResolveByName finds the first catalog entry with the given name,
// preferring built-in entries.
func (r *Registry) ResolveByName(name string) (domain.MarketInfo, bool) {
	for _, m := range r.ListMarkets() {
		if m.Name == name {
			return m, true
		}
	}
	return domain.MarketInfo{}, false
}

// AddCustomMarket validates, persists and registers a user-added market.
func (r *Registry) AddCustomMarket(info domain.CustomMarketInfo) error {
	if info.Address == "" || info.ProgramID == "" || info.Name == "" {
		return fmt.Errorf("custom market needs address, program id and name")
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.byAddr[info.Address]; exists {
		return fmt.Errorf("market %s already listed", info.Address)
	}

	if r.store != nil {
		rec := &domain.CustomMarketRecord{
			Address:    info.Address,
			ProgramID:  info.ProgramID,
			Name:       info.Name,
			BaseLabel:  info.BaseLabel,
			QuoteLabel: info.QuoteLabel,
		}
		if err := r.store.SaveCustomMarket(rec); err != nil {
			return fmt.Errorf("failed to persist custom market: %w", err)
		}
	}
	r.customs[info.Address] = info
	r.logger.Info("custom market added", slog.String("name", info.Name), slog.String("address", info.Address))
	return nil
}

// RemoveCustomMarket deletes a user-added market. Removing an unknown
// address is a no-op.
func (r *Registry) RemoveCustomMarket(address string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.customs[address]; !ok {
		return nil
	}
	if r.store != nil {
		if err := r.store.DeleteCustomMarket(address); err != nil {
			return fmt.Errorf("failed to delete custom market: %w", err)
		}
	}
	delete(r.customs, address)
	return nil
}

// CustomMarkets returns the user-added entries.
func (r *Registry) CustomMarkets() []domain.CustomMarketInfo {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]domain.CustomMarketInfo, 0, len(r.customs))
	for _, c := range r.customs {
		out = append(out, c)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}

// DeprecatedProgramIDs returns the distinct program ids that deprecated
// built-in markets live on, used to sweep for unmigrated open orders.
func (r *Registry) DeprecatedProgramIDs() []string {
	seen := make(map[string]bool)
	var out []string
	for _, m := range r.builtin {
		if m.Deprecated && !seen[m.ProgramID] {
			seen[m.ProgramID] = true
			out = append(out, m.ProgramID)
		}
	}
	return out
}
