package registry

import (
	"testing"

	"dex_go/internal/domain"
)

type fakeStore struct {
	records []domain.CustomMarketRecord
	saved   []string
	deleted []string
}

func (f *fakeStore) GetCustomMarkets() ([]domain.CustomMarketRecord, error) {
	return f.records, nil
}

func (f *fakeStore) SaveCustomMarket(m *domain.CustomMarketRecord) error {
	f.saved = append(f.saved, m.Address)
	return nil
}

func (f *fakeStore) DeleteCustomMarket(address string) error {
	f.deleted = append(f.deleted, address)
	return nil
}

func TestBuiltinMarketsCuratedRules(t *testing.T) {
	markets := BuiltinMarkets()

	var foundRenamed bool
	for _, m := range markets {
		if m.Address == excludedAddress {
			t.Errorf("excluded address %s present in catalog", excludedAddress)
		}
		if m.Address == renamedXCopeAddress {
			foundRenamed = true
			if m.Name != "xCOPE/USDC" {
				t.Errorf("renamed listing has name %q, want xCOPE/USDC", m.Name)
			}
		}
	}
	if !foundRenamed {
		t.Error("renamed xCOPE listing missing from catalog")
	}

	// Curated entries win address collisions with the upstream list.
	count := 0
	for _, m := range markets {
		if m.Address == "9wFFyRfZBsuAha4YcuxcXLKwMxJR43S7fPfQLusDBzvT" {
			count++
		}
	}
	if count != 1 {
		t.Errorf("SOL/USDC listed %d times, want 1", count)
	}
}

func TestRegistryResolveAndActive(t *testing.T) {
	r, err := NewRegistry(nil, nil)
	if err != nil {
		t.Fatalf("NewRegistry: %v", err)
	}

	m, ok := r.Resolve("teE55QrL4a4QSfydR9dnHF97jgCfptpuigbb53Lo95g")
	if !ok || m.Name != "RAY/USDT" {
		t.Fatalf("Resolve RAY/USDT failed: %+v ok=%v", m, ok)
	}

	for _, m := range r.ActiveMarkets() {
		if m.Deprecated {
			t.Errorf("deprecated market %s in active list", m.Name)
		}
	}

	if _, ok := r.Resolve("unknown-address"); ok {
		t.Error("Resolve returned ok for unknown address")
	}
}

func TestRegistryCustomMarkets(t *testing.T) {
	store := &fakeStore{}
	r, err := NewRegistry(store, nil)
	if err != nil {
		t.Fatalf("NewRegistry: %v", err)
	}

	custom := domain.CustomMarketInfo{
		Name:      "FOO/USDC",
		Address:   "HRk9CMrpq7Jn9sh7mzxE8CChHG8dneX9p475QKz4Fsfc",
		ProgramID: ProgramIDV3,
		BaseLabel: "FOO",
	}
	if err := r.AddCustomMarket(custom); err != nil {
		t.Fatalf("AddCustomMarket: %v", err)
	}
	if len(store.saved) != 1 {
		t.Errorf("expected 1 persisted record, got %d", len(store.saved))
	}

	// Custom markets are never deprecated.
	m, ok := r.Resolve(custom.Address)
	if !ok {
		t.Fatal("custom market not resolvable")
	}
	if m.Deprecated {
		t.Error("custom market resolved as deprecated")
	}

	// Adding over a built-in address is rejected.
	if err := r.AddCustomMarket(domain.CustomMarketInfo{
		Name:      "DUP/USDC",
		Address:   "9wFFyRfZBsuAha4YcuxcXLKwMxJR43S7fPfQLusDBzvT",
		ProgramID: ProgramIDV3,
	}); err == nil {
		t.Error("expected error adding custom market over built-in address")
	}

	if err := r.RemoveCustomMarket(custom.Address); err != nil {
		t.Fatalf("RemoveCustomMarket: %v", err)
	}
	if _, ok := r.Resolve(custom.Address); ok {
		t.Error("custom market still resolvable after removal")
	}
	// Removing again is a no-op.
	if err := r.RemoveCustomMarket(custom.Address); err != nil {
		t.Errorf("second RemoveCustomMarket: %v", err)
	}
}

func TestDeprecatedProgramIDs(t *testing.T) {
	r, _ := NewRegistry(nil, nil)
	ids := r.DeprecatedProgramIDs()
	if len(ids) == 0 {
		t.Fatal("expected at least one deprecated program id")
	}
	seen := make(map[string]bool)
	for _, id := range ids {
		if seen[id] {
			t.Errorf("duplicate program id %s", id)
		}
		seen[id] = true
	}
	if !seen[ProgramIDV2] {
		t.Errorf("expected retired generation %s in %v", ProgramIDV2, ids)
	}
}

func TestCoinFromMarketName(t *testing.T) {
	if got := CoinFromMarketName("RAY/USDT", false); got != "RAY" {
		t.Errorf("base = %q, want RAY", got)
	}
	if got := CoinFromMarketName("RAY/USDT", true); got != "USDT" {
		t.Errorf("quote = %q, want USDT", got)
	}
	if got := CoinFromMarketName("garbage", false); got != "UNKNOWN" {
		t.Errorf("malformed name = %q, want UNKNOWN", got)
	}
}
