package chain

import "testing"

func TestRegistryDefaultsIncludeWellKnownChains(t *testing.T) {
	r := NewRegistry()

	cases := []struct {
		chainID  int64
		isZkSync bool
	}{
		{1, false},
		{137, false},
		{8453, false},
		{11155111, false},
		{324, true},
	}
	for _, tc := range cases {
		cfg, ok := r.Config(tc.chainID)
		if !ok {
			t.Fatalf("chain %d missing from defaults", tc.chainID)
		}
		if cfg.IsZkSync != tc.isZkSync {
			t.Fatalf("chain %d IsZkSync = %v, want %v", tc.chainID, cfg.IsZkSync, tc.isZkSync)
		}
	}
}

func TestRegisterOverridesAndExtends(t *testing.T) {
	r := NewRegistry()

	r.Register(Config{Name: "Local Anvil", ChainID: 31337, RPCURL: "http://localhost:8545", CurrencySymbol: "ETH", IsTestnet: true})
	cfg, ok := r.Config(31337)
	if !ok || cfg.Name != "Local Anvil" {
		t.Fatalf("registered chain not found: %+v (ok=%v)", cfg, ok)
	}

	r.Register(Config{Name: "Mainnet via own node", ChainID: 1, RPCURL: "http://localhost:8545", CurrencySymbol: "ETH"})
	cfg, _ = r.Config(1)
	if cfg.RPCURL != "http://localhost:8545" {
		t.Fatalf("override not applied: %+v", cfg)
	}
}

func TestClientRejectsUnregisteredChain(t *testing.T) {
	r := NewRegistry()
	if _, err := r.Client(999999); err == nil {
		t.Fatal("expected error for unregistered chain id")
	}
}
