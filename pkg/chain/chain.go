// Package chain generalizes the wallet core's notion of "which network am I
// talking to" into a small registry of named chains plus a cache of
// ethclient.Client connections, used by the UserOperation builder and the
// smart wallet facade for eth_getCode/eth_call/gas-price lookups.
package chain

import (
	"context"
	"fmt"
	"math/big"
	"sync"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/ethclient"

	"wallet-core/pkg/walleterr"
)

// Config describes one network the SDK can target.
type Config struct {
	Name           string
	ChainID        int64
	RPCURL         string
	CurrencySymbol string
	ExplorerURL    string
	IsTestnet      bool
	// IsZkSync marks chains that use the native EIP-712 account
	// abstraction path instead of ERC-4337 UserOperations.
	IsZkSync bool
}

// defaultChains is the starting set of well-known networks, kept as a
// registry default rather than a closed enum so callers can register
// additional chains.
var defaultChains = []Config{
	{Name: "Ethereum Mainnet", ChainID: 1, RPCURL: "https://eth.llamarpc.com", CurrencySymbol: "ETH", ExplorerURL: "https://etherscan.io"},
	{Name: "Polygon Mainnet", ChainID: 137, RPCURL: "https://polygon-rpc.com", CurrencySymbol: "MATIC", ExplorerURL: "https://polygonscan.com"},
	{Name: "Arbitrum One", ChainID: 42161, RPCURL: "https://arb1.arbitrum.io/rpc", CurrencySymbol: "ETH", ExplorerURL: "https://arbiscan.io"},
	{Name: "Optimism", ChainID: 10, RPCURL: "https://mainnet.optimism.io", CurrencySymbol: "ETH", ExplorerURL: "https://optimistic.etherscan.io"},
	{Name: "Base", ChainID: 8453, RPCURL: "https://mainnet.base.org", CurrencySymbol: "ETH", ExplorerURL: "https://basescan.org"},
	{Name: "Sepolia Testnet", ChainID: 11155111, RPCURL: "https://ethereum-sepolia-rpc.publicnode.com", CurrencySymbol: "ETH", ExplorerURL: "https://sepolia.etherscan.io", IsTestnet: true},
	{Name: "HashKey Chain Testnet", ChainID: 133, RPCURL: "https://hashkeychain-testnet.alt.technology", CurrencySymbol: "HSK", ExplorerURL: "https://testnet-explorer.hsk.xyz", IsTestnet: true},
	{Name: "zkSync Era", ChainID: 324, RPCURL: "https://mainnet.era.zksync.io", CurrencySymbol: "ETH", ExplorerURL: "https://explorer.zksync.io", IsZkSync: true},
}

// Registry holds the configured chains and lazily caches one ethclient per
// chain id.
type Registry struct {
	mu      sync.Mutex
	configs map[int64]Config
	clients map[int64]*ethclient.Client
}

// NewRegistry builds a Registry pre-populated with the SDK's default chain
// list. Callers may Register additional chains or override defaults.
func NewRegistry() *Registry {
	r := &Registry{
		configs: make(map[int64]Config, len(defaultChains)),
		clients: make(map[int64]*ethclient.Client),
	}
	for _, c := range defaultChains {
		r.configs[c.ChainID] = c
	}
	return r
}

// Register adds or overrides a chain configuration.
func (r *Registry) Register(cfg Config) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.configs[cfg.ChainID] = cfg
}

// Config returns the registered configuration for chainID.
func (r *Registry) Config(chainID int64) (Config, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	cfg, ok := r.configs[chainID]
	return cfg, ok
}

// Client returns a cached *ethclient.Client for chainID, dialing it lazily
// on first use.
func (r *Registry) Client(chainID int64) (*ethclient.Client, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if c, ok := r.clients[chainID]; ok {
		return c, nil
	}
	cfg, ok := r.configs[chainID]
	if !ok {
		return nil, walleterr.New("chain.Client", walleterr.KindServerProtocol, fmt.Errorf("unregistered chain id %d", chainID))
	}
	client, err := ethclient.Dial(cfg.RPCURL)
	if err != nil {
		return nil, walleterr.New("chain.Client", walleterr.KindBundlerError, fmt.Errorf("dial %s: %w", cfg.RPCURL, err))
	}
	r.clients[chainID] = client
	return client, nil
}

// IsContractDeployed reports whether an address already has code on chain,
// the signal deciding whether a UserOp needs initCode/factoryData.
func (r *Registry) IsContractDeployed(ctx context.Context, chainID int64, addr common.Address) (bool, error) {
	client, err := r.Client(chainID)
	if err != nil {
		return false, err
	}
	code, err := client.CodeAt(ctx, addr, nil)
	if err != nil {
		return false, walleterr.New("chain.IsContractDeployed", walleterr.KindBundlerError, err)
	}
	return len(code) > 0, nil
}

// SuggestGasFees returns a (maxFeePerGas, maxPriorityFeePerGas) pair derived
// from the chain's current suggested gas price, used as a fallback when the
// bundler does not expose its own gas-price oracle method.
func (r *Registry) SuggestGasFees(ctx context.Context, chainID int64) (maxFeePerGas, maxPriorityFeePerGas *big.Int, err error) {
	client, err := r.Client(chainID)
	if err != nil {
		return nil, nil, err
	}
	tip, err := client.SuggestGasTipCap(ctx)
	if err != nil {
		return nil, nil, walleterr.New("chain.SuggestGasFees", walleterr.KindBundlerError, err)
	}
	price, err := client.SuggestGasPrice(ctx)
	if err != nil {
		return nil, nil, walleterr.New("chain.SuggestGasFees", walleterr.KindBundlerError, err)
	}
	return price, tip, nil
}
