// useropctl builds, signs, and submits ERC-4337 UserOperations against a
// configured bundler, using a raw dev key (PRIVATE_KEY) as the controlling
// signer; embedded-wallet sessions are not supported. Point BUNDLER_URL at a demoserver's /rpc
// endpoint for a local-dev dry run.
package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"os"
	"strconv"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/joho/godotenv"

	"wallet-core/pkg/chain"
	"wallet-core/pkg/erc4337"
	"wallet-core/pkg/signer"
	"wallet-core/pkg/smartwallet"
)

func main() {
	if err := godotenv.Load(); err != nil {
		log.Println("⚠️  No .env file found, using system environment variables")
	}

	if len(os.Args) < 2 {
		usage()
		os.Exit(2)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Minute)
	defer cancel()

	var err error
	switch os.Args[1] {
	case "send":
		err = runSend(ctx, os.Args[2:])
	case "deploy":
		err = runDeploy(ctx, os.Args[2:])
	case "signers":
		err = runSigners(ctx, os.Args[2:])
	default:
		usage()
		os.Exit(2)
	}
	if err != nil {
		log.Fatalf("❌ %v", err)
	}
}

func usage() {
	fmt.Fprintln(os.Stderr, `usage: useropctl <command> [flags]

commands:
  send     build, sign, and submit a UserOp calling --to with --data
  deploy   force counterfactual deployment via a zero-value self-call
  signers  list the account's active session keys and admins

environment:
  BUNDLER_URL   bundler/paymaster JSON-RPC endpoint (required)
  RPC_URL       chain RPC endpoint; registers/overrides --chain-id's entry
  PRIVATE_KEY   hex dev key controlling the smart account (required)`)
}

type walletEnv struct {
	wallet *smartwallet.SmartWallet
}

func buildWallet(fs *flag.FlagSet, args []string) (*walletEnv, error) {
	chainID := fs.Int64("chain-id", 11155111, "target chain id")
	account := fs.String("account", "", "smart account address")
	factory := fs.String("factory", "", "account factory address (needed until deployed)")
	entryPoint := fs.String("entrypoint", erc4337.EntryPointAddressV06.Hex(), "EntryPoint address; selects v0.6 or v0.7 semantics")
	zk := fs.Bool("zksync", false, "use the native ZK-Sync transaction path")
	if err := fs.Parse(args); err != nil {
		return nil, err
	}
	if *account == "" {
		return nil, fmt.Errorf("--account is required")
	}

	bundlerURL := os.Getenv("BUNDLER_URL")
	if bundlerURL == "" {
		return nil, fmt.Errorf("BUNDLER_URL is not set")
	}

	keyHex := os.Getenv("PRIVATE_KEY")
	if keyHex == "" {
		return nil, fmt.Errorf("PRIVATE_KEY is not set")
	}
	keyBytes, err := hexutil.Decode(keyHex)
	if err != nil {
		return nil, fmt.Errorf("malformed PRIVATE_KEY: %w", err)
	}
	personal, err := signer.FromPrivateKeyBytes(keyBytes)
	if err != nil {
		return nil, err
	}

	chains := chain.NewRegistry()
	if rpcURL := os.Getenv("RPC_URL"); rpcURL != "" {
		cfg, _ := chains.Config(*chainID)
		cfg.ChainID = *chainID
		cfg.RPCURL = rpcURL
		if cfg.Name == "" {
			cfg.Name = "custom chain " + strconv.FormatInt(*chainID, 10)
		}
		chains.Register(cfg)
	}

	entryPointAddr := common.HexToAddress(*entryPoint)
	version, ok := erc4337.VersionForEntryPoint(entryPointAddr)
	if !ok {
		return nil, erc4337.ErrUnsupportedVersion
	}

	bundler := erc4337.NewJSONRPCBundler(bundlerURL, nil)
	builder := erc4337.NewBuilder(chains, bundler)
	wallet := smartwallet.New(smartwallet.Config{
		ChainID:       *chainID,
		Account:       common.HexToAddress(*account),
		Owner:         personal.Address(),
		FactoryAddr:   common.HexToAddress(*factory),
		EntryPoint:    entryPointAddr,
		EntryPointVer: version,
		IsZkSync:      *zk,
	}, personal, chains, builder, bundler)

	return &walletEnv{wallet: wallet}, nil
}

func runSend(ctx context.Context, args []string) error {
	fs := flag.NewFlagSet("send", flag.ExitOnError)
	to := fs.String("to", "", "call target address")
	data := fs.String("data", "0x", "hex calldata for the target")
	env, err := buildWallet(fs, args)
	if err != nil {
		return err
	}
	if *to == "" {
		return fmt.Errorf("--to is required")
	}
	callData, err := hexutil.Decode(*data)
	if err != nil {
		return fmt.Errorf("malformed --data: %w", err)
	}

	txHash, err := env.wallet.SendTransaction(ctx, common.HexToAddress(*to), callData)
	if err != nil {
		return err
	}
	fmt.Printf("Transaction mined: %s\n", txHash)
	return nil
}

func runDeploy(ctx context.Context, args []string) error {
	fs := flag.NewFlagSet("deploy", flag.ExitOnError)
	env, err := buildWallet(fs, args)
	if err != nil {
		return err
	}

	deployed, err := env.wallet.IsDeployed(ctx)
	if err != nil {
		return err
	}
	if deployed {
		fmt.Println("Account already deployed")
		return nil
	}

	txHash, err := env.wallet.ForceDeploy(ctx)
	if err != nil {
		return err
	}
	fmt.Printf("Deployment mined: %s\n", txHash)
	return nil
}

func runSigners(ctx context.Context, args []string) error {
	fs := flag.NewFlagSet("signers", flag.ExitOnError)
	env, err := buildWallet(fs, args)
	if err != nil {
		return err
	}

	signers, err := env.wallet.GetAllActiveSigners(ctx)
	if err != nil {
		return err
	}
	if len(signers) == 0 {
		fmt.Println("No active signers")
		return nil
	}
	for _, s := range signers {
		fmt.Printf("%s  targets=%d  window=[%d, %d]\n", s.Signer.Hex(), len(s.ApprovedTargets), s.StartTimestamp, s.EndTimestamp)
	}
	return nil
}
