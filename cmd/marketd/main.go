package main

import (
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"strings"

	"dgmarket/config"
	"dgmarket/core"
	"dgmarket/core/state"
	"dgmarket/crypto"
	"dgmarket/index"
	"dgmarket/native/marketplace"
	"dgmarket/observability/logging"
	"dgmarket/rpc"
	"dgmarket/storage"
)

func main() {
	configFile := flag.String("config", "./config.toml", "Path to the configuration file")
	flag.Parse()

	env := strings.TrimSpace(os.Getenv("DGM_ENV"))
	logger := logging.Setup("marketd", env)

	cfg, err := config.Load(*configFile)
	if err != nil {
		panic(fmt.Sprintf("Failed to load config: %v", err))
	}

	db, err := storage.NewLevelDB(cfg.DataDir)
	if err != nil {
		panic(fmt.Sprintf("Failed to open database: %v", err))
	}
	defer db.Close()

	manager := state.NewManager(db)
	node := core.NewNode(manager)

	if err := bootstrap(node, cfg); err != nil {
		logger.Error("Failed to bootstrap market state", slog.Any("error", err))
		os.Exit(1)
	}

	activity, err := index.NewStore(cfg.ActivityIndexPath)
	if err != nil {
		logger.Error("Failed to open activity index", slog.Any("error", err))
		os.Exit(1)
	}
	defer activity.Close()
	node.SetEmitter(activity)

	server := rpc.NewServer(node, activity, logger)
	logger.Info("RPC server listening", slog.String("address", cfg.RPCAddress))
	if err := server.Start(cfg.RPCAddress); err != nil {
		logger.Error("RPC server stopped", slog.Any("error", err))
		os.Exit(1)
	}
}

// bootstrap registers configured tokens and collections and seeds the market
// parameters. Every step is idempotent so restarts reuse the stored state.
func bootstrap(node *core.Node, cfg *config.Config) error {
	for _, token := range cfg.Tokens {
		authority, err := crypto.DecodeAddress(token.MintAuthority)
		if err != nil {
			return fmt.Errorf("token %s: %w", token.Symbol, err)
		}
		meta := &state.TokenMetadata{
			Symbol:        token.Symbol,
			Name:          token.Name,
			Decimals:      token.Decimals,
			MintAuthority: authority.Raw(),
		}
		if err := node.RegisterToken(meta); err != nil && !errors.Is(err, state.ErrTokenExists) {
			return fmt.Errorf("token %s: %w", token.Symbol, err)
		}
	}
	for _, collection := range cfg.Collections {
		authority, err := crypto.DecodeAddress(collection.MintAuthority)
		if err != nil {
			return fmt.Errorf("collection %s: %w", collection.Symbol, err)
		}
		meta := &state.CollectionMetadata{
			Symbol:        collection.Symbol,
			Name:          collection.Name,
			MintAuthority: authority.Raw(),
		}
		if err := node.RegisterCollection(meta); err != nil && !errors.Is(err, state.ErrCollectionExists) {
			return fmt.Errorf("collection %s: %w", collection.Symbol, err)
		}
	}

	owner, err := crypto.DecodeAddress(cfg.Owner)
	if err != nil {
		return fmt.Errorf("owner: %w", err)
	}
	feeOwner, err := crypto.DecodeAddress(cfg.FeeOwner)
	if err != nil {
		return fmt.Errorf("fee owner: %w", err)
	}
	params := &marketplace.Params{
		AcceptedToken: strings.ToUpper(strings.TrimSpace(cfg.AcceptedToken)),
		FeeOwner:      feeOwner.Raw(),
		Fee:           cfg.Fee,
		Owner:         owner.Raw(),
	}
	return node.InitParams(params)
}
