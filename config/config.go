package config

import (
	"encoding/hex"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/BurntSushi/toml"

	"dgmarket/crypto"
)

// TokenConfig bootstraps one payment token on first start.
type TokenConfig struct {
	Symbol        string `toml:"Symbol"`
	Name          string `toml:"Name"`
	Decimals      uint8  `toml:"Decimals"`
	MintAuthority string `toml:"MintAuthority"`
}

// CollectionConfig bootstraps one asset collection on first start.
type CollectionConfig struct {
	Symbol        string `toml:"Symbol"`
	Name          string `toml:"Name"`
	MintAuthority string `toml:"MintAuthority"`
}

type Config struct {
	RPCAddress        string             `toml:"RPCAddress"`
	DataDir           string             `toml:"DataDir"`
	ActivityIndexPath string             `toml:"ActivityIndexPath"`
	OwnerKeyPath      string             `toml:"OwnerKeyPath"`
	Owner             string             `toml:"Owner"`
	FeeOwner          string             `toml:"FeeOwner"`
	Fee               uint32             `toml:"Fee"`
	AcceptedToken     string             `toml:"AcceptedToken"`
	Tokens            []TokenConfig      `toml:"Tokens"`
	Collections       []CollectionConfig `toml:"Collections"`
}

// Load loads the configuration from the given path, creating a default file
// (with a freshly generated owner key) when none exists.
func Load(path string) (*Config, error) {
	cfg := &Config{}
	if _, err := os.Stat(path); os.IsNotExist(err) {
		return createDefault(path)
	}

	if _, err := toml.DecodeFile(path, cfg); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks address encodings and cross-field requirements.
func (c *Config) Validate() error {
	if strings.TrimSpace(c.RPCAddress) == "" {
		return fmt.Errorf("config: RPCAddress required")
	}
	if strings.TrimSpace(c.DataDir) == "" {
		return fmt.Errorf("config: DataDir required")
	}
	if _, err := crypto.DecodeAddress(c.Owner); err != nil {
		return fmt.Errorf("config: invalid Owner: %w", err)
	}
	if _, err := crypto.DecodeAddress(c.FeeOwner); err != nil {
		return fmt.Errorf("config: invalid FeeOwner: %w", err)
	}
	accepted := strings.ToUpper(strings.TrimSpace(c.AcceptedToken))
	if accepted == "" {
		return fmt.Errorf("config: AcceptedToken required")
	}
	found := false
	for _, token := range c.Tokens {
		if strings.ToUpper(strings.TrimSpace(token.Symbol)) == accepted {
			found = true
		}
		if _, err := crypto.DecodeAddress(token.MintAuthority); err != nil {
			return fmt.Errorf("config: invalid MintAuthority for token %s: %w", token.Symbol, err)
		}
	}
	if !found {
		return fmt.Errorf("config: AcceptedToken %s not present in Tokens", accepted)
	}
	for _, collection := range c.Collections {
		if strings.TrimSpace(collection.Symbol) == "" {
			return fmt.Errorf("config: collection symbol required")
		}
		if _, err := crypto.DecodeAddress(collection.MintAuthority); err != nil {
			return fmt.Errorf("config: invalid MintAuthority for collection %s: %w", collection.Symbol, err)
		}
	}
	return nil
}

// createDefault creates and saves a default configuration file.
func createDefault(path string) (*Config, error) {
	key, err := crypto.GeneratePrivateKey()
	if err != nil {
		return nil, err
	}
	owner := key.PubKey().Address().String()

	keyPath := defaultOwnerKeyPath(path)
	if err := os.MkdirAll(filepath.Dir(keyPath), 0o700); err != nil {
		return nil, err
	}
	if err := os.WriteFile(keyPath, []byte(hex.EncodeToString(key.Bytes())), 0o600); err != nil {
		return nil, err
	}

	cfg := &Config{
		RPCAddress:        ":8545",
		DataDir:           "./dgmarket-data",
		ActivityIndexPath: "./dgmarket-data/activity.db",
		OwnerKeyPath:      keyPath,
		Owner:             owner,
		FeeOwner:          owner,
		Fee:               50_000,
		AcceptedToken:     "ICE",
		Tokens: []TokenConfig{{
			Symbol:        "ICE",
			Name:          "ICE Token",
			Decimals:      18,
			MintAuthority: owner,
		}},
		Collections: []CollectionConfig{{
			Symbol:        "WEARABLES",
			Name:          "Wearables Collection",
			MintAuthority: owner,
		}},
	}

	if err := persist(path, cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

func persist(path string, cfg *Config) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	file, err := os.Create(path)
	if err != nil {
		return err
	}
	defer file.Close()
	return toml.NewEncoder(file).Encode(cfg)
}

func defaultOwnerKeyPath(configPath string) string {
	return filepath.Join(filepath.Dir(configPath), "owner.key")
}
