package main

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/kpapadakis/ledgerdesk/internal/config"
	"github.com/kpapadakis/ledgerdesk/internal/vault"
)

// sealedKeyPath is where the sealed model API key lives, next to the
// database so one data directory carries the whole state.
func sealedKeyPath(cfg *config.Config) string {
	return filepath.Join(filepath.Dir(cfg.Store.Path), "nlp_api_key.sealed")
}

// resolveAPIKey prefers a plaintext key from config or environment; when
// none is set it tries the sealed key file, which requires the vault
// passphrase. No key at all is fine for the pattern strategy.
func resolveAPIKey(cfg *config.Config) (string, error) {
	if cfg.NLP.APIKey != "" {
		return cfg.NLP.APIKey, nil
	}

	passphrase := os.Getenv("LEDGERDESK_VAULT_PASSPHRASE")
	if passphrase == "" {
		return "", nil
	}
	return vault.New(passphrase).OpenFromFile(sealedKeyPath(cfg))
}

func runVault(args []string) error {
	if len(args) == 0 {
		printVaultUsage()
		return nil
	}

	passphrase := os.Getenv("LEDGERDESK_VAULT_PASSPHRASE")
	if passphrase == "" {
		return fmt.Errorf("LEDGERDESK_VAULT_PASSPHRASE environment variable is required")
	}
	v := vault.New(passphrase)

	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	switch args[0] {
	case "seal-key":
		key := os.Getenv("LEDGERDESK_NLP_API_KEY")
		if key == "" {
			return fmt.Errorf("LEDGERDESK_NLP_API_KEY environment variable is required")
		}
		path := sealedKeyPath(cfg)
		if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
			return fmt.Errorf("create data directory: %w", err)
		}
		if err := v.SealToFile(path, key); err != nil {
			return err
		}
		fmt.Printf("Sealed model API key to %s\n", path)
		return nil
	case "show-key":
		key, err := v.OpenFromFile(sealedKeyPath(cfg))
		if err != nil {
			return err
		}
		if key == "" {
			return fmt.Errorf("no sealed key found at %s", sealedKeyPath(cfg))
		}
		fmt.Println(key)
		return nil
	default:
		printVaultUsage()
		return fmt.Errorf("unknown vault command: %s", args[0])
	}
}

func printVaultUsage() {
	fmt.Fprintf(os.Stderr, `Usage: ledgerdesk vault <command>

Commands:
  seal-key   Seal LEDGERDESK_NLP_API_KEY into the data directory
  show-key   Print the unsealed model API key

LEDGERDESK_VAULT_PASSPHRASE must be set for both commands.
`)
}
