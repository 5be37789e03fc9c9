// Command approver-keygen mints a fresh approver keypair and writes the
// private key to a file readable only by its owner.
package main

import (
	"errors"
	"flag"
	"fmt"
	"io"
	"os"

	"github.com/LerianStudio/lib-custody/custody/signing"
	"github.com/caarlos0/env/v11"
)

type config struct {
	KeyFile string `env:"CUSTODY_APPROVER_KEY_FILE" envDefault:"approver.key"`
	Force   bool   `env:"CUSTODY_APPROVER_KEYGEN_FORCE"`
}

func main() {
	cfg, err := parseConfig(os.Args[1:])
	if err != nil {
		fmt.Fprintln(os.Stderr, "approver-keygen:", err)
		os.Exit(1)
	}

	if err := run(cfg, os.Stdout); err != nil {
		fmt.Fprintln(os.Stderr, "approver-keygen:", err)
		os.Exit(1)
	}
}

func parseConfig(args []string) (config, error) {
	var cfg config
	if err := env.Parse(&cfg); err != nil {
		return config{}, fmt.Errorf("parse env: %w", err)
	}

	fs := flag.NewFlagSet("approver-keygen", flag.ContinueOnError)
	fs.StringVar(&cfg.KeyFile, "out", cfg.KeyFile, "path to write the private key")
	fs.BoolVar(&cfg.Force, "force", cfg.Force, "overwrite an existing key file")

	if err := fs.Parse(args); err != nil {
		return config{}, err
	}

	return cfg, nil
}

func run(cfg config, out io.Writer) error {
	if !cfg.Force {
		if _, err := os.Stat(cfg.KeyFile); err == nil {
			return fmt.Errorf("key file %s already exists (use -force to overwrite)", cfg.KeyFile)
		} else if !errors.Is(err, os.ErrNotExist) {
			return fmt.Errorf("stat key file: %w", err)
		}
	}

	key, err := signing.GenerateApproverKey()
	if err != nil {
		return fmt.Errorf("generate approver key: %w", err)
	}

	encoded, err := signing.EncodePrivateKey(key)
	if err != nil {
		return err
	}

	if err := os.WriteFile(cfg.KeyFile, []byte(encoded+"\n"), 0o600); err != nil {
		return fmt.Errorf("write key file: %w", err)
	}

	identity, err := signing.Address(&key.PublicKey)
	if err != nil {
		return err
	}

	fmt.Fprintf(out, "approver identity: %s\n", identity.Hex())
	fmt.Fprintf(out, "key file:          %s\n", cfg.KeyFile)

	return nil
}
