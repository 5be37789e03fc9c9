// Command approval-signer issues one signed withdrawal approval against a
// recorded deployment. The output JSON is everything a withdrawal client
// needs to call the ledger.
package main

import (
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"os"

	"github.com/LerianStudio/lib-custody/custody"
	"github.com/LerianStudio/lib-custody/custody/approval"
	"github.com/LerianStudio/lib-custody/custody/bootstrap"
	"github.com/LerianStudio/lib-custody/custody/signing"
	"github.com/LerianStudio/lib-custody/custody/units"
	"github.com/caarlos0/env/v11"
	"github.com/ethereum/go-ethereum/common"
)

type config struct {
	KeyFile    string `env:"CUSTODY_APPROVER_KEY_FILE" envDefault:"approver.key"`
	RecordFile string `env:"CUSTODY_DEPLOYMENT_FILE"   envDefault:"deployment.json"`
	Recipient  string `env:"CUSTODY_RECIPIENT"`
	Amount     string `env:"CUSTODY_AMOUNT"`
	OutFile    string `env:"CUSTODY_APPROVAL_FILE"`
}

func main() {
	cfg, err := parseConfig(os.Args[1:])
	if err != nil {
		fmt.Fprintln(os.Stderr, "approval-signer:", err)
		os.Exit(1)
	}

	if err := run(cfg, os.Stdout); err != nil {
		fmt.Fprintln(os.Stderr, "approval-signer:", err)
		os.Exit(1)
	}
}

func parseConfig(args []string) (config, error) {
	var cfg config
	if err := env.Parse(&cfg); err != nil {
		return config{}, fmt.Errorf("parse env: %w", err)
	}

	fs := flag.NewFlagSet("approval-signer", flag.ContinueOnError)
	fs.StringVar(&cfg.KeyFile, "key", cfg.KeyFile, "approver private key file")
	fs.StringVar(&cfg.RecordFile, "deployment", cfg.RecordFile, "deployment record file")
	fs.StringVar(&cfg.Recipient, "recipient", cfg.Recipient, "withdrawal recipient identity")
	fs.StringVar(&cfg.Amount, "amount", cfg.Amount, "withdrawal amount in display units, e.g. 0.4")
	fs.StringVar(&cfg.OutFile, "out", cfg.OutFile, "approval output file (default: stdout)")

	if err := fs.Parse(args); err != nil {
		return config{}, err
	}

	return cfg, nil
}

func run(cfg config, out io.Writer) error {
	raw, err := os.ReadFile(cfg.KeyFile)
	if err != nil {
		return fmt.Errorf("read key file: %w", err)
	}

	key, err := signing.ParsePrivateKey(string(raw))
	if err != nil {
		return fmt.Errorf("parse approver key: %w", err)
	}

	record, err := bootstrap.ReadRecordFile(cfg.RecordFile)
	if err != nil {
		return err
	}

	identity, err := signing.Address(&key.PublicKey)
	if err != nil {
		return err
	}

	if identity != record.Approver {
		return fmt.Errorf("key belongs to %s, deployment trusts approver %s",
			identity.Hex(), record.Approver.Hex())
	}

	if !common.IsHexAddress(cfg.Recipient) {
		return fmt.Errorf("recipient %q is not a hex identity", cfg.Recipient)
	}

	amount, err := units.Parse(cfg.Amount)
	if err != nil {
		return err
	}

	nonce, err := custody.NewNonce()
	if err != nil {
		return err
	}

	signer, err := signing.New(approval.NewDomain(record.NetworkID, record.ValidatorID), key)
	if err != nil {
		return err
	}

	issued, err := signer.IssueApproval(approval.Message{
		Ledger:    record.LedgerID,
		Recipient: common.HexToAddress(cfg.Recipient),
		Amount:    amount,
		Nonce:     nonce,
	})
	if err != nil {
		return err
	}

	data, err := json.MarshalIndent(issued, "", "  ")
	if err != nil {
		return fmt.Errorf("encode approval: %w", err)
	}

	if cfg.OutFile != "" {
		if err := os.WriteFile(cfg.OutFile, append(data, '\n'), 0o644); err != nil {
			return fmt.Errorf("write approval file: %w", err)
		}

		fmt.Fprintf(out, "approval written to %s\n", cfg.OutFile)

		return nil
	}

	fmt.Fprintln(out, string(data))

	return nil
}
