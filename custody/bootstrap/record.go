package bootstrap

import (
	"encoding/json"
	"fmt"
	"os"
	"time"

	"github.com/LerianStudio/lib-custody/custody"
	"github.com/google/uuid"
)

// DeploymentRecord is the durable description of one deployed custody pair.
// Off-chain tooling reads it to learn the signing domain: NetworkID plus
// ValidatorID fully determine which approvals the validator accepts.
type DeploymentRecord struct {
	RecordID    uuid.UUID        `json:"recordId"`
	NetworkID   uint64           `json:"networkId"`
	Deployer    custody.Identity `json:"deployer"`
	Approver    custody.Identity `json:"approver"`
	ValidatorID custody.Identity `json:"validatorId"`
	LedgerID    custody.Identity `json:"ledgerId"`
	DeployedAt  time.Time        `json:"deployedAt"`
}

// WriteFile persists the record as indented JSON.
func (r DeploymentRecord) WriteFile(path string) error {
	data, err := json.MarshalIndent(r, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal deployment record: %w", err)
	}

	if err := os.WriteFile(path, append(data, '\n'), 0o644); err != nil {
		return fmt.Errorf("write deployment record: %w", err)
	}

	return nil
}

// ReadRecordFile loads a record previously written with WriteFile.
func ReadRecordFile(path string) (DeploymentRecord, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return DeploymentRecord{}, fmt.Errorf("read deployment record: %w", err)
	}

	var record DeploymentRecord
	if err := json.Unmarshal(data, &record); err != nil {
		return DeploymentRecord{}, fmt.Errorf("decode deployment record: %w", err)
	}

	return record, nil
}
