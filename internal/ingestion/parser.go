package ingestion

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/google/uuid"
)

// CommandKind is the last token of a command subject, e.g. vault.commands.deposit.
type CommandKind string

const (
	CommandInitializeOracle CommandKind = "initialize_oracle"
	CommandInitializeLedger CommandKind = "initialize_ledger"
	CommandUpdatePrice      CommandKind = "update_price"
	CommandSetLastUpdate    CommandKind = "set_last_update"
	CommandDeposit          CommandKind = "deposit"
	CommandWithdraw         CommandKind = "withdraw"
)

// CommandSubjectPrefix is the subject namespace the subscriber consumes.
const CommandSubjectPrefix = "vault.commands."

// Command is a parsed vault command, ready to execute against the core.
type Command struct {
	Kind           CommandKind
	IdempotencyKey string
	Amount         uint64
	Shares         uint64
	// Owner of the ledger to withdraw from; uuid.Nil means the caller.
	Owner          uuid.UUID
	LastUpdateTime int64
}

// --- JSON wire format ---
// Field names use snake_case to match upstream producers. Amounts are
// integers in base units; share counts are integers in share units.

type commandJSON struct {
	IdempotencyKey string  `json:"idempotency_key"`
	Amount         *uint64 `json:"amount,omitempty"`
	Shares         *uint64 `json:"shares,omitempty"`
	Owner          string  `json:"owner,omitempty"`
	LastUpdateTime *int64  `json:"last_update_time,omitempty"`
}

// ParseCommand decodes a command from its subject and JSON body.
func ParseCommand(subject string, data []byte) (Command, error) {
	kind, err := kindFromSubject(subject)
	if err != nil {
		return Command{}, err
	}

	var j commandJSON
	if len(data) > 0 {
		dec := json.NewDecoder(bytes.NewReader(data))
		dec.DisallowUnknownFields()
		if err := dec.Decode(&j); err != nil {
			return Command{}, fmt.Errorf("parse %s: %w", kind, err)
		}
	}

	cmd := Command{Kind: kind, IdempotencyKey: j.IdempotencyKey}

	switch kind {
	case CommandInitializeOracle, CommandInitializeLedger, CommandUpdatePrice:
	case CommandSetLastUpdate:
		if j.LastUpdateTime == nil {
			return Command{}, fmt.Errorf("parse %s: last_update_time is required", kind)
		}
		cmd.LastUpdateTime = *j.LastUpdateTime
	case CommandDeposit:
		if j.Amount == nil {
			return Command{}, fmt.Errorf("parse %s: amount is required", kind)
		}
		cmd.Amount = *j.Amount
	case CommandWithdraw:
		if j.Shares == nil {
			return Command{}, fmt.Errorf("parse %s: shares is required", kind)
		}
		cmd.Shares = *j.Shares
		if j.Owner != "" {
			owner, err := uuid.Parse(j.Owner)
			if err != nil {
				return Command{}, fmt.Errorf("parse owner: %w", err)
			}
			cmd.Owner = owner
		}
	}
	return cmd, nil
}

func kindFromSubject(subject string) (CommandKind, error) {
	if !strings.HasPrefix(subject, CommandSubjectPrefix) {
		return "", fmt.Errorf("subject %q is not a vault command", subject)
	}
	kind := CommandKind(strings.TrimPrefix(subject, CommandSubjectPrefix))
	switch kind {
	case CommandInitializeOracle, CommandInitializeLedger, CommandUpdatePrice,
		CommandSetLastUpdate, CommandDeposit, CommandWithdraw:
		return kind, nil
	default:
		return "", fmt.Errorf("unknown command: %s", kind)
	}
}
