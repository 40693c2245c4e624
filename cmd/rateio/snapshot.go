package main

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/billbatista/rateio/settlement"
	"github.com/pelletier/go-toml"
	"github.com/shopspring/decimal"
	"gopkg.in/yaml.v3"
)

var errUnknownFormat = errors.New("snapshot must be a .toml, .yaml or .yml file")

// snapshotFile is a ledger written by hand for an offline settlement. Participants are
// referenced by code.
type snapshotFile struct {
	Currency     string `toml:"currency" yaml:"currency"`
	Participants []struct {
		Code string `toml:"code" yaml:"code"`
		Name string `toml:"name" yaml:"name"`
	} `toml:"participants" yaml:"participants"`
	Expenses []struct {
		Title  string `toml:"title" yaml:"title"`
		PaidBy string `toml:"paid_by" yaml:"paid_by"`
		Amount amount `toml:"amount" yaml:"amount"`
	} `toml:"expenses" yaml:"expenses"`
	Contributions []struct {
		From   string `toml:"from" yaml:"from"`
		Amount amount `toml:"amount" yaml:"amount"`
	} `toml:"contributions" yaml:"contributions"`
	Deposits []struct {
		DepositedBy string `toml:"deposited_by" yaml:"deposited_by"`
		Amount      amount `toml:"amount" yaml:"amount"`
	} `toml:"deposits" yaml:"deposits"`
}

// amount is a money value in a snapshot. YAML amounts are parsed from their literal text. TOML
// amounts may be strings or integers, which are exact; TOML float literals arrive as float64
// from the parser and are converted as such.
type amount decimal.Decimal

func (a amount) value() decimal.Decimal {
	return decimal.Decimal(a)
}

func (a *amount) UnmarshalYAML(node *yaml.Node) error {
	if node.Kind != yaml.ScalarNode {
		return fmt.Errorf("line %d: amount must be a number", node.Line)
	}
	d, err := decimal.NewFromString(node.Value)
	if err != nil {
		return fmt.Errorf("line %d: invalid amount %q", node.Line, node.Value)
	}
	*a = amount(d)
	return nil
}

func (a *amount) UnmarshalTOML(v any) error {
	switch v := v.(type) {
	case string:
		d, err := decimal.NewFromString(strings.TrimSpace(v))
		if err != nil {
			return fmt.Errorf("invalid amount %q", v)
		}
		*a = amount(d)
	case int64:
		*a = amount(decimal.NewFromInt(v))
	case float64:
		d, err := settlement.FromFloat(v)
		if err != nil {
			return err
		}
		*a = amount(d)
	default:
		return fmt.Errorf("amount must be a number or a string, got %T", v)
	}
	return nil
}

func readSnapshot(path string) (*snapshotFile, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	return parseSnapshot(filepath.Ext(path), data)
}

func parseSnapshot(ext string, data []byte) (*snapshotFile, error) {
	var snap snapshotFile
	switch strings.ToLower(ext) {
	case ".toml":
		if err := toml.Unmarshal(data, &snap); err != nil {
			return nil, fmt.Errorf("parse snapshot: %w", err)
		}
	case ".yaml", ".yml":
		if err := yaml.Unmarshal(data, &snap); err != nil {
			return nil, fmt.Errorf("parse snapshot: %w", err)
		}
	default:
		return nil, errUnknownFormat
	}
	return &snap, nil
}

// input converts the file into calculator input, keyed by participant code.
func (s *snapshotFile) input() (settlement.Input, error) {
	participants := make([]settlement.Participant, 0, len(s.Participants))
	for _, p := range s.Participants {
		code := strings.ToUpper(strings.TrimSpace(p.Code))
		name := p.Name
		if name == "" {
			name = code
		}
		participants = append(participants, settlement.Participant{ID: code, Code: code, Name: name})
	}

	expenses := make([]settlement.ExpenseEntry, 0, len(s.Expenses))
	for _, e := range s.Expenses {
		expenses = append(expenses, settlement.ExpenseEntry{PaidBy: strings.ToUpper(e.PaidBy), Amount: e.Amount.value()})
	}

	contributions := make([]decimal.Decimal, 0, len(s.Contributions))
	for _, c := range s.Contributions {
		contributions = append(contributions, c.Amount.value())
	}

	deposits := make([]settlement.DepositEntry, 0, len(s.Deposits))
	for _, d := range s.Deposits {
		deposits = append(deposits, settlement.DepositEntry{DepositedBy: strings.ToUpper(d.DepositedBy), Amount: d.Amount.value()})
	}

	totals, err := settlement.Aggregate(participants, expenses, contributions)
	if err != nil {
		return settlement.Input{}, err
	}
	deposited, err := settlement.SumDeposits(participants, deposits)
	if err != nil {
		return settlement.Input{}, err
	}

	return settlement.Input{
		Participants:       participants,
		TotalExpenses:      totals.TotalExpenses,
		TotalContributions: totals.TotalContributions,
		Paid:               totals.PaidBy,
		Deposited:          deposited,
	}, nil
}
