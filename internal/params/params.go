package params

import (
	"fmt"

	"github.com/shopspring/decimal"
)

// TxType is a transaction category emitted by the simulation.
type TxType string

const (
	CashIn   TxType = "CASH_IN"
	CashOut  TxType = "CASH_OUT"
	Debit    TxType = "DEBIT"
	Payment  TxType = "PAYMENT"
	Transfer TxType = "TRANSFER"
)

// TxTypes lists every transaction type in canonical order.
var TxTypes = []TxType{CashIn, CashOut, Debit, Payment, Transfer}

// Valid reports whether t is a known transaction type.
func (t TxType) Valid() bool {
	for _, known := range TxTypes {
		if t == known {
			return true
		}
	}
	return false
}

// TypeProfile describes how often a transaction type occurs and the range
// its amounts are drawn from.
type TypeProfile struct {
	Type      TxType
	Weight    float64
	MinAmount decimal.Decimal
	MaxAmount decimal.Decimal
}

// Parameters configures one simulation run.
//
// INVARIANT: Parameters are never mutated after Load/Default returns them.
// Types keeps file order; the engine draws types in that order, so reordering
// profiles changes the output.
type Parameters struct {
	Seed                int64
	Steps               int
	Clients             int
	Merchants           int
	Banks               int
	Fraudsters          int
	FraudProbability    float64
	ActivityProbability float64
	MaxTxPerStep        int
	TransferLimit       decimal.Decimal
	InitialBalanceMin   decimal.Decimal
	InitialBalanceMax   decimal.Decimal
	Types               []TypeProfile
}

// Default returns the reference configuration: a small world run for 10 steps.
func Default() *Parameters {
	return &Parameters{
		Seed:                1,
		Steps:               10,
		Clients:             40,
		Merchants:           8,
		Banks:               3,
		Fraudsters:          2,
		FraudProbability:    0.3,
		ActivityProbability: 0.6,
		MaxTxPerStep:        2,
		TransferLimit:       decimal.NewFromInt(200000),
		InitialBalanceMin:   decimal.NewFromInt(100),
		InitialBalanceMax:   decimal.NewFromInt(250000),
		Types: []TypeProfile{
			{Type: CashIn, Weight: 0.22, MinAmount: decimal.NewFromInt(10), MaxAmount: decimal.NewFromInt(50000)},
			{Type: CashOut, Weight: 0.35, MinAmount: decimal.NewFromInt(10), MaxAmount: decimal.NewFromInt(60000)},
			{Type: Debit, Weight: 0.01, MinAmount: decimal.NewFromInt(1), MaxAmount: decimal.NewFromInt(5000)},
			{Type: Payment, Weight: 0.34, MinAmount: decimal.NewFromInt(1), MaxAmount: decimal.NewFromInt(20000)},
			{Type: Transfer, Weight: 0.08, MinAmount: decimal.NewFromInt(100), MaxAmount: decimal.NewFromInt(300000)},
		},
	}
}

// Clone returns a deep copy so callers can derive variants (flag overrides)
// without touching a shared value.
func (p *Parameters) Clone() *Parameters {
	c := *p
	c.Types = make([]TypeProfile, len(p.Types))
	copy(c.Types, p.Types)
	return &c
}

// TotalWeight is the sum of all type weights.
func (p *Parameters) TotalWeight() float64 {
	var total float64
	for _, tp := range p.Types {
		total += tp.Weight
	}
	return total
}

// Validate runs the semantic checks the schema cannot express.
func (p *Parameters) Validate() error {
	if p.Steps <= 0 {
		return &ValidationError{Field: "steps", Message: "must be > 0"}
	}
	if p.Clients < 2 {
		return &ValidationError{Field: "clients", Message: "at least 2 clients are required for transfers"}
	}
	if p.Merchants < 1 {
		return &ValidationError{Field: "merchants", Message: "must be >= 1"}
	}
	if p.Banks < 1 {
		return &ValidationError{Field: "banks", Message: "must be >= 1"}
	}
	if p.Fraudsters < 0 {
		return &ValidationError{Field: "fraudsters", Message: "must be >= 0"}
	}
	if p.FraudProbability < 0 || p.FraudProbability > 1 {
		return &ValidationError{Field: "fraud_probability", Message: "must be within [0, 1]"}
	}
	if p.ActivityProbability < 0 || p.ActivityProbability > 1 {
		return &ValidationError{Field: "activity_probability", Message: "must be within [0, 1]"}
	}
	if p.MaxTxPerStep < 1 {
		return &ValidationError{Field: "max_tx_per_step", Message: "must be >= 1"}
	}
	if !p.TransferLimit.IsPositive() {
		return &ValidationError{Field: "transfer_limit", Message: "must be positive"}
	}
	if p.InitialBalanceMin.IsNegative() || p.InitialBalanceMax.LessThan(p.InitialBalanceMin) {
		return &ValidationError{Field: "initial_balance", Message: "min must be >= 0 and <= max"}
	}
	if len(p.Types) == 0 {
		return &ValidationError{Field: "types", Message: "at least one transaction type is required"}
	}
	seen := make(map[TxType]bool, len(p.Types))
	for i, tp := range p.Types {
		field := fmt.Sprintf("types[%d]", i)
		if !tp.Type.Valid() {
			return &ValidationError{Field: field, Message: fmt.Sprintf("unknown type %q", tp.Type)}
		}
		if seen[tp.Type] {
			return &ValidationError{Field: field, Message: fmt.Sprintf("duplicate type %q", tp.Type)}
		}
		seen[tp.Type] = true
		if tp.Weight <= 0 {
			return &ValidationError{Field: field, Message: "weight must be > 0"}
		}
		if !tp.MinAmount.IsPositive() || tp.MaxAmount.LessThan(tp.MinAmount) {
			return &ValidationError{Field: field, Message: "amount range must satisfy 0 < min <= max"}
		}
	}
	return nil
}

// ValidationError reports an invalid parameter.
type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid parameter %s: %s", e.Field, e.Message)
}
