package store

import (
	"fmt"

	"github.com/shopspring/decimal"

	"github.com/paysim/paysim/internal/params"
	"github.com/paysim/paysim/internal/sim"
)

// recordRow is the column form of a sim.Record.
// Money columns hold fixed two-decimal TEXT, matching Record.String().
type recordRow struct {
	Step                    int
	Action                  string
	Amount                  string
	NameOrig                string
	OldBalanceOrig          string
	NewBalanceOrig          string
	NameDest                string
	OldBalanceDest          string
	NewBalanceDest          string
	IsFraud                 bool
	IsFlaggedFraud          bool
	IsUnauthorizedOverdraft bool
}

func toRow(r sim.Record) recordRow {
	return recordRow{
		Step:                    r.Step,
		Action:                  string(r.Type),
		Amount:                  r.Amount.StringFixed(2),
		NameOrig:                r.NameOrig,
		OldBalanceOrig:          r.OldBalanceOrig.StringFixed(2),
		NewBalanceOrig:          r.NewBalanceOrig.StringFixed(2),
		NameDest:                r.NameDest,
		OldBalanceDest:          r.OldBalanceDest.StringFixed(2),
		NewBalanceDest:          r.NewBalanceDest.StringFixed(2),
		IsFraud:                 r.IsFraud,
		IsFlaggedFraud:          r.IsFlaggedFraud,
		IsUnauthorizedOverdraft: r.IsUnauthorizedOverdraft,
	}
}

func (row recordRow) toRecord() (sim.Record, error) {
	r := sim.Record{
		Step:                    row.Step,
		Type:                    params.TxType(row.Action),
		NameOrig:                row.NameOrig,
		NameDest:                row.NameDest,
		IsFraud:                 row.IsFraud,
		IsFlaggedFraud:          row.IsFlaggedFraud,
		IsUnauthorizedOverdraft: row.IsUnauthorizedOverdraft,
	}
	if !r.Type.Valid() {
		return sim.Record{}, fmt.Errorf("unmarshal action: unknown transaction type %q", row.Action)
	}

	money := []struct {
		column string
		text   string
		dst    *decimal.Decimal
	}{
		{"amount", row.Amount, &r.Amount},
		{"old_balance_orig", row.OldBalanceOrig, &r.OldBalanceOrig},
		{"new_balance_orig", row.NewBalanceOrig, &r.NewBalanceOrig},
		{"old_balance_dest", row.OldBalanceDest, &r.OldBalanceDest},
		{"new_balance_dest", row.NewBalanceDest, &r.NewBalanceDest},
	}
	for _, m := range money {
		d, err := decimal.NewFromString(m.text)
		if err != nil {
			return sim.Record{}, fmt.Errorf("unmarshal %s %q: %w", m.column, m.text, err)
		}
		*m.dst = d
	}
	return r, nil
}
