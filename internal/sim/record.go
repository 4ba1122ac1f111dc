package sim

import (
	"strconv"
	"strings"

	"github.com/shopspring/decimal"

	"github.com/paysim/paysim/internal/params"
)

// Header is the column line of the raw transaction log.
const Header = "step,action,amount,nameOrig,oldBalanceOrig,newBalanceOrig,nameDest,oldBalanceDest,newBalanceDest,isFraud,isFlaggedFraud,isUnauthorizedOverdraft"

// Record is one emitted transaction. Records are values and are never
// modified after the engine emits them.
type Record struct {
	Step           int
	Type           params.TxType
	Amount         decimal.Decimal
	NameOrig       string
	OldBalanceOrig decimal.Decimal
	NewBalanceOrig decimal.Decimal
	NameDest       string
	OldBalanceDest decimal.Decimal
	NewBalanceDest decimal.Decimal
	IsFraud        bool
	IsFlaggedFraud bool
	// IsUnauthorizedOverdraft marks a transaction refused for lack of funds.
	// Balances are unchanged.
	IsUnauthorizedOverdraft bool
}

// String returns the stable external form of the record, one raw log line.
// Regression checks compare this form line by line.
func (r Record) String() string {
	fields := []string{
		strconv.Itoa(r.Step),
		string(r.Type),
		r.Amount.StringFixed(2),
		r.NameOrig,
		r.OldBalanceOrig.StringFixed(2),
		r.NewBalanceOrig.StringFixed(2),
		r.NameDest,
		r.OldBalanceDest.StringFixed(2),
		r.NewBalanceDest.StringFixed(2),
		flag(r.IsFraud),
		flag(r.IsFlaggedFraud),
		flag(r.IsUnauthorizedOverdraft),
	}
	return strings.Join(fields, ",")
}

func flag(b bool) string {
	if b {
		return "1"
	}
	return "0"
}
