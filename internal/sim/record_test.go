package sim

import (
	"errors"
	"strings"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"

	"github.com/paysim/paysim/internal/params"
)

func TestRecord_String(t *testing.T) {
	r := Record{
		Step:           1,
		Type:           params.Payment,
		Amount:         decimal.RequireFromString("9839.64"),
		NameOrig:       "C1231006815",
		OldBalanceOrig: decimal.NewFromInt(170136),
		NewBalanceOrig: decimal.RequireFromString("160296.36"),
		NameDest:       "M1979787155",
	}

	assert.Equal(t,
		"1,PAYMENT,9839.64,C1231006815,170136.00,160296.36,M1979787155,0.00,0.00,0,0,0",
		r.String())
}

func TestRecord_StringFlags(t *testing.T) {
	r := Record{
		Type:                    params.Transfer,
		Amount:                  decimal.NewFromInt(181),
		NameOrig:                "C1",
		NameDest:                "C2",
		IsFraud:                 true,
		IsFlaggedFraud:          true,
		IsUnauthorizedOverdraft: true,
	}

	assert.True(t, strings.HasSuffix(r.String(), ",1,1,1"))
}

func TestRecord_FieldCountMatchesHeader(t *testing.T) {
	r := Record{Type: params.Debit, NameOrig: "C1", NameDest: "B1"}
	assert.Equal(t, strings.Count(Header, ","), strings.Count(r.String(), ","))
}

func TestEngineError(t *testing.T) {
	cause := errors.New("boom")

	t.Run("with step and cause", func(t *testing.T) {
		err := &EngineError{Code: ErrCodeBalanceInvariant, Step: 4, Message: "negative", Err: cause}
		assert.Equal(t, "BALANCE_INVARIANT: negative (step=4): boom", err.Error())
		assert.ErrorIs(t, err, cause)
	})

	t.Run("before first step", func(t *testing.T) {
		err := &EngineError{Code: ErrCodeInvalidParams, Step: -1, Message: "bad"}
		assert.Equal(t, "INVALID_PARAMS: bad", err.Error())
	})

	t.Run("panic value", func(t *testing.T) {
		err := NewPanicError("kaput")
		assert.Equal(t, ErrCodePanic, err.Code)
		assert.Equal(t, "PANIC: engine panicked: kaput", err.Error())
		assert.Equal(t, ErrCodePanic, ErrorCode(err))
	})

	t.Run("not an engine error", func(t *testing.T) {
		assert.False(t, IsEngineError(cause))
		assert.Equal(t, EngineErrorCode(""), ErrorCode(cause))
	})
}
