package params

import (
	"strings"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFingerprint_Stable(t *testing.T) {
	a, err := Fingerprint(Default())
	require.NoError(t, err)
	b, err := Fingerprint(Default())
	require.NoError(t, err)

	assert.Equal(t, a, b)
	assert.Len(t, a, 64, "hex encoded SHA-256")
}

func TestFingerprint_ChangesWithAnyField(t *testing.T) {
	base, err := Fingerprint(Default())
	require.NoError(t, err)

	mutations := map[string]func(p *Parameters){
		"seed":           func(p *Parameters) { p.Seed++ },
		"steps":          func(p *Parameters) { p.Steps++ },
		"fraud":          func(p *Parameters) { p.FraudProbability = 0.31 },
		"transfer limit": func(p *Parameters) { p.TransferLimit = p.TransferLimit.Add(decimal.NewFromInt(1)) },
		"type order": func(p *Parameters) {
			p.Types[0], p.Types[1] = p.Types[1], p.Types[0]
		},
	}

	for name, mutate := range mutations {
		t.Run(name, func(t *testing.T) {
			p := Default()
			mutate(p)
			fp, err := Fingerprint(p)
			require.NoError(t, err)
			assert.NotEqual(t, base, fp)
		})
	}
}

func TestFingerprint_IgnoresMoneyScale(t *testing.T) {
	a := Default()
	b := Default()
	b.TransferLimit = decimal.RequireFromString("200000.000")

	fa, err := Fingerprint(a)
	require.NoError(t, err)
	fb, err := Fingerprint(b)
	require.NoError(t, err)
	assert.Equal(t, fa, fb)
}

func TestMarshalCanonical_SortedKeys(t *testing.T) {
	data, err := MarshalCanonical(Default())
	require.NoError(t, err)

	s := string(data)
	assert.True(t, strings.HasPrefix(s, `{"activity_probability":"0.6","banks":3,`), s)
	assert.Contains(t, s, `"transfer_limit":"200000.00"`)
	assert.NotContains(t, s, " ")
}

func TestWriteCanonicalString_NoHTMLEscape(t *testing.T) {
	data, err := MarshalCanonical(&Parameters{Types: []TypeProfile{{Type: "<&>"}}})
	require.NoError(t, err)
	assert.Contains(t, string(data), `"type":"<&>"`)
}
