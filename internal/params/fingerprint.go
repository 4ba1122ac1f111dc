package params

import (
	"bytes"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"sort"
	"strconv"

	"golang.org/x/text/unicode/norm"
)

// DomainParameters separates parameter fingerprints from any other hash
// computed over the same bytes. The version suffix allows a future change of
// the canonical form.
const DomainParameters = "paysim/params/v1"

// Fingerprint returns a stable hex SHA-256 identifying the configuration.
// Equal Parameters always produce the same fingerprint.
func Fingerprint(p *Parameters) (string, error) {
	canonical, err := MarshalCanonical(p)
	if err != nil {
		return "", fmt.Errorf("fingerprint: %w", err)
	}
	return hashWithDomain(DomainParameters, canonical), nil
}

// hashWithDomain computes SHA256(domain + 0x00 + data).
// The null byte keeps domain and data from running into each other.
func hashWithDomain(domain string, data []byte) string {
	h := sha256.New()
	h.Write([]byte(domain))
	h.Write([]byte{0x00})
	h.Write(data)
	return hex.EncodeToString(h.Sum(nil))
}

// MarshalCanonical renders p as canonical JSON: sorted keys, no HTML
// escaping, NFC-normalized strings. Floats and money are rendered as strings
// so the encoding does not depend on float formatting.
func MarshalCanonical(p *Parameters) ([]byte, error) {
	types := make([]any, len(p.Types))
	for i, tp := range p.Types {
		types[i] = map[string]any{
			"type":       string(tp.Type),
			"weight":     formatFloat(tp.Weight),
			"min_amount": tp.MinAmount.StringFixed(2),
			"max_amount": tp.MaxAmount.StringFixed(2),
		}
	}
	doc := map[string]any{
		"seed":                 p.Seed,
		"steps":                int64(p.Steps),
		"clients":              int64(p.Clients),
		"merchants":            int64(p.Merchants),
		"banks":                int64(p.Banks),
		"fraudsters":           int64(p.Fraudsters),
		"fraud_probability":    formatFloat(p.FraudProbability),
		"activity_probability": formatFloat(p.ActivityProbability),
		"max_tx_per_step":      int64(p.MaxTxPerStep),
		"transfer_limit":       p.TransferLimit.StringFixed(2),
		"initial_balance_min":  p.InitialBalanceMin.StringFixed(2),
		"initial_balance_max":  p.InitialBalanceMax.StringFixed(2),
		"types":                types,
	}

	var buf bytes.Buffer
	if err := writeCanonical(&buf, doc); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func formatFloat(f float64) string {
	return strconv.FormatFloat(f, 'g', -1, 64)
}

func writeCanonical(buf *bytes.Buffer, v any) error {
	switch val := v.(type) {
	case string:
		return writeCanonicalString(buf, val)
	case int64:
		buf.WriteString(strconv.FormatInt(val, 10))
	case bool:
		buf.WriteString(strconv.FormatBool(val))
	case []any:
		buf.WriteByte('[')
		for i, elem := range val {
			if i > 0 {
				buf.WriteByte(',')
			}
			if err := writeCanonical(buf, elem); err != nil {
				return fmt.Errorf("array[%d]: %w", i, err)
			}
		}
		buf.WriteByte(']')
	case map[string]any:
		keys := make([]string, 0, len(val))
		for k := range val {
			keys = append(keys, k)
		}
		sort.Strings(keys)

		buf.WriteByte('{')
		for i, k := range keys {
			if i > 0 {
				buf.WriteByte(',')
			}
			if err := writeCanonicalString(buf, k); err != nil {
				return fmt.Errorf("key %q: %w", k, err)
			}
			buf.WriteByte(':')
			if err := writeCanonical(buf, val[k]); err != nil {
				return fmt.Errorf("value for key %q: %w", k, err)
			}
		}
		buf.WriteByte('}')
	default:
		return fmt.Errorf("unsupported type for canonical JSON: %T", v)
	}
	return nil
}

// writeCanonicalString NFC-normalizes s and encodes it without HTML escaping.
func writeCanonicalString(buf *bytes.Buffer, s string) error {
	var tmp bytes.Buffer
	enc := json.NewEncoder(&tmp)
	enc.SetEscapeHTML(false)
	if err := enc.Encode(norm.NFC.String(s)); err != nil {
		return err
	}
	buf.Write(bytes.TrimSuffix(tmp.Bytes(), []byte("\n")))
	return nil
}
