package params

import (
	"bytes"
	_ "embed"
	"errors"
	"fmt"
	"io"
	"os"

	"cuelang.org/go/cue"
	"cuelang.org/go/cue/cuecontext"
	"github.com/shopspring/decimal"
	"gopkg.in/yaml.v3"
)

//go:embed schema.cue
var schemaCUE string

// fileParameters is the on-disk form of Parameters.
// Money travels as strings so no precision is lost between YAML and decimal.
type fileParameters struct {
	Seed                int64         `yaml:"seed" json:"seed"`
	Steps               int           `yaml:"steps" json:"steps"`
	Clients             int           `yaml:"clients" json:"clients"`
	Merchants           int           `yaml:"merchants" json:"merchants"`
	Banks               int           `yaml:"banks" json:"banks"`
	Fraudsters          int           `yaml:"fraudsters" json:"fraudsters"`
	FraudProbability    float64       `yaml:"fraud_probability" json:"fraud_probability"`
	ActivityProbability float64       `yaml:"activity_probability" json:"activity_probability"`
	MaxTxPerStep        int           `yaml:"max_tx_per_step" json:"max_tx_per_step"`
	TransferLimit       string        `yaml:"transfer_limit" json:"transfer_limit"`
	InitialBalanceMin   string        `yaml:"initial_balance_min" json:"initial_balance_min"`
	InitialBalanceMax   string        `yaml:"initial_balance_max" json:"initial_balance_max"`
	Types               []fileProfile `yaml:"types" json:"types"`
}

type fileProfile struct {
	Type      string  `yaml:"type" json:"type"`
	Weight    float64 `yaml:"weight" json:"weight"`
	MinAmount string  `yaml:"min_amount" json:"min_amount"`
	MaxAmount string  `yaml:"max_amount" json:"max_amount"`
}

func toFile(p *Parameters) fileParameters {
	f := fileParameters{
		Seed:                p.Seed,
		Steps:               p.Steps,
		Clients:             p.Clients,
		Merchants:           p.Merchants,
		Banks:               p.Banks,
		Fraudsters:          p.Fraudsters,
		FraudProbability:    p.FraudProbability,
		ActivityProbability: p.ActivityProbability,
		MaxTxPerStep:        p.MaxTxPerStep,
		TransferLimit:       p.TransferLimit.String(),
		InitialBalanceMin:   p.InitialBalanceMin.String(),
		InitialBalanceMax:   p.InitialBalanceMax.String(),
	}
	for _, tp := range p.Types {
		f.Types = append(f.Types, fileProfile{
			Type:      string(tp.Type),
			Weight:    tp.Weight,
			MinAmount: tp.MinAmount.String(),
			MaxAmount: tp.MaxAmount.String(),
		})
	}
	return f
}

func (f fileParameters) toParameters() (*Parameters, error) {
	p := &Parameters{
		Seed:                f.Seed,
		Steps:               f.Steps,
		Clients:             f.Clients,
		Merchants:           f.Merchants,
		Banks:               f.Banks,
		Fraudsters:          f.Fraudsters,
		FraudProbability:    f.FraudProbability,
		ActivityProbability: f.ActivityProbability,
		MaxTxPerStep:        f.MaxTxPerStep,
	}

	var err error
	if p.TransferLimit, err = parseMoney("transfer_limit", f.TransferLimit); err != nil {
		return nil, err
	}
	if p.InitialBalanceMin, err = parseMoney("initial_balance_min", f.InitialBalanceMin); err != nil {
		return nil, err
	}
	if p.InitialBalanceMax, err = parseMoney("initial_balance_max", f.InitialBalanceMax); err != nil {
		return nil, err
	}

	p.Types = make([]TypeProfile, 0, len(f.Types))
	for i, fp := range f.Types {
		tp := TypeProfile{Type: TxType(fp.Type), Weight: fp.Weight}
		if tp.MinAmount, err = parseMoney(fmt.Sprintf("types[%d].min_amount", i), fp.MinAmount); err != nil {
			return nil, err
		}
		if tp.MaxAmount, err = parseMoney(fmt.Sprintf("types[%d].max_amount", i), fp.MaxAmount); err != nil {
			return nil, err
		}
		p.Types = append(p.Types, tp)
	}
	return p, nil
}

func parseMoney(field, s string) (decimal.Decimal, error) {
	d, err := decimal.NewFromString(s)
	if err != nil {
		return decimal.Zero, &ValidationError{Field: field, Message: fmt.Sprintf("not a decimal amount: %q", s)}
	}
	return d, nil
}

// Load reads a YAML parameter file. Keys missing from the file keep their
// Default() values. An empty path returns the defaults.
func Load(path string) (*Parameters, error) {
	if path == "" {
		return Default(), nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read parameters: %w", err)
	}
	p, err := Parse(data)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return p, nil
}

// Parse decodes YAML parameters over the defaults and validates the result.
func Parse(data []byte) (*Parameters, error) {
	f := toFile(Default())

	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(&f); err != nil && !errors.Is(err, io.EOF) {
		return nil, fmt.Errorf("decode parameters: %w", err)
	}

	if err := validateSchema(f); err != nil {
		return nil, err
	}

	p, err := f.toParameters()
	if err != nil {
		return nil, err
	}
	if err := p.Validate(); err != nil {
		return nil, err
	}
	return p, nil
}

// Check validates p against the schema and the semantic rules. It is used
// for parameters built in code (flag overrides) rather than loaded.
func Check(p *Parameters) error {
	if err := validateSchema(toFile(p)); err != nil {
		return err
	}
	return p.Validate()
}

// SchemaError reports a parameter document that does not satisfy the CUE schema.
type SchemaError struct {
	Err error
}

func (e *SchemaError) Error() string {
	return fmt.Sprintf("parameters do not match schema: %v", e.Err)
}

func (e *SchemaError) Unwrap() error {
	return e.Err
}

// validateSchema unifies the document with #Parameters and requires every
// field to be concrete.
func validateSchema(f fileParameters) error {
	ctx := cuecontext.New()
	schema := ctx.CompileString(schemaCUE, cue.Filename("schema.cue"))
	if err := schema.Err(); err != nil {
		return fmt.Errorf("compile parameter schema: %w", err)
	}

	def := schema.LookupPath(cue.ParsePath("#Parameters"))
	doc := ctx.Encode(f)
	if err := doc.Err(); err != nil {
		return &SchemaError{Err: err}
	}

	unified := def.Unify(doc)
	if err := unified.Validate(cue.Concrete(true)); err != nil {
		return &SchemaError{Err: err}
	}
	return nil
}

// Marshal renders p as a YAML parameter file that Parse accepts.
func Marshal(p *Parameters) ([]byte, error) {
	var buf bytes.Buffer
	enc := yaml.NewEncoder(&buf)
	enc.SetIndent(2)
	if err := enc.Encode(toFile(p)); err != nil {
		return nil, fmt.Errorf("encode parameters: %w", err)
	}
	if err := enc.Close(); err != nil {
		return nil, fmt.Errorf("encode parameters: %w", err)
	}
	return buf.Bytes(), nil
}
