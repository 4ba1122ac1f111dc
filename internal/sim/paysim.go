package sim

import (
	"fmt"
	"log/slog"
	"math/rand"
	"strconv"

	"github.com/shopspring/decimal"

	"github.com/paysim/paysim/internal/params"
)

// PaySim is the reference Engine: clients, merchants, banks and fraudsters
// exchanging money over discrete steps.
//
// CRITICAL: all randomness comes from one rand.Rand per Execute, consumed in
// a fixed order (clients by index, then fraudsters). Any change to the order
// of draws changes the output for every seed.
type PaySim struct {
	logger *slog.Logger
}

// Option configures a PaySim engine.
type Option func(*PaySim)

// WithLogger sets the logger used for run and step events.
func WithLogger(l *slog.Logger) Option {
	return func(e *PaySim) {
		e.logger = l
	}
}

// NewPaySim creates the reference engine.
func NewPaySim(opts ...Option) *PaySim {
	e := &PaySim{logger: slog.Default()}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Execute implements Engine.
func (e *PaySim) Execute(p *params.Parameters, emit EmitFunc, cancelled CancelFunc) (Outcome, error) {
	var out Outcome

	if err := p.Validate(); err != nil {
		return out, &EngineError{
			Code:    ErrCodeInvalidParams,
			Step:    -1,
			Message: "parameters rejected",
			Err:     err,
		}
	}
	if cancelled == nil {
		cancelled = NeverCancelled
	}

	w := newWorld(p)
	e.logger.Info("simulation starting",
		"seed", p.Seed,
		"steps", p.Steps,
		"clients", len(w.clients),
		"merchants", len(w.merchants),
		"banks", len(w.banks),
		"fraudsters", len(w.fraudsters),
	)

	for step := 0; step < p.Steps; step++ {
		if cancelled() {
			out.Cancelled = true
			e.logger.Info("simulation cancelled", "step", step, "records", out.Records)
			return out, nil
		}

		records, err := w.step(step)
		if err != nil {
			return out, err
		}

		for _, r := range records {
			if err := emit(r); err != nil {
				return out, &EngineError{
					Code:    ErrCodeEmitFailed,
					Step:    step,
					Message: "record consumer refused record",
					Err:     err,
				}
			}
			out.Records++
		}
		out.Steps++

		e.logger.Debug("step completed", "step", step, "records", len(records))
	}

	e.logger.Info("simulation completed", "steps", out.Steps, "records", out.Records)
	return out, nil
}

type client struct {
	name    string
	balance decimal.Decimal
	bank    int
}

// world is the mutable state of one run. It is owned by a single Execute call.
type world struct {
	p          *params.Parameters
	rng        *rand.Rand
	clients    []*client
	merchants  []string
	banks      []string
	fraudsters []string
	used       map[string]bool
	cumWeights []float64
}

func newWorld(p *params.Parameters) *world {
	w := &world{
		p:    p,
		rng:  rand.New(rand.NewSource(p.Seed)),
		used: make(map[string]bool),
	}

	for i := 0; i < p.Banks; i++ {
		w.banks = append(w.banks, w.newName("B"))
	}
	for i := 0; i < p.Merchants; i++ {
		w.merchants = append(w.merchants, w.newName("M"))
	}
	for i := 0; i < p.Clients; i++ {
		w.clients = append(w.clients, &client{
			name:    w.newName("C"),
			balance: w.uniform(p.InitialBalanceMin, p.InitialBalanceMax),
			bank:    w.rng.Intn(p.Banks),
		})
	}
	for i := 0; i < p.Fraudsters; i++ {
		w.fraudsters = append(w.fraudsters, w.newName("F"))
	}

	var total float64
	for _, tp := range p.Types {
		total += tp.Weight
		w.cumWeights = append(w.cumWeights, total)
	}
	return w
}

// newName draws a unique account name: prefix followed by 9 or 10 digits.
func (w *world) newName(prefix string) string {
	for {
		name := prefix + strconv.FormatInt(100000000+w.rng.Int63n(1900000000), 10)
		if !w.used[name] {
			w.used[name] = true
			return name
		}
	}
}

// uniform draws an amount in [lo, hi] with cent resolution.
func (w *world) uniform(lo, hi decimal.Decimal) decimal.Decimal {
	loC := lo.Shift(2).IntPart()
	hiC := hi.Shift(2).IntPart()
	if hiC <= loC {
		return decimal.New(loC, -2)
	}
	return decimal.New(loC+w.rng.Int63n(hiC-loC+1), -2)
}

func (w *world) pickType() params.TypeProfile {
	x := w.rng.Float64() * w.cumWeights[len(w.cumWeights)-1]
	for i, cw := range w.cumWeights {
		if x < cw {
			return w.p.Types[i]
		}
	}
	return w.p.Types[len(w.p.Types)-1]
}

// otherClient picks a client index different from self.
func (w *world) otherClient(self int) int {
	j := w.rng.Intn(len(w.clients) - 1)
	if j >= self {
		j++
	}
	return j
}

// step computes every record of one step. Records are returned only if the
// whole step succeeded.
func (w *world) step(step int) ([]Record, error) {
	var records []Record

	for i, c := range w.clients {
		if w.rng.Float64() >= w.p.ActivityProbability {
			continue
		}
		n := 1 + w.rng.Intn(w.p.MaxTxPerStep)
		for k := 0; k < n; k++ {
			records = append(records, w.clientTx(step, i, c))
		}
	}

	for range w.fraudsters {
		if w.rng.Float64() >= w.p.FraudProbability {
			continue
		}
		records = append(records, w.fraud(step)...)
	}

	for _, c := range w.clients {
		if c.balance.IsNegative() {
			return nil, &EngineError{
				Code:    ErrCodeBalanceInvariant,
				Step:    step,
				Message: fmt.Sprintf("client %s balance is %s", c.name, c.balance.StringFixed(2)),
			}
		}
	}
	return records, nil
}

func (w *world) clientTx(step, idx int, c *client) Record {
	tp := w.pickType()
	amount := w.uniform(tp.MinAmount, tp.MaxAmount)

	r := Record{
		Step:           step,
		Type:           tp.Type,
		Amount:         amount,
		NameOrig:       c.name,
		OldBalanceOrig: c.balance,
		NewBalanceOrig: c.balance,
	}

	switch tp.Type {
	case params.CashIn:
		r.NameDest = w.merchants[w.rng.Intn(len(w.merchants))]
		c.balance = c.balance.Add(amount)
		r.NewBalanceOrig = c.balance
		return r

	case params.CashOut, params.Payment:
		r.NameDest = w.merchants[w.rng.Intn(len(w.merchants))]

	case params.Debit:
		r.NameDest = w.banks[c.bank]

	case params.Transfer:
		dest := w.clients[w.otherClient(idx)]
		r.NameDest = dest.name
		r.OldBalanceDest = dest.balance
		r.NewBalanceDest = dest.balance
		if c.balance.LessThan(amount) {
			r.IsUnauthorizedOverdraft = true
			return r
		}
		c.balance = c.balance.Sub(amount)
		dest.balance = dest.balance.Add(amount)
		r.NewBalanceOrig = c.balance
		r.NewBalanceDest = dest.balance
		return r
	}

	if c.balance.LessThan(amount) {
		r.IsUnauthorizedOverdraft = true
		return r
	}
	c.balance = c.balance.Sub(amount)
	r.NewBalanceOrig = c.balance
	return r
}

// fraud empties a victim's account into a mule and cashes it out. Transfers
// above the limit are flagged and blocked.
func (w *world) fraud(step int) []Record {
	vi := w.rng.Intn(len(w.clients))
	victim := w.clients[vi]
	mule := w.clients[w.otherClient(vi)]
	merchant := w.merchants[w.rng.Intn(len(w.merchants))]

	amount := victim.balance
	if !amount.IsPositive() {
		return nil
	}

	transfer := Record{
		Step:           step,
		Type:           params.Transfer,
		Amount:         amount,
		NameOrig:       victim.name,
		OldBalanceOrig: victim.balance,
		NewBalanceOrig: victim.balance,
		NameDest:       mule.name,
		OldBalanceDest: mule.balance,
		NewBalanceDest: mule.balance,
		IsFraud:        true,
	}
	if amount.GreaterThan(w.p.TransferLimit) {
		transfer.IsFlaggedFraud = true
		return []Record{transfer}
	}

	victim.balance = victim.balance.Sub(amount)
	mule.balance = mule.balance.Add(amount)
	transfer.NewBalanceOrig = victim.balance
	transfer.NewBalanceDest = mule.balance

	cashOut := Record{
		Step:           step,
		Type:           params.CashOut,
		Amount:         amount,
		NameOrig:       mule.name,
		OldBalanceOrig: mule.balance,
		NameDest:       merchant,
		IsFraud:        true,
	}
	mule.balance = mule.balance.Sub(amount)
	cashOut.NewBalanceOrig = mule.balance

	return []Record{transfer, cashOut}
}
