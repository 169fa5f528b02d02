package domain

import (
	"encoding/json"
	"fmt"
	"time"
)

// OutcomeType distingue mercados binarios de multi-respuesta.
type OutcomeType string

const (
	OutcomeBinary         OutcomeType = "BINARY"
	OutcomeMultipleChoice OutcomeType = "MULTIPLE_CHOICE"
)

const (
	MechanismCPMM      = "cpmm-1"
	MechanismCPMMMulti = "cpmm-multi-1"
)

// Phase es la etapa de vida del mercado. Solo avanza.
type Phase string

const (
	PhaseSandbox    Phase = "sandbox"
	PhaseGraduating Phase = "graduating"
	PhaseMain       Phase = "main"
)

func (p Phase) rank() int {
	switch p {
	case PhaseSandbox:
		return 0
	case PhaseGraduating:
		return 1
	case PhaseMain:
		return 2
	}
	return -1
}

func (p Phase) Valid() bool { return p.rank() >= 0 }

// CanAdvanceTo indica si la transición p → next es válida (estrictamente hacia delante).
func (p Phase) CanAdvanceTo(next Phase) bool {
	return p.Valid() && next.Valid() && next.rank() > p.rank()
}

// Resolution es el resultado de un mercado o de una respuesta.
type Resolution string

const (
	ResolutionYes    Resolution = "YES"
	ResolutionNo     Resolution = "NO"
	ResolutionMkt    Resolution = "MKT"
	ResolutionCancel Resolution = "CANCEL"
	// ResolutionChoice marca un multi-respuesta resuelto; el detalle vive en cada Answer.
	ResolutionChoice Resolution = "CHOICE"
)

func (r Resolution) Valid() bool {
	switch r {
	case ResolutionYes, ResolutionNo, ResolutionMkt, ResolutionCancel:
		return true
	}
	return false
}

// Outcomes es la variante etiquetada de un contrato: *Binary o *MultipleChoice.
type Outcomes interface {
	Type() OutcomeType
	cloneOutcomes() Outcomes
}

// Binary es un mercado YES/NO con un único pool.
type Binary struct {
	Pool Pool    `json:"pool"`
	P    float64 `json:"p"`
}

func (*Binary) Type() OutcomeType { return OutcomeBinary }

func (b *Binary) cloneOutcomes() Outcomes {
	cp := *b
	return &cp
}

// MultipleChoice es un mercado con N respuestas, cada una con su pool.
type MultipleChoice struct {
	Answers               []Answer `json:"answers"`
	ShouldAnswersSumToOne bool     `json:"shouldAnswersSumToOne"`
}

func (*MultipleChoice) Type() OutcomeType { return OutcomeMultipleChoice }

func (m *MultipleChoice) cloneOutcomes() Outcomes {
	cp := *m
	cp.Answers = append([]Answer(nil), m.Answers...)
	return &cp
}

// Answer devuelve un puntero a la respuesta con ese id.
func (m *MultipleChoice) Answer(id string) (*Answer, error) {
	for i := range m.Answers {
		if m.Answers[i].ID == id {
			return &m.Answers[i], nil
		}
	}
	return nil, fmt.Errorf("answer %q: %w", id, ErrAnswerNotFound)
}

// ProbabilitySum suma las probabilidades de todas las respuestas.
func (m *MultipleChoice) ProbabilitySum() float64 {
	var sum float64
	for _, a := range m.Answers {
		sum += a.Probability()
	}
	return sum
}

// SumToOne devuelve la vista de arbitraje; solo existe para mercados sum-to-one.
func (m *MultipleChoice) SumToOne() (SumToOneAnswers, bool) {
	if !m.ShouldAnswersSumToOne {
		return SumToOneAnswers{}, false
	}
	return SumToOneAnswers{answers: append([]Answer(nil), m.Answers...)}, true
}

// SumToOneAnswers es una copia de las respuestas de un mercado sum-to-one.
// Solo se construye desde MultipleChoice.SumToOne, así el arbitraje no puede
// recibir respuestas independientes.
type SumToOneAnswers struct {
	answers []Answer
}

func (s SumToOneAnswers) Answers() []Answer { return append([]Answer(nil), s.answers...) }

func (s SumToOneAnswers) Len() int { return len(s.answers) }

// Index devuelve la posición de la respuesta o -1.
func (s SumToOneAnswers) Index(id string) int {
	for i, a := range s.answers {
		if a.ID == id {
			return i
		}
	}
	return -1
}

// Answer es una opción de un mercado multi-respuesta.
type Answer struct {
	ID                    string     `json:"id"`
	Text                  string     `json:"text"`
	Index                 int        `json:"index"`
	Pool                  Pool       `json:"pool"`
	P                     float64    `json:"p"`
	Volume                float64    `json:"volume"`
	Resolution            Resolution `json:"resolution,omitempty"`
	ResolutionProbability float64    `json:"resolutionProbability,omitempty"`
}

func (a Answer) Probability() float64 { return Probability(a.Pool, a.P) }

func (a Answer) IsResolved() bool { return a.Resolution != "" }

// Contract es un mercado de predicción.
type Contract struct {
	ID              string      `json:"id"`
	CreatorID       string      `json:"creatorId"`
	Question        string      `json:"question"`
	Mechanism       string      `json:"mechanism"`
	Phase           Phase       `json:"phase"`
	Fees            FeeSchedule `json:"fees"`
	Outcomes        Outcomes    `json:"-"`
	Volume          float64     `json:"volume"`
	TotalLiquidity  float64     `json:"totalLiquidity"`
	CollectedFees   Fees        `json:"collectedFees"`
	UniqueBettorIDs []string    `json:"uniqueBettorIds,omitempty"`
	CreatedAt       time.Time   `json:"createdTime"`

	Resolution            Resolution `json:"resolution,omitempty"`
	ResolutionProbability float64    `json:"resolutionProbability,omitempty"`
	ResolverID            string     `json:"resolverId,omitempty"`
	ResolvedAt            *time.Time `json:"resolutionTime,omitempty"`
}

// OutcomeType devuelve la etiqueta de la variante.
func (c Contract) OutcomeType() OutcomeType {
	if c.Outcomes == nil {
		return ""
	}
	return c.Outcomes.Type()
}

func (c Contract) IsResolved() bool { return c.Resolution != "" }

// Binary devuelve la variante binaria, si lo es.
func (c *Contract) Binary() (*Binary, bool) {
	b, ok := c.Outcomes.(*Binary)
	return b, ok
}

// MultipleChoice devuelve la variante multi-respuesta, si lo es.
func (c *Contract) MultipleChoice() (*MultipleChoice, bool) {
	m, ok := c.Outcomes.(*MultipleChoice)
	return m, ok
}

// Clone hace una copia profunda; el engine trabaja siempre sobre copias.
func (c Contract) Clone() Contract {
	cp := c
	if c.Outcomes != nil {
		cp.Outcomes = c.Outcomes.cloneOutcomes()
	}
	cp.UniqueBettorIDs = append([]string(nil), c.UniqueBettorIDs...)
	if c.ResolvedAt != nil {
		t := *c.ResolvedAt
		cp.ResolvedAt = &t
	}
	return cp
}

// PoolFor devuelve el pool operable y su p: el binario (answerID vacío) o el
// de la respuesta.
func (c *Contract) PoolFor(answerID string) (*Pool, float64, error) {
	switch o := c.Outcomes.(type) {
	case *Binary:
		if answerID != "" {
			return nil, 0, fmt.Errorf("binary market %s has no answer %q: %w", c.ID, answerID, ErrAnswerNotFound)
		}
		return &o.Pool, o.P, nil
	case *MultipleChoice:
		a, err := o.Answer(answerID)
		if err != nil {
			return nil, 0, err
		}
		return &a.Pool, a.P, nil
	}
	return nil, 0, fmt.Errorf("market %s: %w", c.ID, ErrInvalidMarket)
}

// Probability devuelve la probabilidad actual de YES en el pool indicado.
func (c *Contract) Probability(answerID string) (float64, error) {
	pool, p, err := c.PoolFor(answerID)
	if err != nil {
		return 0, err
	}
	return Probability(*pool, p), nil
}

// CheckTradable rechaza trades en mercados o respuestas ya resueltos.
func (c *Contract) CheckTradable(answerID string) error {
	if c.IsResolved() {
		return fmt.Errorf("market %s: %w", c.ID, ErrMarketResolved)
	}
	if m, ok := c.MultipleChoice(); ok {
		a, err := m.Answer(answerID)
		if err != nil {
			return err
		}
		if a.IsResolved() {
			return fmt.Errorf("answer %s: %w", a.ID, ErrMarketResolved)
		}
	}
	return nil
}

// AddVolume suma volumen al contrato y a la respuesta.
func (c *Contract) AddVolume(answerID string, amount float64) {
	c.Volume += amount
	if m, ok := c.MultipleChoice(); ok {
		if a, err := m.Answer(answerID); err == nil {
			a.Volume += amount
		}
	}
}

// AggregatePool suma los pools; en multi-respuesta es solo informativo.
func (c Contract) AggregatePool() Pool {
	switch o := c.Outcomes.(type) {
	case *Binary:
		return o.Pool
	case *MultipleChoice:
		var agg Pool
		for _, a := range o.Answers {
			agg.YES += a.Pool.YES
			agg.NO += a.Pool.NO
		}
		return agg
	}
	return Pool{}
}

// HasBettor indica si el usuario ya apostó en este mercado.
func (c Contract) HasBettor(userID string) bool {
	for _, id := range c.UniqueBettorIDs {
		if id == userID {
			return true
		}
	}
	return false
}

type contractAlias Contract

type contractJSON struct {
	contractAlias
	OutcomeType    OutcomeType     `json:"outcomeType"`
	Binary         *Binary         `json:"binary,omitempty"`
	MultipleChoice *MultipleChoice `json:"multipleChoice,omitempty"`
}

// MarshalJSON serializa la variante con su etiqueta outcomeType.
func (c Contract) MarshalJSON() ([]byte, error) {
	out := contractJSON{contractAlias: contractAlias(c), OutcomeType: c.OutcomeType()}
	switch o := c.Outcomes.(type) {
	case *Binary:
		out.Binary = o
	case *MultipleChoice:
		out.MultipleChoice = o
	}
	return json.Marshal(out)
}

// UnmarshalJSON reconstruye la variante a partir de outcomeType.
func (c *Contract) UnmarshalJSON(data []byte) error {
	var in contractJSON
	if err := json.Unmarshal(data, &in); err != nil {
		return err
	}
	*c = Contract(in.contractAlias)
	switch in.OutcomeType {
	case OutcomeBinary:
		if in.Binary == nil {
			return fmt.Errorf("contract %s: binary outcome without pool: %w", c.ID, ErrInvalidMarket)
		}
		c.Outcomes = in.Binary
	case OutcomeMultipleChoice:
		if in.MultipleChoice == nil {
			return fmt.Errorf("contract %s: multiple choice without answers: %w", c.ID, ErrInvalidMarket)
		}
		c.Outcomes = in.MultipleChoice
	default:
		return fmt.Errorf("contract %s: outcome type %q: %w", c.ID, in.OutcomeType, ErrInvalidMarket)
	}
	return nil
}

// SeedBinaryPool reparte la liquidez inicial a partes iguales (prob 0.5 con p = 0.5).
func SeedBinaryPool(liquidity float64) Pool {
	return Pool{YES: liquidity / 2, NO: liquidity / 2}
}

// SeedAnswerPool devuelve el pool inicial de una de n respuestas con liquidez
// total `liquidity`. En sum-to-one cada respuesta arranca en 1/n
// (NO = L, YES = (n-1)·L); las independientes en 0.5.
func SeedAnswerPool(liquidity float64, n int, sumToOne bool) Pool {
	per := liquidity / float64(n)
	if !sumToOne {
		return Pool{YES: per, NO: per}
	}
	return Pool{YES: float64(n-1) * per, NO: per}
}
