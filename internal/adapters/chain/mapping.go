// Package chain convierte volcados de cuentas on-chain (JSON sin tipar) en
// contratos del dominio, para importarlos al store.
package chain

import (
	"encoding/json"
	"fmt"
	"io"
	"math"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"

	"github.com/alejandrodnm/likeli/internal/domain"
)

// DefaultDecimals son los decimales del token de colateral.
const DefaultDecimals = 6

const (
	kindMarket      = "market"
	kindMultiMarket = "multiMarket"
)

// Decoder lee volcados de cuentas.
type Decoder struct {
	decimals int
	maxLen   int
}

// NewDecoder crea un Decoder. decimals <= 0 usa DefaultDecimals.
func NewDecoder(decimals int) *Decoder {
	if decimals <= 0 {
		decimals = DefaultDecimals
	}
	return &Decoder{decimals: decimals, maxLen: 200}
}

// Decode lee un array JSON de cuentas y devuelve los contratos válidos. Una
// cuenta inválida aborta la importación entera.
func (d *Decoder) Decode(r io.Reader) ([]domain.Contract, error) {
	dec := json.NewDecoder(r)
	dec.UseNumber()
	var raw []map[string]any
	if err := dec.Decode(&raw); err != nil {
		return nil, fmt.Errorf("chain.Decode: %w", err)
	}
	out := make([]domain.Contract, 0, len(raw))
	for i, acc := range raw {
		c, err := d.MapAccount(acc)
		if err != nil {
			return nil, fmt.Errorf("chain.Decode: account %d: %w", i, err)
		}
		out = append(out, c)
	}
	return out, nil
}

// MapAccount valida una cuenta y la convierte en un contrato.
func (d *Decoder) MapAccount(acc map[string]any) (domain.Contract, error) {
	kind, _ := str(acc, "kind")
	switch kind {
	case kindMarket, "":
		return d.mapMarket(acc)
	case kindMultiMarket:
		return d.mapMultiMarket(acc)
	}
	return domain.Contract{}, fmt.Errorf("kind %q: %w", kind, domain.ErrInvalidMarket)
}

func (d *Decoder) mapMarket(acc map[string]any) (domain.Contract, error) {
	c, err := d.header(acc)
	if err != nil {
		return domain.Contract{}, err
	}
	yes, err := d.amount(acc, "yesPool")
	if err != nil {
		return domain.Contract{}, err
	}
	no, err := d.amount(acc, "noPool")
	if err != nil {
		return domain.Contract{}, err
	}
	if yes <= 0 || no <= 0 {
		return domain.Contract{}, fmt.Errorf("%s: empty pool %v/%v: %w", c.ID, yes, no, domain.ErrInvalidMarket)
	}
	c.Mechanism = domain.MechanismCPMM
	c.Outcomes = &domain.Binary{Pool: domain.Pool{YES: yes, NO: no}, P: 0.5}
	c.TotalLiquidity = yes + no

	if resolved, _ := boolean(acc, "resolved"); resolved {
		c.Resolution = domain.ResolutionNo
		if out, _ := boolean(acc, "outcome"); out {
			c.Resolution = domain.ResolutionYes
		}
		t := c.CreatedAt
		if rt, ok, err := unix(acc, "resolutionTime"); err == nil && ok {
			t = rt
		}
		c.ResolvedAt = &t
	}
	return c, nil
}

func (d *Decoder) mapMultiMarket(acc map[string]any) (domain.Contract, error) {
	c, err := d.header(acc)
	if err != nil {
		return domain.Contract{}, err
	}
	rawAnswers, ok := acc["answers"].([]any)
	if !ok || len(rawAnswers) < 2 || len(rawAnswers) > 10 {
		return domain.Contract{}, fmt.Errorf("%s: answers must be a list of 2..10: %w", c.ID, domain.ErrInvalidMarket)
	}
	sumToOne, _ := boolean(acc, "isOneWinner")

	answers := make([]domain.Answer, 0, len(rawAnswers))
	seen := make(map[int]bool)
	for i, ra := range rawAnswers {
		am, ok := ra.(map[string]any)
		if !ok {
			return domain.Contract{}, fmt.Errorf("%s: answer %d is %T: %w", c.ID, i, ra, domain.ErrInvalidMarket)
		}
		a, err := d.mapAnswer(c.ID, i, am)
		if err != nil {
			return domain.Contract{}, err
		}
		if seen[a.Index] {
			return domain.Contract{}, fmt.Errorf("%s: duplicated answer index %d: %w", c.ID, a.Index, domain.ErrInvalidMarket)
		}
		seen[a.Index] = true
		answers = append(answers, a)
	}
	sort.Slice(answers, func(i, j int) bool { return answers[i].Index < answers[j].Index })

	c.Mechanism = domain.MechanismCPMMMulti
	mc := &domain.MultipleChoice{Answers: answers, ShouldAnswersSumToOne: sumToOne}
	c.Outcomes = mc
	c.TotalLiquidity = c.AggregatePool().Total()

	allResolved := true
	for _, a := range answers {
		allResolved = allResolved && a.IsResolved()
	}
	if resolved, _ := boolean(acc, "resolved"); resolved || allResolved {
		c.Resolution = domain.ResolutionChoice
		t := c.CreatedAt
		c.ResolvedAt = &t
	}
	return c, nil
}

func (d *Decoder) mapAnswer(contractID string, i int, am map[string]any) (domain.Answer, error) {
	a := domain.Answer{P: 0.5, Index: i}
	if idx, ok, err := integer(am, "index"); err != nil {
		return domain.Answer{}, err
	} else if ok {
		a.Index = int(idx)
	}
	a.ID, _ = str(am, "address")
	if a.ID == "" {
		a.ID = fmt.Sprintf("%s-%d", contractID, a.Index)
	}
	a.Text, _ = str(am, "label")
	if strings.TrimSpace(a.Text) == "" {
		a.Text = fmt.Sprintf("Answer %d", a.Index+1)
	} else if err := verifyHash(am, "labelHash", a.Text); err != nil {
		return domain.Answer{}, fmt.Errorf("%s: answer %d: %w", contractID, a.Index, err)
	}

	var err error
	if a.Pool.YES, err = d.amount(am, "yesPool"); err != nil {
		return domain.Answer{}, err
	}
	if a.Pool.NO, err = d.amount(am, "noPool"); err != nil {
		return domain.Answer{}, err
	}
	if a.Pool.YES <= 0 || a.Pool.NO <= 0 {
		return domain.Answer{}, fmt.Errorf("%s: answer %d empty pool: %w", contractID, a.Index, domain.ErrInvalidMarket)
	}
	if a.Volume, err = d.optionalAmount(am, "volume"); err != nil {
		return domain.Answer{}, err
	}

	// outcome: null = sin resolver aunque resolved sea true
	if resolved, _ := boolean(am, "resolved"); resolved {
		if out, ok := boolean(am, "outcome"); ok {
			a.Resolution = domain.ResolutionNo
			if out {
				a.Resolution = domain.ResolutionYes
			}
		}
	}
	return a, nil
}

// header mapea los campos comunes: identidad, pregunta, fechas y comisiones.
func (d *Decoder) header(acc map[string]any) (domain.Contract, error) {
	var c domain.Contract
	c.ID, _ = str(acc, "address")
	if c.ID == "" {
		return domain.Contract{}, fmt.Errorf("missing address: %w", domain.ErrInvalidMarket)
	}
	c.CreatorID, _ = str(acc, "creator")
	if c.CreatorID == "" {
		return domain.Contract{}, fmt.Errorf("%s: missing creator: %w", c.ID, domain.ErrInvalidMarket)
	}
	c.Question, _ = str(acc, "question")
	c.Question = strings.TrimSpace(c.Question)
	if c.Question == "" || len([]rune(c.Question)) > d.maxLen {
		return domain.Contract{}, fmt.Errorf("%s: question length %d: %w", c.ID, len([]rune(c.Question)), domain.ErrInvalidMarket)
	}
	if err := verifyHash(acc, "questionHash", c.Question); err != nil {
		return domain.Contract{}, fmt.Errorf("%s: %w", c.ID, err)
	}
	c.Phase = domain.PhaseMain

	created, ok, err := unix(acc, "createdAt")
	if err != nil {
		return domain.Contract{}, fmt.Errorf("%s: %w", c.ID, err)
	}
	if ok {
		c.CreatedAt = created
	}

	vol, err := d.optionalAmount(acc, "totalVolume")
	if err != nil {
		return domain.Contract{}, fmt.Errorf("%s: %w", c.ID, err)
	}
	if vol == 0 {
		if vol, err = d.optionalAmount(acc, "volume"); err != nil {
			return domain.Contract{}, fmt.Errorf("%s: %w", c.ID, err)
		}
	}
	c.Volume = vol

	for key, dst := range map[string]*int{
		"creatorFeeBps":   &c.Fees.CreatorBps,
		"platformFeeBps":  &c.Fees.PlatformBps,
		"liquidityFeeBps": &c.Fees.LiquidityBps,
	} {
		v, _, err := integer(acc, key)
		if err != nil {
			return domain.Contract{}, fmt.Errorf("%s: %w", c.ID, err)
		}
		*dst = int(v)
	}
	// fee_bps suelto sin desglose: todo a plataforma
	if c.Fees.TotalBps() == 0 {
		v, _, err := integer(acc, "feeBps")
		if err != nil {
			return domain.Contract{}, fmt.Errorf("%s: %w", c.ID, err)
		}
		c.Fees.PlatformBps = int(v)
	}
	if err := c.Fees.Validate(); err != nil {
		return domain.Contract{}, fmt.Errorf("%s: %w", c.ID, err)
	}
	return c, nil
}

func (d *Decoder) amount(m map[string]any, key string) (float64, error) {
	v, ok, err := number(m, key)
	if err != nil {
		return 0, err
	}
	if !ok {
		return 0, fmt.Errorf("missing %s: %w", key, domain.ErrInvalidMarket)
	}
	if v < 0 {
		return 0, fmt.Errorf("%s = %v: %w", key, v, domain.ErrInvalidMarket)
	}
	return v / math.Pow10(d.decimals), nil
}

func (d *Decoder) optionalAmount(m map[string]any, key string) (float64, error) {
	if _, ok := m[key]; !ok {
		return 0, nil
	}
	return d.amount(m, key)
}

// verifyHash comprueba que keccak256(text) coincide con el hash guardado en la
// cuenta. Sin hash no hay nada que comprobar.
func verifyHash(m map[string]any, key, text string) error {
	h, ok := str(m, key)
	if !ok || h == "" {
		return nil
	}
	raw := strings.TrimPrefix(strings.ToLower(h), "0x")
	if len(raw) != 2*common.HashLength {
		return fmt.Errorf("%s %q: %w", key, h, domain.ErrInvalidMarket)
	}
	if common.HexToHash(raw) != crypto.Keccak256Hash([]byte(text)) {
		return fmt.Errorf("%s does not match %q: %w", key, text, domain.ErrInvalidMarket)
	}
	return nil
}

// HashText devuelve el hash hex que se guarda on-chain para una pregunta o etiqueta.
func HashText(text string) string {
	return crypto.Keccak256Hash([]byte(text)).Hex()
}

// --- accesores tolerantes ---

func str(m map[string]any, key string) (string, bool) {
	v, ok := m[key]
	if !ok || v == nil {
		return "", false
	}
	switch x := v.(type) {
	case string:
		return x, true
	case json.Number:
		return x.String(), true
	}
	return fmt.Sprint(v), true
}

func boolean(m map[string]any, key string) (bool, bool) {
	switch x := m[key].(type) {
	case bool:
		return x, true
	case string:
		b, err := strconv.ParseBool(x)
		return b, err == nil
	case json.Number:
		n, err := x.Int64()
		return n != 0, err == nil
	case float64:
		return x != 0, true
	}
	return false, false
}

// number acepta números JSON, float64 y strings decimales (u64 serializados).
func number(m map[string]any, key string) (float64, bool, error) {
	v, ok := m[key]
	if !ok || v == nil {
		return 0, false, nil
	}
	var (
		f   float64
		err error
	)
	switch x := v.(type) {
	case json.Number:
		f, err = x.Float64()
	case float64:
		f = x
	case int:
		f = float64(x)
	case int64:
		f = float64(x)
	case uint64:
		f = float64(x)
	case string:
		f, err = strconv.ParseFloat(strings.TrimSpace(x), 64)
	default:
		return 0, false, fmt.Errorf("%s has type %T: %w", key, v, domain.ErrInvalidMarket)
	}
	if err != nil || math.IsNaN(f) || math.IsInf(f, 0) {
		return 0, false, fmt.Errorf("%s = %v: %w", key, v, domain.ErrInvalidMarket)
	}
	return f, true, nil
}

func integer(m map[string]any, key string) (int64, bool, error) {
	f, ok, err := number(m, key)
	if err != nil || !ok {
		return 0, ok, err
	}
	if f != math.Trunc(f) {
		return 0, false, fmt.Errorf("%s = %v is not an integer: %w", key, f, domain.ErrInvalidMarket)
	}
	return int64(f), true, nil
}

func unix(m map[string]any, key string) (time.Time, bool, error) {
	sec, ok, err := integer(m, key)
	if err != nil || !ok {
		return time.Time{}, ok, err
	}
	return time.Unix(sec, 0).UTC(), true, nil
}
