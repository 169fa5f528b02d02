package domain

import "fmt"

// MaxTotalFeeBps es el máximo total de comisiones (10%).
const MaxTotalFeeBps = 1000

// FeeSchedule son las comisiones de taker en basis points.
type FeeSchedule struct {
	CreatorBps   int `json:"creatorBps" yaml:"creator_bps"`
	PlatformBps  int `json:"platformBps" yaml:"platform_bps"`
	LiquidityBps int `json:"liquidityBps" yaml:"liquidity_bps"`
}

// TotalBps suma las tres comisiones.
func (f FeeSchedule) TotalBps() int { return f.CreatorBps + f.PlatformBps + f.LiquidityBps }

// Validate rechaza comisiones negativas o por encima del 10% total.
func (f FeeSchedule) Validate() error {
	if f.CreatorBps < 0 || f.PlatformBps < 0 || f.LiquidityBps < 0 {
		return fmt.Errorf("negative fee bps %+v: %w", f, ErrInvalidFees)
	}
	if f.TotalBps() > MaxTotalFeeBps {
		return fmt.Errorf("total %d bps > %d: %w", f.TotalBps(), MaxTotalFeeBps, ErrInvalidFees)
	}
	return nil
}

// Compute reparte las comisiones sobre amount.
func (f FeeSchedule) Compute(amount float64) Fees {
	if amount <= 0 {
		return Fees{}
	}
	return Fees{
		Creator:   amount * float64(f.CreatorBps) / 10_000,
		Platform:  amount * float64(f.PlatformBps) / 10_000,
		Liquidity: amount * float64(f.LiquidityBps) / 10_000,
	}
}

// Fees son importes de comisión ya calculados.
type Fees struct {
	Creator   float64 `json:"creatorFee"`
	Platform  float64 `json:"platformFee"`
	Liquidity float64 `json:"liquidityFee"`
}

func (f Fees) Total() float64 { return f.Creator + f.Platform + f.Liquidity }

// Add acumula otra comisión.
func (f Fees) Add(o Fees) Fees {
	return Fees{
		Creator:   f.Creator + o.Creator,
		Platform:  f.Platform + o.Platform,
		Liquidity: f.Liquidity + o.Liquidity,
	}
}
