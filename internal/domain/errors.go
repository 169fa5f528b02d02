package domain

import "errors"

// Errores de dominio. Los adapters y el engine los envuelven con
// fmt.Errorf("pkg.Func: ...: %w", err); los callers comparan con errors.Is.
var (
	ErrInsufficientBalance    = errors.New("insufficient balance")
	ErrInsufficientShares     = errors.New("insufficient shares")
	ErrMarketNotFound         = errors.New("market not found")
	ErrAnswerNotFound         = errors.New("answer not found")
	ErrUserNotFound           = errors.New("user not found")
	ErrMarketResolved         = errors.New("market already resolved")
	ErrInvalidAmount          = errors.New("invalid amount")
	ErrInvalidProbability     = errors.New("invalid probability")
	ErrPoolWouldDrain         = errors.New("pool would drain below minimum")
	ErrNotMultiChoice         = errors.New("market is not multiple choice")
	ErrArbitrageNotApplicable = errors.New("arbitrage not applicable to independent answers")
	ErrArbitrageInfeasible    = errors.New("arbitrage infeasible for this amount")
	ErrOrderNotFound          = errors.New("limit order not found")
	ErrNotOwner               = errors.New("not the order owner")
	ErrAlreadyFilled          = errors.New("limit order already filled")
	ErrAlreadyCancelled       = errors.New("limit order already cancelled")
	ErrSlippageExceeded       = errors.New("slippage exceeded")
	ErrInvalidMarket          = errors.New("invalid market parameters")
	ErrInvalidFees            = errors.New("invalid fee schedule")
	ErrInvalidResolution      = errors.New("invalid resolution")
	ErrUnauthorized           = errors.New("unauthorized")
	ErrPhaseNotMain           = errors.New("limit orders require the main phase")
	ErrLimitOrdersUnsupported = errors.New("limit orders are not supported on this market")
	ErrInvalidPhaseTransition = errors.New("invalid phase transition")
)
