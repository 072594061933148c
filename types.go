// FILE: types.go
// Package main – Core data model shared across every component.
//
// Every price/money field uses decimal.Decimal, never float64: P&L and
// sizing math must not drift from binary-float rounding error.
package main

import (
	"fmt"
	"regexp"
	"time"

	"github.com/shopspring/decimal"
)

// Symbol is a ticker identity: 1-5 uppercase letters.
type Symbol string

var symbolPattern = regexp.MustCompile(`^[A-Z]{1,5}$`)

func (s Symbol) Valid() bool { return symbolPattern.MatchString(string(s)) }
func (s Symbol) String() string { return string(s) }

// Side is the order direction. Entries are BUY only (long-only engine); SELL
// is used to close positions.
type Side string

const SideBuy Side = "BUY"
const SideSell Side = "SELL"

// Phase is the market-hours classification from the Clock & Phase Oracle (C1).
type Phase string

const (
	PhaseClosed     Phase = "CLOSED"
	PhasePreMarket  Phase = "PRE_MARKET"
	PhaseRegular    Phase = "REGULAR"
	PhaseAfterHours Phase = "AFTER_HOURS"
)

// Quote is a point-in-time snapshot of a Symbol.
//
// Invariant: Bid <= Last <= Ask unless a leg is unknown (HasBid/HasAsk false);
// callers must never treat a missing leg as zero.
type Quote struct {
	Symbol     Symbol
	Last       decimal.Decimal
	Bid        decimal.Decimal
	Ask        decimal.Decimal
	HasBid     bool
	HasAsk     bool
	Volume     int64
	DayHigh    decimal.Decimal
	DayLow     decimal.Decimal
	PrevClose  decimal.Decimal
	CapturedAt time.Time
	Stale      bool // served from cache beyond the fresh TTL under budget pressure
}

// AccountSnapshot is the broker-reported account state.
type AccountSnapshot struct {
	AvailableCash         decimal.Decimal
	TotalAccountValue      decimal.Decimal
	ManagedPositionValue   decimal.Decimal
	PeakCapital            decimal.Decimal
	CapturedAt             time.Time
}

// Agreement is the categorical consensus among C5's strategy evaluators.
type Agreement int

const (
	AgreementNone Agreement = iota
	AgreementLow
	AgreementMedium
	AgreementHigh
)

func (a Agreement) String() string {
	switch a {
	case AgreementLow:
		return "LOW"
	case AgreementMedium:
		return "MEDIUM"
	case AgreementHigh:
		return "HIGH"
	default:
		return "NONE"
	}
}

// Signal is the decision artifact emitted once per symbol per round by C6.
type Signal struct {
	Symbol               Symbol
	Side                 Side // always SideBuy
	Confidence           decimal.Decimal // in [0, 0.999]
	ExpectedReturnPct    decimal.Decimal // non-negative
	QualityScore         decimal.Decimal // in [0, 100]
	StrategyAgreement    Agreement
	EntryReferencePrice  decimal.Decimal
	CreatedAt            time.Time
}

// PositionState is C9's stealth-trailing state machine state.
type PositionState string

const (
	StateInitial        PositionState = "INITIAL"
	StateBreakevenArmed PositionState = "BREAKEVEN_ARMED"
	StateTrailing       PositionState = "TRAILING"
	StateClosed         PositionState = "CLOSED"
)

// ExitReason classifies why a Position was closed. Authoritative per spec.md §4.9.1.
type ExitReason string

const (
	ExitStopHit            ExitReason = "StopHit"
	ExitTrailingStop       ExitReason = "TrailingStop"
	ExitBreakeven          ExitReason = "Breakeven"
	ExitTakeProfit         ExitReason = "TakeProfit"
	ExitTakeProfitExtended ExitReason = "TakeProfitExtended"
	ExitRSIExhaustion      ExitReason = "RSIExhaustion"
	ExitTimeExit           ExitReason = "TimeExit"
	ExitVolumeReversal     ExitReason = "VolumeReversal"
	ExitDataStarved        ExitReason = "DataStarved"
)

// Position is an open long exposure owned by this engine.
type Position struct {
	Symbol             Symbol
	EntryPrice         decimal.Decimal
	Quantity           decimal.Decimal
	EntryTime          time.Time
	StopPrice          decimal.Decimal
	TakeProfitPrice    decimal.Decimal
	InitialTakeProfit  decimal.Decimal // set once at open; TakeProfitPrice never moves
	HighWaterPrice     decimal.Decimal
	State              PositionState
	Simulated          bool
	ClientTag          string
	ExitReason         ExitReason
	ExitPrice          decimal.Decimal
	ExitTime           time.Time
	CloseAttemptFailed bool
	MissedQuoteStreak  int
	Confidence         decimal.Decimal
	ExpectedReturnPct  decimal.Decimal
}

// EntryValue is the USD value committed at entry (entry price * quantity).
func (p *Position) EntryValue() decimal.Decimal {
	return p.EntryPrice.Mul(p.Quantity)
}

// TradeRecord is an immutable close-out artifact appended to the bounded history.
type TradeRecord struct {
	Symbol     Symbol          `json:"symbol"`
	EntryPrice decimal.Decimal `json:"entry_price"`
	ExitPrice  decimal.Decimal `json:"exit_price"`
	Quantity   decimal.Decimal `json:"quantity"`
	EntryTime  time.Time       `json:"entry_time"`
	ExitTime   time.Time       `json:"exit_time"`
	PnLAbs     decimal.Decimal `json:"pnl_abs"`
	PnLPct     decimal.Decimal `json:"pnl_pct"`
	ExitReason ExitReason      `json:"exit_reason"`
	Simulated  bool            `json:"simulated"`
}

// Duration returns how long the position was held.
func (t TradeRecord) Duration() time.Duration { return t.ExitTime.Sub(t.EntryTime) }

// WorkingSet is the ordered, ranked subset of the daily watchlist.
type WorkingSet struct {
	Symbols   []Symbol
	RankedAt  time.Time
}

// Vote is one strategy evaluator's per-symbol verdict (C5).
type Vote string

const (
	VoteBuy     Vote = "BUY"
	VoteNeutral Vote = "NEUTRAL"
	VoteAvoid   Vote = "AVOID"
)

// StrategyResult is one evaluator's vote and internal score for a symbol.
type StrategyResult struct {
	Name  string
	Vote  Vote
	Score float64 // in [0,1]
}

// AgreementResult is C5's per-symbol output: the categorical agreement, the
// contributing per-strategy results, and a blended composite score.
type AgreementResult struct {
	Agreement  Agreement
	Strategies []StrategyResult
	Composite  float64 // in [0,1]
}

// GateCode identifies why the Risk Manager rejected a Signal.
type GateCode string

const (
	GateSafeMode        GateCode = "SafeMode"
	GatePositionLimit   GateCode = "PositionLimit"
	GateDailyLossLimit  GateCode = "DailyLossLimit"
	GateDrawdownLimit   GateCode = "DrawdownLimit"
	GateInsufficientCash GateCode = "InsufficientCash"
	GateMinSizeGate     GateCode = "MinSizeGate"
)

// RiskDecision is either an Approved sizing or a Rejected gate code.
type RiskDecision struct {
	Approved        bool
	Quantity        decimal.Decimal
	StopPrice       decimal.Decimal
	TakeProfitPrice decimal.Decimal
	RejectReason    GateCode
}

// Alert kinds pushed to the operator notification sink (§6.2).
type AlertKind string

const (
	AlertEntry    AlertKind = "entry"
	AlertExit     AlertKind = "exit"
	AlertOperator AlertKind = "operator"
)

// Alert is a typed, serializable notification record.
type Alert struct {
	Kind      AlertKind
	Symbol    Symbol
	Message   string
	CreatedAt time.Time
	Fields    map[string]string
}

func (a Alert) String() string {
	return fmt.Sprintf("[%s] %s %s: %s", a.CreatedAt.Format(time.RFC3339), a.Kind, a.Symbol, a.Message)
}
