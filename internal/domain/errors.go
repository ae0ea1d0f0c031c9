package domain

import "errors"

var (
	// ErrNoLiquidity is returned when a book walk finds insufficient depth
	// on the requested side. Never retried.
	ErrNoLiquidity = errors.New("no liquidity")

	// ErrNotConnected is returned when an action requiring a wallet runs
	// with no wallet connected. Always surfaced, never retried.
	ErrNotConnected = errors.New("wallet not connected")

	// ErrMarketNotFound is returned when an address resolves to no catalog
	// entry.
	ErrMarketNotFound = errors.New("market not found")

	// ErrStaleMarket marks a market account whose contents no longer match
	// the catalog listing that pointed at it.
	ErrStaleMarket = errors.New("stale market")

	// ErrDeprecatedMarket marks a selection that resolved to a deprecated
	// market with no fallback configured to redirect it to.
	ErrDeprecatedMarket = errors.New("deprecated market")
)

// ErrorKind is a stable identifier for programmatic handling of order and
// settlement failures.
type ErrorKind string

const (
	KindNotConnected     ErrorKind = "NotConnected"
	KindMissingMarket    ErrorKind = "MissingMarket"
	KindMissingAccount   ErrorKind = "MissingAccount"
	KindValidation       ErrorKind = "Validation"
	KindTransportFailure ErrorKind = "TransportFailure"
)

// OrderError is a typed failure from placing or cancelling an order. The
// transport's underlying message is carried verbatim in Err.
type OrderError struct {
	Kind ErrorKind
	Op   string // "place", "cancel"
	Msg  string
	Err  error
}

func (e *OrderError) Error() string {
	s := e.Op + ": " + e.Msg
	if e.Err != nil {
		s += ": " + e.Err.Error()
	}
	return s
}

func (e *OrderError) Unwrap() error { return e.Err }

// SettleError is a typed failure from settling funds.
type SettleError struct {
	Kind ErrorKind
	Msg  string
	Err  error
}

func (e *SettleError) Error() string {
	s := "settle: " + e.Msg
	if e.Err != nil {
		s += ": " + e.Err.Error()
	}
	return s
}

func (e *SettleError) Unwrap() error { return e.Err }

// ConnectivityError wraps a failed transport call. The cache recovers these
// locally by evicting the entry so the next read retries.
type ConnectivityError struct {
	Method string
	Err    error
}

func (e *ConnectivityError) Error() string {
	return "transport " + e.Method + ": " + e.Err.Error()
}

func (e *ConnectivityError) Unwrap() error { return e.Err }
