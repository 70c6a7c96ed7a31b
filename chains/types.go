package chains

import "github.com/defistate/defistate-arb-go/engine"

// Logger defines a standard interface for structured, leveled logging.
type Logger interface {
	Debug(msg string, args ...any)
	Info(msg string, args ...any)
	Warn(msg string, args ...any)
	Error(msg string, args ...any)
}

// AccountStream is a source of raw balances for watched accounts. Err
// carries fatal errors; after one the stream produces nothing more.
type AccountStream interface {
	Balances() <-chan engine.AccountBalance
	Err() <-chan error
}
