package exception

import "github.com/yanun0323/errors"

var (
	ErrStrategyConfig  = errors.New("strategy: invalid config")
	ErrStrategyUnknown = errors.New("strategy: unknown")
)
