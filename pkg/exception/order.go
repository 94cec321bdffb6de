package exception

import "github.com/yanun0323/errors"

var (
	ErrOrderNotFound        = errors.New("order: not found")
	ErrOrderInvalid         = errors.New("order: invalid")
	ErrInvalidTransition    = errors.New("order: invalid status transition")
	ErrOrderUnsupportedType = errors.New("order: unsupported type")
)
