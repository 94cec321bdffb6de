package strategy

import (
	"fmt"
	"math"
	"strconv"

	"github.com/shopspring/decimal"
	"github.com/yanun0323/errors"

	"backtester/pkg/exception"
)

// Params carries factory parameters, typically decoded from JSON.
type Params map[string]any

// Int returns the integer at key, or def when key is absent.
func (p Params) Int(key string, def int) (int, error) {
	v, ok := p[key]
	if !ok || v == nil {
		return def, nil
	}
	switch n := v.(type) {
	case int:
		return n, nil
	case int64:
		return int(n), nil
	case float64:
		if n != math.Trunc(n) {
			return 0, errors.Wrapf(exception.ErrStrategyConfig, "%s: %v is not an integer", key, n)
		}
		return int(n), nil
	case string:
		i, err := strconv.Atoi(n)
		if err != nil {
			return 0, errors.Wrapf(exception.ErrStrategyConfig, "%s: %q is not an integer", key, n)
		}
		return i, nil
	case fmt.Stringer:
		return Params{key: n.String()}.Int(key, def)
	default:
		return 0, errors.Wrapf(exception.ErrStrategyConfig, "%s: unsupported type %T", key, v)
	}
}

// Decimal returns the number at key, or def when key is absent.
func (p Params) Decimal(key string, def decimal.Decimal) (decimal.Decimal, error) {
	v, ok := p[key]
	if !ok || v == nil {
		return def, nil
	}
	switch n := v.(type) {
	case decimal.Decimal:
		return n, nil
	case int:
		return decimal.NewFromInt(int64(n)), nil
	case int64:
		return decimal.NewFromInt(n), nil
	case float64:
		return decimal.NewFromFloat(n), nil
	case string:
		d, err := decimal.NewFromString(n)
		if err != nil {
			return decimal.Zero, errors.Wrapf(exception.ErrStrategyConfig, "%s: %q is not a number", key, n)
		}
		return d, nil
	case fmt.Stringer:
		return Params{key: n.String()}.Decimal(key, def)
	default:
		return decimal.Zero, errors.Wrapf(exception.ErrStrategyConfig, "%s: unsupported type %T", key, v)
	}
}

// Text returns the string at key, or def when key is absent or empty.
func (p Params) Text(key string, def string) string {
	v, ok := p[key]
	if !ok || v == nil {
		return def
	}
	s := fmt.Sprint(v)
	if s == "" {
		return def
	}
	return s
}
