package strategy

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"backtester/internal/schema"
	"backtester/pkg/exception"
)

func TestRegistryBuildsDefaults(t *testing.T) {
	s, err := New(MACrossoverName, nil)
	require.NoError(t, err)
	assert.Equal(t, "MovingAverageCrossover(10,30)", s.Name())
}

func TestRegistryParams(t *testing.T) {
	s, err := New(MACrossoverName, Params{"fast": 2.0, "slow": "3", "size": 0.5, "instrument": "ETHUSD"})
	require.NoError(t, err)

	ma, ok := s.(*MACrossover)
	require.True(t, ok)
	assert.Equal(t, 2, ma.fast)
	assert.Equal(t, 3, ma.slow)
	assert.Equal(t, "0.5", ma.size.String())
	assert.Equal(t, "ETHUSD", ma.instrument)
}

func TestRegistryRejectsInvalidParams(t *testing.T) {
	_, err := New(MACrossoverName, Params{"fast": 5, "slow": 3})
	require.ErrorIs(t, err, exception.ErrStrategyConfig)

	_, err = New(MACrossoverName, Params{"fast": 2.5})
	require.ErrorIs(t, err, exception.ErrStrategyConfig)

	_, err = New(MACrossoverName, Params{"size": "abc"})
	require.ErrorIs(t, err, exception.ErrStrategyConfig)
}

func TestRegistryUnknownName(t *testing.T) {
	_, err := New("does-not-exist", nil)
	require.ErrorIs(t, err, exception.ErrStrategyUnknown)
}

type noopStrategy struct{ Base }

func (noopStrategy) Initialize()                 {}
func (noopStrategy) OnTick(schema.Tick) Decision { return Decision{} }
func (noopStrategy) Name() string                { return "noop" }

func TestRegisterCustomStrategy(t *testing.T) {
	Register("noop-test", func(Params) (Strategy, error) { return noopStrategy{}, nil })
	assert.Contains(t, Names(), "noop-test")
	assert.Contains(t, Names(), MACrossoverName)

	s, err := New("noop-test", nil)
	require.NoError(t, err)
	assert.Equal(t, "noop", s.Name())
	s.OnExecution(schema.Execution{})
}
