package tier

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestCalculator_Calc(t *testing.T) {
	calc := NewCalculator(DefaultSilverMin, DefaultGoldMin)

	tests := []struct {
		name   string
		points int64
		want   Tier
	}{
		{
			"zero points",
			0,
			Bronze,
		},
		{
			"negative points",
			-100,
			Bronze,
		},
		{
			"one below silver",
			DefaultSilverMin - 1,
			Bronze,
		},
		{
			"exactly silver",
			DefaultSilverMin,
			Silver,
		},
		{
			"between silver and gold",
			DefaultSilverMin + 1,
			Silver,
		},
		{
			"one below gold",
			DefaultGoldMin - 1,
			Silver,
		},
		{
			"exactly gold",
			DefaultGoldMin,
			Gold,
		},
		{
			"far above gold",
			DefaultGoldMin * 10,
			Gold,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, calc.Calc(tt.points))
		})
	}
}

func TestCalculator_NextTierPoints(t *testing.T) {
	calc := NewCalculator(DefaultSilverMin, DefaultGoldMin)

	tests := []struct {
		name   string
		tier   Tier
		points int64
		want   int64
	}{
		{
			"fresh bronze",
			Bronze,
			0,
			DefaultSilverMin,
		},
		{
			"bronze halfway",
			Bronze,
			DefaultSilverMin / 2,
			DefaultSilverMin / 2,
		},
		{
			"silver",
			Silver,
			DefaultSilverMin,
			DefaultGoldMin - DefaultSilverMin,
		},
		{
			"gold is terminal",
			Gold,
			DefaultGoldMin,
			0,
		},
		{
			"never negative",
			Bronze,
			DefaultSilverMin + 500,
			0,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, calc.NextTierPoints(tt.tier, tt.points))
		})
	}
}

func TestNewCalculator_rejects_invalid_thresholds(t *testing.T) {
	calc := NewCalculator(1000, 500)
	assert.Equal(t, DefaultSilverMin, calc.SilverMin)
	assert.Equal(t, DefaultGoldMin, calc.GoldMin)
}
