package ledger

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/alanyoungcy/papertrader/internal/domain"
)

func TestTriggers(t *testing.T) {
	t.Parallel()

	long := domain.Position{Direction: domain.DirectionLong, StopLoss: 90, TakeProfit: 110}
	short := domain.Position{Direction: domain.DirectionShort, StopLoss: 110, TakeProfit: 90}

	tests := []struct {
		name   string
		pos    domain.Position
		price  float64
		wantSL bool
		wantTP bool
	}{
		{"long_between", long, 100, false, false},
		{"long_at_stop", long, 90, true, false},
		{"long_below_stop", long, 85, true, false},
		{"long_at_target", long, 110, false, true},
		{"long_above_target", long, 115, false, true},
		{"short_between", short, 100, false, false},
		{"short_at_stop", short, 110, true, false},
		{"short_above_stop", short, 120, true, false},
		{"short_at_target", short, 90, false, true},
		{"short_below_target", short, 80, false, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			assert.Equal(t, tt.wantSL, hitStopLoss(tt.pos, tt.price))
			assert.Equal(t, tt.wantTP, hitTakeProfit(tt.pos, tt.price))
		})
	}
}

func TestTriggersUnsetLevels(t *testing.T) {
	t.Parallel()

	pos := domain.Position{Direction: domain.DirectionLong}
	assert.False(t, hitStopLoss(pos, 0))
	assert.False(t, hitTakeProfit(pos, 1e9))
}

func TestMarkPrice(t *testing.T) {
	t.Parallel()

	long := domain.Position{Direction: domain.DirectionLong, EntryPrice: 100, Quantity: 2}
	markPrice(&long, 110)
	assert.Equal(t, 110.0, long.CurrentPrice)
	assert.InDelta(t, 20.0, long.UnrealizedPnL, 1e-9)
	assert.InDelta(t, 10.0, long.UnrealizedPnLPercent, 1e-9)

	short := domain.Position{Direction: domain.DirectionShort, EntryPrice: 100, Quantity: 2}
	markPrice(&short, 110)
	assert.InDelta(t, -20.0, short.UnrealizedPnL, 1e-9)
	assert.InDelta(t, -10.0, short.UnrealizedPnLPercent, 1e-9)
}
