package models

import (
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	dErrors "vtrack/pkg/domain-errors"
)

func TestBuildTiers(t *testing.T) {
	id := uuid.New()

	t.Run("illegal parking scenario", func(t *testing.T) {
		tiers := BuildTiers(id, decimal.NewFromInt(500))
		require.Len(t, tiers, 3)
		assert.Equal(t, TierFirst, tiers[0].Tier)
		assert.True(t, tiers[0].Amount.Equal(decimal.NewFromInt(500)))
		assert.True(t, tiers[1].Amount.Equal(decimal.NewFromInt(750)))
		assert.True(t, tiers[2].Amount.Equal(decimal.NewFromInt(1000)))
	})

	t.Run("rounds to cents", func(t *testing.T) {
		tiers := BuildTiers(id, decimal.RequireFromString("0.33"))
		assert.Equal(t, "0.5", tiers[1].Amount.String())
		assert.Equal(t, "0.66", tiers[2].Amount.String())
	})

	t.Run("amounts never decrease", func(t *testing.T) {
		for _, base := range []string{"0.01", "1", "99.99", "12345.67"} {
			tiers := BuildTiers(id, decimal.RequireFromString(base))
			for i := 1; i < len(tiers); i++ {
				assert.True(t, tiers[i].Amount.GreaterThanOrEqual(tiers[i-1].Amount), "base %s", base)
			}
		}
	})
}

func TestNewViolationTypeRejectsNonPositiveBase(t *testing.T) {
	for _, base := range []decimal.Decimal{decimal.Zero, decimal.NewFromInt(-5)} {
		_, err := NewViolationType(uuid.New(), "Speeding", LevelMajor, base, "", time.Now())
		assert.True(t, dErrors.HasCode(err, dErrors.CodeInvariantViolation))
	}
}

func TestUpdateTypeRequestApply(t *testing.T) {
	now := time.Now()
	vt, err := NewViolationType(uuid.New(), "Speeding", LevelMajor, decimal.NewFromInt(100), "", now)
	require.NoError(t, err)

	t.Run("empty request", func(t *testing.T) {
		_, err := (&UpdateTypeRequest{}).Apply(vt, now)
		assert.True(t, dErrors.HasCode(err, dErrors.CodeInvalidArgument))
	})

	t.Run("invalid level leaves type untouched", func(t *testing.T) {
		bad := Level("Catastrophic")
		_, err := (&UpdateTypeRequest{Level: &bad}).Apply(vt, now)
		assert.Error(t, err)
		assert.Equal(t, LevelMajor, vt.Level)
	})

	t.Run("penalty change is reported", func(t *testing.T) {
		p := decimal.NewFromInt(200)
		changed, err := (&UpdateTypeRequest{Penalty: &p}).Apply(vt, now)
		require.NoError(t, err)
		assert.True(t, changed)
		assert.True(t, vt.BasePenalty.Equal(p))
	})
}
