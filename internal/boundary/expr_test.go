package boundary

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseCondition(t *testing.T) {
	t.Run("rejects malformed expressions", func(t *testing.T) {
		for _, expr := range []string{"", "weather", "weather = rain", "== rain", "speed > fast", "a == 1 &&", "wind speed > 3"} {
			_, err := parseCondition(expr)
			assert.Error(t, err, expr)
		}
	})

	t.Run("accepts quoted and numeric literals", func(t *testing.T) {
		c, err := parseCondition(`weather == "light rain" && altitude >= 120.5`)
		require.NoError(t, err)
		require.Len(t, c.terms, 2)
		assert.Equal(t, "light rain", c.terms[0].text)
		assert.True(t, c.terms[1].isNum)
		assert.Equal(t, ">=", c.terms[1].op)
	})
}

func TestConditionHolds(t *testing.T) {
	c, err := parseCondition("weather == rain && altitude > 100")
	require.NoError(t, err)

	assert.True(t, c.holds(sample(t0, map[string]any{"weather": "rain", "altitude": 150})))
	assert.False(t, c.holds(sample(t0, map[string]any{"weather": "rain", "altitude": 90})))
	assert.False(t, c.holds(sample(t0, map[string]any{"weather": "clear", "altitude": 150})))
	assert.False(t, c.holds(sample(t0, map[string]any{"weather": "rain"})), "absent parameter makes the clause false")

	ne, err := parseCondition("mode != manual")
	require.NoError(t, err)
	assert.True(t, ne.holds(sample(t0, map[string]any{"mode": "auto"})))
	assert.False(t, ne.holds(sample(t0, map[string]any{"mode": "manual"})))
}
