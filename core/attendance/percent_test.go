package attendance

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewPercent(t *testing.T) {
	tests := []struct {
		name           string
		present, total int
		want           string
	}{
		{name: "two thirds rounds half up", present: 2, total: 3, want: "66.67"},
		{name: "one third", present: 1, total: 3, want: "33.33"},
		{name: "exact half", present: 1, total: 8, want: "12.50"},
		{name: "all present", present: 5, total: 5, want: "100.00"},
		{name: "no marks", present: 0, total: 0, want: "0.00"},
		{name: "all absent", present: 0, total: 4, want: "0.00"},
		{name: "one sixth", present: 1, total: 6, want: "16.67"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, NewPercent(tt.present, tt.total).String())
		})
	}
}

func TestAveragePercent(t *testing.T) {
	assert.Equal(t, "0.00", AveragePercent(nil).String())
	got := AveragePercent([]Percent{NewPercent(2, 3), NewPercent(1, 1), NewPercent(0, 1)})
	assert.Equal(t, "55.56", got.String())
}

func TestPercent_Below(t *testing.T) {
	assert.True(t, PercentFromFloat(74.99).Below(75))
	assert.False(t, PercentFromFloat(75).Below(75))
}

func TestPercent_JSON(t *testing.T) {
	data, err := json.Marshal(NewPercent(2, 3))
	require.NoError(t, err)
	assert.Equal(t, `"66.67"`, string(data))

	var p Percent
	require.NoError(t, json.Unmarshal([]byte(`12.345`), &p))
	assert.Equal(t, "12.35", p.String())

	require.NoError(t, json.Unmarshal([]byte(`"80"`), &p))
	assert.Equal(t, "80.00", p.String())

	assert.Error(t, json.Unmarshal([]byte(`"abc"`), &p))
}

func TestPercent_Scan(t *testing.T) {
	var p Percent
	require.NoError(t, p.Scan([]byte("66.666")))
	assert.Equal(t, "66.67", p.String())
}
