package conversation

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// Thursday, 2026-01-15 10:30 local.
var anchor = time.Date(2026, time.January, 15, 10, 30, 0, 0, time.Local)

func TestParseHojeAmanha(t *testing.T) {
	info := ParsePortugueseDateTime("pode ser hoje às 16h", anchor)
	require.NotNil(t, info)
	assert.True(t, info.HasDate)
	assert.Equal(t, 15, info.Date.Day())
	assert.Equal(t, "16:00", info.Time)

	info = ParsePortugueseDateTime("amanhã as 14h", anchor)
	require.NotNil(t, info)
	assert.Equal(t, 16, info.Date.Day())
	assert.Equal(t, "14:00", info.Time)
}

func TestParseDiaOfMonth(t *testing.T) {
	info := ParsePortugueseDateTime("dia 26 de manhã", anchor)
	require.NotNil(t, info)
	assert.Equal(t, time.January, info.Date.Month())
	assert.Equal(t, 26, info.Date.Day())
	assert.Equal(t, "09:00", info.Time)
	assert.Equal(t, "manha", info.Period)
}

func TestParseDiaRollsToNextMonth(t *testing.T) {
	info := ParsePortugueseDateTime("dia 10 às 15h", anchor)
	require.NotNil(t, info)
	assert.Equal(t, time.February, info.Date.Month())
	assert.Equal(t, 10, info.Date.Day())
}

func TestParseWeekdayRollsForward(t *testing.T) {
	// Anchor is Thursday; "segunda" means next Monday the 19th.
	info := ParsePortugueseDateTime("segunda 10:00", anchor)
	require.NotNil(t, info)
	assert.Equal(t, 19, info.Date.Day())
	assert.Equal(t, "10:00", info.Time)

	// Same weekday as the anchor rolls a full week ahead.
	info = ParsePortugueseDateTime("quinta à tarde", anchor)
	require.NotNil(t, info)
	assert.Equal(t, 22, info.Date.Day())
	assert.Equal(t, "14:00", info.Time)
	assert.Equal(t, "tarde", info.Period)
}

func TestParseTimeVariants(t *testing.T) {
	cases := []struct {
		in   string
		want string
	}{
		{"as 14h", "14:00"},
		{"14:30", "14:30"},
		{"as 9h15", "09:15"},
		{"de noite", "19:00"},
	}
	for _, tc := range cases {
		info := ParsePortugueseDateTime(tc.in, anchor)
		require.NotNil(t, info, tc.in)
		assert.Equal(t, tc.want, info.Time, tc.in)
	}
}

func TestParseNoSchedulingContent(t *testing.T) {
	assert.Nil(t, ParsePortugueseDateTime("quero um apartamento de 2 quartos", anchor))
	assert.Nil(t, ParsePortugueseDateTime("ola, tudo bem?", anchor))
}
