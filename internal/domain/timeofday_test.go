package domain

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestParseTimeOfDay(t *testing.T) {
	cases := map[string]TimeOfDay{
		"07:00":    NewTimeOfDay(7, 0, 0),
		"22:30:15": NewTimeOfDay(22, 30, 15),
		" 0:05 ":   NewTimeOfDay(0, 5, 0),
	}
	for input, want := range cases {
		got, err := ParseTimeOfDay(input)
		require.NoError(t, err, input)
		require.Equal(t, want, got, input)
	}

	for _, bad := range []string{"", "7", "24:00", "12:60", "aa:bb", "1:2:3:4"} {
		_, err := ParseTimeOfDay(bad)
		require.Error(t, err, bad)
	}
}

func TestTimeOfDayOfUsesWallClock(t *testing.T) {
	loc := time.FixedZone("test", 2*60*60)
	ts := time.Date(2024, 1, 2, 23, 15, 30, 0, loc)
	require.Equal(t, NewTimeOfDay(23, 15, 30), TimeOfDayOf(ts))
	require.Equal(t, "23:15:30", TimeOfDayOf(ts).String())
}

func TestTimeOfDayJSON(t *testing.T) {
	raw, err := json.Marshal(NewTimeOfDay(9, 5, 0))
	require.NoError(t, err)
	require.JSONEq(t, `"09:05:00"`, string(raw))

	var parsed TimeOfDay
	require.NoError(t, json.Unmarshal([]byte(`"14:45"`), &parsed))
	require.Equal(t, NewTimeOfDay(14, 45, 0), parsed)
	require.Error(t, json.Unmarshal([]byte(`"25:00"`), &parsed))
}

func TestWeekdayMask(t *testing.T) {
	mask := MaskOf(time.Monday, time.Friday)
	require.True(t, mask.Includes(time.Monday))
	require.True(t, mask.Includes(time.Friday))
	require.False(t, mask.Includes(time.Sunday))
	for d := time.Sunday; d <= time.Saturday; d++ {
		require.True(t, AllDays.Includes(d))
	}
}

func TestParseMealType(t *testing.T) {
	mt, err := ParseMealType("lunch")
	require.NoError(t, err)
	require.Equal(t, MealLunch, mt)

	_, err = ParseMealType("brunch")
	require.Error(t, err)
}
