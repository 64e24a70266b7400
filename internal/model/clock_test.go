package model

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseClock(t *testing.T) {
	tests := []struct {
		in      string
		want    ClockTime
		wantErr bool
	}{
		{in: "09:00", want: ClockTime{Hour: 9}},
		{in: "17:45", want: ClockTime{Hour: 17, Minute: 45}},
		{in: "08:30:00", want: ClockTime{Hour: 8, Minute: 30}},
		{in: "23:59", want: ClockTime{Hour: 23, Minute: 59}},
		{in: "24:00", want: ClockTime{Hour: 24}},
		{in: "24:00:00", want: ClockTime{Hour: 24}},
		{in: "24:01", wantErr: true},
		{in: "9:00", wantErr: true},
		{in: "09:60", wantErr: true},
		{in: "08:30:15", wantErr: true},
		{in: "noon", wantErr: true},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, err := ParseClock(tt.in)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestClockConversions(t *testing.T) {
	c := MustClock("13:05")
	assert.Equal(t, 785, c.Minutes())
	assert.Equal(t, "13:05", c.String())

	v, err := c.Value()
	require.NoError(t, err)
	assert.Equal(t, "13:05:00", v)

	var scanned ClockTime
	require.NoError(t, scanned.Scan([]byte("07:15:00")))
	assert.Equal(t, MustClock("07:15"), scanned)

	assert.Panics(t, func() { MustClock("25:00") })

	end := MustClock("24:00")
	assert.True(t, end.IsEndOfDay())
	assert.Equal(t, 1440, end.Minutes())
	v, err = end.Value()
	require.NoError(t, err)
	assert.Equal(t, "24:00:00", v)
	require.NoError(t, scanned.Scan("24:00:00"))
	assert.Equal(t, end, scanned)
}

func TestWeeklyRuleValidate(t *testing.T) {
	ok := WeeklyRule{Weekday: 1, StartTime: MustClock("09:00"), EndTime: MustClock("12:00")}
	assert.NoError(t, ok.Validate())

	inverted := ok
	inverted.StartTime, inverted.EndTime = ok.EndTime, ok.StartTime
	assert.Error(t, inverted.Validate())

	empty := ok
	empty.EndTime = ok.StartTime
	assert.Error(t, empty.Validate())

	badDay := ok
	badDay.Weekday = 7
	assert.Error(t, badDay.Validate())

	untilMidnight := ok
	untilMidnight.StartTime, untilMidnight.EndTime = MustClock("22:00"), MustClock("24:00")
	assert.NoError(t, untilMidnight.Validate())

	fromMidnight := ok
	fromMidnight.StartTime, fromMidnight.EndTime = MustClock("24:00"), MustClock("24:00")
	assert.Error(t, fromMidnight.Validate())
}
