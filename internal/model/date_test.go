package model

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseDate(t *testing.T) {
	d, err := ParseDate("2026-03-08")
	require.NoError(t, err)
	assert.Equal(t, Date{Year: 2026, Month: time.March, Day: 8}, d)
	assert.Equal(t, time.Sunday, d.Weekday())
	assert.Equal(t, "2026-03-08", d.String())

	_, err = ParseDate("2026-02-30")
	assert.Error(t, err)
	_, err = ParseDate("08/03/2026")
	assert.Error(t, err)
}

func TestDateArithmetic(t *testing.T) {
	d := NewDate(2026, time.February, 28)
	assert.Equal(t, NewDate(2026, time.March, 1), d.AddDays(1))
	assert.Equal(t, NewDate(2025, time.December, 31), NewDate(2026, time.January, 1).AddDays(-1))
	assert.Equal(t, 9, NewDate(2026, time.March, 1).DaysUntil(NewDate(2026, time.March, 10)))
	assert.Equal(t, -1, d.DaysUntil(d.AddDays(-1)))
	assert.True(t, d.Before(d.AddDays(1)))
	assert.True(t, d.AddDays(1).After(d))
	assert.True(t, Date{}.IsZero())
}

func TestDateOfUsesLocation(t *testing.T) {
	loc, err := time.LoadLocation("America/New_York")
	require.NoError(t, err)

	instant := time.Date(2026, time.June, 2, 3, 30, 0, 0, time.UTC)
	assert.Equal(t, NewDate(2026, time.June, 1), DateOf(instant, loc))
	assert.Equal(t, NewDate(2026, time.June, 2), DateOf(instant, time.UTC))

	midnight := NewDate(2026, time.June, 1).In(loc)
	assert.Equal(t, 0, midnight.Hour())
	assert.Equal(t, loc, midnight.Location())
}

func TestDateJSONAndSQL(t *testing.T) {
	d := NewDate(2026, time.December, 25)
	raw, err := json.Marshal(struct {
		Date Date `json:"date"`
	}{d})
	require.NoError(t, err)
	assert.JSONEq(t, `{"date":"2026-12-25"}`, string(raw))

	var back struct {
		Date Date `json:"date"`
	}
	require.NoError(t, json.Unmarshal(raw, &back))
	assert.Equal(t, d, back.Date)

	v, err := d.Value()
	require.NoError(t, err)
	assert.Equal(t, "2026-12-25", v)

	var scanned Date
	require.NoError(t, scanned.Scan(time.Date(2026, time.December, 25, 0, 0, 0, 0, time.UTC)))
	assert.Equal(t, d, scanned)
	require.NoError(t, scanned.Scan([]byte("2026-12-24T00:00:00Z")))
	assert.Equal(t, d.AddDays(-1), scanned)
	assert.Error(t, scanned.Scan(42))
}
