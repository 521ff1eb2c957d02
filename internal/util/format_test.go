package util

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestFormatDateHuman(t *testing.T) {
	now := time.Date(2024, 5, 10, 15, 0, 0, 0, time.UTC)

	tests := []struct {
		date string
		want string
	}{
		{"2024-05-10", "Today"},
		{"2024-05-09", "Yesterday"},
		{"2024-05-07", "3d ago"},
		{"2024-04-01", "Apr 01"},
		{"2023-12-25", "Dec 25 '23"},
		{"", "Unknown"},
		{"not a date", "not a date"},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, FormatDateHuman(tt.date, now), tt.date)
	}
}

func TestFormatMealTimeIsRelativeWithinADay(t *testing.T) {
	now := time.Date(2024, 5, 10, 15, 0, 0, 0, time.UTC)
	assert.Equal(t, "2 hours ago", FormatMealTime(now.Add(-2*time.Hour), now))
	assert.Equal(t, "—", FormatMealTime(time.Time{}, now))
}

func TestFormatAmounts(t *testing.T) {
	assert.Equal(t, "1,240 kcal", FormatCalories(1240))
	assert.Equal(t, "12.5g", FormatAmount(12.5, "g"))
	assert.Equal(t, "800mg", FormatAmount(800, "mg"))
	assert.Equal(t, "1 meal", FormatCount(1, "meal"))
	assert.Equal(t, "3 meals", FormatCount(3, "meal"))
}

func TestTruncateString(t *testing.T) {
	assert.Equal(t, "short", TruncateString("short", 10))
	assert.Equal(t, "paneer ...", TruncateString("paneer tikka masala", 10))
	assert.Equal(t, "pa", TruncateString("paneer", 2))
}

func TestValidateDate(t *testing.T) {
	assert.NoError(t, ValidateDate("2024-05-10"))
	assert.Error(t, ValidateDate("10/05/2024"))
	assert.Error(t, ValidateDate(""))
}
