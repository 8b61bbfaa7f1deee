package models

import (
	"testing"
	"time"
)

func TestParseInterval(t *testing.T) {
	tests := []struct {
		input   string
		want    TimeInterval
		wantErr bool
	}{
		{"", Interval1h, false},
		{"1m", Interval1m, false},
		{"15m", Interval15m, false},
		{"4h", Interval4h, false},
		{"1w", Interval1w, false},
		{"3h", "", true},
		{"1H", "", true},
		{"daily", "", true},
	}

	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			got, err := ParseInterval(tt.input)
			if (err != nil) != tt.wantErr {
				t.Fatalf("ParseInterval(%q) error = %v, wantErr %v", tt.input, err, tt.wantErr)
			}
			if got != tt.want {
				t.Errorf("ParseInterval(%q) = %v, want %v", tt.input, got, tt.want)
			}
		})
	}
}

func TestTimeInterval_Duration(t *testing.T) {
	tests := map[TimeInterval]time.Duration{
		Interval1m:  time.Minute,
		Interval5m:  5 * time.Minute,
		Interval1h:  time.Hour,
		Interval1d:  24 * time.Hour,
		Interval1w:  7 * 24 * time.Hour,
		"bogus":     0,
		Interval15m: 15 * time.Minute,
	}

	for interval, want := range tests {
		if got := interval.Duration(); got != want {
			t.Errorf("%q.Duration() = %v, want %v", interval, got, want)
		}
	}
}

func TestCandle_Helpers(t *testing.T) {
	c := Candle{Timestamp: 1700000000000, Open: 10, High: 14, Low: 6, Close: 12, Volume: 3}

	if got := c.MidPrice(); got != 10 {
		t.Errorf("MidPrice() = %v, want 10", got)
	}
	if got := c.Time().UnixMilli(); got != c.Timestamp {
		t.Errorf("Time() = %v, want %v", got, c.Timestamp)
	}

	closes := Closes([]Candle{{Close: 1}, {Close: 2}, {Close: 3}})
	if len(closes) != 3 || closes[0] != 1 || closes[2] != 3 {
		t.Errorf("Closes() = %v, want [1 2 3]", closes)
	}
}

func TestRoundPrice(t *testing.T) {
	tests := []struct {
		input float64
		want  string
	}{
		{43123.456, "43123.46"},
		{0.004, "0"},
		{99.995, "100"},
		{1.1, "1.1"},
	}

	for _, tt := range tests {
		if got := RoundPrice(tt.input).String(); got != tt.want {
			t.Errorf("RoundPrice(%v) = %v, want %v", tt.input, got, tt.want)
		}
	}
}
