package models

import "testing"

func TestLevelForAQI(t *testing.T) {
	tests := []struct {
		aqi  int
		want string
	}{
		{aqi: 20, want: LevelGood},
		{aqi: 50, want: LevelGood},
		{aqi: 51, want: LevelModerate},
		{aqi: 100, want: LevelModerate},
		{aqi: 101, want: LevelHigh},
		{aqi: 149, want: LevelHigh},
	}
	for _, tc := range tests {
		if got := LevelForAQI(tc.aqi); got != tc.want {
			t.Fatalf("LevelForAQI(%d)=%q want %q", tc.aqi, got, tc.want)
		}
	}
}

func TestAverageDensity(t *testing.T) {
	if got := AverageDensity(nil); got != 0 {
		t.Fatalf("AverageDensity(nil)=%v want 0", got)
	}
	samples := []TrafficSample{{Density: 0.2}, {Density: 0.4}, {Density: 0.6}}
	if got := AverageDensity(samples); got < 0.3999999 || got > 0.4000001 {
		t.Fatalf("AverageDensity=%v want 0.4", got)
	}
}
