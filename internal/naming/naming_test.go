package naming

import (
	"testing"
	"time"

	"github.com/hitoshi/pelotonexport/internal/model"
)

func TestSanitizeTitle(t *testing.T) {
	tests := []struct {
		title string
		want  string
	}{
		{"Power Zone: 30 min", "Power_Zone__30_min"},
		{"20 min HIIT Ride", "20_min_HIIT_Ride"},
		{"", ""},
		{"Ümlaut/Ride", "_mlaut_Ride"},
		{"a.b-c_d", "a_b_c_d"},
	}

	for _, tt := range tests {
		t.Run(tt.title, func(t *testing.T) {
			if got := SanitizeTitle(tt.title); got != tt.want {
				t.Errorf("SanitizeTitle(%q) = %q, want %q", tt.title, got, tt.want)
			}
		})
	}
}

func TestBaseName_Format(t *testing.T) {
	created := time.Date(2019, time.March, 7, 18, 5, 0, 0, time.UTC)
	w := model.WorkoutSummary{ID: "w1", Title: "Power Zone: 30 min", CreatedAt: created.Unix()}

	// 年-日-月_時-分
	want := "2019-07-03_18-05_Power_Zone__30_min"
	if got := BaseName(w); got != want {
		t.Errorf("BaseName = %q, want %q", got, want)
	}
}

func TestBaseName_UsesUTC(t *testing.T) {
	// 2020-01-01T00:30:00Z はローカルタイムゾーンに関係なく同じ名前になるべき
	w := model.WorkoutSummary{Title: "Ride", CreatedAt: 1577838600}
	if got := BaseName(w); got != "2020-01-01_00-30_Ride" {
		t.Errorf("BaseName = %q", got)
	}
}

func TestBaseName_Deterministic(t *testing.T) {
	w := model.WorkoutSummary{ID: "w1", Title: "45 min Climb Ride!", CreatedAt: 1600000000}

	first := BaseName(w)
	second := BaseName(w)
	if first != second {
		t.Errorf("BaseName は決定的であるべき: %q != %q", first, second)
	}
}

func TestSuffixHelpers(t *testing.T) {
	base := "2019-07-03_18-05_Ride"
	if got := MetricsCSVName(base); got != base+"_Metrics.csv" {
		t.Errorf("MetricsCSVName = %q", got)
	}
	if got := MetricsJSONName(base); got != base+"_Metrics.json" {
		t.Errorf("MetricsJSONName = %q", got)
	}
	if got := DetailsCSVName(base); got != base+"_UserWorkoutDetails.csv" {
		t.Errorf("DetailsCSVName = %q", got)
	}
	if got := DetailsJSONName(base); got != base+"_UserWorkoutDetails.json" {
		t.Errorf("DetailsJSONName = %q", got)
	}
}
