package broker

import "testing"

func tod(h, m int) TimeOfDay { return TimeOfDay(h*60 + m) }

func TestSendWindowContains(t *testing.T) {
	t.Parallel()

	day := SendWindow{Start: tod(8, 0), End: tod(21, 0)}
	night := SendWindow{Start: tod(22, 0), End: tod(6, 0)}
	closed := SendWindow{Start: tod(9, 0), End: tod(9, 0)}

	cases := []struct {
		name string
		w    SendWindow
		at   TimeOfDay
		want bool
	}{
		{"inside day window", day, tod(12, 0), true},
		{"start inclusive", day, tod(8, 0), true},
		{"end exclusive", day, tod(21, 0), false},
		{"before start", day, tod(7, 59), false},
		{"wrapped late evening", night, tod(23, 30), true},
		{"wrapped early morning", night, tod(5, 59), true},
		{"wrapped midday closed", night, tod(12, 0), false},
		{"wrapped end exclusive", night, tod(6, 0), false},
		{"degenerate always closed", closed, tod(9, 0), false},
	}
	for _, tc := range cases {
		if got := tc.w.Contains(tc.at); got != tc.want {
			t.Errorf("%s: Contains(%d:%02d) = %v, want %v",
				tc.name, tc.at.Hour(), tc.at.Minute(), got, tc.want)
		}
	}
}
