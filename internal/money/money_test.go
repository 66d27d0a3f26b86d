package money

import "testing"

func TestLineTotal(t *testing.T) {
	cases := []struct {
		qty   int
		price float64
		want  float64
	}{
		{0, 100, 0},
		{1, 50, 50},
		{2, 100, 200},
		{3, 12.5, 37.5},
	}
	for _, c := range cases {
		if got := LineTotal(c.qty, c.price); got != c.want {
			t.Errorf("LineTotal(%d, %v) = %v, want %v", c.qty, c.price, got, c.want)
		}
	}
}

func TestFormatAmount(t *testing.T) {
	cases := []struct {
		in   float64
		want string
	}{
		{0, "0"},
		{250, "250"},
		{1500, "1,500"},
		{1234567, "1,234,567"},
		{1234.5, "1,234.5"},
	}
	for _, c := range cases {
		if got := FormatAmount(c.in); got != c.want {
			t.Errorf("FormatAmount(%v) = %q, want %q", c.in, got, c.want)
		}
	}
}
