package rollno

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestCompare(t *testing.T) {
	tests := []struct {
		name string
		a, b string
		want int
	}{
		{name: "lettered after plain despite digits", a: "12", b: "3R", want: -1},
		{name: "plain before lettered (reversed)", a: "3R", b: "12", want: 1},
		{name: "lowercase r is lettered", a: "1r", b: "999", want: 1},
		{name: "r anywhere is lettered", a: "21CSR05", b: "21CS99", want: 1},
		{name: "embedded digits compared as integers", a: "CS09", b: "CS10", want: -1},
		{name: "leading zeros ignored", a: "21CS1", b: "21CS01", want: 0},
		{name: "both lettered compared numerically", a: "10R", b: "9R", want: 1},
		{name: "no digits parse to zero", a: "CS", b: "CS1", want: -1},
		{name: "empty strings tie", a: "", b: "", want: 0},
		{name: "equal", a: "21CS05", b: "21CS05", want: 0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := Compare(tt.a, tt.b); got != tt.want {
				t.Errorf("Compare(%q, %q) = %d, want %d", tt.a, tt.b, got, tt.want)
			}
		})
	}
}

func TestNumber(t *testing.T) {
	assert.Equal(t, uint64(0), Number("ABC"))
	assert.Equal(t, uint64(2105), Number("21CS05"))
	assert.Equal(t, uint64(math.MaxUint64), Number("99999999999999999999999"))
}

func TestSort(t *testing.T) {
	rolls := []string{"21CS10", "21CS02", "9R", "21CS1"}
	Sort(rolls)
	assert.Equal(t, []string{"21CS1", "21CS02", "21CS10", "9R"}, rolls)
}

func TestSortBy_stable(t *testing.T) {
	type row struct {
		roll string
		tag  int
	}
	rows := []row{{"05", 1}, {"5", 2}, {"R1", 3}, {"0005", 4}, {"1", 5}}
	SortBy(rows, func(i int) string { return rows[i].roll })

	want := []row{{"1", 5}, {"05", 1}, {"5", 2}, {"0005", 4}, {"R1", 3}}
	assert.Equal(t, want, rows)
}

func TestInRange(t *testing.T) {
	tests := []struct {
		roll, from, to string
		want           bool
	}{
		{"21CS05", "21CS01", "21CS30", true},
		{"21CS01", "21CS01", "21CS30", true},
		{"21CS30", "21CS01", "21CS30", true},
		{"21CS31", "21CS01", "21CS30", false},
		{"21CS05R", "21CS01", "21CS30", false},
	}
	for _, tt := range tests {
		if got := InRange(tt.roll, tt.from, tt.to); got != tt.want {
			t.Errorf("InRange(%q, %q, %q) = %v, want %v", tt.roll, tt.from, tt.to, got, tt.want)
		}
	}
}
