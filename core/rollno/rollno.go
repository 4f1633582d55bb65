// Package rollno defines the order in which students are listed.
//
// Plain roll numbers come first, sorted by the integer formed by their digits.
// Lettered roll numbers (any containing 'r' or 'R', used for re-admitted and
// lateral-entry students) come after every plain one, sorted the same way.
package rollno

import (
	"math"
	"sort"
	"strings"
)

// IsLettered reports whether roll contains an 'r' or 'R'.
func IsLettered(roll string) bool {
	return strings.ContainsAny(roll, "rR")
}

// Number returns the unsigned integer formed by the digits of roll, 0 if it has none.
// Values too large for a uint64 saturate to math.MaxUint64.
func Number(roll string) uint64 {
	var n uint64
	for _, c := range roll {
		if c < '0' || c > '9' {
			continue
		}
		d := uint64(c - '0')
		if n > (math.MaxUint64-d)/10 {
			return math.MaxUint64
		}
		n = n*10 + d
	}
	return n
}

// Compare returns -1 if a sorts before b, +1 if after and 0 if they tie.
func Compare(a, b string) int {
	al, bl := IsLettered(a), IsLettered(b)
	switch {
	case al && !bl:
		return 1
	case !al && bl:
		return -1
	}

	an, bn := Number(a), Number(b)
	switch {
	case an < bn:
		return -1
	case an > bn:
		return 1
	}
	return 0
}

func Less(a, b string) bool {
	return Compare(a, b) < 0
}

// Sort sorts rolls in place. Ties keep their relative order.
func Sort(rolls []string) {
	sort.SliceStable(rolls, func(i, j int) bool { return Less(rolls[i], rolls[j]) })
}

// SortBy stably sorts any slice whose elements carry a roll number.
func SortBy(slice interface{}, roll func(i int) string) {
	sort.SliceStable(slice, func(i, j int) bool { return Less(roll(i), roll(j)) })
}

// InRange reports whether roll lies between from and to (inclusive) in roll number order.
func InRange(roll, from, to string) bool {
	return Compare(roll, from) >= 0 && Compare(roll, to) <= 0
}
