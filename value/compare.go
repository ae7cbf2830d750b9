package value

import (
	"math"
	"strings"
)

// Epsilon is the tolerance for comparing doubles.
const Epsilon = 1e-10

// typeRank orders kinds for cross-kind comparison. All numeric kinds share a
// rank and compare by value.
func typeRank(k Kind) int {
	switch k {
	case KindNull:
		return 0
	case KindInt32, KindInt64, KindDouble:
		return 1
	case KindString:
		return 2
	case KindDocument:
		return 3
	case KindList:
		return 4
	case KindTID:
		return 5
	case KindBool:
		return 6
	}
	return 7
}

// Equal reports whether a and b hold the same value. Numbers compare by value
// across kinds; doubles compare within Epsilon.
func Equal(a, b Value) bool {
	return Compare(a, b) == 0
}

// Compare orders a against b, returning -1, 0 or +1. Values of different kinds
// order by kind rank: null, numbers, strings, documents, lists, TIDs, bools.
func Compare(a, b Value) int {
	ra, rb := typeRank(a.kind), typeRank(b.kind)
	if ra != rb {
		return cmpInt(int64(ra), int64(rb))
	}

	switch a.kind {
	case KindNull:
		return 0
	case KindInt32, KindInt64, KindDouble:
		return compareNumbers(a, b)
	case KindString:
		return strings.Compare(a.str, b.str)
	case KindBool:
		return cmpInt(a.num, b.num)
	case KindTID:
		return a.id.Compare(b.id)
	case KindList:
		for i := 0; i < len(a.list) && i < len(b.list); i++ {
			if c := Compare(a.list[i], b.list[i]); c != 0 {
				return c
			}
		}
		return cmpInt(int64(len(a.list)), int64(len(b.list)))
	case KindDocument:
		return CompareDocuments(a.doc, b.doc)
	}
	return 0
}

// CompareDocuments orders documents field by field, names before values.
func CompareDocuments(a, b *Document) int {
	af, bf := a.Fields(), b.Fields()
	for i := 0; i < len(af) && i < len(bf); i++ {
		if c := strings.Compare(af[i].Name, bf[i].Name); c != 0 {
			return c
		}
		if c := Compare(af[i].Value, bf[i].Value); c != 0 {
			return c
		}
	}
	return cmpInt(int64(len(af)), int64(len(bf)))
}

// EqualDocuments reports whether two documents hold the same fields in the same order.
func EqualDocuments(a, b *Document) bool {
	return CompareDocuments(a, b) == 0
}

func compareNumbers(a, b Value) int {
	if a.kind != KindDouble && b.kind != KindDouble {
		return cmpInt(a.num, b.num)
	}
	x, y := a.Float(), b.Float()
	if math.IsNaN(x) || math.IsNaN(y) {
		switch {
		case math.IsNaN(x) && math.IsNaN(y):
			return 0
		case math.IsNaN(x):
			return -1
		default:
			return 1
		}
	}
	if x == y || math.Abs(x-y) <= Epsilon {
		return 0
	}
	if x < y {
		return -1
	}
	return 1
}

func cmpInt(a, b int64) int {
	switch {
	case a < b:
		return -1
	case a > b:
		return 1
	}
	return 0
}
