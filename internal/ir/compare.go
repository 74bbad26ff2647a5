package ir

import "strings"

// kindRank orders value variants for CompareValues.
func kindRank(v IRValue) int {
	switch v.(type) {
	case nil, IRNull:
		return 0
	case IRBool:
		return 1
	case IRInt:
		return 2
	case IRString:
		return 3
	case IRRef:
		return 4
	case IRArray:
		return 5
	case IRObject:
		return 6
	default:
		return 7
	}
}

// CompareValues is the value comparator used by pattern conditions.
// Values of different kinds order by kind (null < bool < int < string <
// ref < array < object). Arrays compare element-wise, objects by sorted
// key then value.
func CompareValues(a, b IRValue) int {
	ra, rb := kindRank(a), kindRank(b)
	if ra != rb {
		if ra < rb {
			return -1
		}
		return 1
	}

	switch x := a.(type) {
	case IRBool:
		y := b.(IRBool)
		switch {
		case x == y:
			return 0
		case !bool(x):
			return -1
		default:
			return 1
		}
	case IRInt:
		return compareInt(int64(x), int64(b.(IRInt)))
	case IRRef:
		return compareInt(int64(x), int64(b.(IRRef)))
	case IRString:
		return strings.Compare(string(x), string(b.(IRString)))
	case IRArray:
		y := b.(IRArray)
		for i := 0; i < len(x) && i < len(y); i++ {
			if c := CompareValues(x[i], y[i]); c != 0 {
				return c
			}
		}
		return compareInt(int64(len(x)), int64(len(y)))
	case IRObject:
		y := b.(IRObject)
		xk, yk := x.SortedKeys(), y.SortedKeys()
		for i := 0; i < len(xk) && i < len(yk); i++ {
			if c := compareKeysRFC8785(xk[i], yk[i]); c != 0 {
				return c
			}
			if c := CompareValues(x[xk[i]], y[yk[i]]); c != 0 {
				return c
			}
		}
		return compareInt(int64(len(xk)), int64(len(yk)))
	}
	return 0
}

// Equal reports whether two values compare equal.
func Equal(a, b IRValue) bool {
	return CompareValues(a, b) == 0
}

func compareInt(a, b int64) int {
	switch {
	case a < b:
		return -1
	case a > b:
		return 1
	default:
		return 0
	}
}
