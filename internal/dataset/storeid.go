package dataset

import (
	"math"
	"strconv"
	"strings"
)

// CanonicalStoreID returns the join key for a store identifier. Integral
// numeric forms collapse to their integer text, so "42", "42.0" and " 42 "
// all become "42". Anything else is returned trimmed.
func CanonicalStoreID(id string) string {
	id = strings.TrimSpace(id)
	if id == "" {
		return id
	}
	f, err := strconv.ParseFloat(id, 64)
	if err != nil || math.IsInf(f, 0) || math.IsNaN(f) || f != math.Trunc(f) {
		return id
	}
	if math.Abs(f) >= 1<<53 {
		return id
	}
	return strconv.FormatInt(int64(f), 10)
}

// CanonicalStoreIDInt returns the join key for an integer store identifier.
func CanonicalStoreIDInt(id int64) string {
	return strconv.FormatInt(id, 10)
}
