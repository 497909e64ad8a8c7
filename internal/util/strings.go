package util

import (
	"strconv"
	"strings"
)

// Pluralize returns "<count> <noun>" using singular when count is 1.
func Pluralize(count int, singular, plural string) string {
	noun := plural
	if count == 1 {
		noun = singular
	}
	return strconv.Itoa(count) + " " + noun
}

// JoinIDs renders numeric ids as "1000, 1000" or "(none)".
func JoinIDs(ids []int32) string {
	if len(ids) == 0 {
		return "(none)"
	}
	parts := make([]string, len(ids))
	for i, id := range ids {
		parts[i] = strconv.Itoa(int(id))
	}
	return strings.Join(parts, ", ")
}
