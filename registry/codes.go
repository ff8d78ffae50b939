package registry

import (
	"fmt"
	"strconv"
	"strings"
)

const sequenceWidth = 4

// nextCode returns prefix followed by the sequence after latest's, zero
// padded. latest is the highest code issued under prefix, or "".
func nextCode(prefix, latest string) string {
	seq := 0
	if rest, ok := strings.CutPrefix(latest, prefix); ok {
		if n, err := strconv.Atoi(rest); err == nil {
			seq = n
		}
	}
	return fmt.Sprintf("%s%0*d", prefix, sequenceWidth, seq+1)
}

// HouseholdCodePrefix is the prefix of generated household codes in barangay.
func HouseholdCodePrefix(barangay string) string {
	return barangay + "-"
}

// UserCodePrefix is the prefix of generated user codes in barangay.
func UserCodePrefix(barangay string) string {
	return "U-" + barangay + "-"
}
