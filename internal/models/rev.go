package models

import (
	"strconv"
	"strings"

	"github.com/google/uuid"
)

// NextRev returns the revision following rev, in the "<n>-<hash>" form
// used by the stack.
func NextRev(rev string) string {
	n := 0
	if prefix, _, ok := strings.Cut(rev, "-"); ok {
		n, _ = strconv.Atoi(prefix)
	}
	return strconv.Itoa(n+1) + "-" + strings.ReplaceAll(uuid.NewString(), "-", "")
}
