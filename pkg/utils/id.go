package utils

import (
	"strings"

	"github.com/google/uuid"
)

// ShortID is a UUID with the dashes removed, safe to splice into a SQL
// identifier such as a temporary table name.
func ShortID() string {
	return strings.ReplaceAll(uuid.NewString(), "-", "")
}
