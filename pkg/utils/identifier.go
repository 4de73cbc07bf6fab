package utils

import (
	"regexp"
	"strings"
)

var (
	quoteRunes   = regexp.MustCompile("[\"'`\\[\\]]")
	nonWordRuns  = regexp.MustCompile(`\W+`)
	leadingDigit = regexp.MustCompile(`^[0-9]`)
)

// Identifier normalizes a database or path name into something usable as a
// key, a named parameter, and a generated symbol. Quotes are stripped, runs of
// non-word characters collapse to a single underscore and a leading digit gets
// an underscore prefix.
//
//	Identifier(`'hi mom'`)          // hi_mom
//	Identifier("default/autocrud/things/read") // default_autocrud_things_read
//	Identifier("1st")               // _1st
func Identifier(name string) string {
	unquoted := quoteRunes.ReplaceAllString(name, "")
	collapsed := nonWordRuns.ReplaceAllString(strings.TrimSpace(unquoted), "_")
	if leadingDigit.MatchString(collapsed) {
		return "_" + collapsed
	}
	return collapsed
}
