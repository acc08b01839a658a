package domain

import (
	"regexp"
	"strconv"
)

// Matches Session_04, session-7, S08 and friends.
var sessionPattern = regexp.MustCompile(`(?i)s(?:ession)?[ _-]?([0-9]{1,2})`)

// InferSession guesses the session number from a filename.
// The result is a heuristic and nil when nothing matches.
func InferSession(filename string) *int {
	m := sessionPattern.FindStringSubmatch(filename)
	if m == nil {
		return nil
	}
	n, err := strconv.Atoi(m[1])
	if err != nil {
		return nil
	}
	return &n
}
