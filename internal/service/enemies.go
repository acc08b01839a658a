package service

import (
	"fmt"
	"regexp"
	"sort"
	"strconv"
	"strings"
)

const enemyQueryK = 12

var enemyPattern = regexp.MustCompile(`(?i)\b(\d{1,2})\s+(goblins?|orcs?|bandits?|wolf|wolves|skeletons?|enemy|enemies)`)

// enemyKinds maps every matched word to the key it is counted under. Keys are
// real singulars rather than the word with its trailing "s" stripped, so
// "wolves" counts as "wolf" and "enemies" as "enemy", not "wolve" and
// "enemie". The bare "wolf" and "enemy" are matched as well.
var enemyKinds = map[string]string{
	"goblin":    "goblin",
	"goblins":   "goblin",
	"orc":       "orc",
	"orcs":      "orc",
	"bandit":    "bandit",
	"bandits":   "bandit",
	"wolf":      "wolf",
	"wolves":    "wolf",
	"skeleton":  "skeleton",
	"skeletons": "skeleton",
	"enemy":     "enemy",
	"enemies":   "enemy",
}

func enemyQuery(session int) string {
	return fmt.Sprintf("Session %d enemies battle fight encountered", session)
}

// CountEnemies sums "<number> <enemy word>" mentions across texts, keyed by
// the singular enemy kind. Repeated mentions of the same fight are counted
// again; the total is a rough estimate.
func CountEnemies(texts []string) map[string]int {
	counts := make(map[string]int)
	for _, text := range texts {
		for _, m := range enemyPattern.FindAllStringSubmatch(text, -1) {
			n, err := strconv.Atoi(m[1])
			if err != nil {
				continue
			}
			kind, ok := enemyKinds[strings.ToLower(m[2])]
			if !ok {
				continue
			}
			counts[kind] += n
		}
	}
	return counts
}

// FormatEnemyTally renders counts as "Session N: total T enemies (kind: n, ...)."
// with kinds in alphabetical order.
func FormatEnemyTally(session int, counts map[string]int) string {
	if len(counts) == 0 {
		return fmt.Sprintf("No enemy data inferred for session %d.", session)
	}

	kinds := make([]string, 0, len(counts))
	total := 0
	for kind, n := range counts {
		kinds = append(kinds, kind)
		total += n
	}
	sort.Strings(kinds)

	parts := make([]string, 0, len(kinds))
	for _, kind := range kinds {
		parts = append(parts, fmt.Sprintf("%s: %d", kind, counts[kind]))
	}
	return fmt.Sprintf("Session %d: total %d enemies (%s).", session, total, strings.Join(parts, ", "))
}
