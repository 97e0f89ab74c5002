// Package cache provides the Redis-backed key/value store for board state,
// the key space shared by readers and invalidators, and a health monitor that
// keeps memory usage in check. The store is a disposable accelerator: every
// entry carries a finite TTL and the system stays correct with the store gone.
package cache

import (
	"sort"
	"strings"
	"time"
)

// teamNone is the key segment used for boards without a team scope.
const teamNone = "none"

// BoardKey returns the cache key for the board of a (project, team) scope.
// Format is stable across versions: board:<projectId>:<teamId|"none">.
func BoardKey(projectID, teamID string) string {
	if teamID == "" {
		teamID = teamNone
	}
	return "board:" + projectID + ":" + teamID
}

// CategoriesKey returns the cache key for a project's category list.
func CategoriesKey(projectID string) string {
	return "categories:" + projectID
}

// ColumnKey returns the cache key for a single column.
func ColumnKey(columnID string) string {
	return "column:" + columnID
}

// allowedPatterns is the closed set of patterns DeletePattern will accept.
// Bulk deletion is the highest-risk operation in this package; anything
// outside this set is rejected before it reaches Redis.
var allowedPatterns = map[string]struct{}{
	"board:*":      {},
	"categories:*": {},
	"column:*":     {},
}

// ProjectBoardsPattern returns the pattern matching every board entry of one
// project. Writes to project-wide records use it because those records are
// embedded in every team's board.
func ProjectBoardsPattern(projectID string) string {
	return "board:" + projectID + ":*"
}

// PatternAllowed reports whether pattern is on the invalidation allow-list.
// Besides the fixed prefixes, a board pattern scoped to a single literal
// project id is accepted.
func PatternAllowed(pattern string) bool {
	if _, ok := allowedPatterns[pattern]; ok {
		return true
	}
	return isProjectBoardsPattern(pattern)
}

func isProjectBoardsPattern(pattern string) bool {
	rest, ok := strings.CutPrefix(pattern, "board:")
	if !ok {
		return false
	}
	project, ok := strings.CutSuffix(rest, ":*")
	if !ok || project == "" {
		return false
	}
	return !strings.ContainsAny(project, "*?[:")
}

// AllowedInvalidationPatterns returns the allow-list as a sorted slice.
func AllowedInvalidationPatterns() []string {
	out := make([]string, 0, len(allowedPatterns))
	for p := range allowedPatterns {
		out = append(out, p)
	}
	sort.Strings(out)
	return out
}

// TTLPolicy holds the expiry applied to each cached entity type. Boards churn
// under concurrent editing and stay short-lived; categories are reference
// data and live longer. Both must be finite so a missed invalidation
// self-heals once the entry expires.
type TTLPolicy struct {
	Board      time.Duration
	Categories time.Duration
}

// DefaultTTLPolicy returns the TTLs used when none are configured.
func DefaultTTLPolicy() TTLPolicy {
	return TTLPolicy{
		Board:      5 * time.Minute,
		Categories: time.Hour,
	}
}

// Valid reports whether every TTL is positive and finite.
func (p TTLPolicy) Valid() bool {
	return p.Board > 0 && p.Categories > 0
}
