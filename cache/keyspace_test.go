package cache

import (
	"reflect"
	"testing"
	"time"
)

func TestBoardKey(t *testing.T) {
	if got := BoardKey("p1", "t1"); got != "board:p1:t1" {
		t.Fatalf("unexpected board key: %q", got)
	}
	if got := BoardKey("p1", ""); got != "board:p1:none" {
		t.Fatalf("unexpected project-wide board key: %q", got)
	}
}

func TestCategoriesKey(t *testing.T) {
	if got := CategoriesKey("p1"); got != "categories:p1" {
		t.Fatalf("unexpected categories key: %q", got)
	}
}

func TestColumnKey(t *testing.T) {
	if got := ColumnKey("c1"); got != "column:c1" {
		t.Fatalf("unexpected column key: %q", got)
	}
}

func TestAllowedInvalidationPatterns(t *testing.T) {
	want := []string{"board:*", "categories:*", "column:*"}
	if got := AllowedInvalidationPatterns(); !reflect.DeepEqual(got, want) {
		t.Fatalf("unexpected allow-list: %#v", got)
	}
	for _, p := range want {
		if !PatternAllowed(p) {
			t.Fatalf("expected %q to be allowed", p)
		}
	}
	for _, p := range []string{"users:*", "*", "", "board:", "tasks:*"} {
		if PatternAllowed(p) {
			t.Fatalf("expected %q to be rejected", p)
		}
	}
}

func TestProjectBoardsPattern(t *testing.T) {
	if got := ProjectBoardsPattern("p1"); got != "board:p1:*" {
		t.Fatalf("unexpected pattern: %q", got)
	}
	if !PatternAllowed(ProjectBoardsPattern("p1")) {
		t.Fatal("project board pattern should be allowed")
	}
	// Only literal single-project scopes pass; wildcards or empty ids do not.
	for _, p := range []string{"board::*", "board:p*:*", "board:p?:*", "board:p1:t1:*", "board:p1:", "column:p1:*"} {
		if PatternAllowed(p) {
			t.Fatalf("expected %q to be rejected", p)
		}
	}
}

func TestTTLPolicyValid(t *testing.T) {
	if !DefaultTTLPolicy().Valid() {
		t.Fatal("default policy should be valid")
	}
	if (TTLPolicy{Board: 0, Categories: time.Hour}).Valid() {
		t.Fatal("zero board TTL should be invalid")
	}
	if (TTLPolicy{Board: time.Minute, Categories: -time.Hour}).Valid() {
		t.Fatal("negative categories TTL should be invalid")
	}
}
