package siyuan

import (
	"regexp"
	"testing"
	"time"
)

var nodeIDRe = regexp.MustCompile(`^\d{14}-[0-9a-f]{7}$`)

func TestNewNodeIDFormat(t *testing.T) {
	id := NewNodeID()
	if !nodeIDRe.MatchString(id) {
		t.Errorf("id %q does not match node id format", id)
	}
}

func TestNewNodeIDAtUsesTimestamp(t *testing.T) {
	at := time.Date(2025, 3, 14, 9, 26, 53, 0, time.UTC)
	id := NewNodeIDAt(at)
	if id[:14] != "20250314092653" {
		t.Errorf("prefix = %q, want 20250314092653", id[:14])
	}
}

func TestNewNodeIDUnique(t *testing.T) {
	seen := make(map[string]struct{})
	for range 100 {
		id := NewNodeID()
		if _, dup := seen[id]; dup {
			t.Fatalf("duplicate id %q", id)
		}
		seen[id] = struct{}{}
	}
}
