//go:build cgo
// +build cgo

package main

import (
	"os"
	"path/filepath"
	"testing"
)

func TestColonListSplitsAndIgnoresEmptySegments(t *testing.T) {
	var c colonList
	if err := c.Set("a::b:c"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(c.values) != 3 || c.values[0] != "a" || c.values[1] != "b" || c.values[2] != "c" {
		t.Fatalf("unexpected values: %v", c.values)
	}
	if c.String() != "a:b:c" {
		t.Errorf("unexpected String(): %q", c.String())
	}
}

func writeGestureFixture(t *testing.T, dir, name string) {
	t.Helper()
	content := `{"gestureId":"` + name + `","label":"` + name + `","signal_key":"x","instructions":[{"move_to_next_type":"higher","value":0.5}]}`
	if err := os.WriteFile(filepath.Join(dir, name+".json"), []byte(content), 0o644); err != nil {
		t.Fatalf("writing fixture: %v", err)
	}
}

func TestDiscoverGestureFilesFindsAllJSON(t *testing.T) {
	dir := t.TempDir()
	writeGestureFixture(t, dir, "blink")
	writeGestureFixture(t, dir, "smile")
	if err := os.WriteFile(filepath.Join(dir, "readme.txt"), []byte("not json"), 0o644); err != nil {
		t.Fatalf("writing non-json fixture: %v", err)
	}

	files, err := discoverGestureFiles([]string{dir}, nil)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(files) != 2 {
		t.Fatalf("expected 2 gesture files, got %d: %v", len(files), files)
	}
}

func TestDiscoverGestureFilesHonorsWhitelist(t *testing.T) {
	dir := t.TempDir()
	writeGestureFixture(t, dir, "blink")
	writeGestureFixture(t, dir, "smile")

	files, err := discoverGestureFiles([]string{dir}, []string{"blink"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(files) != 1 || filepath.Base(files[0]) != "blink.json" {
		t.Fatalf("expected only blink.json, got %v", files)
	}
}

func TestDiscoverGestureFilesRejectsUnreadableDir(t *testing.T) {
	_, err := discoverGestureFiles([]string{"/nonexistent/path/for/test"}, nil)
	if err == nil {
		t.Fatal("expected an error for an unreadable directory")
	}
}

func TestCountLoadableGesturesSkipsInvalidDefinitions(t *testing.T) {
	dir := t.TempDir()
	writeGestureFixture(t, dir, "blink")
	if err := os.WriteFile(filepath.Join(dir, "broken.json"), []byte("{not valid json"), 0o644); err != nil {
		t.Fatalf("writing broken fixture: %v", err)
	}

	files, err := discoverGestureFiles([]string{dir}, nil)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	count := countLoadableGestures(files)
	if count != 1 {
		t.Fatalf("expected 1 loadable gesture, got %d", count)
	}
}
