package compiler

import "testing"

func TestResourceTableDedupesByTypeAndPath(t *testing.T) {
	st := NewStringTable()
	rt := NewResourceTable(st, false)

	a, err := rt.Add(ResTypeImage, "assets/logo.png")
	if err != nil {
		t.Fatalf("Add failed: %v", err)
	}
	b, err := rt.Add(ResTypeImage, "assets/logo.png")
	if err != nil {
		t.Fatalf("Add failed: %v", err)
	}
	if a != b {
		t.Errorf("re-adding the same (type, path) gave different indices %d and %d", a, b)
	}

	c, err := rt.Add(ResTypeFont, "assets/logo.png")
	if err != nil {
		t.Fatalf("Add failed: %v", err)
	}
	if c == a {
		t.Errorf("same path under a different type should not dedupe, got the same index %d", a)
	}
	if rt.Len() != 2 {
		t.Errorf("Len() = %d, want 2", rt.Len())
	}
}

func TestResourceTableRejectsEmptyPath(t *testing.T) {
	rt := NewResourceTable(NewStringTable(), false)
	if _, err := rt.Add(ResTypeImage, "   "); err == nil {
		t.Fatal("expected an error for a whitespace-only path, got nil")
	}
}

func TestResourceTypeFromExtension(t *testing.T) {
	cases := map[string]uint8{
		"icon.png":    ResTypeImage,
		"font.ttf":    ResTypeFont,
		"sound.mp3":   ResTypeSound,
		"clip.mp4":    ResTypeVideo,
		"script.lua":  ResTypeScript,
		"unknown.xyz": ResTypeImage,
	}
	for path, want := range cases {
		got := resourceTypeFromExt(path)
		if got != want {
			t.Errorf("resourceTypeFromExt(%q) = %d, want %d", path, got, want)
		}
	}
}
