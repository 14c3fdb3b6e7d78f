package config

import "testing"

func TestUnusedKeyTracking(t *testing.T) {
	c := New(map[string]any{"a": 1, "b": 2})
	if _, ok := c.GetInt("a"); !ok {
		t.Fatal("expected key 'a' present")
	}
	unused := c.UnusedKeys()
	if len(unused) != 1 || unused[0] != "b" {
		t.Fatalf("expected only 'b' unused, got %v", unused)
	}
	if !c.HasUnusedValues() {
		t.Fatal("expected HasUnusedValues to be true")
	}
}

func TestKeysAreCaseInsensitive(t *testing.T) {
	c := New(map[string]any{"Sample_Rate": 1000})
	if !c.Has("sample_rate") {
		t.Fatal("expected lower-cased lookup to find the key")
	}
}

func TestUpdateResetsUsedTracking(t *testing.T) {
	c := New(map[string]any{"a": 1})
	c.GetInt("a")
	if c.HasUnusedValues() {
		t.Fatal("expected no unused keys before update")
	}
	c.Update(map[string]any{"a": 2})
	if !c.HasUnusedValues() {
		t.Fatal("expected 'a' to be unused again after update")
	}
}
