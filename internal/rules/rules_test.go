package rules

import (
	"os"
	"path/filepath"
	"testing"
)

func TestLoadString(t *testing.T) {
	e, err := LoadString(`
function remove_on_split(key, value)
    return key == "note" or value == "stale"
end`)
	if err != nil {
		t.Fatalf("LoadString failed: %v", err)
	}
	defer e.Close()

	if !e.RemoveOnSplit("note", "anything") {
		t.Error("rule should drop note")
	}
	if !e.RemoveOnSplit("name", "stale") {
		t.Error("rule should drop stale values")
	}
	if e.RemoveOnSplit("name", "Main St") {
		t.Error("rule should keep name")
	}
}

func TestLoadStringRequiresCallback(t *testing.T) {
	if _, err := LoadString(`x = 1`); err == nil {
		t.Fatal("expected an error when remove_on_split is undefined")
	}
	if _, err := LoadString(`remove_on_split = "not a function"`); err == nil {
		t.Fatal("expected an error when remove_on_split is not a function")
	}
	if _, err := LoadString(`this is not lua`); err == nil {
		t.Fatal("expected a parse error")
	}
}

func TestFailingRuleKeepsTag(t *testing.T) {
	e, err := LoadString(`
function remove_on_split(key, value)
    error("boom")
end`)
	if err != nil {
		t.Fatalf("LoadString failed: %v", err)
	}
	defer e.Close()

	if e.RemoveOnSplit("name", "Main St") {
		t.Error("a failing rule must keep the tag")
	}
}

func TestLoadFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "rules.lua")
	code := `function remove_on_split(key, value) return key == "fixme" end`
	if err := os.WriteFile(path, []byte(code), 0644); err != nil {
		t.Fatal(err)
	}

	e, err := Load(path)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	defer e.Close()

	if !e.RemoveOnSplit("fixme", "resurvey") {
		t.Error("rule from file should drop fixme")
	}

	if _, err := Load(filepath.Join(t.TempDir(), "missing.lua")); err == nil {
		t.Fatal("expected an error for a missing rules file")
	}
}
