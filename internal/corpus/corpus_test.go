package corpus

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestDefault(t *testing.T) {
	entries, err := Default()
	if err != nil {
		t.Fatalf("Default: %v", err)
	}
	if len(entries) == 0 {
		t.Fatal("expected a non-empty default corpus")
	}

	seen := make(map[int]bool)
	for _, e := range entries {
		if seen[e.ID] {
			t.Errorf("duplicate id %d", e.ID)
		}
		seen[e.ID] = true
		for _, kw := range e.Keywords {
			if kw != strings.ToLower(kw) {
				t.Errorf("entry %d: keyword %q is not lowercase", e.ID, kw)
			}
		}
	}
}

func TestLoadRejectsEmptyAnswer(t *testing.T) {
	_, err := Load(strings.NewReader(`[{"id": 1, "question": "q", "answer": "", "keywords": ["a"]}]`))
	if err == nil {
		t.Fatal("expected an error for an entry without answer")
	}
}

func TestLoadRejectsMalformedJSON(t *testing.T) {
	if _, err := Load(strings.NewReader(`{"id": 1`)); err == nil {
		t.Fatal("expected a decode error")
	}
}

func TestLoadEmptyCorpus(t *testing.T) {
	entries, err := Load(strings.NewReader(`[]`))
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if len(entries) != 0 {
		t.Errorf("expected no entries, got %d", len(entries))
	}
}

func TestLoadFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "qa.json")
	data := `[{"id": 7, "question": "Qui?", "answer": "Lui.", "keywords": ["qui"]}]`
	if err := os.WriteFile(path, []byte(data), 0o644); err != nil {
		t.Fatal(err)
	}

	entries, err := LoadFile(path)
	if err != nil {
		t.Fatalf("LoadFile: %v", err)
	}
	if len(entries) != 1 || entries[0].ID != 7 || entries[0].Answer != "Lui." {
		t.Errorf("unexpected entries: %+v", entries)
	}

	if _, err := LoadFile(filepath.Join(t.TempDir(), "missing.json")); err == nil {
		t.Error("expected an error for a missing file")
	}
}

func TestLoadFileEmptyPathUsesDefault(t *testing.T) {
	entries, err := LoadFile("")
	if err != nil {
		t.Fatalf("LoadFile: %v", err)
	}
	def, _ := Default()
	if len(entries) != len(def) {
		t.Errorf("expected %d entries, got %d", len(def), len(entries))
	}
}
