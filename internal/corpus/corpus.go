// Package corpus loads the canned question/answer records the matcher searches.
package corpus

import (
	"bytes"
	_ "embed"
	"encoding/json"
	"fmt"
	"io"
	"os"

	"github.com/xaenox/lummy-bot/internal/models"
)

//go:embed chatbot-qa.json
var defaultCorpus []byte

// Default returns the corpus shipped with the binary.
func Default() ([]models.CorpusEntry, error) {
	return Load(bytes.NewReader(defaultCorpus))
}

// LoadFile reads a corpus from a JSON file. An empty path yields the default corpus.
func LoadFile(path string) ([]models.CorpusEntry, error) {
	if path == "" {
		return Default()
	}

	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("error opening corpus: %w", err)
	}
	defer f.Close()

	return Load(f)
}

// Load decodes a JSON array of corpus entries and validates each of them.
func Load(r io.Reader) ([]models.CorpusEntry, error) {
	var entries []models.CorpusEntry
	if err := json.NewDecoder(r).Decode(&entries); err != nil {
		return nil, fmt.Errorf("error decoding corpus: %w", err)
	}

	for _, e := range entries {
		if err := e.Validate(); err != nil {
			return nil, err
		}
	}

	return entries, nil
}
