package cache

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
)

// JSONLoader loads transcript records from JSON files, either a single file
// or every *.json file under a directory. Each file holds an array of records.
type JSONLoader struct {
	path string
}

// NewJSONLoader creates a new JSON loader.
func NewJSONLoader(path string) *JSONLoader {
	return &JSONLoader{path: path}
}

// Load implements Loader.
func (l *JSONLoader) Load(c *Cache) error {
	info, err := os.Stat(l.path)
	if err != nil {
		return fmt.Errorf("stat %s: %w", l.path, err)
	}
	if !info.IsDir() {
		return l.loadJSONFile(c, l.path)
	}

	var files []string
	err = filepath.WalkDir(l.path, func(path string, d os.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if !d.IsDir() && filepath.Ext(path) == ".json" {
			files = append(files, path)
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("walk %s: %w", l.path, err)
	}
	sort.Strings(files)
	for _, f := range files {
		if err := l.loadJSONFile(c, f); err != nil {
			return fmt.Errorf("load json file %s: %w", f, err)
		}
	}
	return nil
}

func (l *JSONLoader) loadJSONFile(c *Cache, path string) error {
	f, err := os.Open(path)
	if err != nil {
		return err
	}
	defer f.Close()

	records, err := ReadJSON(f)
	if err != nil {
		return err
	}
	for _, r := range records {
		c.AddRecord(r)
	}
	return nil
}

// ReadJSON decodes an array of records.
func ReadJSON(r io.Reader) ([]*Record, error) {
	var records []*Record
	if err := json.NewDecoder(r).Decode(&records); err != nil {
		return nil, fmt.Errorf("decode json: %w", err)
	}
	return records, nil
}

// WriteJSON encodes records as an indented JSON array.
func WriteJSON(w io.Writer, records []*Record) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	if err := enc.Encode(records); err != nil {
		return fmt.Errorf("encode json: %w", err)
	}
	return nil
}
