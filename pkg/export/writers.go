package export

import (
	"encoding/csv"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/apex/log"
)

// tabular is any record with a fixed CSV column projection.
type tabular interface {
	csvHeader() []string
	csvRow() []string
}

type document[T any] struct {
	ExportDate time.Time `json:"export_date"`
	ItemCount  int       `json:"item_count"`
	Items      []T       `json:"items"`
}

// WriteJSON writes records wrapped in the interchange document
// envelope. Parent directories are created and an existing file is
// overwritten.
func WriteJSON[T any](items []T, path string) error {
	if items == nil {
		items = []T{}
	}
	doc := document[T]{
		ExportDate: time.Now(),
		ItemCount:  len(items),
		Items:      items,
	}
	data, err := json.MarshalIndent(doc, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal export document: %w", err)
	}
	if err := writeFile(path, data); err != nil {
		return err
	}
	log.WithFields(log.Fields{
		"count": len(items),
		"path":  path,
	}).Info("wrote JSON export")
	return nil
}

// WriteCSV writes one header row followed by one row per record.
func WriteCSV[T tabular](items []T, path string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("failed to create %s: %w", filepath.Dir(path), err)
	}
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("failed to create %s: %w", path, err)
	}
	defer f.Close()

	w := csv.NewWriter(f)
	var zero T
	if err := w.Write(zero.csvHeader()); err != nil {
		return err
	}
	for _, item := range items {
		if err := w.Write(item.csvRow()); err != nil {
			return err
		}
	}
	w.Flush()
	if err := w.Error(); err != nil {
		return fmt.Errorf("failed to write %s: %w", path, err)
	}
	log.WithFields(log.Fields{
		"count": len(items),
		"path":  path,
	}).Info("wrote CSV export")
	return f.Close()
}

func writeFile(path string, data []byte) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("failed to create %s: %w", filepath.Dir(path), err)
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("failed to write %s: %w", path, err)
	}
	return nil
}
