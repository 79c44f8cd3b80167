package main

import (
	"encoding/json"
	"fmt"
	"io"
	"time"

	"github.com/rapidoc/docsync/internal/engine"
	"gopkg.in/yaml.v3"
)

// row is the printable form of a document view.
type row struct {
	ID           string    `json:"id" yaml:"id"`
	Name         string    `json:"name" yaml:"name"`
	Owner        string    `json:"owner" yaml:"owner"`
	Role         string    `json:"role" yaml:"role"`
	State        string    `json:"state" yaml:"state"`
	Stale        bool      `json:"stale,omitempty" yaml:"stale,omitempty"`
	Preview      string    `json:"preview,omitempty" yaml:"preview,omitempty"`
	LastModified time.Time `json:"lastModified" yaml:"lastModified"`
	LastError    string    `json:"lastError,omitempty" yaml:"lastError,omitempty"`
}

func toRow(v engine.View) row {
	return row{
		ID:           v.Document.ID,
		Name:         v.Document.Name,
		Owner:        v.Document.OwnerID,
		Role:         string(v.Role),
		State:        v.State.String(),
		Stale:        v.Stale,
		Preview:      v.Preview,
		LastModified: v.Document.LastModified,
		LastError:    v.LastError,
	}
}

func toRows(views []engine.View) []row {
	out := make([]row, 0, len(views))
	for _, v := range views {
		out = append(out, toRow(v))
	}
	return out
}

func render(w io.Writer, format string, v interface{}) error {
	switch format {
	case "json":
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(v)
	case "yaml", "":
		enc := yaml.NewEncoder(w)
		enc.SetIndent(2)
		if err := enc.Encode(v); err != nil {
			return err
		}
		return enc.Close()
	}
	return fmt.Errorf("unknown output format %q", format)
}
