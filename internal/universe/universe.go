// Package universe lists the tickers an ingestion run covers.
package universe

import (
	"bufio"
	"bytes"
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"
)

// Source lists the active ticker symbols. It is read at the start of every
// run and never cached across runs.
type Source interface {
	ListActiveTickers(ctx context.Context) ([]string, error)
}

// Static is a fixed list, typically from config.
type Static []string

func (s Static) ListActiveTickers(ctx context.Context) ([]string, error) {
	out := make([]string, len(s))
	copy(out, s)
	return out, nil
}

// File reads tickers from a file on every call. YAML files hold a
// `tickers:` list; any other file holds one symbol per line with `#`
// comments.
type File struct {
	Path string
}

func (f File) ListActiveTickers(ctx context.Context) ([]string, error) {
	data, err := os.ReadFile(f.Path)
	if err != nil {
		return nil, fmt.Errorf("read universe file: %w", err)
	}
	switch strings.ToLower(filepath.Ext(f.Path)) {
	case ".yaml", ".yml":
		var doc struct {
			Tickers []string `yaml:"tickers"`
		}
		if err := yaml.Unmarshal(data, &doc); err != nil {
			return nil, fmt.Errorf("parse universe file: %w", err)
		}
		return doc.Tickers, nil
	default:
		return parseLines(data)
	}
}

func parseLines(data []byte) ([]string, error) {
	var tickers []string
	sc := bufio.NewScanner(bytes.NewReader(data))
	for sc.Scan() {
		line := sc.Text()
		if i := strings.IndexByte(line, '#'); i >= 0 {
			line = line[:i]
		}
		for _, field := range strings.FieldsFunc(line, func(r rune) bool { return r == ',' || r == ' ' || r == '\t' }) {
			tickers = append(tickers, field)
		}
	}
	if err := sc.Err(); err != nil {
		return nil, fmt.Errorf("scan universe file: %w", err)
	}
	return tickers, nil
}

// DefaultRegistryQuery selects active companies from the registry table.
const DefaultRegistryQuery = `SELECT ticker FROM companies WHERE active = TRUE ORDER BY ticker`

// SQLRegistry reads the company registry. It only issues SELECTs.
type SQLRegistry struct {
	db    *sql.DB
	query string
}

// NewSQLRegistry creates a registry reader. An empty query uses
// DefaultRegistryQuery.
func NewSQLRegistry(db *sql.DB, query string) *SQLRegistry {
	if strings.TrimSpace(query) == "" {
		query = DefaultRegistryQuery
	}
	return &SQLRegistry{db: db, query: query}
}

func (r *SQLRegistry) ListActiveTickers(ctx context.Context) ([]string, error) {
	rows, err := r.db.QueryContext(ctx, r.query)
	if err != nil {
		return nil, fmt.Errorf("query company registry: %w", err)
	}
	defer rows.Close()

	var tickers []string
	for rows.Next() {
		var t sql.NullString
		if err := rows.Scan(&t); err != nil {
			return nil, fmt.Errorf("scan company registry: %w", err)
		}
		if t.Valid {
			tickers = append(tickers, t.String)
		}
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate company registry: %w", err)
	}
	return tickers, nil
}
