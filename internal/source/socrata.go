package source

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"njvaxbot/internal/table"
)

// Socrata errors.
var (
	ErrColumnNotFound = errors.New("column not found")
	ErrBadSnapshot    = errors.New("unreadable snapshot value")
)

// Socrata reads a rows.json view export and keeps the rows of the latest snapshot.
//
// Columns are referenced by position ("17") or by fieldName / display name.
// The snapshot column is compared as a time when SnapshotLayout is set and as
// an integer otherwise.
type Socrata struct {
	scraper        *Scraper
	SourceName     string
	URL            string
	File           string
	KeyColumn      string
	SnapshotColumn string
	SnapshotLayout string
	ValueColumns   []string
}

// NewSocrata creates a Socrata provider backed by scraper.
func NewSocrata(scraper *Scraper, s Socrata) *Socrata {
	s.scraper = scraper
	s.ValueColumns = append([]string(nil), s.ValueColumns...)

	return &s
}

// Name returns the source name.
func (s *Socrata) Name() string {
	return s.SourceName
}

type column struct {
	FieldName string `json:"fieldName"`
	Name      string `json:"name"`
}

type rowsView struct {
	Meta struct {
		View struct {
			Columns []column `json:"columns"`
		} `json:"view"`
	} `json:"meta"`
	Data [][]any `json:"data"`
}

// Fetch downloads the view and returns records of the form [key, values...].
func (s *Socrata) Fetch(ctx context.Context) ([]table.RawRecord, error) {
	if s.URL == "" && s.File == "" {
		return nil, ErrMissingLocation
	}

	body, err := s.scraper.Load(ctx, s.URL, s.File)
	if err != nil {
		return nil, err
	}

	return s.Extract(body)
}

// Extract decodes a rows.json document.
func (s *Socrata) Extract(body string) ([]table.RawRecord, error) {
	dec := json.NewDecoder(strings.NewReader(body))
	dec.UseNumber()

	var view rowsView
	if err := dec.Decode(&view); err != nil {
		return nil, fmt.Errorf("failed to decode %s: %w", s.SourceName, err)
	}

	resolve := func(ref string) (int, error) {
		return columnIndex(ref, view.Meta.View.Columns)
	}

	keyIdx, err := resolve(s.KeyColumn)
	if err != nil {
		return nil, err
	}

	snapIdx, err := resolve(s.SnapshotColumn)
	if err != nil {
		return nil, err
	}

	valueIdx := make([]int, len(s.ValueColumns))
	for i, ref := range s.ValueColumns {
		if valueIdx[i], err = resolve(ref); err != nil {
			return nil, err
		}
	}

	snapshots := make([]int64, len(view.Data))

	var latest int64

	for i, row := range view.Data {
		v, err := s.snapshot(cell(row, snapIdx))
		if err != nil {
			return nil, fmt.Errorf("%s row %d: %w", s.SourceName, i, err)
		}

		snapshots[i] = v
		if i == 0 || v > latest {
			latest = v
		}
	}

	var records []table.RawRecord

	for i, row := range view.Data {
		if snapshots[i] != latest {
			continue
		}

		rec := table.RawRecord{cell(row, keyIdx)}
		for _, idx := range valueIdx {
			rec = append(rec, cell(row, idx))
		}

		records = append(records, rec)
	}

	return records, nil
}

func (s *Socrata) snapshot(raw string) (int64, error) {
	if s.SnapshotLayout != "" {
		t, err := time.Parse(s.SnapshotLayout, raw)
		if err != nil {
			return 0, fmt.Errorf("%w: %q: %w", ErrBadSnapshot, raw, err)
		}

		return t.Unix(), nil
	}

	n, err := strconv.ParseInt(strings.TrimSpace(raw), 10, 64)
	if err != nil {
		return 0, fmt.Errorf("%w: %q is not an integer", ErrBadSnapshot, raw)
	}

	return n, nil
}

// columnIndex resolves a positional or named column reference. Positions are
// only range checked when the view declares its columns.
func columnIndex(ref string, columns []column) (int, error) {
	if n, err := strconv.Atoi(ref); err == nil {
		if n < 0 || (len(columns) > 0 && n >= len(columns)) {
			return 0, fmt.Errorf("%w: index %d of %d", ErrColumnNotFound, n, len(columns))
		}

		return n, nil
	}

	for i, c := range columns {
		if ref != "" && (c.FieldName == ref || c.Name == ref) {
			return i, nil
		}
	}

	return 0, fmt.Errorf("%w: %q", ErrColumnNotFound, ref)
}

// cell renders one JSON value as text. Missing and null values become "".
func cell(row []any, idx int) string {
	if idx >= len(row) {
		return ""
	}

	switch v := row[idx].(type) {
	case nil:
		return ""
	case string:
		return v
	case json.Number:
		return v.String()
	case bool:
		return strconv.FormatBool(v)
	default:
		return fmt.Sprint(v)
	}
}
