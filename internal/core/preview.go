package core

import (
	"context"
	"fmt"
	"time"
)

// Preview limits.
const (
	DefaultPreviewRows = 1000
	MaxPreviewRows     = 100000
	maxPreviewSamples  = 10
	maxPreviewErrors   = 20
)

// PreviewSummary holds the counts of a dry run over the first rows of a file.
type PreviewSummary struct {
	RowsScanned     int `json:"rows_scanned" yaml:"rows_scanned"`
	ValidRows       int `json:"valid_rows" yaml:"valid_rows"`
	ErrorRows       int `json:"error_rows" yaml:"error_rows"`
	FilteredRows    int `json:"filtered_rows" yaml:"filtered_rows"`
	DuplicateInFile int `json:"duplicate_in_file" yaml:"duplicate_in_file"`
}

// RowPreview is one cleaned record as it would be stored.
type RowPreview struct {
	Line   int64             `json:"line" yaml:"line"`
	SIRET  string            `json:"siret" yaml:"siret"`
	Values map[string]string `json:"values" yaml:"values"`
}

// ErrorPreview is one row the import would count as an error.
type ErrorPreview struct {
	Line  int64  `json:"line" yaml:"line"`
	Error string `json:"error" yaml:"error"`
}

// PreviewResponse is the result of PreviewSource.
type PreviewResponse struct {
	File             string         `json:"file" yaml:"file"`
	BoundColumns     int            `json:"bound_columns" yaml:"bound_columns"`
	UnmappedHeaders  []string       `json:"unmapped_headers,omitempty" yaml:"unmapped_headers,omitempty"`
	Warnings         []string       `json:"warnings,omitempty" yaml:"warnings,omitempty"`
	Summary          PreviewSummary `json:"summary" yaml:"summary"`
	Samples          []RowPreview   `json:"samples" yaml:"samples"`
	ErrorSamples     []ErrorPreview `json:"error_samples,omitempty" yaml:"error_samples,omitempty"`
	ProcessingTimeMs int64          `json:"processing_time_ms" yaml:"processing_time_ms"`
}

// PreviewSource runs the read, tokenize, map and filter stages over the
// first maxRows data lines of a source file without writing anything. It
// applies the same path rules as StartImport.
func (s *Service) PreviewSource(ctx context.Context, req ImportRequest, maxRows int) (*PreviewResponse, error) {
	start := time.Now()
	if maxRows <= 0 {
		maxRows = DefaultPreviewRows
	}
	if maxRows > MaxPreviewRows {
		maxRows = MaxPreviewRows
	}

	filter, err := NewDepartmentFilter(req.Departments)
	if err != nil {
		return nil, err
	}
	path, err := s.resolveSource(req.FilePath)
	if err != nil {
		return nil, err
	}
	src, size, err := openSource(path)
	if err != nil {
		return nil, err
	}
	defer src.Close()

	lines, _, err := OpenSource(src, size, s.cfg.SourceEncoding)
	if err != nil {
		return nil, err
	}
	mapper, err := readHeader(lines)
	if err != nil {
		return nil, err
	}

	resp := &PreviewResponse{
		File:            path,
		BoundColumns:    mapper.BoundColumns(),
		UnmappedHeaders: mapper.UnmappedHeaders(),
	}
	if !mapper.HasKey() {
		resp.Warnings = append(resp.Warnings, ErrMissingKeyColumn.Error())
	}
	seen := make(map[string]bool)

	for resp.Summary.RowsScanned < maxRows {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		line, ok, lineErr := lines.Next()
		if !ok {
			break
		}
		if lineErr == nil && isBlank(line) {
			continue
		}
		resp.Summary.RowsScanned++

		var rec RegistryRecord
		if lineErr == nil {
			rec, lineErr = parseRow(mapper, line)
		}
		if lineErr != nil {
			resp.Summary.ErrorRows++
			if len(resp.ErrorSamples) < maxPreviewErrors {
				resp.ErrorSamples = append(resp.ErrorSamples, ErrorPreview{Line: lines.Line(), Error: lineErr.Error()})
			}
			continue
		}
		if !filter.Allow(rec) {
			resp.Summary.FilteredRows++
			continue
		}

		resp.Summary.ValidRows++
		if seen[rec.SIRET()] {
			resp.Summary.DuplicateInFile++
		}
		seen[rec.SIRET()] = true

		if len(resp.Samples) < maxPreviewSamples {
			resp.Samples = append(resp.Samples, RowPreview{
				Line:   lines.Line(),
				SIRET:  rec.SIRET(),
				Values: rec.Strings(),
			})
		}
	}
	if err := lines.Err(); err != nil {
		return nil, err
	}

	resp.ProcessingTimeMs = time.Since(start).Milliseconds()
	return resp, nil
}

// Strings renders the present columns of a record as text, keyed by
// canonical column name.
func (r RegistryRecord) Strings() map[string]string {
	out := make(map[string]string)
	for i, spec := range RegistryColumns {
		if i >= len(r.Values) {
			break
		}
		switch spec.Type {
		case FieldNumeric:
			if v, ok := r.Float(spec.Name); ok {
				out[spec.Name] = fmt.Sprint(v)
			}
		case FieldBool:
			if v, ok := r.Bool(spec.Name); ok {
				out[spec.Name] = fmt.Sprint(v)
			}
		default:
			if v := r.Text(spec.Name); v != "" {
				out[spec.Name] = v
			}
		}
	}
	return out
}
