package core

import (
	"context"
	"errors"
	"testing"
)

func TestPreviewSource(t *testing.T) {
	store := newMemStore()
	svc := NewService(store, testImportConfig())
	path := writeSource(t, "siret;codePostalEtablissement;etablissementSiege;extra\n"+
		"11111111111111;59000;true;x\n"+
		";59000;false;x\n"+
		"22222222222222;75001;false;x\n"+
		"11111111111111;59100;false;x\n")

	resp, err := svc.PreviewSource(context.Background(), ImportRequest{FilePath: path, Departments: []string{"59"}}, 0)
	if err != nil {
		t.Fatalf("PreviewSource() error = %v", err)
	}

	want := PreviewSummary{RowsScanned: 4, ValidRows: 2, ErrorRows: 1, FilteredRows: 1, DuplicateInFile: 1}
	if resp.Summary != want {
		t.Errorf("summary = %+v, want %+v", resp.Summary, want)
	}
	if resp.BoundColumns != 3 || len(resp.UnmappedHeaders) != 1 {
		t.Errorf("bound = %d, unmapped = %v", resp.BoundColumns, resp.UnmappedHeaders)
	}
	if len(resp.ErrorSamples) != 1 || resp.ErrorSamples[0].Line != 3 {
		t.Errorf("error samples = %+v, want line 3", resp.ErrorSamples)
	}
	if len(resp.Samples) != 2 {
		t.Fatalf("samples = %d, want 2", len(resp.Samples))
	}
	first := resp.Samples[0]
	if first.Values[ColPostalCode] != "59000" || first.Values[ColHeadOffice] != "true" {
		t.Errorf("sample values = %v", first.Values)
	}

	if store.count() != 0 || len(store.jobs) != 0 {
		t.Error("preview wrote to the store")
	}
}

func TestPreviewSource_RowLimit(t *testing.T) {
	svc := NewService(newMemStore(), testImportConfig())
	path := writeSource(t, scenarioHeader+
		"11111111111111;59000\n22222222222222;59000\n33333333333333;59000\n")

	resp, err := svc.PreviewSource(context.Background(), ImportRequest{FilePath: path}, 2)
	if err != nil {
		t.Fatalf("PreviewSource() error = %v", err)
	}
	if resp.Summary.RowsScanned != 2 {
		t.Errorf("rows scanned = %d, want 2", resp.Summary.RowsScanned)
	}
}

func TestPreviewSource_WarnsWithoutSIRETColumn(t *testing.T) {
	svc := NewService(newMemStore(), testImportConfig())
	path := writeSource(t, "siren;codePostalEtablissement\n123456789;59000\n")

	resp, err := svc.PreviewSource(context.Background(), ImportRequest{FilePath: path}, 0)
	if err != nil {
		t.Fatalf("PreviewSource() error = %v", err)
	}
	if len(resp.Warnings) != 1 || resp.Warnings[0] != ErrMissingKeyColumn.Error() {
		t.Errorf("warnings = %q, want [%q]", resp.Warnings, ErrMissingKeyColumn)
	}
	if resp.Summary.ErrorRows != 1 || resp.Summary.ValidRows != 0 {
		t.Errorf("summary = %+v, want 1 error row", resp.Summary)
	}
}

func TestPreviewSource_Errors(t *testing.T) {
	svc := NewService(newMemStore(), testImportConfig())

	if _, err := svc.PreviewSource(context.Background(), ImportRequest{FilePath: writeSource(t, "")}, 10); !errors.Is(err, ErrMissingHeader) {
		t.Errorf("empty file error = %v, want ErrMissingHeader", err)
	}
	if _, err := svc.PreviewSource(context.Background(), ImportRequest{FilePath: "/does/not/exist.csv"}, 10); !errors.Is(err, ErrSourceUnreadable) {
		t.Errorf("missing file error = %v, want ErrSourceUnreadable", err)
	}
}
