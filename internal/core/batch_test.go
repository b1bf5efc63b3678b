package core

import (
	"fmt"
	"testing"
)

func numberedRecords(t *testing.T, n int) []RegistryRecord {
	t.Helper()
	m := NewColumnMapper([]string{"siret"})
	recs := make([]RegistryRecord, n)
	for i := range recs {
		rec, err := m.Map([]string{fmt.Sprintf("%014d", i)})
		if err != nil {
			t.Fatalf("Map() error = %v", err)
		}
		recs[i] = rec
	}
	return recs
}

func TestAccumulator(t *testing.T) {
	tests := []struct {
		name        string
		size        int
		records     int
		wantBatches []int
	}{
		{"empty stream", 3, 0, nil},
		{"partial only", 3, 2, []int{2}},
		{"exact multiple", 3, 6, []int{3, 3}},
		{"full then partial", 3, 7, []int{3, 3, 1}},
		{"default size", 0, 1001, []int{1000, 1}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			acc := NewAccumulator(tt.size)
			var batches [][]RegistryRecord
			for _, rec := range numberedRecords(t, tt.records) {
				if b := acc.Add(rec); b != nil {
					batches = append(batches, b)
				}
			}
			if b := acc.Flush(); b != nil {
				batches = append(batches, b)
			}

			if len(batches) != len(tt.wantBatches) {
				t.Fatalf("got %d batches, want %d", len(batches), len(tt.wantBatches))
			}
			next := 0
			for i, b := range batches {
				if len(b) != tt.wantBatches[i] {
					t.Errorf("batch %d size = %d, want %d", i, len(b), tt.wantBatches[i])
				}
				for _, rec := range b {
					if want := fmt.Sprintf("%014d", next); rec.SIRET() != want {
						t.Fatalf("record order broken: got %s, want %s", rec.SIRET(), want)
					}
					next++
				}
			}
			if rest := acc.Flush(); rest != nil {
				t.Errorf("second Flush() = %d records, want nil", len(rest))
			}
		})
	}
}

func TestAccumulator_BatchNotReused(t *testing.T) {
	acc := NewAccumulator(2)
	recs := numberedRecords(t, 4)

	acc.Add(recs[0])
	first := acc.Add(recs[1])
	acc.Add(recs[2])
	acc.Add(recs[3])

	if first[0].SIRET() != recs[0].SIRET() || first[1].SIRET() != recs[1].SIRET() {
		t.Error("a handed-out batch was modified by later Add calls")
	}
}
