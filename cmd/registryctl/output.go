package main

import (
	"encoding/json"
	"fmt"
	"io"
	"text/tabwriter"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/djedjiga-matrix/Crm-gestion-bases/internal/core"
)

// Output formats of --output.
const (
	formatTable = "table"
	formatJSON  = "json"
	formatYAML  = "yaml"
)

func validFormat(f string) bool {
	return f == formatTable || f == formatJSON || f == formatYAML
}

// printer writes v as JSON or YAML, or calls table for the table format.
type printer struct {
	w      io.Writer
	format string
}

func (p printer) print(v any, table func(tw *tabwriter.Writer)) error {
	switch p.format {
	case formatJSON:
		enc := json.NewEncoder(p.w)
		enc.SetIndent("", "  ")
		return enc.Encode(v)
	case formatYAML:
		enc := yaml.NewEncoder(p.w)
		enc.SetIndent(2)
		if err := enc.Encode(v); err != nil {
			return err
		}
		return enc.Close()
	}

	tw := tabwriter.NewWriter(p.w, 0, 0, 2, ' ', 0)
	table(tw)
	return tw.Flush()
}

func jobTable(job *core.ImportJob) func(tw *tabwriter.Writer) {
	return func(tw *tabwriter.Writer) {
		fmt.Fprintf(tw, "ID\t%s\n", job.ID)
		fmt.Fprintf(tw, "STATUS\t%s\n", job.Status)
		fmt.Fprintf(tw, "MODE\t%s\n", job.Mode)
		if len(job.Departments) > 0 {
			fmt.Fprintf(tw, "DEPARTMENTS\t%v\n", job.Departments)
		}
		fmt.Fprintf(tw, "FILE\t%s\n", job.Filename)
		fmt.Fprintf(tw, "TOTAL ROWS\t%d\n", job.TotalRows)
		fmt.Fprintf(tw, "IMPORTED\t%d\n", job.Imported)
		fmt.Fprintf(tw, "UPDATED\t%d\n", job.Updated)
		fmt.Fprintf(tw, "SKIPPED\t%d\n", job.Skipped)
		fmt.Fprintf(tw, "FILTERED\t%d\n", job.Filtered)
		fmt.Fprintf(tw, "ERRORS\t%d\n", job.Errors)
		fmt.Fprintf(tw, "STARTED\t%s\n", job.StartedAt.Local().Format(time.DateTime))
		fmt.Fprintf(tw, "DURATION\t%s\n", job.Duration(time.Now()).Round(time.Second))
		if job.ErrorMessage != "" {
			fmt.Fprintf(tw, "MESSAGE\t%s\n", job.ErrorMessage)
		}
	}
}

func historyTable(jobs []core.ImportJob) func(tw *tabwriter.Writer) {
	return func(tw *tabwriter.Writer) {
		fmt.Fprintln(tw, "ID\tSTATUS\tMODE\tFILE\tTOTAL\tIMPORTED\tUPDATED\tSKIPPED\tFILTERED\tERRORS\tSTARTED")
		for _, j := range jobs {
			fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%d\t%d\t%d\t%d\t%d\t%d\t%s\n",
				j.ID, j.Status, j.Mode, j.Filename,
				j.TotalRows, j.Imported, j.Updated, j.Skipped, j.Filtered, j.Errors,
				j.StartedAt.Local().Format(time.DateTime),
			)
		}
	}
}
