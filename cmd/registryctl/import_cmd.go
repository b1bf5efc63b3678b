package main

import (
	"context"
	"fmt"
	"io"
	"text/tabwriter"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"github.com/djedjiga-matrix/Crm-gestion-bases/internal/core"
)

func newImportCmd(a *app) *cobra.Command {
	var (
		file        string
		mode        string
		departments []string
		progress    bool
	)

	cmd := &cobra.Command{
		Use:   "import",
		Short: "Load a registry establishments extract",
		Long: `Load a registry establishments extract (semicolon separated, header first).

The import runs in this process until it finishes. Interrupting the command
cancels the import; the job is recorded as cancelled with the counts reached.`,
		Args: cobra.NoArgs,
		RunE: a.run(func(cmd *cobra.Command, _ []string) error {
			ctx := cmd.Context()
			svc, err := a.service(ctx)
			if err != nil {
				return err
			}

			id, err := svc.StartImport(ctx, core.ImportRequest{
				FilePath:    file,
				Mode:        core.ImportMode(mode),
				Departments: departments,
			})
			if err != nil {
				return err
			}

			reported := make(chan struct{})
			if progress {
				go func() {
					defer close(reported)
					reportProgress(svc, id, a.errOut)
				}()
			} else {
				close(reported)
			}

			job, err := waitOrCancel(ctx, svc, id)
			<-reported
			if err != nil {
				return err
			}
			if err := a.printer().print(job, jobTable(job)); err != nil {
				return err
			}
			if job.Status != core.StatusCompleted {
				return &exitError{code: exitFailure, err: fmt.Errorf("import %s %s", job.ID, job.Status)}
			}
			return nil
		}),
	}

	cmd.Flags().StringVarP(&file, "file", "f", "", "Path of the extract (required)")
	cmd.Flags().StringVarP(&mode, "mode", "m", string(core.ModeFull), "Import mode: full, update or departments")
	cmd.Flags().StringSliceVarP(&departments, "departments", "d", nil, "Department codes kept by the departments mode, e.g. 59,62")
	cmd.Flags().BoolVar(&progress, "progress", false, "Print live progress on stderr")
	_ = cmd.MarkFlagRequired("file")
	return cmd
}

// waitOrCancel waits for the import. When ctx ends first, typically on
// SIGINT, it cancels the import and waits for its terminal update.
func waitOrCancel(ctx context.Context, svc *core.Service, id uuid.UUID) (*core.ImportJob, error) {
	job, err := svc.WaitForImport(ctx, id)
	if err == nil || ctx.Err() == nil {
		return job, err
	}

	stopCtx, cancel := context.WithTimeout(context.Background(), core.FinalizeTimeout)
	defer cancel()
	if err := svc.Shutdown(stopCtx); err != nil {
		return nil, err
	}
	return svc.GetImportStatus(stopCtx, id)
}

func reportProgress(svc *core.Service, id uuid.UUID, w io.Writer) {
	ch, unsubscribe, err := svc.SubscribeProgress(id)
	if err != nil {
		return
	}
	defer unsubscribe()

	for p := range ch {
		fmt.Fprintf(w, "\r%-10s %3d%%  lines %d  imported %d  updated %d  skipped %d  filtered %d  errors %d",
			p.Phase, p.Percent(), p.LinesRead,
			p.Imported, p.Updated, p.Skipped, p.Filtered, p.Errors)
	}
	fmt.Fprintln(w)
}

func newPreviewCmd(a *app) *cobra.Command {
	var (
		file        string
		mode        string
		departments []string
		rows        int
	)

	cmd := &cobra.Command{
		Use:   "preview",
		Short: "Dry-run the first rows of an extract without writing",
		Args:  cobra.NoArgs,
		RunE: a.run(func(cmd *cobra.Command, _ []string) error {
			svc, err := a.service(cmd.Context())
			if err != nil {
				return err
			}
			res, err := svc.PreviewSource(cmd.Context(), core.ImportRequest{
				FilePath:    file,
				Mode:        core.ImportMode(mode),
				Departments: departments,
			}, rows)
			if err != nil {
				return err
			}
			return a.printer().print(res, func(tw *tabwriter.Writer) {
				s := res.Summary
				fmt.Fprintf(tw, "FILE\t%s\n", res.File)
				fmt.Fprintf(tw, "BOUND COLUMNS\t%d\n", res.BoundColumns)
				if len(res.UnmappedHeaders) > 0 {
					fmt.Fprintf(tw, "UNMAPPED\t%v\n", res.UnmappedHeaders)
				}
				fmt.Fprintf(tw, "ROWS\t%d\n", s.RowsScanned)
				fmt.Fprintf(tw, "VALID\t%d\n", s.ValidRows)
				fmt.Fprintf(tw, "ERRORS\t%d\n", s.ErrorRows)
				fmt.Fprintf(tw, "FILTERED\t%d\n", s.FilteredRows)
				fmt.Fprintf(tw, "DUPLICATES\t%d\n", s.DuplicateInFile)
				for _, e := range res.ErrorSamples {
					fmt.Fprintf(tw, "LINE %d\t%s\n", e.Line, e.Error)
				}
			})
		}),
	}

	cmd.Flags().StringVarP(&file, "file", "f", "", "Path of the extract (required)")
	cmd.Flags().StringVarP(&mode, "mode", "m", string(core.ModeFull), "Import mode the preview applies")
	cmd.Flags().StringSliceVarP(&departments, "departments", "d", nil, "Department codes for the departments mode")
	cmd.Flags().IntVar(&rows, "rows", core.DefaultPreviewRows, "Number of data rows to scan")
	_ = cmd.MarkFlagRequired("file")
	return cmd
}
