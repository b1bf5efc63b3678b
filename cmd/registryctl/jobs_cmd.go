package main

import (
	"fmt"
	"text/tabwriter"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"github.com/djedjiga-matrix/Crm-gestion-bases/internal/core"
)

func exactArgs(n int) cobra.PositionalArgs {
	return func(cmd *cobra.Command, args []string) error {
		if len(args) != n {
			return usageErrorf("%s takes %d argument(s), got %d", cmd.Name(), n, len(args))
		}
		return nil
	}
}

func newStatusCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "status JOB_ID",
		Short: "Show one import job",
		Args:  exactArgs(1),
		RunE: a.run(func(cmd *cobra.Command, args []string) error {
			id, err := uuid.Parse(args[0])
			if err != nil {
				return usageErrorf("invalid job id %q: %v", args[0], err)
			}
			svc, err := a.service(cmd.Context())
			if err != nil {
				return err
			}
			job, err := svc.GetImportStatus(cmd.Context(), id)
			if err != nil {
				return err
			}
			return a.printer().print(job, jobTable(job))
		}),
	}
}

func newHistoryCmd(a *app) *cobra.Command {
	var limit int

	cmd := &cobra.Command{
		Use:   "history",
		Short: "List recent import jobs, newest first",
		Args:  exactArgs(0),
		RunE: a.run(func(cmd *cobra.Command, _ []string) error {
			svc, err := a.service(cmd.Context())
			if err != nil {
				return err
			}
			jobs, err := svc.ListRecentImports(cmd.Context(), limit)
			if err != nil {
				return err
			}
			if jobs == nil {
				jobs = []core.ImportJob{}
			}
			return a.printer().print(jobs, historyTable(jobs))
		}),
	}
	cmd.Flags().IntVarP(&limit, "limit", "n", core.DefaultHistoryLimit, "Maximum number of jobs")
	return cmd
}

type reapResult struct {
	Abandoned int64 `json:"abandoned" yaml:"abandoned"`
}

func newReapCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "reap",
		Short: "Mark running jobs with an expired heartbeat as abandoned",
		Args:  exactArgs(0),
		RunE: a.run(func(cmd *cobra.Command, _ []string) error {
			svc, err := a.service(cmd.Context())
			if err != nil {
				return err
			}
			n, err := svc.ReapStaleImports(cmd.Context())
			if err != nil {
				return err
			}
			return a.printer().print(reapResult{Abandoned: n}, func(tw *tabwriter.Writer) {
				fmt.Fprintf(tw, "ABANDONED\t%d\n", n)
			})
		}),
	}
}
