package main

import (
	"fmt"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/djedjiga-matrix/Crm-gestion-bases/internal/database"
	"github.com/djedjiga-matrix/Crm-gestion-bases/internal/prospect"
)

func newStatsCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "stats",
		Short: "Summarize the registry content",
		Args:  exactArgs(0),
		RunE: a.run(func(cmd *cobra.Command, _ []string) error {
			svc, err := a.service(cmd.Context())
			if err != nil {
				return err
			}
			st, err := svc.RegistryStats(cmd.Context())
			if err != nil {
				return err
			}
			return a.printer().print(st, func(tw *tabwriter.Writer) {
				fmt.Fprintf(tw, "TOTAL\t%d\n", st.Total)
				fmt.Fprintf(tw, "ACTIVE\t%d\n", st.Active)
				fmt.Fprintf(tw, "CLOSED\t%d\n", st.Closed)
				fmt.Fprintf(tw, "HEAD OFFICES\t%d\n", st.Headquarters)
				fmt.Fprintf(tw, "POSTAL CODES\t%d\n", st.PostalCodes)
				fmt.Fprintf(tw, "DEPARTMENTS\t%d\n", st.Departments)
				if j := st.LastImport; j != nil {
					fmt.Fprintf(tw, "LAST IMPORT\t%s %s (%s)\n", j.ID, j.Status, j.StartedAt.Local().Format("2006-01-02 15:04"))
				}
			})
		}),
	}
}

type migrateResult struct {
	Applied    int                        `json:"applied" yaml:"applied"`
	Migrations []database.MigrationStatus `json:"migrations" yaml:"migrations"`
}

func newMigrateCmd(a *app) *cobra.Command {
	var statusOnly bool

	cmd := &cobra.Command{
		Use:   "migrate",
		Short: "Apply pending schema migrations",
		Args:  exactArgs(0),
		RunE: a.run(func(cmd *cobra.Command, _ []string) error {
			ctx := cmd.Context()
			// Migrations run explicitly here, never as a side effect of opening.
			a.cfg.Database.AutoMigrate = false
			db, err := a.backend(ctx)
			if err != nil {
				return err
			}

			var res migrateResult
			if !statusOnly {
				if res.Applied, err = db.Migrate(ctx); err != nil {
					return err
				}
			}
			if res.Migrations, err = db.MigrationStatus(ctx); err != nil {
				return err
			}

			return a.printer().print(res, func(tw *tabwriter.Writer) {
				fmt.Fprintln(tw, "VERSION\tSOURCE\tAPPLIED")
				for _, m := range res.Migrations {
					fmt.Fprintf(tw, "%d\t%s\t%v\n", m.Version, m.Source, m.Applied)
				}
				if !statusOnly {
					fmt.Fprintf(tw, "\napplied %d migration(s)\n", res.Applied)
				}
			})
		}),
	}
	cmd.Flags().BoolVar(&statusOnly, "status", false, "Only list migrations and their state")
	return cmd
}

func newProspectCmd(a *app) *cobra.Command {
	var c prospect.Criteria

	cmd := &cobra.Command{
		Use:   "prospect",
		Short: "Select registry establishments as prospects",
		Long: `Select active registry establishments by postal code, activity code prefix
and workforce bracket, skipping those already in contacts. With --inject the
selection is copied into contacts.`,
		Args: exactArgs(0),
		RunE: a.run(func(cmd *cobra.Command, _ []string) error {
			db, err := a.backend(cmd.Context())
			if err != nil {
				return err
			}
			res, err := prospect.NewService(db).Generate(cmd.Context(), c)
			if err != nil {
				return err
			}
			return a.printer().print(res, func(tw *tabwriter.Writer) {
				fmt.Fprintln(tw, "SIRET\tNAME\tPOSTAL CODE\tCITY\tNAF\tWORKFORCE")
				for _, p := range res.Candidates {
					fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%s\t%s\n",
						p.SIRET, p.Name, p.PostalCode, p.City, p.NAFCode, p.WorkforceCode)
				}
				fmt.Fprintf(tw, "\nfound %d, injected %d\n", res.Found, res.Injected)
			})
		}),
	}

	f := cmd.Flags()
	f.StringSliceVarP(&c.PostalCodes, "postal-code", "p", nil, "Postal codes (5 characters)")
	f.StringSliceVar(&c.NAFPrefixes, "naf", nil, "Activity code prefixes, e.g. 56.10")
	f.StringSliceVar(&c.WorkforceBrackets, "workforce", nil, "Workforce bracket codes, e.g. 03,11")
	f.BoolVar(&c.IncludeClosed, "include-closed", false, "Keep closed establishments")
	f.BoolVar(&c.HeadOfficeOnly, "head-office", false, "Only head offices")
	f.IntVarP(&c.Limit, "limit", "n", prospect.DefaultLimit, "Maximum number of prospects")
	f.BoolVar(&c.Inject, "inject", false, "Copy the selection into contacts")
	return cmd
}
