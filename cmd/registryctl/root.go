package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"

	"github.com/djedjiga-matrix/Crm-gestion-bases/internal/config"
	"github.com/djedjiga-matrix/Crm-gestion-bases/internal/core"
	"github.com/djedjiga-matrix/Crm-gestion-bases/internal/logging"
	"github.com/djedjiga-matrix/Crm-gestion-bases/internal/store"
)

// Exit codes.
const (
	exitOK      = 0
	exitFailure = 1
	exitUsage   = 2
)

// exitError carries an explicit exit code.
type exitError struct {
	code int
	err  error
}

func (e *exitError) Error() string { return e.err.Error() }
func (e *exitError) Unwrap() error { return e.err }

func usageErrorf(format string, args ...any) error {
	return &exitError{code: exitUsage, err: fmt.Errorf(format, args...)}
}

// app holds the state shared by the subcommands of one invocation.
type app struct {
	out    io.Writer
	errOut io.Writer

	envFile string
	output  string
	driver  string
	dbURL   string

	cfg     *config.Config
	db      store.Backend
	imports *core.Service

	// started is set once a command body runs; earlier errors are usage errors.
	started bool
}

func newRootCmd(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:           "registryctl",
		Short:         "Import and query the national business registry",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			if cmd.Name() == "help" || cmd.Name() == "completion" {
				return nil
			}
			return a.setup()
		},
	}
	cmd.SetOut(a.out)
	cmd.SetErr(a.errOut)
	cmd.SetFlagErrorFunc(func(_ *cobra.Command, err error) error {
		return &exitError{code: exitUsage, err: err}
	})

	pf := cmd.PersistentFlags()
	pf.StringVarP(&a.output, "output", "o", formatTable, "Output format: table, json or yaml")
	pf.StringVar(&a.envFile, "env-file", ".env", "Environment file loaded when present")
	pf.StringVar(&a.driver, "db-driver", "", "Database driver, overrides DATABASE_DRIVER")
	pf.StringVar(&a.dbURL, "db-url", "", "Database URL or SQLite path, overrides DATABASE_URL")

	cmd.AddCommand(
		newImportCmd(a),
		newPreviewCmd(a),
		newStatusCmd(a),
		newHistoryCmd(a),
		newReapCmd(a),
		newStatsCmd(a),
		newMigrateCmd(a),
		newProspectCmd(a),
	)
	return cmd
}

// setup loads the configuration and sends logs to stderr.
func (a *app) setup() error {
	if !validFormat(a.output) {
		return usageErrorf("invalid --output %q (want table, json or yaml)", a.output)
	}

	// Variables already set, including the flag overrides, win over the file.
	if a.driver != "" {
		os.Setenv("DATABASE_DRIVER", a.driver)
	}
	if a.dbURL != "" {
		os.Setenv("DATABASE_URL", a.dbURL)
	}
	if _, err := os.Stat(a.envFile); err == nil {
		if err := godotenv.Load(a.envFile); err != nil {
			return &exitError{code: exitFailure, err: fmt.Errorf("load %s: %w", a.envFile, err)}
		}
	}

	cfg, err := config.Load()
	if err != nil {
		return &exitError{code: exitFailure, err: err}
	}
	logging.SetupWriter(a.errOut, cfg.Logging.Level, cfg.Logging.Format)
	a.cfg = cfg
	return nil
}

// run wraps a command body so its errors are not mistaken for usage errors.
func (a *app) run(fn func(cmd *cobra.Command, args []string) error) func(*cobra.Command, []string) error {
	return func(cmd *cobra.Command, args []string) error {
		a.started = true
		return fn(cmd, args)
	}
}

func (a *app) printer() printer {
	return printer{w: a.out, format: a.output}
}

// backend opens the configured database once per invocation.
func (a *app) backend(ctx context.Context) (store.Backend, error) {
	if a.db != nil {
		return a.db, nil
	}
	db, err := store.Open(ctx, a.cfg.Database)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}
	a.db = db
	return db, nil
}

func (a *app) service(ctx context.Context) (*core.Service, error) {
	if a.imports != nil {
		return a.imports, nil
	}
	db, err := a.backend(ctx)
	if err != nil {
		return nil, err
	}
	a.imports = core.NewService(db, a.cfg.Import)
	return a.imports, nil
}

func (a *app) close() {
	if a.db != nil {
		a.db.Close()
	}
}

// exitCode maps a command error to the process exit code.
func (a *app) exitCode(err error) int {
	if err == nil {
		return exitOK
	}
	var ee *exitError
	if errors.As(err, &ee) {
		return ee.code
	}
	if !a.started || isInvalidInput(err) {
		return exitUsage
	}
	return exitFailure
}

func isInvalidInput(err error) bool {
	for _, target := range []error{
		core.ErrInvalidMode,
		core.ErrDepartmentsRequired,
		core.ErrInvalidDepartment,
		core.ErrInvalidCriteria,
	} {
		if errors.Is(err, target) {
			return true
		}
	}
	return false
}

// execute runs the CLI and returns the exit code.
func execute(ctx context.Context, args []string, out, errOut io.Writer) int {
	a := &app{out: out, errOut: errOut}
	defer a.close()

	root := newRootCmd(a)
	root.SetArgs(args)
	err := root.ExecuteContext(ctx)
	if err != nil {
		msg := err.Error()
		if um := core.MapError(err); a.started && um.Code != "ERR000" {
			msg = fmt.Sprintf("%s (%s): %s", um.Message, um.Code, err)
		}
		fmt.Fprintln(errOut, "Error:", msg)
	}
	return a.exitCode(err)
}
