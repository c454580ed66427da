package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"strconv"
	"syscall"

	"github.com/spf13/cobra"

	"library-ledger/config"
	"library-ledger/job"
	"library-ledger/library"
	"library-ledger/logger"
)

// openManager loads the configuration, sets up logging and opens the store.
func openManager(cmd *cobra.Command) (*library.Manager, *config.Config, error) {
	path, _ := cmd.Flags().GetString("config")
	cfg, err := config.Load(path)
	if err != nil {
		return nil, nil, err
	}
	level, err := logger.ParseLevel(string(cfg.LogLevel))
	if err != nil {
		return nil, nil, fmt.Errorf("log level: %w", err)
	}
	if err := logger.InitLogger(level, cfg.LogFile); err != nil {
		return nil, nil, err
	}

	mgr, err := library.OpenManager(cfg.DBPath,
		library.WithDueDays(cfg.DueDays),
		library.WithBooksPerPage(cfg.BooksPerPage),
		library.WithOwnedReturns(cfg.StrictOwnership),
	)
	if err != nil {
		return nil, nil, fmt.Errorf("could not open the library database %s: %w", cfg.DBPath, err)
	}
	return mgr, cfg, nil
}

func runShell(cmd *cobra.Command, _ []string) error {
	mgr, _, err := openManager(cmd)
	if err != nil {
		return err
	}
	defer logger.CloseLogger()
	defer mgr.Close()

	if seeded, err := mgr.Seed(cmd.Context()); err != nil {
		return err
	} else if seeded {
		fmt.Println("Created a new library with demo accounts (superadmin/superadmin, librarian/librarian, student/123).")
	}
	return newShell(cmd.Context(), mgr, os.Stdin, os.Stdout).run()
}

func runSeed(cmd *cobra.Command, _ []string) error {
	mgr, _, err := openManager(cmd)
	if err != nil {
		return err
	}
	defer logger.CloseLogger()
	defer mgr.Close()

	seeded, err := mgr.Seed(cmd.Context())
	if err != nil {
		return err
	}
	if seeded {
		fmt.Println("Seeded demo users and books.")
	} else {
		fmt.Println("Database already has data, nothing seeded.")
	}
	return nil
}

func runReport(cmd *cobra.Command, args []string) error {
	mgr, _, err := openManager(cmd)
	if err != nil {
		return err
	}
	defer logger.CloseLogger()
	defer mgr.Close()

	ctx := cmd.Context()
	username, _ := cmd.Flags().GetString("username")
	password, _ := cmd.Flags().GetString("password")
	asJSON, _ := cmd.Flags().GetBool("json")
	if password == "" {
		if password, err = readPassword(os.Stdout, os.Stdin, "Password: "); err != nil {
			return err
		}
	}
	sess, err := mgr.Login(ctx, username, password)
	if err != nil {
		return err
	}

	idArg := func() (int64, error) {
		if len(args) < 2 {
			return 0, fmt.Errorf("report %s needs an id", args[0])
		}
		return strconv.ParseInt(args[1], 10, 64)
	}

	var (
		result any
		render func()
	)
	out := cmd.OutOrStdout()
	switch args[0] {
	case "dashboard":
		c, err := mgr.Dashboard(ctx, sess)
		if err != nil {
			return err
		}
		result, render = c, func() { printCounters(out, c) }
	case "overdue":
		rows, err := mgr.OverdueReport(ctx, sess)
		if err != nil {
			return err
		}
		result, render = rows, func() { printOverdue(out, rows) }
	case "transactions":
		rows, err := mgr.TransactionsReport(ctx, sess)
		if err != nil {
			return err
		}
		result, render = rows, func() { printTransactions(out, rows) }
	case "students":
		rows, err := mgr.Students(ctx, sess)
		if err != nil {
			return err
		}
		result, render = rows, func() { printStudents(out, rows) }
	case "history":
		id, err := idArg()
		if err != nil {
			return err
		}
		h, err := mgr.BookHistory(ctx, sess, id)
		if err != nil {
			return err
		}
		result, render = h, func() { printHistory(out, h) }
	case "profile":
		id, err := idArg()
		if err != nil {
			return err
		}
		p, err := mgr.Profile(ctx, sess, id)
		if err != nil {
			return err
		}
		result, render = p, func() { printProfile(out, p) }
	default:
		return fmt.Errorf("unknown report %q", args[0])
	}

	if asJSON {
		return writeJSON(out, result)
	}
	render()
	return nil
}

func runWatch(cmd *cobra.Command, _ []string) error {
	mgr, cfg, err := openManager(cmd)
	if err != nil {
		return err
	}
	defer logger.CloseLogger()
	defer mgr.Close()

	j := job.NewOverdueJob(mgr.Store(), cfg.DueDays, nil)
	j.Run()
	c, err := job.Start(cfg.OverdueSchedule, j)
	if err != nil {
		return err
	}
	logger.Infof("watching overdue loans on schedule %s", cfg.OverdueSchedule)

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	<-ctx.Done()
	<-c.Stop().Done()
	logger.Info("overdue watch stopped")
	return nil
}

func runCheck(cmd *cobra.Command, _ []string) error {
	mgr, _, err := openManager(cmd)
	if err != nil {
		return err
	}
	defer logger.CloseLogger()
	defer mgr.Close()

	bad, err := mgr.Check(cmd.Context())
	if err != nil {
		return err
	}
	if len(bad) == 0 {
		fmt.Println("All books agree with their loans.")
		return nil
	}
	return fmt.Errorf("books out of sync with their loans: %v", bad)
}

func main() {
	var rootCmd = &cobra.Command{
		Use:           "library",
		Short:         "Library loan ledger",
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE:          runShell,
	}
	rootCmd.PersistentFlags().String("config", "", "path to a TOML config file (default $LIBRARY_CONFIG)")

	var seedCmd = &cobra.Command{
		Use:   "seed",
		Short: "Fill an empty database with demo users and books",
		RunE:  runSeed,
	}

	var reportCmd = &cobra.Command{
		Use:       "report dashboard|overdue|transactions|students|history <book-id>|profile <user-id>",
		Short:     "Print a report",
		Args:      cobra.RangeArgs(1, 2),
		ValidArgs: []string{"dashboard", "overdue", "transactions", "students", "history", "profile"},
		RunE:      runReport,
	}
	reportCmd.Flags().String("username", "librarian", "account used to read the report")
	reportCmd.Flags().String("password", "", "password (prompted when empty)")
	reportCmd.Flags().Bool("json", false, "print JSON instead of a table")

	var watchCmd = &cobra.Command{
		Use:   "watch",
		Short: "Log overdue loans on the configured schedule",
		RunE:  runWatch,
	}

	var checkCmd = &cobra.Command{
		Use:   "check",
		Short: "Report books whose availability disagrees with their loans",
		RunE:  runCheck,
	}

	rootCmd.AddCommand(seedCmd, reportCmd, watchCmd, checkCmd)

	if err := rootCmd.ExecuteContext(context.Background()); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", library.UserMessage(err))
		os.Exit(1)
	}
}
