package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/goccy/go-json"
	"github.com/spf13/cobra"

	"library-ledger/config"
	"library-ledger/library"
)

type catalogEntry struct {
	Title    string `json:"title"`
	Author   string `json:"author"`
	Category string `json:"category"`
}

func readCatalog(path string) ([]catalogEntry, error) {
	data, err := os.ReadFile(filepath.Clean(path))
	if err != nil {
		return nil, err
	}
	var entries []catalogEntry
	if err := json.Unmarshal(data, &entries); err != nil {
		return nil, fmt.Errorf("parse %s: %w", path, err)
	}
	return entries, nil
}

// importCatalog adds every entry through the manager and reports how many
// were added and how many were rejected.
func importCatalog(ctx context.Context, mgr *library.Manager, sess library.Session, entries []catalogEntry, out io.Writer) (added, failed int) {
	for _, e := range entries {
		fmt.Fprintf(out, "Importing: %s by %s... ", e.Title, e.Author)
		b, err := mgr.AddBook(ctx, sess, e.Title, e.Author, e.Category)
		if err != nil {
			fmt.Fprintf(out, "ERROR: %s\n", library.UserMessage(err))
			failed++
			continue
		}
		fmt.Fprintf(out, "SUCCESS (ID: %d)\n", b.ID)
		added++
	}
	return added, failed
}

func run(cmd *cobra.Command, args []string) error {
	configPath, _ := cmd.Flags().GetString("config")
	username, _ := cmd.Flags().GetString("username")
	password, _ := cmd.Flags().GetString("password")

	cfg, err := config.Load(configPath)
	if err != nil {
		return err
	}
	entries, err := readCatalog(args[0])
	if err != nil {
		return err
	}

	mgr, err := library.OpenManager(cfg.DBPath)
	if err != nil {
		return fmt.Errorf("open database: %w", err)
	}
	defer mgr.Close()

	ctx := cmd.Context()
	if _, err := mgr.Seed(ctx); err != nil {
		return err
	}
	sess, err := mgr.Login(ctx, username, password)
	if err != nil {
		return err
	}

	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "Importing %d books into %s...\n", len(entries), cfg.DBPath)
	added, failed := importCatalog(ctx, mgr, sess, entries, out)
	fmt.Fprintf(out, "\nImport complete: %d added, %d failed\n", added, failed)
	return nil
}

func main() {
	var rootCmd = &cobra.Command{
		Use:          "import_books <catalog.json>",
		Short:        "Import a JSON list of {title, author, category} into the catalog",
		Args:         cobra.ExactArgs(1),
		SilenceUsage: true,
		RunE:         run,
	}
	rootCmd.Flags().String("config", "", "path to a TOML config file")
	rootCmd.Flags().String("username", "superadmin", "account used for the import")
	rootCmd.Flags().String("password", "superadmin", "password of that account")

	if err := rootCmd.ExecuteContext(context.Background()); err != nil {
		os.Exit(1)
	}
}
