package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/DukeRupert/safetyline/internal/domain"
	"github.com/DukeRupert/safetyline/internal/export"
	"github.com/DukeRupert/safetyline/internal/storage"
	"github.com/DukeRupert/safetyline/internal/store"
)

var exportCmd = &cobra.Command{
	Use:   "export <users|flha|injury_reports>",
	Short: "Write an export file to local disk",
	Long: `Write the users, FLHA or injury report export to a file.

The records included are the ones the viewer may see: pass --as to act as a
stored user, --company to scope to one company, or --all for every company.
Images are resolved from --storage-path for local blob URLs and over HTTP
otherwise.

Examples:
  safetyctl export users --company Acme
  safetyctl export injury_reports --as pat@acme.test --format pdf -o ./out
  safetyctl export flha --all --tz America/Edmonton`,
	Args: cobra.ExactArgs(1),
	RunE: runExport,
}

var (
	exportFormat      string
	exportOutDir      string
	exportAs          string
	exportCompany     string
	exportAll         bool
	exportTimezone    string
	exportStoragePath string
	exportStorageURL  string
)

func init() {
	rootCmd.AddCommand(exportCmd)

	exportCmd.Flags().StringVarP(&exportFormat, "format", "f", "xlsx", "Output format: xlsx or pdf")
	exportCmd.Flags().StringVarP(&exportOutDir, "out", "o", ".", "Directory to write the file to")
	exportCmd.Flags().StringVar(&exportAs, "as", "", "Export as the stored user with this email")
	exportCmd.Flags().StringVar(&exportCompany, "company", "", "Export the records of one company")
	exportCmd.Flags().BoolVar(&exportAll, "all", false, "Export the records of every company")
	exportCmd.Flags().StringVar(&exportTimezone, "tz", "UTC", "Time zone dates are printed in")
	exportCmd.Flags().StringVar(&exportStoragePath, "storage-path", "", "Local blob directory (env LOCAL_STORAGE_PATH)")
	exportCmd.Flags().StringVar(&exportStorageURL, "storage-url", "", "Public URL of local blobs (env LOCAL_STORAGE_URL)")
	exportCmd.MarkFlagsMutuallyExclusive("as", "company", "all")
	exportCmd.MarkFlagsOneRequired("as", "company", "all")
}

func runExport(cmd *cobra.Command, args []string) error {
	ctx, cancel := context.WithTimeout(cmd.Context(), 10*time.Minute)
	defer cancel()
	logger := newLogger()

	kind, err := export.ParseKind(args[0])
	if err != nil {
		return fmt.Errorf("%s", domain.ErrorMessage(err))
	}
	format, err := export.ParseFormat(exportFormat)
	if err != nil {
		return fmt.Errorf("%s", domain.ErrorMessage(err))
	}
	loc, err := time.LoadLocation(exportTimezone)
	if err != nil {
		return fmt.Errorf("time zone %q: %w", exportTimezone, err)
	}

	docs, release, err := openDocumentStore(ctx)
	if err != nil {
		return err
	}
	defer release()

	viewer, err := exportViewer(ctx, docs)
	if err != nil {
		return err
	}

	fetcher, err := exportFetcher(logger)
	if err != nil {
		return err
	}

	svc := export.NewService(docs, fetcher, logger, export.WithLocation(loc))
	file, err := svc.Export(ctx, viewer, kind, format)
	if err != nil {
		return fmt.Errorf("export %s: %w", kind, err)
	}

	if err := os.MkdirAll(exportOutDir, 0o755); err != nil {
		return fmt.Errorf("create output directory: %w", err)
	}
	path := filepath.Join(exportOutDir, file.Name)
	if err := os.WriteFile(path, file.Data, 0o644); err != nil {
		return fmt.Errorf("write %s: %w", path, err)
	}

	fmt.Fprintf(cmd.OutOrStdout(), "wrote %s (%d bytes)\n", path, len(file.Data))
	return nil
}

// exportViewer builds the user whose visibility the export uses.
func exportViewer(ctx context.Context, docs store.DocumentStore) (*domain.User, error) {
	switch {
	case exportAll:
		return &domain.User{Email: "safetyctl", Role: domain.RoleAdmin}, nil
	case exportCompany != "":
		return &domain.User{Email: "safetyctl", CompanyName: strings.TrimSpace(exportCompany)}, nil
	}

	user, err := store.NewUsers(docs).ByEmail(ctx, exportAs)
	if err != nil {
		if store.IsNotFound(err) {
			return nil, fmt.Errorf("no user with email %q", exportAs)
		}
		return nil, fmt.Errorf("look up %q: %w", exportAs, err)
	}
	return user, nil
}

// exportFetcher resolves images from local blobs when a storage path is
// known, and over HTTP otherwise.
func exportFetcher(logger *slog.Logger) (*export.Fetcher, error) {
	path := firstNonEmpty(exportStoragePath, os.Getenv("LOCAL_STORAGE_PATH"))
	if path == "" {
		return export.NewFetcher(nil, ""), nil
	}
	base := firstNonEmpty(exportStorageURL, os.Getenv("LOCAL_STORAGE_URL"))
	logger.Debug("resolving images from local storage", "path", path, "base_url", base)

	local, err := storage.NewLocalStorage(storage.LocalConfig{BasePath: path, BaseURL: base}, logger)
	if err != nil {
		return nil, fmt.Errorf("local storage: %w", err)
	}
	return export.NewFetcher(local, strings.TrimRight(base, "/")), nil
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}
