package main

import (
	"context"
	"fmt"
	"text/tabwriter"

	"github.com/dustin/go-humanize"
	"github.com/italolelis/asset_bootstrap/internal/acquisition"
	"github.com/italolelis/asset_bootstrap/internal/locator"
	"github.com/italolelis/asset_bootstrap/internal/manifest"
	"github.com/italolelis/asset_bootstrap/internal/migrate"
	"github.com/italolelis/asset_bootstrap/internal/storage/sqlite"
	"github.com/italolelis/asset_bootstrap/internal/telemetry"
	"github.com/spf13/cobra"
)

var (
	overwrite    bool
	fetchesLimit int

	checkCmd = &cobra.Command{
		Use:   "check",
		Short: "Print the missing assets; exits 1 when the directory is not ready",
		Args:  cobra.NoArgs,
		RunE:  runCheck,
	}

	migrateCmd = &cobra.Command{
		Use:   "migrate",
		Short: "Move files from LEGACY_DIR into the authoritative directory",
		Args:  cobra.NoArgs,
		RunE:  runMigrate,
	}

	importCmd = &cobra.Command{
		Use:   "import [file...]",
		Short: "Copy user provided files into the authoritative directory",
		Args:  cobra.MinimumNArgs(1),
		RunE:  runImport,
	}

	fetchesCmd = &cobra.Command{
		Use:   "fetches",
		Short: "List the fetch journal",
		Args:  cobra.NoArgs,
		RunE:  runFetches,
	}
)

func init() {
	importCmd.Flags().BoolVar(&overwrite, "overwrite", false, "replace files that already exist")
	fetchesCmd.Flags().IntVar(&fetchesLimit, "limit", 20, "number of records to show, newest first")
}

func resolveDirectory(ctx context.Context) (*locator.Locator, locator.Directory, error) {
	loc := locator.New(cfg.Candidates(), cfg.DefaultDir, cfg.MarkerFile)

	dir, err := loc.Directory(ctx)
	if err != nil {
		return nil, locator.Directory{}, fmt.Errorf("failed to resolve storage directory: %w", err)
	}

	return loc, dir, nil
}

func runCheck(cmd *cobra.Command, _ []string) error {
	ctx := cmd.Context()

	loc, dir, err := resolveDirectory(ctx)
	if err != nil {
		return err
	}

	m, err := buildManifest(cfg)
	if err != nil {
		return err
	}

	// Status never starts fetches, so no fetcher is needed.
	status := acquisition.New(m, nil, directoryFunc(loc), manifest.ParseLocale(cfg.Locale)).Status(ctx)

	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "directory: %s (%s)\n", dir.Path, dir.Reason)
	fmt.Fprintf(out, "locale:    %s\n", status.Locale)

	if status.Ready {
		fmt.Fprintln(out, "ready")

		return nil
	}

	for _, id := range status.Missing {
		d, err := m.Descriptor(id)
		if err != nil {
			continue
		}

		how := "fetch " + d.URL
		if !m.Acquirable(id) && len(d.Files) > 0 {
			how = "import " + d.Files[0]
		}

		fmt.Fprintf(out, "missing:   %s (%s): %s\n", id, d.Label, how)
	}

	return errNotReady
}

func runMigrate(cmd *cobra.Command, _ []string) error {
	ctx := cmd.Context()

	if cfg.LegacyDir == "" {
		return fmt.Errorf("LEGACY_DIR is not set")
	}

	_, dir, err := resolveDirectory(ctx)
	if err != nil {
		return err
	}

	for _, rec := range migrateLegacy(ctx, &telemetry.Telemetry{}, dir.Path, cfg) {
		fmt.Fprintln(cmd.OutOrStdout(), rec.String())
	}

	return nil
}

func runImport(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()

	_, dir, err := resolveDirectory(ctx)
	if err != nil {
		return err
	}

	m := migrate.New(dir.Path)
	failed := 0

	for _, src := range args {
		rec := m.Import(ctx, src, overwrite)
		if rec.Outcome == migrate.Failed || rec.Outcome == migrate.SkippedMissing {
			failed++
		}

		fmt.Fprintln(cmd.OutOrStdout(), rec.String())
	}

	if failed > 0 {
		return fmt.Errorf("%d of %d files could not be imported", failed, len(args))
	}

	return nil
}

func runFetches(cmd *cobra.Command, _ []string) error {
	ctx := cmd.Context()

	database, err := sqlite.InitDB(cfg.DBPath)
	if err != nil {
		return err
	}
	defer database.Close()

	records, err := sqlite.NewFetchRepository(database).ListFetches(ctx, fetchesLimit)
	if err != nil {
		return err
	}

	w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, "HANDLE\tASSET\tSTATUS\tSIZE\tUPDATED\tERROR")

	for _, rec := range records {
		fmt.Fprintf(w, "%d\t%s\t%s\t%s\t%s\t%s\n",
			rec.Handle, rec.AssetID, rec.Status, humanize.Bytes(uint64(rec.Bytes)), humanize.Time(rec.UpdatedAt), rec.Error)
	}

	return w.Flush()
}
