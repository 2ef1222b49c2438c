package cmd

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"strings"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/JakeFAU/profile-refinery/internal/profile"
	"github.com/JakeFAU/profile-refinery/internal/store"
)

func newRecordsCmd() *cobra.Command {
	var (
		status string
		asJSON bool
	)
	cmd := &cobra.Command{
		Use:   "records",
		Short: "Print stored records",
		RunE: func(cmd *cobra.Command, _ []string) error {
			appInstance, err := resolveApp(cmd.Context())
			if err != nil {
				return err
			}
			records, err := appInstance.Store().ReadAll(cmd.Context())
			if err != nil {
				return fmt.Errorf("read records: %w", err)
			}
			if status != "" {
				records = filterStatus(records, profile.Status(status))
			}
			if asJSON {
				enc := json.NewEncoder(cmd.OutOrStdout())
				enc.SetIndent("", "  ")
				return enc.Encode(records)
			}
			return printRecords(cmd.OutOrStdout(), records)
		},
	}
	cmd.Flags().StringVar(&status, "status", "", "only show records with this status (e.g. Manual_Review)")
	cmd.Flags().BoolVar(&asJSON, "json", false, "print records as JSON")
	return cmd
}

func newWipeCmd() *cobra.Command {
	var force bool
	cmd := &cobra.Command{
		Use:   "wipe",
		Short: "Delete every stored record",
		RunE: func(cmd *cobra.Command, _ []string) error {
			if !force {
				return errors.New("refusing to wipe without --force")
			}
			appInstance, err := resolveApp(cmd.Context())
			if err != nil {
				return err
			}
			if err := appInstance.Store().Clear(cmd.Context()); err != nil {
				return fmt.Errorf("wipe records: %w", err)
			}
			fmt.Fprintln(cmd.OutOrStdout(), "Database wiped.")
			return nil
		},
	}
	cmd.Flags().BoolVar(&force, "force", false, "confirm deletion")
	return cmd
}

func filterStatus(records []profile.Record, status profile.Status) []profile.Record {
	out := records[:0]
	for _, rec := range records {
		if strings.EqualFold(string(rec.Status), string(status)) {
			out = append(out, rec)
		}
	}
	return out
}

func printRecords(out io.Writer, records []profile.Record) error {
	tw := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "NAME\tSTATUS\tINITIAL\tFINAL\tSOURCE")
	for _, rec := range records {
		fmt.Fprintf(tw, "%s\t%s\t%.0f%%\t%.0f%%\t%s\n",
			rec.Name, rec.Status, rec.InitialScore*100, rec.FinalScore*100, rec.SourceURL)
	}
	if err := tw.Flush(); err != nil {
		return err
	}
	printStats(out, store.Summarize(records))
	return nil
}
