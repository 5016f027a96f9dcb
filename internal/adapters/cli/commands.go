package cli

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/kirillkom/scale-ticket-service/internal/core/domain"
)

func (a *app) newExportCommand() *cobra.Command {
	var (
		filters filterFlags
		format  string
		out     string
		sortKey string
		order   string
	)
	cmd := &cobra.Command{
		Use:   "export",
		Short: "Export tickets as CSV or XLSX",
		Long:  `Write the filtered, sorted ticket list to a spreadsheet. CSV goes to stdout unless --out is set.`,
		Args:  cobra.NoArgs,
		RunE: a.withServices(func(cmd *cobra.Command, _ []string) error {
			if a.svc.Exporter == nil {
				return errors.New("export is not available")
			}
			filter, err := filters.filter()
			if err != nil {
				return err
			}
			sort, err := domain.ParseTicketSort(sortKey, order)
			if err != nil {
				return err
			}
			format = strings.ToLower(format)
			if format == "xlsx" && out == "" {
				return errors.New("xlsx export needs --out")
			}

			w := cmd.OutOrStdout()
			if out != "" {
				f, err := os.Create(out)
				if err != nil {
					return fmt.Errorf("create %s: %w", out, err)
				}
				defer f.Close()
				w = f
			}

			var rows int
			switch format {
			case "csv":
				rows, err = a.svc.Exporter.ExportCSV(cmd.Context(), w, filter, sort)
			case "xlsx":
				rows, err = a.svc.Exporter.ExportXLSX(cmd.Context(), w, filter, sort)
			default:
				return fmt.Errorf("unknown format %q, want csv or xlsx", format)
			}
			if err != nil {
				return err
			}
			if out != "" {
				fmt.Fprintf(cmd.ErrOrStderr(), "exported %d tickets to %s\n", rows, out)
			}
			return nil
		}),
	}
	filters.register(cmd)
	cmd.Flags().StringVarP(&format, "format", "f", "csv", "Output format: csv or xlsx")
	cmd.Flags().StringVarP(&out, "out", "o", "", "Output file")
	cmd.Flags().StringVar(&sortKey, "sort", "", "Sort key: date, weight, status, confidence, driver")
	cmd.Flags().StringVar(&order, "order", "asc", "Sort direction: asc or desc")
	return cmd
}

func (a *app) newStatsCommand() *cobra.Command {
	var (
		filters filterFlags
		asJSON  bool
	)
	cmd := &cobra.Command{
		Use:   "stats",
		Short: "Show ticket analytics",
		Args:  cobra.NoArgs,
		RunE: a.withServices(func(cmd *cobra.Command, _ []string) error {
			filter, err := filters.filter()
			if err != nil {
				return err
			}
			result, err := a.svc.Reader.Aggregate(cmd.Context(), filter)
			if err != nil {
				return err
			}
			if asJSON {
				enc := json.NewEncoder(cmd.OutOrStdout())
				enc.SetIndent("", "  ")
				return enc.Encode(result)
			}
			return printAnalytics(cmd.OutOrStdout(), result)
		}),
	}
	filters.register(cmd)
	cmd.Flags().BoolVar(&asJSON, "json", false, "Print JSON instead of a table")
	return cmd
}

func printAnalytics(w io.Writer, a domain.Analytics) error {
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintf(tw, "tickets\t%d\n", a.TotalCount)
	fmt.Fprintf(tw, "tonnage\t%.2f t\n", a.TotalTonnage)
	fmt.Fprintf(tw, "processed\t%d\n", a.ProcessedCount)
	fmt.Fprintf(tw, "pending\t%d\n", a.PendingCount)
	fmt.Fprintf(tw, "mismatches\t%d\n", a.MismatchCount)
	fmt.Fprintf(tw, "ocr accuracy\t%d%%\n", a.OCRAccuracyRate)
	fmt.Fprintf(tw, "avg confidence\t%.1f\n", a.AverageConfidence)
	if len(a.TopCommodities) > 0 {
		fmt.Fprintln(tw, "\ncommodity\ttonnage\ttickets")
		for _, c := range a.TopCommodities {
			fmt.Fprintf(tw, "%s\t%.2f\t%d\n", c.Commodity, c.Tonnage, c.TicketCount)
		}
	}
	if len(a.TopDrivers) > 0 {
		fmt.Fprintln(tw, "\ndriver\taccuracy\ttickets")
		for _, d := range a.TopDrivers {
			fmt.Fprintf(tw, "%s\t%.1f\t%d\n", d.Driver, d.Accuracy, d.TicketCount)
		}
	}
	return tw.Flush()
}

func (a *app) newVerifyCommand() *cobra.Command {
	var operator string
	cmd := &cobra.Command{
		Use:   "verify <ticket-id>",
		Short: "Verify an extracted ticket",
		Long:  `Mark an OCR-complete or mismatch-alert ticket as verified. Verifying a mismatch records an override.`,
		Args:  cobra.ExactArgs(1),
		RunE: a.withServices(func(cmd *cobra.Command, args []string) error {
			ticket, err := a.svc.Reviewer.Verify(cmd.Context(), args[0], strings.TrimSpace(operator))
			if err != nil {
				return err
			}
			v, _ := ticket.Verification()
			if v.Override {
				fmt.Fprintf(cmd.OutOrStdout(), "ticket %s verified by %s (override: %s)\n", ticket.ID(), v.Operator, v.OverriddenDetails)
				return nil
			}
			fmt.Fprintf(cmd.OutOrStdout(), "ticket %s verified by %s\n", ticket.ID(), v.Operator)
			return nil
		}),
	}
	cmd.Flags().StringVar(&operator, "operator", "", "Operator attesting the weights (required)")
	_ = cmd.MarkFlagRequired("operator")
	return cmd
}

func (a *app) newDeleteCommand() *cobra.Command {
	var yes bool
	cmd := &cobra.Command{
		Use:   "delete <ticket-id>",
		Short: "Delete a ticket",
		Args:  cobra.ExactArgs(1),
		RunE: a.withServices(func(cmd *cobra.Command, args []string) error {
			if !yes {
				return fmt.Errorf("refusing to delete %s without --yes", args[0])
			}
			if err := a.svc.Reviewer.Delete(cmd.Context(), args[0]); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "ticket %s deleted\n", args[0])
			return nil
		}),
	}
	cmd.Flags().BoolVarP(&yes, "yes", "y", false, "Confirm deletion")
	return cmd
}
