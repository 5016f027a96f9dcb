// Package cli implements the ticketctl operator commands.
package cli

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/kirillkom/scale-ticket-service/internal/core/domain"
	"github.com/kirillkom/scale-ticket-service/internal/core/ports"
)

type Services struct {
	Reader   ports.TicketReader
	Reviewer ports.TicketReviewer
	Exporter ports.TicketExporter
}

// Connector builds the services for one command run. The returned func releases them.
type Connector func(ctx context.Context) (Services, func(), error)

type app struct {
	connect Connector
	svc     Services
}

// withServices connects before fn runs and releases the services afterwards, also on failure.
func (a *app) withServices(fn func(cmd *cobra.Command, args []string) error) func(*cobra.Command, []string) error {
	return func(cmd *cobra.Command, args []string) error {
		svc, release, err := a.connect(cmd.Context())
		if err != nil {
			return fmt.Errorf("connect: %w", err)
		}
		if release != nil {
			defer release()
		}
		a.svc = svc
		return fn(cmd, args)
	}
}

func NewRootCommand(connect Connector) *cobra.Command {
	a := &app{connect: connect}
	root := &cobra.Command{
		Use:           "ticketctl",
		Short:         "Operate the scale ticket store",
		Long:          `ticketctl queries, exports, verifies and deletes scale tickets directly against the configured store.`,
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	root.AddCommand(
		a.newExportCommand(),
		a.newStatsCommand(),
		a.newVerifyCommand(),
		a.newDeleteCommand(),
	)
	return root
}

type filterFlags struct {
	statuses []string
	search   string
	from     string
	to       string
}

func (f *filterFlags) register(cmd *cobra.Command) {
	cmd.Flags().StringSliceVarP(&f.statuses, "status", "s", nil, "Only tickets in these statuses (repeatable or comma separated)")
	cmd.Flags().StringVarP(&f.search, "query", "q", "", "Match ticket number, driver, location or commodity")
	cmd.Flags().StringVar(&f.from, "from", "", "Earliest ticket date (YYYY-MM-DD)")
	cmd.Flags().StringVar(&f.to, "to", "", "Latest ticket date (YYYY-MM-DD)")
}

func (f *filterFlags) filter() (domain.TicketFilter, error) {
	out := domain.TicketFilter{Search: f.search}
	for _, raw := range f.statuses {
		status, err := domain.ParseTicketStatus(raw)
		if err != nil {
			return domain.TicketFilter{}, err
		}
		out.Statuses = append(out.Statuses, status)
	}
	var err error
	if out.From, err = domain.ParseDate(f.from); err != nil {
		return domain.TicketFilter{}, err
	}
	if out.To, err = domain.ParseDate(f.to); err != nil {
		return domain.TicketFilter{}, err
	}
	return out, out.Validate()
}
