package main

import (
	"context"
	"fmt"
	"os"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/jashmhta/HMSSSS-sub000/internal/platform/jobs"
)

// maintenance collects the periodic tasks of the clinical domains.
type maintenance struct {
	markNoShows   func(ctx context.Context) error
	licenseExpiry func(ctx context.Context) error
	expireUnits   func(ctx context.Context) error
	lowStock      func(ctx context.Context) error
	purgeAudit    func(ctx context.Context) error
}

func (m maintenance) jobs() []jobs.Job {
	return []jobs.Job{
		{
			Name:        "appointments.mark-no-show",
			Spec:        "*/15 * * * *",
			Description: "Mark past scheduled or confirmed appointments as no-show",
			Run:         m.markNoShows,
		},
		{
			Name:        "staff.license-expiry",
			Spec:        "0 6 * * *",
			Description: "Announce professional licenses expiring within 30 days",
			Run:         m.licenseExpiry,
		},
		{
			Name:        "bloodbank.expire-units",
			Spec:        "@hourly",
			Description: "Expire blood units past their expiry date",
			Run:         m.expireUnits,
		},
		{
			Name:        "pharmacy.low-stock",
			Spec:        "0 7 * * *",
			Description: "Publish low-stock alerts for medications at or below reorder level",
			Run:         m.lowStock,
		},
		{
			Name:        "compliance.retention",
			Spec:        "0 3 * * *",
			Description: "Purge audit logs older than the retention window",
			Run:         m.purgeAudit,
		},
	}
}

func jobsCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "jobs",
		Short: "Inspect and run scheduled maintenance jobs",
	}

	cmd.AddCommand(&cobra.Command{
		Use:   "list",
		Short: "List registered jobs",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			a, err := newApp(cmd.Context(), cfg, newLogger(cfg))
			if err != nil {
				return err
			}
			defer a.close()

			printJobs(a.scheduler.Jobs())
			return nil
		},
	})

	cmd.AddCommand(&cobra.Command{
		Use:   "run <name>",
		Short: "Run a job once and exit",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			logger := newLogger(cfg)
			ctx, cancel := context.WithCancel(cmd.Context())
			defer cancel()

			a, err := newApp(ctx, cfg, logger)
			if err != nil {
				return err
			}
			defer a.close()

			// Consumers must be subscribed before the job publishes.
			go func() {
				if err := a.bus.Run(ctx); err != nil {
					logger.Error().Err(err).Msg("event bus stopped")
				}
			}()
			<-a.bus.Running()

			if err := a.scheduler.RunNow(ctx, args[0]); err != nil {
				return err
			}
			fmt.Printf("Job %s completed.\n", args[0])
			return nil
		},
	})

	return cmd
}

func printJobs(list []jobs.Status) {
	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "NAME\tSCHEDULE\tDESCRIPTION")
	for _, j := range list {
		fmt.Fprintf(w, "%s\t%s\t%s\n", j.Name, j.Spec, j.Description)
	}
	w.Flush()
}
