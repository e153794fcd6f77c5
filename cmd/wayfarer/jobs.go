package cli

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/wayfarerhq/wayfarer/internal/config"
	"github.com/wayfarerhq/wayfarer/internal/db"
	"github.com/wayfarerhq/wayfarer/internal/scheduler"
)

// jobsCmd manages scheduled jobs directly against the database. The running
// server picks up definition changes on its next restart; use the HTTP API
// to mutate a live instance.
func jobsCmd(cfg *config.Config) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "jobs",
		Short: "Manage scheduled jobs",
	}
	cmd.AddCommand(jobsListCmd(cfg))
	cmd.AddCommand(jobsAddCmd(cfg))
	cmd.AddCommand(jobsRemoveCmd(cfg))
	cmd.AddCommand(jobsPauseCmd(cfg, true))
	cmd.AddCommand(jobsPauseCmd(cfg, false))
	cmd.AddCommand(jobsHistoryCmd(cfg))
	return cmd
}

func openJobStore(cfg *config.Config) (*scheduler.Store, func(), error) {
	sqlDB, err := db.Open(cfg.DBPath())
	if err != nil {
		return nil, nil, err
	}
	return scheduler.NewStore(sqlDB), func() { sqlDB.Close() }, nil
}

func jobsListCmd(cfg *config.Config) *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List all jobs",
		RunE: func(cmd *cobra.Command, args []string) error {
			store, closeDB, err := openJobStore(cfg)
			if err != nil {
				return err
			}
			defer closeDB()

			jobs, err := store.ListJobs()
			if err != nil {
				return err
			}
			if len(jobs) == 0 {
				fmt.Println("No jobs configured.")
				return nil
			}

			for _, job := range jobs {
				status := "active"
				if job.Paused {
					status = "paused"
				}
				fmt.Printf("%s  %-20s [%s]\n", job.ID, job.Name, status)
				fmt.Printf("  task:     %s\n", job.Task)
				fmt.Printf("  schedule: %s\n", describeSchedule(job))
			}
			return nil
		},
	}
}

func jobsAddCmd(cfg *config.Config) *cobra.Command {
	var (
		name     string
		cronExpr string
		timezone string
		every    time.Duration
		at       string
		paused   bool
	)

	cmd := &cobra.Command{
		Use:   "add <task>",
		Short: "Add a job (exactly one of --cron, --every, --at)",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			job := &scheduler.Job{
				Name:   name,
				Task:   args[0],
				Paused: paused,
			}

			switch {
			case cronExpr != "" && every == 0 && at == "":
				job.ScheduleType = scheduler.ScheduleCron
				job.CronExpr = cronExpr
				job.Timezone = timezone
			case every != 0 && cronExpr == "" && at == "":
				job.ScheduleType = scheduler.ScheduleInterval
				job.IntervalSeconds = int(every.Seconds())
			case at != "" && cronExpr == "" && every == 0:
				runAt, err := time.Parse(time.RFC3339, at)
				if err != nil {
					return fmt.Errorf("parse --at: %w", err)
				}
				job.ScheduleType = scheduler.ScheduleDate
				job.RunAt = runAt
			default:
				return fmt.Errorf("exactly one of --cron, --every, --at is required")
			}

			if err := scheduler.Validate(*job); err != nil {
				return err
			}

			store, closeDB, err := openJobStore(cfg)
			if err != nil {
				return err
			}
			defer closeDB()

			if err := store.CreateJob(job); err != nil {
				return err
			}
			fmt.Printf("Created job %s\n", job.ID)
			return nil
		},
	}

	cmd.Flags().StringVar(&name, "name", "", "human-readable job name")
	cmd.Flags().StringVar(&cronExpr, "cron", "", "5-field cron expression")
	cmd.Flags().StringVar(&timezone, "tz", "", "timezone for --cron (e.g. Europe/Berlin)")
	cmd.Flags().DurationVar(&every, "every", 0, "fixed interval (e.g. 30m, 2h)")
	cmd.Flags().StringVar(&at, "at", "", "one-shot instant, RFC 3339")
	cmd.Flags().BoolVar(&paused, "paused", false, "create the job paused")
	return cmd
}

func jobsRemoveCmd(cfg *config.Config) *cobra.Command {
	return &cobra.Command{
		Use:   "rm <id>",
		Short: "Remove a job",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			store, closeDB, err := openJobStore(cfg)
			if err != nil {
				return err
			}
			defer closeDB()

			if err := store.DeleteJob(args[0]); err != nil {
				return err
			}
			fmt.Printf("Removed job %s\n", args[0])
			return nil
		},
	}
}

func jobsPauseCmd(cfg *config.Config, pause bool) *cobra.Command {
	use, short := "pause <id>", "Pause a job"
	if !pause {
		use, short = "resume <id>", "Resume a paused job"
	}
	return &cobra.Command{
		Use:   use,
		Short: short,
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			store, closeDB, err := openJobStore(cfg)
			if err != nil {
				return err
			}
			defer closeDB()
			return store.SetPaused(args[0], pause)
		},
	}
}

func jobsHistoryCmd(cfg *config.Config) *cobra.Command {
	var limit int

	cmd := &cobra.Command{
		Use:   "history <id>",
		Short: "Show recent executions of a job",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			store, closeDB, err := openJobStore(cfg)
			if err != nil {
				return err
			}
			defer closeDB()

			execs, err := store.ListExecutions(args[0], limit)
			if err != nil {
				return err
			}
			if len(execs) == 0 {
				fmt.Println("No executions recorded.")
				return nil
			}

			for _, ex := range execs {
				status := "ok"
				if !ex.Success {
					status = "failed"
				}
				fmt.Printf("%s  [%s]  %s (%s)\n",
					ex.StartedAt.Format("2006-01-02 15:04:05"), status,
					ex.Task, ex.FinishedAt.Sub(ex.StartedAt))
				if ex.Error != "" {
					fmt.Printf("  error: %s\n", ex.Error)
				}
			}
			return nil
		},
	}

	cmd.Flags().IntVar(&limit, "limit", 20, "max executions to show")
	return cmd
}

func describeSchedule(job scheduler.Job) string {
	switch job.ScheduleType {
	case scheduler.ScheduleCron:
		if job.Timezone != "" {
			return fmt.Sprintf("cron %q (%s)", job.CronExpr, job.Timezone)
		}
		return fmt.Sprintf("cron %q", job.CronExpr)
	case scheduler.ScheduleInterval:
		return fmt.Sprintf("every %s", time.Duration(job.IntervalSeconds)*time.Second)
	case scheduler.ScheduleDate:
		return fmt.Sprintf("once at %s", job.RunAt.Format(time.RFC3339))
	}
	return job.ScheduleType
}
