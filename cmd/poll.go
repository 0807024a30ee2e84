package cmd

import (
	"context"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/spigell/tener-recruiter/internal/model"
	"github.com/spigell/tener-recruiter/internal/scheduler"
	"github.com/spigell/tener-recruiter/internal/store"
)

var pollCmd = &cobra.Command{
	Use:   "poll",
	Short: "Run every periodic pass once: connections, replies, reminders, interviews",
	Run: func(cmd *cobra.Command, _ []string) {
		if err := poll(cmd); err != nil {
			log.Fatal(err)
		}
	},
}

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the periodic passes on their schedule until interrupted",
	Run: func(cmd *cobra.Command, _ []string) {
		if err := serve(cmd); err != nil {
			log.Fatal(err)
		}
	},
}

func init() {
	rootCmd.AddCommand(pollCmd)
	rootCmd.AddCommand(serveCmd)

	pollCmd.Flags().Int64("job-id", 0, "limit the passes to one job")
	pollCmd.Flags().String("pass", "", "run only this pass (connections, inbound, pre_resume_followups, interview)")
	serveCmd.Flags().Bool("skip-initial", false, "do not run every pass once before the schedule starts")
}

// jobScope narrows job listing to one job when set.
type jobScope struct {
	store store.Store
	jobID int64
}

func (s jobScope) ListJobs(ctx context.Context) ([]model.Job, error) {
	if s.jobID <= 0 {
		return s.store.ListJobs(ctx)
	}
	job, err := s.store.GetJob(ctx, s.jobID)
	if err != nil {
		return nil, fmt.Errorf("loading job %d: %w", s.jobID, err)
	}
	return []model.Job{job}, nil
}

func (a *application) scheduler(jobID int64) *scheduler.Scheduler {
	return scheduler.New(a.workflow, jobScope{store: a.store, jobID: jobID}, a.config.Schedule, a.logger)
}

func poll(cmd *cobra.Command) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	a, err := setup(ctx)
	if err != nil {
		return err
	}
	defer a.Close()

	jobID, _ := cmd.Flags().GetInt64("job-id")
	s := a.scheduler(jobID)

	if name, _ := cmd.Flags().GetString("pass"); name != "" {
		report, err := s.RunPass(ctx, name)
		if err != nil {
			return err
		}
		return printJSON(report)
	}

	reports, err := s.RunAll(ctx)
	if err != nil {
		return err
	}
	return printJSON(reports)
}

func serve(cmd *cobra.Command) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	a, err := setup(ctx)
	if err != nil {
		return err
	}
	defer a.Close()

	s := a.scheduler(0)
	if skip, _ := cmd.Flags().GetBool("skip-initial"); !skip {
		if _, err := s.RunAll(ctx); err != nil {
			a.logger.Warn("initial passes failed", zap.Error(err))
		}
	}

	if err := s.Start(ctx); err != nil {
		return err
	}
	a.logger.Info("scheduler started")

	<-ctx.Done()
	a.logger.Info("exiting", zap.String("reason", "signal received"))
	s.Stop()
	return nil
}
