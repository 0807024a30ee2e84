package cmd

import (
	"context"
	"errors"
	"fmt"
	"log"

	"github.com/manifoldco/promptui"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"go.uber.org/zap"

	"github.com/spigell/tener-recruiter/internal/model"
	"github.com/spigell/tener-recruiter/internal/workflow"
)

const (
	PromptYes            = "Yes"
	PromptNo             = "No"
	PromptShowCandidates = "Show candidates"
)

// JobFile is the job description read by run.
type JobFile struct {
	Title              string   `mapstructure:"title"`
	JDText             string   `mapstructure:"jd-text"`
	Location           string   `mapstructure:"location"`
	PreferredLanguages []string `mapstructure:"preferred-languages"`
	Seniority          string   `mapstructure:"seniority"`
}

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Source, verify and contact candidates for a job",
	Run: func(cmd *cobra.Command, _ []string) {
		if err := run(cmd); err != nil {
			log.Fatal(err)
		}
	},
}

func init() {
	rootCmd.AddCommand(runCmd)

	runCmd.Flags().StringP("job-file", "f", "", "yaml file with a new job (title, jd-text, location, preferred-languages, seniority)")
	runCmd.Flags().Int64("job-id", 0, "run an existing job instead of creating one")
	runCmd.Flags().IntP("limit", "l", 0, "how many profiles to source (default from policy.search-limit)")
	runCmd.Flags().BoolP("auto-approve", "y", false, "do not ask for confirmation before outreach")
	runCmd.Flags().StringP("exclude-file", "e", "", "file with candidates never to contact. Default is unset.")
	runCmd.Flags().StringSlice("skip-filter", nil, "outreach filters to skip for this run (forced_test, exclude_file)")

	viper.BindPFlag("exclude-file", runCmd.Flags().Lookup("exclude-file"))
	viper.BindPFlag("policy.skip-filters", runCmd.Flags().Lookup("skip-filter"))
}

func run(cmd *cobra.Command) error {
	ctx := context.Background()

	a, err := setup(ctx)
	if err != nil {
		return err
	}
	defer a.Close()

	jobID, err := a.resolveJob(ctx, cmd)
	if err != nil {
		return err
	}
	logger := a.logger.With(zap.Int64("job_id", jobID))

	limit, _ := cmd.Flags().GetInt("limit")
	autoApprove, _ := cmd.Flags().GetBool("auto-approve")

	opts := workflow.JobRunOptions{Limit: limit}
	if !autoApprove {
		opts.ConfirmOutreach = func(targets int) bool {
			return a.confirmOutreach(ctx, jobID, targets)
		}
	}

	summary, err := a.workflow.ExecuteJobWorkflow(ctx, jobID, opts)
	if err != nil {
		return fmt.Errorf("running job %d: %w", jobID, err)
	}
	if summary.Skipped {
		logger.Info("exiting", zap.String("reason", "outreach declined"))
	}
	return printJSON(summary)
}

func (a *application) resolveJob(ctx context.Context, cmd *cobra.Command) (int64, error) {
	if id, _ := cmd.Flags().GetInt64("job-id"); id > 0 {
		return id, nil
	}

	path, _ := cmd.Flags().GetString("job-file")
	if path == "" {
		return 0, errors.New("either --job-file or --job-id is required")
	}

	v := viper.New()
	v.SetConfigFile(path)
	if err := v.ReadInConfig(); err != nil {
		return 0, fmt.Errorf("reading job file: %w", err)
	}
	var jf JobFile
	if err := v.Unmarshal(&jf); err != nil {
		return 0, fmt.Errorf("decoding job file: %w", err)
	}

	job, err := a.workflow.CreateJob(ctx, model.Job{
		Title:              jf.Title,
		JDText:             jf.JDText,
		Location:           jf.Location,
		PreferredLanguages: jf.PreferredLanguages,
		Seniority:          jf.Seniority,
	})
	if err != nil {
		return 0, fmt.Errorf("creating job: %w", err)
	}
	a.logger.Info("job created", zap.Int64("job_id", job.ID), zap.String("title", job.Title))
	return job.ID, nil
}

// confirmOutreach asks before any message leaves. Candidates can be
// reviewed first.
func (a *application) confirmOutreach(ctx context.Context, jobID int64, targets int) bool {
	prompt := promptui.Select{
		Label: fmt.Sprintf("Contact %d candidates?", targets),
		Items: []string{PromptYes, PromptNo, PromptShowCandidates},
	}
	for {
		_, action, err := prompt.Run()
		if err != nil {
			a.logger.Warn("prompt failed", zap.Error(err))
			return false
		}

		switch action {
		case PromptYes:
			return true
		case PromptNo:
			return false
		case PromptShowCandidates:
			rows, err := a.workflow.CandidateOverview(ctx, jobID)
			if err != nil {
				a.logger.Warn("building overview failed", zap.Error(err))
				continue
			}
			if err := printJSON(rows); err != nil {
				a.logger.Warn("printing overview failed", zap.Error(err))
			}
		}
	}
}
