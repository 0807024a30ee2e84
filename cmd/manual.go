package cmd

import (
	"context"
	"errors"
	"fmt"
	"log"
	"strings"

	"github.com/manifoldco/promptui"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/spigell/tener-recruiter/internal/workflow"
)

const promptQuit = "/quit"

var manualCmd = &cobra.Command{
	Use:   "manual",
	Short: "Add a manual test account to a job and talk to the bot as that candidate",
	Run: func(cmd *cobra.Command, _ []string) {
		if err := manualAccount(cmd); err != nil {
			log.Fatal(err)
		}
	},
}

var overviewCmd = &cobra.Command{
	Use:   "overview",
	Short: "Print the candidates of a job with their status and overall score",
	Run: func(cmd *cobra.Command, _ []string) {
		if err := overview(cmd); err != nil {
			log.Fatal(err)
		}
	},
}

func init() {
	rootCmd.AddCommand(manualCmd)
	rootCmd.AddCommand(overviewCmd)

	manualCmd.Flags().Int64("job-id", 0, "job to add the account to")
	manualCmd.MarkFlagRequired("job-id")
	overviewCmd.Flags().Int64("job-id", 0, "job to describe")
	overviewCmd.MarkFlagRequired("job-id")
}

func manualAccount(cmd *cobra.Command) error {
	ctx := context.Background()
	jobID, _ := cmd.Flags().GetInt64("job-id")

	a, err := setup(ctx)
	if err != nil {
		return err
	}
	defer a.Close()

	acc, err := askManualAccount()
	if err != nil {
		return err
	}

	res, err := a.workflow.AddManualTestAccount(ctx, jobID, acc)
	if err != nil {
		return fmt.Errorf("adding manual account: %w", err)
	}
	a.logger.Info("manual account added",
		zap.Int64("candidate_id", res.Candidate.ID),
		zap.Int64("conversation_id", res.ConversationID),
		zap.String("status", string(res.Status)),
	)

	return a.manualChat(ctx, res.ConversationID)
}

func askManualAccount() (workflow.ManualAccount, error) {
	var acc workflow.ManualAccount

	name := promptui.Prompt{
		Label: "Full name",
		Validate: func(s string) error {
			if strings.TrimSpace(s) == "" {
				return errors.New("name is required")
			}
			return nil
		},
	}
	var err error
	if acc.FullName, err = name.Run(); err != nil {
		return acc, err
	}

	identifier := promptui.Prompt{Label: "Identifier (empty for a generated one)"}
	if acc.Identifier, err = identifier.Run(); err != nil {
		return acc, err
	}

	lang := promptui.Select{
		Label: "Language",
		Items: []string{"auto", "en", "ru", "es"},
	}
	if _, acc.Language, err = lang.Run(); err != nil {
		return acc, err
	}
	return acc, nil
}

// manualChat prints what the bot sends and feeds typed answers back as the
// candidate's replies.
func (a *application) manualChat(ctx context.Context, conversationID int64) error {
	seen := 0
	for {
		outbox := a.manual.Outbox()
		for _, msg := range outbox[seen:] {
			fmt.Printf("\n[bot -> %s]\n%s\n", msg.Recipient, msg.Text)
		}
		seen = len(outbox)

		reply := promptui.Prompt{Label: fmt.Sprintf("Reply (%s to finish)", promptQuit)}
		text, err := reply.Run()
		if err != nil {
			return err
		}
		text = strings.TrimSpace(text)
		switch text {
		case promptQuit:
			return nil
		case "":
			continue
		}

		res, err := a.workflow.ProcessInboundMessage(ctx, conversationID, text)
		if err != nil {
			return fmt.Errorf("processing reply: %w", err)
		}
		a.logger.Debug("reply processed",
			zap.String("mode", res.Mode),
			zap.String("intent", res.Intent),
			zap.String("language", res.Language),
		)
	}
}

func overview(cmd *cobra.Command) error {
	ctx := context.Background()
	jobID, _ := cmd.Flags().GetInt64("job-id")

	a, err := setup(ctx)
	if err != nil {
		return err
	}
	defer a.Close()

	rows, err := a.workflow.CandidateOverview(ctx, jobID)
	if err != nil {
		return err
	}
	a.logger.Info("candidates of the job", zap.Int64("job_id", jobID), zap.Int("count", len(rows)))
	return printJSON(rows)
}
