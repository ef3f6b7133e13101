package main

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"creativeflow/internal/client"
)

var (
	briefFlag     string
	briefFileFlag string
	aspectFlag    string
	personasFlag  []string
	waitFlag      bool
	intervalFlag  time.Duration
	feedbackFlag  string
	answersFlag   string
	approvedFlag  bool
)

var executeCmd = &cobra.Command{
	Use:   "execute",
	Short: "Submit a brief and wait for the review gate",
	Args:  cobra.NoArgs,
	RunE:  runExecute,
}

var resumeCmd = &cobra.Command{
	Use:   "resume <execution-id>",
	Short: "Send a raw resume payload to a suspended run",
	Long: `resume sends approval, rejection feedback or clarification answers in one
call. Non-empty answers count as approval; without --approved or --answers
the draft is rejected and enhancement runs again with --feedback.`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return resume(cmd, client.ResumeRequest{
			ExecutionID: args[0],
			Approved:    approvedFlag,
			Feedback:    feedbackFlag,
			AnswersText: answersFlag,
		})
	},
}

var approveCmd = &cobra.Command{
	Use:   "approve <execution-id>",
	Short: "Approve the enhanced brief and start persona generation",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return resume(cmd, client.ResumeRequest{ExecutionID: args[0], Approved: true})
	},
}

var rejectCmd = &cobra.Command{
	Use:   "reject <execution-id>",
	Short: "Reject the enhanced brief and re-run enhancement with feedback",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return resume(cmd, client.ResumeRequest{ExecutionID: args[0], Feedback: feedbackFlag})
	},
}

var answerCmd = &cobra.Command{
	Use:   "answer <execution-id>",
	Short: "Answer clarification questions and continue",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		if strings.TrimSpace(answersFlag) == "" {
			return errors.New("--text is required")
		}
		return resume(cmd, client.ResumeRequest{ExecutionID: args[0], AnswersText: answersFlag})
	},
}

var statusCmd = &cobra.Command{
	Use:   "status <execution-id>",
	Short: "Show the current state of a run",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		c, err := newClient()
		if err != nil {
			return err
		}
		exec, err := c.Status(cmd.Context(), args[0])
		if err != nil {
			return err
		}
		return printExecution(cmd.OutOrStdout(), exec)
	},
}

var watchCmd = &cobra.Command{
	Use:   "watch <execution-id>",
	Short: "Poll a run until it suspends or finishes",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		c, err := newClient()
		if err != nil {
			return err
		}
		return watch(cmd, c, args[0])
	},
}

var personasCmd = &cobra.Command{
	Use:   "personas",
	Short: "List the active personas",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, _ []string) error {
		c, err := newClient()
		if err != nil {
			return err
		}
		personas, err := c.Personas(cmd.Context())
		if err != nil {
			return err
		}
		return printPersonas(cmd.OutOrStdout(), personas)
	},
}

func init() {
	executeCmd.Flags().StringVarP(&briefFlag, "brief", "b", "", "Brief text")
	executeCmd.Flags().StringVarP(&briefFileFlag, "brief-file", "f", "", "Read the brief from a file, - for stdin")
	executeCmd.Flags().StringVar(&aspectFlag, "aspect", "", "Aspect ratio hint, e.g. 9:16")
	executeCmd.Flags().StringSliceVarP(&personasFlag, "persona", "p", nil, "Persona ids to run (repeatable, default all active)")
	executeCmd.MarkFlagsMutuallyExclusive("brief", "brief-file")

	resumeCmd.Flags().BoolVar(&approvedFlag, "approved", false, "Approve the enhanced brief")
	resumeCmd.Flags().StringVar(&feedbackFlag, "feedback", "", "Rejection feedback")
	resumeCmd.Flags().StringVar(&answersFlag, "answers", "", "Answers to clarification questions")
	rejectCmd.Flags().StringVar(&feedbackFlag, "feedback", "", "What to change in the next draft")
	answerCmd.Flags().StringVar(&answersFlag, "text", "", "Answers to the clarification questions")

	for _, cmd := range []*cobra.Command{executeCmd, resumeCmd, approveCmd, rejectCmd, answerCmd} {
		cmd.Flags().BoolVarP(&waitFlag, "wait", "w", false, "Poll queued runs until they settle")
	}
	for _, cmd := range []*cobra.Command{executeCmd, resumeCmd, approveCmd, rejectCmd, answerCmd, watchCmd} {
		cmd.Flags().DurationVar(&intervalFlag, "interval", 2*time.Second, "Polling interval")
	}
}

func runExecute(cmd *cobra.Command, _ []string) error {
	brief, err := readBrief(cmd)
	if err != nil {
		return err
	}
	c, err := newClient()
	if err != nil {
		return err
	}
	exec, err := c.Execute(cmd.Context(), client.ExecuteRequest{
		Brief:           brief,
		AspectRatioHint: aspectFlag,
		Personas:        personasFlag,
	})
	if err != nil {
		return err
	}
	if waitFlag && !exec.Settled() {
		return watch(cmd, c, exec.ExecutionID)
	}
	return printExecution(cmd.OutOrStdout(), exec)
}

func readBrief(cmd *cobra.Command) (string, error) {
	brief := briefFlag
	switch briefFileFlag {
	case "":
	case "-":
		raw, err := readAllLimited(cmd.InOrStdin())
		if err != nil {
			return "", err
		}
		brief = string(raw)
	default:
		raw, err := os.ReadFile(briefFileFlag)
		if err != nil {
			return "", err
		}
		brief = string(raw)
	}
	brief = strings.TrimSpace(brief)
	if brief == "" {
		return "", errors.New("a brief is required, use --brief or --brief-file")
	}
	return brief, nil
}

func resume(cmd *cobra.Command, req client.ResumeRequest) error {
	c, err := newClient()
	if err != nil {
		return err
	}
	exec, err := c.Resume(cmd.Context(), req)
	if err != nil {
		var apiErr *client.APIError
		if errors.As(err, &apiErr) && apiErr.ShouldRestart {
			log.Debug().Str("execution_id", req.ExecutionID).Str("code", apiErr.Code).Msg("server asked for a restart")
			return fmt.Errorf("%w; submit the brief again with creativectl execute", err)
		}
		return err
	}
	if waitFlag && !exec.Settled() {
		return watch(cmd, c, exec.ExecutionID)
	}
	return printExecution(cmd.OutOrStdout(), exec)
}

func watch(cmd *cobra.Command, c *client.Client, id string) error {
	out := cmd.OutOrStdout()
	exec, err := c.Watch(cmd.Context(), id, intervalFlag, func(e *client.Execution) {
		if !jsonOutput && !e.Settled() {
			fmt.Fprintf(out, "%s  %s\n", time.Now().Format(time.TimeOnly), e.Status)
		}
	})
	if err != nil {
		return err
	}
	return printExecution(out, exec)
}
