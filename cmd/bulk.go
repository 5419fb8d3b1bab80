package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"text/tabwriter"
	"time"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"

	"github.com/sells-group/prospect-cli/internal/bulk"
	"github.com/sells-group/prospect-cli/internal/model"
	"github.com/sells-group/prospect-cli/internal/store"
)

var (
	bulkName      string
	bulkCSV       string
	bulkXLSX      string
	bulkCRMFilter string
	bulkCRM       bool
	bulkLimit     int
)

var bulkCmd = &cobra.Command{
	Use:   "bulk",
	Short: "Manage bulk research sessions",
}

var bulkStartCmd = &cobra.Command{
	Use:   "start",
	Short: "Create a session from a subject source and run it",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		env, err := initEnv(ctx)
		if err != nil {
			return err
		}
		defer env.Close()

		subjects, selection, err := importSubjects(ctx, env)
		if err != nil {
			return err
		}
		if len(subjects) == 0 {
			return eris.New("no subjects to research")
		}

		name := bulkName
		if name == "" {
			name = fmt.Sprintf("bulk %s", time.Now().Format("2006-01-02 15:04"))
		}

		sess := bulk.NewSession(name, selection, subjects)
		if err := env.Store.CreateSession(ctx, sess); err != nil {
			return err
		}
		fmt.Fprintf(os.Stderr, "session %s created with %d subjects\n", sess.ID, sess.Total)

		return runSession(ctx, env, sess, false)
	},
}

var bulkResumeCmd = &cobra.Command{
	Use:   "resume <session id>",
	Short: "Resume a paused session from its checkpoint",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		env, err := initEnv(ctx)
		if err != nil {
			return err
		}
		defer env.Close()

		sess, err := env.Store.GetSession(ctx, args[0])
		if err != nil {
			return err
		}
		return runSession(ctx, env, sess, true)
	},
}

var bulkCancelCmd = &cobra.Command{
	Use:   "cancel <session id>",
	Short: "Cancel a session permanently",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		env, err := initEnv(cmd.Context())
		if err != nil {
			return err
		}
		defer env.Close()

		sess, err := env.Store.GetSession(cmd.Context(), args[0])
		if err != nil {
			return err
		}
		orch := bulk.New(env.Researcher, env.Store, bulk.Options{})
		if err := orch.Cancel(cmd.Context(), sess); err != nil {
			return err
		}
		fmt.Fprintf(os.Stderr, "session %s cancelled\n", sess.ID)
		return nil
	},
}

var bulkStatusCmd = &cobra.Command{
	Use:   "status <session id>",
	Short: "Show a session's progress and errors",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		env, err := initEnv(cmd.Context())
		if err != nil {
			return err
		}
		defer env.Close()

		sess, err := env.Store.GetSession(cmd.Context(), args[0])
		if err != nil {
			return err
		}

		fmt.Printf("Session:   %s (%s)\n", sess.Name, sess.ID)
		fmt.Printf("Status:    %s\n", sess.Status)
		fmt.Printf("Progress:  %d/%d (index %d)\n", sess.Processed, sess.Total, sess.CurrentIndex)
		fmt.Printf("Succeeded: %d  Failed: %d\n", sess.SuccessCount(), sess.FailureCount())
		fmt.Printf("Cost:      $%.4f  Time: %s\n", sess.TotalCostUSD, time.Duration(sess.TotalTimeMS)*time.Millisecond)
		if len(sess.Errors) > 0 {
			fmt.Println("Errors:")
			for _, e := range sess.Errors {
				fmt.Printf("  [%s] %s: %s\n", e.Severity, e.SubjectID, e.Message)
			}
		}
		return nil
	},
}

var bulkListCmd = &cobra.Command{
	Use:   "list",
	Short: "List sessions",
	RunE: func(cmd *cobra.Command, args []string) error {
		env, err := initEnv(cmd.Context())
		if err != nil {
			return err
		}
		defer env.Close()

		sessions, err := env.Store.ListSessions(cmd.Context(), store.SessionFilter{Limit: bulkLimit})
		if err != nil {
			return err
		}

		w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
		fmt.Fprintln(w, "ID\tNAME\tSTATUS\tPROGRESS\tCOST")
		for _, s := range sessions {
			fmt.Fprintf(w, "%s\t%s\t%s\t%d/%d\t$%.4f\n", s.ID, s.Name, s.Status, s.Processed, s.Total, s.TotalCostUSD)
		}
		return w.Flush()
	},
}

// importSubjects resolves the configured subject source.
func importSubjects(ctx context.Context, env *researchEnv) ([]model.Subject, model.SelectionConfig, error) {
	switch {
	case bulkCSV != "":
		subjects, err := bulk.FromCSV(bulkCSV)
		return capSubjects(subjects), model.SelectionConfig{Source: "csv", FilePath: bulkCSV, Limit: bulkLimit}, err
	case bulkXLSX != "":
		subjects, err := bulk.FromXLSX(bulkXLSX)
		return capSubjects(subjects), model.SelectionConfig{Source: "xlsx", FilePath: bulkXLSX, Limit: bulkLimit}, err
	case bulkCRM || bulkCRMFilter != "":
		if env.Salesforce == nil {
			return nil, model.SelectionConfig{}, eris.New("salesforce is not configured")
		}
		subjects, err := bulk.FromCRM(ctx, env.Salesforce, bulkCRMFilter, bulkLimit)
		return subjects, model.SelectionConfig{Source: "crm", Filter: bulkCRMFilter, Limit: bulkLimit}, err
	default:
		return nil, model.SelectionConfig{}, eris.New("one of --csv, --xlsx or --crm is required")
	}
}

func capSubjects(subjects []model.Subject) []model.Subject {
	if bulkLimit > 0 && len(subjects) > bulkLimit {
		return subjects[:bulkLimit]
	}
	return subjects
}

// runSession drives the orchestrator loop, translating SIGINT into a
// graceful pause.
func runSession(ctx context.Context, env *researchEnv, sess *model.BulkSession, resume bool) error {
	token := bulk.NewPauseToken()
	go func() {
		<-ctx.Done()
		token.Pause()
	}()

	orch := bulk.New(env.Researcher, env.Store, bulk.Options{
		CheckpointEvery: cfg.Bulk.CheckpointEvery,
		DefaultItemTime: time.Duration(cfg.Bulk.DefaultItemSecs * float64(time.Second)),
		Writer:          env.Writer,
		OnProgress: func(ev bulk.ProgressEvent) {
			fmt.Fprintf(os.Stderr, "[%d/%d %.0f%%] %s  eta %s  cost $%.4f\n",
				ev.Processed, ev.Total, ev.Percent, ev.Subject,
				ev.EstimatedRemaining.Round(time.Second), ev.TotalCostUSD)
		},
	})

	// The loop checkpoints on pause; run it on a background context so a
	// cancelled ctx cannot corrupt the final write.
	runCtx := context.WithoutCancel(ctx)
	var err error
	if resume {
		err = orch.Resume(runCtx, sess, token)
	} else {
		err = orch.Start(runCtx, sess, token)
	}
	if err != nil {
		return err
	}

	switch sess.Status {
	case model.SessionStatusPaused:
		fmt.Fprintf(os.Stderr, "session %s paused at index %d; resume with: prospect-cli bulk resume %s\n",
			sess.ID, sess.CurrentIndex, sess.ID)
	case model.SessionStatusResearchComplete:
		fmt.Fprintf(os.Stderr, "session %s complete: %d succeeded, %d failed, $%.4f\n",
			sess.ID, sess.SuccessCount(), sess.FailureCount(), sess.TotalCostUSD)
	}
	return nil
}

func init() {
	bulkStartCmd.Flags().StringVar(&bulkName, "name", "", "session name")
	bulkStartCmd.Flags().StringVar(&bulkCSV, "csv", "", "CSV file of subjects")
	bulkStartCmd.Flags().StringVar(&bulkXLSX, "xlsx", "", "XLSX file of subjects")
	bulkStartCmd.Flags().BoolVar(&bulkCRM, "crm", false, "pull subjects from the CRM")
	bulkStartCmd.Flags().StringVar(&bulkCRMFilter, "crm-filter", "", "SOQL WHERE clause for CRM subject selection")
	bulkStartCmd.Flags().IntVar(&bulkLimit, "limit", 0, "maximum subjects to import")
	bulkListCmd.Flags().IntVar(&bulkLimit, "limit", 50, "maximum sessions to list")

	bulkCmd.AddCommand(bulkStartCmd, bulkResumeCmd, bulkCancelCmd, bulkStatusCmd, bulkListCmd)
	rootCmd.AddCommand(bulkCmd)
}
