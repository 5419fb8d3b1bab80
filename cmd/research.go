package main

import (
	"encoding/json"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/sells-group/prospect-cli/internal/model"
	"github.com/sells-group/prospect-cli/internal/research"
	"github.com/sells-group/prospect-cli/pkg/salesforce"
)

var (
	researchDomain   string
	researchIndustry string
	researchCRMID    string
	researchJSON     bool
	researchWriteCRM bool
)

var researchCmd = &cobra.Command{
	Use:   "research <company name>",
	Short: "Research a single company",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		env, err := initEnv(ctx)
		if err != nil {
			return err
		}
		defer env.Close()

		subject := model.Subject{
			Name:     args[0],
			Domain:   researchDomain,
			Industry: researchIndustry,
			CRMID:    researchCRMID,
		}

		outcome, err := env.Researcher.Run(ctx, subject)
		if err != nil {
			return err
		}

		if researchJSON {
			enc := json.NewEncoder(os.Stdout)
			enc.SetIndent("", "  ")
			if err := enc.Encode(outcome); err != nil {
				return err
			}
		} else {
			fmt.Print(research.FormatNotes(outcome))
			fmt.Printf("\nCost: $%.4f  Time: %dms  Sources: %d\n",
				outcome.CostUSD, outcome.DurationMS, outcome.Pipeline.Metadata.SourcesFound)
		}

		if researchWriteCRM && env.Salesforce != nil && subject.CRMID != "" {
			if err := salesforce.WriteResearch(ctx, env.Salesforce, subject.CRMID, cfg.Salesforce.WriteField, research.FormatNotes(outcome)); err != nil {
				return err
			}
			fmt.Fprintf(os.Stderr, "wrote research notes to account %s\n", subject.CRMID)
		}

		return nil
	},
}

func init() {
	researchCmd.Flags().StringVar(&researchDomain, "domain", "", "company website domain")
	researchCmd.Flags().StringVar(&researchIndustry, "industry", "", "industry label used for catalog filtering")
	researchCmd.Flags().StringVar(&researchCRMID, "crm-id", "", "CRM account record id")
	researchCmd.Flags().BoolVar(&researchJSON, "json", false, "emit the full outcome as JSON")
	researchCmd.Flags().BoolVar(&researchWriteCRM, "write-crm", false, "write notes back to the CRM record")
	rootCmd.AddCommand(researchCmd)
}
