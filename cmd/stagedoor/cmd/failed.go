package cmd

import (
	"context"
	"fmt"

	"github.com/solatis/stagedoor/internal/core/db"
	"github.com/spf13/cobra"
)

var failedCmd = &cobra.Command{
	Use:   "failed",
	Short: "List submissions whose delivery failed",
	Long:  `Lists audit log entries with a failed delivery status. Under the optimistic acknowledgment policy the visitor never sees these failures, so this report is how an operator finds mail that needs manual follow-up.`,
	RunE:  runFailed,
}

func init() {
	rootCmd.AddCommand(failedCmd)
}

func runFailed(cmd *cobra.Command, args []string) error {
	if dbURL == "" {
		return fmt.Errorf("--db-url required")
	}

	database, err := db.Open(dbURL)
	if err != nil {
		return fmt.Errorf("failed to open database: %w", err)
	}
	defer database.Close()

	queries, err := db.LoadQueries(database)
	if err != nil {
		return fmt.Errorf("failed to load queries: %w", err)
	}

	rows, err := db.NewSubmissionStore(queries).ListFailed(context.Background())
	if err != nil {
		return err
	}

	if len(rows) == 0 {
		fmt.Println("no failed deliveries")
		return nil
	}
	for _, r := range rows {
		fmt.Printf("%s  %s  %s <%s>  %s\n", r.SubmissionID, r.AcceptedAt, r.FullName, r.Email, r.DeliveryDetail)
	}
	return nil
}
