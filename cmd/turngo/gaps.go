package main

import (
	"errors"
	"fmt"

	"github.com/cjeanneret/TurnGo/internal/store"
	"github.com/google/uuid"
	"github.com/spf13/cobra"
)

func newGapsCmd(a *app) *cobra.Command {
	var (
		sessionID string
		row       int
		database  string
	)

	cmd := &cobra.Command{
		Use:   "gaps",
		Short: "Report photos missing from a row",
		Long: `Reads the capture log and lists the indices of a row that have no saved
photo. Without --session the most recent session with captures is used;
without --row the session's current row.`,
		Example: `  turngo gaps
  turngo gaps --session 3f2b... --row 1`,
		RunE: func(cmd *cobra.Command, args []string) error {
			if database == "" {
				database = a.cfg.Output.Database
			}
			if database == "" {
				return errors.New("no capture log: set output.database or --database")
			}
			st, err := store.Open(database)
			if err != nil {
				return err
			}
			defer st.Close()

			var rec store.SessionRecord
			if sessionID == "" {
				rec, err = st.LatestSession()
			} else {
				id, perr := uuid.Parse(sessionID)
				if perr != nil {
					return fmt.Errorf("--session: %w", perr)
				}
				rec, err = st.Session(id)
			}
			if err != nil {
				return err
			}
			if !cmd.Flags().Changed("row") {
				row = rec.Row
			}
			if row < 0 {
				return fmt.Errorf("--row must be >= 0, got %d", row)
			}

			gaps, err := st.Gaps(rec.ID, row, rec.PhotosPerRow)
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			if len(gaps) == 0 {
				fmt.Fprintf(out, "session %s row %d: no gaps\n", rec.ID, row)
				return nil
			}
			fmt.Fprintf(out, "session %s row %d: %d of %d photos missing\n", rec.ID, row, len(gaps), rec.PhotosPerRow)
			fmt.Fprintf(out, "missing indices: %v\n", gaps)
			return nil
		},
	}

	cmd.Flags().StringVar(&sessionID, "session", "", "session ID (default latest)")
	cmd.Flags().IntVarP(&row, "row", "r", 0, "row number (default the session's row)")
	cmd.Flags().StringVar(&database, "database", "", "capture log path (default output.database)")

	return cmd
}
