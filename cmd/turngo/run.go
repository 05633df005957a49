package main

import (
	"context"
	"fmt"
	"io"

	"github.com/cjeanneret/TurnGo/internal/config"
	"github.com/cjeanneret/TurnGo/internal/debug"
	"github.com/cjeanneret/TurnGo/internal/logic/rig"
	"github.com/cjeanneret/TurnGo/internal/logic/turntable"
	"github.com/spf13/cobra"
)

func newRunCmd(a *app) *cobra.Command {
	var (
		direction    string
		photosPerRow int
		row          int
		folder       string
	)

	cmd := &cobra.Command{
		Use:   "run",
		Short: "Capture one full row headless and exit",
		Long: `Arms the turntable in the given direction and saves one photo per step
until a full revolution is done.

Photos whose save failed leave gaps; they are listed at the end and the
command exits with an error so scripts can retake the row.`,
		Example: `  # 100 photos, clockwise, row 0
  turngo run --direction negative

  # Second row of a vase, 200 photos
  turngo run --direction positive --photos-per-row 200 --row 1 --folder ~/Pictures/vase`,
		RunE: func(cmd *cobra.Command, args []string) error {
			d, err := turntable.ParseDirection(direction)
			if err != nil {
				return err
			}
			if d == turntable.None {
				return fmt.Errorf("%w: --direction is required", turntable.ErrInvalidDirection)
			}

			cfg := *a.cfg
			if cmd.Flags().Changed("photos-per-row") {
				if !turntable.ValidPhotosPerRow(photosPerRow) {
					return fmt.Errorf("%w: got %d, want one of %v", turntable.ErrInvalidPhotosPerRow, photosPerRow, turntable.PhotosPerRowChoices)
				}
				cfg.Capture.PhotosPerRow = photosPerRow
			}
			if cmd.Flags().Changed("row") {
				if row < 0 {
					return fmt.Errorf("%w: got %d", turntable.ErrInvalidRow, row)
				}
				cfg.Capture.Row = row
			}
			if folder != "" {
				cfg.Output.Folder = folder
			}

			report, err := runRow(cmd.Context(), &cfg, d)
			if err != nil {
				return err
			}
			printReport(cmd.OutOrStdout(), report)
			if len(report.Missing) > 0 {
				return fmt.Errorf("row %d incomplete: %d photos not saved", report.Row, len(report.Missing))
			}
			return nil
		},
	}

	cmd.Flags().StringVarP(&direction, "direction", "d", "", "rotation direction: negative (cw) or positive (ccw)")
	cmd.Flags().IntVarP(&photosPerRow, "photos-per-row", "n", 0, fmt.Sprintf("photos in one revolution, one of %v", turntable.PhotosPerRowChoices))
	cmd.Flags().IntVarP(&row, "row", "r", 0, "row number used in file names")
	cmd.Flags().StringVarP(&folder, "folder", "o", "", "destination folder (default from config)")
	_ = cmd.MarkFlagRequired("direction")

	return cmd
}

// runRow builds a rig from cfg, captures one row in direction d and shuts
// the rig down.
func runRow(ctx context.Context, cfg *config.Config, d turntable.Direction) (rig.RowReport, error) {
	parts, err := buildRig(cfg, false)
	if err != nil {
		return rig.RowReport{}, err
	}
	defer parts.Close()

	runCtx, cancel := context.WithCancel(ctx)
	defer cancel()
	runErr := make(chan error, 1)
	go func() { runErr <- parts.rig.Run(runCtx) }()

	select {
	case <-parts.rig.Ready():
	case err := <-runErr:
		if err == nil {
			err = rig.ErrNotRunning
		}
		return rig.RowReport{}, err
	}

	debug.Section("Capturing row")
	report, err := parts.rig.RunRow(ctx, d)
	cancel()
	if runErr := <-runErr; runErr != nil {
		debug.Error(runErr)
	}
	return report, err
}

func printReport(w io.Writer, r rig.RowReport) {
	fmt.Fprintf(w, "session %s row %d: %d/%d photos saved", r.SessionID, r.Row, r.Saved, r.PhotosPerRow)
	if r.TransmissionErrors > 0 {
		fmt.Fprintf(w, ", %d transmission errors retried", r.TransmissionErrors)
	}
	fmt.Fprintln(w)
	if len(r.Missing) > 0 {
		fmt.Fprintf(w, "missing indices: %v\n", r.Missing)
	}
}
