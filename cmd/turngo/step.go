package main

import (
	"fmt"
	"math"

	"github.com/cjeanneret/TurnGo/internal/debug"
	"github.com/spf13/cobra"
)

func newStepCmd(a *app) *cobra.Command {
	var steps int

	cmd := &cobra.Command{
		Use:   "step",
		Short: "Send one step command and print the confirmation",
		Long: `Sends a single signed step command (quarter steps of the plate) to the
motor controller and prints its one-byte answer. Useful to check wiring and
the direction of rotation.`,
		Example: `  # 8 quarter steps counter-clockwise
  turngo step --steps 8

  # 4 quarter steps clockwise
  turngo step --steps -4`,
		RunE: func(cmd *cobra.Command, args []string) error {
			if steps == 0 || steps < math.MinInt8+1 || steps > math.MaxInt8 {
				return fmt.Errorf("--steps must be between -127 and 127 and not 0, got %d", steps)
			}
			link, closeLink, err := newLink(a.cfg)
			if err != nil {
				return err
			}
			defer func() {
				if err := closeLink(); err != nil {
					debug.Error(err)
				}
			}()

			command := int8(steps)
			c, err := link.SendStep(cmd.Context(), command)
			debug.Command(command, int8(c))
			if err != nil {
				return fmt.Errorf("step %+d: %w", command, err)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "command %+d -> confirmation %+d\n", command, c)
			if !c.Valid() {
				return fmt.Errorf("step %+d: unexpected confirmation %d", command, c)
			}
			return nil
		},
	}

	cmd.Flags().IntVarP(&steps, "steps", "s", 0, "signed step command, -127..127")
	_ = cmd.MarkFlagRequired("steps")

	return cmd
}
