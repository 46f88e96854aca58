package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"

	"github.com/manifoldco/promptui"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"jobmate/matching-service/internal/match"
)

const (
	promptYes = "Yes"
	promptNo  = "No"
)

var recomputeCmd = &cobra.Command{
	Use:   "recompute",
	Short: "Run matching inline for one job, one candidate or every OPEN job",
}

var recomputeJobCmd = &cobra.Command{
	Use:   "job <jobId>",
	Short: "Recompute the matches of one OPEN job",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return withServices(cmd, func(ctx context.Context, svc *services, _ *zap.Logger) error {
			sum, err := svc.orch.RunForJob(ctx, args[0])
			if err != nil {
				return err
			}
			return printJSON(sum)
		})
	},
}

var recomputeCandidateCmd = &cobra.Command{
	Use:   "candidate <userId>",
	Short: "Recompute the matches of one candidate across OPEN jobs",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		groupsOnly, _ := cmd.Flags().GetBool("groups-only")
		return withServices(cmd, func(ctx context.Context, svc *services, _ *zap.Logger) error {
			sum, err := svc.orch.RunForCandidate(ctx, args[0], match.CandidateRunOptions{GroupsOnly: groupsOnly})
			if err != nil {
				return err
			}
			return printJSON(sum)
		})
	},
}

var recomputeAllCmd = &cobra.Command{
	Use:   "all",
	Short: "Recompute the matches of every OPEN job",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, _ []string) error {
		yes, _ := cmd.Flags().GetBool("yes")
		if !yes {
			prompt := promptui.Select{
				Label: "Recompute matches for every OPEN job?",
				Items: []string{promptYes, promptNo},
			}
			_, answer, err := prompt.Run()
			if err != nil {
				return fmt.Errorf("prompt: %w", err)
			}
			if answer != promptYes {
				fmt.Println("aborted")
				return nil
			}
		}
		return withServices(cmd, func(ctx context.Context, svc *services, log *zap.Logger) error {
			done, err := svc.orch.RecomputeOpenJobs(ctx)
			log.Info("recompute finished", zap.Int("jobs", done))
			return err
		})
	},
}

var activateDueCmd = &cobra.Command{
	Use:   "activate-due",
	Short: "Expire overdue OPEN jobs and open PENDING jobs whose start date has been reached",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, _ []string) error {
		return withServices(cmd, func(ctx context.Context, svc *services, _ *zap.Logger) error {
			expired, expErr := svc.registry.ExpireDue(ctx)
			opened, actErr := svc.registry.ActivateDue(ctx)
			if err := printJSON(map[string]int{"expired": expired, "opened": opened}); err != nil {
				return err
			}
			return errors.Join(expErr, actErr)
		})
	},
}

func init() {
	recomputeCandidateCmd.Flags().Bool("groups-only", false, "only group jobs of the candidate's affiliations")
	recomputeAllCmd.Flags().BoolP("yes", "y", false, "do not ask for confirmation")

	recomputeCmd.AddCommand(recomputeJobCmd, recomputeCandidateCmd, recomputeAllCmd)
	rootCmd.AddCommand(recomputeCmd, activateDueCmd)
}

// withServices runs fn against synchronously dispatching services, so every
// run finishes before the command exits.
func withServices(cmd *cobra.Command, fn func(context.Context, *services, *zap.Logger) error) error {
	cfg, log := setup(cmd)
	defer log.Sync()

	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}
	svc, err := buildServices(ctx, cfg, log, false)
	if err != nil {
		return err
	}
	defer svc.Close()
	return fn(ctx, svc, log)
}

func printJSON(v any) error {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
