package main

import (
	"context"
	"fmt"
	"os"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/jasong-03/lazorkit-gateway/service/temporal"
	"github.com/urfave/cli/v2"
	"go.temporal.io/sdk/client"
)

const schedulePrefix = "refresh-balances-"

func listSchedulesCommand() *cli.Command {
	return &cli.Command{
		Name:    "list-schedules",
		Usage:   "List all Temporal schedules",
		Aliases: []string{"ls"},
		Action: func(c *cli.Context) error {
			temporalClient, err := getTemporalClient(c)
			if err != nil {
				return err
			}
			defer temporalClient.Close()

			ctx := context.Background()
			iter, err := temporalClient.ScheduleClient().List(ctx, client.ScheduleListOptions{
				PageSize: 100,
			})
			if err != nil {
				return fmt.Errorf("failed to list schedules: %w", err)
			}

			// Pretty table output
			w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
			fmt.Fprintln(w, "SCHEDULE ID")
			count := 0
			for iter.HasNext() {
				schedule, err := iter.Next()
				if err != nil {
					return fmt.Errorf("failed to iterate schedules: %w", err)
				}
				fmt.Fprintf(w, "%s\n", schedule.ID)
				count++
			}
			w.Flush()

			fmt.Fprintf(os.Stderr, "\nTotal: %d schedules\n", count)
			return nil
		},
	}
}

func describeScheduleCommand() *cli.Command {
	return &cli.Command{
		Name:      "describe-schedule",
		Usage:     "Describe a Temporal schedule",
		Aliases:   []string{"desc"},
		ArgsUsage: "<schedule-id>",
		Action: func(c *cli.Context) error {
			if c.NArg() != 1 {
				return fmt.Errorf("requires exactly one argument: schedule ID")
			}

			scheduleID := c.Args().First()
			temporalClient, err := getTemporalClient(c)
			if err != nil {
				return err
			}
			defer temporalClient.Close()

			ctx := context.Background()
			handle := temporalClient.ScheduleClient().GetHandle(ctx, scheduleID)
			desc, err := handle.Describe(ctx)
			if err != nil {
				return fmt.Errorf("failed to describe schedule: %w", err)
			}

			// Pretty output
			fmt.Printf("Schedule ID:    %s\n", scheduleID)
			fmt.Printf("State Note:     %s\n", desc.Schedule.State.Note)
			fmt.Printf("Paused:         %v\n", desc.Schedule.State.Paused)

			if action := desc.Schedule.Action; action != nil {
				if wa, ok := action.(*client.ScheduleWorkflowAction); ok {
					fmt.Printf("\nWorkflow:\n")
					fmt.Printf("  Workflow:     %s\n", wa.Workflow)
					fmt.Printf("  Task Queue:   %s\n", wa.TaskQueue)
					fmt.Printf("  Args:         %v\n", wa.Args)
				}
			}

			if len(desc.Schedule.Spec.Intervals) > 0 {
				fmt.Printf("\nSchedule Spec:\n")
				for i, interval := range desc.Schedule.Spec.Intervals {
					fmt.Printf("  Interval %d:   Every %v\n", i+1, interval.Every)
				}
			}

			fmt.Printf("\nRecent Actions: %d\n", len(desc.Info.RecentActions))
			if len(desc.Info.RecentActions) > 0 {
				lastAction := desc.Info.RecentActions[len(desc.Info.RecentActions)-1]
				fmt.Printf("Last Action:  %s\n", lastAction.ActualTime.Format(time.RFC3339))
			}

			return nil
		},
	}
}

func pauseScheduleCommand() *cli.Command {
	return &cli.Command{
		Name:      "pause-schedule",
		Usage:     "Pause a Temporal schedule",
		ArgsUsage: "<schedule-id>",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:  "note",
				Usage: "Note explaining why schedule is paused",
				Value: "Paused via lzgate CLI",
			},
		},
		Action: func(c *cli.Context) error {
			if c.NArg() != 1 {
				return fmt.Errorf("requires exactly one argument: schedule ID")
			}

			scheduleID := c.Args().First()
			note := c.String("note")

			temporalClient, err := getTemporalClient(c)
			if err != nil {
				return err
			}
			defer temporalClient.Close()

			ctx := context.Background()
			handle := temporalClient.ScheduleClient().GetHandle(ctx, scheduleID)
			err = handle.Pause(ctx, client.SchedulePauseOptions{
				Note: note,
			})
			if err != nil {
				return fmt.Errorf("failed to pause schedule: %w", err)
			}

			fmt.Printf("✓ Schedule paused: %s\n", scheduleID)
			if note != "" {
				fmt.Printf("  Note: %s\n", note)
			}
			return nil
		},
	}
}

func resumeScheduleCommand() *cli.Command {
	return &cli.Command{
		Name:      "resume-schedule",
		Usage:     "Resume a paused Temporal schedule",
		ArgsUsage: "<schedule-id>",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:  "note",
				Usage: "Note explaining why schedule is resumed",
				Value: "Resumed via lzgate CLI",
			},
		},
		Action: func(c *cli.Context) error {
			if c.NArg() != 1 {
				return fmt.Errorf("requires exactly one argument: schedule ID")
			}

			scheduleID := c.Args().First()
			note := c.String("note")

			temporalClient, err := getTemporalClient(c)
			if err != nil {
				return err
			}
			defer temporalClient.Close()

			ctx := context.Background()
			handle := temporalClient.ScheduleClient().GetHandle(ctx, scheduleID)
			err = handle.Unpause(ctx, client.ScheduleUnpauseOptions{
				Note: note,
			})
			if err != nil {
				return fmt.Errorf("failed to resume schedule: %w", err)
			}

			fmt.Printf("✓ Schedule resumed: %s\n", scheduleID)
			if note != "" {
				fmt.Printf("  Note: %s\n", note)
			}
			return nil
		},
	}
}

func deleteScheduleCommand() *cli.Command {
	return &cli.Command{
		Name:      "delete-schedule",
		Usage:     "Delete a Temporal schedule (use for orphaned schedules)",
		ArgsUsage: "<schedule-id>",
		Flags: []cli.Flag{
			&cli.BoolFlag{
				Name:  "force",
				Usage: "Skip confirmation prompt",
			},
		},
		Action: func(c *cli.Context) error {
			if c.NArg() != 1 {
				return fmt.Errorf("requires exactly one argument: schedule ID")
			}

			scheduleID := c.Args().First()

			// Confirm deletion unless --force
			if !c.Bool("force") {
				fmt.Printf("Are you sure you want to delete schedule %s? (yes/no): ", scheduleID)
				var response string
				fmt.Scanln(&response)
				if response != "yes" {
					fmt.Println("Cancelled")
					return nil
				}
			}

			temporalClient, err := getTemporalClient(c)
			if err != nil {
				return err
			}
			defer temporalClient.Close()

			ctx := context.Background()
			handle := temporalClient.ScheduleClient().GetHandle(ctx, scheduleID)
			err = handle.Delete(ctx)
			if err != nil {
				return fmt.Errorf("failed to delete schedule: %w", err)
			}

			fmt.Printf("✓ Schedule deleted: %s\n", scheduleID)
			return nil
		},
	}
}

func createScheduleCommand() *cli.Command {
	return &cli.Command{
		Name:      "create-schedule",
		Usage:     "Manually create a balance refresh schedule for a wallet",
		ArgsUsage: "<wallet-address> <poll-interval>",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    "task-queue",
				Usage:   "Task queue name",
				Value:   getEnvOrDefault("TEMPORAL_TASK_QUEUE", "lazorkit-balance-polling"),
				EnvVars: []string{"TEMPORAL_TASK_QUEUE"},
			},
		},
		Action: func(c *cli.Context) error {
			if c.NArg() != 2 {
				return fmt.Errorf("requires exactly two arguments: wallet-address poll-interval")
			}

			address := c.Args().Get(0)
			intervalStr := c.Args().Get(1)
			taskQueue := c.String("task-queue")

			// Parse interval
			interval, err := time.ParseDuration(intervalStr)
			if err != nil {
				return fmt.Errorf("invalid poll-interval: %w", err)
			}

			temporalClient, err := getTemporalClient(c)
			if err != nil {
				return err
			}
			defer temporalClient.Close()

			ctx := context.Background()
			scheduleID := schedulePrefix + address

			scheduleSpec := client.ScheduleSpec{
				Intervals: []client.ScheduleIntervalSpec{
					{
						Every: interval,
					},
				},
			}

			workflowAction := client.ScheduleWorkflowAction{
				ID:        scheduleID,
				Workflow:  "RefreshBalancesWorkflow",
				TaskQueue: taskQueue,
				Args: []interface{}{temporal.RefreshBalancesInput{
					WalletAddress: address,
				}},
			}

			_, err = temporalClient.ScheduleClient().Create(ctx, client.ScheduleOptions{
				ID:     scheduleID,
				Spec:   scheduleSpec,
				Action: &workflowAction,
				Memo: map[string]interface{}{
					"wallet_address": address,
					"created_by":     "lzgate-cli",
				},
			})

			if err != nil {
				return fmt.Errorf("failed to create schedule: %w", err)
			}

			fmt.Printf("✓ Schedule created: %s\n", scheduleID)
			fmt.Printf("  Wallet: %s\n", address)
			fmt.Printf("  Interval: %v\n", interval)
			fmt.Printf("  Task Queue: %s\n", taskQueue)
			return nil
		},
	}
}

func reconcileCommand() *cli.Command {
	return &cli.Command{
		Name:  "reconcile",
		Usage: "Check for inconsistencies between database and Temporal schedules",
		Flags: []cli.Flag{
			&cli.BoolFlag{
				Name:  "fix",
				Usage: "Automatically fix inconsistencies (creates missing schedules, deletes orphaned ones)",
			},
			&cli.StringFlag{
				Name:  "task-queue",
				Usage: "Task queue name for created schedules",
				Value: "lazorkit-balance-polling",
			},
		},
		Action: func(c *cli.Context) error {
			store, closer, err := getStore(c)
			if err != nil {
				return err
			}
			defer closer()

			temporalClient, err := getTemporalClient(c)
			if err != nil {
				return err
			}
			defer temporalClient.Close()

			ctx := context.Background()

			wallets, err := store.ListWallets(ctx)
			if err != nil {
				return fmt.Errorf("failed to list wallets: %w", err)
			}

			iter, err := temporalClient.ScheduleClient().List(ctx, client.ScheduleListOptions{
				PageSize: 1000,
			})
			if err != nil {
				return fmt.Errorf("failed to list schedules: %w", err)
			}

			schedules := make(map[string]bool)
			for iter.HasNext() {
				schedule, err := iter.Next()
				if err != nil {
					return fmt.Errorf("failed to iterate schedules: %w", err)
				}
				schedules[schedule.ID] = true
			}

			// Find active wallets without schedules
			var missingSchedules []string
			for _, wallet := range wallets {
				if wallet.Status != "active" {
					continue
				}
				if !schedules[schedulePrefix+wallet.Address] {
					missingSchedules = append(missingSchedules, wallet.Address)
				}
			}

			// Find schedules without active wallets
			activeWallets := make(map[string]bool)
			for _, wallet := range wallets {
				if wallet.Status == "active" {
					activeWallets[wallet.Address] = true
				}
			}

			var orphanedSchedules []string
			for scheduleID := range schedules {
				if !strings.HasPrefix(scheduleID, schedulePrefix) {
					continue
				}
				address := strings.TrimPrefix(scheduleID, schedulePrefix)
				if !activeWallets[address] {
					orphanedSchedules = append(orphanedSchedules, scheduleID)
				}
			}

			// Report findings
			fmt.Printf("Reconciliation Report:\n")
			fmt.Printf("  Wallets in DB: %d\n", len(wallets))
			fmt.Printf("  Schedules in Temporal: %d\n", len(schedules))
			fmt.Printf("\n")

			if len(missingSchedules) > 0 {
				fmt.Printf("⚠ Active wallets missing schedules (%d):\n", len(missingSchedules))
				for _, address := range missingSchedules {
					fmt.Printf("  - %s\n", address)
				}
			} else {
				fmt.Printf("✓ All active wallets have schedules\n")
			}

			if len(orphanedSchedules) > 0 {
				fmt.Printf("\n⚠ Orphaned schedules (%d):\n", len(orphanedSchedules))
				for _, schedID := range orphanedSchedules {
					fmt.Printf("  - %s\n", schedID)
				}
			} else {
				fmt.Printf("✓ No orphaned schedules\n")
			}

			// Fix if requested
			if c.Bool("fix") && (len(missingSchedules) > 0 || len(orphanedSchedules) > 0) {
				fmt.Printf("\nFixing inconsistencies...\n")

				for _, address := range missingSchedules {
					wallet, err := store.GetWallet(ctx, address)
					if err != nil {
						fmt.Printf("  ✗ Failed to get wallet %s: %v\n", address, err)
						continue
					}

					scheduleID := schedulePrefix + address
					_, err = temporalClient.ScheduleClient().Create(ctx, client.ScheduleOptions{
						ID: scheduleID,
						Spec: client.ScheduleSpec{
							Intervals: []client.ScheduleIntervalSpec{
								{
									Every: wallet.PollInterval,
								},
							},
						},
						Action: &client.ScheduleWorkflowAction{
							ID:        scheduleID,
							Workflow:  "RefreshBalancesWorkflow",
							TaskQueue: c.String("task-queue"),
							Args: []interface{}{temporal.RefreshBalancesInput{
								WalletAddress: address,
							}},
						},
						Memo: map[string]interface{}{
							"wallet_address": address,
							"created_by":     "lzgate-cli-reconcile",
						},
					})

					if err != nil {
						fmt.Printf("  ✗ Failed to create schedule for %s: %v\n", address, err)
					} else {
						fmt.Printf("  ✓ Created schedule for %s\n", address)
					}
				}

				for _, schedID := range orphanedSchedules {
					handle := temporalClient.ScheduleClient().GetHandle(ctx, schedID)
					err := handle.Delete(ctx)
					if err != nil {
						fmt.Printf("  ✗ Failed to delete schedule %s: %v\n", schedID, err)
					} else {
						fmt.Printf("  ✓ Deleted orphaned schedule %s\n", schedID)
					}
				}

				fmt.Printf("\nReconciliation complete!\n")
			} else if len(missingSchedules) > 0 || len(orphanedSchedules) > 0 {
				fmt.Printf("\nTo fix these issues, run: lzgate temporal reconcile --fix\n")
			}

			return nil
		},
	}
}

// getEnvOrDefault returns the environment variable value or a default if not set.
func getEnvOrDefault(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

// Helper function to connect to Temporal
func getTemporalClient(c *cli.Context) (client.Client, error) {
	host := c.String("temporal-host")
	if host == "" && c.App != nil {
		host = os.Getenv("TEMPORAL_HOST")
	}
	if host == "" {
		host = "localhost:7233"
	}

	namespace := c.String("temporal-namespace")
	if namespace == "" && c.App != nil {
		namespace = os.Getenv("TEMPORAL_NAMESPACE")
	}
	if namespace == "" {
		namespace = "default"
	}

	temporalClient, err := client.Dial(client.Options{
		HostPort:  host,
		Namespace: namespace,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to connect to Temporal: %w", err)
	}

	return temporalClient, nil
}
