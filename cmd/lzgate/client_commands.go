package main

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"time"

	"github.com/jasong-03/lazorkit-gateway/client"
	"github.com/urfave/cli/v2"
)

func clientCommands() *cli.Command {
	return &cli.Command{
		Name:  "client",
		Usage: "HTTP client commands for interacting with the gateway",
		Subcommands: []*cli.Command{
			connectCommand(),
			disconnectCommand(),
			transferCommand(),
			balancesCommand(),
			transfersCommand(),
		},
	}
}

// getClient builds a gateway client from the global server-url flag.
func getClient(c *cli.Context, timeout time.Duration) (*client.Client, error) {
	serverURL := c.String("server-url")
	if serverURL == "" {
		return nil, fmt.Errorf("server-url is required (set SERVER_URL env var or use --server-url)")
	}

	httpClient := &http.Client{Timeout: timeout}
	logger := slog.New(slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{
		Level: slog.LevelError, // Only errors to stderr
	}))

	return client.NewClient(serverURL, httpClient, logger), nil
}

func connectCommand() *cli.Command {
	return &cli.Command{
		Name:      "connect",
		Usage:     "Open a passkey session and register the wallet",
		ArgsUsage: "<credential_id>",
		Flags: []cli.Flag{
			&cli.DurationFlag{
				Name:    "poll-interval",
				Aliases: []string{"p"},
				Usage:   "Balance poll interval (e.g. 30s, 5m)",
			},
		},
		Action: func(c *cli.Context) error {
			if c.NArg() != 1 {
				return fmt.Errorf("requires exactly one argument: credential ID")
			}

			cl, err := getClient(c, 90*time.Second)
			if err != nil {
				return err
			}

			session, err := cl.Connect(context.Background(), c.Args().First(), c.Duration("poll-interval"))
			if err != nil {
				return fmt.Errorf("failed to connect: %w", err)
			}

			if c.Bool("json") {
				return outputJSON(session)
			}

			fmt.Printf("✓ Wallet connected\n")
			fmt.Printf("  Smart Wallet: %s\n", session.SmartWallet)
			fmt.Printf("  Credential:   %s\n", session.CredentialID)
			fmt.Printf("  Connected At: %s\n", session.ConnectedAt.Format(time.RFC3339))
			return nil
		},
	}
}

func disconnectCommand() *cli.Command {
	return &cli.Command{
		Name:      "disconnect",
		Usage:     "Close the session for a wallet",
		ArgsUsage: "<wallet_address>",
		Action: func(c *cli.Context) error {
			if c.NArg() != 1 {
				return fmt.Errorf("requires exactly one argument: wallet address")
			}

			cl, err := getClient(c, 30*time.Second)
			if err != nil {
				return err
			}

			address := c.Args().First()
			if err := cl.Disconnect(context.Background(), address); err != nil {
				return fmt.Errorf("failed to disconnect: %w", err)
			}

			fmt.Printf("✓ Wallet disconnected: %s\n", address)
			return nil
		},
	}
}

func transferCommand() *cli.Command {
	return &cli.Command{
		Name:      "transfer",
		Usage:     "Submit a USDC transfer from a connected wallet",
		ArgsUsage: "<wallet_address> <recipient> <amount>",
		Description: `Submit a USDC transfer. Amount is a decimal string in whole USDC.

Example:
  lzgate client transfer 9xQeWvG816bUx9EPjHmaT23yvVM2ZWbrrpZb9PusVFin EPjFWdd5AufqSSqeM2qN1xzybapC8G4wEGGkZwyTDt1v 0.1`,
		Action: func(c *cli.Context) error {
			if c.NArg() != 3 {
				return fmt.Errorf("requires three arguments: wallet address, recipient, amount")
			}

			cl, err := getClient(c, 90*time.Second)
			if err != nil {
				return err
			}

			result, err := cl.Transfer(context.Background(), c.Args().Get(0), c.Args().Get(1), c.Args().Get(2))
			if err != nil {
				return fmt.Errorf("transfer failed: %w", err)
			}

			if c.Bool("json") {
				return outputJSON(result)
			}

			fmt.Printf("✓ Transfer submitted\n")
			fmt.Printf("  Signature: %s\n", result.Signature)
			fmt.Printf("  Amount:    %.6f USDC\n", float64(result.AmountBaseUnits)/1e6)
			if result.RecipientAccountCreated {
				fmt.Printf("  Note:      recipient token account was created\n")
			}
			return nil
		},
	}
}

func balancesCommand() *cli.Command {
	return &cli.Command{
		Name:      "balances",
		Usage:     "Show cached balances for a wallet",
		ArgsUsage: "<wallet_address>",
		Flags: []cli.Flag{
			&cli.BoolFlag{
				Name:    "refresh",
				Aliases: []string{"r"},
				Usage:   "Fetch fresh balances before returning",
			},
		},
		Action: func(c *cli.Context) error {
			if c.NArg() != 1 {
				return fmt.Errorf("requires exactly one argument: wallet address")
			}

			cl, err := getClient(c, 30*time.Second)
			if err != nil {
				return err
			}

			balances, err := cl.GetBalances(context.Background(), c.Args().First(), c.Bool("refresh"))
			if err != nil {
				return fmt.Errorf("failed to get balances: %w", err)
			}

			if c.Bool("json") {
				return outputJSON(balances)
			}

			if balances.SOL != nil {
				fmt.Printf("SOL:     %.9f SOL (%d lamports)\n", float64(*balances.SOL)/1e9, *balances.SOL)
			} else {
				fmt.Printf("SOL:     unavailable\n")
			}
			if balances.USDC != nil {
				fmt.Printf("USDC:    %.6f USDC (%d base units)\n", float64(*balances.USDC)/1e6, *balances.USDC)
			} else {
				fmt.Printf("USDC:    unavailable\n")
			}
			if balances.Loading {
				fmt.Printf("Note:    first fetch still in progress\n")
			}
			fmt.Printf("Fetched: %s\n", balances.FetchedAt.Format(time.RFC3339))
			return nil
		},
	}
}

func transfersCommand() *cli.Command {
	return &cli.Command{
		Name:      "transfers",
		Usage:     "List the transfer ledger for a wallet, newest first",
		ArgsUsage: "<wallet_address>",
		Flags: []cli.Flag{
			&cli.IntFlag{
				Name:    "limit",
				Aliases: []string{"l"},
				Value:   20,
				Usage:   "Maximum number of transfers to retrieve",
			},
			&cli.IntFlag{
				Name:    "offset",
				Aliases: []string{"o"},
				Usage:   "Number of transfers to skip",
			},
		},
		Action: func(c *cli.Context) error {
			if c.NArg() != 1 {
				return fmt.Errorf("requires exactly one argument: wallet address")
			}

			cl, err := getClient(c, 30*time.Second)
			if err != nil {
				return err
			}

			entries, err := cl.ListTransfers(context.Background(), c.Args().First(), c.Int("limit"), c.Int("offset"))
			if err != nil {
				return fmt.Errorf("failed to list transfers: %w", err)
			}

			if c.Bool("json") {
				data, err := json.MarshalIndent(entries, "", "  ")
				if err != nil {
					return fmt.Errorf("failed to marshal transfers: %w", err)
				}
				fmt.Println(string(data))
				return nil
			}

			if len(entries) == 0 {
				fmt.Println("No transfers found")
				return nil
			}

			for _, e := range entries {
				status := e.Status
				if e.ErrorCode != nil {
					status = fmt.Sprintf("%s (%s)", e.Status, *e.ErrorCode)
				}
				sig := "-"
				if e.Signature != nil {
					sig = *e.Signature
				}
				fmt.Printf("%s  %-10s  %.6f USDC  → %s  %s\n",
					e.CreatedAt.Format(time.RFC3339),
					status,
					float64(e.AmountBaseUnits)/1e6,
					e.Recipient,
					sig,
				)
			}
			fmt.Fprintf(os.Stderr, "\nTotal: %d transfers\n", len(entries))
			return nil
		},
	}
}
