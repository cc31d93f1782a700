package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"text/tabwriter"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/jasong-03/lazorkit-gateway/service/db"
	"github.com/urfave/cli/v2"
)

func listWalletsCommand() *cli.Command {
	return &cli.Command{
		Name:    "list-wallets",
		Usage:   "List all registered wallets",
		Aliases: []string{"ls"},
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    "status",
				Aliases: []string{"s"},
				Usage:   "Filter by status (active, disconnected)",
			},
		},
		Action: func(c *cli.Context) error {
			store, closer, err := getStore(c)
			if err != nil {
				return err
			}
			defer closer()

			wallets, err := store.ListWallets(context.Background())
			if err != nil {
				return fmt.Errorf("failed to list wallets: %w", err)
			}

			// Filter by status if specified
			statusFilter := c.String("status")
			if statusFilter != "" {
				filtered := make([]*db.Wallet, 0)
				for _, w := range wallets {
					if w.Status == statusFilter {
						filtered = append(filtered, w)
					}
				}
				wallets = filtered
			}

			if c.Bool("json") {
				return outputJSON(wallets)
			}

			// Pretty table output
			w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
			fmt.Fprintln(w, "ADDRESS\tSTATUS\tPOLL INTERVAL\tLAST REFRESH\tCREATED")
			for _, wallet := range wallets {
				lastRefresh := "never"
				if wallet.LastRefreshAt != nil {
					lastRefresh = wallet.LastRefreshAt.Format(time.RFC3339)
				}
				fmt.Fprintf(w, "%s\t%s\t%v\t%s\t%s\n",
					wallet.Address,
					wallet.Status,
					wallet.PollInterval,
					lastRefresh,
					wallet.CreatedAt.Format(time.RFC3339),
				)
			}
			w.Flush()

			fmt.Fprintf(os.Stderr, "\nTotal: %d wallets\n", len(wallets))
			return nil
		},
	}
}

func getWalletCommand() *cli.Command {
	return &cli.Command{
		Name:      "get-wallet",
		Usage:     "Get wallet details",
		Aliases:   []string{"get"},
		ArgsUsage: "<address>",
		Action: func(c *cli.Context) error {
			if c.NArg() != 1 {
				return fmt.Errorf("requires exactly one argument: wallet address")
			}

			address := c.Args().First()
			store, closer, err := getStore(c)
			if err != nil {
				return err
			}
			defer closer()

			wallet, err := store.GetWallet(context.Background(), address)
			if err != nil {
				return fmt.Errorf("failed to get wallet: %w", err)
			}

			if c.Bool("json") {
				return outputJSON(wallet)
			}

			// Pretty output
			fmt.Printf("Address:       %s\n", wallet.Address)
			fmt.Printf("Credential:    %s\n", wallet.CredentialID)
			fmt.Printf("Status:        %s\n", wallet.Status)
			fmt.Printf("Poll Interval: %v\n", wallet.PollInterval)
			if wallet.LastRefreshAt != nil {
				fmt.Printf("Last Refresh:  %s\n", wallet.LastRefreshAt.Format(time.RFC3339))
			} else {
				fmt.Printf("Last Refresh:  never\n")
			}
			fmt.Printf("Created:       %s\n", wallet.CreatedAt.Format(time.RFC3339))
			fmt.Printf("Updated:       %s\n", wallet.UpdatedAt.Format(time.RFC3339))

			return nil
		},
	}
}

func listTransfersCommand() *cli.Command {
	return &cli.Command{
		Name:    "list-transfers",
		Usage:   "List transfer ledger rows for a wallet",
		Aliases: []string{"txs"},
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    "wallet",
				Aliases: []string{"w"},
				Usage:   "Wallet address to list transfers for",
			},
			&cli.IntFlag{
				Name:    "limit",
				Aliases: []string{"n"},
				Usage:   "Limit number of transfers",
				Value:   50,
			},
			&cli.IntFlag{
				Name:    "offset",
				Aliases: []string{"o"},
				Usage:   "Number of transfers to skip",
			},
		},
		Action: func(c *cli.Context) error {
			walletAddr := c.String("wallet")
			if walletAddr == "" {
				return fmt.Errorf("please specify --wallet flag to list transfers")
			}

			store, closer, err := getStore(c)
			if err != nil {
				return err
			}
			defer closer()

			transfers, err := store.ListTransfers(context.Background(), db.ListTransfersParams{
				WalletAddress: walletAddr,
				Limit:         int32(c.Int("limit")),
				Offset:        int32(c.Int("offset")),
			})
			if err != nil {
				return fmt.Errorf("failed to list transfers: %w", err)
			}

			if c.Bool("json") {
				return outputJSON(transfers)
			}

			if len(transfers) == 0 {
				fmt.Println("No transfers found")
				return nil
			}

			for i, tr := range transfers {
				if i > 0 {
					fmt.Println("────────────────────────────────────────────────────────────────────────")
				}

				fmt.Printf("ID:             %d\n", tr.ID)
				fmt.Printf("Wallet:         %s\n", tr.WalletAddress)
				fmt.Printf("Recipient:      %s\n", tr.Recipient)
				// USDC has 6 decimals
				fmt.Printf("Amount:         %.6f USDC (%d base units)\n", float64(tr.AmountBaseUnits)/1e6, tr.AmountBaseUnits)
				fmt.Printf("Status:         %s\n", tr.Status)
				if tr.Signature != nil {
					fmt.Printf("Signature:      %s\n", *tr.Signature)
				}
				if tr.ErrorCode != nil {
					fmt.Printf("Error Code:     %s\n", *tr.ErrorCode)
				}
				if tr.ErrorMessage != nil {
					fmt.Printf("Error:          %s\n", *tr.ErrorMessage)
				}
				if tr.RecipientAccountCreated {
					fmt.Printf("Note:           recipient token account was created\n")
				}
				fmt.Printf("Created At:     %s\n", tr.CreatedAt.Format(time.RFC3339))
			}

			fmt.Fprintf(os.Stderr, "\nTotal: %d transfers\n", len(transfers))
			return nil
		},
	}
}

// Helper function to connect to database
func getStore(c *cli.Context) (*db.Store, func(), error) {
	dbURL := c.String("database-url")
	if dbURL == "" && c.App != nil {
		dbURL = os.Getenv("DATABASE_URL")
	}
	if dbURL == "" {
		return nil, nil, fmt.Errorf("database-url is required (set DATABASE_URL env var or use --database-url)")
	}

	pool, err := pgxpool.New(context.Background(), dbURL)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	if err := pool.Ping(context.Background()); err != nil {
		pool.Close()
		return nil, nil, fmt.Errorf("failed to ping database: %w", err)
	}

	store := db.NewStore(pool, nil)
	closer := func() { pool.Close() }

	return store, closer, nil
}

// Helper function to output JSON
func outputJSON(v interface{}) error {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
