package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/itchyny/gojq"
	natspkg "github.com/jasong-03/lazorkit-gateway/service/nats"
	"github.com/nats-io/nats.go"
	"github.com/nats-io/nats.go/jetstream"
	"github.com/urfave/cli/v2"
)

// subscribeCommand subscribes to transfer or balance events for a wallet.
func subscribeCommand() *cli.Command {
	return &cli.Command{
		Name:      "subscribe",
		Usage:     "Subscribe to transfer or balance events for a wallet",
		ArgsUsage: "[wallet_address]",
		Description: `Subscribe to real-time events published to NATS JetStream.

Transfer events are published to transfers.{wallet_address} and balance
snapshots to balances.{wallet_address}. Without a wallet address the
command subscribes to the wildcard subject for all wallets.

Events can be filtered with jq expressions that must all evaluate to a
truthy value against the event JSON.

Example:
  lzgate nats subscribe 9xQeWvG816bUx9EPjHmaT23yvVM2ZWbrrpZb9PusVFin --json
  lzgate nats subscribe --events balances --jq '.usdc_base_units > 1000000'`,
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    "nats-url",
				Usage:   "NATS server URL",
				EnvVars: []string{"NATS_URL"},
				Value:   "nats://localhost:4222",
			},
			&cli.StringFlag{
				Name:    "events",
				Aliases: []string{"e"},
				Usage:   "Event kind to subscribe to: transfers or balances",
				Value:   "transfers",
			},
			&cli.StringSliceFlag{
				Name:    "must-jq",
				Usage:   "jq filter expression that must evaluate to true (can be specified multiple times, all must match)",
				Aliases: []string{"jq"},
			},
			&cli.BoolFlag{
				Name:    "durable",
				Aliases: []string{"d"},
				Usage:   "Create a durable consumer (survives restarts)",
			},
			&cli.StringFlag{
				Name:  "consumer-name",
				Usage: "Consumer name (required for durable)",
				Value: "lzgate-cli",
			},
		},
		Action: func(c *cli.Context) error {
			kind := c.String("events")
			var prefix string
			switch kind {
			case "transfers":
				prefix = "transfers"
			case "balances":
				prefix = "balances"
			default:
				return fmt.Errorf("invalid --events value %q: must be transfers or balances", kind)
			}

			subject := prefix + ".*"
			if c.NArg() == 1 {
				subject = fmt.Sprintf("%s.%s", prefix, c.Args().Get(0))
			}

			filters, err := compileJQFilters(c.StringSlice("must-jq"))
			if err != nil {
				return err
			}

			return streamEvents(streamOptions{
				subject:      subject,
				kind:         kind,
				natsURL:      c.String("nats-url"),
				durable:      c.Bool("durable"),
				consumerName: c.String("consumer-name"),
				jsonOutput:   c.Bool("json"),
				filters:      filters,
			})
		},
	}
}

type streamOptions struct {
	subject      string
	kind         string
	natsURL      string
	durable      bool
	consumerName string
	jsonOutput   bool
	filters      []*gojq.Code
}

// streamEvents connects to NATS and streams events until interrupted.
func streamEvents(opts streamOptions) error {
	nc, err := nats.Connect(opts.natsURL)
	if err != nil {
		return fmt.Errorf("failed to connect to NATS: %w", err)
	}
	defer nc.Close()

	js, err := jetstream.New(nc)
	if err != nil {
		return fmt.Errorf("failed to create JetStream context: %w", err)
	}

	if !opts.jsonOutput {
		fmt.Printf("Subscribing to: %s\n", opts.subject)
		fmt.Printf("   NATS: %s\n", opts.natsURL)
		if opts.durable {
			fmt.Printf("   Consumer: %s (durable)\n", opts.consumerName)
		}
		fmt.Printf("\nWaiting for events... (Ctrl-C to exit)\n\n")
	}

	consumerConfig := jetstream.ConsumerConfig{
		FilterSubject: opts.subject,
		AckPolicy:     jetstream.AckExplicitPolicy,
	}
	if opts.durable {
		consumerConfig.Durable = opts.consumerName
		consumerConfig.Name = opts.consumerName
	}

	cons, err := js.CreateOrUpdateConsumer(context.Background(), natspkg.StreamName, consumerConfig)
	if err != nil {
		return fmt.Errorf("failed to create consumer: %w", err)
	}

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)

	msgChan := make(chan jetstream.Msg, 10)
	go func() {
		_, _ = cons.Consume(func(msg jetstream.Msg) {
			msgChan <- msg
		})
	}()

	count := 0
	for {
		select {
		case msg := <-msgChan:
			matched, err := matchesJQFilters(msg.Data(), opts.filters)
			if err != nil {
				if !opts.jsonOutput {
					fmt.Fprintf(os.Stderr, "Error parsing event: %v\n", err)
				}
				msg.Ack()
				continue
			}
			if !matched {
				msg.Ack()
				continue
			}

			count++

			if opts.jsonOutput {
				fmt.Println(string(msg.Data()))
			} else if opts.kind == "balances" {
				printBalanceEvent(count, msg.Data())
			} else {
				printTransferEvent(count, msg.Data())
			}

			msg.Ack()

		case <-sigChan:
			if !opts.jsonOutput {
				fmt.Printf("\n\nReceived %d events\n", count)
				fmt.Println("Shutting down...")
			}
			return nil
		}
	}
}

func printTransferEvent(count int, data []byte) {
	var event natspkg.TransferEvent
	if err := json.Unmarshal(data, &event); err != nil {
		fmt.Fprintf(os.Stderr, "Error parsing event: %v\n", err)
		return
	}

	fmt.Printf("─────────────────────────────────────────────────────\n")
	fmt.Printf("Transfer #%d\n", count)
	fmt.Printf("─────────────────────────────────────────────────────\n")
	fmt.Printf("Wallet:       %s\n", event.WalletAddress)
	fmt.Printf("Recipient:    %s\n", event.Recipient)
	fmt.Printf("Amount:       %.6f USDC\n", float64(event.AmountBaseUnits)/1e6)
	fmt.Printf("Status:       %s\n", event.Status)
	if event.Signature != nil {
		fmt.Printf("Signature:    %s\n", *event.Signature)
	}
	if event.ErrorCode != nil {
		fmt.Printf("Error Code:   %s\n", *event.ErrorCode)
	}
	if event.ErrorMessage != nil {
		fmt.Printf("Error:        %s\n", *event.ErrorMessage)
	}
	if event.RecipientAccountCreated {
		fmt.Printf("Note:         recipient token account was created\n")
	}
	fmt.Printf("Published:    %s\n", event.PublishedAt.Format(time.RFC3339))
	fmt.Printf("\n")
}

func printBalanceEvent(count int, data []byte) {
	var event natspkg.BalanceEvent
	if err := json.Unmarshal(data, &event); err != nil {
		fmt.Fprintf(os.Stderr, "Error parsing event: %v\n", err)
		return
	}

	fmt.Printf("─────────────────────────────────────────────────────\n")
	fmt.Printf("Balance Snapshot #%d\n", count)
	fmt.Printf("─────────────────────────────────────────────────────\n")
	fmt.Printf("Wallet:       %s\n", event.WalletAddress)
	if event.SOLLamports != nil {
		fmt.Printf("SOL:          %.9f SOL (%d lamports)\n", float64(*event.SOLLamports)/1e9, *event.SOLLamports)
	} else {
		fmt.Printf("SOL:          (fetch failed)\n")
	}
	if event.USDCBaseUnits != nil {
		fmt.Printf("USDC:         %.6f USDC (%d base units)\n", float64(*event.USDCBaseUnits)/1e6, *event.USDCBaseUnits)
	} else {
		fmt.Printf("USDC:         (fetch failed)\n")
	}
	fmt.Printf("Fetched:      %s\n", event.FetchedAt.Format(time.RFC3339))
	fmt.Printf("Published:    %s\n", event.PublishedAt.Format(time.RFC3339))
	fmt.Printf("\n")
}

// compileJQFilters parses and compiles a list of jq filter expressions.
func compileJQFilters(filters []string) ([]*gojq.Code, error) {
	compiled := make([]*gojq.Code, len(filters))
	for i, filter := range filters {
		query, err := gojq.Parse(filter)
		if err != nil {
			return nil, fmt.Errorf("failed to parse jq filter %q: %w", filter, err)
		}
		compiled[i], err = gojq.Compile(query)
		if err != nil {
			return nil, fmt.Errorf("failed to compile jq filter %q: %w", filter, err)
		}
	}
	return compiled, nil
}

// matchesJQFilters reports whether the event JSON satisfies all filters.
// All filters must evaluate to a truthy value.
func matchesJQFilters(data []byte, filters []*gojq.Code) (bool, error) {
	if len(filters) == 0 {
		return true, nil
	}

	var eventJSON interface{}
	if err := json.Unmarshal(data, &eventJSON); err != nil {
		return false, fmt.Errorf("event is not valid JSON: %w", err)
	}

	for _, code := range filters {
		iter := code.Run(eventJSON)
		v, ok := iter.Next()
		if !ok {
			// No result means the filter failed
			return false, nil
		}
		if _, isErr := v.(error); isErr {
			return false, nil
		}
		if !isTruthy(v) {
			return false, nil
		}
	}
	return true, nil
}

// isTruthy checks if a jq result value is truthy.
// In jq, false and null are falsy, everything else is truthy.
func isTruthy(v interface{}) bool {
	if v == nil {
		return false
	}
	if b, ok := v.(bool); ok {
		return b
	}
	// Everything else (numbers, strings, objects, arrays) is truthy
	return true
}

// inspectStreamCommand shows information about the NATS JetStream stream.
func inspectStreamCommand() *cli.Command {
	return &cli.Command{
		Name:  "inspect-stream",
		Usage: "Inspect the GATEWAY JetStream stream",
		Description: `Show information about the JetStream stream including:
- Message count
- Consumers
- Storage usage
- Stream configuration

Example:
  lzgate nats inspect-stream`,
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    "nats-url",
				Usage:   "NATS server URL",
				EnvVars: []string{"NATS_URL"},
				Value:   "nats://localhost:4222",
			},
		},
		Action: func(c *cli.Context) error {
			natsURL := c.String("nats-url")
			jsonOutput := c.Bool("json")

			nc, err := nats.Connect(natsURL)
			if err != nil {
				return fmt.Errorf("failed to connect to NATS: %w", err)
			}
			defer nc.Close()

			js, err := jetstream.New(nc)
			if err != nil {
				return fmt.Errorf("failed to create JetStream context: %w", err)
			}

			stream, err := js.Stream(context.Background(), natspkg.StreamName)
			if err != nil {
				return fmt.Errorf("failed to get stream: %w", err)
			}

			info, err := stream.Info(context.Background())
			if err != nil {
				return fmt.Errorf("failed to get stream info: %w", err)
			}

			if jsonOutput {
				data, _ := json.MarshalIndent(info, "", "  ")
				fmt.Println(string(data))
			} else {
				fmt.Printf("Stream: %s\n", info.Config.Name)
				fmt.Printf("─────────────────────────────────────────────────────\n")
				fmt.Printf("Description:  %s\n", info.Config.Description)
				fmt.Printf("Subjects:     %v\n", info.Config.Subjects)
				fmt.Printf("Messages:     %d\n", info.State.Msgs)
				fmt.Printf("Bytes:        %d\n", info.State.Bytes)
				fmt.Printf("First Seq:    %d\n", info.State.FirstSeq)
				fmt.Printf("Last Seq:     %d\n", info.State.LastSeq)
				fmt.Printf("Consumers:    %d\n", info.State.Consumers)
				fmt.Printf("Max Age:      %s\n", info.Config.MaxAge)
				fmt.Printf("Storage:      %s\n", info.Config.Storage)
				fmt.Printf("\n")
			}

			return nil
		},
	}
}
