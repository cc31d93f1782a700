package server

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/jasong-03/lazorkit-gateway/service/metrics"
	natspkg "github.com/jasong-03/lazorkit-gateway/service/nats"
	"github.com/nats-io/nats.go"
	"github.com/nats-io/nats.go/jetstream"
)

// SSEPublisher manages Server-Sent Events connections for event streaming.
// It holds its own NATS connection, separate from the publishing side.
type SSEPublisher struct {
	nc      *nats.Conn
	js      jetstream.JetStream
	metrics *metrics.Metrics
	logger  *slog.Logger
}

// NewSSEPublisher creates a new SSE publisher that subscribes to NATS internally.
func NewSSEPublisher(natsURL string, m *metrics.Metrics, logger *slog.Logger) (*SSEPublisher, error) {
	nc, err := nats.Connect(natsURL,
		nats.Name("lazorkit-gateway-sse"),
		nats.Timeout(10*time.Second),
		nats.ReconnectWait(1*time.Second),
		nats.MaxReconnects(-1),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to NATS: %w", err)
	}

	js, err := jetstream.New(nc)
	if err != nil {
		nc.Close()
		return nil, fmt.Errorf("failed to create JetStream context: %w", err)
	}

	logger.Info("SSE publisher initialized", "nats_url", natsURL)

	return &SSEPublisher{
		nc:      nc,
		js:      js,
		metrics: m,
		logger:  logger,
	}, nil
}

// Close closes the NATS connection.
func (p *SSEPublisher) Close() error {
	if p.nc != nil {
		p.nc.Close()
		p.logger.Info("SSE publisher closed")
	}
	return nil
}

// handleStreamTransfers handles SSE streaming of transfer events.
// GET /api/v1/stream/transfers and /api/v1/stream/transfers/{address}
func handleStreamTransfers(publisher *SSEPublisher, logger *slog.Logger) http.Handler {
	return streamHandler(publisher, logger, "transfers", "transfer")
}

// handleStreamBalances handles SSE streaming of balance events.
// GET /api/v1/stream/balances and /api/v1/stream/balances/{address}
func handleStreamBalances(publisher *SSEPublisher, logger *slog.Logger) http.Handler {
	return streamHandler(publisher, logger, "balances", "balance")
}

// streamHandler streams JetStream messages for one subject prefix to an SSE
// client. An empty {address} path value streams every wallet.
func streamHandler(publisher *SSEPublisher, logger *slog.Logger, subjectPrefix, eventName string) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		address := r.PathValue("address")

		subject := subjectPrefix + ".*"
		walletDesc := "all wallets"
		if address != "" {
			if err := validateAddress(address); err != nil {
				writeError(w, err.Error(), http.StatusBadRequest)
				return
			}
			subject = fmt.Sprintf("%s.%s", subjectPrefix, address)
			walletDesc = address
		}

		w.Header().Set("Content-Type", "text/event-stream")
		w.Header().Set("Cache-Control", "no-cache")
		w.Header().Set("Connection", "keep-alive")
		if flusher, ok := w.(http.Flusher); ok {
			flusher.Flush()
		}

		logger.DebugContext(r.Context(), "SSE client connected",
			"wallet", walletDesc,
			"subject", subject,
			"remote_addr", r.RemoteAddr,
		)
		if publisher.metrics != nil {
			publisher.metrics.RecordSSEConnectionChange(walletDesc, 1)
			defer publisher.metrics.RecordSSEConnectionChange(walletDesc, -1)
		}

		// Ephemeral consumer scoped to this connection.
		cons, err := publisher.js.CreateOrUpdateConsumer(r.Context(), natspkg.StreamName, jetstream.ConsumerConfig{
			FilterSubject: subject,
			AckPolicy:     jetstream.AckExplicitPolicy,
			DeliverPolicy: jetstream.DeliverNewPolicy,
		})
		if err != nil {
			logger.ErrorContext(r.Context(), "failed to create consumer",
				"subject", subject,
				"error", err,
			)
			fmt.Fprintf(w, "event: error\ndata: {\"error\": \"failed to subscribe\"}\n\n")
			return
		}

		msgChan := make(chan jetstream.Msg, 10)
		doneChan := make(chan struct{})

		go func() {
			defer close(doneChan)
			cc, err := cons.Consume(func(msg jetstream.Msg) {
				select {
				case msgChan <- msg:
				case <-r.Context().Done():
				}
			})
			if err != nil {
				logger.ErrorContext(r.Context(), "failed to start consuming messages", "error", err)
				return
			}
			<-r.Context().Done()
			cc.Stop()
		}()

		fmt.Fprintf(w, "event: connected\ndata: {\"wallet\":%q}\n\n", walletDesc)
		if flusher, ok := w.(http.Flusher); ok {
			flusher.Flush()
		}

		keepalive := time.NewTicker(10 * time.Second)
		defer keepalive.Stop()

		for {
			select {
			case <-keepalive.C:
				fmt.Fprintf(w, ": keepalive\n\n")
				if flusher, ok := w.(http.Flusher); ok {
					flusher.Flush()
				}

			case msg := <-msgChan:
				// Re-marshal to validate before forwarding.
				if !json.Valid(msg.Data()) {
					logger.WarnContext(r.Context(), "dropping malformed event", "subject", msg.Subject())
					msg.Ack()
					continue
				}

				fmt.Fprintf(w, "event: %s\ndata: %s\n\n", eventName, string(msg.Data()))
				if flusher, ok := w.(http.Flusher); ok {
					flusher.Flush()
				}
				msg.Ack()

				if publisher.metrics != nil {
					publisher.metrics.RecordSSEEventSent(walletDesc, eventName)
				}

			case <-r.Context().Done():
				logger.DebugContext(r.Context(), "SSE client disconnected",
					"wallet", walletDesc,
					"remote_addr", r.RemoteAddr,
				)
				return

			case <-doneChan:
				return
			}
		}
	})
}
