package notify

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/nats-io/nats.go"

	"github.com/identity-guardian/guardian/internal/models"
)

// NATSConfig holds NATS connection settings for the notifier.
type NATSConfig struct {
	URL           string
	Name          string
	MaxReconnects int
	ReconnectWait time.Duration
	Timeout       time.Duration
}

// DefaultNATSConfig returns a Config with sensible defaults.
func DefaultNATSConfig() NATSConfig {
	return NATSConfig{
		URL:           nats.DefaultURL,
		Name:          "guardian-notifier",
		MaxReconnects: -1,
		ReconnectWait: 2 * time.Second,
		Timeout:       5 * time.Second,
	}
}

// NATSNotifier publishes case notifications to the message bus. Chat and
// ticketing bridges subscribe downstream.
type NATSNotifier struct {
	conn *nats.Conn
}

// NewNATSNotifier connects to NATS with the given configuration.
func NewNATSNotifier(cfg NATSConfig) (*NATSNotifier, error) {
	conn, err := nats.Connect(cfg.URL,
		nats.Name(cfg.Name),
		nats.MaxReconnects(cfg.MaxReconnects),
		nats.ReconnectWait(cfg.ReconnectWait),
		nats.Timeout(cfg.Timeout),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to NATS: %w", err)
	}
	return &NATSNotifier{conn: conn}, nil
}

// PostInvestigationCard publishes the case on the blocked subject.
func (n *NATSNotifier) PostInvestigationCard(ctx context.Context, c *models.RemediationCase) error {
	return n.publish(ctx, SubjectCaseBlocked, c)
}

// PostRestorationNotice publishes the case on the restored subject.
func (n *NATSNotifier) PostRestorationNotice(ctx context.Context, c *models.RemediationCase) error {
	return n.publish(ctx, SubjectCaseRestored, c)
}

func (n *NATSNotifier) publish(ctx context.Context, subject string, c *models.RemediationCase) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	data, err := json.Marshal(c)
	if err != nil {
		return fmt.Errorf("failed to marshal case: %w", err)
	}
	if err := n.conn.Publish(subject, data); err != nil {
		return fmt.Errorf("failed to publish %s: %w", subject, err)
	}
	return nil
}

// Close drains and closes the NATS connection.
func (n *NATSNotifier) Close() {
	if n.conn != nil {
		n.conn.Close()
	}
}
