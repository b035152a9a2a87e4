// Package notify fans out "session complete" events to listeners outside
// the request that recorded them.
package notify

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/nats-io/nats.go"
	"go.uber.org/zap"

	"github.com/hperssn/sages/internal/domain"
)

const SubjectSessionCompleted = "sages.sessions.completed"

type Notifier interface {
	SessionCompleted(ctx context.Context, rec *domain.CompletionRecord) error
	Close()
}

// Nop drops every event.
type Nop struct{}

func (Nop) SessionCompleted(context.Context, *domain.CompletionRecord) error { return nil }

func (Nop) Close() {}

// Func adapts a plain callback, e.g. to refresh an in-process list view.
type Func func(ctx context.Context, rec *domain.CompletionRecord) error

func (f Func) SessionCompleted(ctx context.Context, rec *domain.CompletionRecord) error {
	return f(ctx, rec)
}

func (Func) Close() {}

type NATSNotifier struct {
	nc      *nats.Conn
	subject string
	log     *zap.Logger
}

func NewNATSNotifier(url string, log *zap.Logger) (*NATSNotifier, error) {
	nc, err := nats.Connect(url,
		nats.Name("sages-server"),
		nats.MaxReconnects(-1),
		nats.ReconnectWait(2*time.Second),
		nats.DisconnectErrHandler(func(_ *nats.Conn, err error) {
			if err != nil {
				log.Warn("nats disconnected", zap.Error(err))
			}
		}),
		nats.ReconnectHandler(func(c *nats.Conn) {
			log.Info("nats reconnected", zap.String("url", c.ConnectedUrl()))
		}),
	)
	if err != nil {
		return nil, fmt.Errorf("connect to NATS: %w", err)
	}

	return &NATSNotifier{nc: nc, subject: SubjectSessionCompleted, log: log}, nil
}

func (n *NATSNotifier) SessionCompleted(ctx context.Context, rec *domain.CompletionRecord) error {
	if err := ctx.Err(); err != nil {
		return fmt.Errorf("context cancelled before publish: %w", err)
	}
	data, err := json.Marshal(rec)
	if err != nil {
		return err
	}
	if err := n.nc.Publish(n.subject, data); err != nil {
		return fmt.Errorf("publish %s: %w", n.subject, err)
	}
	return nil
}

func (n *NATSNotifier) Close() {
	if err := n.nc.Drain(); err != nil {
		n.log.Warn("nats drain", zap.Error(err))
	}
}
