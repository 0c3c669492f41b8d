package docstore

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/nats-io/nats.go"

	"github.com/stonewallbooks/storefront/internal/id"
)

// DefaultChangeSubject is the NATS subject carrying document change notices.
const DefaultChangeSubject = "storefront.documents.changed"

// Notifier carries change notices between processes sharing one backend.
type Notifier interface {
	Publish(ctx context.Context, path Path, version uint64) error
	// Listen calls fn for every notice published by another process.
	Listen(fn func(Path)) (stop func(), err error)
	Close() error
}

type changeNotice struct {
	Path    Path   `json:"path"`
	Origin  string `json:"origin"`
	Version uint64 `json:"version"`
}

// NATSNotifier implements Notifier over a NATS core subject.
type NATSNotifier struct {
	conn    *nats.Conn
	logger  *slog.Logger
	subject string
	origin  string
}

// ConnectNATS dials url and returns a notifier publishing on subject, or on
// DefaultChangeSubject when subject is empty.
func ConnectNATS(url, subject string, logger *slog.Logger) (*NATSNotifier, error) {
	if subject == "" {
		subject = DefaultChangeSubject
	}
	conn, err := nats.Connect(url,
		nats.Name("storefront"),
		nats.MaxReconnects(-1),
		nats.ReconnectWait(2*time.Second),
	)
	if err != nil {
		return nil, fmt.Errorf("connect to NATS: %w", err)
	}
	return NewNATSNotifier(conn, subject, logger), nil
}

// NewNATSNotifier wraps an existing connection.
func NewNATSNotifier(conn *nats.Conn, subject string, logger *slog.Logger) *NATSNotifier {
	if logger == nil {
		logger = slog.Default()
	}
	return &NATSNotifier{
		conn:    conn,
		logger:  logger,
		subject: subject,
		origin:  id.MustGenerate("node"),
	}
}

// Publish implements Notifier.
func (n *NATSNotifier) Publish(ctx context.Context, path Path, version uint64) error {
	if err := ctx.Err(); err != nil {
		return fmt.Errorf("context cancelled before publish: %w", err)
	}
	data, err := json.Marshal(changeNotice{Path: path, Version: version, Origin: n.origin})
	if err != nil {
		return fmt.Errorf("marshal change notice: %w", err)
	}
	return n.conn.Publish(n.subject, data)
}

// Listen implements Notifier. Notices from this process are ignored.
func (n *NATSNotifier) Listen(fn func(Path)) (func(), error) {
	sub, err := n.conn.Subscribe(n.subject, func(msg *nats.Msg) {
		var notice changeNotice
		if err := json.Unmarshal(msg.Data, &notice); err != nil {
			n.logger.Warn("Dropping malformed change notice", "error", err)
			return
		}
		if notice.Origin == n.origin {
			return
		}
		fn(notice.Path)
	})
	if err != nil {
		return nil, fmt.Errorf("subscribe %s: %w", n.subject, err)
	}
	return func() {
		if err := sub.Unsubscribe(); err != nil {
			n.logger.Debug("Unsubscribe change notices", "error", err)
		}
	}, nil
}

// Close drains the connection.
func (n *NATSNotifier) Close() error {
	return n.conn.Drain()
}
