package notify

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/example/ride-negotiation/internal/apperr"
	"github.com/example/ride-negotiation/internal/logging"
	"github.com/example/ride-negotiation/internal/models"
	"github.com/example/ride-negotiation/internal/observability"
	"github.com/example/ride-negotiation/internal/storage"
)

const (
	pushTimeout      = 5 * time.Second
	DefaultListLimit = 50
	MaxListLimit     = 200
)

// Pusher delivers a stored notification over one channel.
type Pusher interface {
	Name() string
	Push(ctx context.Context, n models.Notification) error
}

// ErrNoSession means the user has no live connection on a channel. It is not
// counted as a failure.
var ErrNoSession = errors.New("no live session")

// Dispatcher persists notifications and fans them out to pushers. The stored
// row is the source of truth; push delivery is best effort.
type Dispatcher struct {
	Store   storage.NotificationStore
	Pushers []Pusher
	Logger  *slog.Logger

	wg  sync.WaitGroup
	now func() time.Time
}

func NewDispatcher(store storage.NotificationStore, logger *slog.Logger, pushers ...Pusher) *Dispatcher {
	return &Dispatcher{Store: store, Pushers: pushers, Logger: logger, now: time.Now}
}

func (d *Dispatcher) Notify(ctx context.Context, n models.Notification) (models.Notification, error) {
	if n.ID == uuid.Nil {
		n.ID = uuid.New()
	}
	if n.CreatedAt.IsZero() {
		n.CreatedAt = d.now().UTC()
	}
	if err := d.Store.CreateNotification(ctx, &n); err != nil {
		return models.Notification{}, apperr.Store("create notification", err)
	}
	log := logging.FromContext(ctx, d.Logger)
	pushCtx := context.WithoutCancel(ctx)
	for _, p := range d.Pushers {
		d.wg.Add(1)
		go func(p Pusher) {
			defer d.wg.Done()
			ctx, cancel := context.WithTimeout(pushCtx, pushTimeout)
			defer cancel()
			if err := p.Push(ctx, n); err != nil && !errors.Is(err, ErrNoSession) {
				observability.PushFailuresTotal.WithLabelValues(p.Name()).Inc()
				log.Warn("notification push failed", "channel", p.Name(), "user_id", n.UserID, "error", err)
			}
		}(p)
	}
	return n, nil
}

// Wait blocks until in-flight pushes finish.
func (d *Dispatcher) Wait() { d.wg.Wait() }

func (d *Dispatcher) List(ctx context.Context, userID uuid.UUID, unreadOnly bool, limit int) ([]models.Notification, error) {
	if limit <= 0 {
		limit = DefaultListLimit
	}
	if limit > MaxListLimit {
		limit = MaxListLimit
	}
	out, err := d.Store.ListNotifications(ctx, userID, unreadOnly, limit)
	if err != nil {
		return nil, apperr.Store("list notifications", err)
	}
	return out, nil
}

func (d *Dispatcher) MarkRead(ctx context.Context, userID, id uuid.UUID) error {
	err := d.Store.MarkNotificationRead(ctx, userID, id)
	if errors.Is(err, storage.ErrNotFound) {
		return apperr.New(apperr.NotFound, "notification not found")
	}
	if err != nil {
		return apperr.Store("mark notification read", err)
	}
	return nil
}
