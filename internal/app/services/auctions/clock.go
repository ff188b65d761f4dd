package auctions

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/Clearfield-Labs/asset_layer/internal/app/domain/auction"
	"github.com/Clearfield-Labs/asset_layer/internal/app/metrics"
	"github.com/Clearfield-Labs/asset_layer/internal/app/storage"
	"github.com/Clearfield-Labs/asset_layer/pkg/logger"
	"github.com/robfig/cron/v3"
)

// Clock drives auction status transitions on a fixed schedule: SCHEDULED
// auctions whose start time has passed become ACTIVE, ACTIVE auctions whose
// end time has passed become ENDED. Both transitions are monotonic on wall
// clock time, so a missed tick is caught up by the next one.
type Clock struct {
	store    storage.Store
	events   *Hub
	interval time.Duration
	log      *logger.Logger

	mu      sync.Mutex
	running bool
	cron    *cron.Cron
}

// NewClock creates the auction clock.
func NewClock(store storage.Store, events *Hub, interval time.Duration, log *logger.Logger) *Clock {
	if log == nil {
		log = logger.NewDefault("auction-clock")
	}
	if events == nil {
		events = NewHub()
	}
	return &Clock{
		store:    store,
		events:   events,
		interval: interval,
		log:      log,
	}
}

// Name implements system.Service.
func (c *Clock) Name() string { return "auction-clock" }

// Start begins ticking.
func (c *Clock) Start(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.running {
		return nil
	}

	c.cron = cron.New(cron.WithSeconds())
	spec := fmt.Sprintf("@every %s", c.interval)
	if _, err := c.cron.AddFunc(spec, func() {
		c.Tick(context.Background(), time.Now().UTC())
	}); err != nil {
		return fmt.Errorf("schedule auction clock: %w", err)
	}
	c.cron.Start()
	c.running = true

	c.log.WithField("interval", c.interval.String()).Info("auction clock started")
	return nil
}

// Stop halts ticking and waits for an in-flight tick to finish.
func (c *Clock) Stop(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.running {
		return nil
	}
	c.running = false

	stopCtx := c.cron.Stop()
	select {
	case <-stopCtx.Done():
	case <-ctx.Done():
		return ctx.Err()
	}
	c.log.Info("auction clock stopped")
	return nil
}

// Tick runs one pass of due transitions. Exported so tests can drive the
// clock without waiting for the schedule.
func (c *Clock) Tick(ctx context.Context, now time.Time) {
	activated, err := c.store.ActivateDue(ctx, now)
	if err != nil {
		c.log.WithError(err).Error("activate due auctions")
	}
	for _, a := range activated {
		metrics.RecordAuctionTransition(string(auction.StatusActive))
		c.events.Publish(Event{Type: EventAuctionActivated, AuctionID: a.ID, Payload: a})
		c.log.WithField("auctionId", a.ID).Info("auction activated")
	}

	ended, err := c.store.EndDue(ctx, now)
	if err != nil {
		c.log.WithError(err).Error("end due auctions")
	}
	for _, a := range ended {
		metrics.RecordAuctionTransition(string(auction.StatusEnded))
		c.events.Publish(Event{Type: EventAuctionEnded, AuctionID: a.ID, Payload: a})
		c.log.WithField("auctionId", a.ID).Info("auction ended")
	}
}
