package broadcast

import (
	"context"
	"fmt"
	"time"

	"github.com/chrisdamba/urbansim/internal/models"
	"github.com/chrisdamba/urbansim/internal/observability"
	"github.com/chrisdamba/urbansim/internal/output"
	"github.com/robfig/cron/v3"
	log "github.com/sirupsen/logrus"
)

// SnapshotSource is the part of the simulator a tick reads from.
type SnapshotSource interface {
	RegenerateTrafficData(hour int, reduction float64) []models.TrafficSample
	PollutionData() []models.PollutionMarker
}

// Broadcaster regenerates the current hour's traffic on a fixed interval and
// pushes it, with the pollution markers, to every subscriber.
type Broadcaster struct {
	source   SnapshotSource
	hub      *Hub
	dest     output.Destination
	metrics  *observability.Metrics
	interval time.Duration
	now      func() time.Time
	cron     *cron.Cron
}

type BroadcasterOption func(*Broadcaster)

func WithClock(now func() time.Time) BroadcasterOption {
	return func(b *Broadcaster) {
		b.now = now
	}
}

// WithArchive also writes every tick's snapshot to dest.
func WithArchive(dest output.Destination) BroadcasterOption {
	return func(b *Broadcaster) {
		b.dest = dest
	}
}

func NewBroadcaster(source SnapshotSource, hub *Hub, metrics *observability.Metrics, interval time.Duration, opts ...BroadcasterOption) *Broadcaster {
	b := &Broadcaster{
		source:   source,
		hub:      hub,
		metrics:  metrics,
		interval: interval,
		now:      time.Now,
	}
	for _, opt := range opts {
		opt(b)
	}
	return b
}

// Tick runs one generate, broadcast, archive cycle.
func (b *Broadcaster) Tick() {
	now := b.now()
	traffic := b.source.RegenerateTrafficData(now.Hour(), 0)
	pollution := b.source.PollutionData()

	delivered, failed, err := b.hub.BroadcastJSON(models.NewLiveUpdate(traffic, pollution, now))
	if err != nil {
		log.WithError(err).Error("encoding live update")
		return
	}
	b.metrics.BroadcastSent(delivered, failed)
	log.WithFields(log.Fields{
		"hour":      now.Hour(),
		"delivered": delivered,
		"failed":    failed,
	}).Debug("live update broadcast")

	if b.dest == nil {
		return
	}
	if err := output.WriteSnapshot(b.dest, traffic, 0, pollution); err != nil {
		b.metrics.ArchiveFailed()
		log.WithError(err).Error("archiving live update")
	}
}

// Start schedules Tick every interval. A tick still running when the next is
// due causes that one to be skipped.
func (b *Broadcaster) Start() error {
	logger := cron.PrintfLogger(log.StandardLogger())
	b.cron = cron.New(
		cron.WithLogger(logger),
		cron.WithChain(cron.Recover(logger), cron.SkipIfStillRunning(logger)),
	)
	if _, err := b.cron.AddFunc(fmt.Sprintf("@every %s", b.interval), b.Tick); err != nil {
		return fmt.Errorf("scheduling broadcast: %w", err)
	}
	b.cron.Start()
	log.WithField("interval", b.interval).Info("broadcast loop started")
	return nil
}

// Stop halts the schedule and waits for a running tick, or ctx, to finish.
func (b *Broadcaster) Stop(ctx context.Context) {
	if b.cron == nil {
		return
	}
	select {
	case <-b.cron.Stop().Done():
	case <-ctx.Done():
	}
}
