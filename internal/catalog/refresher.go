package catalog

import (
	"context"
	"log/slog"
	"sync/atomic"
	"time"
)

// Holder serves the most recently loaded Catalogue. Reads never block a reload.
type Holder struct {
	current atomic.Pointer[Catalogue]
}

// NewHolder creates a Holder serving c.
func NewHolder(c *Catalogue) *Holder {
	h := &Holder{}
	h.current.Store(c)
	return h
}

// Current returns the active snapshot.
func (h *Holder) Current() *Catalogue {
	return h.current.Load()
}

// Replace swaps in a new snapshot.
func (h *Holder) Replace(c *Catalogue) {
	h.current.Store(c)
}

func (h *Holder) Dataset(id string) (*Dataset, bool) { return h.Current().Dataset(id) }
func (h *Holder) Agent(id string) (*Agent, bool)     { return h.Current().Agent(id) }
func (h *Holder) Datasets() []Dataset                { return h.Current().Datasets() }
func (h *Holder) Agents() []Agent                    { return h.Current().Agents() }

// LoaderFunc produces a fresh catalogue snapshot.
type LoaderFunc func() (*Catalogue, error)

// Refresher periodically reloads the catalogue into a Holder.
type Refresher struct {
	holder   *Holder
	load     LoaderFunc
	interval time.Duration
}

// NewRefresher creates a new Refresher.
func NewRefresher(holder *Holder, load LoaderFunc, interval time.Duration) *Refresher {
	return &Refresher{
		holder:   holder,
		load:     load,
		interval: interval,
	}
}

// Start begins the refresh loop. It blocks until ctx is cancelled.
func (r *Refresher) Start(ctx context.Context) {
	slog.Info("catalogue refresher started", "interval", r.interval.String())
	ticker := time.NewTicker(r.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			slog.Info("catalogue refresher stopped")
			return
		case <-ticker.C:
			r.Refresh()
		}
	}
}

// Refresh reloads once. A failed load keeps the previous snapshot.
func (r *Refresher) Refresh() bool {
	c, err := r.load()
	if err != nil {
		slog.Error("catalogue refresher: failed to reload catalogue", "error", err)
		return false
	}

	r.holder.Replace(c)
	slog.Debug("catalogue refresher: catalogue reloaded",
		"datasets", len(c.datasets),
		"agents", len(c.agents),
	)
	return true
}
