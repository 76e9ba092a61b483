package metrics

import (
	"strconv"
	"time"

	"github.com/burrowhq/burrow/pkg/storage"
)

// Collector periodically refreshes the gauge metrics from the store
type Collector struct {
	store    storage.Store
	interval time.Duration
	stopCh   chan struct{}
}

// NewCollector creates a metrics collector over the store
func NewCollector(store storage.Store, interval time.Duration) *Collector {
	if interval <= 0 {
		interval = 15 * time.Second
	}
	return &Collector{
		store:    store,
		interval: interval,
		stopCh:   make(chan struct{}),
	}
}

// Start begins collecting metrics
func (c *Collector) Start() {
	ticker := time.NewTicker(c.interval)
	go func() {
		// Collect immediately on start
		c.Collect()

		for {
			select {
			case <-ticker.C:
				c.Collect()
			case <-c.stopCh:
				ticker.Stop()
				return
			}
		}
	}()
}

// Stop stops the collector
func (c *Collector) Stop() {
	close(c.stopCh)
}

// Collect refreshes the queue and cache gauges once
func (c *Collector) Collect() {
	c.collectQueueMetrics()
	c.collectCacheMetrics()
}

func (c *Collector) collectQueueMetrics() {
	counts, err := c.store.CountJobsByStatus()
	if err != nil {
		return
	}
	QueueJobsTotal.Reset()
	for status, count := range counts {
		QueueJobsTotal.WithLabelValues(string(status)).Set(float64(count))
	}
}

func (c *Collector) collectCacheMetrics() {
	counts, err := c.store.CountCacheByKindStatus()
	if err != nil {
		return
	}
	CacheEntriesTotal.Reset()
	for kind, byStatus := range counts {
		for status, count := range byStatus {
			CacheEntriesTotal.WithLabelValues(kind, strconv.Itoa(status)).Set(float64(count))
		}
	}
}
