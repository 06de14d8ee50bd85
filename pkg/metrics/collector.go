package metrics

import (
	"time"

	"github.com/cuemby/shardmail/pkg/cluster"
	"github.com/cuemby/shardmail/pkg/events"
)

// Collector periodically samples a Coordinator's election/replication
// state into the package's gauges, and separately drains its event stream
// to update the counters that are naturally event-driven (elections,
// step-downs).
type Collector struct {
	coord  *cluster.Coordinator
	sub    events.Subscriber
	stopCh chan struct{}
}

// NewCollector creates a new metrics collector bound to coord.
func NewCollector(coord *cluster.Coordinator) *Collector {
	return &Collector{
		coord:  coord,
		stopCh: make(chan struct{}),
	}
}

// Start begins periodic sampling and event-driven counting.
func (c *Collector) Start() {
	c.sub = c.coord.Subscribe()
	go c.consumeEvents(c.sub)

	ticker := time.NewTicker(15 * time.Second)
	go func() {
		c.collect()
		for {
			select {
			case <-ticker.C:
				c.collect()
			case <-c.stopCh:
				ticker.Stop()
				return
			}
		}
	}()
}

// Stop stops the collector.
func (c *Collector) Stop() {
	close(c.stopCh)
	if c.sub != nil {
		c.coord.Unsubscribe(c.sub)
	}
}

func (c *Collector) consumeEvents(sub events.Subscriber) {
	for {
		select {
		case ev, ok := <-sub:
			if !ok {
				return
			}
			switch ev.Type {
			case events.EventStepDown:
				StepDownsTotal.Inc()
				ElectionsTotal.WithLabelValues("lost").Inc()
			}
		case <-c.stopCh:
			return
		}
	}
}

func (c *Collector) collect() {
	isLeader, term, online, offline := c.coord.MetricsSnapshot()

	if isLeader {
		RaftIsLeader.Set(1)
	} else {
		RaftIsLeader.Set(0)
	}
	RaftTerm.Set(float64(term))
	RaftPeersTotal.WithLabelValues("true").Set(float64(online))
	RaftPeersTotal.WithLabelValues("false").Set(float64(offline))
}
