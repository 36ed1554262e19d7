package settings

import (
	"context"
	"sync"
	"time"

	"github.com/sirupsen/logrus"
)

// Incrementer persists one fix.
type Incrementer interface {
	Increment(ctx context.Context, platform string) error
}

// Counter records fixes without blocking the caller.
type Counter struct {
	store Incrementer
	log   logrus.FieldLogger
	wg    sync.WaitGroup
}

// NewCounter creates a Counter writing to store.
func NewCounter(store Incrementer, logger logrus.FieldLogger) *Counter {
	return &Counter{store: store, log: logger.WithField("component", "counter")}
}

// Increment records a fix for platform in the background. Failures are
// logged and otherwise ignored.
func (c *Counter) Increment(platform string) {
	c.wg.Add(1)
	go func() {
		defer c.wg.Done()
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := c.store.Increment(ctx, platform); err != nil {
			c.log.WithError(err).WithField("platform", platform).Warn("Failed to increment fix counter")
		}
	}()
}

// Wait blocks until pending increments finish.
func (c *Counter) Wait() {
	c.wg.Wait()
}
