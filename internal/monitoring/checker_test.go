package monitoring

import (
	"context"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/sells-group/prospect-cli/internal/model"
	"github.com/sells-group/prospect-cli/internal/store"
)

type countingStore struct {
	store.Store
	lists atomic.Int64
}

func (c *countingStore) ListSessions(ctx context.Context, filter store.SessionFilter) ([]model.BulkSession, error) {
	c.lists.Add(1)
	return nil, nil
}

func TestChecker_SweepsOnceAtStartup(t *testing.T) {
	st := &countingStore{}
	cfg := testMonitoringConfig()
	cfg.CheckIntervalSecs = 3600
	checker := NewChecker(NewCollector(st), NewAlerter(cfg), cfg)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		defer close(done)
		checker.Run(ctx)
	}()

	assert.Eventually(t, func() bool {
		return st.lists.Load() == 1
	}, time.Second, 10*time.Millisecond, "one sweep before the first tick")

	cancel()
	<-done
	assert.EqualValues(t, 1, st.lists.Load())
}
