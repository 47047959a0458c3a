package events

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/ternarybob/arbor"
	"github.com/ternarybob/lectern/internal/models"
)

func newTestService() *Service {
	return NewService(arbor.NewLogger())
}

func TestPublishSyncDeliversToAllSubscribers(t *testing.T) {
	svc := newTestService()
	defer svc.Close()

	var count int32
	for i := 0; i < 3; i++ {
		svc.Subscribe(models.EventJobProgress, func(ctx context.Context, e models.Event) {
			atomic.AddInt32(&count, 1)
		})
	}

	svc.PublishSync(context.Background(), models.Event{Type: models.EventJobProgress})
	assert.Equal(t, int32(3), atomic.LoadInt32(&count))
}

func TestUnsubscribeStopsDelivery(t *testing.T) {
	svc := newTestService()
	defer svc.Close()

	var count int32
	sub := svc.Subscribe(models.EventLibraryChange, func(ctx context.Context, e models.Event) {
		atomic.AddInt32(&count, 1)
	})

	svc.PublishSync(context.Background(), models.Event{Type: models.EventLibraryChange})
	sub.Unsubscribe()
	svc.PublishSync(context.Background(), models.Event{Type: models.EventLibraryChange})

	assert.Equal(t, int32(1), atomic.LoadInt32(&count))
}

func TestUnsubscribeIsIdempotent(t *testing.T) {
	svc := newTestService()
	defer svc.Close()

	sub := svc.Subscribe(models.EventLibraryChange, func(ctx context.Context, e models.Event) {})
	sub.Unsubscribe()
	assert.NotPanics(t, func() { sub.Unsubscribe() })
}

func TestPublishIsAsync(t *testing.T) {
	svc := newTestService()
	defer svc.Close()

	var wg sync.WaitGroup
	wg.Add(1)
	release := make(chan struct{})
	svc.Subscribe(models.EventJobStatusChange, func(ctx context.Context, e models.Event) {
		<-release
		wg.Done()
	})

	done := make(chan struct{})
	go func() {
		svc.Publish(context.Background(), models.Event{Type: models.EventJobStatusChange})
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("Publish blocked on a slow handler")
	}
	close(release)
	wg.Wait()
}

func TestPublishAfterCloseIsDropped(t *testing.T) {
	svc := newTestService()

	var count int32
	svc.Subscribe(models.EventJobProgress, func(ctx context.Context, e models.Event) {
		atomic.AddInt32(&count, 1)
	})
	assert.NoError(t, svc.Close())

	svc.PublishSync(context.Background(), models.Event{Type: models.EventJobProgress})
	assert.Equal(t, int32(0), atomic.LoadInt32(&count))
}
