package daemon

import (
	"context"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/nexusshell/corectl/pkg/config"
	"github.com/nexusshell/corectl/pkg/events"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestWebhookDispatcherDeliversEvent(t *testing.T) {
	var received int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&received, 1)
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	broker := events.NewBroker()
	broker.Start()
	defer broker.Stop()

	d := newWebhookDispatcher([]config.WebhookPolicy{{URL: srv.URL, MaxAttempts: 1, Interval: time.Millisecond}}, broker)
	ctx, cancel := context.WithCancel(context.Background())
	d.Start(ctx)
	defer func() {
		cancel()
		d.Stop()
	}()

	broker.Publish(&events.Event{ID: "e1", Type: events.EventDaemonReady, Message: "ready"})

	require.Eventually(t, func() bool {
		return atomic.LoadInt32(&received) == 1
	}, time.Second, 5*time.Millisecond)
}

func TestWebhookDispatcherRetriesOnFailure(t *testing.T) {
	var attempts int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		n := atomic.AddInt32(&attempts, 1)
		if n < 3 {
			w.WriteHeader(http.StatusInternalServerError)
			return
		}
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	broker := events.NewBroker()
	broker.Start()
	defer broker.Stop()

	d := newWebhookDispatcher([]config.WebhookPolicy{{URL: srv.URL, MaxAttempts: 5, Interval: time.Millisecond}}, broker)
	ctx, cancel := context.WithCancel(context.Background())
	d.Start(ctx)
	defer func() {
		cancel()
		d.Stop()
	}()

	broker.Publish(&events.Event{ID: "e1", Type: events.EventDaemonReady, Message: "ready"})

	require.Eventually(t, func() bool {
		return atomic.LoadInt32(&attempts) >= 3
	}, time.Second, 5*time.Millisecond)
}

func TestReconfigureReplacesPolicies(t *testing.T) {
	broker := events.NewBroker()
	d := newWebhookDispatcher([]config.WebhookPolicy{{URL: "http://a"}}, broker)
	d.Reconfigure([]config.WebhookPolicy{{URL: "http://b"}, {URL: "http://c"}})

	assert.Len(t, d.policies, 2)
	assert.Contains(t, d.breakers, "http://b")
	assert.Contains(t, d.breakers, "http://c")
}
