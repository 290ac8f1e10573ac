package daemon

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"sync"
	"time"

	"github.com/nexusshell/corectl/pkg/config"
	"github.com/nexusshell/corectl/pkg/events"
	"github.com/nexusshell/corectl/pkg/log"
	"github.com/rs/zerolog"
	"github.com/sony/gobreaker"
)

// webhookDispatcher fans every broker event out to the configured webhook
// policies, one delivery goroutine per policy for each event, each retrying per its
// {max_attempts, interval, exponential_backoff} policy and wrapped in its
// own circuit breaker so a dead subscriber stops being hammered.
type webhookDispatcher struct {
	broker *events.Broker
	logger zerolog.Logger
	client *http.Client

	mu       sync.Mutex
	policies []config.WebhookPolicy
	breakers map[string]*gobreaker.CircuitBreaker

	sub    events.Subscriber
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

func newWebhookDispatcher(policies []config.WebhookPolicy, broker *events.Broker) *webhookDispatcher {
	d := &webhookDispatcher{
		broker:   broker,
		logger:   log.WithComponent("webhook"),
		client:   &http.Client{Timeout: 10 * time.Second},
		breakers: make(map[string]*gobreaker.CircuitBreaker),
	}
	d.setPolicies(policies)
	return d
}

func (d *webhookDispatcher) setPolicies(policies []config.WebhookPolicy) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.policies = policies
	d.breakers = make(map[string]*gobreaker.CircuitBreaker, len(policies))
	for _, p := range policies {
		p := p
		d.breakers[p.URL] = gobreaker.NewCircuitBreaker(gobreaker.Settings{
			Name:        p.URL,
			MaxRequests: 1,
			Interval:    time.Minute,
			Timeout:     30 * time.Second,
			ReadyToTrip: func(counts gobreaker.Counts) bool {
				return counts.ConsecutiveFailures >= 5
			},
			OnStateChange: func(name string, from, to gobreaker.State) {
				d.logger.Warn().Str("webhook", name).Str("from", from.String()).Str("to", to.String()).Msg("circuit breaker state change")
			},
		})
	}
}

// Reconfigure swaps in a new webhook policy set, taking effect for the next
// delivered event; in-flight deliveries finish against the old policy.
func (d *webhookDispatcher) Reconfigure(policies []config.WebhookPolicy) {
	d.setPolicies(policies)
}

// Start subscribes to the broker and begins delivering events.
func (d *webhookDispatcher) Start(ctx context.Context) {
	runCtx, cancel := context.WithCancel(ctx)
	d.cancel = cancel
	d.sub = d.broker.Subscribe()
	d.wg.Add(1)
	go d.run(runCtx)
}

func (d *webhookDispatcher) run(ctx context.Context) {
	defer d.wg.Done()
	for {
		select {
		case <-ctx.Done():
			return
		case evt, ok := <-d.sub:
			if !ok {
				return
			}
			d.mu.Lock()
			policies := append([]config.WebhookPolicy(nil), d.policies...)
			breakers := d.breakers
			d.mu.Unlock()
			for _, p := range policies {
				p := p
				breaker := breakers[p.URL]
				d.wg.Add(1)
				go func() {
					defer d.wg.Done()
					d.deliver(ctx, p, breaker, evt)
				}()
			}
		}
	}
}

func (d *webhookDispatcher) deliver(ctx context.Context, policy config.WebhookPolicy, breaker *gobreaker.CircuitBreaker, evt *events.Event) {
	body, err := json.Marshal(evt)
	if err != nil {
		d.logger.Error().Err(err).Msg("failed to marshal event for webhook delivery")
		return
	}

	attempts := policy.MaxAttempts
	if attempts <= 0 {
		attempts = 1
	}
	interval := policy.Interval
	if interval <= 0 {
		interval = time.Second
	}

	var lastErr error
	for attempt := 1; attempt <= attempts; attempt++ {
		_, lastErr = breaker.Execute(func() (any, error) {
			return nil, d.post(ctx, policy, body)
		})
		if lastErr == nil {
			return
		}
		d.logger.Warn().Err(lastErr).Str("webhook", policy.URL).Int("attempt", attempt).Msg("webhook delivery failed")
		if attempt == attempts {
			break
		}
		wait := interval
		if policy.ExponentialBackoff {
			wait = interval * time.Duration(1<<uint(attempt-1))
		}
		select {
		case <-ctx.Done():
			return
		case <-time.After(wait):
		}
	}
	d.logger.Error().Err(lastErr).Str("webhook", policy.URL).Str("event_id", evt.ID).Msg("webhook delivery exhausted all attempts")
}

func (d *webhookDispatcher) post(ctx context.Context, policy config.WebhookPolicy, body []byte) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, policy.URL, bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	for k, v := range policy.Headers {
		req.Header.Set(k, v)
	}
	resp, err := d.client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 300 {
		return errStatus(resp.StatusCode)
	}
	return nil
}

type errStatus int

func (e errStatus) Error() string {
	return http.StatusText(int(e))
}

// Stop unsubscribes from the broker and waits for in-flight workers to drain.
func (d *webhookDispatcher) Stop() {
	if d.cancel != nil {
		d.cancel()
	}
	if d.sub != nil {
		d.broker.Unsubscribe(d.sub)
	}
	d.wg.Wait()
}
