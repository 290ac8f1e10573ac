/*
Package events provides the in-memory publish/subscribe broker used to fan
job, pipeline, container, node and image lifecycle events out to
subscribers: the daemon's websocket /events stream, the webhook dispatcher,
and the metrics collector.

Publish is non-blocking and delivery is best-effort: a subscriber whose
buffered channel (50 events) is full silently misses the event rather than
stalling the publisher, trading guaranteed delivery for throughput. This is
acceptable for observability consumers; anything requiring an at-least-once
guarantee (the webhook dispatcher's retry policy, the distributed
dispatcher's message acking) is layered above the broker, not inside it.

	broker := events.NewBroker()
	broker.Start()
	defer broker.Stop()

	sub := broker.Subscribe()
	defer broker.Unsubscribe(sub)

	go func() {
		for event := range sub {
			// forward to websocket client, webhook queue, etc.
		}
	}()

	broker.Publish(&events.Event{
		Type:    events.EventJobCompleted,
		Message: "job finished",
		Metadata: map[string]string{"job_id": jobID},
	})
*/
package events
