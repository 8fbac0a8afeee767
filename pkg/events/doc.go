/*
Package events implements the live event channel that pushes new posts and
zone snapshots to connected clients.

# Architecture

	┌──────────── producers ────────────┐
	│  ingest.Service    zones.Refresher│
	└──────────┬─────────────┬──────────┘
	           │ Publish     │ Publish
	           ▼             ▼
	┌───────────────────────────────────┐
	│              Broker               │
	│  mutex-serialized fan-out         │
	│  non-blocking send per subscriber │
	└───┬────────────┬────────────┬─────┘
	    ▼            ▼            ▼
	 [buf 64]     [buf 64]     [buf 64]     one bounded buffer each
	    │            │            │
	 websocket    websocket   kafka mirror

Producers only see the Publisher interface, so they can be tested with a
recording fake and never hold a reference to the broker itself.

# Event types

	new-post      payload: the stored types.Post
	zone-update   payload: the complete []types.Zone that replaced the
	              previous snapshot

Every event has an id, a type, a UTC timestamp and a JSON payload that is
encoded once at publish time and shared by all subscribers.

# Delivery

Subscribers receive every event published while they are subscribed, in
the same order as every other subscriber. There is no replay: a client
that reconnects must re-read the REST snapshots.

Publish never blocks. When a subscriber's buffer is full the configured
OverflowPolicy applies:

	DropOldest  evict the oldest buffered event, enqueue the new one and
	            count it in Subscription.Dropped (default)
	Disconnect  close the subscription; Subscription.Err reports
	            ErrSlowConsumer

# Usage

	broker := events.NewBroker(events.Config{BufferSize: 64})
	defer broker.Stop()

	sub := broker.Subscribe()
	defer broker.Unsubscribe(sub)

	for ev := range sub.C {
		switch ev.Type {
		case events.EventNewPost:
			post, _ := ev.Post()
		case events.EventZoneUpdate:
			zones, _ := ev.Zones()
		}
	}
*/
package events
