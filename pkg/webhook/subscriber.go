package webhook

import (
	"context"
	"encoding/json"
	"log/slog"

	"github.com/pitabwire/frame/workerpool"
	"github.com/pitabwire/util"

	"github.com/orderdesk/orderdesk/pkg/events"
)

// Subscriber implements queue.SubscribeWorker to route bus events to the
// endpoints subscribed to their type.
type Subscriber struct {
	Repo      *Repository
	Deliverer *Deliverer
	Pool      workerpool.WorkerPool
}

// Handle is called by frame's pub/sub for each event message. Messages
// that cannot belong to any subscription are acked and dropped rather
// than returned as errors, so a foreign producer on the bus cannot put
// the subscription into a redelivery loop.
func (ws *Subscriber) Handle(ctx context.Context, _ map[string]string, message []byte) error {
	var env events.Envelope
	if err := json.Unmarshal(message, &env); err != nil {
		util.Log(ctx).WithError(err).Error("webhook subscriber: unmarshal envelope")
		return nil
	}
	if !env.Type.Subscribable() {
		slog.WarnContext(ctx, "webhook subscriber: dropping unknown event type",
			slog.String("event_type", string(env.Type)), slog.String("event_id", env.ID))
		return nil
	}

	endpoints, err := ws.Repo.ListByEventType(ctx, env.Type)
	if err != nil {
		util.Log(ctx).WithError(err).Error("webhook subscriber: list endpoints")
		return err
	}
	if len(endpoints) == 0 {
		return nil
	}

	dispatched := 0
	for _, wh := range endpoints {
		wh := wh
		env := env
		if ws.Pool != nil {
			if err := ws.Pool.Submit(ctx, func() {
				ws.Deliverer.Deliver(ctx, wh, env)
			}); err != nil {
				slog.WarnContext(ctx, "webhook pool full", slog.String("webhook_id", wh.ID))
				continue
			}
		} else {
			go ws.Deliverer.Deliver(ctx, wh, env)
		}
		dispatched++
	}

	slog.DebugContext(ctx, "webhook event dispatched",
		slog.String("event_type", string(env.Type)),
		slog.String("event_id", env.ID),
		slog.Int("endpoints", dispatched))
	return nil
}
