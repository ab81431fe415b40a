package worker

import (
	"encoding/json"

	"roadassist/internal/events"
	"roadassist/internal/metrics"
)

// SubscribeTransitionMetrics counts committed transitions by target status.
func SubscribeTransitionMetrics(bus *events.EventBus) {
	bus.Subscribe(func(event *events.Event) error {
		var payload events.RequestEventPayload
		if err := json.Unmarshal(event.Payload, &payload); err != nil {
			return err
		}
		if payload.Status != "" {
			metrics.IncTransition(payload.Status)
		}
		return nil
	}, events.RequestEvents...)
}
