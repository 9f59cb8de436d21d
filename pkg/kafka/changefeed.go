package kafka

import (
	"context"

	"darna/pkg/realtime"
)

// HubHandler returns a consumer handler that republishes change events from
// the change topic into the local hub.
func HubHandler(hub *realtime.Hub) MessageHandler {
	return func(ctx context.Context, msg Message) error {
		ev, err := msg.ChangeEvent()
		if err != nil {
			return err
		}
		if err := hub.Emit(ctx, ev); err != nil {
			return NewPermanentError("hub rejected event", err)
		}
		return nil
	}
}
