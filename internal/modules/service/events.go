package service

import (
	"context"
	"time"

	"go.uber.org/zap"
)

const (
	EventCommitted = "floorplan.committed"
	EventDeleted   = "floorplan.deleted"
	EventExported  = "floorplan.exported"
)

// EventPublisher is what the services need from the queue layer. A nil
// publisher (no broker configured) disables events.
type EventPublisher interface {
	PublishJSON(ctx context.Context, exchangeName string, routingKey string, body any) error
}

type FloorPlanEvent struct {
	Type        string    `json:"type"`
	FloorPlanID string    `json:"floor_plan_id"`
	ProjectID   string    `json:"project_id,omitempty"`
	Keyword     string    `json:"keyword,omitempty"`
	Path        string    `json:"path,omitempty"`
	At          time.Time `json:"at"`
}

// publishEvent is best effort; a broker outage never fails the request.
func publishEvent(ctx context.Context, pub EventPublisher, log *zap.Logger, exchange string, ev FloorPlanEvent) {
	if pub == nil {
		return
	}
	ev.At = time.Now().UTC()
	if err := pub.PublishJSON(ctx, exchange, ev.Type, ev); err != nil {
		log.Warn("publish domain event failed",
			zap.String("event", ev.Type),
			zap.String("floor_plan_id", ev.FloorPlanID),
			zap.Error(err))
	}
}
