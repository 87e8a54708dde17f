package worker

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"time"

	"cloud.google.com/go/pubsub/v2"
	"github.com/rs/zerolog"

	"github.com/commutepulse/commutepulse/internal/departure"
)

// NotificationPublisher delivers due pre-alerts by publishing them to a
// Pub/Sub topic consumed by the push-notification sender.
type NotificationPublisher struct {
	client    *pubsub.Client
	publisher *pubsub.Publisher
	logger    zerolog.Logger
}

// NotificationPublisherConfig holds configuration for the publisher.
type NotificationPublisherConfig struct {
	ProjectID string
	TopicName string
	Logger    zerolog.Logger
}

// alertMessage is the wire form of a published pre-alert.
type alertMessage struct {
	UserID             string    `json:"user_id"`
	SettingID          string    `json:"setting_id"`
	SnapshotID         string    `json:"snapshot_id"`
	RouteID            string    `json:"route_id"`
	OffsetMinutes      int       `json:"offset_minutes"`
	OptimalDepartureAt time.Time `json:"optimal_departure_at"`
}

// NewNotificationPublisher creates a new alert publisher.
func NewNotificationPublisher(ctx context.Context, cfg NotificationPublisherConfig) (*NotificationPublisher, error) {
	client, err := pubsub.NewClient(ctx, cfg.ProjectID)
	if err != nil {
		return nil, fmt.Errorf("creating pubsub client: %w", err)
	}

	return &NotificationPublisher{
		client:    client,
		publisher: client.Publisher(cfg.TopicName),
		logger:    cfg.Logger,
	}, nil
}

var _ departure.Dispatcher = (*NotificationPublisher)(nil)

// Notify publishes one due pre-alert. The publish is confirmed before
// returning so an undelivered alert stays unmarked and is retried on the
// next sweep.
func (p *NotificationPublisher) Notify(ctx context.Context, alert departure.Alert) error {
	data, err := json.Marshal(alertMessage{
		UserID:             alert.UserID,
		SettingID:          alert.SettingID,
		SnapshotID:         alert.SnapshotID,
		RouteID:            alert.RouteID,
		OffsetMinutes:      alert.OffsetMinutes,
		OptimalDepartureAt: alert.OptimalDepartureAt,
	})
	if err != nil {
		return fmt.Errorf("encoding alert: %w", err)
	}

	result := p.publisher.Publish(ctx, &pubsub.Message{
		Data: data,
		Attributes: map[string]string{
			"user_id":        alert.UserID,
			"offset_minutes": strconv.Itoa(alert.OffsetMinutes),
		},
	})

	id, err := result.Get(ctx)
	if err != nil {
		return fmt.Errorf("publishing alert: %w", err)
	}

	p.logger.Debug().
		Str("message_id", id).
		Str("snapshot_id", alert.SnapshotID).
		Int("offset_minutes", alert.OffsetMinutes).
		Msg("pre-alert published")

	return nil
}

// Close flushes pending publishes and closes the client.
func (p *NotificationPublisher) Close() error {
	p.publisher.Stop()
	return p.client.Close()
}
