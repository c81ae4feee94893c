package events

import (
	"context"
	"time"

	"github.com/goccy/go-json"
	"github.com/google/uuid"
	"github.com/segmentio/kafka-go"

	"github.com/example/ride-negotiation/internal/models"
)

const writeTimeout = 2 * time.Second

// RideEvent is published after every committed ride transition.
type RideEvent struct {
	RideID          uuid.UUID         `json:"ride_id"`
	Status          models.RideStatus `json:"status"`
	PassengerID     uuid.UUID         `json:"passenger_id"`
	DriverID        *uuid.UUID        `json:"driver_id,omitempty"`
	ActorID         uuid.UUID         `json:"actor_id"`
	FinalPrice      *float64          `json:"final_price,omitempty"`
	CancellationFee float64           `json:"cancellation_fee,omitempty"`
	OccurredAt      time.Time         `json:"occurred_at"`
}

func NewRideEvent(r models.Ride, actor uuid.UUID) RideEvent {
	return RideEvent{
		RideID:          r.ID,
		Status:          r.Status,
		PassengerID:     r.PassengerID,
		DriverID:        r.DriverID,
		ActorID:         actor,
		FinalPrice:      r.FinalPrice,
		CancellationFee: r.CancellationFee,
		OccurredAt:      r.UpdatedAt,
	}
}

// KafkaPublisher writes ride events and driver locations. Messages are keyed
// by ride or driver id so each entity stays ordered within a partition.
type KafkaPublisher struct {
	rides     *kafka.Writer
	locations *kafka.Writer
}

func NewKafkaPublisher(brokers []string, rideTopic, locationTopic string) *KafkaPublisher {
	newWriter := func(topic string) *kafka.Writer {
		return &kafka.Writer{
			Addr:         kafka.TCP(brokers...),
			Topic:        topic,
			Balancer:     &kafka.Hash{},
			RequiredAcks: kafka.RequireOne,
		}
	}
	return &KafkaPublisher{rides: newWriter(rideTopic), locations: newWriter(locationTopic)}
}

func (k *KafkaPublisher) PublishRideEvent(ctx context.Context, e RideEvent) error {
	msg, err := rideMessage(e)
	if err != nil {
		return err
	}
	ctx, cancel := context.WithTimeout(ctx, writeTimeout)
	defer cancel()
	return k.rides.WriteMessages(ctx, msg)
}

func (k *KafkaPublisher) PublishLocation(ctx context.Context, d models.DriverLocation) error {
	msg, err := locationMessage(d)
	if err != nil {
		return err
	}
	ctx, cancel := context.WithTimeout(ctx, writeTimeout)
	defer cancel()
	return k.locations.WriteMessages(ctx, msg)
}

func (k *KafkaPublisher) Close() error {
	err := k.rides.Close()
	if lerr := k.locations.Close(); err == nil {
		err = lerr
	}
	return err
}

func rideMessage(e RideEvent) (kafka.Message, error) {
	b, err := json.Marshal(e)
	if err != nil {
		return kafka.Message{}, err
	}
	return kafka.Message{
		Key:     []byte(e.RideID.String()),
		Value:   b,
		Headers: []kafka.Header{{Key: "status", Value: []byte(e.Status)}},
	}, nil
}

func locationMessage(d models.DriverLocation) (kafka.Message, error) {
	b, err := json.Marshal(d)
	if err != nil {
		return kafka.Message{}, err
	}
	return kafka.Message{Key: []byte(d.DriverID), Value: b}, nil
}
