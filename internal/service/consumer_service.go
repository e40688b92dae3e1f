package service

import (
	"context"
	"encoding/json"
	"log"
	"time"

	"insight-assistant-be/internal/dto"
	"insight-assistant-be/internal/entity"
	"insight-assistant-be/internal/repository/unitofwork"
	"insight-assistant-be/pkg/events"

	"github.com/ThreeDotsLabs/watermill/message"
)

// RunEventDelivery pushes run events to connected clients.
// Implemented by the websocket hub.
type RunEventDelivery interface {
	Send(sessionId string, payload []byte)
}

// EventPublisher forwards events to the external bus.
type EventPublisher interface {
	Publish(ctx context.Context, event events.Event) error
}

type IConsumerService interface {
	Consume(ctx context.Context) error
}

type consumerService struct {
	subscriber     message.Subscriber
	topicName      string
	uowFactory     unitofwork.RepositoryFactory
	delivery       RunEventDelivery
	eventPublisher EventPublisher
}

func NewConsumerService(
	subscriber message.Subscriber,
	topicName string,
	uowFactory unitofwork.RepositoryFactory,
	delivery RunEventDelivery,
	eventPublisher EventPublisher,
) IConsumerService {
	return &consumerService{
		subscriber:     subscriber,
		topicName:      topicName,
		uowFactory:     uowFactory,
		delivery:       delivery,
		eventPublisher: eventPublisher,
	}
}

func (cs *consumerService) Consume(ctx context.Context) error {
	messages, err := cs.subscriber.Subscribe(ctx, cs.topicName)
	if err != nil {
		return err
	}

	go func() {
		for msg := range messages {
			cs.processMessage(ctx, msg)
		}
	}()

	return nil
}

func (cs *consumerService) processMessage(ctx context.Context, msg *message.Message) {
	var payload dto.RunEventMessage
	if err := json.Unmarshal(msg.Payload, &payload); err != nil {
		log.Printf("[ERROR] Failed to unmarshal run event: %v", err)
		msg.Ack() // redelivery cannot fix a bad payload
		return
	}

	uow := cs.uowFactory.NewUnitOfWork(ctx)
	if err := uow.RunRecordRepository().Upsert(ctx, toRunRecord(&payload)); err != nil {
		log.Printf("[ERROR] Failed to record run %s: %v", payload.RunId, err)
		msg.Nack()
		return
	}

	if cs.delivery != nil {
		cs.delivery.Send(payload.SessionId, msg.Payload)
	}

	if cs.eventPublisher != nil {
		evt := events.RunEvent{
			SessionID: payload.SessionId,
			OwnerID:   payload.OwnerId,
			RunID:     payload.RunId,
			ThreadID:  payload.ThreadId,
			Kind:      payload.Kind,
			Phase:     payload.Phase,
			Status:    payload.Status,
			Reason:    payload.Reason,
			Polls:     payload.Polls,
			At:        payload.OccurredAt,
		}
		if err := cs.eventPublisher.Publish(ctx, evt); err != nil {
			// the bus is best effort, the ledger already has the step
			log.Printf("[WARN] Failed to forward run event %s: %v", evt.EventType(), err)
		}
	}

	log.Printf("[INFO] Run event processed: %s %s (%s)", payload.RunId, payload.Kind, payload.Phase)
	msg.Ack()
}

func toRunRecord(p *dto.RunEventMessage) *entity.RunRecord {
	now := time.Now().UTC()
	record := &entity.RunRecord{
		SessionId:  p.SessionId,
		OwnerId:    p.OwnerId,
		ThreadId:   p.ThreadId,
		RunId:      p.RunId,
		Phase:      p.Phase,
		Status:     p.Status,
		Polls:      p.Polls,
		RetryCount: p.RetryCount,
		Reason:     p.Reason,
		Metadata: map[string]interface{}{
			"last_event": p.Kind,
			"delay_ms":   p.DelayMs,
		},
		CreatedAt: p.OccurredAt,
		UpdatedAt: &now,
	}
	if p.Kind == "completed" || p.Kind == "failed" {
		finished := p.OccurredAt
		record.FinishedAt = &finished
	}
	return record
}
