package outbox

import (
	"context"
	"encoding/json"

	"github.com/jackc/pgx/v5"
)

// Message is a domain event handed to a repository for insertion in the same
// transaction as the business write.
type Message struct {
	AggregateType string
	AggregateID   *int64
	RoutingKey    string
	Payload       any
}

// InsertMessages inserts a batch of messages into the outbox within tx.
func (r *Repository) InsertMessages(ctx context.Context, tx pgx.Tx, msgs ...Message) error {
	for _, m := range msgs {
		if err := InsertEventInTx(ctx, tx, r, m.AggregateType, m.AggregateID, m.RoutingKey, m.Payload); err != nil {
			return err
		}
	}
	return nil
}

// InsertEventInTx marshals a payload and inserts it into the outbox within tx.
func InsertEventInTx(
	ctx context.Context,
	tx pgx.Tx,
	repo *Repository,
	aggregateType string,
	aggregateID *int64,
	routingKey string,
	payload interface{},
) error {
	payloadJSON, err := json.Marshal(payload)
	if err != nil {
		return err
	}

	event := &Event{
		AggregateType: aggregateType,
		AggregateID:   aggregateID,
		RoutingKey:    routingKey,
		Payload:       payloadJSON,
		Status:        "pending",
	}

	return repo.InsertEvent(ctx, tx, event)
}
