package jobs

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"cloud.google.com/go/pubsub"

	"github.com/divestreams/pos/internal/services"
)

const eventTypeSaleCompleted = "pos.sale.completed"

// PubSubSalePublisher announces completed sales on a Pub/Sub topic for downstream
// consumers such as accounting exports and loyalty.
type PubSubSalePublisher struct {
	topic   *pubsub.Topic
	marshal func(any) ([]byte, error)
}

func NewPubSubSalePublisher(topic *pubsub.Topic) (*PubSubSalePublisher, error) {
	if topic == nil {
		return nil, errors.New("pubsub sale publisher: topic is required")
	}
	return &PubSubSalePublisher{topic: topic, marshal: json.Marshal}, nil
}

// PublishSaleCompleted blocks until the broker acknowledges the message and returns its id.
func (p *PubSubSalePublisher) PublishSaleCompleted(ctx context.Context, message services.SaleCompletedMessage) (string, error) {
	data, err := p.marshal(message)
	if err != nil {
		return "", fmt.Errorf("marshal sale event: %w", err)
	}

	attrs := map[string]string{"eventType": eventTypeSaleCompleted}
	setAttr(attrs, "saleId", message.SaleID)
	setAttr(attrs, "terminalId", message.TerminalID)
	setAttr(attrs, "currency", message.Currency)

	result := p.topic.Publish(ctx, &pubsub.Message{Data: data, Attributes: attrs})
	id, err := result.Get(ctx)
	if err != nil {
		return "", fmt.Errorf("publish sale event: %w", err)
	}
	return id, nil
}

// Stop flushes pending messages.
func (p *PubSubSalePublisher) Stop() {
	p.topic.Stop()
}

func setAttr(attrs map[string]string, key, value string) {
	if v := strings.TrimSpace(value); v != "" {
		attrs[key] = v
	}
}
