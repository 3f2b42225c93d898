package queue

import (
	"context"
	"encoding/json"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"
	"github.com/sirupsen/logrus"
)

// RabbitPublisher publishes meal events to RabbitMQ, one durable queue per
// event type. It opens a fresh connection for every publish.
type RabbitPublisher struct {
	url string
	log *logrus.Logger
}

// NewRabbitPublisher returns a publisher for the broker at url.
func NewRabbitPublisher(url string, log *logrus.Logger) *RabbitPublisher {
	if log == nil {
		log = logrus.StandardLogger()
	}
	return &RabbitPublisher{url: url, log: log}
}

// Publish sends ev to the queue named after ev.Type. Any error is logged and
// returned so the caller can choose to ignore it. Messages are persistent.
func (p *RabbitPublisher) Publish(ctx context.Context, ev MealEvent) error {
	entry := p.log.WithFields(logrus.Fields{"queue": ev.Type, "meal_id": ev.MealID})

	conn, err := amqp.Dial(p.url)
	if err != nil {
		entry.WithError(err).Warn("rabbitmq: dial failed")
		return err
	}
	defer func() { _ = conn.Close() }()

	ch, err := conn.Channel()
	if err != nil {
		entry.WithError(err).Warn("rabbitmq: channel open failed")
		return err
	}
	defer func() { _ = ch.Close() }()

	// Ensure the queue exists (idempotent). Durable so messages survive broker restarts.
	if _, err := ch.QueueDeclare(
		ev.Type, // name
		true,    // durable
		false,   // autoDelete
		false,   // exclusive
		false,   // noWait
		nil,     // args
	); err != nil {
		entry.WithError(err).Warn("rabbitmq: queue declare failed")
		return err
	}

	body, err := json.Marshal(ev)
	if err != nil {
		entry.WithError(err).Warn("rabbitmq: marshal event failed")
		return err
	}

	pub := amqp.Publishing{
		ContentType:  "application/json",
		DeliveryMode: amqp.Persistent, // store on disk
		MessageId:    ev.EventID,
		Type:         ev.Type,
		Timestamp:    time.Now().UTC(),
		Body:         body,
	}

	if err := ch.PublishWithContext(ctx,
		"",      // default exchange
		ev.Type, // routing key = queue name
		false,   // mandatory
		false,   // immediate
		pub,
	); err != nil {
		entry.WithError(err).Warn("rabbitmq: publish failed")
		return err
	}
	return nil
}
