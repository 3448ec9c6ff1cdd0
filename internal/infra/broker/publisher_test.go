package broker

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"trivia-night-service/internal/domain"

	amqp "github.com/rabbitmq/amqp091-go"
	"github.com/shopspring/decimal"
)

func TestPublishRoutesByEventType(t *testing.T) {
	ch := &recordingChannel{}
	p := &Publisher{exchange: "trivia.events", ch: ch}
	points := decimal.RequireFromString("2.5")
	at := time.Date(2026, 10, 19, 21, 0, 0, 0, time.UTC)

	err := p.Publish(context.Background(), domain.Event{
		Type:     domain.EventAnswerEvaluated,
		GameID:   "g1",
		AnswerID: "a1",
		Points:   &points,
		At:       at,
	})
	if err != nil {
		t.Fatalf("publish: %v", err)
	}

	if ch.exchange != "trivia.events" || ch.key != "answer.evaluated" {
		t.Fatalf("unexpected route %s/%s", ch.exchange, ch.key)
	}
	if ch.msg.ContentType != "application/json" || ch.msg.DeliveryMode != amqp.Persistent || !ch.msg.Timestamp.Equal(at) {
		t.Fatalf("unexpected message headers %+v", ch.msg)
	}
	var decoded domain.Event
	if err := json.Unmarshal(ch.msg.Body, &decoded); err != nil {
		t.Fatalf("decode body: %v", err)
	}
	if decoded.AnswerID != "a1" || decoded.Points == nil || !decoded.Points.Equal(points) {
		t.Fatalf("unexpected body %s", ch.msg.Body)
	}
}

func TestPublishWrapsChannelErrors(t *testing.T) {
	cause := errors.New("channel closed")
	p := &Publisher{exchange: "trivia.events", ch: &recordingChannel{err: cause}}
	if err := p.Publish(context.Background(), domain.Event{Type: domain.EventRoundStarted}); !errors.Is(err, cause) {
		t.Fatalf("expected channel error, got %v", err)
	}
}

type recordingChannel struct {
	exchange string
	key      string
	msg      amqp.Publishing
	err      error
}

func (c *recordingChannel) PublishWithContext(_ context.Context, exchange, key string, _, _ bool, msg amqp.Publishing) error {
	c.exchange, c.key, c.msg = exchange, key, msg
	return c.err
}

func (c *recordingChannel) Close() error { return nil }
