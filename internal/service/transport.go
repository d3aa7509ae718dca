package service

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/redis/go-redis/v9"
)

// Notification is the wire contract between the relay and the consumer.
// Both sides must agree on this shape; it crosses the transport boundary.
type Notification struct {
	JobID          string `json:"jobId"`
	SourceLocation string `json:"sourceLocation"`
}

func EncodeNotification(n Notification) ([]byte, error) {
	return json.Marshal(n)
}

func DecodeNotification(payload []byte) (Notification, error) {
	var n Notification
	if err := json.Unmarshal(payload, &n); err != nil {
		return Notification{}, err
	}
	if n.JobID == "" {
		return Notification{}, errors.New("notification missing jobId")
	}
	return n, nil
}

// Delivery is one received payload plus the handle needed to ack or nack it.
type Delivery struct {
	Payload []byte

	raw string // exact list element, needed for LREM
}

// Transport is an at-least-once payload queue. Publish is used by the
// relay; Receive/Ack/Nack by the consumer. No ordering guarantee across
// deliveries.
type Transport interface {
	Publish(ctx context.Context, payload []byte) error
	Receive(ctx context.Context, timeout time.Duration) (*Delivery, error)
	Ack(ctx context.Context, d *Delivery) error
	Nack(ctx context.Context, d *Delivery) error
	RequeueStale(ctx context.Context, max int64) (int64, error)
}

// ErrNoDelivery is returned by Receive when nothing arrived within the
// timeout. Callers just poll again.
var ErrNoDelivery = errors.New("no delivery")

// redisTransport implements a reliable queue over two Redis lists.
// Receive: BRPOPLPUSH queue -> processing (the message survives a consumer
// crash). Ack: LREM from processing. Nack: LREM + LPUSH back onto the queue
// for redelivery. A reaper moves abandoned processing entries back with
// RequeueStale.
type redisTransport struct {
	rdb           *redis.Client
	queueKey      string
	processingKey string
}

func NewRedisTransport(rdb *redis.Client, queueKey, processingKey string) Transport {
	return &redisTransport{
		rdb:           rdb,
		queueKey:      queueKey,
		processingKey: processingKey,
	}
}

func (t *redisTransport) Publish(ctx context.Context, payload []byte) error {
	return t.rdb.LPush(ctx, t.queueKey, string(payload)).Err()
}

func (t *redisTransport) Receive(ctx context.Context, timeout time.Duration) (*Delivery, error) {
	raw, err := t.rdb.BRPopLPush(ctx, t.queueKey, t.processingKey, timeout).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, ErrNoDelivery
		}
		return nil, err
	}
	return &Delivery{Payload: []byte(raw), raw: raw}, nil
}

func (t *redisTransport) Ack(ctx context.Context, d *Delivery) error {
	return t.rdb.LRem(ctx, t.processingKey, 1, d.raw).Err()
}

func (t *redisTransport) Nack(ctx context.Context, d *Delivery) error {
	if err := t.rdb.LRem(ctx, t.processingKey, 1, d.raw).Err(); err != nil {
		return err
	}
	return t.rdb.LPush(ctx, t.queueKey, d.raw).Err()
}

// RequeueStale moves entries left in processing (consumer crashed between
// receive and ack) back onto the queue. At-least-once by construction.
func (t *redisTransport) RequeueStale(ctx context.Context, max int64) (int64, error) {
	var moved int64
	for i := int64(0); i < max; i++ {
		_, err := t.rdb.RPopLPush(ctx, t.processingKey, t.queueKey).Result()
		if err != nil {
			if errors.Is(err, redis.Nil) {
				break
			}
			return moved, err
		}
		moved++
	}
	return moved, nil
}
