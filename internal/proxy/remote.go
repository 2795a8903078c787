package proxy

import (
	"context"
	"encoding/json"
	"fmt"

	kafka "github.com/confluentinc/confluent-kafka-go/v2/kafka"
	"golang.org/x/time/rate"

	"github.com/fabric-actor/kernel/internal/kernel"
	"github.com/fabric-actor/kernel/internal/rpcengine"
	"github.com/fabric-actor/kernel/pkg/apierr"
	"github.com/fabric-actor/kernel/pkg/logger"
)

// Remote is a Kafka-backed proxy: the wire codec is deliberately out of
// scope (no resource-graph semantics travel over the bus, per spec's
// non-goals), so every message is just the JSON-marshaled Request
// opaque to everything except the two actors exchanging it.
type Remote struct {
	peerID string
	topic  string
	prod   *kafka.Producer
}

var _ rpcengine.Proxy = (*Remote)(nil)

// NewRemote builds a Remote proxy publishing to topic on prod. One
// Producer is typically shared across every peer a container talks to;
// topic is usually derived from the peer's kafka-topic config (§6).
func NewRemote(peerID, topic string, prod *kafka.Producer) *Remote {
	return &Remote{peerID: peerID, topic: topic, prod: prod}
}

func (r *Remote) PeerID() string { return r.peerID }

func (r *Remote) Send(ctx context.Context, req *rpcengine.Request) error {
	envelope := &Request{
		MessageID:         req.MessageID,
		ReservationID:     req.ReservationID,
		DelegationID:      req.DelegationID,
		Sequence:          req.Sequence,
		Pending:           req.Pending,
		IsDelegation:      req.IsDelegation,
		DelegationPending: req.DelegationPending,
		Operation:         req.Operation,
		Resources:         req.Resources,
		Term:              req.Term,
		Notice:            req.Notice,
		Graph:             req.Graph,
	}
	payload, err := json.Marshal(envelope)
	if err != nil {
		return apierr.InternalError("marshal remote proxy envelope", err)
	}

	deliveryChan := make(chan kafka.Event, 1)
	err = r.prod.Produce(&kafka.Message{
		TopicPartition: kafka.TopicPartition{Topic: &r.topic, Partition: kafka.PartitionAny},
		Key:            []byte(req.ReservationID),
		Value:          payload,
	}, deliveryChan)
	if err != nil {
		return apierr.TransportFailure(err)
	}

	select {
	case ev := <-deliveryChan:
		m, ok := ev.(*kafka.Message)
		if ok && m.TopicPartition.Error != nil {
			return apierr.TransportFailure(m.TopicPartition.Error)
		}
		return nil
	case <-ctx.Done():
		return apierr.TransportFailure(ctx.Err())
	}
}

// Consumer drains a peer's response/request topic and turns each
// message into a kernel event on the local actor's queue — the
// dispatch-worker pool named in §5's concurrency model.
type Consumer struct {
	log      *logger.Logger
	consumer *kafka.Consumer
	local    *kernel.Kernel
	handlers map[string]RequestHandler
	limiter  *rate.Limiter
}

// NewConsumer builds a Consumer already subscribed to topics. limiter
// throttles the rate messages are handed to the kernel queue (§5's
// inbound-dispatch worker pool); a nil limiter means unthrottled.
func NewConsumer(log *logger.Logger, cfg *kafka.ConfigMap, topics []string, local *kernel.Kernel, handlers map[string]RequestHandler, limiter *rate.Limiter) (*Consumer, error) {
	if log == nil {
		log = logger.NewDefault()
	}
	c, err := kafka.NewConsumer(cfg)
	if err != nil {
		return nil, apierr.InternalError("build kafka consumer", err)
	}
	if err := c.SubscribeTopics(topics, nil); err != nil {
		return nil, apierr.InternalError("subscribe kafka topics", err)
	}
	return &Consumer{log: log, consumer: c, local: local, handlers: handlers, limiter: limiter}, nil
}

// Run drains messages until ctx is cancelled. It is meant to be run as
// one of the §5 inbound-dispatch worker-pool goroutines; Poll's timeout
// keeps it responsive to cancellation without busy-looping. When a
// limiter is configured, Run blocks on it before handing each message
// to the kernel queue, so a peer that floods its topic is smoothed out
// rather than starving the kernel's own event loop.
func (c *Consumer) Run(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			c.consumer.Close()
			return
		default:
		}
		ev := c.consumer.Poll(200)
		switch e := ev.(type) {
		case *kafka.Message:
			if c.limiter != nil {
				if err := c.limiter.Wait(ctx); err != nil {
					c.consumer.Close()
					return
				}
			}
			c.handle(e)
		case kafka.Error:
			c.log.WithFields(map[string]any{"code": e.Code()}).Warn("kafka consumer error: " + e.Error())
		}
	}
}

func (c *Consumer) handle(m *kafka.Message) {
	var req Request
	if err := json.Unmarshal(m.Value, &req); err != nil {
		c.log.Warn("failed to unmarshal remote proxy message: " + err.Error())
		return
	}
	op := req.Operation
	handler, ok := c.handlers[op]
	if !ok {
		c.log.WithFields(map[string]any{"operation": op}).Warn("no handler registered for remote operation")
		return
	}
	err := c.local.Enqueue(kernel.LocalCommandEvent{
		Handler: func(k *kernel.Kernel) error {
			_, err := handler(context.Background(), k, &req)
			return err
		},
	})
	if err != nil {
		c.log.WithFields(map[string]any{"reservation": req.ReservationID, "delegation": req.DelegationID}).
			Warn(fmt.Sprintf("failed to enqueue remote request: %v", err))
	}
}
