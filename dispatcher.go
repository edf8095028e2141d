package rabbitrpc

import (
	"context"
	"fmt"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"

	"github.com/glimte/rabbitrpc/serialization"
)

// Outcomes recorded per processed delivery
const (
	OutcomeReplied = "replied"
	OutcomeHandled = "handled"
	OutcomeFailed  = "failed"
)

// dispatch runs one delivery through decode, handle, encode, reply and
// ack. A failing stage is logged and skips the stages that depend on it;
// the ack always happens, and always last.
func (s *Server) dispatch(ctx context.Context, ch Channel, d amqp.Delivery) {
	start := time.Now()
	codec := s.codecs.Lookup(d.ContentType, s.codec)
	outcome := OutcomeFailed

	var (
		result    any
		body      []byte
		hasResult bool
	)

	request, err := codec.Decode(d.Body)
	if err != nil {
		s.fail(ctx, d, StageDecode, err)
	} else {
		hctx := ContextWithRequestInfo(ctx, RequestInfo{
			Queue:         s.queue,
			DeliveryTag:   d.DeliveryTag,
			CorrelationID: d.CorrelationId,
			ReplyTo:       d.ReplyTo,
			ContentType:   codec.ContentType(),
		})
		if result, err = s.invoke(hctx, request); err != nil {
			s.fail(ctx, d, StageHandle, err)
		} else {
			hasResult = true
		}
	}

	if hasResult {
		if body, err = codec.Encode(result); err != nil {
			s.fail(ctx, d, StageEncode, err)
			hasResult = false
		}
	}

	if hasResult {
		outcome = OutcomeHandled
		if d.ReplyTo != "" {
			if err := s.reply(ctx, ch, d, codec, body); err != nil {
				s.fail(ctx, d, StagePublish, err)
				outcome = OutcomeFailed
			} else {
				outcome = OutcomeReplied
				s.metrics.ReplyPublished()
			}
		}
	}

	if err := d.Ack(false); err != nil {
		s.fail(ctx, d, StageAck, err)
		outcome = OutcomeFailed
	}

	s.metrics.MessageProcessed(outcome, time.Since(start))
	s.logger.Debug("rpc request processed",
		"deliveryTag", d.DeliveryTag,
		"correlationId", d.CorrelationId,
		"outcome", outcome,
		"duration", time.Since(start),
	)
}

// invoke calls the handler, turning a panic into an error
func (s *Server) invoke(ctx context.Context, request any) (result any, err error) {
	defer func() {
		if r := recover(); r != nil {
			result = nil
			err = fmt.Errorf("%w: %v", ErrHandlerPanic, r)
		}
	}()
	return s.handler.Handle(ctx, request)
}

// reply publishes a persistent reply routed by the request's reply-to
func (s *Server) reply(ctx context.Context, ch Channel, d amqp.Delivery, codec serialization.Codec, body []byte) error {
	msg := amqp.Publishing{
		ContentType:   codec.ContentType(),
		DeliveryMode:  amqp.Persistent,
		CorrelationId: d.CorrelationId,
		Body:          body,
	}

	// The reply of a handled request is sent even while shutting down.
	return ch.PublishWithContext(context.WithoutCancel(ctx), s.exchange, d.ReplyTo, false, false, msg)
}

func (s *Server) fail(ctx context.Context, d amqp.Delivery, stage Stage, err error) {
	dispatchErr := &DispatchError{
		Stage:         stage,
		Queue:         s.queue,
		DeliveryTag:   d.DeliveryTag,
		CorrelationID: d.CorrelationId,
		Err:           err,
	}

	s.logger.Error("rpc request failed",
		"stage", stage,
		"error", err,
		"deliveryTag", d.DeliveryTag,
		"correlationId", d.CorrelationId,
	)
	s.metrics.StageFailed(string(stage))

	if s.errorHandler != nil {
		s.errorHandler.HandleError(ctx, dispatchErr)
	}
}
