// Package rabbitmq provides the AMQP 0-9-1 plumbing behind the rabbitrpc server.
//
// This package includes:
//   - Channel, Connection and Dialer: the narrow broker surface the server drives,
//     satisfied by amqp091-go types and by test doubles
//   - AMQPDialer: dials a broker with a context-bounded amqp.DialConfig
//   - DeclareAndConsume: durable queue declaration, QoS and manual-ack consumer registration
//   - ConnectionError: the single error kind used for every connection-level failure
package rabbitmq
