// Copyright (c) 2026 the Ergo bouncer authors
// released under the MIT license

package irc

import (
	"fmt"

	"golang.org/x/sync/errgroup"

	"github.com/ergochat/bouncer/irc/canon"
	"github.com/ergochat/bouncer/irc/logger"
)

// Source is the upstream side of the bounce loop. Its channel is closed when
// the session ends, after which Err reports why.
type Source interface {
	Messages() <-chan canon.Message
	Send(canon.Message) error
	Err() error
}

// Sink is anything that consumes the origin's traffic and may produce
// messages for the origin. A nil channel from Messages means the sink
// never produces anything.
type Sink interface {
	Messages() <-chan canon.Message
	Broadcast(canon.Message) error
}

type namedSink struct {
	name string
	sink Sink
}

type sinkMessage struct {
	sink    string
	message canon.Message
}

// Bouncer routes messages between one Source and any number of Sinks.
type Bouncer struct {
	source Source
	sinks  []namedSink
	logger *logger.Manager
}

func NewBouncer(source Source, logger *logger.Manager) *Bouncer {
	return &Bouncer{
		source: source,
		logger: logger,
	}
}

// AddSink registers a sink; it must be called before Run.
func (bouncer *Bouncer) AddSink(name string, sink Sink) {
	bouncer.sinks = append(bouncer.sinks, namedSink{name: name, sink: sink})
}

// Run routes messages until something goes wrong, and returns what did.
// It never returns nil: the loop ends with ErrOriginClosed when the origin
// session ends, or with a *RoutingError when a delivery fails.
func (bouncer *Bouncer) Run() error {
	done := make(chan struct{})
	defer close(done)

	fromSinks := make(chan sinkMessage, defaultQueueSize)
	for _, ns := range bouncer.sinks {
		if messages := ns.sink.Messages(); messages != nil {
			go bouncer.fanIn(ns.name, messages, fromSinks, done)
		}
	}

	fromSource := bouncer.source.Messages()
	for {
		select {
		case message, ok := <-fromSource:
			if !ok {
				if err := bouncer.source.Err(); err != nil {
					return fmt.Errorf("%w: %w", ErrOriginClosed, err)
				}
				return ErrOriginClosed
			}
			if err := bouncer.broadcast(message); err != nil {
				return err
			}
		case in := <-fromSinks:
			bouncer.logger.Debug("bouncer", "to origin from", in.sink, in.message.String())
			if err := bouncer.source.Send(in.message); err != nil {
				return &RoutingError{Sink: "origin", Err: err}
			}
			messagesRouted.WithLabelValues(directionUpstream, in.message.Type.String()).Inc()
		}
	}
}

// fanIn forwards one sink's messages, preserving their order.
func (bouncer *Bouncer) fanIn(name string, messages <-chan canon.Message, out chan<- sinkMessage, done <-chan struct{}) {
	defer HandlePanic(bouncer.logger)

	for {
		select {
		case message, ok := <-messages:
			if !ok {
				return
			}
			select {
			case out <- sinkMessage{sink: name, message: message}:
			case <-done:
				return
			}
		case <-done:
			return
		}
	}
}

// broadcast hands the message to every sink at once and waits for all of
// them; any failure is fatal.
func (bouncer *Bouncer) broadcast(message canon.Message) error {
	bouncer.logger.Debug("bouncer", "from origin", message.String())

	var group errgroup.Group
	for _, ns := range bouncer.sinks {
		group.Go(func() error {
			if err := ns.sink.Broadcast(message); err != nil {
				return &RoutingError{Sink: ns.name, Err: err}
			}
			return nil
		})
	}
	if err := group.Wait(); err != nil {
		return err
	}
	messagesRouted.WithLabelValues(directionDownstream, message.Type.String()).Inc()
	return nil
}
