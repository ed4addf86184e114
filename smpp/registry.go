// Copyright (c) Abstract Machines
// SPDX-License-Identifier: Apache-2.0

package smpp

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/fiorix/go-smpp/smpp/pdu"
)

// DefaultProcessor is the processor name selected when a transport
// config does not name one.
const DefaultProcessor = "default"

// Dispatcher publishes gateway output onto the internal bus. The
// transport service implements it and stamps ids, timestamps and the
// transport name on every record before it leaves the process.
type Dispatcher interface {
	// PublishInbound publishes a mobile-originated message.
	PublishInbound(ctx context.Context, msg InboundMessage) error

	// PublishEvent publishes an ack, nack or delivery_report event.
	PublishEvent(ctx context.Context, ev Event) error

	// PublishFailure publishes a failure record alongside a nack for
	// messages the SMSC refused.
	PublishFailure(ctx context.Context, rec FailureRecord) error
}

// DeliveryReportProcessor inspects deliver_sm PDUs for SMSC receipts.
type DeliveryReportProcessor interface {
	// HandleDeliveryReport consumes the PDU when it carries a delivery
	// report. The boolean reports whether it was consumed; PDUs left
	// unconsumed continue to the short-message processor.
	HandleDeliveryReport(ctx context.Context, p pdu.Body) (bool, error)
}

// DeliverShortMessageProcessor turns deliver_sm PDUs into inbound
// records, reassembling multipart deliveries along the way.
type DeliverShortMessageProcessor interface {
	HandleShortMessage(ctx context.Context, p pdu.Body) error
}

// SubmitShortMessageProcessor renders outbound messages into submit_sm
// PDUs, one per segment, with sequence numbers unassigned. Messages it
// rejects never reach the wire or the stash.
type SubmitShortMessageProcessor interface {
	MakeSubmitSM(msg OutboundMessage) ([]pdu.Body, error)
}

// ProcessorDeps carries everything a processor constructor may draw
// on. Constructors take what they need and ignore the rest.
type ProcessorDeps struct {
	Config     TransportConfig
	Stash      MessageStash
	Dispatcher Dispatcher
	Logger     *slog.Logger
}

// Processor factories, keyed by the name configs select them with.
type (
	DeliveryReportFactory      func(ProcessorDeps) (DeliveryReportProcessor, error)
	DeliverShortMessageFactory func(ProcessorDeps) (DeliverShortMessageProcessor, error)
	SubmitShortMessageFactory  func(ProcessorDeps) (SubmitShortMessageProcessor, error)
)

var (
	deliveryReportFactories = map[string]DeliveryReportFactory{
		DefaultProcessor: newDeliveryReportProcessor,
	}
	deliverShortMessageFactories = map[string]DeliverShortMessageFactory{
		DefaultProcessor: newDeliverShortMessageProcessor,
	}
	submitShortMessageFactories = map[string]SubmitShortMessageFactory{
		DefaultProcessor: newSubmitShortMessageProcessor,
	}
)

// RegisterDeliveryReportProcessor makes a delivery-report processor
// selectable by name. Re-registering a name replaces the factory.
func RegisterDeliveryReportProcessor(name string, f DeliveryReportFactory) {
	deliveryReportFactories[name] = f
}

// RegisterDeliverShortMessageProcessor makes a short-message processor
// selectable by name.
func RegisterDeliverShortMessageProcessor(name string, f DeliverShortMessageFactory) {
	deliverShortMessageFactories[name] = f
}

// RegisterSubmitShortMessageProcessor makes a submit processor
// selectable by name.
func RegisterSubmitShortMessageProcessor(name string, f SubmitShortMessageFactory) {
	submitShortMessageFactories[name] = f
}

// ProcessorSet is the resolved processor trio of one transport.
type ProcessorSet struct {
	DeliveryReport DeliveryReportProcessor
	DeliverSM      DeliverShortMessageProcessor
	SubmitSM       SubmitShortMessageProcessor
}

// NewProcessorSet resolves the processors a config names and
// constructs them. Unknown names fail startup.
func NewProcessorSet(deps ProcessorDeps) (ProcessorSet, error) {
	var set ProcessorSet

	drf, ok := deliveryReportFactories[deps.Config.DeliveryReportProcessor]
	if !ok {
		return set, fmt.Errorf("unknown delivery_report_processor: %q", deps.Config.DeliveryReportProcessor)
	}
	dsf, ok := deliverShortMessageFactories[deps.Config.DeliverShortMessageProcessor]
	if !ok {
		return set, fmt.Errorf("unknown deliver_short_message_processor: %q", deps.Config.DeliverShortMessageProcessor)
	}
	ssf, ok := submitShortMessageFactories[deps.Config.SubmitShortMessageProcessor]
	if !ok {
		return set, fmt.Errorf("unknown submit_short_message_processor: %q", deps.Config.SubmitShortMessageProcessor)
	}

	var err error
	if set.DeliveryReport, err = drf(deps); err != nil {
		return set, err
	}
	if set.DeliverSM, err = dsf(deps); err != nil {
		return set, err
	}
	if set.SubmitSM, err = ssf(deps); err != nil {
		return set, err
	}

	return set, nil
}
