// Copyright (c) Abstract Machines
// SPDX-License-Identifier: Apache-2.0

package smpp

import (
	"context"
	"fmt"
	"log/slog"
	"regexp"

	"github.com/fiorix/go-smpp/smpp/pdu"
	"github.com/fiorix/go-smpp/smpp/pdu/pdutlv"

	"github.com/absmach/smppgate/pkg/errors"
)

// DefaultDeliveryReportRegex matches the de facto receipt body format
// SMSCs place in deliver_sm short messages. Group 1 is the remote
// message id, group 2 the status label.
const DefaultDeliveryReportRegex = `id:(\S+) sub:\S+ dlvrd:\S+ submit date:\d+ done date:\d+ stat:(\w+) err:\S+ text:.*`

// deliveryStatusByState maps numeric message_state TLV values onto the
// three delivery statuses the bus carries. Unmapped states are pending.
var deliveryStatusByState = map[int]string{
	2: DeliveryStatusDelivered,
	3: DeliveryStatusFailed,
	4: DeliveryStatusFailed,
	5: DeliveryStatusFailed,
	6: DeliveryStatusPending,
	8: DeliveryStatusFailed,
}

// deliveryStatusByLabel maps receipt body status labels. Unmapped
// labels are pending.
var deliveryStatusByLabel = map[string]string{
	"DELIVRD": DeliveryStatusDelivered,
	"ACCEPTD": DeliveryStatusPending,
	"EXPIRED": DeliveryStatusFailed,
	"DELETED": DeliveryStatusFailed,
	"UNDELIV": DeliveryStatusFailed,
	"REJECTD": DeliveryStatusFailed,
}

type deliveryReportProcessor struct {
	transport string
	regex     *regexp.Regexp
	idGroup   int
	statGroup int
	stash     MessageStash
	bus       Dispatcher
	logger    *slog.Logger
}

func newDeliveryReportProcessor(deps ProcessorDeps) (DeliveryReportProcessor, error) {
	pattern := deps.Config.DeliveryReportProcessorConfig.Regex
	if pattern == "" {
		pattern = DefaultDeliveryReportRegex
	}
	re, err := regexp.Compile(pattern)
	if err != nil {
		return nil, fmt.Errorf("invalid delivery_report_regex: %w", err)
	}

	p := &deliveryReportProcessor{
		transport: deps.Config.TransportName,
		regex:     re,
		idGroup:   1,
		statGroup: 2,
		stash:     deps.Stash,
		bus:       deps.Dispatcher,
		logger:    deps.Logger,
	}
	// Custom patterns may name their groups instead of relying on
	// positions.
	if idx := re.SubexpIndex("id"); idx > 0 {
		p.idGroup = idx
	}
	if idx := re.SubexpIndex("stat"); idx > 0 {
		p.statGroup = idx
	}

	return p, nil
}

func (p *deliveryReportProcessor) HandleDeliveryReport(ctx context.Context, body pdu.Body) (bool, error) {
	remote, status, ok := p.classify(body)
	if !ok {
		return false, nil
	}

	internal, err := p.stash.GetInternalMessageID(ctx, remote)
	if err != nil {
		if errors.Contains(err, ErrStashMiss) {
			p.logger.Warn(fmt.Sprintf("Failed to retrieve message id for delivery report. Delivery report from %s discarded.", p.transport),
				slog.String("remote_message_id", remote),
				slog.String("delivery_status", status),
			)
			return true, nil
		}
		return true, err
	}

	return true, p.bus.PublishEvent(ctx, Event{
		Type:           EventDeliveryReport,
		UserMessageID:  internal,
		DeliveryStatus: status,
	})
}

// classify decides whether the PDU is a delivery report and extracts
// the remote message id and mapped status. TLV fields win over the
// body regex when both are present.
func (p *deliveryReportProcessor) classify(body pdu.Body) (remote, status string, ok bool) {
	tlvs := body.TLVFields()
	text := string(pduShortMessage(body))

	state, hasState := tlvs[pdutlv.TagMessageStateOption]
	receipted, hasReceipted := tlvs[pdutlv.TagReceiptedMessageID]

	if hasReceipted {
		remote = receipted.String()
	}
	if hasState || hasReceipted {
		status = DeliveryStatusPending
		if hasState {
			if b := state.Bytes(); len(b) > 0 {
				if mapped, known := deliveryStatusByState[int(b[0])]; known {
					status = mapped
				}
			}
		}
		// SMSCs that tag the state but not the id still put the id in
		// the receipt body.
		if remote == "" {
			if m := p.regex.FindStringSubmatch(text); m != nil {
				remote = m[p.idGroup]
			}
		}
		return remote, status, true
	}

	m := p.regex.FindStringSubmatch(text)
	if m == nil {
		return "", "", false
	}
	remote = m[p.idGroup]
	status = DeliveryStatusPending
	if mapped, known := deliveryStatusByLabel[m[p.statGroup]]; known {
		status = mapped
	}

	return remote, status, true
}
