// Copyright (c) Abstract Machines
// SPDX-License-Identifier: Apache-2.0

package smpp

// Protocol is the protocol label stamped on broker envelopes.
const Protocol = "smpp"

// SubjectPrefix roots every broker subject the gateway touches.
const SubjectPrefix = "transport"

// Subject returns the broker subject of one record class of a
// transport, e.g. "transport.mtn_ng.outbound".
func Subject(transport, subtopic string) string {
	return SubjectPrefix + "." + transport + "." + subtopic
}

// Subtopics of the transport subject space. The gateway consumes
// outbound records and publishes the other three kinds.
const (
	SubtopicOutbound = "outbound"
	SubtopicInbound  = "inbound"
	SubtopicEvent    = "event"
	SubtopicFailure  = "failure"
)

// Transport types carried by messages in both directions.
const (
	TransportTypeSMS  = "sms"
	TransportTypeUSSD = "ussd"
)

// USSD session events.
const (
	SessionNew    = "new"
	SessionResume = "resume"
	SessionClose  = "close"
)

// Event types.
const (
	EventAck            = "ack"
	EventNack           = "nack"
	EventDeliveryReport = "delivery_report"
)

// Delivery statuses reported by delivery_report events.
const (
	DeliveryStatusDelivered = "delivered"
	DeliveryStatusFailed    = "failed"
	DeliveryStatusPending   = "pending"
)

// OutboundMessage is a mobile-terminated message drained from the
// outbound subtopic of the broker.
type OutboundMessage struct {
	ID            string `json:"message_id"`
	To            string `json:"to_addr"`
	From          string `json:"from_addr"`
	Content       string `json:"content"`
	TransportType string `json:"transport_type,omitempty"`
	SessionEvent  string `json:"session_event,omitempty"`
	Transport     string `json:"transport_name,omitempty"`
}

// InboundMessage is a mobile-originated message published on the
// inbound subtopic after decoding and reassembly.
type InboundMessage struct {
	ID            string `json:"message_id"`
	Content       string `json:"content"`
	To            string `json:"to_addr"`
	From          string `json:"from_addr"`
	TransportType string `json:"transport_type"`
	SessionEvent  string `json:"session_event,omitempty"`
	Transport     string `json:"transport_name"`
	Timestamp     int64  `json:"timestamp"`
}

// Event reports the fate of an outbound message: an ack carrying the
// remote message id(s), a nack carrying the refusal reason, or a
// delivery report relayed from the SMSC.
type Event struct {
	ID             string `json:"event_id"`
	Type           string `json:"event_type"`
	UserMessageID  string `json:"user_message_id"`
	SentMessageID  string `json:"sent_message_id,omitempty"`
	NackReason     string `json:"nack_reason,omitempty"`
	DeliveryStatus string `json:"delivery_status,omitempty"`
	Transport      string `json:"transport_name"`
	Timestamp      int64  `json:"timestamp"`
}

// FailureRecord accompanies a nack on terminal submission failures and
// carries the original payload so applications can inspect or replay it.
type FailureRecord struct {
	Reason  string          `json:"reason"`
	Message OutboundMessage `json:"message"`
}
