// Copyright (c) Abstract Machines
// SPDX-License-Identifier: Apache-2.0

package messaging

// Message is the envelope exchanged between the gateway and
// applications over the internal message broker. Payload carries a
// JSON-encoded domain record; Subtopic names the record class.
type Message struct {
	Transport string `json:"transport"`
	Subtopic  string `json:"subtopic,omitempty"`
	Publisher string `json:"publisher"`
	Protocol  string `json:"protocol"`
	Payload   []byte `json:"payload"`
	Created   int64  `json:"created"`
}
