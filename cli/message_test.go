// Copyright (c) Abstract Machines
// SPDX-License-Identifier: Apache-2.0

package cli_test

import (
	"encoding/json"
	"fmt"
	"strings"
	"testing"

	"github.com/absmach/smppgate/cli"
	"github.com/absmach/smppgate/cli/mocks"
	"github.com/absmach/smppgate/pkg/errors"
	"github.com/absmach/smppgate/pkg/messaging"
	"github.com/absmach/smppgate/smpp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSendMessageCmd(t *testing.T) {
	sendCommand := "send"
	msgID := "7c36ca2c-71b2-4e4f-bbbb-0697e4bcbf05"
	errBroker := errors.New("failed to connect to message broker")

	cases := []struct {
		desc          string
		args          []string
		id            string
		err           error
		errLogMessage string
		message       smpp.OutboundMessage
		logType       outputLog
	}{
		{
			desc: "send message successfully",
			args: []string{sendCommand, "smppsim", "0123456789", "short42", "hello there"},
			id:   msgID,
			message: smpp.OutboundMessage{
				To:            "0123456789",
				From:          "short42",
				Content:       "hello there",
				TransportType: smpp.TransportTypeSMS,
			},
			logType: createLog,
		},
		{
			desc: "send ussd message successfully",
			args: []string{sendCommand, "smppsim", "0123456789", "*123#", "menu", "--type", "ussd", "--session-event", "resume"},
			id:   msgID,
			message: smpp.OutboundMessage{
				To:            "0123456789",
				From:          "*123#",
				Content:       "menu",
				TransportType: smpp.TransportTypeUSSD,
				SessionEvent:  smpp.SessionResume,
			},
			logType: createLog,
		},
		{
			desc:          "send message with broker down",
			args:          []string{sendCommand, "smppsim", "0123456789", "short42", "hello there"},
			err:           errBroker,
			errLogMessage: fmt.Sprintf("\nerror: %s\n\n", errBroker),
			logType:       errLog,
		},
		{
			desc:    "send message with invalid args",
			args:    []string{sendCommand, "smppsim", "0123456789"},
			logType: usageLog,
		},
	}

	for _, tc := range cases {
		gwMock := mocks.NewGateway()
		gwMock.SetSend(tc.id, tc.err)
		cli.SetGateway(gwMock)
		rootCmd := setFlags(cli.NewMessageCmd())

		out := executeCommand(t, rootCmd, tc.args...)

		switch tc.logType {
		case createLog:
			assert.True(t, strings.Contains(out, fmt.Sprintf("created: %s", tc.id)), fmt.Sprintf("%s unexpected response: expected created log, got: %v", tc.desc, out))
			sends := gwMock.SendCalls()
			require.Len(t, sends, 1, fmt.Sprintf("%s expected one send request", tc.desc))
			assert.Equal(t, "smppsim", sends[0].Transport, fmt.Sprintf("%s unexpected transport", tc.desc))
			assert.Equal(t, tc.message, sends[0].Message, fmt.Sprintf("%s unexpected message: expected: %v, got: %v", tc.desc, tc.message, sends[0].Message))
		case errLog:
			assert.Equal(t, tc.errLogMessage, out, fmt.Sprintf("%s unexpected error response: expected %s got errLogMessage:%s", tc.desc, tc.errLogMessage, out))
		case usageLog:
			assert.False(t, strings.Contains(out, rootCmd.Use), fmt.Sprintf("%s invalid usage: %s", tc.desc, out))
			assert.Empty(t, gwMock.SendCalls(), fmt.Sprintf("%s gateway should not be called", tc.desc))
		}
	}
}

func TestWatchMessageCmd(t *testing.T) {
	watchCommand := "watch"
	errSubtopic := errors.New("unknown subtopic")

	inbound := smpp.InboundMessage{
		ID:            "8273b4b4-3fb8-4e09-b262-372e8ec1ed10",
		Content:       "hello from 123",
		To:            "456",
		From:          "123",
		TransportType: smpp.TransportTypeSMS,
		Transport:     "smppsim",
	}
	payload, err := json.Marshal(inbound)
	require.NoError(t, err)
	record := messaging.Message{
		Transport: "smppsim",
		Subtopic:  smpp.SubtopicInbound,
		Protocol:  "smpp",
		Payload:   payload,
	}

	cases := []struct {
		desc          string
		args          []string
		records       []messaging.Message
		err           error
		errLogMessage string
		watched       []mocks.WatchRequest
		logType       outputLog
	}{
		{
			desc:    "watch inbound by default",
			args:    []string{watchCommand, "smppsim"},
			records: []messaging.Message{record},
			watched: []mocks.WatchRequest{{Transport: "smppsim", Subtopic: smpp.SubtopicInbound}},
			logType: entityLog,
		},
		{
			desc:    "watch events",
			args:    []string{watchCommand, "smppsim", "event"},
			watched: []mocks.WatchRequest{{Transport: "smppsim", Subtopic: smpp.SubtopicEvent}},
			logType: entityLog,
		},
		{
			desc:          "watch with unknown subtopic",
			args:          []string{watchCommand, "smppsim", "bogus"},
			err:           errSubtopic,
			errLogMessage: fmt.Sprintf("\nerror: %s\n\n", errSubtopic),
			logType:       errLog,
		},
		{
			desc:    "watch with invalid args",
			args:    []string{watchCommand},
			logType: usageLog,
		},
	}

	for _, tc := range cases {
		gwMock := mocks.NewGateway()
		gwMock.SetWatch(tc.records, tc.err)
		cli.SetGateway(gwMock)
		rootCmd := setFlags(cli.NewMessageCmd())

		out := executeCommand(t, rootCmd, tc.args...)

		switch tc.logType {
		case entityLog:
			assert.Equal(t, tc.watched, gwMock.WatchCalls(), fmt.Sprintf("%s unexpected watch calls", tc.desc))
			for _, rec := range tc.records {
				assert.True(t, strings.Contains(out, inbound.Content), fmt.Sprintf("%s missing record %s in output: %s", tc.desc, rec.Payload, out))
			}
		case errLog:
			assert.Equal(t, tc.errLogMessage, out, fmt.Sprintf("%s unexpected error response: expected %s got errLogMessage:%s", tc.desc, tc.errLogMessage, out))
		case usageLog:
			assert.False(t, strings.Contains(out, rootCmd.Use), fmt.Sprintf("%s invalid usage: %s", tc.desc, out))
			assert.Empty(t, gwMock.WatchCalls(), fmt.Sprintf("%s gateway should not be called", tc.desc))
		}
	}
}

func TestWatchMessageCmdRawOutput(t *testing.T) {
	payload := []byte(`{"message_id":"444","content":"hi"}`)

	gwMock := mocks.NewGateway()
	gwMock.SetWatch([]messaging.Message{{Transport: "smppsim", Payload: payload}}, nil)
	cli.SetGateway(gwMock)

	cli.RawOutput = true
	defer func() { cli.RawOutput = false }()
	rootCmd := setFlags(cli.NewMessageCmd())

	out := executeCommand(t, rootCmd, "watch", "smppsim")
	assert.Equal(t, string(payload)+"\n", out, fmt.Sprintf("unexpected raw output: %s", out))
}
