// Copyright (c) Abstract Machines
// SPDX-License-Identifier: Apache-2.0

package cli

import (
	"encoding/json"
	"fmt"
	"os/signal"
	"syscall"

	"github.com/absmach/smppgate/pkg/messaging"
	"github.com/absmach/smppgate/smpp"
	"github.com/spf13/cobra"
)

// NewMessageCmd returns message command.
func NewMessageCmd() *cobra.Command {
	var msgType string
	var sessionEvent string

	sendCmd := cobra.Command{
		Use:   "send <transport> <to> <from> <content>",
		Short: "Send message",
		Long: "Queue a mobile-terminated message for delivery over the named transport\n" +
			"Usage:\n" +
			"\tsmppgate-cli message send smppsim 0123456789 short42 \"hello there\"\n" +
			"\tsmppgate-cli message send smppsim 0123456789 short42 \"menu\" --type ussd --session-event resume\n",
		Run: func(cmd *cobra.Command, args []string) {
			if len(args) != 4 {
				logUsageCmd(*cmd, cmd.Use)
				return
			}

			msg := smpp.OutboundMessage{
				To:            args[1],
				From:          args[2],
				Content:       args[3],
				TransportType: msgType,
				SessionEvent:  sessionEvent,
			}

			id, err := gw.Send(cmd.Context(), args[0], msg)
			if err != nil {
				logErrorCmd(*cmd, err)
				return
			}

			logCreatedCmd(*cmd, id)
		},
	}

	sendCmd.Flags().StringVar(&msgType, "type", smpp.TransportTypeSMS, "message type: sms or ussd")
	sendCmd.Flags().StringVar(&sessionEvent, "session-event", "", "USSD session event: new, resume or close")

	watchCmd := cobra.Command{
		Use:   "watch <transport> [subtopic]",
		Short: "Watch gateway records",
		Long: "Stream records the gateway publishes for the named transport\n" +
			"Usage:\n" +
			"\tsmppgate-cli message watch smppsim - streams inbound messages\n" +
			"\tsmppgate-cli message watch smppsim event - streams delivery events\n",
		Run: func(cmd *cobra.Command, args []string) {
			if len(args) != 1 && len(args) != 2 {
				logUsageCmd(*cmd, cmd.Use)
				return
			}

			subtopic := smpp.SubtopicInbound
			if len(args) == 2 {
				subtopic = args[1]
			}

			ctx, cancel := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer cancel()

			err := gw.Watch(ctx, args[0], subtopic, func(m *messaging.Message) error {
				if RawOutput {
					fmt.Fprintln(cmd.OutOrStdout(), string(m.Payload))
					return nil
				}

				var rec interface{}
				if err := json.Unmarshal(m.Payload, &rec); err != nil {
					rec = string(m.Payload)
				}
				logJSONCmd(*cmd, rec)

				return nil
			})
			if err != nil {
				logErrorCmd(*cmd, err)
				return
			}
		},
	}

	cmd := cobra.Command{
		Use:   "message [send | watch]",
		Short: "Gateway messages",
		Long:  `Send mobile-terminated messages and watch the records the gateway publishes`,
	}

	cmdMessages := []cobra.Command{
		sendCmd,
		watchCmd,
	}

	for i := range cmdMessages {
		cmd.AddCommand(&cmdMessages[i])
	}

	return &cmd
}
