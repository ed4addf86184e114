// Copyright (c) Abstract Machines
// SPDX-License-Identifier: Apache-2.0

package smpp

import "github.com/fiorix/go-smpp/smpp/pdu"

// Command statuses the pipelines branch on.
const (
	statusOK        = pdu.Status(0x00000000)
	statusInvCmdID  = pdu.Status(0x00000003)
	statusQueueFull = pdu.Status(0x00000014)
	statusThrottled = pdu.Status(0x00000058)
)

// statusNames maps SMPP v3.4 command statuses to their mnemonics, the
// form nack reasons and failure records carry.
var statusNames = map[pdu.Status]string{
	0x00000000: "ESME_ROK",
	0x00000001: "ESME_RINVMSGLEN",
	0x00000002: "ESME_RINVCMDLEN",
	0x00000003: "ESME_RINVCMDID",
	0x00000004: "ESME_RINVBNDSTS",
	0x00000005: "ESME_RALYBND",
	0x00000006: "ESME_RINVPRTFLG",
	0x00000007: "ESME_RINVREGDLVFLG",
	0x00000008: "ESME_RSYSERR",
	0x0000000a: "ESME_RINVSRCADR",
	0x0000000b: "ESME_RINVDSTADR",
	0x0000000c: "ESME_RINVMSGID",
	0x0000000d: "ESME_RBINDFAIL",
	0x0000000e: "ESME_RINVPASWD",
	0x0000000f: "ESME_RINVSYSID",
	0x00000011: "ESME_RCANCELFAIL",
	0x00000013: "ESME_RREPLACEFAIL",
	0x00000014: "ESME_RMSGQFUL",
	0x00000015: "ESME_RINVSERTYP",
	0x00000033: "ESME_RINVNUMDESTS",
	0x00000034: "ESME_RINVDLNAME",
	0x00000040: "ESME_RINVDESTFLAG",
	0x00000042: "ESME_RINVSUBREP",
	0x00000043: "ESME_RINVESMCLASS",
	0x00000044: "ESME_RCNTSUBDL",
	0x00000045: "ESME_RSUBMITFAIL",
	0x00000048: "ESME_RINVSRCTON",
	0x00000049: "ESME_RINVSRCNPI",
	0x00000050: "ESME_RINVDSTTON",
	0x00000051: "ESME_RINVDSTNPI",
	0x00000053: "ESME_RINVSYSTYP",
	0x00000054: "ESME_RINVREPFLAG",
	0x00000055: "ESME_RINVNUMMSGS",
	0x00000058: "ESME_RTHROTTLED",
	0x00000061: "ESME_RINVSCHED",
	0x00000062: "ESME_RINVEXPIRY",
	0x00000063: "ESME_RINVDFTMSGID",
	0x00000064: "ESME_RX_T_APPN",
	0x00000065: "ESME_RX_P_APPN",
	0x00000066: "ESME_RX_R_APPN",
	0x00000067: "ESME_RQUERYFAIL",
	0x000000c0: "ESME_RINVOPTPARSTREAM",
	0x000000c1: "ESME_ROPTPARNOTALLWD",
	0x000000c2: "ESME_RINVPARLEN",
	0x000000c3: "ESME_RMISSINGOPTPARAM",
	0x000000c4: "ESME_RINVOPTPARAMVAL",
	0x000000fe: "ESME_RDELIVERYFAILURE",
	0x000000ff: "ESME_RUNKNOWNERR",
}

// StatusName returns the SMPP mnemonic of a command status, or
// "Unspecified" when the status has no v3.4 name.
func StatusName(s pdu.Status) string {
	if name, ok := statusNames[s]; ok {
		return name
	}

	return "Unspecified"
}

// retryableStatus reports whether a submit_sm_resp status signals
// congestion rather than refusal, so the message is retried through
// the throttler instead of being nacked.
func retryableStatus(s pdu.Status) bool {
	return s == statusThrottled || s == statusQueueFull
}
