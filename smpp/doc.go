// Copyright (c) Abstract Machines
// SPDX-License-Identifier: Apache-2.0

// Package smpp contains the SMPP v3.4 transceiver gateway core: the
// session engine that binds to an upstream SMSC, the mobile-originated
// and mobile-terminated processing pipelines, the throttler and the
// message stash used to correlate sequence numbers and remote message
// ids with internal message ids across reconnects.
package smpp
