// Copyright (c) Abstract Machines
// SPDX-License-Identifier: Apache-2.0

// Package smppgate contains the SMPP gateway service and defines
// shared concepts used by its packages.
package smppgate
