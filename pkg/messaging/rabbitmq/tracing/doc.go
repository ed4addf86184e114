// Copyright (c) Abstract Machines
// SPDX-License-Identifier: Apache-2.0

// Package tracing provides tracing instrumentation for the RabbitMQ
// implementation of the gateway message broker.
//
// It wraps the publisher and pubsub with middleware that records a
// span for every broker operation.
package tracing
