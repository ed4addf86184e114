// Copyright (c) Abstract Machines
// SPDX-License-Identifier: Apache-2.0

//go:build !test

package api

import (
	"context"
	"time"

	"github.com/fiorix/go-smpp/smpp/pdu"
	"github.com/go-kit/kit/metrics"

	"github.com/absmach/smppgate/smpp"
)

var _ smpp.Service = (*metricsMiddleware)(nil)

type metricsMiddleware struct {
	counter metrics.Counter
	latency metrics.Histogram
	svc     smpp.Service
}

// MetricsMiddleware instruments core service by tracking request count and latency.
func MetricsMiddleware(svc smpp.Service, counter metrics.Counter, latency metrics.Histogram) smpp.Service {
	return &metricsMiddleware{
		counter: counter,
		latency: latency,
		svc:     svc,
	}
}

// Forward instruments Forward method with metrics.
func (ms *metricsMiddleware) Forward(ctx context.Context, msg smpp.OutboundMessage) error {
	defer func(begin time.Time) {
		ms.counter.With("method", "forward").Add(1)
		ms.latency.With("method", "forward").Observe(time.Since(begin).Seconds())
	}(time.Now())

	return ms.svc.Forward(ctx, msg)
}

// HandleDeliverSM instruments HandleDeliverSM method with metrics.
func (ms *metricsMiddleware) HandleDeliverSM(ctx context.Context, p pdu.Body) error {
	defer func(begin time.Time) {
		ms.counter.With("method", "handle_deliver_sm").Add(1)
		ms.latency.With("method", "handle_deliver_sm").Observe(time.Since(begin).Seconds())
	}(time.Now())

	return ms.svc.HandleDeliverSM(ctx, p)
}

// HandleSubmitSMResp instruments HandleSubmitSMResp method with metrics.
func (ms *metricsMiddleware) HandleSubmitSMResp(ctx context.Context, p pdu.Body) error {
	defer func(begin time.Time) {
		ms.counter.With("method", "handle_submit_sm_resp").Add(1)
		ms.latency.With("method", "handle_submit_sm_resp").Observe(time.Since(begin).Seconds())
	}(time.Now())

	return ms.svc.HandleSubmitSMResp(ctx, p)
}

func (ms *metricsMiddleware) AttachSession(sub smpp.Submitter) {
	ms.svc.AttachSession(sub)
}

func (ms *metricsMiddleware) DetachSession() {
	ms.svc.DetachSession()
}

func (ms *metricsMiddleware) Throttled() bool {
	return ms.svc.Throttled()
}

func (ms *metricsMiddleware) Start(ctx context.Context) {
	ms.svc.Start(ctx)
}

func (ms *metricsMiddleware) Stop() {
	ms.svc.Stop()
}
