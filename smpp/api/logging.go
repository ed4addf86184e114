// Copyright (c) Abstract Machines
// SPDX-License-Identifier: Apache-2.0

//go:build !test

package api

import (
	"context"
	"log/slog"
	"time"

	"github.com/fiorix/go-smpp/smpp/pdu"

	"github.com/absmach/smppgate/smpp"
)

var _ smpp.Service = (*loggingMiddleware)(nil)

type loggingMiddleware struct {
	logger *slog.Logger
	svc    smpp.Service
}

// LoggingMiddleware adds logging facilities to the core service.
func LoggingMiddleware(svc smpp.Service, logger *slog.Logger) smpp.Service {
	return &loggingMiddleware{logger, svc}
}

// Forward logs the forward request. It logs the message id and the time it took to complete the request.
// If the request fails, it logs the error.
func (lm *loggingMiddleware) Forward(ctx context.Context, msg smpp.OutboundMessage) (err error) {
	defer func(begin time.Time) {
		args := []any{
			slog.String("duration", time.Since(begin).String()),
			slog.Group("message",
				slog.String("id", msg.ID),
				slog.String("transport_type", msg.TransportType),
			),
		}
		if err != nil {
			args = append(args, slog.Any("error", err))
			lm.logger.Warn("Forward outbound message failed", args...)
			return
		}
		lm.logger.Info("Forward outbound message completed successfully", args...)
	}(time.Now())

	return lm.svc.Forward(ctx, msg)
}

// HandleDeliverSM logs the deliver_sm handling. It logs the sequence number and the time it took to complete the request.
// If the request fails, it logs the error.
func (lm *loggingMiddleware) HandleDeliverSM(ctx context.Context, p pdu.Body) (err error) {
	defer func(begin time.Time) {
		args := []any{
			slog.String("duration", time.Since(begin).String()),
			slog.Uint64("sequence_number", uint64(p.Header().Seq)),
		}
		if err != nil {
			args = append(args, slog.Any("error", err))
			lm.logger.Warn("Handle deliver_sm failed", args...)
			return
		}
		lm.logger.Info("Handle deliver_sm completed successfully", args...)
	}(time.Now())

	return lm.svc.HandleDeliverSM(ctx, p)
}

// HandleSubmitSMResp logs the submit_sm_resp handling. It logs the sequence number and the time it took to complete the request.
// If the request fails, it logs the error.
func (lm *loggingMiddleware) HandleSubmitSMResp(ctx context.Context, p pdu.Body) (err error) {
	defer func(begin time.Time) {
		args := []any{
			slog.String("duration", time.Since(begin).String()),
			slog.Uint64("sequence_number", uint64(p.Header().Seq)),
		}
		if err != nil {
			args = append(args, slog.Any("error", err))
			lm.logger.Warn("Handle submit_sm_resp failed", args...)
			return
		}
		lm.logger.Info("Handle submit_sm_resp completed successfully", args...)
	}(time.Now())

	return lm.svc.HandleSubmitSMResp(ctx, p)
}

func (lm *loggingMiddleware) AttachSession(sub smpp.Submitter) {
	lm.logger.Info("Session attached")
	lm.svc.AttachSession(sub)
}

func (lm *loggingMiddleware) DetachSession() {
	lm.logger.Info("Session detached")
	lm.svc.DetachSession()
}

func (lm *loggingMiddleware) Throttled() bool {
	return lm.svc.Throttled()
}

func (lm *loggingMiddleware) Start(ctx context.Context) {
	lm.svc.Start(ctx)
}

func (lm *loggingMiddleware) Stop() {
	lm.svc.Stop()
}
