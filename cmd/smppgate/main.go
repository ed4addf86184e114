// Copyright (c) Abstract Machines
// SPDX-License-Identifier: Apache-2.0

// Package main contains smpp-gateway main function to start the smpp-gateway service.
package main

import (
	"context"
	"fmt"
	"log"
	"log/slog"
	"net/url"
	"os"

	chclient "github.com/absmach/callhome/pkg/client"
	"github.com/absmach/smppgate"
	"github.com/absmach/smppgate/internal"
	jaegerclient "github.com/absmach/smppgate/internal/clients/jaeger"
	redisclient "github.com/absmach/smppgate/internal/clients/redis"
	"github.com/absmach/smppgate/internal/env"
	"github.com/absmach/smppgate/internal/server"
	httpserver "github.com/absmach/smppgate/internal/server/http"
	sglog "github.com/absmach/smppgate/logger"
	"github.com/absmach/smppgate/pkg/messaging"
	"github.com/absmach/smppgate/pkg/messaging/brokers"
	brokerstracing "github.com/absmach/smppgate/pkg/messaging/brokers/tracing"
	"github.com/absmach/smppgate/pkg/ticker"
	"github.com/absmach/smppgate/pkg/ulid"
	"github.com/absmach/smppgate/pkg/uuid"
	"github.com/absmach/smppgate/smpp"
	"github.com/absmach/smppgate/smpp/api"
	smppredis "github.com/absmach/smppgate/smpp/redis"
	"golang.org/x/sync/errgroup"
)

const (
	svcName        = "smpp-gateway"
	envPrefixHTTP  = "SG_HTTP_"
	defSvcHTTPPort = "9020"
)

type config struct {
	LogLevel      string  `env:"SG_LOG_LEVEL"          envDefault:"info"`
	ConfigPath    string  `env:"SG_CONFIG"             envDefault:"/config/transport.yaml"`
	StashURL      string  `env:"SG_STASH_URL"          envDefault:"redis://localhost:6379/0"`
	BrokerURL     string  `env:"SG_BROKER_URL"         envDefault:"nats://localhost:4222"`
	JaegerURL     url.URL `env:"SG_JAEGER_URL"         envDefault:"http://localhost:4318/v1/traces"`
	SendTelemetry bool    `env:"SG_SEND_TELEMETRY"     envDefault:"true"`
	InstanceID    string  `env:"SG_INSTANCE_ID"        envDefault:""`
	TraceRatio    float64 `env:"SG_JAEGER_TRACE_RATIO" envDefault:"1.0"`
}

func main() {
	ctx, cancel := context.WithCancel(context.Background())
	g, ctx := errgroup.WithContext(ctx)

	cfg := config{}
	if err := env.Parse(&cfg); err != nil {
		log.Fatalf("failed to load %s configuration : %s", svcName, err)
	}

	logger, err := sglog.New(os.Stdout, cfg.LogLevel)
	if err != nil {
		log.Fatalf("failed to init logger: %s", err.Error())
	}

	var exitCode int
	defer sglog.ExitWithError(&exitCode)

	if cfg.InstanceID == "" {
		if cfg.InstanceID, err = uuid.New().ID(); err != nil {
			logger.Error(fmt.Sprintf("failed to generate instanceID: %s", err))
			exitCode = 1
			return
		}
	}

	transportCfg, err := smpp.LoadTransportConfig(cfg.ConfigPath)
	if err != nil {
		logger.Error(fmt.Sprintf("failed to load transport configuration: %s", err))
		exitCode = 1
		return
	}

	httpServerConfig := server.Config{Port: defSvcHTTPPort}
	if err := env.Parse(&httpServerConfig, env.Options{Prefix: envPrefixHTTP}); err != nil {
		logger.Error(fmt.Sprintf("failed to load %s HTTP server configuration : %s", svcName, err))
		exitCode = 1
		return
	}

	stashConn, err := redisclient.Connect(cfg.StashURL)
	if err != nil {
		logger.Error(fmt.Sprintf("failed to setup message stash redis client : %s", err))
		exitCode = 1
		return
	}
	defer stashConn.Close()

	tp, err := jaegerclient.NewProvider(ctx, svcName, cfg.JaegerURL, cfg.InstanceID, cfg.TraceRatio)
	if err != nil {
		logger.Error(fmt.Sprintf("Failed to init Jaeger: %s", err))
		exitCode = 1
		return
	}
	defer func() {
		if err := tp.Shutdown(ctx); err != nil {
			logger.Error(fmt.Sprintf("Error shutting down tracer provider: %v", err))
		}
	}()
	tracer := tp.Tracer(svcName)

	pubSub, err := brokers.NewPubSub(ctx, cfg.BrokerURL, logger)
	if err != nil {
		logger.Error(fmt.Sprintf("failed to connect to message broker: %s", err))
		exitCode = 1
		return
	}
	defer pubSub.Close()
	pubSub = brokerstracing.NewPubSub(httpServerConfig, tracer, pubSub)

	stash := smppredis.NewMessageStash(stashConn, transportCfg)
	clock := ticker.NewClock()
	connector := smpp.NewConnector(transportCfg, pubSub, logger)

	svc, err := newService(transportCfg, stash, pubSub, connector, clock, cfg.InstanceID, logger)
	if err != nil {
		logger.Error(fmt.Sprintf("failed to create %s service: %s", svcName, err))
		exitCode = 1
		return
	}

	ts := smpp.NewTransportService(ctx, cancel, transportCfg, svc, connector, clock, logger)
	hs := httpserver.New(ctx, cancel, svcName, httpServerConfig, api.MakeHandler(svcName, cfg.InstanceID), logger)

	if cfg.SendTelemetry {
		chc := chclient.New(svcName, smppgate.Version, logger, cancel)
		go chc.CallHome(ctx)
	}

	g.Go(func() error {
		return ts.Start()
	})

	g.Go(func() error {
		return hs.Start()
	})

	g.Go(func() error {
		return server.StopSignalHandler(ctx, cancel, logger, svcName, hs, ts)
	})

	if err := g.Wait(); err != nil {
		logger.Error(fmt.Sprintf("SMPP gateway terminated: %s", err))
	}
}

func newService(cfg smpp.TransportConfig, stash smpp.MessageStash, pub messaging.Publisher, conn smpp.Connector, clock ticker.Clock, instanceID string, logger *slog.Logger) (smpp.Service, error) {
	idp := uuid.New()
	evp := ulid.New()
	svc, err := smpp.New(cfg, stash, pub, conn, clock, idp, evp, instanceID, logger)
	if err != nil {
		return nil, err
	}
	svc = api.LoggingMiddleware(svc, logger)
	counter, latency := internal.MakeMetrics("gateway", "smpp")
	svc = api.MetricsMiddleware(svc, counter, latency)

	return svc, nil
}
