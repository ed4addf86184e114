// Copyright (c) Abstract Machines
// SPDX-License-Identifier: Apache-2.0

package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/absmach/smppgate"
)

// MakeHandler returns the HTTP handler of the gateway's operational
// surface: health and Prometheus metrics.
func MakeHandler(svcName, instanceID string) http.Handler {
	mux := chi.NewRouter()

	mux.Get("/health", smppgate.Health(svcName, instanceID))
	mux.Handle("/metrics", promhttp.Handler())

	return mux
}
