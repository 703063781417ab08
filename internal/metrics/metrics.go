// Package metrics holds the process-wide Prometheus collectors.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	ChatRequests = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "pdfchat_chat_requests_total",
		Help: "Chat requests by terminal stage (completed, rejected, failed_*).",
	}, []string{"outcome"})

	ChatDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "pdfchat_chat_duration_seconds",
		Help:    "End-to-end chat request latency.",
		Buckets: prometheus.ExponentialBuckets(0.1, 2, 10),
	})

	RetrievedSources = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "pdfchat_retrieved_sources",
		Help:    "Distinct sources kept after similarity filtering.",
		Buckets: []float64{0, 1, 2, 3, 4, 5},
	})

	DocumentsProcessed = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "pdfchat_documents_processed_total",
		Help: "Ingestion runs by final document status.",
	}, []string{"status"})

	ChunksSkipped = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "pdfchat_chunks_skipped_total",
		Help: "Chunks dropped from the index during ingestion, by reason.",
	}, []string{"reason"})

	UpstreamErrors = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "pdfchat_upstream_errors_total",
		Help: "Failed calls to external services by service and error kind.",
	}, []string{"service", "kind"})

	LLMCostUSD = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "pdfchat_llm_cost_usd_total",
		Help: "Estimated spend on completion and embedding calls.",
	}, []string{"provider", "model"})
)
