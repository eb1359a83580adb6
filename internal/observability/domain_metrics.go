package observability

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

var (
	datasetIngestsTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "tabchat_dataset_ingests_total",
			Help: "Total number of dataset ingestion attempts.",
		},
	)
	datasetRowsIngested = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "tabchat_dataset_rows_ingested_total",
			Help: "Total number of rows loaded into the relational store.",
		},
	)
	datasetIngestLatencyMs = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "tabchat_dataset_ingest_latency_ms",
			Help:    "Dataset ingestion latency in milliseconds.",
			Buckets: []float64{10, 25, 50, 100, 250, 500, 1000, 2500, 5000, 10000},
		},
	)
	chatTurnsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "tabchat_chat_turns_total",
			Help: "Total number of inference round trips by chat mode.",
		},
		[]string{"mode"},
	)
	toolInvocationsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "tabchat_tool_invocations_total",
			Help: "Total number of tool invocations by outcome.",
		},
		[]string{"tool", "outcome"},
	)
	translationsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "tabchat_translations_total",
			Help: "Total number of natural-language query translations by outcome.",
		},
		[]string{"outcome"},
	)
	queryLatencyMs = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "tabchat_query_latency_ms",
			Help:    "Relational store query latency in milliseconds.",
			Buckets: []float64{1, 5, 10, 25, 50, 100, 250, 500, 1000, 5000},
		},
	)
)

func init() {
	prometheus.MustRegister(
		datasetIngestsTotal,
		datasetRowsIngested,
		datasetIngestLatencyMs,
		chatTurnsTotal,
		toolInvocationsTotal,
		translationsTotal,
		queryLatencyMs,
	)
}

func ObserveDatasetIngest(rows int, elapsed time.Duration) {
	datasetIngestsTotal.Inc()
	if rows > 0 {
		datasetRowsIngested.Add(float64(rows))
	}
	datasetIngestLatencyMs.Observe(float64(elapsed.Milliseconds()))
}

func IncrementChatTurn(mode string) {
	chatTurnsTotal.WithLabelValues(mode).Inc()
}

func IncrementToolInvocation(tool, outcome string) {
	toolInvocationsTotal.WithLabelValues(tool, outcome).Inc()
}

func IncrementTranslation(outcome string) {
	translationsTotal.WithLabelValues(outcome).Inc()
}

func ObserveQueryLatency(elapsed time.Duration) {
	queryLatencyMs.Observe(float64(elapsed.Milliseconds()))
}
