// Package metrics provides Prometheus metrics for the node: counters,
// gauges, and histograms for the subsystem runtime, the capability
// registry, tool-chain executions, MCP client connections, the
// variety/gap controller, the bus, and the tiered store.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// ─── Subsystem runtime ──────────────────────────────────────────────────────

// OperationsExecuted tracks S1 operations executed by kind and outcome.
var OperationsExecuted = promauto.NewCounterVec(prometheus.CounterOpts{
	Namespace: "vsmcore",
	Name:      "operations_executed_total",
	Help:      "Total S1 operations executed.",
}, []string{"kind", "outcome"})

// AlgedonicSignals tracks algedonic signals received by S5, by reason.
var AlgedonicSignals = promauto.NewCounterVec(prometheus.CounterOpts{
	Namespace: "vsmcore",
	Name:      "algedonic_signals_total",
	Help:      "Total algedonic signals handled by S5.",
}, []string{"reason"})

// SubsystemRestarts tracks supervisor-driven restarts of subsystem actors.
var SubsystemRestarts = promauto.NewCounterVec(prometheus.CounterOpts{
	Namespace: "vsmcore",
	Name:      "subsystem_restarts_total",
	Help:      "Total supervised restarts of a subsystem actor loop.",
}, []string{"actor"})

// ─── Capability registry ────────────────────────────────────────────────────

// CapabilitiesRegistered tracks the number of capabilities currently
// registered, by kind and source.
var CapabilitiesRegistered = promauto.NewGaugeVec(prometheus.GaugeOpts{
	Namespace: "vsmcore",
	Name:      "capabilities_registered",
	Help:      "Number of capabilities currently registered.",
}, []string{"kind", "source"})

// CapabilityMatchScore tracks the top match score per discovery call.
var CapabilityMatchScore = promauto.NewHistogram(prometheus.HistogramOpts{
	Namespace: "vsmcore",
	Name:      "capability_match_score",
	Help:      "Top match score returned by a capability discovery call.",
	Buckets:   []float64{0, 10, 25, 50, 75, 100, 150, 200},
})

// VarietyGapSize tracks the registry's computed variety gap.
var VarietyGapSize = promauto.NewGauge(prometheus.GaugeOpts{
	Namespace: "vsmcore",
	Name:      "capability_variety_gap",
	Help:      "Current required-minus-available capability variety gap.",
})

// ─── Tool-chain engine ───────────────────────────────────────────────────────

// ChainExecutions tracks tool-chain executions by terminal status.
var ChainExecutions = promauto.NewCounterVec(prometheus.CounterOpts{
	Namespace: "vsmcore",
	Name:      "chain_executions_total",
	Help:      "Total tool-chain executions by terminal status.",
}, []string{"status"})

// ChainStepDuration tracks per-step execution duration in seconds.
var ChainStepDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
	Namespace: "vsmcore",
	Name:      "chain_step_duration_seconds",
	Help:      "Tool-chain step execution duration in seconds.",
	Buckets:   prometheus.DefBuckets,
}, []string{"chain"})

// ChainStepRetries tracks retry attempts consumed by transient failures.
var ChainStepRetries = promauto.NewCounterVec(prometheus.CounterOpts{
	Namespace: "vsmcore",
	Name:      "chain_step_retries_total",
	Help:      "Total tool-chain step retry attempts.",
}, []string{"chain"})

// ─── MCP client ──────────────────────────────────────────────────────────────

// MCPConnectionState tracks each server connection's current state as a
// gauge (1 for the active state label, 0 otherwise).
var MCPConnectionState = promauto.NewGaugeVec(prometheus.GaugeOpts{
	Namespace: "vsmcore",
	Name:      "mcp_connection_state",
	Help:      "MCP client connection state per server (1=active, 0=inactive).",
}, []string{"server", "state"})

// MCPCallLatency tracks MCP tool call round-trip latency in seconds.
var MCPCallLatency = promauto.NewHistogramVec(prometheus.HistogramOpts{
	Namespace: "vsmcore",
	Name:      "mcp_call_latency_seconds",
	Help:      "MCP tool call round-trip latency in seconds.",
	Buckets:   prometheus.DefBuckets,
}, []string{"server"})

// MCPCallFailures tracks failed MCP tool calls per server.
var MCPCallFailures = promauto.NewCounterVec(prometheus.CounterOpts{
	Namespace: "vsmcore",
	Name:      "mcp_call_failures_total",
	Help:      "Total failed MCP tool calls per server.",
}, []string{"server"})

// ─── Variety/gap controller ──────────────────────────────────────────────────

// VarietyRatio tracks the most recent gap ratio measurement.
var VarietyRatio = promauto.NewGauge(prometheus.GaugeOpts{
	Namespace: "vsmcore",
	Name:      "variety_gap_ratio",
	Help:      "Most recent (environmental-operational)/operational variety ratio.",
})

// VarietyEntropy tracks the most recent subsystem state-type entropy.
var VarietyEntropy = promauto.NewGauge(prometheus.GaugeOpts{
	Namespace: "vsmcore",
	Name:      "variety_entropy_bits",
	Help:      "Most recent Shannon entropy, in bits, of subsystem state types.",
})

// VarietyActions tracks autonomous actions taken by the controller.
var VarietyActions = promauto.NewCounterVec(prometheus.CounterOpts{
	Namespace: "vsmcore",
	Name:      "variety_actions_total",
	Help:      "Total autonomous actions taken by the variety controller.",
}, []string{"kind"})

// ─── Bus ─────────────────────────────────────────────────────────────────────

// BusMessagesPublished tracks messages published per channel.
var BusMessagesPublished = promauto.NewCounterVec(prometheus.CounterOpts{
	Namespace: "vsmcore",
	Name:      "bus_messages_published_total",
	Help:      "Total messages published per channel.",
}, []string{"channel"})

// BusMailboxDepth tracks per-subscriber mailbox queue depth.
var BusMailboxDepth = promauto.NewGaugeVec(prometheus.GaugeOpts{
	Namespace: "vsmcore",
	Name:      "bus_mailbox_depth",
	Help:      "Current queue depth per subscriber mailbox.",
}, []string{"subscriber"})

// ─── Tiered store ────────────────────────────────────────────────────────────

// StoreTierCount tracks entry counts per tier.
var StoreTierCount = promauto.NewGaugeVec(prometheus.GaugeOpts{
	Namespace: "vsmcore",
	Name:      "store_tier_entries",
	Help:      "Number of entries currently held per tier.",
}, []string{"tier"})
