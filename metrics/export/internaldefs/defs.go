package internaldefs

import (
	lifehelper "github.com/sengeiou/life-helper-server"
	"github.com/sengeiou/life-helper-server/credential"
)

// CounterDef binds an engine counter to its exported name.
type CounterDef struct {
	ID   lifehelper.MetricID
	Name string
	Help string
}

// HistogramDef binds an engine histogram to its exported name.
type HistogramDef struct {
	ID   lifehelper.MetricID
	Name string
	Help string
}

// CounterDefs lists every exported counter in render order.
var CounterDefs = []CounterDef{
	{ID: lifehelper.MetricTicketIssued, Name: "lifehelper_ticket_issued_total", Help: "QR login tickets issued."},
	{ID: lifehelper.MetricTicketScanned, Name: "lifehelper_ticket_scanned_total", Help: "QR login tickets marked scanned."},
	{ID: lifehelper.MetricTicketConfirmed, Name: "lifehelper_ticket_confirmed_total", Help: "QR login tickets confirmed."},
	{ID: lifehelper.MetricTicketConsumed, Name: "lifehelper_ticket_consumed_total", Help: "QR login tickets consumed by a poll."},
	{ID: lifehelper.MetricTicketNotFound, Name: "lifehelper_ticket_not_found_total", Help: "Lookups of missing or expired tickets."},
	{ID: lifehelper.MetricTicketInvalidTransition, Name: "lifehelper_ticket_invalid_transition_total", Help: "Rejected ticket status transitions."},
	{ID: lifehelper.MetricTicketRateLimited, Name: "lifehelper_ticket_rate_limited_total", Help: "Ticket issue or poll calls denied by rate limits."},
	{ID: lifehelper.MetricTicketResourceFailure, Name: "lifehelper_ticket_resource_failure_total", Help: "Ticket issuances whose QR artifact could not be created."},
	{ID: lifehelper.MetricExchangeLoginSuccess, Name: "lifehelper_code_login_success_total", Help: "Successful code logins."},
	{ID: lifehelper.MetricExchangeLoginCodeInvalid, Name: "lifehelper_code_login_code_invalid_total", Help: "Code logins rejected for an invalid code."},
	{ID: lifehelper.MetricExchangeLoginUpstreamFailure, Name: "lifehelper_code_login_upstream_failure_total", Help: "Code logins failed by the identity provider."},
	{ID: lifehelper.MetricExchangeLoginResolveFailure, Name: "lifehelper_code_login_resolve_failure_total", Help: "Code logins whose local user could not be resolved."},
	{ID: lifehelper.MetricSessionMinted, Name: "lifehelper_session_minted_total", Help: "Session tokens minted."},
	{ID: lifehelper.MetricSessionMintFailure, Name: "lifehelper_session_mint_failure_total", Help: "Session tokens that failed to sign."},
	{ID: lifehelper.MetricSessionValidateFailure, Name: "lifehelper_session_validate_failure_total", Help: "Session tokens rejected on validation."},
	{ID: lifehelper.MetricCredentialFetch, Name: "lifehelper_credential_fetch_total", Help: "Upstream credential fetches."},
	{ID: lifehelper.MetricCredentialFetchFailure, Name: "lifehelper_credential_fetch_failure_total", Help: "Failed upstream credential fetches."},
	{ID: lifehelper.MetricCredentialRefreshed, Name: "lifehelper_credential_refreshed_total", Help: "Refresher cycles that replaced the credential."},
	{ID: lifehelper.MetricCredentialRefreshFailure, Name: "lifehelper_credential_refresh_failure_total", Help: "Refresher cycles whose refresh failed."},
	{ID: lifehelper.MetricCredentialProbeSkipped, Name: "lifehelper_credential_probe_skipped_total", Help: "Refresher cycles skipped because the upstream was unreachable."},
}

// OutcomeDef binds an engine counter to one outcome label value of a
// labeled family.
type OutcomeDef struct {
	ID      lifehelper.MetricID
	Outcome string
}

// RefreshCycles is the refresher cycle family, one series per outcome.
var RefreshCycles = struct {
	Name     string
	Help     string
	Label    string
	Outcomes []OutcomeDef
}{
	Name:  "lifehelper_credential_refresh_cycles_total",
	Help:  "Credential refresher cycles by outcome.",
	Label: "outcome",
	Outcomes: []OutcomeDef{
		{ID: lifehelper.MetricCredentialFresh, Outcome: credential.OutcomeFresh.String()},
		{ID: lifehelper.MetricCredentialRefreshed, Outcome: credential.OutcomeRefreshed.String()},
		{ID: lifehelper.MetricCredentialRefreshFailure, Outcome: credential.OutcomeRefreshFailed.String()},
		{ID: lifehelper.MetricCredentialProbeSkipped, Outcome: credential.OutcomeSkipped.String()},
	},
}

// AuditDroppedEvents is the per event type family of dropped audit events.
var AuditDroppedEvents = struct {
	Name  string
	Help  string
	Label string
}{
	Name:  "lifehelper_audit_dropped_events_total",
	Help:  "Dropped audit events by event type.",
	Label: "event",
}

// HistogramDefs lists every exported histogram in render order.
var HistogramDefs = []HistogramDef{
	{ID: lifehelper.MetricPollLatency, Name: "lifehelper_ticket_poll_latency_seconds", Help: "Ticket poll latency histogram."},
	{ID: lifehelper.MetricExchangeLoginLatency, Name: "lifehelper_code_login_latency_seconds", Help: "Code login latency histogram."},
}

// HistogramBounds are the upper bucket bounds in seconds, matching the
// engine's millisecond buckets.
var HistogramBounds = []string{
	"0.005",
	"0.01",
	"0.025",
	"0.05",
	"0.1",
	"0.25",
	"0.5",
	"+Inf",
}

// HistogramBoundSuffix are the bounds rendered for instrument names.
var HistogramBoundSuffix = []string{
	"0_005",
	"0_01",
	"0_025",
	"0_05",
	"0_1",
	"0_25",
	"0_5",
	"inf",
}

// NormalizeBuckets copies raw into a fixed-size bucket array. Missing
// buckets are zero.
func NormalizeBuckets(raw []uint64) [8]uint64 {
	var out [8]uint64
	for i := 0; i < len(out) && i < len(raw); i++ {
		out[i] = raw[i]
	}
	return out
}

// CumulativeBuckets converts per-bucket counts into running totals.
func CumulativeBuckets(raw [8]uint64) [8]uint64 {
	var out [8]uint64
	var running uint64
	for i := 0; i < len(raw); i++ {
		running += raw[i]
		out[i] = running
	}
	return out
}
