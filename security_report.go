package lifehelper

import "time"

// SecurityReport summarizes the security-relevant settings of a built
// engine, for startup logs and admin endpoints.
type SecurityReport struct {
	SigningAlgorithm      string
	TicketTTL             time.Duration
	SessionTTL            time.Duration
	IssueThrottleActive   bool
	PollThrottleActive    bool
	CredentialCache       bool
	CredentialRefresher   bool
	CredentialProbeActive bool
	CodeLoginEnabled      bool
	AuditEnabled          bool
	MetricsEnabled        bool
}

func (e *Engine) SecurityReport() SecurityReport {
	if e == nil {
		return SecurityReport{}
	}

	return SecurityReport{
		SigningAlgorithm:      e.config.JWT.SigningMethod,
		TicketTTL:             e.config.Ticket.TTL,
		SessionTTL:            e.config.JWT.SessionTTL,
		IssueThrottleActive:   e.config.RateLimit.EnableIssueThrottle && e.config.RateLimit.MaxIssuesPerIP > 0,
		PollThrottleActive:    e.config.RateLimit.EnablePollThrottle && e.config.RateLimit.MaxPollsPerTicket > 0,
		CredentialCache:       e.credentials != nil,
		CredentialRefresher:   e.refresher != nil,
		CredentialProbeActive: e.refresher != nil && e.hasProber,
		CodeLoginEnabled:      e.exchanger != nil && e.users != nil,
		AuditEnabled:          e.config.Audit.Enabled,
		MetricsEnabled:        e.config.Metrics.Enabled,
	}
}
