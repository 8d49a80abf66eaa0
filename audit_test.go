package lifehelper

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/sengeiou/life-helper-server/credential"
)

type captureSink struct {
	events chan AuditEvent
}

func newCaptureSink(buffer int) *captureSink {
	if buffer <= 0 {
		buffer = 1
	}
	return &captureSink{
		events: make(chan AuditEvent, buffer),
	}
}

func (s *captureSink) Emit(ctx context.Context, event AuditEvent) {
	select {
	case s.events <- event:
	case <-ctx.Done():
	}
}

func (s *captureSink) next(t *testing.T) AuditEvent {
	t.Helper()
	select {
	case e := <-s.events:
		return e
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for audit event")
		return AuditEvent{}
	}
}

func auditConfig(c *Config) {
	c.Audit.Enabled = true
	c.Audit.BufferSize = 64
	c.Audit.DropIfFull = false
}

func TestAuditTicketLifecycleEvents(t *testing.T) {
	sink := newCaptureSink(16)
	engine, _ := newTestEngine(t, testEngineOptions{mutate: auditConfig, sink: sink})

	ctx := WithUserAgent(WithClientIP(context.Background(), "203.0.113.9"), "test-agent")
	issued, err := engine.IssueTicket(ctx)
	if err != nil {
		t.Fatalf("IssueTicket failed: %v", err)
	}
	if err := engine.MarkTicketScanned(ctx, issued.TicketID); err != nil {
		t.Fatalf("scan failed: %v", err)
	}
	if err := engine.ConfirmTicket(ctx, issued.TicketID, "42"); err != nil {
		t.Fatalf("confirm failed: %v", err)
	}
	if _, err := engine.PollTicket(ctx, issued.TicketID); err != nil {
		t.Fatalf("poll failed: %v", err)
	}

	want := []string{
		auditEventTicketIssued,
		auditEventTicketScanned,
		auditEventTicketConfirmed,
		auditEventTicketConsumed,
	}
	for _, name := range want {
		e := sink.next(t)
		if e.EventType != name {
			t.Fatalf("expected %s, got %s", name, e.EventType)
		}
		if !e.Success || e.TicketID != issued.TicketID {
			t.Fatalf("unexpected event %+v", e)
		}
		if e.IP != "203.0.113.9" || e.UserAgent != "test-agent" {
			t.Fatalf("request metadata not propagated: %+v", e)
		}
	}
}

func TestAuditRejectedTransition(t *testing.T) {
	sink := newCaptureSink(16)
	engine, _ := newTestEngine(t, testEngineOptions{mutate: auditConfig, sink: sink})
	ctx := context.Background()

	issued, err := engine.IssueTicket(ctx)
	if err != nil {
		t.Fatalf("IssueTicket failed: %v", err)
	}
	_ = sink.next(t)

	if err := engine.ConfirmTicket(ctx, issued.TicketID, "42"); !errors.Is(err, ErrInvalidTransition) {
		t.Fatalf("expected ErrInvalidTransition, got %v", err)
	}
	e := sink.next(t)
	if e.EventType != auditEventTicketRejected || e.Success {
		t.Fatalf("unexpected event %+v", e)
	}
	if e.Error != string(auditErrInvalidTransition) || e.Metadata["target"] != "CONFIRMED" {
		t.Fatalf("unexpected rejection detail %+v", e)
	}
}

func TestAuditExchangeLoginEvents(t *testing.T) {
	sink := newCaptureSink(16)
	engine, _ := newTestEngine(t, testEngineOptions{
		mutate:    auditConfig,
		sink:      sink,
		exchanger: &fakeExchanger{codes: map[string]string{"good": "openid"}},
		users:     &fakeUsers{},
	})
	ctx := context.Background()

	if _, err := engine.LoginByExchangeCode(ctx, "good"); err != nil {
		t.Fatalf("login failed: %v", err)
	}
	e := sink.next(t)
	if e.EventType != auditEventExchangeLoginSuccess || e.UserID == "" {
		t.Fatalf("unexpected success event %+v", e)
	}

	if _, err := engine.LoginByExchangeCode(ctx, "bad"); err == nil {
		t.Fatal("expected bad code to fail")
	}
	e = sink.next(t)
	if e.EventType != auditEventExchangeLoginFailure || e.Error != string(auditErrCodeInvalid) {
		t.Fatalf("unexpected failure event %+v", e)
	}
	if e.Metadata["stage"] != "exchange" {
		t.Fatalf("expected exchange stage, got %v", e.Metadata)
	}
}

func TestAuditCredentialFetch(t *testing.T) {
	sink := newCaptureSink(16)
	engine, _ := newTestEngine(t, testEngineOptions{
		mutate: auditConfig,
		sink:   sink,
		issuer: &fakeIssuer{},
	})

	if _, err := engine.CredentialToken(context.Background()); err != nil {
		t.Fatalf("CredentialToken failed: %v", err)
	}
	e := sink.next(t)
	if e.EventType != auditEventCredentialFetched || !e.Success || e.Metadata["mode"] != "miss" {
		t.Fatalf("unexpected credential event %+v", e)
	}
}

func TestAuditDisabledEmitsNothing(t *testing.T) {
	sink := newCaptureSink(4)
	engine, _ := newTestEngine(t, testEngineOptions{sink: sink})

	if _, err := engine.IssueTicket(context.Background()); err != nil {
		t.Fatalf("IssueTicket failed: %v", err)
	}
	engine.Close()

	select {
	case e := <-sink.events:
		t.Fatalf("expected no events, got %+v", e)
	default:
	}
}

func TestAuditErrorCodeMapping(t *testing.T) {
	tests := []struct {
		err  error
		want AuditErrorCode
	}{
		{nil, ""},
		{ErrTicketNotFound, auditErrTicketNotFound},
		{fmt.Errorf("%w: x", ErrInvalidTransition), auditErrInvalidTransition},
		{ErrTicketRateLimited, auditErrRateLimited},
		{ErrExchangeCodeInvalid, auditErrCodeInvalid},
		{ErrInvalidIdentity, auditErrInvalidIdentity},
		{ErrUpstreamInvalidCredential, auditErrInvalidCredential},
		{ErrUpstreamUnavailable, auditErrUpstream},
		{ErrSessionMintFailed, auditErrSessionMintFailed},
		{ErrUnauthorized, auditErrUnauthorized},
		{ErrStoreUnavailable, auditErrUnavailable},
		{ErrEngineNotReady, auditErrUnavailable},
		{credential.ErrInvalidCredentialTTL, auditErrInternal},
	}
	for _, tt := range tests {
		if got := auditErrorCode(tt.err); got != tt.want {
			t.Fatalf("auditErrorCode(%v) = %q, want %q", tt.err, got, tt.want)
		}
	}
}
