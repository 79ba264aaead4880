package storage

import (
	"errors"
	"testing"
	"time"

	"distrack/internal/errs"
)

func TestTicketTransitions(t *testing.T) {
	now := time.Now()
	ticket := Ticket{Status: TicketOpen}

	if err := ticket.Reopen(now); !errors.Is(err, errs.ErrInvalidState) {
		t.Fatalf("expected invalid state reopening an open ticket, got %v", err)
	}
	if err := ticket.Close("staff", now); err != nil {
		t.Fatalf("close: %v", err)
	}
	if err := ticket.Close("staff", now); !errors.Is(err, errs.ErrInvalidState) {
		t.Fatalf("expected invalid state closing twice, got %v", err)
	}
	if err := ticket.Reopen(now); err != nil {
		t.Fatalf("reopen: %v", err)
	}
	if ticket.Status != TicketOpen || ticket.ClosedAt != nil || ticket.ClosedBy != "" {
		t.Fatalf("expected close stamps cleared, got %+v", ticket)
	}
	if err := ticket.Archive("staff", now); err != nil {
		t.Fatalf("archive: %v", err)
	}
	if ticket.ClosedAt == nil || ticket.ClosedBy != "staff" {
		t.Fatalf("expected archive to stamp close fields")
	}
	if err := ticket.Archive("staff", now); !errors.Is(err, errs.ErrInvalidState) {
		t.Fatalf("expected archived to be terminal, got %v", err)
	}
}

func TestArchiveKeepsExistingCloseStamp(t *testing.T) {
	closedAt := time.Now().Add(-time.Hour)
	ticket := Ticket{Status: TicketClosed, ClosedAt: &closedAt, ClosedBy: "first"}
	if err := ticket.Archive("second", time.Now()); err != nil {
		t.Fatalf("archive: %v", err)
	}
	if ticket.ClosedBy != "first" || !ticket.ClosedAt.Equal(closedAt) {
		t.Fatalf("expected original close stamp, got %s at %v", ticket.ClosedBy, ticket.ClosedAt)
	}
}

func TestWarningExpiryIsIndependentOfActive(t *testing.T) {
	now := time.Now()
	past := now.Add(-time.Minute)
	warning := Warning{Active: true, ExpiresAt: &past}
	if !warning.IsExpired(now) {
		t.Fatalf("expected expired")
	}
	if !warning.Active {
		t.Fatalf("expected warning to stay active")
	}
	if (Warning{Active: true}).IsExpired(now) {
		t.Fatalf("expected warning without expiry to never expire")
	}
}

func TestWarningRemoveIsOneWay(t *testing.T) {
	now := time.Now()
	warning := Warning{Active: true}
	if err := warning.Remove("mod", "appeal", now); err != nil {
		t.Fatalf("remove: %v", err)
	}
	if warning.Active || warning.RemovedBy != "mod" || warning.RemovedReason != "appeal" || warning.RemovedAt == nil {
		t.Fatalf("unexpected removal metadata %+v", warning)
	}
	if err := warning.Remove("mod", "again", now); !errors.Is(err, errs.ErrWarningInactive) {
		t.Fatalf("expected inactive error, got %v", err)
	}
}

func TestParseEnums(t *testing.T) {
	if p, _ := ParsePriority(""); p != PriorityMedium {
		t.Fatalf("expected default medium priority, got %s", p)
	}
	if s, _ := ParseSeverity("HIGH"); s != SeverityHigh {
		t.Fatalf("expected high severity, got %s", s)
	}
	if _, err := ParseSeverity("extreme"); errs.KindOf(err) != errs.InvalidInput {
		t.Fatalf("expected invalid input, got %v", err)
	}
	if FormatTicketID(7) != "ticket-0007" || FormatWarningID(12) != "warn-0012" {
		t.Fatalf("unexpected id format")
	}
}
