package bot

import (
	"errors"
	"testing"

	"distrack/internal/errs"
)

func TestParseCustomID(t *testing.T) {
	tests := []struct {
		raw    string
		kind   componentKind
		action string
		param  string
		ok     bool
	}{
		{raw: "ticket:create", kind: kindComponent, action: actionCreate, ok: true},
		{raw: "ticket:close", kind: kindComponent, action: actionClose, ok: true},
		{raw: "ticket:reopen", kind: kindComponent, action: actionReopen, ok: true},
		{raw: "ticket:delete", kind: kindComponent, action: actionDelete, ok: true},
		{raw: "ticket:category", kind: kindComponent, action: actionCategory, ok: true},
		{raw: "ticket:submit:bug_report", kind: kindModal, action: actionSubmit, param: "bug_report", ok: true},
		{raw: "ticket:submit:general_support", kind: kindModal, action: actionSubmit, param: "general_support", ok: true},
		{raw: "ticket:submit", kind: kindModal},
		{raw: "ticket:submit:", kind: kindModal},
		{raw: "ticket:submit:a:b", kind: kindModal},
		{raw: "ticket:submit:bug_report", kind: kindComponent},
		{raw: "ticket:close", kind: kindModal},
		{raw: "ticket:close:extra", kind: kindComponent},
		{raw: "ticket_create", kind: kindComponent},
		{raw: "ticket:explode", kind: kindComponent},
		{raw: "poll:vote", kind: kindComponent},
		{raw: "", kind: kindComponent},
	}
	for _, tt := range tests {
		id, err := ParseCustomID(tt.raw, tt.kind)
		if !tt.ok {
			if !errors.Is(err, errs.ErrUnknownComponent) {
				t.Fatalf("%q: expected unknown component, got %v", tt.raw, err)
			}
			continue
		}
		if err != nil {
			t.Fatalf("%q: unexpected error: %v", tt.raw, err)
		}
		if id.Domain != domainTicket || id.Action != tt.action || id.Param(0) != tt.param {
			t.Fatalf("%q: unexpected parse %+v", tt.raw, id)
		}
	}
}

func TestCustomIDRoundTrip(t *testing.T) {
	raw := newCustomID(domainTicket, actionSubmit, "feature_request")
	if raw != "ticket:submit:feature_request" {
		t.Fatalf("unexpected custom id %q", raw)
	}
	id, err := ParseCustomID(raw, kindModal)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if id.String() != raw {
		t.Fatalf("expected %q, got %q", raw, id.String())
	}
	if id.Param(3) != "" {
		t.Fatalf("expected empty out-of-range param")
	}
}
