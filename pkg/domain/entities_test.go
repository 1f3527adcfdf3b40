package domain

import (
	"context"
	"testing"
)

func TestParseStatus(t *testing.T) {
	for _, known := range KnownStatuses() {
		parsed, ok := ParseStatus(string(known))
		if !ok {
			t.Fatalf("parse %s failed", known)
		}
		if parsed != known {
			t.Fatalf("expected %s got %s", known, parsed)
		}
	}
	if _, ok := ParseStatus("blocked"); ok {
		t.Fatalf("expected failure for unrecognized status")
	}
	if parsed, ok := ParseStatus("  done "); !ok || parsed != StatusDone {
		t.Fatalf("expected trimmed parse to succeed, got %q ok=%v", parsed, ok)
	}
}

func TestStatusLabels(t *testing.T) {
	cases := map[CriterionStatus]string{
		StatusNotStarted: "Not started",
		StatusInProgress: "In progress",
		StatusDone:       "Done",
		StatusDelayed:    "Delayed",
		StatusCaveat:     "Caveat",
	}
	for status, want := range cases {
		if got := status.Label(); got != want {
			t.Fatalf("label for %s: got %q want %q", status, got, want)
		}
	}
	if CriterionStatus("bogus").Valid() {
		t.Fatalf("bogus status must not be valid")
	}
}

func TestEvidenceKindValid(t *testing.T) {
	for _, kind := range []EvidenceKind{EvidenceNote, EvidenceLink, EvidenceFile} {
		if !kind.Valid() {
			t.Fatalf("kind %s should be valid", kind)
		}
	}
	if EvidenceKind("photo").Valid() {
		t.Fatalf("unknown kind should be invalid")
	}
}

func TestChangePayloadRoundTrip(t *testing.T) {
	payload, err := NewChangePayloadFromValue(Criterion{Title: "tls configured"})
	if err != nil {
		t.Fatalf("build payload: %v", err)
	}
	if !payload.Defined() {
		t.Fatalf("payload should be defined")
	}
	raw := payload.Raw()
	if len(raw) == 0 {
		t.Fatalf("raw payload should not be empty")
	}
	raw[0] = '!'
	if payload.Raw()[0] == '!' {
		t.Fatalf("Raw must return a defensive copy")
	}
	var undef ChangePayload
	if undef.Defined() {
		t.Fatalf("zero payload should be undefined")
	}
}

func TestResultMergeAndBlocking(t *testing.T) {
	var res Result
	if res.HasBlocking() {
		t.Fatalf("empty result must not block")
	}
	res.Merge(Result{Violations: []Violation{{Rule: "a", Severity: SeverityWarn}}})
	if res.HasBlocking() {
		t.Fatalf("warn severity must not block")
	}
	res.Merge(Result{Violations: []Violation{{Rule: "b", Severity: SeverityBlock, Message: "nope"}}})
	if !res.HasBlocking() {
		t.Fatalf("block severity must block")
	}
	err := RuleViolationError{Result: res}
	if err.Error() == "" {
		t.Fatalf("violation error should describe itself")
	}
}

type countingRule struct{ calls int }

func (r *countingRule) Name() string { return "counting" }

func (r *countingRule) Evaluate(context.Context, RuleView, []Change) (Result, error) {
	r.calls++
	return Result{}, nil
}

func TestRulesEngineEvaluatesAllRules(t *testing.T) {
	engine := NewRulesEngine()
	first := &countingRule{}
	second := &countingRule{}
	engine.Register(first)
	engine.Register(second)
	if _, err := engine.Evaluate(context.Background(), nil, nil); err != nil {
		t.Fatalf("evaluate: %v", err)
	}
	if first.calls != 1 || second.calls != 1 {
		t.Fatalf("expected each rule evaluated once, got %d and %d", first.calls, second.calls)
	}
}
