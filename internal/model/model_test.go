package model

import (
	"errors"
	"fmt"
	"testing"
	"time"
)

func TestRunReport_Add(t *testing.T) {
	r := NewRunReport("daily", time.Date(2024, 3, 15, 22, 30, 0, 0, time.UTC))
	if r.RunID == "" {
		t.Fatal("expected run id")
	}

	var ok IngestionOutcome
	ok.Ticker = "AAA"
	ok.Succeed(3)
	r.Add(ok)

	var bad IngestionOutcome
	bad.Ticker = "CCC"
	bad.Fail(KindNotFound, errors.New("no such symbol"), 0)
	r.Add(bad)

	if r.Attempted != 2 || r.Succeeded != 1 || r.Failed != 1 || r.Written != 3 {
		t.Fatalf("unexpected totals: %+v", r)
	}
	if r.Succeeded+r.Failed != r.Attempted {
		t.Errorf("succeeded+failed != attempted")
	}
	if len(r.Errors) != 1 || r.Errors[0].Ticker != "CCC" || r.Errors[0].Kind != KindNotFound {
		t.Errorf("unexpected errors: %+v", r.Errors)
	}
	o, found := r.Outcome("CCC")
	if !found || o.State != StatePermanentlyFailed || o.Message != "no such symbol" {
		t.Errorf("unexpected outcome: %+v", o)
	}
	if _, found := r.Outcome("ZZZ"); found {
		t.Error("unexpected outcome for ZZZ")
	}
}

func TestRunReport_Duration(t *testing.T) {
	start := time.Date(2024, 3, 15, 22, 30, 0, 0, time.UTC)
	r := NewRunReport("daily", start)
	if r.Duration() != 0 {
		t.Errorf("unfinished run duration = %v", r.Duration())
	}
	r.FinishedAt = start.Add(90 * time.Second)
	if r.Duration() != 90*time.Second {
		t.Errorf("duration = %v", r.Duration())
	}
}

func TestIngestionOutcome_SucceedClearsFailure(t *testing.T) {
	var o IngestionOutcome
	o.Fail(KindTransport, errors.New("reset"), 0)
	o.Succeed(1)
	if !o.Success || o.Kind != "" || o.Message != "" || !o.State.Terminal() {
		t.Errorf("unexpected outcome: %+v", o)
	}
}

func TestKindOf(t *testing.T) {
	notFound := NewError(KindNotFound, "CCC", errors.New("missing"))
	tests := []struct {
		name string
		err  error
		want ErrorKind
	}{
		{"nil", nil, ""},
		{"ingest error", notFound, KindNotFound},
		{"wrapped ingest error", fmt.Errorf("attempt 2: %w", notFound), KindNotFound},
		{"precondition", fmt.Errorf("list: %w", ErrPreconditionFailure), KindPreconditionFailure},
		{"precondition wraps ingest error", fmt.Errorf("list: %w: %w", ErrPreconditionFailure, notFound), KindPreconditionFailure},
		{"plain error", errors.New("timeout"), KindTransport},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := KindOf(tt.err); got != tt.want {
				t.Errorf("KindOf() = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestIngestError_Error(t *testing.T) {
	e := Errorf(KindRateLimited, "AAA", "status %d", 429)
	if e.Error() != "AAA RateLimited: status 429" {
		t.Errorf("got %q", e.Error())
	}
	e = Errorf(KindMalformed, "", "bad body")
	if e.Error() != "Malformed: bad body" {
		t.Errorf("got %q", e.Error())
	}
}

func TestDateRange(t *testing.T) {
	d1 := time.Date(2024, 6, 5, 0, 0, 0, 0, time.UTC)
	d2 := d1.AddDate(0, 0, 9)
	r := DateRange{Start: d1, End: d2}
	if r.Empty() {
		t.Errorf("unexpected range flags for %s", r)
	}
	if r.String() != "2024-06-05..2024-06-14" {
		t.Errorf("String() = %q", r.String())
	}
	if !(DateRange{Start: d2, End: d1}).Empty() {
		t.Error("reversed range should be empty")
	}
	if (DateRange{Start: d1, End: d1}).Empty() {
		t.Error("single-day range should not be empty")
	}
}

func TestTradingDay(t *testing.T) {
	est := time.FixedZone("EST", -5*3600)
	got := TradingDay(time.Date(2024, 5, 1, 23, 30, 0, 0, est))
	want := time.Date(2024, 5, 1, 0, 0, 0, 0, time.UTC)
	if !got.Equal(want) || got.Location() != time.UTC {
		t.Errorf("TradingDay() = %v, want %v", got, want)
	}
}

func TestParseDayAndNormalizeTicker(t *testing.T) {
	d, err := ParseDay(" 2024-02-29 ")
	if err != nil || d.Day() != 29 {
		t.Fatalf("ParseDay() = %v, %v", d, err)
	}
	if _, err := ParseDay("2024-13-01"); err == nil {
		t.Error("expected error for month 13")
	}
	if got := NormalizeTicker("  brk.b "); got != "BRK.B" {
		t.Errorf("NormalizeTicker() = %q", got)
	}
}
