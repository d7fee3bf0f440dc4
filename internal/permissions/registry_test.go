package permissions

import (
	"errors"
	"testing"
	"time"
)

func TestRespondFirstCallWins(t *testing.T) {
	r := NewRegistry(time.Hour)
	r.Create("req-1", "sess-1", "Bash", "rm -rf build", nil)

	if err := r.Respond("req-1", "approve", ""); err != nil {
		t.Fatalf("first respond: %v", err)
	}

	err := r.Respond("req-1", "deny", "changed my mind")
	if !errors.Is(err, ErrNotPending) {
		t.Fatalf("second respond: got %v, want ErrNotPending", err)
	}

	req, _ := r.Get("req-1")
	if req.Status != StatusApproved {
		t.Errorf("status changed by failed respond: %s", req.Status)
	}
	if req.Response.Decision != DecisionApprove {
		t.Errorf("decision changed by failed respond: %s", req.Response.Decision)
	}
}

func TestRespondUnknownID(t *testing.T) {
	r := NewRegistry(time.Hour)
	if err := r.Respond("nope", "approve", ""); !errors.Is(err, ErrNotFound) {
		t.Fatalf("got %v, want ErrNotFound", err)
	}
}

func TestRespondNormalizesDecision(t *testing.T) {
	r := NewRegistry(time.Hour)

	for _, d := range []string{"approve", "yes", "ok", "y"} {
		r.Create("a-"+d, "s", "Bash", "x", nil)
		if err := r.Respond("a-"+d, d, ""); err != nil {
			t.Fatal(err)
		}
		req, _ := r.Get("a-" + d)
		if req.Status != StatusApproved || req.Response.Decision != DecisionApprove {
			t.Errorf("decision %q: got %s/%s", d, req.Status, req.Response.Decision)
		}
	}

	r.Create("d-1", "s", "Bash", "x", nil)
	if err := r.Respond("d-1", "nah", ""); err != nil {
		t.Fatal(err)
	}
	req, _ := r.Get("d-1")
	if req.Status != StatusDenied || req.Response.Decision != DecisionDeny {
		t.Errorf("got %s/%s, want denied/deny", req.Status, req.Response.Decision)
	}
}

func TestGetResponseLazyExpiry(t *testing.T) {
	r := NewRegistry(50 * time.Millisecond)
	r.Create("req-1", "sess-1", "Bash", "make deploy", nil)

	got := r.GetResponse("req-1")
	if got.Status != LookupPending {
		t.Fatalf("before timeout: got %s, want pending", got.Status)
	}

	time.Sleep(80 * time.Millisecond)

	got = r.GetResponse("req-1")
	if got.Status != LookupResponded {
		t.Fatalf("after timeout: got %s, want responded", got.Status)
	}
	if got.Response.Decision != DecisionDeny || got.Response.Reason != "request expired" {
		t.Errorf("expiry resolution: %+v", got.Response)
	}

	req, _ := r.Get("req-1")
	if req.Status != StatusExpired {
		t.Errorf("status = %s, want expired", req.Status)
	}
}

func TestGetResponseNotFound(t *testing.T) {
	r := NewRegistry(time.Hour)
	if got := r.GetResponse("missing"); got.Status != LookupNotFound {
		t.Fatalf("got %s, want not_found", got.Status)
	}
}

func TestLatestPending(t *testing.T) {
	r := NewRegistry(time.Hour)

	if _, ok := r.LatestPending("sess-1"); ok {
		t.Fatal("empty registry should have no pending request")
	}

	r.Create("req-1", "sess-1", "Bash", "first", nil)
	r.Create("req-2", "sess-1", "Edit", "second", nil)
	r.Create("req-3", "sess-2", "Bash", "other session", nil)

	latest, ok := r.LatestPending("sess-1")
	if !ok || latest.RequestID != "req-2" {
		t.Fatalf("latest = %+v, want req-2", latest)
	}

	if err := r.Respond("req-2", "deny", ""); err != nil {
		t.Fatal(err)
	}

	latest, ok = r.LatestPending("sess-1")
	if !ok || latest.RequestID != "req-1" {
		t.Fatalf("after resolving req-2, latest = %+v, want req-1", latest)
	}

	if err := r.Respond("req-1", "deny", ""); err != nil {
		t.Fatal(err)
	}
	if _, ok := r.LatestPending("sess-1"); ok {
		t.Fatal("all resolved, expected no pending request")
	}
}

func TestCancelAllForSession(t *testing.T) {
	r := NewRegistry(time.Hour)
	r.Create("req-1", "sess-1", "Bash", "a", nil)
	r.Create("req-2", "sess-1", "Bash", "b", nil)
	r.Create("req-3", "sess-2", "Bash", "c", nil)

	if err := r.Respond("req-1", "approve", ""); err != nil {
		t.Fatal(err)
	}

	if n := r.CancelAllForSession("sess-1"); n != 1 {
		t.Fatalf("cancelled %d, want 1", n)
	}

	req1, _ := r.Get("req-1")
	if req1.Status != StatusApproved {
		t.Errorf("approved request touched by cancel: %s", req1.Status)
	}
	req2, _ := r.Get("req-2")
	if req2.Status != StatusCancelled {
		t.Errorf("req-2 = %s, want cancelled", req2.Status)
	}
	req3, _ := r.Get("req-3")
	if req3.Status != StatusPending {
		t.Errorf("other session touched: %s", req3.Status)
	}
}

func TestExpireStale(t *testing.T) {
	r := NewRegistry(30 * time.Millisecond)
	r.Create("req-1", "sess-1", "Bash", "a", nil)

	time.Sleep(50 * time.Millisecond)
	r.Create("req-2", "sess-1", "Bash", "b", nil)

	if n := r.ExpireStale(); n != 1 {
		t.Fatalf("expired %d, want 1", n)
	}
	req2, _ := r.Get("req-2")
	if req2.Status != StatusPending {
		t.Errorf("fresh request expired: %s", req2.Status)
	}
}

func TestPurgeResolved(t *testing.T) {
	r := NewRegistry(time.Hour)
	r.Create("req-1", "sess-1", "Bash", "a", nil)
	r.Create("req-2", "sess-1", "Bash", "b", nil)

	if err := r.Respond("req-1", "approve", ""); err != nil {
		t.Fatal(err)
	}

	time.Sleep(20 * time.Millisecond)

	if n := r.PurgeResolved(10 * time.Millisecond); n != 1 {
		t.Fatalf("purged %d, want 1", n)
	}
	if _, ok := r.Get("req-1"); ok {
		t.Error("resolved request survived purge")
	}
	if _, ok := r.Get("req-2"); !ok {
		t.Error("pending request purged")
	}

	// Session index stays usable.
	latest, ok := r.LatestPending("sess-1")
	if !ok || latest.RequestID != "req-2" {
		t.Fatalf("latest after purge = %+v", latest)
	}
}

func TestPendingCount(t *testing.T) {
	r := NewRegistry(time.Hour)
	r.Create("req-1", "s1", "Bash", "a", nil)
	r.Create("req-2", "s2", "Bash", "b", nil)
	if err := r.Respond("req-1", "deny", ""); err != nil {
		t.Fatal(err)
	}
	if n := r.PendingCount(); n != 1 {
		t.Errorf("pending = %d, want 1", n)
	}
}
