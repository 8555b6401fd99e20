package ratelimit

import (
	"fmt"
	"net/http"
	"sync"
	"testing"
	"time"

	"github.com/ooyeku/crux/internal/core/domain"
)

func TestFixedWindow_WindowReset(t *testing.T) {
	l := NewFixedWindow(Config{MaxRequests: 1, Window: 50 * time.Millisecond})

	if d := l.Check("1.2.3.4", "/a"); !d.Allowed {
		t.Fatalf("first request rejected: %+v", d)
	}
	d := l.Check("1.2.3.4", "/a")
	if d.Allowed {
		t.Fatal("second request within the window should be rejected")
	}
	if d.RetryAfter <= 0 || d.RetryAfter > 50*time.Millisecond {
		t.Errorf("RetryAfter = %v", d.RetryAfter)
	}

	time.Sleep(60 * time.Millisecond)
	if d := l.Check("1.2.3.4", "/a"); !d.Allowed {
		t.Errorf("request after window reset rejected: %+v", d)
	}
}

func TestFixedWindow_PerIPAndPerRoute(t *testing.T) {
	l := NewFixedWindow(Config{MaxRequests: 2, Window: time.Minute})

	// Two different IPs on the same route: the route counter still
	// advances on each check and trips first.
	if d := l.Check("1.1.1.1", "/r"); !d.Allowed {
		t.Fatalf("unexpected reject: %+v", d)
	}
	if d := l.Check("2.2.2.2", "/r"); !d.Allowed {
		t.Fatalf("unexpected reject: %+v", d)
	}
	d := l.Check("3.3.3.3", "/r")
	if d.Allowed {
		t.Fatal("route counter should reject the third request")
	}
	if d.Reason != "route" {
		t.Errorf("Reason = %q, want route", d.Reason)
	}

	// Same IP hammering distinct routes trips the IP counter.
	l2 := NewFixedWindow(Config{MaxRequests: 2, Window: time.Minute})
	l2.Check("9.9.9.9", "/r1")
	l2.Check("9.9.9.9", "/r2")
	d = l2.Check("9.9.9.9", "/r3")
	if d.Allowed {
		t.Fatal("IP counter should reject the third request")
	}
	if d.Reason != "ip" {
		t.Errorf("Reason = %q, want ip", d.Reason)
	}
}

func TestFixedWindow_RouteOverride(t *testing.T) {
	l := NewFixedWindow(Config{MaxRequests: 100, Window: time.Minute})
	l.SetRouteConfig("/tight", Config{MaxRequests: 1, Window: time.Minute, Message: "Slow down on /tight"})

	if d := l.Check("1.2.3.4", "/tight"); !d.Allowed {
		t.Fatalf("first request rejected: %+v", d)
	}
	d := l.Check("1.2.3.4", "/tight")
	if d.Allowed {
		t.Fatal("route override should reject the second request")
	}
	if d.Message != "Slow down on /tight" {
		t.Errorf("Message = %q", d.Message)
	}

	// Other routes keep the global policy.
	if d := l.Check("1.2.3.4", "/loose"); !d.Allowed {
		t.Errorf("global policy should still allow: %+v", d)
	}
}

func TestFixedWindow_UnknownClientsShareACounter(t *testing.T) {
	l := NewFixedWindow(Config{MaxRequests: 1, Window: time.Minute})

	if d := l.Check("", "/a"); !d.Allowed {
		t.Fatalf("first unknown-client request rejected: %+v", d)
	}
	// A second identity-less request lands on the same counter; rejection
	// is never skipped just because identity is missing.
	if d := l.Check("", "/b"); d.Allowed {
		t.Error("unknown clients must share one counter and be limited")
	}
}

func TestFixedWindow_Cleanup(t *testing.T) {
	l := NewFixedWindow(Config{MaxRequests: 10, Window: 5 * time.Millisecond})
	l.Check("1.2.3.4", "/a")
	time.Sleep(10 * time.Millisecond)
	l.Cleanup()

	l.mu.Lock()
	ipLen, routeLen := len(l.byIP), len(l.byRoute)
	l.mu.Unlock()
	if ipLen != 0 || routeLen != 0 {
		t.Errorf("expired windows survived cleanup: ip=%d route=%d", ipLen, routeLen)
	}
}

func TestFixedWindow_Concurrent(t *testing.T) {
	l := NewFixedWindow(Config{MaxRequests: 1000, Window: time.Minute})

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func(n int) {
			defer wg.Done()
			for j := 0; j < 100; j++ {
				l.Check(fmt.Sprintf("10.0.0.%d", n), "/shared")
				if j%25 == 0 {
					l.Cleanup()
				}
			}
		}(i)
	}
	wg.Wait()

	// 800 checks against a shared route limit of 1000: all allowed, and
	// the route counter saw every one of them.
	l.mu.Lock()
	count := l.byRoute["/shared"].count
	l.mu.Unlock()
	if count != 800 {
		t.Errorf("route counter = %d, want 800", count)
	}
}

func TestTokenBucket_Basics(t *testing.T) {
	l := NewTokenBucket(Config{MaxRequests: 2, Window: time.Hour})

	if d := l.Check("1.2.3.4", "/a"); !d.Allowed {
		t.Fatalf("first request rejected: %+v", d)
	}
	if d := l.Check("1.2.3.4", "/a"); !d.Allowed {
		t.Fatalf("second request rejected: %+v", d)
	}
	if d := l.Check("1.2.3.4", "/a"); d.Allowed {
		t.Error("burst exhausted, third request should be rejected")
	}
}

func TestClientIP(t *testing.T) {
	tests := []struct {
		name       string
		xff        string
		remoteAddr string
		want       string
	}{
		{"forwarded single", "4.3.2.1", "10.0.0.1:1234", "4.3.2.1"},
		{"forwarded chain uses first hop", "4.3.2.1, 10.0.0.9", "10.0.0.1:1234", "4.3.2.1"},
		{"forwarded with spaces", "  4.3.2.1  ", "10.0.0.1:1234", "4.3.2.1"},
		{"remote addr fallback", "", "10.0.0.1:1234", "10.0.0.1"},
		{"remote addr without port", "", "10.0.0.1", "10.0.0.1"},
		{"nothing known", "", "", UnknownClient},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := &domain.Request{Headers: http.Header{}, RemoteAddr: tt.remoteAddr}
			if tt.xff != "" {
				req.Headers.Set("X-Forwarded-For", tt.xff)
			}
			if got := ClientIP(req); got != tt.want {
				t.Errorf("ClientIP() = %q, want %q", got, tt.want)
			}
		})
	}
}
