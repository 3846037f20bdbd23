package identity

import (
	"errors"
	"testing"
)

func TestDecide(t *testing.T) {
	cases := []struct {
		name string
		sess Session
		err  error
		want GateState
	}{
		{"no session", Session{}, nil, GateUnauthenticated},
		{"provider error", Session{Token: "tok"}, errors.New("boom"), GateUnauthenticated},
		{"admin", Session{Token: "tok", Claims: Claims{Role: "admin"}}, nil, GateAuthorized},
		{"wrong role", Session{Token: "tok", Claims: Claims{Role: "driver"}}, nil, GateDenied},
		{"absent role", Session{Token: "tok"}, nil, GateDenied},
	}
	for _, tc := range cases {
		if got := Decide(tc.sess, tc.err); got != tc.want {
			t.Errorf("%s: got %v want %v", tc.name, got, tc.want)
		}
	}
}

func TestGateLifecycle(t *testing.T) {
	g := NewGate()
	if g.State() != GateLoading {
		t.Fatalf("initial state must be loading, got %v", g.State())
	}

	// Non-admin lands in denied and stays there until reload.
	g.Resolve(Session{Token: "tok", Email: "x@y.z", Claims: Claims{Role: "support"}}, nil)
	if g.State() != GateDenied {
		t.Fatalf("got %v", g.State())
	}
	g.Reload()
	if g.State() != GateLoading {
		t.Fatalf("reload must re-enter loading, got %v", g.State())
	}

	// Admin authorizes; sign-out is the only exit.
	g.Resolve(Session{Token: "tok", Email: "a@y.z", Claims: Claims{Role: "admin"}}, nil)
	if g.State() != GateAuthorized {
		t.Fatalf("got %v", g.State())
	}
	if g.Session().Email != "a@y.z" {
		t.Fatalf("authorized gate must retain the session, got %+v", g.Session())
	}
	g.SignOut()
	if g.State() != GateUnauthenticated {
		t.Fatalf("got %v", g.State())
	}
	if g.Session().Token != "" {
		t.Fatal("sign-out must drop the session")
	}
}

func TestGateStateString(t *testing.T) {
	want := map[GateState]string{
		GateLoading:         "loading",
		GateUnauthenticated: "unauthenticated",
		GateDenied:          "denied",
		GateAuthorized:      "authorized",
	}
	for st, s := range want {
		if st.String() != s {
			t.Errorf("%d: got %q want %q", st, st.String(), s)
		}
	}
}
