package identity

import "sync"

// GateState is the admin gate's lifecycle:
//
//	Loading -> Unauthenticated | Denied | Authorized
//
// Denied offers only reload (back to Loading). Authorized is left only
// through an explicit sign-out.
type GateState int

const (
	GateLoading GateState = iota
	GateUnauthenticated
	GateDenied
	GateAuthorized
)

func (s GateState) String() string {
	switch s {
	case GateLoading:
		return "loading"
	case GateUnauthenticated:
		return "unauthenticated"
	case GateDenied:
		return "denied"
	case GateAuthorized:
		return "authorized"
	default:
		return "unknown"
	}
}

// Decide maps a session-resolution outcome to a gate state. Pure, so the
// HTTP middleware can use it per request without holding a Gate.
func Decide(sess Session, err error) GateState {
	if err != nil || sess.Token == "" {
		return GateUnauthenticated
	}
	if !sess.Claims.IsAdmin() {
		return GateDenied
	}
	return GateAuthorized
}

// Gate tracks one dashboard client's authorization state across its
// session lifecycle, from initial load to sign-out. The HTTP layer is
// stateless and calls Decide per request instead of holding a Gate; this
// is the canonical model for clients that keep a session resident.
type Gate struct {
	mu      sync.Mutex
	state   GateState
	session Session
}

func NewGate() *Gate {
	return &Gate{state: GateLoading}
}

func (g *Gate) State() GateState {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.state
}

func (g *Gate) Session() Session {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.session
}

// Resolve applies the identity provider's answer for the pending load.
func (g *Gate) Resolve(sess Session, err error) GateState {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.state = Decide(sess, err)
	if g.state == GateAuthorized || g.state == GateDenied {
		g.session = sess
	} else {
		g.session = Session{}
	}
	return g.state
}

// Reload is the only way out of Denied; it re-enters Loading.
func (g *Gate) Reload() {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.state = GateLoading
	g.session = Session{}
}

// SignOut leaves Authorized for Unauthenticated. A sign-out from any
// other state also lands there; there is nothing to keep.
func (g *Gate) SignOut() {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.state = GateUnauthenticated
	g.session = Session{}
}
