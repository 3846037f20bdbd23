package httpapi

import (
	"crypto/rand"
	"encoding/hex"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/gorilla/mux"
	"github.com/gorilla/websocket"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/cast"

	"github.com/example/taxi-ops/internal/docs"
	"github.com/example/taxi-ops/internal/hub"
	"github.com/example/taxi-ops/internal/identity"
	"github.com/example/taxi-ops/internal/payments"
	"github.com/example/taxi-ops/internal/state"
	"github.com/example/taxi-ops/internal/view"
)

type Server struct {
	logger   *slog.Logger
	states   *state.Manager
	identity identity.Client
	stripe   *payments.StripeClient
	hub      *hub.Hub
	mux      *mux.Router
}

func NewServer(logger *slog.Logger, states *state.Manager, idc identity.Client, stripe *payments.StripeClient, h *hub.Hub) *Server {
	s := &Server{
		logger:   logger,
		states:   states,
		identity: idc,
		stripe:   stripe,
		hub:      h,
		mux:      mux.NewRouter(),
	}
	s.registerMiddleware()
	s.routes()
	return s
}

func (s *Server) routes() {
	s.mux.HandleFunc("/healthz", func(w http.ResponseWriter, r *http.Request) { w.WriteHeader(200); w.Write([]byte("ok")) }).Methods("GET")
	s.mux.Handle("/metrics", promhttp.Handler())

	// Session endpoints are reachable without a session.
	s.mux.HandleFunc("/api/v1/session", s.handleSignIn).Methods("POST")
	s.mux.HandleFunc("/api/v1/session/provider", s.handleProviderSignIn).Methods("POST")
	s.mux.HandleFunc("/api/v1/session", s.handleSessionState).Methods("GET")
	s.mux.HandleFunc("/api/v1/session", s.handleSignOut).Methods("DELETE")

	// Everything the dashboard shows sits behind the admin gate.
	api := s.mux.PathPrefix("/api/v1").Subrouter()
	api.Use(s.adminOnly)
	api.HandleFunc("/drivers", s.handleDrivers).Methods("GET")
	api.HandleFunc("/drivers/{id}", s.handleDriver).Methods("GET")
	api.HandleFunc("/drivers/{id}/payment", s.handleDriverPayment).Methods("GET")
	api.HandleFunc("/trips", s.handleTrips).Methods("GET")
	api.HandleFunc("/passengers", s.handlePassengers).Methods("GET")
	api.HandleFunc("/alerts", s.handleAlerts).Methods("GET")
	api.HandleFunc("/stats", s.handleStats).Methods("GET")

	s.mux.Handle("/ws", s.adminOnly(http.HandlerFunc(s.handleWS)))
}

func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) { s.mux.ServeHTTP(w, r) }

func (s *Server) handleSignIn(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Email    string `json:"email"`
		Password string `json:"password"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.Email == "" || req.Password == "" {
		s.writeError(w, r, http.StatusBadRequest, "missing_fields", "Email and password are required")
		return
	}
	sess, err := s.identity.SignInPassword(r.Context(), req.Email, req.Password)
	s.finishSignIn(w, r, sess, err)
}

func (s *Server) handleProviderSignIn(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Provider string `json:"provider"`
		Token    string `json:"token"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.Provider == "" || req.Token == "" {
		s.writeError(w, r, http.StatusBadRequest, "missing_fields", "Provider and token are required")
		return
	}
	sess, err := s.identity.SignInProviderToken(r.Context(), req.Provider, req.Token)
	s.finishSignIn(w, r, sess, err)
}

// finishSignIn applies the auth error taxonomy: invalid credentials are
// told apart from generic provider failure, and an authenticated
// non-admin is signed back out and denied.
func (s *Server) finishSignIn(w http.ResponseWriter, r *http.Request, sess identity.Session, err error) {
	if err != nil {
		if errors.Is(err, identity.ErrInvalidCredentials) {
			s.writeError(w, r, http.StatusUnauthorized, "invalid_credentials", "Incorrect email or password")
			return
		}
		s.logger.Error("sign-in failed", "error", err)
		s.writeError(w, r, http.StatusBadGateway, "auth_failed", "Sign-in failed, try again")
		return
	}
	if identity.Decide(sess, nil) != identity.GateAuthorized {
		_ = s.identity.SignOut(r.Context(), sess.Token)
		s.writeError(w, r, http.StatusForbidden, "denied", "Your account does not have administrator access")
		return
	}
	writeJSON(w, http.StatusOK, sess)
}

func (s *Server) handleSessionState(w http.ResponseWriter, r *http.Request) {
	token := requestToken(r)
	if token == "" {
		writeJSON(w, http.StatusOK, map[string]string{"state": identity.GateUnauthenticated.String()})
		return
	}
	sess, err := s.identity.Verify(r.Context(), token)
	resp := map[string]string{"state": identity.Decide(sess, err).String()}
	if sess.Email != "" {
		resp["email"] = sess.Email
	}
	writeJSON(w, http.StatusOK, resp)
}

func (s *Server) handleSignOut(w http.ResponseWriter, r *http.Request) {
	token := requestToken(r)
	if token != "" {
		if err := s.identity.SignOut(r.Context(), token); err != nil {
			s.logger.Warn("sign-out failed", "error", err)
		}
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleDrivers(w http.ResponseWriter, r *http.Request) {
	v := s.states.View()
	filter := view.DriverFilter(r.URL.Query().Get("filter"))
	if filter == "" {
		filter = view.FilterAll
	}
	drivers := view.FilterDrivers(v.Drivers, filter)
	resp := listResponse{
		Data:     drivers,
		Revision: v.Revision,
		Degraded: v.Degraded[state.CellDrivers],
	}
	if lat, lng, ok := focusPoint(r); ok {
		resp.Data = driversWithDistance(drivers, lat, lng)
	}
	writeJSON(w, http.StatusOK, resp)
}

// driverDistance decorates a driver with its distance from the map's
// focus point. Drivers without a known location carry no distance.
type driverDistance struct {
	docs.Driver
	DistanceMeters *float64 `json:"distanceMeters,omitempty"`
}

func driversWithDistance(drivers []docs.Driver, lat, lng float64) []driverDistance {
	out := make([]driverDistance, 0, len(drivers))
	for _, d := range drivers {
		item := driverDistance{Driver: d}
		if dist, ok := view.DriverDistanceMeters(d, lat, lng); ok {
			item.DistanceMeters = &dist
		}
		out = append(out, item)
	}
	return out
}

// focusPoint reads the optional map focus from the query string. A
// missing or malformed pair degrades to the plain list.
func focusPoint(r *http.Request) (lat, lng float64, ok bool) {
	q := r.URL.Query()
	if q.Get("lat") == "" || q.Get("lng") == "" {
		return 0, 0, false
	}
	lat, latErr := cast.ToFloat64E(q.Get("lat"))
	lng, lngErr := cast.ToFloat64E(q.Get("lng"))
	if latErr != nil || lngErr != nil {
		return 0, 0, false
	}
	return lat, lng, true
}

func (s *Server) handleDriver(w http.ResponseWriter, r *http.Request) {
	drv, ok := s.findDriver(mux.Vars(r)["id"])
	if !ok {
		s.writeError(w, r, http.StatusNotFound, "not_found", "Driver not found")
		return
	}
	writeJSON(w, http.StatusOK, drv)
}

func (s *Server) handleDriverPayment(w http.ResponseWriter, r *http.Request) {
	if s.stripe == nil {
		s.writeError(w, r, http.StatusServiceUnavailable, "payments_unconfigured", "Stripe is not configured")
		return
	}
	drv, ok := s.findDriver(mux.Vars(r)["id"])
	if !ok {
		s.writeError(w, r, http.StatusNotFound, "not_found", "Driver not found")
		return
	}
	if drv.StripeAccountID == "" {
		s.writeError(w, r, http.StatusNotFound, "no_stripe_account", "Driver has no Stripe account")
		return
	}
	caps, err := s.stripe.AccountCapabilities(r.Context(), drv.StripeAccountID)
	if err != nil {
		s.logger.Error("stripe account lookup failed", "driver", drv.ID, "error", err)
		s.writeError(w, r, http.StatusBadGateway, "stripe_failed", "Stripe lookup failed")
		return
	}
	writeJSON(w, http.StatusOK, caps)
}

func (s *Server) handleTrips(w http.ResponseWriter, r *http.Request) {
	v := s.states.View()
	writeJSON(w, http.StatusOK, listResponse{
		Data:     v.Trips,
		Revision: v.Revision,
		Degraded: v.Degraded[state.CellTrips],
	})
}

func (s *Server) handlePassengers(w http.ResponseWriter, r *http.Request) {
	v := s.states.View()
	writeJSON(w, http.StatusOK, listResponse{
		Data:     v.Passengers,
		Revision: v.Revision,
		Degraded: v.Degraded[state.CellPassengers],
	})
}

func (s *Server) handleAlerts(w http.ResponseWriter, r *http.Request) {
	v := s.states.View()
	writeJSON(w, http.StatusOK, listResponse{Data: v.Alerts, Revision: v.Revision})
}

func (s *Server) handleStats(w http.ResponseWriter, r *http.Request) {
	v := s.states.View()
	writeJSON(w, http.StatusOK, map[string]any{
		"fleet":    view.ComputeFleetStats(v.Drivers),
		"trips":    view.ComputeTripStats(v.Trips, time.Now()),
		"revision": v.Revision,
	})
}

var upgrader = websocket.Upgrader{
	// The dashboard is served from its own origin in every deployment we
	// run; auth happens via the admin token, not the Origin header.
	CheckOrigin: func(r *http.Request) bool { return true },
}

func (s *Server) handleWS(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		return
	}
	if sess, ok := sessionFromContext(r.Context()); ok {
		s.logger.Info("dashboard client connected", "email", sess.Email)
	}
	s.hub.Add(newID(), conn, s.states.View())
}

func (s *Server) findDriver(id string) (docs.Driver, bool) {
	for _, drv := range s.states.View().Drivers {
		if drv.ID == id {
			return drv, true
		}
	}
	return docs.Driver{}, false
}

type listResponse struct {
	Data     any    `json:"data"`
	Revision uint64 `json:"revision"`
	Degraded bool   `json:"degraded,omitempty"`
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func (s *Server) writeError(w http.ResponseWriter, r *http.Request, status int, code, msg string) {
	writeJSON(w, status, map[string]string{
		"code":      code,
		"error":     msg,
		"requestId": requestIDFromContext(r.Context()),
	})
}

func newID() string { b := make([]byte, 8); _, _ = rand.Read(b); return hex.EncodeToString(b) }
