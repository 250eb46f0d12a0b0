package web

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"sync"
	"time"

	"calmsession/internal/domain"
	"calmsession/internal/logging"
	"calmsession/internal/usecase"
)

// Entitlement is the premium switch the API exposes.
type Entitlement interface {
	IsPremium() bool
	SetPremium(on bool) error
}

// Server is a primary adapter that exposes the gate and session history over HTTP.
// It depends on the use cases (primary ports).
type Server struct {
	launcher usecase.SessionLauncher
	gate     usecase.AdmissionGate
	premium  Entitlement
	log      logging.Logger
	server   *http.Server

	mu         sync.Mutex
	meditation *usecase.MeditationSession
}

// NewServer creates the HTTP server bound to addr.
func NewServer(launcher usecase.SessionLauncher, gate usecase.AdmissionGate, premium Entitlement, addr string) *Server {
	srv := &Server{
		launcher: launcher,
		gate:     gate,
		premium:  premium,
		log:      logging.For("http"),
	}
	srv.server = &http.Server{
		Addr:              addr,
		Handler:           srv.Handler(),
		ReadHeaderTimeout: 5 * time.Second,
	}
	return srv
}

// Handler returns the routed API with request logging.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/api/status", s.handleStatus)
	mux.HandleFunc("/api/premium", s.handlePremium)
	mux.HandleFunc("/api/admit", s.handleAdmit)
	mux.HandleFunc("/api/history", s.handleHistory)
	mux.HandleFunc("/api/meditation", s.handleMeditation)
	mux.HandleFunc("/api/meditation/control", s.handleMeditationControl)
	return s.loggingMiddleware(mux)
}

// Start blocks and serves HTTP traffic.
func (s *Server) Start() error {
	return s.server.ListenAndServe()
}

// Shutdown gracefully stops the server and any meditation it started.
func (s *Server) Shutdown(ctx context.Context) error {
	err := s.server.Shutdown(ctx)
	s.closeMeditation()
	return err
}

type gateView struct {
	Ready     bool   `json:"ready"`
	Loading   bool   `json:"loading"`
	Pending   bool   `json:"pending"`
	LastError string `json:"lastError,omitempty"`
}

type sessionView struct {
	ID            string     `json:"id"`
	Kind          string     `json:"kind"`
	Mood          string     `json:"mood,omitempty"`
	TargetSeconds int        `json:"targetSeconds"`
	StartedAt     time.Time  `json:"startedAt"`
	EndedAt       *time.Time `json:"endedAt,omitempty"`
	Outcome       string     `json:"outcome"`
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	st := s.gate.Status()
	view := gateView{Ready: st.Ready, Loading: st.Loading, Pending: st.Pending}
	if st.LastError != nil {
		view.LastError = st.LastError.Error()
	}
	recent, err := s.recentSessions(r.Context(), statusRecentLimit)
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	respondJSON(w, http.StatusOK, map[string]any{
		"premium": s.premium.IsPremium(),
		"gate":    view,
		"recent":  recent,
	})
}

const statusRecentLimit = 5

type premiumPayload struct {
	Premium *bool `json:"premium"`
}

func (s *Server) handlePremium(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodGet:
		respondJSON(w, http.StatusOK, map[string]bool{"premium": s.premium.IsPremium()})
	case http.MethodPost, http.MethodPut:
		var req premiumPayload
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.Premium == nil {
			http.Error(w, `expected {"premium": true|false}`, http.StatusBadRequest)
			return
		}
		if err := s.premium.SetPremium(*req.Premium); err != nil {
			http.Error(w, err.Error(), http.StatusInternalServerError)
			return
		}
		respondJSON(w, http.StatusOK, map[string]bool{"premium": s.premium.IsPremium()})
	default:
		w.WriteHeader(http.StatusMethodNotAllowed)
	}
}

// handleAdmit blocks until the gate decides, like a client waiting on an ad.
func (s *Server) handleAdmit(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	host := r.URL.Query().Get("host")
	if host == "" {
		host = "web"
	}
	res, err := s.launcher.Admit(r.Context(), host)
	if err != nil && !errors.Is(err, context.Canceled) {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	respondJSON(w, http.StatusOK, map[string]any{
		"granted": res.Granted,
		"reason":  res.Reason,
	})
}

func (s *Server) handleHistory(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	limit := 20
	if v := r.URL.Query().Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n <= 0 {
			http.Error(w, "limit must be a positive integer", http.StatusBadRequest)
			return
		}
		limit = n
	}
	views, err := s.recentSessions(r.Context(), limit)
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	respondJSON(w, http.StatusOK, map[string]any{"sessions": views})
}

func (s *Server) recentSessions(ctx context.Context, limit int) ([]sessionView, error) {
	recs, err := s.launcher.Recent(ctx, limit)
	if err != nil {
		return nil, err
	}
	views := make([]sessionView, 0, len(recs))
	for _, rec := range recs {
		views = append(views, toSessionView(rec))
	}
	return views, nil
}

func toSessionView(rec domain.SessionRecord) sessionView {
	v := sessionView{
		ID:            rec.ID,
		Kind:          string(rec.Kind),
		Mood:          string(rec.Mood),
		TargetSeconds: rec.TargetSeconds,
		StartedAt:     rec.StartedAt,
		Outcome:       string(rec.Outcome),
	}
	if !rec.EndedAt.IsZero() {
		ended := rec.EndedAt
		v.EndedAt = &ended
	}
	return v
}

func respondJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		logging.Warnf("encode JSON: %v", err)
	}
}

func (s *Server) loggingMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		next.ServeHTTP(w, r)
		s.log.Debugf("%s %s %s", r.Method, r.URL.Path, time.Since(start))
	})
}

type meditationRequest struct {
	Voice           string `json:"voice"`
	Ambient         string `json:"ambient"`
	Mood            string `json:"mood"`
	DurationSeconds int    `json:"durationSeconds"`
	SleepSeconds    int    `json:"sleepSeconds"`
	SleepAtEnd      bool   `json:"sleepAtEnd"`
	Gated           *bool  `json:"gated"`
}

type playbackView struct {
	ID              string  `json:"id"`
	Loaded          bool    `json:"loaded"`
	Playing         bool    `json:"playing"`
	PositionSeconds float64 `json:"positionSeconds"`
	DurationSeconds float64 `json:"durationSeconds"`
	VoiceVolume     float64 `json:"voiceVolume"`
	AmbientVolume   float64 `json:"ambientVolume"`
	Sleep           string  `json:"sleep"`
	SleepRemaining  *int    `json:"sleepRemaining,omitempty"`
}

func toPlaybackView(sess *usecase.MeditationSession) playbackView {
	st := sess.Player.State()
	sl := sess.Sleep.State()
	return playbackView{
		ID:              sess.ID,
		Loaded:          st.Loaded,
		Playing:         st.Playing,
		PositionSeconds: st.Position.Seconds(),
		DurationSeconds: st.Duration.Seconds(),
		VoiceVolume:     st.VoiceVolume,
		AmbientVolume:   st.AmbientVolume,
		Sleep:           sl.Mode.String(),
		SleepRemaining:  sl.Remaining,
	}
}

// handleMeditation serves the one meditation the server runs at a time.
// POST starts it (replacing any current one), GET reports it, DELETE stops it.
func (s *Server) handleMeditation(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodGet:
		sess := s.currentMeditation()
		if sess == nil {
			http.Error(w, "no meditation running", http.StatusNotFound)
			return
		}
		respondJSON(w, http.StatusOK, toPlaybackView(sess))
	case http.MethodPost:
		s.startMeditation(w, r)
	case http.MethodDelete:
		if !s.closeMeditation() {
			http.Error(w, "no meditation running", http.StatusNotFound)
			return
		}
		w.WriteHeader(http.StatusNoContent)
	default:
		w.WriteHeader(http.StatusMethodNotAllowed)
	}
}

func (s *Server) startMeditation(w http.ResponseWriter, r *http.Request) {
	var req meditationRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid JSON body", http.StatusBadRequest)
		return
	}
	if req.Voice == "" && req.Ambient == "" {
		http.Error(w, "voice or ambient is required", http.StatusBadRequest)
		return
	}
	var mood domain.Mood
	if req.Mood != "" {
		m, err := domain.ParseMood(req.Mood)
		if err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		mood = m
	}
	gated := true
	if req.Gated != nil {
		gated = *req.Gated
	}

	s.closeMeditation()
	sess, err := s.launcher.LaunchMeditation(r.Context(), usecase.LaunchRequest{
		Mood:         mood,
		Duration:     time.Duration(req.DurationSeconds) * time.Second,
		VoiceURL:     req.Voice,
		AmbientURL:   req.Ambient,
		Gated:        gated,
		Host:         "web",
		SleepSeconds: req.SleepSeconds,
		SleepAtEnd:   req.SleepAtEnd,
	}, nil)
	switch {
	case errors.Is(err, domain.ErrAdmissionDenied):
		http.Error(w, err.Error(), http.StatusPaymentRequired)
		return
	case errors.Is(err, domain.ErrInvalidDuration), errors.Is(err, domain.ErrInvalidSleepMode), errors.Is(err, domain.ErrMediaOpen):
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	case err != nil:
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}

	s.mu.Lock()
	s.meditation = sess
	s.mu.Unlock()
	respondJSON(w, http.StatusCreated, toPlaybackView(sess))
}

type controlRequest struct {
	Action  string   `json:"action"`
	Seconds float64  `json:"seconds"`
	Voice   *float64 `json:"voice"`
	Ambient *float64 `json:"ambient"`
}

// handleMeditationControl applies play, pause, seek and volume to the
// current meditation.
func (s *Server) handleMeditationControl(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	var req controlRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid JSON body", http.StatusBadRequest)
		return
	}
	sess := s.currentMeditation()
	if sess == nil {
		http.Error(w, "no meditation running", http.StatusNotFound)
		return
	}

	var err error
	switch req.Action {
	case "play":
		err = sess.Player.Play()
	case "pause":
		sess.Player.Pause()
	case "seek":
		sess.Player.Seek(time.Duration(req.Seconds * float64(time.Second)))
	case "volume":
		if req.Voice == nil && req.Ambient == nil {
			http.Error(w, "volume needs voice or ambient", http.StatusBadRequest)
			return
		}
		if req.Voice != nil {
			err = sess.Player.SetVoiceVolume(*req.Voice)
		}
		if err == nil && req.Ambient != nil {
			err = sess.Player.SetAmbientVolume(*req.Ambient)
		}
	default:
		http.Error(w, "action must be play, pause, seek or volume", http.StatusBadRequest)
		return
	}
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	respondJSON(w, http.StatusOK, toPlaybackView(sess))
}

func (s *Server) currentMeditation() *usecase.MeditationSession {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.meditation
}

// closeMeditation stops the current meditation and reports whether one existed.
func (s *Server) closeMeditation() bool {
	s.mu.Lock()
	sess := s.meditation
	s.meditation = nil
	s.mu.Unlock()
	if sess == nil {
		return false
	}
	sess.Close()
	return true
}
