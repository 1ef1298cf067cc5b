package web

import (
	"crypto/subtle"
	"encoding/json"
	"net/http"
	"net/url"
	"strings"

	"github.com/sweeney/garage-door/internal/mqtt"
	"github.com/sweeney/garage-door/internal/status"
)

// findDoor matches a door by name or by its topic slug.
func findDoor(snap status.Snapshot, key string) (status.DoorStatus, bool) {
	if d, ok := snap.Door(key); ok {
		return d, true
	}
	for _, d := range snap.Doors {
		if mqtt.Slug(d.Name) == key {
			return d, true
		}
	}
	return status.DoorStatus{}, false
}

// handleDoor serves one door as JSON: GET /door?name=left-door.
func (s *Server) handleDoor(w http.ResponseWriter, r *http.Request) {
	d, ok := findDoor(s.tracker.Snapshot(), r.URL.Query().Get("name"))
	if !ok {
		http.Error(w, "unknown door", http.StatusNotFound)
		return
	}
	data, _ := json.MarshalIndent(status.FormatDoor(d), "", "  ")
	w.Header().Set("Content-Type", "application/json")
	w.Write(data)
}

// handleCommand queues a door command for the monitor loop:
// POST /door/command?name=left-door&action=open with the configured bearer
// token. It answers 202 once the command is queued; the outcome is visible
// in the door's status.
func (s *Server) handleCommand(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		w.Header().Set("Allow", http.MethodPost)
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	if s.commands == nil || s.token == "" {
		http.Error(w, "commands disabled", http.StatusNotImplemented)
		return
	}
	if !sameOrigin(r) {
		http.Error(w, "cross-origin request", http.StatusForbidden)
		return
	}
	if !s.authorized(r) {
		http.Error(w, "forbidden", http.StatusForbidden)
		return
	}

	q := r.URL.Query()
	d, ok := findDoor(s.tracker.Snapshot(), q.Get("name"))
	if !ok {
		http.Error(w, "unknown door", http.StatusNotFound)
		return
	}
	cmd, err := mqtt.ParseCommand(mqtt.CommandTopic(d.Name), []byte(q.Get("action")))
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	select {
	case s.commands <- cmd:
		w.WriteHeader(http.StatusAccepted)
	default:
		http.Error(w, "command queue full", http.StatusServiceUnavailable)
	}
}

func (s *Server) authorized(r *http.Request) bool {
	got, ok := strings.CutPrefix(r.Header.Get("Authorization"), "Bearer ")
	if !ok {
		return false
	}
	return subtle.ConstantTimeCompare([]byte(got), []byte(s.token)) == 1
}

// sameOrigin rejects browser requests sent from another site. Requests
// without an Origin header come from non-browser clients.
func sameOrigin(r *http.Request) bool {
	origin := r.Header.Get("Origin")
	if origin == "" {
		return true
	}
	u, err := url.Parse(origin)
	if err != nil {
		return false
	}
	return strings.EqualFold(u.Host, r.Host)
}
