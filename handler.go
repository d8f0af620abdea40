package swcache

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
)

const maxMessageBytes = 64 << 10

// Handler serves the worker as a reverse proxy in front of its origin.
// Besides proxied traffic it answers
//
//	POST <ControlPath>/message  {"type":"CACHE_CLEANUP"}
//	GET  <ControlPath>/state
func (w *Worker) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("POST "+w.control+"/message", w.serveMessage)
	mux.HandleFunc("GET "+w.control+"/state", w.serveState)
	mux.HandleFunc("/", w.serveFetch)
	return mux
}

// ControlPath is the prefix of the handler's control endpoints.
func (w *Worker) ControlPath() string { return w.control }

func (w *Worker) serveFetch(rw http.ResponseWriter, r *http.Request) {
	out := r.Clone(r.Context())
	u := *r.URL
	u.Scheme = w.origin.Scheme
	u.Host = w.origin.Host
	out.URL = &u
	out.Host = w.origin.Host
	out.RequestURI = ""

	resp, err := w.Fetch(r.Context(), out)
	if err != nil {
		status := http.StatusBadGateway
		if errors.Is(err, ErrWorkerClosed) {
			status = http.StatusServiceUnavailable
		}
		w.log.Debug("pass-through request failed", Fields{"url": u.String(), "err": err})
		http.Error(rw, http.StatusText(status), status)
		return
	}
	defer resp.Body.Close()

	h := rw.Header()
	for k, vs := range resp.Header {
		for _, v := range vs {
			h.Add(k, v)
		}
	}
	rw.WriteHeader(resp.StatusCode)
	if r.Method != http.MethodHead {
		_, _ = io.Copy(rw, resp.Body)
	}
}

func (w *Worker) serveMessage(rw http.ResponseWriter, r *http.Request) {
	var m Message
	if err := json.NewDecoder(io.LimitReader(r.Body, maxMessageBytes)).Decode(&m); err != nil {
		http.Error(rw, "invalid message", http.StatusBadRequest)
		return
	}
	if err := w.PostMessage(r.Context(), m); err != nil {
		w.log.Error("message handling failed", Fields{"type": m.Type, "err": err})
		http.Error(rw, err.Error(), http.StatusInternalServerError)
		return
	}
	rw.WriteHeader(http.StatusAccepted)
}

type stateReport struct {
	State       string   `json:"state"`
	Controlling bool     `json:"controlling"`
	Partitions  []string `json:"partitions"`
	Pending     int      `json:"pending"`
}

func (w *Worker) serveState(rw http.ResponseWriter, r *http.Request) {
	names, err := w.store.Names(r.Context())
	if err != nil {
		http.Error(rw, err.Error(), http.StatusInternalServerError)
		return
	}
	rep := stateReport{
		State:       w.State().String(),
		Controlling: w.Controlling(),
		Partitions:  names,
		Pending:     len(w.Pending()),
	}
	rw.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(rw).Encode(rep)
}
