package main

import (
	"net/http"
	"strconv"

	"github.com/gorilla/mux"
	jsoniter "github.com/json-iterator/go"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/R3E-Network/hostbridge/internal/engine/bridge"
	"github.com/R3E-Network/hostbridge/internal/engine/events"
)

const defaultEventLimit = 100

var json = jsoniter.ConfigCompatibleWithStandardLibrary

// newRouter serves diagnostics for rt.
func newRouter(rt *bridge.Runtime, reg *prometheus.Registry) *mux.Router {
	r := mux.NewRouter()
	r.HandleFunc("/healthz", handleHealth).Methods(http.MethodGet)
	r.HandleFunc("/status", statusHandler(rt)).Methods(http.MethodGet)
	r.HandleFunc("/status/{object}", objectHandler(rt)).Methods(http.MethodGet)
	r.HandleFunc("/events", eventsHandler(rt.Events)).Methods(http.MethodGet)
	if reg != nil {
		r.Handle("/metrics", promhttp.HandlerFor(reg, promhttp.HandlerOpts{})).Methods(http.MethodGet)
	}
	return r
}

func handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func statusHandler(rt *bridge.Runtime) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, map[string]interface{}{
			"objects": rt.Snapshot(),
			"facades": rt.Facades.Names(),
		})
	}
}

func objectHandler(rt *bridge.Runtime) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		name := mux.Vars(r)["object"]
		for _, snap := range rt.Snapshot() {
			if snap.Name == name {
				writeJSON(w, http.StatusOK, snap)
				return
			}
		}
		writeError(w, http.StatusNotFound, "unknown object "+name)
	}
}

// eventsHandler serves recent events, newest first. ?object= and ?type=
// narrow the result; ?limit= caps it.
func eventsHandler(log events.EventLogger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		q := r.URL.Query()
		limit := defaultEventLimit
		if raw := q.Get("limit"); raw != "" {
			n, err := strconv.Atoi(raw)
			if err != nil || n < 1 {
				writeError(w, http.StatusBadRequest, "limit must be a positive integer")
				return
			}
			limit = n
		}

		var out []events.Event
		switch {
		case q.Get("object") != "":
			out = log.RecentByObject(q.Get("object"), limit)
		case q.Get("type") != "":
			out = log.RecentByType(events.EventType(q.Get("type")), limit)
		default:
			out = log.Recent(limit)
		}
		if out == nil {
			out = []events.Event{}
		}
		writeJSON(w, http.StatusOK, out)
	}
}

func writeJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(data)
}

func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, map[string]string{"error": message})
}
