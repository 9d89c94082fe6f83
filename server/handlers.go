package main

import (
	"encoding/json"
	"log"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
)

func (a *App) handleVulnerabilities(w http.ResponseWriter, r *http.Request) {
	rule := r.URL.Query().Get("rule")
	limitStr := r.URL.Query().Get("limit")
	limit, atoiErr := strconv.Atoi(limitStr)
	if limitStr != "" && atoiErr != nil {
		log.Printf("vulnerabilities: invalid limit %q, using default", limitStr)
	}
	vs, err := a.db.Vulnerabilities(rule, limit)
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	writeJSON(w, vs)
}

func (a *App) handleVulnerabilityByID(w http.ResponseWriter, r *http.Request) {
	id, err := parseVulnID(r)
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	v, err := a.db.VulnerabilityByID(id)
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	if v == nil {
		http.Error(w, "vulnerability not found", http.StatusNotFound)
		return
	}
	writeJSON(w, v)
}

func (a *App) handleTraces(w http.ResponseWriter, r *http.Request) {
	id, err := parseVulnID(r)
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	traces, err := a.db.Traces(id)
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	writeJSON(w, traces)
}

func (a *App) handleIncomplete(w http.ResponseWriter, r *http.Request) {
	limitStr := r.URL.Query().Get("limit")
	limit, atoiErr := strconv.Atoi(limitStr)
	if limitStr != "" && atoiErr != nil {
		log.Printf("incomplete: invalid limit %q, using default", limitStr)
	}
	out, err := a.db.IncompleteMethods(limit)
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	writeJSON(w, out)
}

func (a *App) handleStats(w http.ResponseWriter, r *http.Request) {
	s, err := a.db.Stats()
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	writeJSON(w, s)
}

func parseVulnID(r *http.Request) (int64, error) {
	return strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
}

func writeJSON(w http.ResponseWriter, v interface{}) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	_ = enc.Encode(v)
}
