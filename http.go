// SPDX-FileCopyrightText: 2024 SAP SE or an SAP affiliate company and IronCore contributors
// SPDX-License-Identifier: Apache-2.0

package quicvc

import (
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	yaml "gopkg.in/yaml.v2"
)

var QUICVC_VERSION string = "development"

type jsonConnections struct {
	Date          string           `json:"date" yaml:"date"`
	Connections   []ConnectionInfo `json:"connections" yaml:"connections"`
	QUICVCVersion string           `json:"quicvcVersion" yaml:"quicvcVersion"`
}

type statusServer struct {
	m *Manager
}

// StatusHandler serves the connection table as JSON and YAML plus the
// manager's Prometheus metrics.
func StatusHandler(m *Manager) http.Handler {
	s := statusServer{
		m: m,
	}

	r := chi.NewRouter()
	r.Get("/connections.json", s.jsonHandler)
	r.Get("/connections.yaml", s.yamlHandler)
	r.Handle("/metrics", promhttp.HandlerFor(m.Registry(), promhttp.HandlerOpts{}))
	return r
}

func ServeStatus(m *Manager, listen string) error {
	srv := &http.Server{
		Addr:              listen,
		Handler:           StatusHandler(m),
		ReadHeaderTimeout: 5 * time.Second,
	}
	if err := srv.ListenAndServe(); err != nil {
		m.log().Errorf("Failed to listen and serve: %v", err)
		return err
	}
	return nil
}

func (s *statusServer) getConnections() jsonConnections {
	return jsonConnections{
		QUICVCVersion: QUICVC_VERSION,
		Date:          time.Now().Format("2006-01-02 15:04:05"),
		Connections:   s.m.Connections(),
	}
}

func (s *statusServer) jsonHandler(w http.ResponseWriter, r *http.Request) {
	out, err := json.MarshalIndent(s.getConnections(), "", "  ")
	if err != nil {
		w.WriteHeader(500)
		fmt.Fprintf(w, "Error: %v", err)
		return
	}

	w.Header().Add("Content-Type", "application/json")
	if _, err := w.Write(out); err != nil {
		s.m.log().Debugf("Could not write status response: %v", err)
	}
}

func (s *statusServer) yamlHandler(w http.ResponseWriter, r *http.Request) {
	out, err := yaml.Marshal(s.getConnections())
	if err != nil {
		w.WriteHeader(500)
		fmt.Fprintf(w, "Error: %v", err)
		return
	}

	w.Header().Add("Content-Type", "text/yaml")
	if _, err := w.Write(out); err != nil {
		s.m.log().Debugf("Could not write status response: %v", err)
	}
}
