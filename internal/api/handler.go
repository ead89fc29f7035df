// Package api serves exported metrics as JSON over HTTP.
package api

import (
	"encoding/json"
	"errors"
	"net/http"
	"sort"
	"time"

	"Go2NetMonitor/internal/model"
	"Go2NetMonitor/internal/query"

	"github.com/gorilla/mux"
	"github.com/sirupsen/logrus"
)

// Handler holds the dependencies for API handlers.
type Handler struct {
	querier query.Querier
	log     logrus.FieldLogger
}

// NewRouter builds the router for the metrics endpoints.
func NewRouter(querier query.Querier, log logrus.FieldLogger) *mux.Router {
	h := &Handler{querier: querier, log: log}

	r := mux.NewRouter()
	m := r.PathPrefix("/metrics").Subrouter()
	m.HandleFunc("/total_packets", h.totalPacketsHandler).Methods(http.MethodGet, http.MethodOptions)
	m.HandleFunc("/protocol_counts", h.protocolCountsHandler).Methods(http.MethodGet, http.MethodOptions)
	m.HandleFunc("/connections", h.connectionsHandler).Methods(http.MethodGet, http.MethodOptions)
	m.HandleFunc("/snapshot", h.snapshotHandler).Methods(http.MethodGet, http.MethodOptions)

	r.Use(mux.CORSMethodMiddleware(r))
	r.Use(corsMiddleware)
	r.Use(h.logMiddleware)
	return r
}

func corsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Headers", "*")
		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusNoContent)
			return
		}
		next.ServeHTTP(w, r)
	})
}

func (h *Handler) logMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		next.ServeHTTP(w, r)
		h.log.WithFields(logrus.Fields{
			"method": r.Method,
			"path":   r.URL.Path,
			"took":   time.Since(start),
		}).Debug("Request served")
	})
}

type protocolCountRow struct {
	Protocol    string `json:"Protocol"`
	PacketCount uint64 `json:"Packet Count"`
}

type connectionRow struct {
	SrcIP     string `json:"Source IP"`
	SrcPort   uint16 `json:"Source Port"`
	SrcDomain string `json:"Source Domain"`
	DstIP     string `json:"Destination IP"`
	DstPort   uint16 `json:"Destination Port"`
	DstDomain string `json:"Destination Domain"`
	Protocol  string `json:"Protocol"`
}

type snapshotResponse struct {
	Timestamp             time.Time          `json:"timestamp"`
	TotalPackets          uint64             `json:"total_packets"`
	TotalBytes            uint64             `json:"total_bytes"`
	ProtocolCounts        []protocolCountRow `json:"protocol_counts"`
	Connections           []connectionRow    `json:"connections"`
	UntrackedObservations uint64             `json:"untracked_observations"`
}

func (h *Handler) totalPacketsHandler(w http.ResponseWriter, r *http.Request) {
	total, err := h.querier.TotalPackets(r.Context())
	if err != nil {
		h.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]uint64{"total_packets": total})
}

func (h *Handler) protocolCountsHandler(w http.ResponseWriter, r *http.Request) {
	counts, err := h.querier.ProtocolCounts(r.Context())
	if err != nil {
		h.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string][]protocolCountRow{"protocol_counts": protocolRows(counts)})
}

func (h *Handler) connectionsHandler(w http.ResponseWriter, r *http.Request) {
	conns, err := h.querier.Connections(r.Context())
	if err != nil {
		h.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string][]connectionRow{"connections": connectionRows(conns)})
}

func (h *Handler) snapshotHandler(w http.ResponseWriter, r *http.Request) {
	snap, err := h.querier.Snapshot(r.Context())
	if err != nil {
		h.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, snapshotResponse{
		Timestamp:             snap.Timestamp,
		TotalPackets:          snap.TotalPackets,
		TotalBytes:            snap.TotalBytes,
		ProtocolCounts:        protocolRows(snap.ProtocolCounts),
		Connections:           connectionRows(snap.Connections),
		UntrackedObservations: snap.UntrackedObservations,
	})
}

// writeError answers {"error": msg}: 503 while nothing has been exported,
// 500 for anything else.
func (h *Handler) writeError(w http.ResponseWriter, err error) {
	if errors.Is(err, query.ErrNotAvailable) {
		writeJSON(w, http.StatusServiceUnavailable, map[string]string{"error": err.Error() + "."})
		return
	}
	h.log.WithError(err).Error("Query failed")
	writeJSON(w, http.StatusInternalServerError, map[string]string{"error": err.Error()})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func protocolRows(counts map[model.Protocol]uint64) []protocolCountRow {
	rows := make([]protocolCountRow, 0, len(counts))
	for proto, n := range counts {
		rows = append(rows, protocolCountRow{Protocol: string(proto), PacketCount: n})
	}
	sort.Slice(rows, func(i, j int) bool { return rows[i].Protocol < rows[j].Protocol })
	return rows
}

func connectionRows(conns []model.Connection) []connectionRow {
	rows := make([]connectionRow, 0, len(conns))
	for _, c := range conns {
		rows = append(rows, connectionRow{
			SrcIP:     c.SrcIP,
			SrcPort:   c.SrcPort,
			SrcDomain: model.DisplayDomain(c.SrcDomain),
			DstIP:     c.DstIP,
			DstPort:   c.DstPort,
			DstDomain: model.DisplayDomain(c.DstDomain),
			Protocol:  string(c.Protocol),
		})
	}
	return rows
}
