package api

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"

	"github.com/zenrollup/snapshotter/pkg/types"
)

type snapshotSummaryResponse struct {
	L1BatchNumber uint64 `json:"l1BatchNumber"`
}

type listSnapshotsResponse struct {
	Snapshots []snapshotSummaryResponse `json:"snapshots"`
}

type snapshotMetadataResponse struct {
	L1BatchNumber    uint64   `json:"l1BatchNumber"`
	MiniblockNumber  uint64   `json:"miniblockNumber"`
	StorageLogsFiles []string `json:"storageLogsFiles"`
}

type errorResponse struct {
	Error string `json:"error"`
}

func (s *Server) handleListSnapshots(w http.ResponseWriter, r *http.Request) {
	summaries, err := s.registry.List(r.Context())
	if err != nil {
		s.log.Errorw("failed to list snapshots", "error", err)
		writeError(w, http.StatusInternalServerError, "failed to list snapshots")
		return
	}

	resp := listSnapshotsResponse{Snapshots: make([]snapshotSummaryResponse, 0, len(summaries))}
	for _, summary := range summaries {
		resp.Snapshots = append(resp.Snapshots, snapshotSummaryResponse{L1BatchNumber: summary.L1BatchNumber})
	}
	writeJSON(w, http.StatusOK, resp)
}

func (s *Server) handleGetSnapshot(w http.ResponseWriter, r *http.Request) {
	raw := r.PathValue("l1BatchNumber")
	l1BatchNumber, err := strconv.ParseUint(raw, 10, 64)
	if err != nil {
		writeError(w, http.StatusBadRequest, "l1 batch number must be a non-negative integer")
		return
	}

	metadata, err := s.registry.Get(r.Context(), l1BatchNumber)
	if err != nil {
		if errors.Is(err, types.ErrNotFound) {
			writeError(w, http.StatusNotFound, "snapshot not found")
			return
		}
		s.log.Errorw("failed to get snapshot", "l1BatchNumber", l1BatchNumber, "error", err)
		writeError(w, http.StatusInternalServerError, "failed to get snapshot")
		return
	}

	writeJSON(w, http.StatusOK, snapshotMetadataResponse{
		L1BatchNumber:    metadata.L1BatchNumber,
		MiniblockNumber:  metadata.MiniblockNumber,
		StorageLogsFiles: metadata.Files,
	})
}

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(body) //nolint:errcheck // response already committed
}

func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, errorResponse{Error: message})
}
