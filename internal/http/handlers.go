package http

import (
	"bytes"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"
	"strings"

	"fleetbook/internal/core"
	"fleetbook/internal/export"
)

// ledgerTarget extracts the car and year path parameters.
func ledgerTarget(w http.ResponseWriter, r *http.Request) (carID string, year int, ok bool) {
	carID = strings.TrimSpace(r.PathValue("car"))
	if carID == "" {
		respondError(w, http.StatusBadRequest, "missing car id")
		return "", 0, false
	}
	year, err := strconv.Atoi(r.PathValue("year"))
	if err != nil || year < core.EpochYear || year > 9999 {
		respondError(w, http.StatusBadRequest, fmt.Sprintf("invalid year %q", r.PathValue("year")))
		return "", 0, false
	}
	return carID, year, true
}

func subcategoryID(w http.ResponseWriter, r *http.Request) (int64, bool) {
	id, err := strconv.ParseInt(r.PathValue("id"), 10, 64)
	if err != nil || id < 1 {
		respondError(w, http.StatusBadRequest, fmt.Sprintf("invalid subcategory id %q", r.PathValue("id")))
		return 0, false
	}
	return id, true
}

func (s *Server) handleListCars(w http.ResponseWriter, r *http.Request) {
	cars, err := s.ledgers.ListCars(r.Context())
	if err != nil {
		respondServiceError(w, r, err)
		return
	}
	if cars == nil {
		cars = []string{}
	}
	respondJSON(w, http.StatusOK, struct {
		Cars []string `json:"cars"`
	}{Cars: cars})
}

func (s *Server) handleGetLedger(w http.ResponseWriter, r *http.Request) {
	carID, year, ok := ledgerTarget(w, r)
	if !ok {
		return
	}

	view, err := s.getView(r.Context(), carID, year)
	if err != nil {
		respondServiceError(w, r, err)
		return
	}
	respondJSON(w, http.StatusOK, view)
}

func (s *Server) handleUpdateCell(w http.ResponseWriter, r *http.Request) {
	carID, year, ok := ledgerTarget(w, r)
	if !ok {
		return
	}

	var req struct {
		Category string  `json:"category"`
		Field    string  `json:"field"`
		Month    int     `json:"month"`
		Value    float64 `json:"value"`
	}
	if !decodeBody(w, r, &req) {
		return
	}

	err := s.ledgers.UpdateCell(r.Context(), carID, year, core.Category(req.Category), req.Field, req.Month, req.Value)
	if err != nil {
		respondServiceError(w, r, err)
		return
	}

	s.invalidateView(carID, year)
	respondJSON(w, http.StatusNoContent, nil)
}

func (s *Server) handleSetSplitMode(w http.ResponseWriter, r *http.Request) {
	carID, year, ok := ledgerTarget(w, r)
	if !ok {
		return
	}

	var req struct {
		Month int `json:"month"`
		Mode  int `json:"mode"`
	}
	if !decodeBody(w, r, &req) {
		return
	}

	if err := s.ledgers.SetSplitMode(r.Context(), carID, year, req.Month, core.SplitMode(req.Mode)); err != nil {
		respondServiceError(w, r, err)
		return
	}

	s.invalidateView(carID, year)
	respondJSON(w, http.StatusNoContent, nil)
}

func (s *Server) handleSetSkiRacksOwner(w http.ResponseWriter, r *http.Request) {
	carID, year, ok := ledgerTarget(w, r)
	if !ok {
		return
	}

	var req struct {
		Month int    `json:"month"`
		Owner string `json:"owner"`
	}
	if !decodeBody(w, r, &req) {
		return
	}

	if err := s.ledgers.SetSkiRacksOwner(r.Context(), carID, year, req.Month, core.SkiRacksOwner(req.Owner)); err != nil {
		respondServiceError(w, r, err)
		return
	}

	s.invalidateView(carID, year)
	respondJSON(w, http.StatusNoContent, nil)
}

func (s *Server) handleCreateSubcategory(w http.ResponseWriter, r *http.Request) {
	carID, year, ok := ledgerTarget(w, r)
	if !ok {
		return
	}

	var req struct {
		Category  string `json:"category"`
		Name      string `json:"name"`
		FleetWide bool   `json:"fleetWide"`
	}
	if !decodeBody(w, r, &req) {
		return
	}

	id, err := s.ledgers.CreateSubcategory(r.Context(), carID, year, core.Category(req.Category), strings.TrimSpace(req.Name), req.FleetWide)
	if err != nil {
		respondServiceError(w, r, err)
		return
	}

	if req.FleetWide {
		s.invalidateAllViews()
	} else {
		s.invalidateView(carID, year)
	}
	respondJSON(w, http.StatusCreated, struct {
		ID int64 `json:"id"`
	}{ID: id})
}

func (s *Server) handleRenameSubcategory(w http.ResponseWriter, r *http.Request) {
	carID, year, ok := ledgerTarget(w, r)
	if !ok {
		return
	}
	id, ok := subcategoryID(w, r)
	if !ok {
		return
	}

	var req struct {
		Name string `json:"name"`
	}
	if !decodeBody(w, r, &req) {
		return
	}

	if err := s.ledgers.RenameSubcategory(r.Context(), carID, year, id, strings.TrimSpace(req.Name)); err != nil {
		respondServiceError(w, r, err)
		return
	}

	// The handler does not know the subcategory's scope, and a fleet-wide
	// one is visible from every ledger.
	s.invalidateAllViews()
	respondJSON(w, http.StatusNoContent, nil)
}

func (s *Server) handleDeleteSubcategory(w http.ResponseWriter, r *http.Request) {
	carID, year, ok := ledgerTarget(w, r)
	if !ok {
		return
	}
	id, ok := subcategoryID(w, r)
	if !ok {
		return
	}

	if err := s.ledgers.DeleteSubcategory(r.Context(), carID, year, id); err != nil {
		respondServiceError(w, r, err)
		return
	}

	s.invalidateAllViews()
	respondJSON(w, http.StatusNoContent, nil)
}

func (s *Server) handleSetSubcategoryValue(w http.ResponseWriter, r *http.Request) {
	carID, year, ok := ledgerTarget(w, r)
	if !ok {
		return
	}
	id, ok := subcategoryID(w, r)
	if !ok {
		return
	}

	var req struct {
		Month int     `json:"month"`
		Value float64 `json:"value"`
	}
	if !decodeBody(w, r, &req) {
		return
	}

	if err := s.ledgers.SetSubcategoryValue(r.Context(), carID, year, id, req.Month, req.Value); err != nil {
		respondServiceError(w, r, err)
		return
	}

	s.invalidateView(carID, year)
	respondJSON(w, http.StatusNoContent, nil)
}

func (s *Server) handleExport(w http.ResponseWriter, r *http.Request) {
	carID, year, ok := ledgerTarget(w, r)
	if !ok {
		return
	}

	// Render into a buffer first so a load failure can still answer with
	// a JSON error instead of attachment headers on an empty body.
	var buf bytes.Buffer
	if err := s.ledgers.ExportCSV(r.Context(), &buf, carID, year); err != nil {
		respondServiceError(w, r, err)
		return
	}

	w.Header().Set("Content-Type", "text/csv; charset=utf-8")
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", fmt.Sprintf("%s-%d.csv", carID, year)))
	if _, err := buf.WriteTo(w); err != nil {
		slog.ErrorContext(r.Context(), "Writing CSV export failed", "car_id", carID, "year", year, "error", err)
	}
}

func (s *Server) handleImport(w http.ResponseWriter, r *http.Request) {
	carID, year, ok := ledgerTarget(w, r)
	if !ok {
		return
	}

	// 10 MB is far beyond any real ledger spreadsheet.
	body := http.MaxBytesReader(w, r.Body, 10<<20)
	if err := s.ledgers.ImportCSV(r.Context(), body, carID, year); err != nil {
		if errors.Is(err, export.ErrMalformed) {
			respondError(w, http.StatusUnprocessableEntity, err.Error())
			return
		}
		respondServiceError(w, r, err)
		return
	}

	s.invalidateView(carID, year)
	respondJSON(w, http.StatusNoContent, nil)
}
