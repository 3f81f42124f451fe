package web

import (
	"bytes"
	"encoding/csv"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
)

func (s *server) downloadGrades(w http.ResponseWriter, r *http.Request) {
	listing, err := s.client.Grades.List(r.Context(), chi.URLParam(r, "org"), nil)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	rows := [][]string{{"id", "name"}}
	for _, g := range listing.Items {
		rows = append(rows, []string{g.ID, g.Name})
	}
	s.csv(w, r, "grades.csv", rows)
}

func (s *server) downloadLocations(w http.ResponseWriter, r *http.Request) {
	listing, err := s.client.Locations.List(r.Context(), chi.URLParam(r, "org"), nil)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	rows := [][]string{{"NAME", "ADDRESS"}}
	for _, l := range listing.Items {
		rows = append(rows, []string{l.Name, l.Address})
	}
	s.csv(w, r, "locations.csv", rows)
}

func (s *server) csv(w http.ResponseWriter, r *http.Request, filename string, rows [][]string) {
	var buf bytes.Buffer
	if err := csv.NewWriter(&buf).WriteAll(rows); err != nil {
		s.fail(w, r, err)
		return
	}
	w.Header().Set("Content-Type", "text/csv; charset=utf-8")
	w.Header().Set("Content-Disposition", "attachment; filename="+strconv.Quote(filename))
	w.WriteHeader(http.StatusOK)
	_, _ = buf.WriteTo(w)
}
