package web

import "net/http"

func (s *Server) activityEnabled(w http.ResponseWriter) bool {
	if s.cfg.Activity == nil {
		writeJSON(w, http.StatusNotFound, invalidResponse{
			Error: "activity stream disabled",
		})
		return false
	}

	return true
}

// handleActivity handles GET /activity.
func (s *Server) handleActivity(w http.ResponseWriter, r *http.Request) {
	if !s.activityEnabled(w) {
		return
	}
	limit, ok := queryInt(r, "max")
	if !ok {
		badRequest(w, "max", "max must be a non-negative number.")
		return
	}

	entries, err := s.cfg.Activity.Recent(r.Context(), limit)
	if err != nil {
		s.writeError(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{"activity": entries})
}

// handleReviewActivity handles GET /reviews/{id}/activity.
func (s *Server) handleReviewActivity(w http.ResponseWriter,
	r *http.Request) {

	if !s.activityEnabled(w) {
		return
	}
	id, err := reviewID(r)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	limit, ok := queryInt(r, "max")
	if !ok {
		badRequest(w, "max", "max must be a non-negative number.")
		return
	}

	entries, err := s.cfg.Activity.ForReview(r.Context(), id, limit)
	if err != nil {
		s.writeError(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{"activity": entries})
}
