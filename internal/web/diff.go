package web

import (
	"net/http"
	"strconv"

	"github.com/roasbeef/p4review/internal/versiondiff"
)

func queryInt(r *http.Request, key string) (int, bool) {
	v := r.URL.Query().Get(key)
	if v == "" {
		return 0, true
	}
	n, err := strconv.Atoi(v)
	if err != nil || n < 0 {
		return 0, false
	}

	return n, true
}

// handleDiff handles GET /reviews/{id}/diff. With a file parameter the
// hunks of that file are returned as well.
func (s *Server) handleDiff(w http.ResponseWriter, r *http.Request) {
	id, err := reviewID(r)
	if err != nil {
		s.writeError(w, r, err)
		return
	}

	from, ok := queryInt(r, "from")
	if !ok {
		badRequest(w, "from", "from must be a version number.")
		return
	}
	to, ok := queryInt(r, "to")
	if !ok {
		badRequest(w, "to", "to must be a version number.")
		return
	}

	rv, err := s.cfg.Reviews.Get(r.Context(), id)
	if err != nil {
		s.writeError(w, r, err)
		return
	}

	files, err := s.cfg.Diffs.Between(r.Context(), rv, from, to)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	if files == nil {
		files = []versiondiff.FileDiff{}
	}

	resp := map[string]any{"files": files}

	if want := r.URL.Query().Get("file"); want != "" {
		for _, fd := range files {
			if fd.DepotFile != want {
				continue
			}
			hunks, err := s.cfg.Diffs.Hunks(r.Context(), fd)
			if err != nil {
				s.writeError(w, r, err)
				return
			}
			resp["hunks"] = hunks
		}
	}

	writeJSON(w, http.StatusOK, resp)
}
