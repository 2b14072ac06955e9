package web

import (
	"errors"
	"net/http"
	"strconv"
	"strings"

	"github.com/roasbeef/p4review/internal/queue"
)

// taskPayload builds the payload a trigger task of typ carries.
func taskPayload(typ queue.TaskType, r *http.Request) (any, error) {
	user := r.Form.Get("user")

	switch typ {
	case queue.TaskShelve, queue.TaskCommit, queue.TaskChange:
		p := &queue.ChangePayload{User: user}
		if old := r.Form.Get("oldChange"); old != "" {
			n, err := strconv.ParseInt(old, 10, 64)
			if err != nil {
				return nil, errors.New("oldChange must be a number")
			}
			p.OldChange = n
		}
		return p, nil

	case queue.TaskReview:
		return &queue.ReviewPayload{User: user}, nil

	case queue.TaskComment:
		p := &queue.CommentPayload{User: user, Body: r.Form.Get("body")}
		if rv := r.Form.Get("review"); rv != "" {
			n, err := strconv.ParseInt(rv, 10, 64)
			if err != nil {
				return nil, errors.New("review must be a number")
			}
			p.Review = n
		}
		return p, nil

	default:
		return &queue.SpecPayload{User: user}, nil
	}
}

// triggerFields returns the task type and id of a trigger request. Besides
// the type and id fields, a bare "type,id" body as sent by the Perforce
// trigger script is accepted.
func triggerFields(r *http.Request) (string, string) {
	typ, id := r.Form.Get("type"), r.Form.Get("id")
	if typ != "" || len(r.PostForm) != 1 {
		return typ, id
	}

	for key, vals := range r.PostForm {
		if len(vals) == 1 && vals[0] == "" {
			typ, id, _ = strings.Cut(key, ",")
		}
	}

	return strings.TrimSpace(typ), strings.TrimSpace(id)
}

// handleQueueAdd handles POST /queue/add.
func (s *Server) handleQueueAdd(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseForm(); err != nil {
		badRequest(w, "body", "Unable to parse parameters.")
		return
	}

	rawType, id := triggerFields(r)
	typ, err := queue.ParseTaskType(strings.TrimPrefix(rawType, "swarm."))
	if err != nil {
		badRequest(w, "type", err.Error())
		return
	}
	if id == "" {
		badRequest(w, "id", "An id is required.")
		return
	}

	payload, err := taskPayload(typ, r)
	if err != nil {
		badRequest(w, "payload", err.Error())
		return
	}

	task, err := s.cfg.Queue.Enqueue(r.Context(), typ, id, payload)
	if err != nil {
		s.writeError(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"isValid": true,
		"task":    task.ID,
	})
}

// handleQueueWorker handles GET|POST /queue/worker by draining the queue
// in the request.
func (s *Server) handleQueueWorker(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet && r.Method != http.MethodPost {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	if s.cfg.Worker == nil {
		writeJSON(w, http.StatusServiceUnavailable, invalidResponse{
			Error: "no worker configured",
		})
		return
	}

	resp, err := s.cfg.Worker.Receive(r.Context(),
		queue.DrainRequest{}).Unpack()
	switch {
	case errors.Is(err, queue.ErrDrainRunning):
		writeJSON(w, http.StatusConflict, invalidResponse{
			Error: err.Error(),
		})
		return

	case err != nil:
		s.writeError(w, r, err)
		return
	}

	drain, ok := resp.(queue.DrainResponse)
	if !ok {
		s.writeError(w, r, errors.New("unexpected worker response"))
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"isValid":   true,
		"processed": drain.Result.Processed,
		"failed":    drain.Result.Failed,
	})
}

// handleQueueStatus handles GET /queue/status.
func (s *Server) handleQueueStatus(w http.ResponseWriter, r *http.Request) {
	stats, err := s.cfg.Queue.Stats(r.Context())
	if err != nil {
		s.writeError(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, stats)
}
