package upload

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"gatehouse/pkg/problems"
)

// Handler accepts POST .../projects/{projectId}/branches/{branchName}/upload
// with body {"fileId": "..."} and answers 202 with the queued job.
func Handler(log *zap.SugaredLogger, e Enqueuer) http.HandlerFunc {
	if log == nil {
		log = zap.NewNop().Sugar()
	}
	return func(w http.ResponseWriter, r *http.Request) {
		var body struct {
			FileID string `json:"fileId"`
		}
		if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
			problems.Write(w, http.StatusBadRequest, "invalid-body", "Invalid request body", err.Error())
			return
		}
		p := Payload{
			FileID:     body.FileID,
			ProjectID:  chi.URLParam(r, "projectId"),
			BranchName: chi.URLParam(r, "branchName"),
		}
		j, err := EnqueueUpload(r.Context(), e, p)
		if errors.Is(err, ErrInvalidPayload) {
			problems.Write(w, http.StatusBadRequest, "invalid-upload", "Invalid upload", err.Error())
			return
		}
		if err != nil {
			log.Errorw("enqueue upload", "err", err)
			problems.Write(w, http.StatusInternalServerError, "enqueue-failed", "Upload could not be queued", "")
			return
		}
		w.Header().Set("Content-Type", "application/json")
		w.Header().Set("Location", "/api/jobs/"+j.ID)
		w.WriteHeader(http.StatusAccepted)
		_ = json.NewEncoder(w).Encode(map[string]any{"jobId": j.ID, "status": j.Status})
	}
}
