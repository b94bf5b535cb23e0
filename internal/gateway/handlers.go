package gateway

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/scanhub-io/coordinator/internal/auth"
	"github.com/scanhub-io/coordinator/internal/reporter"
	"github.com/scanhub-io/coordinator/internal/store"
	"github.com/scanhub-io/coordinator/models"
)

// handleDispatch implements POST /job: claim one scan and hand it to the
// calling worker, or 204 when the queue is empty.
func (gw *Server) handleDispatch(w http.ResponseWriter, r *http.Request) {
	actor, err := auth.Actor(r.Context())
	if err != nil {
		writeError(w, http.StatusUnauthorized, err.Error())
		return
	}

	snapshot := gw.rulesProvider.Current()
	scan, err := gw.store.ClaimNext(r.Context(), actor, time.Now().UTC(), gw.jobTimeout, snapshot)
	if err != nil {
		writeStoreError(w, err)
		return
	}
	if scan == nil {
		w.WriteHeader(http.StatusNoContent)
		return
	}

	writeJSON(w, http.StatusOK, dispatchResponse{
		Name:          scan.Name,
		Version:       scan.Version,
		Distributions: scan.URLs,
		Hash:          derefString(scan.CommitHash),
		Rules:         scan.RuleNames,
	})
}

type dispatchResponse struct {
	Name          string   `json:"name"`
	Version       string   `json:"version"`
	Distributions []string `json:"distributions"`
	Hash          string   `json:"hash"`
	Rules         []string `json:"rules"`
}

// handleIntake implements POST /package: idempotent enqueue.
func (gw *Server) handleIntake(w http.ResponseWriter, r *http.Request) {
	actor, err := auth.Actor(r.Context())
	if err != nil {
		writeError(w, http.StatusUnauthorized, err.Error())
		return
	}

	var req struct {
		Name          string   `json:"name"`
		Version       string   `json:"version"`
		Distributions []string `json:"distributions"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if req.Name == "" || req.Version == "" {
		writeError(w, http.StatusBadRequest, "name and version are required")
		return
	}

	_, err = gw.store.InsertScan(r.Context(), req.Name, req.Version, req.Distributions, actor)
	if err != nil {
		writeStoreError(w, err)
		return
	}
	writeEmpty(w)
}

// handleSubmit implements PUT /package: worker-reported success.
func (gw *Server) handleSubmit(w http.ResponseWriter, r *http.Request) {
	actor, err := auth.Actor(r.Context())
	if err != nil {
		writeError(w, http.StatusUnauthorized, err.Error())
		return
	}

	var req struct {
		Name         string          `json:"name"`
		Version      string          `json:"version"`
		Score        int             `json:"score"`
		InspectorURL string          `json:"inspector_url"`
		Rules        []string        `json:"rules"`
		Commit       string          `json:"commit"`
		Files        json.RawMessage `json:"files"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if req.Score < 0 || req.InspectorURL == "" {
		writeError(w, http.StatusBadRequest, "score must be non-negative and inspector_url is required")
		return
	}

	scan, err := gw.store.GetScanByNameVersion(r.Context(), req.Name, req.Version)
	if err != nil {
		writeStoreError(w, err)
		return
	}

	err = gw.store.Submit(r.Context(), scan.ScanID, actor, store.SubmitResult{
		Score:        req.Score,
		InspectorURL: req.InspectorURL,
		RuleNames:    req.Rules,
		Files:        req.Files,
	})
	if err != nil {
		writeStoreError(w, err)
		return
	}
	writeEmpty(w)
}

// handleFail implements POST /package/fail: worker-reported failure.
func (gw *Server) handleFail(w http.ResponseWriter, r *http.Request) {
	actor, err := auth.Actor(r.Context())
	if err != nil {
		writeError(w, http.StatusUnauthorized, err.Error())
		return
	}

	var req struct {
		Name    string `json:"name"`
		Version string `json:"version"`
		Reason  string `json:"reason"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	scan, err := gw.store.GetScanByNameVersion(r.Context(), req.Name, req.Version)
	if err != nil {
		writeStoreError(w, err)
		return
	}

	if err := gw.store.Fail(r.Context(), scan.ScanID, actor, req.Reason); err != nil {
		writeStoreError(w, err)
		return
	}
	writeEmpty(w)
}

// handleList implements GET /package: filtered, paginated listing.
func (gw *Server) handleList(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	filters := store.ListFilters{
		Status:  q.Get("status"),
		Name:    q.Get("name"),
		Version: q.Get("version"),
	}
	if since := q.Get("since"); since != "" {
		if t, err := time.Parse(time.RFC3339, since); err == nil {
			filters.Since = t
		}
	}
	if until := q.Get("until"); until != "" {
		if t, err := time.Parse(time.RFC3339, until); err == nil {
			filters.Until = t
		}
	}

	page, err := gw.store.List(r.Context(), filters, q.Get("cursor"), 0)
	if err != nil {
		writeStoreError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, listResponse{Scans: page.Scans, NextCursor: page.NextCursor})
}

type listResponse struct {
	Scans      []models.Scan `json:"scans"`
	NextCursor string        `json:"next_cursor,omitempty"`
}

// handleReport implements POST /report/{name}: one-shot forward to the
// reporter service, gated by the store's CAS on reported_at.
func (gw *Server) handleReport(w http.ResponseWriter, r *http.Request) {
	actor, err := auth.Actor(r.Context())
	if err != nil {
		writeError(w, http.StatusUnauthorized, err.Error())
		return
	}

	name := chi.URLParam(r, "name")
	var req struct {
		Version               string `json:"version"`
		Recipient             string `json:"recipient"`
		InspectorURL          string `json:"inspector_url"`
		AdditionalInformation string `json:"additional_information"`
		UseEmail              bool   `json:"use_email"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	scan, err := gw.store.GetScanByNameVersion(r.Context(), name, req.Version)
	if err != nil {
		writeStoreError(w, err)
		return
	}

	now := time.Now().UTC()
	reported, err := gw.store.MarkReported(r.Context(), scan.ScanID, actor, now)
	if err != nil {
		writeStoreError(w, err)
		return
	}

	inspectorURL := req.InspectorURL
	if inspectorURL == "" {
		inspectorURL = derefString(reported.InspectorURL)
	}
	score := 0
	if reported.Score != nil {
		score = *reported.Score
	}

	err = gw.reporter.Send(r.Context(), reporter.Observation{
		Name:                  reported.Name,
		Version:               reported.Version,
		Score:                 score,
		InspectorURL:          inspectorURL,
		Recipient:             req.Recipient,
		AdditionalInformation: req.AdditionalInformation,
		UseEmail:              req.UseEmail,
	})
	if err != nil {
		// Reporter call failed: undo the CAS so the scan stays eligible
		// to be reported again.
		if undoErr := gw.store.UndoReported(r.Context(), scan.ScanID); undoErr != nil {
			writeError(w, http.StatusInternalServerError, "report failed and rollback failed: "+undoErr.Error())
			return
		}
		writeError(w, http.StatusBadGateway, "reporter service call failed: "+err.Error())
		return
	}
	writeEmpty(w)
}

// handleRulesUpdate implements POST /rules/update: admin-triggered ruleset
// refresh.
func (gw *Server) handleRulesUpdate(w http.ResponseWriter, r *http.Request) {
	if err := gw.rulesRefresher.Refresh(r.Context()); err != nil {
		writeError(w, http.StatusBadGateway, err.Error())
		return
	}
	snapshot := gw.rulesProvider.Current()
	writeJSON(w, http.StatusOK, map[string]any{
		"commit": snapshot.CommitHash,
		"rules":  snapshot.RuleNames,
	})
}

func derefString(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}
