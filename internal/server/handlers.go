package server

import (
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"kynews/internal/classify"
	"kynews/internal/core"
	"kynews/internal/media"
	"kynews/internal/persistence"

	"github.com/go-chi/chi/v5"
)

const (
	defaultLimit        = 30
	maxLimit            = 100
	defaultHours        = 2
	maxHours            = 8760 // one year
	defaultCountyHours  = 24
	maxSearchLen        = 200
)

// Health check response
type HealthResponse struct {
	Status string            `json:"status"`
	Checks map[string]string `json:"checks"`
}

// StatusResponse is the /api/status body.
type StatusResponse struct {
	Status       string             `json:"status"`
	ItemsLast24h int                `json:"items_last_24h"`
	LastRun      *core.FetchRun     `json:"last_run,omitempty"`
	RecentErrors []statusErrorEvent `json:"recent_errors,omitempty"`
}

type statusErrorEvent struct {
	Component string    `json:"component"`
	Message   string    `json:"message"`
	At        time.Time `json:"at"`
}

// itemsResponse is the paginated item listing body. NextCursor is null
// on the last page.
type itemsResponse struct {
	Items      []core.Item `json:"items"`
	NextCursor *string     `json:"nextCursor"`
}

// itemDetail is the single-item body with its geo tags and, when one
// exists, the generated summary.
type itemDetail struct {
	Item    *core.Item          `json:"item"`
	Summary *core.ItemAISummary `json:"summary,omitempty"`
}

// handleHealth handles the /health endpoint
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	checks := make(map[string]string)

	if err := s.db.Ping(r.Context()); err != nil {
		checks["database"] = "error"
		s.respondJSON(w, http.StatusServiceUnavailable, HealthResponse{Status: "unhealthy", Checks: checks})
		return
	}
	checks["database"] = "ok"

	if s.kv != nil {
		if err := s.kv.Ping(r.Context()); err != nil {
			checks["cache"] = "error"
		} else {
			checks["cache"] = "ok"
		}
	}

	s.respondJSON(w, http.StatusOK, HealthResponse{Status: "ok", Checks: checks})
}

// handleStatus handles the /api/status endpoint
func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	resp := StatusResponse{Status: "ok"}

	count, err := s.db.Items().CountSince(r.Context(), time.Now().UTC().Add(-24*time.Hour))
	if err != nil {
		s.respondHandlerError(w, r, err)
		return
	}
	resp.ItemsLast24h = count

	if run, err := s.db.Runs().LatestRun(r.Context()); err == nil {
		resp.LastRun = run
	}

	if s.kv != nil {
		if events, err := s.kv.RecentErrors(r.Context(), 20); err == nil {
			for _, ev := range events {
				resp.RecentErrors = append(resp.RecentErrors, statusErrorEvent{
					Component: ev.Component, Message: ev.Message, At: ev.At,
				})
			}
		}
	}

	s.respondJSON(w, http.StatusOK, resp)
}

// handleListItems handles GET /api/items
func (s *Server) handleListItems(r *http.Request) (interface{}, error) {
	q, err := s.itemQueryFrom(r)
	if err != nil {
		return nil, err
	}
	return s.listItems(r, q)
}

// handleSearch handles GET /api/search. Same filters as the listing,
// plus a required query term and an optional sort direction.
func (s *Server) handleSearch(r *http.Request) (interface{}, error) {
	q, err := s.itemQueryFrom(r)
	if err != nil {
		return nil, err
	}

	term := strings.TrimSpace(r.URL.Query().Get("q"))
	if term == "" {
		return nil, badRequest("missing_query", "search requires a q parameter")
	}
	if len(term) > maxSearchLen {
		return nil, badRequest("query_too_long", "q must be at most %d characters", maxSearchLen)
	}
	q.Search = term
	// A query that names a county also matches items tagged with it,
	// even when the tag never appears in the stored text.
	q.WidenCounties = classify.CountiesIn(term)

	switch sort := r.URL.Query().Get("sort"); sort {
	case "", "newest":
	case "oldest":
		q.OldestFirst = true
	default:
		return nil, badRequest("invalid_sort", "sort must be newest or oldest")
	}

	return s.listItems(r, q)
}

// listItems runs the query and builds the page with its continuation
// cursor. One extra row is fetched to detect whether a next page exists.
func (s *Server) listItems(r *http.Request, q persistence.ItemQuery) (interface{}, error) {
	limit := q.Limit
	q.Limit = limit + 1

	items, err := s.db.Items().List(r.Context(), q)
	if err != nil {
		return nil, err
	}

	resp := itemsResponse{Items: items}
	if len(items) > limit {
		resp.Items = items[:limit]
		last := resp.Items[len(resp.Items)-1]
		cursor := encodeCursor(last.SortTime(), last.ID)
		resp.NextCursor = &cursor
	}
	if resp.Items == nil {
		resp.Items = []core.Item{}
	}
	return resp, nil
}

// itemQueryFrom validates the shared listing parameters.
func (s *Server) itemQueryFrom(r *http.Request) (persistence.ItemQuery, error) {
	params := r.URL.Query()
	q := persistence.ItemQuery{
		Scope:     core.ScopeAll,
		StateCode: s.cfg.App.StateCode,
		Hours:     defaultHours,
		Limit:     defaultLimit,
	}

	if scope := params.Get("scope"); scope != "" {
		switch scope {
		case core.ScopeKY, core.ScopeNational, core.ScopeAll:
			q.Scope = scope
		default:
			return q, badRequest("invalid_scope", "scope must be ky, national, or all")
		}
	}

	q.FeedID = strings.TrimSpace(params.Get("feedId"))

	if state := strings.ToUpper(strings.TrimSpace(params.Get("state"))); state != "" {
		if len(state) != 2 {
			return q, badRequest("invalid_state", "state must be a two-letter code")
		}
		q.StateCode = state
	}

	if county := strings.TrimSpace(params.Get("county")); county != "" {
		q.Counties = append(q.Counties, county)
	}
	for _, county := range params["counties[]"] {
		if county = strings.TrimSpace(county); county != "" {
			q.Counties = append(q.Counties, county)
		}
	}

	q.Category = strings.TrimSpace(params.Get("category"))

	if raw := params.Get("hours"); raw != "" {
		hours, err := strconv.Atoi(raw)
		if err != nil || hours < 1 || hours > maxHours {
			return q, badRequest("invalid_hours", "hours must be an integer between 1 and %d", maxHours)
		}
		q.Hours = hours
	}

	if raw := params.Get("limit"); raw != "" {
		limit, err := strconv.Atoi(raw)
		if err != nil || limit < 1 || limit > maxLimit {
			return q, badRequest("invalid_limit", "limit must be an integer between 1 and %d", maxLimit)
		}
		q.Limit = limit
	}

	if raw := params.Get("cursor"); raw != "" {
		after, afterID, err := decodeCursor(raw)
		if err != nil {
			return q, badRequest("invalid_cursor", "cursor is malformed")
		}
		q.AfterTime = &after
		q.AfterID = afterID
	}

	return q, nil
}

// handleGetItem handles GET /api/items/{id}
func (s *Server) handleGetItem(r *http.Request) (interface{}, error) {
	id := chi.URLParam(r, "id")

	item, err := s.db.Items().Get(r.Context(), id)
	if err != nil {
		return nil, err
	}
	if item == nil || item.IsDraft() {
		return nil, notFound("item %s not found", id)
	}

	if locations, err := s.db.Locations().ListForItem(r.Context(), id); err == nil {
		item.Locations = locations
	}

	detail := itemDetail{Item: item}
	if summary, err := s.db.Summaries().Get(r.Context(), id); err == nil {
		detail.Summary = summary
	}
	return detail, nil
}

// handleCounties handles GET /api/counties
func (s *Server) handleCounties(r *http.Request) (interface{}, error) {
	state := strings.ToUpper(strings.TrimSpace(r.URL.Query().Get("state")))
	if state == "" {
		state = s.cfg.App.StateCode
	}
	if len(state) != 2 {
		return nil, badRequest("invalid_state", "state must be a two-letter code")
	}

	hours := defaultCountyHours
	if raw := r.URL.Query().Get("hours"); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil || parsed < 1 || parsed > maxHours {
			return nil, badRequest("invalid_hours", "hours must be an integer between 1 and %d", maxHours)
		}
		hours = parsed
	}

	counts, err := s.db.Locations().CountByCounty(r.Context(), state, hours)
	if err != nil {
		return nil, err
	}
	if counts == nil {
		counts = []persistence.CountyCount{}
	}
	return map[string]interface{}{"state": state, "hours": hours, "counties": counts}, nil
}

// handleListFeeds handles GET /api/feeds
func (s *Server) handleListFeeds(r *http.Request) (interface{}, error) {
	scope := r.URL.Query().Get("scope")
	switch scope {
	case "", core.ScopeAll, core.ScopeKY, core.ScopeNational:
	default:
		return nil, badRequest("invalid_scope", "scope must be ky, national, or all")
	}

	feeds, err := s.db.Feeds().List(r.Context())
	if err != nil {
		return nil, err
	}

	filtered := []core.Feed{}
	for _, feed := range feeds {
		if scope == "" || scope == core.ScopeAll || feed.RegionScope == scope {
			filtered = append(filtered, feed)
		}
	}
	return map[string]interface{}{"feeds": filtered}, nil
}

// handleMedia streams a mirrored object. A stale key (the item was
// re-mirrored under a new extension) redirects to the current one; only
// keys with a recorded mirror row are served. Answers HEAD as well.
func (s *Server) handleMedia(w http.ResponseWriter, r *http.Request) {
	if s.mirror == nil {
		s.respondError(w, http.StatusNotFound, "media_disabled", "media mirroring is not configured")
		return
	}

	key := chi.URLParam(r, "*")
	record, err := s.mirror.Resolve(r.Context(), key)
	if err != nil {
		s.respondHandlerError(w, r, err)
		return
	}
	if record == nil {
		s.respondError(w, http.StatusNotFound, "not_found", "media object not found")
		return
	}
	if record.Key != key {
		http.Redirect(w, r, media.ServePrefix+record.Key, http.StatusFound)
		return
	}

	etag := fmt.Sprintf(`"%x-%x"`, record.UpdatedAt.Unix(), record.ByteCount)
	w.Header().Set("ETag", etag)
	w.Header().Set("Cache-Control", media.CacheControl)
	if r.Header.Get("If-None-Match") == etag {
		w.WriteHeader(http.StatusNotModified)
		return
	}

	w.Header().Set("Content-Type", record.ContentType)
	w.Header().Set("Content-Length", strconv.FormatInt(record.ByteCount, 10))
	if r.Method == http.MethodHead {
		w.WriteHeader(http.StatusOK)
		return
	}

	body, _, err := s.mirror.Open(r.Context(), key)
	if err != nil {
		s.respondError(w, http.StatusNotFound, "not_found", "media object not found")
		return
	}
	defer func() { _ = body.Close() }()

	if _, err := io.Copy(w, body); err != nil {
		s.log.Debug("media stream interrupted", "key", key, "error", err.Error())
	}
}

// handleTriggerIngest handles POST /api/admin/ingest
func (s *Server) handleTriggerIngest(w http.ResponseWriter, r *http.Request) {
	if s.ingestor == nil {
		s.respondError(w, http.StatusServiceUnavailable, "ingest_unavailable", "ingestion is not configured on this instance")
		return
	}

	run, err := s.ingestor.RunOnce(r.Context())
	if err != nil {
		s.respondHandlerError(w, r, err)
		return
	}
	s.respondJSON(w, http.StatusOK, map[string]interface{}{"run": run})
}

// handleListReviews handles GET /api/admin/reviews
func (s *Server) handleListReviews(w http.ResponseWriter, r *http.Request) {
	status := r.URL.Query().Get("status")
	if status == "" {
		status = core.ReviewPending
	}
	switch status {
	case core.ReviewPending, core.ReviewApproved, core.ReviewRejected, core.ReviewEdited:
	default:
		s.respondError(w, http.StatusBadRequest, "invalid_status", "unknown review status")
		return
	}

	reviews, err := s.db.Reviews().ListByStatus(r.Context(), status, 100)
	if err != nil {
		s.respondHandlerError(w, r, err)
		return
	}
	if reviews == nil {
		reviews = []core.SummaryReview{}
	}
	s.respondJSON(w, http.StatusOK, map[string]interface{}{"reviews": reviews})
}

// reviewDecision is the POST body for resolving a review.
type reviewDecision struct {
	Status   string `json:"status"`
	Reviewer string `json:"reviewer"`
	Summary  string `json:"summary"`
	Note     string `json:"note"`
}

// handleResolveReview handles POST /api/admin/reviews/{id}
func (s *Server) handleResolveReview(w http.ResponseWriter, r *http.Request) {
	itemID := chi.URLParam(r, "id")

	var decision reviewDecision
	if err := json.NewDecoder(r.Body).Decode(&decision); err != nil {
		s.respondError(w, http.StatusBadRequest, "invalid_body", "request body must be JSON")
		return
	}

	switch decision.Status {
	case core.ReviewApproved, core.ReviewRejected:
	case core.ReviewEdited:
		if strings.TrimSpace(decision.Summary) == "" {
			s.respondError(w, http.StatusBadRequest, "missing_summary", "an edited review needs the replacement summary")
			return
		}
	default:
		s.respondError(w, http.StatusBadRequest, "invalid_status", "status must be approved, rejected, or edited")
		return
	}

	err := s.db.Reviews().Resolve(r.Context(), itemID, decision.Status, decision.Reviewer, decision.Summary, decision.Note)
	if err != nil {
		s.respondError(w, http.StatusNotFound, "not_found", "no review found for that item")
		return
	}
	s.respondJSON(w, http.StatusOK, map[string]interface{}{"item_id": itemID, "status": decision.Status})
}

// encodeCursor packs the keyset position into an opaque token.
func encodeCursor(t time.Time, id string) string {
	raw := fmt.Sprintf("%s|%s", t.UTC().Format(time.RFC3339Nano), id)
	return base64.RawURLEncoding.EncodeToString([]byte(raw))
}

// decodeCursor unpacks a continuation token back into its sort position.
func decodeCursor(cursor string) (time.Time, string, error) {
	raw, err := base64.RawURLEncoding.DecodeString(cursor)
	if err != nil {
		return time.Time{}, "", err
	}
	parts := strings.SplitN(string(raw), "|", 2)
	if len(parts) != 2 || parts[1] == "" {
		return time.Time{}, "", fmt.Errorf("malformed cursor")
	}
	t, err := time.Parse(time.RFC3339Nano, parts[0])
	if err != nil {
		return time.Time{}, "", err
	}
	return t, parts[1], nil
}
