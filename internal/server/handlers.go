package server

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/hyperjump/artatlas/internal/concept"
	"github.com/hyperjump/artatlas/internal/models"
	"github.com/hyperjump/artatlas/internal/search"
	"github.com/hyperjump/artatlas/internal/storage"
)

// messageInappropriateQuery is the error message for a blank query.
const messageInappropriateQuery = "InAppropriate Query"

// handleSearchQuery answers GET /api/search?q=...&limit=...; an empty result is a 404
// carrying the full response body.
func (s *Server) handleSearchQuery(w http.ResponseWriter, r *http.Request) {
	query := models.SearchQuery{Query: r.URL.Query().Get("q")}
	if l := r.URL.Query().Get("limit"); l != "" {
		n, err := strconv.Atoi(l)
		if err != nil {
			s.respondError(w, http.StatusBadRequest, "invalid limit")
			return
		}
		query.Limit = n
	}
	response, ok := s.search(w, r, &query)
	if !ok {
		return
	}
	status := http.StatusOK
	if len(response.Results) == 0 {
		status = http.StatusNotFound
	}
	s.respondJSON(w, status, response)
}

func (s *Server) handleSearch(w http.ResponseWriter, r *http.Request) {
	var query models.SearchQuery
	if err := json.NewDecoder(r.Body).Decode(&query); err != nil {
		s.respondError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	response, ok := s.search(w, r, &query)
	if !ok {
		return
	}
	s.respondJSON(w, http.StatusOK, response)
}

// search runs the query and writes the error response when it fails.
func (s *Server) search(w http.ResponseWriter, r *http.Request, query *models.SearchQuery) (*search.Response, bool) {
	s.logger.Debug("search request", zap.String("query", query.Query), zap.Int("limit", query.Limit))
	response, err := s.engine.Search(r.Context(), query)
	switch {
	case err == nil:
		return response, true
	case errors.Is(err, models.ErrEmptyQuery):
		s.respondError(w, http.StatusBadRequest, messageInappropriateQuery)
	case errors.Is(err, concept.ErrDimensionMismatch):
		s.logger.Warn("search rejected", zap.Error(err))
		s.respondError(w, http.StatusBadRequest, err.Error())
	case errors.Is(err, search.ErrEmbeddingUnavailable):
		s.logger.Warn("search unavailable", zap.Error(err))
		s.respondError(w, http.StatusServiceUnavailable, err.Error())
	default:
		s.logger.Error("search failed", zap.Error(err))
		s.respondError(w, http.StatusInternalServerError, err.Error())
	}
	return nil, false
}

type conceptInfo struct {
	ID        int64   `json:"id"`
	Name      string  `json:"name"`
	Type      string  `json:"type"`
	Primary   bool    `json:"primary"`
	Support   int     `json:"support"`
	Authority float64 `json:"authority"`
}

func (s *Server) handleConcepts(w http.ResponseWriter, r *http.Request) {
	concepts, err := s.storage.ListConcepts(r.Context())
	if err != nil {
		s.logger.Error("list concepts failed", zap.Error(err))
		s.respondError(w, http.StatusInternalServerError, err.Error())
		return
	}
	resp := map[string]interface{}{}
	snap := s.engine.Concepts().Load()
	prototypes := map[int64]concept.Prototype{}
	if snap != nil {
		for _, p := range snap.Prototypes {
			prototypes[p.ConceptID] = p
		}
		resp["built_at"] = snap.BuiltAt.Format(time.RFC3339)
	}
	out := make([]conceptInfo, 0, len(concepts))
	for _, c := range concepts {
		info := conceptInfo{ID: c.ID, Name: c.Name, Type: c.Type, Primary: c.Primary}
		if snap != nil {
			info.Primary = snap.Types[c.ID] == concept.Primary
		}
		if p, ok := prototypes[c.ID]; ok {
			info.Support = p.Support
			info.Authority = p.Authority
		}
		out = append(out, info)
	}
	resp["concepts"] = out
	s.respondJSON(w, http.StatusOK, resp)
}

func (s *Server) handleConceptsRefresh(w http.ResponseWriter, r *http.Request) {
	cache := s.engine.Concepts()
	if err := cache.Refresh(r.Context()); err != nil {
		s.logger.Error("concept refresh failed", zap.Error(err))
		s.respondError(w, http.StatusInternalServerError, err.Error())
		return
	}
	snap := cache.Load()
	s.respondJSON(w, http.StatusOK, map[string]interface{}{
		"status":     "refreshed",
		"prototypes": len(snap.Prototypes),
		"built_at":   snap.BuiltAt.Format(time.RFC3339),
	})
}

type affinitiesRequest struct {
	Persist bool `json:"persist"`
}

func (s *Server) handleAffinities(w http.ResponseWriter, r *http.Request) {
	if s.pipeline == nil {
		s.respondError(w, http.StatusNotImplemented, "catalog pipeline not configured")
		return
	}
	var req affinitiesRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil && !errors.Is(err, io.EOF) {
		s.respondError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	mappings, err := s.pipeline.Affinities(r.Context(), req.Persist)
	if err != nil {
		s.logger.Error("affinity generation failed", zap.Error(err))
		s.respondError(w, http.StatusInternalServerError, err.Error())
		return
	}
	if mappings == nil {
		mappings = []models.ArtworkConcept{}
	}
	s.respondJSON(w, http.StatusOK, map[string]interface{}{
		"persisted":  req.Persist,
		"count":      len(mappings),
		"affinities": mappings,
	})
}

func (s *Server) handleGetArtwork(w http.ResponseWriter, r *http.Request) {
	id, ok := s.pathID(w, r)
	if !ok {
		return
	}
	a, err := s.storage.GetArtwork(r.Context(), id)
	if err != nil {
		s.respondLookupError(w, "artwork", err)
		return
	}
	s.respondJSON(w, http.StatusOK, a)
}

func (s *Server) handleGetEssay(w http.ResponseWriter, r *http.Request) {
	id, ok := s.pathID(w, r)
	if !ok {
		return
	}
	e, err := s.storage.GetEssay(r.Context(), id)
	if err != nil {
		s.respondLookupError(w, "essay", err)
		return
	}
	s.respondJSON(w, http.StatusOK, e)
}

func (s *Server) pathID(w http.ResponseWriter, r *http.Request) (int64, bool) {
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil {
		s.respondError(w, http.StatusBadRequest, "invalid id")
		return 0, false
	}
	return id, true
}

func (s *Server) respondLookupError(w http.ResponseWriter, kind string, err error) {
	if errors.Is(err, storage.ErrNotFound) {
		s.respondError(w, http.StatusNotFound, kind+" not found")
		return
	}
	s.logger.Error("lookup failed", zap.String("kind", kind), zap.Error(err))
	s.respondError(w, http.StatusInternalServerError, err.Error())
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	s.respondJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	counts, err := s.storage.Counts(r.Context())
	if err != nil {
		s.logger.Error("status: counts failed", zap.Error(err))
		s.respondError(w, http.StatusInternalServerError, err.Error())
		return
	}
	resp := map[string]interface{}{
		"catalog":           counts,
		"vector_index_size": s.engine.VectorIndexSize(),
	}
	if snap := s.engine.Concepts().Load(); snap != nil {
		resp["prototypes"] = len(snap.Prototypes)
		resp["prototypes_built_at"] = snap.BuiltAt.Format(time.RFC3339)
	}
	if s.watch != nil {
		resp["watched_directories"] = s.watch.Directories()
	}
	if s.config != nil {
		st := s.config.Storage
		resp["config"] = map[string]interface{}{
			"embedding_dimensions": s.config.Embedding.Dimensions,
			"database_path":        st.DatabasePath,
			"artwork_index_path":   st.ArtworkIndexPath,
			"essay_index_path":     st.EssayIndexPath,
			"detection_threshold":  s.config.Concepts.DetectionThreshold,
			"bundling_threshold":   s.config.Concepts.BundlingThreshold,
		}
		if usage, err := storage.CatalogDiskUsage(st.DatabasePath, st.ArtworkIndexPath, st.EssayIndexPath); err == nil {
			resp["disk_usage"] = usage
		} else {
			s.logger.Warn("status: disk usage failed", zap.Error(err))
		}
	}
	s.respondJSON(w, http.StatusOK, resp)
}

func (s *Server) respondJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(data)
}

func (s *Server) respondError(w http.ResponseWriter, status int, message string) {
	s.respondJSON(w, status, map[string]string{"error": message})
}
