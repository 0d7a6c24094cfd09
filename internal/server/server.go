// Package server exposes the read API: thin JSON handlers over the
// canonical store, for consumption by the map client.
package server

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"go.uber.org/zap"

	"github.com/btcplaces/btcplaces/internal/model"
	"github.com/btcplaces/btcplaces/internal/store"
)

// Server wires the chi router, the store and the response cache.
type Server struct {
	store store.Store
	cache *Cache
}

// New creates a Server.
func New(st store.Store, cache *Cache) *Server {
	if cache == nil {
		cache = NewCache(0, nil)
	}
	return &Server{store: st, cache: cache}
}

// Router builds the HTTP handler.
func (s *Server) Router() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.Recoverer)
	r.Use(middleware.Timeout(30 * time.Second))
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: []string{"*"},
		AllowedMethods: []string{http.MethodGet, http.MethodOptions},
	}))

	r.Get("/health", s.handleHealth)
	r.Route("/api", func(r chi.Router) {
		r.Get("/locations", s.handleLocations)
		r.Get("/coordinates", s.handleCoordinates)
		r.Get("/locations/{id}", s.handleLocation)
		r.Get("/stats", s.handleStats)
	})
	return r
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) handleLocations(w http.ResponseWriter, r *http.Request) {
	s.cached(w, r, "locations", func(ctx context.Context) (any, error) {
		locs, err := s.store.ListLocations(ctx)
		if locs == nil {
			locs = []model.Location{}
		}
		return locs, err
	})
}

func (s *Server) handleCoordinates(w http.ResponseWriter, r *http.Request) {
	s.cached(w, r, "coordinates", func(ctx context.Context) (any, error) {
		coords, err := s.store.ListCoordinates(ctx)
		if coords == nil {
			coords = []model.Coordinate{}
		}
		return coords, err
	})
}

func (s *Server) handleLocation(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid location id")
		return
	}

	loc, err := s.store.GetLocation(r.Context(), id)
	if errors.Is(err, store.ErrNotFound) {
		writeError(w, http.StatusNotFound, "location not found")
		return
	}
	if err != nil {
		s.internalError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, loc)
}

// statsResponse is the reshaped stats payload the map client expects.
type statsResponse struct {
	TotalLocations int           `json:"total_locations"`
	LocationTypes  locationTypes `json:"location_types"`
	Countries      countryStats  `json:"countries"`
	LastUpdated    *time.Time    `json:"last_updated"`
}

type locationTypes struct {
	PhysicalLocations int `json:"physical_locations"`
	AreasOrBuildings  int `json:"areas_or_buildings"`
}

type countryStats struct {
	TotalCountries int            `json:"total_countries"`
	Distribution   map[string]int `json:"distribution"`
}

func (s *Server) handleStats(w http.ResponseWriter, r *http.Request) {
	s.cached(w, r, "stats", func(ctx context.Context) (any, error) {
		stats, err := s.store.Stats(ctx)
		if err != nil {
			return nil, err
		}

		resp := statsResponse{
			TotalLocations: stats.TotalLocations,
			LocationTypes: locationTypes{
				PhysicalLocations: stats.Nodes,
				AreasOrBuildings:  stats.Ways,
			},
			Countries: countryStats{
				TotalCountries: len(stats.Countries),
				Distribution:   stats.Countries,
			},
			LastUpdated: stats.LastUpdated,
		}

		// Prefer the last completed sync pass; row timestamps only say
		// when something changed, not when the data was last confirmed.
		if pass, err := s.store.LastCompletedPass(ctx); err == nil && pass != nil {
			finished := pass.FinishedAt
			resp.LastUpdated = &finished
		}
		return resp, nil
	})
}

// cached serves key from the response cache, falling back to fn and
// storing the rendered bytes on a miss.
func (s *Server) cached(w http.ResponseWriter, r *http.Request, key string, fn func(ctx context.Context) (any, error)) {
	if data, ok := s.cache.Get(key); ok {
		writeRaw(w, http.StatusOK, data)
		return
	}

	v, err := fn(r.Context())
	if err != nil {
		s.internalError(w, r, err)
		return
	}

	data, err := json.Marshal(v)
	if err != nil {
		s.internalError(w, r, err)
		return
	}
	s.cache.Set(key, data)
	writeRaw(w, http.StatusOK, data)
}

// internalError logs the real cause and returns a generic 500; store
// internals never leak to API clients.
func (s *Server) internalError(w http.ResponseWriter, r *http.Request, err error) {
	zap.L().Error("request failed",
		zap.String("path", r.URL.Path),
		zap.Error(err),
	)
	writeError(w, http.StatusInternalServerError, "internal server error")
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		zap.L().Error("write response", zap.Error(err))
	}
}

func writeRaw(w http.ResponseWriter, status int, data []byte) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if _, err := w.Write(data); err != nil {
		zap.L().Error("write response", zap.Error(err))
	}
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}
