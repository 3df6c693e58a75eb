// ABOUTME: HTTP API for the packing control panel behind a chi router.
// ABOUTME: Exposes the store's selectors and actions as JSON endpoints consumed by the browser frontend.
package web

import (
	"bytes"
	"context"
	"encoding/json"
	"log"
	"net/http"
	"sort"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/yuin/goldmark"

	"github.com/allen-cell-animated/packing-workbench/panel"
	"github.com/allen-cell-animated/packing-workbench/recipe"
)

// Server serves the panel API. All state lives in the injected panel.Store;
// handlers only translate HTTP to store actions and selectors.
type Server struct {
	panel  *panel.Store
	router chi.Router
	addr   string
}

// NewServer creates a Server over the given store. An empty authToken
// disables authentication (loopback-only deployments).
func NewServer(store *panel.Store, addr, authToken string) *Server {
	s := &Server{panel: store, addr: addr}

	r := chi.NewRouter()
	r.Use(middleware.Recoverer)
	r.Use(requestLogger)
	if authToken != "" {
		r.Use(authMiddleware(authToken))
	}

	r.Get("/healthz", s.handleHealth)
	r.Route("/api", func(r chi.Router) {
		r.Get("/recipes", s.handleListRecipes)
		r.Get("/recipes/{recipeID}", s.handleGetRecipe)
		r.Post("/recipes/{recipeID}/edits", s.handleEditRecipe)
		r.Delete("/recipes/{recipeID}/edits", s.handleRestoreDefaults)
		r.Put("/selection", s.handleSelectRecipe)
		r.Post("/packing", s.handleStartPacking)
		r.Get("/packing/{recipeID}", s.handlePackingResult)
	})

	s.router = r
	return s
}

// ServeHTTP delegates to the chi router, satisfying http.Handler.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.router.ServeHTTP(w, r)
}

// ListenAndServe starts the HTTP server on the configured address with
// timeouts to prevent resource exhaustion from slow clients.
func (s *Server) ListenAndServe() error {
	srv := &http.Server{
		Addr:              s.addr,
		Handler:           s,
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       30 * time.Second,
		WriteTimeout:      time.Minute,
		IdleTimeout:       2 * time.Minute,
	}
	log.Printf("component=web action=listen addr=%s", s.addr)
	return srv.ListenAndServe()
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// catalogEntry is the list-view shape of one selectable recipe.
type catalogEntry struct {
	RecipeID    string `json:"recipe_id"`
	ConfigID    string `json:"config_id"`
	DisplayName string `json:"display_name"`
	Loaded      bool   `json:"loaded"`
}

func (s *Server) handleListRecipes(w http.ResponseWriter, _ *http.Request) {
	options := s.panel.InputOptions()

	entries := make([]catalogEntry, 0, len(options))
	for id, meta := range options {
		_, loaded := s.panel.Recipe(id)
		entries = append(entries, catalogEntry{
			RecipeID:    id,
			ConfigID:    meta.ConfigID,
			DisplayName: meta.DisplayName,
			Loaded:      loaded,
		})
	}
	sort.Slice(entries, func(i, j int) bool { return entries[i].RecipeID < entries[j].RecipeID })

	writeJSON(w, http.StatusOK, map[string]any{
		"selected_recipe_id": s.panel.SelectedRecipeID(),
		"is_packing":         s.panel.IsPacking(),
		"recipes":            entries,
	})
}

// fieldView is an EditableField plus its description rendered to HTML for
// the browser.
type fieldView struct {
	recipe.EditableField
	DescriptionHTML string `json:"description_html,omitempty"`
}

func (s *Server) handleGetRecipe(w http.ResponseWriter, r *http.Request) {
	recipeID := chi.URLParam(r, "recipeID")
	if _, known := s.panel.InputOptions()[recipeID]; !known {
		writeError(w, http.StatusNotFound, "unknown recipe")
		return
	}
	if err := s.panel.LoadRecipe(r.Context(), recipeID); err != nil {
		writeError(w, http.StatusBadGateway, err.Error())
		return
	}

	rec, ok := s.panel.Recipe(recipeID)
	if !ok {
		writeError(w, http.StatusNotFound, "recipe not loaded")
		return
	}
	effective, err := rec.Effective()
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}

	fields := make([]fieldView, 0, len(rec.EditableFields))
	for _, f := range rec.EditableFields {
		fields = append(fields, fieldView{
			EditableField:   f,
			DescriptionHTML: renderMarkdown(f.Description),
		})
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"recipe_id":       rec.RecipeID,
		"config_id":       rec.ConfigID,
		"editable_fields": fields,
		"edits":           rec.Edits,
		"recipe":          effective,
	})
}

// editRequest is the body of POST /api/recipes/{id}/edits.
type editRequest struct {
	Path  string `json:"path"`
	Value any    `json:"value"`
}

func (s *Server) handleEditRecipe(w http.ResponseWriter, r *http.Request) {
	recipeID := chi.URLParam(r, "recipeID")
	if _, ok := s.panel.Recipe(recipeID); !ok {
		writeError(w, http.StatusNotFound, "recipe not loaded")
		return
	}

	var req editRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.Path == "" {
		writeError(w, http.StatusBadRequest, "body must be {path, value}")
		return
	}

	s.panel.EditRecipe(recipeID, req.Path, req.Value)

	rec, _ := s.panel.Recipe(recipeID)
	writeJSON(w, http.StatusOK, map[string]any{
		"recipe_id": recipeID,
		"edits":     rec.Edits,
	})
}

func (s *Server) handleRestoreDefaults(w http.ResponseWriter, r *http.Request) {
	recipeID := chi.URLParam(r, "recipeID")
	if _, ok := s.panel.Recipe(recipeID); !ok {
		writeError(w, http.StatusNotFound, "recipe not loaded")
		return
	}
	s.panel.RestoreRecipeDefault(recipeID)
	writeJSON(w, http.StatusOK, map[string]any{"recipe_id": recipeID, "edits": map[string]any{}})
}

// selectRequest is the body of PUT /api/selection.
type selectRequest struct {
	RecipeID string `json:"recipe_id"`
}

func (s *Server) handleSelectRecipe(w http.ResponseWriter, r *http.Request) {
	var req selectRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.RecipeID == "" {
		writeError(w, http.StatusBadRequest, "body must be {recipe_id}")
		return
	}
	// the store treats unknown ids as a silent no-op; report not-found here
	// where the catalog is checkable
	if _, known := s.panel.InputOptions()[req.RecipeID]; !known {
		writeError(w, http.StatusNotFound, "unknown recipe")
		return
	}
	if err := s.panel.SelectRecipe(r.Context(), req.RecipeID); err != nil {
		writeError(w, http.StatusBadGateway, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"selected_recipe_id": req.RecipeID})
}

func (s *Server) handleStartPacking(w http.ResponseWriter, r *http.Request) {
	if s.panel.IsPacking() {
		writeError(w, http.StatusConflict, "a packing run is already in progress")
		return
	}
	recipeID := s.panel.SelectedRecipeID()
	if _, ok := s.panel.Recipe(recipeID); !ok {
		writeError(w, http.StatusConflict, "no recipe selected")
		return
	}

	// the run outlives the request; poll progress lands in the store
	go func() {
		if err := s.panel.StartPacking(context.Background()); err != nil {
			log.Printf("component=web action=packing_run_failed recipe=%s err=%v", recipeID, err)
		}
	}()

	writeJSON(w, http.StatusAccepted, map[string]string{"recipe_id": recipeID})
}

func (s *Server) handlePackingResult(w http.ResponseWriter, r *http.Request) {
	recipeID := chi.URLParam(r, "recipeID")
	if _, known := s.panel.InputOptions()[recipeID]; !known {
		writeError(w, http.StatusNotFound, "unknown recipe")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"recipe_id":  recipeID,
		"is_packing": s.panel.IsPacking(),
		"result":     s.panel.Result(recipeID),
	})
}

// renderMarkdown converts a markdown string to HTML using goldmark. Raw HTML
// in the input is stripped to prevent XSS. Empty input renders to "".
func renderMarkdown(input string) string {
	if input == "" {
		return ""
	}
	var buf bytes.Buffer
	if err := goldmark.New().Convert([]byte(input), &buf); err != nil {
		return ""
	}
	return buf.String()
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		log.Printf("component=web action=encode_response_failed err=%v", err)
	}
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}
