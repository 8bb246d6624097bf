package handlers

import (
	"net/http"
)

// PageHandler serves the read-only pages.
type PageHandler struct {
	Catalog Catalog
}

// Home handles GET /.
func (h PageHandler) Home(w http.ResponseWriter, r *http.Request) {
	render(r.Context(), w, http.StatusOK, "home", page{})
}

// Characters handles GET /characters. The list is queried afresh on every visit.
func (h PageHandler) Characters(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	view := h.Catalog.Characters(withAccessToken(ctx))
	render(ctx, w, catalogStatus(view.Error), "characters", page{Title: "Characters", Data: view})
}

// Chapters handles GET /chapters.
func (h PageHandler) Chapters(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	view := h.Catalog.Chapters(withAccessToken(ctx))
	render(ctx, w, catalogStatus(view.Error), "chapters", page{Title: "Chapters", Data: view})
}

// NotFound renders the page for any unknown path.
func (h PageHandler) NotFound(w http.ResponseWriter, r *http.Request) {
	render(r.Context(), w, http.StatusNotFound, "not_found", page{Title: "Not found"})
}

func catalogStatus(errMsg string) int {
	if errMsg != "" {
		return http.StatusBadGateway
	}
	return http.StatusOK
}
