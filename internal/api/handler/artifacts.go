package handler

import (
	"net/http"
	"strconv"

	"github.com/kiranshivaraju/catalogstudio/internal/api/response"
	"github.com/kiranshivaraju/catalogstudio/internal/logger"
)

const (
	defaultPageLimit = 50
	maxPageLimit     = 200
)

// NewListArtifactsHandler returns an http.HandlerFunc for
// GET /api/v1/products/{productID}/artifacts. An intent_id query parameter
// narrows the list to one intent; page and limit paginate it.
func NewListArtifactsHandler(svc ArtifactLister, log *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		productID, ok := pathUUID(w, r, "productID", response.CodeInvalidProductID, "product ID")
		if !ok {
			return
		}
		q := r.URL.Query()
		raw := q.Get("intent_id")
		intentID, err := parseOptionalUUID(&raw)
		if err != nil {
			response.Error(w, response.CodeInvalidIntentID, "Invalid intent_id format", nil)
			return
		}
		page, ok := queryInt(w, q.Get("page"), 1, "page")
		if !ok {
			return
		}
		limit, ok := queryInt(w, q.Get("limit"), defaultPageLimit, "limit")
		if !ok {
			return
		}
		if limit > maxPageLimit {
			limit = maxPageLimit
		}

		list, err := svc.ListArtifacts(r.Context(), productID, intentID)
		if err != nil {
			if !isClientError(err) {
				log.Error("list artifacts failed", "product_id", productID, "error", err)
			}
			writeServiceError(w, err)
			return
		}

		items, meta := response.Paginate(list, page, limit)
		response.Collection(w, items, meta)
	}
}

func queryInt(w http.ResponseWriter, raw string, def int, name string) (int, bool) {
	if raw == "" {
		return def, true
	}
	n, err := strconv.Atoi(raw)
	if err != nil || n < 1 {
		response.Error(w, response.CodeInvalidRequest, name+" must be a positive integer", nil)
		return 0, false
	}
	return n, true
}
