package drafts

import (
	"fmt"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/odyssey-erp/invoicing/internal/platform/httpx"
	"github.com/odyssey-erp/invoicing/internal/shared"
)

// Handler exposes drafts over JSON.
type Handler struct {
	logger  *slog.Logger
	service *Service
}

// NewHandler constructs a Handler.
func NewHandler(logger *slog.Logger, service *Service) *Handler {
	if logger == nil {
		logger = slog.Default()
	}
	return &Handler{logger: logger, service: service}
}

// MountRoutes registers draft routes.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Post("/", h.start)
	r.Route("/{id}", func(r chi.Router) {
		r.Get("/", h.show)
		r.Delete("/", h.discard)
		r.Put("/header", h.setHeader)
		r.Post("/items", h.addItem)
		r.Patch("/items/{index}", h.patchItem)
		r.Delete("/items/{index}", h.removeItem)
		r.Post("/commit", h.commit)
	})
}

func (h *Handler) start(w http.ResponseWriter, r *http.Request) {
	var in struct {
		InvoiceID string `json:"invoice_id"`
	}
	if r.ContentLength != 0 {
		if err := httpx.DecodeJSON(w, r, &in); err != nil {
			httpx.RespondError(w, err)
			return
		}
	}
	d, err := h.service.Start(r.Context(), shared.CurrentUserID(r.Context()), in.InvoiceID)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	httpx.JSON(w, http.StatusCreated, d)
}

func (h *Handler) show(w http.ResponseWriter, r *http.Request) {
	d, err := h.service.Get(r.Context(), shared.CurrentUserID(r.Context()), chi.URLParam(r, "id"))
	if err != nil {
		h.fail(w, r, err)
		return
	}
	httpx.JSON(w, http.StatusOK, d)
}

func (h *Handler) discard(w http.ResponseWriter, r *http.Request) {
	if err := h.service.Discard(r.Context(), shared.CurrentUserID(r.Context()), chi.URLParam(r, "id")); err != nil {
		h.fail(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) setHeader(w http.ResponseWriter, r *http.Request) {
	var in Header
	if err := httpx.DecodeJSON(w, r, &in); err != nil {
		httpx.RespondError(w, err)
		return
	}
	d, err := h.service.SetHeader(r.Context(), shared.CurrentUserID(r.Context()), chi.URLParam(r, "id"), in)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	httpx.JSON(w, http.StatusOK, d)
}

func (h *Handler) addItem(w http.ResponseWriter, r *http.Request) {
	var in struct {
		ProductID string `json:"product_id"`
	}
	if r.ContentLength != 0 {
		if err := httpx.DecodeJSON(w, r, &in); err != nil {
			httpx.RespondError(w, err)
			return
		}
	}
	d, err := h.service.AddItem(r.Context(), shared.CurrentUserID(r.Context()), chi.URLParam(r, "id"), in.ProductID)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	httpx.JSON(w, http.StatusCreated, d)
}

func (h *Handler) patchItem(w http.ResponseWriter, r *http.Request) {
	index, err := itemIndex(r)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	var in ItemPatch
	if err := httpx.DecodeJSON(w, r, &in); err != nil {
		httpx.RespondError(w, err)
		return
	}
	d, err := h.service.PatchItem(r.Context(), shared.CurrentUserID(r.Context()), chi.URLParam(r, "id"), index, in)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	httpx.JSON(w, http.StatusOK, d)
}

func (h *Handler) removeItem(w http.ResponseWriter, r *http.Request) {
	index, err := itemIndex(r)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	d, err := h.service.RemoveItem(r.Context(), shared.CurrentUserID(r.Context()), chi.URLParam(r, "id"), index)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	httpx.JSON(w, http.StatusOK, d)
}

func (h *Handler) commit(w http.ResponseWriter, r *http.Request) {
	inv, err := h.service.Commit(r.Context(), shared.CurrentUserID(r.Context()), chi.URLParam(r, "id"))
	if err != nil {
		h.fail(w, r, err)
		return
	}
	httpx.JSON(w, http.StatusOK, inv)
}

func itemIndex(r *http.Request) (int, error) {
	raw := chi.URLParam(r, "index")
	index, err := strconv.Atoi(raw)
	if err != nil {
		return 0, fmt.Errorf("%w: invalid item index %q", httpx.ErrValidation, raw)
	}
	return index, nil
}

func (h *Handler) fail(w http.ResponseWriter, r *http.Request, err error) {
	if !httpx.IsClientError(err) {
		h.logger.Error("draft request failed", slog.String("path", r.URL.Path), slog.Any("error", err))
	}
	httpx.RespondError(w, err)
}
