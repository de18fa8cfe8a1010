package handler

import (
	"net/http"
	"strconv"

	"github.com/go-faster/errors"
	"github.com/go-faster/jx"

	"github.com/xenking/chronos-shop/internal/domain/product"
)

func (h *Handler) listProducts(w http.ResponseWriter, r *http.Request) {
	products, err := h.catalog.List(r.Context())
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, func(e *jx.Encoder) {
		e.ArrStart()
		for i := range products {
			encodeProduct(e, &products[i])
		}
		e.ArrEnd()
	})
}

// createProduct accepts multipart/form-data (or a urlencoded form without an
// image) with fields name, price and an optional image file.
func (h *Handler) createProduct(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, h.cfg.MaxUploadBytes)

	err := r.ParseMultipartForm(h.cfg.MaxUploadBytes)
	if errors.Is(err, http.ErrNotMultipart) {
		err = r.ParseForm()
	}
	if err != nil {
		h.fail(w, r, errors.Wrap(errBadRequest, err.Error()))
		return
	}
	if r.MultipartForm != nil {
		defer func() { _ = r.MultipartForm.RemoveAll() }()
	}

	req := product.CreateRequest{
		Name:    r.FormValue("name"),
		Price:   r.FormValue("price"),
		BaseURL: h.baseURL(r),
	}

	if r.MultipartForm != nil {
		file, header, err := r.FormFile("image")
		switch {
		case err == nil:
			defer func() { _ = file.Close() }()
			req.Image = &product.Attachment{Filename: header.Filename, Content: file}
		case errors.Is(err, http.ErrMissingFile):
		default:
			h.fail(w, r, errors.Wrap(err, "read image"))
			return
		}
	}

	p, err := h.catalog.Create(r.Context(), req)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, func(e *jx.Encoder) { encodeProduct(e, p) })
}

func (h *Handler) deleteProduct(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.ParseInt(r.PathValue("id"), 10, 64)
	if err != nil {
		h.fail(w, r, product.ErrNotFound)
		return
	}
	if err := h.catalog.Delete(r.Context(), id); err != nil {
		h.fail(w, r, err)
		return
	}
	writeMessage(w, http.StatusOK, "Product deleted successfully")
}

// baseURL returns the scheme://host prefix for links back to this server.
func (h *Handler) baseURL(r *http.Request) string {
	if h.cfg.PublicBaseURL != "" {
		return h.cfg.PublicBaseURL
	}
	scheme := "http"
	if r.TLS != nil || r.Header.Get("X-Forwarded-Proto") == "https" {
		scheme = "https"
	}
	return scheme + "://" + r.Host
}
