package http

import (
	"encoding/json"
	"net/http"

	"github.com/shopscribe/shopscribe/internal/gateway/faults"
	"github.com/shopscribe/shopscribe/internal/gateway/service"
	"github.com/shopscribe/shopscribe/pkg/httpx"
)

type productRequest struct {
	Action  string `json:"action"`
	Barcode string `json:"barcode"`
	Locale  string `json:"locale,omitempty"`
}

type productResponse struct {
	Success     bool             `json:"success"`
	Product     *service.Product `json:"product,omitempty"`
	Description string           `json:"description,omitempty"`
	Usage       *int             `json:"usage,omitempty"`
}

// ProductsHandler is the product endpoint. Description generation is
// metered; a lookup is free.
type ProductsHandler struct {
	Authz    *service.AuthzService
	Products *service.ProductService
	Respond  *faults.Responder
}

// ServeHTTP dispatches product lookups and description generation.
//
//	@Summary		Product lookup and description generation
//	@Description	Resolves a barcode to a product, or generates localized marketing copy for it. Generation is metered against the caller's subscription tier.
//	@Tags			Products
//	@Security		BearerAuth
//	@Accept			json
//	@Produce		json
//	@Param			request	body		productRequest	true	"action: lookup | describe"
//	@Success		200		{object}	productResponse
//	@Failure		400		{object}	faults.WireError	"Invalid action or barcode"
//	@Failure		403		{object}	faults.WireError	"Permission denied or free-tier cap"
//	@Failure		404		{object}	faults.WireError	"Unknown barcode"
//	@Failure		429		{object}	faults.WireError	"Paid-tier cap or rate limited"
//	@Router			/v1/products [post].
func (h *ProductsHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	identity, ok := identityFromContext(ctx)
	if !ok {
		h.Respond.Write(w, r, faults.New(faults.KindAuthRequired, "no identity in request"))
		return
	}

	var req productRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.Respond.Write(w, r, faults.Wrap(faults.KindInvalidInput, err, "undecodable product request"))
		return
	}

	switch req.Action {
	case "lookup":
		if _, err := h.Authz.Authorize(ctx, identity, service.OpLookupProduct, ""); err != nil {
			h.Respond.Write(w, r, err)
			return
		}
		product, err := h.Products.Lookup(ctx, req.Barcode)
		if err != nil {
			h.Respond.Write(w, r, err)
			return
		}
		httpx.WriteJSON(w, http.StatusOK, productResponse{Success: true, Product: &product})

	case "describe":
		actor, err := h.Authz.Authorize(ctx, identity, service.OpGenerateDescription, "")
		if err != nil {
			h.Respond.Write(w, r, err)
			return
		}
		copyText, usage, err := h.Products.Describe(ctx, actor, req.Barcode, req.Locale)
		if err != nil {
			h.Respond.Write(w, r, err)
			return
		}
		httpx.WriteJSON(w, http.StatusOK, productResponse{Success: true, Description: copyText, Usage: &usage})

	default:
		h.Respond.Write(w, r, faults.New(faults.KindInvalidInput, "unknown action %q", req.Action))
	}
}
