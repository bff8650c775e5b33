package httpapi

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"

	"horizon.shop/internal/audit"
	"horizon.shop/internal/store"
)

type insertResponse struct {
	Success bool         `json:"success"`
	Result  insertResult `json:"result"`
}

type insertResult struct {
	InsertedID string `json:"insertedId"`
}

type updateResponse struct {
	Acknowledged  bool   `json:"acknowledged"`
	MatchedCount  int64  `json:"matchedCount"`
	ModifiedCount int64  `json:"modifiedCount"`
	UpsertedID    string `json:"upsertedId,omitempty"`
}

type deleteResponse struct {
	Acknowledged bool  `json:"acknowledged"`
	DeletedCount int64 `json:"deletedCount"`
}

type registerResponse struct {
	Result updateResponse `json:"result"`
	Token  string         `json:"token"`
}

type adminResponse struct {
	Admin bool `json:"admin"`
}

type paymentIntentRequest struct {
	Price json.Number `json:"price"`
}

type paymentIntentResponse struct {
	ClientSecret string `json:"clientSecret"`
}

func inserted(res store.InsertResult) insertResponse {
	return insertResponse{Success: true, Result: insertResult{InsertedID: res.ID}}
}

func updated(res store.UpdateResult) updateResponse {
	return updateResponse{
		Acknowledged:  true,
		MatchedCount:  res.Matched,
		ModifiedCount: res.Modified,
		UpsertedID:    res.UpsertedID,
	}
}

func deleted(res store.DeleteResult) deleteResponse {
	return deleteResponse{Acknowledged: true, DeletedCount: res.Deleted}
}

// --- catalog ---

func (a *API) listProducts(w http.ResponseWriter, r *http.Request) {
	docs, err := a.shop.Products(r.Context())
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, docs)
}

// getProduct answers a malformed id with an empty object so existing clients
// that probe with placeholder ids keep working.
func (a *API) getProduct(w http.ResponseWriter, r *http.Request) {
	doc, err := a.shop.Product(r.Context(), chi.URLParam(r, "id"))
	if errors.Is(err, store.ErrInvalidID) {
		writeJSON(w, http.StatusOK, struct{}{})
		return
	}
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, doc)
}

func (a *API) createProduct(w http.ResponseWriter, r *http.Request) {
	doc, ok := decodeDocument(w, r)
	if !ok {
		return
	}
	res, err := a.shop.CreateProduct(r.Context(), doc)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	_ = audit.LogEvent(r.Context(), "product.created", map[string]any{"id": res.ID})
	writeJSON(w, http.StatusOK, inserted(res))
}

func (a *API) updateProduct(w http.ResponseWriter, r *http.Request) {
	doc, ok := decodeDocument(w, r)
	if !ok {
		return
	}
	id := chi.URLParam(r, "id")
	res, err := a.shop.UpdateProduct(r.Context(), id, doc)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	_ = audit.LogEvent(r.Context(), "product.updated", map[string]any{
		"id":       id,
		"modified": res.Modified,
		"created":  res.UpsertedID != "",
	})
	writeJSON(w, http.StatusOK, updated(res))
}

func (a *API) deleteProduct(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	res, err := a.shop.DeleteProduct(r.Context(), id)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	_ = audit.LogEvent(r.Context(), "product.deleted", map[string]any{"id": id, "deleted": res.Deleted})
	writeJSON(w, http.StatusOK, deleted(res))
}

// --- orders ---

func (a *API) placeOrder(w http.ResponseWriter, r *http.Request) {
	doc, ok := decodeDocument(w, r)
	if !ok {
		return
	}
	res, err := a.shop.PlaceOrder(r.Context(), subject(r), doc)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	_ = audit.LogEvent(r.Context(), "order.placed", map[string]any{"id": res.ID})
	writeJSON(w, http.StatusOK, inserted(res))
}

func (a *API) listMyOrders(w http.ResponseWriter, r *http.Request) {
	docs, err := a.shop.OrdersFor(r.Context(), chi.URLParam(r, "email"))
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, docs)
}

func (a *API) listOrders(w http.ResponseWriter, r *http.Request) {
	docs, err := a.shop.Orders(r.Context())
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, docs)
}

func (a *API) updateShipment(w http.ResponseWriter, r *http.Request) {
	doc, ok := decodeDocument(w, r)
	if !ok {
		return
	}
	id := chi.URLParam(r, "id")
	res, err := a.shop.UpdateShipment(r.Context(), subject(r), id, doc)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	_ = audit.LogEvent(r.Context(), "order.shipped", map[string]any{"id": id})
	writeJSON(w, http.StatusOK, updated(res))
}

func (a *API) recordPayment(w http.ResponseWriter, r *http.Request) {
	doc, ok := decodeDocument(w, r)
	if !ok {
		return
	}
	id := chi.URLParam(r, "id")
	res, err := a.shop.RecordPayment(r.Context(), subject(r), id, doc)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	_ = audit.LogEvent(r.Context(), "order.paid", map[string]any{"id": id})
	writeJSON(w, http.StatusOK, updated(res))
}

func (a *API) deleteOrder(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	res, err := a.shop.DeleteOrder(r.Context(), subject(r), id)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	_ = audit.LogEvent(r.Context(), "order.deleted", map[string]any{"id": id, "deleted": res.Deleted})
	writeJSON(w, http.StatusOK, deleted(res))
}

// --- reviews ---

func (a *API) listReviews(w http.ResponseWriter, r *http.Request) {
	docs, err := a.shop.Reviews(r.Context())
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, docs)
}

func (a *API) addReview(w http.ResponseWriter, r *http.Request) {
	doc, ok := decodeDocument(w, r)
	if !ok {
		return
	}
	res, err := a.shop.AddReview(r.Context(), subject(r), doc)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, inserted(res))
}

// --- users ---

func (a *API) listUsers(w http.ResponseWriter, r *http.Request) {
	docs, err := a.shop.Users(r.Context())
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, docs)
}

func (a *API) checkAdmin(w http.ResponseWriter, r *http.Request) {
	admin, err := a.shop.IsAdmin(r.Context(), chi.URLParam(r, "email"))
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, adminResponse{Admin: admin})
}

func (a *API) promoteAdmin(w http.ResponseWriter, r *http.Request) {
	email := chi.URLParam(r, "email")
	res, err := a.shop.PromoteAdmin(r.Context(), email)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	_ = audit.LogEvent(r.Context(), "user.promoted", map[string]any{"email": email})
	writeJSON(w, http.StatusOK, updated(res))
}

func (a *API) getProfile(w http.ResponseWriter, r *http.Request) {
	doc, err := a.shop.Profile(r.Context(), chi.URLParam(r, "email"))
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, doc)
}

func (a *API) updateProfile(w http.ResponseWriter, r *http.Request) {
	doc, ok := decodeDocument(w, r)
	if !ok {
		return
	}
	res, err := a.shop.UpdateProfile(r.Context(), chi.URLParam(r, "email"), doc)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, updated(res))
}

// registerUser upserts the user named in the path and issues a token for it.
func (a *API) registerUser(w http.ResponseWriter, r *http.Request) {
	doc, ok := decodeDocument(w, r)
	if !ok {
		return
	}
	email := chi.URLParam(r, "email")
	res, tok, err := a.shop.Register(r.Context(), email, doc)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	_ = audit.LogEvent(r.Context(), "auth.token.issued", map[string]any{
		"email":      email,
		"created":    res.UpsertedID != "",
		"expires_at": tok.ExpiresAt,
	})
	writeJSON(w, http.StatusOK, registerResponse{Result: updated(res), Token: tok.Value})
}

// --- payments ---

func (a *API) createPaymentIntent(w http.ResponseWriter, r *http.Request) {
	var req paymentIntentRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, r, http.StatusBadRequest, kindValidation, err.Error())
		return
	}
	in, err := a.shop.CreatePaymentIntent(r.Context(), req.Price)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	_ = audit.LogEvent(r.Context(), "payment.intent.created", map[string]any{
		"intent_id": in.ID,
		"amount":    in.Amount,
		"currency":  in.Currency,
	})
	writeJSON(w, http.StatusOK, paymentIntentResponse{ClientSecret: in.ClientSecret})
}
