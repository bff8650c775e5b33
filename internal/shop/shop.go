// Package shop holds the storefront operations behind the HTTP surface:
// catalog, orders, reviews, users and payment intents.
package shop

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/shopspring/decimal"

	"horizon.shop/internal/auth"
	"horizon.shop/internal/payment"
	"horizon.shop/internal/store"
	"horizon.shop/internal/stream"
)

// Service implements every storefront operation on an injected store.
type Service struct {
	store    *store.Store
	tokens   *auth.TokenService
	payments payment.Processor
	events   *stream.Stream
}

// New wires a Service. events may be nil.
func New(st *store.Store, tokens *auth.TokenService, payments payment.Processor, events *stream.Stream) *Service {
	if payments == nil {
		payments = payment.Disabled{}
	}
	return &Service{store: st, tokens: tokens, payments: payments, events: events}
}

// --- catalog ---

func (s *Service) Products(ctx context.Context) ([]store.Document, error) {
	return s.store.Products.FindAll(ctx, nil)
}

// Product returns store.ErrInvalidID for a malformed id and store.ErrNotFound
// when no such product exists.
func (s *Service) Product(ctx context.Context, id string) (store.Document, error) {
	return s.store.Products.FindOne(ctx, store.ByID(id))
}

func (s *Service) CreateProduct(ctx context.Context, doc store.Document) (store.InsertResult, error) {
	doc = store.StripID(doc)
	if err := checkProduct(doc, true); err != nil {
		return store.InsertResult{}, err
	}
	return s.store.Products.Insert(ctx, doc)
}

// UpdateProduct merges the supplied fields, creating the product under id
// when it does not exist yet.
func (s *Service) UpdateProduct(ctx context.Context, id string, patch store.Document) (store.UpdateResult, error) {
	patch = store.StripID(patch)
	if len(patch) == 0 {
		return store.UpdateResult{}, invalid("no fields to update")
	}
	if err := checkProduct(patch, false); err != nil {
		return store.UpdateResult{}, err
	}
	return s.store.Products.Upsert(ctx, store.ByID(id), patch)
}

func (s *Service) DeleteProduct(ctx context.Context, id string) (store.DeleteResult, error) {
	return s.store.Products.Delete(ctx, store.ByID(id))
}

// --- orders ---

// PlaceOrder records an order for subject. userEmail defaults to subject.
func (s *Service) PlaceOrder(ctx context.Context, subject string, doc store.Document) (store.InsertResult, error) {
	doc = store.StripID(doc)
	if doc == nil {
		doc = store.Document{}
	}
	email, _ := doc["userEmail"].(string)
	if strings.TrimSpace(email) == "" {
		email = subject
	}
	email = auth.NormalizeEmail(email)
	doc["userEmail"] = email
	if err := checkOrder(doc); err != nil {
		return store.InsertResult{}, err
	}
	res, err := s.store.Orders.Insert(ctx, doc)
	if err != nil {
		return store.InsertResult{}, err
	}
	s.publish(stream.OrderPlaced, res.ID, email, subject)
	return res, nil
}

func (s *Service) OrdersFor(ctx context.Context, email string) ([]store.Document, error) {
	email = auth.NormalizeEmail(email)
	if email == "" || email == "undefined" {
		return []store.Document{}, nil
	}
	return s.store.Orders.FindAll(ctx, store.Filter{"userEmail": email})
}

func (s *Service) Orders(ctx context.Context) ([]store.Document, error) {
	return s.store.Orders.FindAll(ctx, nil)
}

// UpdateShipment stores shipment under the order's shipment field.
func (s *Service) UpdateShipment(ctx context.Context, actor, id string, shipment store.Document) (store.UpdateResult, error) {
	if len(shipment) == 0 {
		return store.UpdateResult{}, invalid("shipment is required")
	}
	res, err := s.store.Orders.Update(ctx, store.ByID(id), store.Document{"shipment": shipment})
	if err != nil {
		return store.UpdateResult{}, err
	}
	if res.Matched == 0 {
		return res, fmt.Errorf("order %s: %w", id, store.ErrNotFound)
	}
	s.publish(stream.OrderShipped, id, "", actor)
	return res, nil
}

// RecordPayment attaches processor payment details to an order.
// The caller is not checked against the order's owner.
func (s *Service) RecordPayment(ctx context.Context, actor, id string, body store.Document) (store.UpdateResult, error) {
	txID, _ := body["transactionId"].(string)
	if strings.TrimSpace(txID) == "" {
		return store.UpdateResult{}, invalid("transactionId is required")
	}
	patch := store.Document{"transactionId": strings.TrimSpace(txID)}
	if p, ok := body["payment"]; ok {
		patch["payment"] = p
	} else {
		patch["payment"] = true
	}
	res, err := s.store.Orders.Update(ctx, store.ByID(id), patch)
	if err != nil {
		return store.UpdateResult{}, err
	}
	if res.Matched == 0 {
		return res, fmt.Errorf("order %s: %w", id, store.ErrNotFound)
	}
	s.publish(stream.OrderPaid, id, "", actor)
	return res, nil
}

// DeleteOrder removes an order. The caller is not checked against the
// order's owner.
func (s *Service) DeleteOrder(ctx context.Context, actor, id string) (store.DeleteResult, error) {
	res, err := s.store.Orders.Delete(ctx, store.ByID(id))
	if err != nil {
		return store.DeleteResult{}, err
	}
	if res.Deleted > 0 {
		s.publish(stream.OrderDeleted, id, "", actor)
	}
	return res, nil
}

func (s *Service) publish(kind stream.Kind, id, email, actor string) {
	if s.events == nil {
		return
	}
	s.events.Publish(stream.OrderEvent{Kind: kind, OrderID: id, UserEmail: email, Actor: actor})
}

// --- reviews ---

func (s *Service) Reviews(ctx context.Context) ([]store.Document, error) {
	return s.store.Reviews.FindAll(ctx, nil)
}

// AddReview stores a review; email defaults to subject.
func (s *Service) AddReview(ctx context.Context, subject string, doc store.Document) (store.InsertResult, error) {
	doc = store.StripID(doc)
	if len(doc) == 0 {
		return store.InsertResult{}, invalid("review is empty")
	}
	if email, _ := doc["email"].(string); strings.TrimSpace(email) == "" {
		doc["email"] = subject
	}
	if err := checkReview(doc); err != nil {
		return store.InsertResult{}, err
	}
	return s.store.Reviews.Insert(ctx, doc)
}

// --- users ---

func (s *Service) Users(ctx context.Context) ([]store.Document, error) {
	return s.store.Users.FindAll(ctx, nil)
}

func (s *Service) Profile(ctx context.Context, email string) (store.Document, error) {
	email = auth.NormalizeEmail(email)
	if !validEmail(email) {
		return nil, invalid("email is malformed")
	}
	return s.store.Users.FindOne(ctx, store.ByField("email", email))
}

// UpdateProfile upserts profile fields for email. Roles cannot be set this way.
func (s *Service) UpdateProfile(ctx context.Context, email string, patch store.Document) (store.UpdateResult, error) {
	email, patch, err := userPatch(email, patch)
	if err != nil {
		return store.UpdateResult{}, err
	}
	return s.store.Users.Upsert(ctx, store.ByField("email", email), patch)
}

// Register upserts the user record and issues an identity token for email.
func (s *Service) Register(ctx context.Context, email string, patch store.Document) (store.UpdateResult, auth.Token, error) {
	email, patch, err := userPatch(email, patch)
	if err != nil {
		return store.UpdateResult{}, auth.Token{}, err
	}
	res, err := s.store.Users.Upsert(ctx, store.ByField("email", email), patch)
	if err != nil {
		return store.UpdateResult{}, auth.Token{}, err
	}
	tok, err := s.tokens.Issue(email)
	if err != nil {
		return store.UpdateResult{}, auth.Token{}, err
	}
	return res, tok, nil
}

// PromoteAdmin grants the admin role to an existing user.
func (s *Service) PromoteAdmin(ctx context.Context, email string) (store.UpdateResult, error) {
	email = auth.NormalizeEmail(email)
	if !validEmail(email) {
		return store.UpdateResult{}, invalid("email is malformed")
	}
	res, err := s.store.Users.Update(ctx, store.ByField("email", email), store.Document{"role": string(auth.RoleAdmin)})
	if err != nil {
		return store.UpdateResult{}, err
	}
	if res.Matched == 0 {
		return res, fmt.Errorf("user %s: %w", email, store.ErrNotFound)
	}
	return res, nil
}

// IsAdmin reports whether email belongs to an admin. Unknown users are not.
func (s *Service) IsAdmin(ctx context.Context, email string) (bool, error) {
	p, found, err := auth.NewResolver(s.store.Users).Resolve(ctx, email)
	if err != nil || !found {
		return false, err
	}
	return p.IsAdmin(), nil
}

func userPatch(email string, patch store.Document) (string, store.Document, error) {
	email = auth.NormalizeEmail(email)
	if !validEmail(email) {
		return "", nil, invalid("email is malformed")
	}
	patch = store.StripID(patch)
	if _, ok := patch["role"]; ok {
		return "", nil, invalid("role cannot be set on a profile")
	}
	out := make(store.Document, len(patch))
	for k, v := range patch {
		out[k] = v
	}
	// the key field always wins over a conflicting body value
	out["email"] = email
	return email, out, nil
}

// --- payments ---

// CreatePaymentIntent asks the processor for an intent of price major units.
func (s *Service) CreatePaymentIntent(ctx context.Context, price any) (payment.Intent, error) {
	amount, ok := Decimal(price)
	if !ok {
		return payment.Intent{}, invalid("price must be a number")
	}
	if !amount.GreaterThan(decimal.Zero) {
		return payment.Intent{}, invalid("price must be greater than zero")
	}
	in, err := s.payments.CreateIntent(ctx, amount)
	if err != nil {
		if errors.Is(err, payment.ErrInvalidAmount) {
			return payment.Intent{}, fmt.Errorf("%w: %v", ErrInvalidInput, err)
		}
		return payment.Intent{}, err
	}
	return in, nil
}
