// Package memory is a process-local Store used for development and tests.
// All repositories share one mutex so PlaceOrder can be atomic across them.
package memory

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/flicky/storefront-api/internal/model"
	"github.com/flicky/storefront-api/internal/repository"
)

type db struct {
	mu       sync.RWMutex
	users    map[uuid.UUID]*model.User
	emails   map[string]uuid.UUID
	products map[uuid.UUID]*model.Product
	seq      map[uuid.UUID]int
	nextSeq  int
	carts    map[uuid.UUID]*model.Cart
	orders   map[uuid.UUID]*model.Order
	now      func() time.Time
}

// NewStore returns an empty in-memory Store.
func NewStore() *repository.Store {
	d := &db{
		users:    make(map[uuid.UUID]*model.User),
		emails:   make(map[string]uuid.UUID),
		products: make(map[uuid.UUID]*model.Product),
		seq:      make(map[uuid.UUID]int),
		carts:    make(map[uuid.UUID]*model.Cart),
		orders:   make(map[uuid.UUID]*model.Order),
		now:      func() time.Time { return time.Now().UTC() },
	}
	return &repository.Store{
		Users:    &userRepo{d},
		Products: &productRepo{d},
		Carts:    &cartRepo{d},
		Orders:   &orderRepo{d},
		Ping:     func(context.Context) error { return nil },
		Close:    func() {},
	}
}

func copyUser(u *model.User) *model.User {
	out := *u
	out.Wishlist = u.Wishlist.Clone()
	out.CompareList = u.CompareList.Clone()
	return &out
}

func copyCart(c *model.Cart) *model.Cart {
	out := *c
	out.Items = append([]model.CartItem{}, c.Items...)
	return &out
}

func copyOrder(o *model.Order) *model.Order {
	out := *o
	out.Items = append([]model.OrderItem{}, o.Items...)
	if o.PaymentResult != nil {
		pr := *o.PaymentResult
		out.PaymentResult = &pr
	}
	if o.PaidAt != nil {
		t := *o.PaidAt
		out.PaidAt = &t
	}
	return &out
}

type userRepo struct{ d *db }

func (r *userRepo) Create(_ context.Context, user *model.User) error {
	r.d.mu.Lock()
	defer r.d.mu.Unlock()
	if _, ok := r.d.emails[user.Email]; ok {
		return repository.ErrDuplicateEmail
	}
	now := r.d.now()
	user.ID = uuid.New()
	user.Wishlist = user.Wishlist.Clone()
	user.CompareList = user.CompareList.Clone()
	user.CreatedAt, user.UpdatedAt = now, now
	r.d.users[user.ID] = copyUser(user)
	r.d.emails[user.Email] = user.ID
	return nil
}

func (r *userRepo) GetByID(_ context.Context, id uuid.UUID) (*model.User, error) {
	r.d.mu.RLock()
	defer r.d.mu.RUnlock()
	u, ok := r.d.users[id]
	if !ok {
		return nil, nil
	}
	return copyUser(u), nil
}

func (r *userRepo) GetByEmail(ctx context.Context, email string) (*model.User, error) {
	r.d.mu.RLock()
	id, ok := r.d.emails[email]
	r.d.mu.RUnlock()
	if !ok {
		return nil, nil
	}
	return r.GetByID(ctx, id)
}

func (r *userRepo) mutate(userID uuid.UUID, list model.ProductList, fn func(*model.ProductSet) bool) (model.ProductSet, error) {
	r.d.mu.Lock()
	defer r.d.mu.Unlock()
	u, ok := r.d.users[userID]
	if !ok {
		return nil, repository.ErrNotFound
	}
	set := &u.Wishlist
	if list == model.CompareList {
		set = &u.CompareList
	}
	if fn(set) {
		u.UpdatedAt = r.d.now()
	}
	return set.Clone(), nil
}

func (r *userRepo) AddToList(_ context.Context, userID uuid.UUID, list model.ProductList, productID uuid.UUID) (model.ProductSet, error) {
	return r.mutate(userID, list, func(s *model.ProductSet) bool { return s.Add(productID) })
}

func (r *userRepo) RemoveFromList(_ context.Context, userID uuid.UUID, list model.ProductList, productID uuid.UUID) (model.ProductSet, error) {
	return r.mutate(userID, list, func(s *model.ProductSet) bool { return s.Remove(productID) })
}

type productRepo struct{ d *db }

func (r *productRepo) Create(_ context.Context, product *model.Product) error {
	r.d.mu.Lock()
	defer r.d.mu.Unlock()
	now := r.d.now()
	product.ID = uuid.New()
	product.CreatedAt, product.UpdatedAt = now, now
	p := *product
	r.d.products[p.ID] = &p
	r.d.nextSeq++
	r.d.seq[p.ID] = r.d.nextSeq
	return nil
}

func (r *productRepo) GetByID(_ context.Context, id uuid.UUID) (*model.Product, error) {
	r.d.mu.RLock()
	defer r.d.mu.RUnlock()
	p, ok := r.d.products[id]
	if !ok {
		return nil, nil
	}
	out := *p
	return &out, nil
}

func (r *productRepo) GetByIDs(_ context.Context, ids []uuid.UUID) ([]model.Product, error) {
	r.d.mu.RLock()
	defer r.d.mu.RUnlock()
	out := make([]model.Product, 0, len(ids))
	for _, id := range ids {
		if p, ok := r.d.products[id]; ok {
			out = append(out, *p)
		}
	}
	return out, nil
}

// inOrder returns every product matching keep, in insertion order.
func (r *productRepo) inOrder(keep func(*model.Product) bool) []model.Product {
	out := []model.Product{}
	for _, p := range r.d.products {
		if keep(p) {
			out = append(out, *p)
		}
	}
	sort.SliceStable(out, func(i, j int) bool { return r.d.seq[out[i].ID] < r.d.seq[out[j].ID] })
	return out
}

func lessBy(field string, a, b *model.Product) (less, equal bool) {
	switch field {
	case repository.SortName:
		return a.Name < b.Name, a.Name == b.Name
	case repository.SortPrice:
		return a.Price.LessThan(b.Price), a.Price.Equal(b.Price)
	case repository.SortQuantity:
		return a.Quantity < b.Quantity, a.Quantity == b.Quantity
	case repository.SortCategory:
		return a.Category < b.Category, a.Category == b.Category
	case repository.SortCreatedAt:
		return a.CreatedAt.Before(b.CreatedAt), a.CreatedAt.Equal(b.CreatedAt)
	case repository.SortSold:
		return a.Sold < b.Sold, a.Sold == b.Sold
	}
	return false, true
}

func (r *productRepo) List(_ context.Context, filter repository.ProductFilter) ([]model.Product, int, error) {
	r.d.mu.RLock()
	defer r.d.mu.RUnlock()

	all := r.inOrder(func(p *model.Product) bool {
		return filter.Category == "" || p.Category == filter.Category
	})
	if repository.ValidSortField(filter.SortBy) {
		sort.SliceStable(all, func(i, j int) bool {
			less, equal := lessBy(filter.SortBy, &all[i], &all[j])
			if equal {
				return false
			}
			if filter.Desc {
				return !less
			}
			return less
		})
	}

	total := len(all)
	start := min(filter.Offset, total)
	end := total
	if filter.Limit > 0 {
		end = min(start+filter.Limit, total)
	}
	return all[start:end], total, nil
}

// Search matches products whose name, description or category contains any
// of the query's words, case-insensitively.
func (r *productRepo) Search(_ context.Context, query string) ([]model.Product, error) {
	terms := strings.Fields(strings.ToLower(query))
	r.d.mu.RLock()
	defer r.d.mu.RUnlock()
	return r.inOrder(func(p *model.Product) bool {
		text := strings.ToLower(p.Name + " " + p.Description + " " + p.Category)
		for _, t := range terms {
			if strings.Contains(text, t) {
				return true
			}
		}
		return false
	}), nil
}

func (r *productRepo) Update(_ context.Context, id uuid.UUID, patch repository.ProductPatch) (*model.Product, error) {
	r.d.mu.Lock()
	defer r.d.mu.Unlock()
	cur, ok := r.d.products[id]
	if !ok {
		return nil, repository.ErrNotFound
	}
	patch.Apply(cur)
	cur.UpdatedAt = r.d.now()
	p := *cur
	return &p, nil
}

func (r *productRepo) Delete(_ context.Context, id uuid.UUID) error {
	r.d.mu.Lock()
	defer r.d.mu.Unlock()
	if _, ok := r.d.products[id]; !ok {
		return repository.ErrNotFound
	}
	delete(r.d.products, id)
	delete(r.d.seq, id)
	return nil
}

func (r *productRepo) IncrementSold(_ context.Context, id uuid.UUID, quantity int) error {
	r.d.mu.Lock()
	defer r.d.mu.Unlock()
	p, ok := r.d.products[id]
	if !ok {
		return repository.ErrNotFound
	}
	p.Sold += quantity
	p.UpdatedAt = r.d.now()
	return nil
}

type cartRepo struct{ d *db }

func (r *cartRepo) GetByUserID(_ context.Context, userID uuid.UUID) (*model.Cart, error) {
	r.d.mu.RLock()
	defer r.d.mu.RUnlock()
	c, ok := r.d.carts[userID]
	if !ok {
		return nil, nil
	}
	return copyCart(c), nil
}

func (r *cartRepo) Save(_ context.Context, cart *model.Cart) error {
	r.d.mu.Lock()
	defer r.d.mu.Unlock()
	return r.d.saveCart(cart)
}

// saveCart must be called with mu held.
func (d *db) saveCart(cart *model.Cart) error {
	cur, exists := d.carts[cart.UserID]
	now := d.now()
	switch {
	case cart.Version == 0 && exists:
		return repository.ErrVersionConflict
	case cart.Version == 0:
		if cart.ID == uuid.Nil {
			cart.ID = uuid.New()
		}
		cart.CreatedAt = now
	case !exists || cur.Version != cart.Version:
		return repository.ErrVersionConflict
	}
	cart.UpdatedAt = now
	cart.Version++
	d.carts[cart.UserID] = copyCart(cart)
	return nil
}

type orderRepo struct{ d *db }

func (r *orderRepo) PlaceOrder(_ context.Context, order *model.Order, cart *model.Cart) error {
	r.d.mu.Lock()
	defer r.d.mu.Unlock()

	// Check everything before touching anything so a failure leaves no trace.
	need := make(map[uuid.UUID]int, len(order.Items))
	for _, item := range order.Items {
		need[item.ProductID] += item.Quantity
	}
	for id, qty := range need {
		p, ok := r.d.products[id]
		if !ok || p.Quantity < qty {
			return fmt.Errorf("product %s: %w", id, repository.ErrInsufficientStock)
		}
	}
	if cur, ok := r.d.carts[cart.UserID]; !ok || cur.Version != cart.Version {
		return repository.ErrVersionConflict
	}

	now := r.d.now()
	for id, qty := range need {
		p := r.d.products[id]
		p.Quantity -= qty
		p.UpdatedAt = now
	}

	order.ID = uuid.New()
	order.CreatedAt, order.UpdatedAt = now, now
	r.d.orders[order.ID] = copyOrder(order)

	emptied := *cart
	emptied.Clear()
	if err := r.d.saveCart(&emptied); err != nil {
		return err
	}
	*cart = emptied
	return nil
}

func (r *orderRepo) GetByID(_ context.Context, id uuid.UUID) (*model.Order, error) {
	r.d.mu.RLock()
	defer r.d.mu.RUnlock()
	o, ok := r.d.orders[id]
	if !ok {
		return nil, nil
	}
	return copyOrder(o), nil
}

func (r *orderRepo) ListByUserID(_ context.Context, userID uuid.UUID) ([]model.Order, error) {
	r.d.mu.RLock()
	defer r.d.mu.RUnlock()
	out := []model.Order{}
	for _, o := range r.d.orders {
		if o.UserID == userID {
			out = append(out, *copyOrder(o))
		}
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	return out, nil
}

func (r *orderRepo) MarkPaid(_ context.Context, id uuid.UUID, paidAt time.Time, result model.PaymentResult) error {
	r.d.mu.Lock()
	defer r.d.mu.Unlock()
	o, ok := r.d.orders[id]
	if !ok {
		return repository.ErrNotFound
	}
	o.IsPaid = true
	o.PaidAt = &paidAt
	o.PaymentResult = &result
	o.UpdatedAt = r.d.now()
	return nil
}
