package mongostore

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"github.com/flicky/storefront-api/internal/model"
	"github.com/flicky/storefront-api/internal/repository"
)

// transientTxLabel marks a transaction aborted by a write conflict that
// WithTransaction gave up retrying.
const transientTxLabel = "TransientTransactionError"

func now() time.Time { return time.Now().UTC().Truncate(time.Millisecond) }

type userRepo struct{ col *mongo.Collection }

func (r *userRepo) Create(ctx context.Context, user *model.User) error {
	user.ID = uuid.New()
	user.CreatedAt = now()
	user.UpdatedAt = user.CreatedAt
	if _, err := r.col.InsertOne(ctx, newUserDoc(user)); err != nil {
		if mongo.IsDuplicateKeyError(err) {
			return repository.ErrDuplicateEmail
		}
		return fmt.Errorf("create user: %w", err)
	}
	return nil
}

func (r *userRepo) findOne(ctx context.Context, filter bson.M) (*model.User, error) {
	var doc userDoc
	if err := r.col.FindOne(ctx, filter).Decode(&doc); err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, nil
		}
		return nil, fmt.Errorf("get user: %w", err)
	}
	return doc.model(), nil
}

func (r *userRepo) GetByID(ctx context.Context, id uuid.UUID) (*model.User, error) {
	return r.findOne(ctx, bson.M{"_id": id.String()})
}

func (r *userRepo) GetByEmail(ctx context.Context, email string) (*model.User, error) {
	return r.findOne(ctx, bson.M{"email": email})
}

func listField(list model.ProductList) string {
	if list == model.CompareList {
		return "compareList"
	}
	return "wishlist"
}

func (r *userRepo) updateList(ctx context.Context, userID uuid.UUID, list model.ProductList, op string, productID uuid.UUID) (model.ProductSet, error) {
	update := bson.M{
		op:     bson.M{listField(list): productID.String()},
		"$set": bson.M{"updatedAt": now()},
	}
	var doc userDoc
	err := r.col.FindOneAndUpdate(ctx, bson.M{"_id": userID.String()}, update,
		options.FindOneAndUpdate().SetReturnDocument(options.After),
	).Decode(&doc)
	if err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, repository.ErrNotFound
		}
		return nil, fmt.Errorf("update %s: %w", list, err)
	}
	return doc.model().List(list), nil
}

func (r *userRepo) AddToList(ctx context.Context, userID uuid.UUID, list model.ProductList, productID uuid.UUID) (model.ProductSet, error) {
	return r.updateList(ctx, userID, list, "$addToSet", productID)
}

func (r *userRepo) RemoveFromList(ctx context.Context, userID uuid.UUID, list model.ProductList, productID uuid.UUID) (model.ProductSet, error) {
	return r.updateList(ctx, userID, list, "$pull", productID)
}

type productRepo struct{ col *mongo.Collection }

func (r *productRepo) Create(ctx context.Context, product *model.Product) error {
	product.ID = uuid.New()
	product.CreatedAt = now()
	product.UpdatedAt = product.CreatedAt
	if _, err := r.col.InsertOne(ctx, newProductDoc(product)); err != nil {
		return fmt.Errorf("create product: %w", err)
	}
	return nil
}

func (r *productRepo) GetByID(ctx context.Context, id uuid.UUID) (*model.Product, error) {
	var doc productDoc
	if err := r.col.FindOne(ctx, bson.M{"_id": id.String()}).Decode(&doc); err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, nil
		}
		return nil, fmt.Errorf("get product: %w", err)
	}
	p := doc.model()
	return &p, nil
}

func (r *productRepo) find(ctx context.Context, filter any, opts ...*options.FindOptions) ([]model.Product, error) {
	cur, err := r.col.Find(ctx, filter, opts...)
	if err != nil {
		return nil, err
	}
	var docs []productDoc
	if err := cur.All(ctx, &docs); err != nil {
		return nil, err
	}
	out := make([]model.Product, 0, len(docs))
	for _, d := range docs {
		out = append(out, d.model())
	}
	return out, nil
}

func (r *productRepo) GetByIDs(ctx context.Context, ids []uuid.UUID) ([]model.Product, error) {
	if len(ids) == 0 {
		return []model.Product{}, nil
	}
	keys := make([]string, 0, len(ids))
	for _, id := range ids {
		keys = append(keys, id.String())
	}
	products, err := r.find(ctx, bson.M{"_id": bson.M{"$in": keys}})
	if err != nil {
		return nil, fmt.Errorf("get products: %w", err)
	}
	return repository.OrderByIDs(products, ids), nil
}

// API sort names already match document field names.
func (r *productRepo) List(ctx context.Context, filter repository.ProductFilter) ([]model.Product, int, error) {
	query := bson.M{}
	if filter.Category != "" {
		query["category"] = filter.Category
	}
	total, err := r.col.CountDocuments(ctx, query)
	if err != nil {
		return nil, 0, fmt.Errorf("count products: %w", err)
	}

	sortDoc := bson.D{{Key: "createdAt", Value: 1}, {Key: "_id", Value: 1}}
	if repository.ValidSortField(filter.SortBy) {
		dir := 1
		if filter.Desc {
			dir = -1
		}
		sortDoc = bson.D{{Key: filter.SortBy, Value: dir}, {Key: "_id", Value: 1}}
	}
	opts := options.Find().SetSort(sortDoc).SetSkip(int64(filter.Offset))
	if filter.Limit > 0 {
		opts.SetLimit(int64(filter.Limit))
	}

	products, err := r.find(ctx, query, opts)
	if err != nil {
		return nil, 0, fmt.Errorf("list products: %w", err)
	}
	return products, int(total), nil
}

func (r *productRepo) Search(ctx context.Context, query string) ([]model.Product, error) {
	score := bson.M{"$meta": "textScore"}
	opts := options.Find().
		SetProjection(bson.M{"score": score}).
		SetSort(bson.D{{Key: "score", Value: score}})
	products, err := r.find(ctx, bson.M{"$text": bson.M{"$search": query}}, opts)
	if err != nil {
		return nil, fmt.Errorf("search products: %w", err)
	}
	return products, nil
}

func (r *productRepo) Update(ctx context.Context, id uuid.UUID, patch repository.ProductPatch) (*model.Product, error) {
	set := bson.M{"updatedAt": now()}
	if patch.Name != nil {
		set["name"] = *patch.Name
	}
	if patch.Description != nil {
		set["description"] = *patch.Description
	}
	if patch.Price != nil {
		set["price"] = toDecimal128(*patch.Price)
	}
	if patch.Quantity != nil {
		set["quantity"] = *patch.Quantity
	}
	if patch.Category != nil {
		set["category"] = *patch.Category
	}
	if patch.ImageURL != nil {
		set["imageUrl"] = *patch.ImageURL
	}

	var doc productDoc
	err := r.col.FindOneAndUpdate(ctx, bson.M{"_id": id.String()}, bson.M{"$set": set},
		options.FindOneAndUpdate().SetReturnDocument(options.After),
	).Decode(&doc)
	if err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, repository.ErrNotFound
		}
		return nil, fmt.Errorf("update product: %w", err)
	}
	p := doc.model()
	return &p, nil
}

func (r *productRepo) Delete(ctx context.Context, id uuid.UUID) error {
	res, err := r.col.DeleteOne(ctx, bson.M{"_id": id.String()})
	if err != nil {
		return fmt.Errorf("delete product: %w", err)
	}
	if res.DeletedCount == 0 {
		return repository.ErrNotFound
	}
	return nil
}

func (r *productRepo) IncrementSold(ctx context.Context, id uuid.UUID, quantity int) error {
	res, err := r.col.UpdateOne(ctx, bson.M{"_id": id.String()}, bson.M{
		"$inc": bson.M{"sold": quantity},
		"$set": bson.M{"updatedAt": now()},
	})
	if err != nil {
		return fmt.Errorf("increment sold: %w", err)
	}
	if res.MatchedCount == 0 {
		return repository.ErrNotFound
	}
	return nil
}

type cartRepo struct{ col *mongo.Collection }

func (r *cartRepo) GetByUserID(ctx context.Context, userID uuid.UUID) (*model.Cart, error) {
	var doc cartDoc
	if err := r.col.FindOne(ctx, bson.M{"user": userID.String()}).Decode(&doc); err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, nil
		}
		return nil, fmt.Errorf("get cart: %w", err)
	}
	return doc.model(), nil
}

func (r *cartRepo) Save(ctx context.Context, cart *model.Cart) error {
	ts := now()
	if cart.Version == 0 {
		if cart.ID == uuid.Nil {
			cart.ID = uuid.New()
		}
		doc := cartDoc{
			ID: cart.ID.String(), User: cart.UserID.String(), Items: cartItemDocs(cart.Items),
			TotalPrice: toDecimal128(cart.TotalPrice), Version: 1, CreatedAt: ts, UpdatedAt: ts,
		}
		if _, err := r.col.InsertOne(ctx, doc); err != nil {
			if mongo.IsDuplicateKeyError(err) {
				return repository.ErrVersionConflict
			}
			return fmt.Errorf("insert cart: %w", err)
		}
		cart.CreatedAt, cart.UpdatedAt, cart.Version = ts, ts, 1
		return nil
	}

	if err := casCart(ctx, r.col, cart, ts); err != nil {
		return err
	}
	cart.UpdatedAt = ts
	cart.Version++
	return nil
}

// casCart writes cart only if its stored version still equals cart.Version.
func casCart(ctx context.Context, col *mongo.Collection, cart *model.Cart, ts time.Time) error {
	res, err := col.UpdateOne(ctx,
		bson.M{"_id": cart.ID.String(), "version": cart.Version},
		bson.M{
			"$set": bson.M{"items": cartItemDocs(cart.Items), "totalPrice": toDecimal128(cart.TotalPrice), "updatedAt": ts},
			"$inc": bson.M{"version": 1},
		},
	)
	if err != nil {
		return fmt.Errorf("update cart: %w", err)
	}
	if res.MatchedCount == 0 {
		return repository.ErrVersionConflict
	}
	return nil
}

type orderRepo struct {
	client   *mongo.Client
	orders   *mongo.Collection
	products *mongo.Collection
	carts    *mongo.Collection
}

func (r *orderRepo) PlaceOrder(ctx context.Context, order *model.Order, cart *model.Cart) error {
	session, err := r.client.StartSession()
	if err != nil {
		return fmt.Errorf("start session: %w", err)
	}
	defer session.EndSession(ctx)

	ts := now()
	order.ID = uuid.New()
	order.CreatedAt, order.UpdatedAt = ts, ts
	emptied := *cart
	emptied.Clear()

	_, err = session.WithTransaction(ctx, func(sc mongo.SessionContext) (interface{}, error) {
		for _, item := range repository.StockLockOrder(order.Items) {
			res, err := r.products.UpdateOne(sc,
				bson.M{"_id": item.ProductID.String(), "quantity": bson.M{"$gte": item.Quantity}},
				bson.M{"$inc": bson.M{"quantity": -item.Quantity}, "$set": bson.M{"updatedAt": ts}},
			)
			if err != nil {
				return nil, fmt.Errorf("decrement stock: %w", err)
			}
			if res.MatchedCount == 0 {
				return nil, fmt.Errorf("product %s: %w", item.ProductID, repository.ErrInsufficientStock)
			}
		}
		if _, err := r.orders.InsertOne(sc, newOrderDoc(order)); err != nil {
			return nil, fmt.Errorf("insert order: %w", err)
		}
		return nil, casCart(sc, r.carts, &emptied, ts)
	})
	if err != nil {
		var labeled mongo.LabeledError
		if errors.As(err, &labeled) && labeled.HasErrorLabel(transientTxLabel) {
			return fmt.Errorf("%w: %w", repository.ErrVersionConflict, err)
		}
		return err
	}

	emptied.UpdatedAt = ts
	emptied.Version++
	*cart = emptied
	return nil
}

func (r *orderRepo) GetByID(ctx context.Context, id uuid.UUID) (*model.Order, error) {
	var doc orderDoc
	if err := r.orders.FindOne(ctx, bson.M{"_id": id.String()}).Decode(&doc); err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, nil
		}
		return nil, fmt.Errorf("get order: %w", err)
	}
	o := doc.model()
	return &o, nil
}

func (r *orderRepo) ListByUserID(ctx context.Context, userID uuid.UUID) ([]model.Order, error) {
	cur, err := r.orders.Find(ctx, bson.M{"user": userID.String()},
		options.Find().SetSort(bson.D{{Key: "createdAt", Value: -1}}))
	if err != nil {
		return nil, fmt.Errorf("list orders: %w", err)
	}
	var docs []orderDoc
	if err := cur.All(ctx, &docs); err != nil {
		return nil, fmt.Errorf("list orders: %w", err)
	}
	out := make([]model.Order, 0, len(docs))
	for _, d := range docs {
		out = append(out, d.model())
	}
	return out, nil
}

func (r *orderRepo) MarkPaid(ctx context.Context, id uuid.UUID, paidAt time.Time, result model.PaymentResult) error {
	res, err := r.orders.UpdateOne(ctx, bson.M{"_id": id.String()}, bson.M{"$set": bson.M{
		"isPaid":        true,
		"paidAt":        paidAt,
		"paymentResult": paymentResultDoc(result),
		"updatedAt":     now(),
	}})
	if err != nil {
		return fmt.Errorf("mark order paid: %w", err)
	}
	if res.MatchedCount == 0 {
		return repository.ErrNotFound
	}
	return nil
}
