package repository

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/flicky/storefront-api/internal/model"
)

type pgCartRepo struct{ pool *pgxpool.Pool }

func NewCartRepository(pool *pgxpool.Pool) CartRepository {
	return &pgCartRepo{pool: pool}
}

func (r *pgCartRepo) GetByUserID(ctx context.Context, userID uuid.UUID) (*model.Cart, error) {
	cart := &model.Cart{}
	err := r.pool.QueryRow(ctx,
		`SELECT id, user_id, total_price, version, created_at, updated_at FROM carts WHERE user_id = $1`, userID,
	).Scan(&cart.ID, &cart.UserID, &cart.TotalPrice, &cart.Version, &cart.CreatedAt, &cart.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("get cart: %w", err)
	}

	rows, err := r.pool.Query(ctx,
		`SELECT product_id, quantity, price FROM cart_items WHERE cart_id = $1 ORDER BY position`, cart.ID,
	)
	if err != nil {
		return nil, fmt.Errorf("get cart items: %w", err)
	}
	defer rows.Close()

	cart.Items = []model.CartItem{}
	for rows.Next() {
		var item model.CartItem
		if err := rows.Scan(&item.ProductID, &item.Quantity, &item.Price); err != nil {
			return nil, fmt.Errorf("scan cart item: %w", err)
		}
		cart.Items = append(cart.Items, item)
	}
	return cart, rows.Err()
}

func (r *pgCartRepo) Save(ctx context.Context, cart *model.Cart) error {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback(ctx)

	if cart.Version == 0 {
		if cart.ID == uuid.Nil {
			cart.ID = uuid.New()
		}
		err = tx.QueryRow(ctx,
			`INSERT INTO carts (id, user_id, total_price, version, created_at, updated_at)
			 VALUES ($1, $2, $3, 1, NOW(), NOW())
			 ON CONFLICT (user_id) DO NOTHING
			 RETURNING created_at, updated_at`,
			cart.ID, cart.UserID, cart.TotalPrice,
		).Scan(&cart.CreatedAt, &cart.UpdatedAt)
		if err != nil {
			if errors.Is(err, pgx.ErrNoRows) {
				// Another request created this user's cart first.
				return ErrVersionConflict
			}
			return fmt.Errorf("insert cart: %w", err)
		}
	} else {
		if err := casCart(ctx, tx, cart); err != nil {
			return err
		}
	}

	if err := replaceCartItems(ctx, tx, cart); err != nil {
		return err
	}
	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit tx: %w", err)
	}
	cart.Version++
	return nil
}

// casCart bumps the cart header only if nobody else has written since cart was read.
func casCart(ctx context.Context, tx pgx.Tx, cart *model.Cart) error {
	err := tx.QueryRow(ctx,
		`UPDATE carts SET total_price = $3, version = version + 1, updated_at = NOW()
		 WHERE id = $1 AND version = $2 RETURNING updated_at`,
		cart.ID, cart.Version, cart.TotalPrice,
	).Scan(&cart.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return ErrVersionConflict
		}
		return fmt.Errorf("update cart: %w", err)
	}
	return nil
}

func replaceCartItems(ctx context.Context, tx pgx.Tx, cart *model.Cart) error {
	if _, err := tx.Exec(ctx, `DELETE FROM cart_items WHERE cart_id = $1`, cart.ID); err != nil {
		return fmt.Errorf("clear cart items: %w", err)
	}
	if len(cart.Items) == 0 {
		return nil
	}

	batch := &pgx.Batch{}
	for i, item := range cart.Items {
		batch.Queue(
			`INSERT INTO cart_items (cart_id, position, product_id, quantity, price) VALUES ($1, $2, $3, $4, $5)`,
			cart.ID, i, item.ProductID, item.Quantity, item.Price,
		)
	}
	if err := tx.SendBatch(ctx, batch).Close(); err != nil {
		return fmt.Errorf("insert cart items: %w", err)
	}
	return nil
}
