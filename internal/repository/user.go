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

type pgUserRepo struct{ pool *pgxpool.Pool }

func NewUserRepository(pool *pgxpool.Pool) UserRepository {
	return &pgUserRepo{pool: pool}
}

func (r *pgUserRepo) Create(ctx context.Context, user *model.User) error {
	user.ID = uuid.New()
	query := `INSERT INTO users (id, name, email, password_hash, created_at, updated_at)
			  VALUES ($1, $2, $3, $4, NOW(), NOW())
			  RETURNING created_at, updated_at`
	err := r.pool.QueryRow(ctx, query,
		user.ID, user.Name, user.Email, user.Password,
	).Scan(&user.CreatedAt, &user.UpdatedAt)
	if err != nil {
		if isUniqueViolation(err) {
			return ErrDuplicateEmail
		}
		return fmt.Errorf("create user: %w", err)
	}
	user.Wishlist = model.ProductSet{}
	user.CompareList = model.ProductSet{}
	return nil
}

func (r *pgUserRepo) GetByID(ctx context.Context, id uuid.UUID) (*model.User, error) {
	return r.getOne(ctx, `SELECT id, name, email, password_hash, created_at, updated_at
			  FROM users WHERE id = $1`, id)
}

func (r *pgUserRepo) GetByEmail(ctx context.Context, email string) (*model.User, error) {
	return r.getOne(ctx, `SELECT id, name, email, password_hash, created_at, updated_at
			  FROM users WHERE email = $1`, email)
}

func (r *pgUserRepo) getOne(ctx context.Context, query string, arg any) (*model.User, error) {
	user := &model.User{}
	err := r.pool.QueryRow(ctx, query, arg).Scan(
		&user.ID, &user.Name, &user.Email, &user.Password, &user.CreatedAt, &user.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("get user: %w", err)
	}

	if user.Wishlist, err = r.loadList(ctx, r.pool, user.ID, model.Wishlist); err != nil {
		return nil, err
	}
	if user.CompareList, err = r.loadList(ctx, r.pool, user.ID, model.CompareList); err != nil {
		return nil, err
	}
	return user, nil
}

type querier interface {
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
}

func (r *pgUserRepo) loadList(ctx context.Context, q querier, userID uuid.UUID, list model.ProductList) (model.ProductSet, error) {
	rows, err := q.Query(ctx,
		`SELECT product_id FROM user_product_lists WHERE user_id = $1 AND list = $2 ORDER BY added_at, product_id`,
		userID, string(list),
	)
	if err != nil {
		return nil, fmt.Errorf("load %s: %w", list, err)
	}
	defer rows.Close()

	set := model.ProductSet{}
	for rows.Next() {
		var id uuid.UUID
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("scan %s entry: %w", list, err)
		}
		set = append(set, id)
	}
	return set, rows.Err()
}

func (r *pgUserRepo) AddToList(ctx context.Context, userID uuid.UUID, list model.ProductList, productID uuid.UUID) (model.ProductSet, error) {
	return r.mutateList(ctx, userID, list,
		`INSERT INTO user_product_lists (user_id, list, product_id) VALUES ($1, $2, $3)
		 ON CONFLICT (user_id, list, product_id) DO NOTHING`,
		productID,
	)
}

func (r *pgUserRepo) RemoveFromList(ctx context.Context, userID uuid.UUID, list model.ProductList, productID uuid.UUID) (model.ProductSet, error) {
	return r.mutateList(ctx, userID, list,
		`DELETE FROM user_product_lists WHERE user_id = $1 AND list = $2 AND product_id = $3`,
		productID,
	)
}

func (r *pgUserRepo) mutateList(ctx context.Context, userID uuid.UUID, list model.ProductList, stmt string, productID uuid.UUID) (model.ProductSet, error) {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return nil, fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback(ctx)

	var exists bool
	if err := tx.QueryRow(ctx, `SELECT EXISTS (SELECT 1 FROM users WHERE id = $1)`, userID).Scan(&exists); err != nil {
		return nil, fmt.Errorf("check user: %w", err)
	}
	if !exists {
		return nil, ErrNotFound
	}

	if _, err := tx.Exec(ctx, stmt, userID, string(list), productID); err != nil {
		return nil, fmt.Errorf("update %s: %w", list, err)
	}
	if _, err := tx.Exec(ctx, `UPDATE users SET updated_at = NOW() WHERE id = $1`, userID); err != nil {
		return nil, fmt.Errorf("touch user: %w", err)
	}

	set, err := r.loadList(ctx, tx, userID, list)
	if err != nil {
		return nil, err
	}
	if err := tx.Commit(ctx); err != nil {
		return nil, fmt.Errorf("commit tx: %w", err)
	}
	return set, nil
}
