package mysql

import (
	"context"
	"database/sql"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/pkg/errors"

	"orderservice/pkg/order/domain/model"
)

const orderColumns = `id, status, total_cents, total_items, version, created_at, updated_at, deleted_at`

type orderRow struct {
	ID         uuid.UUID    `db:"id"`
	Status     string       `db:"status"`
	TotalCents int64        `db:"total_cents"`
	TotalItems int          `db:"total_items"`
	Version    int          `db:"version"`
	CreatedAt  time.Time    `db:"created_at"`
	UpdatedAt  time.Time    `db:"updated_at"`
	DeletedAt  sql.NullTime `db:"deleted_at"`
}

type itemRow struct {
	ID         uuid.UUID `db:"id"`
	OrderID    uuid.UUID `db:"order_id"`
	Position   int       `db:"position"`
	ProductID  uuid.UUID `db:"product_id"`
	Quantity   int       `db:"quantity"`
	PriceCents int64     `db:"price_cents"`
}

func NewOrderRepository(db *sqlx.DB) model.OrderRepository {
	return &orderRepository{db: db}
}

type orderRepository struct {
	db *sqlx.DB
}

func (r *orderRepository) NextID() (uuid.UUID, error) {
	return uuid.NewRandom()
}

func (r *orderRepository) Create(ctx context.Context, order *model.Order) error {
	return r.execTx(ctx, func(tx *sqlx.Tx) error {
		_, err := tx.NamedExecContext(ctx,
			`INSERT INTO orders (`+orderColumns+`)
			VALUES (:id, :status, :total_cents, :total_items, :version, :created_at, :updated_at, :deleted_at)`,
			toOrderRow(order),
		)
		if err != nil {
			return errors.Wrapf(err, "failed to insert order %s", order.ID)
		}

		if len(order.Items) == 0 {
			return nil
		}

		rows := make([]itemRow, 0, len(order.Items))
		for i, item := range order.Items {
			rows = append(rows, itemRow{
				ID:         item.ID,
				OrderID:    order.ID,
				Position:   i,
				ProductID:  item.ProductID,
				Quantity:   item.Quantity,
				PriceCents: item.PriceCents,
			})
		}

		_, err = tx.NamedExecContext(ctx,
			`INSERT INTO order_items (id, order_id, position, product_id, quantity, price_cents)
			VALUES (:id, :order_id, :position, :product_id, :quantity, :price_cents)`,
			rows,
		)
		return errors.Wrapf(err, "failed to insert items of order %s", order.ID)
	})
}

func (r *orderRepository) Find(ctx context.Context, id uuid.UUID) (*model.Order, error) {
	return findOrder(ctx, r.db, id)
}

// UpdateStatus is last-write-wins; the version still grows on every write.
func (r *orderRepository) UpdateStatus(ctx context.Context, id uuid.UUID, status model.OrderStatus) (*model.Order, error) {
	var updated *model.Order
	err := r.execTx(ctx, func(tx *sqlx.Tx) error {
		res, err := tx.ExecContext(ctx,
			`UPDATE orders SET status = ?, version = version + 1, updated_at = ?
			WHERE id = ? AND deleted_at IS NULL`,
			string(status), time.Now().UTC(), id,
		)
		if err != nil {
			return errors.Wrapf(err, "failed to update status of order %s", id)
		}
		if err := expectRow(res); err != nil {
			return err
		}

		updated, err = findOrder(ctx, tx, id)
		return err
	})
	if err != nil {
		return nil, err
	}
	return updated, nil
}

func (r *orderRepository) Count(ctx context.Context, status model.OrderStatus) (int, error) {
	var total int
	err := r.db.GetContext(ctx, &total,
		`SELECT COUNT(*) FROM orders WHERE deleted_at IS NULL AND (? = '' OR status = ?)`,
		string(status), string(status),
	)
	if err != nil {
		return 0, errors.Wrap(err, "failed to count orders")
	}
	return total, nil
}

func (r *orderRepository) Page(ctx context.Context, status model.OrderStatus, page, limit int) ([]model.Order, error) {
	var rows []orderRow
	err := r.db.SelectContext(ctx, &rows,
		`SELECT `+orderColumns+` FROM orders
		WHERE deleted_at IS NULL AND (? = '' OR status = ?)
		ORDER BY created_at, id
		LIMIT ? OFFSET ?`,
		string(status), string(status), limit, (page-1)*limit,
	)
	if err != nil {
		return nil, errors.Wrapf(err, "failed to select orders page %d", page)
	}

	orders := make([]model.Order, 0, len(rows))
	for _, row := range rows {
		orders = append(orders, *row.toModel(nil))
	}
	return orders, nil
}

func (r *orderRepository) Delete(ctx context.Context, id uuid.UUID) error {
	now := time.Now().UTC()
	res, err := r.db.ExecContext(ctx,
		`UPDATE orders SET deleted_at = ?, updated_at = ? WHERE id = ? AND deleted_at IS NULL`,
		now, now, id,
	)
	if err != nil {
		return errors.Wrapf(err, "failed to delete order %s", id)
	}
	return expectRow(res)
}

func (r *orderRepository) execTx(ctx context.Context, fn func(tx *sqlx.Tx) error) error {
	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return errors.Wrap(err, "failed to begin transaction")
	}

	if err := fn(tx); err != nil {
		if rbErr := tx.Rollback(); rbErr != nil {
			return errors.Wrapf(err, "rollback failed: %v", rbErr)
		}
		return err
	}

	return errors.Wrap(tx.Commit(), "failed to commit transaction")
}

func findOrder(ctx context.Context, q sqlx.QueryerContext, id uuid.UUID) (*model.Order, error) {
	var header orderRow
	err := sqlx.GetContext(ctx, q, &header,
		`SELECT `+orderColumns+` FROM orders WHERE id = ? AND deleted_at IS NULL`, id,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, model.ErrOrderNotFound
	}
	if err != nil {
		return nil, errors.Wrapf(err, "failed to select order %s", id)
	}

	var items []itemRow
	err = sqlx.SelectContext(ctx, q, &items,
		`SELECT id, order_id, position, product_id, quantity, price_cents
		FROM order_items WHERE order_id = ? ORDER BY position`, id,
	)
	if err != nil {
		return nil, errors.Wrapf(err, "failed to select items of order %s", id)
	}

	return header.toModel(items), nil
}

func expectRow(res sql.Result) error {
	affected, err := res.RowsAffected()
	if err != nil {
		return errors.WithStack(err)
	}
	if affected == 0 {
		return model.ErrOrderNotFound
	}
	return nil
}

func toOrderRow(order *model.Order) orderRow {
	row := orderRow{
		ID:         order.ID,
		Status:     string(order.Status),
		TotalCents: order.TotalCents,
		TotalItems: order.TotalItems,
		Version:    order.Version,
		CreatedAt:  order.CreatedAt,
		UpdatedAt:  order.UpdatedAt,
	}
	if order.DeletedAt != nil {
		row.DeletedAt = sql.NullTime{Time: *order.DeletedAt, Valid: true}
	}
	return row
}

func (row orderRow) toModel(items []itemRow) *model.Order {
	order := &model.Order{
		ID:         row.ID,
		Status:     model.OrderStatus(row.Status),
		TotalCents: row.TotalCents,
		TotalItems: row.TotalItems,
		Version:    row.Version,
		CreatedAt:  row.CreatedAt.UTC(),
		UpdatedAt:  row.UpdatedAt.UTC(),
	}
	if row.DeletedAt.Valid {
		deletedAt := row.DeletedAt.Time.UTC()
		order.DeletedAt = &deletedAt
	}
	for _, item := range items {
		order.Items = append(order.Items, model.Item{
			ID:         item.ID,
			ProductID:  item.ProductID,
			Quantity:   item.Quantity,
			PriceCents: item.PriceCents,
		})
	}
	return order
}
