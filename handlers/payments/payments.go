package payments

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"

	mw "library-app-backend/middleware"
	"library-app-backend/models"
	"library-app-backend/uploads"
)

var validate = validator.New()

// Register mounts routes under /payments
func Register(g fiber.Router, pool *pgxpool.Pool, rdb *redis.Client, jwtGuard fiber.Handler, requireAdmin fiber.Handler, requireStudent fiber.Handler) {
	// Student routes
	g.Post("/", jwtGuard, requireStudent, Submit(pool, rdb))
	g.Get("/me", jwtGuard, requireStudent, ListMine(pool))
	g.Get("/status", jwtGuard, requireStudent, PaidStatus(pool, rdb))

	// Admin routes
	g.Get("/", jwtGuard, requireAdmin, ListAll(pool))
	g.Put("/:id/status", jwtGuard, requireAdmin, UpdateStatus(pool, rdb))
}

// paidCacheKey is the redis key caching the paid flag for one user-month.
func paidCacheKey(userID int64, month string) string {
	return fmt.Sprintf("paid:%d:%s", userID, month)
}

// IsPaid reports whether the user holds an approved membership payment for
// the calendar month of now. One approved submission per month suffices.
// The result is cached briefly in redis; mutations invalidate the key.
func IsPaid(ctx context.Context, pool *pgxpool.Pool, rdb *redis.Client, userID int64, now time.Time) (bool, error) {
	month := models.MonthKey(now)
	key := paidCacheKey(userID, month)

	if rdb != nil {
		if v, err := rdb.Get(ctx, key).Result(); err == nil {
			return v == "1", nil
		}
	}

	var exists int
	err := pool.QueryRow(ctx, `
		SELECT 1 FROM payments
		WHERE user_id=$1 AND status=$2 AND date_trunc('month', created_at) = date_trunc('month', $3::timestamptz)
		LIMIT 1
	`, userID, models.PaymentApproved, now).Scan(&exists)
	paid := err == nil
	if err != nil && !errors.Is(err, sql.ErrNoRows) {
		return false, err
	}

	if rdb != nil {
		v := "0"
		if paid {
			v = "1"
		}
		_ = rdb.Set(ctx, key, v, time.Minute).Err()
	}
	return paid, nil
}

// invalidatePaid drops the cached flag after a payment status change.
func invalidatePaid(ctx context.Context, rdb *redis.Client, userID int64, createdAt time.Time) {
	if rdb == nil {
		return
	}
	_ = rdb.Del(ctx, paidCacheKey(userID, models.MonthKey(createdAt))).Err()
}

const paymentColumns = `id, user_id, screenshot, reference, notes, status, created_at, updated_at`

func scanPayment(row interface{ Scan(dest ...any) error }) (models.Payment, error) {
	var p models.Payment
	err := row.Scan(&p.ID, &p.UserID, &p.Screenshot, &p.Reference, &p.Notes, &p.Status, &p.CreatedAt, &p.UpdatedAt)
	return p, err
}

// Submit - POST /payments (Student, multipart)
// The fee is paid offline; the student uploads the transfer screenshot and
// an optional transaction reference, and waits for admin review.
func Submit(pool *pgxpool.Pool, rdb *redis.Client) fiber.Handler {
	return func(c *fiber.Ctx) error {
		userID, err := mw.GetUserIDFromClaims(c)
		if err != nil {
			return err
		}

		var b models.SubmitPaymentRequest
		if err := c.BodyParser(&b); err != nil {
			return fiber.NewError(fiber.StatusBadRequest, "Bad form data")
		}

		fh, err := c.FormFile("screenshot")
		if err != nil {
			return fiber.NewError(fiber.StatusBadRequest, "screenshot file is required")
		}

		// One pending or approved submission per calendar month.
		var exists int
		err = pool.QueryRow(c.Context(), `
			SELECT 1 FROM payments
			WHERE user_id=$1 AND status != $2 AND date_trunc('month', created_at) = date_trunc('month', NOW())
			LIMIT 1
		`, userID, models.PaymentRejected).Scan(&exists)
		if err == nil {
			return fiber.NewError(fiber.StatusConflict, "A payment for this month is already submitted or approved")
		} else if !errors.Is(err, sql.ErrNoRows) {
			return err
		}

		shotPath, err := uploads.Save(c, fh, "payment_screenshots")
		if err != nil {
			return err
		}

		reference := strings.TrimSpace(b.Reference)
		if reference == "" {
			reference = uuid.NewString()
		}

		p, err := scanPayment(pool.QueryRow(c.Context(), `
			INSERT INTO payments(user_id, screenshot, reference, notes, status)
			VALUES ($1,$2,$3,$4,$5)
			RETURNING `+paymentColumns+`
		`, userID, shotPath, reference, b.Notes, models.PaymentPending))
		if err != nil {
			return fmt.Errorf("failed to insert payment: %w", err)
		}

		invalidatePaid(c.Context(), rdb, userID, p.CreatedAt)
		return c.Status(fiber.StatusCreated).JSON(p)
	}
}

// ListMine - GET /payments/me (Student)
func ListMine(pool *pgxpool.Pool) fiber.Handler {
	return func(c *fiber.Ctx) error {
		userID, err := mw.GetUserIDFromClaims(c)
		if err != nil {
			return err
		}

		rows, err := pool.Query(c.Context(),
			`SELECT `+paymentColumns+` FROM payments WHERE user_id=$1 ORDER BY created_at DESC`, userID)
		if err != nil {
			return err
		}
		defer rows.Close()

		out := make([]models.Payment, 0, 16)
		for rows.Next() {
			p, err := scanPayment(rows)
			if err != nil {
				return err
			}
			out = append(out, p)
		}
		return c.JSON(out)
	}
}

// PaidStatus - GET /payments/status (Student)
// Backend-authoritative isPaid flag for the current calendar month.
func PaidStatus(pool *pgxpool.Pool, rdb *redis.Client) fiber.Handler {
	return func(c *fiber.Ctx) error {
		userID, err := mw.GetUserIDFromClaims(c)
		if err != nil {
			return err
		}

		now := time.Now()
		paid, err := IsPaid(c.Context(), pool, rdb, userID, now)
		if err != nil {
			return err
		}
		return c.JSON(models.PaidStatusResponse{IsPaid: paid, Month: models.MonthKey(now)})
	}
}

// ListAll - GET /payments?status=&limit=100&offset=0 (Admin)
func ListAll(pool *pgxpool.Pool) fiber.Handler {
	return func(c *fiber.Ctx) error {
		limit := clampInt(c.QueryInt("limit", 100), 1, 500)
		offset := maxInt(c.QueryInt("offset", 0), 0)
		statusFilter := c.Query("status", "")

		rows, err := pool.Query(c.Context(), `
			SELECT p.id, p.user_id, p.screenshot, p.reference, p.notes, p.status, p.created_at, p.updated_at,
			       u.name, u.email
			FROM payments p
			JOIN users u ON u.id = p.user_id
			ORDER BY p.created_at DESC
		`)
		if err != nil {
			return err
		}
		defer rows.Close()

		all := make([]models.Payment, 0, 64)
		for rows.Next() {
			var p models.Payment
			if err := rows.Scan(&p.ID, &p.UserID, &p.Screenshot, &p.Reference, &p.Notes, &p.Status,
				&p.CreatedAt, &p.UpdatedAt, &p.UserName, &p.UserEmail); err != nil {
				return err
			}
			if !models.MatchesFilter(statusFilter, string(p.Status)) {
				continue
			}
			all = append(all, p)
		}
		if err := rows.Err(); err != nil {
			return err
		}

		total := len(all)
		if offset > total {
			offset = total
		}
		end := offset + limit
		if end > total {
			end = total
		}
		return c.JSON(fiber.Map{"payments": all[offset:end], "total": total})
	}
}

// UpdateStatus - PUT /payments/:id/status (Admin)
// Approve or reject a submission; pending is not a settable target.
func UpdateStatus(pool *pgxpool.Pool, rdb *redis.Client) fiber.Handler {
	return func(c *fiber.Ctx) error {
		id, err := strconv.ParseInt(c.Params("id"), 10, 64)
		if err != nil || id <= 0 {
			return fiber.NewError(fiber.StatusBadRequest, "Invalid payment ID")
		}

		var b models.UpdatePaymentStatusRequest
		if err := c.BodyParser(&b); err != nil {
			return fiber.NewError(fiber.StatusBadRequest, "Bad JSON")
		}
		if err := validate.Struct(b); err != nil {
			return fiber.NewError(fiber.StatusBadRequest, "status must be 'approved' or 'rejected'")
		}

		var userID int64
		var createdAt time.Time
		err = pool.QueryRow(c.Context(), `
			UPDATE payments SET status=$1, updated_at=NOW() WHERE id=$2
			RETURNING user_id, created_at
		`, b.Status, id).Scan(&userID, &createdAt)
		if err != nil {
			if errors.Is(err, sql.ErrNoRows) {
				return fiber.NewError(fiber.StatusNotFound, "Payment not found")
			}
			return err
		}

		invalidatePaid(c.Context(), rdb, userID, createdAt)
		return c.SendStatus(fiber.StatusNoContent)
	}
}

func clampInt(v, lo, hi int) int {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}

func maxInt(a, b int) int {
	if a > b {
		return a
	}
	return b
}
