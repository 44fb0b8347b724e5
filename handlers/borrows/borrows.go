package borrows

import (
	"database/sql"
	"encoding/csv"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v2"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"

	hPayments "library-app-backend/handlers/payments" // For the paid-month check
	mw "library-app-backend/middleware"
	"library-app-backend/models"
)

var validate = validator.New()

// Register mounts routes under /borrows
func Register(g fiber.Router, pool *pgxpool.Pool, rdb *redis.Client, jwtGuard fiber.Handler, requireAdmin fiber.Handler, requireStudent fiber.Handler) {
	// Admin static paths before parameter paths
	g.Get("/export_csv", jwtGuard, requireAdmin, ExportCSV(pool))
	g.Get("/", jwtGuard, requireAdmin, ListAll(pool))

	// Student routes
	g.Post("/", jwtGuard, requireStudent, Create(pool, rdb))
	g.Get("/me", jwtGuard, requireStudent, ListMine(pool))
	g.Post("/:id/request-return", jwtGuard, requireStudent, RequestReturn(pool))

	// Admin review of return requests
	g.Post("/:id/approve-return", jwtGuard, requireAdmin, ApproveReturn(pool))
	g.Post("/:id/decline-return", jwtGuard, requireAdmin, DeclineReturn(pool))
	g.Post("/:id/mark-returned", jwtGuard, requireAdmin, MarkReturned(pool))
}

const recordColumns = `
	br.id, br.user_id, br.book_id, br.status, br.borrow_date, br.due_date, br.updated_at,
	b.title, b.author, b.image, u.name, u.student_id
`

const recordJoins = `
	FROM borrow_records br
	JOIN books b ON b.id = br.book_id
	JOIN users u ON u.id = br.user_id
`

func scanRecord(row interface{ Scan(dest ...any) error }) (models.BorrowRecord, error) {
	var r models.BorrowRecord
	err := row.Scan(&r.ID, &r.UserID, &r.BookID, &r.Status, &r.BorrowDate, &r.DueDate, &r.UpdatedAt,
		&r.BookTitle, &r.BookAuthor, &r.BookImage, &r.UserName, &r.StudentID)
	return r, err
}

// Create - POST /borrows (Student)
// Runs the four-step eligibility gate before any write. The first failing
// gate wins and nothing is mutated; only a fully passed gate issues the
// borrow, decrements the copy count, and reports the remaining allowance.
func Create(pool *pgxpool.Pool, rdb *redis.Client) fiber.Handler {
	return func(c *fiber.Ctx) error {
		userID, err := mw.GetUserIDFromClaims(c)
		if err != nil {
			return err
		}

		var b models.BorrowRequest
		if err := c.BodyParser(&b); err != nil {
			return fiber.NewError(fiber.StatusBadRequest, "Bad JSON")
		}
		if err := validate.Struct(b); err != nil {
			return fiber.NewError(fiber.StatusBadRequest, "book_id is required")
		}

		now := time.Now()

		var role models.UserRole
		var accountStatus models.AccountStatus
		var monthlyLimit int
		err = pool.QueryRow(c.Context(),
			`SELECT role, account_status, monthly_limit FROM users WHERE id=$1`, userID).
			Scan(&role, &accountStatus, &monthlyLimit)
		if err != nil {
			if errors.Is(err, sql.ErrNoRows) {
				return fiber.NewError(fiber.StatusUnauthorized, "Account no longer exists")
			}
			return err
		}

		paid, err := hPayments.IsPaid(c.Context(), pool, rdb, userID, now)
		if err != nil {
			return err
		}

		var borrowedThisMonth int
		err = pool.QueryRow(c.Context(), `
			SELECT count(*) FROM borrow_records
			WHERE user_id=$1 AND date_trunc('month', borrow_date) = date_trunc('month', $2::timestamptz)
		`, userID, now).Scan(&borrowedThisMonth)
		if err != nil {
			return err
		}

		var availableCopies int
		err = pool.QueryRow(c.Context(),
			`SELECT available_copies FROM books WHERE id=$1`, b.BookID).Scan(&availableCopies)
		if err != nil {
			if errors.Is(err, sql.ErrNoRows) {
				return fiber.NewError(fiber.StatusNotFound, "Book not found")
			}
			return err
		}

		denial := models.CheckBorrow(models.BorrowEligibility{
			IsPaid:            paid,
			IsApprovedStudent: role == models.UserRoleStudent && accountStatus == models.AccountApproved,
			BorrowedThisMonth: borrowedThisMonth,
			MonthlyLimit:      monthlyLimit,
			AvailableCopies:   availableCopies,
		})
		if denial != models.DenialNone {
			return fiber.NewError(fiber.StatusConflict, denial.Message())
		}

		tx, err := pool.Begin(c.Context())
		if err != nil {
			return err
		}
		defer tx.Rollback(c.Context())

		// Guarded decrement so two borrows of the last copy cannot both win.
		cmd, err := tx.Exec(c.Context(),
			`UPDATE books SET available_copies = available_copies - 1 WHERE id=$1 AND available_copies > 0`, b.BookID)
		if err != nil {
			return err
		}
		if cmd.RowsAffected() == 0 {
			return fiber.NewError(fiber.StatusConflict, models.DenialUnavailable.Message())
		}

		var recordID int64
		err = tx.QueryRow(c.Context(), `
			INSERT INTO borrow_records(user_id, book_id, status, borrow_date, due_date)
			VALUES ($1,$2,$3,$4,$5)
			RETURNING id
		`, userID, b.BookID, models.BorrowActive, now, models.DueDate(now)).Scan(&recordID)
		if err != nil {
			return fmt.Errorf("failed to insert borrow record: %w", err)
		}
		if err := tx.Commit(c.Context()); err != nil {
			return err
		}

		rec, err := scanRecord(pool.QueryRow(c.Context(),
			`SELECT `+recordColumns+recordJoins+` WHERE br.id=$1`, recordID))
		if err != nil {
			return err
		}

		return c.Status(fiber.StatusCreated).JSON(models.BorrowResponse{
			Record:             rec,
			RemainingThisMonth: models.RemainingThisMonth(monthlyLimit, borrowedThisMonth),
		})
	}
}

// ListMine - GET /borrows/me (Student)
func ListMine(pool *pgxpool.Pool) fiber.Handler {
	return func(c *fiber.Ctx) error {
		userID, err := mw.GetUserIDFromClaims(c)
		if err != nil {
			return err
		}

		rows, err := pool.Query(c.Context(),
			`SELECT `+recordColumns+recordJoins+` WHERE br.user_id=$1 ORDER BY br.borrow_date DESC`, userID)
		if err != nil {
			return err
		}
		defer rows.Close()

		out := make([]models.BorrowRecord, 0, 16)
		for rows.Next() {
			r, err := scanRecord(rows)
			if err != nil {
				return err
			}
			out = append(out, r)
		}
		return c.JSON(out)
	}
}

// ListAll - GET /borrows?q=&status=&limit=100&offset=0 (Admin)
func ListAll(pool *pgxpool.Pool) fiber.Handler {
	return func(c *fiber.Ctx) error {
		limit := clampInt(c.QueryInt("limit", 100), 1, 500)
		offset := maxInt(c.QueryInt("offset", 0), 0)
		q := c.Query("q", "")
		statusFilter := c.Query("status", "")

		rows, err := pool.Query(c.Context(),
			`SELECT `+recordColumns+recordJoins+` ORDER BY br.borrow_date DESC`)
		if err != nil {
			return err
		}
		defer rows.Close()

		visible := make([]models.BorrowRecord, 0, 64)
		for rows.Next() {
			r, err := scanRecord(rows)
			if err != nil {
				return err
			}
			if !models.MatchesQuery(q, r.BookTitle, r.BookAuthor, r.UserName, derefString(r.StudentID)) {
				continue
			}
			if !models.MatchesFilter(statusFilter, string(r.Status)) {
				continue
			}
			visible = append(visible, r)
		}
		if err := rows.Err(); err != nil {
			return err
		}

		total := len(visible)
		if offset > total {
			offset = total
		}
		end := offset + limit
		if end > total {
			end = total
		}
		return c.JSON(fiber.Map{"records": visible[offset:end], "total": total})
	}
}

// RequestReturn - POST /borrows/:id/request-return (Student)
// Allowed from active and overdue only. A record already pending cannot be
// re-requested; returned is terminal.
func RequestReturn(pool *pgxpool.Pool) fiber.Handler {
	return func(c *fiber.Ctx) error {
		userID, err := mw.GetUserIDFromClaims(c)
		if err != nil {
			return err
		}
		id, err := strconv.ParseInt(c.Params("id"), 10, 64)
		if err != nil || id <= 0 {
			return fiber.NewError(fiber.StatusBadRequest, "Invalid borrow record ID")
		}

		var status models.BorrowStatus
		err = pool.QueryRow(c.Context(),
			`SELECT status FROM borrow_records WHERE id=$1 AND user_id=$2`, id, userID).Scan(&status)
		if err != nil {
			if errors.Is(err, sql.ErrNoRows) {
				return fiber.NewError(fiber.StatusNotFound, "Borrow record not found")
			}
			return err
		}

		if !models.CanRequestReturn(status) {
			switch status {
			case models.BorrowPending:
				return fiber.NewError(fiber.StatusConflict, "Return already requested and pending approval")
			default:
				return fiber.NewError(fiber.StatusConflict, "This record is already returned")
			}
		}

		_, err = pool.Exec(c.Context(),
			`UPDATE borrow_records SET status=$1, updated_at=NOW() WHERE id=$2`, models.BorrowPending, id)
		if err != nil {
			return err
		}
		return c.JSON(fiber.Map{"message": "Return requested. An admin will review it."})
	}
}

// transitionReturn closes a record and restores the book copy in one
// transaction.
func transitionReturn(c *fiber.Ctx, pool *pgxpool.Pool, id int64) error {
	tx, err := pool.Begin(c.Context())
	if err != nil {
		return err
	}
	defer tx.Rollback(c.Context())

	var bookID int64
	err = tx.QueryRow(c.Context(), `
		UPDATE borrow_records SET status=$1, updated_at=NOW() WHERE id=$2
		RETURNING book_id
	`, models.BorrowReturned, id).Scan(&bookID)
	if err != nil {
		return err
	}
	_, err = tx.Exec(c.Context(), `
		UPDATE books SET available_copies = LEAST(available_copies + 1, total_copies) WHERE id=$1
	`, bookID)
	if err != nil {
		return err
	}
	return tx.Commit(c.Context())
}

// loadStatus fetches a record's current status for transition checks.
func loadStatus(c *fiber.Ctx, pool *pgxpool.Pool, id int64) (models.BorrowStatus, error) {
	var status models.BorrowStatus
	err := pool.QueryRow(c.Context(), `SELECT status FROM borrow_records WHERE id=$1`, id).Scan(&status)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return "", fiber.NewError(fiber.StatusNotFound, "Borrow record not found")
		}
		return "", err
	}
	return status, nil
}

// ApproveReturn - POST /borrows/:id/approve-return (Admin)
func ApproveReturn(pool *pgxpool.Pool) fiber.Handler {
	return func(c *fiber.Ctx) error {
		id, err := strconv.ParseInt(c.Params("id"), 10, 64)
		if err != nil || id <= 0 {
			return fiber.NewError(fiber.StatusBadRequest, "Invalid borrow record ID")
		}

		status, err := loadStatus(c, pool, id)
		if err != nil {
			return err
		}
		if status != models.BorrowPending {
			return fiber.NewError(fiber.StatusConflict, "Only a pending return request can be approved")
		}

		if err := transitionReturn(c, pool, id); err != nil {
			return err
		}
		return c.JSON(fiber.Map{"message": "Return approved"})
	}
}

// DeclineReturn - POST /borrows/:id/decline-return (Admin)
// Reverts a pending request to active; no other field changes.
func DeclineReturn(pool *pgxpool.Pool) fiber.Handler {
	return func(c *fiber.Ctx) error {
		id, err := strconv.ParseInt(c.Params("id"), 10, 64)
		if err != nil || id <= 0 {
			return fiber.NewError(fiber.StatusBadRequest, "Invalid borrow record ID")
		}

		status, err := loadStatus(c, pool, id)
		if err != nil {
			return err
		}
		if status != models.BorrowPending {
			return fiber.NewError(fiber.StatusConflict, "Only a pending return request can be declined")
		}

		_, err = pool.Exec(c.Context(),
			`UPDATE borrow_records SET status=$1, updated_at=NOW() WHERE id=$2`, models.BorrowActive, id)
		if err != nil {
			return err
		}
		return c.JSON(fiber.Map{"message": "Return request declined; record is active again"})
	}
}

// MarkReturned - POST /borrows/:id/mark-returned (Admin)
// Closes an overdue or pending record directly. An active record with no
// outstanding return request is refused with no state change, so a return
// the student never asked for cannot be recorded.
func MarkReturned(pool *pgxpool.Pool) fiber.Handler {
	return func(c *fiber.Ctx) error {
		id, err := strconv.ParseInt(c.Params("id"), 10, 64)
		if err != nil || id <= 0 {
			return fiber.NewError(fiber.StatusBadRequest, "Invalid borrow record ID")
		}

		status, err := loadStatus(c, pool, id)
		if err != nil {
			return err
		}
		if !models.MarkReturnedAllowed(status) {
			switch status {
			case models.BorrowActive:
				return fiber.NewError(fiber.StatusConflict, "The student has not requested a return for this record")
			default:
				return fiber.NewError(fiber.StatusConflict, "This record is already returned")
			}
		}

		if err := transitionReturn(c, pool, id); err != nil {
			return err
		}
		return c.JSON(fiber.Map{"message": "Record marked as returned"})
	}
}

// ExportCSV - GET /borrows/export_csv (Admin)
func ExportCSV(pool *pgxpool.Pool) fiber.Handler {
	return func(c *fiber.Ctx) error {
		rows, err := pool.Query(c.Context(),
			`SELECT `+recordColumns+recordJoins+` ORDER BY br.borrow_date DESC`)
		if err != nil {
			return err
		}
		defer rows.Close()

		c.Set(fiber.HeaderContentType, "text/csv")
		c.Set(fiber.HeaderContentDisposition, `attachment; filename="borrow_records.csv"`)

		w := csv.NewWriter(c.Response().BodyWriter())
		_ = w.Write([]string{"id", "student", "student_id", "book", "author", "status", "borrow_date", "due_date"})
		for rows.Next() {
			r, err := scanRecord(rows)
			if err != nil {
				return err
			}
			_ = w.Write([]string{
				strconv.FormatInt(r.ID, 10),
				r.UserName,
				derefString(r.StudentID),
				r.BookTitle,
				r.BookAuthor,
				string(r.Status),
				r.BorrowDate.Format(time.RFC3339),
				r.DueDate.Format(time.RFC3339),
			})
		}
		w.Flush()
		return w.Error()
	}
}

func derefString(s *string) string {
	if s == nil {
		return ""
	}
	return *s
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
