package users

import (
	"database/sql"
	"errors"
	"strconv"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v2"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"

	hAuth "library-app-backend/handlers/auth" // For bcrypt functions
	hPayments "library-app-backend/handlers/payments"
	mw "library-app-backend/middleware"
	"library-app-backend/models"
)

var validate = validator.New()

// Register mounts routes under /users
func Register(g fiber.Router, pool *pgxpool.Pool, rdb *redis.Client, jwtGuard fiber.Handler, requireAdmin fiber.Handler) {
	// Own profile (any authenticated user); static paths before /:id
	g.Get("/me", jwtGuard, GetMe(pool, rdb))
	g.Put("/me", jwtGuard, UpdateMe(pool))

	// Admin user management
	g.Get("/", jwtGuard, requireAdmin, List(pool))
	g.Get("/:id", jwtGuard, requireAdmin, Get(pool))
	g.Put("/:id/status", jwtGuard, requireAdmin, UpdateStatus(pool))
	g.Put("/:id", jwtGuard, requireAdmin, Update(pool))
	g.Delete("/:id", jwtGuard, requireAdmin, Del(pool))
}

const userColumns = `id, name, email, role, account_status, student_id, department, id_picture, monthly_limit, created_at`

func scanUser(row interface{ Scan(dest ...any) error }) (models.User, error) {
	var u models.User
	err := row.Scan(&u.ID, &u.Name, &u.Email, &u.Role, &u.AccountStatus, &u.StudentID,
		&u.Department, &u.IDPicture, &u.MonthlyLimit, &u.CreatedAt)
	return u, err
}

// attachBorrowCounters fills the current/total borrow counts for one user.
func attachBorrowCounters(c *fiber.Ctx, pool *pgxpool.Pool, u *models.User) error {
	return pool.QueryRow(c.Context(), `
		SELECT count(*) FILTER (WHERE status != $2), count(*)
		FROM borrow_records WHERE user_id=$1
	`, u.ID, models.BorrowReturned).Scan(&u.CurrentBorrows, &u.TotalBorrows)
}

// GetMe - GET /users/me
// The profile page payload: identity, approval state, borrow counters, and
// the backend-authoritative paid flag for the current month.
func GetMe(pool *pgxpool.Pool, rdb *redis.Client) fiber.Handler {
	return func(c *fiber.Ctx) error {
		userID, err := mw.GetUserIDFromClaims(c)
		if err != nil {
			return err
		}

		u, err := scanUser(pool.QueryRow(c.Context(), `SELECT `+userColumns+` FROM users WHERE id=$1`, userID))
		if err != nil {
			if errors.Is(err, sql.ErrNoRows) {
				return fiber.NewError(fiber.StatusNotFound, "User not found")
			}
			return err
		}
		if err := attachBorrowCounters(c, pool, &u); err != nil {
			return err
		}
		u.IsPaid, err = hPayments.IsPaid(c.Context(), pool, rdb, u.ID, time.Now())
		if err != nil {
			return err
		}
		return c.JSON(u)
	}
}

// UpdateMe - PUT /users/me
func UpdateMe(pool *pgxpool.Pool) fiber.Handler {
	return func(c *fiber.Ctx) error {
		userID, err := mw.GetUserIDFromClaims(c)
		if err != nil {
			return err
		}

		var b models.UpdateProfileRequest
		if err := c.BodyParser(&b); err != nil {
			return fiber.NewError(fiber.StatusBadRequest, "Bad JSON")
		}
		if err := validate.Struct(b); err != nil {
			return fiber.NewError(fiber.StatusBadRequest, "Password must be at least 8 characters")
		}

		sets := []string{}
		args := []any{}
		i := 1

		if b.Name != nil {
			name := strings.TrimSpace(*b.Name)
			if name == "" {
				return fiber.NewError(fiber.StatusBadRequest, "Name cannot be empty")
			}
			sets = append(sets, "name=$"+itoa(i))
			args = append(args, name)
			i++
		}
		if b.Department != nil {
			sets = append(sets, "department=$"+itoa(i))
			args = append(args, nullable(strings.TrimSpace(*b.Department)))
			i++
		}
		if b.Password != nil {
			hash, err := hAuth.BcryptHash(*b.Password)
			if err != nil {
				return err
			}
			sets = append(sets, "password_hash=$"+itoa(i))
			args = append(args, hash)
			i++
		}

		if len(sets) == 0 {
			return fiber.NewError(fiber.StatusBadRequest, "No fields to update")
		}
		args = append(args, userID)

		_, err = pool.Exec(c.Context(),
			`UPDATE users SET `+strings.Join(sets, ", ")+` WHERE id=$`+itoa(i), args...)
		if err != nil {
			return err
		}
		return c.SendStatus(fiber.StatusNoContent)
	}
}

// List - GET /users?q=&status=&limit=100&offset=0 (Admin)
func List(pool *pgxpool.Pool) fiber.Handler {
	return func(c *fiber.Ctx) error {
		limit := clampInt(c.QueryInt("limit", 100), 1, 500)
		offset := maxInt(c.QueryInt("offset", 0), 0)
		q := c.Query("q", "")
		statusFilter := c.Query("status", "")

		rows, err := pool.Query(c.Context(),
			`SELECT `+userColumns+` FROM users WHERE role=$1 ORDER BY name`, models.UserRoleStudent)
		if err != nil {
			return err
		}
		defer rows.Close()

		visible := make([]models.User, 0, 64)
		for rows.Next() {
			u, err := scanUser(rows)
			if err != nil {
				return err
			}
			if !models.MatchesQuery(q, u.Name, u.Email, derefString(u.StudentID)) {
				continue
			}
			if !models.MatchesFilter(statusFilter, string(u.AccountStatus)) {
				continue
			}
			visible = append(visible, u)
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
		return c.JSON(fiber.Map{"users": visible[offset:end], "total": total})
	}
}

// Get - GET /users/:id (Admin)
func Get(pool *pgxpool.Pool) fiber.Handler {
	return func(c *fiber.Ctx) error {
		id, err := strconv.ParseInt(c.Params("id"), 10, 64)
		if err != nil || id <= 0 {
			return fiber.NewError(fiber.StatusBadRequest, "Invalid user ID")
		}

		u, err := scanUser(pool.QueryRow(c.Context(), `SELECT `+userColumns+` FROM users WHERE id=$1`, id))
		if err != nil {
			if errors.Is(err, sql.ErrNoRows) {
				return fiber.NewError(fiber.StatusNotFound, "User not found")
			}
			return err
		}
		if err := attachBorrowCounters(c, pool, &u); err != nil {
			return err
		}
		return c.JSON(u)
	}
}

// UpdateStatus - PUT /users/:id/status (Admin)
// Approves or rejects a student registration.
func UpdateStatus(pool *pgxpool.Pool) fiber.Handler {
	return func(c *fiber.Ctx) error {
		id, err := strconv.ParseInt(c.Params("id"), 10, 64)
		if err != nil || id <= 0 {
			return fiber.NewError(fiber.StatusBadRequest, "Invalid user ID")
		}

		var b models.UpdateAccountStatusRequest
		if err := c.BodyParser(&b); err != nil {
			return fiber.NewError(fiber.StatusBadRequest, "Bad JSON")
		}
		if err := validate.Struct(b); err != nil {
			return fiber.NewError(fiber.StatusBadRequest, "status must be 'approved' or 'rejected'")
		}

		cmd, err := pool.Exec(c.Context(),
			`UPDATE users SET account_status=$1 WHERE id=$2 AND role=$3`, b.Status, id, models.UserRoleStudent)
		if err != nil {
			return err
		}
		if cmd.RowsAffected() == 0 {
			return fiber.NewError(fiber.StatusNotFound, "Student not found")
		}
		return c.SendStatus(fiber.StatusNoContent)
	}
}

// Update - PUT /users/:id (Admin)
func Update(pool *pgxpool.Pool) fiber.Handler {
	return func(c *fiber.Ctx) error {
		id, err := strconv.ParseInt(c.Params("id"), 10, 64)
		if err != nil || id <= 0 {
			return fiber.NewError(fiber.StatusBadRequest, "Invalid user ID")
		}

		var b models.UpdateUserRequest
		if err := c.BodyParser(&b); err != nil {
			return fiber.NewError(fiber.StatusBadRequest, "Bad JSON")
		}
		if err := validate.Struct(b); err != nil {
			return fiber.NewError(fiber.StatusBadRequest, "monthly_limit cannot be negative")
		}

		sets := []string{}
		args := []any{}
		i := 1

		if b.Name != nil {
			name := strings.TrimSpace(*b.Name)
			if name == "" {
				return fiber.NewError(fiber.StatusBadRequest, "Name cannot be empty")
			}
			sets = append(sets, "name=$"+itoa(i))
			args = append(args, name)
			i++
		}
		if b.Department != nil {
			sets = append(sets, "department=$"+itoa(i))
			args = append(args, nullable(strings.TrimSpace(*b.Department)))
			i++
		}
		if b.StudentID != nil {
			studentID := strings.TrimSpace(*b.StudentID)
			if studentID != "" {
				var existing int64
				err = pool.QueryRow(c.Context(),
					`SELECT id FROM users WHERE student_id=$1 AND id != $2`, studentID, id).Scan(&existing)
				if err == nil {
					return fiber.NewError(fiber.StatusConflict, "Student ID already in use by another user")
				}
				if !errors.Is(err, sql.ErrNoRows) {
					return err
				}
			}
			sets = append(sets, "student_id=$"+itoa(i))
			args = append(args, nullable(studentID))
			i++
		}
		if b.MonthlyLimit != nil {
			sets = append(sets, "monthly_limit=$"+itoa(i))
			args = append(args, *b.MonthlyLimit)
			i++
		}

		if len(sets) == 0 {
			return fiber.NewError(fiber.StatusBadRequest, "No fields to update")
		}
		args = append(args, id)

		cmd, err := pool.Exec(c.Context(),
			`UPDATE users SET `+strings.Join(sets, ", ")+` WHERE id=$`+itoa(i), args...)
		if err != nil {
			if strings.Contains(err.Error(), "users_student_id_key") {
				return fiber.NewError(fiber.StatusConflict, "Student ID already in use by another user")
			}
			return err
		}
		if cmd.RowsAffected() == 0 {
			return fiber.NewError(fiber.StatusNotFound, "User not found")
		}
		return c.SendStatus(fiber.StatusNoContent)
	}
}

// Del - DELETE /users/:id (Admin)
func Del(pool *pgxpool.Pool) fiber.Handler {
	return func(c *fiber.Ctx) error {
		id, err := strconv.ParseInt(c.Params("id"), 10, 64)
		if err != nil || id <= 0 {
			return fiber.NewError(fiber.StatusBadRequest, "Invalid user ID")
		}

		var open int
		err = pool.QueryRow(c.Context(), `
			SELECT count(*) FROM borrow_records WHERE user_id=$1 AND status != $2
		`, id, models.BorrowReturned).Scan(&open)
		if err != nil {
			return err
		}
		if open > 0 {
			return fiber.NewError(fiber.StatusConflict, "User has unreturned books and cannot be deleted")
		}

		cmd, err := pool.Exec(c.Context(), `DELETE FROM users WHERE id=$1 AND role=$2`, id, models.UserRoleStudent)
		if err != nil {
			return err
		}
		if cmd.RowsAffected() == 0 {
			return fiber.NewError(fiber.StatusNotFound, "Student not found")
		}
		return c.SendStatus(fiber.StatusNoContent)
	}
}

func derefString(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}

func nullable(s string) *string {
	if s == "" {
		return nil
	}
	return &s
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

func itoa(i int) string { return strconv.FormatInt(int64(i), 10) }
