package auth

import (
	"crypto/sha256"
	"database/sql"
	"encoding/base64"
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v2"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"
	"golang.org/x/crypto/bcrypt"

	mw "library-app-backend/middleware"
	"library-app-backend/models"
	"library-app-backend/uploads"
)

var validate = validator.New()

func Register(g fiber.Router, pool *pgxpool.Pool, rdb *redis.Client, jwtGuard fiber.Handler) {
	// Public routes
	g.Post("/login", login(pool))
	g.Post("/register", registerStudent(pool)) // multipart: scalar fields + id_picture
	g.Post("/refresh", refresh(pool))

	// Protected routes
	g.Get("/me", jwtGuard, me(pool))
	g.Post("/logout", jwtGuard, logout(pool, rdb))
}

// ---------- Helper Functions (shared with other handler packages) ----------

// BcryptHash hashes a plain text password.
func BcryptHash(plain string) (string, error) {
	if plain == "" {
		return "", errors.New("password cannot be empty")
	}
	b, err := bcrypt.GenerateFromPassword([]byte(plain), bcrypt.DefaultCost)
	if err != nil {
		return "", fmt.Errorf("failed to hash password: %w", err)
	}
	return string(b), nil
}

// BcryptVerify compares a hashed password with a plain text password.
func BcryptVerify(hash, plain string) bool {
	if hash == "" {
		return false
	}
	return bcrypt.CompareHashAndPassword([]byte(hash), []byte(plain)) == nil
}

// sha256b64 hashes a string with SHA256 and base64-encodes it.
func sha256b64(s string) string {
	h := sha256.Sum256([]byte(s))
	return base64.StdEncoding.EncodeToString(h[:])
}

// ttlFromEnv parses a duration from an environment variable, or returns a default.
func ttlFromEnv(key string, def time.Duration) time.Duration {
	if v := os.Getenv(key); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			return d
		}
	}
	return def
}

// ---------- /auth/login ----------
func login(pool *pgxpool.Pool) fiber.Handler {
	return func(c *fiber.Ctx) error {
		var b models.LoginRequest
		if err := c.BodyParser(&b); err != nil {
			return fiber.NewError(fiber.StatusBadRequest, "Bad JSON")
		}
		if err := validate.Struct(b); err != nil {
			return fiber.NewError(fiber.StatusBadRequest, "Email and password required")
		}
		email := strings.ToLower(strings.TrimSpace(b.Email))

		var userID int64
		var hash sql.NullString
		var role models.UserRole
		err := pool.QueryRow(c.Context(),
			`SELECT id, password_hash, role FROM users WHERE lower(email)=$1`,
			email).Scan(&userID, &hash, &role)
		if err != nil {
			if errors.Is(err, sql.ErrNoRows) {
				return fiber.NewError(fiber.StatusUnauthorized, "Invalid credentials")
			}
			return err
		}
		if !hash.Valid || !BcryptVerify(hash.String, b.Password) {
			return fiber.NewError(fiber.StatusUnauthorized, "Invalid credentials")
		}

		return issueTokens(c, pool, userID, role)
	}
}

// Helper to issue JWT tokens after successful login
func issueTokens(c *fiber.Ctx, pool *pgxpool.Pool, userID int64, role models.UserRole) error {
	accessTTL := ttlFromEnv("ACCESS_TOKEN_TTL", 15*time.Minute)

	accessToken, err := mw.BuildAccessToken(userID, role, accessTTL)
	if err != nil {
		return fmt.Errorf("failed to build access token: %w", err)
	}

	response := models.LoginResponse{
		AccessToken: accessToken,
		ExpiresIn:   int(accessTTL.Seconds()),
		Role:        role,
		UserID:      userID,
	}

	refreshTTL := ttlFromEnv("REFRESH_TOKEN_TTL", 30*24*time.Hour)
	rawRefreshToken := base64.StdEncoding.EncodeToString([]byte(strconv.FormatInt(time.Now().UnixNano(), 10) + "|" + strconv.FormatInt(userID, 10) + "|" + string(role)))
	refreshHash := sha256b64(rawRefreshToken)

	_, err = pool.Exec(c.Context(), `
		INSERT INTO auth_sessions(user_id, refresh_token_hash, user_agent, ip, expires_at)
		VALUES ($1,$2,$3,$4, NOW() + $5::interval)
	`, userID, refreshHash, c.Get("User-Agent"), c.IP(), refreshTTL.String())
	if err != nil {
		return fmt.Errorf("failed to store refresh token: %w", err)
	}
	response.RefreshToken = &rawRefreshToken

	return c.JSON(response)
}

// ---------- /auth/register (student self-registration, multipart) ----------
// New accounts start with account_status = pending; an admin must approve
// them before any borrowing is possible.
func registerStudent(pool *pgxpool.Pool) fiber.Handler {
	return func(c *fiber.Ctx) error {
		var b models.RegisterStudentRequest
		if err := c.BodyParser(&b); err != nil {
			return fiber.NewError(fiber.StatusBadRequest, "Bad form data")
		}
		if err := validate.Struct(b); err != nil {
			return fiber.NewError(fiber.StatusBadRequest, "Name, valid email, student ID, and password (min 8 chars) are required")
		}

		email := strings.ToLower(strings.TrimSpace(b.Email))
		name := strings.TrimSpace(b.Name)
		studentID := strings.TrimSpace(b.StudentID)

		hashedPassword, err := BcryptHash(b.Password)
		if err != nil {
			return err
		}

		var exists int
		err = pool.QueryRow(c.Context(), `SELECT 1 FROM users WHERE lower(email) = $1`, email).Scan(&exists)
		if err == nil {
			return fiber.NewError(fiber.StatusConflict, "Email already registered. Please login.")
		} else if !errors.Is(err, sql.ErrNoRows) {
			return fmt.Errorf("failed to check existing email: %w", err)
		}

		// ID picture is required at registration so admins can verify the
		// student before approving the account.
		fh, err := c.FormFile("id_picture")
		if err != nil {
			return fiber.NewError(fiber.StatusBadRequest, "id_picture file is required")
		}
		picPath, err := uploads.Save(c, fh, "id_pictures")
		if err != nil {
			return err
		}

		var dept *string
		if d := strings.TrimSpace(b.Department); d != "" {
			dept = &d
		}

		var userID int64
		err = pool.QueryRow(c.Context(), `
			INSERT INTO users(name, email, password_hash, role, account_status, student_id, department, id_picture, monthly_limit)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
			RETURNING id
		`, name, email, hashedPassword, models.UserRoleStudent, models.AccountPending,
			studentID, dept, picPath, models.DefaultMonthlyLimit).Scan(&userID)
		if err != nil {
			if strings.Contains(err.Error(), "users_student_id_key") {
				return fiber.NewError(fiber.StatusConflict, "Student ID already registered.")
			}
			return fmt.Errorf("failed to insert new user: %w", err)
		}

		return c.Status(fiber.StatusCreated).JSON(fiber.Map{
			"message": "Registration submitted. An admin will review your account.",
			"id":      userID,
		})
	}
}

// ---------- /auth/refresh ----------
func refresh(pool *pgxpool.Pool) fiber.Handler {
	return func(c *fiber.Ctx) error {
		var b models.RefreshRequest
		if err := c.BodyParser(&b); err != nil {
			return fiber.NewError(fiber.StatusBadRequest, "Bad JSON")
		}
		if strings.TrimSpace(b.RefreshToken) == "" {
			return fiber.NewError(fiber.StatusBadRequest, "Refresh token required")
		}

		hashR := sha256b64(b.RefreshToken)
		var userID int64
		var role models.UserRole
		var expires time.Time
		var revoked *time.Time
		err := pool.QueryRow(c.Context(), `
			SELECT s.user_id, u.role, s.expires_at, s.revoked_at
			FROM auth_sessions s
			JOIN users u ON u.id = s.user_id
			WHERE s.refresh_token_hash = $1
			LIMIT 1
		`, hashR).Scan(&userID, &role, &expires, &revoked)
		if err != nil {
			if errors.Is(err, sql.ErrNoRows) {
				return fiber.NewError(fiber.StatusUnauthorized, "Invalid refresh token")
			}
			return err
		}
		if revoked != nil || time.Now().After(expires) {
			if revoked == nil {
				_, _ = pool.Exec(c.Context(), `UPDATE auth_sessions SET revoked_at=NOW() WHERE refresh_token_hash=$1`, hashR)
			}
			return fiber.NewError(fiber.StatusUnauthorized, "Expired or revoked refresh token")
		}

		// Rotate refresh: revoke old & issue new
		_, _ = pool.Exec(c.Context(), `UPDATE auth_sessions SET revoked_at=NOW() WHERE refresh_token_hash=$1`, hashR)

		return issueTokens(c, pool, userID, role)
	}
}

// ---------- /auth/me ----------
func me(pool *pgxpool.Pool) fiber.Handler {
	return func(c *fiber.Ctx) error {
		cls, _ := c.Locals("claims").(*mw.Claims)
		if cls == nil {
			return fiber.NewError(fiber.StatusUnauthorized)
		}

		var status models.AccountStatus
		err := pool.QueryRow(c.Context(), `SELECT account_status FROM users WHERE id=$1`, cls.Sub).Scan(&status)
		if err != nil {
			if errors.Is(err, sql.ErrNoRows) {
				return fiber.NewError(fiber.StatusUnauthorized, "Account no longer exists")
			}
			return err
		}
		return c.JSON(fiber.Map{"user_id": cls.Sub, "role": cls.Role, "account_status": status})
	}
}

// ---------- /auth/logout ----------
// Revokes both sides of the session: the access token jti goes on the redis
// denylist and the refresh token row is revoked.
func logout(pool *pgxpool.Pool, rdb *redis.Client) fiber.Handler {
	return func(c *fiber.Ctx) error {
		cls, _ := c.Locals("claims").(*mw.Claims)
		mw.RevokeToken(c, rdb, cls)

		var b models.RefreshRequest
		if c.BodyParser(&b) == nil && strings.TrimSpace(b.RefreshToken) != "" {
			_, _ = pool.Exec(c.Context(), `UPDATE auth_sessions SET revoked_at=NOW() WHERE refresh_token_hash=$1`,
				sha256b64(b.RefreshToken))
		}
		return c.SendStatus(fiber.StatusNoContent)
	}
}
