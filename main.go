package main

import (
	"context"
	"os"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/cors"
	"github.com/gofiber/fiber/v2/middleware/logger"
	"github.com/gofiber/fiber/v2/middleware/recover"
	"github.com/joho/godotenv"

	"library-app-backend/db"
	hAuth "library-app-backend/handlers/auth"
	hBooks "library-app-backend/handlers/books"
	hBorrows "library-app-backend/handlers/borrows"
	"library-app-backend/handlers/health"
	hPayments "library-app-backend/handlers/payments"
	hReviews "library-app-backend/handlers/reviews"
	hUsers "library-app-backend/handlers/users"
	"library-app-backend/loggers"
	mw "library-app-backend/middleware"
	"library-app-backend/models"
	"library-app-backend/workers"
)

func main() {
	_ = godotenv.Load()

	addr := os.Getenv("API_ADDR")
	if addr == "" {
		addr = ":8000"
	}

	pool := db.MustPool()
	defer pool.Close()
	rdb := db.MustRedis()
	defer rdb.Close()

	app := fiber.New()
	app.Use(recover.New())
	app.Use(logger.New())
	app.Use(cors.New(cors.Config{
		AllowOrigins: "*",
		AllowHeaders: "Origin, Content-Type, Accept, Authorization",
		AllowMethods: "GET,POST,HEAD,PUT,DELETE,PATCH",
	}))

	app.Get("/healthz", health.Health(pool, rdb))
	app.Static("/uploads", "uploads")

	// JWT Guards and Role Requirements
	jwtGuard := mw.JwtGuard(rdb)
	requireAdmin := mw.RequireRole(string(models.UserRoleAdmin))
	requireStudent := mw.RequireRole(string(models.UserRoleStudent))

	// --- Auth routes ---
	hAuth.Register(app.Group("/auth"), pool, rdb, jwtGuard)

	// --- Book catalog (reviews nest under /books/:book_id) ---
	booksGroup := app.Group("/books")
	hBooks.Register(booksGroup, pool, jwtGuard, requireAdmin)
	hReviews.Register(booksGroup, pool, jwtGuard, requireStudent)

	// --- Borrow lifecycle ---
	hBorrows.Register(app.Group("/borrows"), pool, rdb, jwtGuard, requireAdmin, requireStudent)

	// --- Membership payments ---
	hPayments.Register(app.Group("/payments"), pool, rdb, jwtGuard, requireAdmin, requireStudent)

	// --- Users & profiles ---
	hUsers.Register(app.Group("/users"), pool, rdb, jwtGuard, requireAdmin)

	// --- Background overdue scanner ---
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	workers.NewOverdueScanner(pool).Start(ctx)

	loggers.Logger.Infof("listening on %s", addr)
	loggers.Logger.Fatal(app.Listen(addr))
}
