// Package server assembles the Fiber application.
package server

import (
	"strings"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/cors"
	"github.com/gofiber/fiber/v2/middleware/recover"
	"github.com/sirupsen/logrus"
	"gorm.io/gorm"

	"konsinyasi-backend/internal/audit"
	"konsinyasi-backend/internal/auth"
	"konsinyasi-backend/internal/config"
	"konsinyasi-backend/internal/consignment"
	"konsinyasi-backend/internal/locking"
	"konsinyasi-backend/internal/models"
	"konsinyasi-backend/internal/product"
	"konsinyasi-backend/internal/reconcile"
	"konsinyasi-backend/internal/report"
	"konsinyasi-backend/internal/response"
	"konsinyasi-backend/internal/storage"
	"konsinyasi-backend/internal/store"
	"konsinyasi-backend/internal/transaction"
)

type Deps struct {
	Config  *config.Config
	Logger  *logrus.Logger
	DB      *gorm.DB
	Locker  locking.Locker
	Storage storage.Storage
	// ServeUploads exposes UploadPath at /uploads; set for local storage only.
	ServeUploads bool
}

func New(d Deps) *fiber.App {
	cfg := d.Config
	perPage := cfg.DefaultPerPage

	photos := storage.NewPhotoUploader(d.Storage, cfg.MaxUploadBytes, d.Logger)
	reconciler := reconcile.NewService(d.DB, d.Locker)

	stores := store.NewHandler(store.NewService(d.DB), photos, perPage)
	products := product.NewHandler(product.NewService(d.DB), photos, perPage)
	consignments := consignment.NewHandler(consignment.NewService(d.DB, d.Locker, reconciler), photos, d.Logger, perPage)
	transactions := transaction.NewHandler(transaction.NewService(d.DB, reconciler), photos, d.Logger, perPage)

	app := fiber.New(fiber.Config{
		ErrorHandler: response.ErrorHandler(d.Logger),
		BodyLimit:    int(cfg.MaxUploadBytes) + 1<<20,
	})

	app.Use(recover.New())
	app.Use(cors.New(cors.Config{
		AllowOrigins: strings.Join(cfg.Origins(), ","),
		AllowHeaders: "Origin, Content-Type, Accept, Authorization",
		AllowMethods: "GET,POST,PUT,DELETE,OPTIONS",
	}))

	if d.ServeUploads {
		app.Static("/uploads", cfg.UploadPath)
	}

	api := app.Group("/api")

	// Public auth
	api.Post("/register", auth.RegisterHandler(d.DB))
	api.Post("/login", auth.LoginHandler(d.DB, cfg))

	protected := api.Group("")
	protected.Use(auth.JWTMiddleware(cfg))
	adminOnly := auth.RequireRole(models.RoleAdmin)

	protected.Get("/user", auth.MeHandler(d.DB))
	protected.Post("/logout", auth.LogoutHandler())
	protected.Get("/audit-logs", adminOnly, audit.ListAuditLogsHandler(d.DB, perPage))
	protected.Get("/dashboard", report.DashboardHandler(d.DB))

	// Stores
	protected.Get("/stores", stores.List())
	protected.Get("/stores/list", stores.Options())
	protected.Post("/stores", stores.Create())
	protected.Get("/stores/:id", stores.Get())
	protected.Put("/stores/:id", stores.Update())
	protected.Delete("/stores/:id", adminOnly, stores.Delete())
	protected.Post("/stores/:id/photo", stores.UploadPhoto())

	// Products
	protected.Get("/products", products.List())
	protected.Get("/products/list", products.Options())
	protected.Post("/products", products.Create())
	protected.Get("/products/:id", products.Get())
	protected.Put("/products/:id", products.Update())
	protected.Delete("/products/:id", adminOnly, products.Delete())
	protected.Post("/products/:id/photo", products.UploadPhoto())

	// Consignments; fixed paths before /:id
	protected.Get("/consignments", consignments.List())
	protected.Get("/consignments/list", consignments.Options())
	protected.Get("/consignments/active", consignments.Active())
	protected.Get("/consignments/export", consignments.Export())
	protected.Post("/consignments", consignments.Create())
	protected.Get("/consignments/:id", consignments.Get())
	protected.Put("/consignments/:id", consignments.Update())
	protected.Delete("/consignments/:id", adminOnly, consignments.Delete())
	protected.Get("/consignments/:id/product-items", consignments.AvailableItems())
	protected.Get("/consignments/:id/transactions", consignments.Transactions())
	protected.Post("/consignments/:id/photo", consignments.UploadPhoto())

	// Transactions
	protected.Get("/transactions", transactions.List())
	protected.Get("/transactions/summary", transactions.Summary())
	protected.Post("/transactions", transactions.Create())
	protected.Get("/transactions/:id", transactions.Get())
	protected.Put("/transactions/:id", transactions.Update())
	protected.Delete("/transactions/:id", transactions.Delete())
	protected.Get("/transactions/:id/export", transactions.Export())
	protected.Post("/transactions/:id/photos/:kind", transactions.UploadPhoto())

	return app
}
