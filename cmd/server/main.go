package main

import (
	"context"
	"database/sql"
	"log"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/cors"
	"github.com/joho/godotenv"
	"github.com/uptrace/bun"
	"github.com/uptrace/bun/dialect/sqlitedialect"
	"github.com/uptrace/bun/driver/sqliteshim"
	"golang.org/x/time/rate"

	accounts "github.com/campuskit/go-accounts"
	"github.com/campuskit/go-accounts/social/providers/google"
)

func main() {
	if err := godotenv.Load(); err != nil {
		log.Println("No .env file found, relying on environment variables")
	}

	cfg, err := accounts.LoadConfig()
	if err != nil {
		log.Fatalf("load config: %v", err)
	}

	db, err := openDatabase(cfg.DSN)
	if err != nil {
		log.Fatalf("open database: %v", err)
	}
	defer db.Close()

	if err := createSchema(context.Background(), db); err != nil {
		log.Fatalf("create schema: %v", err)
	}

	repo := accounts.NewRepositoryManager(db, cfg.CodeTTL)
	repo.MustValidate()

	mailer := accounts.NewSMTPMailer(cfg.SMTP)
	notifier := accounts.NewNotifier(mailer)

	tokens := accounts.NewTokenService(cfg, nil)
	provider := accounts.NewUserProvider(repo.Users())
	auther := accounts.NewAuthenticator(provider, tokens)

	controller := accounts.NewAuthController(
		accounts.WithControllerRepo(repo),
		accounts.WithControllerAuther(auther),
		accounts.WithControllerNotifier(notifier),
	)

	app := fiber.New()
	app.Use(cors.New(cors.Config{
		AllowOrigins: "*",
		AllowHeaders: "Origin, Content-Type, Accept, Authorization",
		AllowMethods: "GET, POST, PATCH, DELETE, OPTIONS",
	}))
	limiter := accounts.NewRateLimiter(rate.Limit(5), 10)
	defer limiter.Close()
	app.Use(limiter.Handler())

	var socialRoutes []accounts.SocialRoutes
	if cfg.Google.ClientID != "" {
		googleProvider := google.New(google.Config{
			ClientID:     cfg.Google.ClientID,
			ClientSecret: cfg.Google.ClientSecret,
			CallbackURL:  cfg.Google.CallbackURL,
		})
		socialRoutes = append(socialRoutes, accounts.NewSocialController(googleProvider, repo, tokens))
	}

	accounts.RegisterRoutes(app, controller, tokens, socialRoutes...)

	log.Printf("Server running on %s", cfg.HTTPAddr)
	if err := app.Listen(cfg.HTTPAddr); err != nil {
		log.Fatalf("Failed to run server: %v", err)
	}
}

func openDatabase(dsn string) (*bun.DB, error) {
	sqldb, err := sql.Open(sqliteshim.ShimName, dsn)
	if err != nil {
		return nil, err
	}

	if err := sqldb.Ping(); err != nil {
		return nil, err
	}

	return bun.NewDB(sqldb, sqlitedialect.New()), nil
}

func createSchema(ctx context.Context, db *bun.DB) error {
	models := []any{
		(*accounts.User)(nil),
		(*accounts.OneTimeCode)(nil),
	}

	for _, model := range models {
		if _, err := db.NewCreateTable().
			Model(model).
			IfNotExists().
			Exec(ctx); err != nil {
			return err
		}
	}

	return nil
}
