package main

import (
	"context"
	"fmt"
	"log"
	"os"
	"time"

	"github.com/joho/godotenv"
	"github.com/shopspring/decimal"

	"github.com/suivivente/apps/api/internal/auth"
	"github.com/suivivente/apps/api/internal/db"
	"github.com/suivivente/apps/api/internal/store"
)

var sampleProducts = []store.NewProduct{
	{Name: "Coca-Cola", Category: "Boissons", Subcategory: "Sodas", Stock: 100, Price: decimal.RequireFromString("2.80"), Threshold: 20},
	{Name: "Sandwich Jambon", Category: "Alimentation", Subcategory: "Sandwichs", Stock: 50, Price: decimal.RequireFromString("4.50"), Threshold: 10},
}

func main() {
	_ = godotenv.Load()

	databaseURL := os.Getenv("DATABASE_URL")
	if databaseURL == "" {
		log.Fatal("DATABASE_URL is required")
	}

	email := envOrDefault("SEED_ADMIN_EMAIL", "admin@suivivente.local")
	password := envOrDefault("SEED_ADMIN_PASSWORD", "Admin12345!")
	fullName := envOrDefault("SEED_ADMIN_NAME", "Local Admin")

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Second)
	defer cancel()

	pool, err := db.Connect(ctx, databaseURL)
	if err != nil {
		log.Fatalf("connect db: %v", err)
	}
	defer pool.Close()
	st := store.New(pool)

	passwordHash, err := auth.HashPassword(password)
	if err != nil {
		log.Fatalf("hash password: %v", err)
	}
	if _, err := st.UpsertUser(ctx, email, fullName, passwordHash, "admin"); err != nil {
		log.Fatalf("upsert admin: %v", err)
	}

	for _, p := range sampleProducts {
		if err := st.EnsureProduct(ctx, p); err != nil {
			log.Fatalf("seed product: %v", err)
		}
	}

	fmt.Printf("Seed completed. admin=%s, password=%s, products=%d\n", email, password, len(sampleProducts))
}

func envOrDefault(key, fallback string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return fallback
}
