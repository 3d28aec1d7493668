package main

import (
	"context"
	"database/sql"
	"flag"
	"log"
	"os"

	_ "github.com/jackc/pgx/v5/stdlib"
	"github.com/joho/godotenv"
	"github.com/pressly/goose/v3"

	"github.com/suivivente/apps/api/migrations"
)

func main() {
	_ = godotenv.Load()

	dir := flag.String("dir", "", "migrations directory (defaults to the embedded migrations)")
	flag.Parse()

	databaseURL := os.Getenv("DATABASE_URL")
	if databaseURL == "" {
		log.Fatal("DATABASE_URL is required")
	}

	db, err := sql.Open("pgx", databaseURL)
	if err != nil {
		log.Fatalf("open db: %v", err)
	}
	defer db.Close()

	ctx := context.Background()
	if *dir == "" {
		if err := migrations.Up(ctx, db); err != nil {
			log.Fatalf("goose up: %v", err)
		}
		return
	}

	goose.SetBaseFS(os.DirFS(*dir))
	if err := goose.SetDialect("postgres"); err != nil {
		log.Fatalf("goose dialect: %v", err)
	}
	if err := goose.UpContext(ctx, db, "."); err != nil {
		log.Fatalf("goose up: %v", err)
	}
}
