package main

import (
	"log"
	"os"

	"insight-assistant-be/internal/model"
	"insight-assistant-be/pkg/database"

	"github.com/joho/godotenv"
)

func main() {
	// 1. Load Environment Variables
	if err := godotenv.Load(); err != nil {
		log.Println("[INFO] No .env file found, using system env")
	}

	dsn := os.Getenv("DB_CONNECTION_STRING")
	if dsn == "" {
		log.Fatal("[FATAL] DB_CONNECTION_STRING is not set")
	}

	// 2. Connect
	db, err := database.NewGormDBFromDSN(dsn)
	if err != nil {
		log.Fatal("[FATAL] Failed to connect to database: ", err)
	}

	// 3. Extensions (gen_random_uuid)
	if err := db.Exec(`CREATE EXTENSION IF NOT EXISTS pgcrypto;`).Error; err != nil {
		log.Printf("[WARN] Failed to enable pgcrypto: %v. Continuing...", err)
	}

	// 4. Tables
	models := model.Models()
	log.Printf("[INFO] Running AutoMigrate for %d tables...", len(models))
	if err := db.AutoMigrate(models...); err != nil {
		log.Fatal("[FATAL] AutoMigrate failed: ", err)
	}

	// 5. Partial index for the hot "active context per session" lookup
	if err := db.Exec(`CREATE INDEX IF NOT EXISTS idx_staged_contexts_active ON staged_contexts (session_id) WHERE status = 'active';`).Error; err != nil {
		log.Printf("[WARN] Failed to create partial index: %v", err)
	}

	log.Println("[SUCCESS] Migration completed")
}
