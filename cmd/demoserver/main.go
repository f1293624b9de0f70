package main

import (
	"fmt"
	"log"
	"os"

	"github.com/joho/godotenv"

	"wallet-core/internal/demoserver"
	"wallet-core/internal/demoserver/store"
	"wallet-core/pkg/crypto"
)

func main() {
	// Load environment variables
	if err := godotenv.Load(); err != nil {
		log.Println("⚠️  No .env file found, using system environment variables")
	}

	validateEnv()

	port := os.Getenv("PORT")
	if port == "" {
		port = "8080"
	}

	log.Println("🔌 Connecting to database...")
	db, err := store.NewPostgresDB()
	if err != nil {
		log.Fatalf("❌ Failed to connect to database: %v", err)
	}
	log.Println("✓ Database connected successfully")

	log.Println("🔄 Running database migrations...")
	if err := store.AutoMigrate(db); err != nil {
		log.Fatalf("❌ Failed to run migrations: %v", err)
	}
	log.Println("✓ Database migrations completed")

	masterKey := crypto.MasterKeyFromSecretPhrase(os.Getenv("SHARE_STORAGE_SECRET"))
	st := store.NewGormStore(db)
	handler := demoserver.NewHandler(st, masterKey)
	router := demoserver.SetupRouter(handler, st)

	fmt.Printf(`
╔═══════════════════════════════════════╗
║   WALLET CORE DEMO CUSTODY SERVER     ║
║                                       ║
║   🌐 Server:  http://localhost:%-6s ║
║   🔐 Shares:  encrypted at rest       ║
║   ⛓️  Bundler: canned stub at /rpc     ║
╚═══════════════════════════════════════╝
`, port)

	log.Printf("🚀 Server starting on port %s...", port)
	if err := router.Run(":" + port); err != nil {
		log.Fatalf("❌ Failed to start server: %v", err)
	}
}

func validateEnv() {
	required := map[string]string{
		"DB_HOST":              "Database host",
		"DB_PORT":              "Database port",
		"DB_USER":              "Database user",
		"DB_PASSWORD":          "Database password",
		"DB_NAME":              "Database name",
		"SHARE_STORAGE_SECRET": "Secret phrase protecting uploaded shares at rest",
	}

	// DATABASE_URL replaces the individual DB_* variables when present.
	if os.Getenv("DATABASE_URL") != "" {
		required = map[string]string{
			"SHARE_STORAGE_SECRET": "Secret phrase protecting uploaded shares at rest",
		}
	}

	missing := []string{}
	for key, desc := range required {
		if os.Getenv(key) == "" {
			missing = append(missing, fmt.Sprintf("%s (%s)", key, desc))
		}
	}

	if len(missing) > 0 {
		log.Println("❌ Missing required environment variables:")
		for _, m := range missing {
			log.Printf("   - %s", m)
		}
		log.Fatal("Please set all required environment variables in .env file")
	}

	log.Println("✓ All required environment variables are set")
}
