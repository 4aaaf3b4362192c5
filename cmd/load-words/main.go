package main

import (
	"context"
	"flag"
	"log"
	"os"
	"time"

	"github.com/jason-s-yu/imposter/internal/config"
	"github.com/jason-s-yu/imposter/internal/database"
	"github.com/jason-s-yu/imposter/internal/words"
)

func main() {
	filePath := flag.String("file", "words.csv", "path to word pairs csv (category,real_word,imposter_word)")
	flag.Parse()

	if err := config.LoadDotEnv(".env"); err != nil {
		log.Printf("failed to load .env: %v", err)
	}

	dsn := os.Getenv(config.EnvPrefix + "_DATABASE_URL")
	if dsn == "" {
		dsn = os.Getenv("DATABASE_URL")
	}
	if dsn == "" {
		log.Fatalf("%s_DATABASE_URL is not set", config.EnvPrefix)
	}

	f, err := os.Open(*filePath)
	if err != nil {
		log.Fatalf("failed to open %s: %v", *filePath, err)
	}
	defer f.Close()

	pairs, err := words.ReadCSV(f)
	if err != nil {
		log.Fatalf("failed to read word pairs: %v", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), time.Minute)
	defer cancel()

	pool, err := database.Connect(ctx, dsn)
	if err != nil {
		log.Fatalf("database connection failed: %v", err)
	}
	defer pool.Close()

	added, err := database.NewStore(pool).SeedWordPairs(ctx, pairs)
	if err != nil {
		log.Fatalf("failed to load word pairs: %v", err)
	}
	log.Printf("loaded %d of %d word pairs", added, len(pairs))
}
