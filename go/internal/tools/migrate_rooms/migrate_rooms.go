package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/mcdev12/pokerroom/go/internal/config"
	"github.com/mcdev12/pokerroom/go/internal/rooms"
)

// SeedRoom mirrors the JSON seed file
type SeedRoom struct {
	ID       string          `json:"id"`
	Code     string          `json:"code"`
	Name     string          `json:"name"`
	Topic    string          `json:"topic"`
	Settings json.RawMessage `json:"settings"`
}

func main() {
	ctx, cancel := context.WithTimeout(context.Background(), time.Minute)
	defer cancel()

	// 1) Connect using shared config
	cfg := config.DatabaseFromEnv()
	pool, err := pgxpool.New(ctx, cfg.DSN())
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to connect: %v\n", err)
		os.Exit(1)
	}
	defer pool.Close()

	// 2) Apply the schema
	if _, err := pool.Exec(ctx, rooms.Schema); err != nil {
		fmt.Fprintf(os.Stderr, "apply schema: %v\n", err)
		os.Exit(1)
	}
	fmt.Println("rooms schema applied")

	// 3) Optionally seed fixed rooms
	seedPath := os.Getenv("SEED_ROOMS")
	if seedPath == "" {
		return
	}
	data, err := os.ReadFile(seedPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "read JSON: %v\n", err)
		os.Exit(1)
	}
	var seeds []SeedRoom
	if err := json.Unmarshal(data, &seeds); err != nil {
		fmt.Fprintf(os.Stderr, "unmarshal JSON: %v\n", err)
		os.Exit(1)
	}

	var (
		total    = len(seeds)
		inserted int
		skipped  int
		errs     int
	)

	for _, s := range seeds {
		var settings interface{}
		if len(s.Settings) > 0 {
			settings = []byte(s.Settings)
		}
		cmdTag, err := pool.Exec(ctx, `
            INSERT INTO rooms (id, code, name, topic, settings, active)
            VALUES ($1, $2, $3, $4, $5, TRUE)
            ON CONFLICT (id) DO NOTHING
        `,
			s.ID, s.Code, s.Name, s.Topic, settings,
		)
		if err != nil {
			fmt.Fprintf(os.Stderr, "error inserting room %s: %v\n", s.ID, err)
			errs++
			continue
		}
		if cmdTag.RowsAffected() == 1 {
			inserted++
		} else {
			skipped++
		}
	}

	fmt.Printf("rooms: %d total, %d inserted, %d skipped, %d errors\n", total, inserted, skipped, errs)
	if errs > 0 {
		os.Exit(1)
	}
}
