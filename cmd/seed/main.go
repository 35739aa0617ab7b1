// File: cmd/seed/main.go
package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"time"

	"ai-chat-client/internal/config"
	"ai-chat-client/internal/domain/model"
	pg "ai-chat-client/internal/infra/db/postgres"
)

// Seeds a handful of sample conversations for local development.
func main() {
	cfgPath := flag.String("config", "config.yaml", "path to YAML config file")
	owner := flag.String("owner", "dev-user", "owner id to seed conversations for")
	flag.Parse()

	cfg, err := config.LoadConfig(*cfgPath, true)
	if err != nil {
		log.Fatalf("load config: %v", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	pool, err := pg.NewPgxPool(ctx, cfg.Database.URL, 4)
	if err != nil {
		log.Fatalf("postgres: %v", err)
	}
	defer pool.Close()

	if err := pg.EnsureSchema(ctx, pool); err != nil {
		log.Fatalf("schema: %v", err)
	}

	repo := pg.NewConversationRepo(pool)

	// If the owner already has history, do nothing.
	existing, err := repo.FindSummariesByOwner(ctx, nil, *owner)
	if err != nil {
		log.Fatalf("list conversations: %v", err)
	}
	if len(existing) > 0 {
		fmt.Printf("%d conversations already present for %s. No changes.\n", len(existing), *owner)
		for _, s := range existing {
			fmt.Printf("  - %s (%d messages)\n", s.Title, s.MessageCount)
		}
		return
	}

	seed := []struct {
		Title string
		Turns [][2]string // user question, assistant answer
	}{
		{"Trip Plan", [][2]string{
			{"Plan a weekend trip to Kyoto", "Day one: Fushimi Inari at dawn, then the Gion district in the evening."},
			{"What about food?", "Try the Nishiki Market for street food and a kaiseki dinner."},
		}},
		{"", [][2]string{
			{"Explain goroutine leaks briefly", "A goroutine leaks when it blocks forever on a channel nobody closes or reads."},
		}},
		{"Recipe Ideas", [][2]string{
			{"Give me three quick pasta recipes", "Aglio e olio, cacio e pepe, and a simple tomato-basil."},
		}},
	}

	for _, s := range seed {
		var msgs []model.Message
		for _, turn := range s.Turns {
			msgs = append(msgs,
				model.Message{Role: model.RoleUser, Content: turn[0], Timestamp: time.Now()},
				model.Message{Role: model.RoleAssistant, Content: turn[1], Timestamp: time.Now()},
			)
		}
		id, err := repo.Create(ctx, nil, model.NewConversation("", *owner, s.Title, msgs))
		if err != nil {
			log.Fatalf("seed conversation %q: %v", s.Title, err)
		}
		fmt.Printf("seeded %s (%d messages)\n", id, len(msgs))
	}
	fmt.Println("Done.")
}
