// Seed creates the relational social schema and fills it with a small data
// set for local migration runs.
package main

import (
	"context"
	"flag"
	"fmt"

	"go.uber.org/zap"

	"relgraph/backend/internal/source"
	"relgraph/backend/pkg/config"
	apperrors "relgraph/backend/pkg/errors"
	"relgraph/backend/pkg/logger"
)

var tables = []string{
	"event_participants", "favorites", "reply_votes", "post_votes", "community_members", "follows",
	"events", "replies", "posts", "communities", "users",
}

var schema = []string{
	`CREATE TABLE users (
		id BIGINT PRIMARY KEY,
		username VARCHAR(64) NOT NULL,
		email VARCHAR(255) NOT NULL,
		display_name VARCHAR(128),
		bio TEXT,
		karma INTEGER NOT NULL DEFAULT 0,
		created_at TIMESTAMP NOT NULL
	)`,
	`CREATE TABLE communities (
		id BIGINT PRIMARY KEY,
		name VARCHAR(128) NOT NULL,
		description TEXT,
		created_at TIMESTAMP NOT NULL
	)`,
	`CREATE TABLE posts (
		id BIGINT PRIMARY KEY,
		author_id BIGINT NOT NULL REFERENCES users(id),
		community_id BIGINT REFERENCES communities(id),
		title VARCHAR(255) NOT NULL,
		body TEXT,
		score INTEGER NOT NULL DEFAULT 0,
		created_at TIMESTAMP NOT NULL
	)`,
	`CREATE TABLE replies (
		id BIGINT PRIMARY KEY,
		post_id BIGINT NOT NULL REFERENCES posts(id),
		author_id BIGINT NOT NULL REFERENCES users(id),
		body TEXT NOT NULL,
		score INTEGER NOT NULL DEFAULT 0,
		created_at TIMESTAMP NOT NULL
	)`,
	`CREATE TABLE events (
		id BIGINT PRIMARY KEY,
		community_id BIGINT REFERENCES communities(id),
		title VARCHAR(255) NOT NULL,
		starts_at TIMESTAMP NOT NULL,
		location VARCHAR(255),
		created_at TIMESTAMP NOT NULL
	)`,
	`CREATE TABLE follows (
		follower_id BIGINT NOT NULL REFERENCES users(id),
		followed_id BIGINT NOT NULL REFERENCES users(id),
		created_at TIMESTAMP NOT NULL,
		PRIMARY KEY (follower_id, followed_id)
	)`,
	`CREATE TABLE community_members (
		user_id BIGINT NOT NULL REFERENCES users(id),
		community_id BIGINT NOT NULL REFERENCES communities(id),
		role VARCHAR(32) NOT NULL,
		joined_at TIMESTAMP NOT NULL,
		PRIMARY KEY (user_id, community_id)
	)`,
	`CREATE TABLE post_votes (
		user_id BIGINT NOT NULL REFERENCES users(id),
		post_id BIGINT NOT NULL REFERENCES posts(id),
		vote_type VARCHAR(8) NOT NULL,
		created_at TIMESTAMP NOT NULL,
		PRIMARY KEY (user_id, post_id)
	)`,
	`CREATE TABLE reply_votes (
		user_id BIGINT NOT NULL REFERENCES users(id),
		reply_id BIGINT NOT NULL REFERENCES replies(id),
		vote_type VARCHAR(8) NOT NULL,
		created_at TIMESTAMP NOT NULL,
		PRIMARY KEY (user_id, reply_id)
	)`,
	`CREATE TABLE favorites (
		user_id BIGINT NOT NULL REFERENCES users(id),
		post_id BIGINT NOT NULL REFERENCES posts(id),
		created_at TIMESTAMP NOT NULL,
		PRIMARY KEY (user_id, post_id)
	)`,
	`CREATE TABLE event_participants (
		user_id BIGINT NOT NULL REFERENCES users(id),
		event_id BIGINT NOT NULL REFERENCES events(id),
		status VARCHAR(16) NOT NULL,
		joined_at TIMESTAMP NOT NULL,
		PRIMARY KEY (user_id, event_id)
	)`,
}

// Plain literals keep the statements portable across postgres, mysql and
// sqlite placeholder styles.
var data = []string{
	`INSERT INTO users (id, username, email, display_name, bio, karma, created_at) VALUES
		(1, 'ana', 'ana@example.com', 'Ana', 'Gopher and hiker', 120, '2024-01-02 09:00:00'),
		(2, 'obrien', 'obrien@example.com', 'O''Brien', NULL, 45, '2024-01-05 18:30:00'),
		(3, 'kim', 'kim@example.com', NULL, 'Writes about "graphs"', 7, '2024-02-11 12:15:00'),
		(4, 'lee', 'lee@example.com', 'Lee', 'Backslashes \ everywhere', 0, '2024-03-01 08:45:00')`,
	`INSERT INTO communities (id, name, description, created_at) VALUES
		(1, 'golang', 'All things Go', '2024-01-01 00:00:00'),
		(2, 'graphs', NULL, '2024-01-10 00:00:00')`,
	`INSERT INTO posts (id, author_id, community_id, title, body, score, created_at) VALUES
		(1, 1, 1, 'Generics in practice', 'Type parameters one year on.', 42, '2024-02-01 10:00:00'),
		(2, 2, 2, 'Why property graphs?', NULL, 13, '2024-02-03 16:20:00'),
		(3, 3, NULL, 'Off-topic musings', 'No community for this one.', -2, '2024-02-20 21:05:00')`,
	`INSERT INTO replies (id, post_id, author_id, body, score, created_at) VALUES
		(1, 1, 2, 'Great write-up!', 5, '2024-02-01 11:00:00'),
		(2, 1, 3, 'I''d add a section on constraints.', 3, '2024-02-01 12:30:00'),
		(3, 2, 1, 'Edges carry properties, that''s the point.', 8, '2024-02-04 09:10:00')`,
	`INSERT INTO events (id, community_id, title, starts_at, location, created_at) VALUES
		(1, 1, 'Go meetup', '2024-04-12 18:00:00', 'Berlin', '2024-03-01 10:00:00'),
		(2, NULL, 'Online graph hangout', '2024-04-20 17:00:00', NULL, '2024-03-05 10:00:00')`,
	`INSERT INTO follows (follower_id, followed_id, created_at) VALUES
		(1, 2, '2024-01-06 10:00:00'),
		(2, 1, '2024-01-06 11:00:00'),
		(3, 1, '2024-02-12 09:00:00'),
		(4, 3, '2024-03-02 14:00:00')`,
	`INSERT INTO community_members (user_id, community_id, role, joined_at) VALUES
		(1, 1, 'owner', '2024-01-01 00:00:00'),
		(2, 1, 'member', '2024-01-07 00:00:00'),
		(2, 2, 'owner', '2024-01-10 00:00:00'),
		(3, 2, 'moderator', '2024-02-12 00:00:00')`,
	`INSERT INTO post_votes (user_id, post_id, vote_type, created_at) VALUES
		(2, 1, 'up', '2024-02-01 10:30:00'),
		(3, 1, 'up', '2024-02-01 13:00:00'),
		(1, 3, 'down', '2024-02-21 08:00:00')`,
	`INSERT INTO reply_votes (user_id, reply_id, vote_type, created_at) VALUES
		(1, 1, 'up', '2024-02-01 11:30:00'),
		(4, 2, 'down', '2024-03-02 15:00:00')`,
	`INSERT INTO favorites (user_id, post_id, created_at) VALUES
		(3, 1, '2024-02-02 08:00:00'),
		(4, 2, '2024-03-02 16:00:00')`,
	`INSERT INTO event_participants (user_id, event_id, status, joined_at) VALUES
		(1, 1, 'going', '2024-03-02 10:00:00'),
		(2, 1, 'interested', '2024-03-03 10:00:00'),
		(4, 2, 'going', '2024-03-06 10:00:00')`,
}

// checkReset refuses to drop tables in a production environment.
func checkReset(cfg *config.Config, reset bool) error {
	if reset && cfg.IsProduction() {
		return apperrors.NewConfigValidationFailed("ENV", "-reset is not allowed in production")
	}
	return nil
}

func main() {
	reset := flag.Bool("reset", false, "Drop existing tables before seeding")
	flag.Parse()

	cfg, err := config.Load()
	if err != nil {
		panic(fmt.Sprintf("Failed to load configuration: %v", err))
	}

	if err := logger.Init(cfg.Env, cfg.LogLevel); err != nil {
		panic(fmt.Sprintf("Failed to initialize logger: %v", err))
	}
	defer logger.Sync()

	log := logger.Get()
	if err := checkReset(cfg, *reset); err != nil {
		log.Fatal("Refusing to seed", zap.Error(err))
	}
	log.Info("Seeding relational schema",
		zap.String("driver", cfg.SourceDriver),
		zap.String("target", cfg.SourceTarget()),
	)

	ctx := context.Background()
	db, err := source.Open(ctx, cfg.SourceDriver, cfg.SourceDSN())
	if err != nil {
		log.Fatal("Failed to open database", zap.Error(err))
	}
	defer db.Close()

	if *reset {
		for _, table := range tables {
			if _, err := db.ExecContext(ctx, "DROP TABLE IF EXISTS "+table); err != nil {
				log.Fatal("Failed to drop table", zap.String("table", table), zap.Error(err))
			}
		}
		log.Info("Dropped existing tables")
	}

	for _, stmt := range schema {
		if _, err := db.ExecContext(ctx, stmt); err != nil {
			log.Fatal("Failed to create schema", zap.Error(err))
		}
	}

	for i, stmt := range data {
		res, err := db.ExecContext(ctx, stmt)
		if err != nil {
			log.Fatal("Failed to insert seed data", zap.Int("statement", i), zap.Error(err))
		}
		n, _ := res.RowsAffected()
		log.Debug("Inserted rows", zap.Int("statement", i), zap.Int64("rows", n))
	}

	log.Info("Seed completed successfully!", zap.Int("tables", len(schema)))
}
