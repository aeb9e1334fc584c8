package main

import (
	"context"
	"fmt"
	"log"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/brianvoe/gofakeit/v7"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
	"go.uber.org/zap"

	"github.com/hackgods/counseling-scheduler/internal/appointment"
	"github.com/hackgods/counseling-scheduler/internal/config"
	"github.com/hackgods/counseling-scheduler/internal/db"
	"github.com/hackgods/counseling-scheduler/internal/logger"
)

const batchSize = 500

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("config load error: %v", err)
	}
	if cfg.PostgresDSN == "" {
		log.Fatal("POSTGRES_DSN is required")
	}

	lg, err := logger.New(cfg.Env, cfg.LogLevel, logger.FileOptions{})
	if err != nil {
		log.Fatalf("logger init error: %v", err)
	}
	defer func() { _ = lg.Sync() }()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Minute)
	defer cancel()

	pool, err := db.ConnectPostgres(ctx, cfg.PostgresDSN, db.PoolOptions{})
	if err != nil {
		lg.Fatal("connect postgres", zap.Error(err))
	}
	defer pool.Close()

	gofakeit.Seed(time.Now().UnixNano())

	counts := []struct {
		role  appointment.Role
		count int
	}{
		{appointment.RoleAdmin, getInt("SEED_ADMINS", 2)},
		{appointment.RolePsychologist, getInt("SEED_PSYCHOLOGISTS", 12)},
		{appointment.RoleStudent, getInt("SEED_STUDENTS", 2000)},
	}

	for _, c := range counts {
		inserted, err := seedUsers(ctx, lg, pool, c.role, c.count)
		if err != nil {
			lg.Fatal("seed users", zap.String("role", string(c.role)), zap.Error(err))
		}
		lg.Info("users seeded",
			zap.String("role", string(c.role)),
			zap.Int("requested", c.count),
			zap.Int64("inserted", inserted),
		)
	}

	lg.Info("seed complete")
}

// seedUsers inserts count users with the given role in batches. Rows whose
// email already exists are skipped.
func seedUsers(ctx context.Context, lg *zap.Logger, pool *pgxpool.Pool, role appointment.Role, count int) (int64, error) {
	var inserted int64

	for offset := 0; offset < count; offset += batchSize {
		end := min(offset+batchSize, count)

		tx, err := pool.Begin(ctx)
		if err != nil {
			return inserted, err
		}

		for i := offset; i < end; i++ {
			first, last := gofakeit.FirstName(), gofakeit.LastName()
			tag, err := tx.Exec(ctx, `
				INSERT INTO users (id, name, email, role, is_active, created_at, updated_at)
				VALUES ($1, $2, $3, $4, $5, now(), now())
				ON CONFLICT DO NOTHING
			`, uuid.New(), first+" "+last, email(first, last, role, i), string(role), gofakeit.Number(1, 100) > 3)
			if err != nil {
				_ = tx.Rollback(ctx)
				return inserted, fmt.Errorf("insert %s %d: %w", role, i, err)
			}
			inserted += tag.RowsAffected()
		}

		if err := tx.Commit(ctx); err != nil {
			return inserted, err
		}

		lg.Debug("batch committed", zap.String("role", string(role)), zap.Int("progress", end), zap.Int("total", count))
	}

	return inserted, nil
}

func email(first, last string, role appointment.Role, n int) string {
	domain := "staff.university.test"
	if role == appointment.RoleStudent {
		domain = "students.university.test"
	}
	local := strings.ToLower(first + "." + last + "." + strconv.Itoa(n))
	return strings.ReplaceAll(local, " ", "") + "@" + domain
}

func getInt(key string, def int) int {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n >= 0 {
			return n
		}
	}
	return def
}
