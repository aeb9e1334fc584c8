package main

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log"
	"math/rand"
	"net/http"
	"os"
	"sort"
	"strconv"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/hackgods/counseling-scheduler/internal/config"
	"github.com/hackgods/counseling-scheduler/internal/db"
)

type SimConfig struct {
	APIBaseURL        string
	Duration          time.Duration
	Workers           int
	BookingRatio      float64
	ApproveRatio      float64
	ReadRatio         float64
	StudentLimit      int
	PsychologistLimit int
	Days              int
	PostgresDSN       string
}

// target is one bookable slot the workers compete for.
type target struct {
	PsychologistID uuid.UUID
	Date           string
	Time           string
}

type booked struct {
	ID             uuid.UUID
	PsychologistID uuid.UUID
}

type DataPool struct {
	Students      []uuid.UUID
	Psychologists []uuid.UUID
	Targets       []target
	mu            sync.RWMutex
	appointments  []booked
}

func (dp *DataPool) AddAppointment(b booked) {
	dp.mu.Lock()
	defer dp.mu.Unlock()
	dp.appointments = append(dp.appointments, b)
}

func (dp *DataPool) GetRandomAppointment(rng *rand.Rand) (booked, bool) {
	dp.mu.RLock()
	defer dp.mu.RUnlock()
	if len(dp.appointments) == 0 {
		return booked{}, false
	}
	return dp.appointments[rng.Intn(len(dp.appointments))], true
}

type OperationMetrics struct {
	Total     int64
	Success   int64
	Conflict  int64
	Error     int64
	Latencies []time.Duration
	mu        sync.Mutex
}

func (om *OperationMetrics) Record(latency time.Duration, success bool, conflict bool) {
	atomic.AddInt64(&om.Total, 1)
	switch {
	case success:
		atomic.AddInt64(&om.Success, 1)
	case conflict:
		atomic.AddInt64(&om.Conflict, 1)
	default:
		atomic.AddInt64(&om.Error, 1)
	}

	om.mu.Lock()
	om.Latencies = append(om.Latencies, latency)
	om.mu.Unlock()
}

func (om *OperationMetrics) Stats() (avg, min, max, p50, p95 time.Duration) {
	om.mu.Lock()
	defer om.mu.Unlock()

	if len(om.Latencies) == 0 {
		return 0, 0, 0, 0, 0
	}

	latencies := make([]time.Duration, len(om.Latencies))
	copy(latencies, om.Latencies)
	sort.Slice(latencies, func(i, j int) bool { return latencies[i] < latencies[j] })

	var sum time.Duration
	for _, l := range latencies {
		sum += l
	}

	avg = sum / time.Duration(len(latencies))
	min = latencies[0]
	max = latencies[len(latencies)-1]
	p50 = latencies[percentileIndex(len(latencies), 50)]
	p95 = latencies[percentileIndex(len(latencies), 95)]
	return avg, min, max, p50, p95
}

func percentileIndex(n, p int) int {
	idx := n * p / 100
	if idx >= n {
		idx = n - 1
	}
	return idx
}

type Metrics struct {
	Booking      OperationMetrics
	Approve      OperationMetrics
	Availability OperationMetrics
}

type Simulator struct {
	config  SimConfig
	pool    *DataPool
	client  *http.Client
	metrics Metrics
}

func main() {
	log.SetFlags(log.LstdFlags | log.Lshortfile)
	log.Println("simulator starting")

	cfg := loadConfig()
	if err := validateConfig(cfg); err != nil {
		log.Fatalf("invalid config: %v", err)
	}

	log.Printf("config: duration=%s workers=%d booking=%.2f approve=%.2f read=%.2f days=%d",
		cfg.Duration, cfg.Workers, cfg.BookingRatio, cfg.ApproveRatio, cfg.ReadRatio, cfg.Days)

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	pgPool, err := db.ConnectPostgres(ctx, cfg.PostgresDSN, db.PoolOptions{MaxConns: 4})
	if err != nil {
		log.Fatalf("connect postgres: %v", err)
	}
	defer pgPool.Close()

	sim := &Simulator{
		config: cfg,
		client: &http.Client{Timeout: 10 * time.Second},
	}

	sim.pool, err = loadDataPool(ctx, pgPool, cfg)
	if err != nil {
		log.Fatalf("load data pool: %v", err)
	}
	if err := sim.loadTargets(ctx); err != nil {
		log.Fatalf("load targets: %v", err)
	}

	log.Printf("loaded: %d students, %d psychologists, %d open slots",
		len(sim.pool.Students), len(sim.pool.Psychologists), len(sim.pool.Targets))

	sim.Run()
	sim.PrintReport()

	if err := verifyNoDoubleBooking(context.Background(), pgPool); err != nil {
		log.Fatalf("invariant violated: %v", err)
	}
	log.Println("no slot holds more than one active appointment")
}

func loadConfig() SimConfig {
	baseCfg, err := config.Load()
	if err != nil {
		log.Fatalf("failed to load base config: %v", err)
	}

	cfg := SimConfig{
		APIBaseURL:        getEnv("SIM_API_BASE_URL", "http://localhost:8080"),
		Duration:          getDuration("SIM_DURATION", 30*time.Second),
		Workers:           getInt("SIM_WORKERS", 20),
		BookingRatio:      getFloat("SIM_BOOKING_RATIO", 0.6),
		ApproveRatio:      getFloat("SIM_APPROVE_RATIO", 0.1),
		ReadRatio:         getFloat("SIM_READ_RATIO", 0.3),
		StudentLimit:      getInt("SIM_STUDENT_LIMIT", 1000),
		PsychologistLimit: getInt("SIM_PSYCHOLOGIST_LIMIT", 3),
		Days:              getInt("SIM_DAYS", 3),
		PostgresDSN:       baseCfg.PostgresDSN,
	}

	total := cfg.BookingRatio + cfg.ApproveRatio + cfg.ReadRatio
	if total > 0 {
		cfg.BookingRatio /= total
		cfg.ApproveRatio /= total
		cfg.ReadRatio /= total
	}

	return cfg
}

func validateConfig(cfg SimConfig) error {
	if cfg.PostgresDSN == "" {
		return fmt.Errorf("POSTGRES_DSN is required (set in .env or environment)")
	}
	if cfg.Workers <= 0 {
		return fmt.Errorf("SIM_WORKERS must be > 0")
	}
	if cfg.Duration <= 0 {
		return fmt.Errorf("SIM_DURATION must be > 0")
	}
	if cfg.Days <= 0 {
		return fmt.Errorf("SIM_DAYS must be > 0")
	}
	return nil
}

func loadIDs(ctx context.Context, pool *pgxpool.Pool, role string, limit int) ([]uuid.UUID, error) {
	rows, err := pool.Query(ctx, `
		SELECT id FROM users WHERE role = $1 AND is_active ORDER BY created_at LIMIT $2
	`, role, limit)
	if err != nil {
		return nil, fmt.Errorf("load %s ids: %w", role, err)
	}
	defer rows.Close()

	var ids []uuid.UUID
	for rows.Next() {
		var id uuid.UUID
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

func loadDataPool(ctx context.Context, pool *pgxpool.Pool, cfg SimConfig) (*DataPool, error) {
	students, err := loadIDs(ctx, pool, "student", cfg.StudentLimit)
	if err != nil {
		return nil, err
	}
	psychologists, err := loadIDs(ctx, pool, "psychologist", cfg.PsychologistLimit)
	if err != nil {
		return nil, err
	}

	if len(students) == 0 {
		return nil, fmt.Errorf("no students loaded, run cmd/seed first")
	}
	if len(psychologists) == 0 {
		return nil, fmt.Errorf("no psychologists loaded, run cmd/seed first")
	}

	return &DataPool{Students: students, Psychologists: psychologists}, nil
}

// loadTargets asks the API for open slots over the next few days.
func (s *Simulator) loadTargets(ctx context.Context) error {
	day := time.Now()
	for found := 0; found < s.config.Days; day = day.AddDate(0, 0, 1) {
		if day.After(time.Now().AddDate(0, 1, 0)) {
			break
		}
		date := day.Format("2006-01-02")
		open := 0
		for _, psych := range s.pool.Psychologists {
			slots, err := s.fetchAvailability(ctx, psych, date)
			if err != nil {
				return err
			}
			for _, t := range slots {
				s.pool.Targets = append(s.pool.Targets, target{PsychologistID: psych, Date: date, Time: t})
			}
			open += len(slots)
		}
		if open > 0 {
			found++
		}
	}
	if len(s.pool.Targets) == 0 {
		return fmt.Errorf("no open slots found")
	}
	return nil
}

func (s *Simulator) fetchAvailability(ctx context.Context, psychologistID uuid.UUID, date string) ([]string, error) {
	req, _ := http.NewRequestWithContext(ctx, http.MethodGet,
		fmt.Sprintf("%s/psychologists/%s/availability?date=%s", s.config.APIBaseURL, psychologistID, date), nil)

	resp, err := s.client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(resp.Body)
		return nil, fmt.Errorf("availability %s %s: %d %s", psychologistID, date, resp.StatusCode, strings.TrimSpace(string(body)))
	}

	var day struct {
		AvailableSlots []string `json:"available_slots"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&day); err != nil {
		return nil, err
	}
	return day.AvailableSlots, nil
}

func (s *Simulator) Run() {
	ctx, cancel := context.WithTimeout(context.Background(), s.config.Duration)
	defer cancel()

	log.Printf("starting simulation for %s with %d workers", s.config.Duration, s.config.Workers)

	var wg sync.WaitGroup
	for i := 0; i < s.config.Workers; i++ {
		wg.Add(1)
		go func(workerID int) {
			defer wg.Done()
			s.worker(ctx, workerID)
		}(i)
	}

	wg.Wait()
	log.Println("simulation complete")
}

func (s *Simulator) worker(ctx context.Context, workerID int) {
	rng := rand.New(rand.NewSource(time.Now().UnixNano() + int64(workerID)))

	for {
		select {
		case <-ctx.Done():
			return
		default:
			r := rng.Float64()
			switch {
			case r < s.config.BookingRatio:
				s.doBooking(ctx, rng)
			case r < s.config.BookingRatio+s.config.ApproveRatio:
				s.doApprove(ctx, rng)
			default:
				s.doAvailability(ctx, rng)
			}
		}
	}
}

func (s *Simulator) newRequest(ctx context.Context, method, path string, body any, actor uuid.UUID, role string) *http.Request {
	var buf bytes.Buffer
	if body != nil {
		_ = json.NewEncoder(&buf).Encode(body)
	}
	req, _ := http.NewRequestWithContext(ctx, method, s.config.APIBaseURL+path, &buf)
	req.Header.Set("Content-Type", "application/json")
	if actor != uuid.Nil {
		req.Header.Set("X-User-ID", actor.String())
		req.Header.Set("X-User-Role", role)
	}
	return req
}

func (s *Simulator) doBooking(ctx context.Context, rng *rand.Rand) {
	t := s.pool.Targets[rng.Intn(len(s.pool.Targets))]
	student := s.pool.Students[rng.Intn(len(s.pool.Students))]

	req := s.newRequest(ctx, http.MethodPost, "/appointments", map[string]string{
		"psychologist_id": t.PsychologistID.String(),
		"date":            t.Date,
		"time":            t.Time,
		"reason":          "simulated load",
	}, student, "student")

	start := time.Now()
	resp, err := s.client.Do(req)
	latency := time.Since(start)

	success, conflict := false, false
	if err == nil {
		defer resp.Body.Close()

		switch resp.StatusCode {
		case http.StatusCreated:
			success = true
			var appt struct {
				ID uuid.UUID `json:"id"`
			}
			if json.NewDecoder(resp.Body).Decode(&appt) == nil && appt.ID != uuid.Nil {
				s.pool.AddAppointment(booked{ID: appt.ID, PsychologistID: t.PsychologistID})
			}
		case http.StatusConflict:
			conflict = true
		}
	}

	s.metrics.Booking.Record(latency, success, conflict)
}

func (s *Simulator) doApprove(ctx context.Context, rng *rand.Rand) {
	appt, ok := s.pool.GetRandomAppointment(rng)
	if !ok {
		return
	}

	req := s.newRequest(ctx, http.MethodPatch, fmt.Sprintf("/appointments/%s/approve", appt.ID), nil, appt.PsychologistID, "psychologist")

	start := time.Now()
	resp, err := s.client.Do(req)
	latency := time.Since(start)

	success, conflict := false, false
	if err == nil {
		defer resp.Body.Close()
		success = resp.StatusCode == http.StatusOK
		// already approved by another worker
		conflict = resp.StatusCode == http.StatusUnprocessableEntity
	}

	s.metrics.Approve.Record(latency, success, conflict)
}

func (s *Simulator) doAvailability(ctx context.Context, rng *rand.Rand) {
	t := s.pool.Targets[rng.Intn(len(s.pool.Targets))]

	start := time.Now()
	_, err := s.fetchAvailability(ctx, t.PsychologistID, t.Date)
	s.metrics.Availability.Record(time.Since(start), err == nil, false)
}

func verifyNoDoubleBooking(ctx context.Context, pool *pgxpool.Pool) error {
	var n int
	err := pool.QueryRow(ctx, `
		SELECT count(*) FROM (
			SELECT 1 FROM appointments
			WHERE status IN ('pending', 'confirmed')
			GROUP BY psychologist_id, appt_date, start_time
			HAVING count(*) > 1
		) dup
	`).Scan(&n)
	if err != nil {
		return fmt.Errorf("query duplicates: %w", err)
	}
	if n > 0 {
		return fmt.Errorf("%d slots hold more than one active appointment", n)
	}
	return nil
}

func (s *Simulator) PrintReport() {
	fmt.Println("\n" + strings.Repeat("=", 80))
	fmt.Println("SIMULATION REPORT")
	fmt.Println(strings.Repeat("=", 80))
	fmt.Printf("Duration: %s\n", s.config.Duration)
	fmt.Printf("Workers: %d\n", s.config.Workers)
	fmt.Printf("Contended slots: %d\n", len(s.pool.Targets))
	fmt.Println()

	printOperationReport("Booking", &s.metrics.Booking)
	printOperationReport("Approve", &s.metrics.Approve)
	printOperationReport("Availability", &s.metrics.Availability)
}

func printOperationReport(name string, om *OperationMetrics) {
	total := atomic.LoadInt64(&om.Total)
	if total == 0 {
		return
	}

	success := atomic.LoadInt64(&om.Success)
	conflict := atomic.LoadInt64(&om.Conflict)
	failed := atomic.LoadInt64(&om.Error)

	avg, min, max, p50, p95 := om.Stats()

	fmt.Printf("%s:\n", name)
	fmt.Printf("  Total: %d\n", total)
	fmt.Printf("  Success: %d (%.1f%%)\n", success, float64(success)/float64(total)*100)
	if conflict > 0 {
		fmt.Printf("  Conflicts: %d (%.1f%%)\n", conflict, float64(conflict)/float64(total)*100)
	}
	if failed > 0 {
		fmt.Printf("  Errors: %d (%.1f%%)\n", failed, float64(failed)/float64(total)*100)
	}
	fmt.Printf("  Latency: avg=%s min=%s max=%s p50=%s p95=%s\n",
		avg.Round(time.Millisecond), min.Round(time.Millisecond), max.Round(time.Millisecond),
		p50.Round(time.Millisecond), p95.Round(time.Millisecond))
	fmt.Println()
}

func getEnv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func getDuration(key string, def time.Duration) time.Duration {
	if v := os.Getenv(key); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			return d
		}
	}
	return def
}

func getInt(key string, def int) int {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return def
}

func getFloat(key string, def float64) float64 {
	if v := os.Getenv(key); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			return f
		}
	}
	return def
}
