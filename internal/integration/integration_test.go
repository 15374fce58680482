package integration

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"testing"
	"time"

	"spelling-assessment-service/internal/app"
	"spelling-assessment-service/internal/domain"
	pgstore "spelling-assessment-service/internal/infra/postgres"
	pgmigrations "spelling-assessment-service/internal/infra/postgres/migrations"
	infraredis "spelling-assessment-service/internal/infra/redis"
	"github.com/jackc/pgx/v4/pgxpool"
	goredis "github.com/redis/go-redis/v9"
	tc "github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/wait"
	"github.com/uptrace/bun"
	"github.com/uptrace/bun/dialect/pgdialect"
	"github.com/uptrace/bun/driver/pgdriver"
	"github.com/uptrace/bun/migrate"
)

func TestScoringEndToEnd(t *testing.T) {
	ctx := context.Background()
	requireDocker(t)

	pgURL, pgCleanup := startPostgres(t, ctx)
	defer pgCleanup()
	redisURL, redisCleanup := startRedis(t, ctx)
	defer redisCleanup()

	seedRound(t, ctx, pgURL)

	pool, err := pgxpool.Connect(ctx, pgURL)
	if err != nil {
		t.Fatalf("connect pg: %v", err)
	}
	defer pool.Close()

	loader := pgstore.NewRosterLoader(pool)

	redisClient, err := redisClientFromURL(redisURL)
	if err != nil {
		t.Fatalf("redis client: %v", err)
	}
	rosters := infraredis.NewRosterCache(redisClient, loader, 5*time.Minute)
	rounds := infraredis.NewRoundStore(redisClient, 5*time.Minute)
	writer := app.MultiWriter{
		pgstore.NewAssessmentWriter(pool),
		infraredis.NewAssessmentMirror(redisClient, 5*time.Minute),
	}
	service := app.NewAssessmentService(rounds, rosters, writer)

	if _, err := service.Open(ctx, "round-1"); err != nil {
		t.Fatalf("open: %v", err)
	}
	if _, err := service.JudgeRule(ctx, "round-1", "s1", "w1", "r1", false); err != nil {
		t.Fatalf("judge: %v", err)
	}
	if _, err := service.MarkAllCorrect(ctx, "round-1", "s2", "w1"); err != nil {
		t.Fatalf("mark all correct: %v", err)
	}

	waitSynced(t, ctx, service, "round-1", "s1", "w1")
	waitSynced(t, ctx, service, "round-1", "s2", "w1")

	stats, err := service.GroupRuleStats(ctx, "round-1")
	if err != nil {
		t.Fatalf("group stats: %v", err)
	}
	if stats[0].Rule.Code != "B1" || stats[0].ErrorRate != 50 {
		t.Fatalf("expected B1 at 50%% (1 error / 2 attempts), got %+v", stats[0])
	}
	if len(stats[0].FailingStudentNames) != 1 || stats[0].FailingStudentNames[0] != "Alice" {
		t.Fatalf("expected Alice failing, got %v", stats[0].FailingStudentNames)
	}

	// the durable sink must now hold both records
	roster, err := loader.LoadRoster(ctx, "round-1")
	if err != nil {
		t.Fatalf("reload roster: %v", err)
	}
	if len(roster.Assessments) != 2 {
		t.Fatalf("expected 2 persisted records, got %d", len(roster.Assessments))
	}

	// and the redis mirror matches
	mirror := infraredis.NewAssessmentMirror(redisClient, 5*time.Minute)
	mirrored, err := mirror.LoadAssessments(ctx, "round-1")
	if err != nil {
		t.Fatalf("load mirror: %v", err)
	}
	if len(mirrored) != 2 {
		t.Fatalf("expected 2 mirrored records, got %d", len(mirrored))
	}
}

func waitSynced(t *testing.T, ctx context.Context, service *app.AssessmentService, roundID, studentID, wordID string) {
	t.Helper()
	deadline := time.Now().Add(5 * time.Second)
	for {
		record, ok, err := service.Record(ctx, roundID, studentID, wordID)
		if err != nil || !ok {
			t.Fatalf("record lookup: ok=%v err=%v", ok, err)
		}
		if record.SyncStatus == domain.SyncSynced {
			return
		}
		if record.SyncStatus == domain.SyncFailed {
			t.Fatalf("write sink failed for student=%s word=%s", studentID, wordID)
		}
		if time.Now().After(deadline) {
			t.Fatalf("record never synced: %+v", record)
		}
		time.Sleep(20 * time.Millisecond)
	}
}

func startPostgres(t *testing.T, ctx context.Context) (string, func()) {
	t.Helper()
	req := tc.ContainerRequest{
		Image:        "postgres:15-alpine",
		Env:          map[string]string{"POSTGRES_USER": "spelling", "POSTGRES_PASSWORD": "spellingpass", "POSTGRES_DB": "spellingdb"},
		ExposedPorts: []string{"5432/tcp"},
		WaitingFor:   wait.ForListeningPort("5432/tcp").WithStartupTimeout(60 * time.Second),
	}
	container, err := tc.GenericContainer(ctx, tc.GenericContainerRequest{
		ContainerRequest: req,
		Started:          true,
	})
	if err != nil {
		if strings.Contains(err.Error(), "Cannot connect to the Docker daemon") {
			t.Skipf("docker not available: %v", err)
		}
		t.Fatalf("start postgres: %v", err)
	}
	host, err := container.Host(ctx)
	if err != nil {
		t.Fatalf("host: %v", err)
	}
	port, err := container.MappedPort(ctx, "5432/tcp")
	if err != nil {
		t.Fatalf("port: %v", err)
	}
	dsn := fmt.Sprintf("postgres://spelling:spellingpass@%s:%s/spellingdb?sslmode=disable", host, port.Port())
	return dsn, func() {
		_ = container.Terminate(ctx)
	}
}

func startRedis(t *testing.T, ctx context.Context) (string, func()) {
	t.Helper()
	req := tc.ContainerRequest{
		Image:        "redis:7-alpine",
		ExposedPorts: []string{"6379/tcp"},
		WaitingFor:   wait.ForListeningPort("6379/tcp").WithStartupTimeout(30 * time.Second),
	}
	container, err := tc.GenericContainer(ctx, tc.GenericContainerRequest{
		ContainerRequest: req,
		Started:          true,
	})
	if err != nil {
		if strings.Contains(err.Error(), "Cannot connect to the Docker daemon") {
			t.Skipf("docker not available: %v", err)
		}
		t.Fatalf("start redis: %v", err)
	}
	host, err := container.Host(ctx)
	if err != nil {
		t.Fatalf("redis host: %v", err)
	}
	port, err := container.MappedPort(ctx, "6379/tcp")
	if err != nil {
		t.Fatalf("redis port: %v", err)
	}
	url := fmt.Sprintf("redis://%s:%s", host, port.Port())
	return url, func() {
		_ = container.Terminate(ctx)
	}
}

func seedRound(t *testing.T, ctx context.Context, dsn string) {
	t.Helper()
	sqldb := sql.OpenDB(pgdriver.NewConnector(pgdriver.WithDSN(dsn)))
	db := bun.NewDB(sqldb, pgdialect.New())
	defer db.Close()

	migrator := migrate.NewMigrator(db, pgmigrations.Migrations)
	if err := migrator.Init(ctx); err != nil {
		t.Fatalf("migrator init: %v", err)
	}
	if _, err := migrator.Migrate(ctx); err != nil {
		t.Fatalf("migrate: %v", err)
	}

	stmts := []struct {
		query string
		args  []interface{}
	}{
		{`INSERT INTO test_rounds (id, tenant_id, name) VALUES (?, ?, ?)`, []interface{}{"round-1", "demo", "Dictation 1"}},
		{`INSERT INTO rules (id, tenant_id, code, description) VALUES (?, ?, ?, ?)`, []interface{}{"r1", "demo", "B1", "open syllable"}},
		{`INSERT INTO rules (id, tenant_id, code, description) VALUES (?, ?, ?, ?)`, []interface{}{"r2", "demo", "B2", "closed syllable"}},
		{`INSERT INTO students (id, test_round_id, name) VALUES (?, ?, ?)`, []interface{}{"s1", "round-1", "Alice"}},
		{`INSERT INTO students (id, test_round_id, name) VALUES (?, ?, ?)`, []interface{}{"s2", "round-1", "Bram"}},
		{`INSERT INTO words (id, test_round_id, text, rule_ids) VALUES (?, ?, ?, ?::jsonb)`, []interface{}{"w1", "round-1", "boom", `["r1"]`}},
	}
	for _, stmt := range stmts {
		if _, err := db.ExecContext(ctx, stmt.query, stmt.args...); err != nil {
			t.Fatalf("seed: %v", err)
		}
	}
}

func redisClientFromURL(url string) (*goredis.Client, error) {
	opts, err := goredis.ParseURL(url)
	if err != nil {
		return nil, err
	}
	return goredis.NewClient(opts), nil
}

func requireDocker(t *testing.T) {
	t.Helper()
	if _, err := tc.NewDockerProvider(); err != nil {
		t.Skipf("docker not available: %v", err)
	}
}
