package cli

import (
	"context"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"spelling-assessment-service/internal/app"
	"spelling-assessment-service/internal/config"
	"spelling-assessment-service/internal/domain"
	"spelling-assessment-service/internal/infra/memory"
	pgstore "spelling-assessment-service/internal/infra/postgres"
	redisstore "spelling-assessment-service/internal/infra/redis"
	transport "spelling-assessment-service/internal/transport/http"
	"github.com/jackc/pgx/v4/pgxpool"
	"github.com/redis/go-redis/v9"
	"github.com/spf13/cobra"
)

// NewStartCmd builds the CLI subcommand to start the server.
func NewStartCmd(configPath, port *string) *cobra.Command {
	return &cobra.Command{
		Use:   "start",
		Short: "Start the assessment server",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServer(cmd.Context(), *configPath, *port)
		},
	}
}

func runServer(ctx context.Context, configPath, portFlag string) error {
	cfg, err := config.Load(configPath)
	if err != nil {
		return err
	}

	if cfg.Postgres.URL != "" {
		if err := runMigrationsWithConfig(ctx, cfg); err != nil {
			return err
		}
	}

	finalPort := portFlag
	if finalPort == "" {
		finalPort = cfg.Server.Port
	}
	if finalPort == "" {
		finalPort = "8080"
	}

	var redisClient *redis.Client
	if cfg.Redis.Addr != "" {
		redisClient = redis.NewClient(&redis.Options{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})
	}
	redisTTL := config.TTLDuration(cfg.Redis.TTL, 24*time.Hour)

	var pool *pgxpool.Pool
	if cfg.Postgres.URL != "" {
		pool, err = pgxpool.Connect(ctx, cfg.Postgres.URL)
		if err != nil {
			return err
		}
	}

	var loader memory.RosterLoader = memory.NewStaticRosterLoader(sampleRosters())
	if pool != nil {
		loader = pgstore.NewRosterLoader(pool)
	}

	rosterTTL := config.TTLDuration(cfg.Roster.TTL, 10*time.Minute)
	var rosters app.RosterRepository
	if redisClient != nil {
		rosters = redisstore.NewRosterCache(redisClient, loader, rosterTTL)
	} else {
		rosters = memory.NewRosterRepository(loader, rosterTTL)
	}

	var rounds app.RoundRepository
	if redisClient != nil {
		rounds = redisstore.NewRoundStore(redisClient, redisTTL)
	} else {
		rounds = memory.NewRoundStore()
	}

	var sinks app.MultiWriter
	if pool != nil {
		sinks = append(sinks, pgstore.NewAssessmentWriter(pool))
	}
	if redisClient != nil {
		sinks = append(sinks, redisstore.NewAssessmentMirror(redisClient, redisTTL))
	}
	var writer app.AssessmentWriter
	if len(sinks) > 0 {
		writer = sinks
	}

	service := app.NewAssessmentService(rounds, rosters, writer)
	wsHandler := transport.NewWSHandler(service)
	reportHandler := transport.NewReportHandler(service)

	mux := http.NewServeMux()
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("ok"))
	})
	mux.HandleFunc("/ws", wsHandler.ServeWS)
	reportHandler.Register(mux)

	server := &http.Server{
		Addr:         ":" + finalPort,
		Handler:      mux,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
	}

	go func() {
		log.Printf("starting assessment service on :%s", finalPort)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Printf("failed to start server: %v", err)
		}
	}()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)

	select {
	case <-stop:
		log.Println("shutting down server...")
	case <-ctx.Done():
		log.Println("context canceled, shutting down server...")
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	return server.Shutdown(shutdownCtx)
}

// sampleRosters provides a minimal demo round; swap the loader for the
// Postgres-backed one in production.
func sampleRosters() map[string]domain.Roster {
	return map[string]domain.Roster{
		"round-1": {
			Round: domain.TestRound{ID: "round-1", TenantID: "demo", Name: "Dictation 1", CreatedAt: time.Now()},
			Rules: []domain.SpellingRule{
				{ID: "r1", Code: "B1", Description: "open syllable"},
				{ID: "r2", Code: "B2", Description: "closed syllable"},
			},
			Words: []domain.Word{
				{ID: "w1", Text: "boom", RuleIDs: []string{"r1"}, TestRoundID: "round-1"},
				{ID: "w2", Text: "bakker", RuleIDs: []string{"r2"}, TestRoundID: "round-1"},
			},
			Students: []domain.Student{
				{ID: "s1", Name: "Alice", TestRoundID: "round-1"},
				{ID: "s2", Name: "Bram", TestRoundID: "round-1"},
			},
		},
	}
}
