// Package main is the entry point for the custody server.
// It only handles dependency injection and server initialization.
// NO business logic belongs here.
package main

import (
	"context"
	"database/sql"
	"encoding/json"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/gorilla/websocket"

	"github.com/custodia-rp/custody-server/internal/custody"
	"github.com/custodia-rp/custody-server/internal/domain/offense"
	"github.com/custodia-rp/custody-server/internal/engine"
	"github.com/custodia-rp/custody-server/internal/events"
	"github.com/custodia-rp/custody-server/internal/fines"
	"github.com/custodia-rp/custody-server/internal/infra/cache"
	"github.com/custodia-rp/custody-server/internal/infra/storage"
	"github.com/custodia-rp/custody-server/internal/network"
	"github.com/custodia-rp/custody-server/internal/platform/config"
	"github.com/custodia-rp/custody-server/internal/platform/logger"
	"github.com/custodia-rp/custody-server/internal/platform/metrics"
)

// PersisterAdapter translates in-memory custody events to storage events.
type PersisterAdapter struct {
	repo storage.EventRepository
}

func (a *PersisterAdapter) Append(event events.CustodyEvent) error {
	payloadBytes, _ := json.Marshal(event.Payload)
	var payloadMap map[string]interface{}
	json.Unmarshal(payloadBytes, &payloadMap)

	storageEvent := storage.StoredEvent{
		ID:        event.ID,
		Timestamp: event.Timestamp,
		EventType: string(event.Type),
		ActorID:   event.ActorID,
		SubjectID: event.SubjectID,
		Payload:   payloadMap,
		TickUnit:  event.TickUnit,
	}
	return a.repo.Append(context.Background(), storageEvent)
}

// LedgerAdapter exposes the offense repository as the booking system's
// authoritative ledger source.
type LedgerAdapter struct {
	repo storage.OffenseRepository
}

func (a *LedgerAdapter) AppendInstances(ctx context.Context, subjectID string, instances []offense.Instance) error {
	entries := make([]storage.OffenseEntry, 0, len(instances))
	now := time.Now()
	for _, inst := range instances {
		entries = append(entries, storage.OffenseEntry{
			SubjectID:  subjectID,
			Kind:       string(inst.Kind),
			VictimType: string(inst.VictimType),
			BookedAt:   now,
		})
	}
	return a.repo.AppendEntries(ctx, entries)
}

func (a *LedgerAdapter) GetLedger(ctx context.Context, subjectID string) (*fines.Ledger, error) {
	entries, err := a.repo.GetBySubject(ctx, subjectID)
	if err != nil {
		return nil, err
	}

	ledger := &fines.Ledger{SubjectID: subjectID}
	for _, entry := range entries {
		ledger.Instances = append(ledger.Instances, &offense.Instance{
			Kind:       offense.Kind(entry.Kind),
			VictimType: offense.VictimType(entry.VictimType),
		})
	}
	return ledger, nil
}

// bootstrapCustodyState replays the persisted log so a restarted server
// resumes countdowns and in-jail membership instead of losing them.
func bootstrapCustodyState(ctx context.Context, eventRepo storage.EventRepository, eng *engine.Engine, appLogger *logger.Logger) {
	reconstructor := storage.NewReconstructor(eventRepo)

	if lastTick, err := reconstructor.LastTick(ctx); err != nil {
		appLogger.Errorf("Failed to recover simulation clock: %v", err)
	} else if lastTick > 0 {
		eng.OverrideTick(lastTick)
		appLogger.Info("Restored simulation clock from database.")
	}

	resumed, err := reconstructor.RebuildActiveSentences(ctx)
	if err != nil {
		appLogger.Errorf("Failed to rebuild active sentences: %v", err)
	} else {
		for _, s := range resumed {
			eng.GetBooking().ResumeSentence(s.SubjectID, s.TotalMinutes, s.RemainingMinutes)
		}
		if len(resumed) > 0 {
			appLogger.Infof("Resumed %d in-flight sentences from the event log.", len(resumed))
		}
	}

	held, err := reconstructor.RebuildInJail(ctx)
	if err != nil {
		appLogger.Errorf("Failed to rebuild in-jail set: %v", err)
		return
	}
	for _, subjectID := range held {
		eng.GetRegistry().SetInJail(subjectID)
	}
}

// recordFinishedSentences follows the event log and writes an audit row for
// every completed or stopped sentence.
func recordFinishedSentences(ctx context.Context, eventLog *events.EventLog, reg *custody.Registry, repo storage.SentenceRepository, appLogger *logger.Logger) {
	pollInterval := time.NewTicker(time.Second)
	defer pollInterval.Stop()

	lastProcessedEvent := 0

	for {
		select {
		case <-ctx.Done():
			return
		case <-pollInterval.C:
			allEvents := eventLog.Replay()
			if len(allEvents) <= lastProcessedEvent {
				continue
			}
			newEvents := allEvents[lastProcessedEvent:]
			lastProcessedEvent = len(allEvents)

			for _, event := range newEvents {
				var outcome string
				switch event.Type {
				case events.EventTypeSentenceCompleted:
					outcome = "COMPLETED"
				case events.EventTypeSentenceStopped:
					outcome = "STOPPED"
				default:
					continue
				}

				snap, ok := reg.CompletedSnapshot(event.SubjectID)
				if !ok {
					appLogger.Warnf("No snapshot for finished sentence of %s, skipping audit row", event.SubjectID)
					continue
				}
				record := storage.SentenceRecord{
					SubjectID:       snap.SubjectID,
					OriginalMinutes: snap.OriginalMinutes,
					ServedMinutes:   snap.ServedMinutes,
					Outcome:         outcome,
					RecordedAt:      event.Timestamp,
				}
				if err := repo.Insert(ctx, record); err != nil {
					appLogger.Errorf("Failed to persist sentence record for %s: %v", snap.SubjectID, err)
				}
			}
		}
	}
}

func main() {
	log.Println("[CUSTODY-SERVER] Initializing authoritative custody server...")

	appLogger := logger.NewLogger()

	cfg, err := config.Load(os.Getenv("CUSTODY_CONFIG"))
	if err != nil {
		appLogger.Error("Failed to load configuration: " + err.Error())
		os.Exit(1)
	}

	appLogger.Info("Initializing SQLite database '" + cfg.Database.Path + "'...")
	db, err := storage.InitSQLite(cfg.Database.Path)
	if err != nil {
		appLogger.Error("Failed to initialize SQLite: " + err.Error())
		os.Exit(1)
	}
	db.SetMaxOpenConns(cfg.Database.MaxOpenConns)
	db.SetMaxIdleConns(cfg.Database.MaxIdleConns)

	offenseRepo := storage.NewSQLiteOffenseRepository(db)
	sentenceRepo := storage.NewSQLiteSentenceRepository(db)

	// The event log can live in Postgres for multi-node deployments; the
	// offense ledger and sentence audit stay local.
	var eventRepo storage.EventRepository = storage.NewSQLiteEventRepository(db)
	if cfg.Database.Driver == "postgres" {
		appLogger.Info("Connecting event log to PostgreSQL...")
		var pgDB *sql.DB
		pgDB, err = storage.OpenPostgres(cfg.Database.DSN)
		if err != nil {
			appLogger.Error("Failed to connect to PostgreSQL: " + err.Error())
			os.Exit(1)
		}
		eventRepo = storage.NewPostgresEventRepository(pgDB)
	}

	appLogger.Info("Bootstrapping EventLog...")
	eventLog := events.NewEventLog(&PersisterAdapter{repo: eventRepo})

	appLogger.Info("Bootstrapping custody engine...")
	m := metrics.New()
	registry := custody.NewRegistry(cfg.Custody.TickRate, appLogger)
	counter := fines.NewMemoryCounter()
	ledgers := &LedgerAdapter{repo: offenseRepo}
	booking := engine.NewBookingSystem(eventLog, registry, counter, ledgers, m, appLogger, cfg.Custody.GlobalMultiplier)
	custodyEngine := engine.NewEngine(eventLog, registry, booking, m, appLogger, cfg.Custody.TickRate)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	bootstrapCustodyState(ctx, eventRepo, custodyEngine, appLogger)

	custodyEngine.Start(ctx)
	go recordFinishedSentences(ctx, eventLog, registry, sentenceRepo, appLogger)

	statusCache, err := cache.New(cfg.Redis.Addr)
	if err != nil {
		appLogger.Warnf("Redis unavailable, continuing without status cache: %v", err)
		statusCache = nil
	} else if statusCache != nil {
		appLogger.Info("Connected to Redis status cache.")
		defer statusCache.Close()
	}

	appLogger.Info("Bootstrapping WebSocket Hub...")
	hub := network.NewHub(custodyEngine, m, appLogger, cfg.Network.ClientSendBuffer)
	go hub.Run(ctx)
	hub.StartEventPoller(ctx, eventLog)

	// Setup API Routes
	r := chi.NewRouter()
	r.Use(middleware.Recoverer)

	dispatch := network.NewDispatchBridge(custodyEngine, eventLog, statusCache, appLogger)
	dispatch.RegisterRoutes(r)

	audit := network.NewAuditHandler(eventLog, appLogger)
	audit.RegisterRoutes(r)

	r.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(map[string]string{"status": "ok"})
	})
	r.Handle("/metrics", metrics.Handler())
	r.Get("/ws", func(w http.ResponseWriter, req *http.Request) {
		serveWs(hub, w, req, appLogger)
	})

	server := &http.Server{
		Addr:    cfg.ListenAddr,
		Handler: r,
	}

	go func() {
		log.Printf("[CUSTODY-SERVER] HTTP API & WS Server listening on %s", cfg.ListenAddr)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("Server failed: %v", err)
		}
	}()

	log.Println("[CUSTODY-SERVER] Server running. Press Ctrl+C to exit.")

	// Graceful shutdown
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Println("[CUSTODY-SERVER] Shutting down...")
	cancel()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer shutdownCancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Printf("[CUSTODY-SERVER] Forced shutdown: %v", err)
	}
}

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin: func(r *http.Request) bool {
		return true // Allow cross-origin requests from the MDT frontend
	},
}

// serveWs handles websocket requests from the peer.
func serveWs(hub *network.Hub, w http.ResponseWriter, r *http.Request, log *logger.Logger) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Error("Failed to upgrade websocket connection")
		return
	}

	client := network.NewClient(hub, conn)
	client.Register()

	// Allow collection of memory referenced by the caller by doing all work in
	// new goroutines.
	go client.WritePump()
	go client.ReadPump()
}
