package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/freightdesk/crm-backend/internal/api"
	"github.com/freightdesk/crm-backend/internal/config"
	"github.com/freightdesk/crm-backend/internal/crypto"
	"github.com/freightdesk/crm-backend/internal/db"
	"github.com/freightdesk/crm-backend/internal/imap"
	"github.com/freightdesk/crm-backend/internal/linker"
	"github.com/freightdesk/crm-backend/internal/oauth"
	"github.com/freightdesk/crm-backend/internal/smtp"
	"github.com/freightdesk/crm-backend/internal/sync"
	ws "github.com/freightdesk/crm-backend/internal/websocket"
)

func main() {
	cfg, err := config.NewConfig()
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	pool, err := db.NewConnection(ctx, cfg)
	if err != nil {
		log.Fatalf("Failed to connect to database: %v", err)
	}
	defer db.CloseConnection(pool)

	log.Printf("Successfully connected to database")

	handler, scheduler := NewServer(cfg, pool)

	scheduler.Start(ctx)
	defer scheduler.Stop()

	server := &http.Server{
		Addr:    ":" + cfg.Port,
		Handler: handler,
	}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := server.Shutdown(shutdownCtx); err != nil {
			log.Printf("Warning: server shutdown: %v", err)
		}
	}()

	log.Printf("Mailbox sync daemon starting on :%s (environment: %s)", cfg.Port, cfg.Environment)

	if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		log.Fatalf("Server failed to start: %v", err)
	}

	log.Printf("Mailbox sync daemon stopped")
}

// NewServer wires the sync engine and returns the HTTP handler for the owned
// API surface together with the scheduler driving the background cycles.
func NewServer(cfg *config.Config, dbPool *pgxpool.Pool) (http.Handler, *sync.Scheduler) {
	encryptor, err := crypto.NewEncryptor(cfg.EncryptionKeyBase64)
	if err != nil {
		log.Fatalf("Failed to create encryptor: %v", err)
	}

	wsHub := ws.NewHub(10)
	tokenManager := oauth.NewManager(cfg)
	fetchClient := imap.NewFetchClient(cfg)
	sender := smtp.NewSender(cfg)
	autoLinker := linker.NewAutoLinker(linker.NewCRMDirectory(dbPool), dbPool)

	orchestrator := sync.NewOrchestrator(dbPool, encryptor, fetchClient, sender,
		tokenManager, autoLinker, ws.NewNotifier(wsHub), cfg)
	scheduler := sync.NewScheduler(orchestrator, cfg)

	oauthHandler := api.NewOAuthHandler(dbPool, tokenManager, encryptor)
	syncHandler := api.NewSyncHandler(scheduler)
	wsHandler := api.NewWebSocketHandler(wsHub)

	mux := http.NewServeMux()

	mux.HandleFunc("/", handleRoot)
	mux.HandleFunc("/api/v1/oauth/connect", oauthHandler.Connect)
	mux.HandleFunc("/api/v1/oauth/callback", oauthHandler.Callback)
	// Handles /api/v1/accounts/{account_id}/sync.
	mux.HandleFunc("/api/v1/accounts/", syncHandler.TriggerSync)
	// WebSocket identity comes from a query parameter since browsers can't
	// set headers on WebSocket connections.
	mux.HandleFunc("/api/v1/ws", wsHandler.Handle)

	return mux, scheduler
}

func handleRoot(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "text/plain")
	_, _ = fmt.Fprintf(w, "FreightDesk mailbox sync daemon is running")
}
