package server

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/cors"
	"github.com/rs/zerolog/log"

	"bingohall/internal/analytics"
	"bingohall/internal/broadcast"
	"bingohall/internal/config"
	"bingohall/internal/db"
	"bingohall/internal/engine"
	"bingohall/internal/events"
	"bingohall/internal/metrics"
	"bingohall/internal/players"
	"bingohall/internal/presence"
	"bingohall/internal/relay"
	"bingohall/internal/rooms"
	"bingohall/internal/timers"
	"bingohall/internal/wshub"
)

// Handler returns the routed mux wrapped in CORS.
func (s *Server) Handler(allowedOrigins []string) http.Handler {
	mux := http.NewServeMux()
	if s.Hub != nil {
		mux.Handle("/ws", s.Hub)
	}
	mux.HandleFunc("GET /health", s.handleHealth)
	if s.Metrics != nil {
		mux.Handle("GET /metrics", s.Metrics)
	}
	mux.HandleFunc("GET /admin/rooms", s.requireAdmin(s.handleRooms))
	mux.HandleFunc("GET /admin/reports/house", s.requireAdmin(s.handleHouseReport))
	mux.HandleFunc("GET /admin/reports/winners", s.requireAdmin(s.handleWinnersReport))
	if s.Ledger != nil {
		mux.HandleFunc("GET /admin/ledger", s.requireAdmin(s.handleLedger))
	}
	mux.HandleFunc("POST /admin/adjust", s.requireAdmin(s.handleAdjust))

	c := cors.New(cors.Options{
		AllowedOrigins: allowedOrigins,
		AllowedMethods: []string{http.MethodGet, http.MethodPost},
		AllowedHeaders: []string{"Authorization", "Content-Type"},
	})
	return c.Handler(mux)
}

// originPatterns turns CORS origins into the host patterns the WebSocket
// handshake checks.
func originPatterns(origins []string) []string {
	out := make([]string, 0, len(origins))
	for _, o := range origins {
		if _, host, ok := strings.Cut(o, "://"); ok {
			o = host
		}
		out = append(out, strings.TrimSuffix(o, "/"))
	}
	return out
}

// announceShutdown tells every open connection the server is going away.
func announceShutdown(out *broadcast.Broadcaster) {
	out.BroadcastAll(events.Event{Type: events.Error, Code: "server_shutdown"})
}

func Run() error {
	appCfg := config.Load()
	setupLogging(appCfg.LogLevel, appCfg.LogFormat)

	engCfg, err := appCfg.Engine()
	if err != nil {
		return err
	}

	clock := clockwork.NewRealClock()
	tracker := presence.NewTracker()
	out := broadcast.NewBroadcaster(tracker)

	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	collector := metrics.New(reg)
	out.OnDrop = collector.FrameDropped

	srv := &Server{
		AdminToken: appCfg.AdminToken,
		Metrics:    promhttp.HandlerFor(reg, promhttp.HandlerOpts{}),
	}

	var roomStore rooms.Store
	var accountStore players.Store

	// Optional database connection
	if appCfg.DatabaseURL != "" {
		database, err := db.Connect(appCfg.DatabaseURL)
		if err != nil {
			log.Warn().Err(err).Msg("Database unavailable, running in memory")
		} else {
			defer database.Close()
			if err := database.Migrate(); err != nil {
				return err
			}
			accounts := db.NewAccountStore(database, appCfg.StartingBalance, clock)
			roomStore = db.NewRoomStore(database, clock)
			accountStore = accounts
			srv.Ledger = accounts
			srv.DB = database
			srv.Reports = analytics.NewQueries(database)
		}
	} else {
		log.Info().Msg("DATABASE_URL not set, running in memory")
	}
	if roomStore == nil {
		mem := players.NewMemoryStore(appCfg.StartingBalance, clock)
		roomStore = rooms.NewMemoryStore(clock)
		accountStore = mem
		srv.Reports = analytics.MemoryReports{Store: mem}
		srv.Ledger = analytics.MemoryReports{Store: mem}
	}

	var notifier events.Notifier = out
	if appCfg.NatsURL != "" {
		rcfg := relay.DefaultConfig()
		rcfg.URL = appCfg.NatsURL
		rcfg.SubjectPrefix = appCfg.NatsPrefix
		rl, err := relay.Connect(rcfg)
		if err != nil {
			log.Warn().Err(err).Msg("NATS unavailable, relay disabled")
		} else {
			defer rl.Close()
			notifier = events.Multi{out, rl}
		}
	}

	eng := engine.New(engCfg, engine.Deps{
		Rooms:    roomStore,
		Accounts: accountStore,
		Presence: tracker,
		Timers:   timers.NewRegistry(clock),
		Notifier: notifier,
		Metrics:  collector,
		Clock:    clock,
	})
	srv.Engine = eng
	srv.Hub = wshub.NewHub(eng, out, tracker, wshub.Options{
		OriginPatterns: originPatterns(appCfg.AllowedOrigins),
		RatePerSecond:  appCfg.WSRate,
		Burst:          appCfg.WSBurst,
	})

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	go eng.RunSweepers(ctx)

	httpSrv := &http.Server{
		Addr:              "0.0.0.0:" + appCfg.Port,
		Handler:           srv.Handler(appCfg.AllowedOrigins),
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		log.Info().Str("addr", httpSrv.Addr).Msg("Server listening")
		if err := httpSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	select {
	case <-ctx.Done():
		log.Info().Msg("Shutdown signal received")
	case err := <-errCh:
		return err
	}

	announceShutdown(out)
	eng.Shutdown()
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	return httpSrv.Shutdown(shutdownCtx)
}
