// Command crankd runs the round-lifecycle orchestrator and its broadcast
// gateway for the snakepit wagering arena.
package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/rs/zerolog"

	"snakepit-crank/internal/archive"
	"snakepit-crank/internal/chain"
	"snakepit-crank/internal/config"
	"snakepit-crank/internal/crank"
	"snakepit-crank/internal/gateway"
	"snakepit-crank/internal/social"
	"snakepit-crank/internal/state"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "load config: %v\n", err)
		os.Exit(1)
	}
	log := newLogger(cfg.LogLevel)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	wallet, err := chain.LoadWallet(cfg.WalletPath)
	if err != nil {
		log.Fatal().Err(err).Msg("load operating wallet")
	}
	l1 := chain.NewRPCClient(cfg.L1RPCURL, cfg.ProgramID, wallet)
	er := chain.NewRPCClient(cfg.ERRPCURL, cfg.ProgramID, wallet)

	arch, archiveMode, err := archive.NewService(cfg.ArchiveMode, cfg.ArchiveDSN)
	if err != nil {
		log.Fatal().Err(err).Msg("init round archive")
	}
	defer arch.Close()

	gw := gateway.New(gateway.Options{
		Path:                      cfg.WSPath,
		MaxSubscriptionsPerSocket: cfg.MaxSubscriptionsPerSocket,
		MaxConnectionsPerIPPerMin: cfg.MaxConnectionsPerIPPerMin,
	}, log)

	rt := &crank.Runtime{
		Cfg:     cfg,
		Log:     log,
		Store:   state.NewStore(),
		L1:      l1,
		ER:      er,
		Gateway: gw,
		Archive: arch,
		Social:  social.NewClient(cfg.SocialAPIKey, cfg.SocialNamespace, log),
	}

	if err := crank.ValidateStartup(ctx, rt); err != nil {
		log.Fatal().Err(err).Msg("startup guard failed")
	}

	orch := crank.New(rt)

	mux := http.NewServeMux()
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, map[string]any{"ok": true})
	})
	mux.HandleFunc("/status", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, statusResponse{
			Orchestrator: orchestratorView(orch.Status()),
			WS:           gw.GetStatus(),
		})
	})
	mux.HandleFunc(cfg.WSPath, gw.HandleWebSocket)
	archive.NewHTTPHandler(arch).RegisterRoutes(mux)

	server := &http.Server{
		Addr:    fmt.Sprintf(":%d", cfg.Port),
		Handler: mux,
	}
	go func() {
		log.Info().Int("port", cfg.Port).Str("wsPath", cfg.WSPath).Msg("http server listening")
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Error().Err(err).Msg("http server failed")
			stop()
		}
	}()

	log.Info().Str("archive", archiveMode).Msg("starting crank orchestrator")
	if err := orch.Run(ctx); err != nil {
		log.Error().Err(err).Msg("orchestrator stopped")
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	_ = server.Shutdown(shutdownCtx)
	log.Info().Msg("crank stopped")
}

func newLogger(level string) zerolog.Logger {
	lvl, err := zerolog.ParseLevel(level)
	if err != nil {
		lvl = zerolog.InfoLevel
	}
	return zerolog.New(os.Stderr).Level(lvl).With().Timestamp().Logger()
}

type statusResponse struct {
	Orchestrator orchestratorStatus `json:"orchestrator"`
	WS           gateway.Status     `json:"ws"`
}

// orchestratorStatus mirrors RuntimeState for the wire. Round identifiers are
// decimal strings so browser clients never lose 64-bit precision.
type orchestratorStatus struct {
	Phase                   string  `json:"phase"`
	CurrentRoundID          *string `json:"currentRoundId"`
	BettingDeadlineMs       int64   `json:"bettingDeadlineMs"`
	PhaseSinceMs            int64   `json:"phaseSinceMs"`
	RoundCreatedAtMs        int64   `json:"roundCreatedAtMs"`
	BettingClosedAtMs       int64   `json:"bettingClosedAtMs"`
	GameStartedAtMs         int64   `json:"gameStartedAtMs"`
	GameEndedAtMs           int64   `json:"gameEndedAtMs"`
	SettledAtMs             int64   `json:"settledAtMs"`
	CleanupCompletedRoundID *string `json:"cleanupCompletedRoundId"`
	Retries                 int     `json:"retries"`
	LastTx                  string  `json:"lastTx"`
}

func orchestratorView(st state.RuntimeState) orchestratorStatus {
	view := orchestratorStatus{
		Phase:             string(st.Phase),
		BettingDeadlineMs: st.BettingDeadlineMs,
		PhaseSinceMs:      st.PhaseSinceMs,
		RoundCreatedAtMs:  st.RoundCreatedAtMs,
		BettingClosedAtMs: st.BettingClosedAtMs,
		GameStartedAtMs:   st.GameStartedAtMs,
		GameEndedAtMs:     st.GameEndedAtMs,
		SettledAtMs:       st.SettledAtMs,
		Retries:           st.Retries,
		LastTx:            st.LastTx,
	}
	if st.HasRound {
		id := strconv.FormatUint(st.CurrentRoundID, 10)
		view.CurrentRoundID = &id
	}
	if st.CleanupCompletedValid {
		id := strconv.FormatUint(st.CleanupCompletedRoundID, 10)
		view.CleanupCompletedRoundID = &id
	}
	return view
}

func writeJSON(w http.ResponseWriter, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	_ = json.NewEncoder(w).Encode(body)
}
