// cmd/regenerate/main.go — Reconciles orphaned charge data and regenerates
// Z-reports for closed sessions from the command line.
//
// Usage:
//
//	go run cmd/regenerate/main.go -dry-run                 # plan a full pass
//	go run cmd/regenerate/main.go -store <uuid> -from 2026-08-01 -to 2026-08-31
//	go run cmd/regenerate/main.go -session <uuid> -reason "drawer audit"
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"time"

	"closeout/internal/config"
	"closeout/internal/dto"
	"closeout/internal/infra"
	"closeout/internal/repository"
	"closeout/internal/service"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

func main() {
	var (
		storeID     = flag.String("store", "", "limit to one store (UUID)")
		fromDate    = flag.String("from", "", "closed-at lower bound (YYYY-MM-DD, inclusive)")
		toDate      = flag.String("to", "", "closed-at upper bound (YYYY-MM-DD, inclusive)")
		limit       = flag.Int("limit", 0, "max sessions to process (0 = all)")
		findMissing = flag.Bool("find-missing", true, "search for orphaned charges, receipts and events")
		dryRun      = flag.Bool("dry-run", false, "report what would change without writing")
		sessionID   = flag.String("session", "", "regenerate a single session (UUID or session number) instead of a batch")
		reason      = flag.String("reason", "", "audit note recorded in the closing data")
	)
	flag.Parse()

	log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.RFC3339})

	cfg, err := config.Load()
	if err != nil {
		log.Fatal().Err(err).Msg("failed to load config")
	}
	db, err := infra.NewDatabase(cfg.DatabaseURL)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to connect to postgres")
	}

	// No observer: CLI reconciliation must never fan out notifications.
	sessionRepo := repository.NewSessionRepository(db, nil)
	finder := service.NewOrphanFinder(
		repository.NewChargeRepository(db),
		repository.NewReceiptRepository(db),
		repository.NewEventRepository(db),
		log.With().Str("component", "orphan_finder").Logger(),
	)
	totals := service.NewTotalsRecalculator(service.DrawerCashCalculator{})
	svc := service.NewRegenerationService(sessionRepo, finder, totals,
		service.NewReportGenerator(),
		log.With().Str("component", "regeneration").Logger())

	ctx := context.Background()

	if *sessionID != "" {
		id, err := uuid.Parse(*sessionID)
		if err != nil {
			// Not a UUID; treat it as a session number like Z-0042.
			sess, ferr := sessionRepo.FindByNumber(ctx, *sessionID)
			if ferr != nil {
				log.Fatal().Str("session", *sessionID).Msg("session not found")
			}
			id = sess.ID
		}
		res := svc.RegenerateSession(ctx, id, *findMissing, *reason)
		if !res.Success {
			log.Fatal().Str("error", *res.Error).Msg("regeneration failed")
		}
		fmt.Printf("session %s regenerated: %d charges, %d receipts, %d events linked\n",
			id, res.ChargesFound, res.ReceiptsFound, res.EventsFound)
		return
	}

	req := dto.RegenerateRequest{
		StoreID:         *storeID,
		FromDate:        *fromDate,
		ToDate:          *toDate,
		Limit:           *limit,
		FindMissingData: findMissing,
		DryRun:          *dryRun,
		Reason:          *reason,
	}
	opts, err := req.Options()
	if err != nil {
		log.Fatal().Err(err).Msg("invalid options")
	}

	stats, err := svc.RegenerateBatch(ctx, opts)
	if err != nil {
		log.Fatal().Err(err).Msg("batch regeneration failed")
	}

	if *dryRun {
		fmt.Printf("dry run: %d sessions found, %d processed, nothing written\n", stats.TotalSessions, stats.Processed)
		fmt.Printf("orphans that would link: %d charges, %d receipts, %d events\n",
			stats.ChargesFound, stats.ReceiptsFound, stats.EventsFound)
	} else {
		fmt.Printf("%d sessions found, %d processed, %d regenerated\n", stats.TotalSessions, stats.Processed, stats.Regenerated)
		fmt.Printf("orphans linked: %d charges, %d receipts, %d events\n",
			stats.ChargesFound, stats.ReceiptsFound, stats.EventsFound)
	}
	// Per-session failures do not fail the run; the batch already continued
	// past them and the survivors are regenerated.
	for _, e := range stats.Errors {
		fmt.Fprintf(os.Stderr, "error: %s\n", e)
	}
}
