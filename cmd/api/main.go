package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/jmoiron/sqlx"
	"github.com/joho/godotenv"
	"go.uber.org/zap"

	"github.com/ovaphlow/pitchfork/service-warranty-go/internal/auth"
	"github.com/ovaphlow/pitchfork/service-warranty-go/internal/claim"
	claimrepo "github.com/ovaphlow/pitchfork/service-warranty-go/internal/claim/repo"
	"github.com/ovaphlow/pitchfork/service-warranty-go/internal/config"
	"github.com/ovaphlow/pitchfork/service-warranty-go/internal/member"
	memberrepo "github.com/ovaphlow/pitchfork/service-warranty-go/internal/member/repo"
	"github.com/ovaphlow/pitchfork/service-warranty-go/internal/notify"
	"github.com/ovaphlow/pitchfork/service-warranty-go/internal/reconcile"
	"github.com/ovaphlow/pitchfork/service-warranty-go/internal/router"
	"github.com/ovaphlow/pitchfork/service-warranty-go/internal/shop"
	shoprepo "github.com/ovaphlow/pitchfork/service-warranty-go/internal/shop/repo"
	"github.com/ovaphlow/pitchfork/service-warranty-go/internal/staff"
	staffrepo "github.com/ovaphlow/pitchfork/service-warranty-go/internal/staff/repo"
	"github.com/ovaphlow/pitchfork/service-warranty-go/internal/warranty"
	warrantyrepo "github.com/ovaphlow/pitchfork/service-warranty-go/internal/warranty/repo"
	"github.com/ovaphlow/pitchfork/service-warranty-go/pkg/database"
	"github.com/ovaphlow/pitchfork/service-warranty-go/pkg/utilities"
)

type tableEnsurer interface {
	EnsureTable(ctx context.Context) error
}

func main() {
	// load .env file if present so os.Getenv picks values from it
	_ = godotenv.Load()

	lg, err := utilities.Init(utilities.ConfigFromEnv())
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to init logger: %v\n", err)
		os.Exit(1)
	}
	defer lg.Sync()
	sugar := lg.Sugar()

	cfg, err := config.Load()
	if err != nil {
		sugar.Fatalf("config: %v", err)
	}
	sugar.Infow("starting service-warranty", "addr", cfg.HTTPAddr)

	db, err := database.ConnectX(database.ConfigFromEnv())
	if err != nil {
		sugar.Fatalf("db connect: %v", err)
	}
	defer db.Close()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg, db, sugar); err != nil {
		sugar.Errorw("service stopped with error", "err", err)
		os.Exit(1)
	}
	sugar.Info("goodbye")
}

func run(ctx context.Context, cfg config.Config, db *sqlx.DB, sugar *zap.SugaredLogger) error {
	members := memberrepo.NewMemberRepo(db)
	shops := shoprepo.NewShopRepo(db)
	staffs := staffrepo.NewStaffRepo(db)
	warranties := warrantyrepo.NewWarrantyRepo(db)
	claims := claimrepo.NewClaimRepo(db)
	for _, t := range []tableEnsurer{members, shops, staffs, warranties, claims} {
		if err := t.EnsureTable(ctx); err != nil {
			return fmt.Errorf("ensure tables: %w", err)
		}
	}

	sinks := []notify.Sink{notify.NewLogSink(sugar)}
	if cfg.RedisURL != "" {
		rs, err := notify.NewRedisSinkFromURL(cfg.RedisURL, cfg.NotifyChannel)
		if err != nil {
			return err
		}
		defer rs.Close()
		sinks = append(sinks, rs)
	}
	events := notify.NewAsync(notify.Multi(sinks...), cfg.NotifyTimeout, sugar)

	issuer, err := auth.NewIssuer(cfg.JWTSecret, cfg.JWTIssuer, cfg.JWTTTL)
	if err != nil {
		return err
	}

	memberSvc := member.NewService(members, sugar, cfg.IDRetryLimit)
	shopSvc := shop.NewService(shops, sugar, cfg.IDRetryLimit)
	staffSvc := staff.NewService(staffs, staff.BcryptHasher{Cost: cfg.BcryptCost}, issuer, sugar)
	warrantySvc := warranty.NewService(warranties, memberSvc, claims, events, sugar, warranty.Options{
		IDRetries:    cfg.IDRetryLimit,
		WriteRetries: cfg.WriteRetryLimit,
		TermMonths:   cfg.WarrantyTermMonths,
	})
	reconciler := reconcile.NewReconciler(warranties, sugar)
	claimSvc := claim.NewService(claims, warranties, shopSvc, reconciler, events, sugar, claim.Options{
		IDRetries:    cfg.IDRetryLimit,
		WriteRetries: cfg.WriteRetryLimit,
	})

	if cfg.BootstrapAdminUsername != "" {
		if err := staffSvc.EnsureAdmin(ctx, cfg.BootstrapAdminUsername, cfg.BootstrapAdminPassword); err != nil {
			return fmt.Errorf("bootstrap admin: %w", err)
		}
	}

	handler := router.RegisterRoutes(sugar, issuer, router.Handlers{
		Warranty: warranty.NewHandler(warrantySvc, sugar),
		Claim:    claim.NewHandler(claimSvc, sugar),
		Member:   member.NewHandler(memberSvc, sugar),
		Shop:     shop.NewHandler(shopSvc, sugar),
		Staff:    staff.NewHandler(staffSvc, sugar),
	})
	srv := &http.Server{Addr: cfg.HTTPAddr, Handler: handler}

	errc := make(chan error, 1)
	go func() {
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errc <- err
		}
		close(errc)
	}()
	sugar.Info("service is running; press Ctrl+C to stop")

	select {
	case err := <-errc:
		if err != nil {
			return fmt.Errorf("http server: %w", err)
		}
	case <-ctx.Done():
	}
	sugar.Info("shutting down")

	doneCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(doneCtx); err != nil {
		sugar.Warnf("http server shutdown failed: %v", err)
	}
	// let queued notifications drain before the redis client closes
	if err := events.Wait(doneCtx); err != nil {
		sugar.Warnw("pending notifications dropped", "err", err)
	}
	return nil
}
