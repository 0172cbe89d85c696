package main // Entry point package

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"
	_ "time/tzdata" // APP_TIMEZONE must resolve in minimal containers

	"github.com/iliyamo/seat-reservation/internal/bootstrap"
	"github.com/iliyamo/seat-reservation/internal/cache"
	"github.com/iliyamo/seat-reservation/internal/clock"
	"github.com/iliyamo/seat-reservation/internal/config" // Internal config loader
	"github.com/iliyamo/seat-reservation/internal/handler"
	"github.com/iliyamo/seat-reservation/internal/queue"
	"github.com/iliyamo/seat-reservation/internal/router" // Internal router setup
	"github.com/iliyamo/seat-reservation/internal/service"
)

func main() {
	cfg := config.Load() // Load environment config
	log := cfg.NewLogger()
	slog.SetDefault(log)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	store, closeStore, err := bootstrap.OpenStore(ctx, cfg, log)
	if err != nil {
		log.Error("open storage", "err", err)
		os.Exit(1)
	}
	defer closeStore()

	rdb := bootstrap.ConnectRedis(ctx, cfg.Redis, log)
	if rdb != nil {
		defer rdb.Close()
	}

	var wg sync.WaitGroup
	clk := clock.NewSystem()

	bookingOpts := []service.Option{service.WithLocation(cfg.Location), service.WithLogger(log)}
	sweeperOpts := []service.SweeperOption{service.WithInterval(cfg.SweepInterval), service.WithSweepLogger(log)}
	if cfg.EventsEnabled {
		pub := queue.NewPublisher(cfg.RabbitURL, log)
		defer pub.Close()
		bookingOpts = append(bookingOpts, service.WithPublisher(pub))
		sweeperOpts = append(sweeperOpts, service.WithSweepPublisher(pub))

		wg.Add(1)
		go func() {
			defer wg.Done()
			if err := queue.StartEventLogConsumer(ctx, cfg.RabbitURL, cfg.EventLogPath, log); err != nil && !errors.Is(err, context.Canceled) {
				log.Error("event consumer stopped", "err", err)
			}
		}()
	}
	if cfg.SweepLockEnabled {
		if rdb != nil {
			sweeperOpts = append(sweeperOpts, service.WithLocker(cache.NewLocker(rdb, "seats")))
		} else {
			log.Warn("SWEEP_LOCK_ENABLED without redis; every replica sweeps")
		}
	}

	bookings := service.NewBookingService(store, clk, bookingOpts...)
	rooms := service.NewRoomService(store)
	sweeper := service.NewSweeper(store, clk, sweeperOpts...)

	wg.Add(1)
	go func() {
		defer wg.Done()
		if err := sweeper.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
			log.Error("sweeper stopped", "err", err)
		}
	}()

	e := router.New(router.Deps{
		Cfg:      cfg,
		Log:      log,
		Auth:     handler.NewAuthHandler(cfg, store, store),
		Rooms:    handler.NewRoomHandler(rooms, bookings),
		Bookings: handler.NewBookingHandler(bookings),
		Admin:    handler.NewAdminHandler(bookings),
		Sweeper:  sweeper,
		Redis:    rdb,
	})

	go func() {
		log.Info("listening", "addr", cfg.Addr(), "env", cfg.Env, "driver", cfg.DBDriver)
		if err := e.Start(cfg.Addr()); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Error("http server", "err", err)
			stop()
		}
	}()

	<-ctx.Done()
	log.Info("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := e.Shutdown(shutdownCtx); err != nil {
		log.Error("http shutdown", "err", err)
	}
	wg.Wait()
	log.Info("stopped")
}
