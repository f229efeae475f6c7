package main

import (
	"context"
	"database/sql"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"
	_ "time/tzdata"

	"github.com/joho/godotenv"

	"github.com/MrJamesThe3rd/medtrain/internal/account"
	accountStore "github.com/MrJamesThe3rd/medtrain/internal/account/store"
	"github.com/MrJamesThe3rd/medtrain/internal/auth"
	"github.com/MrJamesThe3rd/medtrain/internal/auth/redisstore"
	authStore "github.com/MrJamesThe3rd/medtrain/internal/auth/store"
	"github.com/MrJamesThe3rd/medtrain/internal/booking"
	bookingStore "github.com/MrJamesThe3rd/medtrain/internal/booking/store"
	"github.com/MrJamesThe3rd/medtrain/internal/catalogue"
	catalogueStore "github.com/MrJamesThe3rd/medtrain/internal/catalogue/store"
	"github.com/MrJamesThe3rd/medtrain/internal/config"
	"github.com/MrJamesThe3rd/medtrain/internal/database"
	"github.com/MrJamesThe3rd/medtrain/internal/export"
	medtrainHttp "github.com/MrJamesThe3rd/medtrain/internal/http"
	accountHandler "github.com/MrJamesThe3rd/medtrain/internal/http/account"
	authHandler "github.com/MrJamesThe3rd/medtrain/internal/http/auth"
	bookingHandler "github.com/MrJamesThe3rd/medtrain/internal/http/booking"
	catalogueHandler "github.com/MrJamesThe3rd/medtrain/internal/http/catalogue"
	exportHandler "github.com/MrJamesThe3rd/medtrain/internal/http/export"
	"github.com/MrJamesThe3rd/medtrain/internal/importer"
	"github.com/MrJamesThe3rd/medtrain/internal/meeting"
	"github.com/MrJamesThe3rd/medtrain/internal/notification"
	"github.com/MrJamesThe3rd/medtrain/internal/reminder"
)

// scheduleZone is the zone session spreadsheets are written in.
const scheduleZone = "Europe/London"

func main() {
	_ = godotenv.Load()

	cfg, err := config.Load()
	if err != nil {
		slog.Error("failed to load config", "error", err)
		os.Exit(1)
	}

	db, err := database.New(cfg.ConnectionString())
	if err != nil {
		slog.Error("failed to connect to database", "error", err)
		os.Exit(1)
	}
	defer db.Close()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := database.Migrate(ctx, db); err != nil {
		slog.Error("failed to migrate database", "error", err)
		os.Exit(1)
	}

	if len(os.Args) > 1 && os.Args[1] == "create-admin" {
		if err := createAdmin(ctx, db, os.Args[2:]); err != nil {
			slog.Error("failed to create admin", "error", err)
			os.Exit(1)
		}

		return
	}

	if cfg.Auth.JWTSecret == "" {
		slog.Error("JWT_SECRET is required")
		os.Exit(1)
	}

	london, err := time.LoadLocation(scheduleZone)
	if err != nil {
		slog.Error("failed to load schedule time zone", "zone", scheduleZone, "error", err)
		os.Exit(1)
	}

	redisClient := redisstore.NewClient(cfg.Redis.Addr, cfg.Redis.Password, cfg.Redis.DB)
	defer redisClient.Close()

	if err := redisClient.Ping(ctx).Err(); err != nil {
		slog.Error("failed to connect to redis", "addr", cfg.Redis.Addr, "error", err)
		os.Exit(1)
	}

	sender, closeSender, err := newSender(cfg)
	if err != nil {
		slog.Error("failed to connect to message broker", "error", err)
		os.Exit(1)
	}
	defer closeSender()

	var meetings booking.MeetingProvisioner = meeting.NewSimulated()
	if cfg.Meeting.APIToken != "" {
		meetings = meeting.NewClient(cfg.Meeting.BaseURL, cfg.Meeting.HostUser, cfg.Meeting.APIToken)
	} else {
		slog.Warn("MEETING_API_TOKEN not set, using simulated meetings")
	}

	sessionStore := redisstore.New(redisClient)
	dispatcher := notification.NewDispatcher(sender)

	var (
		catalogueService = catalogue.NewService(catalogueStore.New(db))
		accountService   = account.NewService(accountStore.New(db))
		bookingService   = booking.NewService(
			bookingStore.New(db),
			catalogueService,
			accountService,
			meetings,
			dispatcher,
			booking.Config{RefPrefix: cfg.Booking.RefPrefix, Currency: cfg.Booking.Currency},
		)
		authService = auth.NewService(sessionStore, sessionStore, authStore.New(db), dispatcher, auth.Config{
			Secret:      []byte(cfg.Auth.JWTSecret),
			CustomerTTL: cfg.Auth.CustomerTTL,
			AdminTTL:    cfg.Auth.AdminTTL,
			CodeTTL:     cfg.Auth.CodeTTL,
			MaxAttempts: cfg.Auth.MaxCodeAttempts,
		})
		importService = importer.NewService(catalogueService, london)
		exportService = export.NewService(bookingService, catalogueService)
	)

	var (
		authH      = authHandler.NewHandler(authService)
		catalogueH = catalogueHandler.NewHandler(catalogueService, importService)
		bookingH   = bookingHandler.NewHandler(bookingService)
		accountH   = accountHandler.NewHandler(accountService)
		exportH    = exportHandler.NewHandler(exportService)
	)

	router := medtrainHttp.New(
		medtrainHttp.Options{AllowedOrigins: cfg.App.AllowedOrigins, Timeout: cfg.Server.Timeout},
		authService,
		authH, catalogueH, bookingH, accountH, exportH,
	)

	go reminder.NewScheduler(bookingService, cfg.Reminder.Interval).Run(ctx)

	srv := &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.App.Port),
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		slog.Info("starting server", "port", srv.Addr, "app", cfg.App.Name)

		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			slog.Error("server failed", "error", err)
			stop()
		}
	}()

	<-ctx.Done()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()

	slog.Info("shutting down")

	if err := srv.Shutdown(shutdownCtx); err != nil {
		slog.Error("shutdown failed", "error", err)
	}
}

// newSender publishes to the broker when one is configured and otherwise
// writes notifications to the log.
func newSender(cfg *config.Config) (notification.Sender, func(), error) {
	if cfg.AMQP.URL == "" {
		slog.Warn("AMQP_URL not set, notifications are logged only")
		return notification.NewLogSender(nil), func() {}, nil
	}

	s, err := notification.NewAMQPSender(cfg.AMQP.URL, cfg.AMQP.Exchange)
	if err != nil {
		return nil, nil, err
	}

	return s, func() {
		if err := s.Close(); err != nil {
			slog.Warn("failed to close broker connection", "error", err)
		}
	}, nil
}

func createAdmin(ctx context.Context, db *sql.DB, args []string) error {
	fs := flag.NewFlagSet("create-admin", flag.ContinueOnError)
	username := fs.String("username", "", "admin username")
	email := fs.String("email", "", "address login codes are sent to")

	if err := fs.Parse(args); err != nil {
		return err
	}

	password := os.Getenv("ADMIN_PASSWORD")
	if password == "" {
		var err error
		if password, err = promptPassword(); err != nil {
			return err
		}
	}

	// Creating an admin needs neither sessions nor a code sender.
	svc := auth.NewService(nil, nil, authStore.New(db), nil, auth.Config{})

	a, err := svc.CreateAdmin(ctx, *username, *email, password)
	if err != nil {
		return err
	}

	slog.Info("admin created", "id", a.ID, "username", a.Username)

	return nil
}
