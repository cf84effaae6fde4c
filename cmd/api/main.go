package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"log/slog"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/cmlabs-hris/fieldtime-backend/internal/config"
	"github.com/cmlabs-hris/fieldtime-backend/internal/domain/event"
	"github.com/cmlabs-hris/fieldtime-backend/internal/domain/notification"
	appHTTP "github.com/cmlabs-hris/fieldtime-backend/internal/handler/http"
	"github.com/cmlabs-hris/fieldtime-backend/internal/pkg/broadcast"
	"github.com/cmlabs-hris/fieldtime-backend/internal/pkg/cron"
	"github.com/cmlabs-hris/fieldtime-backend/internal/pkg/database"
	"github.com/cmlabs-hris/fieldtime-backend/internal/pkg/dedup"
	"github.com/cmlabs-hris/fieldtime-backend/internal/pkg/email"
	"github.com/cmlabs-hris/fieldtime-backend/internal/pkg/jwt"
	"github.com/cmlabs-hris/fieldtime-backend/internal/pkg/lock"
	"github.com/cmlabs-hris/fieldtime-backend/internal/pkg/push"
	"github.com/cmlabs-hris/fieldtime-backend/internal/pkg/sse"
	"github.com/cmlabs-hris/fieldtime-backend/internal/repository/postgresql"
	geofenceService "github.com/cmlabs-hris/fieldtime-backend/internal/service/geofence"
	notificationService "github.com/cmlabs-hris/fieldtime-backend/internal/service/notification"
	timesheetService "github.com/cmlabs-hris/fieldtime-backend/internal/service/timesheet"
	workSummaryService "github.com/cmlabs-hris/fieldtime-backend/internal/service/worksummary"
	"github.com/redis/go-redis/v9"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		fmt.Println("Error loading config:", err)
		return
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	loc, err := cfg.Location()
	if err != nil {
		log.Fatal("Invalid timezone:", err)
	}

	dsn := cfg.DatabaseURL()
	db, err := database.NewPostgreSQLDB(dsn)
	if err != nil {
		fmt.Println("Error connecting to database:", err)
		return
	}
	defer db.Close()

	// Shared coordination: Redis when configured, process memory otherwise.
	var (
		locker lock.Locker = lock.NewLocalLocker()
		seen   dedup.Store = dedup.NewMemoryStore()
	)
	if cfg.Redis.Enabled() {
		rdb := redis.NewClient(&redis.Options{
			Addr:     cfg.Redis.Addr(),
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})
		if err := rdb.Ping(ctx).Err(); err != nil {
			log.Fatal("Failed to connect to redis:", err)
		}
		defer rdb.Close()
		locker = lock.NewRedisLocker(rdb, 3, 100*time.Millisecond)
		seen = dedup.NewRedisStore(rdb, "fieldtime:")
	} else {
		slog.Warn("REDIS_HOST not set, locks and notification dedup are process local")
	}

	zoneRepo := postgresql.NewZoneRepository(db)
	timesheetRepo := postgresql.NewTimesheetRepository(db)
	approvalRepo := postgresql.NewApprovalRepository(db)
	auditRepo := postgresql.NewAuditRepository(db)
	notificationRepo := postgresql.NewNotificationRepository(db)
	directoryRepo := postgresql.NewDirectoryRepository(db)
	workSummaryRepo := postgresql.NewWorkSummaryRepository(db)
	transactor := postgresql.NewTransactor(db)

	JWTService, err := jwt.NewJWTService(cfg.JWT.Secret, cfg.JWT.AccessExpiration)
	if err != nil {
		log.Fatal("Failed to initialize JWT service:", err)
	}

	emailService, err := email.NewEmailService(cfg.SMTP)
	if err != nil {
		log.Fatal("Failed to initialize email service:", err)
	}

	hub := sse.NewHub()
	channels := map[notification.Channel]notificationService.Channel{
		notification.ChannelInApp: notificationService.NewInAppChannel(notificationRepo, hub),
		notification.ChannelEmail: notificationService.NewEmailChannel(emailService),
	}

	if cfg.Firebase.Enabled() {
		fcm, err := push.NewFCM(ctx, cfg.Firebase.ProjectID, cfg.Firebase.CredentialsFile)
		if err != nil {
			log.Fatal("Failed to initialize firebase messaging:", err)
		}
		channels[notification.ChannelPush] = notificationService.NewPushChannel(fcm)
	} else {
		slog.Warn("FIREBASE_PROJECT_ID not set, push channel disabled")
	}

	if cfg.PubSub.Enabled() {
		ps, err := broadcast.NewPubSub(ctx, cfg.PubSub.ProjectID, cfg.PubSub.TopicID, cfg.PubSub.CredentialsJSON)
		if err != nil {
			log.Fatal("Failed to initialize pubsub:", err)
		}
		defer ps.Close()
		channels[notification.ChannelBroadcast] = notificationService.NewBroadcastChannel(ps)
	} else {
		slog.Warn("PUBSUB_PROJECT_ID/PUBSUB_TOPIC_ID not set, broadcast channel disabled")
	}

	nc := cfg.Notification
	dispatcher := notificationService.NewNotificationService(notificationService.Deps{
		Repo:      notificationRepo,
		Directory: directoryRepo,
		Hub:       hub,
		Dedup:     seen,
		Channels:  channels,
	}, notificationService.Config{
		WorkerCount:            nc.WorkerCount,
		QueueSize:              nc.QueueSize,
		MaxRetries:             nc.MaxRetries,
		RetryBackoff:           nc.RetryBackoff,
		DedupTTL:               nc.DedupTTL,
		MaxPerHour:             nc.MaxPerHour,
		BusinessHourStart:      nc.BusinessHourStart,
		BusinessHourEnd:        nc.BusinessHourEnd,
		Location:               loc,
		CriticalDistanceMeters: nc.CriticalDistanceMeters,
		MuteEmployeeOnApproval: nc.MuteEmployeeOnApproval,
	})

	summarySvc := workSummaryService.NewWorkSummaryService(timesheetRepo, workSummaryRepo, nil)
	summaryWorker := workSummaryService.NewWorker(summarySvc, workSummaryService.WorkerConfig{})

	events := event.Fanout{dispatcher, summaryWorker}

	validator := geofenceService.NewLocationValidator(zoneRepo, events, geofenceService.ValidatorConfig{
		LookupTimeout:     cfg.Geofence.LookupTimeout,
		MaxAccuracyMeters: cfg.Geofence.MaxAccuracyMeters,
		MaxLocationAge:    cfg.Geofence.MaxLocationAge,
	})
	zoneSvc := geofenceService.NewZoneService(zoneRepo)

	workflow := timesheetService.NewWorkflow(timesheetService.WorkflowDeps{
		Timesheets: timesheetRepo,
		Approvals:  approvalRepo,
		Audit:      auditRepo,
		Authorizer: directoryRepo,
		Tx:         transactor,
		Locker:     locker,
		Publisher:  events,
	}, timesheetService.WorkflowConfig{
		LockTTL:       cfg.Workflow.LockTTL,
		LookupTimeout: cfg.Workflow.LookupTimeout,
	})
	timesheetSvc := timesheetService.NewTimesheetService(timesheetRepo, approvalRepo, transactor, validator, timesheetService.Config{
		WeeklyHourLimit:      cfg.Workflow.WeeklyHourLimit,
		MonthlyOvertimeLimit: cfg.Workflow.MonthlyOvertimeLimit,
	})

	scheduler := cron.NewScheduler(loc)
	if cfg.Cron.Enabled {
		jobs := cron.NewTimesheetJobs(timesheetSvc, summarySvc, cron.TimesheetJobsConfig{
			OfflineSpec:      cfg.Cron.OfflineSpec,
			OfflineMaxAge:    cfg.Cron.OfflineMaxAge,
			OfflineBatchSize: cfg.Cron.OfflineBatchSize,
			ReconcileSpec:    cfg.Cron.ReconcileSpec,
			CleanupSpec:      cfg.Cron.CleanupSpec,
			Retention:        cfg.Cron.Retention,
		})
		if err := jobs.RegisterJobs(scheduler); err != nil {
			log.Fatal("Failed to register cron jobs:", err)
		}
		scheduler.Start()
	}

	router := appHTTP.NewRouter(appHTTP.RouterConfig{
		Version:        cfg.App.Version,
		Env:            cfg.App.Env,
		AllowedOrigins: cfg.App.AllowedOrigins,
		LogLevel:       logLevel(cfg.App.LogLevel),
	}, JWTService, appHTTP.Handlers{
		Geofence:     appHTTP.NewGeofenceHandler(validator, zoneSvc),
		Timesheet:    appHTTP.NewTimesheetHandler(timesheetSvc, workflow),
		WorkSummary:  appHTTP.NewWorkSummaryHandler(summarySvc),
		Notification: appHTTP.NewNotificationHandler(dispatcher, JWTService),
	})

	port := fmt.Sprintf(":%d", cfg.App.Port)
	server := &http.Server{
		Addr:              port,
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		fmt.Printf("Server running at http://localhost%s\n", port)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			fmt.Println("Server error:", err)
			stop()
		}
	}()

	<-ctx.Done()
	slog.Info("Shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		slog.Error("HTTP shutdown error", "error", err)
	}

	// Producers first so queued events still reach the workers.
	scheduler.Stop()
	dispatcher.Stop()
	summaryWorker.Stop()
}

func logLevel(v string) slog.Level {
	var level slog.Level
	if err := level.UnmarshalText([]byte(v)); err != nil {
		return slog.LevelInfo
	}
	return level
}
