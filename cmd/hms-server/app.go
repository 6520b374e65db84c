package main

import (
	"context"
	"crypto/rand"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/labstack/echo/v4"
	"github.com/rs/zerolog"

	"github.com/jashmhta/HMSSSS-sub000/internal/config"
	"github.com/jashmhta/HMSSSS-sub000/internal/domain/appointments"
	"github.com/jashmhta/HMSSSS-sub000/internal/domain/billing"
	"github.com/jashmhta/HMSSSS-sub000/internal/domain/bloodbank"
	"github.com/jashmhta/HMSSSS-sub000/internal/domain/compliance"
	"github.com/jashmhta/HMSSSS-sub000/internal/domain/emergency"
	"github.com/jashmhta/HMSSSS-sub000/internal/domain/laboratory"
	"github.com/jashmhta/HMSSSS-sub000/internal/domain/medicalrecords"
	"github.com/jashmhta/HMSSSS-sub000/internal/domain/patients"
	"github.com/jashmhta/HMSSSS-sub000/internal/domain/pharmacy"
	"github.com/jashmhta/HMSSSS-sub000/internal/domain/radiology"
	"github.com/jashmhta/HMSSSS-sub000/internal/domain/staff"
	"github.com/jashmhta/HMSSSS-sub000/internal/domain/users"
	"github.com/jashmhta/HMSSSS-sub000/internal/platform/auth"
	"github.com/jashmhta/HMSSSS-sub000/internal/platform/cache"
	"github.com/jashmhta/HMSSSS-sub000/internal/platform/db"
	"github.com/jashmhta/HMSSSS-sub000/internal/platform/hipaa"
	"github.com/jashmhta/HMSSSS-sub000/internal/platform/jobs"
	"github.com/jashmhta/HMSSSS-sub000/internal/platform/middleware"
	"github.com/jashmhta/HMSSSS-sub000/internal/platform/notification"
	"github.com/jashmhta/HMSSSS-sub000/internal/platform/queue"
)

// routeRegistrar is implemented by every domain handler.
type routeRegistrar interface {
	RegisterRoutes(api *echo.Group)
}

// app holds the wired object graph shared by the serve and jobs commands.
type app struct {
	cfg    *config.Config
	logger zerolog.Logger

	pool      *pgxpool.Pool
	cache     cache.Cache
	bus       *queue.Bus
	kafka     *queue.KafkaForwarder
	scheduler *jobs.Scheduler
	notifier  *notification.Dispatcher
	tokens    *auth.TokenIssuer
	audit     middleware.AuditRecorder

	users    *users.Service
	handlers []routeRegistrar
	closers  []func() error
}

// newApp connects to the database and cache and builds every service,
// consumer and scheduled job. Callers must call close.
func newApp(ctx context.Context, cfg *config.Config, logger zerolog.Logger) (*app, error) {
	a := &app{cfg: cfg, logger: logger}
	ok := false
	defer func() {
		if !ok {
			a.close()
		}
	}()

	pool, err := db.NewPool(ctx, db.PoolConfig{
		URL:      cfg.DatabaseURL,
		MaxConns: cfg.DBMaxConns,
		MinConns: cfg.DBMinConns,
	}, logger)
	if err != nil {
		return nil, err
	}
	a.pool = pool
	a.closers = append(a.closers, func() error { pool.Close(); return nil })

	c, closeCache, err := newCache(ctx, cfg, logger)
	if err != nil {
		return nil, err
	}
	a.cache = c
	a.closers = append(a.closers, closeCache)

	bus, err := queue.NewBus(queue.DefaultConfig(), logger)
	if err != nil {
		return nil, fmt.Errorf("create event bus: %w", err)
	}
	a.bus = bus

	if cfg.KafkaEnabled() {
		producer, err := queue.NewKafkaProducer(cfg.KafkaBrokers)
		if err != nil {
			return nil, err
		}
		a.kafka = queue.NewKafkaForwarder(producer, cfg.KafkaTopicPrefix, logger)
		a.kafka.Register(bus, queue.ExportedTopics...)
		a.closers = append(a.closers, a.kafka.Close)
		logger.Info().Strs("brokers", cfg.KafkaBrokers).Msg("forwarding domain events to kafka")
	}
	// The router stops before the producer it forwards to.
	a.closers = append(a.closers, bus.Close)

	cipher, err := newFieldCipher(cfg)
	if err != nil {
		return nil, err
	}
	if err := a.wireDomains(pool, cipher); err != nil {
		return nil, err
	}

	ok = true
	return a, nil
}

// wireDomains builds repositories, services, handlers, consumers and jobs.
func (a *app) wireDomains(pool *pgxpool.Pool, cipher hipaa.FieldCipher) error {
	cfg, logger := a.cfg, a.logger
	tx := db.NewTxManager(pool)

	secret, err := jwtSecret(cfg)
	if err != nil {
		return err
	}
	if cfg.JWTSecret == "" {
		logger.Warn().Msg("JWT_SECRET not set, using an ephemeral signing key")
	}
	a.tokens = auth.NewTokenIssuer(secret, cfg.JWTIssuer, cfg.JWTTTL)
	a.users = users.NewService(users.NewRepoPG(pool), a.tokens, logger)

	patientSvc := patients.NewService(patients.NewRepoPG(pool, cipher), a.cache, cfg.CacheTTL, logger)
	staffSvc := staff.NewService(staff.NewDepartmentRepoPG(pool), staff.NewMemberRepoPG(pool),
		a.cache, cfg.CacheTTL, a.bus, logger)

	pd := patientDirectory{patients: patientSvc}
	sd := staffDirectory{members: staffSvc}

	appointmentSvc := appointments.NewService(appointments.NewRepoPG(pool), pd, sd, tx, a.bus, logger)

	lis := laboratory.NewLISClient(cfg.LISURL, cfg.LISAPIKey, cfg.LISTimeout)
	labTests := laboratory.NewTestRepoPG(pool)
	labSvc := laboratory.NewService(laboratory.NewCatalogRepoPG(pool), labTests, laboratory.NewQCRepoPG(pool),
		pd, lis, a.cache, cfg.CacheTTL, a.bus, logger)

	radiologySvc := radiology.NewService(radiology.NewRepoPG(pool), pd, a.bus, logger)

	bloodSvc := bloodbank.NewService(bloodbank.NewDonorRepoPG(pool), bloodbank.NewDonationRepoPG(pool),
		bloodbank.NewUnitRepoPG(pool), bloodbank.NewRequestRepoPG(pool), pd, tx, a.bus, logger)

	pharmacySvc := pharmacy.NewService(pharmacy.NewMedicationRepoPG(pool), pharmacy.NewPrescriptionRepoPG(pool),
		pd, tx, a.bus, logger)

	billingSvc := billing.NewService(billing.NewInvoiceRepoPG(pool), pd, tx, logger)

	complianceSvc := compliance.NewService(compliance.NewAuditRepoPG(pool), compliance.NewConsentRepoPG(pool), pd,
		hipaa.NewRetentionService(hipaa.DefaultRetentionPolicies()), tx, logger)
	a.audit = compliance.NewAuditPublisher(a.bus)

	emergencySvc := emergency.NewService(emergency.NewCaseRepoPG(pool), pd, sd, tx, logger)

	recordsSvc := medicalrecords.NewService(medicalrecords.NewRepoPG(pool), pd, sd,
		appointmentDirectory{appointments: appointmentSvc}, logger)

	// Consumers
	laboratory.NewConsumer(labTests, lis, logger).Register(a.bus)
	billing.NewConsumer(billingSvc, logger).Register(a.bus)
	compliance.NewConsumer(complianceSvc, logger).Register(a.bus)
	a.notifier = notification.NewDispatcher(notification.LogSender{Logger: logger}, logger)
	a.notifier.Subscribe(a.bus)
	if !lis.Enabled() {
		logger.Info().Msg("LIS integration disabled, lab orders stay local")
	}

	// Scheduled maintenance
	a.scheduler = jobs.NewScheduler(logger)
	m := maintenance{
		markNoShows:   appointmentSvc.MarkNoShows,
		licenseExpiry: staffSvc.NotifyExpiringLicenses,
		expireUnits:   bloodSvc.ExpireUnits,
		lowStock:      pharmacySvc.CheckLowStock,
		purgeAudit:    complianceSvc.PurgeAuditLogs,
	}
	for _, job := range m.jobs() {
		if err := a.scheduler.Register(job); err != nil {
			return err
		}
	}

	a.handlers = []routeRegistrar{
		users.NewHandler(a.users),
		patients.NewHandler(patientSvc),
		staff.NewHandler(staffSvc),
		appointments.NewHandler(appointmentSvc),
		laboratory.NewHandler(labSvc),
		radiology.NewHandler(radiologySvc),
		bloodbank.NewHandler(bloodSvc),
		pharmacy.NewHandler(pharmacySvc),
		billing.NewHandler(billingSvc),
		compliance.NewHandler(complianceSvc),
		emergency.NewHandler(emergencySvc),
		medicalrecords.NewHandler(recordsSvc),
		jobs.NewHandler(a.scheduler),
		notification.NewHandler(a.notifier),
	}
	return nil
}

// close releases resources in reverse order of acquisition.
func (a *app) close() {
	for i := len(a.closers) - 1; i >= 0; i-- {
		if err := a.closers[i](); err != nil {
			a.logger.Warn().Err(err).Msg("close failed")
		}
	}
	a.closers = nil
}

// newCache returns Redis when REDIS_URL is set and an in-process cache
// otherwise.
func newCache(ctx context.Context, cfg *config.Config, logger zerolog.Logger) (cache.Cache, func() error, error) {
	if cfg.RedisURL == "" {
		logger.Info().Msg("REDIS_URL not set, using in-memory cache")
		return cache.NewMemory(), func() error { return nil }, nil
	}
	rc, err := cache.NewRedis(ctx, cfg.RedisURL, "hms:")
	if err != nil {
		return nil, nil, err
	}
	return rc, rc.Close, nil
}

// jwtSecret returns the configured signing key. Development servers without
// one get a random key, so tokens do not survive a restart.
func jwtSecret(cfg *config.Config) ([]byte, error) {
	if cfg.JWTSecret != "" {
		return []byte(cfg.JWTSecret), nil
	}
	if !cfg.IsDev() {
		return nil, fmt.Errorf("JWT_SECRET is required when ENV=%q", cfg.Env)
	}
	key := make([]byte, 32)
	if _, err := rand.Read(key); err != nil {
		return nil, fmt.Errorf("generate signing key: %w", err)
	}
	return key, nil
}

// newFieldCipher returns the PHI encryptor, or a pass-through cipher when no
// key is configured (development only; Validate enforces it in production).
func newFieldCipher(cfg *config.Config) (hipaa.FieldCipher, error) {
	key, err := cfg.PHIKey()
	if err != nil {
		return nil, err
	}
	if key == nil {
		return hipaa.PlainText{}, nil
	}
	enc, err := hipaa.NewPHIEncryptor(key)
	if err != nil {
		return nil, err
	}
	return enc, nil
}
