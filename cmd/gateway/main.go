package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"gatehouse/internal/auth"
	"gatehouse/internal/authz"
	"gatehouse/internal/discovery"
	"gatehouse/internal/gateway"
	"gatehouse/internal/jobs"
	"gatehouse/internal/upload"
	"gatehouse/internal/usertokens"
	"gatehouse/pkg/config"
	"gatehouse/pkg/db"
	"gatehouse/pkg/httpclient"
	"gatehouse/pkg/logger"
)

func main() {
	cfg := config.Load()
	log := logger.New(cfg.Env)

	pool := db.MustConnect(cfg, log)
	rdb := db.MustRedis(cfg, log)

	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))

	var users usertokens.Store
	if pool != nil {
		if err := usertokens.EnsureSchema(context.Background(), pool); err != nil {
			log.Fatalw("schema", "err", err)
		}
		users = usertokens.NewPostgresStore(pool, logger.Named(log, "usertokens"))
	} else {
		users = usertokens.NewMemoryStoreFromEnv(log)
	}
	if rdb != nil && cfg.UserTokenCacheTTL > 0 {
		users = usertokens.NewCachedStore(users, rdb, cfg.UserTokenCacheTTL, log)
	}

	dispatcher := mustDispatcher(cfg, log, users, auth.NewMetrics(reg))

	policies := authz.DefaultPolicies()
	extra, err := authz.LoadTable(cfg.PolicyFile)
	if err != nil {
		log.Fatalw("policy file", "path", cfg.PolicyFile, "err", err)
	}
	engine, err := authz.NewDefaultEngine(logger.Named(log, "authz"), authz.Merge(policies, extra))
	if err != nil {
		log.Fatalw("policy table", "err", err)
	}
	if err := engine.Validate(); err != nil {
		log.Fatalw("policy validation", "err", err)
	}
	if err := engine.Validate(gateway.RoutePolicies...); err != nil {
		log.Fatalw("route policies", "err", err)
	}

	var store jobs.Store = jobs.NewMemoryStore(cfg.JobRetention)
	if rdb != nil {
		store = jobs.NewRedisStore(rdb, cfg.JobRetention)
	}
	sched := jobs.New(logger.Named(log, "jobs"), jobs.WithStore(store), jobs.WithMetrics(jobs.NewMetrics(reg)))
	if err := sched.AddQueue(upload.QueueName, 1); err != nil {
		log.Fatalw("upload queue", "err", err)
	}
	docs := httpclient.New(cfg.DocumentsServiceURL, httpclient.WithAuthorization(auth.SchemeSecureToken+" "+cfg.SecureToken))
	sched.Handle(upload.JobType, upload.NewProcessor(logger.Named(log, "upload"), docs).Handle)

	var registrar *discovery.Registrar
	if cfg.ServiceDiscoveryEnabled {
		if err := sched.AddQueue(jobs.DefaultQueue, cfg.DefaultWorkers); err != nil {
			log.Fatalw("default queue", "err", err)
		}
		address := strings.TrimRight(cfg.ServiceAddress, "/")
		registrar = discovery.NewRegistrar(logger.Named(log, "discovery"),
			discovery.NewClient(log, cfg.RegistryAddresses, cfg.RegistrySecureToken, 10*time.Second),
			discovery.Descriptor{
				ID:          cfg.ServiceID,
				ServiceType: cfg.ServiceType,
				Address:     address,
				HealthURI:   address + "/healthz",
				Tags:        []string{"gateway"},
			})
		sched.Handle(discovery.JobType, registrar.Job())
		if err := sched.AddRecurring(discovery.JobType, cfg.RegistrationCron, jobs.DefaultQueue, discovery.JobType, nil); err != nil {
			log.Fatalw("registration schedule", "err", err)
		}
	}
	if err := sched.Start(context.Background()); err != nil {
		log.Fatalw("scheduler", "err", err)
	}
	if registrar != nil {
		if _, _, err := sched.Trigger(discovery.JobType); err != nil {
			log.Warnw("initial registration", "err", err)
		}
	}

	r := gateway.NewRouter(gateway.Deps{
		Config:    cfg,
		Log:       log,
		Auth:      dispatcher,
		Policies:  engine,
		Jobs:      sched,
		Registrar: registrar,
		Metrics:   promhttp.HandlerFor(reg, promhttp.HandlerOpts{}),
	})

	srv := &http.Server{Addr: cfg.HTTPAddr, Handler: r}
	go func() {
		log.Infow("gateway listening", "addr", cfg.HTTPAddr, "schemes", dispatcher.Order(), "discovery", cfg.ServiceDiscoveryEnabled)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalw("ListenAndServe", "err", err)
		}
	}()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, os.Interrupt, syscall.SIGTERM)
	<-stop
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	_ = srv.Shutdown(ctx)
	if err := sched.Shutdown(ctx); err != nil {
		log.Warnw("scheduler shutdown", "err", err)
	}
	fmt.Println("gateway stopped")
}

// mustDispatcher builds the scheme dispatcher. The default scheme goes first,
// then the configured precedence. Without a JWKS Bearer stays registered and
// rejects every token as invalid.
func mustDispatcher(cfg config.Config, log *zap.SugaredLogger, users usertokens.Store, m *auth.Metrics) *auth.Dispatcher {
	var keys auth.KeySource
	if cfg.JWKSURL != "" {
		keys = auth.NewRemoteKeys(cfg.JWKSURL, 6*time.Hour, &http.Client{Timeout: cfg.AuthUpstreamTimeout})
	} else {
		log.Warnw("OAUTH_AUTHORITY/JWKS_URL not set, bearer tokens will be rejected as invalid")
	}
	schemes := []auth.Scheme{
		auth.NewSecureTokenScheme(cfg.SecureToken),
		auth.NewUserTokenScheme(users),
		auth.NewBearerScheme(cfg.OAuthAuthority, cfg.OAuthAudience, cfg.ClockSkew, keys),
	}
	precedence := append([]string{cfg.AuthDefaultScheme}, cfg.AuthSchemePrecedence...)
	d, err := auth.NewDispatcher(logger.Named(log, "auth"), precedence, schemes,
		auth.WithTimeout(cfg.AuthUpstreamTimeout), auth.WithMetrics(m))
	if err != nil {
		log.Fatalw("auth schemes", "err", err)
	}
	return d
}
