package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/vrischmann/envconfig"

	"github.com/Sh00ty/lbaas-driver/internal/agentmonitor"
	"github.com/Sh00ty/lbaas-driver/internal/agentrpc/kafka"
	"github.com/Sh00ty/lbaas-driver/internal/manager"
	"github.com/Sh00ty/lbaas-driver/internal/metrics"
	"github.com/Sh00ty/lbaas-driver/internal/models"
	"github.com/Sh00ty/lbaas-driver/internal/repository/postgres"
	"github.com/Sh00ty/lbaas-driver/internal/requestwatcher"
	"github.com/Sh00ty/lbaas-driver/internal/scheduler"
	"github.com/Sh00ty/lbaas-driver/internal/selector"
	"github.com/Sh00ty/lbaas-driver/internal/servicebuilder"
)

func loggerLevelFromString(level string) zerolog.Level {
	level = strings.ToLower(level)
	switch level {
	case "error":
		return zerolog.ErrorLevel
	case "warn":
		return zerolog.WarnLevel
	case "info":
		return zerolog.InfoLevel
	case "debug":
		return zerolog.DebugLevel
	}
	return zerolog.WarnLevel
}

type Config struct {
	NodeID      string `envconfig:"DRIVER_NODE_ID"`
	LoggerLevel string `envconfig:"LOGGER_LEVEL"`

	DatabaseHost     string `envconfig:"DATABASE_HOST"`
	DatabaseUser     string `envconfig:"DATABASE_USER"`
	DatabasePassword string `envconfig:"DATABASE_PASSWORD"`
	DatabasePort     uint16 `envconfig:"DATABASE_PORT"`

	QueueAddrs    []string `envconfig:"QUEUE_ADDRS"`
	DispatchTopic string   `envconfig:"QUEUE_AGENT_DISPATCH_TOPIC"`
	RequestTopic  string   `envconfig:"QUEUE_LIFECYCLE_REQUEST_TOPIC"`

	Provider          string        `envconfig:"LB_PROVIDER"`
	Incremental       bool          `envconfig:"LB_INCREMENTAL_DISPATCH,default=false"`
	LazyEntities      bool          `envconfig:"LB_LAZY_ENTITIES,default=true"`
	MaxLeaseWait      time.Duration `envconfig:"LB_MAX_LEASE_WAIT,default=30s"`
	SpecialNamePrefix string        `envconfig:"LB_SPECIAL_NAME_PREFIX"`

	AgentAddrsMask string `envconfig:"AGENT_ADDR_MASK"`
	AgentsCount    int    `envconfig:"AGENTS_TOTAL"`

	StatsdAddr string `envconfig:"STATSD_ADDR,optional"`
}

func main() {
	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt)
	defer cancel()

	appCfg := Config{}
	err := envconfig.Init(&appCfg)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to read app config")
	}
	log.Logger = log.Level(loggerLevelFromString(appCfg.LoggerLevel))

	log.Warn().Msgf("running driver node %s", appCfg.NodeID)

	var mtr metrics.Metrics = metrics.Noop{}
	if appCfg.StatsdAddr != "" {
		mtr = metrics.NewStatsd(appCfg.NodeID, appCfg.StatsdAddr)
	}

	pool, err := postgres.NewPool(
		ctx,
		appCfg.DatabaseUser,
		appCfg.DatabasePassword,
		appCfg.DatabaseHost,
		appCfg.DatabasePort,
	)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to init database pool")
	}
	defer pool.Close()

	bindings := postgres.NewBindingRepository(pool)
	inventory := postgres.NewInventoryRepository(pool)
	entities := postgres.NewEntityRepository(pool)

	sched := scheduler.New(
		scheduler.Config{
			MaxLeaseWait:      appCfg.MaxLeaseWait,
			SpecialNamePrefix: appCfg.SpecialNamePrefix,
		},
		bindings,
		inventory,
		selector.NewConsistentAgentSelector(inventory),
		selector.NewConsistentDeviceSelector(inventory),
		mtr,
	)

	builderMode := servicebuilder.ModeTrustCaller
	if appCfg.LazyEntities {
		builderMode = servicebuilder.ModeLazy
	}
	builder := servicebuilder.New(servicebuilder.Config{Mode: builderMode}, entities)

	rpc := kafka.NewClient(appCfg.QueueAddrs, appCfg.DispatchTopic)
	defer func() {
		if err := rpc.Close(); err != nil {
			log.Error().Err(err).Msg("failed to close kafka writer")
		}
	}()

	mgrCfg := manager.Config{
		Provider:    appCfg.Provider,
		Incremental: appCfg.Incremental,
	}
	deps := manager.Deps{
		Scheduler: sched,
		Builder:   builder,
		RPC:       rpc,
		Status:    entities,
		Remover:   entities,
		Metrics:   mtr,
	}

	watcher := requestwatcher.New(
		appCfg.NodeID,
		appCfg.QueueAddrs,
		appCfg.RequestTopic,
		requestwatcher.Managers{
			LoadBalancers:  manager.NewLoadBalancerManager(mgrCfg, deps),
			Listeners:      manager.NewListenerManager(mgrCfg, deps),
			Pools:          manager.NewPoolManager(mgrCfg, deps),
			Members:        manager.NewMemberManager(mgrCfg, deps),
			HealthMonitors: manager.NewHealthMonitorManager(mgrCfg, deps),
			L7Policies:     manager.NewL7PolicyManager(mgrCfg, deps),
			L7Rules:        manager.NewL7RuleManager(mgrCfg, deps),
			ACLGroups:      manager.NewACLGroupManager(mgrCfg, deps),
		},
	)
	go func() {
		err := watcher.Run(ctx)
		if err != nil && !errors.Is(err, context.Canceled) {
			log.Fatal().Err(err).Msg("failed to consume lifecycle requests")
		}
	}()
	defer func() {
		if err := watcher.Close(); err != nil {
			log.Error().Err(err).Msg("failed to close request reader")
		}
	}()

	var seedNodes []string
	for agentOrderedID := 0; agentOrderedID < appCfg.AgentsCount; agentOrderedID++ {
		seedNodes = append(seedNodes, fmt.Sprintf(appCfg.AgentAddrsMask, agentOrderedID))
	}
	gossipCfg := agentmonitor.Config{
		SeedNodes: seedNodes,
	}
	err = envconfig.Init(&gossipCfg)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to read gossip config")
	}

	agentEvents := make(chan models.AgentEvent, 256)
	memberList, err := agentmonitor.New(ctx, gossipCfg, agentEvents)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to init memberlist")
	}
	go agentmonitor.NewMonitor(agentEvents, inventory).Run(ctx)

	if err := memberList.Join(ctx); err != nil {
		log.Fatal().Err(err).Msg("failed to join gossip cluster")
	}
	log.Info().Msg("successfully joined gossip cluster")

	serverClose := startProbeServer()
	defer serverClose()

	<-ctx.Done()
	if err := memberList.GracefullyClose(time.Second); err != nil {
		log.Error().Err(err).Msg("failed to leave gossip cluster")
	}
}

func startProbeServer() func() {
	mux := http.NewServeMux()
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, r *http.Request) {
		defer r.Body.Close()
		w.WriteHeader(http.StatusOK)
	})
	mux.HandleFunc("/ready", func(w http.ResponseWriter, r *http.Request) {
		defer r.Body.Close()
		w.WriteHeader(http.StatusOK)
	})
	srv := http.Server{
		Handler: mux,
		Addr:    "0.0.0.0:8080",
	}
	go func() {
		err := srv.ListenAndServe()
		if err != nil {
			log.Fatal().Err(err).Msg("failed to start http server")
		}
	}()
	return func() {
		_ = srv.Close()
	}
}
