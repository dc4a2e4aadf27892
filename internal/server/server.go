package server

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/gin-contrib/pprof"
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"
	"golang.org/x/sync/errgroup"
	"google.golang.org/grpc"
	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"

	"github.com/victornm/typerace/internal/api"
	"github.com/victornm/typerace/internal/event"
	"github.com/victornm/typerace/internal/leaderboard"
	"github.com/victornm/typerace/internal/session"
	"github.com/victornm/typerace/internal/store"
	"github.com/victornm/typerace/internal/store/postgres"
	"github.com/victornm/typerace/internal/telemetry"
)

type Config struct {
	HTTP struct {
		Port      int32
		StaticDir string `mapstructure:"static_dir"`
	}

	GRPC struct {
		Port int32
	}

	Log struct {
		Level  string
		Format string
	}

	Store StoreConfig

	Redis struct {
		Enabled bool
		Addrs   []string
		Pass    string
		Prefix  string
	}

	WS struct {
		SendBuffer     int   `mapstructure:"send_buffer"`
		MaxMessageSize int64 `mapstructure:"max_message_size"`
	}

	Leaderboard struct {
		Limit int
	}
}

type StoreConfig struct {
	// Driver is one of memory, sqlite or postgres.
	Driver   string
	Postgres postgres.Config
	SQLite   struct {
		Path string
	}
}

// DefaultConfig returns the configuration used for every key missing from
// the config file and the environment.
func DefaultConfig() Config {
	var c Config
	c.HTTP.Port = 3000
	c.GRPC.Port = 3001
	c.Log.Level = "info"
	c.Log.Format = "text"
	c.Store.Driver = "sqlite"
	c.Store.SQLite.Path = "typerace.db"
	c.Redis.Prefix = "typerace"
	c.WS.SendBuffer = 256
	c.WS.MaxMessageSize = 64 << 10
	c.Leaderboard.Limit = store.DefaultLeaderboardLimit
	return c
}

type Server struct {
	c Config

	eb      *event.Bus
	metrics *telemetry.Metrics
	reg     *prometheus.Registry

	infra struct {
		store store.ResultStore
		redis redis.UniversalClient
	}

	service struct {
		leaderboard *leaderboard.Service
		coordinator *session.Coordinator
	}

	hub    *api.Hub
	api    *api.API
	health *health.Server
	http   *http.Server
	grpc   *grpc.Server
}

func Init(c Config) (*Server, error) {
	s := &Server{c: c}

	slog.SetDefault(NewLogger(c.Log.Level, c.Log.Format))

	s.eb = event.NewBus()

	s.reg = prometheus.NewRegistry()
	s.reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	s.metrics = telemetry.NewMetrics(s.reg)

	if err := s.initInfra(); err != nil {
		s.closeInfra()
		return nil, fmt.Errorf("server: init infra: %w", err)
	}

	s.initService()
	s.initAPI()
	return s, nil
}

func (s *Server) initInfra() error {
	if err := s.initStore(); err != nil {
		return fmt.Errorf("store: %w", err)
	}

	if s.c.Redis.Enabled {
		if err := s.initRedis(); err != nil {
			return fmt.Errorf("redis: %w", err)
		}
	}

	return nil
}

func (s *Server) initStore() error {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	st, err := OpenStore(ctx, s.c.Store)
	if err != nil {
		return err
	}

	s.infra.store = st
	slog.InfoContext(ctx, "server: result store ready", "driver", s.c.Store.Driver)
	return nil
}

func (s *Server) initRedis() error {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	r := redis.NewUniversalClient(&redis.UniversalOptions{
		Addrs:    s.c.Redis.Addrs,
		Password: s.c.Redis.Pass,
	})

	if err := telemetry.MonitorRedis(r); err != nil {
		_ = r.Close()
		return err
	}

	if err := r.Ping(ctx).Err(); err != nil {
		_ = r.Close()
		return err
	}

	s.infra.redis = r
	return nil
}

func (s *Server) initService() {
	s.service.leaderboard = leaderboard.NewService(leaderboard.Config{
		Store:    s.infra.store,
		EventBus: s.eb,
		Limit:    s.c.Leaderboard.Limit,
	})

	s.hub = api.NewHub(api.HubConfig{
		SendBuffer: s.c.WS.SendBuffer,
		Metrics:    s.metrics,
	})

	s.service.coordinator = session.NewCoordinator(session.Config{
		Broadcaster: s.hub,
		Store:       s.infra.store,
		Leaderboard: s.service.leaderboard,
		EventBus:    s.eb,
		Metrics:     s.metrics,
	})
}

func (s *Server) initAPI() {
	e := gin.New()
	e.GET("/metrics", gin.WrapH(promhttp.HandlerFor(s.reg, promhttp.HandlerOpts{})))
	pprof.Register(e, "/debug/pprof")
	e.Use(gin.Recovery())

	c := api.Config{
		Coordinator:    s.service.coordinator,
		Leaderboard:    s.service.leaderboard,
		Hub:            s.hub,
		EventBus:       s.eb,
		Metrics:        s.metrics,
		PubsubPrefix:   s.c.Redis.Prefix,
		StaticDir:      s.c.HTTP.StaticDir,
		MaxMessageSize: s.c.WS.MaxMessageSize,
	}
	if s.infra.redis != nil {
		c.Redis = s.infra.redis
	}

	s.api = api.New(c)
	s.api.Register(e)

	s.grpc = grpc.NewServer(telemetry.GRPCServerOptions()...)
	s.health = health.NewServer()
	s.health.SetServingStatus("", healthpb.HealthCheckResponse_NOT_SERVING)
	healthpb.RegisterHealthServer(s.grpc, s.health)

	s.http = &http.Server{
		Addr:              fmt.Sprintf(":%d", s.c.HTTP.Port),
		Handler:           e,
		ReadHeaderTimeout: 60 * time.Second,
	}
}

// Handler returns the HTTP handler serving the API, metrics and pprof.
func (s *Server) Handler() http.Handler {
	return s.http.Handler
}

// Start serves HTTP and gRPC until Shutdown is called.
func (s *Server) Start() error {
	ctx := context.Background()

	lis, err := net.Listen("tcp", fmt.Sprintf(":%d", s.c.GRPC.Port))
	if err != nil {
		return fmt.Errorf("grpc server: listen: %w", err)
	}

	var eg errgroup.Group
	eg.Go(func() error {
		slog.InfoContext(ctx, fmt.Sprintf("server: gRPC listening on port %d", s.c.GRPC.Port))
		return s.grpc.Serve(lis)
	})

	eg.Go(func() error {
		slog.InfoContext(ctx, fmt.Sprintf("server: HTTP listening on port %d", s.c.HTTP.Port))
		if err := s.http.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})

	eg.Go(func() error {
		pctx, cancel := context.WithTimeout(ctx, 5*time.Second)
		defer cancel()

		if err := s.infra.store.Ping(pctx); err != nil {
			slog.ErrorContext(ctx, "server: result store unreachable", "error", err)
			return nil
		}

		s.health.SetServingStatus("", healthpb.HealthCheckResponse_SERVING)
		return nil
	})

	if err := eg.Wait(); err != nil {
		slog.ErrorContext(ctx, "server: shutdown with error", "error", err)
		return err
	}

	return nil
}

func (s *Server) Shutdown() {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	s.health.Shutdown()
	s.grpc.GracefulStop()
	if err := s.http.Shutdown(ctx); err != nil {
		slog.ErrorContext(ctx, "server: shutdown HTTP failed", "error", err)
	}

	s.api.Close()
	s.service.coordinator.Shutdown(ctx)
	s.eb.Stop()
	s.closeInfra()

	slog.InfoContext(ctx, "server: shutdown completed")
}

func (s *Server) closeInfra() {
	if s.infra.store != nil {
		s.infra.store.Close()
	}

	if s.infra.redis != nil {
		if err := s.infra.redis.Close(); err != nil {
			slog.Error("server: close redis failed", "error", err)
		}
	}
}

// NewLogger builds a slog logger writing to stderr. format is text or json.
func NewLogger(level, format string) *slog.Logger {
	var lvl slog.Level
	if err := lvl.UnmarshalText([]byte(level)); err != nil {
		lvl = slog.LevelInfo
	}

	opts := &slog.HandlerOptions{Level: lvl}

	if strings.EqualFold(format, "json") {
		return slog.New(slog.NewJSONHandler(os.Stderr, opts))
	}

	return slog.New(slog.NewTextHandler(os.Stderr, opts))
}
