package server

import (
	"context"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/hatlonely/tablex/cfg"
	"github.com/hatlonely/tablex/log"
	"github.com/hatlonely/tablex/log/logger"
	"github.com/hatlonely/tablex/workset"
	"github.com/pkg/errors"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

type Options struct {
	Addr         string        `cfg:"addr" def:":8080"`
	ReadTimeout  time.Duration `cfg:"readTimeout" def:"15s"`
	WriteTimeout time.Duration `cfg:"writeTimeout" def:"60s"`
	IdleTimeout  time.Duration `cfg:"idleTimeout" def:"60s"`
	// 单个请求的处理超时
	RequestTimeout time.Duration `cfg:"requestTimeout" def:"30s"`
	// 请求体大小上限，单位字节
	MaxBodyBytes int64 `cfg:"maxBodyBytes" def:"10485760" validate:"min=1"`
	// 单次查询最多返回的记录数，limit 参数超过时截断
	MaxLimit int `cfg:"maxLimit" def:"1000" validate:"min=1"`
}

// Backend 服务端需要的数据访问能力，rdb.Manager 实现了该接口
type Backend interface {
	workset.DataSource
	workset.Persister
	SearchRecords(ctx context.Context, connectionID string, table string, term string, offset int, limit int) ([]workset.Record, error)
}

type Option func(*Server)

func WithLogger(l logger.Logger) Option {
	return func(s *Server) { s.log = l }
}

// WithGatherer /metrics 暴露的指标来源，默认为 prometheus.DefaultGatherer
func WithGatherer(gatherer prometheus.Gatherer) Option {
	return func(s *Server) { s.gatherer = gatherer }
}

// Server 通过 HTTP 暴露数据访问层
type Server struct {
	options  *Options
	backend  Backend
	log      logger.Logger
	gatherer prometheus.Gatherer
	router   *chi.Mux
	server   *http.Server
}

func NewServerWithOptions(backend Backend, options *Options, opts ...Option) (*Server, error) {
	if backend == nil {
		return nil, errors.New("backend is nil")
	}
	if options == nil {
		options = &Options{}
		if err := cfg.SetDefaults(options); err != nil {
			return nil, errors.WithMessage(err, "set server defaults failed")
		}
	}
	if err := cfg.Validate(options); err != nil {
		return nil, errors.WithMessage(err, "invalid server options")
	}

	s := &Server{
		options:  options,
		backend:  backend,
		gatherer: prometheus.DefaultGatherer,
		router:   chi.NewRouter(),
	}
	for _, opt := range opts {
		opt(s)
	}
	s.log = log.OrDefault(s.log).WithGroup("server")

	s.setupMiddleware()
	s.setupRoutes()
	return s, nil
}

func (s *Server) setupMiddleware() {
	s.router.Use(middleware.RequestID)
	s.router.Use(middleware.RealIP)
	s.router.Use(s.accessLog)
	s.router.Use(middleware.Recoverer)
	if s.options.RequestTimeout > 0 {
		s.router.Use(middleware.Timeout(s.options.RequestTimeout))
	}
}

func (s *Server) setupRoutes() {
	s.router.Get("/healthz", s.handleHealth)
	s.router.Method(http.MethodGet, "/metrics", promhttp.HandlerFor(s.gatherer, promhttp.HandlerOpts{}))

	s.router.Route("/api/db/{conn}", func(r chi.Router) {
		r.Get("/tables", s.handleListTables)
		r.Route("/table/{table}/records", func(r chi.Router) {
			r.Get("/", s.handleListRecords)
			r.Post("/", s.handleCreateRecord)
			r.Put("/", s.handleUpdateRecord)
			r.Delete("/", s.handleDeleteRecord)
			r.Post("/bulk-update", s.handleBulkUpdate)
			r.Post("/bulk-delete", s.handleBulkDelete)
		})
	})
}

// accessLog 使用结构化日志记录请求，附带 chi 生成的请求 ID
func (s *Server) accessLog(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r)
		s.log.InfoContext(r.Context(), "http request",
			"requestID", middleware.GetReqID(r.Context()),
			"method", r.Method,
			"path", r.URL.Path,
			"status", ww.Status(),
			"bytes", ww.BytesWritten(),
			"duration_ms", time.Since(start).Milliseconds(),
		)
	})
}

// Handler 返回路由，便于测试和嵌入其他服务
func (s *Server) Handler() http.Handler {
	return s.router
}

// Run 启动监听，ctx 结束时优雅退出
func (s *Server) Run(ctx context.Context) error {
	s.server = &http.Server{
		Addr:         s.options.Addr,
		Handler:      s.router,
		ReadTimeout:  s.options.ReadTimeout,
		WriteTimeout: s.options.WriteTimeout,
		IdleTimeout:  s.options.IdleTimeout,
	}

	errCh := make(chan error, 1)
	go func() {
		s.log.Info("server started", "addr", s.options.Addr)
		errCh <- s.server.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return errors.Wrap(err, "listen failed")
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), s.options.IdleTimeout)
	defer cancel()
	s.log.Info("server shutting down")
	if err := s.server.Shutdown(shutdownCtx); err != nil {
		return errors.Wrap(err, "shutdown failed")
	}
	return nil
}
