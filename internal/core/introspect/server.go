// Package introspect 提供本地诊断 HTTP 服务
//
// 服务默认绑定到 127.0.0.1，只读地暴露节点状态，用于调试和监控。
//
// 端点：
//   - GET /health              - 健康检查
//   - GET /debug/node          - 本节点信息
//   - GET /debug/peers         - 地址簿记录与连接状态
//   - GET /debug/sessions      - 打开的会话
//   - GET /debug/capabilities  - 已注册的能力
//   - GET /metrics             - Prometheus 指标
//   - GET /debug/pprof/*       - Go pprof 端点
package introspect

import (
	"context"
	"errors"
	"net"
	"net/http"
	"net/http/pprof"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	ma "github.com/multiformats/go-multiaddr"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/dep2p/go-nodehost/internal/core/capability"
	"github.com/dep2p/go-nodehost/internal/util/logger"
	pkgif "github.com/dep2p/go-nodehost/pkg/interfaces"
	"github.com/dep2p/go-nodehost/pkg/types"
)

var log = logger.Logger("core.introspect")

// DefaultAddr 默认监听地址
const DefaultAddr = "127.0.0.1:9180"

// ErrAlreadyRunning 服务已在运行
var ErrAlreadyRunning = errors.New("introspect: server already running")

// Source 诊断数据来源，由主机实现
type Source interface {
	ID() types.PeerID
	Addrs() []ma.Multiaddr
	Sessions() []pkgif.Session
	PeerState(peer types.PeerID) types.PeerState
	AddrBook() pkgif.AddrBook
	Registry() *capability.Registry
}

// Config 服务配置
type Config struct {
	// Addr 监听地址，默认 DefaultAddr
	Addr string

	// ShutdownTimeout 关闭时等待请求完成的时长
	ShutdownTimeout time.Duration

	// Gatherer 可选的指标来源，为空时不注册 /metrics
	Gatherer prometheus.Gatherer
}

// Server 本地诊断 HTTP 服务
type Server struct {
	cfg    Config
	source Source
	router *gin.Engine

	mu        sync.Mutex
	server    *http.Server
	listener  net.Listener
	startTime time.Time
}

// New 创建诊断服务
func New(cfg Config, source Source) *Server {
	if cfg.Addr == "" {
		cfg.Addr = DefaultAddr
	}
	if cfg.ShutdownTimeout <= 0 {
		cfg.ShutdownTimeout = 5 * time.Second
	}

	gin.SetMode(gin.ReleaseMode)
	router := gin.New()
	router.Use(gin.Recovery())

	s := &Server{
		cfg:    cfg,
		source: source,
		router: router,
	}
	s.routes()
	return s
}

func (s *Server) routes() {
	s.router.GET("/health", s.handleHealth)

	debug := s.router.Group("/debug")
	debug.GET("/node", s.handleNode)
	debug.GET("/peers", s.handlePeers)
	debug.GET("/sessions", s.handleSessions)
	debug.GET("/capabilities", s.handleCapabilities)

	// pprof
	prof := debug.Group("/pprof")
	prof.GET("/", gin.WrapF(pprof.Index))
	prof.GET("/cmdline", gin.WrapF(pprof.Cmdline))
	prof.GET("/profile", gin.WrapF(pprof.Profile))
	prof.GET("/symbol", gin.WrapF(pprof.Symbol))
	prof.GET("/trace", gin.WrapF(pprof.Trace))
	prof.GET("/:profile", func(c *gin.Context) {
		pprof.Handler(c.Param("profile")).ServeHTTP(c.Writer, c.Request)
	})

	if s.cfg.Gatherer != nil {
		s.router.GET("/metrics", gin.WrapH(promhttp.HandlerFor(s.cfg.Gatherer, promhttp.HandlerOpts{})))
	}
}

// Handler 返回 HTTP 处理器
func (s *Server) Handler() http.Handler {
	return s.router
}

// Start 启动服务
func (s *Server) Start(_ context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.server != nil {
		return ErrAlreadyRunning
	}

	listener, err := net.Listen("tcp", s.cfg.Addr)
	if err != nil {
		return err
	}
	s.listener = listener
	s.server = &http.Server{
		Handler:           s.router,
		ReadHeaderTimeout: 10 * time.Second,
	}
	s.startTime = time.Now()

	srv := s.server
	go func() {
		if err := srv.Serve(listener); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Error("诊断服务异常退出", "error", err)
		}
	}()

	log.Info("诊断服务已启动", "addr", listener.Addr().String())
	return nil
}

// Stop 停止服务，未启动时为空操作
func (s *Server) Stop() error {
	s.mu.Lock()
	srv := s.server
	s.server = nil
	s.listener = nil
	s.mu.Unlock()

	if srv == nil {
		return nil
	}

	ctx, cancel := context.WithTimeout(context.Background(), s.cfg.ShutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(ctx); err != nil {
		return err
	}
	log.Info("诊断服务已停止")
	return nil
}

// Addr 返回实际监听地址，未启动时为空
func (s *Server) Addr() string {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.listener == nil {
		return ""
	}
	return s.listener.Addr().String()
}

func (s *Server) uptime() time.Duration {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.startTime.IsZero() {
		return 0
	}
	return time.Since(s.startTime)
}
