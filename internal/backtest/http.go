package backtest

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"kelpie/internal/portfolio"
	"kelpie/internal/report"
	"kelpie/internal/store/candle"
	"kelpie/internal/store/result"
	"kelpie/internal/strategy"

	"github.com/gin-gonic/gin"
	"github.com/tidwall/gjson"
)

// HTTPServer 提供 Gin 接口：补数、查数、发起回测与查询结果。
type HTTPServer struct {
	addr     string
	svc      *Service
	sim      *Simulator
	store    *candle.Store
	results  *result.Store
	registry *strategy.Registry
	router   *gin.Engine
}

type HTTPConfig struct {
	Addr        string
	Svc         *Service
	Simulator   *Simulator
	CandleStore *candle.Store
	Results     *result.Store
	Registry    *strategy.Registry
}

func NewHTTPServer(cfg HTTPConfig) (*HTTPServer, error) {
	if cfg.CandleStore == nil {
		return nil, errors.New("candle store 不能为空")
	}
	if cfg.Addr == "" {
		cfg.Addr = ":9991"
	}
	gin.SetMode(gin.ReleaseMode)
	router := gin.New()
	router.Use(gin.Recovery())

	s := &HTTPServer{
		addr:     cfg.Addr,
		svc:      cfg.Svc,
		sim:      cfg.Simulator,
		store:    cfg.CandleStore,
		results:  cfg.Results,
		registry: cfg.Registry,
		router:   router,
	}
	s.registerRoutes()
	return s, nil
}

func (s *HTTPServer) registerRoutes() {
	api := s.router.Group("/api/backtest")
	api.POST("/fetch", s.handleFetch)
	api.GET("/timeframes", s.handleTimeframes)
	api.GET("/data", s.handleManifest)
	api.GET("/candles", s.handleCandles)
	api.GET("/strategies", s.handleStrategies)
	api.POST("/runs", s.handleRunStart)
	api.GET("/runs", s.handleRunList)
	api.GET("/runs/:id", s.handleRunDetail)
	api.GET("/runs/:id/orders", s.handleRunOrders)
	api.GET("/runs/:id/trades", s.handleRunTrades)
	api.GET("/runs/:id/snapshots", s.handleRunSnapshots)
	api.GET("/runs/:id/report", s.handleRunReport)
}

func (s *HTTPServer) handleFetch(c *gin.Context) {
	if s.svc == nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "数据服务未启用"})
		return
	}
	var req struct {
		Exchange  string `json:"exchange"`
		Symbol    string `json:"symbol" binding:"required"`
		Timeframe string `json:"timeframe" binding:"required"`
		StartTS   int64  `json:"start_ts" binding:"required"`
		EndTS     int64  `json:"end_ts" binding:"required"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	n, err := s.svc.Fetch(c.Request.Context(), FetchParams{
		Exchange:  req.Exchange,
		Symbol:    req.Symbol,
		Timeframe: req.Timeframe,
		Start:     req.StartTS,
		End:       req.EndTS,
	})
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"inserted": n})
}

func (s *HTTPServer) handleTimeframes(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"timeframes": SupportedTimeframes()})
}

func (s *HTTPServer) handleManifest(c *gin.Context) {
	symbol := c.Query("symbol")
	tf := c.Query("timeframe")
	if symbol == "" || tf == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "symbol/timeframe 必填"})
		return
	}
	info, err := s.store.Manifest(c.Request.Context(), strings.ToUpper(symbol), tf)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"manifest": info})
}

func (s *HTTPServer) handleCandles(c *gin.Context) {
	symbol := c.Query("symbol")
	tf := c.Query("timeframe")
	if symbol == "" || tf == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "symbol/timeframe 必填"})
		return
	}
	symbol = strings.ToUpper(symbol)
	start, _ := strconv.ParseInt(c.Query("start_ts"), 10, 64)
	end, _ := strconv.ParseInt(c.Query("end_ts"), 10, 64)
	limit, err := strconv.Atoi(c.DefaultQuery("limit", "200"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "limit 非法"})
		return
	}
	ctx := c.Request.Context()
	if start > 0 && end > start {
		data, err := s.store.Range(ctx, symbol, tf, start, end)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}
		c.JSON(http.StatusOK, gin.H{"candles": data})
		return
	}
	data, err := s.store.Latest(ctx, symbol, tf, limit)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"candles": data})
}

func (s *HTTPServer) handleStrategies(c *gin.Context) {
	if s.registry == nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "策略注册表未启用"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"strategies": s.registry.Snapshot()})
}

func (s *HTTPServer) handleRunStart(c *gin.Context) {
	if s.sim == nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "模拟器未启用"})
		return
	}
	body, err := io.ReadAll(c.Request.Body)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	req, err := coerceRunRequest(body)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	run, err := s.sim.StartRun(req)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusAccepted, gin.H{"run": run})
}

// coerceRunRequest 容忍前端把数字写成字符串，统一转回数值。
func coerceRunRequest(body []byte) (RunRequest, error) {
	raw := strings.TrimSpace(string(body))
	if raw == "" {
		return RunRequest{}, fmt.Errorf("请求体为空")
	}
	if !gjson.Valid(raw) {
		return RunRequest{}, fmt.Errorf("json 格式无效")
	}
	parsed := gjson.Parse(raw)
	if !parsed.IsObject() {
		return RunRequest{}, fmt.Errorf("根节点必须是 JSON 对象")
	}
	req := RunRequest{
		Symbol:         parsed.Get("symbol").String(),
		Timeframe:      parsed.Get("timeframe").String(),
		StartTS:        parsed.Get("start_ts").Int(),
		EndTS:          parsed.Get("end_ts").Int(),
		StrategyID:     parsed.Get("strategy_id").String(),
		InitialCash:    parsed.Get("initial_cash").Float(),
		Lever:          parsed.Get("lever").Float(),
		DepositRate:    parsed.Get("deposit_rate").Float(),
		SlippageBps:    parsed.Get("slippage_bps").Float(),
		CommissionRate: parsed.Get("commission_rate").Float(),
		DealMode:       parsed.Get("deal_mode").String(),
	}
	if params := parsed.Get("params"); params.Exists() {
		if !params.IsObject() {
			return RunRequest{}, fmt.Errorf("params 必须是对象")
		}
		req.Params = make(map[string]any)
		params.ForEach(func(key, value gjson.Result) bool {
			req.Params[key.String()] = value.Value()
			return true
		})
	}
	return req, nil
}

func (s *HTTPServer) handleRunList(c *gin.Context) {
	if s.results == nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "结果存储未启用"})
		return
	}
	limit, _ := strconv.Atoi(c.DefaultQuery("limit", "50"))
	runs, err := s.results.ListRuns(c.Request.Context(), limit)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"runs": runs})
}

func (s *HTTPServer) handleRunDetail(c *gin.Context) {
	if s.results == nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "结果存储未启用"})
		return
	}
	run, err := s.results.GetRun(c.Request.Context(), c.Param("id"))
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	if run == nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "run not found"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"run": run})
}

func (s *HTTPServer) handleRunOrders(c *gin.Context) {
	if s.results == nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "结果存储未启用"})
		return
	}
	orders, err := s.results.ListOrders(c.Request.Context(), c.Param("id"))
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"orders": orders})
}

func (s *HTTPServer) handleRunTrades(c *gin.Context) {
	if s.results == nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "结果存储未启用"})
		return
	}
	trades, err := s.results.ListTrades(c.Request.Context(), c.Param("id"))
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"trades": trades})
}

func (s *HTTPServer) handleRunSnapshots(c *gin.Context) {
	if s.results == nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "结果存储未启用"})
		return
	}
	snaps, err := s.results.ListSnapshots(c.Request.Context(), c.Param("id"))
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"snapshots": snaps})
}

// handleRunReport 用 go-echarts 把一次回测渲染成单页报表。
func (s *HTTPServer) handleRunReport(c *gin.Context) {
	if s.results == nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "结果存储未启用"})
		return
	}
	ctx := c.Request.Context()
	id := c.Param("id")
	run, err := s.results.GetRun(ctx, id)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	if run == nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "run not found"})
		return
	}
	snaps, err := s.results.ListSnapshots(ctx, id)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	trades, err := s.results.ListTrades(ctx, id)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	candles, err := s.store.Range(ctx, run.Symbol, run.Timeframe, run.StartTS, run.EndTS)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}

	input := report.Input{
		Symbol:   run.Symbol,
		Title:    fmt.Sprintf("%s %s (%s)", run.Symbol, run.Timeframe, run.StrategyID),
		Subtitle: fmt.Sprintf("收益 %.2f (%.2f%%) 最大回撤 %.2f%%", run.Profit, run.ReturnPct, run.MaxDrawdownPct),
		Candles:  candles,
	}
	for _, snap := range snaps {
		input.Curve = append(input.Curve, portfolio.EquitySnapshot{
			Time:   time.UnixMilli(snap.TS),
			Cash:   snap.Cash,
			Equity: snap.Equity,
		})
	}
	for _, tr := range trades {
		input.Trades = append(input.Trades, &portfolio.Position{
			Symbol:     tr.Symbol,
			Qty:        tr.Qty,
			AvgPrice:   tr.EntryPrice,
			ClosePrice: tr.ExitPrice,
			Realized:   tr.Realized,
			Commission: tr.Commission,
			OpenTime:   time.UnixMilli(tr.OpenTS),
			CloseTime:  time.UnixMilli(tr.CloseTS),
		})
	}
	html, err := report.BuildHTML(input)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	if c.Query("format") == "png" {
		img, err := report.RenderPNG(ctx, input)
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
			return
		}
		c.Data(http.StatusOK, "image/png", img.Bytes)
		return
	}
	c.Data(http.StatusOK, "text/html; charset=utf-8", html)
}

// Start 启动 HTTP 服务，阻塞直到 ctx 取消或出现错误。
func (s *HTTPServer) Start(ctx context.Context) error {
	srv := &http.Server{Addr: s.addr, Handler: s.router}
	errCh := make(chan error, 1)
	go func() {
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case <-ctx.Done():
		shCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = srv.Shutdown(shCtx)
		return nil
	case err := <-errCh:
		return err
	}
}
