package core

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"slices"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"

	sm "github.com/johnwashburne/Sector-Metrics-Dashboard/models"
)

const (
	DefaultAddr = ":8080"
)

func GetHttpServer(sc *ServiceContext, addr string) *http.Server {
	if addr == "" {
		addr = DefaultAddr
	}

	server := &http.Server{
		Addr:           addr,
		Handler:        GetRouter(sc),
		ReadTimeout:    10 * time.Second,
		WriteTimeout:   sc.requestTimeout() + 10*time.Second,
		MaxHeaderBytes: 1 << 20,
	}

	if sc.Context != nil {
		server.BaseContext = func(net.Listener) context.Context { return sc.Context }
	}

	return server
}

func GetRouter(sc *ServiceContext) *gin.Engine {
	engine := gin.Default()

	engine.Use(cors.New(cors.Config{
		AllowOrigins:     []string{"http://localhost:3000"},
		AllowMethods:     []string{"GET", "POST", "OPTIONS"},
		AllowHeaders:     []string{"Origin", "Content-Type", "Accept", "Authorization"},
		ExposeHeaders:    []string{"Content-Length"},
		AllowCredentials: true,
		MaxAge:           12 * time.Hour,
	}))

	engine.GET("/api/ping", ping)
	engine.GET("/api/sectors", func(c *gin.Context) { getSectors(c, sc) })
	engine.GET("/api/holdings", func(c *gin.Context) { getHoldings(c, sc) })
	engine.GET("/api/universe", func(c *gin.Context) { getUniverse(c, sc) })
	engine.POST("/api/analysis", func(c *gin.Context) { postAnalysis(c, sc) })
	engine.POST("/api/analysis/chart", func(c *gin.Context) { postAnalysisChart(c, sc) })

	return engine
}

func ping(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"message": "pong"})
}

func getSectors(c *gin.Context, sc *ServiceContext) {
	entries := sc.Indices.Entries()
	res := make([]sm.SectorIndexResponse, len(entries))
	for i, e := range entries {
		res[i] = sm.SectorIndexResponse{Sector: e.Sector, Benchmark: e.Benchmark}
	}
	c.JSON(http.StatusOK, sm.GetServiceResponseOk(&res))
}

func getHoldings(c *gin.Context, sc *ServiceContext) {
	if sc.Holdings == nil {
		c.JSON(http.StatusServiceUnavailable, sm.GetServiceResponseError("no holdings source configured"))
		return
	}

	ctx, cancel := context.WithTimeout(c.Request.Context(), sc.requestTimeout())
	defer cancel()

	holdings, err := sc.Holdings.Resolve(ctx)
	if err != nil {
		writeError(c, err)
		return
	}

	res := map[string][]string(holdings)
	for sector := range res {
		slices.Sort(res[sector])
	}
	c.JSON(http.StatusOK, sm.GetServiceResponseOk(&res))
}

func getUniverse(c *gin.Context, sc *ServiceContext) {
	sector := c.Query("sector")
	res := make([]sm.InstrumentResponse, 0, len(sc.Universe))
	for _, i := range sc.Universe {
		if sector != "" && i.Sector != sector {
			continue
		}
		res = append(res, sm.InstrumentResponse{Ticker: i.Ticker, Sector: i.Sector})
	}
	c.JSON(http.StatusOK, sm.GetServiceResponseOk(&res))
}

func postAnalysis(c *gin.Context, sc *ServiceContext) {
	var req sm.AnalysisRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, sm.GetServiceResponseError(err.Error()))
		return
	}

	res, err := sc.RunAnalysis(c.Request.Context(), req)
	if err != nil {
		writeError(c, err)
		return
	}

	response := MapAnalysisResultToResponse(res)
	c.JSON(http.StatusOK, sm.GetServiceResponseOk(&response))
}

func postAnalysisChart(c *gin.Context, sc *ServiceContext) {
	var req sm.AnalysisRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, sm.GetServiceResponseError(err.Error()))
		return
	}
	req.IncludePrices = true

	res, err := sc.RunAnalysis(c.Request.Context(), req)
	if err != nil {
		writeError(c, err)
		return
	}

	title := fmt.Sprintf("%s vs %s", res.Mode, res.Benchmark)
	if res.Sector != "" {
		title = fmt.Sprintf("%s vs %s", res.Sector, res.Benchmark)
	}

	png, err := RenderNormalizedPrices(res.Prices, title)
	if err != nil {
		writeError(c, err)
		return
	}
	c.Data(http.StatusOK, "image/png", png)
}

func writeError(c *gin.Context, err error) {
	c.JSON(StatusForError(err), sm.GetServiceResponseError(err.Error()))
}

// StatusForError maps an error kind to the http status returned to the front end
func StatusForError(err error) int {
	var ce *ConfigurationError
	switch {
	case errors.As(err, &ce):
		if ce.Row > 0 {
			return http.StatusInternalServerError // the export itself is broken
		}
		return http.StatusBadRequest
	case errors.Is(err, ErrConfiguration):
		return http.StatusBadRequest
	case errors.Is(err, ErrRetrieval):
		return http.StatusBadGateway
	case errors.Is(err, ErrNoData):
		return http.StatusUnprocessableEntity
	default:
		return http.StatusInternalServerError
	}
}
