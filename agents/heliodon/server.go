package heliodon

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"html/template"
	"io"
	"log"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"

	"heliodon/internal/models"
	"heliodon/shared/actuator"
	"heliodon/shared/chart"
	"heliodon/shared/metrics"
	"heliodon/shared/monitoring"
	"heliodon/shared/sunpath"
)

// Server exposes the heliodon over HTTP: an HTML control page, a JSON API
// and the health and metrics endpoints
type Server struct {
	agent      *HeliodonAgent
	health     *monitoring.HealthServer
	projection chart.Projection
	router     *gin.Engine
}

func NewServer(agent *HeliodonAgent, monitor *monitoring.Monitor) *Server {
	s := &Server{
		agent:      agent,
		health:     monitoring.NewHealthServer(monitor),
		projection: chart.DefaultProjection(),
	}
	s.router = s.setupRouter()
	return s
}

// Handler returns the router, mainly for tests
func (s *Server) Handler() http.Handler {
	return s.router
}

func (s *Server) setupRouter() *gin.Engine {
	r := gin.New()
	r.Use(requestLogger(), gin.Recovery())

	// CORS so the JSON API can be used from other pages
	r.Use(func(c *gin.Context) {
		c.Writer.Header().Set("Access-Control-Allow-Origin", "*")
		c.Writer.Header().Set("Access-Control-Allow-Methods", "GET, POST, OPTIONS")
		c.Writer.Header().Set("Access-Control-Allow-Headers", "Content-Type")

		if c.Request.Method == http.MethodOptions {
			c.AbortWithStatus(http.StatusNoContent)
			return
		}

		c.Next()
	})

	r.GET("/", s.indexHandler)
	r.POST("/", s.controlHandler)
	r.GET("/chart.svg", s.chartHandler)

	s.health.Register(r)
	r.GET("/metrics", metrics.Handler())

	api := r.Group("/api")
	{
		api.GET("/position", s.positionHandler)
		api.GET("/day", s.dayHandler)
		api.GET("/year", s.yearHandler)
		api.GET("/paths", s.pathsHandler)
		api.GET("/ports", s.portsHandler)
		api.POST("/move", s.moveHandler)
		api.POST("/zero", s.zeroHandler)
	}

	return r
}

// requestLogger logs one line per request in the same format as the rest
// of the process output
func requestLogger() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		path := c.Request.URL.Path
		if raw := c.Request.URL.RawQuery; raw != "" {
			path = path + "?" + raw
		}

		c.Next()

		log.Printf("[%s] %s %s %d %v %s",
			c.Request.Method,
			path,
			c.ClientIP(),
			c.Writer.Status(),
			time.Since(start),
			c.Errors.String(),
		)
	}
}

// Run serves until ctx is cancelled, then shuts the listener down
func (s *Server) Run(ctx context.Context, addr string) error {
	srv := &http.Server{Addr: addr, Handler: s.router}

	errCh := make(chan error, 1)
	go func() {
		log.Printf("HTTP server listening on %s", addr)
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return fmt.Errorf("HTTP server failed: %w", err)
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		log.Println("Shutting down HTTP server...")
		return srv.Shutdown(shutdownCtx)
	}
}

// positionQuery carries the form and query parameters. Anything left out
// falls back to the home site and the current local hour.
type positionQuery struct {
	Latitude  *float64 `form:"lat" json:"lat"`
	Longitude *float64 `form:"lon" json:"lon"`
	Year      *int     `form:"year" json:"year"`
	Month     *int     `form:"month" json:"month"`
	Day       *int     `form:"day" json:"day"`
	Hour      *int     `form:"hour" json:"hour"`
	UTCOffset *int     `form:"utc" json:"utc"`
	Tags      []string `form:"tags" json:"tags"`
}

func (s *Server) request(q positionQuery) (sunpath.Request, []sunpath.Tag, error) {
	offset := s.agent.config.Location.UTCOffset
	if q.UTCOffset != nil {
		offset = *q.UTCOffset
	}
	now := s.agent.now().In(models.FixedZone(offset))

	req := sunpath.Request{
		Location:  s.agent.Home(),
		Year:      now.Year(),
		Month:     now.Month(),
		Day:       now.Day(),
		Hour:      now.Hour(),
		UTCOffset: offset,
	}
	if q.Latitude != nil {
		req.Location.Latitude = *q.Latitude
	}
	if q.Longitude != nil {
		req.Location.Longitude = *q.Longitude
	}
	if q.Year != nil {
		req.Year = *q.Year
	}
	if q.Month != nil {
		req.Month = time.Month(*q.Month)
	}
	if q.Day != nil {
		req.Day = *q.Day
	}
	if q.Hour != nil {
		req.Hour = *q.Hour
	}

	// Accept both repeated tags=a&tags=b and tags=a,b
	var names []string
	for _, t := range q.Tags {
		names = append(names, strings.Split(t, ",")...)
	}
	tags, err := sunpath.ParseTags(names)
	if err != nil {
		return req, nil, err
	}
	return req, tags, nil
}

func (s *Server) bindQuery(c *gin.Context) (sunpath.Request, []sunpath.Tag, bool) {
	var q positionQuery
	if err := c.ShouldBindQuery(&q); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return sunpath.Request{}, nil, false
	}
	req, tags, err := s.request(q)
	if err != nil {
		respondError(c, err)
		return sunpath.Request{}, nil, false
	}
	return req, tags, true
}

func statusFor(err error) int {
	switch {
	case errors.Is(err, models.ErrInvalidCoordinate),
		errors.Is(err, models.ErrInvalidCalendarDate),
		errors.Is(err, sunpath.ErrUnknownTag):
		return http.StatusBadRequest
	default:
		return http.StatusInternalServerError
	}
}

func respondError(c *gin.Context, err error) {
	c.JSON(statusFor(err), gin.H{"error": err.Error()})
}

func (s *Server) positionHandler(c *gin.Context) {
	req, _, ok := s.bindQuery(c)
	if !ok {
		return
	}
	result, err := s.agent.Show(c.Request.Context(), req, nil, false)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, result.Position)
}

func (s *Server) dayHandler(c *gin.Context) {
	req, _, ok := s.bindQuery(c)
	if !ok {
		return
	}
	series, err := s.agent.Day(req)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, series)
}

func (s *Server) yearHandler(c *gin.Context) {
	req, _, ok := s.bindQuery(c)
	if !ok {
		return
	}
	series, err := s.agent.Year(req)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, series)
}

func (s *Server) pathsHandler(c *gin.Context) {
	req, tags, ok := s.bindQuery(c)
	if !ok {
		return
	}
	overlays, err := s.agent.Paths(req, tags)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, overlays)
}

func (s *Server) chartHandler(c *gin.Context) {
	req, tags, ok := s.bindQuery(c)
	if !ok {
		return
	}
	result, err := s.agent.Show(c.Request.Context(), req, tags, false)
	if err != nil {
		respondError(c, err)
		return
	}

	var buf bytes.Buffer
	if err := s.projection.RenderSVG(&buf, chartFor(result)); err != nil {
		respondError(c, err)
		return
	}
	c.Data(http.StatusOK, "image/svg+xml", buf.Bytes())
}

func (s *Server) portsHandler(c *gin.Context) {
	ports, err := actuator.ListPorts()
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"ports": ports})
}

func (s *Server) moveHandler(c *gin.Context) {
	var q positionQuery
	if err := c.ShouldBindJSON(&q); err != nil && !errors.Is(err, io.EOF) {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	req, tags, err := s.request(q)
	if err != nil {
		respondError(c, err)
		return
	}
	result, err := s.agent.Show(c.Request.Context(), req, tags, true)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, result)
}

func (s *Server) zeroHandler(c *gin.Context) {
	c.JSON(http.StatusOK, s.agent.Zero(c.Request.Context()))
}

// chartFor draws the sun marker only when it is above the horizon
func chartFor(result *ShowResult) chart.Chart {
	ch := chart.Chart{Title: "Sun map", Overlays: result.Overlays}
	if result.Position.AboveHorizon() {
		pos := result.Position
		ch.Sun = &pos
	}
	return ch
}

type tagOption struct {
	Name    string
	Label   string
	Checked bool
}

type pageView struct {
	Name        string
	Request     sunpath.Request
	Month       int
	Tags        []tagOption
	Chart       template.HTML
	Position    *models.SunPosition
	Command     *models.ActuatorCommand
	DeviceError string
	Error       string
}

func (s *Server) page(req sunpath.Request, tags []sunpath.Tag) pageView {
	selected := make(map[sunpath.Tag]bool, len(tags))
	for _, t := range tags {
		selected[t] = true
	}
	options := make([]tagOption, 0, len(sunpath.Tags))
	for _, t := range sunpath.Tags {
		options = append(options, tagOption{Name: t.String(), Label: t.Label(), Checked: selected[t]})
	}
	return pageView{
		Name:    s.agent.config.Location.Name,
		Request: req,
		Month:   int(req.Month),
		Tags:    options,
	}
}

func (s *Server) render(c *gin.Context, status int, view pageView, ch chart.Chart) {
	svg, err := s.projection.SVG(ch)
	if err != nil {
		respondError(c, err)
		return
	}
	view.Chart = svg

	var buf bytes.Buffer
	if err := pageTemplate.Execute(&buf, view); err != nil {
		respondError(c, fmt.Errorf("failed to render page: %w", err))
		return
	}
	c.Data(status, "text/html; charset=utf-8", buf.Bytes())
}

func (s *Server) indexHandler(c *gin.Context) {
	req, _, err := s.request(positionQuery{})
	if err != nil {
		respondError(c, err)
		return
	}
	zero := ZeroPosition()
	s.render(c, http.StatusOK, s.page(req, []sunpath.Tag{sunpath.DayPath}), chart.Chart{Title: "Sun map", Sun: &zero})
}

// controlHandler backs the two form buttons: plot-and-move and zero
func (s *Server) controlHandler(c *gin.Context) {
	var q positionQuery
	if err := c.ShouldBind(&q); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	req, tags, err := s.request(q)
	view := s.page(req, tags)
	if err != nil {
		view.Error = err.Error()
		s.render(c, statusFor(err), view, chart.Chart{Title: "Sun map"})
		return
	}

	if c.PostForm("action") == "zero" {
		result := s.agent.Zero(c.Request.Context())
		view.Position = &result.Position
		view.Command = result.Command
		view.DeviceError = result.DeviceError
		s.render(c, http.StatusOK, view, chart.Chart{Title: "Sun map", Sun: &result.Position})
		return
	}

	result, err := s.agent.Show(c.Request.Context(), req, tags, true)
	if err != nil {
		view.Error = err.Error()
		s.render(c, statusFor(err), view, chart.Chart{Title: "Sun map"})
		return
	}
	view.Position = &result.Position
	view.Command = result.Command
	view.DeviceError = result.DeviceError
	s.render(c, http.StatusOK, view, chartFor(result))
}

var pageTemplate = template.Must(template.New("page").Parse(`<!DOCTYPE html>
<html>
<head>
    <meta charset="UTF-8">
    <title>Heliodon - {{.Name}}</title>
    <style>
        body { font-family: Arial, sans-serif; color: #333; margin: 0 auto; padding: 20px; max-width: 1000px; }
        .layout { display: flex; flex-direction: row; gap: 40px; }
        form label { display: block; margin-top: 10px; font-weight: bold; color: #666; }
        form input[type=number] { width: 120px; }
        .refs label { font-weight: normal; color: #333; }
        .buttons { margin-top: 20px; }
        .error { color: #c62828; font-weight: bold; }
        .warning { color: #FF9800; font-weight: bold; }
        .position { background-color: #f8f9fa; padding: 10px; border-radius: 8px; }
    </style>
</head>
<body>
    <h1>☀️ Heliodon - {{.Name}}</h1>
    {{- if .Error}}
    <p class="error">{{.Error}}</p>
    {{- end}}
    <div class="layout">
        <form method="post" action="/">
            <label>Latitude</label>
            <input type="number" step="any" name="lat" value="{{.Request.Location.Latitude}}">
            <label>Longitude</label>
            <input type="number" step="any" name="lon" value="{{.Request.Location.Longitude}}">
            <label>Year</label>
            <input type="number" name="year" value="{{.Request.Year}}">
            <label>Month</label>
            <input type="number" name="month" min="1" max="12" value="{{.Month}}">
            <label>Day</label>
            <input type="number" name="day" min="1" max="31" value="{{.Request.Day}}">
            <label>Hour</label>
            <input type="number" name="hour" min="0" max="23" value="{{.Request.Hour}}">
            <label>Timezone (UTC)</label>
            <input type="number" name="utc" min="-12" max="14" value="{{.Request.UTCOffset}}">

            <h4>References</h4>
            <div class="refs">
            {{- range .Tags}}
                <label><input type="checkbox" name="tags" value="{{.Name}}"{{if .Checked}} checked{{end}}> {{.Label}}</label>
            {{- end}}
            </div>

            <div class="buttons">
                <button type="submit" name="action" value="move">PLOT AND MOVE</button>
                <button type="submit" name="action" value="zero">ZERO</button>
            </div>
        </form>
        <div>
            {{.Chart}}
            {{- if .Position}}
            <div class="position">
                <p>Altitude {{printf "%.2f" .Position.Altitude}}°, azimuth {{printf "%.2f" .Position.Azimuth}}°</p>
                {{- if .Command}}
                <p>Sent <code>{{.Command.Frame}}</code></p>
                {{- end}}
                {{- if .DeviceError}}
                <p class="warning">Device: {{.DeviceError}}</p>
                {{- end}}
            </div>
            {{- end}}
        </div>
    </div>
</body>
</html>
`))
