package metrics

import (
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	// Last computed live position
	SunAltitudeGauge = prometheus.NewGauge(
		prometheus.GaugeOpts{Name: "heliodon_sun_altitude_degrees", Help: "Sun altitude at the last tracking run"},
	)
	SunAzimuthGauge = prometheus.NewGauge(
		prometheus.GaugeOpts{Name: "heliodon_sun_azimuth_degrees", Help: "Sun azimuth at the last tracking run"},
	)

	// Commands by outcome (label: result = sent | not_ready | error)
	CommandCounter = prometheus.NewCounterVec(
		prometheus.CounterOpts{Name: "heliodon_commands_total", Help: "Actuator commands by outcome"},
		[]string{"result"},
	)

	// Positions computed (label: kind = point | day | year | live)
	PositionCounter = prometheus.NewCounterVec(
		prometheus.CounterOpts{Name: "heliodon_positions_computed_total", Help: "Sun positions computed"},
		[]string{"kind"},
	)

	Registry = prometheus.NewRegistry()
)

func init() {
	Registry.MustRegister(SunAltitudeGauge, SunAzimuthGauge, CommandCounter, PositionCounter)
}

// Handler serves the heliodon registry in the Prometheus text format
func Handler() gin.HandlerFunc {
	return gin.WrapH(promhttp.HandlerFor(Registry, promhttp.HandlerOpts{}))
}
