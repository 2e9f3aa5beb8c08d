package api

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"

	"kvartometr/server/config"
	"kvartometr/server/internal/aggregate"
	"kvartometr/server/internal/database"
	"kvartometr/server/internal/geometry"
	"kvartometr/server/internal/models"
	"kvartometr/server/internal/pipeline"
)

type Handler struct {
	db         *database.Database
	pipeline   *pipeline.Service
	aggregator *aggregate.Aggregator
	geocoder   database.AddressGeocoder
	hulls      *geometry.HullBuilder
	logger     *logrus.Logger
}

// NewHandler wires the API surface. The geocoder may be nil when
// geocoding is disabled.
func NewHandler(db *database.Database, pipe *pipeline.Service, aggregator *aggregate.Aggregator,
	geocoder database.AddressGeocoder, logger *logrus.Logger) *Handler {
	return &Handler{
		db:         db,
		pipeline:   pipe,
		aggregator: aggregator,
		geocoder:   geocoder,
		hulls:      geometry.NewHullBuilder(db.GetDB(), logger),
		logger:     logger,
	}
}

func (h *Handler) city(c *gin.Context) (models.City, bool) {
	city, err := models.ParseCity(c.Param("city"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return "", false
	}
	return city, true
}

// RunCrawl executes a full crawl for the city and returns its summary.
// The call is synchronous: when it returns, aggregates reflect the run.
func (h *Handler) RunCrawl(c *gin.Context) {
	city, ok := h.city(c)
	if !ok {
		return
	}

	summary, err := h.pipeline.Run(c.Request.Context(), city)
	if errors.Is(err, pipeline.ErrRunInProgress) {
		c.JSON(http.StatusConflict, gin.H{"error": err.Error()})
		return
	}
	if err != nil {
		h.logger.WithError(err).WithField("city", city).Error("Crawl run failed")
		if summary != nil {
			c.JSON(http.StatusServiceUnavailable, summary)
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Crawl run failed"})
		return
	}

	c.JSON(http.StatusOK, summary)
}

// GetAggregates returns the per-district statistics for a city.
func (h *Handler) GetAggregates(c *gin.Context) {
	city, ok := h.city(c)
	if !ok {
		return
	}

	order, err := aggregate.ParseSortOrder(c.Query("sort"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	rows, err := h.aggregator.Districts(city, order)
	if err != nil {
		h.logger.WithError(err).Error("Failed to aggregate districts")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to aggregate districts"})
		return
	}

	c.JSON(http.StatusOK, rows)
}

// GetGeoExtract returns the coordinate/price extract used by map views.
func (h *Handler) GetGeoExtract(c *gin.Context) {
	city, ok := h.city(c)
	if !ok {
		return
	}

	points, err := h.aggregator.GeoExtract(city)
	if err != nil {
		h.logger.WithError(err).Error("Failed to build geo extract")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to build geo extract"})
		return
	}

	c.JSON(http.StatusOK, points)
}

// GetCities lists the supported cities with their sources.
func (h *Handler) GetCities(c *gin.Context) {
	c.JSON(http.StatusOK, config.SupportedCities)
}

// GetDistrictHulls returns approximate district shapes derived from
// located listings, as a GeoJSON feature collection.
func (h *Handler) GetDistrictHulls(c *gin.Context) {
	city, ok := h.city(c)
	if !ok {
		return
	}

	collection, err := h.hulls.DistrictHulls(city)
	if err != nil {
		h.logger.WithError(err).Error("Failed to build district hulls")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to build district hulls"})
		return
	}

	c.JSON(http.StatusOK, collection)
}

// UpdateCoordinates backfills coordinates for listings that only carry
// an address. Returns 503 when no geocoder is configured.
func (h *Handler) UpdateCoordinates(c *gin.Context) {
	city, ok := h.city(c)
	if !ok {
		return
	}

	if h.geocoder == nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "Geocoding is disabled"})
		return
	}

	updated, err := h.db.FillMissingCoordinates(c.Request.Context(), h.geocoder, city)
	if err != nil {
		h.logger.WithError(err).Error("Failed to update coordinates")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to update coordinates"})
		return
	}

	c.JSON(http.StatusOK, gin.H{"updated": updated})
}

// GetStatus reports listing counts per status for a city.
func (h *Handler) GetStatus(c *gin.Context) {
	city, ok := h.city(c)
	if !ok {
		return
	}

	counts, err := h.db.StatusCounts(city)
	if err != nil {
		h.logger.WithError(err).Error("Failed to get status counts")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to get status counts"})
		return
	}

	c.JSON(http.StatusOK, counts)
}
