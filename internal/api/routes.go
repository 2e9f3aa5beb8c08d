package api

import (
	"github.com/gin-gonic/gin"
)

func SetupRoutes(router *gin.Engine, handler *Handler) {
	api := router.Group("/api")
	{
		api.GET("/cities", handler.GetCities)
		api.POST("/crawl/:city", handler.RunCrawl)
		api.GET("/aggregates/:city", handler.GetAggregates)
		api.GET("/geo/:city", handler.GetGeoExtract)
		api.GET("/hulls/:city", handler.GetDistrictHulls)
		api.GET("/status/:city", handler.GetStatus)
		api.POST("/geocode/:city", handler.UpdateCoordinates)
	}
}
