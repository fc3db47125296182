package controllers

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog/log"
	"github.com/smartfix-dev/smartfix-api/middleware"
	"github.com/smartfix-dev/smartfix-api/services"
)

// Summary handles GET /api/v1/reports/summary - request counts per status
func Summary(c *gin.Context) {
	counts, err := requestService().Summary(c.Request.Context(), middleware.GetCaller(c))
	if err != nil {
		respondError(c, err)
		return
	}

	total := int64(0)
	for _, sc := range counts {
		total += sc.Count
	}
	respondOK(c, http.StatusOK, gin.H{"total": total, "byStatus": counts})
}

// ExportToSheets handles POST /api/v1/reports/sheets - overwrites the report spreadsheet
func ExportToSheets(c *gin.Context) {
	exporter := services.GetRequestExporter()
	if exporter == nil {
		respondErrorCode(c, http.StatusServiceUnavailable, "NOT_CONFIGURED", "Spreadsheet export is not configured")
		return
	}

	caller := middleware.GetCaller(c)
	views, err := requestService().List(c.Request.Context(), caller, nil)
	if err != nil {
		respondError(c, err)
		return
	}

	rows, err := exporter.ExportRequests(c.Request.Context(), views)
	if err != nil {
		log.Error().Err(err).Msg("spreadsheet export failed")
		respondErrorCode(c, http.StatusBadGateway, "EXPORT_FAILED", "Failed to write the report spreadsheet")
		return
	}

	respondOK(c, http.StatusOK, gin.H{"exported": rows})
}
