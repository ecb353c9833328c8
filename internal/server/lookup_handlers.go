package server

import (
	"fmt"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	ridinglookup "github.com/wra-sol/ridingLookup-sub000"
)

type lookupHandlers struct {
	lookup *ridinglookup.LookupService
}

// get answers GET /lookup?q=... or GET /lookup?lat=..&lon=.. synchronously.
func (h *lookupHandlers) get(c *gin.Context) {
	req := ridinglookup.LookupRequest{Query: c.Query("q")}

	if rawLat, rawLon := c.Query("lat"), c.Query("lon"); rawLat != "" || rawLon != "" {
		lat, latErr := strconv.ParseFloat(rawLat, 64)
		lon, lonErr := strconv.ParseFloat(rawLon, 64)
		if latErr != nil || lonErr != nil {
			fail(c, fmt.Errorf("%w: lat and lon must both be numbers", ridinglookup.ErrInvalidInput))
			return
		}
		req.Lat, req.Lon = &lat, &lon
	}

	result, err := h.lookup.Lookup(c.Request.Context(), req)
	if err != nil {
		fail(c, err)
		return
	}
	c.JSON(http.StatusOK, result)
}
