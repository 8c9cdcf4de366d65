package handler

import "github.com/labstack/echo/v4"

// RegisterRoutes は /api/v1 配下のルートを登録する
func RegisterRoutes(g *echo.Group, venues *VenueHandler, performances *PerformanceHandler, reservations *ReservationHandler) {
	g.POST("/venues", venues.Create)
	g.GET("/venues", venues.List)
	g.GET("/venues/:id", venues.GetByID)

	g.POST("/venues/:id/performances", performances.Create)
	g.GET("/venues/:id/performances", performances.ListByVenue)
	g.GET("/performances/:id", performances.GetByID)
	g.GET("/performances/:id/availability", performances.Availability)
	g.GET("/performances/:id/reservations", reservations.GetPerformanceReservations)

	g.POST("/reservations", reservations.Create)
	g.GET("/reservations", reservations.GetUserReservations)
	g.GET("/reservations/:id", reservations.GetByID)
	g.POST("/reservations/:id/confirm", reservations.Confirm)
	g.POST("/reservations/:id/cancel", reservations.Cancel)
}
