package httpapi

import (
	"net/http"
	"time"

	"github.com/example/ride-negotiation/internal/apperr"
	"github.com/example/ride-negotiation/internal/geo"
	"github.com/example/ride-negotiation/internal/models"
	"github.com/example/ride-negotiation/internal/observability"
)

const (
	defaultNearbyLimit      = 20
	maxNearbyLimit          = 100
	defaultHotZoneMinutes   = 30
	maxHotZoneMinutes       = 24 * 60
	defaultHotZoneLimit     = 20
	defaultLeaderboardLimit = 10
	maxLeaderboardLimit     = 100
)

type locationRequest struct {
	Lat    *float64 `json:"lat" validate:"required,gte=-90,lte=90"`
	Lng    *float64 `json:"lng" validate:"required,gte=-180,lte=180"`
	Online *bool    `json:"online"`
}

func (s *Server) handleNearby(w http.ResponseWriter, r *http.Request) {
	var fields []apperr.FieldError
	lat, fe := queryFloat(r, "lat", true)
	if fe != nil {
		fields = append(fields, *fe)
	} else if lat < -90 || lat > 90 {
		fields = append(fields, apperr.Field("lat", "must be between -90 and 90"))
	}
	lng, fe := queryFloat(r, "lng", true)
	if fe != nil {
		fields = append(fields, *fe)
	} else if lng < -180 || lng > 180 {
		fields = append(fields, apperr.Field("lng", "must be between -180 and 180"))
	}
	radius, fe := queryFloat(r, "radius", false)
	if fe != nil {
		fields = append(fields, *fe)
	}
	limit, fe := queryInt(r, "limit", defaultNearbyLimit, 1, maxNearbyLimit)
	if fe != nil {
		fields = append(fields, *fe)
	}
	if len(fields) > 0 {
		s.writeError(w, r, apperr.Invalid(fields...))
		return
	}

	drivers, err := s.Geo.Nearby(r.Context(), lat, lng, geo.ClampRadius(radius), limit)
	if err != nil {
		s.writeError(w, r, apperr.Wrap(apperr.Transient, "driver index unavailable", err))
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"drivers": drivers})
}

// handleDriverLocation takes a position report from the calling driver. With
// Kafka configured the consumer moves it into the index; otherwise it is
// indexed here.
func (s *Server) handleDriverLocation(w http.ResponseWriter, r *http.Request) {
	id := identity(r)
	if id.Role != models.RoleDriver {
		s.writeError(w, r, apperr.New(apperr.Forbidden, "only drivers report locations"))
		return
	}
	var req locationRequest
	if err := decode(w, r, &req); err != nil {
		s.writeError(w, r, err)
		return
	}
	loc := models.DriverLocation{
		DriverID: id.UserID.String(),
		Loc:      models.Coord{Lat: *req.Lat, Lon: *req.Lng},
		Online:   req.Online == nil || *req.Online,
		Updated:  s.now().UTC(),
	}
	if s.Users != nil {
		if u, err := s.Users.GetUser(r.Context(), id.UserID); err == nil {
			loc.Rating = u.Rating
		}
	}

	var err error
	if s.Locations != nil {
		err = s.Locations.PublishLocation(r.Context(), loc)
	} else {
		err = s.Geo.Upsert(r.Context(), loc)
	}
	if err != nil {
		s.writeError(w, r, apperr.Wrap(apperr.Transient, "location update failed", err))
		return
	}
	observability.LocationUpdatesTotal.Inc()
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleHotZones(w http.ResponseWriter, r *http.Request) {
	minutes, fe := queryInt(r, "since_minutes", defaultHotZoneMinutes, 1, maxHotZoneMinutes)
	if fe != nil {
		s.writeError(w, r, apperr.Invalid(*fe))
		return
	}
	since := s.now().Add(-time.Duration(minutes) * time.Minute)
	zones, err := s.Procedures.HotZones(r.Context(), since, defaultHotZoneLimit)
	if err != nil {
		s.writeError(w, r, apperr.Store("hot zones", err))
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"zones": zones})
}

func (s *Server) handleLeaderboard(w http.ResponseWriter, r *http.Request) {
	category := models.LeaderboardCategory(r.URL.Query().Get("category"))
	if category == "" {
		category = models.LeaderboardRides
	}
	var fields []apperr.FieldError
	if !category.Valid() {
		fields = append(fields, apperr.Field("category", "must be one of rides, earnings, rating"))
	}
	limit, fe := queryInt(r, "limit", defaultLeaderboardLimit, 1, maxLeaderboardLimit)
	if fe != nil {
		fields = append(fields, *fe)
	}
	if len(fields) > 0 {
		s.writeError(w, r, apperr.Invalid(fields...))
		return
	}
	entries, err := s.Procedures.Leaderboard(r.Context(), category, limit)
	if err != nil {
		s.writeError(w, r, apperr.Store("leaderboard", err))
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"category": category, "entries": entries})
}
