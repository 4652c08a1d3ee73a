package api

import (
	"errors"
	"io"
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"courtboard/internal/attendance"
	"courtboard/internal/calendar"
	"courtboard/internal/feedback"
	"courtboard/internal/identity"
	"courtboard/internal/kv"
	"courtboard/internal/presence"
	"courtboard/internal/profile"
	"courtboard/internal/timeslot"
)

// writeError maps domain errors to status codes.
func (s *server) writeError(c *gin.Context, err error) {
	status := http.StatusInternalServerError
	switch {
	case errors.Is(err, identity.ErrNotAuthenticated):
		status = http.StatusUnauthorized
	case errors.Is(err, presence.ErrNotEligible):
		status = http.StatusConflict
	case errors.Is(err, kv.ErrUnavailable):
		status = http.StatusServiceUnavailable
	case errors.Is(err, attendance.ErrInvalidStatus),
		errors.Is(err, calendar.ErrInvalidDay),
		errors.Is(err, timeslot.ErrUnknownSlot),
		errors.Is(err, kv.ErrInvalidPath),
		errors.Is(err, profile.ErrInvalid),
		errors.Is(err, feedback.ErrEmpty):
		status = http.StatusBadRequest
	}
	if status >= http.StatusInternalServerError {
		s.Logger.Error("request failed", zap.String("path", c.FullPath()), zap.Error(err))
	}
	c.JSON(status, gin.H{"error": err.Error()})
}

func (s *server) day(c *gin.Context) (calendar.Day, bool) {
	day, err := calendar.Parse(c.Param("day"))
	if err != nil {
		s.writeError(c, err)
		return "", false
	}
	return day, true
}

func viewer(c *gin.Context) string {
	u, _ := identity.FromContext(c.Request.Context())
	return u.ID
}

func (s *server) healthz(c *gin.Context) {
	if s.Health != nil {
		if err := s.Health(c.Request.Context()); err != nil {
			c.JSON(http.StatusServiceUnavailable, gin.H{"status": "degraded", "error": err.Error()})
			return
		}
	}
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

func (s *server) listSlots(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"slots": s.Aggregator.Catalog().Slots()})
}

func (s *server) live(c *gin.Context) {
	if s.Live != nil {
		if l := s.Live.Current(); l.Day != "" {
			c.JSON(http.StatusOK, l)
			return
		}
	}
	c.JSON(http.StatusOK, s.Aggregator.Live(c.Request.Context(), s.Clock.Now()))
}

func (s *server) getDay(c *gin.Context) {
	day, ok := s.day(c)
	if !ok {
		return
	}
	c.JSON(http.StatusOK, s.Aggregator.Day(c.Request.Context(), day, viewer(c)))
}

// streamDay sends a "snapshot" event whenever the day changes. Snapshots
// are coalesced: a slow client only ever gets the newest one.
func (s *server) streamDay(c *gin.Context) {
	day, ok := s.day(c)
	if !ok {
		return
	}
	ctx := c.Request.Context()
	updates := make(chan *presence.Snapshot, 1)
	board, err := presence.OpenBoard(ctx, s.Aggregator, s.Actions, day, viewer(c), func(snap *presence.Snapshot) {
		if !snap.Ready {
			return
		}
		select {
		case <-updates:
		default:
		}
		updates <- snap
	})
	if err != nil {
		s.writeError(c, err)
		return
	}
	defer board.Close()

	c.Header("Cache-Control", "no-cache")
	c.Header("X-Accel-Buffering", "no")
	c.Stream(func(w io.Writer) bool {
		select {
		case snap := <-updates:
			c.SSEvent("snapshot", snap)
			return true
		case <-ctx.Done():
			return false
		}
	})
}

func (s *server) getAttendance(c *gin.Context) {
	day, ok := s.day(c)
	if !ok {
		return
	}
	status, err := s.Actions.Status(c.Request.Context(), day)
	if err != nil {
		s.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"day": day, "status": status})
}

func (s *server) putAttendance(c *gin.Context) {
	day, ok := s.day(c)
	if !ok {
		return
	}
	var req struct {
		Status string `json:"status" binding:"required"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	status, err := attendance.ParseStatus(req.Status)
	if err != nil {
		s.writeError(c, err)
		return
	}
	if err := s.Actions.Declare(c.Request.Context(), day, status); err != nil {
		s.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"day": day, "status": status})
}

func (s *server) deleteAttendance(c *gin.Context) {
	day, ok := s.day(c)
	if !ok {
		return
	}
	if err := s.Actions.Withdraw(c.Request.Context(), day); err != nil {
		s.writeError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

func (s *server) joinSlot(c *gin.Context) {
	day, ok := s.day(c)
	if !ok {
		return
	}
	if err := s.Actions.Join(c.Request.Context(), day, c.Param("slot")); err != nil {
		s.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"day": day, "slot": c.Param("slot"), "joined": true})
}

func (s *server) leaveSlot(c *gin.Context) {
	day, ok := s.day(c)
	if !ok {
		return
	}
	if err := s.Actions.Leave(c.Request.Context(), day, c.Param("slot")); err != nil {
		s.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"day": day, "slot": c.Param("slot"), "joined": false})
}

func (s *server) putProfile(c *gin.Context) {
	var req profile.Profile
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	uid := viewer(c)
	if err := s.Profiles.Save(c.Request.Context(), uid, req); err != nil {
		s.writeError(c, err)
		return
	}
	s.Aggregator.Names().Remember(uid, req.Name)
	c.JSON(http.StatusOK, req)
}

func (s *server) postFeedback(c *gin.Context) {
	var req struct {
		Feedback string `json:"feedback" binding:"required"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	id, err := s.Feedback.Submit(c.Request.Context(), req.Feedback)
	if err != nil {
		s.writeError(c, err)
		return
	}
	c.JSON(http.StatusCreated, gin.H{"id": id})
}
