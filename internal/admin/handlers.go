package admin

import (
	"crypto/subtle"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"

	"remindbot/internal/dispatch"
	"remindbot/internal/reminders"
	"remindbot/internal/storage"
	"remindbot/internal/users"
	logx "remindbot/pkg/logx"
)

type loginRequest struct {
	Username string `json:"username" binding:"required"`
	Password string `json:"password" binding:"required"`
}

func (s *Server) handleLogin(c *gin.Context) {
	var req loginRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	user, pass, ttl := s.credentials()
	userOK := subtle.ConstantTimeCompare([]byte(req.Username), []byte(user))
	passOK := subtle.ConstantTimeCompare([]byte(req.Password), []byte(pass))
	if userOK&passOK != 1 {
		s.log.Warn("admin login failed",
			logx.String("username", req.Username),
			logx.String("client", c.ClientIP()),
		)
		c.JSON(http.StatusUnauthorized, gin.H{"error": "invalid credentials"})
		return
	}

	tok, exp := s.tokens.issue(time.Now(), ttl)
	s.log.Info("admin login",
		logx.String("username", req.Username),
		logx.String("client", c.ClientIP()),
	)
	c.JSON(http.StatusOK, gin.H{
		"token":      tok,
		"expires_at": exp.UTC().Format(time.RFC3339),
	})
}

func (s *Server) handleLogout(c *gin.Context) {
	s.tokens.revoke(c.GetString(ctxToken))
	c.JSON(http.StatusOK, gin.H{"success": true})
}

type reminderCounts struct {
	Active    int `json:"active"`
	Completed int `json:"completed"`
	Suspended int `json:"suspended"`
	Cancelled int `json:"cancelled"`
	Total     int `json:"total"`
}

type engineStats struct {
	Running    bool `json:"running"`
	ArmedJobs  int  `json:"armed_jobs"`
	QueueDepth int  `json:"queue_depth"`
}

type dispatchStats struct {
	QueueDepth   int `json:"queue_depth"`
	Breakers     int `json:"breakers"`
	BreakersOpen int `json:"breakers_open"`
}

type statsResponse struct {
	Users     users.Stats    `json:"users"`
	Reminders reminderCounts `json:"reminders"`
	Engine    engineStats    `json:"engine"`
	Dispatch  dispatchStats  `json:"dispatch"`
}

func (s *Server) handleStats(c *gin.Context) {
	if s.serv.Users == nil || s.serv.Reminders == nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "stats unavailable"})
		return
	}
	ctx := c.Request.Context()

	us, err := s.serv.Users.Stats(ctx)
	if err != nil {
		s.log.Error("admin stats failed", logx.Err(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to gather stats"})
		return
	}
	counts, err := s.serv.Reminders.Counts(ctx)
	if err != nil {
		s.log.Error("admin stats failed", logx.Err(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to gather stats"})
		return
	}

	resp := statsResponse{
		Users: us,
		Reminders: reminderCounts{
			Active:    counts[storage.StatusActive],
			Completed: counts[storage.StatusCompleted],
			Suspended: counts[storage.StatusSuspended],
			Cancelled: counts[storage.StatusCancelled],
		},
	}
	for _, n := range counts {
		resp.Reminders.Total += n
	}
	if s.serv.Engine != nil {
		resp.Engine = engineStats{
			Running:    s.serv.Engine.Running(),
			ArmedJobs:  len(s.serv.Engine.Jobs()),
			QueueDepth: s.serv.Engine.QueueDepth(),
		}
	}
	if s.serv.Dispatch != nil {
		total, open := s.serv.Dispatch.BreakerStats()
		resp.Dispatch = dispatchStats{
			QueueDepth:   s.serv.Dispatch.QueueDepth(),
			Breakers:     total,
			BreakersOpen: open,
		}
	}
	c.JSON(http.StatusOK, resp)
}

type userInfo struct {
	ID            int64           `json:"id"`
	Username      string          `json:"username,omitempty"`
	FirstName     string          `json:"first_name,omitempty"`
	IsBlocked     bool            `json:"is_blocked"`
	IsWhitelisted bool            `json:"is_whitelisted"`
	Preferences   json.RawMessage `json:"preferences,omitempty"`
	CreatedAt     string          `json:"created_at"`
	UpdatedAt     string          `json:"updated_at"`
}

func toUserInfo(u *storage.User) userInfo {
	out := userInfo{
		ID:            u.ID,
		Username:      u.Username,
		FirstName:     u.FirstName,
		IsBlocked:     u.IsBlocked,
		IsWhitelisted: u.IsWhitelisted,
		CreatedAt:     u.CreatedAt.UTC().Format(time.RFC3339),
		UpdatedAt:     u.UpdatedAt.UTC().Format(time.RFC3339),
	}
	// A row with mangled preference text must not sink the whole listing.
	if json.Valid([]byte(u.Preferences)) {
		out.Preferences = json.RawMessage(u.Preferences)
	}
	return out
}

func (s *Server) handleUsers(c *gin.Context) {
	if s.serv.Users == nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "users unavailable"})
		return
	}

	page := queryInt(c, "page", 1)
	perPage := queryInt(c, "per_page", 50)
	if page < 1 {
		page = 1
	}
	if perPage < 1 || perPage > 500 {
		perPage = 50
	}

	all, err := s.serv.Users.List(c.Request.Context())
	if err != nil {
		s.log.Error("admin user list failed", logx.Err(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to fetch users"})
		return
	}

	total := len(all)
	start := (page - 1) * perPage
	if start > total {
		start = total
	}
	end := start + perPage
	if end > total {
		end = total
	}

	out := make([]userInfo, 0, end-start)
	for _, u := range all[start:end] {
		out = append(out, toUserInfo(u))
	}

	c.JSON(http.StatusOK, gin.H{
		"users":    out,
		"total":    total,
		"page":     page,
		"per_page": perPage,
		"pages":    (total + perPage - 1) / perPage,
	})
}

func (s *Server) handleUserAction(verb, message string) gin.HandlerFunc {
	return func(c *gin.Context) {
		id, err := strconv.ParseInt(c.Param("id"), 10, 64)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid user id"})
			return
		}
		if s.serv.Users == nil {
			c.JSON(http.StatusServiceUnavailable, gin.H{"error": "users unavailable"})
			return
		}

		ctx := c.Request.Context()
		switch verb {
		case "block":
			err = s.serv.Users.Block(ctx, id)
		case "unblock":
			err = s.serv.Users.Unblock(ctx, id)
		case "whitelist":
			err = s.serv.Users.Whitelist(ctx, id)
		case "unwhitelist":
			err = s.serv.Users.Unwhitelist(ctx, id)
		}

		switch {
		case err == nil:
			s.log.Info("admin user action",
				logx.String("action", verb),
				logx.Int64("user_id", id),
				logx.String("client", c.ClientIP()),
			)
			c.JSON(http.StatusOK, gin.H{"success": true, "message": message})
		case errors.Is(err, storage.ErrNotFound):
			c.JSON(http.StatusNotFound, gin.H{"error": "user not found"})
		default:
			s.log.Error("admin user action failed",
				logx.String("action", verb),
				logx.Int64("user_id", id),
				logx.Err(err),
			)
			c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to update user"})
		}
	}
}

// maxPreferencesLen caps the stored preference document.
const maxPreferencesLen = 4096

type preferencesRequest struct {
	Preferences json.RawMessage `json:"preferences" binding:"required"`
}

// handleUserPreferences replaces a user's preference document. The payload
// is opaque to the bot: stored verbatim, echoed back by the user listing.
func (s *Server) handleUserPreferences(c *gin.Context) {
	id, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid user id"})
		return
	}
	if s.serv.Users == nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "users unavailable"})
		return
	}
	var req preferencesRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	if len(req.Preferences) > maxPreferencesLen {
		c.JSON(http.StatusBadRequest, gin.H{"error": "preferences too large"})
		return
	}

	err = s.serv.Users.SetPreferences(c.Request.Context(), id, string(req.Preferences))
	switch {
	case err == nil:
		s.log.Info("admin user action",
			logx.String("action", "preferences"),
			logx.Int64("user_id", id),
			logx.String("client", c.ClientIP()),
		)
		c.JSON(http.StatusOK, gin.H{"success": true, "message": "preferences updated"})
	case errors.Is(err, storage.ErrNotFound):
		c.JSON(http.StatusNotFound, gin.H{"error": "user not found"})
	default:
		s.log.Error("admin preferences update failed", logx.Int64("user_id", id), logx.Err(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to update user"})
	}
}

type reminderInfo struct {
	ID                int64  `json:"id"`
	UserID            int64  `json:"user_id"`
	Text              string `json:"text"`
	ScheduleTime      string `json:"schedule_time"`
	IntervalDays      int    `json:"interval_days"`
	Status            string `json:"status"`
	NextNotification  string `json:"next_notification"`
	NotificationCount int    `json:"notification_count"`
	MaxNotifications  int    `json:"max_notifications"`
	CreatedAt         string `json:"created_at"`
}

func toReminderInfo(r *storage.Reminder) reminderInfo {
	return reminderInfo{
		ID:                r.ID,
		UserID:            r.UserID,
		Text:              r.Text,
		ScheduleTime:      r.ScheduleTime,
		IntervalDays:      r.IntervalDays,
		Status:            string(r.Status),
		NextNotification:  r.NextNotification.UTC().Format(time.RFC3339),
		NotificationCount: r.NotificationCount,
		MaxNotifications:  r.MaxNotifications,
		CreatedAt:         r.CreatedAt.UTC().Format(time.RFC3339),
	}
}

func (s *Server) handleUserReminders(c *gin.Context) {
	id, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid user id"})
		return
	}
	if s.serv.Reminders == nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "reminders unavailable"})
		return
	}

	rs, err := s.serv.Reminders.ListByUser(c.Request.Context(), id)
	if err != nil {
		s.log.Error("admin reminder list failed", logx.Int64("user_id", id), logx.Err(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to fetch reminders"})
		return
	}

	out := make([]reminderInfo, 0, len(rs))
	for _, r := range rs {
		out = append(out, toReminderInfo(r))
	}
	c.JSON(http.StatusOK, gin.H{"reminders": out, "count": len(out)})
}

func (s *Server) handleReactivate(c *gin.Context) {
	id, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid reminder id"})
		return
	}
	if s.serv.Reminders == nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "reminders unavailable"})
		return
	}

	r, err := s.serv.Reminders.Reactivate(c.Request.Context(), id)
	switch {
	case err == nil:
	case r != nil:
		// Row is active again but the timer did not arm. The reconcile
		// sweep picks it up.
		s.log.Warn("reminder reactivated without timer",
			logx.Int64("reminder_id", id), logx.Err(err))
	case errors.Is(err, reminders.ErrNotSuspended):
		c.JSON(http.StatusConflict, gin.H{"error": "reminder is not suspended"})
		return
	case errors.Is(err, storage.ErrNotFound):
		c.JSON(http.StatusNotFound, gin.H{"error": "reminder not found"})
		return
	default:
		s.log.Error("admin reactivate failed", logx.Int64("reminder_id", id), logx.Err(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to reactivate reminder"})
		return
	}

	s.log.Info("admin reminder reactivated",
		logx.Int64("reminder_id", id),
		logx.String("client", c.ClientIP()),
	)
	c.JSON(http.StatusOK, gin.H{"success": true, "reminder": toReminderInfo(r)})
}

type broadcastRequest struct {
	Text string `json:"text" binding:"required,min=1,max=4000"`
}

func (s *Server) handleBroadcast(c *gin.Context) {
	var req broadcastRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	if s.serv.Users == nil || s.serv.Dispatch == nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "broadcast unavailable"})
		return
	}
	ctx := c.Request.Context()

	all, err := s.serv.Users.List(ctx)
	if err != nil {
		s.log.Error("admin broadcast failed", logx.Err(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to fetch users"})
		return
	}
	targets := broadcastTargets(all)

	queued, err := s.serv.Dispatch.Broadcast(ctx, targets, req.Text, nil)
	if err != nil && !errors.Is(err, dispatch.ErrQueueFull) {
		s.log.Error("admin broadcast rejected", logx.Err(err))
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "broadcast rejected"})
		return
	}

	s.log.Info("admin broadcast",
		logx.Int("targets", len(targets)),
		logx.Int("queued", queued),
		logx.String("client", c.ClientIP()),
	)
	c.JSON(http.StatusOK, gin.H{
		"targets": len(targets),
		"queued":  queued,
		"dropped": len(targets) - queued,
	})
}

func (s *Server) handleHealthz(c *gin.Context) {
	comp := gin.H{}
	healthy := true

	if s.serv.Store != nil {
		if _, err := s.serv.Store.CountRemindersByStatus(c.Request.Context()); err != nil {
			comp["storage"] = "error: " + err.Error()
			healthy = false
		} else {
			comp["storage"] = "ok"
		}
	} else {
		comp["storage"] = "not configured"
		healthy = false
	}

	if s.serv.Engine != nil && s.serv.Engine.Running() {
		comp["engine"] = "running"
	} else {
		comp["engine"] = "stopped"
		healthy = false
	}

	switch {
	case s.serv.AdapterUp == nil:
		comp["adapter"] = "unknown"
	case s.serv.AdapterUp():
		comp["adapter"] = "up"
	default:
		comp["adapter"] = "down"
		healthy = false
	}

	status := http.StatusOK
	state := "healthy"
	if !healthy {
		status = http.StatusServiceUnavailable
		state = "unhealthy"
	}
	c.JSON(status, gin.H{
		"status":     state,
		"components": comp,
		"timestamp":  time.Now().UTC().Format(time.RFC3339),
	})
}

func queryInt(c *gin.Context, key string, def int) int {
	v := c.Query(key)
	if v == "" {
		return def
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return def
	}
	return n
}
