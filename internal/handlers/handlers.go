// Package handlers exposes the platform over a JSON API. Handlers only
// translate between HTTP and the services; all rules live below them.
package handlers

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"medal/internal/apperr"
	"medal/internal/auth"
	"medal/internal/contest"
	"medal/internal/grading"
	"medal/internal/group"
	"medal/internal/models"
	"medal/internal/results"
	"medal/internal/storage"
)

const sessionCookie = "medal_session"

type Handler struct {
	Auth       *auth.Service
	Gate       *contest.Gate
	Grader     *grading.Grader
	Aggregator *results.Aggregator
	Groups     *group.Service
	Store      storage.Gateway

	CookieSecure bool
}

func New(authSvc *auth.Service, gate *contest.Gate, grader *grading.Grader, aggregator *results.Aggregator, groups *group.Service, store storage.Gateway, cookieSecure bool) *Handler {
	return &Handler{
		Auth:         authSvc,
		Gate:         gate,
		Grader:       grader,
		Aggregator:   aggregator,
		Groups:       groups,
		Store:        store,
		CookieSecure: cookieSecure,
	}
}

// Register wires every route onto the router.
func (h *Handler) Register(router *gin.Engine) {
	v1 := router.Group("/api/v1")
	v1.Use(h.SessionMiddleware())
	{
		v1.POST("/login", h.LoginHandler)
		v1.POST("/login/code", h.LoginCodeHandler)
		v1.POST("/login/group", h.LoginGroupHandler)
		v1.POST("/logout", h.LogoutHandler)
		v1.GET("/session", h.SessionHandler)

		v1.GET("/contests", h.ContestsHandler)
		v1.GET("/contests/:id", h.ContestHandler)
		v1.POST("/contests/:id/start", h.StartContestHandler)
		v1.GET("/contests/:id/grades", h.OwnGradesHandler)
		v1.GET("/contests/:id/results", h.GroupResultsHandler)

		v1.POST("/tasks/:id/submission", h.SaveSubmissionHandler)
		v1.GET("/tasks/:id/submission", h.LoadSubmissionHandler)

		v1.GET("/groups", h.GroupsHandler)
		v1.POST("/groups", h.CreateGroupHandler)
		v1.GET("/groups/:id", h.GroupHandler)
	}

	// Profile routes skip the middleware: an expired cookie must surface as
	// a timeout here instead of being swapped for an anonymous session.
	profile := router.Group("/api/v1")
	{
		profile.GET("/profile", h.ProfileHandler)
		profile.POST("/profile", h.UpdateProfileHandler)
	}
}

// SessionMiddleware resolves the session cookie into a user, minting an
// anonymous session when the cookie is absent or stale.
func (h *Handler) SessionMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		token, _ := c.Cookie(sessionCookie)
		user, err := h.Auth.ResolveSession(c.Request.Context(), token)
		if err != nil {
			c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"error": "failed to resolve session"})
			return
		}
		h.bindSession(c, user)
		c.Next()
	}
}

// bindSession stores the user on the context and refreshes the cookie
// when the token changed.
func (h *Handler) bindSession(c *gin.Context, user *models.SessionUser) {
	if old, _ := c.Cookie(sessionCookie); user.SessionToken != nil && *user.SessionToken != old {
		c.SetCookie(sessionCookie, *user.SessionToken, 0, "/", "", h.CookieSecure, true)
	}
	c.Set("user", user)
}

func sessionUser(c *gin.Context) *models.SessionUser {
	return c.MustGet("user").(*models.SessionUser)
}

type loginRequest struct {
	Username string `json:"username" binding:"required"`
	Password string `json:"password" binding:"required"`
}

func (h *Handler) LoginHandler(c *gin.Context) {
	var req loginRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "username and password are required"})
		return
	}
	user, err := h.Auth.LoginWithPassword(c.Request.Context(), req.Username, req.Password)
	if err != nil {
		h.writeError(c, err)
		return
	}
	h.bindSession(c, user)
	c.JSON(http.StatusOK, sessionView(user))
}

type codeRequest struct {
	Code string `json:"code" binding:"required"`
}

func (h *Handler) LoginCodeHandler(c *gin.Context) {
	var req codeRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "code is required"})
		return
	}
	user, err := h.Auth.LoginWithCode(c.Request.Context(), req.Code)
	if err != nil {
		h.writeError(c, err)
		return
	}
	h.bindSession(c, user)
	c.JSON(http.StatusOK, sessionView(user))
}

func (h *Handler) LoginGroupHandler(c *gin.Context) {
	var req codeRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "code is required"})
		return
	}
	user, err := h.Auth.LoginWithGroupCode(c.Request.Context(), req.Code)
	if err != nil {
		h.writeError(c, err)
		return
	}
	h.bindSession(c, user)
	c.JSON(http.StatusOK, sessionView(user))
}

type csrfRequest struct {
	CsrfToken string `json:"csrf_token"`
}

func (h *Handler) LogoutHandler(c *gin.Context) {
	user := sessionUser(c)
	if user.SessionToken != nil {
		if err := h.Auth.Logout(c.Request.Context(), *user.SessionToken); err != nil {
			h.writeError(c, err)
			return
		}
	}
	c.SetCookie(sessionCookie, "", -1, "/", "", h.CookieSecure, true)
	c.JSON(http.StatusOK, gin.H{"message": "logged out"})
}

func (h *Handler) SessionHandler(c *gin.Context) {
	c.JSON(http.StatusOK, sessionView(sessionUser(c)))
}

func (h *Handler) ContestsHandler(c *gin.Context) {
	user := sessionUser(c)
	contests, err := h.Store.Contests(c.Request.Context())
	if err != nil {
		h.writeError(c, err)
		return
	}
	visible := make([]models.Contest, 0, len(contests))
	for _, ct := range contests {
		if h.Gate.CanViewContest(user, &ct) {
			visible = append(visible, ct)
		}
	}
	c.JSON(http.StatusOK, gin.H{"contests": visible})
}

func (h *Handler) ContestHandler(c *gin.Context) {
	user := sessionUser(c)
	ct, ok := h.loadContest(c)
	if !ok {
		return
	}
	if !h.Gate.CanViewContest(user, ct) {
		c.JSON(http.StatusForbidden, gin.H{"error": "contest is not public"})
		return
	}

	// Unlimited contests open their participation on first view.
	participation, err := h.Gate.AutoStart(c.Request.Context(), user, ct)
	if err != nil {
		h.writeError(c, err)
		return
	}

	resp := gin.H{
		"contest":     ct,
		"review_open": h.Gate.ReviewOpen(ct),
	}
	if participation != nil {
		resp["participation"] = participation
		resp["remaining"] = h.Gate.RemainingTime(ct, participation)
	}
	c.JSON(http.StatusOK, resp)
}

func (h *Handler) StartContestHandler(c *gin.Context) {
	user := sessionUser(c)
	ct, ok := h.loadContest(c)
	if !ok {
		return
	}
	var req csrfRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request body"})
		return
	}

	participation, decision, err := h.Gate.StartOrResume(c.Request.Context(), user, ct, req.CsrfToken)
	if err != nil {
		h.writeError(c, err)
		return
	}
	if participation == nil {
		c.JSON(http.StatusForbidden, gin.H{"decision": decision})
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"decision":      decision,
		"participation": participation,
		"remaining":     h.Gate.RemainingTime(ct, participation),
	})
}

type submissionRequest struct {
	CsrfToken string  `json:"csrf_token"`
	Subtask   *string `json:"subtask"`
	Percent   int     `json:"percent"`
	Value     string  `json:"value"`
}

func (h *Handler) SaveSubmissionHandler(c *gin.Context) {
	user := sessionUser(c)
	var req submissionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request body"})
		return
	}
	if req.CsrfToken != user.CsrfToken {
		h.writeError(c, apperr.ErrCsrfCheckFailed)
		return
	}
	if req.Percent < 0 || req.Percent > 100 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "percent must be between 0 and 100"})
		return
	}

	taskID, ok := paramID(c)
	if !ok {
		return
	}
	task, _, ct, err := h.Store.TaskComplete(c.Request.Context(), taskID)
	if err != nil {
		h.writeError(c, err)
		return
	}
	if task == nil {
		h.writeError(c, apperr.ErrUnknownID)
		return
	}

	allowed, err := h.Gate.CanSubmit(c.Request.Context(), user, ct)
	if err != nil {
		h.writeError(c, err)
		return
	}
	if !allowed {
		c.JSON(http.StatusForbidden, gin.H{"error": "submissions are closed for this contest"})
		return
	}

	submission, err := h.Grader.RecordSubmission(c.Request.Context(), user, taskID, req.Subtask, req.Percent, req.Value)
	if err != nil {
		h.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"submission": submission})
}

func (h *Handler) LoadSubmissionHandler(c *gin.Context) {
	user := sessionUser(c)
	taskID, ok := paramID(c)
	if !ok {
		return
	}
	var subtask *string
	if v, exists := c.GetQuery("subtask"); exists {
		subtask = &v
	}
	submission, err := h.Grader.LatestSubmission(c.Request.Context(), user, taskID, subtask)
	if err != nil {
		h.writeError(c, err)
		return
	}
	if submission == nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "no submission yet"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"submission": submission})
}

func (h *Handler) OwnGradesHandler(c *gin.Context) {
	user := sessionUser(c)
	contestID, ok := paramID(c)
	if !ok {
		return
	}
	grades, err := h.Aggregator.ContestGrades(c.Request.Context(), user, contestID)
	if err != nil {
		h.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"grades": grades, "total": results.Total(grades)})
}

func (h *Handler) GroupResultsHandler(c *gin.Context) {
	user := sessionUser(c)
	contestID, ok := paramID(c)
	if !ok {
		return
	}
	view, err := h.Aggregator.GroupResults(c.Request.Context(), user, contestID)
	if err != nil {
		h.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, view)
}

func (h *Handler) GroupsHandler(c *gin.Context) {
	groups, err := h.Groups.Groups(c.Request.Context(), sessionUser(c))
	if err != nil {
		h.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"groups": groups})
}

type createGroupRequest struct {
	CsrfToken string `json:"csrf_token"`
	Name      string `json:"name" binding:"required"`
	Tag       string `json:"tag"`
}

func (h *Handler) CreateGroupHandler(c *gin.Context) {
	var req createGroupRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "name is required"})
		return
	}
	grp, err := h.Groups.CreateGroup(c.Request.Context(), sessionUser(c), req.CsrfToken, req.Name, req.Tag)
	if err != nil {
		h.writeError(c, err)
		return
	}
	c.JSON(http.StatusCreated, gin.H{"group": grp})
}

func (h *Handler) GroupHandler(c *gin.Context) {
	groupID, ok := paramID(c)
	if !ok {
		return
	}
	grp, err := h.Groups.GroupDetail(c.Request.Context(), sessionUser(c), groupID)
	if err != nil {
		h.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"group": grp})
}

func (h *Handler) ProfileHandler(c *gin.Context) {
	user, ok := h.authenticated(c)
	if !ok {
		return
	}
	c.JSON(http.StatusOK, profileView(user))
}

type profileRequest struct {
	CsrfToken string  `json:"csrf_token"`
	Firstname *string `json:"firstname"`
	Lastname  *string `json:"lastname"`
	Street    *string `json:"street"`
	Zip       *string `json:"zip"`
	City      *string `json:"city"`
	Grade     *int    `json:"grade"`
	Password  string  `json:"password"`
}

func (h *Handler) UpdateProfileHandler(c *gin.Context) {
	user, ok := h.authenticated(c)
	if !ok {
		return
	}
	var req profileRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request body"})
		return
	}
	upd := auth.ProfileUpdate{
		Firstname: req.Firstname,
		Lastname:  req.Lastname,
		Street:    req.Street,
		Zip:       req.Zip,
		City:      req.City,
		Grade:     req.Grade,
		Password:  req.Password,
	}
	if err := h.Auth.UpdateProfile(c.Request.Context(), user, req.CsrfToken, upd); err != nil {
		h.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, profileView(user))
}

// authenticated resolves the cookie into a logged-in session without the
// anonymous fallback of the middleware.
func (h *Handler) authenticated(c *gin.Context) (*models.SessionUser, bool) {
	token, _ := c.Cookie(sessionCookie)
	user, err := h.Auth.AuthenticatedSession(c.Request.Context(), token)
	if err != nil {
		h.writeError(c, err)
		return nil, false
	}
	return user, true
}

func profileView(user *models.SessionUser) gin.H {
	return gin.H{
		"id":          user.ID,
		"username":    user.Username,
		"firstname":   user.Firstname,
		"lastname":    user.Lastname,
		"street":      user.Street,
		"zip":         user.Zip,
		"city":        user.City,
		"grade":       user.Grade,
		"grade_label": models.GradeLabel(user.Grade),
		"is_teacher":  user.IsTeacher,
	}
}

// sessionView is what a client learns about its own session. The CSRF
// token travels in the body, never in the cookie.
func sessionView(user *models.SessionUser) gin.H {
	return gin.H{
		"id":          user.ID,
		"csrf_token":  user.CsrfToken,
		"login_kind":  user.LoginKind(),
		"username":    user.Username,
		"firstname":   user.Firstname,
		"lastname":    user.Lastname,
		"grade":       user.Grade,
		"grade_label": models.GradeLabel(user.Grade),
		"is_teacher":  user.IsTeacher,
	}
}

func (h *Handler) loadContest(c *gin.Context) (*models.Contest, bool) {
	id, ok := paramID(c)
	if !ok {
		return nil, false
	}
	ct, err := h.Store.ContestComplete(c.Request.Context(), id)
	if err != nil {
		h.writeError(c, err)
		return nil, false
	}
	if ct == nil {
		h.writeError(c, apperr.ErrUnknownID)
		return nil, false
	}
	return ct, true
}

func paramID(c *gin.Context) (int, bool) {
	id, err := strconv.Atoi(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid id"})
		return 0, false
	}
	return id, true
}

// writeError maps service errors onto HTTP statuses.
func (h *Handler) writeError(c *gin.Context, err error) {
	switch {
	case errors.Is(err, apperr.ErrAuthFailed):
		c.JSON(http.StatusUnauthorized, gin.H{"error": "login failed"})
	case errors.Is(err, apperr.ErrNotLoggedIn):
		c.JSON(http.StatusUnauthorized, gin.H{"error": "not logged in"})
	case errors.Is(err, apperr.ErrSessionTimeout):
		c.JSON(http.StatusUnauthorized, gin.H{"error": "session expired"})
	case errors.Is(err, apperr.ErrAccessDenied):
		c.JSON(http.StatusForbidden, gin.H{"error": "access denied"})
	case errors.Is(err, apperr.ErrCsrfCheckFailed):
		c.JSON(http.StatusForbidden, gin.H{"error": "csrf check failed"})
	case errors.Is(err, apperr.ErrUnknownID):
		c.JSON(http.StatusNotFound, gin.H{"error": "not found"})
	case errors.Is(err, apperr.ErrDatabase):
		c.JSON(http.StatusInternalServerError, gin.H{"error": "database error"})
	default:
		c.JSON(http.StatusInternalServerError, gin.H{"error": "internal error"})
	}
}
