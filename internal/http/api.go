package http

import (
	"bytes"
	"embed"
	"errors"
	"fmt"
	"html/template"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"garagelog/internal/auth"
	"garagelog/internal/domain"
	"garagelog/internal/export"
	"garagelog/internal/service"
	"garagelog/internal/storage"
)

//go:embed templates/*.tmpl
var templateFS embed.FS

const userContextKey = "garagelog.user"

// flashCookieName carries a one-shot success notice across a redirect.
const flashCookieName = "garagelog_flash"

// ArchiveConfig points exports at an optional object storage bucket.
// A zero value disables archival.
type ArchiveConfig struct {
	Bucket    string
	KeyPrefix string
}

// Handler wires HTTP routes to domain services.
type Handler struct {
	users    service.UserService
	records  service.RecordService
	sessions *auth.Manager
	storage  storage.Service
	archive  ArchiveConfig
	logger   *logrus.Logger
}

func NewHandler(users service.UserService, records service.RecordService, sessions *auth.Manager, store storage.Service, archive ArchiveConfig, logger *logrus.Logger) *Handler {
	if logger == nil {
		logger = logrus.New()
	}
	return &Handler{
		users:    users,
		records:  records,
		sessions: sessions,
		storage:  store,
		archive:  archive,
		logger:   logger,
	}
}

func (h *Handler) RegisterRoutes(router *gin.Engine) {
	router.SetHTMLTemplate(template.Must(template.ParseFS(templateFS, "templates/*.tmpl")))

	router.GET("/", h.home)
	router.GET("/register", h.registerPage)
	router.POST("/register", h.register)
	router.GET("/login", h.loginPage)
	router.POST("/login", h.login)

	protected := router.Group("/", h.requireUser)
	{
		protected.GET("/logout", h.logout)
		protected.GET("/dashboard", h.dashboard)
		protected.GET("/add_service", h.addServicePage)
		protected.POST("/add_service", h.addService)
		protected.GET("/view_services", h.viewServices)
		protected.POST("/view_services", h.viewServices)
		protected.GET("/add_fuel", h.addFuelPage)
		protected.POST("/add_fuel", h.addFuel)
		protected.GET("/view_fuel", h.viewFuel)
		protected.GET("/view_reports", h.viewReports)
		protected.GET("/settings", h.settingsPage)
		protected.POST("/settings", h.saveSettings)
		protected.GET("/export_service_history", h.exportServiceHistory)
		protected.GET("/export_archive", h.exportArchive)
	}
}

// pageData is the template payload shared by every page.
type pageData struct {
	Title    string
	User     *domain.User
	Error    string
	Notice   string
	Next     string
	Form     map[string]string
	Records  any
	Report   *domain.Report
	Settings *domain.Settings
}

// requireUser resolves the session cookie into a user and stores it on the
// context. Unauthenticated requests are redirected to login with the
// original path preserved.
func (h *Handler) requireUser(c *gin.Context) {
	redirect := func() {
		next := url.QueryEscape(c.Request.URL.RequestURI())
		c.Redirect(http.StatusFound, "/login?next="+next)
		c.Abort()
	}

	token, err := c.Cookie(auth.CookieName)
	if err != nil {
		redirect()
		return
	}

	userID, err := h.sessions.Parse(token)
	if err != nil {
		redirect()
		return
	}

	user, err := h.users.GetByID(c.Request.Context(), userID)
	if err != nil {
		redirect()
		return
	}

	c.Set(userContextKey, user)
	c.Next()
}

func setFlash(c *gin.Context, message string) {
	c.SetCookie(flashCookieName, message, 60, "/", "", false, true)
}

// takeFlash reads and clears the pending notice, if any.
func takeFlash(c *gin.Context) string {
	message, err := c.Cookie(flashCookieName)
	if err != nil || message == "" {
		return ""
	}
	c.SetCookie(flashCookieName, "", -1, "/", "", false, true)
	return message
}

func currentUser(c *gin.Context) *domain.User {
	value, ok := c.Get(userContextKey)
	if !ok {
		return nil
	}
	user, _ := value.(*domain.User)
	return user
}

func (h *Handler) home(c *gin.Context) {
	c.HTML(http.StatusOK, "home", pageData{Title: "Home"})
}

func (h *Handler) registerPage(c *gin.Context) {
	c.HTML(http.StatusOK, "register", pageData{Title: "Register"})
}

func (h *Handler) register(c *gin.Context) {
	username := c.PostForm("username")
	email := c.PostForm("email")
	password := c.PostForm("password")

	_, err := h.users.Register(c.Request.Context(), username, email, password)
	if err != nil {
		data := pageData{
			Title: "Register",
			Form:  map[string]string{"username": username, "email": email},
		}
		switch {
		case errors.Is(err, service.ErrEmailTaken):
			data.Error = "That email is already registered."
			c.HTML(http.StatusConflict, "register", data)
		case errors.Is(err, service.ErrUsernameTaken):
			data.Error = "That username is already taken."
			c.HTML(http.StatusConflict, "register", data)
		case service.IsValidation(err):
			data.Error = err.Error()
			c.HTML(http.StatusBadRequest, "register", data)
		default:
			h.serverError(c, "register user", err)
		}
		return
	}

	setFlash(c, "Account created successfully!")
	c.Redirect(http.StatusSeeOther, "/login")
}

func (h *Handler) loginPage(c *gin.Context) {
	c.HTML(http.StatusOK, "login", pageData{
		Title:  "Login",
		Notice: takeFlash(c),
		Next:   safeNext(c.Query("next")),
	})
}

func (h *Handler) login(c *gin.Context) {
	email := c.PostForm("email")
	password := c.PostForm("password")
	next := safeNext(c.PostForm("next"))

	user, err := h.users.Authenticate(c.Request.Context(), email, password)
	if err != nil {
		if errors.Is(err, service.ErrInvalidCredentials) {
			c.HTML(http.StatusUnauthorized, "login", pageData{
				Title: "Login",
				Error: "Login unsuccessful. Check your email and password.",
				Next:  next,
				Form:  map[string]string{"email": email},
			})
			return
		}
		h.serverError(c, "authenticate user", err)
		return
	}

	token, err := h.sessions.Issue(user.ID, user.Username)
	if err != nil {
		h.serverError(c, "issue session", err)
		return
	}

	maxAge := int(h.sessions.TTL() / time.Second)
	c.SetCookie(auth.CookieName, token, maxAge, "/", "", false, true)

	if next == "" {
		next = "/dashboard"
	}
	c.Redirect(http.StatusSeeOther, next)
}

func (h *Handler) logout(c *gin.Context) {
	c.SetCookie(auth.CookieName, "", -1, "/", "", false, true)
	c.Redirect(http.StatusFound, "/")
}

func (h *Handler) dashboard(c *gin.Context) {
	c.HTML(http.StatusOK, "dashboard", pageData{
		Title:  "Dashboard",
		User:   currentUser(c),
		Notice: takeFlash(c),
	})
}

func (h *Handler) addServicePage(c *gin.Context) {
	c.HTML(http.StatusOK, "add_service", pageData{
		Title: "Add Service",
		User:  currentUser(c),
	})
}

func (h *Handler) addService(c *gin.Context) {
	user := currentUser(c)
	serviceType := c.PostForm("service_type")
	cost := c.PostForm("cost")
	notes := c.PostForm("notes")

	_, err := h.records.AddService(c.Request.Context(), user.ID, serviceType, cost, notes)
	if err != nil {
		if service.IsValidation(err) {
			c.HTML(http.StatusBadRequest, "add_service", pageData{
				Title: "Add Service",
				User:  user,
				Error: err.Error(),
				Form:  map[string]string{"service_type": serviceType, "cost": cost, "notes": notes},
			})
			return
		}
		h.serverError(c, "add maintenance record", err)
		return
	}

	setFlash(c, "Maintenance record added!")
	c.Redirect(http.StatusSeeOther, "/dashboard")
}

func (h *Handler) viewServices(c *gin.Context) {
	user := currentUser(c)
	serviceType := c.PostForm("service_type")
	minCost := c.PostForm("min_cost")
	maxCost := c.PostForm("max_cost")

	records, err := h.records.ListServices(c.Request.Context(), user.ID, serviceType, minCost, maxCost)
	if err != nil {
		if service.IsValidation(err) {
			c.HTML(http.StatusBadRequest, "view_services", pageData{
				Title: "Service History",
				User:  user,
				Error: err.Error(),
				Form:  map[string]string{"service_type": serviceType, "min_cost": minCost, "max_cost": maxCost},
			})
			return
		}
		h.serverError(c, "list maintenance records", err)
		return
	}

	c.HTML(http.StatusOK, "view_services", pageData{
		Title:   "Service History",
		User:    user,
		Form:    map[string]string{"service_type": serviceType, "min_cost": minCost, "max_cost": maxCost},
		Records: records,
	})
}

func (h *Handler) addFuelPage(c *gin.Context) {
	c.HTML(http.StatusOK, "add_fuel", pageData{
		Title: "Add Fuel",
		User:  currentUser(c),
	})
}

func (h *Handler) addFuel(c *gin.Context) {
	user := currentUser(c)
	mileage := c.PostForm("mileage")
	fuelCost := c.PostForm("fuel_cost")
	fuelAmount := c.PostForm("fuel_amount")

	_, err := h.records.AddFuel(c.Request.Context(), user.ID, mileage, fuelCost, fuelAmount)
	if err != nil {
		if service.IsValidation(err) {
			c.HTML(http.StatusBadRequest, "add_fuel", pageData{
				Title: "Add Fuel",
				User:  user,
				Error: err.Error(),
				Form:  map[string]string{"mileage": mileage, "fuel_cost": fuelCost, "fuel_amount": fuelAmount},
			})
			return
		}
		h.serverError(c, "add fuel record", err)
		return
	}

	setFlash(c, "Fuel record added!")
	c.Redirect(http.StatusSeeOther, "/dashboard")
}

func (h *Handler) viewFuel(c *gin.Context) {
	user := currentUser(c)

	records, err := h.records.ListFuel(c.Request.Context(), user.ID)
	if err != nil {
		h.serverError(c, "list fuel records", err)
		return
	}

	c.HTML(http.StatusOK, "view_fuel", pageData{
		Title:   "Fuel History",
		User:    user,
		Records: records,
	})
}

func (h *Handler) viewReports(c *gin.Context) {
	user := currentUser(c)

	report, err := h.records.Report(c.Request.Context(), user.ID)
	if err != nil {
		h.serverError(c, "build report", err)
		return
	}

	c.HTML(http.StatusOK, "view_reports", pageData{
		Title:  "Reports",
		User:   user,
		Report: report,
	})
}

func (h *Handler) settingsPage(c *gin.Context) {
	user := currentUser(c)

	settings, err := h.records.GetSettings(c.Request.Context(), user.ID)
	if err != nil {
		h.serverError(c, "load settings", err)
		return
	}

	c.HTML(http.StatusOK, "settings", pageData{
		Title:    "Settings",
		User:     user,
		Settings: settings,
	})
}

func (h *Handler) saveSettings(c *gin.Context) {
	user := currentUser(c)
	theme := c.PostForm("theme")
	currency := c.PostForm("currency")
	notifications := c.PostForm("notifications") == "on"

	if err := h.records.SaveSettings(c.Request.Context(), user.ID, theme, currency, notifications); err != nil {
		h.serverError(c, "save settings", err)
		return
	}

	setFlash(c, "Settings updated successfully!")
	c.Redirect(http.StatusSeeOther, "/dashboard")
}

func (h *Handler) exportServiceHistory(c *gin.Context) {
	user := currentUser(c)

	records, err := h.records.ListServices(c.Request.Context(), user.ID, "", "", "")
	if err != nil {
		h.serverError(c, "list maintenance records", err)
		return
	}

	var buf bytes.Buffer
	if err := export.WriteServiceHistory(&buf, records); err != nil {
		h.serverError(c, "write service history csv", err)
		return
	}

	h.archiveExport(c, user, buf.Bytes())

	c.Header("Content-Disposition", fmt.Sprintf("attachment; filename=%s", export.ServiceHistoryFilename))
	c.Data(http.StatusOK, "text/csv", buf.Bytes())
}

// archiveExport uploads a copy of the CSV to object storage when a bucket is
// configured. Failures are logged and never fail the download.
func (h *Handler) archiveExport(c *gin.Context, user *domain.User, data []byte) {
	if h.storage == nil || h.archive.Bucket == "" {
		return
	}

	key := h.archivePrefix(user) + fmt.Sprintf("service_history-%s.csv", uuid.NewString())

	location, err := h.storage.UploadObject(c.Request.Context(), h.archive.Bucket, key, "text/csv", bytes.NewReader(data))
	if err != nil {
		h.logger.Warnf("archive export for user %d: %v", user.ID, err)
		return
	}
	h.logger.Infof("archived export to %s", location)
}

// exportArchive lists the current user's archived exports from object storage.
func (h *Handler) exportArchive(c *gin.Context) {
	user := currentUser(c)

	if h.storage == nil || h.archive.Bucket == "" {
		c.HTML(http.StatusOK, "export_archive", pageData{
			Title: "Export Archive",
			User:  user,
			Error: "Export archiving is not configured.",
		})
		return
	}

	objects, err := h.storage.ListObjects(c.Request.Context(), h.archive.Bucket, h.archivePrefix(user))
	if err != nil {
		h.serverError(c, "list archived exports", err)
		return
	}

	c.HTML(http.StatusOK, "export_archive", pageData{
		Title:   "Export Archive",
		User:    user,
		Records: objects,
	})
}

// archivePrefix scopes archive objects to one user, mirroring the key layout
// used when uploading.
func (h *Handler) archivePrefix(user *domain.User) string {
	prefix := strings.Trim(h.archive.KeyPrefix, "/")
	if prefix == "" {
		return user.Username + "/"
	}
	return prefix + "/" + user.Username + "/"
}

func (h *Handler) serverError(c *gin.Context, action string, err error) {
	h.logger.Errorf("%s: %v", action, err)
	c.HTML(http.StatusInternalServerError, "error", pageData{Title: "Error", User: currentUser(c)})
}

// safeNext accepts only local absolute paths as post-login redirect targets.
func safeNext(next string) string {
	decoded, err := url.QueryUnescape(next)
	if err != nil {
		return ""
	}
	if !strings.HasPrefix(decoded, "/") || strings.HasPrefix(decoded, "//") {
		return ""
	}
	return decoded
}
