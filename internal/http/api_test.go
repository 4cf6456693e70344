package http

import (
	"context"
	"encoding/csv"
	"io"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"garagelog/internal/auth"
	"garagelog/internal/domain"
	"garagelog/internal/repository"
	"garagelog/internal/repository/sqlite"
	"garagelog/internal/service"
	"garagelog/internal/storage"
)

// stubStorage records uploads and serves canned listings.
type stubStorage struct {
	objects    []storage.ObjectInfo
	uploads    []string
	listPrefix string
}

func (s *stubStorage) UploadObject(_ context.Context, bucket, key, _ string, body io.Reader) (string, error) {
	if _, err := io.ReadAll(body); err != nil {
		return "", err
	}
	s.uploads = append(s.uploads, key)
	return "s3://" + bucket + "/" + key, nil
}

func (s *stubStorage) ListObjects(_ context.Context, _, prefix string) ([]storage.ObjectInfo, error) {
	s.listPrefix = prefix
	return s.objects, nil
}

type testApp struct {
	router      *gin.Engine
	users       service.UserService
	maintenance repository.MaintenanceRepository
}

func newTestApp(t *testing.T) *testApp {
	return newTestAppWithStorage(t, nil, ArchiveConfig{})
}

func newTestAppWithStorage(t *testing.T, store storage.Service, archive ArchiveConfig) *testApp {
	t.Helper()
	gin.SetMode(gin.TestMode)

	db, err := sqlite.OpenMemory()
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	ctx := context.Background()
	userRepo := sqlite.NewUserRepository(db)
	maintenanceRepo := sqlite.NewMaintenanceRepository(db)
	fuelRepo := sqlite.NewFuelRepository(db)
	settingsRepo := sqlite.NewSettingsRepository(db)
	for _, init := range []interface{ Init(context.Context) error }{userRepo, maintenanceRepo, fuelRepo, settingsRepo} {
		require.NoError(t, init.Init(ctx))
	}

	users := service.NewUserService(userRepo)
	records := service.NewRecordService(maintenanceRepo, fuelRepo, settingsRepo)

	sessions, err := auth.NewManager("test-secret", time.Hour)
	require.NoError(t, err)

	router := gin.New()
	handler := NewHandler(users, records, sessions, store, archive, nil)
	handler.RegisterRoutes(router)

	return &testApp{
		router:      router,
		users:       users,
		maintenance: maintenanceRepo,
	}
}

func (a *testApp) do(method, path, cookie string, form url.Values, extra ...*http.Cookie) *httptest.ResponseRecorder {
	var req *http.Request
	if form != nil {
		req = httptest.NewRequest(method, path, strings.NewReader(form.Encode()))
		req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	} else {
		req = httptest.NewRequest(method, path, nil)
	}
	if cookie != "" {
		req.AddCookie(&http.Cookie{Name: auth.CookieName, Value: cookie})
	}
	for _, c := range extra {
		req.AddCookie(c)
	}

	w := httptest.NewRecorder()
	a.router.ServeHTTP(w, req)
	return w
}

func responseCookie(w *httptest.ResponseRecorder, name string) *http.Cookie {
	for _, c := range w.Result().Cookies() {
		if c.Name == name {
			return c
		}
	}
	return nil
}

// registerAndLogin creates an account and returns its session cookie value.
func (a *testApp) registerAndLogin(t *testing.T, username, email string) string {
	t.Helper()

	w := a.do(http.MethodPost, "/register", "", url.Values{
		"username": {username},
		"email":    {email},
		"password": {"correct-horse"},
	})
	require.Equal(t, http.StatusSeeOther, w.Code)

	w = a.do(http.MethodPost, "/login", "", url.Values{
		"email":    {email},
		"password": {"correct-horse"},
	})
	require.Equal(t, http.StatusSeeOther, w.Code)
	require.Equal(t, "/dashboard", w.Header().Get("Location"))

	for _, c := range w.Result().Cookies() {
		if c.Name == auth.CookieName {
			require.NotEmpty(t, c.Value)
			return c.Value
		}
	}
	t.Fatal("no session cookie set")
	return ""
}

func TestHomeIsPublic(t *testing.T) {
	app := newTestApp(t)

	w := app.do(http.MethodGet, "/", "", nil)
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "GarageLog")
}

func TestProtectedRouteRedirectsToLogin(t *testing.T) {
	app := newTestApp(t)

	w := app.do(http.MethodGet, "/dashboard", "", nil)
	assert.Equal(t, http.StatusFound, w.Code)
	assert.Equal(t, "/login?next=%2Fdashboard", w.Header().Get("Location"))
}

func TestProtectedRouteRejectsBadCookie(t *testing.T) {
	app := newTestApp(t)

	w := app.do(http.MethodGet, "/view_fuel", "not-a-token", nil)
	assert.Equal(t, http.StatusFound, w.Code)
	assert.Contains(t, w.Header().Get("Location"), "/login?next=")
}

func TestRegisterDuplicateEmailShowsError(t *testing.T) {
	app := newTestApp(t)

	form := url.Values{
		"username": {"alice"},
		"email":    {"alice@example.com"},
		"password": {"correct-horse"},
	}
	w := app.do(http.MethodPost, "/register", "", form)
	require.Equal(t, http.StatusSeeOther, w.Code)

	form.Set("username", "alice2")
	w = app.do(http.MethodPost, "/register", "", form)
	assert.Equal(t, http.StatusConflict, w.Code)
	assert.Contains(t, w.Body.String(), "already registered")
}

func TestRegisterDuplicateUsernameShowsError(t *testing.T) {
	app := newTestApp(t)

	w := app.do(http.MethodPost, "/register", "", url.Values{
		"username": {"alice"},
		"email":    {"alice@example.com"},
		"password": {"correct-horse"},
	})
	require.Equal(t, http.StatusSeeOther, w.Code)

	// same username, fresh email
	w = app.do(http.MethodPost, "/register", "", url.Values{
		"username": {"alice"},
		"email":    {"fresh@example.com"},
		"password": {"correct-horse"},
	})
	assert.Equal(t, http.StatusConflict, w.Code)
	assert.Contains(t, w.Body.String(), "username is already taken")
	assert.NotContains(t, w.Body.String(), "email is already registered")
}

func TestRegisterFlashShownOnLogin(t *testing.T) {
	app := newTestApp(t)

	w := app.do(http.MethodPost, "/register", "", url.Values{
		"username": {"alice"},
		"email":    {"alice@example.com"},
		"password": {"correct-horse"},
	})
	require.Equal(t, http.StatusSeeOther, w.Code)
	require.Equal(t, "/login", w.Header().Get("Location"))

	flash := responseCookie(w, flashCookieName)
	require.NotNil(t, flash, "register success should queue a notice")

	w = app.do(http.MethodGet, "/login", "", nil, flash)
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "Account created successfully!")

	// the notice is one-shot
	cleared := responseCookie(w, flashCookieName)
	require.NotNil(t, cleared)
	assert.Less(t, cleared.MaxAge, 0)
}

func TestAddServiceFlashShownOnDashboard(t *testing.T) {
	app := newTestApp(t)
	cookie := app.registerAndLogin(t, "alice", "alice@example.com")

	w := app.do(http.MethodPost, "/add_service", cookie, url.Values{
		"service_type": {"Oil Change"},
		"cost":         {"29.99"},
		"notes":        {""},
	})
	require.Equal(t, http.StatusSeeOther, w.Code)

	flash := responseCookie(w, flashCookieName)
	require.NotNil(t, flash)

	w = app.do(http.MethodGet, "/dashboard", cookie, nil, flash)
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "Maintenance record added!")

	// a second visit shows no stale notice
	w = app.do(http.MethodGet, "/dashboard", cookie, nil)
	assert.NotContains(t, w.Body.String(), "Maintenance record added!")
}

func TestSettingsFlashShownOnDashboard(t *testing.T) {
	app := newTestApp(t)
	cookie := app.registerAndLogin(t, "alice", "alice@example.com")

	w := app.do(http.MethodPost, "/settings", cookie, url.Values{
		"theme":    {"dark"},
		"currency": {"EUR"},
	})
	require.Equal(t, http.StatusSeeOther, w.Code)

	flash := responseCookie(w, flashCookieName)
	require.NotNil(t, flash)

	w = app.do(http.MethodGet, "/dashboard", cookie, nil, flash)
	assert.Contains(t, w.Body.String(), "Settings updated successfully!")
}

func TestLoginFailureIsGeneric(t *testing.T) {
	app := newTestApp(t)
	app.registerAndLogin(t, "alice", "alice@example.com")

	wrongPassword := app.do(http.MethodPost, "/login", "", url.Values{
		"email":    {"alice@example.com"},
		"password": {"wrong-password"},
	})
	unknownEmail := app.do(http.MethodPost, "/login", "", url.Values{
		"email":    {"nobody@example.com"},
		"password": {"correct-horse"},
	})

	assert.Equal(t, http.StatusUnauthorized, wrongPassword.Code)
	assert.Equal(t, http.StatusUnauthorized, unknownEmail.Code)
	assert.Contains(t, wrongPassword.Body.String(), "Login unsuccessful")
	assert.Contains(t, unknownEmail.Body.String(), "Login unsuccessful")

	// no session cookie on failure
	for _, c := range wrongPassword.Result().Cookies() {
		assert.NotEqual(t, auth.CookieName, c.Name)
	}
}

func TestLoginHonorsSafeNextTarget(t *testing.T) {
	app := newTestApp(t)
	app.registerAndLogin(t, "alice", "alice@example.com")

	w := app.do(http.MethodPost, "/login", "", url.Values{
		"email":    {"alice@example.com"},
		"password": {"correct-horse"},
		"next":     {"/view_reports"},
	})
	assert.Equal(t, http.StatusSeeOther, w.Code)
	assert.Equal(t, "/view_reports", w.Header().Get("Location"))

	// off-site targets fall back to the dashboard
	w = app.do(http.MethodPost, "/login", "", url.Values{
		"email":    {"alice@example.com"},
		"password": {"correct-horse"},
		"next":     {"//evil.example.com/"},
	})
	assert.Equal(t, http.StatusSeeOther, w.Code)
	assert.Equal(t, "/dashboard", w.Header().Get("Location"))
}

func TestLogoutClearsSession(t *testing.T) {
	app := newTestApp(t)
	cookie := app.registerAndLogin(t, "alice", "alice@example.com")

	w := app.do(http.MethodGet, "/logout", cookie, nil)
	assert.Equal(t, http.StatusFound, w.Code)
	assert.Equal(t, "/", w.Header().Get("Location"))

	cleared := false
	for _, c := range w.Result().Cookies() {
		if c.Name == auth.CookieName {
			cleared = c.MaxAge < 0
		}
	}
	assert.True(t, cleared, "session cookie should be expired")
}

func TestAddServiceRejectsNonNumericCost(t *testing.T) {
	app := newTestApp(t)
	cookie := app.registerAndLogin(t, "alice", "alice@example.com")

	w := app.do(http.MethodPost, "/add_service", cookie, url.Values{
		"service_type": {"Oil Change"},
		"cost":         {"not-a-number"},
		"notes":        {""},
	})
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Contains(t, w.Body.String(), "must be a number")

	user, err := app.users.GetByID(context.Background(), 1)
	require.NoError(t, err)
	records, err := app.maintenance.ListByUser(context.Background(), user.ID, domain.ServiceFilter{})
	require.NoError(t, err)
	assert.Empty(t, records, "invalid input must not create a record")
}

func TestAddAndViewServices(t *testing.T) {
	app := newTestApp(t)
	cookie := app.registerAndLogin(t, "alice", "alice@example.com")

	w := app.do(http.MethodPost, "/add_service", cookie, url.Values{
		"service_type": {"Oil Change"},
		"cost":         {"29.99"},
		"notes":        {"synthetic"},
	})
	require.Equal(t, http.StatusSeeOther, w.Code)
	assert.Equal(t, "/dashboard", w.Header().Get("Location"))

	w = app.do(http.MethodGet, "/view_services", cookie, nil)
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "Oil Change")
	assert.Contains(t, w.Body.String(), "29.99")
}

func TestViewServicesFiltering(t *testing.T) {
	app := newTestApp(t)
	cookie := app.registerAndLogin(t, "alice", "alice@example.com")

	for _, record := range []url.Values{
		{"service_type": {"Oil Change"}, "cost": {"30"}, "notes": {""}},
		{"service_type": {"Tire Rotation"}, "cost": {"150"}, "notes": {""}},
	} {
		w := app.do(http.MethodPost, "/add_service", cookie, record)
		require.Equal(t, http.StatusSeeOther, w.Code)
	}

	w := app.do(http.MethodPost, "/view_services", cookie, url.Values{
		"service_type": {"oil"},
	})
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "Oil Change")
	assert.NotContains(t, w.Body.String(), "Tire Rotation")

	w = app.do(http.MethodPost, "/view_services", cookie, url.Values{
		"min_cost": {"100"},
	})
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "Tire Rotation")
	assert.NotContains(t, w.Body.String(), "Oil Change")
}

func TestServiceRecordsAreUserScoped(t *testing.T) {
	app := newTestApp(t)

	aliceCookie := app.registerAndLogin(t, "alice", "alice@example.com")
	bobCookie := app.registerAndLogin(t, "bob", "bob@example.com")

	w := app.do(http.MethodPost, "/add_service", aliceCookie, url.Values{
		"service_type": {"Alice Brake Job"},
		"cost":         {"300"},
		"notes":        {""},
	})
	require.Equal(t, http.StatusSeeOther, w.Code)

	w = app.do(http.MethodGet, "/view_services", bobCookie, nil)
	assert.Equal(t, http.StatusOK, w.Code)
	assert.NotContains(t, w.Body.String(), "Alice Brake Job")
}

func TestAddFuelAndViewReports(t *testing.T) {
	app := newTestApp(t)
	cookie := app.registerAndLogin(t, "alice", "alice@example.com")

	w := app.do(http.MethodPost, "/add_fuel", cookie, url.Values{
		"mileage":     {"10000"},
		"fuel_cost":   {"45.50"},
		"fuel_amount": {"33"},
	})
	require.Equal(t, http.StatusSeeOther, w.Code)

	w = app.do(http.MethodPost, "/add_fuel", cookie, url.Values{
		"mileage":     {"oops"},
		"fuel_cost":   {"45.50"},
		"fuel_amount": {"33"},
	})
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = app.do(http.MethodGet, "/view_fuel", cookie, nil)
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "45.50")

	w = app.do(http.MethodGet, "/view_reports", cookie, nil)
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "10000.0")
}

func TestSettingsPersist(t *testing.T) {
	app := newTestApp(t)
	cookie := app.registerAndLogin(t, "alice", "alice@example.com")

	w := app.do(http.MethodPost, "/settings", cookie, url.Values{
		"theme":         {"dark"},
		"currency":      {"EUR"},
		"notifications": {"on"},
	})
	require.Equal(t, http.StatusSeeOther, w.Code)

	w = app.do(http.MethodGet, "/settings", cookie, nil)
	assert.Equal(t, http.StatusOK, w.Code)
	body := w.Body.String()
	assert.Contains(t, body, `value="dark" selected`)
	assert.Contains(t, body, `value="EUR"`)
	assert.Contains(t, body, "checked")
}

func TestExportServiceHistoryCSV(t *testing.T) {
	app := newTestApp(t)
	cookie := app.registerAndLogin(t, "alice", "alice@example.com")

	user, err := app.users.GetByID(context.Background(), 1)
	require.NoError(t, err)

	base := time.Date(2025, 2, 1, 0, 0, 0, 0, time.UTC)
	for i, serviceType := range []string{"Oil Change", "Tire Rotation, rear"} {
		_, err := app.maintenance.Create(context.Background(), &domain.MaintenanceRecord{
			Date:        base.AddDate(0, 0, i),
			ServiceType: serviceType,
			Cost:        float64(30 * (i + 1)),
			UserID:      user.ID,
		})
		require.NoError(t, err)
	}

	w := app.do(http.MethodGet, "/export_service_history", cookie, nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Header().Get("Content-Type"), "text/csv")
	assert.Equal(t, "attachment; filename=service_history.csv", w.Header().Get("Content-Disposition"))

	rows, err := csv.NewReader(w.Body).ReadAll()
	require.NoError(t, err)
	require.Len(t, rows, 3)
	assert.Equal(t, []string{"Date", "Service Type", "Cost", "Notes"}, rows[0])
	// date descending: the later record comes first, comma intact after parsing
	assert.Equal(t, "Tire Rotation, rear", rows[1][1])
	assert.Equal(t, "Oil Change", rows[2][1])
}

func TestExportArchivesCopyToStorage(t *testing.T) {
	stub := &stubStorage{}
	app := newTestAppWithStorage(t, stub, ArchiveConfig{Bucket: "garagelog-exports", KeyPrefix: "exports"})
	cookie := app.registerAndLogin(t, "alice", "alice@example.com")

	w := app.do(http.MethodPost, "/add_service", cookie, url.Values{
		"service_type": {"Oil Change"},
		"cost":         {"29.99"},
		"notes":        {""},
	})
	require.Equal(t, http.StatusSeeOther, w.Code)

	w = app.do(http.MethodGet, "/export_service_history", cookie, nil)
	require.Equal(t, http.StatusOK, w.Code)

	require.Len(t, stub.uploads, 1)
	assert.True(t, strings.HasPrefix(stub.uploads[0], "exports/alice/service_history-"),
		"unexpected archive key %q", stub.uploads[0])
	assert.True(t, strings.HasSuffix(stub.uploads[0], ".csv"))
}

func TestExportArchiveListsUserObjects(t *testing.T) {
	modified := time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)
	stub := &stubStorage{objects: []storage.ObjectInfo{
		{Key: "exports/alice/service_history-1.csv", Size: 256, LastModified: &modified},
	}}
	app := newTestAppWithStorage(t, stub, ArchiveConfig{Bucket: "garagelog-exports", KeyPrefix: "exports"})
	cookie := app.registerAndLogin(t, "alice", "alice@example.com")

	w := app.do(http.MethodGet, "/export_archive", cookie, nil)
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "exports/alice/service_history-1.csv")
	assert.Contains(t, w.Body.String(), "2025-03-01 12:00")

	// the listing is scoped to the signed-in user's prefix
	assert.Equal(t, "exports/alice/", stub.listPrefix)
}

func TestExportArchiveWithoutStorageConfigured(t *testing.T) {
	app := newTestApp(t)
	cookie := app.registerAndLogin(t, "alice", "alice@example.com")

	w := app.do(http.MethodGet, "/export_archive", cookie, nil)
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "not configured")
}
