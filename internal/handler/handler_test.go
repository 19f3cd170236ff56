package handler_test

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/iliyamo/open-mic/internal/config"
	"github.com/iliyamo/open-mic/internal/handler"
	"github.com/iliyamo/open-mic/internal/model"
	"github.com/iliyamo/open-mic/internal/repository"
	"github.com/iliyamo/open-mic/internal/router"
	"github.com/iliyamo/open-mic/internal/service"
)

const secret = "handler-test-secret"

func noop(next echo.HandlerFunc) echo.HandlerFunc { return next }

type server struct {
	t *testing.T
	e *echo.Echo
}

func newServer(t *testing.T) *server {
	t.Helper()
	cfg := config.Config{JWTSecret: secret, AccessTTLMin: 5, RefreshTTLDays: 1, BcryptCost: 4}
	users := repository.NewMemoryUsers()
	svc := service.NewMicService(repository.NewMemoryStore(), users, nil, nil)

	e := echo.New()
	mh := handler.NewMicHandler(svc)
	ph := handler.NewPerformerHandler(svc)
	router.RegisterRoutes(e, nil)
	router.RegisterAuth(e, handler.NewAuthHandler(cfg, users, repository.NewMemoryTokens()), secret, noop)
	router.RegisterPerformer(e, mh, ph, secret, noop, noop)
	router.RegisterHost(e, mh, ph, secret, noop)
	return &server{t: t, e: e}
}

func (s *server) do(method, path, token string, body any) *httptest.ResponseRecorder {
	s.t.Helper()
	var rd *bytes.Reader
	if body != nil {
		bs, err := json.Marshal(body)
		require.NoError(s.t, err)
		rd = bytes.NewReader(bs)
	} else {
		rd = bytes.NewReader(nil)
	}
	req := httptest.NewRequest(method, path, rd)
	req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	rec := httptest.NewRecorder()
	s.e.ServeHTTP(rec, req)
	return rec
}

func decode[T any](t *testing.T, rec *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &v), rec.Body.String())
	return v
}

type authBody struct {
	User struct {
		ID uint64 `json:"id"`
	} `json:"user"`
	Access struct {
		Token string `json:"token"`
	} `json:"access"`
	Refresh struct {
		Token string `json:"token"`
	} `json:"refresh"`
}

func (s *server) register(first, email string) authBody {
	s.t.Helper()
	rec := s.do(http.MethodPost, "/users/signup", "", echo.Map{
		"user": echo.Map{"first": first, "last": "Tester", "email": email, "password": "correct-horse"},
	})
	require.Equal(s.t, http.StatusCreated, rec.Code, rec.Body.String())
	return decode[authBody](s.t, rec)
}

func micForm(slots int) model.MicForm {
	start := time.Date(2026, 11, 5, 19, 0, 0, 0, time.UTC)
	return model.MicForm{
		Name:         "Tuesday Mic",
		Location:     model.Location{Kind: model.LocationCustom, Name: "Back Room", Address: "1 Main St"},
		Start:        start,
		End:          start.Add(2 * time.Hour),
		SetLength:    5,
		Slots:        slots,
		SignupConfig: model.SignupConfig{Email: model.SignupSetting{Use: true, Required: true}},
		SignupOpen:   true,
	}
}

func (s *server) createMic(token string, slots int) model.Mic {
	s.t.Helper()
	rec := s.do(http.MethodPost, "/mic/create", token, echo.Map{"mic": micForm(slots)})
	require.Equal(s.t, http.StatusCreated, rec.Code, rec.Body.String())
	return decode[model.Mic](s.t, rec)
}

func anon(name, email string) echo.Map {
	return echo.Map{"name": name, "email": email}
}

func TestHealth(t *testing.T) {
	s := newServer(t)
	rec := s.do(http.MethodGet, "/healthz", "", nil)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "ok", rec.Body.String())
}

func TestAuthFlow(t *testing.T) {
	s := newServer(t)
	a := s.register("Hal", "Hal@Example.com")
	assert.NotEmpty(t, a.Access.Token)

	rec := s.do(http.MethodPost, "/users/signup", "", echo.Map{
		"user": echo.Map{"first": "Hal", "email": "hal@example.com", "password": "correct-horse"},
	})
	assert.Equal(t, http.StatusConflict, rec.Code)

	rec = s.do(http.MethodPost, "/users/signup", "", echo.Map{
		"user": echo.Map{"first": "Sam", "email": "sam@example.com", "password": "short"},
	})
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = s.do(http.MethodPost, "/users/login", "", echo.Map{"email": "hal@example.com", "password": "wrong-password"})
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	rec = s.do(http.MethodPost, "/users/login", "", echo.Map{"email": "hal@example.com", "password": "correct-horse"})
	require.Equal(t, http.StatusOK, rec.Code)
	logged := decode[authBody](t, rec)

	rec = s.do(http.MethodGet, "/users/me", logged.Access.Token, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"first":"Hal"`)

	rec = s.do(http.MethodPost, "/users/refresh", "", echo.Map{"refresh_token": logged.Refresh.Token})
	require.Equal(t, http.StatusOK, rec.Code)
	rotated := decode[authBody](t, rec)
	// The old refresh token is revoked by rotation.
	rec = s.do(http.MethodPost, "/users/refresh", "", echo.Map{"refresh_token": logged.Refresh.Token})
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	rec = s.do(http.MethodGet, "/users/logout", rotated.Access.Token, nil)
	assert.Equal(t, http.StatusNoContent, rec.Code)
	rec = s.do(http.MethodPost, "/users/refresh", "", echo.Map{"refresh_token": rotated.Refresh.Token})
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	rec = s.do(http.MethodGet, "/users/logout", "", nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestCreateMicValidation(t *testing.T) {
	s := newServer(t)
	host := s.register("Hal", "hal@example.com")

	rec := s.do(http.MethodPost, "/mic/create", "", echo.Map{"mic": micForm(3)})
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	bad := micForm(0)
	rec = s.do(http.MethodPost, "/mic/create", host.Access.Token, echo.Map{"mic": bad})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Contains(t, rec.Body.String(), "slots")

	// POST /mic takes the bare form.
	rec = s.do(http.MethodPost, "/mic", host.Access.Token, micForm(2))
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	m := decode[model.Mic](t, rec)
	assert.Equal(t, host.User.ID, m.OwnerID)
	assert.Equal(t, 2, m.Slots)
}

func TestSignupAndCheckinFlow(t *testing.T) {
	s := newServer(t)
	host := s.register("Hal", "hal@example.com")
	m := s.createMic(host.Access.Token, 1)

	rec := s.do(http.MethodPost, "/mic/signup", "", echo.Map{"micId": m.ID, "anon": anon("Ada", "ada@example.com")})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.Equal(t, 1, decode[model.Mic](t, rec).SlotsFilled)

	rec = s.do(http.MethodPost, "/mic/signup", "", echo.Map{"micId": m.ID, "anon": anon("Ada", "ADA@example.com")})
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	// An account email from an anonymous caller redirects to login.
	rec = s.do(http.MethodPost, "/mic/waitinglist/signup", "", echo.Map{"micId": m.ID, "anon": anon("Hal", "hal@example.com")})
	assert.Equal(t, http.StatusForbidden, rec.Code)
	assert.JSONEq(t, `{"error":"an account exists for this email, please log in","email":"hal@example.com"}`, rec.Body.String())

	rec = s.do(http.MethodPost, "/mic/signup", "", echo.Map{"micId": m.ID, "anon": anon("Bo", "bo@example.com")})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Contains(t, rec.Body.String(), "waiting list")

	rec = s.do(http.MethodPost, "/mic/checkin", "", echo.Map{"micId": m.ID, "anon": anon("Ada", "ada@example.com")})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Contains(t, rec.Body.String(), "check-in is not open")

	rec = s.do(http.MethodPost, "/mic/managecheckin", host.Access.Token, echo.Map{"micId": m.ID, "checkinOpen": true})
	require.Equal(t, http.StatusOK, rec.Code)
	assert.True(t, decode[model.Mic](t, rec).CheckinOpen)

	rec = s.do(http.MethodPost, "/mic/checkin", "", echo.Map{"micId": m.ID, "anon": anon("Ada", "ada@example.com")})
	assert.Equal(t, http.StatusNoContent, rec.Code)

	rec = s.do(http.MethodPost, "/mic/performers", "", echo.Map{"micId": m.ID})
	require.Equal(t, http.StatusOK, rec.Code)
	roster := decode[[]model.Performer](t, rec)
	require.Len(t, roster, 1)
	assert.True(t, roster[0].CheckedIn)
	assert.NotContains(t, rec.Body.String(), "ada@example.com")

	other := s.register("Sam", "sam@example.com")
	rec = s.do(http.MethodPost, "/mic/completeset", other.Access.Token, echo.Map{"micId": m.ID, "userId": roster[0].ID})
	assert.Equal(t, http.StatusForbidden, rec.Code)
	rec = s.do(http.MethodPost, "/mic/completeset", "", echo.Map{"micId": m.ID, "userId": roster[0].ID})
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	rec = s.do(http.MethodPost, "/mic/completeset", host.Access.Token, echo.Map{"micId": m.ID, "userId": roster[0].ID})
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Nil(t, decode[model.Mic](t, rec).Current)

	rec = s.do(http.MethodPost, "/mic/completeset", host.Access.Token, echo.Map{"micId": m.ID})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestSkipAndSetNext(t *testing.T) {
	s := newServer(t)
	host := s.register("Hal", "hal@example.com")
	m := s.createMic(host.Access.Token, 3)
	for _, who := range []string{"ada", "bo", "cy"} {
		rec := s.do(http.MethodPost, "/mic/signup", "", echo.Map{"micId": m.ID, "anon": anon(who, who+"@example.com")})
		require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	}
	roster := decode[[]model.Performer](t, s.do(http.MethodPost, "/mic/performers", "", echo.Map{"micId": m.ID}))
	ada, bo := roster[0], roster[1]

	rec := s.do(http.MethodPost, "/mic/skip", host.Access.Token, echo.Map{"micId": m.ID, "userId": ada.ID})
	assert.Equal(t, http.StatusBadRequest, rec.Code, "check-in is still closed")
	rec = s.do(http.MethodPost, "/mic/managecheckin", host.Access.Token, echo.Map{"micId": m.ID, "checkinOpen": true})
	require.Equal(t, http.StatusOK, rec.Code)

	rec = s.do(http.MethodPost, "/mic/skip", host.Access.Token, echo.Map{"micId": m.ID, "userId": ada.ID})
	require.Equal(t, http.StatusOK, rec.Code)
	require.NotNil(t, decode[model.Mic](t, rec).Current)

	// A stale view of the current performer is rejected.
	rec = s.do(http.MethodPost, "/mic/performer/setnext", host.Access.Token, echo.Map{"micId": m.ID, "curPerfId": ada.ID, "movePerfId": ada.ID})
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = s.do(http.MethodPost, "/mic/performer/setnext", host.Access.Token, echo.Map{"micId": m.ID, "curPerfId": bo.ID, "movePerfId": ada.ID})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	roster = decode[[]model.Performer](t, s.do(http.MethodPost, "/mic/performers", "", echo.Map{"micId": m.ID}))
	names := []string{}
	for _, p := range roster {
		names = append(names, p.Name)
	}
	assert.Equal(t, []string{"bo", "ada", "cy"}, names)
	assert.False(t, roster[1].Skipped)
}

func TestRemovals(t *testing.T) {
	s := newServer(t)
	host := s.register("Hal", "hal@example.com")
	perf := s.register("Pat", "pat@example.com")
	m := s.createMic(host.Access.Token, 3)

	rec := s.do(http.MethodPost, "/mic/user/signup", perf.Access.Token, echo.Map{"micId": m.ID})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	rec = s.do(http.MethodPost, "/mic/signup", "", echo.Map{"micId": m.ID, "anon": anon("Ada", "ada@example.com")})
	require.Equal(t, http.StatusOK, rec.Code)
	roster := decode[[]model.Performer](t, s.do(http.MethodPost, "/mic/performers", "", echo.Map{"micId": m.ID}))
	require.Len(t, roster, 2)
	adaID := roster[1].ID

	rec = s.do(http.MethodDelete, "/mic/removeanonuser", "", echo.Map{"micId": m.ID, "userId": adaID, "anon": anon("Ada", "someone@example.com")})
	assert.Equal(t, http.StatusForbidden, rec.Code)
	rec = s.do(http.MethodDelete, "/mic/removeanonuser", "", echo.Map{"micId": m.ID, "userId": adaID, "anon": anon("Ada", "ada@example.com")})
	assert.Equal(t, http.StatusNoContent, rec.Code)

	rec = s.do(http.MethodDelete, "/mic/removeself", "", echo.Map{"micId": m.ID})
	assert.Equal(t, http.StatusForbidden, rec.Code)
	rec = s.do(http.MethodDelete, "/mic/removeself", perf.Access.Token, echo.Map{"micId": m.ID})
	assert.Equal(t, http.StatusNoContent, rec.Code)

	rec = s.do(http.MethodPost, "/micdetails", "", echo.Map{"micId": m.ID})
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, 0, decode[model.Mic](t, rec).SlotsFilled)

	rec = s.do(http.MethodDelete, "/admin/mic/removeuser", host.Access.Token, echo.Map{"micId": m.ID, "userId": adaID})
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestHiddenMicsAndNotFound(t *testing.T) {
	s := newServer(t)
	host := s.register("Hal", "hal@example.com")
	m := s.createMic(host.Access.Token, 2)

	rec := s.do(http.MethodPost, "/mic/hide", host.Access.Token, echo.Map{"micId": m.ID, "hide": true})
	require.Equal(t, http.StatusOK, rec.Code)

	rec = s.do(http.MethodGet, "/mic/mics", "", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "[]", strings.TrimSpace(rec.Body.String()))

	rec = s.do(http.MethodGet, "/mic/mics", host.Access.Token, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Len(t, decode[[]model.Mic](t, rec), 1)

	rec = s.do(http.MethodPost, "/micdetails", "", echo.Map{"micId": 999})
	assert.Equal(t, http.StatusNotFound, rec.Code)
	rec = s.do(http.MethodPost, "/micdetails", "", echo.Map{})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}
