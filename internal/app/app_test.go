package app

import (
	"bytes"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"medicare/internal/config"
	"medicare/internal/metrics"
	"medicare/internal/middleware"
	"medicare/internal/repositories"
)

func init() {
	gin.SetMode(gin.TestMode)
}

type inbox struct {
	mu    sync.Mutex
	codes map[string]string
}

func (i *inbox) SendOTPEmail(email, code string) error {
	i.mu.Lock()
	defer i.mu.Unlock()
	i.codes[email] = code
	return nil
}

func (i *inbox) code(email string) string {
	i.mu.Lock()
	defer i.mu.Unlock()
	return i.codes[email]
}

type testServer struct {
	t      *testing.T
	srv    *Server
	mail   *inbox
	prefix string
}

func newTestServer(t *testing.T, prefix string) *testServer {
	t.Helper()
	cfg := &config.Config{}
	cfg.Auth.JWTSecret = "test"
	cfg.Auth.TokenTTL = 24 * time.Hour
	cfg.Auth.OTPTTL = 10 * time.Minute
	cfg.Auth.MaxAttempts = 3
	cfg.Reports.ClinicName = "Test Clinic"

	mail := &inbox{codes: map[string]string{}}
	srv := NewServer(cfg, Deps{
		Accounts: repositories.NewMemoryAccountRepository(),
		Patients: repositories.NewMemoryPatientRepository(),
		OTPStore: repositories.NewMemoryOTPStore(),
		Limiter:  middleware.NewMemoryLimiter(5, 15*time.Minute),
		Mailer:   mail,
		Metrics:  metrics.New(),
	})
	return &testServer{t: t, srv: srv, mail: mail, prefix: prefix}
}

func (s *testServer) do(method, path, token string, body interface{}) *httptest.ResponseRecorder {
	s.t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(s.t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, s.prefix+path, &buf)
	req.Header.Set("Content-Type", "application/json")
	req.RemoteAddr = "192.0.2.10:4000"
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	w := httptest.NewRecorder()
	s.srv.Router.ServeHTTP(w, req)
	return w
}

func (s *testServer) login(email, userType string) string {
	s.t.Helper()
	w := s.do(http.MethodPost, "/auth/send-otp", "", map[string]string{"email": email, "user_type": userType})
	require.Equal(s.t, http.StatusOK, w.Code, w.Body.String())

	w = s.do(http.MethodPost, "/auth/verify-otp", "", map[string]string{"email": email, "otp": s.mail.code(email)})
	require.Equal(s.t, http.StatusOK, w.Code, w.Body.String())
	var res struct {
		Token string `json:"token"`
		User  struct {
			Email    string `json:"email"`
			UserType string `json:"user_type"`
		} `json:"user"`
	}
	require.NoError(s.t, json.Unmarshal(w.Body.Bytes(), &res))
	require.Equal(s.t, email, res.User.Email)
	return res.Token
}

type patientEnvelope struct {
	Success bool   `json:"success"`
	Message string `json:"message"`
	Data    struct {
		ID               int64  `json:"id"`
		PatientName      string `json:"patient_name"`
		ReferenceNumber  string `json:"reference_number"`
		Weight           string `json:"weight"`
		TreatmentEntries []struct {
			ID string `json:"id"`
		} `json:"treatment_entries"`
	} `json:"data"`
}

func decodePatient(t *testing.T, w *httptest.ResponseRecorder) patientEnvelope {
	t.Helper()
	var env patientEnvelope
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &env), w.Body.String())
	return env
}

func TestPatientLifecycle(t *testing.T) {
	for _, prefix := range []string{"", "/api"} {
		t.Run("prefix="+prefix, func(t *testing.T) {
			s := newTestServer(t, prefix)
			tok := s.login("doc@example.com", "doctor")

			w := s.do(http.MethodPost, "/patients", tok, map[string]string{
				"patient_name": "Jane Roe", "age": "40", "contact_number": "555",
				"medicine_prescriptions": "Paracetamol",
			})
			require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
			created := decodePatient(t, w)
			assert.True(t, created.Success)
			assert.Regexp(t, `^ID-\d{6}-\d{3}$`, created.Data.ReferenceNumber)
			require.Len(t, created.Data.TreatmentEntries, 1)
			id := created.Data.ID

			w = s.do(http.MethodPost, fmt.Sprintf("/patients/%d/visits", id), tok, map[string]string{
				"medicine_prescriptions": "Ibuprofen", "weight": "71kg",
			})
			require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
			withVisit := decodePatient(t, w)
			require.Len(t, withVisit.Data.TreatmentEntries, 2)
			assert.Equal(t, "71kg", withVisit.Data.Weight)
			visitID := withVisit.Data.TreatmentEntries[1].ID

			w = s.do(http.MethodPut, fmt.Sprintf("/patients/%d/treatments/%s", id, visitID), tok, map[string]string{"notes": "better"})
			require.Equal(t, http.StatusOK, w.Code, w.Body.String())

			w = s.do(http.MethodGet, "/patients?search=jane", tok, nil)
			require.Equal(t, http.StatusOK, w.Code)
			assert.Contains(t, w.Body.String(), "Jane Roe")

			w = s.do(http.MethodGet, fmt.Sprintf("/patients/%d/report?visits=%s", id, visitID), tok, nil)
			require.Equal(t, http.StatusOK, w.Code, w.Body.String())
			assert.Equal(t, "application/pdf", w.Header().Get("Content-Type"))
			assert.Contains(t, w.Header().Get("Content-Disposition"), "MediCare_Jane_Roe_")
			assert.True(t, strings.HasPrefix(w.Body.String(), "%PDF-"))

			w = s.do(http.MethodDelete, fmt.Sprintf("/patients/%d/visits/%s", id, visitID), tok, nil)
			require.Equal(t, http.StatusOK, w.Code)
			assert.Len(t, decodePatient(t, w).Data.TreatmentEntries, 1)

			w = s.do(http.MethodDelete, fmt.Sprintf("/patients/%d", id), tok, nil)
			require.Equal(t, http.StatusOK, w.Code)
			w = s.do(http.MethodGet, fmt.Sprintf("/patients/%d", id), tok, nil)
			assert.Equal(t, http.StatusNotFound, w.Code)
		})
	}
}

func TestPatientsAreOwnerScoped(t *testing.T) {
	s := newTestServer(t, "")
	alice := s.login("alice@example.com", "doctor")
	bob := s.login("bob@example.com", "doctor")

	w := s.do(http.MethodPost, "/patients", alice, map[string]string{"patient_name": "P", "age": "1", "contact_number": "1"})
	require.Equal(t, http.StatusCreated, w.Code)
	id := decodePatient(t, w).Data.ID

	assert.Equal(t, http.StatusNotFound, s.do(http.MethodGet, fmt.Sprintf("/patients/%d", id), bob, nil).Code)
	assert.Equal(t, http.StatusNotFound, s.do(http.MethodDelete, fmt.Sprintf("/patients/%d", id), bob, nil).Code)
	assert.Equal(t, http.StatusOK, s.do(http.MethodGet, fmt.Sprintf("/patients/%d", id), alice, nil).Code)
}

func TestAuthErrors(t *testing.T) {
	s := newTestServer(t, "")

	w := s.do(http.MethodGet, "/patients", "", nil)
	assert.Equal(t, http.StatusUnauthorized, w.Code)
	assert.JSONEq(t, `{"success":false,"message":"Authentication required"}`, w.Body.String())

	w = s.do(http.MethodGet, "/patients", "bogus", nil)
	assert.Equal(t, http.StatusForbidden, w.Code)

	user := s.login("front@example.com", "user")
	assert.Equal(t, http.StatusForbidden, s.do(http.MethodGet, "/patients", user, nil).Code)

	w = s.do(http.MethodPost, "/auth/send-otp", "", map[string]string{"email": "nope"})
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = s.do(http.MethodPost, "/auth/verify-otp", "", map[string]string{"email": "ghost@example.com", "otp": "123456"})
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Contains(t, w.Body.String(), "No OTP found")
}

func TestCreateValidation(t *testing.T) {
	s := newTestServer(t, "")
	tok := s.login("doc@example.com", "doctor")

	w := s.do(http.MethodPost, "/patients", tok, map[string]string{"patient_name": "No Age", "contact_number": "1"})
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = s.do(http.MethodPost, "/patients", tok, map[string]string{"patient_name": "A", "age": "1", "contact_number": "1", "reference_number": "R"})
	require.Equal(t, http.StatusCreated, w.Code)
	w = s.do(http.MethodPost, "/patients", tok, map[string]string{"patient_name": "B", "age": "1", "contact_number": "1", "reference_number": "R"})
	assert.Equal(t, http.StatusBadRequest, w.Code)

	assert.Equal(t, http.StatusNotFound, s.do(http.MethodGet, "/patients/abc", tok, nil).Code)
}

func TestSendOTPRateLimited(t *testing.T) {
	s := newTestServer(t, "")
	for i := 0; i < 5; i++ {
		w := s.do(http.MethodPost, "/auth/send-otp", "", map[string]string{"email": fmt.Sprintf("d%d@example.com", i)})
		require.Equal(t, http.StatusOK, w.Code)
	}
	w := s.do(http.MethodPost, "/api/auth/send-otp", "", map[string]string{"email": "late@example.com"})
	assert.Equal(t, http.StatusTooManyRequests, w.Code)
	assert.NotEmpty(t, w.Header().Get("Retry-After"))
}

func TestHealthAndMetrics(t *testing.T) {
	s := newTestServer(t, "")
	w := s.do(http.MethodGet, "/health", "", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `"status":"OK"`)

	s.login("doc@example.com", "doctor")
	w = s.do(http.MethodGet, "/metrics", "", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `medicare_otp_verified_total{result="ok"} 1`)
}
