package routes

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"net/textproto"
	"regexp"
	"strings"
	"sync"
	"testing"
	"time"

	"spotsort-be/controllers"
	"spotsort-be/models"
	"spotsort-be/notify"
	"spotsort-be/otp"
	"spotsort-be/services"
	"spotsort-be/storage"
	"spotsort-be/store"
	"spotsort-be/utils"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/suite"
	"golang.org/x/crypto/bcrypt"
)

func init() {
	gin.SetMode(gin.TestMode)
}

// inbox keeps every message instead of sending it.
type inbox struct {
	mu   sync.Mutex
	sent []notify.Message
}

func (i *inbox) Deliver(_ context.Context, m notify.Message) error { return i.Enqueue(m) }

func (i *inbox) Enqueue(m notify.Message) error {
	i.mu.Lock()
	defer i.mu.Unlock()
	i.sent = append(i.sent, m)
	return nil
}

var codePattern = regexp.MustCompile(`<h2>([0-9]{6})</h2>`)

func (i *inbox) lastCode(to string) string {
	i.mu.Lock()
	defer i.mu.Unlock()
	for j := len(i.sent) - 1; j >= 0; j-- {
		if i.sent[j].To != to {
			continue
		}
		if m := codePattern.FindStringSubmatch(i.sent[j].HTMLBody); m != nil {
			return m[1]
		}
	}
	return ""
}

type memImages struct {
	mu   sync.Mutex
	refs []string
}

func (m *memImages) Put(_ context.Context, kind storage.Kind, img storage.Image) (string, error) {
	if _, err := io.Copy(io.Discard, img.Reader); err != nil {
		return "", err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	ref := fmt.Sprintf("%s/%d%s", kind, len(m.refs)+1, img.Ext())
	m.refs = append(m.refs, ref)
	return ref, nil
}

func (m *memImages) Delete(context.Context, string) error { return nil }

type APISuite struct {
	suite.Suite
	router *gin.Engine
	inbox  *inbox
	tokens map[string]string
}

func TestAPISuite(t *testing.T) {
	suite.Run(t, new(APISuite))
}

func (s *APISuite) SetupTest() {
	logger := logrus.New()
	logger.SetOutput(io.Discard)

	s.inbox = &inbox{}
	users := store.NewInMemoryUserStore()
	tokens, err := utils.NewTokenIssuer("api-test-secret", time.Hour)
	s.Require().NoError(err)

	audit := services.NewAuditRecorder(store.NewInMemoryAuditStore(), logger, nil)
	deps := services.Deps{
		Issues:    store.NewInMemoryIssueStore(),
		Pending:   store.NewInMemoryPendingStore(),
		Users:     users,
		Audit:     audit,
		Challenge: otp.NewChallenge(otp.BcryptHasher{Cost: bcrypt.MinCost}, store.NewInMemoryCodeStore()),
		Images:    &memImages{},
		Notifier:  s.inbox,
		Logger:    logger,
	}
	authService := services.NewAuthService(deps, tokens)

	s.router = New(Handlers{
		Issues: controllers.NewIssueController(
			services.NewSubmissionService(deps),
			services.NewIssueService(deps),
			services.NewResolutionService(deps),
		),
		Auth:  controllers.NewAuthController(authService),
		Audit: controllers.NewAuditController(audit),
	}, Options{
		Logger:   logger,
		Resolver: services.NewIdentityResolver(tokens, users),
		Gatherer: prometheus.NewRegistry(),
	})

	s.tokens = map[string]string{}
	for _, u := range []services.NewUser{
		{Name: "East Desk", Email: "east@city.gov", Password: "changeme", Role: models.RoleAuthority, Zone: "East"},
		{Name: "West Desk", Email: "west@city.gov", Password: "changeme", Role: models.RoleAuthority, Zone: "West"},
		{Name: "Admin", Email: "admin@city.gov", Password: "changeme", Role: models.RoleAdmin},
		{Name: "Asha", Email: "asha@example.com", Password: "changeme", Role: models.RoleCitizen},
	} {
		_, err := authService.CreateUser(context.Background(), models.Identity{}, u)
		s.Require().NoError(err)
	}
	s.tokens["east"] = s.login("east@city.gov", "authority")
	s.tokens["west"] = s.login("west@city.gov", "authority")
	s.tokens["admin"] = s.login("admin@city.gov", "admin")
	s.tokens["asha"] = s.login("asha@example.com", "citizen")
}

func (s *APISuite) do(method, path, token string, body io.Reader, contentType string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, path, body)
	if contentType != "" {
		req.Header.Set("Content-Type", contentType)
	}
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	rec := httptest.NewRecorder()
	s.router.ServeHTTP(rec, req)
	return rec
}

func (s *APISuite) doJSON(method, path, token string, body any) *httptest.ResponseRecorder {
	raw, err := json.Marshal(body)
	s.Require().NoError(err)
	return s.do(method, path, token, bytes.NewReader(raw), "application/json")
}

// doForm sends a multipart form; a non-empty fileField attaches a small jpeg.
func (s *APISuite) doForm(method, path, token string, fields map[string]string, fileField string) *httptest.ResponseRecorder {
	var buf bytes.Buffer
	w := multipart.NewWriter(&buf)
	for k, v := range fields {
		s.Require().NoError(w.WriteField(k, v))
	}
	if fileField != "" {
		h := make(textproto.MIMEHeader)
		h.Set("Content-Disposition", fmt.Sprintf(`form-data; name=%q; filename="photo.jpg"`, fileField))
		h.Set("Content-Type", "image/jpeg")
		part, err := w.CreatePart(h)
		s.Require().NoError(err)
		_, err = part.Write([]byte("\xff\xd8\xff\xe0jpeg"))
		s.Require().NoError(err)
	}
	s.Require().NoError(w.Close())
	return s.do(method, path, token, &buf, w.FormDataContentType())
}

func (s *APISuite) decode(rec *httptest.ResponseRecorder) map[string]any {
	var out map[string]any
	s.Require().NoError(json.Unmarshal(rec.Body.Bytes(), &out), rec.Body.String())
	return out
}

func (s *APISuite) login(email, role string) string {
	rec := s.doJSON(http.MethodPost, "/api/auth/login", "", map[string]string{
		"email": email, "password": "changeme", "role": role,
	})
	s.Require().Equal(http.StatusOK, rec.Code, rec.Body.String())
	return s.decode(rec)["token"].(string)
}

func issueFields(zone string) map[string]string {
	return map[string]string{
		"title":       "Pothole near the bus stop",
		"issueType":   "pothole",
		"description": "Deep enough to damage tyres",
		"lat":         "18.5204",
		"lng":         "73.8567",
		"zone":        zone,
	}
}

func (s *APISuite) TestDirectReportLifecycle() {
	rec := s.doForm(http.MethodPost, "/api/issues", s.tokens["asha"], issueFields("East"), "issueImage")
	s.Require().Equal(http.StatusCreated, rec.Code, rec.Body.String())
	ticketID := s.decode(rec)["ticketId"].(string)
	s.Equal("P-000001", ticketID)

	rec = s.do(http.MethodGet, "/api/issues/my-reports", s.tokens["asha"], nil, "")
	s.Require().Equal(http.StatusOK, rec.Code)
	s.Contains(rec.Body.String(), ticketID)

	rec = s.do(http.MethodPut, "/api/issues/"+ticketID+"/assign", s.tokens["west"], nil, "")
	s.Equal(http.StatusForbidden, rec.Code)

	rec = s.do(http.MethodPut, "/api/issues/"+ticketID+"/assign", s.tokens["east"], nil, "")
	s.Require().Equal(http.StatusOK, rec.Code, rec.Body.String())
	s.Equal("In Progress", s.decode(rec)["status"])

	rec = s.doForm(http.MethodPut, "/api/issues/"+ticketID+"/resolve", s.tokens["east"], nil, "")
	s.Require().Equal(http.StatusBadRequest, rec.Code)
	s.Equal("resolutionImage", s.decode(rec)["field"])

	rec = s.doForm(http.MethodPut, "/api/issues/"+ticketID+"/resolve", s.tokens["east"], nil, "resolutionImage")
	s.Require().Equal(http.StatusOK, rec.Code, rec.Body.String())
	s.Equal("Awaiting Verification", s.decode(rec)["status"])

	rec = s.do(http.MethodPut, "/api/issues/"+ticketID+"/citizen-close", s.tokens["asha"], nil, "")
	s.Require().Equal(http.StatusOK, rec.Code, rec.Body.String())
	s.Equal("Closed", s.decode(rec)["status"])

	rec = s.do(http.MethodGet, "/api/issues/track/"+ticketID, "", nil, "")
	s.Require().Equal(http.StatusOK, rec.Code)
	s.Equal("Closed", s.decode(rec)["status"])
	s.NotContains(rec.Body.String(), "reporter")
}

func (s *APISuite) TestAnonymousReportAndEmailVerification() {
	rec := s.doJSON(http.MethodPost, "/api/issues/otp-send", "", map[string]any{
		"reporterName":   "Meera",
		"reporterEmail":  "meera@example.com",
		"reporterMobile": "9800000000",
		"title":          "Garbage pile",
		"issueType":      "waste",
		"description":    "Not collected for a week",
		"lat":            18.5,
		"lng":            73.8,
		"zone":           "East",
	})
	s.Require().Equal(http.StatusOK, rec.Code, rec.Body.String())
	token := s.decode(rec)["sessionToken"].(string)
	s.NotContains(rec.Body.String(), s.inbox.lastCode("meera@example.com"))
	code := s.inbox.lastCode("meera@example.com")
	s.Require().Len(code, 6)

	wrong := "000000"
	if code == wrong {
		wrong = "111111"
	}
	rec = s.doForm(http.MethodPost, "/api/issues/anonymous", "",
		map[string]string{"sessionToken": token, "code": wrong}, "issueImage")
	s.Equal(http.StatusBadRequest, rec.Code)

	rec = s.doForm(http.MethodPost, "/api/issues/anonymous", "",
		map[string]string{"sessionToken": "no-such-session", "code": code}, "issueImage")
	s.Equal(http.StatusNotFound, rec.Code)

	rec = s.doForm(http.MethodPost, "/api/issues/anonymous", "",
		map[string]string{"sessionToken": token, "code": code}, "issueImage")
	s.Require().Equal(http.StatusCreated, rec.Code, rec.Body.String())
	ticketID := s.decode(rec)["ticketId"].(string)
	s.Equal("W-000001", ticketID)

	s.Require().Equal(http.StatusOK, s.do(http.MethodPut, "/api/issues/"+ticketID+"/assign", s.tokens["east"], nil, "").Code)
	s.Require().Equal(http.StatusOK, s.doForm(http.MethodPut, "/api/issues/"+ticketID+"/resolve", s.tokens["east"], nil, "resolutionImage").Code)

	rec = s.doJSON(http.MethodPut, "/api/issues/"+ticketID+"/verify", "", map[string]string{"email": "someone@example.com"})
	s.Equal(http.StatusForbidden, rec.Code)

	rec = s.doJSON(http.MethodPut, "/api/issues/"+ticketID+"/verify", "", map[string]string{"email": "Meera@Example.com"})
	s.Equal(http.StatusForbidden, rec.Code)

	rec = s.do(http.MethodGet, "/api/issues/track/"+ticketID, "", nil, "")
	s.Require().Equal(http.StatusOK, rec.Code)
	s.Equal("Awaiting Verification", s.decode(rec)["status"])

	rec = s.doJSON(http.MethodPut, "/api/issues/"+ticketID+"/verify", "", map[string]string{"email": "meera@example.com"})
	s.Require().Equal(http.StatusOK, rec.Code, rec.Body.String())
	s.Contains(rec.Body.String(), "Closed")
	s.NotContains(rec.Body.String(), "9800000000")

	rec = s.doJSON(http.MethodPut, "/api/issues/"+ticketID+"/verify", "", map[string]string{"email": "meera@example.com"})
	s.Equal(http.StatusConflict, rec.Code)
}

func (s *APISuite) TestValidationNamesField() {
	fields := issueFields("East")
	fields["lat"] = "north"
	rec := s.doForm(http.MethodPost, "/api/issues", s.tokens["asha"], fields, "issueImage")
	s.Require().Equal(http.StatusBadRequest, rec.Code)
	s.Equal("location.lat", s.decode(rec)["field"])

	rec = s.doForm(http.MethodPost, "/api/issues", s.tokens["asha"], issueFields("East"), "")
	s.Require().Equal(http.StatusBadRequest, rec.Code)
	s.Equal("issueImage", s.decode(rec)["field"])

	rec = s.do(http.MethodPost, "/api/auth/login", "", strings.NewReader("{"), "application/json")
	s.Equal(http.StatusBadRequest, rec.Code)
}

func (s *APISuite) TestDirectReportWithoutImageNamesImage() {
	rec := s.doForm(http.MethodPost, "/api/issues", s.tokens["asha"], map[string]string{
		"title": "Pothole", "issueType": "pothole", "zone": "West",
	}, "")
	s.Require().Equal(http.StatusBadRequest, rec.Code)
	s.Equal("issueImage", s.decode(rec)["field"])

	rec = s.do(http.MethodGet, "/api/issues/my-reports", s.tokens["asha"], nil, "")
	s.Require().Equal(http.StatusOK, rec.Code)
	s.NotContains(rec.Body.String(), "P-0")
}

func (s *APISuite) TestReportOtpRequiresLocation() {
	fields := map[string]any{
		"reporterName":  "Meera",
		"reporterEmail": "meera@example.com",
		"title":         "Garbage pile",
		"issueType":     "waste",
		"description":   "Not collected for a week",
		"zone":          "East",
	}
	rec := s.doJSON(http.MethodPost, "/api/issues/otp-send", "", fields)
	s.Require().Equal(http.StatusBadRequest, rec.Code, rec.Body.String())
	s.Equal("location.lat", s.decode(rec)["field"])

	fields["lat"] = 18.5
	rec = s.doJSON(http.MethodPost, "/api/issues/otp-send", "", fields)
	s.Require().Equal(http.StatusBadRequest, rec.Code, rec.Body.String())
	s.Equal("location.lng", s.decode(rec)["field"])
	s.Empty(s.inbox.lastCode("meera@example.com"))

	fields["lat"], fields["lng"] = 0.0, 0.0
	rec = s.doJSON(http.MethodPost, "/api/issues/otp-send", "", fields)
	s.Equal(http.StatusOK, rec.Code, rec.Body.String())
}

func (s *APISuite) TestRoleGates() {
	s.Equal(http.StatusUnauthorized, s.do(http.MethodGet, "/api/issues/my-reports", "", nil, "").Code)
	s.Equal(http.StatusForbidden, s.do(http.MethodGet, "/api/issues/my-reports", s.tokens["east"], nil, "").Code)
	s.Equal(http.StatusForbidden, s.do(http.MethodGet, "/api/issues/authority/dashboard", s.tokens["asha"], nil, "").Code)
	s.Equal(http.StatusOK, s.do(http.MethodGet, "/api/issues/authority/dashboard", s.tokens["east"], nil, "").Code)
	s.Equal(http.StatusForbidden, s.doJSON(http.MethodPut, "/api/issues/P-000001/reassign", s.tokens["east"], map[string]string{"zone": "West"}).Code)
	s.Equal(http.StatusNotFound, s.doJSON(http.MethodPut, "/api/issues/P-000001/reassign", s.tokens["admin"], map[string]string{"zone": "West"}).Code)
	s.Equal(http.StatusNotFound, s.do(http.MethodGet, "/api/issues/track/P-999999", "", nil, "").Code)
}

func (s *APISuite) TestReassignAndStats() {
	rec := s.doForm(http.MethodPost, "/api/issues", s.tokens["asha"], issueFields("East"), "issueImage")
	s.Require().Equal(http.StatusCreated, rec.Code)
	ticketID := s.decode(rec)["ticketId"].(string)

	rec = s.doJSON(http.MethodPut, "/api/issues/"+ticketID+"/status", s.tokens["east"], map[string]string{"status": "In Progress"})
	s.Require().Equal(http.StatusOK, rec.Code, rec.Body.String())

	rec = s.doJSON(http.MethodPut, "/api/issues/"+ticketID+"/reassign", s.tokens["admin"], map[string]string{"zone": "West"})
	s.Require().Equal(http.StatusOK, rec.Code, rec.Body.String())
	body := s.decode(rec)
	s.Equal("West", body["zone"])
	s.Equal("Pending", body["status"])

	rec = s.do(http.MethodGet, "/api/issues/stats", s.tokens["west"], nil, "")
	s.Require().Equal(http.StatusOK, rec.Code)
	s.EqualValues(1, s.decode(rec)["total"])

	rec = s.do(http.MethodGet, "/api/issues/stats", s.tokens["east"], nil, "")
	s.Require().Equal(http.StatusOK, rec.Code)
	s.EqualValues(0, s.decode(rec)["total"])
}

func (s *APISuite) TestAuditLogs() {
	s.Equal(http.StatusUnauthorized, s.do(http.MethodGet, "/api/audit/logs", "", nil, "").Code)
	s.Equal(http.StatusForbidden, s.do(http.MethodGet, "/api/audit/logs", s.tokens["east"], nil, "").Code)
	s.Equal(http.StatusBadRequest, s.do(http.MethodGet, "/api/audit/logs?limit=abc", s.tokens["admin"], nil, "").Code)

	rec := s.do(http.MethodGet, "/api/audit/logs?limit=2", s.tokens["admin"], nil, "")
	s.Require().Equal(http.StatusOK, rec.Code)
	var entries []models.AuditEntry
	s.Require().NoError(json.Unmarshal(rec.Body.Bytes(), &entries))
	s.Len(entries, 2)
	s.Equal(models.ActionCreateUser, entries[0].Action)
}

func (s *APISuite) TestSignupOverHTTP() {
	rec := s.doJSON(http.MethodPost, "/api/auth/request-otp", "", map[string]string{
		"name": "Ravi", "email": "ravi@example.com", "password": "s3cret!", "mobileNumber": "9811111111",
	})
	s.Require().Equal(http.StatusOK, rec.Code, rec.Body.String())

	rec = s.doJSON(http.MethodPost, "/api/auth/verify-otp", "", map[string]string{
		"email": "ravi@example.com", "otp": s.inbox.lastCode("ravi@example.com"),
	})
	s.Require().Equal(http.StatusOK, rec.Code, rec.Body.String())
	token := s.decode(rec)["token"].(string)

	rec = s.do(http.MethodGet, "/api/auth/me", token, nil, "")
	s.Require().Equal(http.StatusOK, rec.Code)
	s.Equal("ravi@example.com", s.decode(rec)["email"])
	s.NotContains(rec.Body.String(), "password")
}

func (s *APISuite) TestPingAndMetrics() {
	rec := s.do(http.MethodGet, "/ping", "", nil, "")
	s.Equal(http.StatusOK, rec.Code)
	s.Contains(rec.Body.String(), "pong")

	s.Equal(http.StatusOK, s.do(http.MethodGet, "/metrics", "", nil, "").Code)
}
