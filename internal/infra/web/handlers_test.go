//go:build !integration

package web_test

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"premium-access/internal/domain"
	"premium-access/internal/domain/model"
	"premium-access/internal/infra/web"
	"premium-access/internal/usecase"
)

// ---- use case stubs ----

type stubCodeUC struct {
	CreateFunc           func(ctx context.Context, params usecase.CreateCodeParams) (*model.PremiumCode, error)
	RedeemFunc           func(ctx context.Context, code, userID string) (*model.PremiumCode, error)
	DeactivateFunc       func(ctx context.Context, code string) error
	RevokeForUserFunc    func(ctx context.Context, code, userID string) error
	RevokeAllForUserFunc func(ctx context.Context, userID string) (int, error)
	ListByUserFunc       func(ctx context.Context, userID string) ([]*model.PremiumCode, error)
}

func (s *stubCodeUC) Create(ctx context.Context, params usecase.CreateCodeParams) (*model.PremiumCode, error) {
	return s.CreateFunc(ctx, params)
}
func (s *stubCodeUC) Redeem(ctx context.Context, code, userID string) (*model.PremiumCode, error) {
	return s.RedeemFunc(ctx, code, userID)
}
func (s *stubCodeUC) Deactivate(ctx context.Context, code string) error {
	return s.DeactivateFunc(ctx, code)
}
func (s *stubCodeUC) RevokeForUser(ctx context.Context, code, userID string) error {
	return s.RevokeForUserFunc(ctx, code, userID)
}
func (s *stubCodeUC) RevokeAllForUser(ctx context.Context, userID string) (int, error) {
	return s.RevokeAllForUserFunc(ctx, userID)
}
func (s *stubCodeUC) ListByUser(ctx context.Context, userID string) ([]*model.PremiumCode, error) {
	return s.ListByUserFunc(ctx, userID)
}

type stubEntitlementUC struct {
	ResolveFunc func(ctx context.Context, userID string) (*model.PremiumStatus, error)
}

func (s *stubEntitlementUC) Resolve(ctx context.Context, userID string) (*model.PremiumStatus, error) {
	return s.ResolveFunc(ctx, userID)
}

type stubSessionUC struct {
	ListActiveFunc    func(ctx context.Context, userID string) ([]*model.UserSession, error)
	CountActiveFunc   func(ctx context.Context, userID string) (int, error)
	DisconnectFunc    func(ctx context.Context, userID, deviceID string) (bool, error)
	DisconnectAllFunc func(ctx context.Context, userID string) (int, error)
}

func (s *stubSessionUC) ListActive(ctx context.Context, userID string) ([]*model.UserSession, error) {
	return s.ListActiveFunc(ctx, userID)
}
func (s *stubSessionUC) CountActive(ctx context.Context, userID string) (int, error) {
	return s.CountActiveFunc(ctx, userID)
}
func (s *stubSessionUC) Disconnect(ctx context.Context, userID, deviceID string) (bool, error) {
	return s.DisconnectFunc(ctx, userID, deviceID)
}
func (s *stubSessionUC) DisconnectAll(ctx context.Context, userID string) (int, error) {
	return s.DisconnectAllFunc(ctx, userID)
}
func (s *stubSessionUC) ReapStale(ctx context.Context) (int, error) { return 0, nil }

type stubAdmissionUC struct {
	AttemptLoginFunc func(ctx context.Context, userID, deviceID string, deviceInfo map[string]string) (*model.UserSession, error)
}

func (s *stubAdmissionUC) AttemptLogin(ctx context.Context, userID, deviceID string, deviceInfo map[string]string) (*model.UserSession, error) {
	return s.AttemptLoginFunc(ctx, userID, deviceID, deviceInfo)
}

type stubLimiter struct {
	allow bool
}

func (s *stubLimiter) Allow(ctx context.Context, key string, limit int, window time.Duration) (bool, error) {
	return s.allow, nil
}

// ---- fixture ----

const testAPIKey = "test-api-key"

type serverFixture struct {
	codes     *stubCodeUC
	entitle   *stubEntitlementUC
	sessions  *stubSessionUC
	admission *stubAdmissionUC
	limiter   *stubLimiter
	auth      *web.AuthManager
	handler   http.Handler
}

func newServerFixture(t *testing.T) *serverFixture {
	t.Helper()
	logger := zerolog.New(io.Discard)
	f := &serverFixture{
		codes:     &stubCodeUC{},
		entitle:   &stubEntitlementUC{},
		sessions:  &stubSessionUC{},
		admission: &stubAdmissionUC{},
		limiter:   &stubLimiter{allow: true},
		auth:      web.NewAuthManager("test-secret", false, "", time.Hour),
	}
	srv := web.NewServer(f.codes, f.entitle, f.sessions, f.admission, f.limiter, 10, f.auth, testAPIKey, "hunter2", &logger)
	f.handler = srv.Router()
	return f
}

func (f *serverFixture) do(method, path string, body interface{}, decorate func(*http.Request)) *httptest.ResponseRecorder {
	var rdr io.Reader
	if body != nil {
		raw, _ := json.Marshal(body)
		rdr = bytes.NewReader(raw)
	}
	req := httptest.NewRequest(method, path, rdr)
	if decorate != nil {
		decorate(req)
	}
	rec := httptest.NewRecorder()
	f.handler.ServeHTTP(rec, req)
	return rec
}

func asAdmin(req *http.Request) { req.Header.Set("Authorization", "Bearer "+testAPIKey) }

func decodeBody(t *testing.T, rec *httptest.ResponseRecorder) map[string]interface{} {
	t.Helper()
	var out map[string]interface{}
	if err := json.Unmarshal(rec.Body.Bytes(), &out); err != nil {
		t.Fatalf("decode body %q: %v", rec.Body.String(), err)
	}
	return out
}

// ---- tests ----

func TestHealth(t *testing.T) {
	f := newServerFixture(t)
	rec := f.do(http.MethodGet, "/health", nil, nil)
	if rec.Code != http.StatusOK {
		t.Errorf("status = %d", rec.Code)
	}
}

func TestRedeemEndpoint(t *testing.T) {
	t.Run("ok", func(t *testing.T) {
		f := newServerFixture(t)
		f.codes.RedeemFunc = func(ctx context.Context, code, userID string) (*model.PremiumCode, error) {
			if code != "ABCD-EFGH-JKLM" || userID != "alice" {
				t.Errorf("Redeem(%q, %q)", code, userID)
			}
			c, _ := model.NewPremiumCode("01X", code, "family", "admin", time.Now(), time.Hour)
			return c, nil
		}
		rec := f.do(http.MethodPost, "/api/v1/codes/redeem", map[string]string{"code": "ABCD-EFGH-JKLM", "user_id": "alice"}, nil)
		if rec.Code != http.StatusOK {
			t.Fatalf("status = %d, body %s", rec.Code, rec.Body.String())
		}
		body := decodeBody(t, rec)
		if body["tier"] != "family" {
			t.Errorf("tier = %v", body["tier"])
		}
	})

	t.Run("error mapping", func(t *testing.T) {
		cases := []struct {
			err    error
			status int
			code   string
		}{
			{domain.ErrCodeNotFound, http.StatusNotFound, "code_not_found"},
			{domain.ErrCodeInactive, http.StatusGone, "code_inactive"},
			{domain.ErrCodeExpired, http.StatusGone, "code_expired"},
			{domain.ErrCodeAlreadyRedeemed, http.StatusConflict, "already_redeemed"},
			{domain.ErrCodeClaimed, http.StatusConflict, "code_claimed"},
			{domain.ErrInvalidArgument, http.StatusBadRequest, "invalid_argument"},
		}
		for _, tc := range cases {
			f := newServerFixture(t)
			f.codes.RedeemFunc = func(ctx context.Context, code, userID string) (*model.PremiumCode, error) {
				return nil, tc.err
			}
			rec := f.do(http.MethodPost, "/api/v1/codes/redeem", map[string]string{"code": "X", "user_id": "alice"}, nil)
			if rec.Code != tc.status {
				t.Errorf("%v: status = %d, want %d", tc.err, rec.Code, tc.status)
			}
			if body := decodeBody(t, rec); body["error"] != tc.code {
				t.Errorf("%v: error = %v, want %q", tc.err, body["error"], tc.code)
			}
		}
	})

	t.Run("rate limited", func(t *testing.T) {
		f := newServerFixture(t)
		f.limiter.allow = false
		rec := f.do(http.MethodPost, "/api/v1/codes/redeem", map[string]string{"code": "X", "user_id": "alice"}, nil)
		if rec.Code != http.StatusTooManyRequests {
			t.Errorf("status = %d, want 429", rec.Code)
		}
	})
}

func TestSessionLoginEndpoint(t *testing.T) {
	t.Run("admitted", func(t *testing.T) {
		f := newServerFixture(t)
		f.admission.AttemptLoginFunc = func(ctx context.Context, userID, deviceID string, info map[string]string) (*model.UserSession, error) {
			return model.NewUserSession(userID, deviceID, info, time.Now())
		}
		rec := f.do(http.MethodPost, "/api/v1/sessions/login", map[string]interface{}{
			"user_id": "alice", "device_id": "phone", "device_info": map[string]string{"os": "ios"},
		}, nil)
		if rec.Code != http.StatusOK {
			t.Fatalf("status = %d, body %s", rec.Code, rec.Body.String())
		}
		if body := decodeBody(t, rec); body["device_id"] != "phone" {
			t.Errorf("device_id = %v", body["device_id"])
		}
	})

	t.Run("device limit carries the session list", func(t *testing.T) {
		f := newServerFixture(t)
		blocker, _ := model.NewUserSession("alice", "tv", nil, time.Now())
		f.admission.AttemptLoginFunc = func(ctx context.Context, userID, deviceID string, info map[string]string) (*model.UserSession, error) {
			return nil, &usecase.DeviceLimitExceededError{Limit: 1, Sessions: []*model.UserSession{blocker}}
		}
		rec := f.do(http.MethodPost, "/api/v1/sessions/login", map[string]string{"user_id": "alice", "device_id": "phone"}, nil)
		if rec.Code != http.StatusConflict {
			t.Fatalf("status = %d, want 409", rec.Code)
		}
		body := decodeBody(t, rec)
		if body["error"] != "device_limit_exceeded" {
			t.Errorf("error = %v", body["error"])
		}
		details, ok := body["details"].(map[string]interface{})
		if !ok {
			t.Fatalf("details missing: %v", body)
		}
		if details["limit"] != float64(1) {
			t.Errorf("limit = %v", details["limit"])
		}
		sessions, ok := details["sessions"].([]interface{})
		if !ok || len(sessions) != 1 {
			t.Errorf("sessions = %v", details["sessions"])
		}
	})

	t.Run("not premium", func(t *testing.T) {
		f := newServerFixture(t)
		f.admission.AttemptLoginFunc = func(ctx context.Context, userID, deviceID string, info map[string]string) (*model.UserSession, error) {
			return nil, domain.ErrNotPremium
		}
		rec := f.do(http.MethodPost, "/api/v1/sessions/login", map[string]string{"user_id": "alice", "device_id": "phone"}, nil)
		if rec.Code != http.StatusForbidden {
			t.Errorf("status = %d, want 403", rec.Code)
		}
	})
}

func TestAdminAuth(t *testing.T) {
	t.Run("rejected without credentials", func(t *testing.T) {
		f := newServerFixture(t)
		rec := f.do(http.MethodPost, "/api/v1/codes", map[string]string{"tier": "family"}, nil)
		if rec.Code != http.StatusUnauthorized {
			t.Errorf("status = %d, want 401", rec.Code)
		}
	})

	t.Run("api key accepted", func(t *testing.T) {
		f := newServerFixture(t)
		f.codes.CreateFunc = func(ctx context.Context, params usecase.CreateCodeParams) (*model.PremiumCode, error) {
			return model.NewPremiumCode("01X", "AAAA-BBBB-CCCC", params.Tier, params.GeneratedBy, time.Now(), time.Hour)
		}
		rec := f.do(http.MethodPost, "/api/v1/codes", map[string]string{"tier": "family"}, asAdmin)
		if rec.Code != http.StatusCreated {
			t.Errorf("status = %d, body %s", rec.Code, rec.Body.String())
		}
	})

	t.Run("wrong api key rejected", func(t *testing.T) {
		f := newServerFixture(t)
		rec := f.do(http.MethodPost, "/api/v1/codes", map[string]string{"tier": "family"}, func(req *http.Request) {
			req.Header.Set("Authorization", "Bearer wrong")
		})
		if rec.Code != http.StatusUnauthorized {
			t.Errorf("status = %d, want 401", rec.Code)
		}
	})

	t.Run("admin session cookie accepted", func(t *testing.T) {
		f := newServerFixture(t)
		f.sessions.DisconnectAllFunc = func(ctx context.Context, userID string) (int, error) { return 2, nil }

		login := f.do(http.MethodPost, "/api/v1/auth/login", map[string]string{"password": "hunter2"}, nil)
		if login.Code != http.StatusOK {
			t.Fatalf("login status = %d", login.Code)
		}
		cookies := login.Result().Cookies()
		if len(cookies) == 0 {
			t.Fatal("no session cookie set")
		}

		rec := f.do(http.MethodDelete, "/api/v1/users/alice/sessions", nil, func(req *http.Request) {
			for _, c := range cookies {
				req.AddCookie(c)
			}
		})
		if rec.Code != http.StatusOK {
			t.Errorf("status = %d, body %s", rec.Code, rec.Body.String())
		}
		if body := decodeBody(t, rec); body["removed"] != float64(2) {
			t.Errorf("removed = %v", body["removed"])
		}
	})

	t.Run("wrong password", func(t *testing.T) {
		f := newServerFixture(t)
		rec := f.do(http.MethodPost, "/api/v1/auth/login", map[string]string{"password": "nope"}, nil)
		if rec.Code != http.StatusUnauthorized {
			t.Errorf("status = %d, want 401", rec.Code)
		}
	})
}

func TestEntitlementEndpoint(t *testing.T) {
	f := newServerFixture(t)
	expires := time.Date(2026, 6, 1, 0, 0, 0, 0, time.UTC)
	f.entitle.ResolveFunc = func(ctx context.Context, userID string) (*model.PremiumStatus, error) {
		return &model.PremiumStatus{IsPremium: true, Tier: "family", CodeID: "01X", ExpiresAt: expires}, nil
	}
	rec := f.do(http.MethodGet, "/api/v1/users/alice/entitlement", nil, nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
	body := decodeBody(t, rec)
	if body["is_premium"] != true || body["tier"] != "family" {
		t.Errorf("body = %v", body)
	}

	f.entitle.ResolveFunc = func(ctx context.Context, userID string) (*model.PremiumStatus, error) {
		return &model.PremiumStatus{IsPremium: false}, nil
	}
	rec = f.do(http.MethodGet, "/api/v1/users/alice/entitlement", nil, nil)
	body = decodeBody(t, rec)
	if body["is_premium"] != false {
		t.Errorf("body = %v", body)
	}
	if _, present := body["tier"]; present {
		t.Error("tier must be omitted for non-premium users")
	}
}

func TestDisconnectEndpoint(t *testing.T) {
	f := newServerFixture(t)
	f.sessions.DisconnectFunc = func(ctx context.Context, userID, deviceID string) (bool, error) {
		return userID == "alice" && deviceID == "phone", nil
	}
	rec := f.do(http.MethodDelete, "/api/v1/users/alice/sessions/phone", nil, nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
	if body := decodeBody(t, rec); body["removed"] != true {
		t.Errorf("removed = %v", body["removed"])
	}
}
