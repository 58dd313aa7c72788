package middleware

import (
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gofiber/fiber/v2"

	"github.com/linguacast/api/internal/admission"
	"github.com/linguacast/api/internal/auth"
	"github.com/linguacast/api/pkg/response"
)

const testSecret = "test-secret"

func newTestApp(t *testing.T, ctrl *admission.Controller) *fiber.App {
	t.Helper()
	app := fiber.New()
	authMw := NewAuthMiddleware(testSecret)
	app.Post("/generate", authMw.Authenticate(), Admit(ctrl), func(c *fiber.Ctx) error {
		return response.Accepted(c, fiber.Map{"ok": true})
	})
	return app
}

func generateRequest(t *testing.T, userID, role string) *http.Request {
	t.Helper()
	token, err := auth.GenerateToken(userID, userID+"@example.com", role, testSecret, time.Hour)
	if err != nil {
		t.Fatal(err)
	}
	req := httptest.NewRequest(http.MethodPost, "/generate", nil)
	req.Header.Set("Authorization", "Bearer "+token)
	return req
}

func TestAdmitAllowsThenCoolsDown(t *testing.T) {
	store := admission.NewMemoryStore()
	ctrl := admission.NewController(store, 5*time.Minute, 20, 7*24*time.Hour)
	app := newTestApp(t, ctrl)

	resp, err := app.Test(generateRequest(t, "user-1", ""))
	if err != nil {
		t.Fatal(err)
	}
	if resp.StatusCode != http.StatusAccepted {
		t.Fatalf("first request status = %d, want 202", resp.StatusCode)
	}

	resp, err = app.Test(generateRequest(t, "user-1", ""))
	if err != nil {
		t.Fatal(err)
	}
	if resp.StatusCode != http.StatusTooManyRequests {
		t.Fatalf("second request status = %d, want 429", resp.StatusCode)
	}
	if ra := resp.Header.Get("Retry-After"); ra == "" || ra == "0" {
		t.Fatalf("Retry-After header = %q, want positive seconds", ra)
	}

	body, _ := io.ReadAll(resp.Body)
	var envelope response.ErrorResponse
	if err := json.Unmarshal(body, &envelope); err != nil {
		t.Fatalf("could not decode error envelope: %v", err)
	}
	if envelope.Error.Code != response.CodeTooManyRequests {
		t.Fatalf("error code = %q, want %q", envelope.Error.Code, response.CodeTooManyRequests)
	}
	details, err := json.Marshal(envelope.Error.Details)
	if err != nil {
		t.Fatal(err)
	}
	var limitErr admission.LimitError
	if err := json.Unmarshal(details, &limitErr); err != nil {
		t.Fatalf("details are not a limit error: %v", err)
	}
	if limitErr.Kind != admission.KindCooldown {
		t.Fatalf("limit kind = %q, want cooldown", limitErr.Kind)
	}
	if limitErr.RetryAfterSeconds <= 0 {
		t.Fatalf("retryAfterSeconds = %d, want positive", limitErr.RetryAfterSeconds)
	}
}

func TestAdmitQuotaDetails(t *testing.T) {
	store := admission.NewMemoryStore()
	// Zero cooldown isolates the quota path.
	ctrl := admission.NewController(store, 0, 2, time.Hour)
	app := newTestApp(t, ctrl)

	for i := 0; i < 2; i++ {
		resp, err := app.Test(generateRequest(t, "user-2", ""))
		if err != nil {
			t.Fatal(err)
		}
		if resp.StatusCode != http.StatusAccepted {
			t.Fatalf("request %d status = %d, want 202", i+1, resp.StatusCode)
		}
	}

	resp, err := app.Test(generateRequest(t, "user-2", ""))
	if err != nil {
		t.Fatal(err)
	}
	if resp.StatusCode != http.StatusTooManyRequests {
		t.Fatalf("over-quota status = %d, want 429", resp.StatusCode)
	}

	body, _ := io.ReadAll(resp.Body)
	var envelope response.ErrorResponse
	if err := json.Unmarshal(body, &envelope); err != nil {
		t.Fatal(err)
	}
	details, _ := json.Marshal(envelope.Error.Details)
	var limitErr admission.LimitError
	if err := json.Unmarshal(details, &limitErr); err != nil {
		t.Fatal(err)
	}
	if limitErr.Kind != admission.KindQuota {
		t.Fatalf("limit kind = %q, want quota", limitErr.Kind)
	}
	if limitErr.Quota == nil || limitErr.Quota.Used != 2 || limitErr.Quota.Limit != 2 {
		t.Fatalf("quota details = %+v, want used=2 limit=2", limitErr.Quota)
	}
}

func TestAdmitElevatedRoleBypassesLimits(t *testing.T) {
	store := admission.NewMemoryStore()
	ctrl := admission.NewController(store, 5*time.Minute, 1, time.Hour)
	app := newTestApp(t, ctrl)

	for i := 0; i < 3; i++ {
		resp, err := app.Test(generateRequest(t, "admin-1", admission.RoleElevated))
		if err != nil {
			t.Fatal(err)
		}
		if resp.StatusCode != http.StatusAccepted {
			t.Fatalf("elevated request %d status = %d, want 202", i+1, resp.StatusCode)
		}
	}
}

func TestAuthenticateRejectsBadTokens(t *testing.T) {
	store := admission.NewMemoryStore()
	ctrl := admission.NewController(store, 0, 10, time.Hour)
	app := newTestApp(t, ctrl)

	req := httptest.NewRequest(http.MethodPost, "/generate", nil)
	resp, err := app.Test(req)
	if err != nil {
		t.Fatal(err)
	}
	if resp.StatusCode != http.StatusUnauthorized {
		t.Fatalf("missing header status = %d, want 401", resp.StatusCode)
	}

	req = httptest.NewRequest(http.MethodPost, "/generate", nil)
	req.Header.Set("Authorization", "Bearer not-a-token")
	resp, err = app.Test(req)
	if err != nil {
		t.Fatal(err)
	}
	if resp.StatusCode != http.StatusUnauthorized {
		t.Fatalf("garbage token status = %d, want 401", resp.StatusCode)
	}

	token, err := auth.GenerateToken("user-3", "u3@example.com", "", "wrong-secret", time.Hour)
	if err != nil {
		t.Fatal(err)
	}
	req = httptest.NewRequest(http.MethodPost, "/generate", nil)
	req.Header.Set("Authorization", "Bearer "+token)
	resp, err = app.Test(req)
	if err != nil {
		t.Fatal(err)
	}
	if resp.StatusCode != http.StatusUnauthorized {
		t.Fatalf("wrong-secret token status = %d, want 401", resp.StatusCode)
	}
}
