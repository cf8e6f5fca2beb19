package http

import (
	"encoding/json"
	"io"
	"net/http/httptest"
	"testing"

	"github.com/gofiber/fiber/v2"

	"codedox/internal/config"
	"codedox/internal/model"
)

func authApp(cfg *config.Config) *fiber.App {
	app := fiber.New()
	app.Use(authMiddleware(cfg))
	app.Get("/guarded", func(c *fiber.Ctx) error {
		tok, _ := c.Locals("auth_token").(string)
		return c.JSON(fiber.Map{"token": tok})
	})
	return app
}

func TestAuthMiddlewareDisabled(t *testing.T) {
	cfg := config.Default()
	app := authApp(cfg)

	req := httptest.NewRequest("GET", "/guarded", nil)
	resp, err := app.Test(req)
	if err != nil {
		t.Fatal(err)
	}
	if resp.StatusCode != fiber.StatusOK {
		t.Errorf("disabled auth must pass through, got %d", resp.StatusCode)
	}
}

func TestAuthMiddlewareRejectsMissingHeader(t *testing.T) {
	cfg := config.Default()
	cfg.MCPAuth.Enabled = true
	cfg.MCPAuth.Tokens = []string{"secret"}
	app := authApp(cfg)

	req := httptest.NewRequest("GET", "/guarded", nil)
	resp, err := app.Test(req)
	if err != nil {
		t.Fatal(err)
	}
	if resp.StatusCode != fiber.StatusUnauthorized {
		t.Fatalf("missing header must be 401, got %d", resp.StatusCode)
	}

	var body ErrorResponse
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		t.Fatal(err)
	}
	if body.Success || body.Code != "UNAUTHENTICATED" {
		t.Errorf("unexpected error body: %+v", body)
	}
}

func TestAuthMiddlewareRejectsWrongScheme(t *testing.T) {
	cfg := config.Default()
	cfg.MCPAuth.Enabled = true
	cfg.MCPAuth.Tokens = []string{"secret"}
	app := authApp(cfg)

	req := httptest.NewRequest("GET", "/guarded", nil)
	req.Header.Set("Authorization", "Basic c2VjcmV0")
	resp, err := app.Test(req)
	if err != nil {
		t.Fatal(err)
	}
	if resp.StatusCode != fiber.StatusUnauthorized {
		t.Errorf("non-bearer scheme must be 401, got %d", resp.StatusCode)
	}
}

func TestAuthMiddlewareRejectsBadToken(t *testing.T) {
	cfg := config.Default()
	cfg.MCPAuth.Enabled = true
	cfg.MCPAuth.Tokens = []string{"secret"}
	app := authApp(cfg)

	req := httptest.NewRequest("GET", "/guarded", nil)
	req.Header.Set("Authorization", "Bearer wrong")
	resp, err := app.Test(req)
	if err != nil {
		t.Fatal(err)
	}
	if resp.StatusCode != fiber.StatusUnauthorized {
		t.Errorf("wrong token must be 401, got %d", resp.StatusCode)
	}
}

func TestAuthMiddlewareAcceptsToken(t *testing.T) {
	cfg := config.Default()
	cfg.MCPAuth.Enabled = true
	cfg.MCPAuth.Tokens = []string{"first", "second"}
	app := authApp(cfg)

	req := httptest.NewRequest("GET", "/guarded", nil)
	req.Header.Set("Authorization", "Bearer second")
	resp, err := app.Test(req)
	if err != nil {
		t.Fatal(err)
	}
	if resp.StatusCode != fiber.StatusOK {
		t.Fatalf("valid token must pass, got %d", resp.StatusCode)
	}

	data, _ := io.ReadAll(resp.Body)
	var body struct {
		Token string `json:"token"`
	}
	if err := json.Unmarshal(data, &body); err != nil {
		t.Fatal(err)
	}
	if body.Token != "second" {
		t.Errorf("auth_token local = %q, want second", body.Token)
	}
}

func TestTokenAllowed(t *testing.T) {
	tokens := []string{"alpha", "beta"}
	cases := []struct {
		candidate string
		want      bool
	}{
		{"alpha", true},
		{"beta", true},
		{"gamma", false},
		{"", false},
		{"alph", false},
		{"alphaa", false},
	}
	for _, tc := range cases {
		if got := tokenAllowed(tokens, tc.candidate); got != tc.want {
			t.Errorf("tokenAllowed(%q) = %t, want %t", tc.candidate, got, tc.want)
		}
	}
	if tokenAllowed(nil, "anything") {
		t.Error("empty token set must reject everything")
	}
}

func TestWebsocketMountRequiresAuth(t *testing.T) {
	cfg := config.Default()
	cfg.MCPAuth.Enabled = true
	cfg.MCPAuth.Tokens = []string{"secret"}
	srv := NewServer(Deps{Config: cfg})

	req := httptest.NewRequest("GET", "/ws/client-1", nil)
	resp, err := srv.App().Test(req)
	if err != nil {
		t.Fatal(err)
	}
	if resp.StatusCode != fiber.StatusUnauthorized {
		t.Fatalf("unauthenticated progress stream request = %d, want 401", resp.StatusCode)
	}

	// A valid token reaches the upgrade check instead.
	req = httptest.NewRequest("GET", "/ws/client-1", nil)
	req.Header.Set("Authorization", "Bearer secret")
	resp, err = srv.App().Test(req)
	if err != nil {
		t.Fatal(err)
	}
	if resp.StatusCode != fiber.StatusUpgradeRequired {
		t.Errorf("authenticated non-upgrade request = %d, want 426", resp.StatusCode)
	}
}

func TestErrorKindMapping(t *testing.T) {
	cases := []struct {
		kind       model.Kind
		wantStatus int
		wantCode   string
	}{
		{model.KindValidation, fiber.StatusBadRequest, "VALIDATION_ERROR"},
		{model.KindNotFound, fiber.StatusNotFound, "NOT_FOUND"},
		{model.KindConflict, fiber.StatusConflict, "CONFLICT"},
		{model.KindAuth, fiber.StatusUnauthorized, "UNAUTHENTICATED"},
		{model.KindCancelled, StatusClientClosedRequest, "CANCELLED"},
		{model.KindStorage, fiber.StatusServiceUnavailable, "STORAGE_UNAVAILABLE"},
		{model.KindInternal, fiber.StatusInternalServerError, "INTERNAL_ERROR"},
	}
	for _, tc := range cases {
		if got := statusForKind(tc.kind); got != tc.wantStatus {
			t.Errorf("statusForKind(%v) = %d, want %d", tc.kind, got, tc.wantStatus)
		}
		if got := codeForKind(tc.kind); got != tc.wantCode {
			t.Errorf("codeForKind(%v) = %q, want %q", tc.kind, got, tc.wantCode)
		}
	}
}

func TestFailRendersEnvelope(t *testing.T) {
	app := fiber.New()
	app.Get("/boom", func(c *fiber.Ctx) error {
		return fail(c, model.E(model.KindNotFound, "source not found"))
	})

	resp, err := app.Test(httptest.NewRequest("GET", "/boom", nil))
	if err != nil {
		t.Fatal(err)
	}
	if resp.StatusCode != fiber.StatusNotFound {
		t.Fatalf("status = %d, want 404", resp.StatusCode)
	}

	var body ErrorResponse
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		t.Fatal(err)
	}
	if body.Success || body.Code != "NOT_FOUND" || body.Error != "source not found" {
		t.Errorf("unexpected body: %+v", body)
	}
}
