package verification

import (
	"context"
	"encoding/json"
	"io"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gofiber/fiber/v2"

	"github.com/guildgate/guildgate/internal/authority"
	"github.com/guildgate/guildgate/internal/ledger"
	"github.com/guildgate/guildgate/internal/logging"
	"github.com/guildgate/guildgate/internal/pending"
	"github.com/guildgate/guildgate/internal/roles"
	"github.com/guildgate/guildgate/internal/session"
)

type webFixture struct {
	app     *fiber.App
	svc     *Service
	granter *roles.StaticGranter
	records ledger.Ledger
}

func newWebApp(t *testing.T, identity authority.Identity) *webFixture {
	t.Helper()

	sessions := session.NewMemoryStore()
	pendings := pending.NewMemoryRegistry()
	granter := roles.NewStaticGranter()
	records := ledger.NewInMemory()
	logger := logging.Discard()

	// Slow poll interval: the direct callback path is under test here.
	svc := NewService(sessions, pendings, granter, records, nil, logger, "http://localhost:8080",
		WithPollInterval(time.Hour))
	auth := authority.StaticClient{BaseURL: "https://authority.example/authorize", Identity: identity}
	web := NewWebHandler(svc, pendings, auth, logger)

	app := fiber.New()
	app.Get("/verify", web.Verify)
	app.Get("/callback", web.Callback)
	app.Get("/api/check-verification/:state", web.CheckVerification)
	app.Post("/api/create-verification", web.CreateVerification)

	return &webFixture{app: app, svc: svc, granter: granter, records: records}
}

func createVerification(t *testing.T, f *webFixture, body string) map[string]any {
	t.Helper()
	req := httptest.NewRequest(fiber.MethodPost, "/api/create-verification", strings.NewReader(body))
	req.Header.Set(fiber.HeaderContentType, fiber.MIMEApplicationJSON)
	resp, err := f.app.Test(req)
	if err != nil {
		t.Fatalf("create-verification: %v", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != fiber.StatusCreated {
		t.Fatalf("expected 201, got %d", resp.StatusCode)
	}
	payload, _ := io.ReadAll(resp.Body)
	var decoded map[string]any
	if err := json.Unmarshal(payload, &decoded); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	return decoded
}

func TestCreateVerificationValidatesInput(t *testing.T) {
	f := newWebApp(t, authority.Identity{ID: "u2"})

	req := httptest.NewRequest(fiber.MethodPost, "/api/create-verification", strings.NewReader(`{"user_id":"u2"}`))
	req.Header.Set(fiber.HeaderContentType, fiber.MIMEApplicationJSON)
	resp, err := f.app.Test(req)
	if err != nil {
		t.Fatalf("app.Test: %v", err)
	}
	if resp.StatusCode != fiber.StatusBadRequest {
		t.Fatalf("expected 400 for missing guild_id, got %d", resp.StatusCode)
	}
}

func TestVerifyRedirectsToAuthority(t *testing.T) {
	f := newWebApp(t, authority.Identity{ID: "u2"})
	created := createVerification(t, f, `{"user_id":"u2","guild_id":"g1"}`)
	state := created["state"].(string)

	req := httptest.NewRequest(fiber.MethodGet, "/verify?state="+state, nil)
	resp, err := f.app.Test(req)
	if err != nil {
		t.Fatalf("app.Test: %v", err)
	}
	if resp.StatusCode != fiber.StatusFound {
		t.Fatalf("expected 302, got %d", resp.StatusCode)
	}
	location := resp.Header.Get(fiber.HeaderLocation)
	if !strings.HasPrefix(location, "https://authority.example/authorize") || !strings.Contains(location, state) {
		t.Fatalf("unexpected redirect target %q", location)
	}
}

func TestVerifyRejectsUnknownState(t *testing.T) {
	f := newWebApp(t, authority.Identity{ID: "u2"})

	req := httptest.NewRequest(fiber.MethodGet, "/verify?state=bogus", nil)
	resp, err := f.app.Test(req)
	if err != nil {
		t.Fatalf("app.Test: %v", err)
	}
	if resp.StatusCode != fiber.StatusBadRequest {
		t.Fatalf("expected 400, got %d", resp.StatusCode)
	}
}

func TestCallbackCompletesAndGrants(t *testing.T) {
	f := newWebApp(t, authority.Identity{ID: "u2", Username: "user2222"})
	created := createVerification(t, f, `{"user_id":"u2","guild_id":"g1","label":"user#2222"}`)
	state := created["state"].(string)

	req := httptest.NewRequest(fiber.MethodGet, "/callback?code=abc&state="+state, nil)
	resp, err := f.app.Test(req)
	if err != nil {
		t.Fatalf("app.Test: %v", err)
	}
	if resp.StatusCode != fiber.StatusOK {
		t.Fatalf("expected 200, got %d", resp.StatusCode)
	}

	// The direct path reconciled: privilege granted and ledger updated.
	if f.granter.Grants("g1", "u2") != 1 {
		t.Fatalf("expected one grant, got %d", f.granter.Grants("g1", "u2"))
	}
	if _, err := f.records.Find(context.Background(), "u2"); err != nil {
		t.Fatalf("ledger record missing: %v", err)
	}
}

func TestCallbackRejectsMismatchedIdentity(t *testing.T) {
	// The authority authenticates a different account than the requester.
	f := newWebApp(t, authority.Identity{ID: "u4"})
	created := createVerification(t, f, `{"user_id":"u3","guild_id":"g1"}`)
	state := created["state"].(string)

	req := httptest.NewRequest(fiber.MethodGet, "/callback?code=abc&state="+state, nil)
	resp, err := f.app.Test(req)
	if err != nil {
		t.Fatalf("app.Test: %v", err)
	}
	if resp.StatusCode != fiber.StatusForbidden {
		t.Fatalf("expected 403, got %d", resp.StatusCode)
	}
	if f.granter.Grants("g1", "u3") != 0 {
		t.Fatalf("mismatched identity must not grant")
	}

	// The record is still pending, not completed.
	check := httptest.NewRequest(fiber.MethodGet, "/api/check-verification/"+state, nil)
	checkResp, err := f.app.Test(check)
	if err != nil {
		t.Fatalf("check-verification: %v", err)
	}
	payload, _ := io.ReadAll(checkResp.Body)
	checkResp.Body.Close()
	var status map[string]any
	if err := json.Unmarshal(payload, &status); err != nil {
		t.Fatalf("decode status: %v", err)
	}
	if status["verified"] != false || status["expired"] != false {
		t.Fatalf("unexpected status after mismatch: %v", status)
	}
}

func TestCheckVerificationUnknownStateReadsExpired(t *testing.T) {
	f := newWebApp(t, authority.Identity{ID: "u2"})

	req := httptest.NewRequest(fiber.MethodGet, "/api/check-verification/bogus", nil)
	resp, err := f.app.Test(req)
	if err != nil {
		t.Fatalf("app.Test: %v", err)
	}
	payload, _ := io.ReadAll(resp.Body)
	resp.Body.Close()
	var status map[string]any
	if err := json.Unmarshal(payload, &status); err != nil {
		t.Fatalf("decode status: %v", err)
	}
	if status["verified"] != false || status["expired"] != true {
		t.Fatalf("unexpected status for unknown state: %v", status)
	}
}

func TestCallbackWithoutCode(t *testing.T) {
	f := newWebApp(t, authority.Identity{ID: "u2"})

	req := httptest.NewRequest(fiber.MethodGet, "/callback?state=whatever", nil)
	resp, err := f.app.Test(req)
	if err != nil {
		t.Fatalf("app.Test: %v", err)
	}
	if resp.StatusCode != fiber.StatusBadRequest {
		t.Fatalf("expected 400, got %d", resp.StatusCode)
	}
}
