package api

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/google/uuid"
	"github.com/pkg/errors"
	"go.uber.org/zap/zaptest"

	"github.com/cedros/claw-spawn/internal/metrics"
	"github.com/cedros/claw-spawn/internal/model"
)

const testAdminToken = "test-admin-token"

// stubBackend satisfies every server dependency with overridable
// function fields. Calls without an override fail loudly so a test
// cannot silently exercise an unexpected path.
type stubBackend struct {
	createBotFn func(accountID uuid.UUID, name string, persona model.Persona, cfg model.BotConfig) (*model.Bot, error)
	actionFn    func(action string, botID uuid.UUID) error
	actions     []string

	getBotFn          func(botID uuid.UUID) (*model.Bot, error)
	getBotWithTokenFn func(botID uuid.UUID, token string) (*model.Bot, error)
	listBotsFn        func(accountID uuid.UUID, limit, offset int64) ([]*model.Bot, error)
	listConfigsFn     func(botID uuid.UUID) ([]*model.StoredBotConfig, error)
	createConfigFn    func(botID uuid.UUID, cfg model.BotConfig) (*model.StoredBotConfig, error)
	ackFn             func(botID, configID uuid.UUID) error
	desiredFn         func(botID uuid.UUID) (*model.StoredBotConfig, error)
	heartbeatFn       func(botID uuid.UUID) error

	createAccountFn func(account *model.Account) error
	getAccountFn    func(id uuid.UUID) (*model.Account, error)

	pingErr error
}

func (f *stubBackend) CreateBot(_ context.Context, accountID uuid.UUID, name string, persona model.Persona, cfg model.BotConfig) (*model.Bot, error) {
	if f.createBotFn == nil {
		return nil, errors.New("unexpected CreateBot call")
	}
	return f.createBotFn(accountID, name, persona, cfg)
}

func (f *stubBackend) action(name string, botID uuid.UUID) error {
	f.actions = append(f.actions, name)
	if f.actionFn == nil {
		return nil
	}
	return f.actionFn(name, botID)
}

func (f *stubBackend) DestroyBot(_ context.Context, botID uuid.UUID) error {
	return f.action("destroy", botID)
}

func (f *stubBackend) PauseBot(_ context.Context, botID uuid.UUID) error {
	return f.action("pause", botID)
}

func (f *stubBackend) ResumeBot(_ context.Context, botID uuid.UUID) error {
	return f.action("resume", botID)
}

func (f *stubBackend) RedeployBot(_ context.Context, botID uuid.UUID) error {
	return f.action("redeploy", botID)
}

func (f *stubBackend) SyncDropletStatus(_ context.Context, botID uuid.UUID) error {
	return f.action("sync", botID)
}

func (f *stubBackend) GetBot(_ context.Context, botID uuid.UUID) (*model.Bot, error) {
	if f.getBotFn == nil {
		return nil, errors.New("unexpected GetBot call")
	}
	return f.getBotFn(botID)
}

func (f *stubBackend) GetBotWithToken(_ context.Context, botID uuid.UUID, token string) (*model.Bot, error) {
	if f.getBotWithTokenFn == nil {
		return nil, errors.New("unexpected GetBotWithToken call")
	}
	return f.getBotWithTokenFn(botID, token)
}

func (f *stubBackend) ListAccountBots(_ context.Context, accountID uuid.UUID, limit, offset int64) ([]*model.Bot, error) {
	if f.listBotsFn == nil {
		return nil, errors.New("unexpected ListAccountBots call")
	}
	return f.listBotsFn(accountID, limit, offset)
}

func (f *stubBackend) ListBotConfigs(_ context.Context, botID uuid.UUID) ([]*model.StoredBotConfig, error) {
	if f.listConfigsFn == nil {
		return nil, errors.New("unexpected ListBotConfigs call")
	}
	return f.listConfigsFn(botID)
}

func (f *stubBackend) CreateBotConfig(_ context.Context, botID uuid.UUID, cfg model.BotConfig) (*model.StoredBotConfig, error) {
	if f.createConfigFn == nil {
		return nil, errors.New("unexpected CreateBotConfig call")
	}
	return f.createConfigFn(botID, cfg)
}

func (f *stubBackend) AcknowledgeConfig(_ context.Context, botID, configID uuid.UUID) error {
	if f.ackFn == nil {
		return errors.New("unexpected AcknowledgeConfig call")
	}
	return f.ackFn(botID, configID)
}

func (f *stubBackend) GetDesiredConfig(_ context.Context, botID uuid.UUID) (*model.StoredBotConfig, error) {
	if f.desiredFn == nil {
		return nil, errors.New("unexpected GetDesiredConfig call")
	}
	return f.desiredFn(botID)
}

func (f *stubBackend) RecordHeartbeat(_ context.Context, botID uuid.UUID) error {
	if f.heartbeatFn == nil {
		return errors.New("unexpected RecordHeartbeat call")
	}
	return f.heartbeatFn(botID)
}

func (f *stubBackend) CreateAccount(_ context.Context, account *model.Account) error {
	if f.createAccountFn == nil {
		return errors.New("unexpected CreateAccount call")
	}
	return f.createAccountFn(account)
}

func (f *stubBackend) GetAccountByID(_ context.Context, id uuid.UUID) (*model.Account, error) {
	if f.getAccountFn == nil {
		return nil, errors.New("unexpected GetAccountByID call")
	}
	return f.getAccountFn(id)
}

func (f *stubBackend) Ping(context.Context) error {
	return f.pingErr
}

func newTestServer(t *testing.T, stub *stubBackend) *httptest.Server {
	return newAuthTestServer(t, stub, testAdminToken)
}

func newAuthTestServer(t *testing.T, stub *stubBackend, adminToken string) *httptest.Server {
	t.Helper()
	srv := New(stub, stub, stub, stub, metrics.New(), zaptest.NewLogger(t), Options{
		Host:       "127.0.0.1",
		AdminToken: adminToken,
	})
	ts := httptest.NewServer(srv.Handler())
	t.Cleanup(ts.Close)
	return ts
}

// do issues a request against the test server and returns the status
// with the raw body. An empty token leaves the Authorization header
// off entirely.
func do(t *testing.T, ts *httptest.Server, method, path, token string, body any) (int, []byte) {
	t.Helper()
	var reader io.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		if err != nil {
			t.Fatalf("failed to marshal request body: %v", err)
		}
		reader = bytes.NewReader(raw)
	}
	req, err := http.NewRequest(method, ts.URL+path, reader)
	if err != nil {
		t.Fatalf("failed to build request: %v", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("request failed: %v", err)
	}
	defer resp.Body.Close()
	data, err := io.ReadAll(resp.Body)
	if err != nil {
		t.Fatalf("failed to read response body: %v", err)
	}
	return resp.StatusCode, data
}

func asMap(t *testing.T, data []byte) map[string]any {
	t.Helper()
	var m map[string]any
	if err := json.Unmarshal(data, &m); err != nil {
		t.Fatalf("failed to unmarshal %q: %v", data, err)
	}
	return m
}

func validCreateBotRequest(accountID uuid.UUID) map[string]any {
	return map[string]any{
		"account_id":            accountID.String(),
		"name":                  "trader-one",
		"persona":               "beginner",
		"asset_focus":           "majors",
		"algorithm":             "trend",
		"strictness":            "medium",
		"paper_mode":            true,
		"max_position_size_pct": 10.0,
		"max_daily_loss_pct":    5.0,
		"max_drawdown_pct":      20.0,
		"max_trades_per_day":    12,
		"llm_provider":          "anthropic",
		"llm_api_key":           "sk-ant-test",
	}
}
