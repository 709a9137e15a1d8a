package main

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/kiranshivaraju/skybid/internal/accounts"
	mw "github.com/kiranshivaraju/skybid/internal/api/middleware"
	"github.com/kiranshivaraju/skybid/internal/config"
	"github.com/kiranshivaraju/skybid/internal/fees"
	"github.com/kiranshivaraju/skybid/internal/gateway/gatewaytest"
	"github.com/kiranshivaraju/skybid/internal/lifecycle"
	"github.com/kiranshivaraju/skybid/internal/store"
	"github.com/kiranshivaraju/skybid/pkg/models"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"
)

var completedAt = time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

// ─── harness ────────────────────────────────────────────────────────────────

type recordingSink struct {
	mu     sync.Mutex
	events []*models.OutboxEvent
}

func (s *recordingSink) Publish(_ context.Context, ev *models.OutboxEvent) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.events = append(s.events, ev)
	return nil
}

type harness struct {
	app    *app
	store  *store.MemoryStore
	gw     *gatewaytest.Fake
	sink   *recordingSink
	closed int

	upCalls   []string
	downSteps []int
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	h := &harness{
		store: store.NewMemoryStore(),
		gw:    &gatewaytest.Fake{},
		sink:  &recordingSink{},
	}
	cfg := &config.Config{
		Database: config.DatabaseConfig{URL: "postgres://test"},
		Settlement: config.SettlementConfig{
			BatchSize:      100,
			Concurrency:    2,
			ItemTimeout:    time.Second,
			ClaimLease:     time.Minute,
			MaxAttempts:    3,
			BackoffInitial: time.Minute,
			BackoffMax:     time.Hour,
		},
		Outbox: config.OutboxConfig{BatchSize: 100, Interval: time.Second},
	}
	h.app = &app{
		loadConfig: func() (*config.Config, error) { return cfg, nil },
		open: func(context.Context, *config.Config) (*backend, error) {
			return &backend{
				store:   h.store,
				gateway: h.gw,
				sink:    h.sink,
				close:   func() { h.closed++ },
			}, nil
		},
		migrateUp: func(url, dir string) error {
			h.upCalls = append(h.upCalls, url+" "+dir)
			return nil
		},
		migrateDown: func(_, _ string, steps int) error {
			h.downSteps = append(h.downSteps, steps)
			return nil
		},
	}
	return h
}

func (h *harness) run(t *testing.T, args ...string) (string, error) {
	t.Helper()
	var out bytes.Buffer
	root := h.app.rootCmd()
	root.SetOut(&out)
	root.SetErr(&out)
	root.SetArgs(args)
	err := root.ExecuteContext(context.Background())
	return out.String(), err
}

// completeJob drives one job to completion and returns its scheduled transfer.
func (h *harness) completeJob(t *testing.T) *models.ScheduledTransfer {
	t.Helper()
	ctx := context.Background()
	m := lifecycle.NewManager(h.store, h.gw, accounts.StaticLookup(true), fees.DefaultPolicy(),
		lifecycle.WithClock(func() time.Time { return completedAt }))
	client := uuid.New()

	res, err := m.CreateJob(ctx, client, lifecycle.JobDraft{
		Title:   "Roof inspection",
		Budget:  decimal.RequireFromString("300.00"),
		JobType: models.JobTypeCustom,
	})
	require.NoError(t, err)
	_, err = m.ActivateJob(ctx, res.Job.ID, client, "pay_1")
	require.NoError(t, err)
	b, err := m.SubmitBid(ctx, res.Job.ID, uuid.New(), lifecycle.BidDraft{BidAmount: decimal.RequireFromString("200.00")})
	require.NoError(t, err)
	_, err = m.AcceptBid(ctx, res.Job.ID, b.ID, client)
	require.NoError(t, err)
	done, err := m.CompleteJob(ctx, res.Job.ID, client, lifecycle.CompletionInput{})
	require.NoError(t, err)
	return done.Transfer
}

// ─── settle ─────────────────────────────────────────────────────────────────

func TestSettleRun_ReleasesDueTransfers(t *testing.T) {
	h := newHarness(t)
	tr := h.completeJob(t)

	out, err := h.run(t, "settle", "run", "--at", completedAt.Add(time.Hour).Format(time.RFC3339))
	require.NoError(t, err)
	assert.JSONEq(t, `{"processed":0,"succeeded":0,"failed":0,"skipped":0}`, out)

	out, err = h.run(t, "settle", "run", "--at", completedAt.Add(49*time.Hour).Format(time.RFC3339))
	require.NoError(t, err)
	assert.JSONEq(t, `{"processed":1,"succeeded":1,"failed":0,"skipped":0}`, out)

	got, err := h.store.GetTransfer(context.Background(), tr.ID)
	require.NoError(t, err)
	assert.Equal(t, models.TransferStatusCompleted, got.Status)
	assert.Equal(t, 1, h.gw.Paid())
	assert.Equal(t, 2, h.closed)
}

func TestSettleRun_InvalidAt(t *testing.T) {
	h := newHarness(t)
	_, err := h.run(t, "settle", "run", "--at", "tomorrow")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "invalid --at")
}

func TestSettleRun_ConfigError(t *testing.T) {
	h := newHarness(t)
	h.app.loadConfig = func() (*config.Config, error) { return nil, errors.New("DATABASE_URL is required") }

	_, err := h.run(t, "settle", "run")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "load config")
}

func TestSettleReschedule(t *testing.T) {
	h := newHarness(t)
	tr := h.completeJob(t)

	_, err := h.run(t, "settle", "reschedule", "not-a-uuid")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "invalid transfer id")

	// A pending transfer is not failed, so it cannot be rescheduled.
	_, err = h.run(t, "settle", "reschedule", tr.ID.String())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "reschedule transfer")

	_, err = h.run(t, "settle", "reschedule", uuid.New().String())
	require.Error(t, err)
}

// ─── outbox ─────────────────────────────────────────────────────────────────

func TestOutboxDispatch(t *testing.T) {
	h := newHarness(t)
	h.completeJob(t)

	out, err := h.run(t, "outbox", "dispatch")
	require.NoError(t, err)
	assert.Contains(t, out, "dispatched")
	require.NotEmpty(t, h.sink.events)
	first := len(h.sink.events)

	out, err = h.run(t, "outbox", "dispatch")
	require.NoError(t, err)
	assert.Equal(t, "dispatched 0 events\n", out)
	assert.Len(t, h.sink.events, first)
}

// ─── apikey ─────────────────────────────────────────────────────────────────

func TestAPIKeyCreate(t *testing.T) {
	h := newHarness(t)
	account := uuid.New()

	out, err := h.run(t, "apikey", "create",
		"--account", account.String(), "--name", "ops", "--scope", "admin", "--scope", "client")
	require.NoError(t, err)

	var body map[string]any
	require.NoError(t, json.Unmarshal([]byte(out), &body))
	raw := body["key"].(string)
	assert.Equal(t, account.String(), body["account_id"])

	keys, err := h.store.GetAPIKeyByPrefix(context.Background(), raw[:8])
	require.NoError(t, err)
	require.Len(t, keys, 1)
	assert.NoError(t, bcrypt.CompareHashAndPassword([]byte(keys[0].KeyHash), []byte(raw)))
	assert.Equal(t, []string{models.ScopeAdmin, models.ScopeClient}, keys[0].Scopes)

	_, err = h.run(t, "apikey", "create", "--account", account.String(), "--name", "ops", "--scope", "admin")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "already has a key")
}

func TestAPIKeyCreate_Validation(t *testing.T) {
	h := newHarness(t)
	account := uuid.New().String()

	tests := []struct {
		name string
		args []string
		want string
	}{
		{"bad account", []string{"--account", "x", "--name", "n", "--scope", "admin"}, "invalid --account"},
		{"missing name", []string{"--account", account, "--scope", "admin"}, "--name is required"},
		{"missing scope", []string{"--account", account, "--name", "n"}, "at least one --scope"},
		{"unknown scope", []string{"--account", account, "--name", "n", "--scope", "root"}, "unknown scope"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := h.run(t, append([]string{"apikey", "create"}, tt.args...)...)
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.want)
		})
	}
	assert.Zero(t, h.closed)
}

// ─── migrate ────────────────────────────────────────────────────────────────

func TestMigrate(t *testing.T) {
	h := newHarness(t)

	out, err := h.run(t, "migrate", "up")
	require.NoError(t, err)
	assert.Equal(t, "migrations applied\n", out)
	assert.Equal(t, []string{"postgres://test migrations"}, h.upCalls)

	_, err = h.run(t, "migrate", "down", "--steps", "2", "--dir", "db/migrations")
	require.NoError(t, err)
	assert.Equal(t, []int{2}, h.downSteps)

	_, err = h.run(t, "migrate", "down", "--steps", "0")
	require.Error(t, err)
}

func TestGeneratedKeyMatchesAuthPrefix(t *testing.T) {
	raw, key, err := mw.GenerateAPIKey(uuid.New(), "ci", []string{models.ScopePilot})
	require.NoError(t, err)
	assert.Equal(t, raw[:8], key.KeyPrefix)
}
