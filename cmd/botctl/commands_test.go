package main

import (
	"bytes"
	"context"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"gridBot/config"
	"gridBot/internal/adapters/sqlite"
	"gridBot/internal/adapters/vault"
	"gridBot/internal/domain"
	"gridBot/internal/ports"
)

func testConfig(t *testing.T) *config.Config {
	t.Helper()
	return &config.Config{
		DBPath:         filepath.Join(t.TempDir(), "bots.db"),
		CredentialsKey: "test passphrase",
	}
}

func runCmd(t *testing.T, cfg *config.Config, command string, args ...string) (string, error) {
	t.Helper()
	var out bytes.Buffer
	err := run(context.Background(), cfg, command, args, &out)
	return out.String(), err
}

func TestBotctl_CreateListExportDelete(t *testing.T) {
	cfg := testConfig(t)

	out, err := runCmd(t, cfg, "create", "-name", "btc grid", "-symbol", "BTC/USDT", "-capital", "500")
	require.NoError(t, err)
	botID := strings.TrimSpace(out)
	require.NotEmpty(t, botID)

	out, err = runCmd(t, cfg, "list")
	require.NoError(t, err)
	assert.Contains(t, out, "btc grid")
	assert.Contains(t, out, "BTC/USDT")
	assert.Contains(t, out, "500.00")

	out, err = runCmd(t, cfg, "show", "-bot", botID)
	require.NoError(t, err)
	assert.Contains(t, out, "Recent logs")

	out, err = runCmd(t, cfg, "set-active", "-bot", botID, "-active=false")
	require.NoError(t, err)
	assert.Contains(t, out, "active=false")

	out, err = runCmd(t, cfg, "export", "-bot", botID)
	require.NoError(t, err)
	assert.Equal(t, "timestamp,id,symbol,side,amount,price,total,profit,order_id\n", out)

	_, err = runCmd(t, cfg, "delete", "-bot", botID)
	require.NoError(t, err)
	_, err = runCmd(t, cfg, "show", "-bot", botID)
	assert.ErrorIs(t, err, ports.ErrNotFound)
}

func TestBotctl_CreateValidation(t *testing.T) {
	cfg := testConfig(t)

	_, err := runCmd(t, cfg, "create", "-mode", "paper", "-symbol", "BTCUSDT", "-capital", "0")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "mode must be DEMO or REAL")
	assert.Contains(t, err.Error(), "symbol must look like BASE/QUOTE")
	assert.Contains(t, err.Error(), "capital must be positive")
}

func TestBotctl_CreateWithCredentials(t *testing.T) {
	cfg := testConfig(t)

	_, err := runCmd(t, cfg, "create", "-name", "real", "-mode", "real", "-key", "k", "-secret", "s")
	require.NoError(t, err)

	cfg.CredentialsKey = ""
	_, err = runCmd(t, cfg, "create", "-name", "real", "-mode", "real", "-key", "k", "-secret", "s")
	assert.ErrorIs(t, err, ports.ErrConfigurationError)
}

func TestBotctl_Seal(t *testing.T) {
	cfg := testConfig(t)

	out, err := runCmd(t, cfg, "seal", "-key", "api-key", "-secret", "api-secret")
	require.NoError(t, err)

	v, err := vault.New(cfg.CredentialsKey)
	require.NoError(t, err)
	creds, err := v.Open(strings.TrimSpace(out))
	require.NoError(t, err)
	assert.Equal(t, "api-key", creds.APIKey)
}

func TestBotctl_UnknownCommand(t *testing.T) {
	_, err := runCmd(t, testConfig(t), "explode")
	assert.Error(t, err)
}

type discardLogger struct{}

func (discardLogger) Debug(ctx context.Context, msg string, fields ...map[string]interface{}) {}
func (discardLogger) Info(ctx context.Context, msg string, fields ...map[string]interface{})  {}
func (discardLogger) Warn(ctx context.Context, msg string, fields ...map[string]interface{})  {}
func (discardLogger) Error(ctx context.Context, err error, msg string, fields ...map[string]interface{}) {
}

func openRepo(t *testing.T, cfg *config.Config) *sqlite.Repository {
	t.Helper()
	repo, err := sqlite.NewRepository(sqlite.Config{DBPath: cfg.DBPath, Logger: discardLogger{}})
	require.NoError(t, err)
	t.Cleanup(func() { repo.Close() })
	return repo
}

func botStatus(t *testing.T, cfg *config.Config, botID string) domain.BotStatus {
	t.Helper()
	bot, err := openRepo(t, cfg).GetBot(context.Background(), botID)
	require.NoError(t, err)
	return bot.Status
}

func TestBotctl_CreateStatus(t *testing.T) {
	cfg := testConfig(t)

	out, err := runCmd(t, cfg, "create", "-name", "idle")
	require.NoError(t, err)
	assert.Equal(t, domain.BotIdle, botStatus(t, cfg, strings.TrimSpace(out)))

	out, err = runCmd(t, cfg, "create", "-name", "live", "-start")
	require.NoError(t, err)
	assert.Equal(t, domain.BotRunning, botStatus(t, cfg, strings.TrimSpace(out)))
}

func TestBotctl_StartStop(t *testing.T) {
	cfg := testConfig(t)
	out, err := runCmd(t, cfg, "create", "-name", "btc grid")
	require.NoError(t, err)
	botID := strings.TrimSpace(out)

	out, err = runCmd(t, cfg, "start", "-bot", botID)
	require.NoError(t, err)
	assert.Contains(t, out, "marked RUNNING")
	assert.Equal(t, domain.BotRunning, botStatus(t, cfg, botID))

	out, err = runCmd(t, cfg, "stop", "-bot", botID)
	require.NoError(t, err)
	assert.Contains(t, out, "marked STOPPED")
	assert.Equal(t, domain.BotStopped, botStatus(t, cfg, botID))

	_, err = runCmd(t, cfg, "start", "-bot", "missing")
	assert.ErrorIs(t, err, ports.ErrNotFound)
	_, err = runCmd(t, cfg, "stop")
	assert.Error(t, err)
}

func TestBotctl_Close(t *testing.T) {
	cfg := testConfig(t)
	out, err := runCmd(t, cfg, "create", "-name", "btc grid", "-start")
	require.NoError(t, err)
	botID := strings.TrimSpace(out)

	ctx := context.Background()
	repo := openRepo(t, cfg)
	pos := &domain.Position{
		BotID: botID, Symbol: "BTC/USDT", Amount: 1, EntryPrice: 100,
		Status: domain.StatusOpen, CreatedAt: time.Now(),
	}
	require.NoError(t, repo.RunInTransaction(ctx, func(tx ports.Tx) error {
		return tx.CreatePosition(ctx, pos)
	}))

	out, err = runCmd(t, cfg, "close", "-bot", botID, "-position", pos.ID)
	require.NoError(t, err)
	assert.Contains(t, out, "close of position "+pos.ID+" requested")

	requests, err := repo.ListCloseRequests(ctx)
	require.NoError(t, err)
	require.Len(t, requests, 1)
	assert.Equal(t, pos.ID, requests[0].ID)

	_, err = runCmd(t, cfg, "close", "-bot", "other", "-position", pos.ID)
	assert.ErrorIs(t, err, ports.ErrNotFound)
	_, err = runCmd(t, cfg, "close", "-bot", botID)
	assert.Error(t, err)
}
