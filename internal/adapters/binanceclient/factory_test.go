package binanceclient

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"gridBot/internal/adapters/pricefeed"
	"gridBot/internal/adapters/vault"
	"gridBot/internal/domain"
	"gridBot/internal/ports"
)

func TestFactory_NewGateway(t *testing.T) {
	v, err := vault.New("passphrase")
	require.NoError(t, err)
	blob, err := v.Seal(vault.Credentials{APIKey: "key", APISecret: "secret"})
	require.NoError(t, err)

	f, err := NewFactory(v, &mockLogger{}, FactoryConfig{})
	require.NoError(t, err)
	ctx := context.Background()

	tests := []struct {
		name        string
		bot         *domain.Bot
		wantBaseURL string
		wantKeys    bool
	}{
		{name: "demo without keys uses production data", bot: &domain.Bot{ID: "a", Mode: domain.ModeDemo}, wantBaseURL: baseURLProduction},
		{name: "demo with keys uses testnet", bot: &domain.Bot{ID: "b", Mode: domain.ModeDemo, Credentials: blob}, wantBaseURL: baseURLTestnet, wantKeys: true},
		{name: "real uses production", bot: &domain.Bot{ID: "c", Mode: domain.ModeReal, Credentials: blob}, wantBaseURL: baseURLProduction, wantKeys: true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			gw, err := f.NewGateway(ctx, tt.bot)
			require.NoError(t, err)
			client, ok := gw.(*Client)
			require.True(t, ok)
			assert.Equal(t, tt.wantBaseURL, client.spotClient.BaseURL)
			assert.Equal(t, tt.wantKeys, client.hasKeys)
		})
	}
}

func TestFactory_CredentialFailures(t *testing.T) {
	ctx := context.Background()
	bot := &domain.Bot{ID: "a", Mode: domain.ModeReal, Credentials: "garbage"}

	noVault, err := NewFactory(nil, &mockLogger{}, FactoryConfig{})
	require.NoError(t, err)
	_, err = noVault.NewGateway(ctx, bot)
	assert.ErrorIs(t, err, ports.ErrCredentials)

	v, err := vault.New("passphrase")
	require.NoError(t, err)
	withVault, err := NewFactory(v, &mockLogger{}, FactoryConfig{})
	require.NoError(t, err)
	_, err = withVault.NewGateway(ctx, bot)
	assert.ErrorIs(t, err, ports.ErrCredentials)
}

func TestFactory_PollingFeed(t *testing.T) {
	f, err := NewFactory(nil, &mockLogger{}, FactoryConfig{PollInterval: time.Second})
	require.NoError(t, err)

	gw, err := f.NewGateway(context.Background(), &domain.Bot{ID: "a", Mode: domain.ModeDemo})
	require.NoError(t, err)
	_, ok := gw.(*pricefeed.Poller)
	assert.True(t, ok)
}

func TestNewFactory_RequiresLogger(t *testing.T) {
	_, err := NewFactory(nil, nil, FactoryConfig{})
	assert.Error(t, err)
}
