package app

import (
	"context"
	"testing"

	"github.com/spf13/viper"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pwieczorek/newsrelay/internal/config"
	"github.com/pwieczorek/newsrelay/internal/notify"
)

func resetViper(t *testing.T) {
	t.Helper()
	viper.Reset()
	t.Cleanup(viper.Reset)
	config.SetDefaults(viper.GetViper())
	viper.Set("source.categories", []map[string]any{
		{"path": "ekonomia", "name": "Ekonomia"},
	})
}

func TestNewApp_MemoryProviders(t *testing.T) {
	resetViper(t)

	a, err := NewApp(context.Background())
	require.NoError(t, err)
	defer a.Close()

	assert.NotNil(t, a.GetLogger())
	assert.NotNil(t, a.GetStore())
	assert.NotNil(t, a.GetPublisher())
	assert.NotNil(t, a.GetConsumer())
	assert.NotNil(t, a.GetNotifier())
	assert.Equal(t, "memory", a.GetConfig().Queue.Provider)

	// Without a Telegram token the notifier only logs.
	_, isLog := a.GetNotifier().(*logNotifier)
	assert.True(t, isLog)
}

func TestNewApp_RejectsInvalidConfig(t *testing.T) {
	resetViper(t)
	viper.Set("crawler.max_concurrent_fetches", -1)

	_, err := NewApp(context.Background())
	require.Error(t, err)
}

func TestNewApp_TelegramNotifier(t *testing.T) {
	resetViper(t)
	viper.Set("telegram.token", "secret")
	viper.Set("telegram.chat_id", "-1002745773579")

	a, err := NewApp(context.Background())
	require.NoError(t, err)
	defer a.Close()

	_, isLog := a.GetNotifier().(*logNotifier)
	assert.False(t, isLog)
}

func TestLogNotifier_Delivers(t *testing.T) {
	resetViper(t)
	a, err := NewApp(context.Background())
	require.NoError(t, err)
	defer a.Close()

	require.NoError(t, a.GetNotifier().Deliver(context.Background(), notify.Message{Text: "test"}))
}
