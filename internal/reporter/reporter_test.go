package reporter

import (
	"errors"
	"strings"
	"testing"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeSender struct {
	sent []tgbotapi.MessageConfig
	err  error
}

func (f *fakeSender) Send(c tgbotapi.Chattable) (tgbotapi.Message, error) {
	f.sent = append(f.sent, c.(tgbotapi.MessageConfig))
	return tgbotapi.Message{}, f.err
}

func TestReporter_Notify(t *testing.T) {
	s := &fakeSender{}
	r := &Reporter{bot: s, adminID: 42, prefix: "cryptonews"}

	r.Notifyf("source %d failed: %v", 7, errors.New("timeout"))

	require.Len(t, s.sent, 1)
	assert.Equal(t, int64(42), s.sent[0].ChatID)
	assert.Equal(t, "[cryptonews] source 7 failed: timeout", s.sent[0].Text)
}

func TestReporter_Truncates(t *testing.T) {
	s := &fakeSender{}
	r := &Reporter{bot: s, adminID: 1, prefix: "p"}

	r.Notify(strings.Repeat("x", 5000))

	require.Len(t, s.sent, 1)
	assert.Len(t, s.sent[0].Text, maxMessageLen)
	assert.True(t, strings.HasSuffix(s.sent[0].Text, "..."))
}

func TestReporter_NilSafe(t *testing.T) {
	var r *Reporter
	assert.NotPanics(t, func() { r.Notify("x") })

	s := &fakeSender{}
	(&Reporter{bot: s}).Notify("no admin")
	assert.Empty(t, s.sent)

	r, err := FromToken("", 1)
	require.NoError(t, err)
	assert.Nil(t, r)
}
