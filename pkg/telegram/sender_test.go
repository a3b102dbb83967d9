package telegram

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeBotAPI serves just enough of the Bot API surface for the sender:
// getMe, sendMessage, sendPhoto and editMessageText.
type fakeBotAPI struct {
	nextMessageID int
	editError     string
	calls         []map[string]string
	methods       []string
}

func (f *fakeBotAPI) handler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		parts := strings.Split(r.URL.Path, "/")
		method := parts[len(parts)-1]
		f.methods = append(f.methods, method)

		_ = r.ParseForm()
		call := make(map[string]string)
		for k := range r.Form {
			call[k] = r.Form.Get(k)
		}
		f.calls = append(f.calls, call)

		w.Header().Set("Content-Type", "application/json")
		switch method {
		case "getMe":
			fmt.Fprint(w, `{"ok":true,"result":{"id":1,"is_bot":true,"first_name":"nw","username":"newswatch_bot"}}`)
		case "sendMessage", "sendPhoto":
			f.nextMessageID++
			fmt.Fprintf(w, `{"ok":true,"result":{"message_id":%d,"chat":{"id":42},"date":1}}`, f.nextMessageID)
		case "editMessageText":
			if f.editError != "" {
				fmt.Fprintf(w, `{"ok":false,"error_code":400,"description":"Bad Request: %s"}`, f.editError)
				return
			}
			fmt.Fprint(w, `{"ok":true,"result":{"message_id":7,"chat":{"id":42},"date":1}}`)
		default:
			fmt.Fprint(w, `{"ok":false,"error_code":404,"description":"Not Found"}`)
		}
	}
}

func newFakeSender(t *testing.T) (*BotSender, *fakeBotAPI) {
	t.Helper()
	fake := &fakeBotAPI{nextMessageID: 100}
	srv := httptest.NewServer(fake.handler())
	t.Cleanup(srv.Close)

	bot, err := tgbotapi.NewBotAPIWithAPIEndpoint("123:token", srv.URL+"/bot%s/%s")
	require.NoError(t, err)
	return NewBotSender(bot), fake
}

func TestBotSender_Send(t *testing.T) {
	sender, fake := newFakeSender(t)

	id, err := sender.Send(context.Background(), "@channel", "<b>hi</b>", true, "")
	require.NoError(t, err)
	assert.Equal(t, 101, id)

	last := fake.calls[len(fake.calls)-1]
	assert.Equal(t, "@channel", last["chat_id"])
	assert.Equal(t, "<b>hi</b>", last["text"])
	assert.Equal(t, "HTML", last["parse_mode"])
	assert.Equal(t, "true", last["disable_notification"])
}

func TestBotSender_SendPhoto(t *testing.T) {
	sender, fake := newFakeSender(t)

	_, err := sender.Send(context.Background(), "42", "caption", false, "https://img.example.com/x.png")
	require.NoError(t, err)

	assert.Equal(t, "sendPhoto", fake.methods[len(fake.methods)-1])
	last := fake.calls[len(fake.calls)-1]
	assert.Equal(t, "42", last["chat_id"])
	assert.Equal(t, "caption", last["caption"])
	assert.Equal(t, "https://img.example.com/x.png", last["photo"])
}

func TestBotSender_Edit(t *testing.T) {
	sender, fake := newFakeSender(t)

	id, err := sender.Edit(context.Background(), "@channel", 7, "updated")
	require.NoError(t, err)
	assert.Equal(t, 7, id)
	assert.Equal(t, "editMessageText", fake.methods[len(fake.methods)-1])

	// The edit must address the same chat and message it is revising.
	last := fake.calls[len(fake.calls)-1]
	assert.Equal(t, "@channel", last["chat_id"])
	assert.Equal(t, "7", last["message_id"])
	assert.Equal(t, "updated", last["text"])
	assert.Equal(t, "HTML", last["parse_mode"])
}

func TestBotSender_Edit_NumericChatID(t *testing.T) {
	sender, fake := newFakeSender(t)

	_, err := sender.Edit(context.Background(), "42", 7, "updated")
	require.NoError(t, err)
	last := fake.calls[len(fake.calls)-1]
	assert.Equal(t, "42", last["chat_id"])
}

func TestBotSender_Edit_FallsBackToSend(t *testing.T) {
	sender, fake := newFakeSender(t)
	fake.editError = "message can't be edited"

	id, err := sender.Edit(context.Background(), "@channel", 7, "updated")
	require.NoError(t, err)
	assert.Equal(t, 101, id, "fallback send allocates a fresh message id")
	assert.Equal(t, "sendMessage", fake.methods[len(fake.methods)-1])
}

func TestBotSender_Edit_OtherErrorSurfaces(t *testing.T) {
	sender, fake := newFakeSender(t)
	fake.editError = "chat not found"

	_, err := sender.Edit(context.Background(), "@channel", 7, "updated")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "chat not found")
}

func TestBotSender_CancelledContext(t *testing.T) {
	sender, _ := newFakeSender(t)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := sender.Send(ctx, "@channel", "x", false, "")
	require.Error(t, err)
	_, err = sender.Edit(ctx, "@channel", 1, "x")
	require.Error(t, err)
}
