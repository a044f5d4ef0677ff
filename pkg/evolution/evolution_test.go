package evolution

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/require"
)

type recorded struct {
	method string
	path   string
	apikey string
	body   map[string]any
}

func newTestClient(t *testing.T, status int, response string) (*Client, *[]recorded) {
	t.Helper()

	var calls []recorded
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		rec := recorded{method: r.Method, path: r.URL.Path, apikey: r.Header.Get("apikey")}
		if r.Body != nil {
			_ = json.NewDecoder(r.Body).Decode(&rec.body)
		}
		calls = append(calls, rec)
		w.WriteHeader(status)
		_, _ = w.Write([]byte(response))
	}))
	t.Cleanup(srv.Close)

	client, err := NewClient(Config{APIURL: srv.URL + "/", APIKey: "secret", Instance: "solimi"})
	require.NoError(t, err)
	return client, &calls
}

func TestNewClientRequiresConfig(t *testing.T) {
	_, err := NewClient(Config{APIURL: "https://evo.example.com", APIKey: "k"})
	require.ErrorIs(t, err, ErrNotConfigured)

	_, err = NewClient(Config{APIURL: "not a url", APIKey: "k", Instance: "i"})
	require.Error(t, err)
}

func TestSendText(t *testing.T) {
	client, calls := newTestClient(t, http.StatusCreated, `{"key":{"id":"x"}}`)

	require.NoError(t, client.SendText(context.Background(), "22890123456", "Bonjour", 0))
	require.Len(t, *calls, 1)

	call := (*calls)[0]
	require.Equal(t, http.MethodPost, call.method)
	require.Equal(t, "/message/sendText/solimi", call.path)
	require.Equal(t, "secret", call.apikey)
	require.Equal(t, "22890123456", call.body["number"])
	require.Equal(t, "Bonjour", call.body["text"])
	require.EqualValues(t, DefaultTypingDelay, call.body["delay"])
}

func TestSendPresenceStripsJID(t *testing.T) {
	client, calls := newTestClient(t, http.StatusOK, ``)

	require.NoError(t, client.SendPresence(context.Background(), "22890123456@s.whatsapp.net", PresenceComposing))
	call := (*calls)[0]
	require.Equal(t, "/chat/sendPresence/solimi", call.path)
	require.Equal(t, "22890123456", call.body["number"])
	require.Equal(t, "composing", call.body["presence"])
}

func TestMarkAsRead(t *testing.T) {
	client, calls := newTestClient(t, http.StatusOK, `{}`)

	require.NoError(t, client.MarkAsRead(context.Background(), "228@s.whatsapp.net", "MSG1"))
	call := (*calls)[0]
	require.Equal(t, "/chat/markMessageAsRead/solimi", call.path)
	msgs := call.body["read_messages"].([]any)
	require.Len(t, msgs, 1)
	require.Equal(t, "MSG1", msgs[0].(map[string]any)["id"])
}

func TestMediaBase64(t *testing.T) {
	client, calls := newTestClient(t, http.StatusOK, `{"base64":"b2dn","mimetype":"audio/ogg; codecs=opus"}`)

	media, err := client.MediaBase64(context.Background(), MessageKey{RemoteJID: "228@s.whatsapp.net", ID: "MSG2"})
	require.NoError(t, err)
	require.Equal(t, "b2dn", media.Base64)
	require.Equal(t, "audio/ogg; codecs=opus", media.MimeType)
	require.Equal(t, "/chat/getBase64FromMediaMessage/solimi", (*calls)[0].path)
}

func TestConnectionState(t *testing.T) {
	client, calls := newTestClient(t, http.StatusOK, `{"instance":{"instanceName":"solimi","state":"open"}}`)

	state, err := client.ConnectionState(context.Background())
	require.NoError(t, err)
	require.Equal(t, "open", state)
	require.Equal(t, http.MethodGet, (*calls)[0].method)
}

func TestAPIErrorSurfacesStatus(t *testing.T) {
	client, _ := newTestClient(t, http.StatusUnauthorized, `{"error":"bad key"}`)

	err := client.SendText(context.Background(), "228", "x", 0)
	var apiErr *APIError
	require.True(t, errors.As(err, &apiErr))
	require.Equal(t, http.StatusUnauthorized, apiErr.Status)
}

func TestPayloadHelpers(t *testing.T) {
	var p Payload
	raw := `{
		"event": "MESSAGES_UPSERT",
		"instance": "solimi",
		"apikey": "hook-secret",
		"data": {
			"key": {"remoteJid": "22890123456@s.whatsapp.net", "fromMe": false, "id": "ABC"},
			"pushName": "Awa",
			"messageType": "imageMessage",
			"message": {"imageMessage": {"caption": "mon reçu", "mimetype": "image/jpeg"}}
		}
	}`
	require.NoError(t, json.Unmarshal([]byte(raw), &p))

	require.True(t, p.IsMessageUpsert())
	require.True(t, p.IsImage())
	require.False(t, p.IsAudio())
	require.Equal(t, "mon reçu", p.Text())
	require.Equal(t, "image/jpeg", p.MediaMimeType())
	require.Equal(t, "22890123456", PhoneNumber(p.Data.Key.RemoteJID))
	require.False(t, IsGroup(p.Data.Key.RemoteJID))
	require.True(t, IsGroup("120363@g.us"))
	require.Equal(t, "120363", PhoneNumber("120363@g.us"))
}

func TestPayloadTextPrecedence(t *testing.T) {
	p := Payload{Data: MessageData{Message: &MessageContent{
		Conversation:        "",
		ExtendedTextMessage: &ExtendedTextMessage{Text: "lien https://solimi.net"},
	}}}
	require.Equal(t, "lien https://solimi.net", p.Text())

	p.Data.Message = nil
	require.Empty(t, p.Text())
	require.False(t, (Payload{Event: "connection.update"}).IsMessageUpsert())
}
