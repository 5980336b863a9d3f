package email_test

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/MrJamesThe3rd/klubb/internal/email"
)

func TestClient_Send(t *testing.T) {
	var got map[string]any

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "Zoho-enczapikey secret", r.Header.Get("Authorization"))
		require.NoError(t, json.NewDecoder(r.Body).Decode(&got))
		w.WriteHeader(http.StatusAccepted)
	}))
	defer srv.Close()

	c := email.NewClient(srv.URL, "Zoho-enczapikey secret", "kasserer@klubb.no")

	err := c.Send(context.Background(), email.Message{
		To:       "kari@example.com",
		Name:     "Kari",
		Subject:  "Ny betalingsforespørsel",
		HTMLBody: "<p>Hei</p>",
	})
	require.NoError(t, err)

	assert.Equal(t, "Ny betalingsforespørsel", got["subject"])
	assert.Equal(t, "<p>Hei</p>", got["htmlbody"])

	to := got["to"].([]any)[0].(map[string]any)["email_address"].(map[string]any)
	assert.Equal(t, "kari@example.com", to["address"])
	assert.Equal(t, "Kari", to["name"])
}

func TestClient_SendErrorStatus(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		http.Error(w, `{"error":"invalid key"}`, http.StatusUnauthorized)
	}))
	defer srv.Close()

	c := email.NewClient(srv.URL, "bad", "kasserer@klubb.no")

	err := c.Send(context.Background(), email.Message{To: "kari@example.com"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "401")
	assert.Contains(t, err.Error(), "invalid key")
}
