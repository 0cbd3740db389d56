package notify

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"axle-monitor/core/internal/config"
	"axle-monitor/core/internal/domain"
)

func TestEmailSender_Send(t *testing.T) {
	var got emailRequest
	var auth string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/send", r.URL.Path)
		auth = r.Header.Get("Authorization")
		require.NoError(t, json.NewDecoder(r.Body).Decode(&got))
		w.WriteHeader(http.StatusAccepted)
	}))
	defer srv.Close()

	sender, err := NewEmailSender(config.NotificationConfig{
		EmailBaseURL: srv.URL,
		EmailAPIKey:  "secret",
		EmailSender:  "alerts@rail.in",
		SendTimeout:  time.Second,
	})
	require.NoError(t, err)

	err = sender.Send(context.Background(), "asha@rail.in", TemplateMaintenanceUpcoming, map[string]string{
		"UserName": "Asha", "DeviceName": "HBD-01", "Location": "Itarsi", "Date": "09/08/2024",
	})
	require.NoError(t, err)

	assert.Equal(t, "Bearer secret", auth)
	assert.Equal(t, "alerts@rail.in", got.From)
	assert.Equal(t, "asha@rail.in", got.To)
	assert.Equal(t, "Upcoming maintenance", got.Subject)
	assert.Contains(t, got.HTML, "Hi Asha")
	assert.Contains(t, got.HTML, "HBD-01")
	assert.Contains(t, got.HTML, "09/08/2024")
}

func TestEmailSender_GatewayError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
	}))
	defer srv.Close()

	sender, err := NewEmailSender(config.NotificationConfig{EmailBaseURL: srv.URL})
	require.NoError(t, err)

	err = sender.Send(context.Background(), "a@b.c", TemplateMaintenanceUpcoming, map[string]string{})
	assert.True(t, errors.Is(err, domain.ErrUpstreamUnavailable))

	err = sender.Send(context.Background(), "", TemplateMaintenanceUpcoming, nil)
	assert.True(t, errors.Is(err, domain.ErrInvalidInput))

	err = sender.Send(context.Background(), "a@b.c", "missing", nil)
	assert.Error(t, err)
}
