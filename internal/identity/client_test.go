package identity

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"chat-sync/internal/apperrors"
)

func TestExchangeSuccess(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "code-1", r.URL.Query().Get("js_code"))
		assert.Equal(t, "app", r.URL.Query().Get("appid"))
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"openid":"o-alice","nickname":"Alice"}`))
	}))
	defer srv.Close()

	client := NewClient(srv.URL, "app", "secret", time.Second)
	res, err := client.Exchange(context.Background(), "code-1")
	require.NoError(t, err)
	assert.Equal(t, "o-alice", res.Identity)
	assert.Equal(t, "Alice", res.DisplayName)
}

func TestExchangeFailures(t *testing.T) {
	cases := map[string]http.HandlerFunc{
		"provider error": func(w http.ResponseWriter, r *http.Request) {
			w.Write([]byte(`{"errcode":40029,"errmsg":"invalid code"}`))
		},
		"bad status": func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusBadGateway)
		},
		"no identity": func(w http.ResponseWriter, r *http.Request) {
			w.Write([]byte(`{}`))
		},
		"bad body": func(w http.ResponseWriter, r *http.Request) {
			w.Write([]byte(`not json`))
		},
	}

	for name, handler := range cases {
		t.Run(name, func(t *testing.T) {
			srv := httptest.NewServer(handler)
			defer srv.Close()

			_, err := NewClient(srv.URL, "app", "secret", time.Second).Exchange(context.Background(), "code")
			require.Error(t, err)
			assert.Equal(t, apperrors.ErrCodeIdentityResolution, apperrors.GetCode(err))
		})
	}
}

func TestExchangeEmptyCode(t *testing.T) {
	_, err := NewClient("http://unused", "", "", time.Second).Exchange(context.Background(), "")
	assert.Equal(t, apperrors.ErrCodeIdentityResolution, apperrors.GetCode(err))
}
