package audioapi

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMockModeDeterminism(t *testing.T) {
	c := New("")
	require.True(t, c.MockMode())

	a, err := c.GetAudioFeatures(context.Background(), "track_0000001")
	require.NoError(t, err)
	b, err := c.GetAudioFeatures(context.Background(), "track_0000001")
	require.NoError(t, err)
	assert.Equal(t, a, b, "mock features are stable per track")

	other, err := c.GetAudioFeatures(context.Background(), "track_0000002")
	require.NoError(t, err)
	assert.NotEqual(t, a.Tempo, other.Tempo)
}

func TestMockFeatureRanges(t *testing.T) {
	for i := 0; i < 50; i++ {
		f := mockFeatures(fmt.Sprintf("track_%07d", i))
		assert.GreaterOrEqual(t, f.Tempo, 60.0)
		assert.LessOrEqual(t, f.Tempo, 180.0)
		assert.GreaterOrEqual(t, f.Energy, 0.0)
		assert.LessOrEqual(t, f.Energy, 1.0)
		assert.GreaterOrEqual(t, f.Loudness, -20.0)
		assert.LessOrEqual(t, f.Loudness, 0.0)
		assert.GreaterOrEqual(t, f.Key, 0)
		assert.Less(t, f.Key, 12)
		assert.GreaterOrEqual(t, f.DurationMs, 150000)
		assert.LessOrEqual(t, f.DurationMs, 300000)
	}
}

func featuresJSON(trackIDs []string) string {
	parts := make([]string, len(trackIDs))
	for i, id := range trackIDs {
		parts[i] = fmt.Sprintf(`{"track_id": %q, "tempo": 120, "energy": 0.5}`, id)
	}
	return fmt.Sprintf(`{"audio_features": [%s]}`, strings.Join(parts, ","))
}

func TestGetAudioFeaturesBatch(t *testing.T) {
	var requests int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&requests, 1)
		assert.Equal(t, "Bearer secret", r.Header.Get("Authorization"))

		ids := strings.Split(r.URL.Query().Get("ids"), ",")
		assert.LessOrEqual(t, len(ids), 100)
		fmt.Fprint(w, featuresJSON(ids))
	}))
	defer srv.Close()

	c := New("secret", WithBaseURL(srv.URL), WithHTTPClient(srv.Client()))
	require.False(t, c.MockMode())

	ids := make([]string, 150)
	for i := range ids {
		ids[i] = fmt.Sprintf("track_%07d", i)
	}

	features, err := c.GetAudioFeaturesBatch(context.Background(), ids)
	require.NoError(t, err)
	assert.Len(t, features, 150)
	assert.Equal(t, int32(2), atomic.LoadInt32(&requests), "150 tracks split into two batches")
	assert.Equal(t, "track_0000000", features[0].TrackID)
	assert.Equal(t, 120.0, features[0].Tempo)
}

func TestRetryOnServerError(t *testing.T) {
	var requests int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if atomic.AddInt32(&requests, 1) < 3 {
			http.Error(w, "upstream flaked", http.StatusBadGateway)
			return
		}
		ids := strings.Split(r.URL.Query().Get("ids"), ",")
		fmt.Fprint(w, featuresJSON(ids))
	}))
	defer srv.Close()

	c := New("secret", WithBaseURL(srv.URL), WithHTTPClient(srv.Client()))
	features, err := c.GetAudioFeaturesBatch(context.Background(), []string{"t1"})
	require.NoError(t, err)
	assert.Len(t, features, 1)
	assert.Equal(t, int32(3), atomic.LoadInt32(&requests))
}

func TestNoRetryOnClientError(t *testing.T) {
	var requests int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&requests, 1)
		http.Error(w, "bad token", http.StatusUnauthorized)
	}))
	defer srv.Close()

	c := New("wrong", WithBaseURL(srv.URL), WithHTTPClient(srv.Client()))
	_, err := c.GetAudioFeaturesBatch(context.Background(), []string{"t1"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "401")
	assert.Equal(t, int32(1), atomic.LoadInt32(&requests), "4xx responses are not retried")
}

func TestGetAudioFeaturesEmptyResponse(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `{"audio_features": []}`)
	}))
	defer srv.Close()

	c := New("secret", WithBaseURL(srv.URL), WithHTTPClient(srv.Client()))
	_, err := c.GetAudioFeatures(context.Background(), "t1")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "no audio features returned")
}

func TestTruncate(t *testing.T) {
	assert.Equal(t, "short", truncate("short", 10))
	assert.Equal(t, "abcde...", truncate("abcdefgh", 5))
}
