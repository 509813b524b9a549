package kakao

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSearchKeyword_Success(t *testing.T) {
	t.Parallel()

	want := SearchResponse{
		Meta: Meta{TotalCount: 1, IsEnd: true},
		Documents: []Document{
			{
				ID:              "26853371",
				PlaceName:       "은혜교회",
				CategoryName:    "종교,사회단체 > 교회",
				Phone:           "02-555-1234",
				AddressName:     "서울 강남구 역삼동 123-4",
				RoadAddressName: "서울 강남구 테헤란로 123",
				PlaceURL:        "http://place.map.kakao.com/26853371",
			},
		},
	}

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodGet, r.Method)
		assert.Equal(t, "KakaoAK test-key", r.Header.Get("Authorization"))
		assert.Equal(t, "/v2/local/search/keyword.json", r.URL.Path)
		assert.Equal(t, "은혜교회", r.URL.Query().Get("query"))
		assert.Equal(t, "5", r.URL.Query().Get("size"))

		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(want)
	}))
	defer srv.Close()

	client := NewClient("test-key", WithBaseURL(srv.URL))
	got, err := client.SearchKeyword(context.Background(), "은혜교회", WithSize(5))

	require.NoError(t, err)
	require.Len(t, got.Documents, 1)
	assert.Equal(t, "02-555-1234", got.Documents[0].Phone)
	assert.Equal(t, "서울 강남구 테헤란로 123", got.Documents[0].RoadAddressName)
	assert.True(t, got.Meta.IsEnd)
}

func TestSearchKeyword_StatusError(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTooManyRequests)
		w.Write([]byte(`{"errorType":"RequestThrottled"}`))
	}))
	defer srv.Close()

	client := NewClient("test-key", WithBaseURL(srv.URL))
	_, err := client.SearchKeyword(context.Background(), "은혜교회")

	require.Error(t, err)
	var statusErr *StatusError
	require.True(t, errors.As(err, &statusErr))
	assert.Equal(t, http.StatusTooManyRequests, statusErr.Code)
}

func TestSearchKeyword_BadJSON(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{not json`))
	}))
	defer srv.Close()

	client := NewClient("test-key", WithBaseURL(srv.URL))
	_, err := client.SearchKeyword(context.Background(), "은혜교회")

	require.Error(t, err)
	assert.Contains(t, err.Error(), "unmarshal")
}
