package handlers

import (
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/require"

	"github.com/hlsgate/hlsgate/internal/manifest"
	"github.com/hlsgate/hlsgate/internal/store"
	"github.com/hlsgate/hlsgate/internal/token"
	"github.com/hlsgate/hlsgate/internal/upstream"
)

type fetchFixture struct {
	handler *FetchHandler
	store   *store.Store
	codec   *token.Codec
	router  *gin.Engine
}

func newFetchFixture(t *testing.T, now *time.Time) *fetchFixture {
	t.Helper()
	gin.SetMode(gin.TestMode)

	clock := time.Now
	if now != nil {
		clock = func() time.Time { return *now }
	}

	st := store.New(store.WithNow(clock))
	codec, err := token.NewCodec([]byte("test-secret"), token.WithNow(clock))
	require.NoError(t, err)

	rewriter, err := manifest.NewRewriter(st, codec)
	require.NoError(t, err)

	handler, err := NewFetchHandler(rewriter, st, codec, upstream.NewClient(time.Second))
	require.NoError(t, err)

	r := gin.New()
	r.GET("/fetch/", handler.Manifest)
	r.GET("/fetch/segment/resource", handler.Segment)
	r.GET("/fetch/image", handler.Image)

	return &fetchFixture{handler: handler, store: st, codec: codec, router: r}
}

func (f *fetchFixture) get(path string) *httptest.ResponseRecorder {
	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, path, nil)
	f.router.ServeHTTP(rec, req)
	return rec
}

func newOriginServer(t *testing.T) *httptest.Server {
	t.Helper()

	mux := http.NewServeMux()
	mux.HandleFunc("/path/index.m3u8", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/vnd.apple.mpegurl")
		_, _ = w.Write([]byte("#EXTM3U\n#EXTINF:10,\nseg1.ts\n"))
	})
	mux.HandleFunc("/path/seg1.ts", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "video/mp2t")
		_, _ = w.Write([]byte("seg1-bytes"))
	})
	mux.HandleFunc("/poster.jpg", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "image/jpeg")
		_, _ = w.Write([]byte("jpeg-bytes"))
	})

	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)
	return srv
}

func TestManifestRequiresURLParam(t *testing.T) {
	fx := newFetchFixture(t, nil)

	rec := fx.get("/fetch/")
	require.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestManifestRewritesPlaylist(t *testing.T) {
	origin := newOriginServer(t)
	fx := newFetchFixture(t, nil)

	rec := fx.get("/fetch/?url=" + url.QueryEscape(origin.URL+"/path/index.m3u8"))
	require.Equal(t, http.StatusOK, rec.Code)
	require.Equal(t, manifest.ContentType, rec.Header().Get("Content-Type"))

	lines := strings.Split(rec.Body.String(), "\n")
	require.Equal(t, "#EXTM3U", lines[0])
	require.Equal(t, "#EXTINF:10,", lines[1])
	require.True(t, strings.HasPrefix(lines[2], manifest.ResolvePath+"?"))

	// The minted entry resolves back to the origin segment.
	signed, err := url.Parse(lines[2])
	require.NoError(t, err)
	remote, ok := fx.store.Get(signed.Query().Get("resourceId"))
	require.True(t, ok)
	require.Equal(t, origin.URL+"/path/seg1.ts", remote)
}

func TestManifestPassesThroughNonPlaylist(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte("just some text"))
	}))
	t.Cleanup(srv.Close)

	fx := newFetchFixture(t, nil)
	rec := fx.get("/fetch/?url=" + url.QueryEscape(srv.URL))

	require.Equal(t, http.StatusOK, rec.Code)
	require.Equal(t, "just some text", rec.Body.String())
	require.Contains(t, rec.Header().Get("Content-Type"), "text/plain")
}

func TestManifestUpstreamFailure(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "nope", http.StatusBadGateway)
	}))
	t.Cleanup(srv.Close)

	fx := newFetchFixture(t, nil)
	rec := fx.get("/fetch/?url=" + url.QueryEscape(srv.URL))

	require.Equal(t, http.StatusInternalServerError, rec.Code)
	require.Contains(t, rec.Body.String(), "UPSTREAM_FAILURE")
}

func TestSegmentResolutionRoundTrip(t *testing.T) {
	origin := newOriginServer(t)
	fx := newFetchFixture(t, nil)

	rec := fx.get("/fetch/?url=" + url.QueryEscape(origin.URL+"/path/index.m3u8"))
	require.Equal(t, http.StatusOK, rec.Code)

	lines := strings.Split(rec.Body.String(), "\n")
	segRec := fx.get(lines[2])

	require.Equal(t, http.StatusOK, segRec.Code)
	require.Equal(t, "seg1-bytes", segRec.Body.String())
	require.Equal(t, "video/mp2t", segRec.Header().Get("Content-Type"))
}

func TestSegmentRequiresAllParams(t *testing.T) {
	fx := newFetchFixture(t, nil)

	for _, path := range []string{
		"/fetch/segment/resource",
		"/fetch/segment/resource?resourceId=a",
		"/fetch/segment/resource?resourceId=a&sig=b",
		"/fetch/segment/resource?sig=b&exp=1",
	} {
		rec := fx.get(path)
		require.Equal(t, http.StatusBadRequest, rec.Code, "path %s", path)
		require.Contains(t, rec.Body.String(), "BAD_REQUEST")
	}
}

func TestSegmentRejectsInvalidSignature(t *testing.T) {
	fx := newFetchFixture(t, nil)

	fx.store.Put("resource-1", "http://origin.example/seg1.ts")
	tok := fx.codec.Mint("resource-1", token.KindSegment)

	q := tok.Query()
	q.Set("sig", strings.Repeat("0", 64))

	rec := fx.get("/fetch/segment/resource?" + q.Encode())
	require.Equal(t, http.StatusBadRequest, rec.Code)
	require.Contains(t, rec.Body.String(), "SIGNATURE_INVALID")
}

func TestSegmentRejectsExpiredTokenUniformly(t *testing.T) {
	now := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	fx := newFetchFixture(t, &now)

	fx.store.Put("resource-1", "http://origin.example/seg1.ts")
	tok := fx.codec.Mint("resource-1", token.KindSegment)

	now = now.Add(token.DefaultValidity + time.Minute)

	rec := fx.get("/fetch/segment/resource?" + tok.Query().Encode())
	require.Equal(t, http.StatusBadRequest, rec.Code)
	// Same code as a tampered signature; the cause is not disclosed.
	require.Contains(t, rec.Body.String(), "SIGNATURE_INVALID")
}

func TestSegmentUnknownResourceIsNotFound(t *testing.T) {
	fx := newFetchFixture(t, nil)

	// Correctly signed token whose identifier was never inserted.
	tok := fx.codec.Mint("never-inserted", token.KindSegment)

	rec := fx.get("/fetch/segment/resource?" + tok.Query().Encode())
	require.Equal(t, http.StatusNotFound, rec.Code)
	require.Contains(t, rec.Body.String(), "NOT_FOUND")
}

func TestSegmentExpiredStoreEntryIsNotFound(t *testing.T) {
	now := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	fx := newFetchFixture(t, &now)

	fx.store.Put("resource-1", "http://origin.example/seg1.ts")
	// Token minted late enough to outlive the store entry.
	now = now.Add(store.DefaultTTL - time.Minute)
	tok := fx.codec.Mint("resource-1", token.KindSegment)
	now = now.Add(2 * time.Minute)

	rec := fx.get("/fetch/segment/resource?" + tok.Query().Encode())
	require.Equal(t, http.StatusNotFound, rec.Code)
}

func TestSegmentUpstreamFailure(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "gone", http.StatusInternalServerError)
	}))
	t.Cleanup(srv.Close)

	fx := newFetchFixture(t, nil)
	fx.store.Put("resource-1", srv.URL+"/seg1.ts")
	tok := fx.codec.Mint("resource-1", token.KindSegment)

	rec := fx.get("/fetch/segment/resource?" + tok.Query().Encode())
	require.Equal(t, http.StatusInternalServerError, rec.Code)
	require.Contains(t, rec.Body.String(), "UPSTREAM_FAILURE")
}

func TestSegmentDefaultsContentType(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		// Suppress Go's content sniffing so no Content-Type is sent.
		w.Header()["Content-Type"] = nil
		_, _ = w.Write([]byte{0x47, 0x00})
	}))
	t.Cleanup(srv.Close)

	fx := newFetchFixture(t, nil)
	fx.store.Put("resource-1", srv.URL)
	tok := fx.codec.Mint("resource-1", token.KindSegment)

	rec := fx.get("/fetch/segment/resource?" + tok.Query().Encode())
	require.Equal(t, http.StatusOK, rec.Code)
	require.Equal(t, binaryContentType, rec.Header().Get("Content-Type"))
}

func TestImageProxyMirrorsUpstream(t *testing.T) {
	origin := newOriginServer(t)
	fx := newFetchFixture(t, nil)

	rec := fx.get("/fetch/image?url=" + url.QueryEscape(origin.URL+"/poster.jpg"))
	require.Equal(t, http.StatusOK, rec.Code)
	require.Equal(t, "jpeg-bytes", rec.Body.String())
	require.Equal(t, "image/jpeg", rec.Header().Get("Content-Type"))
}

func TestImageRequiresURLParam(t *testing.T) {
	fx := newFetchFixture(t, nil)

	rec := fx.get("/fetch/image")
	require.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestImageForwardsRefererOverride(t *testing.T) {
	var gotReferer string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotReferer = r.Header.Get("Referer")
	}))
	t.Cleanup(srv.Close)

	fx := newFetchFixture(t, nil)
	rec := fx.get("/fetch/image?url=" + url.QueryEscape(srv.URL) + "&ref=" + url.QueryEscape("http://gallery.example/"))

	require.Equal(t, http.StatusOK, rec.Code)
	require.Equal(t, "http://gallery.example/", gotReferer)
}
