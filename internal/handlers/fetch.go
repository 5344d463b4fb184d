package handlers

import (
	"fmt"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/hlsgate/hlsgate/internal/manifest"
	"github.com/hlsgate/hlsgate/internal/store"
	"github.com/hlsgate/hlsgate/internal/token"
	"github.com/hlsgate/hlsgate/internal/upstream"
	appErrors "github.com/hlsgate/hlsgate/pkg/errors"
	"github.com/hlsgate/hlsgate/pkg/logger"
	"github.com/hlsgate/hlsgate/pkg/metrics"
	"github.com/hlsgate/hlsgate/pkg/response"
)

const binaryContentType = "application/octet-stream"

// FetchHandler serves manifest rewriting, signed segment resolution, and the
// unsigned image proxy.
type FetchHandler struct {
	rewriter *manifest.Rewriter
	store    *store.Store
	codec    *token.Codec
	client   *upstream.Client
	log      *zap.Logger
}

// NewFetchHandler wires the handler over the shared core components.
func NewFetchHandler(rw *manifest.Rewriter, st *store.Store, codec *token.Codec, client *upstream.Client) (*FetchHandler, error) {
	if rw == nil {
		return nil, fmt.Errorf("handlers: rewriter must be provided")
	}
	if st == nil {
		return nil, fmt.Errorf("handlers: store must be provided")
	}
	if codec == nil {
		return nil, fmt.Errorf("handlers: token codec must be provided")
	}
	if client == nil {
		return nil, fmt.Errorf("handlers: upstream client must be provided")
	}

	return &FetchHandler{
		rewriter: rw,
		store:    st,
		codec:    codec,
		client:   client,
		log:      logger.WithModule("fetch"),
	}, nil
}

// Manifest fetches a remote playlist and rewrites its segment references into
// signed local URLs. Bodies that are not recognised as playlists pass through
// unchanged as plain text.
func (h *FetchHandler) Manifest(c *gin.Context) {
	remoteURL := c.Query("url")
	if remoteURL == "" {
		response.Error(c, appErrors.NewBadRequest("url query parameter is required"))
		return
	}

	start := time.Now()
	res, err := h.client.Fetch(c.Request.Context(), remoteURL, c.Query("ref"))
	metrics.UpstreamLatency.WithLabelValues("manifest").Observe(time.Since(start).Seconds())
	if err != nil {
		metrics.ManifestRewrites.WithLabelValues("error").Inc()
		h.log.Warn("manifest fetch failed", zap.String("url", remoteURL), zap.Error(err))
		response.Error(c, appErrors.ErrUpstreamFailure.WithInternal(err))
		return
	}

	body, rewritten := h.rewriter.Rewrite(string(res.Body), remoteURL)
	if !rewritten {
		metrics.ManifestRewrites.WithLabelValues("passthrough").Inc()
		c.Data(http.StatusOK, "text/plain", []byte(body))
		return
	}

	metrics.ManifestRewrites.WithLabelValues("rewritten").Inc()
	c.Data(http.StatusOK, manifest.ContentType, []byte(body))
}

// Segment resolves a signed segment URL back to its remote resource and
// streams the bytes. Expired and tampered tokens are rejected identically so
// the response never reveals which check failed.
func (h *FetchHandler) Segment(c *gin.Context) {
	resourceID := c.Query("resourceId")
	sig := c.Query("sig")
	exp := c.Query("exp")
	if resourceID == "" || sig == "" || exp == "" {
		response.Error(c, appErrors.NewBadRequest("resourceId, sig and exp query parameters are required"))
		return
	}

	if !h.codec.Verify(resourceID, sig, exp, token.KindSegment) {
		metrics.SegmentResolutions.WithLabelValues("invalid_token").Inc()
		response.Error(c, appErrors.ErrInvalidSignature)
		return
	}

	remoteURL, ok := h.store.Get(resourceID)
	if !ok {
		metrics.SegmentResolutions.WithLabelValues("not_found").Inc()
		response.Error(c, appErrors.ErrNotFound)
		return
	}

	start := time.Now()
	res, err := h.client.Fetch(c.Request.Context(), remoteURL, "")
	metrics.UpstreamLatency.WithLabelValues("segment").Observe(time.Since(start).Seconds())
	if err != nil {
		metrics.SegmentResolutions.WithLabelValues("upstream_error").Inc()
		h.log.Warn("segment fetch failed", zap.String("url", remoteURL), zap.Error(err))
		response.Error(c, appErrors.ErrUpstreamFailure.WithInternal(err))
		return
	}

	metrics.SegmentResolutions.WithLabelValues("ok").Inc()
	c.Data(http.StatusOK, contentTypeOrDefault(res.ContentType), res.Body)
}

// Image proxies an arbitrary remote resource without signing or caching,
// forwarding an optional Referer override.
func (h *FetchHandler) Image(c *gin.Context) {
	remoteURL := c.Query("url")
	if remoteURL == "" {
		response.Error(c, appErrors.NewBadRequest("url query parameter is required"))
		return
	}

	start := time.Now()
	res, err := h.client.Fetch(c.Request.Context(), remoteURL, c.Query("ref"))
	metrics.UpstreamLatency.WithLabelValues("image").Observe(time.Since(start).Seconds())
	if err != nil {
		h.log.Warn("image fetch failed", zap.String("url", remoteURL), zap.Error(err))
		response.Error(c, appErrors.ErrUpstreamFailure.WithInternal(err))
		return
	}

	c.Data(http.StatusOK, contentTypeOrDefault(res.ContentType), res.Body)
}

func contentTypeOrDefault(ct string) string {
	if ct == "" {
		return binaryContentType
	}
	return ct
}
