package manifest

import (
	"fmt"
	"net/url"
	"strings"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/hlsgate/hlsgate/internal/store"
	"github.com/hlsgate/hlsgate/internal/token"
	"github.com/hlsgate/hlsgate/pkg/logger"
)

// ContentType is the MIME type served for rewritten playlists.
const ContentType = "application/vnd.apple.mpegurl"

// headerMarker must open the first line of a recognised playlist.
const headerMarker = "#EXTM3U"

// ResolvePath is the local path signed segment URLs point at.
const ResolvePath = "/fetch/segment/resource"

// Rewriter replaces media references in an HLS playlist with signed local
// URLs, registering each reference in the resource store as it goes.
type Rewriter struct {
	store *store.Store
	codec *token.Codec
	log   *zap.Logger
}

// NewRewriter constructs a Rewriter over the shared store and codec.
func NewRewriter(st *store.Store, codec *token.Codec) (*Rewriter, error) {
	if st == nil {
		return nil, fmt.Errorf("manifest: store must be provided")
	}
	if codec == nil {
		return nil, fmt.Errorf("manifest: token codec must be provided")
	}

	return &Rewriter{
		store: st,
		codec: codec,
		log:   logger.WithModule("manifest"),
	}, nil
}

// Rewrite transforms the playlist body fetched from manifestURL. Directive
// lines (starting with #) and blank lines pass through verbatim; every other
// line is resolved against manifestURL, registered under a fresh resource
// identifier, and replaced with a signed local URL.
//
// The second return value reports whether the body was recognised as a
// playlist; when false the body is returned unmodified so the caller can serve
// it as plain text.
func (r *Rewriter) Rewrite(body, manifestURL string) (string, bool) {
	lines := strings.Split(body, "\n")
	if len(lines) == 0 || !strings.HasPrefix(strings.TrimSpace(lines[0]), headerMarker) {
		return body, false
	}

	base, err := url.Parse(manifestURL)
	if err != nil {
		r.log.Warn("unparseable manifest url", zap.String("url", manifestURL), zap.Error(err))
		return body, false
	}

	rewritten := 0
	for i, line := range lines {
		trimmed := strings.TrimSpace(line)
		if trimmed == "" || strings.HasPrefix(trimmed, "#") {
			continue
		}

		ref, err := url.Parse(trimmed)
		if err != nil {
			// Leave lines we cannot parse untouched rather than breaking playback.
			continue
		}

		resolved := base.ResolveReference(ref).String()
		resourceID := uuid.NewString()
		r.store.Put(resourceID, resolved)

		tok := r.codec.Mint(resourceID, token.KindSegment)
		lines[i] = ResolvePath + "?" + tok.Query().Encode()
		rewritten++
	}

	r.log.Debug("manifest rewritten",
		zap.String("url", manifestURL),
		zap.Int("segments", rewritten),
	)

	return strings.Join(lines, "\n"), true
}
