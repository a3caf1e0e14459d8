package meetup

import (
	"encoding/base64"
	"net/url"
	"strings"

	"github.com/gabriel-vasile/mimetype"
)

// RenderThumbnail turns a stored thumbnail into something an <img> tag can
// display. URLs and data URIs are returned as they are, bare base64 images are
// wrapped in a data URI and anything else is treated as a path under
// assetBaseURL.
func RenderThumbnail(thumb, assetBaseURL string) string {
	thumb = strings.TrimSpace(thumb)
	if thumb == "" {
		return ""
	}

	lower := strings.ToLower(thumb)
	if strings.HasPrefix(lower, "http://") || strings.HasPrefix(lower, "https://") || strings.HasPrefix(lower, "data:") {
		return thumb
	}

	if raw, err := base64.StdEncoding.DecodeString(thumb); err == nil && len(raw) > 0 {
		mt := mimetype.Detect(raw)
		if strings.HasPrefix(mt.String(), "image/") {
			return "data:" + mt.String() + ";base64," + thumb
		}
	}

	if assetBaseURL == "" {
		return thumb
	}
	u, err := url.JoinPath(assetBaseURL, strings.TrimPrefix(thumb, "/"))
	if err != nil {
		return thumb
	}
	return u
}
