package retrieval

import (
	"math/rand/v2"
	"mime"
	"net/url"
	"path"
	"strconv"
	"strings"

	"mediarelay/internal/textutil"
)

// Naming selects the cache file naming scheme for a target.
type Naming int

const (
	// NameSingle names the only asset of a reply as <stem>_<id><ext>.
	NameSingle Naming = iota
	// NamePickerItem names a picker item as <requestID>_<itemID><ext>, or
	// <requestID>_<itemID><name> when the server announces a name.
	NamePickerItem
	// NamePickerAudio names a picker audio track as <requestID>_<itemID>_<name>.
	NamePickerAudio
)

const fallbackStem = "download"

// NewRequestID returns a short random numeric identifier used to tie the
// artifacts of one source together and to keep cache names distinct.
func NewRequestID() string {
	return strconv.Itoa(rand.IntN(1_000_000_000))
}

// fileName builds the cache name for target. dispositionName is the name
// announced by the asset server, if any; contentType is the served media
// type and supplies the extension when neither name nor URL carries one.
// uniqueID is the per-attempt suffix.
func fileName(target Target, dispositionName, contentType, uniqueID string) string {
	requestID := textutil.SanitizeToken(target.RequestID)
	switch target.Naming {
	case NamePickerItem:
		if dispositionName != "" {
			return requestID + "_" + uniqueID + dispositionName
		}
		ext := extFromURL(target.URL)
		if ext == "" {
			ext = extFromContentType(contentType)
		}
		return requestID + "_" + uniqueID + ext
	case NamePickerAudio:
		name := dispositionName
		if name == "" {
			name = textutil.SanitizeFileName(target.SuggestedName)
		}
		if name == "" {
			ext := extFromURL(target.URL)
			if ext == "" {
				ext = extFromContentType(contentType)
			}
			name = "audio" + ext
		}
		return requestID + "_" + uniqueID + "_" + name
	default:
		name := dispositionName
		if name == "" {
			name = textutil.SanitizeFileName(target.SuggestedName)
		}
		if name == "" {
			name = textutil.SanitizeFileName(path.Base(urlPath(target.URL)))
		}
		stem, ext := textutil.SplitName(name)
		if stem == "" || stem == "." || stem == "/" {
			stem = fallbackStem
		}
		if ext == "" {
			ext = extFromContentType(contentType)
		}
		return stem + "_" + uniqueID + ext
	}
}

// preferredExt pins the extension for common media types where the mime
// table lists several candidates or none at all.
var preferredExt = map[string]string{
	"image/jpeg": ".jpg",
	"image/png":  ".png",
	"image/webp": ".webp",
	"image/gif":  ".gif",
	"video/mp4":  ".mp4",
	"video/webm": ".webm",
	"audio/mpeg": ".mp3",
	"audio/mp4":  ".m4a",
	"audio/ogg":  ".ogg",
	"audio/opus": ".opus",
}

// extFromContentType maps a Content-Type header to a file extension, or ""
// when the type is missing, generic or unknown.
func extFromContentType(contentType string) string {
	mediaType, _, err := mime.ParseMediaType(contentType)
	if err != nil || mediaType == "application/octet-stream" {
		return ""
	}
	if ext, ok := preferredExt[mediaType]; ok {
		return ext
	}
	exts, err := mime.ExtensionsByType(mediaType)
	if err != nil || len(exts) == 0 {
		return ""
	}
	return exts[0]
}

// extFromURL returns the extension of the URL path. Instagram CDN links carry
// a "?stp=dst" transform marker whose value may itself look like a path, so
// everything from it onward is discarded before the query is stripped.
func extFromURL(raw string) string {
	if idx := strings.Index(raw, "?stp=dst"); idx >= 0 {
		raw = raw[:idx]
	}
	ext := path.Ext(urlPath(raw))
	if len(ext) > 10 || strings.ContainsAny(ext, " %") {
		return ""
	}
	return strings.ToLower(ext)
}

func urlPath(raw string) string {
	if idx := strings.IndexByte(raw, '?'); idx >= 0 {
		raw = raw[:idx]
	}
	if parsed, err := url.Parse(raw); err == nil {
		return parsed.Path
	}
	return raw
}

// dispositionFileName extracts and sanitizes the filename parameter of a
// Content-Disposition header. RFC 5987 filename* values arrive decoded from
// mime.ParseMediaType; only a plain filename is percent-decoded here.
func dispositionFileName(header string) string {
	if strings.TrimSpace(header) == "" {
		return ""
	}
	_, params, err := mime.ParseMediaType(header)
	if err != nil {
		return ""
	}
	name := params["filename"]
	if !strings.Contains(strings.ToLower(header), "filename*") {
		if decoded, err := url.PathUnescape(name); err == nil {
			name = decoded
		}
	}
	return textutil.SanitizeFileName(path.Base(strings.ReplaceAll(name, "\\", "/")))
}
