package conversion

import (
	"encoding/json"
	"strings"
)

// Mode selects which streams the service should return.
type Mode string

const (
	ModeAuto  Mode = "auto"
	ModeAudio Mode = "audio"
	ModeMute  Mode = "mute"
)

// Valid reports whether m is a supported download mode.
func (m Mode) Valid() bool {
	switch m {
	case ModeAuto, ModeAudio, ModeMute:
		return true
	default:
		return false
	}
}

// Status is the top-level discriminator of a conversion reply.
type Status string

const (
	StatusRedirect Status = "redirect"
	StatusTunnel   Status = "tunnel"
	StatusPicker   Status = "picker"
	StatusError    Status = "error"
)

// Request describes a single conversion call. Empty quality fields fall back
// to the client defaults.
type Request struct {
	URL             string
	Mode            Mode
	VideoQuality    string
	AudioBitrate    string
	TikTokFullAudio bool
	TikTokH265      bool
}

// PickerItem is one entry of a multi-asset reply.
type PickerItem struct {
	Type  string `json:"type,omitempty"`
	URL   string `json:"url"`
	Thumb string `json:"thumb,omitempty"`
}

// Response is the decoded service reply.
type Response struct {
	Status        Status          `json:"status"`
	URL           string          `json:"url,omitempty"`
	Filename      string          `json:"filename,omitempty"`
	Audio         string          `json:"audio,omitempty"`
	AudioFilename string          `json:"audioFilename,omitempty"`
	Picker        []PickerItem    `json:"picker,omitempty"`
	Error         json.RawMessage `json:"error,omitempty"`
}

// AssetKind distinguishes how a retrieved asset is named in the cache.
type AssetKind int

const (
	// AssetSingle is the only asset of a redirect or tunnel reply.
	AssetSingle AssetKind = iota
	// AssetPickerAudio is the optional audio track of a picker reply.
	AssetPickerAudio
	// AssetPickerItem is one media item of a picker reply.
	AssetPickerItem
)

// Asset is a downloadable target produced by a successful reply.
type Asset struct {
	Kind AssetKind
	URL  string
	// Filename is the name suggested by the service, if any.
	Filename string
}

// Assets returns the retrieval targets in order: for picker replies the
// audio track comes first, followed by the items as listed.
func (r Response) Assets() []Asset {
	switch r.Status {
	case StatusRedirect, StatusTunnel:
		if strings.TrimSpace(r.URL) == "" {
			return nil
		}
		return []Asset{{Kind: AssetSingle, URL: r.URL, Filename: r.Filename}}
	case StatusPicker:
		assets := make([]Asset, 0, len(r.Picker)+1)
		if strings.TrimSpace(r.Audio) != "" {
			assets = append(assets, Asset{Kind: AssetPickerAudio, URL: r.Audio, Filename: r.AudioFilename})
		}
		for _, item := range r.Picker {
			if strings.TrimSpace(item.URL) == "" {
				continue
			}
			assets = append(assets, Asset{Kind: AssetPickerItem, URL: item.URL})
		}
		return assets
	default:
		return nil
	}
}

// Key identifies the resolved content independent of the submitted URL. Two
// sources whose replies share a key would produce the same artifacts.
// Redirect links point at the origin CDN, where the path names the file and
// the query only carries a signature, so the query is dropped. Tunnel links
// are served by the conversion service itself and carry their identity in
// the query, so they are kept whole.
func (r Response) Key() string {
	switch r.Status {
	case StatusRedirect:
		return "asset:" + strings.TrimSpace(r.Filename) + "@" + stripQuery(r.URL)
	case StatusTunnel:
		return "tunnel:" + strings.TrimSpace(r.Filename) + "@" + strings.TrimSpace(r.URL)
	case StatusPicker:
		parts := make([]string, 0, len(r.Picker)+1)
		if r.Audio != "" {
			parts = append(parts, strings.TrimSpace(r.AudioFilename)+"@"+strings.TrimSpace(r.Audio))
		}
		for _, item := range r.Picker {
			parts = append(parts, strings.TrimSpace(item.URL))
		}
		return "picker:" + strings.Join(parts, "|")
	default:
		return ""
	}
}

func stripQuery(raw string) string {
	raw = strings.TrimSpace(raw)
	if i := strings.IndexAny(raw, "?#"); i >= 0 {
		return raw[:i]
	}
	return raw
}
