package registry

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"time"
)

// legacyFile is the channels.json layout: {"channels":[...]}.
type legacyFile struct {
	Channels []legacyChannel `json:"channels"`
}

type legacyChannel struct {
	GuildID      string `json:"guildId"`
	GuildName    string `json:"guildName"`
	ChannelID    string `json:"channelId"`
	ChannelName  string `json:"channelName"`
	WebhookID    string `json:"webhookId"`
	WebhookToken string `json:"webhookToken"`
	WebhookURL   string `json:"webhookUrl"`
	RegisteredAt string `json:"registeredAt"`
}

// ImportResult summarizes a legacy import.
type ImportResult struct {
	Added   int
	Skipped int
}

// ImportLegacy reads a channels.json document and registers every channel not
// already present. Entries without webhook credentials are still imported so
// that distribution reports them as missing credentials.
func (s *Store) ImportLegacy(ctx context.Context, r io.Reader) (ImportResult, error) {
	var doc legacyFile
	if err := json.NewDecoder(r).Decode(&doc); err != nil {
		return ImportResult{}, fmt.Errorf("decode channels file: %w", err)
	}
	var result ImportResult
	for _, ch := range doc.Channels {
		dest := Destination{
			ChannelID:    ch.ChannelID,
			ChannelName:  ch.ChannelName,
			GuildID:      ch.GuildID,
			GuildName:    ch.GuildName,
			WebhookID:    ch.WebhookID,
			WebhookToken: ch.WebhookToken,
			WebhookURL:   ch.WebhookURL,
		}
		if ts, err := time.Parse(time.RFC3339, ch.RegisteredAt); err == nil {
			dest.RegisteredAt = ts
		}
		if _, err := s.Add(ctx, dest); err != nil {
			if errors.Is(err, ErrExists) {
				result.Skipped++
				continue
			}
			return result, err
		}
		result.Added++
	}
	return result, nil
}
