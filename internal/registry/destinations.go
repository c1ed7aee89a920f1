package registry

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"net/url"
	"strings"
	"time"
)

// Destination is a registered webhook endpoint.
type Destination struct {
	ID           int64     `json:"id"`
	ChannelID    string    `json:"channel_id"`
	ChannelName  string    `json:"channel_name,omitempty"`
	GuildID      string    `json:"guild_id,omitempty"`
	GuildName    string    `json:"guild_name,omitempty"`
	WebhookID    string    `json:"webhook_id,omitempty"`
	WebhookToken string    `json:"-"`
	WebhookURL   string    `json:"webhook_url,omitempty"`
	RegisteredAt time.Time `json:"registered_at"`
}

// HasCredentials reports whether the destination can be delivered to.
func (d Destination) HasCredentials() bool {
	return strings.TrimSpace(d.WebhookID) != "" && strings.TrimSpace(d.WebhookToken) != ""
}

// Label returns a human-readable name for reports.
func (d Destination) Label() string {
	switch {
	case d.ChannelName != "" && d.GuildName != "":
		return d.GuildName + "/#" + d.ChannelName
	case d.ChannelName != "":
		return "#" + d.ChannelName
	case d.ChannelID != "":
		return d.ChannelID
	default:
		return d.WebhookID
	}
}

// ParseWebhookURL extracts the webhook id and token from an execute URL of the
// form .../webhooks/{id}/{token}.
func ParseWebhookURL(raw string) (string, string, error) {
	parsed, err := url.Parse(strings.TrimSpace(raw))
	if err != nil || parsed.Host == "" {
		return "", "", fmt.Errorf("invalid webhook url %q", raw)
	}
	segments := strings.Split(strings.Trim(parsed.Path, "/"), "/")
	for i := 0; i+2 < len(segments); i++ {
		if segments[i] == "webhooks" && segments[i+1] != "" && segments[i+2] != "" {
			return segments[i+1], segments[i+2], nil
		}
	}
	return "", "", fmt.Errorf("webhook url %q does not contain /webhooks/{id}/{token}", raw)
}

// Add registers a destination. A missing channel ID falls back to the webhook
// ID. Returns ErrExists when the channel is already registered.
func (s *Store) Add(ctx context.Context, dest Destination) (Destination, error) {
	dest = normalize(dest)
	if dest.ChannelID == "" {
		return Destination{}, errors.New("registry: channel id or webhook id is required")
	}
	if dest.RegisteredAt.IsZero() {
		dest.RegisteredAt = time.Now().UTC()
	}
	var id int64
	err := retryOnBusy(ctx, func() error {
		res, execErr := s.db.ExecContext(ctx, `INSERT INTO destinations
			(channel_id, channel_name, guild_id, guild_name, webhook_id, webhook_token, webhook_url, registered_at)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
			dest.ChannelID, dest.ChannelName, dest.GuildID, dest.GuildName,
			dest.WebhookID, dest.WebhookToken, dest.WebhookURL,
			dest.RegisteredAt.UTC().Format(time.RFC3339Nano),
		)
		if execErr != nil {
			return execErr
		}
		id, execErr = res.LastInsertId()
		return execErr
	})
	if err != nil {
		if isUniqueViolation(err) {
			return Destination{}, fmt.Errorf("%w: channel %s", ErrExists, dest.ChannelID)
		}
		return Destination{}, fmt.Errorf("insert destination: %w", err)
	}
	dest.ID = id
	return dest, nil
}

// Remove unregisters the destination for channelID.
func (s *Store) Remove(ctx context.Context, channelID string) error {
	channelID = strings.TrimSpace(channelID)
	var affected int64
	err := retryOnBusy(ctx, func() error {
		res, execErr := s.db.ExecContext(ctx, "DELETE FROM destinations WHERE channel_id = ?", channelID)
		if execErr != nil {
			return execErr
		}
		affected, execErr = res.RowsAffected()
		return execErr
	})
	if err != nil {
		return fmt.Errorf("delete destination: %w", err)
	}
	if affected == 0 {
		return fmt.Errorf("%w: channel %s", ErrNotFound, channelID)
	}
	return nil
}

// Get returns the destination registered for channelID.
func (s *Store) Get(ctx context.Context, channelID string) (Destination, error) {
	row := s.db.QueryRowContext(ctx, selectColumns+" WHERE channel_id = ?", strings.TrimSpace(channelID))
	dest, err := scanDestination(row)
	if errors.Is(err, sql.ErrNoRows) {
		return Destination{}, fmt.Errorf("%w: channel %s", ErrNotFound, channelID)
	}
	return dest, err
}

// List returns every destination in registration order.
func (s *Store) List(ctx context.Context) ([]Destination, error) {
	var out []Destination
	err := retryOnBusy(ctx, func() error {
		out = out[:0]
		rows, err := s.db.QueryContext(ctx, selectColumns+" ORDER BY id")
		if err != nil {
			return err
		}
		defer rows.Close()
		for rows.Next() {
			dest, err := scanDestination(rows)
			if err != nil {
				return err
			}
			out = append(out, dest)
		}
		return rows.Err()
	})
	if err != nil {
		return nil, fmt.Errorf("list destinations: %w", err)
	}
	return out, nil
}

const selectColumns = `SELECT id, channel_id, channel_name, guild_id, guild_name,
	webhook_id, webhook_token, webhook_url, registered_at FROM destinations`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanDestination(row rowScanner) (Destination, error) {
	var (
		dest         Destination
		registeredAt string
	)
	if err := row.Scan(&dest.ID, &dest.ChannelID, &dest.ChannelName, &dest.GuildID, &dest.GuildName,
		&dest.WebhookID, &dest.WebhookToken, &dest.WebhookURL, &registeredAt); err != nil {
		return Destination{}, err
	}
	if ts, err := time.Parse(time.RFC3339Nano, registeredAt); err == nil {
		dest.RegisteredAt = ts
	}
	return dest, nil
}

func normalize(dest Destination) Destination {
	dest.ChannelID = strings.TrimSpace(dest.ChannelID)
	dest.ChannelName = strings.TrimSpace(dest.ChannelName)
	dest.GuildID = strings.TrimSpace(dest.GuildID)
	dest.GuildName = strings.TrimSpace(dest.GuildName)
	dest.WebhookID = strings.TrimSpace(dest.WebhookID)
	dest.WebhookToken = strings.TrimSpace(dest.WebhookToken)
	dest.WebhookURL = strings.TrimSpace(dest.WebhookURL)
	if (dest.WebhookID == "" || dest.WebhookToken == "") && dest.WebhookURL != "" {
		if id, token, err := ParseWebhookURL(dest.WebhookURL); err == nil {
			if dest.WebhookID == "" {
				dest.WebhookID = id
			}
			if dest.WebhookToken == "" {
				dest.WebhookToken = token
			}
		}
	}
	if dest.ChannelID == "" {
		dest.ChannelID = dest.WebhookID
	}
	return dest
}
