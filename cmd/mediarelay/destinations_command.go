package main

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"

	"mediarelay/internal/registry"
)

func newDestinationsCommand(ctx *commandContext) *cobra.Command {
	cmd := &cobra.Command{
		Use:     "destinations",
		Aliases: []string{"dest"},
		Short:   "Manage the webhook destinations batches are delivered to",
	}
	cmd.AddCommand(newDestinationsAddCommand(ctx))
	cmd.AddCommand(newDestinationsRemoveCommand(ctx))
	cmd.AddCommand(newDestinationsListCommand(ctx))
	cmd.AddCommand(newDestinationsImportCommand(ctx))
	return cmd
}

func newDestinationsAddCommand(ctx *commandContext) *cobra.Command {
	var dest registry.Destination

	cmd := &cobra.Command{
		Use:   "add [webhook-url]",
		Short: "Register a destination",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if len(args) == 1 {
				dest.WebhookURL = args[0]
			}
			return ctx.withRegistry(func(store *registry.Store) error {
				added, err := store.Add(cmd.Context(), dest)
				if errors.Is(err, registry.ErrExists) {
					return errors.New("this destination is already registered")
				}
				if err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "Registered %s (channel %s)\n", added.Label(), added.ChannelID)
				return nil
			})
		},
	}

	cmd.Flags().StringVar(&dest.ChannelID, "channel-id", "", "Channel identifier (defaults to the webhook id)")
	cmd.Flags().StringVar(&dest.ChannelName, "channel-name", "", "Channel display name")
	cmd.Flags().StringVar(&dest.GuildID, "guild-id", "", "Server identifier")
	cmd.Flags().StringVar(&dest.GuildName, "guild-name", "", "Server display name")
	cmd.Flags().StringVar(&dest.WebhookID, "webhook-id", "", "Webhook id (alternative to a webhook URL)")
	cmd.Flags().StringVar(&dest.WebhookToken, "webhook-token", "", "Webhook token (alternative to a webhook URL)")
	return cmd
}

func newDestinationsRemoveCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "remove <channel-id>",
		Short: "Unregister a destination",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			channelID := strings.TrimSpace(args[0])
			return ctx.withRegistry(func(store *registry.Store) error {
				if err := store.Remove(cmd.Context(), channelID); err != nil {
					if errors.Is(err, registry.ErrNotFound) {
						return fmt.Errorf("destination %s is not registered", channelID)
					}
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "Removed destination %s\n", channelID)
				return nil
			})
		},
	}
}

func newDestinationsListCommand(ctx *commandContext) *cobra.Command {
	var jsonOutput bool

	cmd := &cobra.Command{
		Use:     "list",
		Aliases: []string{"ls"},
		Short:   "List registered destinations",
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withRegistry(func(store *registry.Store) error {
				dests, err := store.List(cmd.Context())
				if err != nil {
					return err
				}
				if jsonOutput {
					if dests == nil {
						dests = []registry.Destination{}
					}
					return writeJSON(cmd, dests)
				}
				if len(dests) == 0 {
					fmt.Fprintln(cmd.OutOrStdout(), "No destinations registered")
					return nil
				}
				fmt.Fprintln(cmd.OutOrStdout(), renderDestinations(dests))
				return nil
			})
		},
	}
	cmd.Flags().BoolVar(&jsonOutput, "json", false, "Output as JSON")
	return cmd
}

func renderDestinations(dests []registry.Destination) string {
	rows := make([][]string, 0, len(dests))
	for _, d := range dests {
		registered := ""
		if !d.RegisteredAt.IsZero() {
			registered = humanize.Time(d.RegisteredAt)
		}
		rows = append(rows, []string{
			strconv.FormatInt(d.ID, 10),
			d.Label(),
			d.ChannelID,
			d.WebhookID,
			yesNo(d.HasCredentials()),
			registered,
		})
	}
	return renderTable(
		[]string{"ID", "Destination", "Channel", "Webhook", "Ready", "Registered"},
		rows,
		[]columnAlignment{alignRight},
	)
}

func newDestinationsImportCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "import <channels.json>",
		Short: "Import destinations from a legacy channels.json file",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			file, err := os.Open(args[0])
			if err != nil {
				return fmt.Errorf("open legacy registry: %w", err)
			}
			defer file.Close()
			return ctx.withRegistry(func(store *registry.Store) error {
				result, err := store.ImportLegacy(cmd.Context(), file)
				if err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "Imported %d destination(s), skipped %d already registered\n", result.Added, result.Skipped)
				return nil
			})
		},
	}
}
