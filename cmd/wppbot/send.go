package main

import (
	"context"
	"fmt"
	"strconv"
	"strings"

	"wppbot/internal/wpp"

	"github.com/spf13/cobra"
)

func sendCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "send",
		Short: "Send a message",
		Long:  "Send text, media, locations, contacts or list messages. Recipients may be phone numbers, group ids or full chat ids.",
	}
	cmd.AddCommand(sendTextCmd())
	cmd.AddCommand(sendLinkCmd())
	cmd.AddCommand(sendMessageCmd())
	cmd.AddCommand(sendImageCmd())
	cmd.AddCommand(sendFileCmd())
	cmd.AddCommand(sendLocationCmd())
	cmd.AddCommand(sendVcardCmd())
	cmd.AddCommand(sendListCmd())
	return cmd
}

func sendTextCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "text <to> <message...>",
		Short: "Send a text message",
		Args:  cobra.MinimumNArgs(2),
		RunE: senderRunE(func(ctx context.Context, s *wpp.Sender, args []string) (any, error) {
			return s.SendText(ctx, args[0], strings.Join(args[1:], " "), nil)
		}),
	}
}

func sendLinkCmd() *cobra.Command {
	var text string
	cmd := &cobra.Command{
		Use:   "link <to> <url>",
		Short: "Send a link with a generated preview",
		Args:  cobra.ExactArgs(2),
		RunE: senderRunE(func(ctx context.Context, s *wpp.Sender, args []string) (any, error) {
			return s.SendLinkPreview(ctx, args[0], args[1], text)
		}),
	}
	cmd.Flags().StringVarP(&text, "text", "t", "", "text sent with the link")
	return cmd
}

func sendMessageCmd() *cobra.Command {
	var options []string
	cmd := &cobra.Command{
		Use:   "message <chat> <content>",
		Short: "Send content with raw message options (key=value)",
		Args:  cobra.ExactArgs(2),
		RunE: senderRunE(func(ctx context.Context, s *wpp.Sender, args []string) (any, error) {
			opts, err := parseOptions(options)
			if err != nil {
				return nil, err
			}
			return s.SendMessageOptions(ctx, args[0], args[1], opts)
		}),
	}
	cmd.Flags().StringArrayVarP(&options, "option", "o", nil, "message option as key=value, repeatable")
	return cmd
}

func sendImageCmd() *cobra.Command {
	var opts wpp.ImageOptions
	cmd := &cobra.Command{
		Use:   "image <to> <path|data-uri>",
		Short: "Send an image (png, jpeg, webp)",
		Args:  cobra.ExactArgs(2),
		RunE: senderRunE(func(ctx context.Context, s *wpp.Sender, args []string) (any, error) {
			if wpp.IsDataURI(args[1]) {
				return s.SendImageFromBase64(ctx, args[0], args[1], opts)
			}
			return s.SendImage(ctx, args[0], args[1], opts)
		}),
	}
	cmd.Flags().StringVar(&opts.Filename, "filename", "", "file name shown to the recipient")
	cmd.Flags().StringVar(&opts.Caption, "caption", "", "image caption")
	cmd.Flags().StringVar(&opts.QuotedMessageID, "quote", "", "id of the message to reply to")
	cmd.Flags().BoolVar(&opts.ViewOnce, "view-once", false, "send as view once")
	return cmd
}

func sendFileCmd() *cobra.Command {
	var (
		filename string
		caption  string
		options  []string
	)
	cmd := &cobra.Command{
		Use:   "file <to> <path|data-uri>",
		Short: "Send a document",
		Args:  cobra.ExactArgs(2),
		RunE: senderRunE(func(ctx context.Context, s *wpp.Sender, args []string) (any, error) {
			name := wpp.FileName(filename, caption)
			if len(options) > 0 {
				opts, err := parseOptions(options)
				if err != nil {
					return nil, err
				}
				name = wpp.FileOptions(opts)
			}
			return s.SendFile(ctx, args[0], wpp.ParseFileSource(args[1]), name)
		}),
	}
	cmd.Flags().StringVar(&filename, "filename", "", "file name shown to the recipient (default: base name of the path)")
	cmd.Flags().StringVar(&caption, "caption", "", "document caption")
	cmd.Flags().StringArrayVarP(&options, "option", "o", nil, "raw send option as key=value, repeatable; replaces --filename and --caption")
	return cmd
}

func sendLocationCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "location <to> <latitude> <longitude> [title]",
		Short: "Send a location pin",
		Args:  cobra.RangeArgs(3, 4),
		RunE: senderRunE(func(ctx context.Context, s *wpp.Sender, args []string) (any, error) {
			lat, err := strconv.ParseFloat(args[1], 64)
			if err != nil {
				return nil, fmt.Errorf("invalid latitude %q: %w", args[1], err)
			}
			lng, err := strconv.ParseFloat(args[2], 64)
			if err != nil {
				return nil, fmt.Errorf("invalid longitude %q: %w", args[2], err)
			}
			loc := wpp.Location{Latitude: lat, Longitude: lng}
			if len(args) == 4 {
				loc.Title = args[3]
			}
			return s.SendLocation(ctx, args[0], loc)
		}),
	}
}

func sendVcardCmd() *cobra.Command {
	var name string
	cmd := &cobra.Command{
		Use:   "vcard <to> <contact...>",
		Short: "Send one or more contact cards",
		Args:  cobra.MinimumNArgs(2),
		RunE: senderRunE(func(ctx context.Context, s *wpp.Sender, args []string) (any, error) {
			contacts := make([]string, len(args)-1)
			for i, c := range args[1:] {
				contacts[i] = wpp.NormalizeChatID(c)
			}
			return s.SendContactVcard(ctx, args[0], contacts, name)
		}),
	}
	cmd.Flags().StringVar(&name, "name", "", "display name of a single contact")
	return cmd
}

func sendListCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "list <to> <file.yaml>",
		Short: "Send a list message defined in a YAML or JSON file",
		Args:  cobra.ExactArgs(2),
		RunE: senderRunE(func(ctx context.Context, s *wpp.Sender, args []string) (any, error) {
			opts, err := loadListOptions(args[1])
			if err != nil {
				return nil, err
			}
			return s.SendListMessage(ctx, args[0], *opts)
		}),
	}
}

func replyCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "reply <to> <quoted-message-id> <message...>",
		Short: "Reply to a message",
		Args:  cobra.MinimumNArgs(3),
		RunE: senderRunE(func(ctx context.Context, s *wpp.Sender, args []string) (any, error) {
			return s.Reply(ctx, args[0], strings.Join(args[2:], " "), args[1])
		}),
	}
}

func forwardCmd() *cobra.Command {
	var skipMine bool
	cmd := &cobra.Command{
		Use:   "forward <to> <message-id...>",
		Short: "Forward messages to a chat",
		Args:  cobra.MinimumNArgs(2),
		RunE: senderRunE(func(ctx context.Context, s *wpp.Sender, args []string) (any, error) {
			return s.ForwardMessages(ctx, args[0], args[1:], skipMine)
		}),
	}
	cmd.Flags().BoolVar(&skipMine, "skip-mine", false, "skip messages sent by this account")
	return cmd
}

func seenCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "seen <chat>",
		Short: "Mark a chat as read",
		Args:  cobra.ExactArgs(1),
		RunE: senderRunE(func(ctx context.Context, s *wpp.Sender, args []string) (any, error) {
			return s.SendSeen(ctx, args[0])
		}),
	}
}

func typingCmd() *cobra.Command {
	var (
		durationMs int
		stop       bool
	)
	cmd := &cobra.Command{
		Use:   "typing <to>",
		Short: "Show or clear the typing indicator",
		Args:  cobra.ExactArgs(1),
		RunE: senderRunE(func(ctx context.Context, s *wpp.Sender, args []string) (any, error) {
			if stop {
				return s.StopTyping(ctx, args[0])
			}
			return s.StartTyping(ctx, args[0], durationMs)
		}),
	}
	cmd.Flags().IntVarP(&durationMs, "duration", "d", 0, "indicator duration in milliseconds (0 = until stopped)")
	cmd.Flags().BoolVar(&stop, "stop", false, "clear the indicator")
	return cmd
}

func presenceCmd() *cobra.Command {
	return &cobra.Command{
		Use:       "presence <online|offline>",
		Short:     "Set the account online or offline",
		Args:      cobra.ExactArgs(1),
		ValidArgs: []string{"online", "offline"},
		RunE: senderRunE(func(ctx context.Context, s *wpp.Sender, args []string) (any, error) {
			switch args[0] {
			case "online":
				return s.SetOnlinePresence(ctx, true)
			case "offline":
				return s.SetOnlinePresence(ctx, false)
			default:
				return nil, fmt.Errorf("presence must be online or offline, got %q", args[0])
			}
		}),
	}
}

// parseOptions turns key=value pairs into an options bag. Values that look
// like booleans or numbers keep that type.
func parseOptions(pairs []string) (map[string]any, error) {
	opts := make(map[string]any, len(pairs))
	for _, p := range pairs {
		k, v, ok := strings.Cut(p, "=")
		if !ok || k == "" {
			return nil, fmt.Errorf("invalid option %q, want key=value", p)
		}
		switch {
		case v == "true" || v == "false":
			opts[k] = v == "true"
		default:
			if n, err := strconv.ParseFloat(v, 64); err == nil {
				opts[k] = n
			} else {
				opts[k] = v
			}
		}
	}
	return opts, nil
}
