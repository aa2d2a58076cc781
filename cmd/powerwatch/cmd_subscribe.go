package main

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/spf13/cobra"

	"powerwatch/internal/app"
	"powerwatch/internal/storage"
	logx "powerwatch/pkg/logx"
)

func withStore(cfgPath string, fn func(ctx context.Context, st storage.Store) error) func(*cobra.Command, []string) error {
	return func(cmd *cobra.Command, _ []string) error {
		cfg, err := app.LoadConfig(cfgPath)
		if err != nil {
			return err
		}
		st, err := app.OpenStore(cfg, logx.NewConsole("warn"))
		if err != nil {
			return err
		}
		defer st.Close()
		return fn(cmd.Context(), st)
	}
}

func parseChatID(s string) (int64, error) {
	id, err := strconv.ParseInt(s, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("chat id %q: %w", s, err)
	}
	return id, nil
}

func subscribeCmd(cfgPath *string) *cobra.Command {
	var thread int
	cmd := &cobra.Command{
		Use:   "subscribe <location> <chat-id>",
		Short: "Route a location's notifications to a chat",
		Args:  cobra.ExactArgs(2),
	}
	cmd.RunE = func(c *cobra.Command, args []string) error {
		chatID, err := parseChatID(args[1])
		if err != nil {
			return err
		}
		return withStore(*cfgPath, func(ctx context.Context, st storage.Store) error {
			if err := st.AddSubscription(ctx, storage.Subscription{
				LocationID: args[0],
				ChatID:     chatID,
				ThreadID:   thread,
				CreatedAt:  time.Now(),
			}); err != nil {
				return err
			}
			fmt.Fprintf(c.OutOrStdout(), "subscribed %d to %s\n", chatID, args[0])
			return nil
		})(c, args)
	}
	cmd.Flags().IntVar(&thread, "thread", 0, "forum topic thread id")
	return cmd
}

func unsubscribeCmd(cfgPath *string) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "unsubscribe <location> <chat-id>",
		Short: "Stop routing a location's notifications to a chat",
		Args:  cobra.ExactArgs(2),
	}
	cmd.RunE = func(c *cobra.Command, args []string) error {
		chatID, err := parseChatID(args[1])
		if err != nil {
			return err
		}
		return withStore(*cfgPath, func(ctx context.Context, st storage.Store) error {
			err := st.RemoveSubscription(ctx, args[0], chatID)
			if errors.Is(err, storage.ErrNotFound) {
				return fmt.Errorf("%d is not subscribed to %s", chatID, args[0])
			}
			if err != nil {
				return err
			}
			fmt.Fprintf(c.OutOrStdout(), "unsubscribed %d from %s\n", chatID, args[0])
			return nil
		})(c, args)
	}
	return cmd
}

func subscribersCmd(cfgPath *string) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "subscribers <location>",
		Short: "List chats subscribed to a location",
		Args:  cobra.ExactArgs(1),
	}
	cmd.RunE = func(c *cobra.Command, args []string) error {
		return withStore(*cfgPath, func(ctx context.Context, st storage.Store) error {
			subs, err := st.ListSubscriptions(ctx, args[0])
			if err != nil {
				return err
			}
			if len(subs) == 0 {
				fmt.Fprintf(c.OutOrStdout(), "%s has no subscribers\n", args[0])
				return nil
			}
			for _, s := range subs {
				fmt.Fprintf(c.OutOrStdout(), "%d\tthread=%d\tsince=%s\n", s.ChatID, s.ThreadID, s.CreatedAt.Format(time.RFC3339))
			}
			return nil
		})(c, args)
	}
	return cmd
}
