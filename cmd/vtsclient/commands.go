package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/codefionn/vtsclient/internal/client"
	"github.com/codefionn/vtsclient/internal/clienterr"
	"github.com/codefionn/vtsclient/internal/data"
	"github.com/codefionn/vtsclient/internal/events"
	"github.com/codefionn/vtsclient/internal/logger"
	"github.com/spf13/cobra"
)

var (
	testMessage string
	eventNames  []string
)

var stateCmd = &cobra.Command{
	Use:   "state",
	Short: "Show the API state",
	RunE: func(cmd *cobra.Command, args []string) error {
		return withApp(cmd, func(a *app) error {
			ctx, cancel := commandContext(cmd)
			defer cancel()

			resp, err := client.Do[data.APIStateResponse](ctx, a.client, data.APIStateRequest{})
			if err != nil {
				return err
			}
			return printJSON(resp)
		})
	},
}

var statsCmd = &cobra.Command{
	Use:   "stats",
	Short: "Show VTube Studio statistics",
	RunE: func(cmd *cobra.Command, args []string) error {
		return withApp(cmd, func(a *app) error {
			ctx, cancel := commandContext(cmd)
			defer cancel()

			resp, err := client.Do[data.StatisticsResponse](ctx, a.client, data.StatisticsRequest{})
			if err != nil {
				return err
			}
			return printJSON(resp)
		})
	},
}

var sendCmd = &cobra.Command{
	Use:   "send <MessageType> [json-data]",
	Short: "Send a raw request and print the response",
	Long: `Send any request by message type. The optional data argument is the JSON
payload of the request, e.g.

  vtsclient send HotkeysInCurrentModelRequest '{}'
  vtsclient send ParameterValueRequest '{"name":"FaceAngleX"}'`,
	Args: cobra.RangeArgs(1, 2),
	RunE: func(cmd *cobra.Command, args []string) error {
		var raw json.RawMessage
		if len(args) == 2 {
			if !json.Valid([]byte(args[1])) {
				return fmt.Errorf("data is not valid JSON")
			}
			raw = json.RawMessage(args[1])
		}

		return withApp(cmd, func(a *app) error {
			ctx, cancel := commandContext(cmd)
			defer cancel()

			resp, err := a.client.Call(ctx, data.NewRawRequestEnvelope(args[0], raw))
			if err != nil {
				return err
			}
			if apiErr, ok := resp.APIError(); ok {
				return apiErr
			}
			return printJSON(resp)
		})
	},
}

var hotkeyCmd = &cobra.Command{
	Use:   "hotkey <hotkeyID>",
	Short: "Trigger a hotkey of the current model",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return withApp(cmd, func(a *app) error {
			ctx, cancel := commandContext(cmd)
			defer cancel()

			resp, err := client.Do[data.HotkeyTriggerResponse](ctx, a.client, data.HotkeyTriggerRequest{HotkeyID: args[0]})
			if err != nil {
				return err
			}
			fmt.Printf("Triggered hotkey %s\n", resp.HotkeyID)
			return nil
		})
	},
}

var eventsCmd = &cobra.Command{
	Use:   "events",
	Short: "Subscribe to events and print them until interrupted",
	RunE: func(cmd *cobra.Command, args []string) error {
		return withEventStream(cmd, func(a *app) error {
			ctx, cancel := commandContext(cmd)
			defer cancel()

			// Another vtsclient may obtain a new token while this one runs.
			if err := a.store.Watch(ctx, a.client.SetToken); err != nil {
				a.log.Warn("Not watching the token file: %v", err)
			}

			resubscribe := func(ctx context.Context) error {
				return subscribeEvents(ctx, a)
			}
			if err := resubscribe(ctx); err != nil {
				return err
			}
			return streamEvents(ctx, a.events, resubscribe, printEvent, a.log)
		})
	},
}

// streamEvents hands every event to out until ctx ends or the client can no
// longer reconnect. Subscriptions belong to the session, so they are renewed
// after each ConnectionLost; renewing also dials, since nothing else would.
func streamEvents(ctx context.Context, sub *events.Subscription, resubscribe func(context.Context) error, out func(events.Event), log *logger.Logger) error {
	resubErr := make(chan error)

	for {
		select {
		case <-ctx.Done():
			return nil
		case err := <-resubErr:
			if errors.Is(err, clienterr.ErrFailed) || errors.Is(err, clienterr.ErrClosed) {
				return fmt.Errorf("event stream ended: %w", err)
			}
			log.Error("Failed to resubscribe: %v", err)
			fmt.Fprintf(os.Stderr, "failed to resubscribe: %v\n", err)
		case ev, ok := <-sub.C():
			if !ok {
				return nil
			}
			out(ev)
			if ev.Kind == events.ConnectionLost {
				go func() {
					err := resubscribe(ctx)
					if err == nil || ctx.Err() != nil {
						return
					}
					select {
					case resubErr <- err:
					case <-ctx.Done():
					}
				}()
			}
		}
	}
}

var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Write the effective configuration to the config file",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig(cmd)
		if err != nil {
			return err
		}
		if err := cfg.Save(configFile); err != nil {
			return fmt.Errorf("failed to save config: %w", err)
		}
		fmt.Printf("Wrote %s\n", configFile)
		return nil
	},
}

func init() {
	eventsCmd.Flags().StringVar(&testMessage, "test-message", "", "Also subscribe to TestEvent with this message")
	eventsCmd.Flags().StringSliceVar(&eventNames, "event", []string{
		data.TypeModelLoadedEvent,
		data.TypeHotkeyTriggeredEvent,
		data.TypeTrackingStatusChangedEvent,
	}, "Event types to subscribe to")
}

func subscribeEvents(ctx context.Context, a *app) error {
	var reqs []*data.EventSubscriptionRequest
	for _, name := range eventNames {
		reqs = append(reqs, &data.EventSubscriptionRequest{
			Subscribe: true,
			EventName: strings.TrimSpace(name),
			Config:    json.RawMessage("{}"),
		})
	}
	if testMessage != "" {
		req, err := data.Subscribe(data.TestEventConfig{TestMessageForEvent: testMessage})
		if err != nil {
			return err
		}
		reqs = append(reqs, req)
	}

	for _, req := range reqs {
		resp, err := client.Do[data.EventSubscriptionResponse](ctx, a.client, req)
		if err != nil {
			return fmt.Errorf("subscribe to %s: %w", req.EventName, err)
		}
		a.log.Debug("Subscribed to %d event type(s)", resp.SubscribedEventCount)
	}
	return nil
}

func printEvent(ev events.Event) {
	switch ev.Kind {
	case events.Notification:
		fmt.Printf("%s %s\n", ev.Notification.Type, string(ev.Notification.Raw))
	case events.NewAuthToken:
		fmt.Println("new authentication token stored")
	case events.ConnectionLost:
		fmt.Printf("connection lost: %v\n", ev.Err)
	default:
		fmt.Println(ev)
	}
}

func withApp(cmd *cobra.Command, fn func(a *app) error) error {
	a, err := setup(cmd, false)
	if err != nil {
		return err
	}
	defer a.close()
	return fn(a)
}

// withEventStream is withApp for commands that read a.events
func withEventStream(cmd *cobra.Command, fn func(a *app) error) error {
	a, err := setup(cmd, true)
	if err != nil {
		return err
	}
	defer a.close()
	return fn(a)
}

func printJSON(v any) error {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
