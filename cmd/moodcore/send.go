package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/nerrad567/mood-core/internal/infrastructure/config"
	"github.com/nerrad567/mood-core/internal/infrastructure/logging"
	"github.com/nerrad567/mood-core/internal/infrastructure/mqtt"
	"github.com/nerrad567/mood-core/internal/lamp"
)

// errBrokerUnreachable is returned by one-shot commands that could not connect.
var errBrokerUnreachable = errors.New("broker unreachable")

func newSendCmd(flags *globalFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "send <hex|mood|off>",
		Short: "Publish one lamp command and exit",
		Long: `Connect, publish one command to the lamp's incoming topic, and disconnect.

  send ff00aa   set a manual colour (a leading # is accepted)
  send mood     hand the lamp back to mood mode
  send off      publish 000000

A throwaway client id is used so a running serve process keeps its session.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, log, err := loadConfig(flags, os.Stderr)
			if err != nil {
				return err
			}
			return send(cmd.Context(), cfg, log, args[0], func(topic, payload string) {
				fmt.Fprintf(cmd.OutOrStdout(), "%s <- %s\n", topic, payload)
			})
		},
	}
}

// oneShotManager builds a manager for a short-lived command: fresh client
// id, no presence, nothing retained.
func oneShotManager(cfg *config.Config, log *logging.Logger, topics ...mqtt.Topic) *mqtt.Manager {
	mqttCfg := cfg.MQTT
	mqttCfg.Broker.ClientID = config.GenerateClientID()
	endpoint, opts := mqtt.OptionsFromConfig(mqttCfg, "")
	opts.Topics = topics
	opts.Logger = log.With("component", "mqtt")
	return mqtt.NewManager(mqtt.NewPahoTransport(opts.Logger), endpoint, opts)
}

// send publishes one lamp command. sent is called with the topic and the
// payload that went out.
func send(ctx context.Context, cfg *config.Config, log *logging.Logger, command string, sent func(topic, payload string)) error {
	manager := oneShotManager(cfg, log)
	defer manager.Stop(disconnectTimeout(cfg))

	opts := lamp.OptionsFromConfig(cfg)
	opts.Presence = false
	opts.Logger = log.With("component", "lamp")
	controller, err := lamp.NewController(manager, opts)
	if err != nil {
		return fmt.Errorf("creating lamp controller: %w", err)
	}

	payload, err := commandPayload(command)
	if err != nil {
		return err
	}

	manager.Connect(ctx)
	if !manager.IsConnected() {
		return fmt.Errorf("%w: %s", errBrokerUnreachable, manager.Endpoint().URL())
	}
	if err := controller.Command(ctx, command); err != nil {
		return fmt.Errorf("sending %q: %w", command, err)
	}
	if sent != nil {
		sent(controller.Topics().Incoming.Name, payload)
	}
	return nil
}

// commandPayload renders what Controller.Command publishes for command.
// mood off is not reachable from the CLI, so "mood" always means on.
func commandPayload(command string) (string, error) {
	switch command = strings.ToLower(strings.TrimSpace(command)); command {
	case "mood":
		return "mood", nil
	case "off":
		return lamp.Black.Hex(), nil
	}
	c, err := lamp.ParseHex(command)
	if err != nil {
		return "", fmt.Errorf("%w: %q", lamp.ErrUnknownCommand, command)
	}
	return c.Hex(), nil
}
