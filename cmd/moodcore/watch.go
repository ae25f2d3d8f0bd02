package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"time"
	"unicode/utf8"

	"github.com/spf13/cobra"

	"github.com/nerrad567/mood-core/internal/infrastructure/config"
	"github.com/nerrad567/mood-core/internal/infrastructure/logging"
	"github.com/nerrad567/mood-core/internal/infrastructure/mqtt"
	"github.com/nerrad567/mood-core/internal/lamp"
)

// watchBuffer is the event channel capacity for watch.
const watchBuffer = 64

func newWatchCmd(flags *globalFlags) *cobra.Command {
	var extra []string

	cmd := &cobra.Command{
		Use:   "watch",
		Short: "Print connection events and lamp messages until interrupted",
		Long: `Connect and print every connection event and message on the lamp's
topics, plus any --topic given. Reconnects like serve does.

Lamp reports on <topic>/<id>/msg are shown with the colour they decode to.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, log, err := loadConfig(flags, os.Stderr)
			if err != nil {
				return err
			}
			return watch(cmd.Context(), cfg, log, extra, cmd.OutOrStdout())
		},
	}
	cmd.Flags().StringArrayVarP(&extra, "topic", "t", nil, "additional topic filter to subscribe (repeatable)")
	return cmd
}

// watch prints events to out until ctx is cancelled.
func watch(ctx context.Context, cfg *config.Config, log *logging.Logger, extra []string, out io.Writer) error {
	qos := byte(cfg.MQTT.QoS) //nolint:gosec // validated 0..2 by config
	devTopics := mqtt.NewDeviceTopics(cfg.Lamp.Topic, cfg.Lamp.ID, qos)

	topics := devTopics.All()
	for _, name := range extra {
		t, err := mqtt.NewTopic(name, qos)
		if err != nil {
			return fmt.Errorf("topic %q: %w", name, err)
		}
		topics = append(topics, t)
	}

	manager := oneShotManager(cfg, log, topics...)
	events, cancel := manager.Events(watchBuffer)
	defer cancel()

	manager.Start(ctx)
	defer manager.Stop(disconnectTimeout(cfg))

	for {
		select {
		case <-ctx.Done():
			return nil
		case ev, ok := <-events:
			if !ok {
				return nil
			}
			fmt.Fprintln(out, formatEvent(ev, devTopics.Outgoing.Name))
		}
	}
}

// formatEvent renders one event as a single line.
func formatEvent(ev mqtt.Event, reportTopic string) string {
	ts := ev.Time.Local().Format(time.TimeOnly)
	if ev.Type != mqtt.EventMessage {
		return fmt.Sprintf("%s %s", ts, ev.Type)
	}
	if !utf8.Valid(ev.Payload) {
		return fmt.Sprintf("%s %s <%d bytes>", ts, ev.Topic, len(ev.Payload))
	}
	line := fmt.Sprintf("%s %s %s", ts, ev.Topic, ev.Payload)
	if ev.Topic == reportTopic {
		line += " => " + lamp.ParseReport(string(ev.Payload)).String()
	}
	return line
}
