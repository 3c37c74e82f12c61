package main

import (
	"encoding/json"
	"fmt"
	"io"
	"time"

	"github.com/spf13/cobra"

	realtime "github.com/layr8/go-realtime"
	"github.com/layr8/go-realtime/internal/relay"
)

func connectCmd(g *globalFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "connect",
		Short: "Connect, authenticate and hold the connection until interrupted",
		Long: `connect opens a connection and keeps it alive, logging every status
change. Combine with --metrics-addr to expose the client's health and metrics.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			s, err := openSession(cmd.Context(), g)
			if err != nil {
				return err
			}
			defer s.close()

			s.client.OnDisconnect(func(err error) {
				s.log.Warn("connection lost", "error", err)
			})
			s.client.OnReconnect(func() {
				s.log.Info("reconnected")
			})
			fmt.Fprintf(cmd.OutOrStdout(), "connected as %s\n", s.client.ID())

			<-cmd.Context().Done()
			return nil
		},
	}
}

func requestCmd(g *globalFlags) *cobra.Command {
	var (
		namespace, path, data string
		timeout               time.Duration
	)

	cmd := &cobra.Command{
		Use:   "request",
		Short: "Send one request and print the response",
		Example: `  realtime request --ns users --path /me
  realtime request --ns users --path /find --data '{"name":"ada"}' --timeout 2s`,
		RunE: func(cmd *cobra.Command, args []string) error {
			payload, err := parseData(data)
			if err != nil {
				return err
			}
			s, err := openSession(cmd.Context(), g)
			if err != nil {
				return err
			}
			defer s.close()

			resp, err := s.client.Request(cmd.Context(), realtime.RequestParams{
				Data:      payload,
				Path:      path,
				Namespace: namespace,
				Timeout:   timeout,
			})
			if err != nil {
				return err
			}
			return printPayload(cmd.OutOrStdout(), resp)
		},
	}

	cmd.Flags().StringVar(&namespace, "ns", "", "namespace")
	cmd.Flags().StringVar(&path, "path", "", "request path")
	cmd.Flags().StringVar(&data, "data", "", "JSON payload")
	cmd.Flags().DurationVar(&timeout, "timeout", 10*time.Second, "reply timeout (0 waits forever)")
	cmd.MarkFlagRequired("path")
	return cmd
}

func eventCmd(g *globalFlags) *cobra.Command {
	var (
		namespace, name, data string
		ack                   bool
	)

	cmd := &cobra.Command{
		Use:   "event",
		Short: "Send an event",
		Example: `  realtime event --ns chat --name typing
  realtime event --ns orders --name placed --data '{"id":7}' --ack`,
		RunE: func(cmd *cobra.Command, args []string) error {
			payload, err := parseData(data)
			if err != nil {
				return err
			}
			s, err := openSession(cmd.Context(), g)
			if err != nil {
				return err
			}
			defer s.close()

			params := realtime.EventParams{Data: payload, Name: name, Namespace: namespace}
			if !ack {
				return s.client.SendEvent(params)
			}
			resp, err := s.client.SendEventAck(cmd.Context(), params)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "ack=%t\n", resp.Ack)
			return nil
		},
	}

	cmd.Flags().StringVar(&namespace, "ns", "", "namespace")
	cmd.Flags().StringVar(&name, "name", "", "event name")
	cmd.Flags().StringVar(&data, "data", "", "JSON payload")
	cmd.Flags().BoolVar(&ack, "ack", false, "wait for the server to acknowledge")
	cmd.MarkFlagRequired("name")
	return cmd
}

func watchCmd(g *globalFlags) *cobra.Command {
	var (
		namespace, name string
		autoAck         bool
	)

	cmd := &cobra.Command{
		Use:     "watch",
		Short:   "Print incoming events until interrupted",
		Example: `  realtime watch --ns chat --name message --auto-ack`,
		RunE: func(cmd *cobra.Command, args []string) error {
			s, err := openSession(cmd.Context(), g)
			if err != nil {
				return err
			}
			defer s.close()

			var opts []realtime.WatchOption
			if autoAck {
				opts = append(opts, realtime.WithAutoAck())
			}
			w := s.client.WatchEvent(name, namespace, opts...)
			defer w.Unsubscribe()

			for {
				select {
				case <-cmd.Context().Done():
					return nil
				case data, ok := <-w.C():
					if !ok {
						return w.Err()
					}
					if err := printPayload(cmd.OutOrStdout(), data); err != nil {
						return err
					}
				}
			}
		},
	}

	cmd.Flags().StringVar(&namespace, "ns", "", "namespace")
	cmd.Flags().StringVar(&name, "name", "", "event name")
	cmd.Flags().BoolVar(&autoAck, "auto-ack", false, "acknowledge every event")
	cmd.MarkFlagRequired("name")
	return cmd
}

func feedCmd(g *globalFlags) *cobra.Command {
	var (
		namespace, topic string
		mqtt             relay.Config
	)

	cmd := &cobra.Command{
		Use:   "feed",
		Short: "Subscribe to a topic and print or relay its publishes",
		Example: `  realtime feed --ns market --topic /prices
  realtime feed --ns market --topic /prices --mqtt-broker tcp://localhost:1883 --mqtt-prefix realtime`,
		RunE: func(cmd *cobra.Command, args []string) error {
			s, err := openSession(cmd.Context(), g)
			if err != nil {
				return err
			}
			defer s.close()

			forward := func(data json.RawMessage) error {
				return printPayload(cmd.OutOrStdout(), data)
			}
			if mqtt.Broker != "" {
				if mqtt.ClientID == "" {
					mqtt.ClientID = "realtime-" + s.client.ID()
				}
				r, err := relay.Connect(mqtt, s.log)
				if err != nil {
					return err
				}
				defer r.Close()
				forward = func(data json.RawMessage) error {
					if err := r.Forward(namespace, topic, data); err != nil {
						// One lost publish must not end the feed.
						s.log.Warn("relay failed", "error", err)
					}
					return nil
				}
			}

			feed := s.client.CreateFeed(topic, namespace)
			defer feed.Unsubscribe()

			for {
				select {
				case <-cmd.Context().Done():
					return nil
				case data, ok := <-feed.C():
					if !ok {
						return feed.Err()
					}
					if err := forward(data); err != nil {
						return err
					}
				}
			}
		},
	}

	cmd.Flags().StringVar(&namespace, "ns", "", "namespace")
	cmd.Flags().StringVar(&topic, "topic", "", "topic")
	cmd.Flags().StringVar(&mqtt.Broker, "mqtt-broker", "", "relay publishes to this MQTT broker instead of stdout")
	cmd.Flags().StringVar(&mqtt.ClientID, "mqtt-client-id", "", "MQTT client ID (default realtime-<client id>)")
	cmd.Flags().StringVar(&mqtt.Username, "mqtt-username", "", "MQTT username")
	cmd.Flags().StringVar(&mqtt.Password, "mqtt-password", "", "MQTT password")
	cmd.Flags().StringVar(&mqtt.TopicPrefix, "mqtt-prefix", "realtime", "MQTT topic prefix")
	cmd.Flags().Uint8Var(&mqtt.QoS, "mqtt-qos", 0, "MQTT QoS (0, 1 or 2)")
	cmd.Flags().BoolVar(&mqtt.Retained, "mqtt-retained", false, "publish retained MQTT messages")
	cmd.MarkFlagRequired("topic")
	return cmd
}

// printPayload writes one payload per line; an absent payload prints null.
func printPayload(w io.Writer, data json.RawMessage) error {
	if len(data) == 0 {
		data = json.RawMessage("null")
	}
	_, err := fmt.Fprintf(w, "%s\n", data)
	return err
}
