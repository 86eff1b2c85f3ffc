package main

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/chris-alexander-pop/agentcore/pkg/address"
	"github.com/chris-alexander-pop/agentcore/pkg/channel"
	"github.com/chris-alexander-pop/agentcore/pkg/message"
	"github.com/google/uuid"
	"github.com/spf13/cobra"
)

var publishCmd = &cobra.Command{
	Use:   "publish <agent-type> [session-id]",
	Short: "Publish one message to an agent and print the reply",
	Args:  cobra.RangeArgs(1, 2),
	RunE:  runPublish,
}

func init() {
	publishCmd.Flags().String("type", "", "Wire type name of the message body")
	publishCmd.Flags().String("body", "{}", "JSON body of the message")
	publishCmd.Flags().Duration("timeout", 5*time.Second, "Reply timeout")
	publishCmd.Flags().Bool("no-wait", false, "Fire-and-forget: don't wait for a reply")
	_ = publishCmd.MarkFlagRequired("type")
}

func runPublish(cmd *cobra.Command, args []string) error {
	broker, _ := cmd.Flags().GetString("broker")
	msgType, _ := cmd.Flags().GetString("type")
	body, _ := cmd.Flags().GetString("body")
	timeout, _ := cmd.Flags().GetDuration("timeout")
	noWait, _ := cmd.Flags().GetBool("no-wait")

	sessionID := ""
	if len(args) > 1 {
		sessionID = args[1]
	} else {
		sessionID = uuid.NewString()
	}
	addr := address.New(args[0], sessionID)

	ch, err := dialChannel(broker)
	if err != nil {
		return err
	}
	if err := ch.Connect(cmd.Context()); err != nil {
		return fmt.Errorf("connect: %w", err)
	}
	defer ch.Close(context.Background())

	raw, err := buildRaw(msgType, body)
	if err != nil {
		return err
	}

	opts := []channel.PublishOption{channel.WithTimeout(timeout)}
	if !noWait {
		opts = append(opts, channel.WithRequest())
	}

	ctx, cancel := context.WithTimeout(cmd.Context(), timeout+time.Second)
	defer cancel()

	reply, err := ch.Publish(ctx, addr, raw, opts...)
	if err != nil {
		return err
	}
	if reply == nil {
		fmt.Println("(no reply)")
		return nil
	}
	return printEnvelope(*reply, "")
}

// buildRaw constructs a RawMessage from a wire type name and a JSON body
// string, without needing a registered Go type for msgType.
func buildRaw(msgType, body string) (message.RawMessage, error) {
	var content []byte
	trimmed := body
	if trimmed != "" && trimmed != "{}" {
		content = []byte(body)
		var v any
		if err := json.Unmarshal(content, &v); err != nil {
			return message.RawMessage{}, fmt.Errorf("invalid --body JSON: %w", err)
		}
	}
	return message.RawMessage{
		Header: message.Header{
			Type:        msgType,
			ContentType: "application/json",
		},
		Content: content,
	}, nil
}

func printEnvelope(raw message.RawMessage, filter string) error {
	if filter != "" {
		val, err := applyPointer(raw.Content, filter)
		if err != nil {
			return err
		}
		out, err := json.Marshal(val)
		if err != nil {
			return err
		}
		fmt.Printf("%s: %s\n", raw.Header.Type, out)
		return nil
	}
	if len(raw.Content) == 0 {
		fmt.Println(raw.Header.Type)
		return nil
	}
	fmt.Printf("%s: %s\n", raw.Header.Type, raw.Content)
	return nil
}
