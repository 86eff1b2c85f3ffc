package main

import (
	"context"
	"errors"
	"fmt"
	"io"

	"github.com/chris-alexander-pop/agentcore/pkg/address"
	"github.com/google/uuid"
	"github.com/spf13/cobra"
)

var streamCmd = &cobra.Command{
	Use:   "stream <agent-type> [session-id]",
	Short: "Publish one message and print every reply envelope until the stream stops",
	Args:  cobra.RangeArgs(1, 2),
	RunE:  runStream,
}

func init() {
	streamCmd.Flags().String("type", "", "Wire type name of the message body")
	streamCmd.Flags().String("body", "{}", "JSON body of the message")
	streamCmd.Flags().String("filter", "", "JSON pointer (e.g. /chunk) to print from each envelope's body")
	_ = streamCmd.MarkFlagRequired("type")
}

func runStream(cmd *cobra.Command, args []string) error {
	broker, _ := cmd.Flags().GetString("broker")
	msgType, _ := cmd.Flags().GetString("type")
	body, _ := cmd.Flags().GetString("body")
	filter, _ := cmd.Flags().GetString("filter")

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

	it, err := ch.PublishMulti(cmd.Context(), addr, raw)
	if err != nil {
		return err
	}
	defer it.Close(context.Background())

	for {
		chunk, err := it.Next(cmd.Context())
		if err != nil {
			if errors.Is(err, io.EOF) {
				return nil
			}
			return err
		}
		if err := printEnvelope(chunk, filter); err != nil {
			fmt.Fprintln(cmd.ErrOrStderr(), err)
		}
	}
}
