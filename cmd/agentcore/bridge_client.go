package main

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/chris-alexander-pop/agentcore/pkg/address"
	"github.com/chris-alexander-pop/agentcore/pkg/channel"
	"github.com/chris-alexander-pop/agentcore/pkg/errors"
	"github.com/chris-alexander-pop/agentcore/pkg/message"
)

// bridgeChannel implements channel.Channel against a bridge.Server's HTTP/SSE
// endpoints, so agentcore can be pointed at either a broker or a bridge
// without the rest of the CLI caring which.
type bridgeChannel struct {
	baseURL string
	http    *http.Client
}

func newBridgeChannel(baseURL string) *bridgeChannel {
	return &bridgeChannel{baseURL: strings.TrimSuffix(baseURL, "/"), http: &http.Client{}}
}

func (b *bridgeChannel) Connect(ctx context.Context) error { return nil }
func (b *bridgeChannel) Close(ctx context.Context) error    { return nil }

func (b *bridgeChannel) NewReplyTopic(ctx context.Context) (string, error) {
	var resp replyTopicResponse
	if err := b.post(ctx, "/reply-topics", struct{}{}, &resp); err != nil {
		return "", err
	}
	return resp.Topic, nil
}

func (b *bridgeChannel) Publish(ctx context.Context, addr address.Address, msg message.RawMessage, opts ...channel.PublishOption) (*message.RawMessage, error) {
	o := resolvePublishOptions(opts)
	req := publishRequest{
		Addr:      addressToDTO(addr),
		Msg:       rawToDTO(msg),
		Request:   o.Request,
		Reply:     o.Reply,
		TimeoutMS: o.Timeout.Milliseconds(),
		Probe:     &o.Probe,
	}

	httpReq, err := b.newRequest(ctx, "/publish", req)
	if err != nil {
		return nil, err
	}
	resp, err := b.http.Do(httpReq)
	if err != nil {
		return nil, errors.New(errors.CodeUnavailable, "bridge request failed", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusNoContent {
		return nil, nil
	}
	if resp.StatusCode >= 400 {
		return nil, decodeErrorBody(resp.Body, resp.StatusCode)
	}

	var dto rawMessageDTO
	if err := json.NewDecoder(resp.Body).Decode(&dto); err != nil {
		return nil, errors.New(errors.CodeDecodeFailed, "failed to decode bridge reply", err)
	}
	raw := dto.toRaw()
	return &raw, nil
}

func (b *bridgeChannel) PublishMulti(ctx context.Context, addr address.Address, msg message.RawMessage, opts ...channel.PublishOption) (channel.ReplyIterator, error) {
	o := resolvePublishOptions(opts)
	req := publishRequest{
		Addr:      addressToDTO(addr),
		Msg:       rawToDTO(msg),
		Request:   o.Request,
		Reply:     o.Reply,
		TimeoutMS: o.Timeout.Milliseconds(),
		Probe:     &o.Probe,
	}

	httpReq, err := b.newRequest(ctx, "/publish_multi", req)
	if err != nil {
		return nil, err
	}
	resp, err := b.http.Do(httpReq)
	if err != nil {
		return nil, errors.New(errors.CodeUnavailable, "bridge request failed", err)
	}
	if resp.StatusCode >= 400 {
		defer resp.Body.Close()
		return nil, decodeErrorBody(resp.Body, resp.StatusCode)
	}
	return &sseIterator{body: resp.Body, scanner: newSSEScanner(resp.Body)}, nil
}

func (b *bridgeChannel) Subscribe(ctx context.Context, addr address.Address, handler channel.Handler, opts ...channel.SubscribeOption) (channel.Subscription, error) {
	req := subscribeRequest{Addr: addressToDTO(addr)}
	httpReq, err := b.newRequest(ctx, "/subscribe", req)
	if err != nil {
		return nil, err
	}
	resp, err := b.http.Do(httpReq)
	if err != nil {
		return nil, errors.New(errors.CodeUnavailable, "bridge request failed", err)
	}
	if resp.StatusCode >= 400 {
		defer resp.Body.Close()
		return nil, decodeErrorBody(resp.Body, resp.StatusCode)
	}

	scanner := newSSEScanner(resp.Body)
	go func() {
		for {
			event, data, err := scanner.next()
			if err != nil {
				return
			}
			if event != "message" {
				continue
			}
			var dto rawMessageDTO
			if err := json.Unmarshal(data, &dto); err != nil {
				continue
			}
			handler(ctx, dto.toRaw())
		}
	}()

	return &bridgeSubscription{body: resp.Body}, nil
}

func (b *bridgeChannel) newRequest(ctx context.Context, path string, body any) (*http.Request, error) {
	data, err := json.Marshal(body)
	if err != nil {
		return nil, errors.New(errors.CodeDecodeFailed, "failed to encode bridge request", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, b.baseURL+path, bytes.NewReader(data))
	if err != nil {
		return nil, errors.New(errors.CodeInternal, "failed to build bridge request", err)
	}
	req.Header.Set("Content-Type", "application/json")
	return req, nil
}

func (b *bridgeChannel) post(ctx context.Context, path string, body, out any) error {
	req, err := b.newRequest(ctx, path, body)
	if err != nil {
		return err
	}
	resp, err := b.http.Do(req)
	if err != nil {
		return errors.New(errors.CodeUnavailable, "bridge request failed", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 400 {
		return decodeErrorBody(resp.Body, resp.StatusCode)
	}
	return json.NewDecoder(resp.Body).Decode(out)
}

func decodeErrorBody(r io.Reader, status int) error {
	var ev errorEvent
	if err := json.NewDecoder(r).Decode(&ev); err != nil {
		return errors.New(errors.CodeInternal, fmt.Sprintf("bridge returned status %d", status), nil)
	}
	return errors.New(ev.Code, ev.Message, nil)
}

type bridgeSubscription struct {
	body io.ReadCloser
}

func (s *bridgeSubscription) Unsubscribe(ctx context.Context) error {
	return s.body.Close()
}

// sseIterator adapts a publish_multi SSE stream to channel.ReplyIterator.
type sseIterator struct {
	body    io.ReadCloser
	scanner *sseScanner
}

func (it *sseIterator) Next(ctx context.Context) (message.RawMessage, error) {
	event, data, err := it.scanner.next()
	if err != nil {
		return message.RawMessage{}, errors.New(errors.CodeInternal, "sse stream closed", err)
	}
	switch event {
	case "stop":
		return message.RawMessage{}, io.EOF
	case "error":
		var ev errorEvent
		if err := json.Unmarshal(data, &ev); err != nil {
			return message.RawMessage{}, errors.New(errors.CodeInternal, "failed to decode sse error event", err)
		}
		return message.RawMessage{}, errors.New(ev.Code, ev.Message, nil)
	default:
		var dto rawMessageDTO
		if err := json.Unmarshal(data, &dto); err != nil {
			return message.RawMessage{}, errors.New(errors.CodeDecodeFailed, "failed to decode sse message event", err)
		}
		return dto.toRaw(), nil
	}
}

func (it *sseIterator) Close(ctx context.Context) error {
	return it.body.Close()
}

// sseScanner reads "event: <name>\ndata: <json>\n\n" blocks off an
// io.Reader, the wire format bridge.Server writes for streaming endpoints.
type sseScanner struct {
	r *bufio.Reader
}

func newSSEScanner(r io.Reader) *sseScanner {
	return &sseScanner{r: bufio.NewReader(r)}
}

func (s *sseScanner) next() (event string, data []byte, err error) {
	for {
		line, err := s.r.ReadString('\n')
		if err != nil {
			return "", nil, err
		}
		line = strings.TrimRight(line, "\r\n")
		switch {
		case strings.HasPrefix(line, "event: "):
			event = strings.TrimPrefix(line, "event: ")
		case strings.HasPrefix(line, "data: "):
			data = []byte(strings.TrimPrefix(line, "data: "))
		case line == "":
			if event != "" {
				return event, data, nil
			}
		}
	}
}

func resolvePublishOptions(opts []channel.PublishOption) channel.PublishOptions {
	o := channel.PublishOptions{Timeout: channel.DefaultTimeout, Probe: true}
	for _, apply := range opts {
		apply(&o)
	}
	return o
}
