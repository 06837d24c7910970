package runtime

import (
	"bytes"
	"context"
	"encoding/json"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/sqs/types"
	"github.com/stretchr/testify/require"

	"github.com/drblury/statusrelay/internal/runtime/channel"
	loggingpkg "github.com/drblury/statusrelay/internal/runtime/logging"
)

const testTopicARN = "arn:aws:sns:eu-west-1:123456789012:status-changes"

type messageParser interface {
	ParseMessage(msg types.Message) (channel.Record, error)
}

// stubAdapter serves queued batches and decodes them with a real channel
// parser, the SNS one unless replaced.
type stubAdapter struct {
	mu sync.Mutex

	parser       messageParser
	batches      [][]types.Message
	receiveErr   error
	deleteErr    map[string]error
	bootstrapErr error
	teardownErr  error
	onReceive    func()

	receives  int
	deleted   []string
	teardowns int
	bootstrap []string
}

func newStubAdapter(batches ...[]types.Message) *stubAdapter {
	return &stubAdapter{
		parser:    channel.NewTopic(nil, nil, testTopicARN),
		batches:   batches,
		deleteErr: map[string]error{},
	}
}

func (s *stubAdapter) Type() string { return "sns" }

func (s *stubAdapter) Bootstrap(ctx context.Context, instanceID string) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.bootstrap = append(s.bootstrap, instanceID)
	if s.bootstrapErr != nil {
		return "", s.bootstrapErr
	}
	return "https://sqs.eu-west-1.amazonaws.com/123456789012/" + instanceID, nil
}

func (s *stubAdapter) Teardown(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.teardowns++
	return s.teardownErr
}

func (s *stubAdapter) Receive(ctx context.Context, queueURL string) ([]types.Message, error) {
	s.mu.Lock()
	s.receives++
	hook := s.onReceive
	var batch []types.Message
	if len(s.batches) > 0 {
		batch, s.batches = s.batches[0], s.batches[1:]
	}
	err := s.receiveErr
	s.mu.Unlock()

	if hook != nil {
		hook()
	}
	if err != nil {
		return nil, err
	}
	if batch == nil {
		time.Sleep(2 * time.Millisecond)
		return []types.Message{}, nil
	}
	return batch, nil
}

func (s *stubAdapter) Delete(ctx context.Context, queueURL, receiptHandle string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.deleteErr[receiptHandle]; err != nil {
		return err
	}
	s.deleted = append(s.deleted, receiptHandle)
	return nil
}

func (s *stubAdapter) ParseMessage(msg types.Message) (channel.Record, error) {
	return s.parser.ParseMessage(msg)
}

func (s *stubAdapter) Teardowns() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.teardowns
}

func (s *stubAdapter) Deleted() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]string(nil), s.deleted...)
}

func snsMessage(handle, status string) types.Message {
	return types.Message{
		MessageId:     aws.String("msg-" + handle),
		ReceiptHandle: aws.String(handle),
		Body:          aws.String(`{"Message":"{\"status\":\"` + status + `\"}","Timestamp":"2024-01-01T00:00:00.000Z"}`),
		Attributes: map[string]string{
			"SentTimestamp":                    "1704067201000",
			"ApproximateFirstReceiveTimestamp": "1704067201500",
		},
	}
}

// syncBuffer is a goroutine-safe log sink.
type syncBuffer struct {
	mu  sync.Mutex
	buf bytes.Buffer
}

func (b *syncBuffer) Write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.Write(p)
}

func (b *syncBuffer) Lines(t *testing.T) []map[string]any {
	t.Helper()
	b.mu.Lock()
	raw := b.buf.String()
	b.mu.Unlock()

	var out []map[string]any
	for _, line := range strings.Split(strings.TrimSpace(raw), "\n") {
		if line == "" {
			continue
		}
		entry := map[string]any{}
		require.NoError(t, json.Unmarshal([]byte(line), &entry), line)
		out = append(out, entry)
	}
	return out
}

func (b *syncBuffer) Messages(t *testing.T, msg string) []map[string]any {
	t.Helper()
	var out []map[string]any
	for _, line := range b.Lines(t) {
		if line["msg"] == msg {
			out = append(out, line)
		}
	}
	return out
}

func testLogger() (loggingpkg.ServiceLogger, *syncBuffer) {
	buf := &syncBuffer{}
	return loggingpkg.NewJSONLogger(buf, "debug"), buf
}
