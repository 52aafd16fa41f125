package taskqueue

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"encoding/json"
	"fmt"

	"github.com/corpusforge/corpusgraph/engine/domain"
	"github.com/corpusforge/corpusgraph/pkg/natsutil"
	"github.com/nats-io/nats.go"
)

// MaxRetries is how many redeliveries Subscribe attempts before a task is
// sent to its DLQ subject.
const MaxRetries = 3

// retryHeader carries the redelivery count across a Subscribe re-publish.
const retryHeader = "X-Retry-Count"

// NatsQueue publishes JSON task payloads on a subject derived from the
// destination URL. Durable retries are provided by Subscribe's own
// redeliver-with-header/DLQ loop on the consumer side, not by Publish;
// this mirrors QStash's provider-retries contract with a self-hosted
// transport.
type NatsQueue struct {
	conn *nats.Conn
}

// NewNatsQueue wraps an already-connected client.
func NewNatsQueue(conn *nats.Conn) *NatsQueue {
	return &NatsQueue{conn: conn}
}

// dlqMessage is published to a subject's DLQ once the first delivery and
// all MaxRetries redeliveries have failed.
type dlqMessage struct {
	Subject string `json:"subject"`
	Payload string `json:"payload"`
	Error   string `json:"error"`
	Retries int    `json:"retries"`
}

// Subscribe registers handler on the subject destURL maps to. A handler
// error triggers a redelivery with an incremented X-Retry-Count header; once
// MaxRetries redeliveries have failed as well, the message is published to
// "<subject>.dlq" instead of retried again. Grounded on the teacher's ingest.StartConsumer retry/DLQ
// loop, generalized from one fixed ingest subject to any destURL.
func (q *NatsQueue) Subscribe(destURL string, handler Handler) (*nats.Subscription, error) {
	subject := subjectFor(destURL)
	return q.conn.Subscribe(subject, func(msg *nats.Msg) {
		ctx := context.Background()

		retries := 0
		if msg.Header != nil {
			if v := msg.Header.Get(retryHeader); v != "" {
				fmt.Sscanf(v, "%d", &retries)
			}
		}

		err := handler(ctx, msg.Data)
		if err == nil {
			return
		}

		retries++
		if retries > MaxRetries {
			dlq := dlqMessage{Subject: subject, Payload: string(msg.Data), Error: err.Error(), Retries: retries}
			if data, marshalErr := json.Marshal(dlq); marshalErr == nil {
				_ = q.conn.Publish(subject+".dlq", data)
			}
			return
		}

		retryMsg := nats.NewMsg(subject)
		retryMsg.Data = msg.Data
		retryMsg.Header = nats.Header{}
		retryMsg.Header.Set(retryHeader, fmt.Sprintf("%d", retries))
		_ = q.conn.PublishMsg(retryMsg)
	})
}

// subjectFor maps a destination URL to a NATS subject: one subject per
// logical destination (IngestURL, ExportURL), namespaced under a common
// prefix.
func subjectFor(destURL string) string {
	if destURL == "" {
		return "corpusgraph.tasks"
	}
	return "corpusgraph.tasks." + destURL
}

func (q *NatsQueue) Publish(ctx context.Context, destURL string, payload []byte) (string, error) {
	msgID := newMessageID()
	if err := natsutil.Publish(ctx, q.conn, subjectFor(destURL), rawMessage(payload)); err != nil {
		return "", fmt.Errorf("%w: taskqueue: publish: %v", domain.ErrUpstreamTransient, err)
	}
	return msgID, nil
}

// rawMessage lets natsutil.Publish's JSON-marshal-then-publish generic
// helper carry an already-serialized payload without double-encoding it.
type rawMessage []byte

func (r rawMessage) MarshalJSON() ([]byte, error) {
	if len(r) == 0 {
		return []byte("null"), nil
	}
	return r, nil
}

func newMessageID() string {
	b := make([]byte, 8)
	_, _ = rand.Read(b)
	return hex.EncodeToString(b)
}
