package ingest

import (
	"context"
	"encoding/json"
	"errors"
	"testing"

	amqp "github.com/rabbitmq/amqp091-go"

	"matchreel/internal/api"
	"matchreel/internal/config"
	"matchreel/internal/logging"
	"matchreel/internal/services"
)

type recordingAck struct {
	acked    int
	nacked   int
	rejected int
	requeue  bool
}

func (a *recordingAck) Ack(uint64, bool) error { a.acked++; return nil }

func (a *recordingAck) Nack(_ uint64, _ bool, requeue bool) error {
	a.nacked++
	a.requeue = requeue
	return nil
}

func (a *recordingAck) Reject(_ uint64, requeue bool) error {
	a.rejected++
	a.requeue = requeue
	return nil
}

type stubSubmitter struct {
	got  []api.SubmitRequest
	resp api.SubmitResponse
	err  error
}

func (s *stubSubmitter) Submit(_ context.Context, req api.SubmitRequest) (api.SubmitResponse, error) {
	s.got = append(s.got, req)
	return s.resp, s.err
}

func delivery(t *testing.T, ack amqp.Acknowledger, body any, replyTo string) amqp.Delivery {
	t.Helper()
	var raw []byte
	switch v := body.(type) {
	case string:
		raw = []byte(v)
	default:
		data, err := json.Marshal(v)
		if err != nil {
			t.Fatalf("marshal: %v", err)
		}
		raw = data
	}
	return amqp.Delivery{Acknowledger: ack, DeliveryTag: 1, Body: raw, ReplyTo: replyTo, CorrelationId: "corr-1"}
}

func TestConsumerAcksAcceptedSubmission(t *testing.T) {
	submitter := &stubSubmitter{resp: api.SubmitResponse{JobID: "job-9", Status: "queued"}}
	c := NewConsumer(config.Intake{}, submitter, nil, logging.NewNop())
	ack := &recordingAck{}

	var replied []byte
	reply := func(_ context.Context, d amqp.Delivery, body []byte) error {
		if d.CorrelationId != "corr-1" {
			t.Errorf("unexpected correlation id %q", d.CorrelationId)
		}
		replied = body
		return nil
	}
	c.handle(context.Background(), delivery(t, ack, api.SubmitRequest{Club: "Harbour FC", VideoRef: "/v.mp4"}, "replies"), reply)

	if ack.acked != 1 || ack.nacked != 0 || ack.rejected != 0 {
		t.Fatalf("unexpected settlement %+v", ack)
	}
	if len(submitter.got) != 1 || submitter.got[0].Club != "Harbour FC" {
		t.Fatalf("submission not forwarded: %+v", submitter.got)
	}
	var resp api.SubmitResponse
	if err := json.Unmarshal(replied, &resp); err != nil || resp.JobID != "job-9" {
		t.Fatalf("unexpected reply %s err=%v", replied, err)
	}
}

func TestConsumerRejectsMalformedJSON(t *testing.T) {
	submitter := &stubSubmitter{}
	c := NewConsumer(config.Intake{}, submitter, nil, logging.NewNop())
	ack := &recordingAck{}

	c.handle(context.Background(), delivery(t, ack, "{not json", ""), nil)

	if ack.rejected != 1 || ack.requeue {
		t.Fatalf("expected reject without requeue, got %+v", ack)
	}
	if len(submitter.got) != 0 {
		t.Fatal("malformed payload must not reach the submitter")
	}
}

func TestConsumerRejectsInvalidSubmission(t *testing.T) {
	submitter := &stubSubmitter{err: services.Wrap(services.ErrValidation, "submit", "validate", "club is required", nil)}
	c := NewConsumer(config.Intake{}, submitter, nil, logging.NewNop())
	ack := &recordingAck{}

	c.handle(context.Background(), delivery(t, ack, api.SubmitRequest{VideoRef: "/v.mp4"}, ""), nil)

	if ack.rejected != 1 || ack.requeue || ack.acked != 0 {
		t.Fatalf("expected reject without requeue, got %+v", ack)
	}
}

func TestConsumerRequeuesStoreFailure(t *testing.T) {
	submitter := &stubSubmitter{err: errors.New("database is locked")}
	c := NewConsumer(config.Intake{}, submitter, nil, logging.NewNop())
	ack := &recordingAck{}

	c.handle(context.Background(), delivery(t, ack, api.SubmitRequest{Club: "Harbour FC", VideoRef: "/v.mp4"}, ""), nil)

	if ack.nacked != 1 || !ack.requeue {
		t.Fatalf("expected nack with requeue, got %+v", ack)
	}
}

func TestConsumerRunRequiresURL(t *testing.T) {
	c := NewConsumer(config.Intake{}, &stubSubmitter{}, nil, logging.NewNop())
	if err := c.Run(context.Background()); !errors.Is(err, services.ErrConfiguration) {
		t.Fatalf("expected configuration error, got %v", err)
	}
}
