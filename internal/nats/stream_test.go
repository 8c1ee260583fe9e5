package nats

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/nats-io/nats.go/jetstream"

	"github.com/inmobiliaria/gestion-chat/pkg/logger"
)

type stubMsg struct {
	jetstream.Msg
	data []byte
	seq  uint64
}

func (m stubMsg) Data() []byte    { return m.data }
func (m stubMsg) Subject() string { return "chat.c1.entry_appended" }
func (m stubMsg) Metadata() (*jetstream.MsgMetadata, error) {
	return &jetstream.MsgMetadata{Sequence: jetstream.SequencePair{Stream: m.seq}}, nil
}

func feed(msgs ...jetstream.Msg) <-chan jetstream.Msg {
	ch := make(chan jetstream.Msg, len(msgs))
	for _, m := range msgs {
		ch <- m
	}
	close(ch)
	return ch
}

func TestSubjects(t *testing.T) {
	t.Parallel()

	id := "0190a1b2-c3d4-7e5f-8a9b-0c1d2e3f4a5b"
	if got := Subject(id, "entry_appended"); got != "chat."+id+".entry_appended" {
		t.Fatalf("Subject = %q", got)
	}
	if got := ChatFilter(id); got != "chat."+id+".>" {
		t.Fatalf("ChatFilter = %q", got)
	}
	if got := Subject("a.b*c", "x>y"); got != "chat.a_b_c.x_y" {
		t.Fatalf("Subject with separators = %q", got)
	}
}

func TestDecodeRecord(t *testing.T) {
	t.Parallel()

	rec, err := decodeRecord([]byte(`{"id":"1","chat_id":"c1","type":"agent_changed","agent":"persona","created_at":"2024-05-01T10:00:00Z"}`))
	if err != nil {
		t.Fatalf("decodeRecord: %v", err)
	}
	if rec.ChatID != "c1" || rec.Agent != "persona" {
		t.Fatalf("rec = %+v", rec)
	}

	if _, err := decodeRecord([]byte(`{"id":"1"}`)); err == nil {
		t.Fatal("record without chat id accepted")
	}
	if _, err := decodeRecord([]byte(`not json`)); err == nil {
		t.Fatal("garbage accepted")
	}
}

func TestTLSConfig(t *testing.T) {
	t.Parallel()

	cfg, err := tlsConfig(Config{URL: "nats://localhost:4222"})
	if err != nil || cfg != nil {
		t.Fatalf("plain config = %v, %v", cfg, err)
	}

	if _, err := tlsConfig(Config{CertFile: "client.pem"}); err == nil {
		t.Fatal("certificate without key accepted")
	}

	if _, err := tlsConfig(Config{CAFile: filepath.Join(t.TempDir(), "missing.pem")}); err == nil {
		t.Fatal("missing CA file accepted")
	}

	bad := filepath.Join(t.TempDir(), "ca.pem")
	if err := os.WriteFile(bad, []byte("not a certificate"), 0o600); err != nil {
		t.Fatal(err)
	}
	if _, err := tlsConfig(Config{CAFile: bad}); err == nil {
		t.Fatal("invalid CA accepted")
	}
}

func TestOptionsAddToken(t *testing.T) {
	t.Parallel()

	base, err := options(Config{}, logger.NewNop())
	if err != nil {
		t.Fatal(err)
	}
	withToken, err := options(Config{Token: "s3cret"}, logger.NewNop())
	if err != nil {
		t.Fatal(err)
	}
	if len(withToken) != len(base)+1 {
		t.Fatalf("options = %d, want %d", len(withToken), len(base)+1)
	}
}

func TestCollectKeepsCursorWhenNothingNew(t *testing.T) {
	t.Parallel()
	s := NewAuditStream(nil, 0, logger.NewNop())

	records, last, fetched := s.collect(feed(), 42)
	if len(records) != 0 || fetched != 0 {
		t.Fatalf("records = %+v, fetched = %d", records, fetched)
	}
	if last != 42 {
		t.Fatalf("last sequence = %d, want 42", last)
	}
}

func TestCollectSkipsMalformedButAdvances(t *testing.T) {
	t.Parallel()
	s := NewAuditStream(nil, 0, logger.NewNop())

	good := []byte(`{"id":"1","chat_id":"c1","type":"entry_appended","created_at":"2024-05-01T10:00:00Z"}`)
	records, last, fetched := s.collect(feed(
		stubMsg{data: good, seq: 43},
		stubMsg{data: []byte(`not json`), seq: 44},
	), 42)

	if fetched != 2 {
		t.Fatalf("fetched = %d, want 2", fetched)
	}
	if len(records) != 1 || records[0].Sequence != 43 {
		t.Fatalf("records = %+v", records)
	}
	if last != 44 {
		t.Fatalf("last sequence = %d, want 44", last)
	}
}
