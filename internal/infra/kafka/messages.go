package kafka

import (
	"encoding/json"
	"fmt"
	"io"
	"time"

	kafkago "github.com/segmentio/kafka-go"

	"cppide/internal/domain/execution"
)

const (
	messageTypeRequest = "request"
	messageTypeDone    = "done"
)

type requestEnvelope struct {
	Type     string   `json:"type"`
	ID       string   `json:"id,omitempty"`
	Language string   `json:"language,omitempty"`
	Source   string   `json:"source,omitempty"`
	Compiler string   `json:"compiler,omitempty"`
	Standard string   `json:"standard,omitempty"`
	Flags    []string `json:"flags,omitempty"`
	Stdin    []string `json:"stdin,omitempty"`
}

type resultEnvelope struct {
	ID        string               `json:"id"`
	Kind      execution.ReportKind `json:"kind"`
	Build     *buildEnvelope       `json:"build,omitempty"`
	Run       *runEnvelope         `json:"run,omitempty"`
	Output    []string             `json:"output,omitempty"`
	Error     string               `json:"error,omitempty"`
	Timestamp time.Time            `json:"timestamp"`
}

type buildEnvelope struct {
	Succeeded   bool                  `json:"succeeded"`
	FailureKind execution.FailureKind `json:"failure_kind"`
	ExitCode    int                   `json:"exit_code"`
	Command     []string              `json:"command,omitempty"`
	Stdout      string                `json:"stdout,omitempty"`
	Stderr      string                `json:"stderr,omitempty"`
	Message     string                `json:"message,omitempty"`
	DurationMs  int64                 `json:"duration_ms"`
}

type runEnvelope struct {
	SessionID  string             `json:"session_id"`
	State      execution.RunState `json:"state"`
	ExitCode   int                `json:"exit_code"`
	DurationMs int64              `json:"duration_ms"`
}

func decodeRequestMessage(msg kafkago.Message) (execution.BuildRequest, error) {
	var envelope requestEnvelope
	if err := json.Unmarshal(msg.Value, &envelope); err != nil {
		return execution.BuildRequest{}, fmt.Errorf("decode message: %w", err)
	}

	msgType := envelope.Type
	if msgType == "" {
		msgType = messageTypeRequest
	}

	switch msgType {
	case messageTypeRequest:
		return envelope.toRequest(msg)
	case messageTypeDone:
		return execution.BuildRequest{}, io.EOF
	default:
		return execution.BuildRequest{}, fmt.Errorf("unknown message type %q", msgType)
	}
}

func (e requestEnvelope) toRequest(msg kafkago.Message) (execution.BuildRequest, error) {
	if e.Source == "" {
		return execution.BuildRequest{}, fmt.Errorf("request message missing source")
	}
	lang, err := execution.ParseLanguage(e.Language)
	if err != nil {
		return execution.BuildRequest{}, fmt.Errorf("request message: %w", err)
	}

	id := e.ID
	if id == "" {
		id = string(msg.Key)
	}
	if id == "" {
		id = fmt.Sprintf("%s:%d", msg.Topic, msg.Offset)
	}

	req := execution.BuildRequest{
		ID:       id,
		Language: lang,
		Source:   e.Source,
		Stdin:    e.Stdin,
	}
	if e.Compiler != "" || e.Standard != "" || e.Flags != nil {
		req.Config = &execution.BuildConfig{
			Compiler: e.Compiler,
			Standard: e.Standard,
			Flags:    e.Flags,
		}
	}
	return req, nil
}

func encodeRequest(req execution.BuildRequest) ([]byte, error) {
	envelope := requestEnvelope{
		Type:     messageTypeRequest,
		ID:       req.ID,
		Language: string(req.Language),
		Source:   req.Source,
		Stdin:    req.Stdin,
	}
	if req.Config != nil {
		envelope.Compiler = req.Config.Compiler
		envelope.Standard = req.Config.Standard
		envelope.Flags = req.Config.Flags
	}

	payload, err := json.Marshal(envelope)
	if err != nil {
		return nil, fmt.Errorf("marshal request: %w", err)
	}
	return payload, nil
}

func encodeReport(report execution.Report) ([]byte, error) {
	payload, err := json.Marshal(makeResultEnvelope(report))
	if err != nil {
		return nil, fmt.Errorf("marshal result: %w", err)
	}
	return payload, nil
}

func makeResultEnvelope(report execution.Report) resultEnvelope {
	envelope := resultEnvelope{
		ID:        report.RequestID,
		Kind:      report.Kind,
		Output:    report.Output,
		Timestamp: time.Now().UTC(),
	}

	if b := report.Build; b != nil {
		envelope.Build = &buildEnvelope{
			Succeeded:   b.Succeeded,
			FailureKind: b.FailureKind,
			ExitCode:    b.ExitCode,
			Command:     b.Command,
			Stdout:      b.Stdout,
			Stderr:      b.Stderr,
			Message:     b.Message,
			DurationMs:  b.Duration.Milliseconds(),
		}
	}

	if x := report.Exit; x != nil {
		envelope.Run = &runEnvelope{
			SessionID:  x.SessionID,
			State:      x.State,
			ExitCode:   x.Code,
			DurationMs: x.Duration.Milliseconds(),
		}
	}

	if report.Err != nil {
		envelope.Error = report.Err.Error()
	}

	return envelope
}
