// Package worker runs the indicator engine behind a message-passing boundary.
//
// The orchestrator never calls the engine directly on the worker path: it
// sends a Message carrying a task id and receives a Response echoing that id.
// The same protocol is spoken by the in-process Worker goroutine and by the
// websocket Server, so a Client is interchangeable with a Worker.
package worker

import (
	"encoding/json"
	"fmt"
	"time"

	"chartengine/internal/model"
)

// TypeInit is the type of the unsolicited readiness announcement.
const TypeInit = "init"

// Message is a request from the orchestrator to the engine.
type Message struct {
	TaskID  string          `json:"taskId"`
	Type    model.Kind      `json:"type"`
	Data    json.RawMessage `json:"data"`
	Options json.RawMessage `json:"options,omitempty"`
}

// Response is the engine's answer to a Message, or the init announcement.
type Response struct {
	TaskID              string          `json:"taskId,omitempty"`
	Type                string          `json:"type,omitempty"`
	Success             bool            `json:"success"`
	Result              json.RawMessage `json:"result,omitempty"`
	Error               string          `json:"error,omitempty"`
	Timestamp           int64           `json:"timestamp"`
	SupportedIndicators []model.Kind    `json:"supportedIndicators,omitempty"`
}

// IsInit reports whether r is the readiness announcement.
func (r Response) IsInit() bool { return r.Type == TypeInit }

// batchOptions is the options payload of a batch message.
type batchOptions struct {
	Indicators []model.Request `json:"indicators"`
}

// NewMessage builds a single-indicator message. A dataset holding only a
// close series is sent as a bare array.
func NewMessage(taskID string, kind model.Kind, data model.OHLCV, params model.Params) (Message, error) {
	raw, err := encodeData(data)
	if err != nil {
		return Message{}, err
	}
	opts, err := json.Marshal(params)
	if err != nil {
		return Message{}, fmt.Errorf("encode options: %w", err)
	}
	return Message{TaskID: taskID, Type: kind, Data: raw, Options: opts}, nil
}

// NewBatchMessage builds a batch message over a shared dataset.
func NewBatchMessage(taskID string, reqs []model.Request, data model.OHLCV) (Message, error) {
	raw, err := encodeData(data)
	if err != nil {
		return Message{}, err
	}
	opts, err := json.Marshal(batchOptions{Indicators: reqs})
	if err != nil {
		return Message{}, fmt.Errorf("encode options: %w", err)
	}
	return Message{TaskID: taskID, Type: model.KindBatch, Data: raw, Options: opts}, nil
}

func encodeData(d model.OHLCV) (json.RawMessage, error) {
	var (
		raw []byte
		err error
	)
	if d.Open == nil && d.High == nil && d.Low == nil && d.Volume == nil && d.Dates == nil {
		raw, err = json.Marshal(d.Close)
	} else {
		raw, err = json.Marshal(d)
	}
	if err != nil {
		return nil, fmt.Errorf("encode data: %w", err)
	}
	return raw, nil
}

func initResponse(supported []model.Kind) Response {
	return Response{
		Type:                TypeInit,
		Success:             true,
		Timestamp:           time.Now().UnixMilli(),
		SupportedIndicators: supported,
	}
}
