package worker

import (
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"chartengine/internal/indicator"
	"chartengine/internal/model"
)

// Handle computes the answer to one message. It never panics: decoding
// failures, indicator errors and indicator panics all come back as
// Success=false with the error text.
func Handle(engine *indicator.Engine, msg Message) (resp Response) {
	resp = Response{TaskID: msg.TaskID}
	defer func() {
		if r := recover(); r != nil {
			resp.Success = false
			resp.Result = nil
			resp.Error = fmt.Sprintf("%s: panic: %v", msg.Type, r)
		}
		resp.Timestamp = time.Now().UnixMilli()
	}()

	result, err := handle(engine, msg)
	if err != nil {
		resp.Error = err.Error()
		return resp
	}
	resp.Success = true
	resp.Result = result
	return resp
}

func handle(engine *indicator.Engine, msg Message) (json.RawMessage, error) {
	if msg.Type == "" {
		return nil, errors.New("missing message type")
	}
	data, err := model.DecodeData(msg.Data)
	if err != nil {
		return nil, err
	}

	if msg.Type == model.KindBatch {
		var opts batchOptions
		if len(msg.Options) > 0 {
			if err := json.Unmarshal(msg.Options, &opts); err != nil {
				return nil, fmt.Errorf("decode batch options: %w", err)
			}
		}
		return json.Marshal(engine.Batch(opts.Indicators, data))
	}

	var params model.Params
	if len(msg.Options) > 0 {
		if err := json.Unmarshal(msg.Options, &params); err != nil {
			return nil, fmt.Errorf("decode options: %w", err)
		}
	}
	res, err := engine.Compute(model.Request{Kind: msg.Type, Params: params}, data)
	if err != nil {
		return nil, err
	}
	return json.Marshal(res)
}
