package bridge

import "github.com/ktwin/mqtt-bridge/internal/model"

// ClearBody returns a copy of msg with an empty body. Headers are cloned, msg is untouched.
func ClearBody(msg model.Message) model.Message {
	return model.Message{
		Headers: msg.Headers.Clone(),
		Body:    []byte{},
	}
}
