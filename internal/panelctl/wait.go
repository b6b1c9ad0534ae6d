package panelctl

import (
	"fmt"
	"time"

	"github.com/edvin/panel/internal/model"
)

// PollInterval is how often AwaitOperation re-reads an operation.
var PollInterval = time.Second

// AwaitOperation polls an operation until it reaches a terminal state or
// timeout passes. A failed or cancelled operation is returned as an error.
func (c *Client) AwaitOperation(id string, timeout time.Duration) (model.Operation, error) {
	deadline := time.Now().Add(timeout)
	for {
		var op model.Operation
		if err := c.Get("/operations/"+id, &op); err != nil {
			return op, fmt.Errorf("await operation %s: %w", id, err)
		}
		if op.Done() {
			if op.State != model.StatusSucceeded {
				return op, fmt.Errorf("operation %s (%s %s) %s: %s", op.ID, op.Kind, op.Target, op.State, op.Error)
			}
			return op, nil
		}
		if time.Now().After(deadline) {
			return op, fmt.Errorf("operation %s still %s after %s", id, op.State, timeout)
		}
		time.Sleep(PollInterval)
	}
}
