package scan

import (
	"context"
	"fmt"

	"github.com/okian/frameevents/internal/domain/model"
)

// Stack is an Accessor over frames already held in memory, indexed by
// position.
type Stack []model.Frame

// Fetch returns the frame at position.
func (s Stack) Fetch(_ context.Context, position int) (model.Frame, error) {
	if position < 0 || position >= len(s) {
		return model.Frame{}, fmt.Errorf("position %d out of range [0, %d)", position, len(s))
	}
	return s[position], nil
}
