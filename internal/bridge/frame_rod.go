package bridge

import (
	"context"
	"encoding/json"

	"github.com/go-rod/rod"
)

// rodFrame evaluates scripts on a rod page attached to the challenge
// frame target.
type rodFrame struct {
	page *rod.Page
}

// NewRodFrame wraps a rod page (usually obtained from the frame's
// element via Frame()) as a bridge evaluation target.
func NewRodFrame(page *rod.Page) Frame {
	return &rodFrame{page: page}
}

func (f *rodFrame) Eval(ctx context.Context, js string, args ...interface{}) (json.RawMessage, error) {
	res, err := f.page.Context(ctx).Evaluate(&rod.EvalOptions{
		JS:           js,
		JSArgs:       args,
		ByValue:      true,
		AwaitPromise: true,
	})
	if err != nil {
		return nil, err
	}
	if res.Value.Nil() {
		return nil, nil
	}
	return res.Value.MarshalJSON()
}
