package engine

import (
	"fmt"
	"sync"

	ort "github.com/yalue/onnxruntime_go"
)

// ORTRuntime opens model sessions through ONNX Runtime. The shared library
// is initialized once for the process; sessions themselves are cached by the
// Engine, not here.
type ORTRuntime struct {
	libPath string
	once    sync.Once
	initErr error
}

// NewORTRuntime returns a runtime backed by the ONNX Runtime shared library
// at libPath. An empty path leaves the binding's default lookup in place.
func NewORTRuntime(libPath string) *ORTRuntime {
	return &ORTRuntime{libPath: libPath}
}

// Open creates a session for the model at path with the given tensor names.
func (r *ORTRuntime) Open(path string, inputs, outputs []string) (ModelRunner, error) {
	r.once.Do(func() {
		if r.libPath != "" {
			ort.SetSharedLibraryPath(r.libPath)
		}
		r.initErr = ort.InitializeEnvironment()
	})
	if r.initErr != nil {
		return nil, fmt.Errorf("onnxruntime init: %w", r.initErr)
	}

	sess, err := ort.NewDynamicAdvancedSession(path, inputs, outputs, nil)
	if err != nil {
		return nil, fmt.Errorf("create session for %s: %w", path, err)
	}
	return &ortSession{sess: sess, numOutputs: len(outputs)}, nil
}

type ortSession struct {
	mu         sync.Mutex
	sess       *ort.DynamicAdvancedSession
	numOutputs int
}

// Run executes the session with positional inputs. Output tensors are
// allocated by the runtime and copied out before being destroyed.
func (s *ortSession) Run(inputs []Tensor) ([]Tensor, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	vals := make([]ort.Value, len(inputs))
	for i, t := range inputs {
		shape := ort.NewShape(t.Shape...)
		var v ort.Value
		var err error
		if t.Ints != nil {
			v, err = ort.NewTensor(shape, t.Ints)
		} else {
			v, err = ort.NewTensor(shape, t.Floats)
		}
		if err != nil {
			destroyAll(vals[:i])
			return nil, fmt.Errorf("input tensor %d: %w", i, err)
		}
		vals[i] = v
	}
	defer destroyAll(vals)

	outs := make([]ort.Value, s.numOutputs)
	if err := s.sess.Run(vals, outs); err != nil {
		return nil, err
	}
	defer destroyAll(outs)

	results := make([]Tensor, 0, len(outs))
	for i, o := range outs {
		ft, ok := o.(*ort.Tensor[float32])
		if !ok {
			return nil, fmt.Errorf("output %d is not a float32 tensor", i)
		}
		src := ft.GetData()
		data := make([]float32, len(src))
		copy(data, src)
		results = append(results, Tensor{
			Shape:  append([]int64(nil), ft.GetShape()...),
			Floats: data,
		})
	}
	return results, nil
}

func (s *ortSession) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.sess.Destroy()
}

func destroyAll(vals []ort.Value) {
	for _, v := range vals {
		if v != nil {
			_ = v.Destroy()
		}
	}
}
