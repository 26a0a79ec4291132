package ml

import (
	"os"
	"sync"

	"github.com/dustin/go-humanize"
	onnxruntime "github.com/yalue/onnxruntime_go"

	"airquality/pkg/errors"
	"airquality/pkg/logger"
)

// Session runs a loaded graph on one input row and returns its scalar output
type Session interface {
	Run(input []float32) (float32, error)
	// InputWidth is the declared feature count, 0 when the graph leaves it dynamic
	InputWidth() int
	Destroy()
}

// Loader opens the graph at path
type Loader func(path string) (Session, error)

// ONNXOptions configures LoadONNXModel
type ONNXOptions struct {
	InputName         string
	OutputName        string
	SharedLibraryPath string
}

var envMu sync.Mutex

// initEnvironment initializes the process-wide ONNX Runtime environment once
func initEnvironment(sharedLibraryPath string) error {
	envMu.Lock()
	defer envMu.Unlock()

	if onnxruntime.IsInitialized() {
		return nil
	}
	if sharedLibraryPath != "" {
		onnxruntime.SetSharedLibraryPath(sharedLibraryPath)
	}
	if err := onnxruntime.InitializeEnvironment(); err != nil {
		return errors.Wrap(err, "failed to initialize ONNX runtime")
	}
	return nil
}

// ONNXModel wraps an ONNX Runtime session with one float32 [1, N] input and one scalar output
type ONNXModel struct {
	session    *onnxruntime.DynamicAdvancedSession
	inputName  string
	outputName string
	inputWidth int
}

// NewONNXLoader returns a Loader bound to opts
func NewONNXLoader(opts ONNXOptions) Loader {
	return func(path string) (Session, error) {
		return LoadONNXModel(path, opts)
	}
}

// LoadONNXModel opens the graph at path. Every failure matches errors.ErrLoad.
func LoadONNXModel(path string, opts ONNXOptions) (*ONNXModel, error) {
	if opts.InputName == "" {
		opts.InputName = "input"
	}
	if opts.OutputName == "" {
		opts.OutputName = "output"
	}

	log := logger.Get().With("component", "onnx", "path", path)

	info, err := os.Stat(path)
	if err != nil {
		return nil, errors.Mark(errors.Wrap(err, "model artifact"), errors.ErrLoad)
	}

	if err := initEnvironment(opts.SharedLibraryPath); err != nil {
		return nil, errors.Mark(err, errors.ErrLoad)
	}

	width, err := inputWidth(path, opts.InputName)
	if err != nil {
		return nil, errors.Mark(err, errors.ErrLoad)
	}

	options, err := onnxruntime.NewSessionOptions()
	if err != nil {
		return nil, errors.Mark(errors.Wrap(err, "failed to create session options"), errors.ErrLoad)
	}
	defer options.Destroy()

	session, err := onnxruntime.NewDynamicAdvancedSession(path,
		[]string{opts.InputName}, []string{opts.OutputName}, options)
	if err != nil {
		return nil, errors.Mark(errors.Wrap(err, "failed to load ONNX model"), errors.ErrLoad)
	}

	log.Infof("Loaded ONNX model (%s, input width %d)", humanize.Bytes(uint64(info.Size())), width)

	return &ONNXModel{
		session:    session,
		inputName:  opts.InputName,
		outputName: opts.OutputName,
		inputWidth: width,
	}, nil
}

// inputWidth reads the declared last dimension of the named input
func inputWidth(path, name string) (int, error) {
	inputs, _, err := onnxruntime.GetInputOutputInfo(path)
	if err != nil {
		return 0, errors.Wrap(err, "failed to read model inputs")
	}

	for _, in := range inputs {
		if in.Name != name {
			continue
		}
		if in.DataType != onnxruntime.TensorElementDataTypeFloat {
			return 0, errors.Newf("input %q is %v, want float32", name, in.DataType)
		}
		dims := in.Dimensions
		if len(dims) == 0 || dims[len(dims)-1] <= 0 {
			return 0, nil
		}
		return int(dims[len(dims)-1]), nil
	}

	return 0, errors.Newf("model has no input named %q", name)
}

// Run feeds one row and returns the first element of the output tensor
func (m *ONNXModel) Run(input []float32) (float32, error) {
	if m.session == nil {
		return 0, errors.New("model session is destroyed")
	}

	inputTensor, err := onnxruntime.NewTensor(onnxruntime.NewShape(1, int64(len(input))), input)
	if err != nil {
		return 0, errors.Wrap(err, "failed to create input tensor")
	}
	defer inputTensor.Destroy()

	// nil lets the runtime allocate the output with whatever shape the graph declares ([1] or [1,1])
	outputs := []onnxruntime.Value{nil}
	if err := m.session.Run([]onnxruntime.Value{inputTensor}, outputs); err != nil {
		return 0, errors.Wrap(err, "inference failed")
	}
	if outputs[0] == nil {
		return 0, errors.Newf("model produced no %q output", m.outputName)
	}
	defer outputs[0].Destroy()

	tensor, ok := outputs[0].(*onnxruntime.Tensor[float32])
	if !ok {
		return 0, errors.Newf("output %q is not a float32 tensor", m.outputName)
	}

	data := tensor.GetData()
	if len(data) == 0 {
		return 0, errors.Newf("output %q is empty", m.outputName)
	}
	return data[0], nil
}

// InputWidth implements Session
func (m *ONNXModel) InputWidth() int {
	return m.inputWidth
}

// Destroy releases the session. Safe to call more than once.
func (m *ONNXModel) Destroy() {
	if m.session != nil {
		m.session.Destroy()
		m.session = nil
	}
}
