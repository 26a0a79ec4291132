package scoring

import (
	"context"
	"os"
	"path/filepath"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"airquality/internal/domain/features"
	"airquality/internal/domain/prediction"
	"airquality/internal/ml"
	"airquality/pkg/errors"
)

type stubSession struct {
	output float32
	err    error
	runs   atomic.Int32

	mu   sync.Mutex
	last []float32
}

func (s *stubSession) Run(input []float32) (float32, error) {
	s.runs.Add(1)
	s.mu.Lock()
	s.last = append([]float32(nil), input...)
	s.mu.Unlock()
	return s.output, s.err
}

func (s *stubSession) InputWidth() int { return 15 }
func (s *stubSession) Destroy()        {}

type memCache struct {
	mu      sync.Mutex
	entries map[string]prediction.Result
	getErr  error
}

func (c *memCache) Get(_ context.Context, mode prediction.Mode, key string) (*prediction.Result, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.getErr != nil {
		return nil, c.getErr
	}
	res, ok := c.entries[mode.String()+key]
	if !ok {
		return nil, nil
	}
	return &res, nil
}

func (c *memCache) Set(_ context.Context, mode prediction.Mode, key string, res prediction.Result) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.entries == nil {
		c.entries = make(map[string]prediction.Result)
	}
	c.entries[mode.String()+key] = res
	return nil
}

type memRepo struct {
	mu      sync.Mutex
	records []prediction.Record
}

func (r *memRepo) Store(_ context.Context, rec *prediction.Record) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.records = append(r.records, *rec)
	return nil
}

func (r *memRepo) GetRecent(context.Context, prediction.Mode, int) ([]prediction.Record, error) {
	return nil, nil
}

type memPublisher struct {
	mu        sync.Mutex
	published []prediction.Record
	err       error
}

func (p *memPublisher) PublishPrediction(_ context.Context, rec *prediction.Record) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.published = append(p.published, *rec)
	return p.err
}

func readyHandle(t *testing.T, mode prediction.Mode, session ml.Session) *ml.Handle {
	t.Helper()
	h := ml.NewHandle(mode, "test.onnx", func(string) (ml.Session, error) { return session, nil })
	require.True(t, h.Load())
	require.NoError(t, h.Wait(context.Background()))
	return h
}

func germany() features.RawInput {
	return features.RawInput{CO: "2", Ozone: "36", NO2: "4", PM25: "48", Country: "Germany"}
}

func newService(t *testing.T, deps Deps) *Service {
	t.Helper()
	if deps.Schema == nil {
		schema, err := features.DefaultSchema()
		require.NoError(t, err)
		deps.Schema = schema
	}
	if deps.Runner == nil {
		deps.Runner = ml.NewAdapter(time.Second)
	}
	svc, err := NewService(deps)
	require.NoError(t, err)
	return svc
}

func TestService_ClassifyAndRegressShareOneEncoding(t *testing.T) {
	cls := &stubSession{output: 1.2}
	reg := &stubSession{output: 42.567}

	svc := newService(t, Deps{Handles: []*ml.Handle{
		readyHandle(t, prediction.ModeClassify, cls),
		readyHandle(t, prediction.ModeRegress, reg),
	}})

	ctx := context.Background()
	c, err := svc.Predict(ctx, prediction.ModeClassify, germany(), Options{Source: SourceHTTP})
	require.NoError(t, err)
	assert.Equal(t, "Good (or better) (Probability: 0.7685)", c.Result.Display)
	assert.Equal(t, "Germany", c.Record.Category)

	r, err := svc.Predict(ctx, prediction.ModeRegress, germany(), Options{Source: SourceHTTP})
	require.NoError(t, err)
	assert.Equal(t, "42.57", r.Result.Display)

	assert.Equal(t, cls.last, reg.last, "both modes must see the identical vector")
	require.Len(t, cls.last, 15)
	assert.Equal(t, float32(1), cls.last[8])
}

func TestService_NotReadyBeforeParsing(t *testing.T) {
	h := ml.NewHandle(prediction.ModeClassify, "slow.onnx", func(string) (ml.Session, error) {
		select {}
	})
	h.Load()

	svc := newService(t, Deps{Handles: []*ml.Handle{h}})

	// garbage input still gets the loading answer
	_, err := svc.Predict(context.Background(), prediction.ModeClassify, features.RawInput{CO: "abc"}, Options{})
	require.Error(t, err)
	assert.True(t, errors.Is(err, errors.ErrNotReady))
	assert.Equal(t, prediction.MessageNotReady, prediction.UserMessage(err))
	assert.False(t, svc.Ready())
}

func TestService_FailedLoad(t *testing.T) {
	h := ml.NewHandle(prediction.ModeRegress, "missing.onnx", func(string) (ml.Session, error) {
		return nil, errors.New("file not found")
	})
	h.Load()
	require.Error(t, h.Wait(context.Background()))

	svc := newService(t, Deps{Handles: []*ml.Handle{h}})
	_, err := svc.Predict(context.Background(), prediction.ModeRegress, germany(), Options{})
	assert.True(t, errors.Is(err, errors.ErrLoad))

	status := svc.Status()
	require.Len(t, status, 1)
	assert.Equal(t, "failed", status[0].State)
	assert.Contains(t, status[0].Message, "Error loading regression model: ")
}

func TestService_InvalidInputNeverDefaultsToZero(t *testing.T) {
	session := &stubSession{output: 1}
	svc := newService(t, Deps{Handles: []*ml.Handle{readyHandle(t, prediction.ModeClassify, session)}})

	in := germany()
	in.NO2 = ""
	_, err := svc.Predict(context.Background(), prediction.ModeClassify, in, Options{})
	require.Error(t, err)
	assert.True(t, errors.Is(err, errors.ErrInvalidInput))
	assert.Equal(t, int32(0), session.runs.Load())
}

func TestService_DisabledMode(t *testing.T) {
	svc := newService(t, Deps{Handles: []*ml.Handle{readyHandle(t, prediction.ModeClassify, &stubSession{})}})

	_, err := svc.Predict(context.Background(), prediction.ModeRegress, germany(), Options{})
	assert.True(t, errors.Is(err, errors.ErrNotFound))

	_, err = svc.Reload(prediction.ModeRegress)
	assert.True(t, errors.Is(err, errors.ErrNotFound))
}

func TestService_RuntimeErrorKeepsModelReady(t *testing.T) {
	session := &stubSession{err: errors.New("bad shape")}
	svc := newService(t, Deps{Handles: []*ml.Handle{readyHandle(t, prediction.ModeClassify, session)}})

	_, err := svc.Predict(context.Background(), prediction.ModeClassify, germany(), Options{})
	require.Error(t, err)
	assert.True(t, errors.Is(err, errors.ErrInferenceRuntime))
	assert.Equal(t, prediction.MessagePredictionError, prediction.UserMessage(err))
	assert.True(t, svc.Ready())
}

func TestService_CacheHitSkipsEngine(t *testing.T) {
	session := &stubSession{output: -0.0001}
	cache := &memCache{}
	repo := &memRepo{}
	pub := &memPublisher{}

	svc := newService(t, Deps{
		Handles:    []*ml.Handle{readyHandle(t, prediction.ModeClassify, session)},
		Cache:      cache,
		Repository: repo,
		Publisher:  pub,
	})

	ctx := context.Background()
	first, err := svc.Predict(ctx, prediction.ModeClassify, germany(), Options{Source: SourceHTTP})
	require.NoError(t, err)
	assert.False(t, first.Record.Cached)

	second, err := svc.Predict(ctx, prediction.ModeClassify, germany(), Options{Source: SourceHTTP})
	require.NoError(t, err)
	assert.True(t, second.Record.Cached)
	assert.Equal(t, first.Result, second.Result)
	assert.Equal(t, prediction.LabelNotGood, second.Result.Classification.Label)

	assert.Equal(t, int32(1), session.runs.Load())
	assert.Len(t, repo.records, 2)
	assert.Len(t, pub.published, 2)
	assert.NotEqual(t, repo.records[0].ID, repo.records[1].ID)
}

func TestService_ReplacedArtifactMissesCache(t *testing.T) {
	path := filepath.Join(t.TempDir(), "reg.onnx")
	require.NoError(t, os.WriteFile(path, []byte("graph-v1"), 0o600))

	sessions := []*stubSession{{output: 10}, {output: 20}}
	var loads atomic.Int32
	h := ml.NewHandle(prediction.ModeRegress, path, func(string) (ml.Session, error) {
		return sessions[loads.Add(1)-1], nil
	})
	svc := newService(t, Deps{Handles: []*ml.Handle{h}, Cache: &memCache{}})

	svc.LoadAll()
	require.NoError(t, svc.WaitReady(context.Background()))

	ctx := context.Background()
	first, err := svc.Predict(ctx, prediction.ModeRegress, germany(), Options{})
	require.NoError(t, err)
	assert.Equal(t, "10.00", first.Result.Display)

	h.Close()
	require.NoError(t, os.WriteFile(path, []byte("graph-v2-retrained"), 0o600))
	started, err := svc.Reload(prediction.ModeRegress)
	require.NoError(t, err)
	require.True(t, started)
	require.NoError(t, svc.WaitReady(ctx))

	second, err := svc.Predict(ctx, prediction.ModeRegress, germany(), Options{})
	require.NoError(t, err)
	assert.False(t, second.Record.Cached)
	assert.Equal(t, "20.00", second.Result.Display)
	assert.Equal(t, int32(1), sessions[1].runs.Load())
}

func TestService_SideEffectFailuresDoNotFailPrediction(t *testing.T) {
	session := &stubSession{output: 3}
	svc := newService(t, Deps{
		Handles:   []*ml.Handle{readyHandle(t, prediction.ModeRegress, session)},
		Cache:     &memCache{getErr: errors.ErrUnavailable},
		Publisher: &memPublisher{err: errors.ErrUnavailable},
	})

	out, err := svc.Predict(context.Background(), prediction.ModeRegress, germany(), Options{})
	require.NoError(t, err)
	assert.Equal(t, "3.00", out.Result.Display)
	assert.Equal(t, int32(1), session.runs.Load())
}

func TestService_UnknownCountryFallsBack(t *testing.T) {
	session := &stubSession{output: 10}
	svc := newService(t, Deps{Handles: []*ml.Handle{readyHandle(t, prediction.ModeRegress, session)}})

	out, err := svc.PredictReading(context.Background(), prediction.ModeRegress,
		features.Reading{CO: 1, Ozone: 1, NO2: 1, PM25: 1, Country: "Atlantis"},
		Options{Source: SourceKafka, ReadingID: "r-9"})
	require.NoError(t, err)
	assert.Equal(t, "Other", out.Record.Category)
	assert.Equal(t, "Atlantis", out.Record.Reading.Country)
	assert.Equal(t, "r-9", out.Record.ReadingID)
	assert.Equal(t, float32(1), session.last[14])
}

func TestService_ReloadAfterFailure(t *testing.T) {
	var attempts atomic.Int32
	session := &stubSession{output: 5}
	h := ml.NewHandle(prediction.ModeRegress, "flaky.onnx", func(string) (ml.Session, error) {
		if attempts.Add(1) == 1 {
			return nil, errors.New("disk hiccup")
		}
		return session, nil
	})
	svc := newService(t, Deps{Handles: []*ml.Handle{h}})

	svc.LoadAll()
	require.Error(t, svc.WaitReady(context.Background()))

	started, err := svc.Reload(prediction.ModeRegress)
	require.NoError(t, err)
	assert.True(t, started)
	require.NoError(t, svc.WaitReady(context.Background()))
	assert.True(t, svc.Ready())

	started, err = svc.Reload(prediction.ModeRegress)
	require.NoError(t, err)
	assert.False(t, started, "a ready model is not reloaded")
}

func TestService_Snapshots(t *testing.T) {
	svc := newService(t, Deps{Handles: []*ml.Handle{readyHandle(t, prediction.ModeClassify, &stubSession{})}})

	snaps := svc.ModelSnapshots()
	require.Len(t, snaps, 1)
	assert.Equal(t, "classify", snaps[0].Mode)
	assert.True(t, snaps[0].Ready)
	assert.Equal(t, svc.Schema().Version(), svc.SchemaVersion())
}

func TestNewService_RejectsDuplicateModes(t *testing.T) {
	schema, err := features.DefaultSchema()
	require.NoError(t, err)

	_, err = NewService(Deps{
		Schema: schema,
		Runner: ml.NewAdapter(time.Second),
		Handles: []*ml.Handle{
			ml.NewHandle(prediction.ModeClassify, "a", nil),
			ml.NewHandle(prediction.ModeClassify, "b", nil),
		},
	})
	assert.True(t, errors.Is(err, errors.ErrConfig))
}
