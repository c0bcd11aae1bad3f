// Package terrain keeps the dual contoured mesh of a sculptable density
// field up to date.
//
// Edits are appended to the field and trigger a rebuild on a background
// goroutine. A rebuild requested while another is running cancels it and
// waits for it to exit before starting. Completed builds are published as
// an immutable Result which the render thread turns into a GPU mesh by
// calling Update.
package terrain

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/soypat/dcterrain"
	"github.com/soypat/dcterrain/density"
	"github.com/soypat/dcterrain/octree"
	"github.com/soypat/dcterrain/render"
	"gonum.org/v1/gonum/spatial/r3"
)

// State is the rebuild state of a terrain.
type State int32

const (
	// Idle terrains have no build in flight and nothing new to show.
	Idle State = iota
	// Building terrains have a build in flight.
	Building
	// Ready terrains have published the result of their last build.
	Ready
)

func (s State) String() string {
	switch s {
	case Idle:
		return "idle"
	case Building:
		return "building"
	case Ready:
		return "ready"
	}
	return fmt.Sprintf("State(%d)", int32(s))
}

// MeshResource is a mesh allocated by a ResourceFactory.
type MeshResource interface {
	Dispose() error
}

// ResourceFactory allocates render resources. It is only called from
// SyncRebuild, Initialise and Update, which must run on the goroutine that
// owns rendering resources.
type ResourceFactory interface {
	// CreateMesh uploads m. m belongs to a published Result and must not
	// be modified.
	CreateMesh(m *render.Mesh) (MeshResource, error)
}

// Result is a published build. It is never modified after publication.
type Result struct {
	// Version increases by one with every published build.
	Version uint64
	// Mesh is empty when no surface crosses the octree.
	Mesh render.Mesh
	// Nodes counts the simplified octree.
	Nodes octree.NodeCount
	// Cache reports density cache behaviour of the build.
	Cache density.Stats
	// Modifiers is the number of modifiers the build reflects.
	Modifiers int
	// Region is the edited region that requested the build, if any.
	Region  *r3.Box
	Elapsed time.Duration
}

// Option configures a Terrain.
type Option func(*Terrain)

// WithMetrics sets the instrumentation sink. The default discards it.
func WithMetrics(m Metrics) Option {
	return func(t *Terrain) { t.metrics = m }
}

// WithLogger sets the logger. The default is dcterrain.Logger().
func WithLogger(l *slog.Logger) Option {
	return func(t *Terrain) { t.log = l }
}

// WithPool shares a node pool between terrains.
func WithPool(p *octree.Pool) Option {
	return func(t *Terrain) { t.pool = p }
}

// Terrain is a sculptable density field together with its current octree
// and mesh.
type Terrain struct {
	id      uuid.UUID
	cfg     Config
	field   *density.Field
	pool    *octree.Pool
	metrics Metrics
	log     *slog.Logger

	state   atomic.Int32
	result  atomic.Pointer[Result]
	version atomic.Uint64

	mu        sync.Mutex
	root      *octree.Node
	job       *job
	destroyed bool

	// Render thread state.
	renderMu  sync.Mutex
	resources ResourceFactory
	mesh      MeshResource
	uploaded  uint64
}

// job is one build, in flight or finished.
type job struct {
	cancel context.CancelFunc
	done   chan struct{}
}

// New returns an idle terrain over base.
func New(base dcterrain.SDF3, cfg Config, opts ...Option) (*Terrain, error) {
	if base == nil {
		return nil, errors.New("nil base density")
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid terrain config: %w", err)
	}
	t := &Terrain{
		id:    uuid.New(),
		cfg:   cfg,
		field: density.NewField(base),
	}
	for _, opt := range opts {
		opt(t)
	}
	if t.pool == nil {
		t.pool = octree.NewPool()
	}
	if t.metrics == nil {
		t.metrics = NopMetrics{}
	}
	if t.log == nil {
		t.log = dcterrain.Logger()
	}
	t.log = t.log.With(slog.String("terrain_id", t.id.String()))
	t.log.Debug("terrain created", slog.Int("octree_size", cfg.OctreeSize))
	return t, nil
}

// ID returns the unique id of the terrain.
func (t *Terrain) ID() uuid.UUID { return t.id }

// Field returns the density field of the terrain.
func (t *Terrain) Field() *density.Field { return t.field }

// Pool returns the node pool of the terrain.
func (t *Terrain) Pool() *octree.Pool { return t.pool }

// Config returns the octree configuration.
func (t *Terrain) Config() Config { return t.cfg }

// State returns the rebuild state.
func (t *Terrain) State() State { return State(t.state.Load()) }

// Result returns the last published build, or nil before the first one.
func (t *Terrain) Result() *Result { return t.result.Load() }

// Start queues the first build unless one was already requested.
func (t *Terrain) Start() {
	t.mu.Lock()
	started := t.job != nil || t.result.Load() != nil
	t.mu.Unlock()
	if !started {
		t.QueueRebuild(nil)
	}
}

// Edit appends m to the field and queues a rebuild of its region.
func (t *Terrain) Edit(m density.Modifier) {
	t.field.AddModifier(m)
	region := m.Bounds()
	t.QueueRebuild(&region)
}

// QueueRebuild starts a background build, superseding any build in
// flight. The whole octree is rebuilt; region only tags the result.
func (t *Terrain) QueueRebuild(region *r3.Box) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.destroyed {
		return
	}
	ctx, j, prev := t.supersede(context.Background())
	go func() {
		defer close(j.done)
		defer j.cancel()
		if prev != nil {
			<-prev.done
		}
		res, root, err := t.build(ctx, region)
		t.finish(j, res, root, err)
	}()
}

// supersede cancels the build in flight and registers a new one.
// t.mu must be held.
func (t *Terrain) supersede(parent context.Context) (context.Context, *job, *job) {
	prev := t.job
	if prev != nil {
		prev.cancel()
	}
	ctx, cancel := context.WithCancel(parent)
	j := &job{cancel: cancel, done: make(chan struct{})}
	t.job = j
	t.state.Store(int32(Building))
	return ctx, j, prev
}

// SyncRebuild builds on the calling goroutine, publishes the result and
// uploads it through resources.
func (t *Terrain) SyncRebuild(ctx context.Context, resources ResourceFactory) error {
	t.mu.Lock()
	if t.destroyed {
		t.mu.Unlock()
		return errors.New("terrain destroyed")
	}
	ctx, j, prev := t.supersede(ctx)
	t.mu.Unlock()

	if prev != nil {
		<-prev.done
	}
	res, root, err := t.build(ctx, nil)
	t.finish(j, res, root, err)
	j.cancel()
	close(j.done)
	if err != nil {
		return err
	}
	if resources != nil {
		t.renderMu.Lock()
		t.resources = resources
		t.renderMu.Unlock()
	}
	return t.Update()
}

// Initialise attaches the resource factory. A terrain without any
// published build is built synchronously so that a mesh exists on return.
func (t *Terrain) Initialise(ctx context.Context, resources ResourceFactory) error {
	if resources == nil {
		return errors.New("nil resource factory")
	}
	t.renderMu.Lock()
	t.resources = resources
	t.renderMu.Unlock()
	if t.Result() == nil {
		return t.SyncRebuild(ctx, resources)
	}
	return t.Update()
}

// Update uploads the last published result if it has not been uploaded
// yet, disposing the previous mesh. It must be called on the goroutine
// that owns rendering resources.
func (t *Terrain) Update() error {
	res := t.result.Load()
	t.renderMu.Lock()
	defer t.renderMu.Unlock()
	if res == nil || t.resources == nil || res.Version == t.uploaded {
		return nil
	}
	var mesh MeshResource
	if !res.Mesh.Empty() {
		var err error
		mesh, err = t.resources.CreateMesh(&res.Mesh)
		if err != nil {
			return fmt.Errorf("creating mesh of build %d: %w", res.Version, err)
		}
	}
	if t.mesh != nil {
		if err := t.mesh.Dispose(); err != nil {
			t.log.Warn("mesh dispose failed", slog.Uint64("version", t.uploaded), slog.Any("error", err))
		}
	}
	t.mesh = mesh
	t.uploaded = res.Version
	t.log.Debug("mesh uploaded", slog.Uint64("version", res.Version))
	return nil
}

// Wait blocks until no build is in flight or ctx is done.
func (t *Terrain) Wait(ctx context.Context) error {
	for {
		t.mu.Lock()
		j := t.job
		t.mu.Unlock()
		if j == nil {
			return nil
		}
		select {
		case <-j.done:
		case <-ctx.Done():
			return ctx.Err()
		}
	}
}

// OnDestroy cancels the build in flight, waits for it to exit and
// releases the octree to the pool. Later rebuild requests are ignored.
func (t *Terrain) OnDestroy() {
	t.mu.Lock()
	t.destroyed = true
	j := t.job
	if j != nil {
		j.cancel()
	}
	t.mu.Unlock()
	if j != nil {
		<-j.done
	}
	t.mu.Lock()
	t.pool.Release(t.root)
	t.root = nil
	t.state.Store(int32(Idle))
	t.mu.Unlock()
	t.log.Debug("terrain destroyed")
}

// Dispose destroys the terrain and disposes its mesh resource.
func (t *Terrain) Dispose() error {
	t.OnDestroy()
	t.renderMu.Lock()
	defer t.renderMu.Unlock()
	if t.mesh == nil {
		return nil
	}
	err := t.mesh.Dispose()
	t.mesh = nil
	return err
}

// build runs the octree pipeline over the field. On error every node is
// back in the pool and the density pass is aborted.
func (t *Terrain) build(ctx context.Context, region *r3.Box) (*Result, *octree.Node, error) {
	start := time.Now()
	pass := t.field.Begin()
	root, err := t.cfg.builder(t.pool).Build(ctx, t.cfg.Origin, t.cfg.OctreeSize, pass)
	if err == nil {
		root, err = octree.Simplify(ctx, root, t.cfg.SimplifyThreshold, t.pool, t.cfg.QEFParams())
	}
	stats := pass.Stats()
	if err != nil {
		pass.Abort()
		t.pool.Release(root)
		outcome := OutcomeError
		if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
			outcome = OutcomeCanceled
		}
		t.metrics.BuildFinished(outcome, time.Since(start))
		t.log.Debug("build aborted", slog.String("outcome", string(outcome)), slog.Any("error", err))
		return nil, nil, err
	}
	pass.Commit()
	t.metrics.CacheUsed(stats.Hits, stats.Misses)

	res := &Result{
		Mesh:      octree.Contour(root),
		Nodes:     octree.Count(root),
		Cache:     stats,
		Modifiers: pass.Modifiers(),
		Region:    region,
		Elapsed:   time.Since(start),
	}
	outcome := OutcomeOK
	if root == nil {
		outcome = OutcomeEmpty
	}
	t.metrics.BuildFinished(outcome, res.Elapsed)
	t.log.Debug("build complete",
		slog.String("outcome", string(outcome)),
		slog.Int("cache_hits", stats.Hits),
		slog.Int("cache_misses", stats.Misses),
		slog.Int("leaves", res.Nodes.Leaf),
		slog.Int("pseudo_leaves", res.Nodes.Pseudo),
		slog.Duration("elapsed", res.Elapsed),
	)
	return res, root, nil
}

// finish publishes the outcome of job j. Builds superseded while running
// are discarded.
func (t *Terrain) finish(j *job, res *Result, root *octree.Node, err error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	current := t.job == j
	if current {
		t.job = nil
	}
	if err != nil || !current || t.destroyed {
		t.pool.Release(root)
		if current {
			t.state.Store(int32(Idle))
		}
		return
	}
	t.pool.Release(t.root)
	t.root = root
	res.Version = t.version.Add(1)
	t.result.Store(res)
	t.state.Store(int32(Ready))
	t.metrics.MeshPublished(len(res.Mesh.Vertices), res.Mesh.TriangleCount())
	t.log.Info("mesh published",
		slog.Uint64("version", res.Version),
		slog.Int("vertices", len(res.Mesh.Vertices)),
		slog.Int("triangles", res.Mesh.TriangleCount()),
	)
}
