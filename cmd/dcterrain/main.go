package main

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"reflect"
	"strings"
	"syscall"
	"time"

	"github.com/aukilabs/go-tooling/pkg/cli"
	"github.com/aukilabs/go-tooling/pkg/errors"
	"github.com/aukilabs/go-tooling/pkg/logs"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/segmentio/encoding/json"
	"github.com/soypat/dcterrain"
	"github.com/soypat/dcterrain/render"
	"github.com/soypat/dcterrain/terrain"
	"gonum.org/v1/gonum/spatial/r3"
)

// The dcterrain version number. Set at build.
var version = "v0.1.0"

// Keeps the cli package from seeing obfuscated option names.
var _ = reflect.TypeOf(config{})

type config struct {
	Scene       string `cli:""        env:"DCTERRAIN_SCENE"        help:"Scene file (.toml, .yaml or .json). The stock terrain is built when empty."`
	STL         string `cli:""        env:"DCTERRAIN_STL"          help:"Binary STL output path."`
	PNG         string `cli:""        env:"DCTERRAIN_PNG"          help:"Preview image output path."`
	Report      string `cli:""        env:"DCTERRAIN_REPORT"       help:"JSON build report output path."`
	Width       int    `cli:",hidden" env:"DCTERRAIN_WIDTH"        help:"Preview width in pixels."`
	Height      int    `cli:",hidden" env:"DCTERRAIN_HEIGHT"       help:"Preview height in pixels."`
	MetricsAddr string `cli:""        env:"DCTERRAIN_METRICS_ADDR" help:"Serve Prometheus metrics on this address until interrupted."`
	LogLevel    string `cli:""        env:"DCTERRAIN_LOG_LEVEL"    help:"Log level (debug|info|warning|error)."`
	Version     bool   `cli:""        env:"-"                      help:"Show version."`
	Help        bool   `cli:""        env:"-"                      help:"Show help."`
}

func main() {
	conf := config{
		Width:    800,
		Height:   600,
		LogLevel: logs.InfoLevel.String(),
	}

	ctx, cancel := cli.ContextWithSignals(context.Background(),
		os.Interrupt,
		syscall.SIGTERM,
	)
	defer cancel()

	cli.Register().
		Help("Builds a dual contoured terrain mesh from a scene of sculpting edits.").
		Options(&conf)
	cli.Load()

	if conf.Version {
		fmt.Println(version)
		os.Exit(0)
	}

	logs.SetLevel(logs.ParseLevel(conf.LogLevel))
	logs.Encoder = json.Marshal
	errors.Encoder = json.Marshal
	dcterrain.SetLogger(slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{
		Level: slogLevel(conf.LogLevel),
	})))

	if conf.MetricsAddr != "" {
		var admin http.ServeMux
		admin.Handle("/metrics", promhttp.Handler())
		srv := &http.Server{Addr: conf.MetricsAddr, Handler: &admin}
		go func() {
			logs.WithTag("addr", srv.Addr).Info("serving metrics")
			if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
				logs.Warn(errors.New("metrics server failed").Wrap(err))
			}
		}()
		defer srv.Close()
	}

	metrics := terrain.NewPrometheusMetrics(prometheus.DefaultRegisterer)
	if err := run(ctx, conf, terrain.WithMetrics(metrics)); err != nil {
		logs.Fatal(err)
	}

	if conf.MetricsAddr != "" {
		<-ctx.Done()
	}
}

func slogLevel(level string) slog.Level {
	switch strings.ToLower(level) {
	case "debug":
		return slog.LevelDebug
	case "warning", "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	}
	return slog.LevelInfo
}

// run builds the scene, replaying its edits one at a time through the
// background scheduler, and writes the requested outputs.
func run(ctx context.Context, conf config, opts ...terrain.Option) error {
	sc, err := loadScene(conf.Scene)
	if err != nil {
		return err
	}
	base, err := sc.base()
	if err != nil {
		return err
	}
	mods, err := sc.modifiers()
	if err != nil {
		return err
	}

	tr, err := terrain.New(base, sc.Terrain, opts...)
	if err != nil {
		return errors.New("creating terrain failed").Wrap(err)
	}
	defer tr.OnDestroy()

	if err := tr.SyncRebuild(ctx, nil); err != nil {
		return errors.New("building terrain failed").
			WithTag("terrain_id", tr.ID()).
			Wrap(err)
	}
	for i, m := range mods {
		tr.Edit(m)
		if err := tr.Wait(ctx); err != nil {
			return errors.New("applying edit interrupted").
				WithTag("edit", i).
				Wrap(err)
		}
		if tr.State() != terrain.Ready {
			return errors.New("applying edit failed").
				WithTag("edit", i).
				WithTag("terrain_id", tr.ID())
		}
	}

	res := tr.Result()
	logs.WithTag("terrain_id", tr.ID()).
		WithTag("version", res.Version).
		WithTag("modifiers", res.Modifiers).
		WithTag("vertices", len(res.Mesh.Vertices)).
		WithTag("triangles", res.Mesh.TriangleCount()).
		Info("terrain built")

	dropped := 0
	if conf.STL != "" {
		if dropped, err = writeSTL(conf.STL, &res.Mesh); err != nil {
			return err
		}
	}
	if conf.PNG != "" {
		view := render.DefaultView()
		view.Width, view.Height = conf.Width, conf.Height
		if err := render.SavePreview(conf.PNG, &res.Mesh, view); err != nil {
			return errors.New("writing preview failed").
				WithTag("path", conf.PNG).
				Wrap(err)
		}
	}
	if conf.Report != "" {
		if err := writeReport(conf.Report, newReport(tr, res, dropped)); err != nil {
			return err
		}
	}
	return nil
}

// writeSTL streams the non-degenerate triangles of m to path and returns
// how many were left out. Cells of different sizes meeting at an edge can
// produce triangles with repeated vertices.
func writeSTL(path string, m *render.Mesh) (int, error) {
	r := &solidTriangles{r: m.Renderer()}
	if err := render.CreateSTL(path, r); err != nil {
		return 0, errors.New("writing stl failed").WithTag("path", path).Wrap(err)
	}
	return r.dropped, nil
}

// solidTriangles drops triangles without area from a Renderer.
type solidTriangles struct {
	r       render.Renderer
	dropped int
}

func (s *solidTriangles) ReadTriangles(dst []render.Triangle3) (int, error) {
	n, err := s.r.ReadTriangles(dst)
	kept := 0
	for _, t := range dst[:n] {
		if t.Degenerate(1e-6) || t.Normal() == (r3.Vec{}) {
			s.dropped++
			continue
		}
		dst[kept] = t
		kept++
	}
	return kept, err
}

type report struct {
	TerrainID    string        `json:"terrain_id"`
	Version      uint64        `json:"version"`
	Modifiers    int           `json:"modifiers"`
	Vertices     int           `json:"vertices"`
	Triangles    int           `json:"triangles"`
	Degenerate   int           `json:"degenerate"`
	Internal     int           `json:"internal_nodes"`
	Leaves       int           `json:"leaves"`
	PseudoLeaves int           `json:"pseudo_leaves"`
	CacheHits    int           `json:"cache_hits"`
	CacheMisses  int           `json:"cache_misses"`
	Elapsed      time.Duration `json:"elapsed_ns"`
	BoundsMin    [3]float64    `json:"bounds_min"`
	BoundsMax    [3]float64    `json:"bounds_max"`
}

func newReport(tr *terrain.Terrain, res *terrain.Result, degenerate int) report {
	bb := res.Mesh.Bounds()
	return report{
		TerrainID:    tr.ID().String(),
		Version:      res.Version,
		Modifiers:    res.Modifiers,
		Vertices:     len(res.Mesh.Vertices),
		Triangles:    res.Mesh.TriangleCount(),
		Degenerate:   degenerate,
		Internal:     res.Nodes.Internal,
		Leaves:       res.Nodes.Leaf,
		PseudoLeaves: res.Nodes.Pseudo,
		CacheHits:    res.Cache.Hits,
		CacheMisses:  res.Cache.Misses,
		Elapsed:      res.Elapsed,
		BoundsMin:    [3]float64{bb.Min.X, bb.Min.Y, bb.Min.Z},
		BoundsMax:    [3]float64{bb.Max.X, bb.Max.Y, bb.Max.Z},
	}
}

func writeReport(path string, r report) error {
	b, err := json.MarshalIndent(r, "", "  ")
	if err != nil {
		return errors.New("encoding report failed").Wrap(err)
	}
	if err := os.WriteFile(path, b, 0o644); err != nil {
		return errors.New("writing report failed").WithTag("path", path).Wrap(err)
	}
	return nil
}
