// Package main provides the luchador CLI.
package main

import (
	"context"
	"flag"
	"fmt"
	"io"
	"os"
	"strings"
	"text/tabwriter"

	"github.com/pkg/errors"
	"k8s.io/klog/v2"

	"github.com/luchador-ml/luchador/internal/backend"
	"github.com/luchador-ml/luchador/internal/backend/static"
	"github.com/luchador-ml/luchador/internal/backend/symbolic"
	"github.com/luchador-ml/luchador/internal/checkpoint"
	"github.com/luchador-ml/luchador/internal/config"
	"github.com/luchador-ml/luchador/internal/graph"
	"github.com/luchador-ml/luchador/internal/model"
	"github.com/luchador-ml/luchador/internal/session"
)

func main() {
	ctx := context.Background()
	err := run(ctx, os.Stdout)
	if err != nil {
		fmt.Fprintf(os.Stderr, "%s\n", err)
		os.Exit(1)
	}
}

func usage(w io.Writer) {
	fmt.Fprintf(w, "luchador %s\n\n", config.Version)
	fmt.Fprintln(w, "Commands:")
	fmt.Fprintln(w, "  version                                  Show version")
	fmt.Fprintln(w, "  inspect [-backend b] <model.yml>         Build models and list their variables")
	fmt.Fprintln(w, "  init [-backend b] -store s -key k <model.yml>")
	fmt.Fprintln(w, "                                           Write freshly initialized variables to a checkpoint")
	fmt.Fprintln(w, "  show -store s -key k                     List the tensors of a checkpoint")
	fmt.Fprintln(w, "")
	fmt.Fprintln(w, "Stores are local directories or gs://bucket/prefix URLs.")
}

func run(ctx context.Context, out io.Writer) error {
	klog.InitFlags(nil)
	flag.Usage = func() { usage(os.Stderr) }
	flag.Parse()

	args := flag.Args()
	if len(args) == 0 {
		usage(out)
		return nil
	}
	switch args[0] {
	case "version":
		fmt.Fprintf(out, "luchador %s\n", config.Version)
		return nil
	case "inspect":
		return runInspect(out, args[1:])
	case "init":
		return runInit(ctx, out, args[1:])
	case "show":
		return runShow(ctx, out, args[1:])
	default:
		usage(os.Stderr)
		return errors.Errorf("unknown command %q", args[0])
	}
}

func newBackend(name string) (backend.Backend, error) {
	switch name {
	case symbolic.Name:
		return symbolic.New(), nil
	case static.Name:
		return static.New(), nil
	default:
		return nil, errors.Errorf("unknown backend %q (want %s or %s)", name, symbolic.Name, static.Name)
	}
}

// openStore maps gs://bucket/prefix to a GCSStore and anything else to a
// FileStore.
func openStore(location string) (checkpoint.Store, error) {
	if location == "" {
		return nil, errors.New("-store is required")
	}
	if rest, ok := strings.CutPrefix(location, "gs://"); ok {
		bucket, prefix, _ := strings.Cut(rest, "/")
		if bucket == "" {
			return nil, errors.Errorf("invalid GCS location %q", location)
		}
		return &checkpoint.GCSStore{Bucket: bucket, Prefix: strings.Trim(prefix, "/")}, nil
	}
	return &checkpoint.FileStore{Dir: location}, nil
}

// buildModels builds every model of the document at path.
func buildModels(backendName, path string) (*graph.Context, []model.Model, error) {
	b, err := newBackend(backendName)
	if err != nil {
		return nil, nil, err
	}
	cfgs, err := model.LoadConfig(path)
	if err != nil {
		return nil, nil, err
	}
	gctx := graph.NewContext(b)
	models, err := model.MakeModels(gctx, cfgs)
	if err != nil {
		return nil, nil, errors.WithMessagef(err, "building %s", path)
	}
	return gctx, models, nil
}

func runInspect(out io.Writer, args []string) error {
	fs := flag.NewFlagSet("inspect", flag.ContinueOnError)
	backendName := fs.String("backend", symbolic.Name, "engine to build on")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if fs.NArg() != 1 {
		return errors.New("usage: inspect [-backend b] <model.yml>")
	}
	gctx, models, err := buildModels(*backendName, fs.Arg(0))
	if err != nil {
		return err
	}

	w := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, "MODEL\tTYPE\tINPUT\tOUTPUT\tPARAMETERS")
	for _, m := range models {
		cfg := m.Serialize()
		fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%d\n", m.Name(), cfg.Typename, shapeOf(m.Input()), shapeOf(m.Output()), len(m.Parameters()))
	}
	fmt.Fprintln(w)
	fmt.Fprintln(w, "VARIABLE\tSHAPE\tDTYPE")
	for _, v := range gctx.Variables() {
		fmt.Fprintf(w, "%s\t%s\t%s\n", v.Name(), v.Shape(), v.DType())
	}
	return w.Flush()
}

func shapeOf(v graph.Value) string {
	if v == nil {
		return "-"
	}
	return v.Shape().String()
}

func runInit(ctx context.Context, out io.Writer, args []string) error {
	fs := flag.NewFlagSet("init", flag.ContinueOnError)
	backendName := fs.String("backend", symbolic.Name, "engine to build on")
	location := fs.String("store", "", "checkpoint directory or gs://bucket/prefix")
	key := fs.String("key", "", "checkpoint key")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if fs.NArg() != 1 || *key == "" {
		return errors.New("usage: init [-backend b] -store s -key k <model.yml>")
	}
	store, err := openStore(*location)
	if err != nil {
		return err
	}
	gctx, _, err := buildModels(*backendName, fs.Arg(0))
	if err != nil {
		return err
	}

	defaults, err := config.FromEnv()
	if err != nil {
		return err
	}
	sess := session.New(gctx, session.OptionsFromConfig(defaults))
	defer sess.Close()
	if err := sess.Initialize(); err != nil {
		return err
	}
	if err := sess.SaveCheckpoint(ctx, store, *key); err != nil {
		return err
	}
	fmt.Fprintf(out, "wrote %d variables to %s\n", len(gctx.Variables()), *key)
	return nil
}

func runShow(ctx context.Context, out io.Writer, args []string) error {
	fs := flag.NewFlagSet("show", flag.ContinueOnError)
	location := fs.String("store", "", "checkpoint directory or gs://bucket/prefix")
	key := fs.String("key", "", "checkpoint key")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if *key == "" {
		return errors.New("usage: show -store s -key k")
	}
	store, err := openStore(*location)
	if err != nil {
		return err
	}
	c, err := checkpoint.Load(ctx, store, *key)
	if err != nil {
		return err
	}

	fmt.Fprintf(out, "luchador %s, backend %s, created %s\n",
		c.Header.Version, c.Header.Backend, c.Header.CreatedAt.Format("2006-01-02 15:04:05"))
	w := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, "TENSOR\tSHAPE\tDTYPE\tBYTES")
	for _, t := range c.Header.Tensors {
		fmt.Fprintf(w, "%s\t%v\t%s\t%d\n", t.Name, t.Shape, t.DType, t.Size)
	}
	return w.Flush()
}
