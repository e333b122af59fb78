package mapreduce

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/Adithya-Monish-Kumar-K/Distributed-TFIDF-Pipeline/internal/record"
	"github.com/Adithya-Monish-Kumar-K/Distributed-TFIDF-Pipeline/internal/shuffle"
	apperrors "github.com/Adithya-Monish-Kumar-K/Distributed-TFIDF-Pipeline/pkg/errors"
	"github.com/Adithya-Monish-Kumar-K/Distributed-TFIDF-Pipeline/pkg/metrics"
	"github.com/Adithya-Monish-Kumar-K/Distributed-TFIDF-Pipeline/pkg/resilience"
	"github.com/Adithya-Monish-Kumar-K/Distributed-TFIDF-Pipeline/pkg/tracing"
)

// Options configures an Engine.
type Options struct {
	WorkDir           string
	MapParallelism    int
	ReduceParallelism int
	CompressSpills    bool
	TaskRetries       int
	RetryDelay        time.Duration
	TaskTimeout       time.Duration
	Metrics           *metrics.Metrics
}

// Engine runs stages on the local machine.
type Engine struct {
	opts    Options
	metrics *metrics.Metrics
	logger  *slog.Logger
}

// StageResult summarises one stage run.
type StageResult struct {
	Name           string
	MapTasks       int
	ReduceTasks    int
	RecordsWritten int64
	Duration       time.Duration
}

// New creates an Engine, filling in defaults for zero options.
func New(opts Options) *Engine {
	if opts.WorkDir == "" {
		opts.WorkDir = os.TempDir()
	}
	if opts.MapParallelism < 1 {
		opts.MapParallelism = 1
	}
	if opts.ReduceParallelism < 1 {
		opts.ReduceParallelism = 1
	}
	if opts.RetryDelay <= 0 {
		opts.RetryDelay = 50 * time.Millisecond
	}
	m := opts.Metrics
	if m == nil {
		m = metrics.New()
	}
	return &Engine{
		opts:    opts,
		metrics: m,
		logger:  slog.Default().With("component", "engine"),
	}
}

// Metrics returns the collectors the engine reports to.
func (e *Engine) Metrics() *metrics.Metrics {
	return e.metrics
}

// RunStage executes one stage to completion. On success stage.Output holds
// one part file per reducer and a success marker; on failure it does not
// exist.
func (e *Engine) RunStage(ctx context.Context, stage Stage) (StageResult, error) {
	start := time.Now()
	result := StageResult{Name: stage.Name, ReduceTasks: stage.NumReducers}
	if err := stage.validate(); err != nil {
		return result, err
	}
	ctx, span := tracing.Start(ctx, stage.Name)
	var runErr error
	defer func() { span.End(runErr) }()

	splits, err := ListInputs(stage.Inputs)
	if err != nil {
		runErr = err
		return result, err
	}
	result.MapTasks = len(splits)
	span.SetAttr("map_tasks", len(splits))
	span.SetAttr("reduce_tasks", stage.NumReducers)

	runID := uuid.NewString()
	spillDir := filepath.Join(e.opts.WorkDir, fmt.Sprintf("%s-shuffle-%s", stage.Name, runID))
	if err := os.MkdirAll(spillDir, 0o755); err != nil {
		runErr = fmt.Errorf("creating shuffle directory: %w", err)
		return result, runErr
	}
	defer os.RemoveAll(spillDir)

	if err := os.MkdirAll(filepath.Dir(stage.Output), 0o755); err != nil {
		runErr = fmt.Errorf("creating output parent: %w", err)
		return result, runErr
	}
	tmpOut := fmt.Sprintf("%s.tmp-%s", stage.Output, runID)
	if err := os.MkdirAll(tmpOut, 0o755); err != nil {
		runErr = fmt.Errorf("creating temporary output: %w", err)
		return result, runErr
	}
	defer os.RemoveAll(tmpOut)

	e.logger.Info("stage started",
		"stage", stage.Name,
		"map_tasks", len(splits),
		"reduce_tasks", stage.NumReducers,
	)

	if err := e.runMapPhase(ctx, stage, splits, spillDir); err != nil {
		runErr = err
		return result, err
	}
	written, err := e.runReducePhase(ctx, stage, spillDir, tmpOut)
	if err != nil {
		runErr = err
		return result, err
	}
	result.RecordsWritten = written

	if err := commit(tmpOut, stage.Output); err != nil {
		runErr = err
		return result, err
	}
	result.Duration = time.Since(start)
	e.logger.Info("stage committed",
		"stage", stage.Name,
		"output", stage.Output,
		"records", written,
		"duration", result.Duration,
	)
	return result, nil
}

func (e *Engine) runMapPhase(ctx context.Context, stage Stage, splits []string, spillDir string) error {
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(e.opts.MapParallelism)
	for i, split := range splits {
		info := TaskInfo{Stage: stage.Name, Phase: PhaseMap, Index: i, NumReducers: stage.NumReducers, Router: stage.Router}
		g.Go(func() error {
			return e.runTask(gctx, info, func(ctx context.Context) error {
				return e.mapTask(ctx, stage, info, split, spillDir)
			})
		})
	}
	return g.Wait()
}

func (e *Engine) runReducePhase(ctx context.Context, stage Stage, spillDir, outDir string) (int64, error) {
	counts := make([]int64, stage.NumReducers)
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(e.opts.ReduceParallelism)
	for r := 0; r < stage.NumReducers; r++ {
		info := TaskInfo{Stage: stage.Name, Phase: PhaseReduce, Index: r, NumReducers: stage.NumReducers, Router: stage.Router}
		g.Go(func() error {
			return e.runTask(gctx, info, func(ctx context.Context) error {
				n, err := e.reduceTask(ctx, stage, info, spillDir, outDir)
				counts[info.Index] = n
				return err
			})
		})
	}
	if err := g.Wait(); err != nil {
		return 0, err
	}
	var total int64
	for _, n := range counts {
		total += n
	}
	return total, nil
}

// runTask executes one task attempt after another until it succeeds, fails
// fatally or runs out of retries.
func (e *Engine) runTask(ctx context.Context, info TaskInfo, attempt func(context.Context) error) error {
	ctx, span := tracing.Start(ctx, fmt.Sprintf("%s/%s", info.Stage, info.Name()))
	start := time.Now()
	cfg := resilience.RetryConfig{
		MaxAttempts:  e.opts.TaskRetries + 1,
		InitialDelay: e.opts.RetryDelay,
		MaxDelay:     10 * e.opts.RetryDelay,
		Retryable: func(err error) bool {
			return !apperrors.IsFatal(err) && ctx.Err() == nil
		},
		OnRetry: func(int, error) {
			e.metrics.TaskRetries.WithLabelValues(info.Stage, string(info.Phase)).Inc()
		},
	}
	err := resilience.Retry(ctx, info.Stage+"/"+info.Name(), cfg, func(int) error {
		attemptCtx := ctx
		if e.opts.TaskTimeout > 0 {
			var cancel context.CancelFunc
			attemptCtx, cancel = context.WithTimeout(ctx, e.opts.TaskTimeout)
			defer cancel()
		}
		return attempt(attemptCtx)
	})
	e.metrics.TaskDuration.WithLabelValues(info.Stage, string(info.Phase)).Observe(time.Since(start).Seconds())
	if err != nil {
		err = apperrors.InTask(err, info.Stage, info.Name())
		e.logger.Error("task failed", "stage", info.Stage, "task", info.Name(), "error", err)
	}
	span.End(err)
	return err
}

type mapEmitter struct {
	stage   string
	router  shuffle.Router
	buffers [][]shuffle.Message
	metrics *metrics.Metrics
}

func (m *mapEmitter) Emit(msg shuffle.Message) error {
	p, err := m.router.Route(msg, len(m.buffers))
	if err != nil {
		return err
	}
	if msg.Kind == shuffle.KindControl {
		m.metrics.ControlMessages.WithLabelValues(m.stage, msg.Key).Inc()
	}
	m.buffers[p] = append(m.buffers[p], msg)
	return nil
}

func (e *Engine) mapTask(ctx context.Context, stage Stage, info TaskInfo, split, spillDir string) error {
	mapper, err := stage.NewMapper(info)
	if err != nil {
		return fmt.Errorf("creating mapper: %w", err)
	}
	out := &mapEmitter{
		stage:   stage.Name,
		router:  stage.Router,
		buffers: make([][]shuffle.Message, stage.NumReducers),
		metrics: e.metrics,
	}
	var records int
	err = readSplit(ctx, split, info.Index, stage.Format, func(rec shuffle.Message) error {
		records++
		return mapper.Map(ctx, rec, out)
	})
	if err != nil {
		return err
	}
	if f, ok := mapper.(Finisher); ok {
		if err := f.Finish(ctx, out); err != nil {
			return err
		}
	}
	e.metrics.RecordsMapped.WithLabelValues(stage.Name).Add(float64(records))

	for p, msgs := range out.buffers {
		if stage.NewCombiner != nil {
			combined, err := e.combine(ctx, stage, info, msgs)
			if err != nil {
				return fmt.Errorf("combining partition %d: %w", p, err)
			}
			msgs = combined
		}
		path := filepath.Join(spillDir, spillName(info.Index, p, e.opts.CompressSpills))
		n, err := writeSpill(path, msgs, e.opts.CompressSpills)
		if err != nil {
			return err
		}
		e.metrics.SpillBytes.WithLabelValues(stage.Name).Add(float64(n))
	}
	e.logger.Debug("map task finished",
		"stage", stage.Name,
		"task", info.Name(),
		"split", split,
		"records", records,
	)
	return nil
}

// combine pre-aggregates the data groups of one map-side partition buffer.
// Control messages pass through untouched.
func (e *Engine) combine(ctx context.Context, stage Stage, info TaskInfo, msgs []shuffle.Message) ([]shuffle.Message, error) {
	combiner, err := stage.NewCombiner(info)
	if err != nil {
		return nil, fmt.Errorf("creating combiner: %w", err)
	}
	sortMessages(msgs, stage.Compare)
	out := make([]shuffle.Message, 0, len(msgs))
	emit := EmitFunc(func(msg shuffle.Message) error {
		if msg.Kind != shuffle.KindData {
			return apperrors.Newf(apperrors.ErrInvalidConfig, "combiner for stage %s emitted control %q", stage.Name, msg.Key)
		}
		out = append(out, msg)
		return nil
	})
	err = forEachGroup(msgs, stage.Compare, func(g Group, first shuffle.Message) error {
		if g.Kind == shuffle.KindControl {
			for _, v := range g.Values {
				out = append(out, shuffle.Control(first.Target, g.Key, v))
			}
			return nil
		}
		return combiner.Reduce(ctx, g, emit)
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

func (e *Engine) reduceTask(ctx context.Context, stage Stage, info TaskInfo, spillDir, outDir string) (int64, error) {
	paths, err := spillsFor(spillDir, info.Index)
	if err != nil {
		return 0, err
	}
	var msgs []shuffle.Message
	for _, path := range paths {
		part, err := readSpill(path)
		if err != nil {
			return 0, err
		}
		msgs = append(msgs, part...)
	}
	sortMessages(msgs, stage.Compare)

	reducer, err := stage.NewReducer(info)
	if err != nil {
		return 0, fmt.Errorf("creating reducer: %w", err)
	}

	finalPath := filepath.Join(outDir, PartName(info.Index))
	tmpPath := finalPath + ".tmp"
	f, err := os.Create(tmpPath)
	if err != nil {
		return 0, fmt.Errorf("creating part file: %w", err)
	}
	defer f.Close()
	w := record.NewWriter(f)
	out := EmitFunc(w.Write)

	groups := 0
	err = forEachGroup(msgs, stage.Compare, func(g Group, _ shuffle.Message) error {
		groups++
		if groups%1024 == 0 && ctx.Err() != nil {
			return ctx.Err()
		}
		return reducer.Reduce(ctx, g, out)
	})
	if err != nil {
		return 0, err
	}
	if fin, ok := reducer.(Finisher); ok {
		if err := fin.Finish(ctx, out); err != nil {
			return 0, err
		}
	}
	if err := w.Flush(); err != nil {
		return 0, fmt.Errorf("flushing part file: %w", err)
	}
	if err := f.Close(); err != nil {
		return 0, fmt.Errorf("closing part file: %w", err)
	}
	if err := os.Rename(tmpPath, finalPath); err != nil {
		return 0, fmt.Errorf("renaming part file: %w", err)
	}
	e.metrics.RecordsReduced.WithLabelValues(stage.Name).Add(float64(groups))
	e.metrics.RecordsWritten.WithLabelValues(stage.Name).Add(float64(w.Count()))
	e.logger.Debug("reduce task finished",
		"stage", stage.Name,
		"task", info.Name(),
		"groups", groups,
		"records", w.Count(),
	)
	return int64(w.Count()), nil
}

// PartName is the file a reduce task writes, e.g. "part-r-00003".
func PartName(partition int) string {
	return "part-r-" + fmt.Sprintf("%05d", partition)
}

// sortMessages orders a partition: control messages first, then data by
// key. The sort is stable so values of one key keep their arrival order.
func sortMessages(msgs []shuffle.Message, keyCompare shuffle.KeyCompare) {
	sort.SliceStable(msgs, func(i, j int) bool {
		return shuffle.Compare(msgs[i], msgs[j], keyCompare) < 0
	})
}

// forEachGroup walks sorted messages one key group at a time.
func forEachGroup(msgs []shuffle.Message, keyCompare shuffle.KeyCompare, fn func(Group, shuffle.Message) error) error {
	for i := 0; i < len(msgs); {
		j := i + 1
		for j < len(msgs) && shuffle.SameGroup(msgs[i], msgs[j], keyCompare) {
			j++
		}
		g := Group{Kind: msgs[i].Kind, Key: msgs[i].Key, Values: make([]string, 0, j-i)}
		for _, m := range msgs[i:j] {
			g.Values = append(g.Values, m.Value)
		}
		if err := fn(g, msgs[i]); err != nil {
			return err
		}
		i = j
	}
	return nil
}

// commit replaces output with the fully written temporary directory.
func commit(tmpOut, output string) error {
	marker := filepath.Join(tmpOut, SuccessMarker)
	if err := os.WriteFile(marker, []byte(strconv.FormatInt(time.Now().Unix(), 10)+"\n"), 0o644); err != nil {
		return fmt.Errorf("writing success marker: %w", err)
	}
	if err := os.RemoveAll(output); err != nil && !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("clearing output %s: %w", output, err)
	}
	if err := os.Rename(tmpOut, output); err != nil {
		return fmt.Errorf("committing output %s: %w", output, err)
	}
	return nil
}

// Committed reports whether dir holds the output of a successful stage.
func Committed(dir string) bool {
	_, err := os.Stat(filepath.Join(dir, SuccessMarker))
	return err == nil
}
