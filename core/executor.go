// Package core wires the engine layers together: sandbox screening,
// expansion, structural parsing, strategy selection, and backend execution,
// one Invoker per configured host.
package core

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/spf13/afero"

	"github.com/jpibz/wbash/core/backend"
	"github.com/jpibz/wbash/core/config"
	"github.com/jpibz/wbash/core/expand"
	"github.com/jpibz/wbash/core/paths"
	"github.com/jpibz/wbash/core/pipeline"
	"github.com/jpibz/wbash/core/sandbox"
	"github.com/jpibz/wbash/core/scratch"
	"github.com/jpibz/wbash/core/strategy"
	"github.com/jpibz/wbash/core/translate"
)

// Invocation is one command to run.
type Invocation struct {
	Command string
	// Timeout zero means the configured default.
	Timeout time.Duration
	// WorkingDir is a virtual path; empty means the configured home.
	WorkingDir string
	// Env seeds the variable context; nil means the process environment is
	// not inherited and commands start from an empty context.
	Env []string
}

// Invoker runs invocations against one host. It is safe for concurrent use;
// all per-call state lives in a callState.
type Invoker struct {
	cfg        *config.Configuration
	service    backend.Service
	registry   *translate.Registry
	translator *paths.Translator
	validator  *sandbox.Validator
	// scratchRoot is a host path; scratch files under it are referenced from
	// command text, so allocation goes through hostFs.
	scratchRoot string
	hostFs      afero.Fs
	logger      *log.Logger
}

// NewInvoker builds an Invoker over the configuration and an execution
// service.
func NewInvoker(cfg *config.Configuration, service backend.Service, logger *log.Logger) (*Invoker, error) {
	mappings := make([]paths.Mapping, 0, len(cfg.Workspaces))
	for _, w := range cfg.Workspaces {
		mappings = append(mappings, paths.Mapping{Virtual: w.Virtual, Host: w.Host})
	}
	translator, err := paths.New(mappings, hostSeparator(cfg))
	if err != nil {
		return nil, fmt.Errorf("building path translator: %w", err)
	}

	return &Invoker{
		cfg:      cfg,
		service:  service,
		registry: translate.NewRegistry(),
		validator: sandbox.New(sandbox.Policy{
			AllowedRoots: cfg.AllowedRoots(),
			ExtraBlocked: cfg.Sandbox.BlockedCommands,
			AllowNetwork: cfg.Sandbox.AllowNetwork,
		}),
		translator:  translator,
		scratchRoot: cfg.ScratchPath(),
		hostFs:      afero.NewOsFs(),
		logger:      logger,
	}, nil
}

// Registry exposes the translation registry, mainly for the explain
// command.
func (inv *Invoker) Registry() *translate.Registry { return inv.registry }

// Explain reports what would happen for a command without running it.
func (inv *Invoker) Explain(ctx context.Context, command string) (pipeline.Analysis, strategy.Strategy, error) {
	if err := inv.validator.Check(command); err != nil {
		return pipeline.Analysis{}, strategy.Strategy{}, err
	}
	tree, err := pipeline.Parse(inv.translator.RewriteToHost(command))
	if err != nil {
		return pipeline.Analysis{}, strategy.Strategy{}, err
	}
	analysis := pipeline.Analyze(tree)
	strat := strategy.Decide(analysis, inv.service.Capabilities(), inv.registry, tree)
	return analysis, strat, nil
}

// Invoke runs one command end to end and returns its result. Scratch files
// created along the way are removed before Invoke returns, on every path.
func (inv *Invoker) Invoke(ctx context.Context, in Invocation) (Result, error) {
	timeout := in.Timeout
	if timeout == 0 && inv.cfg.DefaultTimeoutSecs > 0 {
		timeout = time.Duration(inv.cfg.DefaultTimeoutSecs) * time.Second
	}
	if timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}

	if err := inv.validator.Check(in.Command); err != nil {
		return Result{}, err
	}

	callID := strings.ReplaceAll(uuid.NewString(), "-", "")[:8]
	dir := scratch.NewDir(inv.hostFs, inv.scratchRoot, callID)
	defer dir.Release(inv.logger)

	workDir := in.WorkingDir
	if workDir == "" {
		workDir = inv.cfg.Home
	}
	hostDir, _ := inv.translator.ToHost(workDir)

	state := &callState{inv: inv, dir: dir, workDir: hostDir}
	state.engine = expand.New(expand.Options{
		Aliases:  inv.cfg.Aliases,
		Home:     inv.cfg.Home,
		Vars:     expand.NewVarContext(in.Env),
		Runner:   state,
		Scratch:  dir,
		Logger:   inv.logger,
		MaxDepth: inv.cfg.MaxSubstitutionDepth,
	})

	res, err := state.runText(ctx, in.Command, 0)
	if err != nil {
		if ctx.Err() != nil {
			return Result{}, fmt.Errorf("command timed out: %w", ctx.Err())
		}
		return Result{}, err
	}

	res.Stdout = inv.translator.RewriteToVirtual(res.Stdout)
	res.Stderr = inv.translator.RewriteToVirtual(res.Stderr)
	return res, nil
}

func hostSeparator(cfg *config.Configuration) string {
	for _, w := range cfg.Workspaces {
		if strings.Contains(w.Host, `\`) || (len(w.Host) > 1 && w.Host[1] == ':') {
			return `\`
		}
	}
	return "/"
}

// callState is the per-invocation context: scratch directory, expansion
// engine with the call's variables, and the working directory.
type callState struct {
	inv     *Invoker
	dir     *scratch.Dir
	engine  *expand.Engine
	workDir string
}

// RunSubstitution re-enters the pipeline for the inner command of a
// substitution, carrying the depth so nesting stays bounded.
func (s *callState) RunSubstitution(ctx context.Context, command string, depth int) (string, int, error) {
	res, err := s.runText(ctx, command, depth)
	if err != nil {
		if errors.Is(err, expand.ErrRecursionDepth) {
			return "", 0, err
		}
		return "", 1, err
	}
	return res.Stdout, res.ExitCode, nil
}

func (s *callState) caps() backend.CapabilitySet {
	return s.inv.service.Capabilities()
}

func (s *callState) runText(ctx context.Context, text string, depth int) (Result, error) {
	expanded, err := s.engine.ExpandAt(ctx, text, depth)
	if err != nil {
		return Result{}, err
	}

	if name, value, ok := expand.ParseAssignment(expanded.Text); ok {
		s.engine.Vars().Set(name, value)
		return Result{ExitCode: 0}, nil
	}

	hostText := s.inv.translator.RewriteToHost(expanded.Text)
	tree, err := pipeline.Parse(hostText)
	if err != nil {
		return Result{}, err
	}
	analysis := pipeline.Analyze(tree)
	strat := strategy.Decide(analysis, s.caps(), s.inv.registry, tree)

	res, err := s.execWithFallback(ctx, strat, tree, hostText)
	if err != nil {
		return res, err
	}

	// Output-form process substitution runs after the main pipeline so the
	// consuming command sees the complete file.
	for _, post := range expanded.PostCommands {
		postRes, postErr := s.runText(ctx, post, depth)
		if postErr != nil {
			s.inv.logger.Printf("process substitution consumer failed: %v", postErr)
			continue
		}
		res.Stderr += postRes.Stderr
	}
	return res, nil
}

func (s *callState) execWithFallback(ctx context.Context, strat strategy.Strategy, tree pipeline.Node, text string) (Result, error) {
	cur := &strat
	for {
		res, err := s.execStrategy(ctx, *cur, tree, text)
		if err != nil && errors.Is(err, backend.ErrUnavailable) && cur.Fallback != nil {
			s.inv.logger.Printf("strategy %s unavailable (%s), falling back to %s",
				cur.Kind, cur.Reason, cur.Fallback.Kind)
			cur = cur.Fallback
			continue
		}
		return res, err
	}
}

func (s *callState) execStrategy(ctx context.Context, strat strategy.Strategy, tree pipeline.Node, text string) (Result, error) {
	switch strat.Kind {
	case strategy.Unsupported:
		return Result{}, fmt.Errorf("%w: %s", strategy.ErrUnsupportedConstruct, strat.Reason)

	case strategy.FullPassthrough:
		bres, err := s.exec(ctx, backend.Request{Backend: backend.PosixPassthrough, Text: text})
		if err != nil {
			return Result{}, err
		}
		return Result(bres), nil

	case strategy.Split:
		return s.execSplit(ctx, tree, strat.SplitPoints)

	default:
		return s.execNode(ctx, tree, nil)
	}
}

// exec fills in the per-call request fields and dispatches to the service.
func (s *callState) exec(ctx context.Context, req backend.Request) (backend.Result, error) {
	req.Dir = s.workDir
	req.Env = s.engine.Vars().Environ()
	return s.inv.service.Execute(ctx, req)
}

// execNode is the per-stage tree walker. Chains get shell exit-code
// semantics; pipes connect stages through captured buffers.
func (s *callState) execNode(ctx context.Context, n pipeline.Node, stdin io.Reader) (Result, error) {
	switch n := n.(type) {
	case *pipeline.Chain:
		left, err := s.execNode(ctx, n.Left, stdin)
		if err != nil {
			return left, err
		}
		switch n.Op {
		case pipeline.AndOp:
			if left.ExitCode != 0 {
				return left, nil
			}
		case pipeline.OrOp:
			if left.ExitCode == 0 {
				return left, nil
			}
		}
		right, err := s.execNode(ctx, n.Right, nil)
		if err != nil {
			return right, err
		}
		return Result{
			ExitCode: right.ExitCode,
			Stdout:   left.Stdout + right.Stdout,
			Stderr:   left.Stderr + right.Stderr,
		}, nil

	case *pipeline.Pipe:
		return s.execPipe(ctx, pipeline.Stages(n), stdin)

	default:
		return s.execStage(ctx, n, stdin, translate.StagePosition{Index: 0, Total: 1})
	}
}

func (s *callState) execPipe(ctx context.Context, stages []pipeline.Node, stdin io.Reader) (Result, error) {
	var stderr strings.Builder
	var last Result
	in := stdin
	for i, stage := range stages {
		res, err := s.execStage(ctx, stage, in, translate.StagePosition{Index: i, Total: len(stages)})
		if err != nil {
			return Result{}, err
		}
		stderr.WriteString(res.Stderr)
		in = strings.NewReader(res.Stdout)
		last = res
	}
	return Result{ExitCode: last.ExitCode, Stdout: last.Stdout, Stderr: stderr.String()}, nil
}

func (s *callState) execStage(ctx context.Context, stage pipeline.Node, stdin io.Reader, pos translate.StagePosition) (Result, error) {
	switch st := stage.(type) {
	case *pipeline.Redirect:
		return s.execRedirect(ctx, st, stdin, pos)
	case *pipeline.SimpleCommand:
		return s.execSimple(ctx, st, stdin, pos)
	case *pipeline.Subshell:
		return s.execNode(ctx, st.Node, stdin)
	case *pipeline.Group:
		return s.execNode(ctx, st.Node, stdin)
	case *pipeline.ControlBlock:
		return s.execControl(ctx, st, stdin)
	case *pipeline.Chain:
		return s.execNode(ctx, st, stdin)
	case *pipeline.Pipe:
		return s.execNode(ctx, st, stdin)
	default:
		return Result{}, fmt.Errorf("%w: %T", strategy.ErrUnsupportedConstruct, stage)
	}
}

func (s *callState) execSimple(ctx context.Context, cmd *pipeline.SimpleCommand, stdin io.Reader, pos translate.StagePosition) (Result, error) {
	if cmd.Name == "" {
		if name, value, ok := expand.ParseAssignment(cmd.Text); ok {
			s.engine.Vars().Set(name, value)
			return Result{ExitCode: 0}, nil
		}
		return Result{}, fmt.Errorf("%w: empty command", strategy.ErrUnsupportedConstruct)
	}
	if stdin != nil && !pos.ReadsPipe() {
		// A file feeding stdin puts the stage in its pipe-reading form even
		// at pipeline head.
		pos = translate.StagePosition{Index: 1, Total: 2}
	}

	tr, err := strategy.Select(cmd, pos, s.caps(), s.inv.registry)
	if err != nil {
		return Result{}, err
	}
	bres, err := s.execTranslation(ctx, tr, stdin)
	if err != nil && errors.Is(err, backend.ErrUnavailable) {
		if alt, ok := s.reselect(cmd, pos, tr.Backend); ok {
			s.inv.logger.Printf("%s backend unavailable for %q, retrying on %s",
				tr.Backend, cmd.Name, alt.Backend)
			bres, err = s.execTranslation(ctx, alt, stdin)
		}
	}
	if err != nil {
		return Result{}, err
	}
	return Result(bres), nil
}

// reselect walks the remaining tiers after a backend turned out to be
// missing mid-call. The order mirrors Select; tiers at or above the failed
// one are skipped.
func (s *callState) reselect(cmd *pipeline.SimpleCommand, pos translate.StagePosition, failed backend.Backend) (translate.Translation, bool) {
	rule, known := s.inv.registry.Lookup(cmd.Name)

	if failed < backend.PosixPassthrough && s.caps().PosixAvailable() && known && !rule.PosixUnsupported {
		return translate.Translation{
			Backend: backend.PosixPassthrough,
			Text:    pipeline.Render(cmd),
		}, true
	}
	if failed < backend.EmulatedScript && known && rule.Emulate != nil {
		text, err := rule.Emulate(cmd.Args, pos)
		if err != nil {
			return translate.Translation{}, false
		}
		return translate.Translation{Backend: backend.EmulatedScript, Text: text}, true
	}
	return translate.Translation{}, false
}

func (s *callState) execTranslation(ctx context.Context, tr translate.Translation, stdin io.Reader) (backend.Result, error) {
	return s.exec(ctx, backend.Request{
		Backend: tr.Backend,
		Text:    tr.Text,
		Argv:    tr.Argv,
		Stdin:   stdin,
	})
}

func (s *callState) execControl(ctx context.Context, block *pipeline.ControlBlock, stdin io.Reader) (Result, error) {
	tr, err := strategy.SelectControl(block, s.dir, s.caps(), s.inv.registry)
	if err != nil {
		return Result{}, err
	}
	bres, err := s.execTranslation(ctx, tr, stdin)
	if err != nil {
		return Result{}, err
	}
	return Result(bres), nil
}

// execRedirect peels every redirection off the stage, runs the inner node,
// and applies file plumbing through the host filesystem.
func (s *callState) execRedirect(ctx context.Context, node *pipeline.Redirect, stdin io.Reader, pos translate.StagePosition) (Result, error) {
	var redirs []*pipeline.Redirect
	var inner pipeline.Node = node
	for {
		r, ok := inner.(*pipeline.Redirect)
		if !ok {
			break
		}
		redirs = append(redirs, r)
		inner = r.Node
	}

	for _, r := range redirs {
		if r.Mode == pipeline.RedirIn {
			content, err := afero.ReadFile(s.inv.hostFs, r.Target)
			if err != nil {
				return Result{ExitCode: 1, Stderr: fmt.Sprintf("%s: no such file or directory\n", r.Target)}, nil
			}
			stdin = strings.NewReader(string(content))
		}
	}

	res, err := s.execStage(ctx, inner, stdin, pos)
	if err != nil {
		return res, err
	}

	// Innermost redirections apply first.
	for i := len(redirs) - 1; i >= 0; i-- {
		r := redirs[i]
		switch r.Mode {
		case pipeline.RedirIn:
			// Already applied on the way in.
		case pipeline.RedirErrToOut:
			res.Stdout += res.Stderr
			res.Stderr = ""
		case pipeline.RedirErr:
			if err := s.writeFile(r.Target, res.Stderr, false); err != nil {
				return Result{}, err
			}
			res.Stderr = ""
		case pipeline.RedirOut:
			if err := s.writeFile(r.Target, res.Stdout, false); err != nil {
				return Result{}, err
			}
			res.Stdout = ""
		case pipeline.RedirAppend:
			if err := s.writeFile(r.Target, res.Stdout, true); err != nil {
				return Result{}, err
			}
			res.Stdout = ""
		}
	}
	return res, nil
}

func (s *callState) writeFile(target, content string, appendTo bool) error {
	flag := "truncating"
	var err error
	if appendTo {
		flag = "appending to"
		var f afero.File
		f, err = s.inv.hostFs.OpenFile(target, appendFlags, 0644)
		if err == nil {
			_, err = f.WriteString(content)
			f.Close()
		}
	} else {
		err = afero.WriteFile(s.inv.hostFs, target, []byte(content), 0644)
	}
	if err != nil {
		return fmt.Errorf("%s %s: %w", flag, target, err)
	}
	return nil
}

// execSplit runs the pipeline in segments, each on the backend tier its
// stages need, feeding each segment's output to the next.
func (s *callState) execSplit(ctx context.Context, tree pipeline.Node, points []int) (Result, error) {
	stages := pipeline.Stages(tree)
	segments := partition(stages, points)

	var stderr strings.Builder
	var last Result
	var in io.Reader
	for _, seg := range segments {
		var res Result
		var err error
		if s.segmentNeedsPosix(seg) {
			texts := make([]string, 0, len(seg))
			for _, st := range seg {
				texts = append(texts, pipeline.Render(st))
			}
			var bres backend.Result
			bres, err = s.exec(ctx, backend.Request{
				Backend: backend.PosixPassthrough,
				Text:    strings.Join(texts, " | "),
				Stdin:   in,
			})
			res = Result(bres)
		} else {
			res, err = s.execPipe(ctx, seg, in)
		}
		if err != nil {
			return Result{}, err
		}
		stderr.WriteString(res.Stderr)
		in = strings.NewReader(res.Stdout)
		last = res
	}
	return Result{ExitCode: last.ExitCode, Stdout: last.Stdout, Stderr: stderr.String()}, nil
}

func (s *callState) segmentNeedsPosix(seg []pipeline.Node) bool {
	for _, st := range seg {
		if s.inv.registry.PosixRequired(pipeline.StageName(st)) {
			return true
		}
	}
	return false
}

func partition(stages []pipeline.Node, points []int) [][]pipeline.Node {
	var segments [][]pipeline.Node
	prev := 0
	for _, p := range points {
		if p <= prev || p >= len(stages) {
			continue
		}
		segments = append(segments, stages[prev:p])
		prev = p
	}
	return append(segments, stages[prev:])
}
