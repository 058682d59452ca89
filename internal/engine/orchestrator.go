// Package engine runs task code in sandboxes and streams the resulting
// I/O. It owns the session lifecycle: at most one execution per task,
// ordered output fan-out to any number of viewers, and teardown on exit
// or kill.
package engine

import (
	"context"
	"errors"
	"fmt"
	"log"
	"time"

	"github.com/palcode-dev/palrun/internal/language"
	"github.com/palcode-dev/palrun/internal/observability"
	"github.com/palcode-dev/palrun/internal/sandbox"
	"github.com/palcode-dev/palrun/internal/storage"
	"github.com/palcode-dev/palrun/internal/workspace"
)

// outputChunk is the read size for sandbox output. One read becomes at
// most one frame.
const outputChunk = 4096

// Options are the orchestrator's optional collaborators.
type Options struct {
	// Store records run history. Nil = no history.
	Store storage.Store

	// Metrics records engine metrics. Nil = no metrics.
	Metrics *observability.Metrics

	// MaxRunDuration caps session runtime; expiry takes the kill path.
	// Zero = unlimited.
	MaxRunDuration time.Duration
}

// Orchestrator creates, feeds, and tears down execution sessions.
// All registry mutation happens here; the gateway only calls in.
type Orchestrator struct {
	languages  *language.Registry
	workspaces *workspace.Resolver
	runner     sandbox.Runner
	registry   *Registry
	opts       Options
}

// New creates an Orchestrator.
func New(languages *language.Registry, workspaces *workspace.Resolver, runner sandbox.Runner, opts Options) *Orchestrator {
	return &Orchestrator{
		languages:  languages,
		workspaces: workspaces,
		runner:     runner,
		registry:   NewRegistry(),
		opts:       opts,
	}
}

// Attachment binds one consumer to a session's output stream. Closing it
// detaches the consumer; the session keeps running.
type Attachment struct {
	Session *Session
	sub     *Subscription
}

// Frames delivers the session's output frames in sequence order.
func (a *Attachment) Frames() <-chan Frame {
	return a.sub.Frames()
}

// Close detaches from the session without affecting it.
func (a *Attachment) Close() {
	a.sub.Close()
}

// Start launches a session for a task and returns an attachment created
// before the first byte of output, so the caller sees the whole stream.
//
// Validation order: language first (ErrInvalidLanguage), then the
// at-most-one reservation (ErrAlreadyRunning), then the workspace
// (workspace.ErrWorkspaceNotFound). The reservation is atomic with the
// existence check, so concurrent Starts for one task race for a single
// registry slot and the losers never spawn a process. Every failure past
// the reservation unwinds it.
func (o *Orchestrator) Start(taskID, lang string) (*Attachment, error) {
	spec, err := o.languages.Resolve(lang)
	if err != nil {
		return nil, err
	}

	sess := newSession(taskID, spec.Language)
	if !o.registry.Insert(sess) {
		return nil, fmt.Errorf("%w: %s", ErrAlreadyRunning, taskID)
	}

	ws, err := o.workspaces.Resolve(taskID)
	if err != nil {
		o.registry.Remove(taskID)
		sess.hub.close()
		return nil, err
	}

	entryFile := spec.EntryFile
	if ws.EntryFile != "" {
		entryFile = ws.EntryFile
	}

	proc, err := o.runner.Start(context.Background(), sandbox.StartSpec{
		TaskID:       taskID,
		Image:        spec.Image,
		WorkspaceDir: ws.Path,
		Command:      spec.Command(entryFile),
	})
	if err != nil {
		o.registry.Remove(taskID)
		sess.hub.close()
		o.recordLaunchFailure(sess, err)
		return nil, fmt.Errorf("%w: %v", ErrLaunchFailed, err)
	}

	sub, _ := sess.hub.subscribe()
	sess.begin(proc)

	log.Printf("engine: session %s started (task=%s language=%s entry=%s)",
		sess.ID, taskID, lang, entryFile)

	o.recordStart(sess)
	o.opts.Metrics.SessionStarted()

	if o.opts.MaxRunDuration > 0 {
		timer := time.AfterFunc(o.opts.MaxRunDuration, sess.requestKill)
		go func() {
			<-sess.done
			timer.Stop()
		}()
	}

	go o.pumpStdin(sess)
	go o.pumpOutput(sess)

	return &Attachment{Session: sess, sub: sub}, nil
}

// Attach joins an in-progress session as an additional viewer. The
// viewer receives every frame produced from this point on; it never
// owns the session.
func (o *Orchestrator) Attach(taskID string) (*Attachment, error) {
	sess, ok := o.registry.Get(taskID)
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrNotRunning, taskID)
	}
	sub, ok := sess.hub.subscribe()
	if !ok {
		// Session finished between lookup and subscribe.
		return nil, fmt.Errorf("%w: %s", ErrNotRunning, taskID)
	}
	return &Attachment{Session: sess, sub: sub}, nil
}

// WriteInput forwards bytes to a running session's stdin. Input is
// queued per session and written by the session's own goroutine, so a
// sandbox that stops consuming never stalls unrelated tasks.
func (o *Orchestrator) WriteInput(taskID string, data []byte) error {
	sess, ok := o.registry.Get(taskID)
	if !ok || sess.State() != StateRunning {
		return fmt.Errorf("%w: %s", ErrNotRunning, taskID)
	}

	buf := make([]byte, len(data))
	copy(buf, data)

	select {
	case sess.stdinCh <- buf:
		o.opts.Metrics.StdinBytes(len(buf))
		return nil
	case <-sess.done:
		return fmt.Errorf("%w: %s", ErrNotRunning, taskID)
	}
}

// Kill terminates a task's session. Idempotent: killing a finished or
// nonexistent session is a successful no-op, since clients race natural
// exits with kill requests.
func (o *Orchestrator) Kill(taskID string) error {
	sess, ok := o.registry.Get(taskID)
	if !ok {
		return nil
	}
	sess.requestKill()
	return nil
}

// Sessions lists all live sessions.
func (o *Orchestrator) Sessions() []Info {
	live := o.registry.List()
	infos := make([]Info, 0, len(live))
	for _, s := range live {
		infos = append(infos, s.info())
	}
	return infos
}

// Shutdown kills every live session and waits for teardown, bounded by
// ctx.
func (o *Orchestrator) Shutdown(ctx context.Context) error {
	live := o.registry.List()
	for _, s := range live {
		s.requestKill()
	}
	for _, s := range live {
		select {
		case <-s.done:
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	return nil
}

// pumpStdin copies queued input chunks into the sandbox's stdin pipe
// until the session ends. Write errors (sandbox closed its stdin) are
// swallowed: the queue keeps draining so writers never hang.
func (o *Orchestrator) pumpStdin(sess *Session) {
	w := sess.proc.Stdin()
	defer w.Close()

	broken := false
	for {
		select {
		case data := <-sess.stdinCh:
			if broken {
				continue
			}
			if _, err := w.Write(data); err != nil {
				broken = true
			}
		case <-sess.done:
			return
		}
	}
}

// pumpOutput is the session's single producer: it reads sandbox output
// into ordered frames, fans them out, and on EOF runs the whole
// teardown. The final frame carries end-of-stream plus the outcome, and
// is broadcast before the registry slot is freed.
func (o *Orchestrator) pumpOutput(sess *Session) {
	out := sess.proc.Output()
	buf := make([]byte, outputChunk)

	for {
		n, err := out.Read(buf)
		if n > 0 {
			data := make([]byte, n)
			copy(data, buf[:n])
			sess.seq++
			sess.hub.broadcast(Frame{
				TaskID: sess.TaskID,
				Seq:    sess.seq,
				Data:   data,
			})
			o.opts.Metrics.OutputFrame(n)
		}
		if err != nil {
			break
		}
	}
	out.Close()

	exitCode, waitErr := sess.proc.Wait()
	outcome := sess.finish(exitCode, waitErr)

	message := ""
	if waitErr != nil {
		message = waitErr.Error()
	}

	sess.seq++
	sess.hub.broadcast(Frame{
		TaskID:      sess.TaskID,
		Seq:         sess.seq,
		EndOfStream: true,
		Outcome:     outcome,
		ExitCode:    exitCode,
		Message:     message,
	})

	// Free the task slot before releasing any waiter: whoever observes
	// the end of this session may immediately start a new one.
	o.registry.Remove(sess.TaskID)
	sess.hub.close()
	sess.release()

	duration := time.Since(sess.StartedAt)
	log.Printf("engine: session %s ended (task=%s outcome=%s exit=%d duration=%s)",
		sess.ID, sess.TaskID, outcome, exitCode, duration.Round(time.Millisecond))

	o.recordEnd(sess, outcome, exitCode, message)
	o.opts.Metrics.SessionEnded(string(sess.Language), string(outcome), duration)
}

func (o *Orchestrator) recordStart(sess *Session) {
	if o.opts.Store == nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	err := o.opts.Store.CreateRun(ctx, &storage.Run{
		ID:        sess.ID,
		TaskID:    sess.TaskID,
		Language:  string(sess.Language),
		StartedAt: sess.StartedAt,
	})
	if err != nil {
		log.Printf("engine: recording run %s: %v", sess.ID, err)
	}
}

func (o *Orchestrator) recordEnd(sess *Session, outcome Outcome, exitCode int, message string) {
	if o.opts.Store == nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	err := o.opts.Store.FinishRun(ctx, sess.ID, string(outcome), exitCode, message, time.Now().UTC())
	if err != nil {
		log.Printf("engine: finishing run %s: %v", sess.ID, err)
	}
}

// recordLaunchFailure keeps failed launches visible in run history even
// though no session was ever registered for them.
func (o *Orchestrator) recordLaunchFailure(sess *Session, launchErr error) {
	if o.opts.Store == nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	run := &storage.Run{
		ID:        sess.ID,
		TaskID:    sess.TaskID,
		Language:  string(sess.Language),
		StartedAt: sess.StartedAt,
	}
	if err := o.opts.Store.CreateRun(ctx, run); err != nil {
		log.Printf("engine: recording failed launch %s: %v", sess.ID, err)
		return
	}
	err := o.opts.Store.FinishRun(ctx, sess.ID, string(OutcomeFailed), -1, launchErr.Error(), time.Now().UTC())
	if err != nil {
		log.Printf("engine: recording failed launch %s: %v", sess.ID, err)
	}
}

// IsNotRunning reports whether err is the non-fatal "had no effect"
// error for stdin/kill/attach against absent or finished sessions.
func IsNotRunning(err error) bool {
	return errors.Is(err, ErrNotRunning)
}
