package cli

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"strings"
	"sync"
	"sync/atomic"
	"text/tabwriter"
	"time"

	"github.com/atinyakov/FinKeeper/internal/client/mode"
	"github.com/atinyakov/FinKeeper/internal/client/reachability"
	"github.com/atinyakov/FinKeeper/internal/client/syncstate"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

const (
	shellPrompt = "finkeeper> "
	// watchInterval is how often the host interfaces are scanned.
	watchInterval = 5 * time.Second
	// lineBuffer lets typed lines queue up while a command is running so a
	// prompt raised meanwhile can still be answered.
	lineBuffer = 8
)

const shellHelp = `commands:
  add <income|expense> <amount> [category|-] [note...]
  pending                 show transactions waiting to be sent
  discard <local-id>      drop a pending transaction
  list                    show cached transactions
  categories              show cached categories
  profile                 show the cached profile
  sync                    push and refresh now
  online                  try to leave offline mode
  net up|down             report a network change
  status | caps           show connectivity and what is allowed
  dump <table>            print a local table as JSON
  login <login> | logout
  exit`

func newShellCommand(get appFunc) *cobra.Command {
	return &cobra.Command{
		Use:   "shell",
		Short: "Interactive session with background sync",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			s := newShell(get(), cmd.OutOrStdout())
			return s.run(cmd.Context(), cmd.InOrStdin())
		},
	}
}

// syncWriter serializes output from the prompt loop and background events.
type syncWriter struct {
	mu sync.Mutex
	w  io.Writer
}

func (w *syncWriter) Write(p []byte) (int, error) {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.w.Write(p)
}

type shell struct {
	app  *app
	ctrl *mode.Controller
	net  *reachability.Manual
	out  io.Writer
	log  *zap.Logger

	mu    sync.Mutex
	reply chan mode.Decision
}

func newShell(a *app, out io.Writer) *shell {
	s := &shell{
		app: a,
		net: &reachability.Manual{},
		out: &syncWriter{w: out},
		log: a.log.Named("shell"),
	}
	s.ctrl = a.controller(s)
	return s
}

func (s *shell) printf(format string, args ...any) {
	fmt.Fprintf(s.out, format, args...)
}

// ConfirmOffline asks the user whether to work offline. The answer is the
// next line typed, whatever command is running at the time.
func (s *shell) ConfirmOffline(ctx context.Context, reason string) mode.Decision {
	reply := make(chan mode.Decision, 1)
	s.mu.Lock()
	s.reply = reply
	s.mu.Unlock()
	defer func() {
		s.mu.Lock()
		if s.reply == reply {
			s.reply = nil
		}
		s.mu.Unlock()
	}()

	s.printf("\n%s\nwork offline? [Y]es / [r]etry: ", reason)
	select {
	case d := <-reply:
		return d
	case <-ctx.Done():
		return mode.GoOffline
	}
}

func (s *shell) SignOut(err error) {
	if cerr := s.app.tokens.Clear(); cerr != nil {
		s.log.Error("clear token", zap.Error(cerr))
	}
	s.printf("\nsession expired (%v), use 'login <login>'\n", err)
}

// answer hands line to a waiting prompt. It reports false when no prompt is open.
func (s *shell) answer(line string) bool {
	s.mu.Lock()
	reply := s.reply
	s.reply = nil
	s.mu.Unlock()
	if reply == nil {
		return false
	}
	switch strings.ToLower(line) {
	case "r", "retry":
		reply <- mode.Retry
	default:
		reply <- mode.GoOffline
	}
	return true
}

func (s *shell) readLines(ctx context.Context, in io.Reader) <-chan string {
	lines := make(chan string, lineBuffer)
	go func() {
		defer close(lines)
		scanner := bufio.NewScanner(in)
		for scanner.Scan() {
			line := strings.TrimSpace(scanner.Text())
			if s.answer(line) {
				continue
			}
			select {
			case lines <- line:
			case <-ctx.Done():
				return
			}
		}
	}()
	return lines
}

func (s *shell) run(ctx context.Context, in io.Reader) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	defer s.ctrl.Subscribe(func(m mode.Mode, reason string) {
		if m == mode.Online {
			s.printf("\n[online]\n")
			return
		}
		s.printf("\n[offline] %s\n", reason)
	})()

	var syncing atomic.Bool
	defer s.app.state.Subscribe(func(st syncstate.State) {
		if st.IsSyncing {
			syncing.Store(true)
			return
		}
		if syncing.Swap(false) && st.Message != "" {
			s.printf("\n[sync] %s\n", st.Message)
		}
	})()

	lines := s.readLines(ctx, in)

	signal := reachability.Merge(
		reachability.NewInterfaceWatcher(watchInterval, s.log.Named("net")),
		s.net,
	)
	monitor := reachability.New(s.app.client, s.ctrl, signal, reachability.Config{
		Interval:  s.app.cfg.Heartbeat.Interval,
		Timeout:   s.app.cfg.Heartbeat.Timeout,
		Threshold: s.app.cfg.Heartbeat.Threshold,
		Logger:    s.log.Named("heartbeat"),
	})
	go monitor.Run(ctx)
	s.app.engine.Start(ctx, s.app.cfg.Sync.Interval, s.ctrl.Online)

	s.printf("FinKeeper shell. Type 'help' for commands.\n")
	if err := s.app.requireSession(ctx); err != nil {
		s.printf("%v\n", err)
	} else {
		go s.connect(ctx, s.ctrl.StartupCheck)
	}

	for {
		s.printf(shellPrompt)
		select {
		case <-ctx.Done():
			return nil
		case line, ok := <-lines:
			if !ok {
				return nil
			}
			if s.exec(ctx, line) {
				return nil
			}
		}
	}
}

func (s *shell) connect(ctx context.Context, fn func(context.Context) error) {
	if err := fn(ctx); err != nil && ctx.Err() == nil {
		s.printf("\n%v\n", err)
	}
}

// allowed reports whether the current mode permits an action.
func (s *shell) allowed(ok bool, what string) bool {
	if !ok {
		s.printf("%s is not available offline, type 'online' to reconnect\n", what)
	}
	return ok
}

// exec runs one command line and reports whether the shell should exit.
func (s *shell) exec(ctx context.Context, line string) bool {
	args := strings.Fields(line)
	if len(args) == 0 {
		return false
	}
	a := s.app
	caps := s.ctrl.Capabilities()

	var err error
	switch args[0] {
	case "help":
		s.printf("%s\n", shellHelp)
	case "add":
		if !s.allowed(caps.CanAdd, "adding") {
			break
		}
		if len(args) < 3 {
			s.printf("Usage: add <income|expense> <amount> [category|-] [note...]\n")
			break
		}
		e := entry{Type: args[1], Amount: args[2]}
		if len(args) > 3 && args[3] != "-" {
			if !s.allowed(caps.CanSelectCategory, "choosing a category") {
				break
			}
			e.Category = args[3]
		}
		if len(args) > 4 {
			e.Note = strings.Join(args[4:], " ")
		}
		if _, err = a.add(ctx, s.out, e); err == nil && s.ctrl.Online() {
			go s.connect(ctx, func(ctx context.Context) error { return a.engine.RunFullSync(ctx, nil) })
		}
	case "pending":
		err = s.printPending(ctx)
	case "discard":
		if !s.allowed(caps.CanDelete, "discarding") {
			break
		}
		if len(args) < 2 {
			s.printf("Usage: discard <local-id>\n")
			break
		}
		err = s.discard(ctx, args[1])
	case "list":
		if s.allowed(caps.CanAccessMainSections, "the transaction list") {
			err = a.printTransactions(ctx, s.out)
		}
	case "categories":
		if s.allowed(caps.CanSelectCategory, "categories") {
			err = a.printCategories(ctx, s.out)
		}
	case "profile":
		if s.allowed(caps.CanAccessProfileSettings, "the profile") {
			err = a.printProfile(ctx, s.out)
		}
	case "sync":
		if !s.allowed(caps.CanAccessMainSections, "sync") {
			break
		}
		if a.engine.InFlight() {
			s.printf("a sync is already running\n")
			break
		}
		if err = a.engine.RunFullSync(ctx, nil); err == nil {
			printResult(s.out, a)
		}
	case "online":
		if s.ctrl.Online() {
			s.printf("already online\n")
			break
		}
		if err = a.requireSession(ctx); err == nil {
			err = s.ctrl.GoOnline(ctx)
		}
	case "net":
		if len(args) < 2 || (args[1] != "up" && args[1] != "down") {
			s.printf("Usage: net up|down\n")
			break
		}
		s.net.Set(args[1] == "up")
	case "status":
		err = a.printStatus(ctx, s.out, s.ctrl.Mode(), s.ctrl.Reason())
	case "caps":
		printCaps(s.out, s.ctrl.Mode())
	case "dump":
		if len(args) < 2 {
			s.printf("Usage: dump <table>\n")
			break
		}
		err = a.dump(ctx, s.out, args[1])
	case "login":
		if len(args) < 2 {
			s.printf("Usage: login <login>\n")
			break
		}
		var token string
		if token, err = a.client.Login(ctx, args[1]); err != nil {
			break
		}
		if err = a.tokens.Save(token); err == nil {
			s.printf("signed in as %s\n", args[1])
			go s.connect(ctx, s.ctrl.GoOnline)
		}
	case "logout":
		if err = a.tokens.Clear(); err == nil {
			s.printf("signed out\n")
		}
	case "exit", "quit":
		s.printf("Bye\n")
		return true
	default:
		s.printf("unknown command %q, type 'help'\n", args[0])
	}
	if err != nil {
		s.printf("error: %v\n", err)
	}
	return false
}

func (s *shell) printPending(ctx context.Context) error {
	rows, err := s.app.queue.Pending(ctx)
	if err != nil {
		return err
	}
	if len(rows) == 0 {
		s.printf("nothing pending\n")
		return nil
	}
	tw := tabwriter.NewWriter(s.out, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "ID\tDATE\tTYPE\tAMOUNT\tCATEGORY\tNOTE")
	for _, r := range rows {
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%s\t%s\n",
			r.LocalID, r.Date, r.Type, r.Amount.StringFixed(2), deref(r.CategoryName), deref(r.Note))
	}
	return tw.Flush()
}

// discard drops a pending row. Synced rows belong to the server and are left alone.
func (s *shell) discard(ctx context.Context, localID string) error {
	rows, err := s.app.queue.Pending(ctx)
	if err != nil {
		return err
	}
	for _, r := range rows {
		if r.LocalID == localID {
			if err := s.app.store.DeleteTransactionByLocalID(ctx, localID); err != nil {
				return err
			}
			s.printf("discarded %s\n", localID)
			return nil
		}
	}
	return fmt.Errorf("no pending transaction %q", localID)
}
