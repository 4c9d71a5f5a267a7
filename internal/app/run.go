package app

import (
	"bufio"
	"context"
	"io"
	"strings"

	"codeberg.org/mutker/templogger/internal/display"
	"codeberg.org/mutker/templogger/internal/instrument"
	"codeberg.org/mutker/templogger/internal/poller"
)

// RunHeadless starts logging and blocks until ctx ends or the loop stops on
// its own. In the latter case the error that stopped it is returned.
func (a *App) RunHeadless(ctx context.Context) error {
	if err := a.Start(ctx); err != nil {
		return err
	}

	select {
	case <-ctx.Done():
		a.Stop()
		return nil
	case err := <-a.halted:
		return err
	}
}

// RunInteractive drives the live terminal view on out and reads one command
// per line from in:
//
//	t             start or stop logging
//	p <endpoint>  select the instrument
//	l             list serial ports
//	q             quit
//
// It returns when ctx ends, on q, or at the end of in. Logging is stopped
// before returning.
func (a *App) RunInteractive(ctx context.Context, in io.Reader, out io.Writer, opts ...display.TerminalOption) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	term := display.NewTerminal(out, opts...)
	queue := display.NewQueue(display.DefaultQueueSize)
	done := make(chan struct{})
	go func() {
		defer close(done)
		queue.Run(ctx)
	}()

	a.attachSink(queue.Sink(term))
	a.setObserver(func(s Status) {
		queue.Post(func() { term.SetStatus(s.Running(), s.Endpoint, s.Message, s.Err != nil) })
	})
	s := a.Status()
	queue.Post(func() { term.SetStatus(s.Running(), s.Endpoint, s.Message, s.Err != nil) })

	defer func() {
		a.Stop()
		a.setObserver(nil)
		queue.Close()
		<-done
	}()

	// The scanner goroutine stays blocked on in after an early return; for
	// os.Stdin that ends with the process.
	lines := make(chan string)
	go func() {
		defer close(lines)
		scanner := bufio.NewScanner(in)
		for scanner.Scan() {
			select {
			case lines <- scanner.Text():
			case <-ctx.Done():
				return
			}
		}
	}()

	for {
		select {
		case <-ctx.Done():
			return nil
		case line, ok := <-lines:
			if !ok {
				return nil
			}
			if quit := a.command(ctx, line, queue, term); quit {
				return nil
			}
		}
	}
}

func (a *App) command(ctx context.Context, line string, queue *display.Queue, term *display.Terminal) bool {
	fields := strings.Fields(line)
	if len(fields) == 0 {
		return false
	}

	switch fields[0] {
	case "q", "quit":
		return true
	case "t", "toggle":
		// Failures are shown through the status observer.
		_, _ = a.Toggle(ctx)
	case "p", "port":
		if len(fields) < 2 {
			queue.Post(func() { term.Logf("usage: p <endpoint>") })
			return false
		}
		if err := a.SetEndpoint(fields[1]); err != nil {
			a.log.Warn().Err(err).Msg("Failed to close previous instrument")
		}
	case "l", "list":
		ports, err := instrument.ListPorts()
		queue.Post(func() {
			if err != nil {
				term.Logf("list ports: %v", err)
				return
			}
			if len(ports) == 0 {
				term.Logf("no serial ports found")
			}
			for _, p := range ports {
				term.Logf("%s  %s", p.Resource, p.Product)
			}
		})
	default:
		cmd := fields[0]
		queue.Post(func() { term.Logf("unknown command %q", cmd) })
	}

	return false
}

// attachSink routes samples to s. A loop created earlier is rebuilt so it
// picks the sink up; that only happens while it is idle.
func (a *App) attachSink(s poller.Sink) {
	a.control.Lock()
	defer a.control.Unlock()

	a.sink = s
	if a.loop != nil && !a.loop.Running() {
		a.loop.Wait()
		a.loop = a.newLoop()
	}
}
