package agent

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/fatih/color"

	"github.com/retailsearch/retailsearch/internal/archive"
	"github.com/retailsearch/retailsearch/internal/session"
)

var (
	youLabel   = color.New(color.FgCyan, color.Bold)
	agentLabel = color.New(color.FgGreen, color.Bold)
)

// RunConsole reads one line per turn from in and prints each reply to out. It
// stops on "quit", end of input or ctx cancellation and returns the transcript.
// A session that expires while the user is idle is replaced by a fresh one
// for the same app and user, so records may carry more than one session id.
func RunConsole(ctx context.Context, in io.Reader, out io.Writer, orch *Orchestrator, sessionID string) ([]archive.TurnRecord, error) {
	current, err := orch.Session(ctx, sessionID)
	if err != nil {
		return nil, fmt.Errorf("load session: %w", err)
	}
	appName, userID := current.AppName, current.UserID

	scanner := bufio.NewScanner(in)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)

	transcript := make([]archive.TurnRecord, 0)
	for {
		if err := ctx.Err(); err != nil {
			return transcript, nil
		}
		_, _ = fmt.Fprint(out, "\n")
		_, _ = youLabel.Fprint(out, "You > ")
		if !scanner.Scan() {
			if err := scanner.Err(); err != nil {
				return transcript, fmt.Errorf("read input: %w", err)
			}
			_, _ = fmt.Fprintln(out)
			return transcript, nil
		}
		line := scanner.Text()
		if strings.EqualFold(strings.TrimSpace(line), "quit") {
			return transcript, nil
		}

		reply, err := orch.Turn(ctx, sessionID, line)
		if errors.Is(err, session.ErrNotFound) {
			restarted, startErr := orch.StartSession(ctx, appName, userID)
			if startErr != nil {
				return transcript, startErr
			}
			sessionID = restarted.ID
			reply, err = orch.Turn(ctx, sessionID, line)
		}
		if err != nil {
			return transcript, err
		}
		transcript = append(transcript, reply.Record)

		_, _ = fmt.Fprint(out, "\n")
		_, _ = agentLabel.Fprint(out, "Agent > ")
		_, _ = fmt.Fprintln(out, reply.Text)
	}
}
