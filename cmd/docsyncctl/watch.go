package main

import (
	"fmt"
	"io"
	"os/signal"
	"sync"
	"syscall"

	"github.com/rapidoc/docsync/internal/engine"
	"github.com/rapidoc/docsync/pkg/logger"
	"github.com/spf13/cobra"
)

var watchCmd = &cobra.Command{
	Use:   "watch [id...]",
	Short: "Subscribe to documents and print remote changes until interrupted",
	Long:  "Subscribe to the given documents (all visible documents when none are named) and print every remote content change and sync signal.",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		out := &lockedWriter{w: cmd.OutOrStdout()}
		c, err := connect(ctx, engine.EditorFunc(func(id, content string) {
			out.printf("render %s\n%s\n", id, content)
		}))
		if err != nil {
			return err
		}
		defer c.Close()

		views, err := c.session.LoadAll(ctx)
		if err != nil {
			return err
		}
		ids := args
		if len(ids) == 0 {
			for _, v := range views {
				ids = append(ids, v.Document.ID)
			}
		}
		for _, id := range ids {
			if err := c.session.Subscribe(ctx, id); err != nil {
				logger.Warnf("subscribe %s: %v", id, err)
				continue
			}
			out.printf("watching %s\n", id)
		}

		for {
			select {
			case <-ctx.Done():
				return nil
			case sig, ok := <-c.session.Signals():
				if !ok {
					return nil
				}
				if sig.Err != nil {
					out.printf("%s %s: %v\n", sig.Kind, sig.DocumentID, sig.Err)
					continue
				}
				out.printf("%s %s\n", sig.Kind, sig.DocumentID)
			}
		}
	},
}

// lockedWriter serializes renders from the session loop with signal output.
type lockedWriter struct {
	mu sync.Mutex
	w  io.Writer
}

func (l *lockedWriter) printf(format string, a ...interface{}) {
	l.mu.Lock()
	defer l.mu.Unlock()
	fmt.Fprintf(l.w, format, a...)
}

func init() {
	rootCmd.AddCommand(watchCmd)
}
