package commands

import (
	"errors"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Answer confirmation replies from the chat bridge",
	Long: `Serve connects to the chat bridge, recovers any questions left open
by a previous run, and waits for humans to answer them. Confirmed
answers enroll the voice in the database. Questions that stay
unanswered past the TTL are dropped by a periodic sweep.`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		a, err := openApp(ctx, true)
		if err != nil {
			return err
		}
		defer a.close()

		if err := a.sess.Load(ctx); err != nil {
			return err
		}

		every := a.cfg.SweepEvery.Duration()
		if every <= 0 {
			every = time.Minute
		}
		ticker := time.NewTicker(every)
		defer ticker.Stop()

		a.log.Info("serving", "bridge", a.cfg.BridgeURL, "open", a.sess.Len())
		for {
			select {
			case <-ctx.Done():
				return nil
			case <-ticker.C:
				a.sess.Sweep(ctx)
			case in, ok := <-a.bridge.Inbound():
				if !ok {
					if ctx.Err() != nil {
						return nil
					}
					return errors.New("bridge connection lost")
				}
				handled, err := a.sess.HandleReply(ctx, in)
				if err != nil {
					a.log.Warn("reply not processed", "err", err)
					continue
				}
				if !handled {
					a.log.Debug("reply ignored", "replied_to", in.RepliedTo)
				}
			}
		}
	},
}
