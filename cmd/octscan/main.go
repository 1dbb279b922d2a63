package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"github.com/octscan/octscan/internal/config"
	"github.com/octscan/octscan/internal/domain/clinic"
	"github.com/octscan/octscan/internal/domain/roles"
	"github.com/octscan/octscan/internal/domain/session"
	"github.com/octscan/octscan/internal/platform/apierr"
	"github.com/octscan/octscan/internal/platform/gateway"
	"github.com/octscan/octscan/internal/platform/kvstore"
)

func main() {
	c := &cli{out: os.Stdout, errOut: os.Stderr}
	if err := newRootCmd(c).Execute(); err != nil {
		os.Exit(1)
	}
}

// cli carries the state shared by every command. cfg and kv may be set
// before Execute; otherwise they come from the environment.
type cli struct {
	out    io.Writer
	errOut io.Writer

	cfg    *config.Config
	logger zerolog.Logger
	kv     kvstore.Store
	ownsKV bool
	gw     *gateway.Client
	sess   *session.Manager
}

func newRootCmd(c *cli) *cobra.Command {
	root := &cobra.Command{
		Use:          "octscan",
		Short:        "Manage patients and OCT scans against the clinic backend",
		SilenceUsage: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return c.setup()
		},
		PersistentPostRunE: func(cmd *cobra.Command, args []string) error {
			return c.close()
		},
	}
	root.SetOut(c.out)
	root.SetErr(c.errOut)

	root.AddCommand(c.registerCmd())
	root.AddCommand(c.loginCmd())
	root.AddCommand(c.logoutCmd())
	root.AddCommand(c.whoamiCmd())
	root.AddCommand(c.patientsCmd())
	root.AddCommand(c.scansCmd())
	root.AddCommand(c.statsCmd())
	root.AddCommand(c.predictCmd())
	root.AddCommand(c.devserverCmd())
	return root
}

func (c *cli) setup() error {
	if c.cfg == nil {
		cfg, err := config.Load()
		if err != nil {
			return err
		}
		c.cfg = cfg
	}
	if err := c.cfg.Validate(); err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}
	c.logger = newLogger(c.cfg, c.errOut)
	return nil
}

func (c *cli) close() error {
	if c.ownsKV && c.kv != nil {
		err := c.kv.Close()
		c.kv, c.sess, c.ownsKV = nil, nil, false
		return err
	}
	return nil
}

func newLogger(cfg *config.Config, w io.Writer) zerolog.Logger {
	logger := zerolog.New(w).With().Timestamp().Logger()
	if cfg.IsDev() {
		logger = zerolog.New(zerolog.ConsoleWriter{Out: w}).With().Timestamp().Logger()
	}
	level, err := zerolog.ParseLevel(strings.ToLower(cfg.LogLevel))
	if err != nil || level == zerolog.NoLevel {
		level = zerolog.InfoLevel
	}
	return logger.Level(level)
}

func openKV(ctx context.Context, cfg *config.Config) (kvstore.Store, error) {
	switch cfg.SessionStore {
	case config.StoreRedis:
		s, err := kvstore.OpenRedisStore(ctx, cfg.RedisURL, cfg.SessionKeyPrefix)
		if err != nil {
			return nil, err
		}
		return s, nil
	case config.StoreMemory:
		return kvstore.NewMemoryStore(), nil
	default:
		s, err := kvstore.NewFileStore(cfg.SessionFile)
		if err != nil {
			return nil, err
		}
		return s, nil
	}
}

// session opens the session manager and the gateway that reads its token.
func (c *cli) session(ctx context.Context) (*session.Manager, error) {
	if c.sess != nil {
		return c.sess, nil
	}
	if c.kv == nil {
		kv, err := openKV(ctx, c.cfg)
		if err != nil {
			return nil, fmt.Errorf("open session store: %w", err)
		}
		c.kv, c.ownsKV = kv, true
	}

	sess, err := session.Open(ctx, nil, c.kv, c.logger)
	if err != nil {
		return nil, err
	}
	c.gw = gateway.New(c.cfg.APIBaseURL,
		gateway.WithTokenSource(sess.Token),
		gateway.WithPredictURL(c.cfg.PredictURL),
		gateway.WithTimeout(c.cfg.HTTPTimeout),
		gateway.WithLogger(c.logger),
	)
	sess.SetGateway(c.gw)
	c.sess = sess
	return sess, nil
}

// authorize checks the stored user's role before a command touches the
// backend.
func (c *cli) authorize(ctx context.Context, action roles.Action) (*session.Manager, error) {
	sess, err := c.session(ctx)
	if err != nil {
		return nil, err
	}
	if !sess.IsAuthenticated(ctx) {
		return nil, apierr.Auth("octscan", "not logged in, run 'octscan login'")
	}
	if role := sess.Role(ctx); !roles.CanPerform(action, role) {
		return nil, apierr.Auth("octscan", fmt.Sprintf("role %q may not %s", role, action))
	}
	return sess, nil
}

// store builds a domain store for the session and loads the cache.
func (c *cli) store(ctx context.Context, sess *session.Manager) (*clinic.Store, error) {
	hist, err := sess.History(ctx)
	if err != nil {
		return nil, err
	}
	orphans, err := sess.Orphans(ctx)
	if err != nil {
		return nil, err
	}
	st := clinic.NewStore(c.gw, clinic.WithLogger(c.logger), clinic.WithHistory(hist), clinic.WithOrphans(orphans))
	if _, err := st.Load(ctx); err != nil {
		return nil, err
	}
	return st, nil
}

func (c *cli) printJSON(v interface{}) error {
	enc := json.NewEncoder(c.out)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
