// Command invitelobbyd is the invite lobby's websocket-facing process: it
// wires the command-router Coordinator, the identity/rating/storage
// collaborators, and the player-facing and operator-facing HTTP surfaces
// together and serves them.
package main

import (
	"context"
	"crypto/ed25519"
	"encoding/hex"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	_ "github.com/joho/godotenv/autoload"

	"github.com/fatih/color"
	"github.com/go-chi/chi/v5"
	"github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"

	"github.com/corvidchess/invitelobby/internal/adminapi"
	"github.com/corvidchess/invitelobby/internal/eventlog"
	"github.com/corvidchess/invitelobby/internal/gamefactory"
	"github.com/corvidchess/invitelobby/internal/identitysvc"
	"github.com/corvidchess/invitelobby/internal/invite"
	"github.com/corvidchess/invitelobby/internal/lobby"
	"github.com/corvidchess/invitelobby/internal/middleware"
	"github.com/corvidchess/invitelobby/internal/ratingsvc"
	"github.com/corvidchess/invitelobby/internal/restart"
	"github.com/corvidchess/invitelobby/internal/storage"
	"github.com/corvidchess/invitelobby/internal/translator"
	"github.com/corvidchess/invitelobby/internal/transport"
)

func main() {
	log.SetFlags(0)
	if err := newRootCmd().Execute(); err != nil {
		log.Fatal(err)
	}
}

type config struct {
	bind           string
	port           int
	redisAddr      string
	postgresDSN    string
	jwtPrivateKey  string
	jwtPublicKey   string
	restartIn      time.Duration
	graceWindow    time.Duration
	allowedOrigins string
	verbose        bool
}

func newRootCmd() *cobra.Command {
	cfg := &config{}
	v := viper.New()
	v.SetEnvPrefix("INVITELOBBY")
	v.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	v.AutomaticEnv()

	cmd := &cobra.Command{
		Use:           "invitelobbyd",
		Short:         "Serves the chess lobby's open-invite catalogue over websockets",
		Args:          cobra.ExactArgs(0),
		SilenceErrors: true,
		SilenceUsage:  true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return run(cmd.Context(), cfg)
		},
	}

	fs := cmd.Flags()
	fs.SetNormalizeFunc(func(_ *pflag.FlagSet, name string) pflag.NormalizedName {
		return pflag.NormalizedName(strings.ReplaceAll(name, "_", "-"))
	})

	fs.StringVarP(&cfg.bind, "bind", "b", "localhost", "address to bind to (env: INVITELOBBY_BIND)")
	fs.IntVarP(&cfg.port, "port", "p", 8080, "port to listen on (env: INVITELOBBY_PORT)")
	fs.StringVar(&cfg.redisAddr, "redis-addr", "localhost:6379", "Redis address for the hand-off audit queue (env: INVITELOBBY_REDIS_ADDR)")
	fs.StringVar(&cfg.postgresDSN, "postgres-dsn", "", "Postgres DSN for identity/rating lookups (env: INVITELOBBY_POSTGRES_DSN)")
	fs.StringVar(&cfg.jwtPrivateKey, "jwt-private-key", "", "hex-encoded ed25519 private key for member JWTs (env: INVITELOBBY_JWT_PRIVATE_KEY)")
	fs.StringVar(&cfg.jwtPublicKey, "jwt-public-key", "", "hex-encoded ed25519 public key for member JWTs (env: INVITELOBBY_JWT_PUBLIC_KEY)")
	fs.DurationVar(&cfg.restartIn, "restart-in", 0, "arm the restart gate for a restart this long from now, as a duration such as 10m; 0 disables (env: INVITELOBBY_RESTART_IN)")
	fs.DurationVar(&cfg.graceWindow, "grace-window", lobby.DefaultGraceWindow, "reconnect grace period before an involuntarily-disconnected owner's invite is dropped (env: INVITELOBBY_GRACE_WINDOW)")
	fs.StringVar(&cfg.allowedOrigins, "allowed-origins", "", "comma-separated CORS origins for the admin API; empty falls back to ALLOWED_ORIGINS, and allows any if that is unset too (env: INVITELOBBY_ALLOWED_ORIGINS)")
	fs.BoolVarP(&cfg.verbose, "verbose", "v", false, "enable debug logging (env: INVITELOBBY_VERBOSE)")

	fs.VisitAll(func(f *pflag.Flag) {
		_ = v.BindPFlag(f.Name, f)
		_ = v.BindEnv(f.Name)
		if !f.Changed && v.IsSet(f.Name) {
			_ = fs.Set(f.Name, fmt.Sprintf("%v", v.Get(f.Name)))
		}
	})

	cmd.CompletionOptions.HiddenDefaultCmd = true
	return cmd
}

func run(ctx context.Context, cfg *config) error {
	log := logrus.New()
	if cfg.verbose {
		log.SetLevel(logrus.DebugLevel)
	}

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	privateKey, publicKey, err := loadOrGenerateKeyPair(cfg, log)
	if err != nil {
		return err
	}

	store, err := storage.Connect(ctx, cfg.postgresDSN)
	if err != nil {
		return err
	}
	defer store.Close()

	rdb := redis.NewClient(&redis.Options{Addr: cfg.redisAddr})
	defer rdb.Close()
	publisher := eventlog.NewPublisher(rdb, eventlog.DefaultQueueName)

	ids := identitysvc.New(privateKey, publicKey, store, identitysvc.WithTokenExpiry(30*24*time.Hour))
	ratings := ratingsvc.New(ratingsvc.DefaultVariants(), store)
	games := gamefactory.NewInMemory()
	games.OnCreate = handoffAuditor(publisher, log)
	restarts := restart.NewGate()
	if cfg.restartIn > 0 {
		restarts.Announce(time.Now().Add(cfg.restartIn))
	}

	coord := lobby.New(lobby.Config{
		Games:            games,
		Restarts:         restarts,
		VariantValidator: ratings,
		RatingProvider:   ratings,
		GraceWindow:      cfg.graceWindow,
		Log:              log,
	})
	go coord.Run(ctx)

	tr := translator.NewStatic()
	wsHandler := transport.NewHandler(log, coord, ids, tr)

	var origins []string
	if cfg.allowedOrigins != "" {
		origins = strings.Split(cfg.allowedOrigins, ",")
	} else {
		origins = adminapi.AllowedOriginsFromEnv()
	}
	admin := adminapi.New(coordinatorSnapshotter{coord}, games, restarts, origins)

	root := chi.NewRouter()
	root.Mount("/lobby/ws", middleware.LogMiddleware(log)(wsHandler))
	root.Mount("/admin", admin)

	addr := fmt.Sprintf("%s:%d", cfg.bind, cfg.port)
	srv := &http.Server{Addr: addr, Handler: root}

	go func() {
		log.Info(color.GreenString("INFO"), " invitelobbyd listening on ", color.CyanString(addr))
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.WithError(err).Fatal("invitelobbyd: server exited")
		}
	}()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)
	<-sigCh
	log.Info("invitelobbyd: shutting down")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()
	return srv.Shutdown(shutdownCtx)
}

// loadOrGenerateKeyPair loads the configured hex-encoded ed25519 key pair,
// or — when neither is supplied — generates an ephemeral one for
// development, matching the teacher's auth.Init() convenience behavior
// but logging loudly since an ephemeral key invalidates sessions on
// restart.
func loadOrGenerateKeyPair(cfg *config, log *logrus.Logger) (ed25519.PrivateKey, ed25519.PublicKey, error) {
	if cfg.jwtPrivateKey == "" && cfg.jwtPublicKey == "" {
		log.Warn("invitelobbyd: no JWT key pair configured, generating an ephemeral one (member sessions will not survive a restart)")
		return identitysvc.GenerateKeyPair()
	}
	priv, err := hex.DecodeString(cfg.jwtPrivateKey)
	if err != nil {
		return nil, nil, fmt.Errorf("invitelobbyd: decoding jwt-private-key: %w", err)
	}
	pub, err := hex.DecodeString(cfg.jwtPublicKey)
	if err != nil {
		return nil, nil, fmt.Errorf("invitelobbyd: decoding jwt-public-key: %w", err)
	}
	return ed25519.PrivateKey(priv), ed25519.PublicKey(pub), nil
}

// coordinatorSnapshotter adapts lobby.Coordinator to adminapi.InviteSnapshotter.
type coordinatorSnapshotter struct {
	coord *lobby.Coordinator
}

func (c coordinatorSnapshotter) PublicSnapshot() []invite.SafeInvite {
	return c.coord.PublicInvites()
}

// handoffAuditor builds a gamefactory.InMemory.OnCreate hook that publishes
// every hand-off to the Redis audit queue cmd/historiand drains, tagged
// with the game id InMemory just minted.
func handoffAuditor(publisher *eventlog.Publisher, log *logrus.Logger) func(gameID string, inv *invite.Invite, player1, player2 gamefactory.Player, replyTo string) {
	return func(gameID string, inv *invite.Invite, player1, player2 gamefactory.Player, replyTo string) {
		rated := "unrated"
		if inv.Rated == invite.Rated {
			rated = "rated"
		}
		ev := eventlog.HandoffEvent{
			GameID:      gameID,
			InviteID:    inv.ID,
			OwnerKey:    player1.Identity.Key(),
			AccepterKey: player2.Identity.Key(),
			Variant:     inv.Variant,
			Rated:       rated,
			TimestampMS: time.Now().UnixMilli(),
		}
		if err := publisher.Publish(context.Background(), ev); err != nil {
			log.WithError(err).Warn("invitelobbyd: failed to publish hand-off audit event")
		}
	}
}
