package main

import (
	"context"
	"errors"
	"log"
	"net"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"apidash.run/config"
	"apidash.run/gateway"
	"apidash.run/identity"
	"apidash.run/trutil"
	"apidash.run/web"
	"apidash.run/websession"
	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"
)

const shutdownTimeout = 10 * time.Second

func serve() error {
	cfg, err := config.Load()
	if err != nil {
		return err
	}

	logger := newLogger(stderr, cfg.LogLevel, cfg.LogStyle)
	if *flagVerbose {
		logger = logger.Level(zerolog.DebugLevel)
	}
	logf := logfAt(logger, zerolog.InfoLevel)
	debugf := logfAt(logger, zerolog.DebugLevel)

	secret, err := config.SessionSecret(cfg)
	if err != nil {
		return err
	}

	gc := &gateway.Client{
		BaseURL: cfg.APIURL,
		Logf:    debugf,
	}
	idp, err := identity.New(identity.Config{
		Domain:       cfg.Auth0.Domain,
		ClientID:     cfg.Auth0.ClientID,
		ClientSecret: cfg.Auth0.ClientSecret,
		Audience:     cfg.Auth0.Audience,
		RedirectURL:  cfg.SiteURL + "callback",
	})
	if err != nil {
		return err
	}
	sessions := &websession.Store{
		Secret:    secret,
		Max:       cfg.SessionMax,
		Secure:    strings.HasPrefix(cfg.SiteURL, "https://"),
		Refresher: idp,
		Gateway:   gc,
		Consumers: gc,
		Logf:      debugf,
	}
	h := web.New(cfg, idp, gc, sessions)
	h.Logf = logf

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	ln, err := net.Listen("tcp", cfg.Addr)
	if err != nil {
		return err
	}
	logger.Info().Str("addr", ln.Addr().String()).Str("site", cfg.SiteURL).Msg("listening")

	srv := &http.Server{
		Handler:           h,
		ReadHeaderTimeout: 10 * time.Second,
		ErrorLog: log.New(&trutil.LineWriter{
			Prefix: "http: ",
			Logf:   logfAt(logger, zerolog.WarnLevel),
		}, "", 0),
	}

	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		if err := srv.Serve(ln); !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-ctx.Done()
		logger.Info().Msg("shutting down")
		sctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		return srv.Shutdown(sctx)
	})
	return g.Wait()
}
