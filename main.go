package main

import (
	"context"
	"errors"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/cupogo/andvari/utils/zlog"
	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/urfave/cli/v2"
	"go.uber.org/zap"

	"github.com/liut/agrochat/htdocs"
	"github.com/liut/agrochat/pkg/bot"
	"github.com/liut/agrochat/pkg/services/backend"
	"github.com/liut/agrochat/pkg/services/stores"
	"github.com/liut/agrochat/pkg/settings"
	"github.com/liut/agrochat/pkg/web"
)

const pollTimeout = 60

func main() {
	app := &cli.App{
		Name:    settings.Name,
		Usage:   "chat, search and telegram front-ends of the documentation agent",
		Version: settings.Current.Version,
		Before:  setupLogger,
		Commands: []*cli.Command{
			{Name: "web", Usage: "serve the chat and search pages", Action: runWeb},
			{Name: "bot", Usage: "run the telegram bot", Action: runBot},
			{Name: "usage", Usage: "show environment settings", Action: func(*cli.Context) error {
				return settings.Usage()
			}},
		},
		DefaultCommand: "web",
	}
	if err := app.Run(os.Args); err != nil {
		log.Fatalf("%s: %s", settings.Name, err)
	}
}

func setupLogger(*cli.Context) error {
	var zlogger *zap.Logger
	var err error
	if settings.InDevelop() {
		zlogger, err = zap.NewDevelopment()
	} else {
		zlogger, err = zap.NewProduction()
	}
	if err != nil {
		return err
	}
	zlog.Set(zlogger.Sugar())
	return nil
}

func newBackend() *backend.Client {
	return backend.New(settings.Current.APIURL, backend.WithSearchTimeout(settings.Current.SearchTimeout))
}

func newSessions(ctx context.Context) (*stores.Sessions, error) {
	ss, err := stores.NewSessionStore(ctx, settings.Current.RedisURI, settings.Current.SessionTTL)
	if err != nil {
		return nil, err
	}
	return stores.NewSessions(ss), nil
}

func runWeb(cc *cli.Context) error {
	sugar := zlog.Get()
	ctx := cc.Context
	sto, err := newSessions(ctx)
	if err != nil {
		return err
	}

	cfg := settings.Current
	srv := web.New(web.Config{
		Addr:         cfg.HTTPListen,
		Debug:        settings.InDevelop(),
		DocHandler:   http.FileServer(http.FS(htdocs.FS())),
		Backend:      newBackend(),
		Sessions:     sto,
		AuthUser:     cfg.AuthUser,
		AuthPass:     cfg.AuthPass,
		RateLimit:    cfg.RateLimit,
		ChatTimeout:  cfg.ChatTimeout,
		CookieName:   cfg.CookieName,
		CookiePath:   cfg.CookiePath,
		CookieDomain: cfg.CookieDomain,
		CookieMaxAge: cfg.CookieMaxAge,
	})

	idleClosed := make(chan struct{})
	go func() {
		quit := make(chan os.Signal, 2)
		signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
		<-quit
		sugar.Info("shutting down server...")
		if err := srv.Stop(ctx); err != nil {
			sugar.Infow("server shutdown:", "err", err)
		}
		close(idleClosed)
	}()

	if err := srv.Serve(ctx); err != nil {
		sugar.Infow("serve fail", "err", err)
		return err
	}

	<-idleClosed
	return nil
}

func runBot(cc *cli.Context) error {
	sugar := zlog.Get()
	cfg := settings.Current
	if len(cfg.BotToken) == 0 {
		return errors.New("BOT_TOKEN is required")
	}

	ctx, stop := signal.NotifyContext(cc.Context, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	sto, err := newSessions(ctx)
	if err != nil {
		return err
	}
	preset, err := stores.LoadPreset(cfg.PresetFile)
	if err != nil {
		return err
	}
	assets, err := stores.NewS3Assets(stores.S3Config{
		Endpoint:  cfg.S3Endpoint,
		AccessKey: cfg.S3AccessKey,
		SecretKey: cfg.S3SecretKey,
		Region:    cfg.S3Region,
		Bucket:    cfg.S3Bucket,
	})
	if err != nil {
		sugar.Infow("images disabled", "err", err)
		assets = nil
	}

	api, err := tgbotapi.NewBotAPI(cfg.BotToken)
	if err != nil {
		return err
	}
	api.Debug = cfg.BotDebug
	sugar.Infow("authorized", "account", api.Self.UserName)

	u := tgbotapi.NewUpdate(0)
	u.Timeout = pollTimeout
	updates := api.GetUpdatesChan(u)
	go func() {
		<-ctx.Done()
		sugar.Info("stopping bot...")
		api.StopReceivingUpdates()
	}()

	b := bot.New(bot.Config{
		API:          api,
		Agent:        newBackend(),
		Sessions:     sto,
		Assets:       assets,
		Preset:       preset,
		Timeout:      cfg.BotTimeout,
		EditInterval: cfg.EditInterval,
	})
	if err = b.Run(ctx, updates); err != nil && !errors.Is(err, context.Canceled) {
		return err
	}
	return nil
}
