package main

import (
	"context"
	"log/slog"
	"os"
	"time"

	"github.com/cockroachdb/errors"

	"github.com/tokenops/presale-distributor/internal/chain"
	"github.com/tokenops/presale-distributor/internal/config"
	"github.com/tokenops/presale-distributor/internal/ledger"
	"github.com/tokenops/presale-distributor/internal/notify"
	"github.com/tokenops/presale-distributor/internal/pricing"
)

// app bundles everything a subcommand needs, constructed once per invocation.
type app struct {
	cfg      config.Settings
	state    *ledger.State
	client   *chain.Client
	prices   *pricing.Cache
	telegram *notify.Telegram
	location *time.Location
	log      *slog.Logger
}

func newApp(ctx context.Context) (*app, error) {
	cfg := config.Load()
	if err := cfg.Validate(); err != nil {
		return nil, errors.Wrap(err, "configuration")
	}
	loc, err := time.LoadLocation(cfg.Timezone)
	if err != nil {
		return nil, errors.Wrapf(err, "bad SCHEDULE_TZ %q", cfg.Timezone)
	}
	key, err := cfg.SigningKey()
	if err != nil {
		return nil, err
	}
	log := slog.Default()
	if cfg.KeystoreFile != "" {
		log.Info("signing key unlocked", "keystore", cfg.KeystoreFile)
	} else {
		log.Info("signing key loaded", "privateKey", config.MaskHex(cfg.PrivateKeyHex))
	}

	client, err := chain.Dial(ctx, chain.Options{
		RPCURL:       cfg.RPCURL,
		ChainID:      cfg.ChainID,
		Key:          key,
		ICOAddress:   cfg.ICOAddress,
		TokenAddress: cfg.TokenAddress,
	})
	if err != nil {
		return nil, err
	}

	state, err := ledger.Load(cfg.StatePath)
	if err != nil {
		client.Close()
		return nil, err
	}
	state.Token = client.Token().Hex()
	state.Decimals = int(client.Decimals())

	log.Info("connected",
		"rpc", cfg.RPCURL,
		"sender", client.Sender().Hex(),
		"token", client.Token().Hex(),
		"symbol", client.Symbol(),
		"ico", client.ICO().Hex(),
		"state", cfg.StatePath)

	return &app{
		cfg:      cfg,
		state:    state,
		client:   client,
		prices:   pricing.NewCache(client, time.Duration(cfg.PriceTTLSec)*time.Second),
		telegram: notify.New(cfg.TelegramBotToken, cfg.TelegramChatID),
		location: loc,
		log:      log,
	}, nil
}

func (a *app) Close() { a.client.Close() }

// telegramNotifier adapts the Telegram client to the engine's Notifier; nil
// when notifications are unconfigured.
type telegramNotifier struct {
	tg        *notify.Telegram
	animation string
}

func (n telegramNotifier) Notify(ctx context.Context, html string) error {
	if n.animation != "" {
		return n.tg.SendAnimation(ctx, n.animation, html)
	}
	return n.tg.SendMessage(ctx, html)
}

// importCSV merges the configured CSV into the ledger and persists it.
func (a *app) importCSV() (ledger.MergeReport, error) {
	if a.cfg.CSVPath == "" {
		return ledger.MergeReport{}, errors.New("CSV_PATH is not set")
	}
	data, err := os.ReadFile(a.cfg.CSVPath)
	if err != nil {
		return ledger.MergeReport{}, errors.Wrap(err, "read csv")
	}
	totals, warnings, err := ledger.ParseCSV(data)
	if err != nil {
		return ledger.MergeReport{}, err
	}
	for _, w := range warnings {
		a.log.Warn("csv row skipped", "reason", w)
	}
	rep := a.state.Merge(totals)
	if err := a.state.Save(); err != nil {
		return rep, err
	}
	a.log.Info("csv merged",
		"rows", len(totals), "new", rep.NewRecipients,
		"toppedUp", rep.ToppedUp, "unchanged", rep.Unchanged)
	return rep, nil
}
