package cli

import (
	"database/sql"
	"fmt"

	"calmsession/internal/adapter/secondary/ads"
	"calmsession/internal/adapter/secondary/clock"
	"calmsession/internal/adapter/secondary/entitlement"
	"calmsession/internal/adapter/secondary/media"
	"calmsession/internal/adapter/secondary/repository"
	"calmsession/internal/config"
	"calmsession/internal/usecase"
)

// app holds the process-wide collaborators. The admission gate must be a
// singleton because ad inventory and the pending presentation are shared.
type app struct {
	cfg      config.Config
	store    *config.FileStore
	db       *sql.DB
	history  *repository.SQLiteRepository
	premium  *entitlement.Flag
	gate     usecase.AdmissionGate
	launcher usecase.SessionLauncher
}

// shared is set while the interactive shell runs so every command line reuses
// one gate and one database handle.
var shared *app

// acquireApp returns the shell's app or opens a new one. release is a no-op
// for the shared app.
func acquireApp() (a *app, release func(), err error) {
	if shared != nil {
		return shared, func() {}, nil
	}
	a, err = openApp(cfgPath)
	if err != nil {
		return nil, nil, err
	}
	return a, a.Close, nil
}

func openApp(path string) (*app, error) {
	store, err := config.NewFileStore(path)
	if err != nil {
		return nil, err
	}
	cfg, err := config.Resolve(store)
	if err != nil {
		return nil, fmt.Errorf("config %s: %w", path, err)
	}
	db, err := repository.NewDB(cfg.DBPath)
	if err != nil {
		return nil, err
	}
	history := repository.NewSQLiteRepository(db)

	premium := entitlement.NewFlag(cfg.Premium)
	source := ads.NewSimulatedSource(ads.Config{
		Latency:    cfg.Ads.Latency,
		ShowTime:   cfg.Ads.ShowTime,
		FillRate:   cfg.Ads.FillRate,
		RewardRate: cfg.Ads.RewardRate,
	})
	gate := usecase.NewAdmissionGate(source, premium, cfg.Ads.UnitID)
	premium.OnPremium(gate.DisableForPremium)

	launcher := usecase.NewSessionLauncher(
		gate,
		media.NewOpener(cfg.Playback.MediaLength),
		clock.NewTickerScheduler(),
		history,
		history,
		usecase.LauncherOptions{
			PlaybackTick:  cfg.Playback.Tick,
			SleepEpsilon:  cfg.Playback.SleepEpsilon,
			VoiceVolume:   cfg.Playback.VoiceVolume,
			AmbientVolume: cfg.Playback.AmbientVolume,
			AdWait:        cfg.Ads.Wait,
		},
	)
	gate.Preload()

	return &app{
		cfg:      cfg,
		store:    store,
		db:       db,
		history:  history,
		premium:  premium,
		gate:     gate,
		launcher: launcher,
	}, nil
}

// IsPremium reports the live entitlement.
func (a *app) IsPremium() bool { return a.premium.IsPremium() }

// SetPremium flips the live entitlement and persists it to the config file.
func (a *app) SetPremium(on bool) error {
	fileCfg, err := a.store.Load()
	if err != nil {
		return err
	}
	fileCfg.Premium = on
	if err := a.store.Save(fileCfg); err != nil {
		return err
	}
	a.cfg.Premium = on
	a.premium.Set(on)
	if !on {
		a.gate.Preload()
	}
	return nil
}

func (a *app) Close() {
	if a.db != nil {
		_ = a.db.Close()
	}
}
