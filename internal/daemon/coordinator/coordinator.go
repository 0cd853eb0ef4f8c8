// Package coordinator wires the dispatcher, executor, fanout and event
// sources into the running daemon.
package coordinator

import (
	"context"

	"github.com/Unidata/tds-sub001/config"
	"github.com/Unidata/tds-sub001/errors"
	"github.com/Unidata/tds-sub001/internal/daemon/dispatcher"
	"github.com/Unidata/tds-sub001/internal/daemon/engine"
	"github.com/Unidata/tds-sub001/internal/daemon/executor"
	"github.com/Unidata/tds-sub001/internal/daemon/fanout"
	"github.com/Unidata/tds-sub001/internal/daemon/keyfile"
	"github.com/Unidata/tds-sub001/internal/daemon/rebuild"
	"github.com/Unidata/tds-sub001/internal/daemon/source"
	"github.com/Unidata/tds-sub001/internal/daemon/store"
	"github.com/Unidata/tds-sub001/internal/daemon/target"
	"github.com/Unidata/tds-sub001/pkg/models"
	"github.com/Unidata/tds-sub001/pkg/paths"
	"github.com/Unidata/tds-sub001/pkg/signer"
	"github.com/sirupsen/logrus"
)

// Coordinator owns all per-process state of the daemon.
type Coordinator struct {
	cfg         *config.Config
	collections map[string]models.Collection
	keyPath     string

	registry   *target.Registry
	signer     *signer.Signer
	fanout     *fanout.Fanout
	executor   *executor.Executor
	dispatcher *dispatcher.Dispatcher
	store      *store.Store
	logger     *logrus.Entry
}

// New builds a Coordinator from cfg. It fails if any server entry is
// invalid, and writes a fresh signing key to the configured key file.
func New(cfg *config.Config, rebuilder rebuild.Rebuilder, logger *logrus.Entry) (*Coordinator, error) {
	if rebuilder == nil {
		rebuilder = rebuild.TriggerOnly
	}

	registry, err := target.New(target.Config{
		Servers:     cfg.Servers,
		User:        cfg.User,
		Password:    cfg.Password,
		AdminPath:   cfg.AdminPath,
		LocalPath:   cfg.LocalPath,
		TriggerFlag: models.UpdateType(cfg.TriggerFlag),
		Timeout:     cfg.RequestTimeout.Std(),
	}, logger)
	if err != nil {
		return nil, err
	}

	keyPath := cfg.SecretKeyFile
	if keyPath == "" {
		keyPath = paths.SecretKeyPath()
	}
	key, err := keyfile.Generate()
	if err != nil {
		return nil, err
	}
	if err := keyfile.Write(keyPath, key); err != nil {
		return nil, err
	}

	c := &Coordinator{
		cfg:         cfg,
		collections: make(map[string]models.Collection, len(cfg.Collections)),
		keyPath:     keyPath,
		registry:    registry,
		signer:      signer.New(key, signer.WithTimeout(cfg.TokenTimeout.Std())),
		store:       store.New(),
		logger:      logger,
	}

	for _, cc := range cfg.Collections {
		coll := cc.Model()
		c.collections[coll.Name] = coll
		c.store.Register(coll)
	}

	c.fanout = fanout.New(registry, c.signer,
		fanout.WithLogger(logger),
		fanout.WithRate(cfg.Fanout.RequestsPerSecond),
	)
	c.executor = executor.New(executor.Options{
		Workers:      cfg.Workers,
		Rebuilder:    rebuilder,
		Notifier:     c.fanout,
		SendTriggers: cfg.SendTriggersEnabled(),
		Recorder:     c.store,
		Logger:       logger,
	})
	c.dispatcher = dispatcher.New(c.submit, logger)

	logger.WithFields(logrus.Fields{
		"collections": len(c.collections),
		"targets":     registry.Len(),
		"workers":     c.executor.Workers(),
	}).Info("Coordinator initialized")

	return c, nil
}

func (c *Coordinator) submit(state *dispatcher.ListenerState, ev models.UpdateEvent) error {
	return c.executor.Submit(executor.Task{
		Collection: c.collections[ev.Collection],
		UpdateType: ev.UpdateType,
		Event:      ev,
		Done:       state.Release,
	})
}

// ProcessEvent dispatches ev and reports whether a rebuild was started.
// Events for unknown collections are ignored. An event without an update
// type gets the collection's configured one.
func (c *Coordinator) ProcessEvent(ev models.UpdateEvent) bool {
	coll, ok := c.collections[ev.Collection]
	if !ok {
		c.logger.WithFields(logrus.Fields{
			"collection": ev.Collection,
			"source":     ev.Source,
		}).Warn("Ignoring event for unknown collection")
		return false
	}
	if ev.UpdateType == "" {
		ev.UpdateType = coll.UpdateType
	}

	accepted := c.dispatcher.ProcessEvent(ev)
	c.store.RecordEvent(ev, accepted)
	return accepted
}

// Trigger requests an update for collection on behalf of an API caller.
func (c *Coordinator) Trigger(collection string, ut models.UpdateType) (bool, error) {
	if _, ok := c.collections[collection]; !ok {
		return false, errors.UnknownCollection(collection)
	}
	return c.ProcessEvent(models.NewUpdateEvent(collection, ut, "api")), nil
}

// Sources builds the event sources described by the configuration.
func (c *Coordinator) Sources() ([]source.Source, error) {
	var watches []source.WatchSpec
	var intervals []source.IntervalSpec
	for _, cc := range c.cfg.Collections {
		coll := c.collections[cc.Name]
		if len(cc.Watch) > 0 {
			watches = append(watches, source.WatchSpec{
				Collection: coll.Name,
				UpdateType: coll.UpdateType,
				Dirs:       cc.Watch,
				Include:    cc.Include,
				Settle:     cc.Settle.Std(),
			})
		}
		if cc.Rescan > 0 || cc.UpdateOnStartup {
			intervals = append(intervals, source.IntervalSpec{
				Collection: coll.Name,
				UpdateType: coll.UpdateType,
				Every:      cc.Rescan.Std(),
				OnStartup:  cc.UpdateOnStartup,
			})
		}
	}

	var sources []source.Source
	if len(watches) > 0 {
		ws, err := source.NewWatchSource(watches, c.logger)
		if err != nil {
			return nil, errors.Wrap(err, errors.ErrCodeConfigValidation, "invalid watch configuration")
		}
		sources = append(sources, ws)
	}
	if len(intervals) > 0 {
		sources = append(sources, source.NewIntervalSource(intervals, c.logger))
	}
	if r := c.cfg.Redis; r != nil {
		sources = append(sources, source.NewRedisSource(source.RedisOptions{
			Addr:     r.Addr,
			Password: r.Password,
			DB:       r.DB,
			Channel:  r.Channel,
		}, c.logger))
	}
	return sources, nil
}

// Start runs the configured event sources and blocks until ctx is
// canceled and every source has returned.
func (c *Coordinator) Start(ctx context.Context) error {
	sources, err := c.Sources()
	if err != nil {
		return err
	}

	eng := engine.New(c.logger)
	for _, s := range sources {
		eng.Register(s)
	}
	if len(sources) == 0 {
		c.logger.Info("No event sources configured; updates arrive through the API only")
	}

	eng.Start(ctx, func(ev models.UpdateEvent) {
		c.ProcessEvent(ev)
	})
	return nil
}

// Stop refuses further events and waits for running rebuilds, including
// their trigger fanout, until ctx expires.
func (c *Coordinator) Stop(ctx context.Context) error {
	c.dispatcher.Close()
	return c.executor.Shutdown(ctx)
}

// Store returns the status store.
func (c *Coordinator) Store() *store.Store { return c.store }

// Registry returns the server target registry.
func (c *Coordinator) Registry() *target.Registry { return c.registry }

// Signer returns the signer holding this process's key.
func (c *Coordinator) Signer() *signer.Signer { return c.signer }

// KeyPath returns where the signing key was written.
func (c *Coordinator) KeyPath() string { return c.keyPath }

// Config returns the configuration the coordinator was built from.
func (c *Coordinator) Config() *config.Config { return c.cfg }

// Listeners returns the per-collection gate states.
func (c *Coordinator) Listeners() []dispatcher.StateInfo { return c.dispatcher.States() }

// Executor returns the task executor.
func (c *Coordinator) Executor() *executor.Executor { return c.executor }
