package cli

import (
	"context"
	"fmt"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/quarrylane/praxis/internal/entity"
	"github.com/quarrylane/praxis/internal/hooks"
	"github.com/quarrylane/praxis/internal/jobs"
	"github.com/quarrylane/praxis/internal/metrics"
	"github.com/quarrylane/praxis/internal/notify"
	"github.com/quarrylane/praxis/internal/recreate"
	"github.com/quarrylane/praxis/internal/rules"
	"github.com/quarrylane/praxis/internal/sched"
	"github.com/quarrylane/praxis/internal/schema"
	"github.com/quarrylane/praxis/internal/store"
)

// App bundles the fully wired core for the run and jobs commands.
type App struct {
	Schemas   *schema.Registry
	Store     *store.Store
	Entities  *entity.Store
	Queue     *notify.Queue
	Engine    *recreate.Engine
	Scheduler *sched.Scheduler
	Metrics   *metrics.Collector
}

// Close releases the app's resources.
func (a *App) Close() error {
	return a.Store.Close()
}

// buildApp loads the schema and job documents, opens the database, and
// wires every component: dispatcher, entity store, trigger rules,
// notification queue, recreation engine, and scheduler.
func buildApp(ctx context.Context, schemaDir, jobsPath, dbPath string) (*App, error) {
	registry, err := schema.Load(schemaDir)
	if err != nil {
		return nil, fmt.Errorf("load schema: %w", err)
	}

	db, err := store.Open(dbPath)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}

	collector := metrics.NewCollector(prometheus.NewRegistry())
	dispatcher := hooks.NewDispatcher(hooks.WithMetrics(collector))

	entities, err := entity.New(ctx, registry, db, dispatcher)
	if err != nil {
		db.Close()
		return nil, err
	}

	queue := notify.NewQueue(db, notify.WithMetrics(collector))
	rules.RegisterAll(dispatcher, rules.Deps{Entities: entities, Queue: queue})

	engine := recreate.NewEngine(entities, recreate.WithMetrics(collector))

	jobsFile := sched.JobsFile{}
	if jobsPath != "" {
		jobsFile, err = sched.LoadJobsFile(jobsPath)
		if err != nil {
			db.Close()
			return nil, err
		}
	}

	scheduler := sched.NewScheduler(sched.WithMetrics(collector))
	err = jobs.RegisterAll(scheduler, jobs.Deps{
		Entities: entities,
		Engine:   engine,
		Queue:    queue,
		Sender:   notify.LogSender{},
	}, jobsFile)
	if err != nil {
		db.Close()
		return nil, err
	}

	return &App{
		Schemas:   registry,
		Store:     db,
		Entities:  entities,
		Queue:     queue,
		Engine:    engine,
		Scheduler: scheduler,
		Metrics:   collector,
	}, nil
}
