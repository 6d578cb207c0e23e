// Command simcore-demo wires a Scheduler, a Time Engine, an in-process
// message bus, and a handful of demo systems together and runs a short
// fixed number of frames, the way the teacher's cmd/inos-node wires
// identity, network, and packet handling together at startup.
package main

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/automaxprocs/maxprocs"
	"go.uber.org/fx"

	"github.com/mechanica-imperii/simcore/bus"
	"github.com/mechanica-imperii/simcore/demosystems"
	"github.com/mechanica-imperii/simcore/scheduler"
	"github.com/mechanica-imperii/simcore/simcontract"
	"github.com/mechanica-imperii/simcore/telemetry"
	"github.com/mechanica-imperii/simcore/timeengine"
)

func main() {
	logger := telemetry.Default("simcore-demo")
	defer logger.Sync()

	if _, err := maxprocs.Set(maxprocs.Logger(func(format string, args ...any) {
		logger.Info(fmt.Sprintf(format, args...))
	})); err != nil {
		logger.Warn("automaxprocs: failed to adjust GOMAXPROCS", telemetry.Err(err))
	}

	app := fx.New(
		fx.Supply(logger),
		fx.Provide(
			newBus,
			newScheduler,
			newTimeEngine,
		),
		fx.Invoke(registerDemoSystems, runDemo),
	)

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if err := app.Start(ctx); err != nil {
		logger.Fatal("startup failed", telemetry.Err(err))
	}
	<-app.Done()
	_ = app.Stop(ctx)
}

func newBus(logger *telemetry.Logger) simcontract.MessageBus {
	return bus.New(logger.Named("bus"))
}

func newScheduler(logger *telemetry.Logger, b simcontract.MessageBus) *scheduler.Scheduler {
	return scheduler.New(logger.Named("scheduler"), scheduler.WithBus(b))
}

func newTimeEngine(logger *telemetry.Logger, b simcontract.MessageBus) *timeengine.Engine {
	return timeengine.New(timeengine.Config{
		Start:  simcontract.GameDate{Year: 1066, Month: 12, Day: 31, Hour: 23},
		Bus:    b,
		Logger: logger.Named("timeengine"),
	})
}

// registerDemoSystems adds the Time Engine and a small mix of demo
// workloads to the scheduler, exercising MainThread, WorkerPool, and
// Hybrid placements (the Hybrid "Physics" system resolves to a dedicated
// goroutine by its name).
func registerDemoSystems(s *scheduler.Scheduler, eng *timeengine.Engine) error {
	if err := s.Add(eng.Name(), eng, simcontract.PlacementMainThread); err != nil {
		return err
	}
	if err := s.Add("Economy", demosystems.NewWorkSystem("Economy", 2*time.Millisecond, simcontract.PlacementWorkerPool), simcontract.PlacementWorkerPool); err != nil {
		return err
	}
	if err := s.Add("Physics", demosystems.NewWorkSystem("Physics", 8*time.Millisecond, simcontract.PlacementHybrid), simcontract.PlacementHybrid); err != nil {
		return err
	}
	return nil
}

func runDemo(lc fx.Lifecycle, s *scheduler.Scheduler, logger *telemetry.Logger) {
	lc.Append(fx.Hook{
		OnStart: func(ctx context.Context) error {
			go func() {
				for i := 0; i < 120; i++ {
					if err := s.Update(); err != nil {
						logger.Warn("frame completed with errors", telemetry.Err(err))
					}
				}
				logger.Info("demo run complete", telemetry.Int("frames", int(s.FrameNumber())))
			}()
			return nil
		},
		OnStop: func(ctx context.Context) error {
			return s.Shutdown(ctx)
		},
	})
}
