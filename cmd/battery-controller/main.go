package main

import (
	"context"
	"database/sql"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/carlmjohnson/versioninfo"
	"github.com/reugn/go-quartz/job"
	"github.com/reugn/go-quartz/quartz"
	"github.com/rs/zerolog/log"

	"github.com/thatsimonsguy/battery-controller/db"
	"github.com/thatsimonsguy/battery-controller/internal/api"
	"github.com/thatsimonsguy/battery-controller/internal/config"
	"github.com/thatsimonsguy/battery-controller/internal/controllers/chargecontroller"
	"github.com/thatsimonsguy/battery-controller/internal/datadog"
	"github.com/thatsimonsguy/battery-controller/internal/env"
	"github.com/thatsimonsguy/battery-controller/internal/gpio"
	"github.com/thatsimonsguy/battery-controller/internal/logging"
	"github.com/thatsimonsguy/battery-controller/internal/meter"
	"github.com/thatsimonsguy/battery-controller/internal/model"
	"github.com/thatsimonsguy/battery-controller/internal/mqtt"
	"github.com/thatsimonsguy/battery-controller/internal/notifications"
	"github.com/thatsimonsguy/battery-controller/internal/persist"
	"github.com/thatsimonsguy/battery-controller/internal/redis"
	"github.com/thatsimonsguy/battery-controller/internal/scheduler"
	"github.com/thatsimonsguy/battery-controller/internal/sensor"
	"github.com/thatsimonsguy/battery-controller/internal/source"
	"github.com/thatsimonsguy/battery-controller/internal/state"
	"github.com/thatsimonsguy/battery-controller/internal/store"
	"github.com/thatsimonsguy/battery-controller/system/shutdown"
)

const (
	snapshotName     = "state/SNAPSHOT"
	snapshotInterval = 5 * time.Second
	pruneCron        = "0 30 3 * * *"
	keepEvents       = 5000
	mqttTimeout      = 10 * time.Second
)

// recorders fans an event out to every configured recorder.
type recorders []interface {
	Record(kind model.EventKind, value float64)
}

func (r recorders) Record(kind model.EventKind, value float64) {
	for _, rec := range r {
		rec.Record(kind, value)
	}
}

func main() {
	cfg := config.Load()
	logging.Init(cfg.LogLevel, cfg.LogFile, cfg.LogConsole)
	env.Cfg = &cfg

	dumpConfig(cfg)

	gpio.SetSafeMode(cfg.SafeMode)
	if cfg.SafeMode {
		log.Warn().Msg("SAFE MODE ENABLED: charger relay will not be switched")
	}

	conn, err := db.Open(cfg.Storage.DBPath)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to open database")
	}
	shutdown.Register("database", func() {
		if err := conn.Close(); err != nil {
			log.Warn().Err(err).Msg("Failed to close database")
		}
	})

	stores := persist.Stores{Durable: db.NewSlotBackend(conn)}
	if cfg.Storage.VolatilePath != "" {
		stores.Volatile = store.New(cfg.Storage.VolatilePath)
	}

	notifications.Init(cfg.NtfyTopic)
	rec := recorders{db.NewEventLog(conn), notifications.Recorder{}}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	outputs := buildOutputs(ctx, cfg)
	loop := scheduler.NewLoop(64)

	charger, err := chargecontroller.New(cfg.Charger, chargecontroller.Deps{
		Scheduler: loop,
		Target:    outputs.Get(sensor.VoltageTarget),
		Phase:     outputs.Text(sensor.ChargePhase),
		Status:    outputs.Status(),
		Recorder:  rec,
	})
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to create charge controller")
	}

	dev, err := source.Open(cfg.Source)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to open reading source")
	}
	sampler := source.NewSampler(dev, source.Options{
		Interval:       time.Duration(cfg.Source.SampleIntervalMillis) * time.Millisecond,
		NotifyInterval: time.Duration(cfg.Source.NotifyIntervalMillis) * time.Millisecond,
		Post:           loop.Post,
		Listener:       charger,
		Voltage:        outputs.Get(sensor.BatteryVoltage),
		Current:        outputs.Get(sensor.BatteryCurrent),
		Status:         outputs.Status(),
	})

	m, err := meter.New(cfg.Meter, meter.Deps{
		Scheduler: loop,
		Source:    sampler,
		Outputs:   outputs,
		Stores:    stores,
		Recorder:  rec,
	})
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to create meter")
	}

	board := state.NewBoard(time.Now())
	loop.Post(func() {
		charger.Start()
		m.Start()
		loop.SetInterval(snapshotName, snapshotInterval, func() {
			board.Update(charger.Snapshot(), m.Snapshot(), loop.Now())
		})
	})

	sched, err := startCron(ctx, cfg, loop, m, conn)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to schedule maintenance jobs")
	}

	go func() {
		if err := sampler.Run(ctx); err != nil && ctx.Err() == nil {
			shutdown.ShutdownWithError(err, "Sampler stopped")
		}
	}()
	go func() {
		if err := api.NewServer(conn, board).Start(ctx, cfg.APIPort); err != nil {
			log.Error().Err(err).Msg("API server failed")
		}
	}()

	log.Info().Str("version", versioninfo.Short()).Msg("Battery controller running")
	if err := loop.Run(ctx); err != nil && ctx.Err() == nil {
		log.Error().Err(err).Msg("Event loop stopped")
	}

	sched.Stop()
	// The loop has exited, so the meter is no longer touched concurrently.
	m.Flush()
	shutdown.Shutdown()
}

// buildOutputs connects every configured sink and registers its teardown.
func buildOutputs(ctx context.Context, cfg config.Config) *sensor.Outputs {
	var sinks []any

	if cfg.MQTT.Enabled {
		pub := mqtt.New(cfg.MQTT)
		if err := pub.Connect(mqttTimeout); err != nil {
			log.Warn().Err(err).Msg("MQTT unavailable at startup, will keep retrying")
		}
		shutdown.Register("mqtt", pub.Close)
		sinks = append(sinks, pub)
	}

	if cfg.Redis.Enabled {
		pub := redis.New(cfg.Redis)
		if err := pub.Ping(ctx); err != nil {
			log.Warn().Err(err).Str("addr", cfg.Redis.Addr).Msg("Redis unavailable at startup")
		}
		go func() {
			if err := pub.Run(ctx); err != nil && ctx.Err() == nil {
				log.Error().Err(err).Msg("Redis publisher stopped")
			}
		}()
		sinks = append(sinks, pub)
	}

	if cfg.EnableDatadog {
		datadog.InitMetrics(cfg.DDAgentAddr, cfg.DDNamespace, cfg.DDTags)
		sinks = append(sinks, datadog.Sink{})
	}

	enabled := cfg.Outputs.Metrics
	if cfg.Outputs.ChargerRelay != nil {
		relay := gpio.NewRelay(gpio.Pin{Number: *cfg.Outputs.ChargerRelay, ActiveHigh: cfg.Outputs.ActiveHigh})
		shutdown.Register("relay", relay.Release)
		sinks = append(sinks, relay)
		if len(enabled) > 0 {
			enabled = append(append([]string(nil), enabled...), sensor.VoltageTarget)
		}
	}

	return sensor.NewOutputs(enabled, sinks...)
}

// startCron schedules the coarse maintenance jobs. Jobs touching the meter
// are posted to the event loop.
func startCron(ctx context.Context, cfg config.Config, loop *scheduler.Loop, m *meter.Meter, conn *sql.DB) (quartz.Scheduler, error) {
	sched, err := quartz.NewStdScheduler()
	if err != nil {
		return nil, err
	}
	sched.Start(ctx)

	flushTrigger, err := quartz.NewCronTrigger(cfg.Meter.CapacityFlushCron)
	if err != nil {
		return nil, err
	}
	flushJob := job.NewFunctionJob(func(_ context.Context) (bool, error) {
		return loop.Post(m.FlushCapacity), nil
	})
	if err := sched.ScheduleJob(quartz.NewJobDetail(flushJob, quartz.NewJobKey("flush-capacity")), flushTrigger); err != nil {
		return nil, err
	}

	pruneTrigger, err := quartz.NewCronTrigger(pruneCron)
	if err != nil {
		return nil, err
	}
	pruneJob := job.NewFunctionJob(func(_ context.Context) (int64, error) {
		n, err := db.PruneEvents(conn, keepEvents)
		if err != nil {
			log.Warn().Err(err).Msg("Failed to prune events")
			return 0, err
		}
		log.Debug().Int64("deleted", n).Msg("Pruned event history")
		return n, nil
	})
	if err := sched.ScheduleJob(quartz.NewJobDetail(pruneJob, quartz.NewJobKey("prune-events")), pruneTrigger); err != nil {
		return nil, err
	}
	return sched, nil
}

func dumpConfig(cfg config.Config) {
	c, m := cfg.Charger, cfg.Meter
	log.Info().
		Str("version", versioninfo.Short()).
		Str("config_file", cfg.ConfigFile).
		Bool("safe_mode", cfg.SafeMode).
		Float64("float_voltage", *c.FloatVoltage).
		Bool("absorption", c.AbsorptionVoltage != nil).
		Bool("equalization", c.EqualizationVoltage != nil).
		Float64("capacity_ah", m.CapacityAh).
		Float64("energy_full_wh", m.EnergyFullWh).
		Float64("fullcharge_voltage", m.FullChargeVoltage).
		Float64("discharge_voltage", m.DischargeVoltage).
		Int("update_interval_seconds", m.UpdateIntervalSeconds).
		Str("source", cfg.Source.Kind).
		Str("db_path", cfg.Storage.DBPath).
		Str("volatile_path", cfg.Storage.VolatilePath).
		Bool("mqtt", cfg.MQTT.Enabled).
		Bool("redis", cfg.Redis.Enabled).
		Bool("datadog", cfg.EnableDatadog).
		Msg("Starting battery controller")
}
