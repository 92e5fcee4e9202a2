package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/srg/sensorlog/internal/agent"
	"github.com/srg/sensorlog/internal/framing"
	"github.com/srg/sensorlog/internal/gatt"
	"github.com/srg/sensorlog/internal/lifecycle"
	"github.com/srg/sensorlog/internal/platform"
	"github.com/srg/sensorlog/internal/power"
	"github.com/srg/sensorlog/internal/protocol"
	"github.com/srg/sensorlog/internal/subpool"
)

// runCmd represents the run command
var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Run the sensor agent",
	Long: `Run the sensor agent: advertise the BLE control service, watch
electrode contact and record measurement data until stopped or powered
down by the companion app.`,
	RunE: runAgent,
}

var runLeadsConnected bool

func init() {
	runCmd.Flags().BoolVar(&runLeadsConnected, "leads-connected", false, "Start with electrode contact present (begins recording immediately)")
}

func runAgent(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	logger, err := configureLogger(cmd, cfg)
	if err != nil {
		return err
	}

	ctx, cancel := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	// The agent is the sink for every event producer, but the producers are
	// wired before the agent exists; the indirection closes that loop.
	var ag *agent.Agent
	sink := platform.SinkFunc(func(ev platform.Event) { ag.Post(ev) })

	store := platform.NewMemStore(sink, cfg.Recording.BufferCap, logger)
	broker := platform.NewSimBroker(sink, logger)
	defer broker.Close()

	srv := gatt.NewServer(sink, cfg.DeviceName, uint32(cfg.Transport.OutboundQueue), logger)

	ctrl := lifecycle.New(store, platform.NewLogIndicator(logger), lifecycle.Options{
		Paths:               cfg.Recording.Paths,
		GraceTicks:          cfg.Lifecycle.GraceTicks(),
		IndicationHoldTicks: cfg.Lifecycle.IndicationHoldTicks(),
	}, logger)
	seq := power.New(platform.NewHostPower(logger, cancel), logger)
	engine := protocol.NewEngine(
		framing.NewWriter(srv, cfg.Transport.NotifyBodyLimit, logger),
		subpool.New(cfg.Transport.SubscriptionSlots),
		store, broker, ctrl, seq, logger,
	)
	ag = agent.New(engine, ctrl, seq, cfg.Lifecycle.TickPeriod, agent.DefaultQueueCap, logger)

	printBanner(cfg.DeviceName)

	if runLeadsConnected {
		ag.Post(platform.LeadStateEvent{Connected: true})
	}

	// SIGUSR1 toggles electrode contact, standing in for the lead sensor.
	leadCh := make(chan os.Signal, 1)
	signal.Notify(leadCh, syscall.SIGUSR1)
	go func() {
		connected := runLeadsConnected
		for {
			select {
			case <-ctx.Done():
				return
			case <-leadCh:
				connected = !connected
				ag.Post(platform.LeadStateEvent{Connected: connected})
			}
		}
	}()

	errCh := make(chan error, 2)
	go func() { errCh <- ag.Run(ctx) }()
	go func() { errCh <- srv.Serve(ctx) }()

	// The first failure takes the whole agent down.
	err = <-errCh
	cancel()
	<-errCh

	if err != nil && ctx.Err() == nil {
		return err
	}
	return context.Canceled
}

func printBanner(name string) {
	bold := color.New(color.Bold)
	bold.Printf("sensorlogd %s\n", formatVersion(version))
	fmt.Printf("  device:  %s\n", color.CyanString(name))
	fmt.Printf("  service: %s\n", color.CyanString(gatt.ServiceUUID.String()))
}
