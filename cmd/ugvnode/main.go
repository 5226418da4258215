package main

//go-build: CGO_ENABLED=0

import (
	"flag"
	"os"
	"time"

	"github.com/golang/glog"

	"github.com/imperator-maximus/Quassel-UGV/pkg/bridge"
	"github.com/imperator-maximus/Quassel-UGV/pkg/dronecan"
	"github.com/imperator-maximus/Quassel-UGV/pkg/eeprom"
	"github.com/imperator-maximus/Quassel-UGV/pkg/hwid"
	"github.com/imperator-maximus/Quassel-UGV/pkg/sim"
)

// ugvnode runs one DroneCAN node on a simulated bus next to an
// allocator, with optional MQTT telemetry.

const (
	allocatorNodeID = 127
	eepromSize      = 256
)

var conf = struct {
	Name        string
	MQTTURL     string
	EEPROMPath  string
	PreferredID uint
	Interval    time.Duration
}{
	Name:        "org.quassel.ugv.node",
	EEPROMPath:  "ugvnode.eeprom",
	PreferredID: uint(dronecan.DefaultPreferredNodeID),
	Interval:    time.Millisecond,
}

func init() {
	if val := os.Getenv("UGV_MQTT_URL"); val != "" {
		conf.MQTTURL = val
	}
	flag.StringVar(&conf.Name, "name", conf.Name, "Node name reported in GetNodeInfo")
	flag.StringVar(&conf.MQTTURL, "mqtt", conf.MQTTURL, "MQTT broker URL for telemetry (empty disables)")
	flag.StringVar(&conf.EEPROMPath, "eeprom", conf.EEPROMPath, "Parameter store image path")
	flag.UintVar(&conf.PreferredID, "preferred-id", conf.PreferredID, "Preferred node id for allocation")
	flag.DurationVar(&conf.Interval, "interval", conf.Interval, "Engine tick interval")
}

func main() {
	flag.Parse()

	store, err := eeprom.OpenFile(conf.EEPROMPath, eepromSize)
	if err != nil {
		glog.Fatalf("open eeprom image: %v", err)
	}
	defer store.Close()

	var br *bridge.Bridge
	if conf.MQTTURL != "" {
		if br, err = bridge.New(conf.MQTTURL, conf.Name); err != nil {
			glog.Fatalf("mqtt bridge: %v", err)
		}
		defer br.Close()
	}

	bus := sim.NewBus()
	alloc := sim.NewAllocator(bus.Port("allocator"), allocatorNodeID, time.Now)

	var node *dronecan.Node
	cfg := dronecan.Config{
		Name:            conf.Name,
		PreferredNodeID: uint8(conf.PreferredID),
		SoftwareMajor:   1,
		SoftwareMinor:   0,
		HardwareMajor:   1,
		Params: []dronecan.Param{
			{Name: "NODEID", Kind: dronecan.ParamInteger, Min: 0, Max: 127},
			{Name: "MOTOR_MAX", Kind: dronecan.ParamReal, Min: 0.5, Max: 1.0},
			{Name: "TELEM_RATE", Kind: dronecan.ParamInteger, Min: 1, Max: 50},
		},
		Store:    store,
		Platform: dronecan.NewSystemPlatform(hwid.AppUniqueID(conf.Name), nil),
		OnStatus: func(st dronecan.NodeStatus) {
			if br != nil {
				br.PublishStatus(node.NodeID(), st)
			}
		},
		OnLog: func(lm dronecan.LogMessage) {
			if br != nil {
				br.PublishLog(node.NodeID(), lm)
			}
		},
	}
	node = dronecan.NewNode(cfg, bus.Port("node"))

	glog.Infof("%s starting on simulated bus", conf.Name)
	for {
		node.Cycle()
		alloc.Tick()
		time.Sleep(conf.Interval)
	}
}
