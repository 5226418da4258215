// Package cansh provides the interactive bus shell: parameter access,
// node info, status watch, and a firmware update demo against an
// in-process bus.
package cansh

import (
	"encoding/hex"
	"flag"
	"fmt"
	"log"
	"strconv"
	"time"

	"github.com/abiosoft/ishell"

	"github.com/imperator-maximus/Quassel-UGV/pkg/dronecan"
)

// Shell provides ishell backed interactive shell.
type Shell struct {
	Interactive bool

	Shell *ishell.Shell
	World *World
}

const (
	shellKey       = "$shell"
	requestTimeout = time.Second
)

var (
	// flags

	evalOnly bool

	// commands
	commands = []*ishell.Cmd{
		&ParamsCmd,
		&GetCmd,
		&SetCmd,
		&SaveCmd,
		&EraseCmd,
		&InfoCmd,
		&StatusCmd,
		&UpdateCmd,
		&RestartCmd,
	}
)

func init() {
	flag.BoolVar(&evalOnly, "e", evalOnly, "Evaluation only, no interactive shell.")
}

// New creates a new shell over a running world.
func New(world *World) *Shell {
	s := &Shell{
		Interactive: !evalOnly,

		Shell: ishell.New(),
		World: world,
	}
	s.Shell.Set(shellKey, s)
	s.Shell.SetPrompt("can > ")
	for _, cmd := range commands {
		s.Shell.AddCmd(cmd)
	}
	return s
}

// ShellFrom gets Shell from ishell context.
func ShellFrom(c *ishell.Context) *Shell {
	return c.Get(shellKey).(*Shell)
}

// Run runs the shell.
func (s *Shell) Run(args ...string) {
	if len(args) > 0 {
		if err := s.Shell.Process(args...); err != nil {
			log.Fatalln(err)
		}
		return
	}
	if s.Interactive {
		s.Shell.Run()
		return
	}
	log.Fatalln("command expected")
}

// request sends one service request to the node and returns the raw
// response payload.
func (s *Shell) request(dataTypeID uint16, signature uint64, payload []byte) ([]byte, error) {
	dest := s.World.NodeID()
	if dest == 0 {
		return nil, fmt.Errorf("node not allocated yet")
	}
	t, err := s.World.Client.Request(dest, dataTypeID, signature, payload, requestTimeout, nil)
	if err != nil {
		return nil, err
	}
	return t.Payload, nil
}

func (s *Shell) paramGetSet(req dronecan.ParamGetSetRequest) (*dronecan.ParamGetSetResponse, error) {
	var buf [dronecan.ParamGetSetRequestMaxSize]byte
	sz, err := req.Marshal(buf[:])
	if err != nil {
		return nil, err
	}
	payload, err := s.request(dronecan.DTIDParamGetSet, dronecan.SigParamGetSet, buf[:sz])
	if err != nil {
		return nil, err
	}
	var rsp dronecan.ParamGetSetResponse
	if err := rsp.Unmarshal(payload); err != nil {
		return nil, err
	}
	return &rsp, nil
}

func (s *Shell) executeOpcode(opcode uint8) error {
	req := dronecan.ParamExecuteOpcodeRequest{Opcode: opcode}
	var buf [dronecan.ParamExecuteOpcodeRequestSize]byte
	sz, err := req.Marshal(buf[:])
	if err != nil {
		return err
	}
	payload, err := s.request(dronecan.DTIDParamExecuteOpcode, dronecan.SigParamExecuteOpcode, buf[:sz])
	if err != nil {
		return err
	}
	var rsp dronecan.ParamExecuteOpcodeResponse
	if err := rsp.Unmarshal(payload); err != nil {
		return err
	}
	if !rsp.OK {
		return fmt.Errorf("node refused the operation")
	}
	return nil
}

func formatValue(v dronecan.ParamValue) string {
	switch v.Tag {
	case dronecan.ValueInteger:
		return strconv.FormatInt(v.Integer, 10)
	case dronecan.ValueReal:
		return strconv.FormatFloat(float64(v.Real), 'g', -1, 32)
	}
	return "(empty)"
}

func parseValue(arg string) (dronecan.ParamValue, error) {
	if i, err := strconv.ParseInt(arg, 10, 64); err == nil {
		return dronecan.ParamValue{Tag: dronecan.ValueInteger, Integer: i}, nil
	}
	if f, err := strconv.ParseFloat(arg, 32); err == nil {
		return dronecan.ParamValue{Tag: dronecan.ValueReal, Real: float32(f)}, nil
	}
	return dronecan.ParamValue{}, fmt.Errorf("not a number: %q", arg)
}

var (
	// ParamsCmd lists all parameters.
	ParamsCmd = ishell.Cmd{
		Name:    "params",
		Aliases: []string{"p"},
		Help:    "",
		Func: func(c *ishell.Context) {
			s := ShellFrom(c)
			for index := 0; index < 256; index++ {
				rsp, err := s.paramGetSet(dronecan.ParamGetSetRequest{Index: uint16(index)})
				if err != nil {
					c.Err(err)
					return
				}
				if rsp.Name == "" {
					return
				}
				c.Printf("%3d  %-16s %s\n", index, rsp.Name, formatValue(rsp.Value))
			}
		},
	}

	// GetCmd reads one parameter by name.
	GetCmd = ishell.Cmd{
		Name: "get",
		Help: "NAME",
		Func: func(c *ishell.Context) {
			if len(c.Args) != 1 {
				c.Err(fmt.Errorf("usage: get NAME"))
				return
			}
			rsp, err := ShellFrom(c).paramGetSet(dronecan.ParamGetSetRequest{Name: c.Args[0]})
			if err != nil {
				c.Err(err)
				return
			}
			if rsp.Name == "" {
				c.Err(fmt.Errorf("no such parameter: %s", c.Args[0]))
				return
			}
			c.Printf("%s = %s\n", rsp.Name, formatValue(rsp.Value))
		},
	}

	// SetCmd writes one parameter by name.
	SetCmd = ishell.Cmd{
		Name: "set",
		Help: "NAME VALUE",
		Func: func(c *ishell.Context) {
			if len(c.Args) != 2 {
				c.Err(fmt.Errorf("usage: set NAME VALUE"))
				return
			}
			value, err := parseValue(c.Args[1])
			if err != nil {
				c.Err(err)
				return
			}
			rsp, err := ShellFrom(c).paramGetSet(dronecan.ParamGetSetRequest{Name: c.Args[0], Value: value})
			if err != nil {
				c.Err(err)
				return
			}
			if rsp.Name == "" {
				c.Err(fmt.Errorf("no such parameter: %s", c.Args[0]))
				return
			}
			c.Printf("%s = %s\n", rsp.Name, formatValue(rsp.Value))
		},
	}

	// SaveCmd persists all parameters.
	SaveCmd = ishell.Cmd{
		Name: "save",
		Help: "",
		Func: func(c *ishell.Context) {
			if err := ShellFrom(c).executeOpcode(dronecan.OpcodeSave); err != nil {
				c.Err(err)
				return
			}
			c.Println("OK")
		},
	}

	// EraseCmd resets all parameters to factory defaults.
	EraseCmd = ishell.Cmd{
		Name: "erase",
		Help: "",
		Func: func(c *ishell.Context) {
			if err := ShellFrom(c).executeOpcode(dronecan.OpcodeErase); err != nil {
				c.Err(err)
				return
			}
			c.Println("OK")
		},
	}

	// InfoCmd queries GetNodeInfo.
	InfoCmd = ishell.Cmd{
		Name:    "info",
		Aliases: []string{"i"},
		Help:    "",
		Func: func(c *ishell.Context) {
			s := ShellFrom(c)
			payload, err := s.request(dronecan.DTIDGetNodeInfo, dronecan.SigGetNodeInfo, nil)
			if err != nil {
				c.Err(err)
				return
			}
			var info dronecan.GetNodeInfoResponse
			if err := info.Unmarshal(payload); err != nil {
				c.Err(err)
				return
			}
			c.Printf("name:     %s\n", info.Name)
			c.Printf("node id:  %d\n", s.World.NodeID())
			c.Printf("software: %d.%d\n", info.SoftwareMajor, info.SoftwareMinor)
			c.Printf("hardware: %d.%d\n", info.HardwareMajor, info.HardwareMinor)
			c.Printf("uid:      %s\n", hex.EncodeToString(info.UniqueID[:]))
			c.Printf("uptime:   %ds\n", info.Status.UptimeSec)
			c.Printf("health:   %s\n", info.Status.Health)
			c.Printf("mode:     %s\n", info.Status.Mode)
		},
	}

	// StatusCmd watches node status broadcasts for a while.
	StatusCmd = ishell.Cmd{
		Name:    "status",
		Aliases: []string{"s"},
		Help:    "[DURATION]",
		Func: func(c *ishell.Context) {
			s := ShellFrom(c)
			watch := 3 * time.Second
			if len(c.Args) == 1 {
				d, err := time.ParseDuration(c.Args[0])
				if err != nil {
					c.Err(err)
					return
				}
				watch = d
			}
			s.World.Client.TakeBroadcasts(dronecan.DTIDNodeStatus)
			deadline := time.Now().Add(watch)
			for time.Now().Before(deadline) {
				s.World.Client.Tick()
				time.Sleep(50 * time.Millisecond)
			}
			transfers := s.World.Client.TakeBroadcasts(dronecan.DTIDNodeStatus)
			if len(transfers) == 0 {
				c.Println("no status received")
				return
			}
			for _, t := range transfers {
				var st dronecan.NodeStatus
				if err := st.Unmarshal(t.Payload); err != nil {
					continue
				}
				c.Printf("node %d: uptime=%ds health=%s mode=%s vssc=%d\n",
					t.SourceNodeID, st.UptimeSec, st.Health, st.Mode, st.VendorStatusCode)
			}
		},
	}

	// UpdateCmd starts a firmware pull from the demo file server and waits
	// for it to finish.
	UpdateCmd = ishell.Cmd{
		Name: "update",
		Help: "",
		Func: func(c *ishell.Context) {
			s := ShellFrom(c)
			req := dronecan.BeginFirmwareUpdateRequest{
				SourceNodeID: fileServerNodeID,
				Path:         FirmwarePath,
			}
			var buf [dronecan.BeginFirmwareUpdateReqMaxSize]byte
			sz, err := req.Marshal(buf[:])
			if err != nil {
				c.Err(err)
				return
			}
			payload, err := s.request(dronecan.DTIDBeginFirmwareUpdate, dronecan.SigBeginFirmwareUpdate, buf[:sz])
			if err != nil {
				c.Err(err)
				return
			}
			var rsp dronecan.BeginFirmwareUpdateResponse
			if err := rsp.Unmarshal(payload); err != nil {
				c.Err(err)
				return
			}
			if rsp.Error != dronecan.FirmwareUpdateErrorOK {
				c.Err(fmt.Errorf("update refused: error %d", rsp.Error))
				return
			}

			// One chunk per read period plus slack.
			chunks := (s.World.ImageLen() + dronecan.FileReadChunkSize - 1) / dronecan.FileReadChunkSize
			deadline := time.Now().Add(time.Duration(chunks+4) * time.Second)
			for time.Now().Before(deadline) {
				if s.World.Received() >= s.World.ImageLen() {
					c.Printf("firmware pull complete: %d bytes\n", s.World.Received())
					return
				}
				time.Sleep(100 * time.Millisecond)
			}
			c.Err(fmt.Errorf("firmware pull stalled at %d/%d bytes", s.World.Received(), s.World.ImageLen()))
		},
	}

	// RestartCmd sends RestartNode with the required magic.
	RestartCmd = ishell.Cmd{
		Name: "restart",
		Help: "",
		Func: func(c *ishell.Context) {
			s := ShellFrom(c)
			req := dronecan.RestartNodeRequest{Magic: dronecan.RestartNodeMagic}
			var buf [dronecan.RestartNodeRequestSize]byte
			sz, err := req.Marshal(buf[:])
			if err != nil {
				c.Err(err)
				return
			}
			payload, err := s.request(dronecan.DTIDRestartNode, dronecan.SigRestartNode, buf[:sz])
			if err != nil {
				c.Err(err)
				return
			}
			var rsp dronecan.RestartNodeResponse
			if err := rsp.Unmarshal(payload); err != nil {
				c.Err(err)
				return
			}
			if !rsp.OK {
				c.Err(fmt.Errorf("restart refused"))
				return
			}
			c.Println("OK")
		},
	}
)

// Main is a helper to provide a single call in main.
func Main() {
	flag.Parse()
	world := NewWorld()
	world.Start()
	defer world.Stop()
	if id, err := world.WaitAllocated(5 * time.Second); err != nil {
		log.Fatalln(err)
	} else if !evalOnly {
		fmt.Printf("node allocated id %d\n", id)
	}
	New(world).Run(flag.Args()...)
}
