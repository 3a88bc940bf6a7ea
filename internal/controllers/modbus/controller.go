package modbusctrl

import (
	"context"
	"encoding/binary"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"time"

	mbserver "github.com/tbrandon/mbserver"

	"github.com/Agrid-Dev/thermocarlo/internal/ports"
	"github.com/Agrid-Dev/thermocarlo/internal/simulation"
)

// Input registers (read only, last report). 32-bit values span two
// registers, high word first; floats are IEEE-754 float32.
const (
	IRRuns        = 0  // uint32
	IRChecksum    = 2  // float32
	IRMean        = 4  // float32
	IRMin         = 6  // float32
	IRMax         = 8  // float32
	IRPerRunMicro = 10 // uint32, saturating
	IRCapacitance = 12 // float32
	IRPower       = 14 // float32
	inputCount    = 16
)

// Holding registers (defaults for the next run).
const (
	HRRuns       = 0 // uint32
	HRSeed       = 2 // int64, four registers
	holdingCount = 6
)

// Config for the Modbus controller.
type Config struct {
	InstanceID string
	Addr       string
	UnitID     byte // Modbus slave/unit ID, 1..247.
	Logger     *slog.Logger
}

type Controller struct {
	svc ports.SimulationService
	cfg Config
	log *slog.Logger

	serv *mbserver.Server
}

func New(svc ports.SimulationService, cfg Config) (*Controller, error) {
	if cfg.UnitID == 0 {
		return nil, errors.New("modbus: UnitID is required (non-zero)")
	}
	if cfg.Addr == "" {
		cfg.Addr = "127.0.0.1:1502"
	}
	log := cfg.Logger
	if log == nil {
		log = slog.Default()
	}
	return &Controller{svc: svc, cfg: cfg, log: log.With("controller", "modbus")}, nil
}

// Run starts the Modbus server and blocks until ctx is canceled. Reads are
// served straight from the simulation service; writes apply immediately.
func (c *Controller) Run(ctx context.Context) error {
	serv := mbserver.NewServer()
	c.serv = serv

	// Handlers are registered before ListenTCP; mbserver reads its handler
	// table from the connection goroutines.

	// Read Coils (function 1): coil 0 is the running flag.
	serv.RegisterFunctionHandler(1, func(_ *mbserver.Server, frame mbserver.Framer) ([]byte, *mbserver.Exception) {
		start, qty, exc := readRange(frame.GetData(), 2000)
		if exc != nil {
			return []byte{}, exc
		}
		if start != 0 || qty != 1 {
			return []byte{}, &mbserver.IllegalDataAddress
		}
		coil := byte(0)
		if c.svc.Running() {
			coil = 0x01
		}
		return []byte{1, coil}, &mbserver.Success
	})

	// Read Holding Registers (function 3).
	serv.RegisterFunctionHandler(3, func(_ *mbserver.Server, frame mbserver.Framer) ([]byte, *mbserver.Exception) {
		start, qty, exc := readRange(frame.GetData(), 125)
		if exc != nil {
			return []byte{}, exc
		}
		if start+qty > holdingCount {
			return []byte{}, &mbserver.IllegalDataAddress
		}
		regs := c.holdingImage()
		return registerResponse(regs[start : start+qty]), &mbserver.Success
	})

	// Read Input Registers (function 4).
	serv.RegisterFunctionHandler(4, func(_ *mbserver.Server, frame mbserver.Framer) ([]byte, *mbserver.Exception) {
		start, qty, exc := readRange(frame.GetData(), 125)
		if exc != nil {
			return []byte{}, exc
		}
		if start+qty > inputCount {
			return []byte{}, &mbserver.IllegalDataAddress
		}
		regs := c.inputImage()
		return registerResponse(regs[start : start+qty]), &mbserver.Success
	})

	// Write Single Coil (function 5): ON on coil 0 starts a default run.
	serv.RegisterFunctionHandler(5, func(_ *mbserver.Server, frame mbserver.Framer) ([]byte, *mbserver.Exception) {
		data := frame.GetData()
		if len(data) < 4 {
			return []byte{}, &mbserver.IllegalDataValue
		}
		addr := binary.BigEndian.Uint16(data[0:2])
		value := binary.BigEndian.Uint16(data[2:4])

		if addr != 0 {
			return []byte{}, &mbserver.IllegalDataAddress
		}

		switch value {
		case 0x0000:
			// A run cannot be interrupted from the bus.
		case 0xFF00:
			if c.svc.Running() {
				return []byte{}, &mbserver.SlaveDeviceBusy
			}
			go c.runDefault(ctx)
		default:
			return []byte{}, &mbserver.IllegalDataValue
		}

		// echo request (address + value)
		resp := make([]byte, 4)
		copy(resp, data[0:4])
		return resp, &mbserver.Success
	})

	// Write Single Register (function 6)
	serv.RegisterFunctionHandler(6, func(_ *mbserver.Server, frame mbserver.Framer) ([]byte, *mbserver.Exception) {
		data := frame.GetData()
		if len(data) < 4 {
			return []byte{}, &mbserver.IllegalDataValue
		}
		addr := int(binary.BigEndian.Uint16(data[0:2]))
		value := binary.BigEndian.Uint16(data[2:4])

		if exc := c.writeHolding(addr, []uint16{value}); exc != nil {
			return []byte{}, exc
		}

		resp := make([]byte, 4)
		copy(resp, data[0:4])
		return resp, &mbserver.Success
	})

	// Write Multiple Registers (function 16)
	serv.RegisterFunctionHandler(16, func(_ *mbserver.Server, frame mbserver.Framer) ([]byte, *mbserver.Exception) {
		d := frame.GetData()
		if len(d) < 5 {
			return []byte{}, &mbserver.IllegalDataValue
		}
		start := binary.BigEndian.Uint16(d[0:2])
		quantity := binary.BigEndian.Uint16(d[2:4])
		byteCount := int(d[4])
		if byteCount != int(quantity)*2 || len(d) < 5+byteCount {
			return []byte{}, &mbserver.IllegalDataValue
		}
		vals := make([]uint16, quantity)
		for i := range vals {
			vals[i] = binary.BigEndian.Uint16(d[5+i*2 : 5+i*2+2])
		}
		if exc := c.writeHolding(int(start), vals); exc != nil {
			return []byte{}, exc
		}

		resp := make([]byte, 4)
		binary.BigEndian.PutUint16(resp[0:2], start)
		binary.BigEndian.PutUint16(resp[2:4], quantity)
		return resp, &mbserver.Success
	})

	if err := serv.ListenTCP(c.cfg.Addr); err != nil {
		return fmt.Errorf("mbserver listen tcp %s: %w", c.cfg.Addr, err)
	}

	<-ctx.Done()
	serv.Close()
	return ctx.Err()
}

func (c *Controller) runDefault(ctx context.Context) {
	rep, err := c.svc.RunDefault(ctx)
	if err != nil {
		c.log.Warn("run failed", "err", err)
		return
	}
	c.log.Info("run finished", "id", rep.ID, "checksum", rep.Checksum)
}

// holdingImage encodes the current defaults.
func (c *Controller) holdingImage() [holdingCount]uint16 {
	var regs [holdingCount]uint16
	d := c.svc.Defaults()
	putUint32(regs[HRRuns:], clampUint32(d.Runs))
	putUint64(regs[HRSeed:], uint64(d.Seed))
	return regs
}

// writeHolding overlays vals at start onto the current defaults and applies
// every value the write touched.
func (c *Controller) writeHolding(start int, vals []uint16) *mbserver.Exception {
	if len(vals) == 0 || start < 0 || start+len(vals) > holdingCount {
		return &mbserver.IllegalDataAddress
	}
	regs := c.holdingImage()
	copy(regs[start:], vals)
	end := start + len(vals)

	if start < HRRuns+2 && end > HRRuns {
		runs := getUint32(regs[HRRuns:])
		if runs > math.MaxInt32 {
			return &mbserver.IllegalDataValue
		}
		if err := c.svc.SetRuns(int(runs)); err != nil {
			return &mbserver.IllegalDataValue
		}
	}
	if start < HRSeed+4 && end > HRSeed {
		c.svc.SetSeed(int64(getUint64(regs[HRSeed:])))
	}
	return nil
}

// inputImage encodes the latest report; all zero before the first run.
func (c *Controller) inputImage() [inputCount]uint16 {
	var regs [inputCount]uint16
	rep, ok := c.svc.Latest()
	if !ok {
		return regs
	}
	putUint32(regs[IRRuns:], clampUint32(rep.Runs))
	putFloat32(regs[IRChecksum:], rep.Checksum)
	putFloat32(regs[IRMean:], rep.Mean)
	putFloat32(regs[IRMin:], rep.Min)
	putFloat32(regs[IRMax:], rep.Max)
	putUint32(regs[IRPerRunMicro:], perRunMicros(rep))
	putFloat32(regs[IRCapacitance:], rep.Model.Capacitance)
	putFloat32(regs[IRPower:], rep.Model.Power)
	return regs
}

func perRunMicros(rep simulation.Report) uint32 {
	us := rep.PerRun() / time.Microsecond
	if us > math.MaxUint32 {
		return math.MaxUint32
	}
	return uint32(us)
}

func clampUint32(n int) uint32 {
	if n < 0 {
		return 0
	}
	if uint64(n) > math.MaxUint32 {
		return math.MaxUint32
	}
	return uint32(n)
}

func readRange(data []byte, maxQty int) (start, qty int, exc *mbserver.Exception) {
	if len(data) < 4 {
		return 0, 0, &mbserver.IllegalDataValue
	}
	start = int(binary.BigEndian.Uint16(data[0:2]))
	qty = int(binary.BigEndian.Uint16(data[2:4]))
	if qty == 0 || qty > maxQty {
		return 0, 0, &mbserver.IllegalDataValue
	}
	return start, qty, nil
}

func registerResponse(regs []uint16) []byte {
	byteCount := len(regs) * 2
	resp := make([]byte, 1+byteCount)
	resp[0] = byte(byteCount)
	for i, r := range regs {
		binary.BigEndian.PutUint16(resp[1+i*2:1+i*2+2], r)
	}
	return resp
}

func putUint32(dst []uint16, v uint32) {
	dst[0] = uint16(v >> 16)
	dst[1] = uint16(v)
}

func getUint32(src []uint16) uint32 {
	return uint32(src[0])<<16 | uint32(src[1])
}

func putUint64(dst []uint16, v uint64) {
	putUint32(dst[0:], uint32(v>>32))
	putUint32(dst[2:], uint32(v))
}

func getUint64(src []uint16) uint64 {
	return uint64(getUint32(src[0:]))<<32 | uint64(getUint32(src[2:]))
}

func putFloat32(dst []uint16, v float64) {
	putUint32(dst, math.Float32bits(float32(v)))
}
