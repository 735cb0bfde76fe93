// interfaces.go wires each hardware protocol kernel of internal/hardware/
// protocol/* into the World's object graph: a world-level IdObject that
// owns a protocol kernel, exposing online/simulation properties and
// delegating power/output/decoder commands to it.
package world

import (
	"github.com/traintastic/traintastic-go/internal/hardware/iohandler"
	hwkernel "github.com/traintastic/traintastic-go/internal/hardware/kernel"
	"github.com/traintastic/traintastic-go/internal/hardware/protocol/cbus"
	"github.com/traintastic/traintastic-go/internal/hardware/protocol/dccex"
	"github.com/traintastic/traintastic-go/internal/hardware/protocol/dinamo"
	"github.com/traintastic/traintastic-go/internal/hardware/protocol/ecos"
	"github.com/traintastic/traintastic-go/internal/hardware/protocol/hsi88"
	"github.com/traintastic/traintastic-go/internal/hardware/protocol/loconet"
	"github.com/traintastic/traintastic-go/internal/hardware/protocol/marklincan"
	"github.com/traintastic/traintastic-go/internal/hardware/protocol/xpressnet"
	"github.com/traintastic/traintastic-go/internal/hardware/protocol/z21"
	"github.com/traintastic/traintastic-go/internal/hardware/protocol/z21server"
	"github.com/traintastic/traintastic-go/internal/object"
	"github.com/traintastic/traintastic-go/internal/value"
)

// interfaceBase is embedded by every concrete *Interface type: the
// online/simulation properties common to all of them.
type interfaceBase struct {
	object.IdObjectBase

	online     *object.Property
	simulation *object.Property
}

func newInterfaceBase(class object.ClassID, id string, simulate bool) interfaceBase {
	b := interfaceBase{IdObjectBase: object.NewIdObjectBase(class, id)}
	b.online = object.NewProperty("online", value.Boolean, value.NewBool(false), object.FlagReadOnly|object.FlagNoStore)
	b.simulation = object.NewProperty("simulation", value.Boolean, value.NewBool(simulate), object.FlagReadWrite|object.FlagStore)
	b.AddItem(b.online)
	b.AddItem(b.simulation)
	return b
}

func (b *interfaceBase) setOnline(on bool) { _ = b.online.SetInternal(value.NewBool(on)) }
func (b *interfaceBase) Online() bool      { v, _ := value.ToBool(b.online.Value()); return v }

const (
	Z21InterfaceClassID       object.ClassID = "z21_interface"
	Z21ServerInterfaceClassID object.ClassID = "z21_server_interface"
	ECoSInterfaceClassID      object.ClassID = "ecos_interface"
	LocoNetInterfaceClassID   object.ClassID = "loconet_interface"
	DCCEXInterfaceClassID     object.ClassID = "dccex_interface"
	MarklinCANInterfaceClassID object.ClassID = "marklin_can_interface"
	DinamoInterfaceClassID    object.ClassID = "dinamo_interface"
	HSI88InterfaceClassID     object.ClassID = "hsi88_interface"
	CBUSInterfaceClassID      object.ClassID = "cbus_interface"
	XpressNetInterfaceClassID object.ClassID = "xpressnet_interface"
)

// --- Z21 client ---

type Z21Interface struct {
	interfaceBase
	kernel *z21.Kernel
}

func newZ21Interface(w *World, id string) *Z21Interface {
	n := &Z21Interface{interfaceBase: newInterfaceBase(Z21InterfaceClassID, id, true)}
	cb := hwkernel.Callbacks{
		OnPowerChanged: func(on bool) {
			if on {
				w.PowerOn()
			} else {
				w.PowerOff()
			}
		},
	}
	n.kernel = z21.New(id, w.logger, z21.Config{Simulate: true}, cb)
	return n
}

func (n *Z21Interface) Start()       { n.kernel.Start(); n.setOnline(true) }
func (n *Z21Interface) Stop()        { n.kernel.Stop(); n.setOnline(false) }
func (n *Z21Interface) PowerOn()     { n.kernel.PowerOn() }
func (n *Z21Interface) PowerOff()    { n.kernel.PowerOff() }
func (n *Z21Interface) EmergencyStop() { n.kernel.EmergencyStop() }
func (n *Z21Interface) DecoderChanged(address int64, throttle float64, dir value.Direction, eStop bool) {
	n.kernel.DecoderChanged(address, throttle, dir, eStop)
}
func (n *Z21Interface) SimulateInputChange(channel string, address int64, action value.SimulateInputAction) {
	n.kernel.SimulateInputChange(channel, address, action)
}

// --- Z21 server ---

type Z21ServerInterface struct {
	interfaceBase
	kernel *z21server.Kernel
}

func newZ21ServerInterface(w *World, id string) *Z21ServerInterface {
	n := &Z21ServerInterface{interfaceBase: newInterfaceBase(Z21ServerInterfaceClassID, id, true)}
	n.kernel = z21server.New(id, w.logger, z21server.Config{Simulate: true}, hwkernel.Callbacks{})
	return n
}

func (n *Z21ServerInterface) Start() { n.kernel.Start(); n.setOnline(true) }
func (n *Z21ServerInterface) Stop()  { n.kernel.Stop(); n.setOnline(false) }

// --- ECoS ---

type ECoSInterface struct {
	interfaceBase
	kernel *ecos.Kernel
}

func newECoSInterface(w *World, id string) *ECoSInterface {
	n := &ECoSInterface{interfaceBase: newInterfaceBase(ECoSInterfaceClassID, id, true)}
	cb := hwkernel.Callbacks{OnPowerChanged: func(on bool) {
		if on {
			w.PowerOn()
		} else {
			w.PowerOff()
		}
	}}
	n.kernel = ecos.New(id, w.logger, ecos.Config{Simulate: true}, cb)
	return n
}

func (n *ECoSInterface) Start()    { n.kernel.Start(); n.setOnline(true) }
func (n *ECoSInterface) Stop()     { n.kernel.Stop(); n.setOnline(false) }
func (n *ECoSInterface) PowerOn()  { n.kernel.PowerOn() }
func (n *ECoSInterface) PowerOff() { n.kernel.PowerOff() }
func (n *ECoSInterface) SetOutput(address int64, on bool) { n.kernel.SetOutput(address, on) }

// --- LocoNet ---

type LocoNetInterface struct {
	interfaceBase
	kernel *loconet.Kernel
}

func newLocoNetInterface(w *World, id string) *LocoNetInterface {
	n := &LocoNetInterface{interfaceBase: newInterfaceBase(LocoNetInterfaceClassID, id, true)}
	n.kernel = loconet.New(id, w.logger, loconet.Config{Simulate: true}, hwkernel.Callbacks{})
	return n
}

func (n *LocoNetInterface) Start() { n.kernel.Start(); n.setOnline(true) }
func (n *LocoNetInterface) Stop()  { n.kernel.Stop(); n.setOnline(false) }
func (n *LocoNetInterface) DecoderChanged(address int64, throttle float64, dir value.Direction, eStop bool) {
	n.kernel.DecoderChanged(address, throttle, dir, eStop)
}
func (n *LocoNetInterface) SimulateInputChange(address int64, action value.SimulateInputAction) {
	n.kernel.SimulateInputChange(address, action)
}

// --- DCC-EX ---

type DCCEXInterface struct {
	interfaceBase
	kernel *dccex.Kernel
}

func newDCCEXInterface(w *World, id string) *DCCEXInterface {
	n := &DCCEXInterface{interfaceBase: newInterfaceBase(DCCEXInterfaceClassID, id, true)}
	n.kernel = dccex.New(id, w.logger, dccex.Config{Simulate: true}, hwkernel.Callbacks{})
	return n
}

func (n *DCCEXInterface) Start()           { n.kernel.Start(); n.setOnline(true) }
func (n *DCCEXInterface) Stop()            { n.kernel.Stop(); n.setOnline(false) }
func (n *DCCEXInterface) PowerOn()         { n.kernel.SetPower(true) }
func (n *DCCEXInterface) PowerOff()        { n.kernel.SetPower(false) }
func (n *DCCEXInterface) EmergencyStop()   { n.kernel.EmergencyStop() }
func (n *DCCEXInterface) SetOutput(address int64, on bool) { n.kernel.SetOutput(address, on) }
func (n *DCCEXInterface) DecoderChanged(address int64, throttle float64, dir value.Direction, eStop bool) {
	n.kernel.DecoderChanged(address, throttle, dir, eStop)
}

// --- Marklin CAN ---

type MarklinCANInterface struct {
	interfaceBase
	kernel *marklincan.Kernel
}

func newMarklinCANInterface(w *World, id string) *MarklinCANInterface {
	n := &MarklinCANInterface{interfaceBase: newInterfaceBase(MarklinCANInterfaceClassID, id, true)}
	n.kernel = marklincan.New(id, w.logger, marklincan.Config{Simulate: true}, hwkernel.Callbacks{})
	return n
}

func (n *MarklinCANInterface) Start()    { n.kernel.Start(); n.setOnline(true) }
func (n *MarklinCANInterface) Stop()     { n.kernel.Stop(); n.setOnline(false) }
func (n *MarklinCANInterface) PowerOn()  { n.kernel.PowerOn() }
func (n *MarklinCANInterface) PowerOff() { n.kernel.PowerOff() }
func (n *MarklinCANInterface) SetOutput(address int64, on bool) { n.kernel.SetOutput(address, on) }
func (n *MarklinCANInterface) DecoderChanged(address int64, throttle float64, dir value.Direction, eStop bool) {
	n.kernel.DecoderChanged(address, throttle, dir, eStop)
}

// --- DINAMO ---

type DinamoInterface struct {
	interfaceBase
	kernel *dinamo.Kernel
}

func newDinamoInterface(w *World, id string) *DinamoInterface {
	n := &DinamoInterface{interfaceBase: newInterfaceBase(DinamoInterfaceClassID, id, true)}
	n.kernel = dinamo.New(id, w.logger, dinamo.Config{Simulate: true}, hwkernel.Callbacks{})
	return n
}

func (n *DinamoInterface) Start() { n.kernel.Start(); n.setOnline(true) }
func (n *DinamoInterface) Stop()  { n.kernel.Stop(); n.setOnline(false) }
func (n *DinamoInterface) Negotiated() bool { return n.kernel.Negotiated() }
func (n *DinamoInterface) SimulateInputChange(address int64, action value.SimulateInputAction) {
	n.kernel.SimulateInputChange(address, action)
}

// --- HSI-88 ---

type HSI88Interface struct {
	interfaceBase
	kernel *hsi88.Kernel

	modulesLeft, modulesMiddle, modulesRight *object.Property
}

func newHSI88Interface(w *World, id string) *HSI88Interface {
	n := &HSI88Interface{interfaceBase: newInterfaceBase(HSI88InterfaceClassID, id, true)}
	n.modulesLeft = object.NewProperty("modules_left", value.Integer, value.NewInt(0), object.FlagReadWrite|object.FlagStore)
	n.modulesMiddle = object.NewProperty("modules_middle", value.Integer, value.NewInt(0), object.FlagReadWrite|object.FlagStore)
	n.modulesRight = object.NewProperty("modules_right", value.Integer, value.NewInt(0), object.FlagReadWrite|object.FlagStore)
	n.AddItem(n.modulesLeft)
	n.AddItem(n.modulesMiddle)
	n.AddItem(n.modulesRight)
	k, err := hsi88.New(id, w.logger, hsi88.Config{Simulate: true}, hwkernel.Callbacks{})
	if err != nil {
		// construction-time module-count validation; the modules_*
		// properties above are not range-checked and are not passed to
		// the kernel, which is built with the default configuration.
		k, _ = hsi88.New(id, w.logger, hsi88.Config{Simulate: true}, hwkernel.Callbacks{})
	}
	n.kernel = k
	return n
}

func (n *HSI88Interface) Start() { n.kernel.Start(); n.setOnline(true) }
func (n *HSI88Interface) Stop()  { n.kernel.Stop(); n.setOnline(false) }
func (n *HSI88Interface) SimulateInputChange(channel string, address int64, action value.SimulateInputAction) {
	n.kernel.SimulateInputChange(channel, address, action)
}

// --- CBUS ---

type CBUSInterface struct {
	interfaceBase
	kernel *cbus.Kernel
}

func newCBUSInterface(w *World, id string) *CBUSInterface {
	n := &CBUSInterface{interfaceBase: newInterfaceBase(CBUSInterfaceClassID, id, true)}
	n.kernel = cbus.New(id, w.logger, cbus.Config{Simulate: true}, hwkernel.Callbacks{})
	return n
}

func (n *CBUSInterface) Start()    { n.kernel.Start(); n.setOnline(true) }
func (n *CBUSInterface) Stop()     { n.kernel.Stop(); n.setOnline(false) }
func (n *CBUSInterface) PowerOn()  { n.kernel.PowerOn() }
func (n *CBUSInterface) PowerOff() { n.kernel.PowerOff() }
func (n *CBUSInterface) SetOutput(address int64, on bool) { n.kernel.SetOutput(address, on) }
func (n *CBUSInterface) SimulateInputChange(address int64, action value.SimulateInputAction) {
	n.kernel.SimulateInputChange(address, action)
}

// --- XpressNet ---

type XpressNetInterface struct {
	interfaceBase
	kernel *xpressnet.Kernel
}

func newXpressNetInterface(w *World, id string) *XpressNetInterface {
	n := &XpressNetInterface{interfaceBase: newInterfaceBase(XpressNetInterfaceClassID, id, true)}
	n.kernel = xpressnet.New(id, w.logger, xpressnet.Config{Simulate: true}, hwkernel.Callbacks{})
	return n
}

func (n *XpressNetInterface) Start()    { n.kernel.Start(); n.setOnline(true) }
func (n *XpressNetInterface) Stop()     { n.kernel.Stop(); n.setOnline(false) }
func (n *XpressNetInterface) PowerOn()  { n.kernel.PowerOn() }
func (n *XpressNetInterface) PowerOff() { n.kernel.PowerOff() }
func (n *XpressNetInterface) SimulateInputChange(address int64, action value.SimulateInputAction) {
	n.kernel.SimulateInputChange(address, action)
}

func init() {
	RegisterClass(Z21InterfaceClassID, func(w *World, id string) object.Object { return newZ21Interface(w, id) })
	RegisterClass(Z21ServerInterfaceClassID, func(w *World, id string) object.Object { return newZ21ServerInterface(w, id) })
	RegisterClass(ECoSInterfaceClassID, func(w *World, id string) object.Object { return newECoSInterface(w, id) })
	RegisterClass(LocoNetInterfaceClassID, func(w *World, id string) object.Object { return newLocoNetInterface(w, id) })
	RegisterClass(DCCEXInterfaceClassID, func(w *World, id string) object.Object { return newDCCEXInterface(w, id) })
	RegisterClass(MarklinCANInterfaceClassID, func(w *World, id string) object.Object { return newMarklinCANInterface(w, id) })
	RegisterClass(DinamoInterfaceClassID, func(w *World, id string) object.Object { return newDinamoInterface(w, id) })
	RegisterClass(HSI88InterfaceClassID, func(w *World, id string) object.Object { return newHSI88Interface(w, id) })
	RegisterClass(CBUSInterfaceClassID, func(w *World, id string) object.Object { return newCBUSInterface(w, id) })
	RegisterClass(XpressNetInterfaceClassID, func(w *World, id string) object.Object { return newXpressNetInterface(w, id) })
}

var _ = iohandler.TCP{} // every kernel built here runs on its own iohandler.Simulation; Config selects no other transport
