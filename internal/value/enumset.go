package value

// This file stands in for derive-style code generation: each enum's
// name/value table is a plain Go map literal, hand-written in the shape
// gen/enumgen prints. The go:generate directive runs enumgen, which writes
// the tables to standard output; it does not rewrite this file.

//go:generate go run github.com/traintastic/traintastic-go/internal/value/gen/enumgen

// WorldState mirrors the World's {EditEnabled/EditDisabled, PowerOff/PowerOn,
// Stop/Run} state bits.
type WorldState int64

const (
	WorldStateEdit WorldState = 1 << iota
	WorldStatePower
	WorldStateRun
)

var WorldStateValues = SetValues{
	"edit":  int64(WorldStateEdit),
	"power": int64(WorldStatePower),
	"run":   int64(WorldStateRun),
}

// WorldEvent is the event broadcast to every SubObject via worldEvent().
type WorldEvent string

const (
	WorldEventEditEnabled  WorldEvent = "edit_enabled"
	WorldEventEditDisabled WorldEvent = "edit_disabled"
	WorldEventPowerOff     WorldEvent = "power_off"
	WorldEventPowerOn      WorldEvent = "power_on"
	WorldEventStop         WorldEvent = "stop"
	WorldEventRun          WorldEvent = "run"
)

// Direction is a common DCC decoder direction enum, used by most protocol
// kernels.
type Direction int64

const (
	DirectionForward Direction = 0
	DirectionReverse Direction = 1
)

var DirectionValues = EnumValues{
	"forward": int64(DirectionForward),
	"reverse": int64(DirectionReverse),
}

// TriState is the three-valued input/sensor reading every protocol
// kernel tracks per (channel, address): {Undefined, False, True}.
type TriState int64

const (
	TriStateUndefined TriState = 0
	TriStateFalse     TriState = 1
	TriStateTrue      TriState = 2
)

var TriStateValues = EnumValues{
	"undefined": int64(TriStateUndefined),
	"false":     int64(TriStateFalse),
	"true":      int64(TriStateTrue),
}

// SimulateInputAction is the kernel's simulateInputChange action enum:
// {SetFalse, SetTrue, Toggle}.
type SimulateInputAction int64

const (
	SimulateInputSetFalse SimulateInputAction = 0
	SimulateInputSetTrue  SimulateInputAction = 1
	SimulateInputToggle   SimulateInputAction = 2
)

var SimulateInputActionValues = EnumValues{
	"set_false": int64(SimulateInputSetFalse),
	"set_true":  int64(SimulateInputSetTrue),
	"toggle":    int64(SimulateInputToggle),
}

// OutputType distinguishes how setOutput interprets its address.
type OutputType int64

const (
	OutputTypeAccessory        OutputType = 0
	OutputTypeDCCExtAccessory  OutputType = 1
	OutputTypeTurnout          OutputType = 2
)

var OutputTypeValues = EnumValues{
	"accessory":         int64(OutputTypeAccessory),
	"dccext_accessory":  int64(OutputTypeDCCExtAccessory),
	"turnout":           int64(OutputTypeTurnout),
}

// SendPriority is the protocol kernel's send-queue priority: at least {Normal, High}.
type SendPriority int

const (
	SendPriorityNormal SendPriority = 0
	SendPriorityHigh   SendPriority = 1
)
