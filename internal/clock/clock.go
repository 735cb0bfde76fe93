// Package clock implements the simulated world clock SubObject:
// hour/minute/multiplier driven by a drift-absorbing ticking
// scheduler, running only while the world is in WorldState.Run and not
// frozen.
package clock

import (
	"sync"
	"time"

	"github.com/traintastic/traintastic-go/internal/errs"
	"github.com/traintastic/traintastic-go/internal/log"
	"github.com/traintastic/traintastic-go/internal/object"
	"github.com/traintastic/traintastic-go/internal/value"
)

const (
	HourMin       = 0
	HourMax       = 23
	MinuteMin     = 0
	MinuteMax     = 59
	MultiplierMin = 1
	MultiplierMax = 3600
	minutesPerDay = 24 * 60
)

var (
	msgResume = log.Register(log.Message{Code: "D1001", Severity: log.Debug, Format: "resume %02d:%02d multiplier %d"})
	msgTick   = log.Register(log.Message{Code: "D1002", Severity: log.Debug, Format: "tick %02d:%02d error %d us"})
	msgFreeze = log.Register(log.Message{Code: "D1003", Severity: log.Debug, Format: "freeze %02d:%02d"})
)

// WorldStateFunc reports the parent world's current state so isEditable/
// isRunning can be recomputed on every update(), without clock importing
// the world package and creating an import cycle.
type WorldStateFunc func() value.Value

// Clock is a SubObject; callers construct it via New, wiring parent,
// propName and a WorldStateFunc, then call AddSubObject/assign the owning
// ObjectProperty themselves exactly as any other SubObject.
type Clock struct {
	object.SubObjectBase

	worldState WorldStateFunc
	logger     *log.Registry

	ticksProp      *object.Property
	hourProp       *object.Property
	minuteProp     *object.Property
	multiplierProp *object.Property
	freezeProp     *object.Property
	runningProp    *object.Property
	debugLogProp   *object.Property

	onResume *object.Event
	onTick   *object.Event
	onFreeze *object.Event

	mu        sync.Mutex
	ticks     int // minutes since midnight, 0..1439
	running   bool
	timer     *time.Timer
	nextTick  time.Time
	interval  time.Duration
	stopTimer chan struct{}
}

// New constructs a Clock. hour/minute/multiplier/freeze are the loader's
// last-persisted values;
// the caller must still call Loaded() once the World's id graph is fully
// resolved.
func New(parent object.Object, propName string, worldState WorldStateFunc, logger *log.Registry, hour, minute, multiplier int, freeze bool) *Clock {
	c := &Clock{
		SubObjectBase: object.NewSubObjectBase("clock", parent, propName),
		worldState:    worldState,
		logger:        logger,
	}

	c.ticksProp = object.NewProperty("time", value.Integer, value.NewInt(int64(hour*60+minute)), object.FlagReadOnly|object.FlagNoStore|object.FlagScriptReadOnly)
	c.hourProp = object.NewProperty("hour", value.Integer, value.NewInt(int64(hour)), object.FlagReadWrite|object.FlagStoreState|object.FlagScriptReadOnly)
	c.minuteProp = object.NewProperty("minute", value.Integer, value.NewInt(int64(minute)), object.FlagReadWrite|object.FlagStoreState|object.FlagScriptReadOnly)
	c.multiplierProp = object.NewProperty("multiplier", value.Integer, value.NewInt(int64(multiplier)), object.FlagReadWrite|object.FlagStore|object.FlagScriptReadOnly)
	c.freezeProp = object.NewProperty("freeze", value.Boolean, value.NewBool(freeze), object.FlagReadWrite|object.FlagStoreState|object.FlagScriptReadOnly)
	c.freezeProp.SetOnChanged(func(*object.Property) { c.update() })
	c.runningProp = object.NewProperty("running", value.Boolean, value.NewBool(false), object.FlagReadOnly|object.FlagNoStore|object.FlagScriptReadOnly)
	c.debugLogProp = object.NewProperty("debug_log", value.Boolean, value.NewBool(false), object.FlagReadWrite|object.FlagStore|object.FlagNoScript)

	c.onResume = object.NewEvent("on_resume", []object.ArgType{object.ArgInteger, object.ArgInteger}, object.FlagReadOnly|object.FlagNoStore)
	c.onTick = object.NewEvent("on_tick", []object.ArgType{object.ArgInteger}, object.FlagReadOnly|object.FlagNoStore)
	c.onFreeze = object.NewEvent("on_freeze", []object.ArgType{object.ArgInteger}, object.FlagReadOnly|object.FlagNoStore)

	for _, item := range []object.InterfaceItem{
		c.ticksProp, c.hourProp, c.minuteProp, c.multiplierProp,
		c.freezeProp, c.runningProp, c.debugLogProp,
		c.onResume, c.onTick, c.onFreeze,
	} {
		c.AddItem(item)
	}

	c.hourProp.Attributes().Add(object.AttrEnabled, value.NewBool(true))
	c.hourProp.Attributes().Add(object.AttrMin, value.NewInt(HourMin))
	c.hourProp.Attributes().Add(object.AttrMax, value.NewInt(HourMax))
	c.minuteProp.Attributes().Add(object.AttrEnabled, value.NewBool(true))
	c.minuteProp.Attributes().Add(object.AttrMin, value.NewInt(MinuteMin))
	c.minuteProp.Attributes().Add(object.AttrMax, value.NewInt(MinuteMax))
	c.multiplierProp.Attributes().Add(object.AttrEnabled, value.NewBool(true))
	c.multiplierProp.Attributes().Add(object.AttrMin, value.NewInt(MultiplierMin))
	c.multiplierProp.Attributes().Add(object.AttrMax, value.NewInt(MultiplierMax))

	c.ticks = (hour*60 + minute) % minutesPerDay
	return c
}

// Loaded recomputes ticks from the persisted hour/minute and starts or
// leaves stopped the ticking timer according to the current world state.
func (c *Clock) Loaded() {
	c.mu.Lock()
	hour, _ := value.ToInt(c.hourProp.Value())
	minute, _ := value.ToInt(c.minuteProp.Value())
	c.ticks = int(hour*60+minute) % minutesPerDay
	c.mu.Unlock()
	c.ticksProp.SetInternal(value.NewInt(int64(c.ticks)))
	c.update()
}

// WorldEvent re-derives editability and run/freeze state whenever the
// world's power/edit/run state changes.
func (c *Clock) WorldEvent(state value.Value, event value.WorldEvent) {
	c.SubObjectBase.WorldEvent(state, event)
	switch event {
	case value.WorldEventEditDisabled, value.WorldEventEditEnabled,
		value.WorldEventPowerOff, value.WorldEventStop, value.WorldEventRun:
		c.update()
	}
}

func (c *Clock) isEditable() bool {
	if c.worldState == nil {
		return true
	}
	st := value.WorldState(c.worldState().IntVal)
	freeze, _ := value.ToBool(c.freezeProp.Value())
	return st&value.WorldStateEdit != 0 && (st&value.WorldStateRun == 0 || freeze)
}

func (c *Clock) isRunning() bool {
	if c.worldState == nil {
		return false
	}
	st := value.WorldState(c.worldState().IntVal)
	freeze, _ := value.ToBool(c.freezeProp.Value())
	return st&value.WorldStateRun != 0 && !freeze
}

// update is the single place run/freeze transitions happen.
func (c *Clock) update() {
	editable := c.isEditable()
	for _, p := range []*object.Property{c.hourProp, c.minuteProp, c.multiplierProp} {
		p.Attributes().Set(object.AttrEnabled, value.NewBool(editable))
	}

	run := c.isRunning()

	c.mu.Lock()
	wasRunning := c.running
	if wasRunning == run {
		c.mu.Unlock()
		return
	}
	c.running = run

	if run {
		hour, _ := value.ToInt(c.hourProp.Value())
		minute, _ := value.ToInt(c.minuteProp.Value())
		c.ticks = int(hour*60+minute) % minutesPerDay
		multiplier, _ := value.ToInt(c.multiplierProp.Value())
		if multiplier < 1 {
			multiplier = 1
		}
		c.interval = time.Duration(60_000_000/multiplier) * time.Microsecond
		c.nextTick = time.Now().Add(c.interval)
		c.stopTimer = make(chan struct{})
		c.startTimerLocked()
	} else if c.timer != nil {
		c.timer.Stop()
		c.timer = nil
		close(c.stopTimer)
	}
	ticks := c.ticks
	debugLog, _ := value.ToBool(c.debugLogProp.Value())
	c.mu.Unlock()

	c.ticksProp.SetInternal(value.NewInt(int64(ticks)))

	if run {
		hour, minute := ticks/60, ticks%60
		multiplier, _ := value.ToInt(c.multiplierProp.Value())
		if debugLog && c.logger != nil {
			c.logger.Log(c.ID(), msgResume, hour, minute, multiplier)
		}
		c.onResume.Fire(int64(ticks), multiplier)
	} else {
		hour, minute := ticks/60, ticks%60
		if debugLog && c.logger != nil {
			c.logger.Log(c.ID(), msgFreeze, hour, minute)
		}
		c.onFreeze.Fire(int64(ticks))
	}
	c.runningProp.SetInternal(value.NewBool(run))
}

// ID returns an identifying string for log correlation; Clock has no
// world-unique id of its own (it is a SubObject), so it is keyed by its
// parent's property name.
func (c *Clock) ID() string { return c.PropertyName() }

func (c *Clock) startTimerLocked() {
	due := c.nextTick
	stop := c.stopTimer
	c.timer = time.AfterFunc(time.Until(due), func() { c.tick(stop) })
}

// tick fires once per simulated minute. The scheduler re-derives the next
// deadline from nextTick (not from "now"), absorbing scheduling jitter
// instead of accumulating drift tick over tick.
func (c *Clock) tick(stop chan struct{}) {
	select {
	case <-stop:
		return
	default:
	}

	c.mu.Lock()
	if !c.running {
		c.mu.Unlock()
		return
	}
	errUS := time.Since(c.nextTick).Microseconds()
	c.ticks = (c.ticks + 1) % minutesPerDay
	c.nextTick = c.nextTick.Add(c.interval)
	ticks := c.ticks
	debugLog, _ := value.ToBool(c.debugLogProp.Value())
	c.startTimerLocked()
	c.mu.Unlock()

	hour, minute := ticks/60, ticks%60
	if debugLog && c.logger != nil {
		c.logger.Log(c.ID(), msgTick, hour, minute, errUS)
	}

	c.ticksProp.SetInternal(value.NewInt(int64(ticks)))
	c.hourProp.SetInternal(value.NewInt(int64(hour)))
	c.minuteProp.SetInternal(value.NewInt(int64(minute)))
	c.onTick.Fire(int64(ticks))
}

// SetHourMinute lets the session layer adjust the wall-clock display while
// stopped: writing hour/minute while running is rejected by
// the editable attribute, enforced client-side and here defensively.
func (c *Clock) SetHourMinute(hour, minute int) error {
	c.mu.Lock()
	running := c.running
	c.mu.Unlock()
	if running {
		return errs.New(errs.NotWritable, "clock hour/minute cannot be set while the clock is running")
	}
	if err := c.hourProp.Set(value.NewInt(int64(hour))); err != nil {
		return err
	}
	return c.minuteProp.Set(value.NewInt(int64(minute)))
}

func (c *Clock) Ticks() int { return c.ticks }
