// Package traintastic implements the server's root object: the IdObject a
// client's NewSession response describes (class id "traintastic", with at
// least the properties settings, world, world_list and version), owning the
// currently loaded World and the data directory it persists to.
//
// The Root is a value constructed once by cmd/traintastic-server and
// threaded through the server and session layers explicitly; there is no
// package-level singleton.
package traintastic

import (
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/google/uuid"

	"github.com/traintastic/traintastic-go/internal/errs"
	"github.com/traintastic/traintastic-go/internal/eventloop"
	"github.com/traintastic/traintastic-go/internal/log"
	"github.com/traintastic/traintastic-go/internal/object"
	"github.com/traintastic/traintastic-go/internal/value"
	"github.com/traintastic/traintastic-go/internal/version"
	"github.com/traintastic/traintastic-go/internal/world"
)

const ClassID object.ClassID = "traintastic"

var (
	msgWorldLoaded = log.Register(log.Message{Code: "I1003", Severity: log.Info, Format: "world %s loaded"})
	msgWorldSaved  = log.Register(log.Message{Code: "I1004", Severity: log.Info, Format: "world %s saved"})
	msgWorldClosed = log.Register(log.Message{Code: "I1005", Severity: log.Info, Format: "world closed"})
	msgNewWorld    = log.Register(log.Message{Code: "N1001", Severity: log.Notice, Format: "created new world %s"})
)

// Root aggregates the server-level settings, the loaded World and the
// on-disk world list. At most one World is loaded at a time; loading or
// creating a new one replaces (and destroys) the previous one.
type Root struct {
	object.IdObjectBase

	loop    *eventloop.EventLoop
	logger  *log.Registry
	dataDir string

	settings  *Settings
	worldProp *object.ObjectProperty
	worldList *object.VectorProperty
	verProp   *object.Property

	mu    sync.RWMutex
	world *world.World

	// OnShutdown / OnRestart are wired by cmd/traintastic-server to the
	// process exit path (exit code 0 vs 2).
	OnShutdown func()
	OnRestart  func()
}

// New constructs the Root. dataDir is created if missing; the world list
// is scanned from it immediately.
func New(dataDir string, loop *eventloop.EventLoop, logger *log.Registry) (*Root, error) {
	if err := os.MkdirAll(dataDir, 0o755); err != nil {
		return nil, errs.Wrap(errs.Failed, err, "cannot create data directory %q", dataDir)
	}
	r := &Root{
		IdObjectBase: object.NewIdObjectBase(ClassID, "traintastic"),
		loop:         loop,
		logger:       logger,
		dataDir:      dataDir,
	}

	r.settings = newSettings(r)
	settingsProp := object.NewObjectProperty("settings", object.FlagReadOnly|object.FlagNoStore|object.FlagSubObject)
	settingsProp.SetInternal(value.NewObjectRef("traintastic.settings"))
	r.AddItem(settingsProp)
	r.AddSubObject(r.settings)

	r.worldProp = object.NewObjectProperty("world", object.FlagReadOnly|object.FlagNoStore)
	r.AddItem(r.worldProp)

	r.worldList = object.NewVectorProperty("world_list", value.String, object.FlagReadOnly|object.FlagNoStore)
	r.AddItem(r.worldList)

	r.verProp = object.NewProperty("version", value.String, value.NewString(version.String()), object.FlagReadOnly|object.FlagNoStore)
	r.AddItem(r.verProp)

	r.AddItem(object.NewMethod("new_world", nil, object.ArgObject, func([]value.Value) (value.Value, error) {
		w := r.NewWorld()
		return value.NewObject(value.NewObjectRef(w.ID())), nil
	}, object.FlagReadWrite|object.FlagNoStore))

	r.AddItem(object.NewMethod("load_world", []object.ArgType{object.ArgString}, object.ArgObject, func(args []value.Value) (value.Value, error) {
		w, err := r.LoadWorld(args[0].StrVal)
		if err != nil {
			return value.Value{}, err
		}
		return value.NewObject(value.NewObjectRef(w.ID())), nil
	}, object.FlagReadWrite|object.FlagNoStore))

	r.AddItem(object.NewMethod("save_world", nil, object.ArgVoid, func([]value.Value) (value.Value, error) {
		return value.Value{}, r.SaveWorld()
	}, object.FlagReadWrite|object.FlagNoStore))

	r.AddItem(object.NewMethod("close_world", nil, object.ArgVoid, func([]value.Value) (value.Value, error) {
		r.CloseWorld()
		return value.Value{}, nil
	}, object.FlagReadWrite|object.FlagNoStore))

	r.AddItem(object.NewMethod("shutdown", nil, object.ArgVoid, func([]value.Value) (value.Value, error) {
		if r.OnShutdown != nil {
			r.OnShutdown()
		}
		return value.Value{}, nil
	}, object.FlagReadWrite|object.FlagNoStore))

	r.AddItem(object.NewMethod("restart", nil, object.ArgVoid, func([]value.Value) (value.Value, error) {
		if r.OnRestart != nil {
			r.OnRestart()
		}
		return value.Value{}, nil
	}, object.FlagReadWrite|object.FlagNoStore))

	r.refreshWorldList()
	return r, nil
}

func (r *Root) DataDir() string       { return r.dataDir }
func (r *Root) Settings() *Settings   { return r.settings }
func (r *Root) Logger() *log.Registry { return r.logger }

// World returns the loaded World, or nil.
func (r *Root) World() *world.World {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.world
}

// RootObject / ObjectByID implement the session layer's resolver: every id
// path a client sends starts at this Root and falls through to the loaded
// World's arena.
func (r *Root) RootObject() object.Object { return r }

func (r *Root) ObjectByID(id string) (object.Object, bool) {
	switch id {
	case r.ID():
		return r, true
	case r.ID() + ".settings":
		return r.settings, true
	}
	w := r.World()
	if w == nil {
		return nil, false
	}
	return w.Object(id)
}

func (r *Root) setWorld(w *world.World) {
	r.mu.Lock()
	old := r.world
	r.world = w
	r.mu.Unlock()
	if old != nil {
		old.Destroy()
	}
	if w != nil {
		r.worldProp.SetInternal(value.NewObjectRef(w.ID()))
	} else {
		r.worldProp.SetInternal(value.ObjectRef{})
	}
}

// NewWorld creates a fresh, empty World with a random UUID id, replacing
// any loaded one.
func (r *Root) NewWorld() *world.World {
	w := world.New(uuid.NewString(), r.loop, r.logger)
	r.setWorld(w)
	r.logger.Log(w.ID(), msgNewWorld, w.ID())
	return w
}

// worldPath resolves a world id to its on-disk location: the archive
// <id>.ctw if present, else the directory <id>.
func (r *Root) worldPath(id string) string {
	archive := filepath.Join(r.dataDir, id+".ctw")
	if _, err := os.Stat(archive); err == nil {
		return archive
	}
	return filepath.Join(r.dataDir, id)
}

// LoadWorld loads a world by UUID from the data directory, replacing any
// loaded one.
func (r *Root) LoadWorld(id string) (*world.World, error) {
	w, err := world.Load(r.worldPath(id), r.loop, r.logger)
	if err != nil {
		return nil, err
	}
	r.setWorld(w)
	r.logger.Log(w.ID(), msgWorldLoaded, w.ID())
	return w, nil
}

// SaveWorld persists the loaded World into the data directory as
// <id>.ctw, then refreshes the world list.
func (r *Root) SaveWorld() error {
	w := r.World()
	if w == nil {
		return errs.New(errs.Failed, "no world loaded")
	}
	if err := w.Save(filepath.Join(r.dataDir, w.ID()+".ctw")); err != nil {
		return err
	}
	r.logger.Log(w.ID(), msgWorldSaved, w.ID())
	r.refreshWorldList()
	return nil
}

// CloseWorld destroys the loaded World.
func (r *Root) CloseWorld() {
	if r.World() == nil {
		return
	}
	r.setWorld(nil)
	r.logger.Log("", msgWorldClosed)
}

// refreshWorldList rescans the data directory: every <uuid>.ctw archive
// and every directory holding a world.json is a loadable world.
func (r *Root) refreshWorldList() {
	entries, err := os.ReadDir(r.dataDir)
	if err != nil {
		return
	}
	var ids []value.Value
	for _, e := range entries {
		name := e.Name()
		if !e.IsDir() && strings.HasSuffix(name, ".ctw") {
			ids = append(ids, value.NewString(strings.TrimSuffix(name, ".ctw")))
			continue
		}
		if e.IsDir() {
			if _, err := os.Stat(filepath.Join(r.dataDir, name, "world.json")); err == nil {
				ids = append(ids, value.NewString(name))
			}
		}
	}
	_ = r.worldList.SetAllInternal(ids)
}
