package world

import (
	"archive/zip"
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/traintastic/traintastic-go/internal/errs"
	"github.com/traintastic/traintastic-go/internal/eventloop"
	"github.com/traintastic/traintastic-go/internal/log"
	"github.com/traintastic/traintastic-go/internal/object"
	"github.com/traintastic/traintastic-go/internal/value"
)

// container abstracts the two supported on-disk shapes: a plain directory of files, or a single `<uuid>.ctw` zip archive.
// archive/zip already covers the single-file form, so both stay behind
// one interface and call sites never branch on the concrete container.
type container interface {
	readFile(name string) ([]byte, bool, error)
	writeFile(name string, data []byte) error
	listPrefix(prefix string) ([]string, error)
	close() error
}

type dirContainer struct{ root string }

func openDirForRead(root string) container { return &dirContainer{root: root} }

func (d *dirContainer) readFile(name string) ([]byte, bool, error) {
	data, err := os.ReadFile(filepath.Join(d.root, name))
	if os.IsNotExist(err) {
		return nil, false, nil
	}
	return data, err == nil, err
}

func (d *dirContainer) writeFile(name string, data []byte) error {
	full := filepath.Join(d.root, name)
	if err := os.MkdirAll(filepath.Dir(full), 0o755); err != nil {
		return err
	}
	return os.WriteFile(full, data, 0o644)
}

func (d *dirContainer) listPrefix(prefix string) ([]string, error) {
	dir := filepath.Join(d.root, prefix)
	entries, err := os.ReadDir(dir)
	if os.IsNotExist(err) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	var names []string
	for _, e := range entries {
		if !e.IsDir() {
			names = append(names, prefix+e.Name())
		}
	}
	return names, nil
}

func (d *dirContainer) close() error { return nil }

type zipReadContainer struct{ zr *zip.ReadCloser }

func openZipForRead(path string) (container, error) {
	zr, err := zip.OpenReader(path)
	if err != nil {
		return nil, err
	}
	return &zipReadContainer{zr: zr}, nil
}

func (z *zipReadContainer) readFile(name string) ([]byte, bool, error) {
	f, err := z.zr.Open(name)
	if err != nil {
		return nil, false, nil
	}
	defer f.Close()
	data, err := io.ReadAll(f)
	return data, true, err
}

func (z *zipReadContainer) listPrefix(prefix string) ([]string, error) {
	var names []string
	for _, f := range z.zr.File {
		if strings.HasPrefix(f.Name, prefix) && !strings.HasSuffix(f.Name, "/") {
			names = append(names, f.Name)
		}
	}
	return names, nil
}

func (z *zipReadContainer) writeFile(string, []byte) error { return fmt.Errorf("world: zip read container is not writable") }
func (z *zipReadContainer) close() error                   { return z.zr.Close() }

type zipWriteContainer struct {
	buf *bytes.Buffer
	zw  *zip.Writer
}

func newZipWriter() *zipWriteContainer {
	buf := &bytes.Buffer{}
	return &zipWriteContainer{buf: buf, zw: zip.NewWriter(buf)}
}

func (z *zipWriteContainer) readFile(string) ([]byte, bool, error) { return nil, false, nil }
func (z *zipWriteContainer) listPrefix(string) ([]string, error)   { return nil, nil }

func (z *zipWriteContainer) writeFile(name string, data []byte) error {
	w, err := z.zw.Create(name)
	if err != nil {
		return err
	}
	_, err = w.Write(data)
	return err
}

func (z *zipWriteContainer) close() error { return z.zw.Close() }

const (
	fileWorldData  = "world.json"
	fileWorldState = "state.json"
	simulationDir  = "simulation/"
)

// propSelector picks which flagged properties belong in a given bucket.
type propSelector func(object.PropertyFlags) bool

func selectData(f object.PropertyFlags) bool  { return f.Store() }
func selectState(f object.PropertyFlags) bool { return f.StoreState() }

// topLevelIDs returns every top-level object's id in the world, excluding
// the synthetic "<id>.<propName>" ids subObjectProperty assigns its
// SubObjects (those are reached by recursing through their owner's
// SubObject-flagged ObjectProperty, never saved as a sibling bucket).
func (w *World) topLevelIDs() []string {
	w.mu.RLock()
	defer w.mu.RUnlock()
	ids := make([]string, 0, len(w.objects))
	for id, o := range w.objects {
		if _, isSub := o.(interface{ Parent() object.Object }); isSub {
			continue
		}
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

// Save writes the world to path: a directory if path has no ".ctw"
// extension, otherwise a single zip archive. Every
// top-level IdObject reachable from the world (the World itself plus every
// Train/Board/Decoder/Booster/IOModule/Interface it has registered) gets
// its own entry in both buckets, keyed by its own id.
func (w *World) Save(path string) error {
	ids := w.topLevelIDs()

	dataByID := make(map[string]json.RawMessage, len(ids))
	stateByID := make(map[string]json.RawMessage, len(ids))
	for _, id := range ids {
		o, _ := w.Object(id)
		dataBucket, err := encodeBucket(w, o, selectData)
		if err != nil {
			return err
		}
		dataByID[id] = dataBucket
		stateBucket, err := encodeBucket(w, o, selectState)
		if err != nil {
			return err
		}
		stateByID[id] = stateBucket
	}

	dataJSON, err := json.MarshalIndent(dataByID, "", "  ")
	if err != nil {
		return err
	}
	stateJSON, err := json.MarshalIndent(stateByID, "", "  ")
	if err != nil {
		return err
	}

	if strings.EqualFold(filepath.Ext(path), ".ctw") {
		zc := newZipWriter()
		if err := zc.writeFile(fileWorldData, dataJSON); err != nil {
			return err
		}
		if err := zc.writeFile(fileWorldState, stateJSON); err != nil {
			return err
		}
		if err := zc.close(); err != nil {
			return err
		}
		return os.WriteFile(path, zc.buf.Bytes(), 0o644)
	}

	dc := &dirContainer{root: path}
	if err := dc.writeFile(fileWorldData, dataJSON); err != nil {
		return err
	}
	return dc.writeFile(fileWorldState, stateJSON)
}

type classIDTag struct {
	ClassID string `json:"class_id"`
}

// Load reads a world container (directory or .ctw archive) and replays it:
// materialize every top-level IdObject via its class_id
// factory, replay world.json, then state.json, then call Loaded()
// leaves-first. A malformed world.json is fatal (LoadingFailed); a missing
// or malformed state.json is tolerated (every property keeps its default).
func Load(path string, loop *eventloop.EventLoop, logger *log.Registry) (*World, error) {
	var c container
	var err error
	if strings.EqualFold(filepath.Ext(path), ".ctw") {
		c, err = openZipForRead(path)
	} else {
		c = openDirForRead(path)
	}
	if err != nil {
		return nil, err
	}
	defer c.close()

	rawData, ok, err := c.readFile(fileWorldData)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, errs.Wrap(errs.LoadingFailed, err, "%s missing %s", path, fileWorldData)
	}
	var dataByID map[string]json.RawMessage
	if err := json.Unmarshal(rawData, &dataByID); err != nil {
		return nil, errs.Wrap(errs.LoadingFailed, err, "malformed %s", fileWorldData)
	}

	var worldID string
	for id, raw := range dataByID {
		var tag classIDTag
		if err := json.Unmarshal(raw, &tag); err != nil {
			return nil, errs.Wrap(errs.LoadingFailed, err, "object %q has no class_id", id)
		}
		if object.ClassID(tag.ClassID) == ClassID {
			worldID = id
			break
		}
	}
	if worldID == "" {
		return nil, errs.New(errs.LoadingFailed, "%s has no world-class top-level object", fileWorldData)
	}

	w := New(worldID, loop, logger)

	// First pass: materialize every other top-level IdObject via its
	// class_id factory and register it, so that any ObjectProperty decoded
	// in the second pass can already resolve its reference target.
	for id, raw := range dataByID {
		if id == worldID {
			continue
		}
		var tag classIDTag
		_ = json.Unmarshal(raw, &tag)
		f, err := lookupFactory(object.ClassID(tag.ClassID))
		if err != nil {
			continue // UnknownClassId: skip this object, loading the rest is not fatal
		}
		o := f(w, id)
		_ = w.Register(o, id)
	}

	// Second pass: replay every object's data bucket.
	for id, raw := range dataByID {
		o, ok := w.Object(id)
		if !ok {
			continue
		}
		if err := decodeBucket(w, o, raw, selectData); err != nil {
			return nil, err
		}
	}

	rawState, ok, err := c.readFile(fileWorldState)
	if err != nil {
		return nil, err
	}
	if ok {
		var stateByID map[string]json.RawMessage
		if err := json.Unmarshal(rawState, &stateByID); err == nil {
			for id, raw := range stateByID {
				o, ok := w.Object(id)
				if !ok {
					continue
				}
				_ = decodeBucket(w, o, raw, selectState)
			}
		}
	}

	callLoadedLeavesFirst(w)
	return w, nil
}

// callLoadedLeavesFirst invokes Loaded() on every SubObject of an object
// before the object itself, and on every top-level object last of all, so
// loaded() runs leaves-first.
func callLoadedLeavesFirst(w *World) {
	visited := make(map[object.Object]bool)
	var visit func(o object.Object)
	visit = func(o object.Object) {
		if visited[o] {
			return
		}
		visited[o] = true
		if sp, ok := o.(interface{ SubObjects() []object.Object }); ok {
			for _, c := range sp.SubObjects() {
				visit(c)
			}
		}
		o.Loaded()
	}

	ids := make([]string, 0, len(w.objects))
	for id := range w.objects {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	for _, id := range ids {
		visit(w.objects[id])
	}
}

// encodeBucket renders one object's flagged properties, inlining owned
// SubObjects by recursing into their own bucket instead of writing an id
// reference.
func encodeBucket(w *World, o object.Object, selector propSelector) (json.RawMessage, error) {
	out := make(map[string]json.RawMessage)
	classIDRaw, err := json.Marshal(string(o.ClassID()))
	if err != nil {
		return nil, err
	}
	out["class_id"] = classIDRaw
	for _, item := range o.Items() {
		name := item.Name()

		// A SubObject-flagged ObjectProperty is structural, not itself
		// Store/StoreState-selected: its own flags only say "an owned
		// child lives here", so it is always inlined and the selector is
		// applied to the child's properties instead.
		if objProp, ok := item.(*object.ObjectProperty); ok && objProp.Flags().SubObject() {
			target := objProp.Target()
			if !target.Valid() {
				continue
			}
			child, ok := w.Object(target.ID())
			if !ok {
				continue
			}
			raw, err := encodeBucket(w, child, selector)
			if err != nil {
				return nil, err
			}
			out[name] = raw
			continue
		}

		if !selector(item.Flags()) {
			continue
		}
		switch it := item.(type) {
		case *object.Property:
			raw, err := json.Marshal(it.Value())
			if err != nil {
				return nil, err
			}
			out[name] = raw
		case *object.VectorProperty:
			values := it.All()
			rawValues := make([]json.RawMessage, len(values))
			for i, v := range values {
				raw, err := json.Marshal(v)
				if err != nil {
					return nil, err
				}
				rawValues[i] = raw
			}
			raw, err := json.Marshal(rawValues)
			if err != nil {
				return nil, err
			}
			out[name] = raw
		case *object.ObjectProperty:
			raw, err := json.Marshal(value.NewObject(it.Target()))
			if err != nil {
				return nil, err
			}
			out[name] = raw
		}
	}
	return json.Marshal(out)
}

// decodeBucket is encodeBucket's inverse: unknown keys are ignored
//, and SubObject-flagged ObjectProperty values recurse into
// the already-constructed child (every SubObject is created by its
// parent's own constructor, never by the loader directly).
func decodeBucket(w *World, o object.Object, raw json.RawMessage, selector propSelector) error {
	var fields map[string]json.RawMessage
	if err := json.Unmarshal(raw, &fields); err != nil {
		return err
	}
	for _, item := range o.Items() {
		name := item.Name()
		fieldRaw, present := fields[name]
		if !present {
			continue
		}

		if objProp, ok := item.(*object.ObjectProperty); ok && objProp.Flags().SubObject() {
			target := objProp.Target()
			if !target.Valid() {
				continue
			}
			child, ok := w.Object(target.ID())
			if !ok {
				continue
			}
			if err := decodeBucket(w, child, fieldRaw, selector); err != nil {
				return err
			}
			continue
		}

		if !selector(item.Flags()) {
			continue
		}
		switch it := item.(type) {
		case *object.Property:
			v, err := value.DecodeAs(fieldRaw, it.Kind(), it.EnumValues(), it.SetValues())
			if err != nil {
				return fmt.Errorf("object %q property %q: %w", o.ClassID(), item.Name(), err)
			}
			if err := it.SetInternal(v); err != nil {
				return err
			}
		case *object.VectorProperty:
			var rawValues []json.RawMessage
			if err := json.Unmarshal(fieldRaw, &rawValues); err != nil {
				return err
			}
			values := make([]value.Value, len(rawValues))
			for i, rv := range rawValues {
				v, err := value.DecodeAs(rv, it.Kind(), nil, nil)
				if err != nil {
					return err
				}
				values[i] = v
			}
			if err := it.SetAllInternal(values); err != nil {
				return err
			}
		case *object.ObjectProperty:
			{
				v, err := value.DecodeAs(fieldRaw, value.Object, nil, nil)
				if err != nil {
					return err
				}
				if err := it.SetInternal(v.ObjRef); err != nil {
					return err
				}
			}
		}
	}
	return nil
}
