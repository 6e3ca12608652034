package workspace

import (
	"context"
	"fmt"
	"slices"
	"sync"

	"github.com/tailored-agentic-units/pyide/observability"
	"github.com/tailored-agentic-units/pyide/protocol"
)

// Option configures a Workspace.
type Option func(*Workspace)

func WithObserver(obs observability.Observer) Option {
	return func(w *Workspace) {
		if obs != nil {
			w.observer = obs
		}
	}
}

// Entry describes one editor buffer.
type Entry struct {
	Name     string `json:"name"`
	Unsaved  bool   `json:"unsaved"`
	Exported bool   `json:"exported"`
}

// Workspace is the set of open editor buffers and the vault of saved files
// behind them. All methods are safe for concurrent use.
type Workspace struct {
	store    Store
	observer observability.Observer

	mu       sync.RWMutex
	files    map[string]string
	list     []string
	selected string
	exported map[string]bool
	vault    map[string]string
}

// Open loads every saved file from store into a buffer.
func Open(ctx context.Context, store Store, opts ...Option) (*Workspace, error) {
	w := &Workspace{
		store:    store,
		observer: observability.NoOpObserver{},
		files:    make(map[string]string),
		exported: make(map[string]bool),
		vault:    make(map[string]string),
	}
	for _, opt := range opts {
		opt(w)
	}

	names, err := store.List(ctx)
	if err != nil {
		return nil, fmt.Errorf("workspace: list vault: %w", err)
	}
	saved, err := store.Load(ctx, names...)
	if err != nil {
		return nil, fmt.Errorf("workspace: load vault: %w", err)
	}
	for _, f := range saved {
		w.files[f.Name] = f.Content
		w.vault[f.Name] = f.Content
		w.list = append(w.list, f.Name)
	}

	observability.Emit(ctx, w.observer, EventOpen, observability.LevelInfo, "workspace.Workspace", map[string]any{
		"files": len(w.list),
	})
	return w, nil
}

// Draft adds an empty buffer named untitled.py, or untitled-N.py when taken,
// and returns its name.
func (w *Workspace) Draft(selectIt bool) string {
	w.mu.Lock()
	defer w.mu.Unlock()

	name := suitableName(draftName, w.takenLocked, draftCandidate)
	w.files[name] = ""
	w.list = append(w.list, name)
	if selectIt {
		w.selected = name
	}
	return name
}

// Create adds a buffer holding content, saves it, and selects it. A taken
// name becomes "Copy of name", then "Copy 1 of name", and so on. It returns
// the name used.
func (w *Workspace) Create(ctx context.Context, name, content string) (string, error) {
	if !ValidName(name) {
		return "", fmt.Errorf("%w: %q", ErrInvalidName, name)
	}

	w.mu.Lock()
	name = suitableName(name, w.takenLocked, copyCandidate(name))
	w.files[name] = content
	w.list = append(w.list, name)
	w.selected = name
	w.mu.Unlock()

	return name, w.persist(ctx, name, content)
}

// Update replaces the content of a buffer without saving it.
func (w *Workspace) Update(name, content string) error {
	w.mu.Lock()
	defer w.mu.Unlock()

	if _, ok := w.files[name]; !ok {
		return fmt.Errorf("%w: %s", ErrNotFound, name)
	}
	w.files[name] = content
	return nil
}

// UpdateSelected replaces the content of the selected buffer, if any.
func (w *Workspace) UpdateSelected(content string) {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.selected == "" {
		return
	}
	w.files[w.selected] = content
}

// Select makes name the selected buffer. Unknown names are ignored.
func (w *Workspace) Select(name string) bool {
	w.mu.Lock()
	defer w.mu.Unlock()

	if _, ok := w.files[name]; !ok {
		return false
	}
	w.selected = name
	return true
}

// Selected returns the selected buffer's name and content.
func (w *Workspace) Selected() (protocol.File, bool) {
	w.mu.RLock()
	defer w.mu.RUnlock()

	if w.selected == "" {
		return protocol.File{}, false
	}
	return protocol.File{Name: w.selected, Content: w.files[w.selected]}, true
}

// File returns a buffer's content.
func (w *Workspace) File(name string) (string, bool) {
	w.mu.RLock()
	defer w.mu.RUnlock()

	content, ok := w.files[name]
	return content, ok
}

// Rename moves a buffer, its saved copy, and its export flag to a new name.
// It does nothing when from is missing or to is taken.
func (w *Workspace) Rename(ctx context.Context, from, to string) (bool, error) {
	if from == to {
		return false, nil
	}
	if !ValidName(to) {
		return false, fmt.Errorf("%w: %q", ErrInvalidName, to)
	}

	w.mu.Lock()
	_, fromExists := w.files[from]
	if !fromExists || w.takenLocked(to) {
		w.mu.Unlock()
		return false, nil
	}

	w.files[to] = w.files[from]
	delete(w.files, from)
	if i := slices.Index(w.list, from); i >= 0 {
		w.list[i] = to
	}
	if w.selected == from {
		w.selected = to
	}
	if w.exported[from] {
		w.exported[to] = true
		delete(w.exported, from)
	}
	saved, wasSaved := w.vault[from]
	if wasSaved {
		w.vault[to] = saved
		delete(w.vault, from)
	}
	w.mu.Unlock()

	observability.Emit(ctx, w.observer, EventRename, observability.LevelInfo, "workspace.Workspace", map[string]any{
		"from": from,
		"to":   to,
	})

	if !wasSaved {
		return true, nil
	}
	if err := w.store.Save(ctx, protocol.File{Name: to, Content: saved}); err != nil {
		return true, err
	}
	return true, w.store.Delete(ctx, from)
}

// Delete drops a buffer and its saved copy.
func (w *Workspace) Delete(ctx context.Context, name string) error {
	w.mu.Lock()
	delete(w.files, name)
	delete(w.vault, name)
	delete(w.exported, name)
	w.list = slices.DeleteFunc(w.list, func(n string) bool { return n == name })
	if w.selected == name {
		w.selected = ""
	}
	w.mu.Unlock()

	observability.Emit(ctx, w.observer, EventDelete, observability.LevelInfo, "workspace.Workspace", map[string]any{
		"name": name,
	})
	return w.store.Delete(ctx, name)
}

// Save persists a buffer's current content to the vault.
func (w *Workspace) Save(ctx context.Context, name string) error {
	w.mu.RLock()
	content, ok := w.files[name]
	w.mu.RUnlock()
	if !ok {
		return fmt.Errorf("%w: %s", ErrNotFound, name)
	}
	return w.persist(ctx, name, content)
}

func (w *Workspace) persist(ctx context.Context, name, content string) error {
	if err := w.store.Save(ctx, protocol.File{Name: name, Content: content}); err != nil {
		return err
	}

	w.mu.Lock()
	w.vault[name] = content
	w.mu.Unlock()

	observability.Emit(ctx, w.observer, EventSave, observability.LevelInfo, "workspace.Workspace", map[string]any{
		"name":  name,
		"bytes": len(content),
	})
	return nil
}

// Unsaved reports whether a buffer differs from its saved copy. A buffer
// that was never saved is unsaved.
func (w *Workspace) Unsaved(name string) bool {
	w.mu.RLock()
	defer w.mu.RUnlock()
	return w.unsavedLocked(name)
}

func (w *Workspace) unsavedLocked(name string) bool {
	saved, ok := w.vault[name]
	return !ok || saved != w.files[name]
}

// Names lists buffers in display order.
func (w *Workspace) Names() []Entry {
	w.mu.RLock()
	defer w.mu.RUnlock()

	entries := make([]Entry, len(w.list))
	for i, name := range w.list {
		entries[i] = Entry{
			Name:     name,
			Unsaved:  w.unsavedLocked(name),
			Exported: w.exported[name],
		}
	}
	return entries
}

// SetExported marks a buffer as visible to running code.
func (w *Workspace) SetExported(name string, exported bool) error {
	w.mu.Lock()
	defer w.mu.Unlock()

	if _, ok := w.files[name]; !ok {
		return fmt.Errorf("%w: %s", ErrNotFound, name)
	}
	if exported {
		w.exported[name] = true
	} else {
		delete(w.exported, name)
	}
	return nil
}

// ToggleExported flips a buffer's export flag and returns the new value.
func (w *Workspace) ToggleExported(name string) (bool, error) {
	w.mu.Lock()
	defer w.mu.Unlock()

	if _, ok := w.files[name]; !ok {
		return false, fmt.Errorf("%w: %s", ErrNotFound, name)
	}
	if w.exported[name] {
		delete(w.exported, name)
		return false, nil
	}
	w.exported[name] = true
	return true, nil
}

// ExportedFiles snapshots the exported buffers in display order, including
// unsaved edits.
func (w *Workspace) ExportedFiles() []protocol.File {
	w.mu.RLock()
	defer w.mu.RUnlock()

	var files []protocol.File
	for _, name := range w.list {
		if w.exported[name] {
			files = append(files, protocol.File{Name: name, Content: w.files[name]})
		}
	}
	return files
}

func (w *Workspace) takenLocked(name string) bool {
	_, inFiles := w.files[name]
	_, inVault := w.vault[name]
	return inFiles || inVault
}
