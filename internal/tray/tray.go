// Package tray provides system tray functionality using getlantern/systray.
package tray

import (
	"fmt"
	"log"
	"sync"

	"github.com/getlantern/systray"

	"hkmacro/internal/executor"
	"hkmacro/internal/macro"
	"hkmacro/internal/store"
)

// Controller is the part of the engine the tray drives.
type Controller interface {
	Store() *store.Store
	Execute(id string, overrides map[string]any) (*executor.Run, error)
	Stop() error
	Pause() error
	Resume() error
	Status() executor.Status
}

// MenuItem represents a fixed menu item
type MenuItem struct {
	ID       int
	Title    string
	Callback func()
	item     *systray.MenuItem
}

// Tray manages the system tray icon and menu
type Tray struct {
	ctrl    Controller
	items   []*MenuItem
	readyCh chan struct{}
	quitCh  chan struct{}

	mu       sync.Mutex
	runMenu  *systray.MenuItem
	slots    []*systray.MenuItem
	slotIDs  []string
	pauseID  int
	resumeID int
	stopID   int
}

// New creates a new system tray. The macro submenu and the run controls are
// created here; callers may add more items before Run.
func New(ctrl Controller) *Tray {
	t := &Tray{
		ctrl:    ctrl,
		items:   make([]*MenuItem, 0),
		readyCh: make(chan struct{}),
		quitCh:  make(chan struct{}),
	}
	t.pauseID = t.AddMenuItem("Pause", t.control("pause", ctrl.Pause))
	t.resumeID = t.AddMenuItem("Resume", t.control("resume", ctrl.Resume))
	t.stopID = t.AddMenuItem("Stop", t.control("stop", ctrl.Stop))
	t.AddSeparator()
	return t
}

func (t *Tray) control(name string, fn func() error) func() {
	return func() {
		if err := fn(); err != nil {
			log.Printf("Tray: %s failed: %v", name, err)
		}
	}
}

// AddMenuItem adds a menu item to the tray
func (t *Tray) AddMenuItem(title string, callback func()) int {
	id := len(t.items)
	t.items = append(t.items, &MenuItem{
		ID:       id,
		Title:    title,
		Callback: callback,
	})
	return id
}

// AddSeparator adds a separator to the menu
func (t *Tray) AddSeparator() {
	t.items = append(t.items, nil) // nil indicates separator
}

// Run starts the tray event loop (blocks)
func (t *Tray) Run() {
	systray.Run(t.setupMenu, func() { close(t.quitCh) })
}

// Stop stops the tray
func (t *Tray) Stop() {
	systray.Quit()
}

// Ready is closed once the menu exists.
func (t *Tray) Ready() <-chan struct{} { return t.readyCh }

// setupMenu is called when systray is ready
func (t *Tray) setupMenu() {
	systray.SetTitle("hkmacro")
	systray.SetTooltip("hkmacro: idle")
	systray.SetIcon(getIcon())

	t.mu.Lock()
	t.runMenu = systray.AddMenuItem("Run macro", "Run a macro now")
	systray.AddSeparator()
	for _, menuItem := range t.items {
		if menuItem == nil {
			systray.AddSeparator()
			continue
		}
		menuItem.item = systray.AddMenuItem(menuItem.Title, "")
		if menuItem.Callback != nil {
			go t.listen(menuItem.item, menuItem.Callback)
		}
	}
	t.mu.Unlock()

	t.ctrl.Store().Subscribe(func(store.Event) { t.refreshMacros() })
	t.refreshMacros()
	t.SetStatus(t.ctrl.Status())
	close(t.readyCh)
}

func (t *Tray) listen(item *systray.MenuItem, fn func()) {
	for {
		select {
		case <-item.ClickedCh:
			fn()
		case <-t.quitCh:
			return
		}
	}
}

// refreshMacros rebuilds the run submenu. systray cannot remove items, so
// submenu slots are reused and surplus ones hidden.
func (t *Tray) refreshMacros() {
	entries := menuEntries(t.ctrl.Store().List())

	t.mu.Lock()
	defer t.mu.Unlock()
	if t.runMenu == nil {
		return
	}
	for i, e := range entries {
		if i == len(t.slots) {
			slot := t.runMenu.AddSubMenuItem("", "")
			t.slots = append(t.slots, slot)
			t.slotIDs = append(t.slotIDs, "")
			go t.listen(slot, func() { t.runSlot(i) })
		}
		t.slotIDs[i] = e.ID
		t.slots[i].SetTitle(e.Title)
		t.slots[i].Show()
	}
	for i := len(entries); i < len(t.slots); i++ {
		t.slotIDs[i] = ""
		t.slots[i].Hide()
	}
	if len(entries) == 0 {
		t.runMenu.Disable()
	} else {
		t.runMenu.Enable()
	}
}

func (t *Tray) runSlot(i int) {
	t.mu.Lock()
	id := t.slotIDs[i]
	t.mu.Unlock()
	if id == "" {
		return
	}
	if _, err := t.ctrl.Execute(id, nil); err != nil {
		log.Printf("Tray: Failed to run macro %s: %v", id, err)
	}
}

// SetStatus updates the tooltip and enables the controls that apply.
func (t *Tray) SetStatus(s executor.Status) {
	systray.SetTooltip("hkmacro: " + s.String())

	t.mu.Lock()
	defer t.mu.Unlock()
	for id, on := range controlStates(s, t.pauseID, t.resumeID, t.stopID) {
		item := t.items[id].item
		if item == nil {
			continue
		}
		if on {
			item.Enable()
		} else {
			item.Disable()
		}
	}
}

// Follow updates the status from executor events until events is closed.
func (t *Tray) Follow(events <-chan executor.Event) {
	for ev := range events {
		if ev.Type == executor.EventStatus || ev.Type == executor.EventStarted || ev.Type == executor.EventFinished {
			t.SetStatus(ev.Status)
		}
	}
}

type menuEntry struct {
	ID    string
	Title string
}

// menuEntries lists enabled macros in display order.
func menuEntries(list []macro.Summary) []menuEntry {
	out := make([]menuEntry, 0, len(list))
	for _, m := range list {
		if !m.Enabled {
			continue
		}
		title := m.Name
		if m.Hotkey != "" {
			title = fmt.Sprintf("%s (%s)", m.Name, m.Hotkey)
		}
		out = append(out, menuEntry{ID: m.ID, Title: title})
	}
	return out
}

func controlStates(s executor.Status, pause, resume, stop int) map[int]bool {
	return map[int]bool{
		pause:  s == executor.Running,
		resume: s == executor.Paused,
		stop:   s.Active(),
	}
}

// getIcon returns a placeholder icon (valid 16x16 ICO)
func getIcon() []byte {
	icon := make([]byte, 1118)
	// ICO Header
	copy(icon[0:6], []byte{0x00, 0x00, 0x01, 0x00, 0x01, 0x00})
	// Icon Directory
	copy(icon[6:22], []byte{
		0x10, 0x10, 0x00, 0x00, 0x01, 0x00, 0x20, 0x00,
		0x48, 0x04, 0x00, 0x00,
		0x16, 0x00, 0x00, 0x00,
	})
	// DIB Header
	copy(icon[22:62], []byte{
		0x28, 0x00, 0x00, 0x00,
		0x10, 0x00, 0x00, 0x00,
		0x20, 0x00, 0x00, 0x00,
		0x01, 0x00,
		0x20, 0x00,
		0x00, 0x00, 0x00, 0x00,
		0x00, 0x04, 0x00, 0x00,
		0x00, 0x00, 0x00, 0x00,
		0x00, 0x00, 0x00, 0x00,
		0x00, 0x00, 0x00, 0x00,
		0x00, 0x00, 0x00, 0x00,
	})
	return icon
}
