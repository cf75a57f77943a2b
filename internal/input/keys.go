package input

import (
	"fmt"
	"strings"
)

// keyTable maps canonical key names to Windows virtual-key codes. Names are
// the ones the global hook reports, so a recorded key can be replayed.
var keyTable = map[string]uint16{
	"CTRL":        0x11,
	"ALT":         0x12,
	"SHIFT":       0x10,
	"CMD":         0x5B,
	"SPACE":       0x20,
	"ENTER":       0x0D,
	"ESC":         0x1B,
	"BACKSPACE":   0x08,
	"TAB":         0x09,
	"CAPSLOCK":    0x14,
	"PAGEUP":      0x21,
	"PAGEDOWN":    0x22,
	"END":         0x23,
	"HOME":        0x24,
	"LEFT":        0x25,
	"UP":          0x26,
	"RIGHT":       0x27,
	"DOWN":        0x28,
	"PRINTSCREEN": 0x2C,
	"INSERT":      0x2D,
	"DELETE":      0x2E,
	"PAUSE":       0x13,
	"SCROLLLOCK":  0x91,
	"NUMLOCK":     0x90,
}

var keyAliases = map[string]string{
	"CONTROL": "CTRL",
	"LCTRL":   "CTRL",
	"RCTRL":   "CTRL",
	"OPTION":  "ALT",
	"ALTGR":   "ALT",
	"WIN":     "CMD",
	"WINDOWS": "CMD",
	"SUPER":   "CMD",
	"META":    "CMD",
	"COMMAND": "CMD",
	"ESCAPE":  "ESC",
	"RETURN":  "ENTER",
	"DEL":     "DELETE",
	"INS":     "INSERT",
	"PGUP":    "PAGEUP",
	"PGDN":    "PAGEDOWN",
	"BACK":    "BACKSPACE",
	"PRTSC":   "PRINTSCREEN",
	"LMB":     "MOUSE1",
	"MMB":     "MOUSE2",
	"RMB":     "MOUSE3",
}

var vkNames = func() map[uint16]string {
	m := make(map[uint16]string, len(keyTable))
	for name, vk := range keyTable {
		m[vk] = name
	}
	return m
}()

// CanonicalKey returns the canonical upper case name of key.
func CanonicalKey(key string) string {
	k := strings.ToUpper(strings.TrimSpace(key))
	if alias, ok := keyAliases[k]; ok {
		return alias
	}
	return k
}

// VirtualKey returns the Windows virtual-key code for a key name.
func VirtualKey(key string) (uint16, bool) {
	k := CanonicalKey(key)
	if vk, ok := keyTable[k]; ok {
		return vk, true
	}
	if len(k) == 1 {
		c := k[0]
		if (c >= 'A' && c <= 'Z') || (c >= '0' && c <= '9') {
			return uint16(c), true
		}
	}
	var n int
	if _, err := fmt.Sscanf(k, "F%d", &n); err == nil && n >= 1 && n <= 24 && k == fmt.Sprintf("F%d", n) {
		return uint16(0x6F + n), true
	}
	return 0, false
}

// KeyName returns the canonical name of a Windows virtual-key code, or ""
// when the code has no name.
func KeyName(vk uint32) string {
	switch vk {
	case 0xA2, 0xA3:
		return "CTRL"
	case 0xA4, 0xA5:
		return "ALT"
	case 0xA0, 0xA1:
		return "SHIFT"
	case 0x5C:
		return "CMD"
	}
	if name, ok := vkNames[uint16(vk)]; ok {
		return name
	}
	if (vk >= 0x41 && vk <= 0x5A) || (vk >= 0x30 && vk <= 0x39) {
		return string(rune(vk))
	}
	if vk >= 0x70 && vk <= 0x87 {
		return fmt.Sprintf("F%d", vk-0x6F)
	}
	return ""
}

// IsMouseButton reports whether a canonical name refers to a mouse button
// (MOUSE1 left, MOUSE2 middle, MOUSE3 right, MOUSE4/5 side buttons).
func IsMouseButton(name string) bool {
	return strings.HasPrefix(name, "MOUSE")
}

// ParseCombo splits a combination such as "ctrl+shift+s" into canonical key
// names, in the order given.
func ParseCombo(combo string) ([]string, error) {
	if strings.TrimSpace(combo) == "" {
		return nil, fmt.Errorf("empty key combination")
	}
	// "+" on its own is the plus key, not a separator
	if strings.TrimSpace(combo) == "+" {
		return []string{"+"}, nil
	}
	parts := strings.Split(combo, "+")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		k := CanonicalKey(p)
		if k == "" {
			return nil, fmt.Errorf("invalid key combination %q", combo)
		}
		out = append(out, k)
	}
	return out, nil
}

// NormalizeCombo returns the canonical form of a combination, e.g.
// "control + t" becomes "CTRL+T".
func NormalizeCombo(combo string) (string, error) {
	parts, err := ParseCombo(combo)
	if err != nil {
		return "", err
	}
	return strings.Join(parts, "+"), nil
}
