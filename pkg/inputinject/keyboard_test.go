package inputinject

import (
	"testing"
	"time"

	"github.com/bnema/wayland-virtual-input-go/virtual_keyboard"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wlrfb/wlrfb/pkg/keymap"
)

type keyEvent struct {
	code  uint32
	state virtual_keyboard.KeyState
}

type modEvent struct {
	depressed, latched, locked, group uint32
}

type fakeKeyboardDevice struct {
	keys      []keyEvent
	modifiers []modEvent
	order     []string
	closed    bool
}

func (f *fakeKeyboardDevice) Key(t time.Time, code uint32, state virtual_keyboard.KeyState) error {
	f.keys = append(f.keys, keyEvent{code, state})
	f.order = append(f.order, "key")
	return nil
}

func (f *fakeKeyboardDevice) Modifiers(depressed, latched, locked, group uint32) error {
	f.modifiers = append(f.modifiers, modEvent{depressed, latched, locked, group})
	f.order = append(f.order, "modifiers")
	return nil
}

func (f *fakeKeyboardDevice) Close() error {
	f.closed = true
	return nil
}

func TestPressSymbolUnshiftedSendsNoModifierBits(t *testing.T) {
	dev := &fakeKeyboardDevice{}
	resolver := keymap.NewResolverForTest(keymap.Entry{Symbol: 'a', Code: 30, Level: 0, Mods: 0})
	kb := NewKeyboard(nil, resolver, dev)

	require.NoError(t, kb.PressSymbol('a'))

	require.Len(t, dev.modifiers, 1)
	assert.Equal(t, modEvent{}, dev.modifiers[0])
	require.Len(t, dev.keys, 1)
	assert.Equal(t, uint32(30), dev.keys[0].code)
	assert.Equal(t, virtual_keyboard.KeyStatePressed, dev.keys[0].state)
}

func TestPressSymbolShiftedLatchesModifierMaskFirst(t *testing.T) {
	const shiftMask uint32 = 1 << 0

	dev := &fakeKeyboardDevice{}
	resolver := keymap.NewResolverForTest(keymap.Entry{Symbol: 'A', Code: 30, Level: 1, Mods: shiftMask})
	kb := NewKeyboard(nil, resolver, dev)

	require.NoError(t, kb.PressSymbol('A'))

	require.Len(t, dev.modifiers, 1)
	assert.Equal(t, modEvent{depressed: 0, latched: shiftMask, locked: 0, group: 0}, dev.modifiers[0])
	require.Len(t, dev.keys, 1)
	// Modifiers() must precede Key() within the same feed call.
	assert.Equal(t, []string{"modifiers", "key"}, dev.order)
}

func TestRepeatedPressEmitsExactlyOneKeyPress(t *testing.T) {
	dev := &fakeKeyboardDevice{}
	resolver := keymap.NewResolverForTest(keymap.Entry{Symbol: 'a', Code: 30, Level: 0})
	kb := NewKeyboard(nil, resolver, dev)

	require.NoError(t, kb.PressSymbol('a'))
	require.NoError(t, kb.PressSymbol('a'))

	require.Len(t, dev.keys, 1)
	assert.Equal(t, virtual_keyboard.KeyStatePressed, dev.keys[0].state)
}

func TestReleaseOfUnpressedSymbolEmitsNothing(t *testing.T) {
	dev := &fakeKeyboardDevice{}
	resolver := keymap.NewResolverForTest(keymap.Entry{Symbol: 'a', Code: 30, Level: 0})
	kb := NewKeyboard(nil, resolver, dev)

	require.NoError(t, kb.ReleaseSymbol('a'))

	assert.Empty(t, dev.keys)
	assert.Empty(t, dev.modifiers)
}

func TestPressThenReleaseClearsMembership(t *testing.T) {
	dev := &fakeKeyboardDevice{}
	resolver := keymap.NewResolverForTest(keymap.Entry{Symbol: 'a', Code: 30, Level: 0})
	kb := NewKeyboard(nil, resolver, dev)

	require.NoError(t, kb.PressSymbol('a'))
	require.NoError(t, kb.ReleaseSymbol('a'))

	assert.False(t, kb.pressed.Contains(30))
	require.Len(t, dev.keys, 2)
	assert.Equal(t, virtual_keyboard.KeyStatePressed, dev.keys[0].state)
	assert.Equal(t, virtual_keyboard.KeyStateReleased, dev.keys[1].state)
}

func TestReleaseAllClearsPressedKeys(t *testing.T) {
	dev := &fakeKeyboardDevice{}
	resolver := keymap.NewResolverForTest(
		keymap.Entry{Symbol: 'A', Code: 30, Level: 1, Mods: 1},
		keymap.Entry{Symbol: 'B', Code: 31, Level: 1, Mods: 1},
	)
	kb := NewKeyboard(nil, resolver, dev)

	require.NoError(t, kb.PressSymbol('A'))
	require.NoError(t, kb.PressSymbol('B'))
	require.NoError(t, kb.ReleaseAll())

	assert.Equal(t, 0, kb.pressed.Len())

	var releases int
	for _, k := range dev.keys {
		if k.state == virtual_keyboard.KeyStateReleased {
			releases++
		}
	}
	assert.Equal(t, 2, releases)
}

func TestUnknownSymbolIsANoop(t *testing.T) {
	dev := &fakeKeyboardDevice{}
	resolver := keymap.NewResolverForTest()
	kb := NewKeyboard(nil, resolver, dev)

	require.NoError(t, kb.PressSymbol('z'))
	assert.Empty(t, dev.keys)
}
