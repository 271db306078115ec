package inputinject

import (
	"testing"

	"github.com/bnema/wayland-virtual-input-go/virtual_keyboard"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wlrfb/wlrfb/pkg/keymap"
)

func TestPrimeSendsEscapePressAndRelease(t *testing.T) {
	const xkEscape = 0xff1b

	dev := &fakeKeyboardDevice{}
	resolver := keymap.NewResolverForTest(keymap.Entry{Symbol: xkEscape, Code: 1, Level: 0})
	kb := NewKeyboard(nil, resolver, dev)

	require.NoError(t, Prime(kb))

	require.Len(t, dev.keys, 2)
	assert.Equal(t, virtual_keyboard.KeyStatePressed, dev.keys[0].state)
	assert.Equal(t, virtual_keyboard.KeyStateReleased, dev.keys[1].state)
	assert.Equal(t, 0, kb.pressed.Len())
}
