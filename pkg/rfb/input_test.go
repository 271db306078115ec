package rfb

import (
	"bufio"
	"bytes"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeKeyInjector struct {
	pressed  []uint32
	released []uint32
}

func (f *fakeKeyInjector) PressSymbol(symbol uint32) error {
	f.pressed = append(f.pressed, symbol)
	return nil
}

func (f *fakeKeyInjector) ReleaseSymbol(symbol uint32) error {
	f.released = append(f.released, symbol)
	return nil
}

func (f *fakeKeyInjector) ReleaseAll() error { return nil }

type fakePointerInjector struct {
	moves   []struct{ fracX, fracY float64 }
	buttons []struct {
		button  int
		pressed bool
	}
	scrolls []struct{ dx, dy float64 }
}

func (f *fakePointerInjector) MoveAbsolute(fracX, fracY float64) error {
	f.moves = append(f.moves, struct{ fracX, fracY float64 }{fracX, fracY})
	return nil
}

func (f *fakePointerInjector) Button(button int, pressed bool) error {
	f.buttons = append(f.buttons, struct {
		button  int
		pressed bool
	}{button, pressed})
	return nil
}

func (f *fakePointerInjector) Scroll(deltaX, deltaY float64) error {
	f.scrolls = append(f.scrolls, struct{ dx, dy float64 }{deltaX, deltaY})
	return nil
}

func newTestServerWithInjectors(t *testing.T, kb KeyInjector, ptr PointerInjector) *Server {
	t.Helper()
	return NewServer(nil, ServerConfig{Width: 1920, Height: 1080, DesktopName: "test", Keyboard: kb, Pointer: ptr})
}

func TestHandleKeyEventDispatchesPressAndRelease(t *testing.T) {
	kb := &fakeKeyInjector{}
	s := newTestServerWithInjectors(t, kb, nil)

	press := []byte{1, 0, 0, 0, 0, 0, 'a'}
	require.NoError(t, s.handleKeyEvent(bufio.NewReader(bytes.NewReader(press))))
	assert.Equal(t, []uint32{'a'}, kb.pressed)

	release := []byte{0, 0, 0, 0, 0, 0, 'a'}
	require.NoError(t, s.handleKeyEvent(bufio.NewReader(bytes.NewReader(release))))
	assert.Equal(t, []uint32{'a'}, kb.released)
}

func TestHandleKeyEventNilInjectorIsNoop(t *testing.T) {
	s := newTestServerWithInjectors(t, nil, nil)
	press := []byte{1, 0, 0, 0, 0, 0, 'a'}
	assert.NoError(t, s.handleKeyEvent(bufio.NewReader(bytes.NewReader(press))))
}

func TestHandlePointerEventMovesAbsoluteFraction(t *testing.T) {
	ptr := &fakePointerInjector{}
	s := newTestServerWithInjectors(t, nil, ptr)
	c := newClientConn(nil, 1920, 1080)

	// mask=0, x=960, y=540 (screen centre)
	msg := []byte{0, 3, 192, 2, 28}
	require.NoError(t, s.handlePointerEvent(bufio.NewReader(bytes.NewReader(msg)), c))
	require.Len(t, ptr.moves, 1)
	assert.InDelta(t, 0.5, ptr.moves[0].fracX, 0.01)
	assert.InDelta(t, 0.5, ptr.moves[0].fracY, 0.01)
}

func TestHandlePointerEventSynthesizesButtonPressAndRelease(t *testing.T) {
	ptr := &fakePointerInjector{}
	s := newTestServerWithInjectors(t, nil, ptr)
	c := newClientConn(nil, 1920, 1080)

	press := []byte{buttonMaskLeft, 0, 0, 0, 0}
	require.NoError(t, s.handlePointerEvent(bufio.NewReader(bytes.NewReader(press)), c))
	require.Len(t, ptr.buttons, 1)
	assert.Equal(t, 1, ptr.buttons[0].button)
	assert.True(t, ptr.buttons[0].pressed)

	release := []byte{0, 0, 0, 0, 0}
	require.NoError(t, s.handlePointerEvent(bufio.NewReader(bytes.NewReader(release)), c))
	require.Len(t, ptr.buttons, 2)
	assert.Equal(t, 1, ptr.buttons[1].button)
	assert.False(t, ptr.buttons[1].pressed)
}

func TestHandlePointerEventNoButtonChangeEmitsNoButtonEvent(t *testing.T) {
	ptr := &fakePointerInjector{}
	s := newTestServerWithInjectors(t, nil, ptr)
	c := newClientConn(nil, 1920, 1080)

	msg := []byte{0, 0, 0, 0, 0}
	require.NoError(t, s.handlePointerEvent(bufio.NewReader(bytes.NewReader(msg)), c))
	assert.Empty(t, ptr.buttons)
}

func TestHandlePointerEventWheelEdgeTriggersScroll(t *testing.T) {
	ptr := &fakePointerInjector{}
	s := newTestServerWithInjectors(t, nil, ptr)
	c := newClientConn(nil, 1920, 1080)

	up := []byte{buttonMaskWheelUp, 0, 0, 0, 0}
	require.NoError(t, s.handlePointerEvent(bufio.NewReader(bytes.NewReader(up)), c))
	require.Len(t, ptr.scrolls, 1)
	assert.Equal(t, -1.0, ptr.scrolls[0].dy)

	// Mask clears, then the next tick sets wheel-down: another single edge.
	clear := []byte{0, 0, 0, 0, 0}
	require.NoError(t, s.handlePointerEvent(bufio.NewReader(bytes.NewReader(clear)), c))
	down := []byte{buttonMaskWheelDown, 0, 0, 0, 0}
	require.NoError(t, s.handlePointerEvent(bufio.NewReader(bytes.NewReader(down)), c))
	require.Len(t, ptr.scrolls, 2)
	assert.Equal(t, 1.0, ptr.scrolls[1].dy)
}

func TestHandlePointerEventNilInjectorIsNoop(t *testing.T) {
	s := newTestServerWithInjectors(t, nil, nil)
	c := newClientConn(nil, 1920, 1080)
	msg := []byte{buttonMaskLeft, 0, 0, 0, 0}
	assert.NoError(t, s.handlePointerEvent(bufio.NewReader(bytes.NewReader(msg)), c))
}
