package wlclient

import (
	"fmt"
	"log/slog"

	"github.com/wlrfb/wlrfb/pkg/capture"
)

// zwlr_export_dmabuf request/event opcodes, fixed by the upstream protocol XML.
const (
	opExportDmabufManagerCaptureOutput = 0
	opExportDmabufManagerDestroy       = 1

	opExportDmabufFrameDestroy = 0

	evExportDmabufFrameFrame  = 0
	evExportDmabufFrameObject = 1
	evExportDmabufFrameReady  = 2
	evExportDmabufFrameCancel = 3
)

// cancelReasonPermanent is the wire value of the cancel event's "reason"
// enum that maps to capture.CancelPermanent; every other value is
// transient.
const cancelReasonPermanent = 1

// DmabufManager binds zwlr_export_dmabuf_manager_v1. Satisfies
// capture.DmabufManager.
type DmabufManager struct {
	log    *slog.Logger
	output *extProxy
	mgr    *extProxy
}

// NewDmabufManager binds the global on d for the given output proxy.
func NewDmabufManager(log *slog.Logger, d *Display, output *extProxy) (*DmabufManager, error) {
	mgr, err := bindExtension(d, IfaceExportDmabufManager, 1, func(uint32, []interface{}) {})
	if err != nil {
		return nil, err
	}
	return &DmabufManager{log: log, output: output, mgr: mgr}, nil
}

// CaptureOutput implements capture.DmabufManager.
func (m *DmabufManager) CaptureOutput(overlayCursor bool, sink capture.DmabufSink) (capture.DmabufFrame, error) {
	cursor := uint32(0)
	if overlayCursor {
		cursor = 1
	}

	child, err := m.mgr.requestNewID(opExportDmabufManagerCaptureOutput, "zwlr_export_dmabuf_frame_v1", 1, cursor, m.output.proxy)
	if err != nil {
		return nil, fmt.Errorf("wlclient: export-dmabuf capture_output: %w", err)
	}

	f := &dmabufFrame{log: m.log, proxy: child, sink: sink}
	child.onDispatch(f.dispatch)
	return f, nil
}

type dmabufFrame struct {
	log       *slog.Logger
	proxy     *extProxy
	sink      capture.DmabufSink
	destroyed bool
}

func (f *dmabufFrame) dispatch(opcode uint32, args []interface{}) {
	switch opcode {
	case evExportDmabufFrameFrame:
		width, _ := args[0].(uint32)
		height, _ := args[1].(uint32)
		// args[2..6] carry offset_x/offset_y/buffer_flags/transform that this
		// bridge doesn't need; format and the object count are the last two.
		format, _ := args[7].(uint32)
		numObjects, _ := args[8].(uint32)
		f.sink.OnFrame(width, height, format, int(numObjects))
	case evExportDmabufFrameObject:
		index, _ := args[0].(uint32)
		fd, _ := args[1].(int)
		size, _ := args[2].(uint32)
		offset, _ := args[3].(uint32)
		stride, _ := args[4].(uint32)
		modHi, _ := args[5].(uint32)
		modLo, _ := args[6].(uint32)
		modifier := uint64(modHi)<<32 | uint64(modLo)
		f.sink.OnObject(int(index), fd, size, offset, stride, stride, modifier)
	case evExportDmabufFrameReady:
		f.sink.OnReady()
	case evExportDmabufFrameCancel:
		reason, _ := args[0].(uint32)
		if reason == cancelReasonPermanent {
			f.sink.OnCancel(capture.CancelPermanent)
		} else {
			f.sink.OnCancel(capture.CancelTemporary)
		}
	default:
		f.log.Debug("unhandled export-dmabuf frame event", "opcode", opcode)
	}
}

// Destroy implements capture.DmabufFrame.
func (f *dmabufFrame) Destroy() {
	if f.destroyed {
		return
	}
	f.destroyed = true
	f.proxy.destroy(opExportDmabufFrameDestroy)
}
