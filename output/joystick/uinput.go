package joystick

import (
	"encoding/binary"
	"fmt"
	"os"
	"unsafe"

	"golang.org/x/sys/unix"

	"github.com/leosat/MMVJ/errors"
	"github.com/leosat/MMVJ/event"
)

// DefaultUinputPath is the kernel's uinput control node.
const DefaultUinputPath = "/dev/uinput"

// Event types and codes from input-event-codes.h / uinput.h.
const (
	evSyn    = 0x00
	evKey    = 0x01
	evAbs    = 0x03
	evFF     = 0x15
	evUinput = 0x0101

	synReport = 0

	ffConstant = 0x52
	ffGain     = 0x60

	uiFFUpload = 1
	uiFFErase  = 2

	uinputMaxNameSize = 80
	absCnt            = 0x40

	axisMin = -32767
	axisMax = 32767
)

// ioctl request numbers from uinput.h.
const (
	uiSetEvBit  = 0x40045564 // _IOW('U', 100, int)
	uiSetKeyBit = 0x40045565 // _IOW('U', 101, int)
	uiSetAbsBit = 0x40045567 // _IOW('U', 103, int)
	uiSetFFBit  = 0x4004556b // _IOW('U', 107, int)

	uiDevCreate  = 0x5501 // _IO('U', 1)
	uiDevDestroy = 0x5502 // _IO('U', 2)

	uiBeginFFUpload = 0xc06855c8 // _IOWR('U', 200, struct uinput_ff_upload)
	uiEndFFUpload   = 0x406855c9 // _IOW('U', 201, struct uinput_ff_upload)
	uiBeginFFErase  = 0xc00c55ca // _IOWR('U', 202, struct uinput_ff_erase)
	uiEndFFErase    = 0x400c55cb // _IOW('U', 203, struct uinput_ff_erase)
)

// inputEvent mirrors struct input_event on 64-bit Linux.
type inputEvent struct {
	Sec   int64
	Usec  int64
	Type  uint16
	Code  uint16
	Value int32
}

const inputEventSize = int(unsafe.Sizeof(inputEvent{}))

// inputID mirrors struct input_id.
type inputID struct {
	BusType uint16
	Vendor  uint16
	Product uint16
	Version uint16
}

// uinputUserDev mirrors struct uinput_user_dev written to the control
// node before UI_DEV_CREATE.
type uinputUserDev struct {
	Name          [uinputMaxNameSize]byte
	ID            inputID
	FFEffectsMax  uint32
	AbsMax        [absCnt]int32
	AbsMin        [absCnt]int32
	AbsFuzz       [absCnt]int32
	AbsFlat       [absCnt]int32
}

// ffEffect mirrors struct ff_effect. The trailing bytes are the kernel's
// effect-type union; for constant force the level lives in the first two
// bytes and the envelope follows.
type ffEffect struct {
	Type      uint16
	ID        int16
	Direction uint16
	Trigger   [2]uint16 // button, interval
	Replay    [2]uint16 // length, delay
	_         [2]byte
	U         [32]byte
}

// constantLevel extracts the signed level of a constant-force effect.
func (e *ffEffect) constantLevel() int16 {
	return int16(binary.LittleEndian.Uint16(e.U[0:2]))
}

// uinputFFUpload mirrors struct uinput_ff_upload.
type uinputFFUpload struct {
	RequestID uint32
	Retval    int32
	Effect    ffEffect
	Old       ffEffect
}

// uinputFFErase mirrors struct uinput_ff_erase.
type uinputFFErase struct {
	RequestID uint32
	Retval    int32
	EffectID  uint32
}

// conn is the device's view of an open uinput node. The force-feedback
// calls are the upload/erase handshake the kernel requires for EV_UINPUT
// requests.
type conn interface {
	writeEvent(typ, code uint16, value int32) error
	readEvent() (inputEvent, error)
	beginFFUpload(*uinputFFUpload) error
	endFFUpload(*uinputFFUpload) error
	beginFFErase(*uinputFFErase) error
	endFFErase(*uinputFFErase) error
	close() error
}

// uinputConn is the kernel-backed conn.
type uinputConn struct {
	f *os.File
}

var _ conn = (*uinputConn)(nil)

// deviceSpec is everything the kernel needs to materialize one virtual
// joystick.
type deviceSpec struct {
	Name         string
	Vendor       uint16
	Product      uint16
	Version      uint16
	Axes         []int
	Buttons      []int
	FFEffectsMax uint32
}

// createUinputDevice opens the uinput node, registers the spec's
// capabilities, and creates the kernel device.
func createUinputDevice(path string, spec deviceSpec) (*uinputConn, error) {
	f, err := os.OpenFile(path, os.O_RDWR|unix.O_NONBLOCK, 0)
	if err != nil {
		if os.IsPermission(err) {
			return nil, errors.WrapFatal(err, "joystick-output", "create", "open "+path)
		}
		return nil, errors.WrapTransient(err, "joystick-output", "create", "open "+path)
	}

	// Clear O_NONBLOCK so force-feedback reads block on the fd.
	if err := unix.SetNonblock(int(f.Fd()), false); err != nil {
		f.Close()
		return nil, errors.WrapTransient(err, "joystick-output", "create", "clear nonblock")
	}

	setup := func() error {
		if len(spec.Buttons) > 0 {
			if err := ioctlInt(f, uiSetEvBit, evKey); err != nil {
				return fmt.Errorf("enable EV_KEY: %w", err)
			}
			for _, code := range spec.Buttons {
				if err := ioctlInt(f, uiSetKeyBit, code); err != nil {
					return fmt.Errorf("register button %d: %w", code, err)
				}
			}
		}
		if len(spec.Axes) > 0 {
			if err := ioctlInt(f, uiSetEvBit, evAbs); err != nil {
				return fmt.Errorf("enable EV_ABS: %w", err)
			}
			for _, code := range spec.Axes {
				if err := ioctlInt(f, uiSetAbsBit, code); err != nil {
					return fmt.Errorf("register axis %d: %w", code, err)
				}
			}
		}
		if spec.FFEffectsMax > 0 {
			if err := ioctlInt(f, uiSetEvBit, evFF); err != nil {
				return fmt.Errorf("enable EV_FF: %w", err)
			}
			if err := ioctlInt(f, uiSetFFBit, ffConstant); err != nil {
				return fmt.Errorf("register FF_CONSTANT: %w", err)
			}
			if err := ioctlInt(f, uiSetFFBit, ffGain); err != nil {
				return fmt.Errorf("register FF_GAIN: %w", err)
			}
		}

		ud := uinputUserDev{
			ID: inputID{
				BusType: unix.BUS_VIRTUAL,
				Vendor:  spec.Vendor,
				Product: spec.Product,
				Version: spec.Version,
			},
			FFEffectsMax: spec.FFEffectsMax,
		}
		copy(ud.Name[:uinputMaxNameSize-1], spec.Name)
		for _, code := range spec.Axes {
			ud.AbsMin[code] = axisMin
			ud.AbsMax[code] = axisMax
		}
		buf := (*[unsafe.Sizeof(ud)]byte)(unsafe.Pointer(&ud))[:]
		if _, err := f.Write(buf); err != nil {
			return fmt.Errorf("write device descriptor: %w", err)
		}
		if err := ioctlRaw(f, uiDevCreate, 0); err != nil {
			return fmt.Errorf("UI_DEV_CREATE: %w", err)
		}
		return nil
	}

	if err := setup(); err != nil {
		f.Close()
		return nil, errors.WrapTransient(err, "joystick-output", "create", "register "+spec.Name)
	}
	return &uinputConn{f: f}, nil
}

func (c *uinputConn) writeEvent(typ, code uint16, value int32) error {
	ev := inputEvent{Type: typ, Code: code, Value: value}
	buf := (*[unsafe.Sizeof(ev)]byte)(unsafe.Pointer(&ev))[:]
	_, err := c.f.Write(buf)
	return err
}

func (c *uinputConn) readEvent() (inputEvent, error) {
	var ev inputEvent
	buf := (*[unsafe.Sizeof(ev)]byte)(unsafe.Pointer(&ev))[:]
	n, err := c.f.Read(buf)
	if err != nil {
		return inputEvent{}, err
	}
	if n != inputEventSize {
		return inputEvent{}, fmt.Errorf("short input event read: %d bytes", n)
	}
	return ev, nil
}

func (c *uinputConn) beginFFUpload(u *uinputFFUpload) error {
	return ioctlRaw(c.f, uiBeginFFUpload, uintptr(unsafe.Pointer(u)))
}

func (c *uinputConn) endFFUpload(u *uinputFFUpload) error {
	return ioctlRaw(c.f, uiEndFFUpload, uintptr(unsafe.Pointer(u)))
}

func (c *uinputConn) beginFFErase(e *uinputFFErase) error {
	return ioctlRaw(c.f, uiBeginFFErase, uintptr(unsafe.Pointer(e)))
}

func (c *uinputConn) endFFErase(e *uinputFFErase) error {
	return ioctlRaw(c.f, uiEndFFErase, uintptr(unsafe.Pointer(e)))
}

func (c *uinputConn) close() error {
	_ = ioctlRaw(c.f, uiDevDestroy, 0)
	return c.f.Close()
}

func ioctlInt(f *os.File, req uint, value int) error {
	return ioctlRaw(f, req, uintptr(value))
}

func ioctlRaw(f *os.File, req uint, arg uintptr) error {
	_, _, errno := unix.Syscall(unix.SYS_IOCTL, f.Fd(), uintptr(req), arg)
	if errno != 0 {
		return errno
	}
	return nil
}

// specFor derives the kernel device spec from a resolved joystick
// declaration.
func specFor(name string, vendor, product, version uint16, controls map[string]event.Key, ffMax int) deviceSpec {
	spec := deviceSpec{
		Name:    name,
		Vendor:  vendor,
		Product: product,
		Version: version,
	}
	seenAxis := make(map[int]bool)
	seenBtn := make(map[int]bool)
	for _, key := range controls {
		switch key.Kind {
		case event.KindAbsAxis:
			if !seenAxis[key.Code] {
				seenAxis[key.Code] = true
				spec.Axes = append(spec.Axes, key.Code)
			}
		case event.KindButton:
			if !seenBtn[key.Code] {
				seenBtn[key.Code] = true
				spec.Buttons = append(spec.Buttons, key.Code)
			}
		}
	}
	if ffMax > 0 {
		spec.FFEffectsMax = uint32(ffMax)
	}
	return spec
}
