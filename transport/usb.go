package transport

import (
	"errors"
	"fmt"
	"log/slog"
	"time"

	usb "github.com/kevmo314/go-usb"
	"golang.org/x/sys/unix"

	"mixerd/protocol"
)

// USB identifiers for the supported hardware.
const (
	VendorID      = 0x1220
	ProductIDFull = 0x8fe0
	ProductIDMini = 0x8fe4
)

// DeviceClass distinguishes the two hardware variants. The mini shares the
// protocol but needs a longer quiescence interval between write and read.
type DeviceClass int

const (
	ClassFull DeviceClass = iota
	ClassMini
)

func (c DeviceClass) String() string {
	if c == ClassMini {
		return "mini"
	}
	return "full"
}

// Quiescence returns the settle interval for the class.
func (c DeviceClass) Quiescence() time.Duration {
	if c == ClassMini {
		return QuiescenceMini
	}
	return QuiescenceFull
}

// bmRequestType values for the vendor interface.
const (
	requestTypeVendorOut = 0x41 // host-to-device, vendor, interface
	requestTypeVendorIn  = 0xc1 // device-to-host, vendor, interface
	requestTypeClassOut  = 0x21 // host-to-device, class, interface
)

const controlTimeout = time.Second

// usbHandle is the slice of *usb.DeviceHandle the backend uses; narrowed for
// attach-sequence tests.
type usbHandle interface {
	ControlTransfer(requestType, request uint8, value, index uint16, data []byte, timeout time.Duration) (int, error)
	ClaimInterface(iface uint8) error
	ReleaseInterface(iface uint8) error
	DetachKernelDriver(iface uint8) error
	ResetDevice() error
	Close() error
}

// usbControl adapts a claimed vendor-interface USB handle to the engine's
// controlDevice contract.
type usbControl struct {
	handle usbHandle
}

func (u *usbControl) WriteVendor(request uint8, value, index uint16, data []byte) error {
	_, err := u.handle.ControlTransfer(requestTypeVendorOut, request, value, index, data, controlTimeout)
	return err
}

func (u *usbControl) ReadVendor(request uint8, value, index uint16, length int) ([]byte, error) {
	buf := make([]byte, length)
	n, err := u.handle.ControlTransfer(requestTypeVendorIn, request, value, index, buf, controlTimeout)
	if err != nil {
		// A pipe stall on the response endpoint means the reply has not been
		// staged yet; everything else is a real failure.
		if errors.Is(err, unix.EPIPE) || errors.Is(err, usb.ErrPipe) {
			return nil, fmt.Errorf("%w: %w", errNotReady, err)
		}
		return nil, err
	}
	return buf[:n], nil
}

func (u *usbControl) writeClass(request uint8, value, index uint16, data []byte) error {
	_, err := u.handle.ControlTransfer(requestTypeClassOut, request, value, index, data, controlTimeout)
	return err
}

func (u *usbControl) Close() error {
	_ = u.handle.ReleaseInterface(0)
	return u.handle.Close()
}

// Attachment is an opened, initialised device ready to be wrapped in an
// Engine.
type Attachment struct {
	Control *usbControl
	Class   DeviceClass
	Path    string
}

// Find returns the device paths of all supported mixers currently attached.
func Find() ([]string, error) {
	devices, err := usb.DeviceList()
	if err != nil {
		return nil, fmt.Errorf("enumerate usb devices: %w", err)
	}

	var paths []string
	for _, dev := range devices {
		if dev.Descriptor.VendorID != VendorID {
			continue
		}
		if dev.Descriptor.ProductID == ProductIDFull || dev.Descriptor.ProductID == ProductIDMini {
			paths = append(paths, dev.Path)
		}
	}
	return paths, nil
}

// Attach opens and initialises the mixer at the given device path.
func Attach(path string, logger *slog.Logger) (*Attachment, error) {
	devices, err := usb.DeviceList()
	if err != nil {
		return nil, fmt.Errorf("enumerate usb devices: %w", err)
	}

	for _, dev := range devices {
		if dev.Path != path {
			continue
		}

		class := ClassFull
		if dev.Descriptor.ProductID == ProductIDMini {
			class = ClassMini
		}

		handle, err := dev.Open()
		if err != nil {
			return nil, fmt.Errorf("open %s: %w", path, err)
		}

		ctl, err := initialise(handle, logger)
		if err != nil {
			_ = handle.Close()
			return nil, err
		}

		logger.Info("device attached", "path", path, "class", class.String())
		return &Attachment{Control: ctl, Class: class, Path: path}, nil
	}

	return nil, fmt.Errorf("attach %s: %w", path, usb.ErrDeviceNotFound)
}

// initialise runs the vendor-interface activation sequence. A freshly
// powered device rejects the sequence reset with a stall until the vendor
// interface has been activated and audio brought up.
func initialise(handle usbHandle, logger *slog.Logger) (*usbControl, error) {
	ctl := &usbControl{handle: handle}

	claimed := handle.ClaimInterface(0) == nil

	err := ctl.WriteVendor(ctrlResetSequence, 0, 0, nil)
	if err != nil && (errors.Is(err, unix.EPIPE) || errors.Is(err, usb.ErrPipe)) {
		logger.Info("uninitialised device found, activating vendor interface")

		if claimed {
			_ = handle.ReleaseInterface(0)
		}
		_ = handle.DetachKernelDriver(0)
		if err := handle.ClaimInterface(0); err != nil {
			return nil, fmt.Errorf("claim interface: %w", err)
		}

		if _, err := ctl.ReadVendor(ctrlActivate, 0, 0, 24); err != nil {
			return nil, fmt.Errorf("activate vendor interface: %w", err)
		}

		// Bring up the audio side (48kHz sample clock) and reset so the
		// sound server can re-enumerate the card.
		if err := ctl.writeClass(1, 0x0100, 0x2900, []byte{0x80, 0xbb, 0x00, 0x00}); err != nil {
			return nil, fmt.Errorf("activate audio: %w", err)
		}
		_ = handle.ReleaseInterface(0)
		if err := handle.ResetDevice(); err != nil {
			return nil, fmt.Errorf("reset device: %w", err)
		}

		if err := ctl.WriteVendor(ctrlResetSequence, 0, 0, nil); err != nil {
			return nil, fmt.Errorf("reset sequence counter: %w", err)
		}

		// The device needs a moment before it will answer commands.
		time.Sleep(2 * time.Second)
	} else if err != nil {
		return nil, fmt.Errorf("reset sequence counter: %w", err)
	}

	// Force command pipe activation; the first read flushes any stale
	// response left from a previous owner.
	if _, err := ctl.ReadVendor(ctrlReadResponse, 0, 0, protocol.ResponseBufferSize); err != nil && !isNotReady(err) {
		return nil, fmt.Errorf("drain command pipe: %w", err)
	}

	return ctl, nil
}
