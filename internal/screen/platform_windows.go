//go:build windows

package screen

import (
	"fmt"
	"image"
	"unsafe"

	"golang.org/x/sys/windows"
)

var (
	user32 = windows.NewLazySystemDLL("user32.dll")
	gdi32  = windows.NewLazySystemDLL("gdi32.dll")

	procIsIconic               = user32.NewProc("IsIconic")
	procGetClientRect          = user32.NewProc("GetClientRect")
	procGetWindowRect          = user32.NewProc("GetWindowRect")
	procClientToScreen         = user32.NewProc("ClientToScreen")
	procGetWindowDC            = user32.NewProc("GetWindowDC")
	procReleaseDC              = user32.NewProc("ReleaseDC")
	procPrintWindow            = user32.NewProc("PrintWindow")
	procCreateCompatibleDC     = gdi32.NewProc("CreateCompatibleDC")
	procCreateCompatibleBitmap = gdi32.NewProc("CreateCompatibleBitmap")
	procSelectObject           = gdi32.NewProc("SelectObject")
	procBitBlt                 = gdi32.NewProc("BitBlt")
	procDeleteDC               = gdi32.NewProc("DeleteDC")
	procDeleteObject           = gdi32.NewProc("DeleteObject")
	procGetDIBits              = gdi32.NewProc("GetDIBits")
)

const (
	pwClientOnly        = 0x1
	pwRenderFullContent = 0x2
	srcCopy             = 0x00CC0020
	biRGB               = 0
	dibRGBColors        = 0
)

type point struct{ X, Y int32 }

type bitmapInfoHeader struct {
	Size          uint32
	Width         int32
	Height        int32
	Planes        uint16
	BitCount      uint16
	Compression   uint32
	SizeImage     uint32
	XPelsPerMeter int32
	YPelsPerMeter int32
	ClrUsed       uint32
	ClrImportant  uint32
}

type bitmapInfo struct {
	Header bitmapInfoHeader
	Colors [1]uint32
}

type win32Platform struct{}

// NewPlatform returns the win32 window backend.
func NewPlatform() Platform { return win32Platform{} }

func hwnd(h Handle) windows.HWND { return windows.HWND(h) }

func (win32Platform) IsValid(h Handle) bool   { return h != 0 && windows.IsWindow(hwnd(h)) }
func (win32Platform) IsVisible(h Handle) bool { return windows.IsWindowVisible(hwnd(h)) }

func (win32Platform) IsMinimized(h Handle) bool {
	r, _, _ := procIsIconic.Call(uintptr(h))
	return r != 0
}

func (win32Platform) ClientRectScreen(h Handle) (image.Rectangle, error) {
	var rc windows.Rect
	if r, _, err := procGetClientRect.Call(uintptr(h), uintptr(unsafe.Pointer(&rc))); r == 0 {
		return image.Rectangle{}, fmt.Errorf("GetClientRect: %w", err)
	}
	var origin point
	if r, _, err := procClientToScreen.Call(uintptr(h), uintptr(unsafe.Pointer(&origin))); r == 0 {
		return image.Rectangle{}, fmt.Errorf("ClientToScreen: %w", err)
	}
	return image.Rect(0, 0, int(rc.Right-rc.Left), int(rc.Bottom-rc.Top)).
		Add(image.Pt(int(origin.X), int(origin.Y))), nil
}

func (win32Platform) WindowRectScreen(h Handle) (image.Rectangle, error) {
	var rc windows.Rect
	if r, _, err := procGetWindowRect.Call(uintptr(h), uintptr(unsafe.Pointer(&rc))); r == 0 {
		return image.Rectangle{}, fmt.Errorf("GetWindowRect: %w", err)
	}
	return image.Rect(int(rc.Left), int(rc.Top), int(rc.Right), int(rc.Bottom)), nil
}

// CopyClientBitmap renders the window into an off-screen bitmap with
// PrintWindow, which works for DWM-composed and occluded windows. If
// PrintWindow refuses, it block-copies from the window DC instead.
func (p win32Platform) CopyClientBitmap(h Handle, t Target) (*image.RGBA, Method, error) {
	w, hgt := t.Rect.Dx(), t.Rect.Dy()
	if w <= 0 || hgt <= 0 {
		return nil, "", fmt.Errorf("empty target %v", t.Rect)
	}

	windowDC, _, err := procGetWindowDC.Call(uintptr(h))
	if windowDC == 0 {
		return nil, "", fmt.Errorf("GetWindowDC: %w", err)
	}
	defer procReleaseDC.Call(uintptr(h), windowDC)

	memDC, _, err := procCreateCompatibleDC.Call(windowDC)
	if memDC == 0 {
		return nil, "", fmt.Errorf("CreateCompatibleDC: %w", err)
	}
	defer procDeleteDC.Call(memDC)

	bmp, _, err := procCreateCompatibleBitmap.Call(windowDC, uintptr(w), uintptr(hgt))
	if bmp == 0 {
		return nil, "", fmt.Errorf("CreateCompatibleBitmap: %w", err)
	}
	defer procDeleteObject.Call(bmp)

	old, _, _ := procSelectObject.Call(memDC, bmp)

	method := MethodPrintWindow
	flags := uintptr(pwRenderFullContent)
	if t.Client {
		flags |= pwClientOnly
	}
	if r, _, _ := procPrintWindow.Call(uintptr(h), memDC, flags); r == 0 {
		// The window DC origin is the window's top-left; shift to the client origin.
		var sx, sy int
		if t.Client {
			if wr, werr := p.WindowRectScreen(h); werr == nil {
				sx, sy = t.Rect.Min.X-wr.Min.X, t.Rect.Min.Y-wr.Min.Y
			}
		}
		r, _, berr := procBitBlt.Call(memDC, 0, 0, uintptr(w), uintptr(hgt), windowDC, uintptr(sx), uintptr(sy), srcCopy)
		if r == 0 {
			procSelectObject.Call(memDC, old)
			return nil, "", fmt.Errorf("PrintWindow and BitBlt failed: %w", berr)
		}
		method = MethodBitBlt
	}
	procSelectObject.Call(memDC, old)

	img, err := readDIB(memDC, bmp, w, hgt)
	if err != nil {
		return nil, "", err
	}
	return img, method, nil
}

// readDIB reads a top-down 32-bit DIB and converts BGRA to opaque RGBA.
func readDIB(dc, bmp uintptr, w, h int) (*image.RGBA, error) {
	var bi bitmapInfo
	bi.Header.Size = uint32(unsafe.Sizeof(bi.Header))
	bi.Header.Width = int32(w)
	bi.Header.Height = -int32(h)
	bi.Header.Planes = 1
	bi.Header.BitCount = 32
	bi.Header.Compression = biRGB

	img := image.NewRGBA(image.Rect(0, 0, w, h))
	r, _, err := procGetDIBits.Call(dc, bmp, 0, uintptr(h),
		uintptr(unsafe.Pointer(&img.Pix[0])), uintptr(unsafe.Pointer(&bi)), dibRGBColors)
	if r == 0 {
		return nil, fmt.Errorf("GetDIBits: %w", err)
	}
	for i := 0; i < len(img.Pix); i += 4 {
		img.Pix[i], img.Pix[i+2] = img.Pix[i+2], img.Pix[i]
		img.Pix[i+3] = 0xff
	}
	return img, nil
}

// ExecutablePath resolves the image path of the process owning h.
func (win32Platform) ExecutablePath(h Handle) (string, error) {
	var pid uint32
	if _, err := windows.GetWindowThreadProcessId(hwnd(h), &pid); err != nil {
		return "", fmt.Errorf("GetWindowThreadProcessId: %w", err)
	}
	proc, err := windows.OpenProcess(windows.PROCESS_QUERY_LIMITED_INFORMATION, false, pid)
	if err != nil {
		return "", fmt.Errorf("OpenProcess %d: %w", pid, err)
	}
	defer windows.CloseHandle(proc)

	buf := make([]uint16, windows.MAX_LONG_PATH)
	size := uint32(len(buf))
	if err := windows.QueryFullProcessImageName(proc, 0, &buf[0], &size); err != nil {
		return "", fmt.Errorf("QueryFullProcessImageName: %w", err)
	}
	return windows.UTF16ToString(buf[:size]), nil
}
